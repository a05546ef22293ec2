package main

import (
	"encoding/json"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/teslashibe/go-pupper/internal/config"
	"github.com/teslashibe/go-pupper/pkg/rosbridge"
)

func newPingCmd(configFile *string) *cobra.Command {
	v := viper.New()
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "ping",
		Short: "Check that the robot and rosbridge are reachable",
		Long: `Ping the robot and try a TCP connection to the rosbridge port.

Examples:
  pupper ping
  pupper ping --bridge-host 10.0.0.2 --bridge-port 9090`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(v, *configFile)
			if err != nil {
				return err
			}
			res := rosbridge.CheckReachability(cmd.Context(), cfg.Bridge.Host, cfg.Bridge.Port, timeout, timeout)

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(res)
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", 2*time.Second, "ping and port check timeout")
	config.BindCommonFlags(cmd, v)
	config.BindBridgeFlags(cmd, v)
	return cmd
}
