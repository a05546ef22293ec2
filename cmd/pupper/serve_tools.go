package main

import (
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/teslashibe/go-pupper/internal/config"
	"github.com/teslashibe/go-pupper/internal/log"
	"github.com/teslashibe/go-pupper/pkg/toolproc"
)

func newServeToolsCmd(configFile *string) *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:   "serve-tools",
		Short: "Serve the robot tools over JSON-RPC on stdio",
		Long: `Serve the rosbridge and robot action tools to a parent process.

Requests arrive on stdin and responses leave on stdout, one JSON object
per message. Logs go to stderr. List this command in a servers file to
run the tools out of process:

  mcpServers:
    pupper:
      command: pupper
      args: ["serve-tools", "--bridge-host", "10.0.0.2"]`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(v, *configFile)
			if err != nil {
				return err
			}
			bridge := newBridge(cfg, nil)
			local := localTools(bridge, newPuppy(cfg))

			srv := toolproc.NewServer(local, toolproc.Implementation{Name: "pupper-tools", Version: version}, log.L())
			return srv.Serve(cmd.Context(), toolproc.NewStdio(os.Stdin, os.Stdout))
		},
	}

	config.BindCommonFlags(cmd, v)
	config.BindBridgeFlags(cmd, v)
	return cmd
}
