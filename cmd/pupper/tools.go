package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/teslashibe/go-pupper/internal/config"
	"github.com/teslashibe/go-pupper/pkg/tools"
)

func newToolsCmd(configFile *string) *cobra.Command {
	v := viper.New()
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "tools",
		Short: "Print the tool catalogue",
		Long: `Discover every tool provider and print the catalogue as the LLM sees it.

Examples:
  pupper tools
  pupper tools --servers servers.yaml --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(v, *configFile)
			if err != nil {
				return err
			}
			bridge := newBridge(cfg, nil)
			providers, err := newProviders(cmd.Context(), cfg, localTools(bridge, newPuppy(cfg)))
			if err != nil {
				return err
			}
			d := newDispatcher(cfg, providers, nil)
			defer d.Close()

			if err := d.Discover(cmd.Context()); err != nil {
				return err
			}
			catalog, err := d.Catalog()
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(catalog)
			}
			fmt.Print(tools.FormatCatalog(catalog))
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print the catalogue as JSON")
	config.BindCommonFlags(cmd, v)
	config.BindBridgeFlags(cmd, v)
	config.BindAssistantFlags(cmd, v)
	return cmd
}
