// Command pupper controls a quadruped robot by voice or text through an
// LLM that calls rosbridge and robot action tools.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var configFile string
	rootCmd := &cobra.Command{
		Use:   "pupper",
		Short: "Voice and text control for a ROS robot dog",
		Long: `pupper - natural-language control for a robot dog over rosbridge.

Commands:
  pupper run            Listen for commands on stdin and serve the HTTP API
  pupper serve-tools    Expose the robot tools to another process over stdio
  pupper tools          Print the tool catalogue
  pupper ping           Check that the robot and rosbridge are reachable
  pupper version        Print version information`,
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file (default ./pupper.yaml)")

	rootCmd.AddCommand(newRunCmd(&configFile))
	rootCmd.AddCommand(newServeToolsCmd(&configFile))
	rootCmd.AddCommand(newToolsCmd(&configFile))
	rootCmd.AddCommand(newPingCmd(&configFile))
	rootCmd.AddCommand(newVersionCmd())

	return rootCmd.ExecuteContext(ctx)
}
