package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ethpandaops/execution-calltree/pkg/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Runs the worker, API and metrics servers.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer(cmd)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServer(cmd *cobra.Command) error {
	config, err := loadConfig(true)
	if err != nil {
		return fmt.Errorf("failed to load server config: %w", err)
	}

	srv, err := server.NewServer(log, "execution_calltree", config)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	if err := srv.Start(cmd.Context()); err != nil {
		return fmt.Errorf("server failed: %w", err)
	}

	log.Info("Execution calltree server exited - cya!")

	return nil
}
