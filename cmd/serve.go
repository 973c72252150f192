package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/seo-auditor/internal/server"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Runs the audit job engine and HTTP API",
		Long: `Starts the HTTP API, the extraction worker pool and the retention
sweep. The process drains in-flight jobs on SIGINT or SIGTERM.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := resolveConfig(cmd.Context())
			if err != nil {
				return err
			}
			app, err := server.Build(cmd.Context(), cfg)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			return app.Run(cmd.Context())
		},
	}
}
