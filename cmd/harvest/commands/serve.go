package commands

import (
	"github.com/spf13/cobra"

	"github.com/shehryarbajwa/rentharvest/internal/app"
)

func init() {
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Runs the coordinator daemon with its REST and bus endpoints.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return app.Serve(cmd.Context(), cfg, logger)
	},
}
