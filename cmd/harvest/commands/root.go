package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/shehryarbajwa/rentharvest/internal/api"
	"github.com/shehryarbajwa/rentharvest/internal/config"
)

var (
	configPath string
	apiURL     string

	cfg    *config.Config
	logger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "harvest",
	Short: "harvest collects rental listings and their payment breakdowns.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		cfg = loaded
		logger = config.NewLogger(cfg.General.LogLevel)
		slog.SetDefault(logger)
		return nil
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config.yaml")
	rootCmd.PersistentFlags().StringVar(&apiURL, "api", "http://localhost:8080", "REST address of a running server")
}

func restClient() *api.Client {
	host, _ := os.Hostname()
	return api.NewClient(apiURL, "harvest-cli@"+host)
}

func ExecuteContext(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
