package commands

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/shehryarbajwa/rentharvest/internal/app"
	"github.com/shehryarbajwa/rentharvest/internal/engine"
	"github.com/shehryarbajwa/rentharvest/internal/export"
)

var (
	busURL       string
	location     string
	durations    []int
	targetModels []string
	maxPerDate   int
	quiet        bool
)

func init() {
	for _, cmd := range []*cobra.Command{runCmd, resumeCmd} {
		cmd.Flags().StringVar(&busURL, "bus", "", "bus websocket of a running server, e.g. ws://localhost:8080/v1/bus (default: in-process coordinator)")
		cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "do not print the result table")
	}
	runCmd.Flags().StringVar(&location, "location", "", "pickup location (overrides scrape.location)")
	runCmd.Flags().IntSliceVar(&durations, "days", nil, "rental durations in days (overrides scrape.durations)")
	runCmd.Flags().StringSliceVar(&targetModels, "model", nil, "target models (overrides scrape.target_models)")
	runCmd.Flags().IntVar(&maxPerDate, "max-per-date", 0, "cap per target model or category (overrides scrape.max_per_date)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(resumeCmd)
}

var runCmd = &cobra.Command{
	Use:   "run [--location <name>] [--days 1,3] [--model <name>...]",
	Short: "Starts a new scraping session and runs it to completion.",
	RunE: func(cmd *cobra.Command, args []string) error {
		flags := cmd.Flags()
		if flags.Changed("location") {
			cfg.Scrape.Location = location
		}
		if flags.Changed("days") {
			cfg.Scrape.Durations = durations
		}
		if flags.Changed("model") {
			cfg.Scrape.TargetModels = targetModels
		}
		if flags.Changed("max-per-date") {
			cfg.Scrape.MaxPerDate = maxPerDate
		}
		return runSession(cmd, false)
	},
}

var resumeCmd = &cobra.Command{
	Use:   "resume",
	Short: "Continues the active session left behind by an interrupted run.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSession(cmd, true)
	},
}

func runSession(cmd *cobra.Command, resume bool) error {
	res, err := app.Run(cmd.Context(), cfg, app.RunOptions{BusURL: busURL, Resume: resume}, logger)
	if err != nil {
		return err
	}
	logRounds(res)
	if !quiet {
		export.WriteTable(os.Stdout, res.Items)
	}
	return nil
}

func logRounds(res *engine.Result) {
	for _, r := range res.Rounds {
		if r.Err != nil {
			logger.Warn("round failed", "days", r.Days, "pickup", r.Pickup, "err", r.Err)
			continue
		}
		logger.Info("round finished", "days", r.Days, "pickup", r.Pickup, "added", r.Added)
	}
	logger.Info("session finished", "items", len(res.Items), "stopped", res.Stopped)
}
