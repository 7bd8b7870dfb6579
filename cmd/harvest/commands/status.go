package commands

import (
	"fmt"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/shehryarbajwa/rentharvest/internal/export"
)

var exportTable bool

func init() {
	exportCmd.Flags().BoolVar(&exportTable, "table", false, "print a table instead of CSV")

	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(exportCmd)
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Prints the state of the server's session.",
	RunE: func(cmd *cobra.Command, args []string) error {
		snap, err := restClient().Status(cmd.Context())
		if err != nil {
			return err
		}

		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.AppendRows([]table.Row{
			{"Active", snap.Active},
			{"Site", snap.Config.Site},
			{"Location", snap.Config.Location},
			{"Durations", fmt.Sprint(snap.Config.Durations)},
			{"Target models", fmt.Sprint(snap.Config.TargetModels)},
			{"Max per date", snap.Config.MaxPerDate},
			{"Items", len(snap.Items)},
			{"Seen keys", len(snap.SeenKeys)},
		})
		t.SetStyle(table.StyleRounded)
		t.Render()
		return nil
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stops the server's session; a running engine finishes at its next check.",
	RunE: func(cmd *cobra.Command, args []string) error {
		items, err := restClient().Stop(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Printf("session stopped with %d items\n", len(items))
		return nil
	},
}

var exportCmd = &cobra.Command{
	Use:   "export [--table]",
	Short: "Writes the server's collected items to stdout.",
	RunE: func(cmd *cobra.Command, args []string) error {
		client := restClient()
		if exportTable {
			snap, err := client.Status(cmd.Context())
			if err != nil {
				return err
			}
			export.WriteTable(os.Stdout, snap.Items)
			return nil
		}
		raw, err := client.ExportCSV(cmd.Context())
		if err != nil {
			return err
		}
		_, err = os.Stdout.Write(raw)
		return err
	},
}
