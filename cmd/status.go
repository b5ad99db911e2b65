package cmd

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status [project]",
	Short: "View a project's sync status",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		status, err := client().Status(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("daemon not reachable: %w", err)
		}

		if status == nil {
			fmt.Println("project not synced yet")
			return nil
		}

		state := "idle"
		if status.IsSyncing {
			state = fmt.Sprintf("syncing %d%% (%s)", status.SyncProgress, status.CurrentOperation)
		}

		fmt.Printf("project:   %s\n", status.ProjectID)
		fmt.Printf("state:     %s\n", state)
		fmt.Printf("last sync: %s\n", when(status.LastSyncTime))
		fmt.Printf("next sync: %s\n", when(status.NextSyncTime))

		if status.Error != "" {
			fmt.Printf("error:     %s\n", status.Error)
		}

		return nil
	},
}

func when(t time.Time) string {
	if t.IsZero() {
		return "-"
	}

	return fmt.Sprintf("%s (%s)", t.Local().Format("2006-01-02 15:04:05"), humanize.Time(t))
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
