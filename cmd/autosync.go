package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var autoSyncInterval time.Duration

var autoSyncCmd = &cobra.Command{
	Use:   "autosync",
	Short: "Manage periodic syncing of a project",
}

var autoSyncEnableCmd = &cobra.Command{
	Use:   "enable [project]",
	Short: "Sync the project on an interval",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := client().EnableAutoSync(cmd.Context(), args[0], autoSyncInterval); err != nil {
			return err
		}

		interval := autoSyncInterval
		if interval <= 0 {
			interval = cfg.SyncInterval()
		}

		fmt.Printf("auto-sync enabled for %s every %s\n", args[0], interval)
		return nil
	},
}

var autoSyncDisableCmd = &cobra.Command{
	Use:   "disable [project]",
	Short: "Stop syncing the project on an interval",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		stopped, err := client().DisableAutoSync(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		if !stopped {
			fmt.Printf("auto-sync was not enabled for %s\n", args[0])
			return nil
		}

		fmt.Printf("auto-sync disabled for %s\n", args[0])
		return nil
	},
}

func init() {
	autoSyncEnableCmd.Flags().DurationVar(&autoSyncInterval, "interval", 0, "sync interval (default sync_interval from config)")
	autoSyncCmd.AddCommand(autoSyncEnableCmd, autoSyncDisableCmd)
	rootCmd.AddCommand(autoSyncCmd)
}
