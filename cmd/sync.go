package cmd

import (
	"fmt"
	"time"

	"modsync/internal/model"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var syncDirection string

var syncCmd = &cobra.Command{
	Use:   "sync [project]",
	Short: "Sync a project once",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := model.Direction(syncDirection)
		if !dir.Valid() {
			return fmt.Errorf("invalid direction %q, use push, pull or bidirectional", syncDirection)
		}

		result, err := client().SyncProject(cmd.Context(), args[0], dir)
		if err != nil {
			return err
		}

		fmt.Printf("synced %d files (%s) in %s\n",
			result.FilesSync, humanize.IBytes(uint64(result.BytesSync)), result.Duration.Round(time.Millisecond))
		fmt.Printf("conflicts: %d detected, %d resolved\n", result.ConflictsDetected, result.ConflictsResolved)

		for _, c := range result.Conflicts {
			fmt.Printf("  held %-40s %s (%s)\n", c.FilePath, c.ConflictType, c.ID)
		}

		for _, f := range result.Failures {
			fmt.Printf("  ✗ %-40s %s\n", f.Path, f.Error)
		}

		if result.SnapshotID != "" {
			fmt.Printf("snapshot %s\n", result.SnapshotID)
		}

		return nil
	},
}

func init() {
	syncCmd.Flags().StringVar(&syncDirection, "direction", string(model.DirectionBidirectional), "push, pull or bidirectional")
	rootCmd.AddCommand(syncCmd)
}
