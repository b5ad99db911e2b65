package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var conflictsCmd = &cobra.Command{
	Use:   "conflicts [project]",
	Short: "List files that differ between the workspace and the backend",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		report, err := client().DetectConflicts(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		if len(report.Conflicts) == 0 {
			fmt.Println("no conflicts")
			return nil
		}

		fmt.Printf("%-16s %-12s %-12s %s\n", "ID", "TYPE", "SUGGESTED", "PATH")
		for _, c := range report.Conflicts {
			fmt.Printf("%-16s %-12s %-12s %s\n", c.ID, c.ConflictType, c.SuggestedStrategy, c.FilePath)
		}

		return nil
	},
}

func init() {
	rootCmd.AddCommand(conflictsCmd)
}
