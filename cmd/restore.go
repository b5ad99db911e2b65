package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var restoreCmd = &cobra.Command{
	Use:   "restore [snapshot-id]",
	Short: "Roll the local workspace back to a snapshot",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := client().RestoreSnapshot(cmd.Context(), args[0]); err != nil {
			return err
		}

		fmt.Printf("restored snapshot %s\n", args[0])
		return nil
	},
}

func init() {
	rootCmd.AddCommand(restoreCmd)
}
