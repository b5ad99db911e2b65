package cmd

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var historyN int

var historyCmd = &cobra.Command{
	Use:   "history [project]",
	Short: "View a project's snapshots, newest first",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		snaps, err := client().History(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		if len(snaps) == 0 {
			fmt.Println("no history yet")
			return nil
		}

		if historyN > 0 && len(snaps) > historyN {
			snaps = snaps[:historyN]
		}

		for _, s := range snaps {
			fmt.Printf("%s [%s] v%-4d %4d files %9s  %-12s %s\n",
				s.ID,
				s.Timestamp.Local().Format("2006-01-02 15:04:05"),
				s.Version,
				s.FileCount,
				humanize.IBytes(uint64(s.TotalSize)),
				s.Author,
				s.Message,
			)
		}

		return nil
	},
}

func init() {
	historyCmd.Flags().IntVar(&historyN, "n", 20, "number of snapshots to show")
	rootCmd.AddCommand(historyCmd)
}
