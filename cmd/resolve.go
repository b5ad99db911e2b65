package cmd

import (
	"fmt"
	"os"
	"strings"

	"modsync/internal/model"

	"github.com/spf13/cobra"
)

var (
	resolveStrategy string
	resolveDataFile string
)

var resolveCmd = &cobra.Command{
	Use:   "resolve [project] [conflict-id]",
	Short: "Resolve one conflict with a strategy",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		projectID, id := args[0], args[1]

		report, err := client().DetectConflicts(cmd.Context(), projectID)
		if err != nil {
			return err
		}

		var target *model.Conflict
		for i := range report.Conflicts {
			if strings.HasPrefix(report.Conflicts[i].ID, id) {
				target = &report.Conflicts[i]
				break
			}
		}
		if target == nil {
			return fmt.Errorf("no conflict %s in project %s", id, projectID)
		}

		res := model.ConflictResolution{
			ConflictID: target.ID,
			Strategy:   model.Strategy(resolveStrategy),
			ResolvedBy: cfg.Author,
		}

		if resolveDataFile != "" {
			res.Strategy = model.StrategyCustom
			res.CustomData, err = os.ReadFile(resolveDataFile)
			if err != nil {
				return fmt.Errorf("failed to read resolution data: %w", err)
			}
		}

		if err := client().ResolveConflict(cmd.Context(), *target, res); err != nil {
			return err
		}

		fmt.Printf("resolved %s with %s\n", target.FilePath, res.Strategy)
		return nil
	},
}

func init() {
	resolveCmd.Flags().StringVar(&resolveStrategy, "strategy", string(model.StrategyKeepLocal), "keep_local, keep_remote, merge or custom")
	resolveCmd.Flags().StringVar(&resolveDataFile, "data", "", "file whose content replaces both sides (implies custom)")
	rootCmd.AddCommand(resolveCmd)
}
