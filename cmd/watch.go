package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"modsync/internal/model"

	"github.com/spf13/cobra"
)

var (
	watchFollow bool
	watchPaths  []string
)

var watchCmd = &cobra.Command{
	Use:   "watch [project]",
	Short: "Broadcast local edits of a project and optionally follow its changes",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		c := client()

		if err := c.Watch(ctx, args[0]); err != nil {
			return err
		}
		fmt.Printf("watching %s\n", args[0])

		if !watchFollow {
			return nil
		}

		var filters *model.ChangeFilters
		if len(watchPaths) > 0 {
			filters = &model.ChangeFilters{Paths: watchPaths}
		}

		id, err := c.Subscribe(ctx, args[0], filters)
		if err != nil {
			return err
		}

		defer func() {
			_ = c.Unsubscribe(context.WithoutCancel(ctx), id)
		}()

		events, err := c.Events(ctx, id)
		if err != nil {
			return err
		}

		for ev := range events {
			ch := ev.Change
			fmt.Printf("[%s] %-8s %-12s %s\n",
				ch.Timestamp.Local().Format("15:04:05"), ch.ChangeType, ch.Author, ch.Path)
		}

		return nil
	},
}

func init() {
	watchCmd.Flags().BoolVarP(&watchFollow, "follow", "f", false, "stream changes until interrupted")
	watchCmd.Flags().StringSliceVar(&watchPaths, "path", nil, "only follow changes under these path prefixes")
	rootCmd.AddCommand(watchCmd)
}
