package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"modsync/internal/config"
	"modsync/internal/daemon"
	"modsync/internal/db"
	"modsync/internal/logger"
	"modsync/internal/model"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the sync daemon and its local bridge",
	RunE: func(cmd *cobra.Command, args []string) error {
		defer logger.Sync()

		dir, err := config.Dir()
		if err != nil {
			return err
		}

		nodeID, err := model.LoadOrCreateNodeID(dir)
		if err != nil {
			return err
		}

		if err := db.Init(cfg.DBPath); err != nil {
			return err
		}

		d, err := daemon.New(cmd.Context(), cfg, db.DB, nodeID)
		if err != nil {
			return err
		}

		if err := d.Start(cmd.Context()); err != nil {
			return err
		}

		logger.Log.Info("modsync daemon started",
			zap.String("backend", string(cfg.Backend)),
			zap.String("author", cfg.Author),
			zap.Int("port", cfg.DaemonPort))

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

		select {
		case sig := <-sigCh:
			logger.Log.Info("shutting down",
				zap.String("signal", sig.String()))
		case <-d.StopCh():
			logger.Log.Info("stop requested via API")
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return d.Stop(ctx)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
