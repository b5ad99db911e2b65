package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"modsync/internal/backend/hub"
	"modsync/internal/logger"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var hubAddr string

var hubCmd = &cobra.Command{
	Use:   "hub",
	Short: "Run a self-hosted backend server",
	RunE: func(cmd *cobra.Command, args []string) error {
		defer logger.Sync()

		if hubAddr != "" {
			cfg.Hub.Addr = hubAddr
		}

		srv, err := hub.NewServer(cfg.Hub.DataDir, cfg.Hub.Addr, cfg.Hub.Token)
		if err != nil {
			return err
		}

		srv.Start()
		if cfg.Hub.Token == "" {
			logger.Log.Warn("hub running without a token, anyone who can reach it can read and write projects")
		}

		sig := waitForSignal()
		logger.Log.Info("shutting down",
			zap.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Stop(ctx)
	},
}

func waitForSignal() os.Signal {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	return <-sigCh
}

func init() {
	hubCmd.Flags().StringVar(&hubAddr, "addr", "", "listen address (overrides hub.addr)")
	rootCmd.AddCommand(hubCmd)
}
