package cmd

import (
	"modsync/internal/backend/peer"
	"modsync/internal/config"
	"modsync/internal/logger"
	"modsync/internal/model"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var peerAddr string

var peerCmd = &cobra.Command{
	Use:   "peer",
	Short: "Run a p2p backend node that collaborators sync against",
	RunE: func(cmd *cobra.Command, args []string) error {
		defer logger.Sync()

		if peerAddr != "" {
			cfg.PeerServer.Addr = peerAddr
		}

		dir, err := config.Dir()
		if err != nil {
			return err
		}

		nodeID, err := model.LoadOrCreateNodeID(dir)
		if err != nil {
			return err
		}

		srv, err := peer.NewServer(cfg.PeerServer.DataDir, cfg.PeerServer.Addr, nodeID)
		if err != nil {
			return err
		}

		if err := srv.Start(); err != nil {
			return err
		}

		sig := waitForSignal()
		logger.Log.Info("shutting down",
			zap.String("signal", sig.String()))

		srv.Stop()
		return nil
	},
}

func init() {
	peerCmd.Flags().StringVar(&peerAddr, "addr", "", "listen address (overrides peer_server.addr)")
	rootCmd.AddCommand(peerCmd)
}
