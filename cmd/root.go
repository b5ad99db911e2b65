package cmd

import (
	"fmt"
	"os"

	"modsync/internal/bridge"
	"modsync/internal/config"
	"modsync/internal/logger"
	"modsync/internal/model"

	"github.com/spf13/cobra"
)

var (
	cfg        *config.Config
	debug      bool
	configFile string
)

var rootCmd = &cobra.Command{
	Use:          "modsync",
	Short:        "Keep mod projects in sync with collaborators",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "help" || cmd.Name() == "completion" {
			return nil
		}

		logger.Init(debug)

		var err error
		if configFile != "" {
			cfg, err = config.LoadFile(configFile)
		} else {
			cfg, err = config.Load()
		}
		if err != nil {
			return err
		}

		if cfg.Author == "" {
			dir, err := config.Dir()
			if err != nil {
				return err
			}

			cfg.Author, err = model.LoadOrCreateNodeID(dir)
			if err != nil {
				return err
			}
		}

		return nil
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func daemonURL() string {
	return fmt.Sprintf("http://127.0.0.1:%d", cfg.DaemonPort)
}

func client() *bridge.Client {
	return bridge.NewClient(daemonURL())
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug mode")
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file (default ~/.modsync/config.yaml)")
}
