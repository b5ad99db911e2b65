package cmd

import (
	"fmt"

	"modsync/internal/auth"

	"github.com/spf13/cobra"
)

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage authentication for cloud backends",
}

func authCommand(p auth.Provider, label, backend string) *cobra.Command {
	return &cobra.Command{
		Use:   p.Name(),
		Short: "Authenticate with " + label,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := p.Authorize(); err != nil {
				return err
			}

			fmt.Printf("Authenticated with %s, set backend: %s to use it\n", label, backend)
			return nil
		},
	}
}

func init() {
	authCmd.AddCommand(
		authCommand(auth.Dropbox, "Dropbox", "dropbox"),
		authCommand(auth.GDrive, "Google Drive", "firebase"),
	)
	rootCmd.AddCommand(authCmd)
}
