package cmd

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var shareCmd = &cobra.Command{
	Use:   "share [project] [collaborator...]",
	Short: "Create an invite code for a project",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		result, err := client().ShareProject(cmd.Context(), args[0], args[1:])
		if err != nil {
			return err
		}

		fmt.Printf("invite code: %s\n", result.InviteCode)
		fmt.Printf("expires:     %s\n", humanize.Time(result.ExpiresAt))
		fmt.Printf("permissions: %v\n", result.Permissions)
		if len(result.SharedWith) > 0 {
			fmt.Printf("shared with: %v\n", result.SharedWith)
		}

		return nil
	},
}

var joinCmd = &cobra.Command{
	Use:   "join [invite-code]",
	Short: "Join a shared project",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		result, err := client().JoinProject(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		fmt.Printf("joined %s (%s) as %s\n", result.ProjectName, result.ProjectID, result.Role)
		fmt.Printf("run 'modsync sync %s' to fetch its files\n", result.ProjectID)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(shareCmd, joinCmd)
}
