package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "End the session and clear persisted credentials",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newSDK()
		if err != nil {
			return err
		}

		client.controller.Logout(cmd.Context())
		fmt.Println("Logged out")
		return nil
	},
}
