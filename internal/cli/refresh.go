package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Force a token refresh for the current session",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newSDK()
		if err != nil {
			return err
		}

		if err := client.controller.RefreshTokens(cmd.Context()); err != nil {
			return err
		}

		fmt.Println("Tokens refreshed")
		return nil
	},
}
