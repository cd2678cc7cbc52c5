package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Fetch the authenticated profile from the backend",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newSDK()
		if err != nil {
			return err
		}

		user, err := client.apiClient.Profile(cmd.Context())
		if err != nil {
			return err
		}

		fmt.Printf("ID:       %s\n", user.ID)
		fmt.Printf("Username: %s\n", user.Username)
		fmt.Printf("Email:    %s\n", user.Email)
		fmt.Printf("Role:     %s\n", user.Role)
		fmt.Printf("Verified: %t\n", user.Verified)
		return nil
	},
}
