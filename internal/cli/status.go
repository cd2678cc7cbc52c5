package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the local session state without calling the backend",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newSDK()
		if err != nil {
			return err
		}

		info := client.sessions.Info()
		if info == nil {
			fmt.Println("No active session")
			return nil
		}

		fmt.Printf("User:          %s\n", info.User.Email)
		fmt.Printf("Role:          %s\n", info.User.Role)
		fmt.Printf("Valid:         %t\n", info.IsValid)
		fmt.Printf("Needs refresh: %t\n", info.ShouldRefresh)
		fmt.Printf("Expires in:    %s\n", info.TimeUntilExpiry.Round(time.Second))
		return nil
	},
}
