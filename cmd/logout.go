// Copyright (c) 2025 Querypilot
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"fmt"

	"querypilot/cli/internal/auth"

	"github.com/spf13/cobra"
)

// logoutCmd represents the logout command for clearing authentication state.
// It removes the stored API token and authentication state from the local
// system.
var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Remove the saved API token and login state",
	Long: `The logout command clears all authentication state from the local system.

This command removes:
- The API token from the OS keychain
- Local authentication state`,

	RunE: func(cmd *cobra.Command, args []string) error {
		if err := auth.Logout(cmd.Context()); err != nil {
			return err
		}
		fmt.Println("✅ All credentials and tokens have been removed")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(logoutCmd)
}
