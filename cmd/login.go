// Copyright (c) 2025 Querypilot
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"querypilot/cli/internal/auth"
	"querypilot/cli/internal/httperrors"
	"querypilot/cli/internal/manifest"
	"querypilot/cli/internal/orchestrator"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var (
	loginToken   string
	loginAccount string
)

// loginCmd represents the login command for token authentication.
// It prompts for a Querypilot API token, verifies that the backend is
// reachable, and stores the token securely in the OS keychain.
var loginCmd = &cobra.Command{
	Use:     "login",
	Aliases: []string{"auth"},
	Short:   "Authenticate with a Querypilot API token",
	Long: `The login command stores a Querypilot API token for this machine. The token
is read from the --token flag or prompted for interactively (input is hidden),
then stored securely in the OS keychain. Every subsequent backend request sends
the token as a bearer credential.

Generate a token in the Querypilot web console under Settings > API Tokens.`,

	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		// If already logged in, short-circuit
		if st, err := auth.Load(); err == nil && st.LoggedIn {
			if st.Account != "" {
				fmt.Printf("Already logged in as %s\n", st.Account)
			} else {
				fmt.Println("Already logged in")
			}
			fmt.Println("Run 'querypilot logout' first to switch accounts.")
			return nil
		}

		token := strings.TrimSpace(loginToken)
		if token == "" {
			fmt.Print("Enter your Querypilot API token: ")
			raw, err := term.ReadPassword(int(os.Stdin.Fd()))
			fmt.Println()
			if err != nil {
				return fmt.Errorf("failed to read token: %w", err)
			}
			token = strings.TrimSpace(string(raw))
		}
		if token == "" {
			return errors.New("API token is required")
		}

		// Reachability check before persisting anything
		m, err := manifest.GetEndpoints(ctx)
		if err != nil {
			return err
		}
		be := orchestrator.New(m.API, token)
		if _, err := be.GetVersion(ctx); err != nil {
			_ = httperrors.FormatNetworkError(err, "verifying the Querypilot service")
			fmt.Println("⚠️  Storing the token anyway; it will be used on the next request.")
		}

		if err := auth.Login(ctx, loginAccount, token); err != nil {
			return err
		}

		if loginAccount != "" {
			fmt.Printf("✅ Logged in as %s\n", loginAccount)
		} else {
			fmt.Println("✅ Logged in")
		}
		return nil
	},
}

func init() {
	loginCmd.Flags().StringVar(&loginToken, "token", "", "API token (prompted for when omitted)")
	loginCmd.Flags().StringVar(&loginAccount, "account", "", "Account label to show in status output")
	rootCmd.AddCommand(loginCmd)
}
