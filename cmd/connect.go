// Copyright (c) 2025 Querypilot
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"querypilot/cli/internal/auth"
	"querypilot/cli/internal/config"
	"querypilot/cli/internal/terminal"

	"github.com/spf13/cobra"
)

var (
	verboseConnect bool
)

// connectCmd represents the connect command for selecting the default database.
// It prompts for the name of a database catalog registered with the Querypilot
// service and saves it as the default target for 'querypilot ask'.
var connectCmd = &cobra.Command{
	Use:   "connect [database]",
	Short: "Select the default database for queries",
	Long: `The connect command sets the database catalog that queries run against by
default. The name must match a database registered with the Querypilot service
for your account. The selection is stored in the local config file and can be
overridden per query with 'querypilot ask --database'.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		// Enable verbose mode for all modules if --verbose is set
		if verboseConnect {
			os.Setenv("QUERYPILOT_VERBOSE", "1")
		}

		st, err := auth.Load()
		if err != nil || !st.LoggedIn {
			if verboseConnect {
				fmt.Printf("[DEBUG] connect: auth.Load() error or not logged in - err: %v, LoggedIn: %v\n", err, st.LoggedIn)
			}
			fmt.Println("⚠️  You need to be logged in to configure a database.")
			fmt.Println("   Please run: querypilot login")
			return nil
		}

		name := ""
		if len(args) == 1 {
			name = strings.TrimSpace(args[0])
		} else {
			reader := bufio.NewReader(os.Stdin)
			promptText := "Enter database name (as registered with Querypilot): "
			fmt.Print(promptText)
			raw, _ := reader.ReadString('\n')
			name = strings.TrimSpace(raw)

			// Clear the prompt and user input from terminal
			terminal.ClearPreviousLines(len(promptText) + len(raw))
		}
		if name == "" {
			return errors.New("database name is required")
		}

		cfg, err := config.Load()
		if err != nil {
			return err
		}
		cfg.Database = name
		if err := config.Save(cfg); err != nil {
			return err
		}

		fmt.Printf("✅ Default database set to %q\n", name)
		return nil
	},
}

func init() {
	connectCmd.Flags().BoolVar(&verboseConnect, "verbose", false, "Enable verbose debug output")
	rootCmd.AddCommand(connectCmd)
}
