// Copyright (c) 2025 Querypilot
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package cmd provides the command-line interface for the Querypilot CLI application.
// It implements subcommands for asking natural-language database questions,
// authentication, and configuration using the Cobra CLI framework. The package
// handles command parsing, execution, and provides a rich terminal UI with
// spinners and progress indicators.
package cmd

import (
	"context"
	"fmt"
	"os"

	"querypilot/cli/internal/manifest"
	"querypilot/cli/internal/orchestrator"

	"github.com/spf13/cobra"
)

var (
	showVersion bool
)

// rootCmd represents the base command when called without any subcommands.
// It serves as the entry point for the Querypilot CLI application.
var rootCmd = &cobra.Command{
	Use:           "querypilot",
	Short:         "Querypilot CLI for querying databases in plain language",
	Long:          `Querypilot is a command-line tool that turns natural-language questions into SQL by talking to the Querypilot orchestrator service.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		if showVersion {
			ctx := context.Background()
			// Fetch manifest from server
			m, err := manifest.GetEndpoints(ctx)
			if err != nil {
				return err
			}

			be := orchestrator.New(m.API, "")
			backendVersion, err := be.GetVersion(ctx)
			if err != nil {
				backendVersion = "unknown"
			}

			fmt.Printf("querypilot %s\nbackend %s\n", Version, backendVersion)
			return nil
		}
		// If no flag is set, show help
		return cmd.Help()
	},
}

// Execute runs the CLI application.
// It executes the root command and handles any errors that occur during execution.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.Flags().BoolVar(&showVersion, "version", false, "Show CLI and backend version information")
}
