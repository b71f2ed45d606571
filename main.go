// Package main is the entry point for the Querypilot CLI application.
// It lets users query their databases in plain language through the
// Querypilot orchestrator service.
package main

import (
	"querypilot/cli/cmd"
)

// main is the entry point for the Querypilot CLI application.
// It initializes and executes the command-line interface.
func main() {
	cmd.Execute()
}
