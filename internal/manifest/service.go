// Copyright (c) 2025 Querypilot
// Licensed under the MIT License. See LICENSE file in the project root for details.

package manifest

import (
	"context"
	"fmt"

	"github.com/pterm/pterm"

	"querypilot/cli/internal/httperrors"
)

// GetEndpoints returns the manifest endpoints, using the RAM cache if available.
// If not cached, it fetches from the server and caches the result.
// This function is the main entry point for retrieving backend configuration.
func GetEndpoints(ctx context.Context) (*Manifest, error) {
	if cached := GetCached(); cached != nil {
		return cached, nil
	}

	manifest, err := fetchFromServer(ctx)
	if err != nil {
		return nil, formatServerError(err)
	}

	SetCached(manifest)

	return manifest, nil
}

// formatServerError creates user-friendly error messages for manifest fetch failures.
func formatServerError(err error) error {
	host := httperrors.ExtractHostFromURL(manifestURL)
	pterm.Error.Println("Cannot connect to " + host)
	pterm.Println()
	pterm.Info.Println("Please check:")
	pterm.Println("  • Your internet connection")
	pterm.Println("  • Whether " + host + " is accessible from your network")
	pterm.Println("  • Firewall settings that might block HTTPS requests")
	pterm.Println()

	return fmt.Errorf("server unreachable: %w", err)
}
