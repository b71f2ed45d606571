// Copyright (c) 2025 Querypilot
// Licensed under the MIT License. See LICENSE file in the project root for details.

package manifest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const manifestURL = "https://querypilot.dev/cli-endpoints.json"

// fetchFromServer retrieves the manifest from the server.
func fetchFromServer(ctx context.Context) (*Manifest, error) {
	client := &http.Client{Timeout: 15 * time.Second}

	req, err := http.NewRequestWithContext(ctx, "GET", manifestURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("User-Agent", "querypilot-cli/1.0")
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch manifest: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("server returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var manifest Manifest
	if err := json.Unmarshal(body, &manifest); err != nil {
		return nil, fmt.Errorf("parse manifest JSON: %w", err)
	}

	if manifest.Version == 0 {
		return nil, fmt.Errorf("invalid manifest: missing version field")
	}
	if manifest.API.Origin == "" {
		return nil, fmt.Errorf("invalid manifest: missing api.origin field")
	}

	// Unset paths fall back to the defaults for the advertised origin.
	defaults := Default(manifest.API.Origin)
	fillDefaults(&manifest.API, defaults)

	return &manifest, nil
}

func fillDefaults(e *APIEndpoints, d APIEndpoints) {
	if e.Query == "" {
		e.Query = d.Query
	}
	if e.Clarification == "" {
		e.Clarification = d.Clarification
	}
	if e.Approval == "" {
		e.Approval = d.Approval
	}
	if e.Stream == "" {
		e.Stream = d.Stream
	}
	if e.Cancel == "" {
		e.Cancel = d.Cancel
	}
	if e.Health == "" {
		e.Health = d.Health
	}
	if e.Version == "" {
		e.Version = d.Version
	}
}
