// Copyright (c) 2025 Querypilot
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package manifest handles dynamic backend endpoint configuration.
package manifest

import (
	"strings"
)

// Manifest represents the endpoint configuration from the server.
type Manifest struct {
	Version int          `json:"version"`
	API     APIEndpoints `json:"api"`
}

// APIEndpoints contains the orchestrator origin and REST endpoint paths.
// Paths containing the {query_id} placeholder are expanded per query.
type APIEndpoints struct {
	Origin        string `json:"origin"`         // e.g., "https://api.querypilot.dev"
	Query         string `json:"query_submit"`   // e.g., "/api/query"
	Clarification string `json:"query_clarify"`  // e.g., "/api/query/clarify"
	Approval      string `json:"query_approve"`  // e.g., "/api/query/approve"
	Stream        string `json:"query_stream"`   // e.g., "/api/query/{query_id}/stream"
	Cancel        string `json:"query_cancel"`   // e.g., "/api/query/{query_id}/cancel"
	Health        string `json:"health"`         // e.g., "/api/health"
	Version       string `json:"version"`        // e.g., "/api/version"
}

// Default returns the endpoint set for an origin, used when the caller
// overrides the backend URL and skips manifest discovery.
func Default(origin string) APIEndpoints {
	return APIEndpoints{
		Origin:        origin,
		Query:         "/api/query",
		Clarification: "/api/query/clarify",
		Approval:      "/api/query/approve",
		Stream:        "/api/query/{query_id}/stream",
		Cancel:        "/api/query/{query_id}/cancel",
		Health:        "/api/health",
		Version:       "/api/version",
	}
}

// BaseURL returns the origin without a trailing slash.
func (e APIEndpoints) BaseURL() string {
	return strings.TrimRight(e.Origin, "/")
}

// ExpandQueryID substitutes the query identifier into a templated path.
func ExpandQueryID(path, queryID string) string {
	return strings.ReplaceAll(path, "{query_id}", queryID)
}
