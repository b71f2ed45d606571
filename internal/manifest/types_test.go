// Copyright (c) 2025 Querypilot
// Licensed under the MIT License. See LICENSE file in the project root for details.

package manifest

import (
	"testing"
)

func TestExpandQueryID(t *testing.T) {
	tests := []struct {
		name    string
		path    string
		queryID string
		want    string
	}{
		{
			name:    "templated stream path",
			path:    "/api/query/{query_id}/stream",
			queryID: "q-42",
			want:    "/api/query/q-42/stream",
		},
		{
			name:    "path without placeholder",
			path:    "/api/query",
			queryID: "q-42",
			want:    "/api/query",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExpandQueryID(tt.path, tt.queryID); got != tt.want {
				t.Errorf("ExpandQueryID() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestBaseURL(t *testing.T) {
	e := Default("https://api.querypilot.dev/")
	if got := e.BaseURL(); got != "https://api.querypilot.dev" {
		t.Errorf("BaseURL() = %v", got)
	}
}

func TestFillDefaults(t *testing.T) {
	e := APIEndpoints{Origin: "https://api.querypilot.dev", Query: "/v2/query"}
	fillDefaults(&e, Default(e.Origin))

	if e.Query != "/v2/query" {
		t.Errorf("explicit path overwritten: %v", e.Query)
	}
	if e.Stream == "" || e.Cancel == "" || e.Health == "" {
		t.Error("missing paths were not defaulted")
	}
}
