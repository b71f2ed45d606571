// Copyright (c) 2025 Querypilot
// Licensed under the MIT License. See LICENSE file in the project root for details.

package orchestrator

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"querypilot/cli/internal/manifest"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(manifest.Default(srv.URL), "tok-123"), srv
}

func TestSubmitQuery(t *testing.T) {
	var gotBody map[string]any
	var gotAuth string
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/query", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		_ = json.NewEncoder(w).Encode(map[string]any{"query_id": "q1", "status": "success"})
	}))

	resp, err := c.SubmitQuery(context.Background(), "top customers", "sess-1", "sales")
	require.NoError(t, err)
	assert.Equal(t, "q1", resp.QueryID)
	assert.Equal(t, "Bearer tok-123", gotAuth)
	assert.Equal(t, "top customers", gotBody["query"])
	assert.Equal(t, "sess-1", gotBody["session_id"])
	assert.Equal(t, "sales", gotBody["database"])
}

func TestSubmitApprovalOmitsEmptyFields(t *testing.T) {
	var gotBody map[string]any
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/query/approve", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		_ = json.NewEncoder(w).Encode(map[string]any{"status": "success"})
	}))

	_, err := c.SubmitApproval(context.Background(), "q2", true, "", "")
	require.NoError(t, err)
	assert.Equal(t, true, gotBody["approved"])
	_, hasSQL := gotBody["modified_sql"]
	assert.False(t, hasSQL)
	_, hasReason := gotBody["rejection_reason"]
	assert.False(t, hasReason)
}

func TestErrorStatusCarryingContract(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_ = json.NewEncoder(w).Encode(map[string]any{"status": "error", "error": "unknown table"})
	}))

	resp, err := c.SubmitQuery(context.Background(), "q", "s", "db")
	require.NoError(t, err, "contract-carrying error statuses resolve to a response")
	assert.Equal(t, "unknown table", resp.Error)
}

func TestErrorStatusWithoutContract(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gateway exploded", http.StatusBadGateway)
	}))

	_, err := c.SubmitQuery(context.Background(), "q", "s", "db")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestOpenStream(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/query/q3/stream", r.URL.Path)
		require.Equal(t, "text/event-stream", r.Header.Get("Accept"))
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = w.Write([]byte("data: {\"state\":\"executing\"}\n\n"))
	}))

	body, err := c.OpenStream(context.Background(), "q3")
	require.NoError(t, err)
	defer body.Close()

	line, err := bufio.NewReader(body).ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "data: {\"state\":\"executing\"}\n", line)
}

func TestCancelQuery(t *testing.T) {
	var path string
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		w.WriteHeader(http.StatusAccepted)
	}))

	require.NoError(t, c.CancelQuery(context.Background(), "q4"))
	assert.Equal(t, "/api/query/q4/cancel", path)
}
