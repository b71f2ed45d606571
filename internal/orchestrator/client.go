// Copyright (c) 2025 Querypilot
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package orchestrator implements the remote query service API over REST
// endpoints. It is the production implementation of the lifecycle package's
// API interface: four JSON round trips plus the server-push progress stream.
// All five operations answer with the same wire contract (protocol.Response);
// nothing here interprets the payload.
package orchestrator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"querypilot/cli/internal/manifest"
	"querypilot/cli/internal/protocol"
)

// Client calls the orchestrator over HTTP with bearer authentication.
type Client struct {
	// endpoints contains the origin and URL paths for the API
	endpoints manifest.APIEndpoints
	// accessToken is sent as a bearer token with every request
	accessToken string
	// client is the HTTP client for single round trips
	client *http.Client
	// streamClient has no overall timeout; progress streams are long-lived
	streamClient *http.Client
}

// New creates a client for the given endpoints and access token.
// Round trips use a 30-second timeout; stream connections are bounded by the
// caller's context instead.
func New(endpoints manifest.APIEndpoints, accessToken string) *Client {
	return &Client{
		endpoints:    endpoints,
		accessToken:  accessToken,
		client:       &http.Client{Timeout: 30 * time.Second},
		streamClient: &http.Client{},
	}
}

// SubmitQuery sends one natural-language query for processing.
func (c *Client) SubmitQuery(ctx context.Context, text, sessionID, database string) (*protocol.Response, error) {
	body := map[string]any{
		"query":      text,
		"session_id": sessionID,
		"database":   database,
	}
	return c.post(ctx, c.endpoints.Query, body)
}

// SubmitClarification relays a human clarification for a pending query.
func (c *Client) SubmitClarification(ctx context.Context, queryID, text, originalText, database string) (*protocol.Response, error) {
	body := map[string]any{
		"query_id":       queryID,
		"clarification":  text,
		"original_query": originalText,
		"database":       database,
	}
	return c.post(ctx, c.endpoints.Clarification, body)
}

// SubmitApproval relays a human approval decision for generated SQL.
func (c *Client) SubmitApproval(ctx context.Context, queryID string, approved bool, modifiedSQL, rejectionReason string) (*protocol.Response, error) {
	body := map[string]any{
		"query_id": queryID,
		"approved": approved,
	}
	if modifiedSQL != "" {
		body["modified_sql"] = modifiedSQL
	}
	if rejectionReason != "" {
		body["rejection_reason"] = rejectionReason
	}
	return c.post(ctx, c.endpoints.Approval, body)
}

// OpenStream opens the progress stream for a query. The caller owns the
// returned body and must close it.
func (c *Client) OpenStream(ctx context.Context, queryID string) (io.ReadCloser, error) {
	url := c.endpoints.BaseURL() + manifest.ExpandQueryID(c.endpoints.Stream, queryID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	c.decorate(req)
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := c.streamClient.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		resp.Body.Close()
		return nil, fmt.Errorf("stream returned status %d: %s", resp.StatusCode, string(b))
	}
	return resp.Body, nil
}

// CancelQuery asks the server to abandon a query. Best-effort: callers
// ignore the error for local cleanup purposes.
func (c *Client) CancelQuery(ctx context.Context, queryID string) error {
	url := c.endpoints.BaseURL() + manifest.ExpandQueryID(c.endpoints.Cancel, queryID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
	if err != nil {
		return err
	}
	c.decorate(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("cancel returned status %d", resp.StatusCode)
	}
	return nil
}

// GetVersion calls the version endpoint and returns the version string when
// available. No authentication required; usable as a connectivity check.
func (c *Client) GetVersion(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoints.BaseURL()+c.endpoints.Version, nil)
	if err != nil {
		return "", err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "unknown", nil
	}
	var out struct {
		Version string `json:"version"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	if out.Version == "" {
		return "unknown", nil
	}
	return out.Version, nil
}

// post issues one JSON round trip and decodes the shared response contract.
func (c *Client) post(ctx context.Context, path string, body map[string]any) (*protocol.Response, error) {
	b, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoints.BaseURL()+path, bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	c.decorate(req)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	// Error statuses may still carry the shared response contract; prefer
	// its message over a bare status code.
	if resp.StatusCode >= http.StatusBadRequest {
		if r, decodeErr := protocol.Decode(data); decodeErr == nil && (r.Error != "" || r.Message != "") {
			return r, nil
		}
		return nil, fmt.Errorf("server returned status %d", resp.StatusCode)
	}

	return protocol.Decode(data)
}

func (c *Client) decorate(req *http.Request) {
	req.Header.Set("User-Agent", "querypilot-cli/1.0")
	if c.accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.accessToken)
	}
}
