// Copyright (c) 2025 Querypilot
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package protocol defines the wire contract shared by every orchestrator
// call and the progress stream. All five remote operations (query submission,
// clarification, approval, stream frames, cancellation) answer with the same
// loosely-shaped response object; the types here keep that shape as-is and
// leave interpretation to the canonical and outcome packages.
package protocol

import "encoding/json"

// Response is the single response contract of the orchestrator. Any field
// may be absent; the payload may live under Result (primary) or Data
// (alternate), possibly nested one further level.
type Response struct {
	QueryID string `json:"query_id,omitempty"`
	Status  string `json:"status,omitempty"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
	SQL     string `json:"sql,omitempty"`

	NeedsApproval   bool           `json:"needs_approval,omitempty"`
	RiskLevel       string         `json:"risk_level,omitempty"`
	ApprovalContext map[string]any `json:"approval_context,omitempty"`

	ClarificationMessage string         `json:"clarification_message,omitempty"`
	ClarificationDetails map[string]any `json:"clarification_details,omitempty"`

	IsConversational bool `json:"is_conversational,omitempty"`

	// Result is the primary payload field, Data the alternate one older
	// orchestrator versions used. Kept as raw maps so the canonicalizer can
	// sniff whichever shape arrived.
	Result map[string]any `json:"result,omitempty"`
	Data   map[string]any `json:"data,omitempty"`

	Insights    []string `json:"insights,omitempty"`
	Suggestions []string `json:"suggestions,omitempty"`
}

// Decode parses a JSON response body.
func Decode(b []byte) (*Response, error) {
	var r Response
	if err := json.Unmarshal(b, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// Event is one frame of the server-push progress stream for a query.
// State is a free-form tag; only a small reserved set is terminal
// (see the stream package). Everything else is ordinary progress.
type Event struct {
	State    string         `json:"state,omitempty"`
	Progress float64        `json:"progress,omitempty"`
	Message  string         `json:"message,omitempty"`
	Error    string         `json:"error,omitempty"`
	SQL      string         `json:"sql,omitempty"`
	Result   map[string]any `json:"result,omitempty"`
	Thinking []string       `json:"thinking,omitempty"`

	Insights    []string `json:"insights,omitempty"`
	Suggestions []string `json:"suggestions,omitempty"`
}
