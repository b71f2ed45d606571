// Copyright (c) 2025 Querypilot
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package outcome defines the tagged union describing where a query stands
// and the single classification function that produces it. The orchestrator
// reports its state through ad hoc flags and status strings; this package
// materializes that into one explicit, totally-ordered decision.
package outcome

import "querypilot/cli/internal/canonical"

// Kind enumerates the classification variants. Exactly one is active per
// classified response.
type Kind string

const (
	// KindNeedsApproval means a human must approve the generated SQL first.
	KindNeedsApproval Kind = "needs_approval"
	// KindNeedsClarification means the orchestrator needs more input to
	// disambiguate the query.
	KindNeedsClarification Kind = "needs_clarification"
	// KindConversational is a plain-text answer with no tabular result.
	KindConversational Kind = "conversational"
	// KindSuccess carries a canonical tabular result.
	KindSuccess Kind = "success"
	// KindError is a terminal failure reported by the orchestrator.
	KindError Kind = "error"
	// KindContinue means the caller must attach the progress stream for the
	// response's query identifier.
	KindContinue Kind = "continue"
)

// Outcome is a generic container for one classification. Only a subset of
// fields is set depending on Kind.
type Outcome struct {
	Kind    Kind   `json:"kind"`
	QueryID string `json:"query_id,omitempty"`

	// Approval gate context
	SQL             string         `json:"sql,omitempty"`
	RiskLevel       string         `json:"risk_level,omitempty"`
	ApprovalContext map[string]any `json:"approval_context,omitempty"`

	// Clarification, conversational and error text
	Message string         `json:"message,omitempty"`
	Details map[string]any `json:"details,omitempty"`

	// Success payload
	Result      *canonical.Result `json:"result,omitempty"`
	Insights    []string          `json:"insights,omitempty"`
	Suggestions []string          `json:"suggestions,omitempty"`
}

// Terminal reports whether the outcome ends the lifecycle. Gate outcomes and
// Continue leave the query pending.
func (o Outcome) Terminal() bool {
	switch o.Kind {
	case KindSuccess, KindError, KindConversational:
		return true
	}
	return false
}
