// Copyright (c) 2025 Querypilot
// Licensed under the MIT License. See LICENSE file in the project root for details.

package outcome

import (
	"strings"

	"querypilot/cli/internal/canonical"
	"querypilot/cli/internal/protocol"
)

const (
	statusSuccess       = "success"
	statusError         = "error"
	statusClarification = "clarification_needed"

	// genericErrorMessage is used when an error response carries no usable
	// message of its own.
	genericErrorMessage = "the query could not be processed"
)

// Classify maps one wire response to exactly one Outcome. It is a pure
// function of the response; given the same input it always yields the same
// outcome.
//
// The decision order is a correctness invariant, not a convenience: the
// orchestrator may over-report fields, so human gates preempt any partial
// success or error signal in the same payload, errors preempt friendly
// messages, and conversational answers are distinguished from data answers
// by the absence of tabular/SQL content rather than by status alone.
func Classify(resp *protocol.Response) Outcome {
	if resp == nil {
		return Outcome{Kind: KindError, Message: genericErrorMessage}
	}

	status := strings.ToLower(strings.TrimSpace(resp.Status))
	result, hasResult := canonical.FromResponse(resp)

	// 1. Approval gate.
	if resp.NeedsApproval {
		return Outcome{
			Kind:            KindNeedsApproval,
			QueryID:         resp.QueryID,
			SQL:             resp.SQL,
			RiskLevel:       resp.RiskLevel,
			ApprovalContext: resp.ApprovalContext,
			Message:         resp.Message,
		}
	}

	// 2. Clarification gate.
	if status == statusClarification || strings.TrimSpace(resp.ClarificationMessage) != "" {
		msg := resp.ClarificationMessage
		if strings.TrimSpace(msg) == "" {
			msg = resp.Message
		}
		return Outcome{
			Kind:    KindNeedsClarification,
			QueryID: resp.QueryID,
			Message: msg,
			Details: resp.ClarificationDetails,
		}
	}

	// 3. Reported error.
	if status == statusError || strings.TrimSpace(resp.Error) != "" {
		msg := resp.Error
		if strings.TrimSpace(msg) == "" {
			msg = resp.Message
		}
		if strings.TrimSpace(msg) == "" {
			msg = genericErrorMessage
		}
		return Outcome{Kind: KindError, QueryID: resp.QueryID, Message: msg}
	}

	// 4. Conversational answer: flagged, or a success with a message and
	// nothing tabular to show.
	if resp.IsConversational ||
		(status == statusSuccess && strings.TrimSpace(resp.Message) != "" && !hasResult && strings.TrimSpace(resp.SQL) == "") {
		return Outcome{Kind: KindConversational, QueryID: resp.QueryID, Message: resp.Message}
	}

	// 5. Success with data.
	if status == statusSuccess && hasResult {
		return Outcome{
			Kind:        KindSuccess,
			QueryID:     resp.QueryID,
			SQL:         resp.SQL,
			Message:     resp.Message,
			Result:      result,
			Insights:    resp.Insights,
			Suggestions: resp.Suggestions,
		}
	}

	// 6. Nothing decisive yet: attach the progress stream.
	return Outcome{Kind: KindContinue, QueryID: resp.QueryID}
}
