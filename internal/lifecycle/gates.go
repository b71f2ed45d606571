// Copyright (c) 2025 Querypilot
// Licensed under the MIT License. See LICENSE file in the project root for details.

package lifecycle

import (
	"context"
	"strings"

	qerrors "querypilot/cli/internal/errors"
	"querypilot/cli/internal/outcome"
)

// ApprovalGate is the short-lived sub-flow opened when the orchestrator
// requires a human decision before executing generated SQL. It holds the
// originating query and whatever context the server supplied; Approve and
// Reject resolve it.
type ApprovalGate struct {
	c   *Controller
	gen int

	QueryID   string
	Query     string
	SQL       string
	RiskLevel string
	Context   map[string]any
	Message   string
}

// Approve relays the decision to the orchestrator, optionally with edited
// SQL, and re-enters the lifecycle with the response.
func (g *ApprovalGate) Approve(ctx context.Context, modifiedSQL string) (<-chan Update, error) {
	if err := g.c.reenter(g.gen); err != nil {
		return nil, err
	}

	ch := make(chan Update, 16)
	go func() {
		resp, err := g.c.api.SubmitApproval(ctx, g.QueryID, true, modifiedSQL, "")
		if err != nil {
			g.c.emitTerminal(ch, g.gen, g.c.transportOutcome(err))
			return
		}
		g.c.resolve(ctx, ch, g.gen, resp)
	}()
	return ch, nil
}

// Reject resolves the gate locally. A rejected approval is terminal: no
// further remote call is made and no result is produced.
func (g *ApprovalGate) Reject(reason string) *outcome.Outcome {
	msg := "query rejected"
	if strings.TrimSpace(reason) != "" {
		msg = "query rejected: " + strings.TrimSpace(reason)
	}
	o := &outcome.Outcome{Kind: outcome.KindError, QueryID: g.QueryID, Message: msg}

	g.c.mu.Lock()
	if g.gen == g.c.generation {
		g.c.state = StateDone
	}
	g.c.mu.Unlock()
	return o
}

// ClarificationGate is opened when the orchestrator cannot disambiguate the
// query. It may open again after a clarification round; each new round
// replaces Message and Details while History keeps the previously submitted
// clarification texts for display only.
type ClarificationGate struct {
	c   *Controller
	gen int

	QueryID string
	Query   string
	Message string
	Details map[string]any
	History []string
}

// SubmitClarification relays the human's answer and re-enters the lifecycle
// with the response. The answer is appended to the history carried into any
// follow-up round.
func (g *ClarificationGate) SubmitClarification(ctx context.Context, text string) (<-chan Update, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil, qerrors.New(qerrors.Validation, "clarification text is empty")
	}
	if err := g.c.reenter(g.gen); err != nil {
		return nil, err
	}

	g.c.mu.Lock()
	g.c.clarHistory = append(g.c.clarHistory, trimmed)
	g.c.mu.Unlock()

	ch := make(chan Update, 16)
	go func() {
		resp, err := g.c.api.SubmitClarification(ctx, g.QueryID, trimmed, g.Query, g.c.database)
		if err != nil {
			g.c.emitTerminal(ch, g.gen, g.c.transportOutcome(err))
			return
		}
		g.c.resolve(ctx, ch, g.gen, resp)
	}()
	return ch, nil
}

// reenter flips a gated flow back to submitting, refusing decisions from
// gates a newer submission has superseded.
func (c *Controller) reenter(gen int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.generation {
		return qerrors.New(qerrors.Validation, "this decision belongs to a superseded query")
	}
	c.state = StateSubmitting
	return nil
}
