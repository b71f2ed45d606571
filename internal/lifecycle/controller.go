// Copyright (c) 2025 Querypilot
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package lifecycle drives one natural-language query from submission to its
// single terminal outcome. The controller submits to the orchestrator,
// classifies the response, and routes to the approval gate, clarification
// gate, or progress stream; every entry point (submission, gate decisions,
// stream terminals) flows through the same canonicalize-and-classify
// chokepoint. Rendering is the caller's responsibility: the controller only
// produces updates and Outcome values.
package lifecycle

import (
	"context"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/google/uuid"

	qerrors "querypilot/cli/internal/errors"
	"querypilot/cli/internal/httperrors"
	"querypilot/cli/internal/outcome"
	"querypilot/cli/internal/protocol"
	"querypilot/cli/internal/stream"
)

// API is the orchestrator contract the controller depends on. The production
// implementation lives in internal/orchestrator; tests supply fakes.
type API interface {
	SubmitQuery(ctx context.Context, text, sessionID, database string) (*protocol.Response, error)
	SubmitClarification(ctx context.Context, queryID, text, originalText, database string) (*protocol.Response, error)
	SubmitApproval(ctx context.Context, queryID string, approved bool, modifiedSQL, rejectionReason string) (*protocol.Response, error)
	stream.Transport
}

// State is the controller's position in the query lifecycle.
type State string

const (
	StateIdle                  State = "idle"
	StateSubmitting            State = "submitting"
	StateAwaitingApproval      State = "awaiting_approval"
	StateAwaitingClarification State = "awaiting_clarification"
	StateStreaming             State = "streaming"
	StateDone                  State = "done"
)

// Update is one element of the sequence a submission (or gate decision)
// produces. Exactly one field is set: a progress frame, an opened gate
// awaiting a human decision, or the terminal outcome.
type Update struct {
	Progress      *protocol.Event
	Approval      *ApprovalGate
	Clarification *ClarificationGate
	Outcome       *outcome.Outcome
}

// maxQueryRunes bounds a submission before any remote call is made.
const maxQueryRunes = 4000

// cancelledMessage is the terminal error text for user-initiated cancellation.
const cancelledMessage = "cancelled by user"

// Options configures a controller.
type Options struct {
	// SessionID identifies the conversation; minted locally when empty.
	SessionID string
	// Database is the target-database selector sent with every submission.
	Database string
	// Stream tunes the reconnect policy of attached progress streams.
	Stream stream.Config
}

// Controller is the per-conversation lifecycle state machine. It is
// single-flow: one outstanding submission and at most one live stream at a
// time; a second Submit preempts the first and tears its stream down.
type Controller struct {
	api API

	sessionID string
	database  string
	streamCfg stream.Config

	mu           sync.Mutex
	state        State
	generation   int
	inflightID   string
	consumer     *stream.Consumer
	cancelAsked  bool
	originalText string
	clarHistory  []string
}

// New creates a controller bound to one conversation session.
func New(api API, opts Options) *Controller {
	if opts.SessionID == "" {
		opts.SessionID = uuid.NewString()
	}
	return &Controller{
		api:       api,
		sessionID: opts.SessionID,
		database:  opts.Database,
		streamCfg: opts.Stream,
		state:     StateIdle,
	}
}

// SessionID returns the conversation identifier.
func (c *Controller) SessionID() string { return c.sessionID }

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Submit validates and submits one natural-language query. Validation
// failures are returned synchronously; everything after the remote call is
// delivered on the update channel, which always ends with exactly one
// terminal outcome or an opened gate. A Submit while a prior query is
// unresolved first tears down the prior stream.
func (c *Controller) Submit(ctx context.Context, text string) (<-chan Update, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil, qerrors.New(qerrors.Validation, "query text is empty")
	}
	if utf8.RuneCountInString(trimmed) > maxQueryRunes {
		return nil, qerrors.New(qerrors.Validation, "query text is too long")
	}

	c.mu.Lock()
	c.generation++
	gen := c.generation
	prior := c.consumer
	c.consumer = nil
	c.cancelAsked = false
	c.inflightID = ""
	c.originalText = trimmed
	c.clarHistory = nil
	c.state = StateSubmitting
	c.mu.Unlock()

	if prior != nil {
		prior.Cancel()
	}

	ch := make(chan Update, 16)
	go func() {
		resp, err := c.api.SubmitQuery(ctx, trimmed, c.sessionID, c.database)
		if err != nil {
			c.emitTerminal(ch, gen, c.transportOutcome(err))
			return
		}
		c.resolve(ctx, ch, gen, resp)
	}()
	return ch, nil
}

// Cancel aborts a streaming query. Valid from the streaming state only; the
// live stream is cancelled and the flow resolves to a terminal
// "cancelled by user" error. Any later frames are discarded.
func (c *Controller) Cancel() {
	c.mu.Lock()
	if c.state != StateStreaming || c.consumer == nil {
		c.mu.Unlock()
		return
	}
	c.cancelAsked = true
	consumer := c.consumer
	c.mu.Unlock()

	consumer.Cancel()
}

// resolve feeds one wire response through the classification chokepoint and
// routes on the result. Every entry point ends up here.
func (c *Controller) resolve(ctx context.Context, ch chan Update, gen int, resp *protocol.Response) {
	o := outcome.Classify(resp)

	c.mu.Lock()
	if gen != c.generation {
		// Superseded by a newer submission.
		c.mu.Unlock()
		close(ch)
		return
	}
	if o.QueryID != "" {
		c.inflightID = o.QueryID
	}
	inflight := c.inflightID
	c.mu.Unlock()

	switch o.Kind {
	case outcome.KindNeedsApproval:
		gate := &ApprovalGate{
			c:         c,
			gen:       gen,
			QueryID:   inflight,
			Query:     c.originalText,
			SQL:       o.SQL,
			RiskLevel: o.RiskLevel,
			Context:   o.ApprovalContext,
			Message:   o.Message,
		}
		c.setState(gen, StateAwaitingApproval)
		ch <- Update{Approval: gate}
		close(ch)

	case outcome.KindNeedsClarification:
		c.mu.Lock()
		history := append([]string(nil), c.clarHistory...)
		c.mu.Unlock()
		// A repeated clarification round replaces the held context; only the
		// display history of prior answers is carried forward.
		gate := &ClarificationGate{
			c:       c,
			gen:     gen,
			QueryID: inflight,
			Query:   c.originalText,
			Message: o.Message,
			Details: o.Details,
			History: history,
		}
		c.setState(gen, StateAwaitingClarification)
		ch <- Update{Clarification: gate}
		close(ch)

	case outcome.KindContinue:
		if inflight == "" {
			c.emitTerminal(ch, gen, &outcome.Outcome{
				Kind:    outcome.KindError,
				Message: "the server did not return a query identifier to follow",
			})
			return
		}
		c.attachStream(ctx, ch, gen, inflight, resp)

	default:
		c.emitTerminal(ch, gen, &o)
	}
}

// attachStream hands the query over to a stream consumer and pumps its
// updates until the terminal outcome, cancellation, or preemption.
func (c *Controller) attachStream(ctx context.Context, ch chan Update, gen int, queryID string, seed *protocol.Response) {
	consumer := stream.New(c.api, queryID, seed, c.streamCfg)

	c.mu.Lock()
	if gen != c.generation {
		c.mu.Unlock()
		close(ch)
		return
	}
	c.consumer = consumer
	c.state = StateStreaming
	c.mu.Unlock()

	for u := range consumer.Attach(ctx) {
		if u.Outcome != nil {
			c.emitTerminal(ch, gen, u.Outcome)
			return
		}
		if u.Event != nil {
			select {
			case ch <- Update{Progress: u.Event}:
			default:
				// A slow caller loses progress frames, never terminals.
			}
		}
	}

	// Stream closed without a terminal outcome: either the user cancelled or
	// a newer submission superseded this flow.
	c.mu.Lock()
	cancelled := c.cancelAsked && gen == c.generation
	c.mu.Unlock()
	if cancelled {
		c.emitTerminal(ch, gen, &outcome.Outcome{
			Kind:    outcome.KindError,
			QueryID: queryID,
			Message: cancelledMessage,
		})
		return
	}
	close(ch)
}

// emitTerminal delivers the single terminal outcome and closes the channel.
func (c *Controller) emitTerminal(ch chan Update, gen int, o *outcome.Outcome) {
	c.mu.Lock()
	if gen == c.generation {
		c.state = StateDone
		c.consumer = nil
	}
	c.mu.Unlock()
	ch <- Update{Outcome: o}
	close(ch)
}

func (c *Controller) setState(gen int, s State) {
	c.mu.Lock()
	if gen == c.generation {
		c.state = s
	}
	c.mu.Unlock()
}

// transportOutcome turns a failed round-trip into a terminal error value;
// the controller never propagates remote failures as Go errors past its
// boundary.
func (c *Controller) transportOutcome(err error) *outcome.Outcome {
	cat := httperrors.Categorize(err)
	return &outcome.Outcome{
		Kind:    outcome.KindError,
		Message: httperrors.UserMessage(cat, err),
		Details: map[string]any{"category": string(cat)},
	}
}
