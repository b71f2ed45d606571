// Copyright (c) 2025 Querypilot
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package stream consumes the orchestrator's server-push progress channel for
// one query. It parses framed events from the byte stream, reconnects on
// transport failure with capped exponential backoff, and terminates on a
// finishing or erroring frame — or on cancellation. The consumer exposes its
// output as a lazy, cancellable, finite sequence of updates ending in at most
// one terminal outcome.
package stream

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"querypilot/cli/internal/canonical"
	"querypilot/cli/internal/httperrors"
	"querypilot/cli/internal/outcome"
	"querypilot/cli/internal/protocol"
)

// Transport is the slice of the orchestrator API the consumer needs.
type Transport interface {
	// OpenStream opens the progress byte stream for a query.
	OpenStream(ctx context.Context, queryID string) (io.ReadCloser, error)
	// CancelQuery asks the server to abandon the query. Best-effort.
	CancelQuery(ctx context.Context, queryID string) error
}

// Update is one element of the consumer's output sequence: a progress frame,
// or the single terminal outcome. Exactly one field is set.
type Update struct {
	Event   *protocol.Event
	Outcome *outcome.Outcome
}

// StateReconnecting is the pseudo-state delivered between reconnect
// attempts. The UI must treat it as a safe rollback point: no frame ordering
// is guaranteed across it.
const StateReconnecting = "reconnecting"

// Defaults for the retry policy. Timeout semantics are implicit in the
// bounded retry rather than a single wall-clock deadline.
const (
	DefaultMaxRetries = 3
	DefaultBaseDelay  = time.Second
	DefaultMaxDelay   = 16 * time.Second
)

// Config tunes the reconnect policy. Zero values take the defaults.
type Config struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxRetries == 0 {
		c.MaxRetries = DefaultMaxRetries
	}
	if c.BaseDelay == 0 {
		c.BaseDelay = DefaultBaseDelay
	}
	if c.MaxDelay == 0 {
		c.MaxDelay = DefaultMaxDelay
	}
	return c
}

// backoffDelay computes the delay before reconnect attempt n (1-based):
// base doubled per prior attempt, capped at max.
func backoffDelay(cfg Config, attempt int) time.Duration {
	d := cfg.BaseDelay << (attempt - 1)
	if d > cfg.MaxDelay || d <= 0 {
		return cfg.MaxDelay
	}
	return d
}

// accumulator collects partial state across frames so a terminal frame that
// omits fields can still synthesize a full outcome.
type accumulator struct {
	sql         string
	message     string
	result      map[string]any
	insights    []string
	suggestions []string
}

func (a *accumulator) absorb(ev *protocol.Event) {
	if ev.SQL != "" {
		a.sql = ev.SQL
	}
	if ev.Message != "" {
		a.message = ev.Message
	}
	if ev.Result != nil {
		a.result = ev.Result
	}
	if len(ev.Insights) > 0 {
		a.insights = ev.Insights
	}
	if len(ev.Suggestions) > 0 {
		a.suggestions = ev.Suggestions
	}
}

// Consumer drives the progress stream for one query identifier. At most one
// live transport connection exists per consumer; a reconnect supersedes and
// closes the prior one.
type Consumer struct {
	transport Transport
	queryID   string
	seed      *protocol.Response
	cfg       Config

	mu        sync.Mutex
	attempt   int
	cancelled bool
	body      io.Closer
	cancelCtx context.CancelFunc

	stopped chan struct{}
	updates chan Update
	acc     accumulator
}

// New creates a consumer for queryID. seed is the response that told the
// caller to attach; its fields back-fill anything the terminal frame omits.
func New(transport Transport, queryID string, seed *protocol.Response, cfg Config) *Consumer {
	if seed == nil {
		seed = &protocol.Response{QueryID: queryID}
	}
	return &Consumer{
		transport: transport,
		queryID:   queryID,
		seed:      seed,
		cfg:       cfg.withDefaults(),
		stopped:   make(chan struct{}),
		updates:   make(chan Update, 64),
	}
}

// QueryID returns the query identifier this consumer is attached to.
func (c *Consumer) QueryID() string { return c.queryID }

// RetryCount returns the current reconnect attempt counter. It resets to
// zero on every successfully parsed frame and on every fresh attach.
func (c *Consumer) RetryCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempt
}

// Attach opens the stream and returns the update sequence. The channel is
// closed after the terminal outcome, or without one when cancelled.
func (c *Consumer) Attach(ctx context.Context) <-chan Update {
	ctx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.attempt = 0
	c.cancelCtx = cancel
	c.mu.Unlock()

	go c.run(ctx)
	return c.updates
}

// Cancel aborts the live transport connection, clears any pending backoff
// wait, resets the retry counter, and invokes the server-side cancellation
// endpoint exactly once. Local cleanup happens even if that call fails. No
// outcome is emitted after Cancel.
func (c *Consumer) Cancel() {
	c.mu.Lock()
	if c.cancelled {
		c.mu.Unlock()
		return
	}
	c.cancelled = true
	c.attempt = 0
	body := c.body
	c.body = nil
	cancel := c.cancelCtx
	c.mu.Unlock()

	close(c.stopped)
	if cancel != nil {
		cancel()
	}
	if body != nil {
		_ = body.Close()
	}

	// Best-effort server-side cancel with its own short deadline; a failure
	// here must not block local cleanup.
	ctx, done := context.WithTimeout(context.Background(), 5*time.Second)
	defer done()
	_ = c.transport.CancelQuery(ctx, c.queryID)
}

func (c *Consumer) isCancelled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cancelled
}

func (c *Consumer) run(ctx context.Context) {
	defer close(c.updates)

	for {
		body, err := c.transport.OpenStream(ctx, c.queryID)
		if err != nil {
			if !c.retry(ctx, err) {
				return
			}
			continue
		}
		c.swapBody(body)

		term, err := c.consume(body)
		c.swapBody(nil)
		_ = body.Close()

		if c.isCancelled() {
			return
		}
		if term != nil {
			c.emit(Update{Outcome: term})
			return
		}
		if !c.retry(ctx, err) {
			return
		}
	}
}

// swapBody records the live connection, closing any prior one so a single
// consumer never holds two connections for the same query.
func (c *Consumer) swapBody(body io.ReadCloser) {
	c.mu.Lock()
	prev := c.body
	c.body = body
	c.mu.Unlock()
	if prev != nil {
		_ = prev.Close()
	}
}

// consume reads frames until a terminal frame, the end marker, or a
// transport error. A nil outcome with a non-nil error means the attempt
// failed mid-stream and reconnection should be considered.
func (c *Consumer) consume(body io.Reader) (*outcome.Outcome, error) {
	r := bufio.NewReader(body)
	for {
		payload, done, err := readFrame(r)
		if err != nil {
			return nil, err
		}
		if done {
			// Clean end without a terminal frame: the server is finished,
			// so resolve with whatever accumulated.
			return c.successOutcome(), nil
		}
		if payload == "" {
			continue
		}

		var ev protocol.Event
		if err := json.Unmarshal([]byte(payload), &ev); err != nil {
			// Malformed payloads are skipped and do not touch retry state.
			continue
		}

		// A successfully parsed frame resets the retry counter.
		c.mu.Lock()
		c.attempt = 0
		cancelled := c.cancelled
		c.mu.Unlock()
		if cancelled {
			// Frames racing with cancellation are silently discarded.
			return nil, io.EOF
		}

		c.acc.absorb(&ev)

		switch tag := strings.ToLower(strings.TrimSpace(ev.State)); {
		case isFinishedTag(tag):
			return c.successOutcome(), nil
		case isErrorTag(tag):
			msg := ev.Error
			if msg == "" {
				msg = ev.Message
			}
			if msg == "" {
				msg = "the query failed"
			}
			return &outcome.Outcome{Kind: outcome.KindError, QueryID: c.queryID, Message: msg}, nil
		default:
			// Unrecognized tags are ordinary progress.
			evCopy := ev
			c.emit(Update{Event: &evCopy})
		}
	}
}

// retry schedules a reconnect after the backoff delay. Returns false when
// the bound is exhausted (after emitting the final error outcome) or when
// the consumer was cancelled.
func (c *Consumer) retry(ctx context.Context, cause error) bool {
	if c.isCancelled() || ctx.Err() != nil {
		return false
	}

	c.mu.Lock()
	c.attempt++
	attempt := c.attempt
	c.mu.Unlock()

	if attempt > c.cfg.MaxRetries {
		cat := httperrors.Categorize(cause)
		c.emit(Update{Outcome: &outcome.Outcome{
			Kind:    outcome.KindError,
			QueryID: c.queryID,
			Message: httperrors.UserMessage(cat, cause),
			Details: map[string]any{"category": string(cat)},
		}})
		return false
	}

	delay := backoffDelay(c.cfg, attempt)
	c.emit(Update{Event: &protocol.Event{
		State:   StateReconnecting,
		Message: fmt.Sprintf("connection lost, reconnecting (attempt %d of %d)", attempt, c.cfg.MaxRetries),
	}})

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-c.stopped:
		return false
	case <-ctx.Done():
		return false
	}
}

// successOutcome synthesizes the terminal Success from accumulated frames,
// falling back to the seed response when frames omitted a field.
func (c *Consumer) successOutcome() *outcome.Outcome {
	o := &outcome.Outcome{
		Kind:        outcome.KindSuccess,
		QueryID:     c.queryID,
		SQL:         c.acc.sql,
		Message:     c.acc.message,
		Insights:    c.acc.insights,
		Suggestions: c.acc.suggestions,
	}
	if o.SQL == "" {
		o.SQL = c.seed.SQL
	}
	if o.Message == "" {
		o.Message = c.seed.Message
	}
	if len(o.Insights) == 0 {
		o.Insights = c.seed.Insights
	}
	if len(o.Suggestions) == 0 {
		o.Suggestions = c.seed.Suggestions
	}

	if r, ok := canonical.Canonicalize(c.acc.result); ok {
		o.Result = r
	} else if r, ok := canonical.FromResponse(c.seed); ok {
		o.Result = r
	}
	return o
}

func (c *Consumer) emit(u Update) {
	select {
	case c.updates <- u:
	case <-c.stopped:
	}
}

func isFinishedTag(tag string) bool {
	switch tag {
	case "finished", "success", "completed":
		return true
	}
	return false
}

func isErrorTag(tag string) bool {
	switch tag {
	case "error", "rejected":
		return true
	}
	return false
}
