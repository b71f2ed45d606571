// Copyright (c) 2025 Querypilot
// Licensed under the MIT License. See LICENSE file in the project root for details.

package lifecycle

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	qerrors "querypilot/cli/internal/errors"
	"querypilot/cli/internal/outcome"
	"querypilot/cli/internal/protocol"
	"querypilot/cli/internal/stream"
)

// fakeAPI scripts the orchestrator: each call pops the next queued response.
type fakeAPI struct {
	mu sync.Mutex

	submitQueue  []*protocol.Response
	clarifyQueue []*protocol.Response
	approveQueue []*protocol.Response
	streamQueue  []func() (io.ReadCloser, error)

	submits  int
	clarifys int
	approves int
	opens    int
	cancels  int

	lastClarifyText string
	lastApproveSQL  string
}

func (f *fakeAPI) SubmitQuery(ctx context.Context, text, sessionID, database string) (*protocol.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submits++
	return f.pop(&f.submitQueue)
}

func (f *fakeAPI) SubmitClarification(ctx context.Context, queryID, text, originalText, database string) (*protocol.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.clarifys++
	f.lastClarifyText = text
	return f.pop(&f.clarifyQueue)
}

func (f *fakeAPI) SubmitApproval(ctx context.Context, queryID string, approved bool, modifiedSQL, rejectionReason string) (*protocol.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.approves++
	f.lastApproveSQL = modifiedSQL
	return f.pop(&f.approveQueue)
}

func (f *fakeAPI) OpenStream(ctx context.Context, queryID string) (io.ReadCloser, error) {
	f.mu.Lock()
	if len(f.streamQueue) == 0 {
		f.mu.Unlock()
		return nil, errors.New("no stream scripted")
	}
	fn := f.streamQueue[0]
	f.streamQueue = f.streamQueue[1:]
	f.opens++
	f.mu.Unlock()
	return fn()
}

func (f *fakeAPI) CancelQuery(ctx context.Context, queryID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancels++
	return nil
}

func (f *fakeAPI) pop(q *[]*protocol.Response) (*protocol.Response, error) {
	if len(*q) == 0 {
		return nil, errors.New("no response scripted")
	}
	r := (*q)[0]
	*q = (*q)[1:]
	return r, nil
}

func (f *fakeAPI) counts() (submits, clarifys, approves, cancels int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.submits, f.clarifys, f.approves, f.cancels
}

func tenRowResult() map[string]any {
	rows := make([]any, 10)
	for i := range rows {
		rows[i] = []any{float64(i), "customer"}
	}
	return map[string]any{
		"columns":   []any{"id", "name"},
		"rows":      rows,
		"row_count": float64(10),
	}
}

func sseBody(frames ...string) func() (io.ReadCloser, error) {
	var b strings.Builder
	for _, f := range frames {
		b.WriteString("data: " + f + "\n\n")
	}
	s := b.String()
	return func() (io.ReadCloser, error) {
		return io.NopCloser(strings.NewReader(s)), nil
	}
}

// collect drains an update channel, returning everything it produced.
func collect(t *testing.T, ch <-chan Update) (events []*protocol.Event, approval *ApprovalGate, clarification *ClarificationGate, terminal *outcome.Outcome) {
	t.Helper()
	for {
		select {
		case u, ok := <-ch:
			if !ok {
				return
			}
			switch {
			case u.Progress != nil:
				events = append(events, u.Progress)
			case u.Approval != nil:
				approval = u.Approval
			case u.Clarification != nil:
				clarification = u.Clarification
			case u.Outcome != nil:
				require.Nil(t, terminal, "second terminal outcome observed")
				terminal = u.Outcome
			}
		case <-time.After(5 * time.Second):
			t.Fatal("timed out draining updates")
		}
	}
}

func fastStream() stream.Config {
	return stream.Config{MaxRetries: 3, BaseDelay: time.Millisecond, MaxDelay: 4 * time.Millisecond}
}

func TestSubmitValidation(t *testing.T) {
	api := &fakeAPI{}
	c := New(api, Options{Database: "sales"})

	for _, text := range []string{"", "   \n\t", strings.Repeat("x", maxQueryRunes+1)} {
		_, err := c.Submit(context.Background(), text)
		require.Error(t, err)
		assert.Equal(t, qerrors.Validation, qerrors.KindOf(err))
	}

	submits, _, _, _ := api.counts()
	assert.Zero(t, submits, "validation failures must not reach the orchestrator")
}

func TestSubmitImmediateSuccess(t *testing.T) {
	api := &fakeAPI{submitQueue: []*protocol.Response{{
		QueryID: "q1",
		Status:  "success",
		SQL:     "SELECT * FROM customers ORDER BY revenue DESC LIMIT 10",
		Result:  tenRowResult(),
	}}}
	c := New(api, Options{Database: "sales", Stream: fastStream()})

	ch, err := c.Submit(context.Background(), "show top 10 customers by revenue")
	require.NoError(t, err)
	_, _, _, term := collect(t, ch)

	require.NotNil(t, term)
	assert.Equal(t, outcome.KindSuccess, term.Kind)
	require.NotNil(t, term.Result)
	assert.Equal(t, 10, term.Result.RowCount)
	assert.Equal(t, StateDone, c.State())
}

func TestApprovalRejectIsLocalAndTerminal(t *testing.T) {
	api := &fakeAPI{submitQueue: []*protocol.Response{{
		QueryID:       "q2",
		NeedsApproval: true,
		SQL:           "DELETE FROM orders",
		RiskLevel:     "HIGH",
	}}}
	c := New(api, Options{Stream: fastStream()})

	ch, err := c.Submit(context.Background(), "remove all orders")
	require.NoError(t, err)
	_, gate, _, term := collect(t, ch)

	require.Nil(t, term)
	require.NotNil(t, gate)
	assert.Equal(t, "HIGH", gate.RiskLevel)
	assert.Equal(t, "DELETE FROM orders", gate.SQL)
	assert.Equal(t, StateAwaitingApproval, c.State())

	o := gate.Reject("not needed")
	assert.True(t, o.Terminal())
	assert.Nil(t, o.Result)
	assert.Contains(t, o.Message, "not needed")

	_, clarifys, approves, cancels := api.counts()
	assert.Zero(t, clarifys)
	assert.Zero(t, approves, "reject must not call the orchestrator")
	assert.Zero(t, cancels)
	assert.Equal(t, StateDone, c.State())
}

func TestApprovalApproveReenters(t *testing.T) {
	api := &fakeAPI{
		submitQueue: []*protocol.Response{{QueryID: "q3", NeedsApproval: true, SQL: "UPDATE t SET x=1"}},
		approveQueue: []*protocol.Response{{
			QueryID: "q3", Status: "success", Result: tenRowResult(),
		}},
	}
	c := New(api, Options{Stream: fastStream()})

	ch, err := c.Submit(context.Background(), "set all x to one")
	require.NoError(t, err)
	_, gate, _, _ := collect(t, ch)
	require.NotNil(t, gate)

	ch2, err := gate.Approve(context.Background(), "UPDATE t SET x=1 WHERE y=2")
	require.NoError(t, err)
	_, _, _, term := collect(t, ch2)

	require.NotNil(t, term)
	assert.Equal(t, outcome.KindSuccess, term.Kind)
	assert.Equal(t, "UPDATE t SET x=1 WHERE y=2", api.lastApproveSQL)
}

func TestClarificationRoundTrip(t *testing.T) {
	api := &fakeAPI{
		submitQueue: []*protocol.Response{{
			QueryID:              "q4",
			ClarificationMessage: "which region do you mean?",
			ClarificationDetails: map[string]any{"unmapped": []any{"region"}},
		}},
		clarifyQueue: []*protocol.Response{{
			QueryID: "q4", Status: "success", Result: tenRowResult(),
		}},
	}
	c := New(api, Options{Stream: fastStream()})

	ch, err := c.Submit(context.Background(), "sales by region")
	require.NoError(t, err)
	_, _, gate, _ := collect(t, ch)
	require.NotNil(t, gate)
	assert.Equal(t, "which region do you mean?", gate.Message)
	assert.Empty(t, gate.History)

	ch2, err := gate.SubmitClarification(context.Background(), "EMEA")
	require.NoError(t, err)
	_, _, _, term := collect(t, ch2)

	require.NotNil(t, term)
	assert.Equal(t, outcome.KindSuccess, term.Kind)
	assert.Equal(t, "EMEA", api.lastClarifyText)
}

func TestClarificationMultiRoundReplacesContextKeepsHistory(t *testing.T) {
	api := &fakeAPI{
		submitQueue: []*protocol.Response{{
			QueryID:              "q5",
			ClarificationMessage: "which region?",
			ClarificationDetails: map[string]any{"round": float64(1)},
		}},
		clarifyQueue: []*protocol.Response{{
			QueryID:              "q5",
			ClarificationMessage: "which year?",
			ClarificationDetails: map[string]any{"round": float64(2)},
		}},
	}
	c := New(api, Options{Stream: fastStream()})

	ch, err := c.Submit(context.Background(), "sales by region")
	require.NoError(t, err)
	_, _, first, _ := collect(t, ch)
	require.NotNil(t, first)

	ch2, err := first.SubmitClarification(context.Background(), "EMEA")
	require.NoError(t, err)
	_, _, second, term := collect(t, ch2)

	require.Nil(t, term)
	require.NotNil(t, second)
	assert.Equal(t, "which year?", second.Message)
	assert.Equal(t, float64(2), second.Details["round"])
	assert.Equal(t, []string{"EMEA"}, second.History)

	_, err = second.SubmitClarification(context.Background(), "")
	require.Error(t, err)
	assert.Equal(t, qerrors.Validation, qerrors.KindOf(err))
}

func TestContinueAttachesStreamAndSurfacesStreamError(t *testing.T) {
	api := &fakeAPI{
		submitQueue: []*protocol.Response{{QueryID: "q6", Status: "success", SQL: "SELECT 1"}},
		streamQueue: []func() (io.ReadCloser, error){sseBody(
			`{"state":"executing","progress":0.4,"message":"running"}`,
			`{"state":"error","error":"syntax error"}`,
		)},
	}
	c := New(api, Options{Stream: fastStream()})

	ch, err := c.Submit(context.Background(), "broken query")
	require.NoError(t, err)
	events, _, _, term := collect(t, ch)

	assert.NotEmpty(t, events)
	require.NotNil(t, term)
	assert.Equal(t, outcome.KindError, term.Kind)
	assert.Equal(t, "syntax error", term.Message)
	assert.Equal(t, StateDone, c.State())
}

func TestContinueWithoutQueryID(t *testing.T) {
	api := &fakeAPI{submitQueue: []*protocol.Response{{Status: ""}}}
	c := New(api, Options{Stream: fastStream()})

	ch, err := c.Submit(context.Background(), "anything")
	require.NoError(t, err)
	_, _, _, term := collect(t, ch)

	require.NotNil(t, term)
	assert.Equal(t, outcome.KindError, term.Kind)
}

func TestCancelMidStream(t *testing.T) {
	pr, pw := io.Pipe()
	api := &fakeAPI{
		submitQueue: []*protocol.Response{{QueryID: "q7"}},
		streamQueue: []func() (io.ReadCloser, error){
			func() (io.ReadCloser, error) { return pr, nil },
		},
	}
	c := New(api, Options{Stream: fastStream()})

	ch, err := c.Submit(context.Background(), "long running query")
	require.NoError(t, err)

	_, err = pw.Write([]byte("data: {\"state\":\"executing\",\"progress\":0.2}\n\n"))
	require.NoError(t, err)

	// Wait for streaming to begin before cancelling.
	select {
	case u := <-ch:
		require.NotNil(t, u.Progress)
	case <-time.After(5 * time.Second):
		t.Fatal("no progress before cancel")
	}
	require.Equal(t, StateStreaming, c.State())

	c.Cancel()
	_ = pw.Close()

	_, _, _, term := collect(t, ch)
	require.NotNil(t, term)
	assert.Equal(t, outcome.KindError, term.Kind)
	assert.Equal(t, cancelledMessage, term.Message)

	_, _, _, cancels := api.counts()
	assert.Equal(t, 1, cancels, "remote cancel attempted exactly once")
}

func TestResubmitTearsDownPriorStream(t *testing.T) {
	pr, pw := io.Pipe()
	api := &fakeAPI{
		submitQueue: []*protocol.Response{
			{QueryID: "q8"},
			{QueryID: "q9", Status: "success", Result: tenRowResult()},
		},
		streamQueue: []func() (io.ReadCloser, error){
			func() (io.ReadCloser, error) { return pr, nil },
		},
	}
	c := New(api, Options{Stream: fastStream()})

	ch1, err := c.Submit(context.Background(), "first query")
	require.NoError(t, err)

	_, err = pw.Write([]byte("data: {\"state\":\"executing\"}\n\n"))
	require.NoError(t, err)
	select {
	case u := <-ch1:
		require.NotNil(t, u.Progress)
	case <-time.After(5 * time.Second):
		t.Fatal("first stream never started")
	}

	ch2, err := c.Submit(context.Background(), "second query")
	require.NoError(t, err)

	// The superseded flow closes without a terminal outcome.
	_, _, _, term1 := collect(t, ch1)
	assert.Nil(t, term1)

	_, _, _, term2 := collect(t, ch2)
	require.NotNil(t, term2)
	assert.Equal(t, outcome.KindSuccess, term2.Kind)

	_, _, _, cancels := api.counts()
	assert.Equal(t, 1, cancels, "prior stream torn down exactly once")
}

func TestRemoteFailureResolvesToValue(t *testing.T) {
	api := &fakeAPI{} // empty queue: SubmitQuery returns an error
	c := New(api, Options{Stream: fastStream()})

	ch, err := c.Submit(context.Background(), "anything")
	require.NoError(t, err)
	_, _, _, term := collect(t, ch)

	require.NotNil(t, term)
	assert.Equal(t, outcome.KindError, term.Kind)
}

func TestSessionIDMintedWhenAbsent(t *testing.T) {
	c := New(&fakeAPI{}, Options{})
	assert.NotEmpty(t, c.SessionID())

	c2 := New(&fakeAPI{}, Options{SessionID: "sess-1"})
	assert.Equal(t, "sess-1", c2.SessionID())
}
