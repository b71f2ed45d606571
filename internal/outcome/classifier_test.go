// Copyright (c) 2025 Querypilot
// Licensed under the MIT License. See LICENSE file in the project root for details.

package outcome

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"querypilot/cli/internal/protocol"
)

func tabular() map[string]any {
	return map[string]any{
		"columns":   []any{"id"},
		"rows":      []any{[]any{float64(1)}},
		"row_count": float64(1),
	}
}

func TestClassifyPrecedence(t *testing.T) {
	tests := []struct {
		name string
		resp *protocol.Response
		want Kind
	}{
		{
			name: "approval beats result payload",
			resp: &protocol.Response{NeedsApproval: true, Status: "success", Result: tabular()},
			want: KindNeedsApproval,
		},
		{
			name: "approval beats error",
			resp: &protocol.Response{NeedsApproval: true, Error: "boom"},
			want: KindNeedsApproval,
		},
		{
			name: "clarification status",
			resp: &protocol.Response{Status: "clarification_needed", Message: "which region?"},
			want: KindNeedsClarification,
		},
		{
			name: "clarification message beats success",
			resp: &protocol.Response{Status: "success", ClarificationMessage: "which year?", Result: tabular()},
			want: KindNeedsClarification,
		},
		{
			name: "error status",
			resp: &protocol.Response{Status: "ERROR", Message: "friendly text"},
			want: KindError,
		},
		{
			name: "error field beats conversational message",
			resp: &protocol.Response{Status: "success", Error: "syntax error", Message: "hello"},
			want: KindError,
		},
		{
			name: "conversational flag",
			resp: &protocol.Response{IsConversational: true, Message: "hi there"},
			want: KindConversational,
		},
		{
			name: "success with message and no data",
			resp: &protocol.Response{Status: "success", Message: "no rows matched"},
			want: KindConversational,
		},
		{
			name: "same response with data is success",
			resp: &protocol.Response{Status: "success", Message: "no rows matched", Result: tabular()},
			want: KindSuccess,
		},
		{
			name: "success with sql but no data continues",
			resp: &protocol.Response{Status: "success", SQL: "SELECT 1", QueryID: "q1"},
			want: KindContinue,
		},
		{
			name: "empty response continues",
			resp: &protocol.Response{QueryID: "q2"},
			want: KindContinue,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.resp)
			assert.Equal(t, tt.want, got.Kind)
			// Classification is pure: a second call agrees with the first.
			assert.Equal(t, got, Classify(tt.resp))
		})
	}
}

func TestClassifyApprovalPayload(t *testing.T) {
	resp := &protocol.Response{
		QueryID:         "q7",
		NeedsApproval:   true,
		SQL:             "DELETE FROM orders",
		RiskLevel:       "HIGH",
		ApprovalContext: map[string]any{"affected_rows": float64(120)},
	}

	got := Classify(resp)
	require.Equal(t, KindNeedsApproval, got.Kind)
	assert.Equal(t, "q7", got.QueryID)
	assert.Equal(t, "DELETE FROM orders", got.SQL)
	assert.Equal(t, "HIGH", got.RiskLevel)
	assert.Equal(t, float64(120), got.ApprovalContext["affected_rows"])
	assert.False(t, got.Terminal())
}

func TestClassifyErrorMessageFallbacks(t *testing.T) {
	tests := []struct {
		name string
		resp *protocol.Response
		want string
	}{
		{name: "error field", resp: &protocol.Response{Error: "bad column"}, want: "bad column"},
		{name: "message fallback", resp: &protocol.Response{Status: "error", Message: "try later"}, want: "try later"},
		{name: "generic default", resp: &protocol.Response{Status: "error"}, want: genericErrorMessage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.resp)
			require.Equal(t, KindError, got.Kind)
			assert.Equal(t, tt.want, got.Message)
			assert.True(t, got.Terminal())
		})
	}
}

func TestClassifySuccessPayload(t *testing.T) {
	resp := &protocol.Response{
		QueryID:     "q3",
		Status:      "Success",
		SQL:         "SELECT id FROM t",
		Result:      tabular(),
		Insights:    []string{"one row only"},
		Suggestions: []string{"add a filter"},
	}

	got := Classify(resp)
	require.Equal(t, KindSuccess, got.Kind)
	require.NotNil(t, got.Result)
	assert.Equal(t, 1, got.Result.RowCount)
	assert.Equal(t, []string{"one row only"}, got.Insights)
	assert.Equal(t, []string{"add a filter"}, got.Suggestions)
	assert.True(t, got.Terminal())
}
