// Copyright (c) 2025 Querypilot
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package canonical normalizes the orchestrator's heterogeneous result
// payloads into one canonical tabular shape. The orchestrator has evolved its
// field names and nesting over time: the payload may sit under the primary
// field, the alternate field, or one level deeper inside either. All of that
// shape-sniffing lives here; every other package consumes only Result.
package canonical

import (
	"fmt"

	"querypilot/cli/internal/protocol"
)

// Result is the canonical shape of a tabular query payload.
type Result struct {
	Columns     []string `json:"columns"`
	Rows        [][]any  `json:"rows"`
	RowCount    int      `json:"row_count"`
	ExecutionMS float64  `json:"execution_time_ms"`

	// ResultID and Truncated are set when the server elected not to inline
	// the full result. When both are zero, RowCount == len(Rows) holds.
	ResultID  string `json:"result_id,omitempty"`
	Truncated bool   `json:"truncated,omitempty"`
}

// Map re-encodes the result as a payload map. Canonicalize(r.Map()) yields a
// result equal to r.
func (r *Result) Map() map[string]any {
	m := map[string]any{
		"columns":           r.Columns,
		"rows":              r.Rows,
		"row_count":         r.RowCount,
		"execution_time_ms": r.ExecutionMS,
	}
	if r.ResultID != "" {
		m["result_id"] = r.ResultID
	}
	if r.Truncated {
		m["truncated"] = true
	}
	return m
}

// FromResponse extracts the canonical result from a wire response, trying the
// primary field first and falling back to the alternate one. Metadata the
// primary payload omitted (result reference, truncation flag) is merged in
// from the alternate field without overwriting anything already present.
func FromResponse(resp *protocol.Response) (*Result, bool) {
	if resp == nil {
		return nil, false
	}
	if r, ok := Canonicalize(resp.Result); ok {
		if alt, altOK := Canonicalize(resp.Data); altOK {
			mergeMeta(r, alt)
		}
		return r, true
	}
	return Canonicalize(resp.Data)
}

// Canonicalize normalizes one payload map. It unwraps one level of nesting
// under "result" or "data", coerces columns to strings, and computes the row
// count and execution time with their documented fallbacks. Returns false
// when the map carries no recognizable payload. Idempotent by construction:
// an already-canonical map round-trips unchanged.
func Canonicalize(raw map[string]any) (*Result, bool) {
	if raw == nil {
		return nil, false
	}

	payload := raw
	unwrapped := false
	if !hasPayloadKeys(payload) {
		for _, key := range []string{"result", "data"} {
			if inner, ok := payload[key].(map[string]any); ok && hasPayloadKeys(inner) {
				payload = inner
				unwrapped = true
				break
			}
		}
	}
	if !hasPayloadKeys(payload) {
		return nil, false
	}

	r := &Result{
		Columns: coerceColumns(payload["columns"]),
		Rows:    coerceRows(payload["rows"]),
	}

	if n, ok := asInt(payload["row_count"]); ok {
		r.RowCount = n
	} else {
		r.RowCount = len(r.Rows)
	}
	if ms, ok := asFloat(payload["execution_time_ms"]); ok {
		r.ExecutionMS = ms
	} else if ms, ok := asFloat(payload["execution_time"]); ok {
		r.ExecutionMS = ms
	}
	if id, ok := payload["result_id"].(string); ok {
		r.ResultID = id
	}
	if t, ok := payload["truncated"].(bool); ok {
		r.Truncated = t
	}

	// Reference metadata may sit on the wrapper when the payload was nested.
	if unwrapped {
		if r.ResultID == "" {
			if id, ok := raw["result_id"].(string); ok {
				r.ResultID = id
			}
		}
		if !r.Truncated {
			if t, ok := raw["truncated"].(bool); ok {
				r.Truncated = t
			}
		}
	}
	return r, true
}

// mergeMeta fills reference metadata missing from the primary payload with
// the alternate payload's values.
func mergeMeta(dst, alt *Result) {
	if dst.ResultID == "" && alt.ResultID != "" {
		dst.ResultID = alt.ResultID
	}
	if !dst.Truncated && alt.Truncated {
		dst.Truncated = true
	}
	if dst.ExecutionMS == 0 && alt.ExecutionMS != 0 {
		dst.ExecutionMS = alt.ExecutionMS
	}
}

// hasPayloadKeys reports whether the map looks like a tabular payload rather
// than a wrapper or an unrelated object.
func hasPayloadKeys(m map[string]any) bool {
	if m == nil {
		return false
	}
	for _, k := range []string{"rows", "columns", "result_id"} {
		if _, ok := m[k]; ok {
			return true
		}
	}
	return false
}

// coerceColumns accepts plain strings, {name: ...} objects, and []string.
func coerceColumns(v any) []string {
	switch cols := v.(type) {
	case []string:
		out := make([]string, len(cols))
		copy(out, cols)
		return out
	case []any:
		out := make([]string, 0, len(cols))
		for _, c := range cols {
			switch cv := c.(type) {
			case string:
				out = append(out, cv)
			case map[string]any:
				if name, ok := cv["name"].(string); ok {
					out = append(out, name)
				} else {
					out = append(out, fmt.Sprint(c))
				}
			default:
				out = append(out, fmt.Sprint(c))
			}
		}
		return out
	}
	return nil
}

// coerceRows accepts [][]any and []any-of-lists; entries that are not lists
// are dropped (server payload integrity is not assumed).
func coerceRows(v any) [][]any {
	switch rows := v.(type) {
	case [][]any:
		out := make([][]any, len(rows))
		copy(out, rows)
		return out
	case []any:
		out := make([][]any, 0, len(rows))
		for _, row := range rows {
			switch rv := row.(type) {
			case []any:
				out = append(out, rv)
			case [][]any:
				// pathological double-nesting, flatten one level
				out = append(out, rv...)
			}
		}
		return out
	}
	return nil
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

func asInt(v any) (int, bool) {
	f, ok := asFloat(v)
	if !ok {
		return 0, false
	}
	return int(f), true
}
