// Copyright (c) 2025 Querypilot
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"querypilot/cli/internal/canonical"
	"querypilot/cli/internal/logging"
	"querypilot/cli/internal/outcome"

	"github.com/pterm/pterm"
)

// renderOutcome prints a terminal outcome in the right shape for its kind.
func renderOutcome(o *outcome.Outcome) {
	switch o.Kind {
	case outcome.KindSuccess:
		renderResult(o.Result)
		renderNotes("Insights", o.Insights)
		renderNotes("Suggestions", o.Suggestions)

	case outcome.KindConversational:
		pterm.Println()
		pterm.Println(o.Message)
		renderNotes("Suggestions", o.Suggestions)

	case outcome.KindError:
		renderError(o)

	default:
		// Gate kinds never reach here; they are prompted inline.
		pterm.Println(o.Message)
	}
}

// renderResult prints the canonical tabular result with a summary footer.
func renderResult(r *canonical.Result) {
	pterm.Println()
	if r == nil || len(r.Rows) == 0 {
		pterm.Success.Println("Query completed; no rows returned.")
		return
	}

	data := make(pterm.TableData, 0, len(r.Rows)+1)
	if len(r.Columns) > 0 {
		data = append(data, r.Columns)
	}
	for _, row := range r.Rows {
		cells := make([]string, len(row))
		for i, v := range row {
			cells[i] = formatCell(v)
		}
		data = append(data, cells)
	}

	table := pterm.DefaultTable.WithData(data)
	if len(r.Columns) > 0 {
		table = table.WithHasHeader()
	}
	_ = table.Render()

	footer := fmt.Sprintf("%d row(s)", r.RowCount)
	if r.ExecutionMS > 0 {
		footer += fmt.Sprintf(" in %.0f ms", r.ExecutionMS)
	}
	if r.Truncated {
		footer += " (truncated)"
	}
	pterm.Println(pterm.NewStyle(pterm.FgGray).Sprint(footer))
}

// renderError picks the presentation by failure category: transport failures
// get the full connection-lost panel, everything else a one-line error.
func renderError(o *outcome.Outcome) {
	if cat, ok := o.Details["category"].(string); ok {
		if cat == "network" || cat == "timeout" {
			logging.PresentStreamError(o.Message)
			return
		}
	}
	pterm.Println()
	pterm.Error.Println(logging.Mask(o.Message))
}

// renderNotes prints an auxiliary list (insights, follow-up suggestions).
func renderNotes(title string, notes []string) {
	if len(notes) == 0 {
		return
	}
	pterm.Println()
	pterm.Println(pterm.NewStyle(pterm.FgLightCyan, pterm.Bold).Sprint(title))
	for _, n := range notes {
		pterm.Println("  • " + n)
	}
}

// formatCell renders one result cell. JSON numbers arrive as float64; whole
// values are shown without a decimal part.
func formatCell(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		if x == float64(int64(x)) {
			return strconv.FormatInt(int64(x), 10)
		}
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	case []any:
		parts := make([]string, len(x))
		for i, e := range x {
			parts[i] = formatCell(e)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	default:
		return fmt.Sprintf("%v", x)
	}
}
