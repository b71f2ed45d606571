// Copyright (c) 2025 Querypilot
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"time"

	"querypilot/cli/internal/auth"
	"querypilot/cli/internal/config"
	"querypilot/cli/internal/lifecycle"
	"querypilot/cli/internal/manifest"
	"querypilot/cli/internal/orchestrator"
	"querypilot/cli/internal/protocol"
	"querypilot/cli/internal/stream"
	"querypilot/cli/internal/terminal"

	"atomicgo.dev/cursor"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

var (
	verboseAsk  bool
	askDatabase string
)

// askCmd represents the ask command for running natural-language queries.
// It submits the question to the Querypilot orchestrator, follows the progress
// stream, and handles approval and clarification prompts interactively.
var askCmd = &cobra.Command{
	Use:   "ask [question...]",
	Short: "Ask your database a question in plain language",
	Long: `The ask command sends a natural-language question to the Querypilot service,
which translates it into SQL and runs it against your database. Progress is
streamed live; queries that modify data pause for your approval, and ambiguous
questions pause for clarification.

With no arguments the command starts an interactive session where follow-up
questions share conversation context. Press Ctrl+C to cancel a running query.`,

	RunE: func(cmd *cobra.Command, args []string) error {
		// Enable verbose mode for all modules if --verbose is set
		if verboseAsk {
			os.Setenv("QUERYPILOT_VERBOSE", "1")
		}

		st, err := auth.Load()
		if err != nil || !st.LoggedIn {
			if verboseAsk {
				fmt.Printf("[DEBUG] ask: auth.Load() error or not logged in - err: %v, LoggedIn: %v\n", err, st.LoggedIn)
			}
			fmt.Println("⚠️  You need to be logged in to run queries.")
			fmt.Println("   Please run: querypilot login")
			return nil
		}

		ctx := cmd.Context()
		token, err := auth.Token(ctx)
		if err != nil {
			return err
		}

		cfg, err := config.Load()
		if err != nil {
			return err
		}
		database := askDatabase
		if database == "" {
			database = cfg.Database
		}
		if database == "" {
			fmt.Println("⚠️  No database selected.")
			fmt.Println("   Please run 'querypilot connect' to choose one,")
			fmt.Println("   or pass one with 'querypilot ask --database <name>'.")
			return nil
		}

		endpoints, err := resolveEndpoints(ctx, cfg)
		if err != nil {
			return err
		}

		be := orchestrator.New(endpoints, token)
		ctrl := lifecycle.New(be, lifecycle.Options{
			Database: database,
			Stream: stream.Config{
				MaxRetries: cfg.Stream.MaxRetries,
				BaseDelay:  time.Duration(cfg.Stream.BaseDelayMS) * time.Millisecond,
				MaxDelay:   time.Duration(cfg.Stream.MaxDelayMS) * time.Millisecond,
			},
		})

		// Ctrl+C cancels the in-flight query, not the whole session.
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt)
		defer signal.Stop(sigCh)
		go func() {
			for range sigCh {
				ctrl.Cancel()
			}
		}()

		pterm.Println()
		pterm.Println(pterm.NewStyle(pterm.FgLightCyan).Sprint("→ Database: ") + pterm.NewStyle(pterm.FgCyan, pterm.Bold).Sprint(database))
		pterm.Println()

		if len(args) > 0 {
			return runQuestion(ctx, ctrl, strings.Join(args, " "))
		}

		// Interactive session: questions share one conversation.
		reader := bufio.NewReader(os.Stdin)
		fmt.Println("Interactive session. Type a question, or 'exit' to quit.")
		for {
			fmt.Print("querypilot> ")
			line, err := reader.ReadString('\n')
			if err != nil {
				fmt.Println()
				return nil
			}
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			if line == "exit" || line == "quit" {
				return nil
			}
			if err := runQuestion(ctx, ctrl, line); err != nil {
				return err
			}
		}
	},
}

// resolveEndpoints returns the backend endpoints, honoring a configured
// origin override before falling back to the published manifest.
func resolveEndpoints(ctx context.Context, cfg config.Config) (manifest.APIEndpoints, error) {
	if cfg.BackendURL != "" {
		return manifest.Default(cfg.BackendURL), nil
	}
	m, err := manifest.GetEndpoints(ctx)
	if err != nil {
		return manifest.APIEndpoints{}, err
	}
	return m.API, nil
}

// runQuestion drives one question to its terminal outcome, looping through
// approval and clarification gates as they open.
func runQuestion(ctx context.Context, ctrl *lifecycle.Controller, text string) error {
	stopSpin := startInlineSpinner(os.Stdout, "Contacting Querypilot", []string{"|", "/", "-", "\\"}, 120*time.Millisecond)
	updates, err := ctrl.Submit(ctx, text)
	if err != nil {
		stopSpin()
		pterm.Error.Println(err.Error())
		return nil
	}
	return pumpUpdates(ctx, updates, stopSpin)
}

// pumpUpdates consumes update channels until a terminal outcome, re-entering
// the loop with the channel returned by each gate decision.
func pumpUpdates(ctx context.Context, updates <-chan lifecycle.Update, stopSpin func()) error {
	progress := newProgressArea()
	defer progress.stop()

	firstUpdate := true
	for updates != nil {
		u, ok := <-updates
		if !ok {
			// Closed without a terminal outcome: superseded flow.
			updates = nil
			continue
		}
		if firstUpdate && stopSpin != nil {
			stopSpin()
			stopSpin = nil
		}
		firstUpdate = false

		switch {
		case u.Progress != nil:
			progress.update(u.Progress)

		case u.Approval != nil:
			progress.stop()
			next, err := promptApproval(ctx, u.Approval)
			if err != nil {
				return err
			}
			updates = next

		case u.Clarification != nil:
			progress.stop()
			next, err := promptClarification(ctx, u.Clarification)
			if err != nil {
				return err
			}
			updates = next

		case u.Outcome != nil:
			progress.stop()
			renderOutcome(u.Outcome)
			updates = nil
		}
	}
	if stopSpin != nil {
		stopSpin()
	}
	return nil
}

// progressArea renders live stream progress on a single redrawn area.
// Modeled on the docker-style braille spinner.
type progressArea struct {
	mu      sync.Mutex
	area    *pterm.AreaPrinter
	stopCh  chan struct{}
	wg      sync.WaitGroup
	started bool
	line    string
}

var progressFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

func newProgressArea() *progressArea {
	return &progressArea{stopCh: make(chan struct{})}
}

func (p *progressArea) update(ev *protocol.Event) {
	p.mu.Lock()
	p.line = progressLine(ev)
	if !p.started {
		cursor.Hide()
		area, err := pterm.DefaultArea.WithRemoveWhenDone(true).Start()
		if err != nil {
			cursor.Show()
			p.mu.Unlock()
			return
		}
		p.area = area
		p.started = true
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			t := time.NewTicker(120 * time.Millisecond)
			defer t.Stop()
			i := 0
			for {
				select {
				case <-t.C:
					i++
					p.mu.Lock()
					line := p.line
					area := p.area
					p.mu.Unlock()
					if area != nil {
						area.Update(fmt.Sprintf("%s %s", progressFrames[i%len(progressFrames)], line))
					}
				case <-p.stopCh:
					return
				}
			}
		}()
	}
	p.mu.Unlock()
}

func (p *progressArea) stop() {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return
	}
	close(p.stopCh)
	p.mu.Unlock()
	p.wg.Wait()

	p.mu.Lock()
	if p.area != nil {
		p.area.Stop()
		p.area = nil
	}
	p.started = false
	p.stopCh = make(chan struct{})
	p.mu.Unlock()
	cursor.Show()
}

// progressLine flattens a stream event into one status line.
func progressLine(ev *protocol.Event) string {
	state := ev.State
	if state == "" {
		state = "working"
	}
	if pct := progressPercent(ev.Progress); pct > 0 {
		state = fmt.Sprintf("%s %d%%", state, pct)
	}
	msg := ev.Message
	if msg == "" && len(ev.Thinking) > 0 {
		msg = ev.Thinking[len(ev.Thinking)-1]
	}
	if msg == "" {
		return state
	}
	// Keep the area single-line; long thinking text is truncated.
	msg = strings.ReplaceAll(msg, "\n", " ")
	if len(msg) > 120 {
		msg = msg[:120] + "…"
	}
	return fmt.Sprintf("%s  %s", state, msg)
}

// progressPercent normalizes the progress fraction. Servers report either a
// 0..1 fraction or a 0..100 percentage.
func progressPercent(p float64) int {
	if p <= 0 {
		return 0
	}
	if p <= 1 {
		return int(p * 100)
	}
	if p > 100 {
		return 100
	}
	return int(p)
}

// promptApproval shows the generated SQL and asks the user to approve,
// edit, or reject it. Approve and edit re-enter the lifecycle; reject is
// resolved locally.
func promptApproval(ctx context.Context, gate *lifecycle.ApprovalGate) (<-chan lifecycle.Update, error) {
	pterm.Println()
	pterm.Println(pterm.NewStyle(pterm.FgYellow, pterm.Bold).Sprint("Approval required"))
	if gate.Message != "" {
		pterm.Println(gate.Message)
	}
	if gate.RiskLevel != "" {
		pterm.Println(pterm.NewStyle(pterm.FgLightCyan).Sprint("→ Risk: ") + riskStyle(gate.RiskLevel).Sprint(gate.RiskLevel))
	}
	pterm.Println(pterm.NewStyle(pterm.FgLightCyan).Sprint("→ SQL:"))
	pterm.Println(pterm.NewStyle(pterm.FgLightBlue).Sprint("  " + strings.ReplaceAll(gate.SQL, "\n", "\n  ")))
	pterm.Println()

	reader := bufio.NewReader(os.Stdin)
	for {
		fmt.Print("[a]pprove, [e]dit, [r]eject? ")
		raw, err := reader.ReadString('\n')
		if err != nil {
			return nil, err
		}
		switch strings.ToLower(strings.TrimSpace(raw)) {
		case "a", "approve", "y", "yes":
			return gate.Approve(ctx, "")
		case "e", "edit":
			fmt.Print("Enter modified SQL: ")
			sqlRaw, err := reader.ReadString('\n')
			if err != nil {
				return nil, err
			}
			modified := strings.TrimSpace(sqlRaw)
			if modified == "" {
				fmt.Println("No SQL entered; keeping the original.")
				return gate.Approve(ctx, "")
			}
			return gate.Approve(ctx, modified)
		case "r", "reject", "n", "no":
			fmt.Print("Reason (optional): ")
			reasonRaw, err := reader.ReadString('\n')
			if err != nil {
				return nil, err
			}
			renderOutcome(gate.Reject(strings.TrimSpace(reasonRaw)))
			return nil, nil
		default:
			fmt.Println("Please answer a, e, or r.")
		}
	}
}

// promptClarification shows the orchestrator's question and relays the
// user's answer. Suggested options from the server are listed when present.
func promptClarification(ctx context.Context, gate *lifecycle.ClarificationGate) (<-chan lifecycle.Update, error) {
	pterm.Println()
	pterm.Println(pterm.NewStyle(pterm.FgYellow, pterm.Bold).Sprint("Clarification needed"))
	if gate.Message != "" {
		pterm.Println(gate.Message)
	}
	if opts := clarificationOptions(gate.Details); len(opts) > 0 {
		for _, o := range opts {
			pterm.Println("  • " + o)
		}
	}
	for _, prev := range gate.History {
		pterm.Println(pterm.NewStyle(pterm.FgGray).Sprint("  (earlier answer: " + prev + ")"))
	}
	pterm.Println()

	reader := bufio.NewReader(os.Stdin)
	for {
		promptText := "Your answer: "
		fmt.Print(promptText)
		raw, err := reader.ReadString('\n')
		if err != nil {
			return nil, err
		}
		answer := strings.TrimSpace(raw)
		if answer == "" {
			fmt.Println("An answer is required.")
			continue
		}
		terminal.ClearPreviousLines(len(promptText) + len(raw))
		pterm.Println(pterm.NewStyle(pterm.FgLightCyan).Sprint("→ ") + answer)
		return gate.SubmitClarification(ctx, answer)
	}
}

// clarificationOptions extracts a suggested-options list from gate details.
func clarificationOptions(details map[string]any) []string {
	if details == nil {
		return nil
	}
	raw, ok := details["options"].([]any)
	if !ok {
		return nil
	}
	var out []string
	for _, v := range raw {
		if s, ok := v.(string); ok && s != "" {
			out = append(out, s)
		}
	}
	return out
}

func riskStyle(level string) *pterm.Style {
	switch strings.ToLower(level) {
	case "high", "critical":
		return pterm.NewStyle(pterm.FgRed, pterm.Bold)
	case "medium":
		return pterm.NewStyle(pterm.FgYellow)
	default:
		return pterm.NewStyle(pterm.FgGreen)
	}
}

func init() {
	askCmd.Flags().BoolVar(&verboseAsk, "verbose", false, "Enable verbose debug output")
	askCmd.Flags().StringVar(&askDatabase, "database", "", "Database to query (overrides the configured default)")
	rootCmd.AddCommand(askCmd)
}
