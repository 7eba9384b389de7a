package ui

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"

	"github.com/johnayoung/jazamiti-consensus/internal/consensus"
	"github.com/johnayoung/jazamiti-consensus/internal/provider"
	"github.com/johnayoung/jazamiti-consensus/internal/rules"
	"github.com/johnayoung/jazamiti-consensus/internal/runner"
)

// Palette.
var (
	colorPrimary = lipgloss.Color("#7aa2f7")
	colorSuccess = lipgloss.Color("#9ece6a")
	colorWarning = lipgloss.Color("#e0af68")
	colorError   = lipgloss.Color("#f7768e")
	colorMuted   = lipgloss.Color("#565f89")
	colorInfo    = lipgloss.Color("#7dcfff")
)

var (
	titleStyle   = lipgloss.NewStyle().Foreground(colorPrimary).Bold(true)
	phaseStyle   = lipgloss.NewStyle().Foreground(colorWarning).Bold(true)
	successStyle = lipgloss.NewStyle().Foreground(colorSuccess)
	errorStyle   = lipgloss.NewStyle().Foreground(colorError)
	warnStyle    = lipgloss.NewStyle().Foreground(colorWarning)
	mutedStyle   = lipgloss.NewStyle().Foreground(colorMuted)
	infoStyle    = lipgloss.NewStyle().Foreground(colorInfo)

	headerBox = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorPrimary).
			Padding(0, 1)

	consensusBox = lipgloss.NewStyle().
			Border(lipgloss.DoubleBorder()).
			Padding(0, 1)

	insightBox = lipgloss.NewStyle().
			Border(lipgloss.NormalBorder()).
			BorderForeground(colorInfo).
			Padding(0, 1)
)

// ProviderStatus represents the current state of a provider call.
type ProviderStatus int

const (
	StatusPending ProviderStatus = iota
	StatusRunning
	StatusComplete
	StatusFailed
)

// ProviderState holds the state of a single provider call.
type ProviderState struct {
	Provider  provider.ID
	Status    ProviderStatus
	StartTime time.Time
	EndTime   time.Time
	Error     error
}

// Progress displays live progress of provider calls.
type Progress struct {
	mu        sync.Mutex
	w         io.Writer
	label     string
	states    map[provider.ID]*ProviderState
	order     []provider.ID
	startTime time.Time
	done      chan struct{}
	stopped   chan struct{}
	quiet     bool
	rendered  bool
}

// NewProgress creates a progress display for the given providers.
func NewProgress(w io.Writer, label string, ids []provider.ID, quiet bool) *Progress {
	p := &Progress{w: w, quiet: quiet}
	p.Reset(label, ids)
	return p
}

// Reset prepares the display for another run over ids. Call it only while
// the display is stopped; the callbacks stay bound to p.
func (p *Progress) Reset(label string, ids []provider.ID) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.label = label
	p.order = ids
	p.states = make(map[provider.ID]*ProviderState, len(ids))
	for _, id := range ids {
		p.states[id] = &ProviderState{Provider: id, Status: StatusPending}
	}
	p.startTime = time.Now()
	p.rendered = false
}

// Callbacks returns runner callbacks that drive this display.
func (p *Progress) Callbacks() *runner.Callbacks {
	return &runner.Callbacks{
		OnStart:    p.ProviderStarted,
		OnComplete: p.ProviderCompleted,
		OnError:    p.ProviderFailed,
	}
}

// Start begins the refresh loop.
func (p *Progress) Start() {
	if p.quiet {
		return
	}

	done, stopped := make(chan struct{}), make(chan struct{})
	p.done, p.stopped = done, stopped

	ticker := time.NewTicker(100 * time.Millisecond)
	go func() {
		defer close(stopped)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				p.render()
			case <-done:
				return
			}
		}
	}()

	p.render()
}

// Stop ends the display and clears it.
func (p *Progress) Stop() {
	if p.quiet || p.done == nil {
		return
	}

	close(p.done)
	<-p.stopped
	p.done, p.stopped = nil, nil

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.rendered {
		p.clearLines(len(p.order) + 2)
	}
}

// ProviderStarted marks a provider call as in flight.
func (p *Progress) ProviderStarted(id provider.ID) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if s, ok := p.states[id]; ok {
		s.Status = StatusRunning
		s.StartTime = time.Now()
	}
}

// ProviderCompleted marks a provider call as finished.
func (p *Progress) ProviderCompleted(id provider.ID) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if s, ok := p.states[id]; ok {
		s.Status = StatusComplete
		s.EndTime = time.Now()
	}
}

// ProviderFailed marks a provider call as failed.
func (p *Progress) ProviderFailed(id provider.ID, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if s, ok := p.states[id]; ok {
		s.Status = StatusFailed
		s.EndTime = time.Now()
		s.Error = err
	}
}

// State returns a copy of the state for id.
func (p *Progress) State(id provider.ID) (ProviderState, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	s, ok := p.states[id]
	if !ok {
		return ProviderState{}, false
	}
	return *s, true
}

func (p *Progress) render() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.rendered {
		p.clearLines(len(p.order) + 2)
	}
	p.rendered = true

	fmt.Fprintf(p.w, "%s %s\n",
		titleStyle.Render(fmt.Sprintf("⚡ %s with %d providers", p.label, len(p.order))),
		mutedStyle.Render(fmt.Sprintf("(%.1fs)", time.Since(p.startTime).Seconds())))

	for _, id := range p.order {
		p.renderLine(p.states[id])
	}
	fmt.Fprintln(p.w)
}

func (p *Progress) renderLine(s *ProviderState) {
	var icon, status string
	style := mutedStyle

	switch s.Status {
	case StatusPending:
		icon, status = "○", "pending"
	case StatusRunning:
		style = warnStyle
		icon = spinner(time.Now())
		status = fmt.Sprintf("waiting... %.1fs", time.Since(s.StartTime).Seconds())
	case StatusComplete:
		style = successStyle
		icon = "✓"
		status = fmt.Sprintf("done in %.1fs", s.EndTime.Sub(s.StartTime).Seconds())
	case StatusFailed:
		style = errorStyle
		icon = "✗"
		status = "failed: " + truncate(fmt.Sprint(s.Error), 60)
	}

	fmt.Fprintf(p.w, "  %s %-10s %s\n", style.Render(icon), s.Provider.DisplayName(), style.Render(status))
}

func (p *Progress) clearLines(n int) {
	for i := 0; i < n; i++ {
		fmt.Fprint(p.w, "\033[A\033[K")
	}
}

func spinner(t time.Time) string {
	frames := []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}
	return frames[int(t.UnixMilli()/100)%len(frames)]
}

// truncate shortens s to max runes on one line.
func truncate(s string, max int) string {
	s = strings.TrimSpace(strings.ReplaceAll(s, "\n", " "))
	r := []rune(s)
	if len(r) > max {
		return string(r[:max-1]) + "…"
	}
	return s
}

// PrintHeader prints the run banner.
func PrintHeader(w io.Writer, source string, records int) {
	body := fmt.Sprintf("%s\nSource: %s\nRecords: %d",
		titleStyle.Render("Jazamiti Consensus Validator"),
		mutedStyle.Render(truncate(source, 60)),
		records)
	fmt.Fprintf(w, "\n%s\n\n", headerBox.Render(body))
}

// PrintPhase prints a phase header.
func PrintPhase(w io.Writer, phase string) {
	fmt.Fprintln(w, phaseStyle.Render("▸ "+phase))
}

// PrintSuccess prints a success message.
func PrintSuccess(w io.Writer, msg string) {
	fmt.Fprintln(w, successStyle.Render("✓ "+msg))
}

// PrintError prints an error message.
func PrintError(w io.Writer, msg string) {
	fmt.Fprintln(w, errorStyle.Render("✗ "+msg))
}

// PrintWarning prints a warning message.
func PrintWarning(w io.Writer, msg string) {
	fmt.Fprintln(w, warnStyle.Render("! "+msg))
}

// PrintChecks prints each rule check with its violations and warnings.
func PrintChecks(w io.Writer, checks []rules.Check) {
	for _, c := range checks {
		if c.Passed {
			PrintSuccess(w, fmt.Sprintf("%s: %s", c.Name, c.Message))
		} else {
			PrintError(w, fmt.Sprintf("%s: %s", c.Name, c.Message))
		}
		for _, v := range c.Violations {
			fmt.Fprintf(w, "    %s\n", errorStyle.Render("- "+v))
		}
		for _, v := range c.Warnings {
			fmt.Fprintf(w, "    %s\n", warnStyle.Render("- "+v))
		}
	}
}

// PrintConsensus prints one record's consensus result.
func PrintConsensus(w io.Writer, label string, res consensus.Result) {
	decision, color := "INVALID", colorError
	if res.FinalDecision {
		decision, color = "VALID", colorSuccess
	}
	strength := "weak consensus"
	if res.ConsensusReached {
		strength = "strong consensus"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s  %s\n", lipgloss.NewStyle().Foreground(color).Bold(true).Render(decision), mutedStyle.Render(label))
	fmt.Fprintf(&b, "Confidence: %.1f%% (%s, %d verdicts)\n", res.Confidence*100, strength, len(res.Verdicts))
	for _, v := range res.Verdicts {
		mark := errorStyle.Render("✗")
		if v.IsValid {
			mark = successStyle.Render("✓")
		}
		fmt.Fprintf(&b, "  %s %-7s %.2f  %s\n", mark, v.Provider.DisplayName(), v.Confidence, truncate(v.Reasoning, 70))
	}
	b.WriteString(mutedStyle.Render(wrap(res.Reasoning, 76)))

	fmt.Fprintln(w, consensusBox.BorderForeground(color).Render(b.String()))
}

// PrintInsights prints each provider's dataset analysis.
func PrintInsights(w io.Writer, reports []provider.InsightReport) {
	if len(reports) == 0 {
		PrintWarning(w, "No AI insights available")
		return
	}
	for _, r := range reports {
		title := infoStyle.Bold(true).Render(r.Provider.DisplayName() + " insights")
		fmt.Fprintln(w, insightBox.Render(title+"\n"+wrap(r.Content, 76)))
	}
}

// PrintSummary prints a summary of the run.
func PrintSummary(w io.Writer, records, valid, strong int, checksPassed bool, total time.Duration) {
	fmt.Fprintf(w, "\n%s\n", mutedStyle.Render("─── Summary ───"))
	fmt.Fprintf(w, "Records validated: %d (%s, %s)\n",
		records,
		successStyle.Render(fmt.Sprintf("%d valid", valid)),
		errorStyle.Render(fmt.Sprintf("%d invalid", records-valid)))
	fmt.Fprintf(w, "Strong consensus: %d/%d\n", strong, records)
	if checksPassed {
		fmt.Fprintf(w, "Rule checks: %s\n", successStyle.Render("passed"))
	} else {
		fmt.Fprintf(w, "Rule checks: %s\n", errorStyle.Render("failed"))
	}
	fmt.Fprintf(w, "Total time: %.1fs\n", total.Seconds())
}

// wrap breaks s into lines no wider than width.
func wrap(s string, width int) string {
	return lipgloss.NewStyle().Width(width).Render(s)
}

// IsTerminal checks if the given file is a terminal.
func IsTerminal(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
