package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/johnayoung/jazamiti-consensus/internal/config"
	"github.com/johnayoung/jazamiti-consensus/internal/consensus"
	"github.com/johnayoung/jazamiti-consensus/internal/provider"
	"github.com/johnayoung/jazamiti-consensus/internal/rules"
)

// RecordVerdict pairs a record with its consensus result.
type RecordVerdict struct {
	RecordID string           `json:"record_id"`
	Name     string           `json:"name,omitempty"`
	Result   consensus.Result `json:"result"`
}

// Report is the JSON output structure for a validation run.
type Report struct {
	RunID      string                   `json:"run_id"`
	Source     string                   `json:"source"`
	StartedAt  time.Time                `json:"started_at"`
	DurationMs int64                    `json:"duration_ms"`
	Config     config.Report            `json:"config"`
	Rules      []rules.Check            `json:"rules"`
	Consensus  []RecordVerdict          `json:"consensus"`
	Insights   []provider.InsightReport `json:"insights"`
	Warnings   []string                 `json:"warnings,omitempty"`
}

// Passed reports whether every rule check passed.
func (r Report) Passed() bool {
	return rules.AllPassed(r.Rules)
}

// Tally counts records judged valid and records that reached consensus.
func (r Report) Tally() (valid, strong int) {
	for _, rv := range r.Consensus {
		if rv.Result.FinalDecision {
			valid++
		}
		if rv.Result.ConsensusReached {
			strong++
		}
	}
	return valid, strong
}

// NewRunID creates a run identifier from the start time and a random suffix.
// Format: 20260112-143052-a1b2c3
func NewRunID(t time.Time) string {
	return fmt.Sprintf("%s-%s", t.Format("20060102-150405"), uuid.NewString()[:6])
}

// Encode writes r as indented JSON.
func Encode(w io.Writer, r Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

// WriteFile writes r as JSON to path.
func WriteFile(path string, r Report) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating output file: %w", err)
	}
	if err := Encode(f, r); err != nil {
		f.Close()
		return fmt.Errorf("encoding report: %w", err)
	}
	return f.Close()
}

// SaveRun stores r under dataDir/<run-id>/ as result.json plus a Markdown
// digest. It returns the run directory.
func SaveRun(dataDir string, r Report) (string, error) {
	runDir := filepath.Join(dataDir, r.RunID)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return "", fmt.Errorf("creating run directory: %w", err)
	}

	if err := WriteFile(filepath.Join(runDir, "result.json"), r); err != nil {
		return "", err
	}
	if err := os.WriteFile(filepath.Join(runDir, "summary.md"), []byte(Markdown(r)), 0o644); err != nil {
		return "", fmt.Errorf("writing summary: %w", err)
	}
	return runDir, nil
}

// Markdown renders a human-readable digest of r.
func Markdown(r Report) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Validation run %s\n\n", r.RunID)
	fmt.Fprintf(&b, "Source: `%s`\n\n", r.Source)

	b.WriteString("## Rule checks\n\n")
	for _, c := range r.Rules {
		mark := "x"
		if !c.Passed {
			mark = " "
		}
		fmt.Fprintf(&b, "- [%s] %s: %s\n", mark, c.Name, c.Message)
	}

	b.WriteString("\n## Consensus\n\n")
	for _, rv := range r.Consensus {
		decision := "invalid"
		if rv.Result.FinalDecision {
			decision = "valid"
		}
		fmt.Fprintf(&b, "### %s (%s, %.0f%%)\n\n%s\n\n", rv.RecordID, decision, rv.Result.Confidence*100, rv.Result.Reasoning)
	}

	if len(r.Insights) > 0 {
		b.WriteString("## Insights\n\n")
		for _, in := range r.Insights {
			fmt.Fprintf(&b, "### %s\n\n%s\n\n", in.Provider.DisplayName(), strings.TrimSpace(in.Content))
		}
	}
	return b.String()
}
