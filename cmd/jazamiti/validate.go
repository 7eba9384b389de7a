package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/johnayoung/jazamiti-consensus/internal/consensus"
	"github.com/johnayoung/jazamiti-consensus/internal/output"
	"github.com/johnayoung/jazamiti-consensus/internal/provider"
	"github.com/johnayoung/jazamiti-consensus/internal/record"
	"github.com/johnayoung/jazamiti-consensus/internal/rules"
	"github.com/johnayoung/jazamiti-consensus/internal/ui"
)

type validateOptions struct {
	output       string
	dataDir      string
	quiet        bool
	json         bool
	noSave       bool
	skipAI       bool
	skipInsights bool
	fetchTimeout time.Duration
}

func newValidateCmd(root *rootOptions) *cobra.Command {
	opts := &validateOptions{}

	cmd := &cobra.Command{
		Use:   "validate <file-or-url>",
		Short: "Run rule checks and AI consensus over a dataset",
		Long: `Loads a JSON array of tree-planting records from a file or HTTP(S) URL,
runs the rule-based checks, asks every enabled AI backend for a verdict on
each record and reconciles them, then collects dataset insights.

Exits non-zero when any rule check fails.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(cmd.Context(), root, opts, args[0], cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.output, "output", "o", "", "write JSON output to a specific file (overrides auto-save)")
	f.StringVar(&opts.dataDir, "data-dir", "data", "directory for auto-saved runs")
	f.BoolVarP(&opts.quiet, "quiet", "q", false, "suppress progress output")
	f.BoolVar(&opts.json, "json", false, "output JSON to stdout (no interactive display, no auto-save)")
	f.BoolVar(&opts.noSave, "no-save", false, "don't auto-save results to the data directory")
	f.BoolVar(&opts.skipAI, "skip-ai", false, "run rule checks only")
	f.BoolVar(&opts.skipInsights, "skip-insights", false, "skip dataset insight generation")
	f.DurationVar(&opts.fetchTimeout, "fetch-timeout", 30*time.Second, "timeout when loading records from a URL")
	return cmd
}

func runValidate(ctx context.Context, root *rootOptions, opts *validateOptions, source string, stdout, stderr io.Writer) error {
	logger := root.logger
	showUI := isTerminal(stderr) && !opts.quiet && !opts.json
	start := time.Now()

	shutdown, err := root.startTracing(ctx)
	if err != nil {
		return err
	}
	defer shutdown(context.Background())

	ds, err := record.Load(ctx, source, &http.Client{Timeout: opts.fetchTimeout})
	if err != nil {
		return err
	}
	logger.Info("records loaded", "source", source, "count", len(ds))

	report := output.Report{
		RunID:     output.NewRunID(start),
		Source:    source,
		StartedAt: start,
		Config:    root.cfg.Validate(),
		Consensus: []output.RecordVerdict{},
		Insights:  []provider.InsightReport{},
	}

	if showUI {
		ui.PrintHeader(stderr, source, len(ds))
		ui.PrintPhase(stderr, "Running rule checks...")
	}
	report.Rules = rules.RunAll(ds)
	if showUI {
		ui.PrintChecks(stderr, report.Rules)
		fmt.Fprintln(stderr)
	}

	switch {
	case opts.skipAI:
		logger.Info("AI validation skipped by flag")
	case !report.Config.IsValid:
		for _, e := range report.Config.Errors {
			report.Warnings = append(report.Warnings, "configuration: "+e)
		}
		report.Warnings = append(report.Warnings, "AI validation skipped: configuration is invalid")
		logger.Warn("AI validation skipped", "errors", report.Config.Errors)
	default:
		if err := runConsensus(ctx, root, opts, ds, &report, showUI, stderr); err != nil {
			return err
		}
	}

	report.DurationMs = time.Since(start).Milliseconds()

	if err := emit(opts, report, showUI, stdout, stderr); err != nil {
		return err
	}

	if showUI {
		valid, strong := report.Tally()
		ui.PrintSummary(stderr, len(report.Consensus), valid, strong, report.Passed(), time.Since(start))
		for _, w := range report.Warnings {
			ui.PrintWarning(stderr, w)
		}
	}

	if !report.Passed() {
		return errChecksFailed
	}
	return nil
}

func runConsensus(ctx context.Context, root *rootOptions, opts *validateOptions, ds record.Dataset, report *output.Report, showUI bool, stderr io.Writer) error {
	// One display serves every fan-out; it is reset between runs.
	progress := ui.NewProgress(stderr, "", nil, !showUI)

	engine, err := consensus.NewFromConfig(root.cfg, consensus.WithLogger(root.logger), consensus.WithCallbacks(progress.Callbacks()))
	if err != nil {
		return err
	}

	ids := make([]provider.ID, 0, len(engine.Adapters()))
	for _, a := range engine.Adapters() {
		ids = append(ids, a.ID())
	}

	if showUI {
		ui.PrintPhase(stderr, "Running AI consensus...")
	}
	for i, rec := range ds {
		if err := ctx.Err(); err != nil {
			return err
		}
		label := rec.Label(i)

		progress.Reset(fmt.Sprintf("Validating %s (%d/%d)", label, i+1, len(ds)), ids)
		progress.Start()
		res := engine.ValidateWithConsensus(ctx, rec)
		progress.Stop()

		report.Consensus = append(report.Consensus, output.RecordVerdict{
			RecordID: label,
			Name:     rec.Name(),
			Result:   res,
		})
		if showUI {
			ui.PrintConsensus(stderr, label, res)
		}
	}

	if opts.skipInsights {
		return nil
	}

	if showUI {
		fmt.Fprintln(stderr)
		ui.PrintPhase(stderr, "Generating insights...")
	}
	progress.Reset("Summarizing dataset", ids)
	progress.Start()
	report.Insights = engine.GenerateInsightsWithConsensus(ctx, ds)
	progress.Stop()

	if showUI {
		ui.PrintInsights(stderr, report.Insights)
	}
	return nil
}

// emit writes the report to an explicit path, the auto-save directory or
// stdout, following the same precedence as the flags document.
func emit(opts *validateOptions, report output.Report, showUI bool, stdout, stderr io.Writer) error {
	switch {
	case opts.output != "":
		if err := output.WriteFile(opts.output, report); err != nil {
			return err
		}
		if showUI {
			ui.PrintSuccess(stderr, "Report written to "+opts.output)
		}
	case opts.json:
		return output.Encode(stdout, report)
	case !opts.noSave:
		dir, err := output.SaveRun(opts.dataDir, report)
		if err != nil {
			return err
		}
		if !showUI {
			return output.Encode(stdout, report)
		}
		ui.PrintSuccess(stderr, "Run saved to "+filepath.Clean(dir))
	case !showUI:
		return output.Encode(stdout, report)
	}
	return nil
}
