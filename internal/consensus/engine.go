// Package consensus fans a record out to every configured AI backend and
// reconciles their verdicts into one decision.
package consensus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/johnayoung/jazamiti-consensus/internal/config"
	"github.com/johnayoung/jazamiti-consensus/internal/metrics"
	"github.com/johnayoung/jazamiti-consensus/internal/provider"
	"github.com/johnayoung/jazamiti-consensus/internal/record"
	"github.com/johnayoung/jazamiti-consensus/internal/runner"
)

// ErrInvalidThreshold is reported when the engine is asked to decide with a
// threshold below one.
var ErrInvalidThreshold = errors.New("consensus threshold must be at least 1")

// ErrConfidenceRange is reported for a verdict whose confidence is outside [0, 1].
var ErrConfidenceRange = errors.New("verdict confidence out of range")

const tracerName = "github.com/johnayoung/jazamiti-consensus/internal/consensus"

// ServiceStatus reports which backends the engine can reach.
type ServiceStatus struct {
	Services     map[provider.ID]bool `json:"services"`
	TotalEnabled int                  `json:"total_enabled"`
}

// Engine runs consensus validation and insight generation. It holds no
// per-call state and is safe for concurrent use.
type Engine struct {
	cfg       config.Config
	adapters  []provider.Adapter
	logger    *slog.Logger
	tracer    trace.Tracer
	callbacks *runner.Callbacks
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithTracer sets the tracer used for request and provider spans.
func WithTracer(t trace.Tracer) Option {
	return func(e *Engine) {
		if t != nil {
			e.tracer = t
		}
	}
}

// WithCallbacks attaches per-provider progress callbacks.
func WithCallbacks(cb *runner.Callbacks) Option {
	return func(e *Engine) { e.callbacks = cb }
}

// New creates an engine that consults adapters under cfg's threshold.
// Adapters are consulted as given; cfg is not used to filter them.
func New(cfg config.Config, adapters []provider.Adapter, opts ...Option) *Engine {
	e := &Engine{
		cfg:      cfg,
		adapters: adapters,
		logger:   slog.Default(),
		tracer:   otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Adapters returns the adapters the engine fans out to.
func (e *Engine) Adapters() []provider.Adapter {
	return e.adapters
}

// ValidateWithConsensus asks every adapter for a verdict on rec and combines
// the successful ones. It never returns an error and never panics; failures
// are folded into the result's reasoning.
func (e *Engine) ValidateWithConsensus(ctx context.Context, rec record.Record) (res Result) {
	ctx, span := e.tracer.Start(ctx, "consensus.validate", trace.WithAttributes(
		attribute.String("record.id", rec.ID()),
		attribute.Int("providers", len(e.adapters)),
	))
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("%w: %v", runner.ErrPanic, r)
			e.logger.Error("consensus validation panicked", "record_id", rec.ID(), "error", err)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			metrics.RecordFallback(metrics.OpValidate)
			res = fallback(err)
		}
	}()

	threshold := e.cfg.ConsensusThreshold
	if threshold < 1 {
		err := fmt.Errorf("%w: got %d", ErrInvalidThreshold, threshold)
		e.logger.Error("consensus validation aborted", "record_id", rec.ID(), "error", err)
		span.SetStatus(codes.Error, err.Error())
		metrics.RecordFallback(metrics.OpValidate)
		return fallback(err)
	}

	tasks := make([]runner.Task[provider.Verdict], 0, len(e.adapters))
	for _, a := range e.adapters {
		tasks = append(tasks, runner.Task[provider.Verdict]{
			Provider: a.ID(),
			Run: func(ctx context.Context) (provider.Verdict, error) {
				return e.validateOne(ctx, a, rec)
			},
		})
	}

	out := runner.Run(ctx, e.runner(), tasks)

	res = Compute(out.Results, threshold)
	if len(e.adapters) > 0 && out.AllFailed() {
		res.Reasoning = fmt.Sprintf("%s: all %d providers failed (%s)", ReasonNoServices, len(e.adapters), describeFailures(out.Failures))
	}

	span.SetAttributes(
		attribute.Bool("consensus.final_decision", res.FinalDecision),
		attribute.Bool("consensus.reached", res.ConsensusReached),
		attribute.Float64("consensus.confidence", res.Confidence),
		attribute.Int("consensus.verdicts", len(out.Results)),
		attribute.Int("consensus.failures", len(out.Failures)),
	)
	metrics.RecordDecision(res.FinalDecision, res.ConsensusReached, len(out.Results), res.Confidence)

	e.logger.Info("consensus computed",
		"record_id", rec.ID(),
		"final_decision", res.FinalDecision,
		"consensus_reached", res.ConsensusReached,
		"confidence", res.Confidence,
		"verdicts", len(out.Results),
		"failures", len(out.Failures),
	)
	return res
}

func (e *Engine) validateOne(ctx context.Context, a provider.Adapter, rec record.Record) (v provider.Verdict, err error) {
	id := a.ID()
	ctx, span := e.tracer.Start(ctx, "provider.validate", trace.WithAttributes(attribute.String("provider", string(id))))
	start := time.Now()
	status := metrics.StatusPanic
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("%w: %v", runner.ErrPanic, rec)
		}
		metrics.RecordProviderCall(string(id), metrics.OpValidate, status, time.Since(start).Seconds())
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	v, err = a.Validate(ctx, rec)
	if err == nil && (math.IsNaN(v.Confidence) || v.Confidence < 0 || v.Confidence > 1) {
		err = fmt.Errorf("%s: %w: %v", id, ErrConfidenceRange, v.Confidence)
	}
	if err != nil {
		status = metrics.StatusError
		return provider.Verdict{}, err
	}

	status = metrics.StatusSuccess
	if v.Provider == "" {
		v.Provider = id
	}
	e.logger.Debug("verdict received", "provider", id, "is_valid", v.IsValid, "confidence", v.Confidence)
	return v, nil
}

// GenerateInsightsWithConsensus asks every adapter to summarize ds and returns
// the reports that succeeded, in completion order. The result is never nil.
func (e *Engine) GenerateInsightsWithConsensus(ctx context.Context, ds record.Dataset) (reports []provider.InsightReport) {
	ctx, span := e.tracer.Start(ctx, "consensus.insights", trace.WithAttributes(
		attribute.Int("records", len(ds)),
		attribute.Int("providers", len(e.adapters)),
	))
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("%w: %v", runner.ErrPanic, r)
			e.logger.Error("insight generation panicked", "error", err)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			metrics.RecordFallback(metrics.OpSummarize)
			reports = []provider.InsightReport{}
		}
	}()

	tasks := make([]runner.Task[provider.InsightReport], 0, len(e.adapters))
	for _, a := range e.adapters {
		tasks = append(tasks, runner.Task[provider.InsightReport]{
			Provider: a.ID(),
			Run: func(ctx context.Context) (provider.InsightReport, error) {
				return e.summarizeOne(ctx, a, ds)
			},
		})
	}

	out := runner.Run(ctx, e.runner(), tasks)

	reports = out.Results
	if reports == nil {
		reports = []provider.InsightReport{}
	}
	span.SetAttributes(attribute.Int("insights.reports", len(reports)))
	e.logger.Info("insights generated", "reports", len(reports), "failures", len(out.Failures))
	return reports
}

func (e *Engine) summarizeOne(ctx context.Context, a provider.Adapter, ds record.Dataset) (r provider.InsightReport, err error) {
	id := a.ID()
	ctx, span := e.tracer.Start(ctx, "provider.summarize", trace.WithAttributes(attribute.String("provider", string(id))))
	start := time.Now()
	status := metrics.StatusPanic
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("%w: %v", runner.ErrPanic, rec)
		}
		metrics.RecordProviderCall(string(id), metrics.OpSummarize, status, time.Since(start).Seconds())
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	r, err = a.Summarize(ctx, ds)
	if err != nil {
		status = metrics.StatusError
		return provider.InsightReport{}, err
	}
	status = metrics.StatusSuccess
	if r.Provider == "" {
		r.Provider = id
	}
	return r, nil
}

// ValidateConfiguration checks the configuration the engine was built with.
func (e *Engine) ValidateConfiguration() config.Report {
	return e.cfg.Validate()
}

// Status reports the availability of every known backend.
func (e *Engine) Status() ServiceStatus {
	s := ServiceStatus{Services: make(map[provider.ID]bool, len(provider.KnownIDs))}
	for _, id := range provider.KnownIDs {
		s.Services[id] = false
	}
	for _, a := range e.adapters {
		if !s.Services[a.ID()] {
			s.Services[a.ID()] = true
			s.TotalEnabled++
		}
	}
	return s
}

func (e *Engine) runner() *runner.Runner {
	return runner.New(e.logger).WithCallbacks(e.callbacks)
}

func describeFailures(fs []runner.Failure) string {
	parts := make([]string, 0, len(fs))
	for _, f := range fs {
		parts = append(parts, fmt.Sprintf("%s: %v", f.Provider, f.Err))
	}
	return strings.Join(parts, "; ")
}
