package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"text/template"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/time/rate"

	"github.com/johnayoung/jazamiti-consensus/internal/record"
)

// ErrInvalidVerdict is returned when a backend's validation answer cannot be
// decoded into a well-formed Verdict.
var ErrInvalidVerdict = errors.New("invalid verdict payload")

// Adapter is the capability boundary around one AI backend: it validates a
// single record and summarizes a dataset. Implementations hold no per-call
// state and are safe for concurrent use.
type Adapter interface {
	ID() ID
	Validate(ctx context.Context, rec record.Record) (Verdict, error)
	Summarize(ctx context.Context, ds record.Dataset) (InsightReport, error)
}

// Verdict is one backend's opinion on a record. It is only produced by a
// successful call; failures surface as errors.
type Verdict struct {
	IsValid     bool     `json:"is_valid"`
	Confidence  float64  `json:"confidence"`
	Reasoning   string   `json:"reasoning"`
	Suggestions []string `json:"suggestions,omitempty"`
	Provider    ID       `json:"provider"`
}

// InsightReport is one backend's free-text analysis of a dataset.
type InsightReport struct {
	Content     string    `json:"content"`
	Provider    ID        `json:"provider"`
	GeneratedAt time.Time `json:"generated_at"`
	Usage       *Usage    `json:"usage,omitempty"`
}

// Settings binds an adapter to its model and sampling parameters.
type Settings struct {
	Model       string
	Temperature float64
	MaxTokens   int
}

const validationSystemPrompt = `You are an expert in forestry data validation. Analyze the provided tree planting record and determine if it's valid. Consider factors like scientific accuracy, data completeness, and logical consistency. Respond with a JSON object containing: isValid (boolean), confidence (0-1), reasoning (string), and suggestions (string array, optional).`

const validationPromptTemplate = `Please validate this tree planting record:

Record Data:
{{.Record}}

Validation Criteria:
1. Scientific name accuracy (if provided)
2. Tree type validity for Kenya region
3. GPS coordinates reasonableness
4. Image quality and relevance (if provided)
5. Data completeness and consistency
6. Logical relationships between fields

Respond with a JSON object containing:
- isValid: boolean
- confidence: number (0-1)
- reasoning: string
- suggestions: string array (optional)

Please provide a detailed analysis.`

const insightSystemPrompt = `You are a forestry data analyst. Provide detailed insights about tree planting patterns, data quality, and recommendations for improvement.`

const insightPromptTemplate = `Analyze the following tree planting data and provide insights about patterns, trends, and recommendations for improvement:

{{.Dataset}}`

var (
	validationTmpl = template.Must(template.New("validation").Parse(validationPromptTemplate))
	insightTmpl    = template.Must(template.New("insight").Parse(insightPromptTemplate))
)

// LLM adapts a chat-completion Provider into an Adapter.
type LLM struct {
	id       ID
	provider Provider
	settings Settings
	limiter  *rate.Limiter
	now      func() time.Time
}

// NewLLM binds p to the given backend ID and settings.
func NewLLM(id ID, p Provider, s Settings) *LLM {
	return &LLM{
		id:       id,
		provider: p,
		settings: s,
		now:      time.Now,
	}
}

// WithLimiter throttles every backend call through l and returns the adapter.
// A nil limiter leaves calls unthrottled.
func (l *LLM) WithLimiter(lim *rate.Limiter) *LLM {
	l.limiter = lim
	return l
}

// ID returns the backend this adapter talks to.
func (l *LLM) ID() ID { return l.id }

// Validate asks the backend for a JSON verdict on rec.
func (l *LLM) Validate(ctx context.Context, rec record.Record) (Verdict, error) {
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return Verdict{}, fmt.Errorf("marshaling record: %w", err)
	}

	var buf bytes.Buffer
	if err := validationTmpl.Execute(&buf, struct{ Record string }{string(data)}); err != nil {
		return Verdict{}, fmt.Errorf("executing template: %w", err)
	}

	if err := l.wait(ctx); err != nil {
		return Verdict{}, fmt.Errorf("%s validation: %w", l.id, err)
	}

	resp, err := l.provider.Query(ctx, Request{
		Model:       l.settings.Model,
		System:      validationSystemPrompt,
		Prompt:      buf.String(),
		Temperature: l.settings.Temperature,
		MaxTokens:   l.settings.MaxTokens,
		JSON:        true,
	})
	if err != nil {
		return Verdict{}, fmt.Errorf("%s validation: %w", l.id, err)
	}

	v, err := ParseVerdict(resp.Content)
	if err != nil {
		return Verdict{}, fmt.Errorf("%s validation: %w", l.id, err)
	}
	v.Provider = l.id
	return v, nil
}

// Summarize asks the backend for a free-text analysis of ds.
func (l *LLM) Summarize(ctx context.Context, ds record.Dataset) (InsightReport, error) {
	data, err := json.MarshalIndent(ds, "", "  ")
	if err != nil {
		return InsightReport{}, fmt.Errorf("marshaling dataset: %w", err)
	}

	var buf bytes.Buffer
	if err := insightTmpl.Execute(&buf, struct{ Dataset string }{string(data)}); err != nil {
		return InsightReport{}, fmt.Errorf("executing template: %w", err)
	}

	if err := l.wait(ctx); err != nil {
		return InsightReport{}, fmt.Errorf("%s insights: %w", l.id, err)
	}

	resp, err := l.provider.Query(ctx, Request{
		Model:       l.settings.Model,
		System:      insightSystemPrompt,
		Prompt:      buf.String(),
		Temperature: l.settings.Temperature,
		MaxTokens:   l.settings.MaxTokens,
	})
	if err != nil {
		return InsightReport{}, fmt.Errorf("%s insights: %w", l.id, err)
	}
	if strings.TrimSpace(resp.Content) == "" {
		return InsightReport{}, fmt.Errorf("%s insights: %w", l.id, ErrEmptyResponse)
	}

	return InsightReport{
		Content:     resp.Content,
		Provider:    l.id,
		GeneratedAt: l.now(),
		Usage:       resp.Usage,
	}, nil
}

func (l *LLM) wait(ctx context.Context) error {
	if l.limiter == nil {
		return nil
	}
	return l.limiter.Wait(ctx)
}

// verdictPayload is the wire shape the validation prompt asks for.
type verdictPayload struct {
	IsValid     *bool    `json:"isValid" validate:"required"`
	Confidence  *float64 `json:"confidence" validate:"required,gte=0,lte=1"`
	Reasoning   string   `json:"reasoning"`
	Suggestions []string `json:"suggestions"`
}

var verdictValidate = validator.New()

// ParseVerdict decodes a backend answer into a Verdict. The JSON object may be
// bare or wrapped in prose or a Markdown code fence. The Provider field is
// left for the caller to set.
func ParseVerdict(content string) (Verdict, error) {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end < start {
		return Verdict{}, fmt.Errorf("%w: no JSON object in response", ErrInvalidVerdict)
	}

	var p verdictPayload
	if err := json.Unmarshal([]byte(content[start:end+1]), &p); err != nil {
		return Verdict{}, fmt.Errorf("%w: %v", ErrInvalidVerdict, err)
	}
	if err := verdictValidate.Struct(p); err != nil {
		return Verdict{}, fmt.Errorf("%w: %v", ErrInvalidVerdict, err)
	}

	reasoning := strings.TrimSpace(p.Reasoning)
	if reasoning == "" {
		reasoning = "No reasoning provided"
	}

	return Verdict{
		IsValid:     *p.IsValid,
		Confidence:  *p.Confidence,
		Reasoning:   reasoning,
		Suggestions: p.Suggestions,
	}, nil
}
