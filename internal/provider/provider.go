package provider

import (
	"context"
	"errors"
	"time"
)

// ErrEmptyResponse is returned when a backend answers without any content.
var ErrEmptyResponse = errors.New("empty response from provider")

// ID identifies an AI backend.
type ID string

// Known backends.
const (
	OpenAIID ID = "openai"
	GeminiID ID = "gemini"
	ClaudeID ID = "claude"
)

// KnownIDs lists the supported backends in their canonical order.
var KnownIDs = []ID{OpenAIID, GeminiID, ClaudeID}

// IsKnown reports whether id is a supported backend.
func IsKnown(id ID) bool {
	for _, k := range KnownIDs {
		if k == id {
			return true
		}
	}
	return false
}

// DisplayName returns the human-facing name of a backend.
func (id ID) DisplayName() string {
	switch id {
	case OpenAIID:
		return "OpenAI"
	case GeminiID:
		return "Gemini"
	case ClaudeID:
		return "Claude"
	default:
		return string(id)
	}
}

// Provider abstracts a single chat-completion round trip to an LLM API.
type Provider interface {
	// Query sends a prompt and returns the complete response.
	Query(ctx context.Context, req Request) (Response, error)
}

// Request contains all inputs for an LLM query.
type Request struct {
	Model       string
	System      string
	Prompt      string
	Temperature float64
	MaxTokens   int
	// JSON asks the backend to constrain its output to a JSON object when it supports that.
	JSON bool
}

// Usage is the token accounting reported by a backend.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Response contains the result of an LLM query.
type Response struct {
	Model    string        `json:"model"`
	Content  string        `json:"content"`
	Provider string        `json:"provider"`
	Latency  time.Duration `json:"latency_ms"`
	Usage    *Usage        `json:"usage,omitempty"`
}

// ProviderFunc allows functions to implement Provider (adapter pattern).
// Useful for testing and simple inline implementations.
type ProviderFunc func(ctx context.Context, req Request) (Response, error)

func (f ProviderFunc) Query(ctx context.Context, req Request) (Response, error) {
	return f(ctx, req)
}
