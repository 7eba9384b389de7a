package ui

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/johnayoung/jazamiti-consensus/internal/consensus"
	"github.com/johnayoung/jazamiti-consensus/internal/provider"
	"github.com/johnayoung/jazamiti-consensus/internal/rules"
)

func TestProgress_Callbacks(t *testing.T) {
	var buf bytes.Buffer
	p := NewProgress(&buf, "Validating", []provider.ID{provider.OpenAIID, provider.ClaudeID}, true)
	cb := p.Callbacks()

	cb.OnStart(provider.OpenAIID)
	cb.OnStart(provider.ClaudeID)
	cb.OnComplete(provider.OpenAIID)
	cb.OnError(provider.ClaudeID, errors.New("rate limited"))

	s, ok := p.State(provider.OpenAIID)
	require.True(t, ok)
	assert.Equal(t, StatusComplete, s.Status)

	s, ok = p.State(provider.ClaudeID)
	require.True(t, ok)
	assert.Equal(t, StatusFailed, s.Status)
	assert.EqualError(t, s.Error, "rate limited")

	_, ok = p.State(provider.GeminiID)
	assert.False(t, ok)
}

func TestProgress_QuietWritesNothing(t *testing.T) {
	var buf bytes.Buffer
	p := NewProgress(&buf, "Validating", []provider.ID{provider.OpenAIID}, true)

	p.Start()
	p.ProviderStarted(provider.OpenAIID)
	p.Stop()

	assert.Zero(t, buf.Len())
}

func TestProgress_ResetKeepsCallbacksBound(t *testing.T) {
	var buf bytes.Buffer
	p := NewProgress(&buf, "first", []provider.ID{provider.OpenAIID}, true)
	cb := p.Callbacks()

	cb.OnComplete(provider.OpenAIID)
	p.Reset("second", []provider.ID{provider.OpenAIID, provider.GeminiID})

	s, ok := p.State(provider.OpenAIID)
	require.True(t, ok)
	assert.Equal(t, StatusPending, s.Status)

	cb.OnError(provider.GeminiID, errors.New("quota exceeded"))
	s, ok = p.State(provider.GeminiID)
	require.True(t, ok)
	assert.Equal(t, StatusFailed, s.Status)
}

func TestProgress_RendersAcrossRestarts(t *testing.T) {
	var buf bytes.Buffer
	p := NewProgress(&buf, "Validating rec-1", []provider.ID{provider.ClaudeID}, false)

	p.Start()
	p.ProviderCompleted(provider.ClaudeID)
	p.Stop()

	p.Reset("Validating rec-2", []provider.ID{provider.ClaudeID})
	p.Start()
	p.Stop()
	p.Stop()

	out := buf.String()
	assert.Contains(t, out, "Validating rec-1")
	assert.Contains(t, out, "Validating rec-2")
	assert.Contains(t, out, "Claude")
}

func TestPrintChecks(t *testing.T) {
	var buf bytes.Buffer

	PrintChecks(&buf, []rules.Check{
		{Name: rules.NameStructure, Passed: true, Message: "Data structure is valid"},
		{Name: rules.NameGPS, Passed: false, Message: "GPS coordinates validation failed", Violations: []string{"Record 2: GPS coordinates outside Kenya bounds"}},
	})

	out := buf.String()
	assert.Contains(t, out, "Data structure is valid")
	assert.Contains(t, out, "Record 2: GPS coordinates outside Kenya bounds")
}

func TestPrintConsensus(t *testing.T) {
	var buf bytes.Buffer

	PrintConsensus(&buf, "rec-1", consensus.Result{
		FinalDecision:    true,
		Confidence:       0.85,
		ConsensusReached: true,
		Verdicts:         []provider.Verdict{{IsValid: true, Confidence: 0.85, Reasoning: "ok", Provider: provider.OpenAIID}},
		Reasoning:        "Consensus Analysis: 1/1 models agree the record is valid.",
	})

	out := buf.String()
	assert.Contains(t, out, "VALID")
	assert.Contains(t, out, "85.0%")
	assert.Contains(t, out, "strong consensus")
}

func TestPrintInsights_Empty(t *testing.T) {
	var buf bytes.Buffer
	PrintInsights(&buf, nil)
	assert.Contains(t, buf.String(), "No AI insights available")
}

func TestPrintSummary(t *testing.T) {
	var buf bytes.Buffer
	PrintSummary(&buf, 4, 3, 2, false, 1500*time.Millisecond)

	out := buf.String()
	assert.Contains(t, out, "3 valid")
	assert.Contains(t, out, "1 invalid")
	assert.Contains(t, out, "Strong consensus: 2/4")
	assert.Contains(t, out, "1.5s")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "hello", truncate("hello", 10))
	assert.Equal(t, "a b", truncate(" a\nb ", 10))
	assert.Equal(t, "abcd…", truncate("abcdefgh", 5))
}
