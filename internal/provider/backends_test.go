package provider

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenAI_Query(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		raw, _ := io.ReadAll(r.Body)
		assert.NoError(t, json.Unmarshal(raw, &body))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"choices": [{"index": 0, "message": {"role": "assistant", "content": "{\"isValid\": true}"}, "finish_reason": "stop"}],
			"usage": {"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15}
		}`))
	}))
	defer srv.Close()

	p, err := NewOpenAI("sk-test", WithOpenAIBaseURL(srv.URL+"/v1"), WithOpenAIHTTPClient(srv.Client()))
	require.NoError(t, err)

	resp, err := p.Query(context.Background(), Request{
		Model:       "gpt-4o",
		System:      "system text",
		Prompt:      "user text",
		Temperature: 0.5,
		MaxTokens:   1000,
		JSON:        true,
	})
	require.NoError(t, err)

	assert.Equal(t, `{"isValid": true}`, resp.Content)
	assert.Equal(t, "openai", resp.Provider)
	require.NotNil(t, resp.Usage)
	assert.Equal(t, 15, resp.Usage.TotalTokens)

	assert.Equal(t, "gpt-4o", body["model"])
	msgs, ok := body["messages"].([]any)
	require.True(t, ok)
	assert.Len(t, msgs, 2)
	format, ok := body["response_format"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "json_object", format["type"])
}

func TestOpenAI_Models(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/models", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"object": "list", "data": [{"id": "gpt-4o-mini", "object": "model"}, {"id": "gpt-4o", "object": "model"}]}`))
	}))
	defer srv.Close()

	p, err := NewOpenAI("sk-test", WithOpenAIBaseURL(srv.URL+"/v1"), WithOpenAIHTTPClient(srv.Client()))
	require.NoError(t, err)

	models, err := p.Models(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"gpt-4o", "gpt-4o-mini"}, models)
}

func TestAnthropic_Query(t *testing.T) {
	var body anthropicRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/messages", r.URL.Path)
		assert.Equal(t, "ck-test", r.Header.Get("x-api-key"))
		assert.Equal(t, anthropicVersion, r.Header.Get("anthropic-version"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))

		_, _ = w.Write([]byte(`{"content": [{"type": "text", "text": "hello"}], "usage": {"input_tokens": 7, "output_tokens": 3}}`))
	}))
	defer srv.Close()

	p, err := NewAnthropic("ck-test", WithAnthropicBaseURL(srv.URL), WithAnthropicHTTPClient(srv.Client()))
	require.NoError(t, err)

	resp, err := p.Query(context.Background(), Request{Model: "claude-3-5-sonnet-20241022", System: "sys", Prompt: "hi", Temperature: 0.1, MaxTokens: 1000})
	require.NoError(t, err)

	assert.Equal(t, "hello", resp.Content)
	assert.Equal(t, "claude", resp.Provider)
	assert.Equal(t, 10, resp.Usage.TotalTokens)
	assert.Equal(t, "sys", body.System)
	assert.Equal(t, 1000, body.MaxTokens)
	require.NotNil(t, body.Temperature)
	assert.InDelta(t, 0.1, *body.Temperature, 1e-9)
}

func TestAnthropic_Errors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{name: "api error", status: http.StatusTooManyRequests, body: `{"error": {"message": "rate limited"}}`},
		{name: "no content", status: http.StatusOK, body: `{"content": []}`},
		{name: "non-text block", status: http.StatusOK, body: `{"content": [{"type": "tool_use"}]}`},
		{name: "garbage", status: http.StatusOK, body: `<html>`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			p, err := NewAnthropic("ck-test", WithAnthropicBaseURL(srv.URL))
			require.NoError(t, err)
			_, err = p.Query(context.Background(), Request{Model: "m", Prompt: "p"})
			assert.Error(t, err)
		})
	}
}

func TestGoogle_Query(t *testing.T) {
	var body geminiRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/models/gemini-1.5-pro:generateContent", r.URL.Path)
		assert.Equal(t, "gk-test", r.Header.Get("x-goog-api-key"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))

		_, _ = w.Write([]byte(`{
			"candidates": [{"content": {"parts": [{"text": "{\"isValid\":"}, {"text": " false}"}]}}],
			"usageMetadata": {"promptTokenCount": 4, "candidatesTokenCount": 2, "totalTokenCount": 6}
		}`))
	}))
	defer srv.Close()

	p, err := NewGoogle("gk-test", WithGoogleBaseURL(srv.URL), WithGoogleHTTPClient(srv.Client()))
	require.NoError(t, err)

	resp, err := p.Query(context.Background(), Request{Model: "gemini-1.5-pro", System: "sys", Prompt: "p", MaxTokens: 1000, JSON: true})
	require.NoError(t, err)

	assert.Equal(t, `{"isValid": false}`, resp.Content)
	assert.Equal(t, 6, resp.Usage.TotalTokens)
	assert.Equal(t, "application/json", body.GenerationConfig.ResponseMimeType)
	assert.Equal(t, 1000, body.GenerationConfig.MaxOutputTokens)
	require.NotNil(t, body.SystemInstruction)
	assert.Equal(t, "sys", body.SystemInstruction.Parts[0].Text)
}

func TestGoogle_EmptyCandidates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"candidates": []}`))
	}))
	defer srv.Close()

	p, err := NewGoogle("gk-test", WithGoogleBaseURL(srv.URL))
	require.NoError(t, err)
	_, err = p.Query(context.Background(), Request{Model: "m", Prompt: "p"})
	assert.ErrorIs(t, err, ErrEmptyResponse)
}

func TestConstructors_RequireKey(t *testing.T) {
	_, err := NewOpenAI("")
	assert.Error(t, err)
	_, err = NewAnthropic("")
	assert.Error(t, err)
	_, err = NewGoogle("")
	assert.Error(t, err)
}
