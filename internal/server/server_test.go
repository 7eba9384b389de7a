package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/johnayoung/jazamiti-consensus/internal/config"
	"github.com/johnayoung/jazamiti-consensus/internal/consensus"
	"github.com/johnayoung/jazamiti-consensus/internal/provider"
	"github.com/johnayoung/jazamiti-consensus/internal/rules"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func backend(id provider.ID, content string, err error) provider.Adapter {
	return provider.NewLLM(id, provider.ProviderFunc(func(ctx context.Context, req provider.Request) (provider.Response, error) {
		if err != nil {
			return provider.Response{}, err
		}
		if req.JSON {
			return provider.Response{Content: content}, nil
		}
		return provider.Response{Content: "Insight from " + string(id)}, nil
	}), provider.Settings{Model: "test-model"})
}

// enabledConfig returns a valid configuration with ids enabled.
func enabledConfig(threshold int, ids ...provider.ID) config.Config {
	cfg := config.Default()
	cfg.ConsensusThreshold = threshold
	for _, id := range ids {
		pc := cfg.Providers[id]
		pc.Enabled = true
		pc.APIKey = "test-key"
		cfg.Providers[id] = pc
	}
	return cfg
}

func newTestServer(t *testing.T) *Server {
	t.Helper()

	cfg := enabledConfig(2, provider.OpenAIID, provider.ClaudeID)

	engine := consensus.New(cfg, []provider.Adapter{
		backend(provider.OpenAIID, `{"isValid": true, "confidence": 0.9, "reasoning": "Species fits the region"}`, nil),
		backend(provider.ClaudeID, "```json\n{\"isValid\": true, \"confidence\": 0.7, \"reasoning\": \"Plausible\"}\n```", nil),
	})
	return New(engine, nil, "test")
}

func do(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func TestHandleHealth(t *testing.T) {
	w := do(t, newTestServer(t), http.MethodGet, "/health", "")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "test", resp.Version)
}

func TestRequestIDIsEchoed(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	w := httptest.NewRecorder()

	newTestServer(t).Handler().ServeHTTP(w, req)

	assert.Equal(t, "abc-123", w.Header().Get("X-Request-ID"))
}

func TestHandleStatus(t *testing.T) {
	w := do(t, newTestServer(t), http.MethodGet, "/v1/status", "")
	require.Equal(t, http.StatusOK, w.Code)

	var status consensus.ServiceStatus
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	assert.Equal(t, 2, status.TotalEnabled)
	assert.True(t, status.Services[provider.OpenAIID])
	assert.False(t, status.Services[provider.GeminiID])
}

func TestHandleConfigValidate(t *testing.T) {
	w := do(t, newTestServer(t), http.MethodGet, "/v1/config/validate", "")
	require.Equal(t, http.StatusOK, w.Code)

	var report config.Report
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &report))
	assert.True(t, report.IsValid)
}

func TestHandleValidate(t *testing.T) {
	body := `{"record": {"id": "rec-1", "name": "Mango", "region": "Nairobi", "treeType": "Mango", "gps": {"latitude": -1.29, "longitude": 36.82}}}`

	w := do(t, newTestServer(t), http.MethodPost, "/v1/validate", body)
	require.Equal(t, http.StatusOK, w.Code)

	var resp ValidateResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "rec-1", resp.RecordID)
	assert.Len(t, resp.Rules, 5)
	assert.Equal(t, rules.NameStructure, resp.Rules[0].Name)
	assert.True(t, resp.Consensus.FinalDecision)
	assert.True(t, resp.Consensus.ConsensusReached)
	assert.InDelta(t, 0.8, resp.Consensus.Confidence, 1e-9)
	assert.Len(t, resp.Consensus.Verdicts, 2)
}

func TestHandleValidate_BadRequest(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "malformed json", body: `{"record":`},
		{name: "missing record", body: `{}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, newTestServer(t), http.MethodPost, "/v1/validate", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)

			var resp ErrorResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, "INVALID_REQUEST", resp.Code)
		})
	}
}

func TestHandleValidate_AllBackendsFail(t *testing.T) {
	engine := consensus.New(enabledConfig(1, provider.OpenAIID), []provider.Adapter{
		backend(provider.OpenAIID, "", errors.New("connection refused")),
	})
	s := New(engine, nil, "test")

	w := do(t, s, http.MethodPost, "/v1/validate", `{"record": {"id": "rec-2", "name": "Cedar"}}`)
	require.Equal(t, http.StatusOK, w.Code)

	var resp ValidateResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.Consensus.FinalDecision)
	assert.Empty(t, resp.Consensus.Verdicts)
	assert.Contains(t, resp.Consensus.Reasoning, "connection refused")
}

func TestRecordRoutes_InvalidConfiguration(t *testing.T) {
	var calls atomic.Int32
	adapter := provider.NewLLM(provider.OpenAIID, provider.ProviderFunc(func(ctx context.Context, req provider.Request) (provider.Response, error) {
		calls.Add(1)
		return provider.Response{Content: `{"isValid": true, "confidence": 0.9, "reasoning": "ok"}`}, nil
	}), provider.Settings{Model: "test-model"})

	// Nothing enabled, so the report is invalid even though an adapter exists.
	s := New(consensus.New(config.Default(), []provider.Adapter{adapter}), nil, "test")

	tests := []struct {
		name string
		path string
		body string
	}{
		{name: "validate", path: "/v1/validate", body: `{"record": {"id": "r1", "name": "n"}}`},
		{name: "insights", path: "/v1/insights", body: `{"records": [{"id": "r1", "name": "n"}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, s, http.MethodPost, tt.path, tt.body)
			require.Equal(t, http.StatusServiceUnavailable, w.Code)

			var resp ConfigErrorResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, "INVALID_CONFIGURATION", resp.Code)
			assert.False(t, resp.Report.IsValid)
			assert.Contains(t, resp.Report.Errors, config.MsgNoProviders)
		})
	}

	assert.EqualValues(t, 0, calls.Load())

	// Read-only routes still answer.
	assert.Equal(t, http.StatusOK, do(t, s, http.MethodGet, "/v1/config/validate", "").Code)
	assert.Equal(t, http.StatusOK, do(t, s, http.MethodGet, "/v1/status", "").Code)
}

func TestHandleInsights(t *testing.T) {
	w := do(t, newTestServer(t), http.MethodPost, "/v1/insights", `{"records": [{"id": "a", "name": "Mango"}]}`)
	require.Equal(t, http.StatusOK, w.Code)

	var resp InsightsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Reports, 2)
	assert.True(t, strings.HasPrefix(resp.Reports[0].Content, "Insight from "))
}

func TestHandleInsights_EmptyRecords(t *testing.T) {
	w := do(t, newTestServer(t), http.MethodPost, "/v1/insights", `{"records": []}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMetricsRoute(t *testing.T) {
	s := newTestServer(t)
	do(t, s, http.MethodPost, "/v1/validate", `{"record": {"id": "m", "name": "Metric"}}`)

	w := do(t, s, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "jazamiti_consensus_decisions_total")
}
