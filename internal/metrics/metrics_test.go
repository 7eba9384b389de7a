package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordProviderCall(t *testing.T) {
	c := providerCalls.WithLabelValues("test-provider", OpValidate, StatusError)
	before := testutil.ToFloat64(c)

	RecordProviderCall("test-provider", OpValidate, StatusError, 0.42)
	RecordProviderCall("test-provider", OpValidate, StatusError, 0.1)

	assert.Equal(t, before+2, testutil.ToFloat64(c))
}

func TestRecordDecision(t *testing.T) {
	tests := []struct {
		name      string
		valid     bool
		reached   bool
		verdicts  int
		wantLabel [2]string
	}{
		{name: "strong valid", valid: true, reached: true, verdicts: 3, wantLabel: [2]string{"valid", "strong"}},
		{name: "weak invalid", valid: false, reached: false, verdicts: 1, wantLabel: [2]string{"invalid", "weak"}},
		{name: "no verdicts", valid: false, reached: false, verdicts: 0, wantLabel: [2]string{"invalid", "none"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := consensusDecisions.WithLabelValues(tt.wantLabel[0], tt.wantLabel[1])
			before := testutil.ToFloat64(c)
			RecordDecision(tt.valid, tt.reached, tt.verdicts, 0.5)
			assert.Equal(t, before+1, testutil.ToFloat64(c))
		})
	}
}

func TestRecordFallback(t *testing.T) {
	c := consensusFallbacks.WithLabelValues(OpSummarize)
	before := testutil.ToFloat64(c)
	RecordFallback(OpSummarize)
	assert.Equal(t, before+1, testutil.ToFloat64(c))
}
