package metrics

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseLabelPairs(t *testing.T) {
	tests := []struct {
		name       string
		labels     []string
		wantNames  []string
		wantValues []string
	}{
		{"empty", nil, []string{}, []string{}},
		{"single pair", []string{"status", "succeeded"}, []string{"status"}, []string{"succeeded"}},
		{
			"two pairs",
			[]string{"backend", "duckdb-main", "stage", "executing"},
			[]string{"backend", "stage"},
			[]string{"duckdb-main", "executing"},
		},
		{"dangling key dropped", []string{"status", "failed", "orphan"}, []string{"status"}, []string{"failed"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			names, values := parseLabelPairs(tt.labels)
			assert.Equal(t, tt.wantNames, names)
			assert.Equal(t, tt.wantValues, values)
		})
	}
}

func TestNoOpCollector(t *testing.T) {
	c := NewNoOpCollector()

	c.IncrementCounter(MetricRequestsTotal, "status", "succeeded")
	c.RecordHistogram(MetricRequestDuration, 0.5)
	c.RecordGauge("querypilot_pool_in_use", 3)

	timer := c.StartTimer(MetricExecutionDuration)
	assert.GreaterOrEqual(t, timer.Stop(), float64(0))
}
