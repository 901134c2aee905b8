package audit

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/manideep395/QueryPilot-AI/pkg/models"
)

func TestLogSink_Record(t *testing.T) {
	var buf bytes.Buffer
	sink := NewLogSink(zerolog.New(&buf))

	sink.Record("req-1", models.AttemptRecord{
		Candidate: &models.SQLCandidate{
			Text:       "SELECT * FROM customers",
			Derivation: models.Derivation{RuleID: "projection"},
		},
		Verdict:   &models.ValidationVerdict{Accepted: true},
		Stage:     models.StageExecuting,
		Timestamp: time.Now(),
	})

	var event map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &event))
	assert.Equal(t, "req-1", event["request_id"])
	assert.Equal(t, "executing", event["stage"])
	assert.Equal(t, "SELECT * FROM customers", event["sql"])
	assert.Equal(t, "projection", event["rule"])
	assert.Equal(t, true, event["accepted"])
}

func TestLogSink_RecordError(t *testing.T) {
	var buf bytes.Buffer
	sink := NewLogSink(zerolog.New(&buf))

	sink.Record("req-2", models.AttemptRecord{
		Stage:     models.StagePlanning,
		Err:       "planning produced no candidates",
		Timestamp: time.Now(),
	})

	var event map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &event))
	assert.Equal(t, "planning produced no candidates", event["error"])
	assert.NotContains(t, event, "sql")
}

func TestNoOpSink(t *testing.T) {
	assert.NotPanics(t, func() {
		NewNoOpSink().Record("req-3", models.AttemptRecord{Stage: models.StagePlanning})
	})
}
