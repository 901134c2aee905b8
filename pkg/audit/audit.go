// Package audit observes the pipeline's attempt trail. Sinks are
// append-only observers; they never influence pipeline state.
package audit

import (
	"github.com/rs/zerolog"

	"github.com/manideep395/QueryPilot-AI/pkg/models"
)

// Sink receives every attempt record as it is appended to a trail.
type Sink interface {
	Record(requestID string, attempt models.AttemptRecord)
}

// LogSink writes attempt records as structured log events.
type LogSink struct {
	logger zerolog.Logger
}

// NewLogSink creates a sink over the given logger.
func NewLogSink(logger zerolog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

// Record emits one attempt.
func (s *LogSink) Record(requestID string, attempt models.AttemptRecord) {
	ev := s.logger.Info().
		Str("request_id", requestID).
		Str("stage", attempt.Stage).
		Time("timestamp", attempt.Timestamp)
	if attempt.Candidate != nil {
		ev = ev.Str("sql", attempt.Candidate.Text).Str("rule", attempt.Candidate.Derivation.RuleID)
	}
	if attempt.Verdict != nil {
		ev = ev.Bool("accepted", attempt.Verdict.Accepted).Int("violations", len(attempt.Verdict.Violations))
	}
	if attempt.Err != "" {
		ev = ev.Str("error", attempt.Err)
	}
	ev.Msg("Pipeline attempt")
}

// NoOpSink discards records.
type NoOpSink struct{}

// NewNoOpSink creates a sink that discards everything.
func NewNoOpSink() *NoOpSink { return &NoOpSink{} }

// Record does nothing.
func (s *NoOpSink) Record(string, models.AttemptRecord) {}
