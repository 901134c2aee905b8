package models

import (
	"time"
)

// Derivation records how a candidate was produced, for reproducibility.
type Derivation struct {
	RuleID        string `json:"rule_id"`
	SchemaVersion int64  `json:"schema_version"`
}

// SQLCandidate is one concrete, executable SQL proposal for a given intent.
// Immutable once created; a failed candidate is superseded, never mutated.
type SQLCandidate struct {
	Text          string     `json:"text"`
	Params        []any      `json:"params,omitempty"`
	EstimatedCost float64    `json:"estimated_cost"`
	Derivation    Derivation `json:"derivation"`
}

// Violation is one reason a candidate was rejected by validation.
type Violation struct {
	Kind   string `json:"kind"`
	Detail string `json:"detail"`
}

// ValidationVerdict is the outcome of statically vetting a candidate.
type ValidationVerdict struct {
	Accepted   bool        `json:"accepted"`
	Violations []Violation `json:"violations,omitempty"`
}

// Row is a single result record in column order.
type Row []any

// ExecutionResult is the outcome of executing one validated candidate.
type ExecutionResult struct {
	Columns   []string      `json:"columns"`
	Rows      []Row         `json:"rows"`
	RowCount  int64         `json:"row_count"`
	Truncated bool          `json:"truncated,omitempty"`
	Elapsed   time.Duration `json:"elapsed"`
	BackendID string        `json:"backend_id"`
}

// Pipeline stages an attempt can fail or succeed in.
const (
	StagePlanning   = "planning"
	StageValidating = "validating"
	StageExecuting  = "executing"
)

// AttemptRecord is the append-only trace of one pipeline attempt, used both
// for correction heuristics and for audit.
type AttemptRecord struct {
	Candidate *SQLCandidate      `json:"candidate,omitempty"`
	Verdict   *ValidationVerdict `json:"verdict,omitempty"`
	Err       string             `json:"error,omitempty"`
	Stage     string             `json:"stage"`
	Timestamp time.Time          `json:"timestamp"`
}

// CacheEntry is one memoized execution result, keyed by fingerprint.
type CacheEntry struct {
	Result        *ExecutionResult `json:"result"`
	SchemaVersion int64            `json:"schema_version"`
	CreatedAt     time.Time        `json:"created_at"`
	TTL           time.Duration    `json:"ttl"`
}

// Expired reports whether the entry's time-to-live has elapsed at now.
func (e *CacheEntry) Expired(now time.Time) bool {
	return e.TTL > 0 && now.After(e.CreatedAt.Add(e.TTL))
}

// Outcome statuses returned to the transport layer.
const (
	StatusSucceeded           = "succeeded"
	StatusFailed              = "failed"
	StatusSemanticMiss        = "semantic_miss"
	StatusClarificationNeeded = "clarification_needed"
)

// Outcome is the terminal result of one pipeline request: the result or the
// failure classification, always with the full attempt trail.
type Outcome struct {
	RequestID string           `json:"request_id"`
	Status    string           `json:"status"`
	Result    *ExecutionResult `json:"result,omitempty"`
	ErrCode   string           `json:"error_code,omitempty"`
	ErrDetail string           `json:"error_detail,omitempty"`
	Trail     []AttemptRecord  `json:"trail"`
	FromCache bool             `json:"from_cache,omitempty"`
	Elapsed   time.Duration    `json:"elapsed"`
}
