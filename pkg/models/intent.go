package models

// Operation is the high-level shape of a question as understood by the
// intent capability.
type Operation string

const (
	// OperationSelect is a plain projection over one table.
	OperationSelect Operation = "select"
	// OperationAggregate applies an aggregate function over a table.
	OperationAggregate Operation = "aggregate"
	// OperationFilter is a projection with predicates.
	OperationFilter Operation = "filter"
	// OperationJoinImplied references entities spanning multiple tables.
	OperationJoinImplied Operation = "join-implied"
)

// Predicate is one comparison extracted from the question.
type Predicate struct {
	Field    string `json:"field"`
	Operator string `json:"operator"`
	Value    any    `json:"value"`
}

// Intent is the structured understanding of a question, produced by an
// intent provider. The pipeline treats it as read-only input data.
type Intent struct {
	Operation      Operation   `json:"operation"`
	TargetEntities []string    `json:"target_entities"`
	Predicates     []Predicate `json:"predicates,omitempty"`
	Aggregation    string      `json:"aggregation,omitempty"`
	TemporalHints  []string    `json:"temporal_hints,omitempty"`
	Confidence     float64     `json:"confidence"`
}
