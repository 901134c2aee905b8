package validator

import (
	"math/rand"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/manideep395/QueryPilot-AI/pkg/models"
)

func testSchema() *models.SchemaMetadata {
	return &models.SchemaMetadata{
		Version: 1,
		Tables: map[string]models.Table{
			"customers": {
				Name: "customers",
				Columns: []models.Column{
					{Name: "id", Type: "INTEGER"},
					{Name: "name", Type: "VARCHAR"},
					{Name: "city", Type: "VARCHAR"},
				},
			},
			"orders": {
				Name: "orders",
				Columns: []models.Column{
					{Name: "id", Type: "INTEGER"},
					{Name: "customer_id", Type: "INTEGER"},
					{Name: "total", Type: "DOUBLE"},
				},
			},
		},
	}
}

func candidate(text string, params ...any) *models.SQLCandidate {
	return &models.SQLCandidate{Text: text, Params: params}
}

func TestValidate(t *testing.T) {
	v := New(zerolog.Nop())
	schema := testSchema()
	visible := []string{"customers", "orders"}

	tests := []struct {
		name      string
		candidate *models.SQLCandidate
		accepted  bool
		kind      string
	}{
		{
			name:      "plain projection",
			candidate: candidate("SELECT * FROM customers"),
			accepted:  true,
		},
		{
			name:      "parameterized filter",
			candidate: candidate("SELECT * FROM orders WHERE total > ?", 100),
			accepted:  true,
		},
		{
			name:      "qualified join",
			candidate: candidate("SELECT customers.name FROM customers JOIN orders ON orders.customer_id = customers.id WHERE orders.total >= ?", 5),
			accepted:  true,
		},
		{
			name:      "aggregate",
			candidate: candidate("SELECT COUNT(*) FROM orders"),
			accepted:  true,
		},
		{
			name:      "trailing semicolon tolerated",
			candidate: candidate("SELECT * FROM customers;"),
			accepted:  true,
		},
		{
			name:      "drop statement",
			candidate: candidate("DROP TABLE customers"),
			kind:      ViolationNonRead,
		},
		{
			name:      "insert statement",
			candidate: candidate("INSERT INTO customers VALUES (?)", 1),
			kind:      ViolationNonRead,
		},
		{
			name:      "update statement",
			candidate: candidate("UPDATE customers SET name = ?", "x"),
			kind:      ViolationNonRead,
		},
		{
			name:      "stacked statements",
			candidate: candidate("SELECT * FROM customers; DROP TABLE customers"),
			kind:      ViolationMultiStatement,
		},
		{
			name:      "quoted literal",
			candidate: candidate("SELECT * FROM customers WHERE name = 'bob'"),
			kind:      ViolationRawLiteral,
		},
		{
			name:      "numeric literal",
			candidate: candidate("SELECT * FROM orders WHERE total > 100"),
			kind:      ViolationRawLiteral,
		},
		{
			name:      "union injection",
			candidate: candidate("SELECT name FROM customers UNION SELECT id FROM orders"),
			kind:      ViolationInjection,
		},
		{
			name:      "comment marker",
			candidate: candidate("SELECT * FROM customers -- hidden"),
			kind:      ViolationInjection,
		},
		{
			name:      "tautology",
			candidate: candidate("SELECT * FROM customers WHERE id = ? OR 1=1", 1),
			kind:      ViolationInjection,
		},
		{
			name:      "invisible table",
			candidate: candidate("SELECT * FROM secrets"),
			kind:      ViolationTableNotVisible,
		},
		{
			name:      "unknown column",
			candidate: candidate("SELECT * FROM customers WHERE salary > ?", 10),
			kind:      ViolationUnknownColumn,
		},
		{
			name:      "unbalanced quote",
			candidate: candidate("SELECT * FROM customers WHERE name = 'bob"),
			kind:      ViolationMalformed,
		},
		{
			name:      "unbalanced parens",
			candidate: candidate("SELECT COUNT( FROM customers"),
			kind:      ViolationMalformed,
		},
		{
			name:      "empty statement",
			candidate: candidate("   "),
			kind:      ViolationMalformed,
		},
		{
			name:      "not a select",
			candidate: candidate("EXPLAIN SELECT * FROM customers"),
			kind:      ViolationNonRead,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			verdict := v.Validate(tt.candidate, schema, visible)
			if tt.accepted {
				assert.True(t, verdict.Accepted, "violations: %v", verdict.Violations)
				assert.Empty(t, verdict.Violations)
				return
			}
			require.False(t, verdict.Accepted)
			kinds := make([]string, len(verdict.Violations))
			for i, viol := range verdict.Violations {
				kinds[i] = viol.Kind
			}
			assert.Contains(t, kinds, tt.kind)
		})
	}
}

// Validation must reject any candidate touching a table outside the visible
// set, for every possible visible subset.
func TestValidate_VisibilityProperty(t *testing.T) {
	v := New(zerolog.Nop())
	schema := testSchema()
	tables := []string{"customers", "orders"}
	rng := rand.New(rand.NewSource(42))

	for i := 0; i < 200; i++ {
		var visible []string
		inSet := map[string]bool{}
		for _, tab := range tables {
			if rng.Intn(2) == 1 {
				visible = append(visible, tab)
				inSet[tab] = true
			}
		}
		target := tables[rng.Intn(len(tables))]
		verdict := v.Validate(candidate("SELECT * FROM "+target), schema, visible)

		if inSet[target] {
			assert.True(t, verdict.Accepted, "table %s visible %v", target, visible)
		} else {
			assert.False(t, verdict.Accepted, "table %s visible %v", target, visible)
		}
	}
}

func TestValidate_RunsOnEveryAttempt(t *testing.T) {
	v := New(zerolog.Nop())
	schema := testSchema()

	// The same candidate flips verdict when visibility changes between
	// attempts; validation must not memoize.
	c := candidate("SELECT * FROM customers")
	assert.True(t, v.Validate(c, schema, []string{"customers"}).Accepted)
	assert.False(t, v.Validate(c, schema, nil).Accepted)
	assert.True(t, v.Validate(c, schema, []string{"customers"}).Accepted)
}
