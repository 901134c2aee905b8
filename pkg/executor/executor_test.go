package executor

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRewritePlaceholders(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  string
	}{
		{
			name:  "no placeholders",
			query: "SELECT * FROM customers",
			want:  "SELECT * FROM customers",
		},
		{
			name:  "single placeholder",
			query: "SELECT * FROM orders WHERE total > ?",
			want:  "SELECT * FROM orders WHERE total > $1",
		},
		{
			name:  "numbered in order",
			query: "SELECT * FROM orders WHERE total > ? AND customer_id = ? AND placed_at < ?",
			want:  "SELECT * FROM orders WHERE total > $1 AND customer_id = $2 AND placed_at < $3",
		},
		{
			name:  "quoted question mark untouched",
			query: "SELECT * FROM faq WHERE question = '?' AND id = ?",
			want:  "SELECT * FROM faq WHERE question = '?' AND id = $1",
		},
		{
			name:  "placeholder between literals",
			query: "SELECT 'a?b', col FROM t WHERE x = ? AND y = 'c?d'",
			want:  "SELECT 'a?b', col FROM t WHERE x = $1 AND y = 'c?d'",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, rewritePlaceholders(tt.query))
		})
	}
}
