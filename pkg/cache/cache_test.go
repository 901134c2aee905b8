package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/manideep395/QueryPilot-AI/pkg/models"
)

func TestFingerprint_Normalization(t *testing.T) {
	base := Fingerprint("show all customers", 1, "analyst", []string{"customers", "orders"})

	tests := []struct {
		name     string
		question string
		version  int64
		role     string
		tables   []string
		same     bool
	}{
		{"identical request", "show all customers", 1, "analyst", []string{"customers", "orders"}, true},
		{"case folded", "SHOW ALL Customers", 1, "analyst", []string{"customers", "orders"}, true},
		{"whitespace collapsed", "  show\tall   customers ", 1, "analyst", []string{"customers", "orders"}, true},
		{"table order ignored", "show all customers", 1, "analyst", []string{"orders", "customers"}, true},
		{"different question", "show all orders", 1, "analyst", []string{"customers", "orders"}, false},
		{"different schema version", "show all customers", 2, "analyst", []string{"customers", "orders"}, false},
		{"different role", "show all customers", 1, "viewer", []string{"customers", "orders"}, false},
		{"different table set", "show all customers", 1, "analyst", []string{"customers"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fp := Fingerprint(tt.question, tt.version, tt.role, tt.tables)
			if tt.same {
				assert.Equal(t, base, fp)
			} else {
				assert.NotEqual(t, base, fp)
			}
		})
	}
}

func TestFingerprint_DoesNotMutateInput(t *testing.T) {
	tables := []string{"orders", "customers"}
	Fingerprint("q", 1, "r", tables)
	assert.Equal(t, []string{"orders", "customers"}, tables)
}

func TestCache_PutGet(t *testing.T) {
	c := New(time.Minute)
	result := &models.ExecutionResult{RowCount: 3}

	_, ok := c.Get("fp", 1)
	require.False(t, ok)

	c.Put("fp", result, 1, 0)
	entry, ok := c.Get("fp", 1)
	require.True(t, ok)
	assert.Same(t, result, entry.Result)
	assert.Equal(t, 1, c.Len())
}

func TestCache_VersionMismatchReadsAbsent(t *testing.T) {
	c := New(time.Minute)
	c.Put("fp", &models.ExecutionResult{}, 1, 0)

	_, ok := c.Get("fp", 2)
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len(), "mismatched entry should be evicted on read")
}

func TestCache_Expiry(t *testing.T) {
	c := New(time.Minute)
	c.Put("fp", &models.ExecutionResult{}, 1, time.Nanosecond)
	time.Sleep(5 * time.Millisecond)

	_, ok := c.Get("fp", 1)
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
}

func TestCache_DefaultTTL(t *testing.T) {
	c := New(time.Hour)
	c.Put("fp", &models.ExecutionResult{}, 1, 0)

	entry, ok := c.Get("fp", 1)
	require.True(t, ok)
	assert.Equal(t, time.Hour, entry.TTL)
}

func TestCache_Invalidate(t *testing.T) {
	c := New(time.Minute)
	c.Put("old-a", &models.ExecutionResult{}, 1, 0)
	c.Put("old-b", &models.ExecutionResult{}, 1, 0)
	c.Put("current", &models.ExecutionResult{}, 2, 0)

	c.Invalidate(2)

	_, ok := c.Get("old-a", 1)
	assert.False(t, ok)
	_, ok = c.Get("old-b", 1)
	assert.False(t, ok)
	_, ok = c.Get("current", 2)
	assert.True(t, ok)
	assert.Equal(t, 1, c.Len())
}

func TestCache_Stats(t *testing.T) {
	c := New(time.Minute)

	c.Get("missing", 1)
	c.Put("fp", &models.ExecutionResult{}, 1, 0)
	c.Get("fp", 1)
	c.Get("fp", 1)

	stats := c.Stats()
	assert.Equal(t, uint64(2), stats.Hits)
	assert.Equal(t, uint64(1), stats.Misses)
	assert.InDelta(t, 2.0/3.0, stats.HitRate(), 0.001)
}

func TestCache_LastWriterWins(t *testing.T) {
	c := New(time.Minute)
	c.Put("fp", &models.ExecutionResult{RowCount: 1}, 1, 0)
	c.Put("fp", &models.ExecutionResult{RowCount: 2}, 1, 0)

	entry, ok := c.Get("fp", 1)
	require.True(t, ok)
	assert.Equal(t, int64(2), entry.Result.RowCount)
	assert.Equal(t, 1, c.Len())
}
