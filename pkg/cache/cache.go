// Package cache stores execution results keyed by request fingerprint.
// Entries are valid only for the schema version they were computed under;
// a version mismatch reads as absent. Expiry is lazy, checked on read.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/manideep395/QueryPilot-AI/pkg/models"
)

// Cache is a concurrent result cache. Last writer wins on concurrent puts
// of the same fingerprint.
type Cache struct {
	mu         sync.RWMutex
	entries    map[string]*models.CacheEntry
	defaultTTL time.Duration
	stats      *StatsCollector
}

// New creates a cache with the given default TTL.
func New(defaultTTL time.Duration) *Cache {
	return &Cache{
		entries:    make(map[string]*models.CacheEntry),
		defaultTTL: defaultTTL,
		stats:      NewStatsCollector(),
	}
}

// Fingerprint derives the cache key for a request. Question text is
// normalized (case and whitespace) so trivially reworded repeats hit; the
// schema version, caller role, and visible table set are part of the key so
// a schema change or a different access scope never serves stale rows.
func Fingerprint(question string, schemaVersion int64, role string, visibleTables []string) string {
	normalized := strings.Join(strings.Fields(strings.ToLower(question)), " ")
	tables := append([]string(nil), visibleTables...)
	sort.Strings(tables)

	h := sha256.New()
	h.Write([]byte(normalized))
	h.Write([]byte{0})
	h.Write([]byte(strconv.FormatInt(schemaVersion, 10)))
	h.Write([]byte{0})
	h.Write([]byte(role))
	h.Write([]byte{0})
	h.Write([]byte(strings.Join(tables, ",")))
	return hex.EncodeToString(h.Sum(nil))
}

// Get returns the entry for a fingerprint when it is fresh under the given
// schema version. Expired and version-mismatched entries are evicted on the
// spot and read as absent.
func (c *Cache) Get(fingerprint string, schemaVersion int64) (*models.CacheEntry, bool) {
	c.mu.RLock()
	entry, ok := c.entries[fingerprint]
	c.mu.RUnlock()

	if !ok {
		c.stats.RecordMiss()
		return nil, false
	}
	if entry.SchemaVersion != schemaVersion || entry.Expired(time.Now()) {
		c.mu.Lock()
		if cur, still := c.entries[fingerprint]; still && cur == entry {
			delete(c.entries, fingerprint)
			c.stats.RecordEviction()
		}
		c.mu.Unlock()
		c.stats.RecordMiss()
		return nil, false
	}

	c.stats.RecordHit()
	return entry, true
}

// Put stores a result under a fingerprint. A non-positive TTL falls back to
// the cache default.
func (c *Cache) Put(fingerprint string, result *models.ExecutionResult, schemaVersion int64, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	entry := &models.CacheEntry{
		Result:        result,
		SchemaVersion: schemaVersion,
		CreatedAt:     time.Now(),
		TTL:           ttl,
	}

	c.mu.Lock()
	c.entries[fingerprint] = entry
	c.stats.UpdateSize(int64(len(c.entries)))
	c.mu.Unlock()
}

// Invalidate drops every entry below the given schema version. Called when
// the catalog advances so a whole generation of results retires at once.
func (c *Cache) Invalidate(schemaVersion int64) {
	c.mu.Lock()
	for k, e := range c.entries {
		if e.SchemaVersion < schemaVersion {
			delete(c.entries, k)
			c.stats.RecordEviction()
		}
	}
	c.stats.UpdateSize(int64(len(c.entries)))
	c.mu.Unlock()
}

// Len returns the number of live entries, expired ones included until read.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Stats returns a snapshot of hit, miss, and eviction counters.
func (c *Cache) Stats() Stats {
	return c.stats.GetStats()
}
