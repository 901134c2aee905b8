package cache

import (
	"sync/atomic"
)

// Stats holds cache statistics.
type Stats struct {
	Hits      uint64
	Misses    uint64
	Evictions uint64
	Size      int64
}

// HitRate returns the fraction of reads served from the cache.
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// StatsCollector collects and reports cache statistics.
type StatsCollector struct {
	hits      atomic.Uint64
	misses    atomic.Uint64
	evictions atomic.Uint64
	size      atomic.Int64
}

// NewStatsCollector creates a new statistics collector.
func NewStatsCollector() *StatsCollector {
	return &StatsCollector{}
}

// RecordHit records a cache hit.
func (c *StatsCollector) RecordHit() {
	c.hits.Add(1)
}

// RecordMiss records a cache miss.
func (c *StatsCollector) RecordMiss() {
	c.misses.Add(1)
}

// RecordEviction records a cache eviction.
func (c *StatsCollector) RecordEviction() {
	c.evictions.Add(1)
}

// UpdateSize updates the current entry count.
func (c *StatsCollector) UpdateSize(size int64) {
	c.size.Store(size)
}

// GetStats returns the current cache statistics.
func (c *StatsCollector) GetStats() Stats {
	return Stats{
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Evictions: c.evictions.Load(),
		Size:      c.size.Load(),
	}
}

// HitRate returns the cache hit rate.
func (c *StatsCollector) HitRate() float64 {
	hits := c.hits.Load()
	total := hits + c.misses.Load()
	if total == 0 {
		return 0
	}
	return float64(hits) / float64(total)
}
