package perf

import (
	"math"
	"slices"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultRingSize is the default capacity of the ring buffer.
const DefaultRingSize = 10000

// EntryKind distinguishes what was timed.
type EntryKind uint8

const (
	KindRequest EntryKind = iota // HTTP request
	KindQuery                    // local SQLite statement
	KindRemote                   // remote store statement
)

// Entry is a single timing record stored in the ring buffer.
type Entry struct {
	Kind       EntryKind
	Path       string // "GET /api/members", "QueryContext", "SELECT members"
	StatusCode int    // HTTP status, 0 otherwise
	Failed     bool
	DurationMs float64
	Timestamp  time.Time
}

// Collector is a fixed-size ring buffer for timing entries.
// When full, oldest entries are overwritten. Aggregation happens on read.
type Collector struct {
	mu      sync.Mutex
	entries []Entry
	size    int
	pos     int
	count   atomic.Int64
}

// NewCollector creates a collector with the given ring buffer capacity.
// PRE: none
// POST: Returns a ready-to-use collector; size <= 0 selects DefaultRingSize
func NewCollector(size int) *Collector {
	if size <= 0 {
		size = DefaultRingSize
	}
	return &Collector{
		entries: make([]Entry, size),
		size:    size,
	}
}

// Record appends an entry. A nil collector ignores it.
func (c *Collector) Record(e Entry) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.entries[c.pos] = e
	c.pos = (c.pos + 1) % c.size
	c.mu.Unlock()
	c.count.Add(1)
}

// TotalRecorded returns the number of entries ever recorded.
func (c *Collector) TotalRecorded() int64 {
	return c.count.Load()
}

// PathStat aggregates timing for a single path or statement label.
type PathStat struct {
	Path    string  `json:"path"`
	Count   int     `json:"count"`
	Failed  int     `json:"failed"`
	AvgMs   float64 `json:"avgMs"`
	MaxMs   float64 `json:"maxMs"`
	TotalMs float64 `json:"totalMs"`
}

// Snapshot holds aggregated timings computed on read.
type Snapshot struct {
	TotalRecorded  int64      `json:"totalRecorded"`
	RequestP50Ms   float64    `json:"requestP50Ms"`
	RequestP95Ms   float64    `json:"requestP95Ms"`
	RequestP99Ms   float64    `json:"requestP99Ms"`
	SlowestPaths   []PathStat `json:"slowestPaths"`
	SlowestQueries []PathStat `json:"slowestQueries"`
	SlowestRemote  []PathStat `json:"slowestRemote"`
}

// Snapshot aggregates entries newer than since and returns the topN slowest
// labels of each kind by average duration.
// PRE: topN > 0
// POST: every list has at most topN entries, slowest first
func (c *Collector) Snapshot(since time.Time, topN int) Snapshot {
	c.mu.Lock()
	buf := slices.Clone(c.entries)
	c.mu.Unlock()

	var requestDurations []float64
	stats := map[EntryKind]map[string]*PathStat{
		KindRequest: {},
		KindQuery:   {},
		KindRemote:  {},
	}

	for _, e := range buf {
		if e.Timestamp.IsZero() || e.Timestamp.Before(since) {
			continue
		}
		byPath, ok := stats[e.Kind]
		if !ok {
			continue
		}
		if e.Kind == KindRequest {
			requestDurations = append(requestDurations, e.DurationMs)
		}
		s, ok := byPath[e.Path]
		if !ok {
			s = &PathStat{Path: e.Path}
			byPath[e.Path] = s
		}
		s.Count++
		s.TotalMs += e.DurationMs
		s.MaxMs = max(s.MaxMs, e.DurationMs)
		if e.Failed {
			s.Failed++
		}
	}

	snap := Snapshot{
		TotalRecorded:  c.TotalRecorded(),
		SlowestPaths:   topByAvg(stats[KindRequest], topN),
		SlowestQueries: topByAvg(stats[KindQuery], topN),
		SlowestRemote:  topByAvg(stats[KindRemote], topN),
	}

	if len(requestDurations) > 0 {
		slices.Sort(requestDurations)
		snap.RequestP50Ms = percentile(requestDurations, 50)
		snap.RequestP95Ms = percentile(requestDurations, 95)
		snap.RequestP99Ms = percentile(requestDurations, 99)
	}
	return snap
}

// percentile interpolates the p-th percentile of a sorted slice.
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := (p / 100) * float64(len(sorted)-1)
	lower := int(math.Floor(idx))
	upper := int(math.Ceil(idx))
	if lower == upper || upper >= len(sorted) {
		return sorted[lower]
	}
	frac := idx - float64(lower)
	return sorted[lower]*(1-frac) + sorted[upper]*frac
}

func topByAvg(stats map[string]*PathStat, n int) []PathStat {
	list := make([]PathStat, 0, len(stats))
	for _, s := range stats {
		s.AvgMs = s.TotalMs / float64(s.Count)
		list = append(list, *s)
	}
	slices.SortFunc(list, func(a, b PathStat) int {
		switch {
		case a.AvgMs > b.AvgMs:
			return -1
		case a.AvgMs < b.AvgMs:
			return 1
		}
		return 0
	})
	if len(list) > n {
		list = list[:n]
	}
	return list
}
