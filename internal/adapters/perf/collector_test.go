package perf

import (
	"sync"
	"testing"
	"time"
)

func TestCollector_RecordAndSnapshot(t *testing.T) {
	c := NewCollector(100)
	now := time.Now()

	c.Record(Entry{Kind: KindRequest, Path: "GET /api/members", StatusCode: 200, DurationMs: 10, Timestamp: now})
	c.Record(Entry{Kind: KindRequest, Path: "GET /api/members", StatusCode: 200, DurationMs: 30, Timestamp: now})
	c.Record(Entry{Kind: KindQuery, Path: "ExecContext", DurationMs: 5, Timestamp: now})
	c.Record(Entry{Kind: KindRemote, Path: "SELECT members", DurationMs: 80, Failed: true, Timestamp: now})

	snap := c.Snapshot(now.Add(-time.Minute), 10)
	if snap.TotalRecorded != 4 {
		t.Errorf("TotalRecorded = %d, want 4", snap.TotalRecorded)
	}
	if len(snap.SlowestPaths) != 1 || snap.SlowestPaths[0].AvgMs != 20 {
		t.Fatalf("unexpected request stats: %+v", snap.SlowestPaths)
	}
	if len(snap.SlowestQueries) != 1 {
		t.Fatalf("SlowestQueries len = %d, want 1", len(snap.SlowestQueries))
	}
	if len(snap.SlowestRemote) != 1 || snap.SlowestRemote[0].Failed != 1 {
		t.Fatalf("unexpected remote stats: %+v", snap.SlowestRemote)
	}
}

func TestCollector_RingBufferOverwrites(t *testing.T) {
	c := NewCollector(3)
	now := time.Now()

	for i := 0; i < 5; i++ {
		c.Record(Entry{Kind: KindRequest, Path: "GET /x", DurationMs: float64(i), Timestamp: now})
	}
	if c.TotalRecorded() != 5 {
		t.Errorf("TotalRecorded = %d, want 5", c.TotalRecorded())
	}
	snap := c.Snapshot(now.Add(-time.Minute), 10)
	if len(snap.SlowestPaths) != 1 || snap.SlowestPaths[0].Count != 3 {
		t.Fatalf("ring buffer should keep the last 3 entries: %+v", snap.SlowestPaths)
	}
	if snap.SlowestPaths[0].MaxMs != 4 {
		t.Errorf("MaxMs = %v, want 4", snap.SlowestPaths[0].MaxMs)
	}
}

func TestCollector_Percentiles(t *testing.T) {
	c := NewCollector(200)
	now := time.Now()
	for i := 1; i <= 100; i++ {
		c.Record(Entry{Kind: KindRequest, Path: "GET /p", DurationMs: float64(i), Timestamp: now})
	}

	snap := c.Snapshot(now.Add(-time.Minute), 10)
	if snap.RequestP50Ms < 49 || snap.RequestP50Ms > 51 {
		t.Errorf("P50 = %v, want ~50", snap.RequestP50Ms)
	}
	if snap.RequestP95Ms < 94 || snap.RequestP95Ms > 96 {
		t.Errorf("P95 = %v, want ~95", snap.RequestP95Ms)
	}
	if snap.RequestP99Ms < 98 || snap.RequestP99Ms > 100 {
		t.Errorf("P99 = %v, want ~99", snap.RequestP99Ms)
	}
}

func TestCollector_SnapshotFiltersBySinceAndTopN(t *testing.T) {
	c := NewCollector(100)
	now := time.Now()

	c.Record(Entry{Kind: KindRequest, Path: "GET /old", DurationMs: 100, Timestamp: now.Add(-2 * time.Hour)})
	c.Record(Entry{Kind: KindRequest, Path: "GET /a", DurationMs: 10, Timestamp: now})
	c.Record(Entry{Kind: KindRequest, Path: "GET /b", DurationMs: 20, Timestamp: now})

	snap := c.Snapshot(now.Add(-time.Hour), 1)
	if len(snap.SlowestPaths) != 1 || snap.SlowestPaths[0].Path != "GET /b" {
		t.Fatalf("unexpected top path: %+v", snap.SlowestPaths)
	}
}

func TestCollector_NilIgnoresRecord(t *testing.T) {
	var c *Collector
	c.Record(Entry{Kind: KindRequest, Path: "GET /", Timestamp: time.Now()})
}

func TestCollector_ConcurrentWrites(t *testing.T) {
	c := NewCollector(1000)
	now := time.Now()
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				c.Record(Entry{Kind: KindRequest, Path: "GET /c", DurationMs: float64(n), Timestamp: now})
			}
		}(i)
	}
	wg.Wait()
	if c.TotalRecorded() != 1000 {
		t.Errorf("TotalRecorded = %d, want 1000", c.TotalRecorded())
	}
}

func BenchmarkCollectorRecord(b *testing.B) {
	c := NewCollector(DefaultRingSize)
	e := Entry{Kind: KindRequest, Path: "GET /bench", StatusCode: 200, DurationMs: 1.5, Timestamp: time.Now()}
	b.ReportAllocs()
	for b.Loop() {
		c.Record(e)
	}
}
