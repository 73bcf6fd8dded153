package telemetry

import (
	"testing"
	"time"
)

func TestAggregatorConnectionCounters(t *testing.T) {
	a := NewAggregator()
	a.apply(ConnectionOpened{ConnID: 1, T: time.Now()})
	a.apply(ConnectionOpened{ConnID: 2, T: time.Now()})
	snap := a.Snapshot(time.Now())
	if snap.OpenConnections != 2 || snap.TotalConnections != 2 {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
	a.apply(ConnectionClosed{ConnID: 1, T: time.Now()})
	snap = a.Snapshot(time.Now())
	if snap.OpenConnections != 1 || snap.TotalConnections != 2 {
		t.Fatalf("unexpected snapshot after close: %+v", snap)
	}
}

func TestAggregatorQueryCompleteUpdatesHistogramAndFingerprints(t *testing.T) {
	a := NewAggregator()
	start := time.Now()
	rows := uint64(1)
	a.apply(QueryComplete{
		ConnID: 1, TStart: start, TEnd: start.Add(2 * time.Millisecond),
		SQL: "SELECT * FROM t WHERE id = 1", RowCount: &rows,
	})
	a.apply(QueryComplete{
		ConnID: 1, TStart: start, TEnd: start.Add(3 * time.Millisecond),
		SQL: "SELECT * FROM t WHERE id = 2", RowCount: &rows,
	})
	snap := a.Snapshot(time.Now())
	if snap.TotalQueries != 2 {
		t.Fatalf("expected 2 total queries, got %d", snap.TotalQueries)
	}
	if snap.Histogram[1] != 2 { // 1-5ms bucket
		t.Fatalf("expected both samples in the 1-5ms bucket, got %v", snap.Histogram)
	}
	if len(snap.FingerprintTable) != 1 {
		t.Fatalf("expected one fingerprint row (same shape), got %d", len(snap.FingerprintTable))
	}
	if snap.FingerprintTable[0].Count != 2 {
		t.Fatalf("expected count=2, got %d", snap.FingerprintTable[0].Count)
	}
}

func TestAggregatorQueryErrorIncrementsTotalErrors(t *testing.T) {
	a := NewAggregator()
	sql := "SELECT 1"
	a.apply(QueryError{ConnID: 1, T: time.Now(), SQL: &sql, SQLSTATE: "08P01", Message: "protocol violation"})
	snap := a.Snapshot(time.Now())
	if snap.TotalErrors != 1 {
		t.Fatalf("expected 1 total error, got %d", snap.TotalErrors)
	}
	if len(snap.EventRing) != 1 || snap.EventRing[0].Kind != EventKindError {
		t.Fatalf("expected one error event in ring, got %+v", snap.EventRing)
	}
}

func TestAggregatorHistogramPartitionsTotalQueries(t *testing.T) {
	a := NewAggregator()
	start := time.Now()
	latencies := []time.Duration{
		500 * time.Microsecond, 2 * time.Millisecond, 7 * time.Millisecond,
		15 * time.Millisecond, 50 * time.Millisecond, 200 * time.Millisecond,
	}
	for i, l := range latencies {
		a.apply(QueryComplete{ConnID: ConnID(i), TStart: start, TEnd: start.Add(l), SQL: "SELECT 1"})
	}
	snap := a.Snapshot(time.Now())
	var sum uint64
	for _, c := range snap.Histogram {
		sum += c
	}
	if sum != snap.TotalQueries {
		t.Fatalf("histogram buckets sum to %d, total_queries is %d", sum, snap.TotalQueries)
	}
}

func TestAggregatorSlowThresholdFlagsEventRing(t *testing.T) {
	a := NewAggregator(WithSlowThreshold(10 * time.Millisecond))
	start := time.Now()
	a.apply(QueryComplete{ConnID: 1, TStart: start, TEnd: start.Add(20 * time.Millisecond), SQL: "SELECT 1"})
	snap := a.Snapshot(time.Now())
	if !snap.EventRing[0].Slow {
		t.Fatalf("expected completion above threshold to be marked slow")
	}
}

func TestAggregatorFingerprintTableEvictsByLastSeen(t *testing.T) {
	a := NewAggregator(WithFingerprintTableSize(2))
	start := time.Now()
	a.apply(QueryComplete{ConnID: 1, TStart: start, TEnd: start.Add(time.Millisecond), SQL: "SELECT a"})
	a.apply(QueryComplete{ConnID: 1, TStart: start, TEnd: start.Add(2 * time.Millisecond), SQL: "SELECT b"})
	a.apply(QueryComplete{ConnID: 1, TStart: start, TEnd: start.Add(3 * time.Millisecond), SQL: "SELECT c"})
	snap := a.Snapshot(time.Now())
	if len(snap.FingerprintTable) != 2 {
		t.Fatalf("expected capacity held at 2, got %d", len(snap.FingerprintTable))
	}
	for _, row := range snap.FingerprintTable {
		if row.Fingerprint == "SELECT a" {
			t.Fatalf("expected least recently seen row %q to be evicted", row.Fingerprint)
		}
	}
}
