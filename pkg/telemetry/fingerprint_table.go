package telemetry

import (
	"container/list"
	"sort"
	"time"
)

// FingerprintRow is the per-fingerprint running statistics the aggregator
// maintains.
type FingerprintRow struct {
	Fingerprint  string
	Count        uint64
	TotalLatency time.Duration
	MaxLatency   time.Duration
	LastSeen     time.Time
}

// fingerprintTable is a bounded map of fingerprint to FingerprintRow,
// evicting the row with the smallest LastSeen once it reaches capacity.
// It is grounded on the same doubly-linked-list access-order scheme as a
// conventional LRU cache: every Upsert moves its row to the front, so the
// back of the list is always the least-recently-updated row — which is
// exactly the smallest-LastSeen row, since LastSeen is refreshed on every
// update. Not safe for concurrent use; the aggregator is single-consumer.
type fingerprintTable struct {
	capacity int
	rows     map[string]*list.Element // fingerprint -> element (Value is *FingerprintRow)
	order    *list.List
}

func newFingerprintTable(capacity int) *fingerprintTable {
	if capacity <= 0 {
		capacity = 1000
	}
	return &fingerprintTable{
		capacity: capacity,
		rows:     make(map[string]*list.Element, capacity),
		order:    list.New(),
	}
}

// Upsert records one observed latency for fingerprint at time t.
func (ft *fingerprintTable) Upsert(fingerprint string, latency time.Duration, t time.Time) {
	if elem, ok := ft.rows[fingerprint]; ok {
		row := elem.Value.(*FingerprintRow)
		row.Count++
		row.TotalLatency += latency
		if latency > row.MaxLatency {
			row.MaxLatency = latency
		}
		row.LastSeen = t
		ft.order.MoveToFront(elem)
		return
	}

	if len(ft.rows) >= ft.capacity {
		ft.evictOldest()
	}

	row := &FingerprintRow{
		Fingerprint:  fingerprint,
		Count:        1,
		TotalLatency: latency,
		MaxLatency:   latency,
		LastSeen:     t,
	}
	elem := ft.order.PushFront(row)
	ft.rows[fingerprint] = elem
}

func (ft *fingerprintTable) evictOldest() {
	elem := ft.order.Back()
	if elem == nil {
		return
	}
	row := elem.Value.(*FingerprintRow)
	ft.order.Remove(elem)
	delete(ft.rows, row.Fingerprint)
}

// Len returns the number of distinct fingerprints currently tracked.
func (ft *fingerprintTable) Len() int {
	return len(ft.rows)
}

// Snapshot returns a copy of all rows sorted by total latency descending,
// computed fresh at snapshot time (not maintained incrementally), so a
// caller gets a top_queries view without having to re-sort itself.
// Eviction order is unaffected: it still tracks LastSeen via the
// underlying list.
func (ft *fingerprintTable) Snapshot() []FingerprintRow {
	out := make([]FingerprintRow, 0, ft.order.Len())
	for e := ft.order.Front(); e != nil; e = e.Next() {
		row := *e.Value.(*FingerprintRow)
		out = append(out, row)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].TotalLatency > out[j].TotalLatency
	})
	return out
}
