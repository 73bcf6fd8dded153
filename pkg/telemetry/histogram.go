package telemetry

import "time"

// Histogram buckets a latency distribution into 6 fixed-edge buckets:
// (<1ms, 1-5ms, 5-10ms, 10-25ms, 25-100ms, >=100ms).
type Histogram struct {
	buckets [6]uint64
}

var histogramEdges = [5]time.Duration{
	1 * time.Millisecond,
	5 * time.Millisecond,
	10 * time.Millisecond,
	25 * time.Millisecond,
	100 * time.Millisecond,
}

// Observe records one latency sample into its bucket.
func (h *Histogram) Observe(latency time.Duration) {
	for i, edge := range histogramEdges {
		if latency < edge {
			h.buckets[i]++
			return
		}
	}
	h.buckets[5]++
}

// Buckets returns a copy of the current bucket counts.
func (h *Histogram) Buckets() [6]uint64 {
	return h.buckets
}

// Total returns the sum of all bucket counts, which equals the total
// number of completed queries observed at any quiescent point.
func (h *Histogram) Total() uint64 {
	var total uint64
	for _, c := range h.buckets {
		total += c
	}
	return total
}
