package telemetry

import (
	"context"
	"sync"
	"time"

	"github.com/justjake/pgscope/internal/ringlog"
	"github.com/justjake/pgscope/pkg/fingerprint"
)

// EventKind distinguishes the two observation shapes the event ring holds.
type EventKind int

const (
	EventKindComplete EventKind = iota
	EventKindError
)

// EventLogEntry is one row of the bounded recent-observations ring. It
// carries enough of either a QueryComplete or a QueryError to drive the
// raw-mode line renderer.
type EventLogEntry struct {
	Kind     EventKind
	ConnID   ConnID
	T        time.Time
	SQL      string
	Latency  time.Duration // valid only for EventKindComplete
	RowCount *uint64       // valid only for EventKindComplete
	Slow     bool          // Latency >= the configured slow threshold
	SQLSTATE string        // valid only for EventKindError
	Message  string        // valid only for EventKindError
}

// Snapshot is the read-only view handed to UI/raw collaborators.
type Snapshot struct {
	OpenConnections  int64
	TotalConnections uint64
	TotalQueries     uint64
	TotalErrors      uint64
	ParsesSeen       uint64
	QPS              uint64
	Histogram        [6]uint64
	EventRing        []EventLogEntry
	FingerprintTable []FingerprintRow
	// DroppedEvents is populated by the caller from Bus.DroppedEvents; the
	// aggregator has no reference to the bus it was fed from.
	DroppedEvents uint64
}

// Aggregator is the single-consumer reader of a Bus. It owns every counter,
// the histogram, the event ring, and the fingerprint table, and publishes a
// coherent Snapshot to readers under a single mutex.
type Aggregator struct {
	slowThreshold time.Duration

	mu               sync.RWMutex
	openConnections  int64
	totalConnections uint64
	totalQueries     uint64
	totalErrors      uint64
	parsesSeen       uint64
	histogram        Histogram
	eventRing        *ringlog.Ring[EventLogEntry]
	fpCache          *fingerprint.Table
	fpTable          *fingerprintTable
	qps              qpsWindow
	txState          map[ConnID]TxState
	prom             *PromMetrics

	// raw is an optional secondary feed for the raw-mode line formatter's
	// blocking pull. Sends are best-effort: a full raw buffer never
	// blocks the aggregator's own consume loop.
	raw chan Observation
}

// AggregatorOption configures an Aggregator at construction.
type AggregatorOption func(*Aggregator)

// WithSlowThreshold sets the latency at or above which a completion is
// flagged Slow in the event ring. Default 100ms.
func WithSlowThreshold(d time.Duration) AggregatorOption {
	return func(a *Aggregator) { a.slowThreshold = d }
}

// WithEventRingSize overrides the default event ring capacity (2000).
func WithEventRingSize(n int) AggregatorOption {
	return func(a *Aggregator) { a.eventRing = ringlog.New[EventLogEntry](n) }
}

// WithFingerprintTableSize overrides the default fingerprint table capacity
// (1000).
func WithFingerprintTableSize(n int) AggregatorOption {
	return func(a *Aggregator) { a.fpTable = newFingerprintTable(n) }
}

// WithPromMetrics mirrors every Observation onto the given Prometheus
// metrics in addition to the aggregator's own in-memory state. Purely
// additive: the telemetry sink interface never depends on it.
func WithPromMetrics(m *PromMetrics) AggregatorOption {
	return func(a *Aggregator) { a.prom = m }
}

// NewAggregator builds an Aggregator with default capacities, applying any
// supplied options.
func NewAggregator(opts ...AggregatorOption) *Aggregator {
	a := &Aggregator{
		slowThreshold: 100 * time.Millisecond,
		eventRing:     ringlog.New[EventLogEntry](2000),
		fpCache:       fingerprint.NewTable(4096),
		fpTable:       newFingerprintTable(1000),
		txState:       make(map[ConnID]TxState),
		raw:           make(chan Observation, 256),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Run drains obs until the bus closes it, applying each Observation under
// the write lock. It returns when the channel is closed and drained.
func (a *Aggregator) Run(ctx context.Context, obs <-chan Observation) {
	for {
		select {
		case o, ok := <-obs:
			if !ok {
				return
			}
			a.apply(o)
		case <-ctx.Done():
			return
		}
	}
}

func (a *Aggregator) apply(o Observation) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.prom.Observe(o)

	switch v := o.(type) {
	case ConnectionOpened:
		a.openConnections++
		a.totalConnections++
	case ConnectionClosed:
		a.openConnections--
		delete(a.txState, v.ConnID)
	case QueryComplete:
		a.totalQueries++
		latency := v.TEnd.Sub(v.TStart)
		a.histogram.Observe(latency)
		fp := a.fpCache.Get(v.SQL)
		a.fpTable.Upsert(fp, latency, v.TEnd)
		a.qps.record(v.TEnd)
		a.eventRing.Push(EventLogEntry{
			Kind:     EventKindComplete,
			ConnID:   v.ConnID,
			T:        v.TEnd,
			SQL:      v.SQL,
			Latency:  latency,
			RowCount: v.RowCount,
			Slow:     latency >= a.slowThreshold,
		})
		a.tryForwardRaw(o)
	case QueryError:
		a.totalErrors++
		sql := ""
		if v.SQL != nil {
			sql = *v.SQL
		}
		a.eventRing.Push(EventLogEntry{
			Kind:     EventKindError,
			ConnID:   v.ConnID,
			T:        v.T,
			SQL:      sql,
			SQLSTATE: v.SQLSTATE,
			Message:  v.Message,
		})
		a.tryForwardRaw(o)
	case TransactionState:
		a.txState[v.ConnID] = v.State
	case ParseSeen:
		a.parsesSeen++
	}
}

func (a *Aggregator) tryForwardRaw(o Observation) {
	select {
	case a.raw <- o:
	default:
	}
}

// Events returns the channel the raw-mode formatter pulls completed/errored
// observations from. Sends to it are best-effort and never block the
// aggregator's consume loop.
func (a *Aggregator) Events() <-chan Observation {
	return a.raw
}

// Snapshot returns a coherent, independently-mutable copy of current state.
func (a *Aggregator) Snapshot(now time.Time) Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()

	return Snapshot{
		OpenConnections:  a.openConnections,
		TotalConnections: a.totalConnections,
		TotalQueries:     a.totalQueries,
		TotalErrors:      a.totalErrors,
		ParsesSeen:       a.parsesSeen,
		QPS:              a.qps.rate(now),
		Histogram:        a.histogram.Buckets(),
		EventRing:        a.eventRing.Snapshot(),
		FingerprintTable: a.fpTable.Snapshot(),
	}
}
