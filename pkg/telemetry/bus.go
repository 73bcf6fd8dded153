package telemetry

import "sync/atomic"

// Bus is a bounded multi-producer, single-consumer channel of Observations.
// Send never blocks the caller beyond a non-blocking channel attempt: on
// overflow the observation is dropped and DroppedEvents is incremented,
// because the proxy's data path must never wait on telemetry.
type Bus struct {
	ch      chan Observation
	dropped atomic.Uint64
}

// NewBus creates a Bus with the given bounded capacity. A capacity of 0
// selects the default of 4096.
func NewBus(capacity int) *Bus {
	if capacity <= 0 {
		capacity = 4096
	}
	return &Bus{ch: make(chan Observation, capacity)}
}

// Send publishes obs without blocking. If the bus is full, obs is dropped
// and the dropped-events counter is incremented.
func (b *Bus) Send(obs Observation) {
	select {
	case b.ch <- obs:
	default:
		b.dropped.Add(1)
	}
}

// DroppedEvents returns the number of observations dropped for overflow
// over the bus's lifetime.
func (b *Bus) DroppedEvents() uint64 {
	return b.dropped.Load()
}

// Recv returns the channel the aggregator consumes from. Closing it is the
// producers' responsibility once every session has terminated.
func (b *Bus) Recv() <-chan Observation {
	return b.ch
}

// Close signals no further observations will be sent. It must only be
// called once all producing sessions have exited.
func (b *Bus) Close() {
	close(b.ch)
}
