// Package telemetry owns the Observation type the session state machine
// emits, the bounded event bus those observations travel across, and the
// aggregator that consumes them into live stats.
package telemetry

import "time"

// ConnID identifies a session for the lifetime of the process. It is
// assigned monotonically by the listener.
type ConnID uint64

// TxState is the transaction status reported by ReadyForQuery: one of the
// three states its status byte ('I', 'T', 'E') can carry.
type TxState int

const (
	TxStateIdle TxState = iota
	TxStateInTx
	TxStateFailed
)

func (s TxState) String() string {
	switch s {
	case TxStateIdle:
		return "idle"
	case TxStateInTx:
		return "in_transaction"
	case TxStateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Observation is the marker interface for everything the session state
// machine publishes onto the bus. It has no methods of its own use beyond
// the marker: consumers type-switch on the concrete variant.
type Observation interface {
	observation()
}

// QueryStart marks the moment a query (simple or extended) was issued.
type QueryStart struct {
	ConnID ConnID
	T      time.Time
	SQL    string
}

// QueryComplete marks the moment a query's CommandComplete or
// EmptyQueryResponse arrived.
type QueryComplete struct {
	ConnID   ConnID
	TStart   time.Time
	TEnd     time.Time
	SQL      string
	RowCount *uint64 // nil when the command tag carried no row count
}

// QueryError marks the moment a query's ErrorResponse arrived, or a
// protocol/connection failure forced a synthetic completion.
type QueryError struct {
	ConnID   ConnID
	T        time.Time
	SQL      *string // nil when no pending query was outstanding
	SQLSTATE string
	Message  string
}

// ConnectionOpened marks a session's upstream dial succeeding. When the dial
// fails, the listener emits it immediately followed by ConnectionClosed, so
// the open-connections gauge stays balanced.
type ConnectionOpened struct {
	ConnID ConnID
	T      time.Time
}

// ConnectionClosed marks a session's teardown, for any reason.
type ConnectionClosed struct {
	ConnID ConnID
	T      time.Time
}

// TransactionState marks a ReadyForQuery status byte observed on a session.
type TransactionState struct {
	ConnID ConnID
	State  TxState
}

// ParseSeen marks an extended-protocol Parse message. Parse alone doesn't
// start a timed query (only Execute does), so it never accompanies a
// QueryStart; it exists purely as a low-volume diagnostic counter.
type ParseSeen struct {
	ConnID ConnID
	T      time.Time
}

func (QueryStart) observation()       {}
func (QueryComplete) observation()    {}
func (QueryError) observation()       {}
func (ConnectionOpened) observation() {}
func (ConnectionClosed) observation() {}
func (TransactionState) observation() {}
func (ParseSeen) observation()        {}
