// Package session implements the per-connection protocol state machine: it
// owns the pending-query FIFO, the prepared-statement and portal maps, and
// turns decoded wire.Frames into telemetry.Observations.
//
// Startup-phase tracking (whether the client's first frame was an
// SSLRequest) is not modeled here: that negotiation happens on raw bytes
// before any post-startup frame exists to hand to a Machine, so it belongs
// to the session pipe in pkg/proxy, which owns the socket. A Machine's
// lifetime begins only once the real StartupMessage has been exchanged.
package session

import (
	"time"
	"unicode/utf8"

	"github.com/justjake/pgscope/pkg/telemetry"
	"github.com/justjake/pgscope/pkg/wire"
)

// Source identifies whether a PendingQuery came from the simple or the
// extended query protocol.
type Source int

const (
	SourceSimple Source = iota
	SourceExtended
)

// PendingQuery is one in-flight statement awaiting completion.
type PendingQuery struct {
	SQL    string
	Start  time.Time
	Source Source
}

// Sink receives Observations emitted by a Machine. telemetry.Bus.Send has
// this signature, but the Machine never imports telemetry.Bus directly so
// tests can supply a plain slice-appending func.
type Sink func(telemetry.Observation)

// Machine is the per-session protocol state machine. It is not safe for
// concurrent use: client-to-server and server-to-client transitions must be
// serialized through one logical mutator, so callers either confine both
// directions to one goroutine or hold a session-local mutex across calls.
type Machine struct {
	connID telemetry.ConnID
	sink   Sink

	pending   []PendingQuery
	prepared  map[string]string // statement name -> sql
	portalSQL map[string]string // portal name -> sql

	// maxSQLLen caps the length of SQL text recorded on a PendingQuery. <= 0
	// disables truncation.
	maxSQLLen int

	// droppedCompletions counts CommandComplete/EmptyQueryResponse messages
	// that arrived with no pending query to pop. (An ErrorResponse with no
	// pending query still emits a QueryError and is not counted.)
	droppedCompletions uint64

	// closed is set by the first Close or Fail; later calls do nothing.
	closed bool
}

// NewMachine creates a Machine for a single session. sink is called
// synchronously for every Observation the machine produces; it must not
// block (pass telemetry.Bus.Send, which never blocks). maxSQLLen bounds the
// SQL text recorded per pending query (see truncateSQL); pass 0 to disable
// truncation.
func NewMachine(connID telemetry.ConnID, sink Sink, maxSQLLen int) *Machine {
	return &Machine{
		connID:    connID,
		sink:      sink,
		prepared:  make(map[string]string),
		portalSQL: make(map[string]string),
		maxSQLLen: maxSQLLen,
	}
}

// DroppedCompletions returns the number of CommandComplete/EmptyQueryResponse
// messages that arrived with an empty pending queue.
func (m *Machine) DroppedCompletions() uint64 {
	return m.droppedCompletions
}

// PendingLen returns the current length of the pending-query FIFO: the
// number of starts not yet matched by a completion or error since open.
func (m *Machine) PendingLen() int {
	return len(m.pending)
}

// Open emits ConnectionOpened for this session.
func (m *Machine) Open(now time.Time) {
	m.sink(telemetry.ConnectionOpened{ConnID: m.connID, T: now})
}

// Close drains any remaining pending queries as synthetic QueryErrors and
// emits ConnectionClosed. It is called when the client sends Terminate and
// again at session teardown; only the first Close or Fail on a Machine takes
// effect, so ConnectionClosed is emitted once per session.
func (m *Machine) Close(now time.Time) {
	if m.closed {
		return
	}
	m.closed = true
	m.drainPending(now, wire.NewErr(wire.SeverityFatal, wire.SQLStateConnectionFailure, "connection closed"))
	m.sink(telemetry.ConnectionClosed{ConnID: m.connID, T: now})
}

// Fail drains any remaining pending queries as a protocol-violation
// QueryError and emits ConnectionClosed. Like Close, it does nothing once
// the Machine has been closed.
func (m *Machine) Fail(now time.Time) {
	if m.closed {
		return
	}
	m.closed = true
	m.drainPending(now, wire.NewErr(wire.SeverityFatal, wire.SQLStateProtocolViolation, "protocol violation"))
	m.sink(telemetry.ConnectionClosed{ConnID: m.connID, T: now})
}

func (m *Machine) drainPending(now time.Time, err *wire.Err) {
	for _, pq := range m.pending {
		sql := pq.SQL
		m.sink(telemetry.QueryError{
			ConnID:   m.connID,
			T:        now,
			SQL:      &sql,
			SQLSTATE: err.Code,
			Message:  err.Message,
		})
	}
	m.pending = nil
}

// HandleClient dispatches one decoded client-to-server frame. now must be
// the instant the frame's bytes were already forwarded to the upstream
// peer.
func (m *Machine) HandleClient(frame wire.Frame, now time.Time) {
	switch frame.Type {
	case wire.MsgClientQuery:
		sql, ok := wire.DecodeQuery(frame.Body)
		if !ok {
			return
		}
		m.enqueue(sql, now, SourceSimple)

	case wire.MsgClientParse:
		name, sql, ok := wire.DecodeParse(frame.Body)
		if !ok {
			return
		}
		m.prepared[name] = sql
		// Parse alone doesn't start a timed query (only Execute does), but
		// it's worth a low-volume diagnostic signal distinct from QueryStart.
		m.sink(telemetry.ParseSeen{ConnID: m.connID, T: now})

	case wire.MsgClientBind:
		portal, stmt, ok := wire.DecodeBind(frame.Body)
		if !ok {
			return
		}
		if sql, found := m.prepared[stmt]; found {
			m.portalSQL[portal] = sql
		}

	case wire.MsgClientExecute:
		portal, ok := wire.DecodeExecute(frame.Body)
		if !ok {
			return
		}
		sql, found := m.portalSQL[portal]
		if !found {
			sql = "<unknown>"
		}
		m.enqueue(sql, now, SourceExtended)

	case wire.MsgClientTerminate:
		m.Close(now)
	}
}

func (m *Machine) enqueue(sql string, now time.Time, source Source) {
	sql = truncateSQL(sql, m.maxSQLLen)
	m.pending = append(m.pending, PendingQuery{SQL: sql, Start: now, Source: source})
	m.sink(telemetry.QueryStart{ConnID: m.connID, T: now, SQL: sql})
}

// truncateSQL caps sql at maxLen bytes, cutting back to the nearest rune
// boundary and appending "..." so a pathological giant statement can't blow
// up the pending-query queue or the event ring. maxLen <= 0 disables
// truncation.
func truncateSQL(sql string, maxLen int) string {
	if maxLen <= 0 || len(sql) <= maxLen {
		return sql
	}
	const suffix = "..."
	cut := maxLen - len(suffix)
	if cut < 0 {
		cut = 0
	}
	for cut > 0 && !utf8.RuneStart(sql[cut]) {
		cut--
	}
	return sql[:cut] + suffix
}

// HandleServer dispatches one decoded server-to-client frame.
func (m *Machine) HandleServer(frame wire.Frame, now time.Time) {
	switch frame.Type {
	case wire.MsgServerCommandComplete:
		tag := wire.DecodeCommandComplete(frame.Body)
		pq, ok := m.popFront()
		if !ok {
			m.droppedCompletions++
			return
		}
		rows, hasRows := wire.ParseCommandTagRows(tag)
		var rowCount *uint64
		if hasRows {
			rowCount = &rows
		}
		m.sink(telemetry.QueryComplete{
			ConnID: m.connID, TStart: pq.Start, TEnd: now, SQL: pq.SQL, RowCount: rowCount,
		})

	case wire.MsgServerEmptyQuery:
		pq, ok := m.popFront()
		if !ok {
			m.droppedCompletions++
			return
		}
		m.sink(telemetry.QueryComplete{
			ConnID: m.connID, TStart: pq.Start, TEnd: now, SQL: pq.SQL, RowCount: nil,
		})

	case wire.MsgServerErrorResponse:
		fields := wire.DecodeErrorFields(frame.Body)
		pq, hasPending := m.popFront()
		var sql *string
		if hasPending {
			sql = &pq.SQL
		}
		m.sink(telemetry.QueryError{
			ConnID: m.connID, T: now, SQL: sql, SQLSTATE: fields.SQLSTATE, Message: fields.Message,
		})

	case wire.MsgServerReadyForQuery:
		status := wire.ReadyForQueryStatus(frame.Body)
		state, ok := mapTxStatus(status)
		if !ok {
			return
		}
		m.sink(telemetry.TransactionState{ConnID: m.connID, State: state})
	}
}

func (m *Machine) popFront() (PendingQuery, bool) {
	if len(m.pending) == 0 {
		return PendingQuery{}, false
	}
	pq := m.pending[0]
	m.pending = m.pending[1:]
	return pq, true
}

func mapTxStatus(status byte) (telemetry.TxState, bool) {
	switch wire.TxStatus(status) {
	case wire.TxIdle:
		return telemetry.TxStateIdle, true
	case wire.TxInTx:
		return telemetry.TxStateInTx, true
	case wire.TxFailed:
		return telemetry.TxStateFailed, true
	default:
		return 0, false
	}
}
