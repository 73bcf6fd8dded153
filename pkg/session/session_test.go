package session

import (
	"testing"
	"time"

	"github.com/justjake/pgscope/pkg/telemetry"
	"github.com/justjake/pgscope/pkg/wire"
)

func collect() (Sink, *[]telemetry.Observation) {
	obs := &[]telemetry.Observation{}
	return func(o telemetry.Observation) { *obs = append(*obs, o) }, obs
}

func simpleQueryFrame(sql string) wire.Frame {
	return wire.Frame{Type: wire.MsgClientQuery, Body: append([]byte(sql), 0)}
}

func commandCompleteFrame(tag string) wire.Frame {
	return wire.Frame{Type: wire.MsgServerCommandComplete, Body: append([]byte(tag), 0)}
}

func TestSimpleQueryLifecycle(t *testing.T) {
	sink, obs := collect()
	m := NewMachine(1, sink, 0)
	now := time.Now()

	m.HandleClient(simpleQueryFrame("SELECT 1;"), now)
	if m.PendingLen() != 1 {
		t.Fatalf("expected 1 pending, got %d", m.PendingLen())
	}

	m.HandleServer(commandCompleteFrame("SELECT 1"), now.Add(time.Millisecond))
	if m.PendingLen() != 0 {
		t.Fatalf("expected 0 pending after complete, got %d", m.PendingLen())
	}

	if len(*obs) != 2 {
		t.Fatalf("expected QueryStart+QueryComplete, got %d observations", len(*obs))
	}
	start, ok := (*obs)[0].(telemetry.QueryStart)
	if !ok || start.SQL != "SELECT 1;" {
		t.Fatalf("unexpected first observation: %+v", (*obs)[0])
	}
	complete, ok := (*obs)[1].(telemetry.QueryComplete)
	if !ok || complete.RowCount == nil || *complete.RowCount != 1 {
		t.Fatalf("unexpected second observation: %+v", (*obs)[1])
	}
}

func TestExtendedPipelineOneEntryPerExecute(t *testing.T) {
	sink, obs := collect()
	m := NewMachine(1, sink, 0)
	now := time.Now()

	parseBody := append(append([]byte("stmt1"), 0), append([]byte("SELECT $1"), 0)...)
	m.HandleClient(wire.Frame{Type: wire.MsgClientParse, Body: parseBody}, now)

	bindBody := append(append([]byte("portal1"), 0), append([]byte("stmt1"), 0)...)
	m.HandleClient(wire.Frame{Type: wire.MsgClientBind, Body: bindBody}, now)

	execBody := append([]byte("portal1"), 0)
	m.HandleClient(wire.Frame{Type: wire.MsgClientExecute, Body: execBody}, now)
	m.HandleClient(wire.Frame{Type: wire.MsgClientExecute, Body: execBody}, now)

	if m.PendingLen() != 2 {
		t.Fatalf("expected 2 pending entries (one per Execute), got %d", m.PendingLen())
	}

	m.HandleServer(commandCompleteFrame("SELECT 1"), now)
	m.HandleServer(commandCompleteFrame("SELECT 1"), now)

	starts, completes := 0, 0
	for _, o := range *obs {
		switch o.(type) {
		case telemetry.QueryStart:
			starts++
		case telemetry.QueryComplete:
			completes++
		}
	}
	if starts != 2 || completes != 2 {
		t.Fatalf("expected 2 starts and 2 completes, got %d/%d", starts, completes)
	}
}

func TestErrorResponseCompletesQueryWithSQLSTATE(t *testing.T) {
	sink, obs := collect()
	m := NewMachine(1, sink, 0)
	now := time.Now()

	m.HandleClient(simpleQueryFrame("BAD SQL"), now)

	errBody := []byte{}
	errBody = append(errBody, 'S')
	errBody = append(errBody, []byte("ERROR")...)
	errBody = append(errBody, 0)
	errBody = append(errBody, 'C')
	errBody = append(errBody, []byte("42601")...)
	errBody = append(errBody, 0)
	errBody = append(errBody, 'M')
	errBody = append(errBody, []byte("syntax error")...)
	errBody = append(errBody, 0)
	errBody = append(errBody, 0)

	m.HandleServer(wire.Frame{Type: wire.MsgServerErrorResponse, Body: errBody}, now)

	last := (*obs)[len(*obs)-1].(telemetry.QueryError)
	if last.SQLSTATE != "42601" || last.Message != "syntax error" {
		t.Fatalf("unexpected error observation: %+v", last)
	}
	if last.SQL == nil || *last.SQL != "BAD SQL" {
		t.Fatalf("expected error to carry pending SQL, got %+v", last.SQL)
	}
}

func TestErrorResponseWithNoPendingStillEmits(t *testing.T) {
	sink, obs := collect()
	m := NewMachine(1, sink, 0)
	now := time.Now()

	errBody := []byte{'C'}
	errBody = append(errBody, []byte("28P01")...)
	errBody = append(errBody, 0, 0)

	m.HandleServer(wire.Frame{Type: wire.MsgServerErrorResponse, Body: errBody}, now)

	if len(*obs) != 1 {
		t.Fatalf("expected exactly one observation, got %d", len(*obs))
	}
	qe := (*obs)[0].(telemetry.QueryError)
	if qe.SQL != nil {
		t.Fatalf("expected nil SQL when no pending query, got %v", *qe.SQL)
	}
}

func TestCommandCompleteWithEmptyQueueIncrementsWarningCounter(t *testing.T) {
	sink, _ := collect()
	m := NewMachine(1, sink, 0)
	m.HandleServer(commandCompleteFrame("SELECT 1"), time.Now())
	if m.DroppedCompletions() != 1 {
		t.Fatalf("expected 1 dropped completion, got %d", m.DroppedCompletions())
	}
}

func TestCloseDrainsPendingAsConnectionFailure(t *testing.T) {
	sink, obs := collect()
	m := NewMachine(1, sink, 0)
	now := time.Now()

	m.HandleClient(simpleQueryFrame("SELECT 1"), now)
	m.HandleClient(simpleQueryFrame("SELECT 2"), now)
	m.Close(now.Add(time.Second))

	errs := 0
	var closed bool
	for _, o := range *obs {
		switch v := o.(type) {
		case telemetry.QueryError:
			if v.SQLSTATE != "58000" {
				t.Fatalf("expected 58000, got %s", v.SQLSTATE)
			}
			errs++
		case telemetry.ConnectionClosed:
			closed = true
		}
	}
	if errs != 2 || !closed {
		t.Fatalf("expected 2 drained errors and a ConnectionClosed, got errs=%d closed=%v", errs, closed)
	}
	if m.PendingLen() != 0 {
		t.Fatalf("expected pending drained to 0, got %d", m.PendingLen())
	}
}

func TestReadyForQueryMapsTransactionState(t *testing.T) {
	sink, obs := collect()
	m := NewMachine(1, sink, 0)
	now := time.Now()

	m.HandleServer(wire.Frame{Type: wire.MsgServerReadyForQuery, Body: []byte{'T'}}, now)
	tx := (*obs)[0].(telemetry.TransactionState)
	if tx.State != telemetry.TxStateInTx {
		t.Fatalf("expected InTx, got %v", tx.State)
	}
}
