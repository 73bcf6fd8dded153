package wire

import (
	"fmt"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgproto3"
)

// Severity mirrors the Severity field of ErrorResponse/NoticeResponse
// messages.
type Severity string

const (
	SeverityError Severity = "ERROR"
	SeverityFatal Severity = "FATAL"
	SeverityPanic Severity = "PANIC"
)

// TxStatus is the 1-byte transaction status carried by ReadyForQuery.
type TxStatus byte

const (
	TxIdle   TxStatus = 'I'
	TxInTx   TxStatus = 'T'
	TxFailed TxStatus = 'E'
)

// String renders the transaction status for logging.
func (s TxStatus) String() string {
	switch s {
	case TxIdle:
		return "idle"
	case TxInTx:
		return "in_transaction"
	case TxFailed:
		return "failed"
	default:
		return fmt.Sprintf("unknown(%c)", byte(s))
	}
}

// Err is a synthetic error the proxy itself raises (never one forwarded
// from the real server) — used to build the QueryErrors the session state
// machine emits on connection teardown or protocol violation. It embeds
// pgproto3.ErrorResponse so the same wire struct used for protocol-level
// errors elsewhere can double as the SQLSTATE/message carrier here, even
// though pgscope never actually sends this back over the wire (it is a
// transparent proxy, not a terminating one).
type Err struct {
	pgproto3.ErrorResponse
	Cause error
}

var _ error = (*Err)(nil)

// NewErr builds a synthetic Err with the given severity, SQLSTATE, and
// message.
func NewErr(severity Severity, sqlstate, message string) *Err {
	return &Err{
		ErrorResponse: pgproto3.ErrorResponse{
			Severity: string(severity),
			Code:     sqlstate,
			Message:  message,
		},
	}
}

func (e *Err) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s %s: %s: %s", e.Severity, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s %s: %s", e.Severity, e.Code, e.Message)
}

func (e *Err) Unwrap() error {
	return e.Cause
}

// SQLSTATE codes the proxy itself raises, aliased from pgerrcode so call
// sites don't need to remember the raw strings.
const (
	// SQLStateConnectionFailure is used when a pending query is drained
	// because the session terminated before a real completion arrived.
	SQLStateConnectionFailure = pgerrcode.SystemError
	// SQLStateProtocolViolation is used for ParserMalformed.
	SQLStateProtocolViolation = pgerrcode.ProtocolViolation
)
