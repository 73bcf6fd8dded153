package wire

import (
	"encoding/binary"
	"strconv"
	"strings"
)

// DecodeQuery extracts the NUL-terminated SQL text from a Simple Query ('Q')
// message body.
func DecodeQuery(body []byte) (sql string, ok bool) {
	s, next := readCString(body, 0)
	if next < 0 {
		return "", false
	}
	return s, true
}

// DecodeParse extracts the prepared statement name and SQL text from a
// Parse ('P') message body. Parameter type OIDs are ignored; the core only
// needs to remember sql text by statement name.
func DecodeParse(body []byte) (name, sql string, ok bool) {
	name, next := readCString(body, 0)
	if next < 0 {
		return "", "", false
	}
	sql, next2 := readCString(body, next)
	if next2 < 0 {
		return "", "", false
	}
	return name, sql, true
}

// DecodeBind extracts the destination portal name and source statement name
// from a Bind ('B') message body. Parameter formats/values are ignored.
func DecodeBind(body []byte) (portal, stmt string, ok bool) {
	portal, next := readCString(body, 0)
	if next < 0 {
		return "", "", false
	}
	stmt, next2 := readCString(body, next)
	if next2 < 0 {
		return "", "", false
	}
	return portal, stmt, true
}

// DecodeExecute extracts the portal name from an Execute ('E') message
// body. The max-rows field is ignored: callers treat every Execute as
// one-pending-per-Execute, so max_rows never affects whether to enqueue.
func DecodeExecute(body []byte) (portal string, ok bool) {
	portal, next := readCString(body, 0)
	if next < 0 {
		return "", false
	}
	return portal, true
}

// DecodeClose extracts the target kind and name from a Close ('C') message
// body: one type byte ('S' or 'P') followed by a NUL-terminated name.
func DecodeClose(body []byte) (kind CloseType, name string, ok bool) {
	if len(body) < 1 {
		return 0, "", false
	}
	name, next := readCString(body, 1)
	if next < 0 {
		return 0, "", false
	}
	return CloseType(body[0]), name, true
}

// DecodeCommandComplete extracts the command tag string from a
// CommandComplete ('C', server-to-client) message body.
func DecodeCommandComplete(body []byte) (tag string) {
	tag, _ = readCString(body, 0)
	return tag
}

// ParseCommandTagRows extracts the affected/selected row count from a
// command tag: SELECT N, UPDATE N, DELETE N, INSERT oid N (last token),
// COPY N, MOVE N, FETCH N. Returns (0, false) when absent or unparseable.
func ParseCommandTagRows(tag string) (rows uint64, ok bool) {
	idx := strings.LastIndexByte(tag, ' ')
	if idx < 0 {
		return 0, false
	}
	n, err := strconv.ParseUint(tag[idx+1:], 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// ReadyForQueryStatus extracts the 1-byte transaction status from a
// ReadyForQuery ('Z') message body.
func ReadyForQueryStatus(body []byte) byte {
	if len(body) < 1 {
		return 0
	}
	return body[0]
}

// ErrorFields holds the fields of an ErrorResponse/NoticeResponse the core
// cares about: SQLSTATE ('C') and the human-readable message ('M'). Other
// typed fields (detail, hint, position, file/line) are not decoded because
// nothing downstream of the state machine consumes them.
type ErrorFields struct {
	Severity string
	SQLSTATE string
	Message  string
}

// DecodeErrorFields parses the repeated (type-byte, NUL-terminated string)
// fields of an ErrorResponse or NoticeResponse body, terminated by a NUL
// type byte.
func DecodeErrorFields(body []byte) ErrorFields {
	var f ErrorFields
	i := 0
	for i < len(body) {
		fieldType := body[i]
		if fieldType == 0 {
			break
		}
		i++
		val, next := readCString(body, i)
		if next < 0 {
			break
		}
		i = next
		switch fieldType {
		case 'S':
			f.Severity = val
		case 'C':
			f.SQLSTATE = val
		case 'M':
			f.Message = val
		}
	}
	return f
}

// AuthenticationType returns the 4-byte subtype code of an Authentication
// ('R') message body (0 = Ok, 3 = cleartext, 5 = MD5, 10/11/12 = SASL, ...).
// The core never needs to act on authentication content, only to forward it
// opaquely, but decoding the subtype is cheap and useful for tracing.
func AuthenticationType(body []byte) (uint32, bool) {
	if len(body) < 4 {
		return 0, false
	}
	return binary.BigEndian.Uint32(body[0:4]), true
}
