package wire

import (
	"encoding/binary"
	"errors"
)

// Wire-level sentinels for the untagged first client frame.
const (
	SSLRequestCode    uint32 = 0x04D2162F // 80877103
	CancelRequestCode uint32 = 0x04D2162E // 80877102
	StartupVersion3   uint32 = 0x00030000 // 196608
)

// DefaultMaxMessageSize is the hard cap on a declared frame length. A
// declared length beyond this is treated as protocol violation, not an
// attempt to buffer gigabytes of attacker-controlled data.
const DefaultMaxMessageSize = 1 << 30 // 1 GiB

// ErrMalformed indicates a frame's declared length is impossible (less than
// the 4 bytes the length field itself occupies).
var ErrMalformed = errors.New("wire: malformed frame length")

// ErrMessageTooLarge indicates a frame's declared length exceeds the
// configured hard cap.
var ErrMessageTooLarge = errors.New("wire: frame exceeds maximum message size")

// Frame is a decoded v3.0 message: a kind tag plus a borrowed view into the
// decoder's internal buffer. A Frame is valid only until the next call to
// Decoder.Next or Decoder.Compact.
type Frame struct {
	Type MsgType
	Body []byte
}

// Decoder incrementally frames post-startup PostgreSQL messages out of an
// append-only byte buffer. It never copies: Next returns a view into the
// buffer, and the caller must finish using a Frame before requesting the
// next one or compacting. The decoder owns no socket; the caller (the
// session pipe) is responsible for feeding it bytes that have already been
// forwarded to the peer.
type Decoder struct {
	buf            []byte
	pos            int
	maxMessageSize int
}

// NewDecoder creates a Decoder with the given hard cap on frame length. A
// maxMessageSize of 0 selects DefaultMaxMessageSize.
func NewDecoder(maxMessageSize int) *Decoder {
	if maxMessageSize <= 0 {
		maxMessageSize = DefaultMaxMessageSize
	}
	return &Decoder{maxMessageSize: maxMessageSize}
}

// Feed appends newly-read bytes to the decoder's buffer. Callers should call
// this only after the same bytes have already been written to the peer.
func (d *Decoder) Feed(p []byte) {
	d.buf = append(d.buf, p...)
}

// Next attempts to decode one frame from the unconsumed portion of the
// buffer. It returns (frame, true, nil) on success, (Frame{}, false, nil) if
// the buffer holds only a partial frame, or a non-nil error if the stream is
// unframeable (ErrMalformed) or a frame declares a length beyond the
// configured cap (ErrMessageTooLarge). Either error is session-fatal per
// the ParserMalformed taxonomy entry; the caller must terminate the session.
func (d *Decoder) Next() (Frame, bool, error) {
	rest := d.buf[d.pos:]
	if len(rest) < 5 {
		return Frame{}, false, nil
	}
	length := binary.BigEndian.Uint32(rest[1:5])
	if length < 4 {
		return Frame{}, false, ErrMalformed
	}
	if int64(length)-4 > int64(d.maxMessageSize) {
		return Frame{}, false, ErrMessageTooLarge
	}
	total := 1 + int(length)
	if len(rest) < total {
		return Frame{}, false, nil
	}
	frame := Frame{Type: MsgType(rest[0]), Body: rest[5:total]}
	d.pos += total
	return frame, true, nil
}

// Compact discards consumed bytes from the front of the buffer, keeping it
// from growing unboundedly across many small messages. Callers should call
// this once per read cycle, after draining all complete frames with Next.
func (d *Decoder) Compact() {
	if d.pos == 0 {
		return
	}
	n := copy(d.buf, d.buf[d.pos:])
	d.buf = d.buf[:n]
	d.pos = 0
}

// Pending returns the number of unconsumed, buffered bytes. Exposed for
// tests and for diagnostics; not required by the decode loop itself.
func (d *Decoder) Pending() int {
	return len(d.buf) - d.pos
}

// StartupFrame is the untagged first client frame: either an SSLRequest, a
// CancelRequest, or a StartupMessage with its raw parameter bytes.
type StartupFrame struct {
	Code    uint32
	Payload []byte // parameter bytes following the code, for StartupMessage
}

// DecodeStartup attempts to decode the untagged first client frame, which
// has no type byte: [length: i32][code: i32][payload]. Returns (frame, n,
// true, nil) on success, where n is the frame's declared total length, and
// (StartupFrame{}, 0, false, nil) if more bytes are needed.
func DecodeStartup(buf []byte) (StartupFrame, int, bool, error) {
	if len(buf) < 4 {
		return StartupFrame{}, 0, false, nil
	}
	length := binary.BigEndian.Uint32(buf[0:4])
	if length < 8 {
		return StartupFrame{}, 0, false, ErrMalformed
	}
	if int64(length) > int64(DefaultMaxMessageSize) {
		return StartupFrame{}, 0, false, ErrMessageTooLarge
	}
	total := int(length)
	if len(buf) < total {
		return StartupFrame{}, 0, false, nil
	}
	code := binary.BigEndian.Uint32(buf[4:8])
	return StartupFrame{Code: code, Payload: buf[8:total]}, total, true, nil
}

// ParseStartupParameters decodes the NUL-terminated key/value pairs that
// follow the protocol version in a StartupMessage payload, terminated by an
// extra NUL byte.
func ParseStartupParameters(payload []byte) map[string]string {
	params := make(map[string]string)
	i := 0
	for i < len(payload) {
		if payload[i] == 0 {
			break
		}
		key, next := readCString(payload, i)
		if next < 0 {
			break
		}
		val, next2 := readCString(payload, next)
		if next2 < 0 {
			break
		}
		params[key] = val
		i = next2
	}
	return params
}

func readCString(buf []byte, start int) (string, int) {
	for i := start; i < len(buf); i++ {
		if buf[i] == 0 {
			return string(buf[start:i]), i + 1
		}
	}
	return "", -1
}
