// Package proxy implements the session pipe and the listener: the part of
// pgscope that actually touches sockets. Everything here is a thin byte
// pump around pkg/wire's decoder and pkg/session's state machine; no
// message is ever rewritten, only observed.
package proxy

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/justjake/pgscope/pkg/pgscopecfg"
	"github.com/justjake/pgscope/pkg/session"
	"github.com/justjake/pgscope/pkg/telemetry"
	"github.com/justjake/pgscope/pkg/wire"
)

// readChunkSize is the size of the buffer the forward-first loop reads into:
// each iteration reads at most this many bytes.
const readChunkSize = 32 * 1024

// Session owns one accepted client socket and its matching upstream
// connection, and runs the two forward-first directional pumps.
type Session struct {
	id       telemetry.ConnID
	client   net.Conn
	upstream net.Conn
	cfg      pgscopecfg.Config
	logger   *slog.Logger

	// machineMu serializes C2S and S2C access to the state machine: a
	// session-local mutex held briefly during state transitions.
	machineMu sync.Mutex
	machine   *session.Machine

	closeSocketsOnce sync.Once
	teardownOnce     sync.Once
}

// Dial opens the upstream connection for a newly-accepted client socket and
// returns a Session ready to Run, or an error if the dial failed (the
// caller is responsible for closing client and emitting the
// ConnectionOpened/ConnectionClosed pair in that case).
func Dial(id telemetry.ConnID, client net.Conn, cfg pgscopecfg.Config, bus *telemetry.Bus, logger *slog.Logger) (*Session, error) {
	upstream, err := net.DialTimeout("tcp", cfg.Upstream, cfg.UpstreamDialTimeout)
	if err != nil {
		return nil, err
	}

	s := &Session{
		id:       id,
		client:   client,
		upstream: upstream,
		cfg:      cfg,
		logger:   logger.With("conn_id", id),
		machine:  session.NewMachine(id, bus.Send, cfg.MaxTrackedSQLLen),
	}
	return s, nil
}

// Run performs the startup handshake (SSL interception, if any) and then
// drives both directional pumps until either side closes. It blocks until
// the session is fully torn down.
func (s *Session) Run() {
	now := time.Now()
	s.machine.Open(now)
	defer s.teardown()

	if err := s.handleStartup(); err != nil {
		s.logger.Debug("startup handshake failed", "error", err)
		return
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		s.pump(s.client, s.upstream, s.machine.HandleClient, "c2s")
	}()
	go func() {
		defer wg.Done()
		s.pump(s.upstream, s.client, s.machine.HandleServer, "s2c")
	}()
	wg.Wait()
}

// handleStartup reads the client's untagged startup frames whole (the 4-byte
// length prefix tells us exactly how many more bytes to read, whether this
// is an 8-byte SSLRequest, a 16-byte CancelRequest, or a variable-length
// StartupMessage). An SSLRequest is answered with "N" and not forwarded
// upstream, and the frame the client sends next in plaintext is read the
// same way; the first frame that is not an SSLRequest is forwarded upstream
// byte-for-byte unexamined, and everything after it flows through the
// ordinary pumps once Run starts. Reading whole frames here, rather than a
// fixed prefix, matters: any leftover startup bytes handed to the
// post-startup c2s pump would be fed straight into wire.Decoder and misread
// as a message kind byte plus a bogus length, poisoning the decoder for the
// rest of the session.
func (s *Session) handleStartup() error {
	for {
		header := make([]byte, 4)
		if _, err := io.ReadFull(s.client, header); err != nil {
			return err
		}
		length := binary.BigEndian.Uint32(header)
		if length < 8 || int64(length) > int64(wire.DefaultMaxMessageSize) {
			return wire.ErrMalformed
		}

		frame := make([]byte, length)
		copy(frame, header)
		if _, err := io.ReadFull(s.client, frame[4:]); err != nil {
			return err
		}

		sf, _, ok, err := wire.DecodeStartup(frame)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("proxy: incomplete startup frame after reading declared length")
		}

		if sf.Code == wire.SSLRequestCode {
			if _, err := s.client.Write([]byte{'N'}); err != nil {
				return err
			}
			continue
		}

		// Not an SSLRequest: forward the entire frame upstream, then let the
		// ordinary C2S pump take over for everything after it.
		if _, err := s.upstream.Write(frame); err != nil {
			return err
		}
		return nil
	}
}

// pump implements the forward-first loop from src to sink: read,
// write-through completely, then feed a decoder and drive handle with
// whatever frames came out, in that order, so telemetry timestamps always
// trail the proxy-boundary crossing rather than leading it.
func (s *Session) pump(src, sink net.Conn, handle func(wire.Frame, time.Time), direction string) {
	dec := wire.NewDecoder(int(s.cfg.MaxMessageSize))
	buf := make([]byte, readChunkSize)

	for {
		n, err := src.Read(buf)
		if n > 0 {
			if _, werr := sink.Write(buf[:n]); werr != nil {
				s.logger.Debug("forward write failed", "direction", direction, "error", werr)
				return
			}
			now := time.Now()
			dec.Feed(buf[:n])
			s.drainFrames(dec, handle, now)
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				s.logger.Debug("peer read failed", "direction", direction, "error", err)
			}
			// EOF or error on either half closes both halves, so the peer
			// pump's blocked Read unblocks too.
			s.closeSockets()
			return
		}
	}
}

func (s *Session) drainFrames(dec *wire.Decoder, handle func(wire.Frame, time.Time), now time.Time) {
	s.machineMu.Lock()
	defer s.machineMu.Unlock()

	for {
		frame, ok, err := dec.Next()
		if err != nil {
			s.logger.Debug("malformed frame, terminating session", "error", err)
			s.machine.Fail(now)
			s.closeSockets()
			return
		}
		if !ok {
			break
		}
		handle(frame, now)
	}
	dec.Compact()
}

// closeSockets closes both sockets, idempotently: whichever direction's
// pump notices EOF/error first calls this to unblock the other direction's
// blocked Read.
func (s *Session) closeSockets() {
	s.closeSocketsOnce.Do(func() {
		_ = s.client.Close()
		_ = s.upstream.Close()
	})
}

// teardown closes both sockets (if not already closed) and emits
// ConnectionClosed exactly once, draining any still-pending queries first.
func (s *Session) teardown() {
	s.teardownOnce.Do(func() {
		s.closeSockets()
		s.machineMu.Lock()
		s.machine.Close(time.Now())
		s.machineMu.Unlock()
	})
}
