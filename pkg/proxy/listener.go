package proxy

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/justjake/pgscope/pkg/pgscopecfg"
	"github.com/justjake/pgscope/pkg/telemetry"
)

// Listener binds 0.0.0.0:<ListenPort>, accepts connections in a loop, and
// spawns a detached Session goroutine per accepted socket.
type Listener struct {
	cfg    pgscopecfg.Config
	bus    *telemetry.Bus
	logger *slog.Logger

	nextConnID atomic.Uint64

	wg sync.WaitGroup
}

// NewListener builds a Listener. It does not bind a socket until Serve is
// called.
func NewListener(cfg pgscopecfg.Config, bus *telemetry.Bus, logger *slog.Logger) *Listener {
	return &Listener{cfg: cfg, bus: bus, logger: logger}
}

// Serve binds the configured port and accepts connections until ctx is
// cancelled. A bind failure is fatal and returned immediately; once bound,
// Serve blocks until ctx is done, then stops accepting and waits up to five
// seconds for outstanding sessions before returning.
func (l *Listener) Serve(ctx context.Context) error {
	addr := fmt.Sprintf("0.0.0.0:%d", l.cfg.ListenPort)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	return l.ServeListener(ctx, ln)
}

// ServeListener runs the accept loop on an already-bound listener. Exposed
// separately from Serve so callers (and tests) can bind an ephemeral port
// themselves and learn its address before serving.
func (l *Listener) ServeListener(ctx context.Context, ln net.Listener) error {
	l.logger.Info("listening", "addr", ln.Addr().String(), "upstream", l.cfg.Upstream)

	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				done := make(chan struct{})
				go func() {
					l.wg.Wait()
					close(done)
				}()
				select {
				case <-done:
				case <-time.After(5 * time.Second):
				}
				return nil
			default:
				l.logger.Error("accept failed", "error", err)
				continue
			}
		}
		l.wg.Add(1)
		go func() {
			defer l.wg.Done()
			l.handleConn(conn)
		}()
	}
}

func (l *Listener) handleConn(conn net.Conn) {
	id := telemetry.ConnID(l.nextConnID.Add(1))
	logger := l.logger.With("conn_id", id)

	sess, err := Dial(id, conn, l.cfg, l.bus, logger)
	if err != nil {
		logger.Warn("upstream dial failed", "upstream", l.cfg.Upstream, "error", err)
		_ = conn.Close()
		// Dial failed before a Machine ever existed to emit ConnectionOpened,
		// so send the pair together here: otherwise this ConnectionClosed
		// alone would drive the aggregator's open_connections gauge negative.
		now := time.Now()
		l.bus.Send(telemetry.ConnectionOpened{ConnID: id, T: now})
		l.bus.Send(telemetry.ConnectionClosed{ConnID: id, T: now})
		return
	}
	sess.Run()
}

// Shutdown, in a full deployment, would be triggered by the entry point on
// SIGINT/SIGTERM by cancelling the context passed to Serve; pgscope leaves
// signal handling to cmd/pgscope since process-lifecycle wiring is an
// ambient concern of the entry point, not the listener.
