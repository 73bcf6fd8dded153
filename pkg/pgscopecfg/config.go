// Package pgscopecfg defines pgscope's configuration shape: the values an
// external argument parser would populate before handing a Config to the
// listener.
package pgscopecfg

import (
	"errors"
	"fmt"
	"time"
)

// Mode selects the output renderer. Both renderers are external
// collaborators; pgscopecfg only records which one was selected.
type Mode string

const (
	ModeTUI Mode = "tui"
	ModeRaw Mode = "raw"
	// ModeAuto defers the tui/raw choice to TTY auto-detection of stdout,
	// performed by cmd/pgscope (golang.org/x/term), not by this package.
	ModeAuto Mode = "auto"
)

// Config is pgscope's full set of tunables, including the ambient sizing
// knobs left to the implementer's choice.
type Config struct {
	// ListenPort is the TCP port pgscope binds on 0.0.0.0 (default 5433).
	ListenPort uint16 `json:"listen_port"`
	// Upstream is the real PostgreSQL server's host:port (default
	// "localhost:5432").
	Upstream string `json:"upstream"`
	// Mode selects tui, raw, or auto (default auto).
	Mode Mode `json:"mode"`
	// SlowThreshold classifies a completion as slow in the event ring
	// (default 100ms).
	SlowThreshold time.Duration `json:"slow_threshold_ms"`
	// MaxMessageSize is the hard cap on a single wire message's declared
	// length (default 1GiB).
	MaxMessageSize ByteSize `json:"max_message_size"`
	// UpstreamDialTimeout bounds how long the listener waits to establish
	// the per-session upstream connection before treating it as
	// UpstreamDialFailure (default 5s).
	UpstreamDialTimeout time.Duration `json:"upstream_dial_timeout_ms"`
	// EventBusCapacity bounds the telemetry bus (default 4096).
	EventBusCapacity int `json:"event_bus_capacity"`
	// EventRingSize bounds the aggregator's recent-observations ring
	// (default 2000).
	EventRingSize int `json:"event_ring_size"`
	// FingerprintTableSize bounds the aggregator's per-fingerprint table
	// (default 1000).
	FingerprintTableSize int `json:"fingerprint_table_size"`
	// MaxTrackedSQLLen truncates SQL text retained in observations to at
	// most this many bytes (default 4096).
	MaxTrackedSQLLen int `json:"max_tracked_sql_len"`
}

// Default returns a Config populated with pgscope's documented defaults.
func Default() Config {
	return Config{
		ListenPort:           5433,
		Upstream:             "localhost:5432",
		Mode:                 ModeAuto,
		SlowThreshold:        100 * time.Millisecond,
		MaxMessageSize:       GiB,
		UpstreamDialTimeout:  5 * time.Second,
		EventBusCapacity:     4096,
		EventRingSize:        2000,
		FingerprintTableSize: 1000,
		MaxTrackedSQLLen:     4096,
	}
}

// Validate checks the configuration for internal consistency. It does not
// stop at the first problem; every violation is accumulated and returned
// together via errors.Join, so a misconfigured deployment sees its whole
// rap sheet in one error message instead of one at a time.
func (c Config) Validate() error {
	var errs []error

	if c.Upstream == "" {
		errs = append(errs, errors.New("upstream: must not be empty"))
	}
	switch c.Mode {
	case ModeTUI, ModeRaw, ModeAuto:
	default:
		errs = append(errs, fmt.Errorf("mode: unknown mode %q", c.Mode))
	}
	if c.SlowThreshold < 0 {
		errs = append(errs, errors.New("slow_threshold_ms: must not be negative"))
	}
	if c.MaxMessageSize <= 0 {
		errs = append(errs, errors.New("max_message_size: must be positive"))
	}
	if c.UpstreamDialTimeout <= 0 {
		errs = append(errs, errors.New("upstream_dial_timeout_ms: must be positive"))
	}
	if c.EventBusCapacity <= 0 {
		errs = append(errs, errors.New("event_bus_capacity: must be positive"))
	}
	if c.EventRingSize <= 0 {
		errs = append(errs, errors.New("event_ring_size: must be positive"))
	}
	if c.FingerprintTableSize <= 0 {
		errs = append(errs, errors.New("fingerprint_table_size: must be positive"))
	}
	if c.MaxTrackedSQLLen <= 0 {
		errs = append(errs, errors.New("max_tracked_sql_len: must be positive"))
	}

	return errors.Join(errs...)
}
