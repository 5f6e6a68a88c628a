// Package metrics provides lightweight, lock-free counters for
// tracking runtime statistics of an editing server.
//
// All methods are safe for concurrent use.  A nil *Collector is a
// valid no-op receiver, so callers never need to nil-check.
package metrics

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"
)

// Collector tracks runtime metrics for one server instance.
// A nil Collector is safe to use; all methods become no-ops.
type Collector struct {
	sessionsActive atomic.Int64
	sessionsTotal  atomic.Int64
	requestsTotal  atomic.Int64
	authFailures   atomic.Int64
	parseFailures  atomic.Int64
	evalFailures   atomic.Int64
	bytesFramed    atomic.Int64

	mu           sync.RWMutex
	startTime    time.Time
	lastError    time.Time
	lastErrorMsg string
}

// New creates a metrics collector with the start time set to now.
func New() *Collector {
	return &Collector{startTime: time.Now()}
}

// ── Session metrics ──────────────────────────────────────────────────

// SessionOpened increments both the active and total counters.
func (c *Collector) SessionOpened() {
	if c == nil {
		return
	}
	c.sessionsActive.Add(1)
	c.sessionsTotal.Add(1)
}

// SessionClosed decrements the active session counter.
func (c *Collector) SessionClosed() {
	if c == nil {
		return
	}
	c.sessionsActive.Add(-1)
}

// ActiveSessions returns the current number of live sessions.
func (c *Collector) ActiveSessions() int64 {
	if c == nil {
		return 0
	}
	return c.sessionsActive.Load()
}

// TotalSessions returns the lifetime session count.
func (c *Collector) TotalSessions() int64 {
	if c == nil {
		return 0
	}
	return c.sessionsTotal.Load()
}

// ── Request metrics ──────────────────────────────────────────────────

// RequestProcessed records one fully-parsed request line.
func (c *Collector) RequestProcessed() {
	if c == nil {
		return
	}
	c.requestsTotal.Add(1)
}

// AuthFailure records a rejected authentication handshake.
func (c *Collector) AuthFailure() {
	if c == nil {
		return
	}
	c.authFailures.Add(1)
}

// ParseFailure records a request line rejected by the dispatcher.
func (c *Collector) ParseFailure() {
	if c == nil {
		return
	}
	c.parseFailures.Add(1)
}

// EvalFailure records one failed expression evaluation.
func (c *Collector) EvalFailure() {
	if c == nil {
		return
	}
	c.evalFailures.Add(1)
}

// BytesFramed records n bytes of framed reply written to a session.
func (c *Collector) BytesFramed(n int64) {
	if c == nil {
		return
	}
	c.bytesFramed.Add(n)
}

// ── Error bookkeeping ────────────────────────────────────────────────

// RecordError stores the most recent error message and timestamp.
func (c *Collector) RecordError(msg string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastError = time.Now()
	c.lastErrorMsg = msg
}

// ── Snapshot ─────────────────────────────────────────────────────────

// Snapshot is a point-in-time copy of every counter, suitable for
// logging or JSON serialization.
type Snapshot struct {
	UptimeSeconds  float64 `json:"uptime_seconds"`
	SessionsActive int64   `json:"sessions_active"`
	SessionsTotal  int64   `json:"sessions_total"`
	RequestsTotal  int64   `json:"requests_total"`
	AuthFailures   int64   `json:"auth_failures"`
	ParseFailures  int64   `json:"parse_failures"`
	EvalFailures   int64   `json:"eval_failures"`
	BytesFramed    int64   `json:"bytes_framed"`
	LastErrorMsg   string  `json:"last_error,omitempty"`
}

// Stats returns a consistent snapshot of all counters.
func (c *Collector) Stats() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.RLock()
	start, lastMsg := c.startTime, c.lastErrorMsg
	c.mu.RUnlock()

	return Snapshot{
		UptimeSeconds:  time.Since(start).Seconds(),
		SessionsActive: c.sessionsActive.Load(),
		SessionsTotal:  c.sessionsTotal.Load(),
		RequestsTotal:  c.requestsTotal.Load(),
		AuthFailures:   c.authFailures.Load(),
		ParseFailures:  c.parseFailures.Load(),
		EvalFailures:   c.evalFailures.Load(),
		BytesFramed:    c.bytesFramed.Load(),
		LastErrorMsg:   lastMsg,
	}
}

// JSON renders the snapshot for diagnostic endpoints and tests.
func (c *Collector) JSON() ([]byte, error) {
	return json.Marshal(c.Stats())
}
