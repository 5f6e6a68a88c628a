package server

import (
	"bytes"
	"net"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aeronwang/emacsfork/editor"
	"github.com/aeronwang/emacsfork/wire"
)

// Session is the per-connection state of one client, from accept to
// teardown.  The connection is owned exclusively by the session; the
// read loop processes requests strictly sequentially, so only the
// fields touched by editor callbacks need locking.
type Session struct {
	ID       string
	Endpoint string // "local" or "tcp", for diagnostics

	conn          net.Conn
	authenticated bool
	pending       []byte // buffered bytes not yet forming a complete line
	log           zerolog.Logger

	// procMu serializes request processing with continuation
	// invocation; a session never has two requests in flight.
	procMu sync.Mutex

	mu           sync.Mutex
	env          []editor.EnvVar
	dir          string
	surface      editor.Surface
	surfaceOwned bool // created for this session, so teardown deletes it
	documents    map[string]editor.Document
	continuation func() error
	keepAlive    bool
}

func newSession(conn net.Conn, endpoint string, authenticated bool, log zerolog.Logger) *Session {
	id := uuid.NewString()
	return &Session{
		ID:            id,
		Endpoint:      endpoint,
		conn:          conn,
		authenticated: authenticated,
		documents:     make(map[string]editor.Document),
		log:           log.With().Str("session", id[:8]).Str("endpoint", endpoint).Logger(),
	}
}

// ── line buffering ───────────────────────────────────────────────────

// Feed appends freshly-read bytes to the pending buffer and extracts
// at most one complete request line.  Bytes past the first newline
// remain buffered for a later read cycle; pipelined commands are
// deliberately not drained in one go.
func (c *Session) Feed(p []byte) (string, bool) {
	c.pending = append(c.pending, p...)
	i := bytes.IndexByte(c.pending, '\n')
	if i < 0 {
		return "", false
	}
	line := string(c.pending[:i])
	c.pending = append(c.pending[:0], c.pending[i+1:]...)
	return line, true
}

// ── replies ──────────────────────────────────────────────────────────

// SendLine writes one raw protocol line.  The write error doubles as
// disconnect detection.
func (c *Session) SendLine(line string) (int, error) {
	return c.conn.Write(append([]byte(line), '\n'))
}

// SendPrint frames text into -print/-print-nonl chunks and writes them.
func (c *Session) SendPrint(text string) (int, error) {
	total := 0
	for _, line := range wire.FramePrint(text) {
		n, err := c.SendLine(line)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// SendError writes a single framed -error reply.
func (c *Session) SendError(msg string) (int, error) {
	return c.SendLine(wire.FrameError(msg))
}

// ── session state ────────────────────────────────────────────────────

func (c *Session) addEnv(vars []editor.EnvVar) {
	c.mu.Lock()
	c.env = append(c.env, vars...)
	c.mu.Unlock()
}

func (c *Session) envCopy() []editor.EnvVar {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]editor.EnvVar, len(c.env))
	copy(out, c.env)
	return out
}

func (c *Session) setDir(dir string) {
	c.mu.Lock()
	c.dir = dir
	c.mu.Unlock()
}

func (c *Session) getDir() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dir
}

func (c *Session) markKeepAlive() {
	c.mu.Lock()
	c.keepAlive = true
	c.mu.Unlock()
}

func (c *Session) isKeepAlive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.keepAlive
}

func (c *Session) setSurface(s editor.Surface, owned bool) {
	c.mu.Lock()
	c.surface = s
	c.surfaceOwned = owned
	c.mu.Unlock()
}

// takeOwnedSurface detaches the surface and returns it only when this
// session created it; a reused current surface is not ours to delete.
func (c *Session) takeOwnedSurface() editor.Surface {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.surface
	owned := c.surfaceOwned
	c.surface = nil
	c.surfaceOwned = false
	if !owned {
		return nil
	}
	return s
}

func (c *Session) addDocument(d editor.Document) {
	c.mu.Lock()
	c.documents[d.ID()] = d
	c.mu.Unlock()
}

// dropDocument forgets the given document and reports whether this
// session was responsible for it.
func (c *Session) dropDocument(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.documents[id]; !ok {
		return false
	}
	delete(c.documents, id)
	return true
}

// setContinuation arms the single-slot deferred action.  A session
// holds at most one; arming while one is pending is a caller bug.
func (c *Session) setContinuation(fn func() error) {
	c.mu.Lock()
	c.continuation = fn
	c.mu.Unlock()
}

// takeContinuation disarms and returns the pending action, if any.
func (c *Session) takeContinuation() func() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	fn := c.continuation
	c.continuation = nil
	return fn
}

// hasWork reports whether anything keeps this session open: documents
// it is waiting on, an attached surface, or a pending continuation.
func (c *Session) hasWork() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.documents) > 0 || c.surface != nil || c.continuation != nil
}
