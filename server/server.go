// Package server implements the connection protocol engine of the
// shared editing server: the listener, the per-connection
// authentication handshake, the line-oriented dispatcher, the reply
// framing layer, and the client-session lifecycle.
package server

import (
	"context"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/aeronwang/emacsfork/config"
	"github.com/aeronwang/emacsfork/editor"
	"github.com/aeronwang/emacsfork/internal/metrics"
)

// Server owns the listeners and every accepted session.
type Server struct {
	cfg     *config.Config
	ed      editor.Editor
	log     zerolog.Logger
	reg     *Registry
	metrics *metrics.Collector

	authKey string
	pid     int
	grace   time.Duration
}

// New wires a server to its editor collaborator.  The TCP secret is
// taken from the config or generated when absent.
func New(cfg *config.Config, ed editor.Editor, log zerolog.Logger) (*Server, error) {
	authKey := cfg.AuthKey
	if authKey == "" && cfg.UseTCP {
		var err error
		if authKey, err = config.GenerateAuthKey(); err != nil {
			return nil, err
		}
	}

	grace := cfg.GraceDelay
	if grace == 0 {
		grace = config.DefaultGraceDelay
	}

	s := &Server{
		cfg:     cfg,
		ed:      ed,
		log:     log,
		reg:     NewRegistry(log),
		metrics: metrics.New(),
		authKey: authKey,
		pid:     os.Getpid(),
		grace:   grace,
	}
	ed.OnDocumentDone(s.documentDone)
	return s, nil
}

// Registry exposes the session table for diagnostics and host wiring.
func (s *Server) Registry() *Registry { return s.reg }

// Metrics exposes the runtime counters.
func (s *Server) Metrics() *metrics.Collector { return s.metrics }

// Run binds every configured endpoint and serves until ctx is done.
// Bind failures (endpoint claimed by a live server) are returned
// synchronously before any connection is accepted.
func (s *Server) Run(ctx context.Context) error {
	type bound struct {
		ln      net.Listener
		preAuth bool
	}
	var listeners []bound

	if s.cfg.SocketPath != "" {
		ln, err := s.bindUnix(s.cfg.SocketPath)
		if err != nil {
			return err
		}
		// Local-domain sessions are pre-authenticated: trust is
		// established by filesystem permissions.
		listeners = append(listeners, bound{ln, true})
		defer os.Remove(s.cfg.SocketPath)
	}

	if s.cfg.UseTCP {
		ln, addr, err := s.bindTCP()
		if err != nil {
			for _, b := range listeners {
				b.ln.Close()
			}
			return err
		}
		serverFile := s.cfg.ServerFile
		if serverFile == "" {
			serverFile = config.DefaultServerFile()
		}
		if err := config.WriteServerFile(serverFile, addr, s.authKey); err != nil {
			ln.Close()
			for _, b := range listeners {
				b.ln.Close()
			}
			return err
		}
		defer config.RemoveServerFile(serverFile)
		listeners = append(listeners, bound{ln, false})
	}

	if len(listeners) == 0 {
		return fmt.Errorf("no endpoints configured")
	}

	// Shut the listeners down when the context expires.
	go func() {
		<-ctx.Done()
		for _, b := range listeners {
			b.ln.Close()
		}
	}()

	errc := make(chan error, len(listeners))
	for _, b := range listeners {
		b := b
		go func() { errc <- s.acceptLoop(ctx, b.ln, b.preAuth) }()
	}

	var firstErr error
	for range listeners {
		if err := <-errc; err != nil && firstErr == nil {
			firstErr = err
		}
	}

	// Drop every remaining session before returning.
	s.reg.ForEach(s.teardown)
	if counters, err := s.metrics.JSON(); err == nil {
		s.log.Info().RawJSON("counters", counters).Msg("server stopped")
	}
	return firstErr
}

// ── request processing ───────────────────────────────────────────────

// processLine handles one complete request line for one session.  The
// return value is true when the session is finished.
func (s *Server) processLine(ctx context.Context, sess *Session, line string) bool {
	sess.procMu.Lock()
	defer sess.procMu.Unlock()

	// A pending continuation runs before any further request.
	if fn := sess.takeContinuation(); fn != nil {
		if err := fn(); err != nil {
			s.failSession(sess, err.Error())
			return true
		}
	}

	if !sess.authenticated {
		rest, err := s.authenticate(sess, line)
		if err != nil {
			s.metrics.AuthFailure()
			sess.log.Warn().Msg("authentication failed")
			s.failSession(sess, "Authentication failed")
			return true
		}
		line = rest
		if line == "" {
			return false
		}
	}

	s.metrics.RequestProcessed()
	plan, err := BuildPlan(line)
	if err != nil {
		s.metrics.ParseFailure()
		s.metrics.RecordError(err.Error())
		s.failSession(sess, err.Error())
		return true
	}

	return s.execute(ctx, sess, plan)
}

// failSession reports one framed -error, waits out the grace delay so
// the client can read it, and leaves the close to the caller.
func (s *Server) failSession(sess *Session, msg string) {
	if _, err := sess.SendError(msg); err != nil {
		sess.log.Debug().Err(err).Msg("client gone before error report")
		return
	}
	time.Sleep(s.grace)
}

// closeAfterGrace holds an erroring session open briefly without
// sending anything further.
func (s *Server) closeAfterGrace(_ *Session) {
	time.Sleep(s.grace)
}

// teardown removes a session from the registry, releases its surface,
// and closes its connection.  Safe to call any number of times.
func (s *Server) teardown(sess *Session) {
	if !s.reg.Remove(sess.ID) {
		return
	}
	// A disconnected session's pending continuation is discarded.
	sess.takeContinuation()
	if surf := sess.takeOwnedSurface(); surf != nil {
		s.ed.DeleteSurface(surf)
	}
	sess.conn.Close()
	s.metrics.SessionClosed()
	sess.log.Debug().Msg("session closed")
}

// ── editor-side events ───────────────────────────────────────────────

// documentDone consumes the editor's completion event: the session
// responsible for the document forgets it, and once nothing is left to
// wait for the session gets the same teardown a no-op request would.
func (s *Server) documentDone(doc editor.Document) {
	s.reg.ForEach(func(sess *Session) {
		if !sess.dropDocument(doc.ID()) {
			return
		}
		sess.log.Debug().Str("doc", doc.ID()).Msg("document done")
		if !sess.isKeepAlive() && !sess.hasWork() {
			s.teardown(sess)
		}
	})
}

// FlushContinuations is the host's signal that the environment is safe
// again (the modal interaction unwound): every armed continuation runs
// exactly once.
func (s *Server) FlushContinuations() {
	s.reg.ForEach(func(sess *Session) {
		sess.procMu.Lock()
		defer sess.procMu.Unlock()
		fn := sess.takeContinuation()
		if fn == nil {
			return
		}
		if err := fn(); err != nil {
			s.failSession(sess, err.Error())
			s.teardown(sess)
		}
	})
}
