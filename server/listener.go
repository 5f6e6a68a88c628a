package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/aeronwang/emacsfork/config"
	errs "github.com/aeronwang/emacsfork/internal/errors"
	"github.com/aeronwang/emacsfork/util"
	"github.com/aeronwang/emacsfork/wire"
)

// bindUnix claims the local-domain rendezvous socket.  A socket file
// with a live server behind it yields AlreadyRunningError; a stale
// file left by a crashed server is removed and reclaimed.
func (s *Server) bindUnix(path string) (net.Listener, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("socket dir: %w", err)
	}

	if _, err := os.Stat(path); err == nil {
		probe, err := net.DialTimeout("unix", path, 500*time.Millisecond)
		if err == nil {
			probe.Close()
			return nil, &errs.AlreadyRunningError{Endpoint: path}
		}
		s.log.Info().Str("socket", path).Msg("removing stale socket file")
		if err := os.Remove(path); err != nil {
			return nil, fmt.Errorf("removing stale socket: %w", err)
		}
	}

	ln, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", path, err)
	}
	s.log.Info().Str("socket", path).Msg("listening (unix)")
	return ln, nil
}

// bindTCP claims the remote-capable endpoint and returns the bound
// address for the server file.
func (s *Server) bindTCP() (net.Listener, string, error) {
	host := s.cfg.Host
	if host == "" {
		host = config.DefaultHost
	}
	addr := util.FormatAddr(host, s.cfg.Port)

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		if errors.Is(err, syscall.EADDRINUSE) {
			return nil, "", &errs.AlreadyRunningError{Endpoint: addr, Err: err}
		}
		return nil, "", fmt.Errorf("listen on %s: %w", addr, err)
	}
	bound := ln.Addr().String()
	s.log.Info().Str("addr", bound).Msg("listening (tcp)")
	return ln, bound, nil
}

// acceptLoop accepts connections until the listener closes.  Nothing
// done for one session ever blocks this loop.
func (s *Server) acceptLoop(ctx context.Context, ln net.Listener, preAuth bool) error {
	endpoint := "tcp"
	if preAuth {
		endpoint = "local"
	}
	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				return fmt.Errorf("accept: %w", err)
			}
		}
		s.log.Debug().Str("remote", conn.RemoteAddr().String()).Msg("connection accepted")
		go s.serveConn(ctx, conn, endpoint, preAuth)
	}
}

// serveConn owns one connection for its whole life: register the
// session, announce the server pid, then feed complete lines to the
// dispatcher one per read cycle.
func (s *Server) serveConn(ctx context.Context, conn net.Conn, endpoint string, preAuth bool) {
	sess := newSession(conn, endpoint, preAuth, s.log)
	if !s.reg.Add(sess) {
		conn.Close()
		return
	}
	s.metrics.SessionOpened()
	defer s.teardown(sess)

	// Unsolicited greeting, before any request is parsed, so the
	// client can correlate signals with this server even if
	// authentication later fails.
	if _, err := sess.SendLine(fmt.Sprintf("%s %d", wire.PrefixPID, s.pid)); err != nil {
		return
	}

	buf := make([]byte, config.DefaultReadBuffer)
	for {
		n, err := conn.Read(buf)
		if err != nil {
			return
		}
		line, ok := sess.Feed(buf[:n])
		for ok {
			if done := s.processLine(ctx, sess, line); done {
				return
			}
			// Pipelined requests already buffered are drained before
			// the next read.
			line, ok = sess.Feed(nil)
		}
	}
}
