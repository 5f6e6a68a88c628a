// Package client implements the short-lived counterpart of the editing
// server: it resolves the rendezvous endpoint, dials it with bounded
// retry, sends a single request line, and streams the framed replies
// back until the server hangs up.
package client

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"github.com/aeronwang/emacsfork/config"
	errs "github.com/aeronwang/emacsfork/internal/errors"
	"github.com/aeronwang/emacsfork/sexp"
	"github.com/aeronwang/emacsfork/util"
	"github.com/aeronwang/emacsfork/wire"
)

// Result carries everything one exchange produced.
type Result struct {
	// ServerPID is announced by the server before any reply.
	ServerPID int
	// Output is the concatenation of every unquoted -print and
	// -print-nonl payload, in arrival order.
	Output string
	// WindowSystemUnsupported reports that a requested graphical
	// surface was degraded away.
	WindowSystemUnsupported bool
}

// Client owns one connection to a running server.
type Client struct {
	conn    net.Conn
	log     zerolog.Logger
	timeout time.Duration
	authKey string
}

// Dial resolves the endpoint from cfg and connects to it.  Remote mode
// (server file) reads the address and secret from the server file;
// local mode dials the unix socket directly, no secret needed.  Dial
// failures are retried with exponential backoff until cfg.Timeout
// elapses, then reported as ErrServerUnreachable.
func Dial(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*Client, error) {
	network, addr, key, err := resolveEndpoint(cfg)
	if err != nil {
		return nil, err
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = config.DefaultTimeout
	}

	var conn net.Conn
	dialer := net.Dialer{}
	op := func() error {
		var err error
		conn, err = dialer.DialContext(ctx, network, addr)
		return err
	}
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 50 * time.Millisecond
	bo.MaxElapsedTime = timeout
	if err := backoff.Retry(op, backoff.WithContext(bo, ctx)); err != nil {
		log.Debug().Err(err).Str("addr", addr).Msg("dial gave up")
		return nil, fmt.Errorf("connect %s: %w", addr, errs.ErrServerUnreachable)
	}

	log.Debug().Str("network", network).Str("addr", addr).Msg("connected")
	return &Client{conn: conn, log: log, timeout: timeout, authKey: key}, nil
}

// resolveEndpoint picks the rendezvous point the way the request side
// of the protocol defines it: a server file names a TCP endpoint plus
// its secret, otherwise the local socket path is used as-is.
func resolveEndpoint(cfg *config.Config) (network, addr, key string, err error) {
	if cfg.UseTCP || cfg.ServerFile != "" {
		serverFile := cfg.ServerFile
		if serverFile == "" {
			serverFile = config.DefaultServerFile()
		}
		addr, key, err = config.ReadServerFile(serverFile)
		if err != nil {
			return "", "", "", fmt.Errorf("server file: %w", err)
		}
		if _, _, err := util.SplitAddr(addr); err != nil {
			return "", "", "", fmt.Errorf("server file: %w", err)
		}
		return "tcp", addr, key, nil
	}

	socket := cfg.SocketPath
	if socket == "" {
		socket = config.DefaultSocketPath()
	}
	return "unix", socket, "", nil
}

// Close releases the connection.
func (c *Client) Close() error { return c.conn.Close() }

// Do sends one request line and reads replies until the server closes
// the session.  The authentication prefix is prepended automatically
// on endpoints that carry a secret.  A framed -error reply is returned
// as an error alongside whatever output preceded it.
func (c *Client) Do(ctx context.Context, req *Request) (*Result, error) {
	if req.Empty() {
		return nil, fmt.Errorf("empty request")
	}
	tokens := req.tokens
	if c.authKey != "" {
		tokens = append([]string{"-auth", c.authKey}, tokens...)
	}
	line := strings.Join(tokens, " ") + "\n"

	if deadline, ok := ctx.Deadline(); ok {
		c.conn.SetDeadline(deadline)
	} else if c.timeout > 0 {
		c.conn.SetDeadline(time.Now().Add(c.timeout))
	}

	if _, err := c.conn.Write([]byte(line)); err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}

	res := &Result{}
	sc := bufio.NewScanner(c.conn)
	for sc.Scan() {
		if err := c.consumeReply(sc.Text(), res); err != nil {
			return res, err
		}
	}
	// EOF is the normal end of a session; anything else is a real
	// transport failure.
	if err := sc.Err(); err != nil {
		return res, fmt.Errorf("read replies: %w", err)
	}
	return res, nil
}

// consumeReply folds one framed server line into res.
func (c *Client) consumeReply(line string, res *Result) error {
	switch {
	case strings.HasPrefix(line, wire.PrefixPID+" "):
		pid, err := strconv.Atoi(line[len(wire.PrefixPID)+1:])
		if err != nil {
			return fmt.Errorf("malformed pid announcement %q", line)
		}
		res.ServerPID = pid

	case strings.HasPrefix(line, wire.PrefixPrint):
		res.Output += wire.Unquote(line[len(wire.PrefixPrint):])

	case strings.HasPrefix(line, wire.PrefixPrintMore):
		res.Output += wire.Unquote(line[len(wire.PrefixPrintMore):])

	case line == wire.NoticeNoWindowSys:
		res.WindowSystemUnsupported = true

	case strings.HasPrefix(line, wire.PrefixError):
		msg := wire.Unquote(line[len(wire.PrefixError):])
		if msg == "Authentication failed" {
			return fmt.Errorf("%s: %w", c.conn.RemoteAddr(), errs.ErrAuthFailed)
		}
		return fmt.Errorf("server: %s", msg)

	default:
		c.log.Debug().Str("line", line).Msg("ignoring unknown reply")
	}
	return nil
}

// Eval sends a single expression and parses the printed result as a
// lisp literal, returning its canonical rendering.  Output the server
// produced before a failure is discarded; a result that does not read
// as a literal is ErrUnreadableResult.
func (c *Client) Eval(ctx context.Context, expr string) (string, error) {
	res, err := c.Do(ctx, NewRequest().Eval(expr))
	if err != nil {
		return "", err
	}
	val, err := sexp.Parse(res.Output)
	if err != nil {
		return "", fmt.Errorf("%q: %w", res.Output, errs.ErrUnreadableResult)
	}
	return sexp.Print(val), nil
}
