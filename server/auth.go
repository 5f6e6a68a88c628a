package server

import (
	"crypto/subtle"
	"strings"

	errs "github.com/aeronwang/emacsfork/internal/errors"
)

const authPrefix = "-auth "

// authenticate validates the first line of an unauthenticated session.
// It must start with "-auth <key>" where key matches the server's
// secret byte for byte.  On success the consumed prefix is stripped
// and the remainder of the line is returned so it can be parsed as the
// start of a real request.  Authentication is attempted at most once
// per session; any failure is terminal.
func (s *Server) authenticate(sess *Session, line string) (string, error) {
	if s.authKey == "" {
		// No secret configured for this endpoint kind: refuse rather
		// than accept everyone.
		return "", errs.ErrAuthFailed
	}
	if !strings.HasPrefix(line, authPrefix) {
		return "", errs.ErrAuthFailed
	}
	rest := line[len(authPrefix):]

	key := rest
	if i := strings.IndexByte(rest, ' '); i >= 0 {
		key, rest = rest[:i], rest[i+1:]
	} else {
		rest = ""
	}

	if len(key) != len(s.authKey) ||
		subtle.ConstantTimeCompare([]byte(key), []byte(s.authKey)) != 1 {
		return "", errs.ErrAuthFailed
	}

	sess.authenticated = true
	sess.log.Debug().Msg("session authenticated")
	return rest, nil
}
