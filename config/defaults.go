package config

import "time"

// ── Default values ───────────────────────────────────────────────────
//
// All tuneable defaults live here so they are easy to audit and reuse
// across CLI flags and environment variable loading.

const (
	// AuthKeyLen is the length of the shared authentication secret.
	AuthKeyLen = 64

	// DefaultHost is the address the daemon binds its TCP endpoint to.
	DefaultHost = "127.0.0.1"

	// DefaultTimeout bounds a client's dial plus read of one request.
	DefaultTimeout = 30 * time.Second

	// DefaultGraceDelay is how long an erroring session is held open
	// so the client can read the -error reply before the close.
	DefaultGraceDelay = 1 * time.Second

	// DefaultReadBuffer sizes the per-connection read buffer.  Request
	// lines are short; oversized lines simply take several reads.
	DefaultReadBuffer = 4096
)
