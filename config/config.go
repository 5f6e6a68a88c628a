// Package config defines the runtime configuration for emacsfork and
// provides helpers for locating the rendezvous endpoints (socket path
// and server file) and generating the shared authentication secret.
package config

import (
	"crypto/rand"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Config holds every tuneable for one emacsfork invocation, daemon or
// client.
type Config struct {
	// ── Mode ─────────────────────────────────────────────────────────
	Daemon bool

	// ── Rendezvous ───────────────────────────────────────────────────
	SocketPath string // local-domain socket; trust by file permissions
	ServerFile string // remote mode: file holding "addr:port\nsecret"
	UseTCP     bool   // daemon: also listen on TCP
	Host       string // daemon TCP bind host
	Port       int    // daemon TCP bind port (0 = pick a free one)
	AuthKey    string // remote-endpoint secret; generated when empty

	// ── Client request ───────────────────────────────────────────────
	NoWait       bool
	CurrentFrame bool
	CreateFrame  bool // request a graphical surface
	Display      string
	ParentID     string
	TTY          bool // attach a text surface on the invoking terminal
	FrameAttr    string
	Dir          string
	Evals        []string
	Args         []string // positional: files, with +LINE[:COL] markers

	// ── Timing ───────────────────────────────────────────────────────
	Timeout    time.Duration // client dial/read timeout
	GraceDelay time.Duration // pause before closing an erroring session

	// ── Output ───────────────────────────────────────────────────────
	Verbose int
}

// ── Defaults ─────────────────────────────────────────────────────────

// runtimeDir returns the per-user directory for the rendezvous socket.
func runtimeDir() string {
	if d := os.Getenv("XDG_RUNTIME_DIR"); d != "" {
		return filepath.Join(d, "emacsfork")
	}
	return filepath.Join(os.TempDir(), "emacsfork"+strconv.Itoa(os.Getuid()))
}

// DefaultSocketPath is where the daemon binds its local-domain socket
// unless configured otherwise.
func DefaultSocketPath() string {
	return filepath.Join(runtimeDir(), "server")
}

// DefaultServerFile is where the daemon records its TCP endpoint and
// secret for remote clients.
func DefaultServerFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(runtimeDir(), "server-file")
	}
	return filepath.Join(home, ".emacsfork", "server")
}

// ── Authentication key ───────────────────────────────────────────────

// authKeyChars spans the printable ASCII range used for secrets.
const authKeyChars = "!\"#$%&'()*+,-./0123456789:;<=>?@" +
	"ABCDEFGHIJKLMNOPQRSTUVWXYZ[\\]^_`" +
	"abcdefghijklmnopqrstuvwxyz{|}~"

// GenerateAuthKey produces the per-instance shared secret: AuthKeyLen
// printable-ASCII characters from the system entropy source.
func GenerateAuthKey() (string, error) {
	raw := make([]byte, AuthKeyLen)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("generating auth key: %w", err)
	}
	key := make([]byte, AuthKeyLen)
	for i, b := range raw {
		key[i] = authKeyChars[int(b)%len(authKeyChars)]
	}
	return string(key), nil
}

// ── Validation ───────────────────────────────────────────────────────

// Validate checks that the configuration is internally consistent.
func (c *Config) Validate() error {
	if c.Daemon {
		if c.SocketPath == "" && !c.UseTCP {
			return fmt.Errorf("daemon mode needs a socket path or --tcp")
		}
		if c.AuthKey != "" && len(c.AuthKey) != AuthKeyLen {
			return fmt.Errorf("auth key must be exactly %d characters", AuthKeyLen)
		}
		if len(c.Evals) > 0 || len(c.Args) > 0 {
			return fmt.Errorf("daemon mode takes no request arguments")
		}
		return nil
	}

	if len(c.Evals) == 0 && len(c.Args) == 0 {
		return fmt.Errorf("nothing to do: give files or --eval (use --help for usage)")
	}
	if c.CurrentFrame && c.CreateFrame {
		return fmt.Errorf("--current-frame and --create-frame are mutually exclusive")
	}
	if c.Port != 0 && (c.Port < 1 || c.Port > 65535) {
		return fmt.Errorf("port %d out of range 1-65535", c.Port)
	}
	return nil
}
