package config

// loader.go - configuration loading from environment variables and the
// server file.
//
// Precedence order (highest wins):
//   1. CLI flags  (handled by cmd/root.go)
//   2. Environment variables  (this file)
//   3. Defaults   (defaults.go)

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// ── Environment variable mapping ─────────────────────────────────────
//
// Every supported env var uses the EMACSFORK_ prefix.  Boolean values
// accept "1", "true", "yes" (case-insensitive).

// LoadFromEnv overlays environment variables onto cfg.  Only non-empty
// env vars override the existing value.  This should be called BEFORE
// CLI flag parsing so that flags take precedence.
func LoadFromEnv(cfg *Config) {
	if v := os.Getenv("EMACSFORK_SOCKET"); v != "" {
		cfg.SocketPath = v
	}
	if v := os.Getenv("EMACSFORK_SERVER_FILE"); v != "" {
		cfg.ServerFile = v
	}
	if v := os.Getenv("EMACSFORK_HOST"); v != "" {
		cfg.Host = v
	}
	if v := envInt("EMACSFORK_PORT"); v > 0 {
		cfg.Port = v
	}
	if envBool("EMACSFORK_TCP") {
		cfg.UseTCP = true
	}
	if v := envInt("EMACSFORK_TIMEOUT"); v > 0 {
		cfg.Timeout = time.Duration(v) * time.Second
	}
	if v := envInt("EMACSFORK_VERBOSE"); v > 0 {
		cfg.Verbose = v
	}
}

func envInt(name string) int {
	v := os.Getenv(name)
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return n
}

func envBool(name string) bool {
	switch strings.ToLower(os.Getenv(name)) {
	case "1", "true", "yes":
		return true
	}
	return false
}

// ── Server file ──────────────────────────────────────────────────────
//
// Remote mode rendezvous: a plain-text file whose first line is the
// TCP endpoint and whose second line is the shared secret.

// WriteServerFile persists "addr\nkey" at path, creating parent
// directories.  Mode 0600: the secret is the whole trust model.
func WriteServerFile(path, addr, key string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("server file dir: %w", err)
	}
	data := addr + "\n" + key
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		return fmt.Errorf("writing server file: %w", err)
	}
	return nil
}

// ReadServerFile parses the endpoint and secret back out of path.
func ReadServerFile(path string) (addr, key string, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", "", fmt.Errorf("reading server file: %w", err)
	}
	lines := strings.SplitN(strings.TrimRight(string(data), "\n"), "\n", 2)
	if len(lines) != 2 || lines[0] == "" {
		return "", "", fmt.Errorf("malformed server file %s", path)
	}
	addr, key = lines[0], lines[1]
	if len(key) != AuthKeyLen {
		return "", "", fmt.Errorf("malformed server file %s: bad key length %d", path, len(key))
	}
	return addr, key, nil
}

// RemoveServerFile deletes the rendezvous file on clean shutdown.
// A missing file is not an error.
func RemoveServerFile(path string) error {
	err := os.Remove(path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing server file: %w", err)
	}
	return nil
}
