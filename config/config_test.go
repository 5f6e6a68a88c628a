package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAuthKey(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 8; i++ {
		key, err := GenerateAuthKey()
		require.NoError(t, err)
		require.Len(t, key, AuthKeyLen)
		for _, c := range key {
			assert.True(t, c >= '!' && c <= '~', "non-printable %q in key", c)
		}
		assert.False(t, seen[key], "duplicate key generated")
		seen[key] = true
	}
}

func TestServerFileRoundTrip(t *testing.T) {
	key, err := GenerateAuthKey()
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "sub", "server")

	require.NoError(t, WriteServerFile(path, "127.0.0.1:9999", key))

	addr, gotKey, err := ReadServerFile(path)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9999", addr)
	assert.Equal(t, key, gotKey)

	require.NoError(t, RemoveServerFile(path))
	require.NoError(t, RemoveServerFile(path)) // second removal is fine

	_, _, err = ReadServerFile(path)
	assert.Error(t, err)
}

func TestReadServerFileMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "server")

	require.NoError(t, os.WriteFile(path, []byte("one-line-only"), 0o600))
	_, _, err := ReadServerFile(path)
	assert.Error(t, err, "missing key line")

	// Key of the wrong length.
	require.NoError(t, WriteServerFile(path, "127.0.0.1:1", "short"))
	_, _, err = ReadServerFile(path)
	assert.Error(t, err)
}

func TestValidateDaemon(t *testing.T) {
	cfg := &Config{Daemon: true}
	assert.Error(t, cfg.Validate(), "needs an endpoint")

	cfg.SocketPath = "/tmp/x/server"
	assert.NoError(t, cfg.Validate())

	cfg.AuthKey = "short"
	assert.Error(t, cfg.Validate())

	cfg.AuthKey = strings.Repeat("a", AuthKeyLen)
	assert.NoError(t, cfg.Validate())

	cfg.Evals = []string{"(+ 1 1)"}
	assert.Error(t, cfg.Validate(), "daemon takes no request args")
}

func TestValidateClient(t *testing.T) {
	cfg := &Config{}
	assert.Error(t, cfg.Validate(), "empty request")

	cfg.Evals = []string{"(+ 1 1)"}
	assert.NoError(t, cfg.Validate())

	cfg.CurrentFrame = true
	cfg.CreateFrame = true
	assert.Error(t, cfg.Validate())
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("EMACSFORK_SOCKET", "/run/test/server")
	t.Setenv("EMACSFORK_PORT", "4242")
	t.Setenv("EMACSFORK_TCP", "yes")
	t.Setenv("EMACSFORK_TIMEOUT", "7")

	cfg := &Config{}
	LoadFromEnv(cfg)
	assert.Equal(t, "/run/test/server", cfg.SocketPath)
	assert.Equal(t, 4242, cfg.Port)
	assert.True(t, cfg.UseTCP)
	assert.Equal(t, "7s", cfg.Timeout.String())
}

func TestDefaultPaths(t *testing.T) {
	assert.NotEmpty(t, DefaultSocketPath())
	assert.NotEmpty(t, DefaultServerFile())
}
