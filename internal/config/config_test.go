package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadCreatesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conf", "nightfall.toml")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "nightfall.org:4242", cfg.Network.Addr())
	assert.Equal(t, 50*time.Millisecond, cfg.Framing.PreLoginTimeout)
	assert.Contains(t, cfg.Trigger.Commands, "look")

	_, err = os.Stat(path)
	require.NoError(t, err, "defaults are written out")

	again, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, again)
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nightfall.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[network]
host = "localhost"
port = 2000

[walk]
stuck_timeout = "5s"
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "localhost:2000", cfg.Network.Addr())
	assert.Equal(t, "quit", cfg.Network.QuitCommand)
	assert.Equal(t, 5*time.Second, cfg.Walk.StuckTimeout)
	assert.Equal(t, 3, cfg.Walk.MaxFailures)
}

func TestLoadRejectsBadToml(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.toml")
	require.NoError(t, os.WriteFile(path, []byte("[network\n"), 0o600))
	_, err := Load(path)
	assert.ErrorContains(t, err, "parse config")
}

func TestSealOpen(t *testing.T) {
	sealed, err := Seal("mellon", "speak friend")
	require.NoError(t, err)
	assert.True(t, IsSealed(sealed))
	assert.NotContains(t, sealed, "mellon")

	plain, err := Open(sealed, "speak friend")
	require.NoError(t, err)
	assert.Equal(t, "mellon", plain)

	_, err = Open(sealed, "wrong")
	assert.ErrorIs(t, err, ErrBadPassphrase)

	plain, err = Open("unsealed", "")
	require.NoError(t, err)
	assert.Equal(t, "unsealed", plain)
}

func TestFileCredentialStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nightfall.toml")
	require.NoError(t, os.WriteFile(path, []byte("[network]\nport = 2000\n"), 0o600))

	store := NewFileCredentialStore(path, "secret")
	require.NoError(t, store.SaveCredentials("frodo", "ring"))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "frodo", cfg.Credentials.User)
	assert.Equal(t, 2000, cfg.Network.Port, "other settings survive")
	assert.True(t, IsSealed(cfg.Credentials.Pass))

	pass, err := cfg.Credentials.Password("secret")
	require.NoError(t, err)
	assert.Equal(t, "ring", pass)

	_, err = cfg.Credentials.Password("")
	assert.Error(t, err)
}
