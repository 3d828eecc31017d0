package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rezonia/pdfsig-verifier/internal/signature"
	"github.com/rezonia/pdfsig-verifier/internal/signature/trust"
	"github.com/rezonia/pdfsig-verifier/internal/testpki"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.True(t, cfg.Verification.Enabled)
	assert.True(t, cfg.Verification.CheckRevocation)
	assert.Equal(t, 1, cfg.Verification.Workers)
	assert.Equal(t, ":8080", cfg.Server.Address)
	assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, int64(50<<20), cfg.Server.MaxBodyBytes)
	assert.Equal(t, DefaultStorePath(), cfg.Store.Path)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pdfsig.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
verification:
  ignore_expiration_date: true
  workers: 4
store:
  path: /var/lib/pdfsig/store.bin
server:
  address: 127.0.0.1:9000
  write_timeout: 90s
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.True(t, cfg.Verification.Enabled, "unset keys keep their defaults")
	assert.True(t, cfg.Verification.IgnoreExpirationDate)
	assert.Equal(t, 4, cfg.Verification.Workers)
	assert.Equal(t, "/var/lib/pdfsig/store.bin", cfg.Store.Path)
	assert.Equal(t, "127.0.0.1:9000", cfg.Server.Address)
	assert.Equal(t, 90*time.Second, cfg.Server.WriteTimeout)
	assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		yaml  string
		field string
	}{
		{"syntax", "verification: [", ""},
		{"zero workers", "verification:\n  workers: 0\n", "verification.workers"},
		{"empty address", "server:\n  address: \"\"\n", "server.address"},
		{"negative timeout", "server:\n  read_timeout: -1s\n", "server.read_timeout"},
		{"zero body limit", "server:\n  max_body_bytes: 0\n", "server.max_body_bytes"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidConfig)

			var cfgErr *ConfigError
			require.True(t, errors.As(err, &cfgErr))
			assert.Equal(t, tt.field, cfgErr.Field)
		})
	}
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		EnvStore:            "/tmp/store.bin",
		EnvIgnoreExpiration: "true",
		EnvUseSystemStore:   "0",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	cfg := Default()
	cfg.Verification.UseSystemStore = true
	require.NoError(t, cfg.applyEnv(lookup))

	assert.Equal(t, "/tmp/store.bin", cfg.Store.Path)
	assert.True(t, cfg.Verification.IgnoreExpirationDate)
	assert.False(t, cfg.Verification.UseSystemStore)

	env[EnvIgnoreExpiration] = "sometimes"
	err := cfg.applyEnv(lookup)
	assert.ErrorIs(t, err, ErrInvalidConfig)
	assert.Contains(t, err.Error(), "verification.ignore_expiration_date")
}

func TestApplyEnv_Process(t *testing.T) {
	t.Setenv(EnvStore, "/srv/store.bin")
	t.Setenv(EnvUseSystemStore, "")

	cfg := Default()
	require.NoError(t, cfg.ApplyEnv())
	assert.Equal(t, "/srv/store.bin", cfg.Store.Path)
	assert.False(t, cfg.Verification.UseSystemStore)
}

func TestLoadStore(t *testing.T) {
	cfg := Default()
	cfg.Store.Path = ""
	store, err := cfg.LoadStore()
	require.NoError(t, err)
	assert.Equal(t, 0, store.Len())

	cfg.Store.Path = filepath.Join(t.TempDir(), "absent.bin")
	_, err = cfg.LoadStore()
	assert.ErrorIs(t, err, ErrMissingStore)

	pki := testpki.New(t)
	saved := trust.NewCertificateStore()
	_, err = saved.AddDER(trust.EntryTypeUser, pki.Root.Raw)
	require.NoError(t, err)
	require.NoError(t, saved.SaveFile(cfg.Store.Path))

	store, err = cfg.LoadStore()
	require.NoError(t, err)
	assert.Equal(t, 1, store.Len())

	corrupt := filepath.Join(t.TempDir(), "corrupt.bin")
	require.NoError(t, os.WriteFile(corrupt, []byte{0xff, 0xff, 0xff, 0xff, 0x01}, 0o600))
	cfg.Store.Path = corrupt
	_, err = cfg.LoadStore()
	assert.ErrorIs(t, err, signature.ErrStoreCorrupt("", nil))
}

func TestParameters(t *testing.T) {
	cfg := Default()
	cfg.Verification.IgnoreExpirationDate = true
	cfg.Verification.Workers = 3

	store := trust.NewCertificateStore()
	params := cfg.Parameters(store)

	assert.Same(t, store, params.Store)
	assert.True(t, params.EnableVerification)
	assert.True(t, params.IgnoreExpirationDate)
	assert.False(t, params.UseSystemCertificateStore)
	assert.Equal(t, 3, params.Workers)
	assert.NotNil(t, params.RevocationCache)

	cfg.Verification.CheckRevocation = false
	assert.Nil(t, cfg.Parameters(store).RevocationCache)
}
