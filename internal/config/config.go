// Package config loads the verifier configuration file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/rezonia/pdfsig-verifier/internal/signature"
	"github.com/rezonia/pdfsig-verifier/internal/signature/trust"
)

// Environment variables that override the file
const (
	EnvStore            = "PDFSIG_STORE"
	EnvIgnoreExpiration = "PDFSIG_IGNORE_EXPIRATION"
	EnvUseSystemStore   = "PDFSIG_USE_SYSTEM_STORE"
)

// Common errors
var (
	ErrInvalidConfig = errors.New("invalid configuration")
	ErrMissingStore  = errors.New("certificate store not found")
)

// ConfigError represents a configuration error with context.
type ConfigError struct {
	Field   string
	Message string
	Err     error
}

func (e *ConfigError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("config error in '%s': %s", e.Field, e.Message)
	}
	return fmt.Sprintf("config error: %s", e.Message)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// NewConfigError creates a new ConfigError wrapping ErrInvalidConfig.
func NewConfigError(field, message string) *ConfigError {
	return &ConfigError{Field: field, Message: message, Err: ErrInvalidConfig}
}

// VerificationConfig controls a verification pass.
type VerificationConfig struct {
	Enabled              bool `yaml:"enabled"`
	IgnoreExpirationDate bool `yaml:"ignore_expiration_date"`
	UseSystemStore       bool `yaml:"use_system_store"`

	// Workers is the number of signature fields verified concurrently.
	Workers int `yaml:"workers"`

	CheckRevocation bool `yaml:"check_revocation"`
}

// StoreConfig locates the persisted certificate store.
type StoreConfig struct {
	Path string `yaml:"path"`
}

// ServerConfig contains HTTP API settings.
type ServerConfig struct {
	Address      string        `yaml:"address"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	MaxBodyBytes int64         `yaml:"max_body_bytes"`
}

// Config is the complete application configuration.
type Config struct {
	Verification VerificationConfig `yaml:"verification"`
	Store        StoreConfig        `yaml:"store"`
	Server       ServerConfig       `yaml:"server"`
}

// DefaultStorePath is the per-user certificate store, empty when the user
// configuration directory is unknown.
func DefaultStorePath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "pdfsig-verifier", "store.bin")
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Verification: VerificationConfig{
			Enabled:         true,
			Workers:         1,
			CheckRevocation: true,
		},
		Store: StoreConfig{
			Path: DefaultStorePath(),
		},
		Server: ServerConfig{
			Address:      ":8080",
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 5 * time.Minute,
			MaxBodyBytes: 50 << 20,
		},
	}
}

// Load reads a YAML file on top of Default. Keys missing from the file keep
// their default values.
func Load(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML on top of Default and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, &ConfigError{Message: "failed to parse config", Err: fmt.Errorf("%w: %v", ErrInvalidConfig, err)}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	if c.Verification.Workers < 1 {
		return NewConfigError("verification.workers", "must be at least 1")
	}
	if c.Server.Address == "" {
		return NewConfigError("server.address", "required field is missing")
	}
	if c.Server.ReadTimeout < 0 {
		return NewConfigError("server.read_timeout", "must not be negative")
	}
	if c.Server.WriteTimeout < 0 {
		return NewConfigError("server.write_timeout", "must not be negative")
	}
	if c.Server.MaxBodyBytes <= 0 {
		return NewConfigError("server.max_body_bytes", "must be positive")
	}
	return nil
}

// ApplyEnv overrides fields from the PDFSIG_* environment variables.
func (c *Config) ApplyEnv() error {
	return c.applyEnv(os.LookupEnv)
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup(EnvStore); ok && v != "" {
		c.Store.Path = v
	}

	flags := []struct {
		env   string
		field string
		dst   *bool
	}{
		{EnvIgnoreExpiration, "verification.ignore_expiration_date", &c.Verification.IgnoreExpirationDate},
		{EnvUseSystemStore, "verification.use_system_store", &c.Verification.UseSystemStore},
	}
	for _, f := range flags {
		v, ok := lookup(f.env)
		if !ok || v == "" {
			continue
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return &ConfigError{
				Field:   f.field,
				Message: fmt.Sprintf("%s=%q is not a boolean", f.env, v),
				Err:     fmt.Errorf("%w: %v", ErrInvalidConfig, err),
			}
		}
		*f.dst = b
	}
	return nil
}

// LoadStore opens the configured certificate store. An unset path or a
// missing default store yields an empty store; any other path that does not
// exist is ErrMissingStore.
func (c *Config) LoadStore(opts ...trust.StoreOption) (*trust.CertificateStore, error) {
	if c.Store.Path == "" {
		return trust.NewCertificateStore(opts...), nil
	}
	if _, err := os.Stat(c.Store.Path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			if c.Store.Path == DefaultStorePath() {
				return trust.NewCertificateStore(opts...), nil
			}
			return nil, &ConfigError{Field: "store.path", Message: c.Store.Path, Err: ErrMissingStore}
		}
		return nil, fmt.Errorf("failed to stat certificate store: %w", err)
	}

	store, err := trust.LoadFile(c.Store.Path, opts...)
	if err != nil {
		return nil, signature.ErrStoreCorrupt(c.Store.Path, err)
	}
	return store, nil
}

// Parameters builds verification parameters around store.
func (c *Config) Parameters(store *trust.CertificateStore) signature.Parameters {
	params := signature.DefaultParameters(store)
	params.EnableVerification = c.Verification.Enabled
	params.IgnoreExpirationDate = c.Verification.IgnoreExpirationDate
	params.UseSystemCertificateStore = c.Verification.UseSystemStore
	params.CheckRevocation = c.Verification.CheckRevocation
	params.Workers = c.Verification.Workers
	if params.CheckRevocation {
		params.RevocationCache = trust.NewStatusCache(trust.DefaultStatusCacheTTL)
	}
	return params
}
