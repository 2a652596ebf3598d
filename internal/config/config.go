// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package config

import (
	"errors"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/sigil-dev/semdex/internal/redact"
	semerr "github.com/sigil-dev/semdex/pkg/errors"
)

// Config is the top-level semdex configuration.
type Config struct {
	Networking NetworkingConfig          `mapstructure:"networking"`
	Storage    StorageConfig             `mapstructure:"storage"`
	Providers  map[string]ProviderConfig `mapstructure:"providers"`
	Embedding  EmbeddingConfig           `mapstructure:"embedding"`
	Indexing   IndexingConfig            `mapstructure:"indexing"`
}

// NetworkingConfig controls the REST listener.
type NetworkingConfig struct {
	Listen      string          `mapstructure:"listen"`
	CORSOrigins []string        `mapstructure:"cors_origins"`
	RateLimit   RateLimitConfig `mapstructure:"rate_limit"`
	// Metrics exposes Prometheus metrics on /metrics.
	Metrics bool `mapstructure:"metrics"`
}

// RateLimitConfig limits requests per client IP. A zero rate disables it.
type RateLimitConfig struct {
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

// StorageConfig selects the storage backend and where it keeps its files.
type StorageConfig struct {
	Backend string `mapstructure:"backend"`
	DataDir string `mapstructure:"data_dir"`
}

// ProviderConfig holds credentials and endpoint for an embedding backend.
type ProviderConfig struct {
	APIKey   string `mapstructure:"api_key"`
	Endpoint string `mapstructure:"endpoint"`
}

// EmbeddingConfig sets the defaults applied to newly created indexes.
type EmbeddingConfig struct {
	Provider   string `mapstructure:"provider"`
	Model      string `mapstructure:"model"`
	Dimensions int    `mapstructure:"dimensions"`
}

// IndexingConfig tunes the sync engine and the debounced scheduler.
type IndexingConfig struct {
	BatchSize   int           `mapstructure:"batch_size"`
	LeaseTTL    time.Duration `mapstructure:"lease_ttl"`
	Debounce    time.Duration `mapstructure:"debounce"`
	MaxDebounce time.Duration `mapstructure:"max_debounce"`
	MaxRetries  int           `mapstructure:"max_retries"`
	RetryDelay  time.Duration `mapstructure:"retry_delay"`
	SearchLimit int           `mapstructure:"search_limit"`
	// Redaction is the credential scanning mode applied to embedding text:
	// off, flag, redact or block.
	Redaction string `mapstructure:"redaction"`
}

// Embedders with a built-in implementation.
var knownEmbedders = []string{"google", "openai"}

// SetDefaults registers every default value on v. Provider keys are declared
// so SEMDEX_PROVIDERS_<NAME>_API_KEY is picked up by AutomaticEnv.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("networking.listen", "127.0.0.1:18790")
	v.SetDefault("networking.cors_origins", []string{})
	v.SetDefault("networking.rate_limit.requests_per_second", 0)
	v.SetDefault("networking.rate_limit.burst", 20)
	v.SetDefault("networking.metrics", true)
	v.SetDefault("storage.backend", "sqlite")
	v.SetDefault("storage.data_dir", "~/.local/share/semdex")
	v.SetDefault("providers.openai.api_key", "")
	v.SetDefault("providers.openai.endpoint", "")
	v.SetDefault("providers.google.api_key", "")
	v.SetDefault("providers.google.endpoint", "")
	v.SetDefault("embedding.provider", "openai")
	v.SetDefault("embedding.model", "text-embedding-3-small")
	v.SetDefault("embedding.dimensions", 0)
	v.SetDefault("indexing.batch_size", 50)
	v.SetDefault("indexing.lease_ttl", 5*time.Minute)
	v.SetDefault("indexing.debounce", 2*time.Second)
	v.SetDefault("indexing.max_debounce", 30*time.Second)
	v.SetDefault("indexing.max_retries", 3)
	v.SetDefault("indexing.retry_delay", 5*time.Second)
	v.SetDefault("indexing.search_limit", 10)
	v.SetDefault("indexing.redaction", string(redact.ModeRedact))
}

// SetupEnv enables SEMDEX_ prefixed environment overrides.
func SetupEnv(v *viper.Viper) {
	v.SetEnvPrefix("SEMDEX")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// Load reads configuration from the given path (or defaults) with
// environment variable overrides (prefix SEMDEX_).
func Load(path string) (*Config, error) {
	v := viper.New()
	SetDefaults(v)
	SetupEnv(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, semerr.Errorf(semerr.CodeConfigLoadReadFailure, "reading config %s: %w", path, err)
		}
	}

	return FromViper(v)
}

// FromViper decodes and validates the configuration held by v.
func FromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, semerr.Errorf(semerr.CodeConfigParseInvalidFormat, "unmarshalling config: %w", err)
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, semerr.Errorf(semerr.CodeConfigValidateInvalidValue, "validating config: %w", errors.Join(errs...))
	}

	return &cfg, nil
}

// DataDir returns the storage directory with a leading ~ expanded.
func (c *Config) DataDir() (string, error) {
	dir := c.Storage.DataDir
	if dir != "~" && !strings.HasPrefix(dir, "~/") {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", semerr.Errorf(semerr.CodeConfigLoadReadFailure, "resolving home directory: %w", err)
	}
	return filepath.Join(home, strings.TrimPrefix(dir, "~")), nil
}

// Provider returns the credentials configured for name.
func (c *Config) Provider(name string) (ProviderConfig, bool) {
	pc, ok := c.Providers[name]
	return pc, ok && pc.APIKey != ""
}

// Validate checks the configuration for logical errors.
// It returns a slice of all validation errors found, collecting all issues
// rather than stopping at the first one.
func (c *Config) Validate() []error {
	var errs []error

	errs = append(errs, c.validateNetworking()...)
	errs = append(errs, c.validateRateLimit()...)
	errs = append(errs, c.validateStorage()...)
	errs = append(errs, c.validateEmbedding()...)
	errs = append(errs, c.validateIndexing()...)

	return errs
}

func (c *Config) validateNetworking() []error {
	var errs []error

	if c.Networking.Listen == "" {
		return append(errs, invalid("config: networking.listen must not be empty"))
	}

	_, portStr, err := net.SplitHostPort(c.Networking.Listen)
	if err != nil {
		return append(errs, semerr.Errorf(semerr.CodeConfigValidateInvalidValue,
			"config: networking.listen must be a valid host:port address, got %q: %w",
			c.Networking.Listen, err,
		))
	}

	port, err := strconv.Atoi(portStr)
	switch {
	case err != nil:
		errs = append(errs, invalid("config: networking.listen port must be a number, got %q", portStr))
	case port < 0 || port > 65535:
		// 0 asks the OS for a free port.
		errs = append(errs, invalid("config: networking.listen port must be between 0 and 65535, got %d", port))
	}

	return errs
}

func (c *Config) validateRateLimit() []error {
	var errs []error
	rl := c.Networking.RateLimit

	if rl.RequestsPerSecond < 0 {
		errs = append(errs, invalid("config: networking.rate_limit.requests_per_second must not be negative, got %g", rl.RequestsPerSecond))
	}
	if rl.RequestsPerSecond > 0 && rl.Burst <= 0 {
		errs = append(errs, invalid("config: networking.rate_limit.burst must be greater than 0 when a rate is set, got %d", rl.Burst))
	}

	return errs
}

func (c *Config) validateStorage() []error {
	var errs []error

	validBackends := map[string]bool{"sqlite": true}
	if !validBackends[c.Storage.Backend] {
		errs = append(errs, invalid("config: storage.backend must be one of [sqlite], got %q", c.Storage.Backend))
	}
	if c.Storage.DataDir == "" {
		errs = append(errs, invalid("config: storage.data_dir must not be empty"))
	}

	return errs
}

func (c *Config) validateEmbedding() []error {
	var errs []error

	known := false
	for _, name := range knownEmbedders {
		if c.Embedding.Provider == name {
			known = true
		}
	}
	if !known {
		errs = append(errs, invalid("config: embedding.provider must be one of [%s], got %q",
			strings.Join(knownEmbedders, ", "), c.Embedding.Provider))
	}
	if c.Embedding.Model == "" {
		errs = append(errs, invalid("config: embedding.model must not be empty"))
	}
	if c.Embedding.Dimensions < 0 {
		errs = append(errs, invalid("config: embedding.dimensions must not be negative, got %d", c.Embedding.Dimensions))
	}

	return errs
}

func (c *Config) validateIndexing() []error {
	var errs []error
	ix := c.Indexing

	if ix.BatchSize <= 0 {
		errs = append(errs, invalid("config: indexing.batch_size must be greater than 0, got %d", ix.BatchSize))
	}
	if ix.LeaseTTL <= 0 {
		errs = append(errs, invalid("config: indexing.lease_ttl must be greater than 0, got %s", ix.LeaseTTL))
	}
	if ix.Debounce <= 0 {
		errs = append(errs, invalid("config: indexing.debounce must be greater than 0, got %s", ix.Debounce))
	}
	if ix.MaxDebounce < ix.Debounce {
		errs = append(errs, invalid("config: indexing.max_debounce must be at least indexing.debounce (%s), got %s",
			ix.Debounce, ix.MaxDebounce))
	}
	if ix.MaxRetries < 0 {
		errs = append(errs, invalid("config: indexing.max_retries must not be negative, got %d", ix.MaxRetries))
	}
	if ix.RetryDelay <= 0 {
		errs = append(errs, invalid("config: indexing.retry_delay must be greater than 0, got %s", ix.RetryDelay))
	}
	if ix.SearchLimit <= 0 {
		errs = append(errs, invalid("config: indexing.search_limit must be greater than 0, got %d", ix.SearchLimit))
	}
	if _, err := redact.ParseMode(ix.Redaction); err != nil {
		errs = append(errs, invalid("config: indexing.redaction must be off, flag, redact or block, got %q", ix.Redaction))
	}

	return errs
}

func invalid(format string, args ...any) error {
	return semerr.Errorf(semerr.CodeConfigValidateInvalidValue, format, args...)
}
