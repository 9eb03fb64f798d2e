// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package config

import (
	"errors"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/sigil-dev/warden/internal/capability/compute"
	"github.com/sigil-dev/warden/internal/secrets"
	"github.com/sigil-dev/warden/internal/validator"
	sigilerr "github.com/sigil-dev/warden/pkg/errors"
)

// Config is the top-level warden configuration.
type Config struct {
	Networking   NetworkingConfig          `mapstructure:"networking"`
	Orchestrator OrchestratorConfig        `mapstructure:"orchestrator"`
	Capabilities CapabilitiesConfig        `mapstructure:"capabilities"`
	Router       RouterConfig              `mapstructure:"router"`
	Providers    map[string]ProviderConfig `mapstructure:"providers"`
	Validator    validator.Config          `mapstructure:"validator"`
	Simulator    compute.Config            `mapstructure:"simulator"`
	Storage      StorageConfig             `mapstructure:"storage"`
	Audit        AuditConfig               `mapstructure:"audit"`
	Logging      LoggingConfig             `mapstructure:"logging"`
}

// NetworkingConfig controls how warden listens for connections.
type NetworkingConfig struct {
	Listen      string   `mapstructure:"listen"`
	CORSOrigins []string `mapstructure:"cors_origins"`
	// RateLimitRPS limits query submissions per client IP. Zero disables it.
	RateLimitRPS   float64 `mapstructure:"rate_limit_rps"`
	RateLimitBurst int     `mapstructure:"rate_limit_burst"`
}

// OrchestratorConfig bounds the reasoning loop.
type OrchestratorConfig struct {
	MaxIterations int           `mapstructure:"max_iterations"`
	QueryTimeout  time.Duration `mapstructure:"query_timeout"`
}

// CapabilitiesConfig controls how capability calls are dispatched.
type CapabilitiesConfig struct {
	Timeout        time.Duration `mapstructure:"timeout"`
	MaxRetries     int           `mapstructure:"max_retries"`
	RetryBackoff   time.Duration `mapstructure:"retry_backoff"`
	HealthCooldown time.Duration `mapstructure:"health_cooldown"`
	TopK           int           `mapstructure:"top_k"`
}

// RouterConfig selects how intents are classified.
type RouterConfig struct {
	// Strategy is "rules" or "llm".
	Strategy string   `mapstructure:"strategy"`
	Model    string   `mapstructure:"model"`
	Failover []string `mapstructure:"failover"`
}

// ProviderConfig holds credentials and endpoint for an LLM provider.
type ProviderConfig struct {
	APIKey   string `mapstructure:"api_key"`
	Endpoint string `mapstructure:"endpoint"`
}

// StorageConfig selects the storage backend.
type StorageConfig struct {
	Backend string `mapstructure:"backend"`
	DataDir string `mapstructure:"data_dir"`
}

// AuditConfig controls the audit emitter and its JSONL mirror.
type AuditConfig struct {
	BufferSize   int             `mapstructure:"buffer_size"`
	WriteTimeout time.Duration   `mapstructure:"write_timeout"`
	File         AuditFileConfig `mapstructure:"file"`
}

// AuditFileConfig configures the rotated JSONL mirror. An empty path
// disables it.
type AuditFileConfig struct {
	Path       string `mapstructure:"path"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// LoggingConfig configures the process-wide slog handler.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// SetDefaults registers every default on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("networking.listen", "127.0.0.1:8087")
	v.SetDefault("networking.cors_origins", []string{})
	v.SetDefault("networking.rate_limit_rps", 2.0)
	v.SetDefault("networking.rate_limit_burst", 10)

	v.SetDefault("orchestrator.max_iterations", 3)
	v.SetDefault("orchestrator.query_timeout", "60s")

	v.SetDefault("capabilities.timeout", "10s")
	v.SetDefault("capabilities.max_retries", 2)
	v.SetDefault("capabilities.retry_backoff", "200ms")
	v.SetDefault("capabilities.health_cooldown", "30s")
	v.SetDefault("capabilities.top_k", 3)

	v.SetDefault("router.strategy", "rules")
	v.SetDefault("router.model", "anthropic/claude-haiku-4-5")

	vc := validator.DefaultConfig()
	v.SetDefault("validator.margin_ratio", vc.MarginRatio)
	v.SetDefault("validator.critical_ratio", vc.CriticalRatio)
	v.SetDefault("validator.max_answer_length", vc.MaxAnswerLength)

	sc := compute.DefaultConfig()
	v.SetDefault("simulator.base_pressure_psi", sc.BasePressurePSI)
	v.SetDefault("simulator.friction_factor", sc.FrictionFactor)
	v.SetDefault("simulator.pipe_diameter_m", sc.PipeDiameterM)
	v.SetDefault("simulator.fluid_density", sc.FluidDensity)
	v.SetDefault("simulator.relief_threshold_psi", sc.ReliefThresholdPSI)
	v.SetDefault("simulator.ambient_temp_c", sc.AmbientTempC)
	v.SetDefault("simulator.seal_heat_per_flow", sc.SealHeatPerFlow)

	v.SetDefault("storage.backend", "sqlite")
	v.SetDefault("storage.data_dir", "")

	v.SetDefault("audit.buffer_size", 256)
	v.SetDefault("audit.write_timeout", "5s")
	v.SetDefault("audit.file.path", "")
	v.SetDefault("audit.file.max_size_mb", 100)
	v.SetDefault("audit.file.max_backups", 10)
	v.SetDefault("audit.file.max_age_days", 90)
	v.SetDefault("audit.file.compress", true)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
}

// SetupEnv enables WARDEN_ prefixed environment overrides, e.g.
// WARDEN_NETWORKING_LISTEN for networking.listen.
func SetupEnv(v *viper.Viper) {
	v.SetEnvPrefix("WARDEN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// Load reads configuration from the given path (or defaults) with
// environment variable overrides (prefix WARDEN_). Secret references are
// left unresolved; see FromViper.
func Load(path string) (*Config, error) {
	v := viper.New()
	SetDefaults(v)
	SetupEnv(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, sigilerr.Errorf(sigilerr.CodeConfigLoadReadFailure, "reading config %s: %w", path, err)
		}
	}

	return FromViper(v, nil)
}

// FromViper decodes and validates the configuration held by v. When store
// is non-nil, keyring:// and env:// values are resolved first.
func FromViper(v *viper.Viper, store secrets.Store) (*Config, error) {
	if store != nil {
		if err := secrets.ResolveViperSecrets(v, store); err != nil {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, sigilerr.Errorf(sigilerr.CodeConfigParseInvalidFormat, "unmarshalling config: %w", err)
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, sigilerr.Errorf(sigilerr.CodeConfigValidateInvalidValue, "validating config: %w", errors.Join(errs...))
	}

	return &cfg, nil
}

// Validate checks the configuration for logical errors.
// It returns a slice of all validation errors found, collecting all issues
// rather than stopping at the first one.
func (c *Config) Validate() []error {
	var errs []error

	errs = append(errs, c.validateNetworking()...)
	errs = append(errs, c.validateOrchestrator()...)
	errs = append(errs, c.validateCapabilities()...)
	errs = append(errs, c.validateRouter()...)
	errs = append(errs, c.validateStorage()...)
	errs = append(errs, c.validateAudit()...)
	errs = append(errs, c.validateLogging()...)

	if err := c.Validator.Validate(); err != nil {
		errs = append(errs, invalid("%s", err.Error()))
	}

	return errs
}

func invalid(format string, args ...any) error {
	return sigilerr.Errorf(sigilerr.CodeConfigValidateInvalidValue, "config: "+format, args...)
}

func (c *Config) validateNetworking() []error {
	var errs []error

	if c.Networking.Listen == "" {
		return append(errs, invalid("networking.listen must not be empty"))
	}
	if c.Networking.RateLimitRPS < 0 {
		errs = append(errs, invalid("networking.rate_limit_rps must not be negative, got %g", c.Networking.RateLimitRPS))
	} else if c.Networking.RateLimitRPS > 0 && c.Networking.RateLimitBurst < 1 {
		errs = append(errs, invalid("networking.rate_limit_burst must be at least 1 when rate limiting is on, got %d",
			c.Networking.RateLimitBurst))
	}

	_, portStr, err := net.SplitHostPort(c.Networking.Listen)
	if err != nil {
		return append(errs, invalid("networking.listen must be a valid host:port address, got %q: %w",
			c.Networking.Listen, err))
	}
	port, err := strconv.Atoi(portStr)
	switch {
	case err != nil:
		errs = append(errs, invalid("networking.listen port must be a number, got %q", portStr))
	case port < 1 || port > 65535:
		errs = append(errs, invalid("networking.listen port must be between 1 and 65535, got %d", port))
	}

	return errs
}

func (c *Config) validateOrchestrator() []error {
	var errs []error

	if c.Orchestrator.MaxIterations < 1 {
		errs = append(errs, invalid("orchestrator.max_iterations must be at least 1, got %d",
			c.Orchestrator.MaxIterations))
	}
	if c.Orchestrator.QueryTimeout < 0 {
		errs = append(errs, invalid("orchestrator.query_timeout must not be negative, got %s",
			c.Orchestrator.QueryTimeout))
	}

	return errs
}

func (c *Config) validateCapabilities() []error {
	var errs []error

	if c.Capabilities.Timeout <= 0 {
		errs = append(errs, invalid("capabilities.timeout must be greater than 0, got %s", c.Capabilities.Timeout))
	}
	if c.Capabilities.MaxRetries < 0 {
		errs = append(errs, invalid("capabilities.max_retries must not be negative, got %d", c.Capabilities.MaxRetries))
	}
	if c.Capabilities.RetryBackoff < 0 {
		errs = append(errs, invalid("capabilities.retry_backoff must not be negative, got %s", c.Capabilities.RetryBackoff))
	}
	if c.Capabilities.HealthCooldown < 0 {
		errs = append(errs, invalid("capabilities.health_cooldown must not be negative, got %s", c.Capabilities.HealthCooldown))
	}
	if c.Capabilities.TopK < 1 {
		errs = append(errs, invalid("capabilities.top_k must be at least 1, got %d", c.Capabilities.TopK))
	}

	return errs
}

func (c *Config) validateRouter() []error {
	var errs []error

	switch c.Router.Strategy {
	case "rules":
		return nil
	case "llm":
	default:
		return append(errs, invalid("router.strategy must be one of [rules, llm], got %q", c.Router.Strategy))
	}

	refs := append([]string{c.Router.Model}, c.Router.Failover...)
	for i, ref := range refs {
		field := "router.model"
		if i > 0 {
			field = "router.failover[" + strconv.Itoa(i-1) + "]"
		}
		if !strings.Contains(ref, "/") {
			errs = append(errs, invalid("%s must be in \"provider/model\" format, got %q", field, ref))
			continue
		}
		// Only cross-reference providers when a providers section exists.
		if c.Providers != nil {
			name := ProviderFromModel(ref)
			if _, ok := c.Providers[name]; !ok {
				errs = append(errs, invalid("%s %q references provider %q which is not configured", field, ref, name))
			}
		}
	}

	return errs
}

func (c *Config) validateStorage() []error {
	validBackends := map[string]bool{"sqlite": true, "memory": true}
	if !validBackends[c.Storage.Backend] {
		return []error{invalid("storage.backend must be one of [sqlite, memory], got %q", c.Storage.Backend)}
	}
	return nil
}

func (c *Config) validateAudit() []error {
	var errs []error

	if c.Audit.BufferSize < 1 {
		errs = append(errs, invalid("audit.buffer_size must be at least 1, got %d", c.Audit.BufferSize))
	}
	if c.Audit.WriteTimeout < 0 {
		errs = append(errs, invalid("audit.write_timeout must not be negative, got %s", c.Audit.WriteTimeout))
	}
	if c.Audit.File.Path != "" && c.Audit.File.MaxSizeMB < 1 {
		errs = append(errs, invalid("audit.file.max_size_mb must be at least 1, got %d", c.Audit.File.MaxSizeMB))
	}

	return errs
}

func (c *Config) validateLogging() []error {
	var errs []error

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, invalid("logging.level must be one of [debug, info, warn, error], got %q", c.Logging.Level))
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		errs = append(errs, invalid("logging.format must be one of [text, json], got %q", c.Logging.Format))
	}

	return errs
}

// ProviderFromModel extracts the provider prefix from a "provider/model" string.
func ProviderFromModel(model string) string {
	if idx := strings.Index(model, "/"); idx > 0 {
		return model[:idx]
	}
	return model
}
