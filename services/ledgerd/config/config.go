package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"tranchefi/crypto"
	nativecommon "tranchefi/native/common"
	"tranchefi/observability/logging"
	"tranchefi/storage"
)

const (
	defaultListen      = ":8087"
	defaultStoragePath = "./data/ledger"
	defaultJournalPath = "./data/journal.db"
	defaultTimeout     = 10 * time.Second
	defaultClockSkew   = time.Minute

	envAuthSecret  = "LEDGERD_AUTH_SECRET"
	envCollabToken = "LEDGERD_COLLAB_TOKEN"

	redacted = logging.RedactedValue
)

// Config captures the runtime settings for the ledger daemon.
type Config struct {
	ListenAddress string              `yaml:"listen" toml:"listen"`
	Environment   string              `yaml:"environment" toml:"environment"`
	Storage       StorageConfig       `yaml:"storage" toml:"storage"`
	Journal       JournalConfig       `yaml:"journal" toml:"journal"`
	Collaborators CollaboratorsConfig `yaml:"collaborators" toml:"collaborators"`
	Custody       string              `yaml:"custody" toml:"custody"`
	Auth          AuthConfig          `yaml:"auth" toml:"auth"`
	RateLimit     RateLimitConfig     `yaml:"rate_limit" toml:"rate_limit"`
	Pauses        PauseConfig         `yaml:"pauses" toml:"pauses"`
	Telemetry     TelemetryConfig     `yaml:"telemetry" toml:"telemetry"`
	Log           LogConfig           `yaml:"log" toml:"log"`

	custody crypto.Address
}

type StorageConfig struct {
	Backend string `yaml:"backend" toml:"backend"`
	Path    string `yaml:"path" toml:"path"`
}

type JournalConfig struct {
	Path string `yaml:"path" toml:"path"`
}

// CollaboratorsConfig points at the JSON-RPC endpoint hosting the router,
// lending pool and token contracts. An empty endpoint logs effects instead of
// invoking them.
type CollaboratorsConfig struct {
	Endpoint           string        `yaml:"endpoint" toml:"endpoint"`
	BearerToken        string        `yaml:"bearer_token" toml:"bearer_token"`
	SharedSecretHeader string        `yaml:"shared_secret_header" toml:"shared_secret_header"`
	SharedSecret       string        `yaml:"shared_secret" toml:"shared_secret"`
	CAFile             string        `yaml:"ca_file" toml:"ca_file"`
	AllowInsecure      bool          `yaml:"allow_insecure" toml:"allow_insecure"`
	Timeout            time.Duration `yaml:"timeout" toml:"timeout"`
}

// AuthConfig configures HS256 bearer token verification.
type AuthConfig struct {
	Enabled    bool          `yaml:"enabled" toml:"enabled"`
	HMACSecret string        `yaml:"hmac_secret" toml:"hmac_secret"`
	Issuer     string        `yaml:"issuer" toml:"issuer"`
	Audience   string        `yaml:"audience" toml:"audience"`
	ClockSkew  time.Duration `yaml:"clock_skew" toml:"clock_skew"`
}

type RateLimitConfig struct {
	RequestsPerMinute int `yaml:"requests_per_minute" toml:"requests_per_minute"`
	Burst             int `yaml:"burst" toml:"burst"`
}

type PauseConfig struct {
	Fund   bool `yaml:"fund" toml:"fund"`
	Credit bool `yaml:"credit" toml:"credit"`
}

type TelemetryConfig struct {
	Endpoint string            `yaml:"endpoint" toml:"endpoint"`
	Insecure bool              `yaml:"insecure" toml:"insecure"`
	Headers  map[string]string `yaml:"headers" toml:"headers"`
	Traces   bool              `yaml:"traces" toml:"traces"`
	Metrics  bool              `yaml:"metrics" toml:"metrics"`

	// SampleRatio keeps this fraction of root spans; 0 keeps all.
	SampleRatio float64 `yaml:"sample_ratio" toml:"sample_ratio"`
}

type LogConfig struct {
	Level string `yaml:"level" toml:"level"`
	File  string `yaml:"file" toml:"file"`
}

// Load reads the configuration from disk, applies environment overrides and
// validates the result. Files ending in .toml are decoded as TOML, anything
// else as YAML.
func Load(path string) (Config, error) {
	var cfg Config
	if strings.TrimSpace(path) == "" {
		return cfg, fmt.Errorf("config path required")
	}
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return Config{}, fmt.Errorf("decode config: %w", err)
		}
	} else {
		file, err := os.Open(path)
		if err != nil {
			return cfg, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()
		if err := yaml.NewDecoder(file).Decode(&cfg); err != nil {
			return Config{}, fmt.Errorf("decode config: %w", err)
		}
	}

	cfg.applyEnv()
	cfg.normalize()
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (cfg *Config) applyEnv() {
	if secret := strings.TrimSpace(os.Getenv(envAuthSecret)); secret != "" {
		cfg.Auth.HMACSecret = secret
	}
	if token := strings.TrimSpace(os.Getenv(envCollabToken)); token != "" {
		cfg.Collaborators.BearerToken = token
	}
}

func (cfg *Config) normalize() {
	if cfg == nil {
		return
	}
	cfg.ListenAddress = strings.TrimSpace(cfg.ListenAddress)
	if cfg.ListenAddress == "" {
		cfg.ListenAddress = defaultListen
	}
	cfg.Environment = strings.TrimSpace(cfg.Environment)
	if cfg.Environment == "" {
		cfg.Environment = "dev"
	}
	cfg.Custody = strings.TrimSpace(cfg.Custody)

	cfg.Storage.Backend = strings.ToLower(strings.TrimSpace(cfg.Storage.Backend))
	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = storage.BackendLevelDB
	}
	cfg.Storage.Path = strings.TrimSpace(cfg.Storage.Path)
	if cfg.Storage.Path == "" && cfg.Storage.Backend != storage.BackendMemory {
		cfg.Storage.Path = defaultStoragePath
	}
	cfg.Journal.Path = strings.TrimSpace(cfg.Journal.Path)
	if cfg.Journal.Path == "" {
		cfg.Journal.Path = defaultJournalPath
	}

	c := &cfg.Collaborators
	c.Endpoint = strings.TrimSpace(c.Endpoint)
	c.BearerToken = strings.TrimSpace(c.BearerToken)
	c.SharedSecretHeader = strings.TrimSpace(c.SharedSecretHeader)
	c.SharedSecret = strings.TrimSpace(c.SharedSecret)
	c.CAFile = strings.TrimSpace(c.CAFile)
	if c.Timeout <= 0 {
		c.Timeout = defaultTimeout
	}

	cfg.Auth.HMACSecret = strings.TrimSpace(cfg.Auth.HMACSecret)
	cfg.Auth.Issuer = strings.TrimSpace(cfg.Auth.Issuer)
	cfg.Auth.Audience = strings.TrimSpace(cfg.Auth.Audience)
	if cfg.Auth.ClockSkew <= 0 {
		cfg.Auth.ClockSkew = defaultClockSkew
	}

	if cfg.RateLimit.RequestsPerMinute < 0 {
		cfg.RateLimit.RequestsPerMinute = 0
	}
	if cfg.RateLimit.Burst <= 0 {
		cfg.RateLimit.Burst = cfg.RateLimit.RequestsPerMinute
	}

	cfg.Telemetry.Endpoint = strings.TrimSpace(cfg.Telemetry.Endpoint)
	cfg.Log.Level = strings.TrimSpace(cfg.Log.Level)
	cfg.Log.File = strings.TrimSpace(cfg.Log.File)
}

func (cfg *Config) validate() error {
	if cfg == nil {
		return fmt.Errorf("configuration is missing")
	}
	switch cfg.Storage.Backend {
	case storage.BackendLevelDB, storage.BackendBolt, storage.BackendMemory:
	default:
		return fmt.Errorf("storage: unsupported backend %q", cfg.Storage.Backend)
	}
	if cfg.Custody == "" {
		return fmt.Errorf("custody address required")
	}
	custody, err := crypto.DecodeAddress(cfg.Custody)
	if err != nil {
		return fmt.Errorf("custody: %w", err)
	}
	cfg.custody = custody

	if cfg.Auth.Enabled && cfg.Auth.HMACSecret == "" {
		return fmt.Errorf("auth: hmac_secret is required when auth is enabled (or set %s)", envAuthSecret)
	}
	c := cfg.Collaborators
	if (c.SharedSecretHeader == "") != (c.SharedSecret == "") {
		return fmt.Errorf("collaborators: shared_secret_header and shared_secret must be set together")
	}
	if c.Endpoint != "" && strings.HasPrefix(c.Endpoint, "http://") && !c.AllowInsecure {
		return fmt.Errorf("collaborators: plaintext endpoint requires allow_insecure=true")
	}
	return nil
}

// CustodyAddress returns the decoded custody account.
func (cfg Config) CustodyAddress() crypto.Address {
	return cfg.custody
}

// PauseView exposes the configured pauses keyed by module name.
func (cfg Config) PauseView() nativecommon.Pauses {
	return nativecommon.Pauses{
		"fund":   cfg.Pauses.Fund,
		"credit": cfg.Pauses.Credit,
	}
}

// Sanitized returns a copy safe for logging.
func (cfg Config) Sanitized() Config {
	out := cfg
	out.Auth.HMACSecret = logging.MaskValue(out.Auth.HMACSecret)
	out.Collaborators.BearerToken = logging.MaskValue(out.Collaborators.BearerToken)
	out.Collaborators.SharedSecret = logging.MaskValue(out.Collaborators.SharedSecret)
	out.Telemetry.Headers = logging.MaskMap(out.Telemetry.Headers)
	return out
}
