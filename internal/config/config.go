package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all medpredict configuration. The server reads Server and
// Predict; the CLI client reads Session and Client.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Predict PredictConfig `yaml:"predict"`
	Session SessionConfig `yaml:"session"`
	Client  ClientConfig  `yaml:"client"`
	Logging LoggingConfig `yaml:"logging"`
}

// ServerConfig configures the proxy HTTP server.
type ServerConfig struct {
	Addr            string `yaml:"addr"`
	ReadTimeout     string `yaml:"read_timeout"`
	ShutdownTimeout string `yaml:"shutdown_timeout"`
	TLSCert         string `yaml:"tls_cert"`
	TLSKey          string `yaml:"tls_key"`
}

// PredictConfig configures forwarding to the external prediction service.
type PredictConfig struct {
	ServiceURL   string `yaml:"service_url"`
	Timeout      string `yaml:"timeout"`
	MaxRetries   int    `yaml:"max_retries"`
	RetryBackoff string `yaml:"retry_backoff"`
	Validation   string `yaml:"validation"` // presence, truthy
	CAFile       string `yaml:"ca_file"`    // extra roots for an https service_url
}

// SessionConfig configures the client-side session.
type SessionConfig struct {
	Storage StorageConfig `yaml:"storage"`
	Verify  VerifyConfig  `yaml:"verify"`
}

// StorageConfig selects the durable storage backend for the token.
type StorageConfig struct {
	Backend       string `yaml:"backend"` // file, encrypted, sqlite, memory
	Dir           string `yaml:"dir"`
	MasterKeyFile string `yaml:"master_key_file"`
}

// VerifyConfig selects how a held token is verified.
type VerifyConfig struct {
	Mode      string `yaml:"mode"` // none, jwt, remote
	JWTSecret string `yaml:"jwt_secret"`
	AuthURL   string `yaml:"auth_url"`
	Timeout   string `yaml:"timeout"`
}

// ClientConfig configures the CLI's calls to the proxy server.
type ClientConfig struct {
	ServerURL string `yaml:"server_url"`
	Timeout   string `yaml:"timeout"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, console
}

// Enum values accepted by Validate.
const (
	ValidationPresence = "presence"
	ValidationTruthy   = "truthy"

	VerifyNone   = "none"
	VerifyJWT    = "jwt"
	VerifyRemote = "remote"
)

// DefaultDir returns ~/.medpredict, or a temp dir when home is unavailable.
func DefaultDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".medpredict")
	}
	return filepath.Join(home, ".medpredict")
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	dir := DefaultDir()
	return &Config{
		Server: ServerConfig{
			Addr:            ":3000",
			ReadTimeout:     "15s",
			ShutdownTimeout: "10s",
		},
		Predict: PredictConfig{
			ServiceURL:   "http://localhost:8000",
			Timeout:      "10s",
			MaxRetries:   0,
			RetryBackoff: "250ms",
			Validation:   ValidationPresence,
		},
		Session: SessionConfig{
			Storage: StorageConfig{
				Backend:       "file",
				Dir:           dir,
				MasterKeyFile: filepath.Join(dir, "master.key"),
			},
			Verify: VerifyConfig{
				Mode:    VerifyNone,
				AuthURL: "http://localhost:8001",
				Timeout: "5s",
			},
		},
		Client: ClientConfig{
			ServerURL: "http://localhost:3000",
			Timeout:   "30s",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load loads configuration from a YAML file. A missing file yields the
// defaults; environment overrides apply in both cases.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("failed to read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config: %w", err)
			}
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the configuration as YAML.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("MEDPREDICT_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv("MEDPREDICT_SERVICE_URL"); v != "" {
		c.Predict.ServiceURL = v
	}
	if v := os.Getenv("MEDPREDICT_SERVER_URL"); v != "" {
		c.Client.ServerURL = v
	}
	if v := os.Getenv("MEDPREDICT_AUTH_URL"); v != "" {
		c.Session.Verify.AuthURL = v
	}
	if v := os.Getenv("MEDPREDICT_JWT_SECRET"); v != "" {
		c.Session.Verify.JWTSecret = v
		if c.Session.Verify.Mode == "" || c.Session.Verify.Mode == VerifyNone {
			c.Session.Verify.Mode = VerifyJWT
		}
	}
	if v := os.Getenv("MEDPREDICT_STORAGE_DIR"); v != "" {
		c.Session.Storage.Dir = v
	}
	if v := os.Getenv("MEDPREDICT_STORAGE_BACKEND"); v != "" {
		c.Session.Storage.Backend = v
	}
	if v := os.Getenv("MEDPREDICT_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

// Validate rejects unknown enum values and unusable settings.
func (c *Config) Validate() error {
	switch c.Predict.Validation {
	case ValidationPresence, ValidationTruthy:
	default:
		return fmt.Errorf("config: predict.validation must be %q or %q, got %q",
			ValidationPresence, ValidationTruthy, c.Predict.Validation)
	}
	if c.Predict.MaxRetries < 0 {
		return fmt.Errorf("config: predict.max_retries must not be negative")
	}
	if c.Predict.ServiceURL == "" {
		return fmt.Errorf("config: predict.service_url is required")
	}
	if (c.Server.TLSCert == "") != (c.Server.TLSKey == "") {
		return fmt.Errorf("config: server.tls_cert and server.tls_key must be set together")
	}
	switch c.Session.Storage.Backend {
	case "file", "encrypted", "sqlite", "memory":
	default:
		return fmt.Errorf("config: unknown session.storage.backend %q", c.Session.Storage.Backend)
	}
	switch c.Session.Verify.Mode {
	case VerifyNone, VerifyRemote:
	case VerifyJWT:
		if c.Session.Verify.JWTSecret == "" {
			return fmt.Errorf("config: session.verify.jwt_secret is required in jwt mode")
		}
	default:
		return fmt.Errorf("config: unknown session.verify.mode %q", c.Session.Verify.Mode)
	}
	return nil
}

// GetPredictTimeout returns the outbound prediction timeout.
func (c *Config) GetPredictTimeout() time.Duration {
	return parseDuration(c.Predict.Timeout, 10*time.Second)
}

// GetRetryBackoff returns the base delay between prediction retries.
func (c *Config) GetRetryBackoff() time.Duration {
	return parseDuration(c.Predict.RetryBackoff, 250*time.Millisecond)
}

func (c *Config) GetReadTimeout() time.Duration {
	return parseDuration(c.Server.ReadTimeout, 15*time.Second)
}

func (c *Config) GetShutdownTimeout() time.Duration {
	return parseDuration(c.Server.ShutdownTimeout, 10*time.Second)
}

func (c *Config) GetVerifyTimeout() time.Duration {
	return parseDuration(c.Session.Verify.Timeout, 5*time.Second)
}

func (c *Config) GetClientTimeout() time.Duration {
	return parseDuration(c.Client.Timeout, 30*time.Second)
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
