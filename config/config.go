// Package config provides configuration loading and validation.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Storage drivers.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config is the root configuration structure.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Session   SessionConfig   `yaml:"session"`
	Hasher    HasherConfig    `yaml:"hasher"`
	Files     FilesConfig     `yaml:"files"`
	Resources ResourcesConfig `yaml:"resources"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	AllowSignup     bool          `yaml:"allow_signup"`
	MaxBodyBytes    int64         `yaml:"max_body_bytes"`
	MaxUploadBytes  int64         `yaml:"max_upload_bytes"`
}

// Addr returns host:port.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// StorageConfig selects the storage adapter.
type StorageConfig struct {
	Driver       string        `yaml:"driver"` // "memory", "sqlite" or "postgres"
	DSN          string        `yaml:"dsn"`
	TablePrefix  string        `yaml:"table_prefix"` // postgres only
	ReadyTimeout time.Duration `yaml:"ready_timeout"`
}

// SessionConfig configures tokens and user groups.
type SessionConfig struct {
	Secret             string        `yaml:"secret"` // random per process when empty
	ExpiresIn          time.Duration `yaml:"expires_in"`
	AdminGroups        []string      `yaml:"admin_groups"`
	Groups             []string      `yaml:"groups"`
	EnforceValidGroups bool          `yaml:"enforce_valid_groups"`
}

// HasherConfig configures password hashing.
type HasherConfig struct {
	BcryptCost int `yaml:"bcrypt_cost"`
}

// FilesConfig configures the local file store. An empty Dir disables
// file routes.
type FilesConfig struct {
	Dir string `yaml:"dir"`
}

// ResourcesConfig points at the resource definition files.
type ResourcesConfig struct {
	Dir string `yaml:"dir"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // "debug", "info", "warn", "error"
	Format string `yaml:"format"` // "json" or "console"
}

// MetricsConfig configures Prometheus metrics.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"` // default: /metrics
}

// Load reads configuration from a YAML file. ${VAR} references are
// expanded and POCKET_* variables override file values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return finish(&cfg)
}

// LoadFromEnv creates configuration entirely from environment variables.
//
// Environment variables:
//
//	POCKET_SERVER_HOST            - Server host (default: 0.0.0.0)
//	POCKET_SERVER_PORT            - Server port (default: 8000)
//	POCKET_SERVER_ALLOW_SIGNUP    - Enable POST /auth/signup
//	POCKET_STORAGE_DRIVER         - memory, sqlite or postgres (default: memory)
//	POCKET_STORAGE_DSN            - Storage DSN
//	POCKET_STORAGE_READY_TIMEOUT  - Readiness timeout (default: 10s)
//	POCKET_SESSION_SECRET         - Token signing secret
//	POCKET_SESSION_EXPIRES_IN     - Token lifetime (default: 24h)
//	POCKET_SESSION_ADMIN_GROUPS   - Comma separated admin groups
//	POCKET_SESSION_GROUPS         - Comma separated valid groups
//	POCKET_SESSION_ENFORCE_GROUPS - Reject unknown groups
//	POCKET_HASHER_BCRYPT_COST     - bcrypt cost (default: 10)
//	POCKET_FILES_DIR              - Upload folder
//	POCKET_RESOURCES_DIR          - Resource definition folder
//	POCKET_LOG_LEVEL              - debug, info, warn, error (default: info)
//	POCKET_LOG_FORMAT             - json or console (default: json)
//	POCKET_METRICS_ENABLED        - Enable the metrics endpoint
//	POCKET_METRICS_PATH           - Metrics path (default: /metrics)
func LoadFromEnv() (*Config, error) {
	return finish(&Config{})
}

// LoadWithFallback loads path if it exists and falls back to the
// environment otherwise.
func LoadWithFallback(path string) (*Config, error) {
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		}
	}
	return LoadFromEnv()
}

func finish(cfg *Config) (*Config, error) {
	if err := applyEnvOverrides(cfg); err != nil {
		return nil, fmt.Errorf("env override: %w", err)
	}
	setDefaults(cfg)
	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// applyEnvOverrides applies POCKET_* environment variables. Environment
// variables always override file-based configuration.
func applyEnvOverrides(cfg *Config) error {
	str := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	list := func(key string, dst *[]string) {
		if v := os.Getenv(key); v != "" {
			*dst = splitList(v)
		}
	}
	flag := func(key string, dst *bool) {
		if v := os.Getenv(key); v != "" {
			*dst = parseBool(v)
		}
	}
	num := func(key string, dst *int) error {
		v := os.Getenv(key)
		if v == "" {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = n
		return nil
	}
	dur := func(key string, dst *time.Duration) error {
		v := os.Getenv(key)
		if v == "" {
			return nil
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = d
		return nil
	}

	str("POCKET_SERVER_HOST", &cfg.Server.Host)
	flag("POCKET_SERVER_ALLOW_SIGNUP", &cfg.Server.AllowSignup)
	str("POCKET_STORAGE_DRIVER", &cfg.Storage.Driver)
	str("POCKET_STORAGE_DSN", &cfg.Storage.DSN)
	str("POCKET_STORAGE_TABLE_PREFIX", &cfg.Storage.TablePrefix)
	str("POCKET_SESSION_SECRET", &cfg.Session.Secret)
	list("POCKET_SESSION_ADMIN_GROUPS", &cfg.Session.AdminGroups)
	list("POCKET_SESSION_GROUPS", &cfg.Session.Groups)
	flag("POCKET_SESSION_ENFORCE_GROUPS", &cfg.Session.EnforceValidGroups)
	str("POCKET_FILES_DIR", &cfg.Files.Dir)
	str("POCKET_RESOURCES_DIR", &cfg.Resources.Dir)
	str("POCKET_LOG_LEVEL", &cfg.Logging.Level)
	str("POCKET_LOG_FORMAT", &cfg.Logging.Format)
	flag("POCKET_METRICS_ENABLED", &cfg.Metrics.Enabled)
	str("POCKET_METRICS_PATH", &cfg.Metrics.Path)

	for _, err := range []error{
		num("POCKET_SERVER_PORT", &cfg.Server.Port),
		dur("POCKET_SERVER_READ_TIMEOUT", &cfg.Server.ReadTimeout),
		dur("POCKET_SERVER_WRITE_TIMEOUT", &cfg.Server.WriteTimeout),
		dur("POCKET_STORAGE_READY_TIMEOUT", &cfg.Storage.ReadyTimeout),
		dur("POCKET_SESSION_EXPIRES_IN", &cfg.Session.ExpiresIn),
		num("POCKET_HASHER_BCRYPT_COST", &cfg.Hasher.BcryptCost),
	} {
		if err != nil {
			return err
		}
	}
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// parseBool parses a boolean from common string values.
func parseBool(v string) bool {
	v = strings.ToLower(strings.TrimSpace(v))
	return v == "true" || v == "1" || v == "yes" || v == "on"
}

func setDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8000
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 30 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 60 * time.Second
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 15 * time.Second
	}

	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = DriverMemory
	}
	if cfg.Storage.Driver == DriverSQLite && cfg.Storage.DSN == "" {
		cfg.Storage.DSN = "pocket.db"
	}
	if cfg.Storage.ReadyTimeout == 0 {
		cfg.Storage.ReadyTimeout = 10 * time.Second
	}

	if cfg.Session.ExpiresIn == 0 {
		cfg.Session.ExpiresIn = 24 * time.Hour
	}
	if len(cfg.Session.AdminGroups) == 0 {
		cfg.Session.AdminGroups = []string{"admins"}
	}
	if len(cfg.Session.Groups) == 0 {
		cfg.Session.Groups = []string{"admins", "users"}
	}

	if cfg.Hasher.BcryptCost == 0 {
		cfg.Hasher.BcryptCost = 10
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}

	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}
}

func validate(cfg *Config) error {
	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", cfg.Server.Port)
	}

	switch cfg.Storage.Driver {
	case DriverMemory, DriverSQLite:
	case DriverPostgres:
		if cfg.Storage.DSN == "" {
			return fmt.Errorf("storage.dsn is required when storage.driver is 'postgres'")
		}
	default:
		return fmt.Errorf("storage.driver must be one of: memory, sqlite, postgres, got %q", cfg.Storage.Driver)
	}
	if cfg.Storage.ReadyTimeout < 0 {
		return fmt.Errorf("storage.ready_timeout must not be negative")
	}

	if cfg.Session.ExpiresIn < 0 {
		return fmt.Errorf("session.expires_in must not be negative")
	}
	for _, g := range cfg.Session.AdminGroups {
		if strings.TrimSpace(g) == "" {
			return fmt.Errorf("session.admin_groups must not contain empty names")
		}
	}

	if cfg.Hasher.BcryptCost < 4 || cfg.Hasher.BcryptCost > 31 {
		return fmt.Errorf("hasher.bcrypt_cost must be between 4 and 31, got %d", cfg.Hasher.BcryptCost)
	}

	validLevels := map[string]bool{"trace": true, "debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[cfg.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: trace, debug, info, warn, error, got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "json" && cfg.Logging.Format != "console" {
		return fmt.Errorf("logging.format must be 'json' or 'console', got %q", cfg.Logging.Format)
	}

	if !strings.HasPrefix(cfg.Metrics.Path, "/") {
		return fmt.Errorf("metrics.path must start with '/', got %q", cfg.Metrics.Path)
	}
	return nil
}
