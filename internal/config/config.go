// ABOUTME: Configuration loading and parsing for photoid-gateway
// ABOUTME: Supports YAML or TOML files, environment overrides, and duration parsing

package config

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Storage backends accepted by storage.backend.
const (
	BackendAuto  = "auto"
	BackendLocal = "local"
	BackendDrive = "drive"
)

// MinJWTSecretLength is the shortest accepted admin token signing secret.
const MinJWTSecretLength = 32

// Defaults applied by Load when a value is neither in the file nor the environment.
const (
	DefaultHost            = "0.0.0.0"
	DefaultPort            = 8000
	DefaultImageDir        = "images"
	DefaultDatabasePath    = "data/photoid.db"
	DefaultMetricsPath     = "/metrics"
	DefaultDedupeTTL       = 10 * time.Minute
	DefaultMaxContentBytes = 20 << 20
	DefaultHostname        = "photoid-gateway"
)

// Config represents the complete photoid-gateway configuration
type Config struct {
	Server    ServerConfig    `yaml:"server" toml:"server"`
	LINE      LINEConfig      `yaml:"line" toml:"line"`
	Storage   StorageConfig   `yaml:"storage" toml:"storage"`
	Database  DatabaseConfig  `yaml:"database" toml:"database"`
	Auth      AuthConfig      `yaml:"auth" toml:"auth"`
	Tailscale TailscaleConfig `yaml:"tailscale" toml:"tailscale"`
	Logging   LoggingConfig   `yaml:"logging" toml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics" toml:"metrics"`
	Dedupe    DedupeConfig    `yaml:"dedupe" toml:"dedupe"`
}

// ServerConfig holds the listen address
type ServerConfig struct {
	Host string `yaml:"host" toml:"host"`
	Port int    `yaml:"port" toml:"port"`
}

// LINEConfig holds the Messaging API channel credentials
type LINEConfig struct {
	ChannelAccessToken string `yaml:"channel_access_token" toml:"channel_access_token"`
	ChannelSecret      string `yaml:"channel_secret" toml:"channel_secret"`
	MaxContentBytes    int64  `yaml:"max_content_bytes" toml:"max_content_bytes"`
}

// StorageConfig selects where resolved images are written
type StorageConfig struct {
	Backend              string `yaml:"backend" toml:"backend"`
	LocalDir             string `yaml:"local_dir" toml:"local_dir"`
	DriveFolderID        string `yaml:"drive_folder_id" toml:"drive_folder_id"`
	DriveCredentialsJSON string `yaml:"drive_credentials_json" toml:"drive_credentials_json"`
	Timezone             string `yaml:"timezone" toml:"timezone"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path string `yaml:"path" toml:"path"`
}

// AuthConfig holds admin API authentication configuration
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret" toml:"jwt_secret"`
}

// TailscaleConfig holds Tailscale tsnet configuration
type TailscaleConfig struct {
	Enabled   bool   `yaml:"enabled" toml:"enabled"`
	Hostname  string `yaml:"hostname" toml:"hostname"`
	AuthKey   string `yaml:"auth_key" toml:"auth_key"`
	StateDir  string `yaml:"state_dir" toml:"state_dir"`
	Ephemeral bool   `yaml:"ephemeral" toml:"ephemeral"`
	Funnel    bool   `yaml:"funnel" toml:"funnel"` // LINE must reach the webhook from the internet
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// MetricsConfig holds metrics endpoint configuration
type MetricsConfig struct {
	Enabled *bool  `yaml:"enabled" toml:"enabled"`
	Path    string `yaml:"path" toml:"path"`
}

// On reports whether the metrics endpoint is served. Unset means enabled.
func (m MetricsConfig) On() bool {
	return m.Enabled == nil || *m.Enabled
}

// DedupeConfig holds the redelivery filter settings
type DedupeConfig struct {
	TTL time.Duration `yaml:"-" toml:"-"`

	// Raw string value for file unmarshaling
	TTLRaw string `yaml:"ttl" toml:"ttl"`
}

// Load reads an optional configuration file, applies environment overrides
// and defaults, and validates the result. An empty path means environment only.
// Environment variables in the format ${VAR_NAME} are expanded in the file.
func Load(path string) (*Config, error) {
	var cfg Config

	if path != "" {
		if err := decodeFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return nil, fmt.Errorf("reading environment: %w", err)
	}

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

func decodeFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}

	expanded := expandEnvVars(string(data))

	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if _, err := toml.Decode(expanded, cfg); err != nil {
			return fmt.Errorf("parsing config file: %w", err)
		}
	case ".yaml", ".yml", "":
		if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
			return fmt.Errorf("parsing config file: %w", err)
		}
	default:
		return fmt.Errorf("unsupported config file extension %q", filepath.Ext(path))
	}
	return nil
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// applyEnv overlays the process environment. A set variable always wins over the file.
func applyEnv(cfg *Config) error {
	setString(&cfg.LINE.ChannelAccessToken, "LINE_CHANNEL_ACCESS_TOKEN")
	setString(&cfg.LINE.ChannelSecret, "LINE_CHANNEL_SECRET")
	setString(&cfg.Server.Host, "HOST")
	setString(&cfg.Storage.Backend, "STORAGE_BACKEND")
	setString(&cfg.Storage.LocalDir, "IMAGE_DIR")
	setString(&cfg.Storage.DriveFolderID, "GOOGLE_DRIVE_FOLDER_ID")
	setString(&cfg.Storage.DriveCredentialsJSON, "GOOGLE_SERVICE_ACCOUNT_JSON")
	setString(&cfg.Storage.Timezone, "TZ_NAME")
	setString(&cfg.Database.Path, "PHOTOID_DB_PATH")
	setString(&cfg.Auth.JWTSecret, "PHOTOID_JWT_SECRET")
	setString(&cfg.Logging.Level, "LOG_LEVEL")
	setString(&cfg.Logging.Format, "LOG_FORMAT")

	if v := os.Getenv("TS_AUTHKEY"); v != "" {
		cfg.Tailscale.AuthKey = v
	}

	if v := os.Getenv("PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("PORT %q is not a number: %w", v, err)
		}
		cfg.Server.Port = port
	}
	return nil
}

func setString(dst *string, env string) {
	if v, ok := os.LookupEnv(env); ok && v != "" {
		*dst = v
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = DefaultHost
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = DefaultPort
	}
	if cfg.LINE.MaxContentBytes == 0 {
		cfg.LINE.MaxContentBytes = DefaultMaxContentBytes
	}
	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = BackendAuto
	}
	cfg.Storage.Backend = strings.ToLower(cfg.Storage.Backend)
	if cfg.Storage.LocalDir == "" {
		cfg.Storage.LocalDir = DefaultImageDir
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = DefaultDatabasePath
	}
	if cfg.Tailscale.Hostname == "" {
		cfg.Tailscale.Hostname = DefaultHostname
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = DefaultMetricsPath
	}
	if cfg.Dedupe.TTL == 0 {
		cfg.Dedupe.TTL = DefaultDedupeTTL
	}
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.LINE.ChannelAccessToken == "" {
		return fmt.Errorf("line.channel_access_token is required (LINE_CHANNEL_ACCESS_TOKEN)")
	}
	if c.LINE.ChannelSecret == "" {
		return fmt.Errorf("line.channel_secret is required (LINE_CHANNEL_SECRET)")
	}
	if c.LINE.MaxContentBytes < 0 {
		return fmt.Errorf("line.max_content_bytes must be positive")
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}

	switch c.Storage.Backend {
	case BackendAuto, BackendLocal:
	case BackendDrive:
		if c.Storage.DriveFolderID == "" || c.Storage.DriveCredentialsJSON == "" {
			return fmt.Errorf("storage.backend drive requires drive_folder_id and drive_credentials_json")
		}
	default:
		return fmt.Errorf("storage.backend must be one of auto, local, drive (got %q)", c.Storage.Backend)
	}

	if _, err := c.Location(); err != nil {
		return fmt.Errorf("storage.timezone: %w", err)
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	if c.Auth.JWTSecret != "" && len(c.Auth.JWTSecret) < MinJWTSecretLength {
		return fmt.Errorf("auth.jwt_secret must be at least %d bytes", MinJWTSecretLength)
	}

	if c.Tailscale.Enabled && c.Tailscale.Hostname == "" {
		return fmt.Errorf("tailscale.hostname is required when tailscale is enabled")
	}

	if c.Dedupe.TTL < 0 {
		return fmt.Errorf("dedupe.ttl must not be negative")
	}

	return nil
}

// Addr returns the host:port the HTTP server listens on.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Server.Host, strconv.Itoa(c.Server.Port))
}

// StorageBackend resolves "auto" to a concrete backend: drive when both a
// folder and credentials are configured, local otherwise.
func (c *Config) StorageBackend() string {
	if c.Storage.Backend != BackendAuto {
		return c.Storage.Backend
	}
	if c.Storage.DriveFolderID != "" && c.Storage.DriveCredentialsJSON != "" {
		return BackendDrive
	}
	return BackendLocal
}

// Location returns the timezone used for dated file names.
func (c *Config) Location() (*time.Location, error) {
	if c.Storage.Timezone == "" {
		return time.Local, nil
	}
	return time.LoadLocation(c.Storage.Timezone)
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	if cfg.Dedupe.TTLRaw != "" {
		ttl, err := time.ParseDuration(cfg.Dedupe.TTLRaw)
		if err != nil {
			return fmt.Errorf("parsing dedupe.ttl %q: %w", cfg.Dedupe.TTLRaw, err)
		}
		cfg.Dedupe.TTL = ttl
	}
	return nil
}

// DriveCredentials returns the service account key. The configured value is
// either the JSON document itself or a path to a file holding it.
func (c *Config) DriveCredentials() ([]byte, error) {
	v := strings.TrimSpace(c.Storage.DriveCredentialsJSON)
	if v == "" {
		return nil, fmt.Errorf("storage.drive_credentials_json is not set")
	}
	if strings.HasPrefix(v, "{") {
		return []byte(v), nil
	}
	data, err := os.ReadFile(v)
	if err != nil {
		return nil, fmt.Errorf("reading drive credentials: %w", err)
	}
	return data, nil
}
