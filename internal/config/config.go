// Package config provides configuration management for the item service.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Default configuration values.
const (
	DefaultServerPort       = 8080
	DefaultProbePort        = 9090
	DefaultLogLevel         = "info"
	DefaultShutdownTimeout  = 30 * time.Second
	DefaultMetricsEnabled   = true
	DefaultCORSAllowHeaders = "Content-Type,Authorization"
	DefaultSeedItems        = true
	DefaultWebSocketEnabled = true
	DefaultEnvFile          = ".env"
)

// Environment variable names.
const (
	EnvFile             = "APP_ENV_FILE"
	EnvServerPort       = "APP_SERVER_PORT"
	EnvProbePort        = "APP_PROBE_PORT"
	EnvLogLevel         = "APP_LOG_LEVEL"
	EnvShutdownTimeout  = "APP_SHUTDOWN_TIMEOUT"
	EnvMetricsEnabled   = "APP_METRICS_ENABLED"
	EnvCORSAllowHeaders = "APP_CORS_ALLOW_HEADERS"
	EnvSeedItems        = "APP_SEED_ITEMS"
	EnvWebSocketEnabled = "APP_WEBSOCKET_ENABLED"
)

// Config holds the application configuration.
type Config struct {
	ServerPort      int
	ProbePort       int // 0 serves probes and metrics on the API port.
	LogLevel        string
	ShutdownTimeout time.Duration
	MetricsEnabled  bool

	// CORSAllowHeaders is sent as Access-Control-Allow-Headers.
	CORSAllowHeaders []string

	// SeedItems starts the store with the three demo items.
	SeedItems bool

	// WebSocketEnabled registers the item event feed.
	WebSocketEnabled bool
}

// Validation errors.
var (
	ErrInvalidServerPort      = errors.New("server port must be between 1 and 65535")
	ErrInvalidProbePort       = errors.New("probe port must be between 0 and 65535")
	ErrProbePortConflict      = errors.New("probe port must differ from server port when probe port is not 0")
	ErrInvalidLogLevel        = errors.New("log level must be one of: debug, info, warn, error")
	ErrInvalidShutdownTimeout = errors.New("shutdown timeout must be positive")
	ErrEmptyCORSAllowHeaders  = errors.New("CORS allow headers must name at least one header")
)

// Load reads configuration from the environment with defaults. Variables
// from the env file fill in only what the environment does not set.
func Load() (*Config, error) {
	if err := loadEnvFile(); err != nil {
		return nil, fmt.Errorf("loading env file: %w", err)
	}

	cfg := &Config{
		ServerPort:       DefaultServerPort,
		ProbePort:        DefaultProbePort,
		LogLevel:         DefaultLogLevel,
		ShutdownTimeout:  DefaultShutdownTimeout,
		MetricsEnabled:   DefaultMetricsEnabled,
		CORSAllowHeaders: SplitList(DefaultCORSAllowHeaders),
		SeedItems:        DefaultSeedItems,
		WebSocketEnabled: DefaultWebSocketEnabled,
	}

	if err := cfg.loadFromEnv(); err != nil {
		return nil, fmt.Errorf("loading config from environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// loadEnvFile loads APP_ENV_FILE (default .env). A missing default file is
// not an error; a missing explicitly named file is.
func loadEnvFile() error {
	path := os.Getenv(EnvFile)
	explicit := path != ""
	if !explicit {
		path = DefaultEnvFile
	}

	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) && !explicit {
			return nil
		}
		return err
	}

	return godotenv.Load(path)
}

// loadFromEnv loads configuration values from environment variables.
func (c *Config) loadFromEnv() error {
	if err := envInt(EnvServerPort, &c.ServerPort); err != nil {
		return err
	}
	if err := envInt(EnvProbePort, &c.ProbePort); err != nil {
		return err
	}

	if val := os.Getenv(EnvLogLevel); val != "" {
		c.LogLevel = strings.ToLower(val)
	}

	if val := os.Getenv(EnvShutdownTimeout); val != "" {
		timeout, err := time.ParseDuration(val)
		if err != nil {
			return fmt.Errorf("parsing %s: %w", EnvShutdownTimeout, err)
		}
		c.ShutdownTimeout = timeout
	}

	if err := envBool(EnvMetricsEnabled, &c.MetricsEnabled); err != nil {
		return err
	}
	if err := envBool(EnvSeedItems, &c.SeedItems); err != nil {
		return err
	}
	if err := envBool(EnvWebSocketEnabled, &c.WebSocketEnabled); err != nil {
		return err
	}

	if val, ok := os.LookupEnv(EnvCORSAllowHeaders); ok {
		c.CORSAllowHeaders = SplitList(val)
	}

	return nil
}

func envInt(name string, dst *int) error {
	val := os.Getenv(name)
	if val == "" {
		return nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return fmt.Errorf("parsing %s: %w", name, err)
	}
	*dst = n
	return nil
}

func envBool(name string, dst *bool) error {
	val := os.Getenv(name)
	if val == "" {
		return nil
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return fmt.Errorf("parsing %s: %w", name, err)
	}
	*dst = b
	return nil
}

// SplitList splits a comma separated value, trimming blanks and dropping
// empty entries.
func SplitList(val string) []string {
	parts := strings.Split(val, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate checks if the configuration values are valid.
func (c *Config) Validate() error {
	if c.ServerPort < 1 || c.ServerPort > 65535 {
		return ErrInvalidServerPort
	}

	if c.ProbePort < 0 || c.ProbePort > 65535 {
		return ErrInvalidProbePort
	}

	if c.ProbePort != 0 && c.ProbePort == c.ServerPort {
		return ErrProbePortConflict
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.LogLevel] {
		return ErrInvalidLogLevel
	}

	if c.ShutdownTimeout <= 0 {
		return ErrInvalidShutdownTimeout
	}

	if len(c.CORSAllowHeaders) == 0 {
		return ErrEmptyCORSAllowHeaders
	}

	return nil
}

// Address returns the server address in host:port format.
func (c *Config) Address() string {
	return fmt.Sprintf(":%d", c.ServerPort)
}

// ProbeAddress returns the probe server address in host:port format.
func (c *Config) ProbeAddress() string {
	return fmt.Sprintf(":%d", c.ProbePort)
}
