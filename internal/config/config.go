package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/opengeos/maplibre-gl-noaa-lidar/internal/domain"
)

// Default NOAA coastal LiDAR endpoints.
const (
	DefaultCatalogURL = "https://noaa-nos-coastal-lidar-pds.s3.amazonaws.com/entwine/stac/catalog.json"
	DefaultEPTBaseURL = "https://noaa-nos-coastal-lidar-pds.s3.amazonaws.com/entwine/geoid18"
)

// Config holds the lidar index service configuration.
type Config struct {
	HTTP     HTTPConfig     `yaml:"http"`
	Catalog  CatalogConfig  `yaml:"catalog"`
	Storage  StorageConfig  `yaml:"storage"`
	Sessions SessionsConfig `yaml:"sessions"`
	Auth     AuthConfig     `yaml:"auth"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// AuthConfig holds API key settings for catalog administration routes.
type AuthConfig struct {
	APIKeys []string `yaml:"api_keys"` // empty = no auth
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// CatalogConfig holds catalog acquisition and search settings.
type CatalogConfig struct {
	URL             string `yaml:"url"`
	EPTBaseURL      string `yaml:"ept_base_url"`
	CacheTTLHours   int    `yaml:"cache_ttl_hours"`
	ResultLimit     int    `yaml:"result_limit"`
	BatchSize       int    `yaml:"batch_size"`
	FetchTimeoutSec int    `yaml:"fetch_timeout_sec"`
	SnapshotPath    string `yaml:"snapshot_path"` // empty = bundled snapshot
}

// CacheTTL returns the cache time-to-live.
func (c CatalogConfig) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLHours) * time.Hour
}

// FetchTimeout returns the per-request HTTP timeout.
func (c CatalogConfig) FetchTimeout() time.Duration {
	return time.Duration(c.FetchTimeoutSec) * time.Second
}

// StorageConfig holds catalog cache storage settings.
type StorageConfig struct {
	Driver           string   `yaml:"driver"` // file, redis, valkey, memory (default: file)
	Dir              string   `yaml:"dir"`
	Addrs            []string `yaml:"addrs"`
	Password         string   `yaml:"password"`
	KeyPrefix        string   `yaml:"key_prefix"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
}

// SessionsConfig holds interaction session settings.
type SessionsConfig struct {
	MaxSessions    int     `yaml:"max_sessions"`
	MinDragDegrees float64 `yaml:"min_drag_degrees"`
	SearchOnDraw   *bool   `yaml:"search_on_draw"` // nil = true
}

// SearchOnDrawEnabled reports whether a committed draw triggers a search.
func (s SessionsConfig) SearchOnDrawEnabled() bool {
	return s.SearchOnDraw == nil || *s.SearchOnDraw
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	// Substitute env variables of the form ${VAR}
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// Default returns a configuration made of defaults only, for tools that run
// without a config file.
func Default() Config {
	var cfg Config
	cfg.ApplyDefaults()
	return cfg
}

// MustLoad loads configuration or panics.
func MustLoad(env string) Config {
	cfg, err := Load(env)
	if err != nil {
		panic(err)
	}
	return cfg
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 10
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Catalog.URL == "" {
		c.Catalog.URL = DefaultCatalogURL
	}
	if c.Catalog.EPTBaseURL == "" {
		c.Catalog.EPTBaseURL = DefaultEPTBaseURL
	}
	if c.Catalog.CacheTTLHours <= 0 {
		c.Catalog.CacheTTLHours = 24
	}
	if c.Catalog.ResultLimit <= 0 {
		c.Catalog.ResultLimit = 50
	}
	if c.Catalog.BatchSize <= 0 {
		c.Catalog.BatchSize = 50
	}
	if c.Catalog.FetchTimeoutSec <= 0 {
		c.Catalog.FetchTimeoutSec = 30
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = "file"
	}
	if c.Storage.Dir == "" {
		c.Storage.Dir = filepath.Join(os.TempDir(), "noaa-lidar-cache")
	}
	if c.Storage.KeyPrefix == "" {
		c.Storage.KeyPrefix = domain.KeyPrefix
	}
	if c.Storage.ReadinessTimeout <= 0 {
		c.Storage.ReadinessTimeout = 10
	}
	if c.Sessions.MaxSessions <= 0 {
		c.Sessions.MaxSessions = 256
	}
	if c.Sessions.MinDragDegrees <= 0 {
		c.Sessions.MinDragDegrees = 0.0005
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	for name, raw := range map[string]string{
		"catalog.url":          c.Catalog.URL,
		"catalog.ept_base_url": c.Catalog.EPTBaseURL,
	} {
		u, err := url.Parse(raw)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("%s must be an absolute URL, got %q", name, raw)
		}
	}
	switch c.Storage.Driver {
	case "file", "memory":
		// ok
	case "redis", "valkey":
		if len(c.Storage.Addrs) == 0 {
			return fmt.Errorf("storage.addrs is required for driver %q", c.Storage.Driver)
		}
	default:
		return fmt.Errorf(
			"storage.driver must be \"file\", \"memory\", \"redis\" or \"valkey\", got %q",
			c.Storage.Driver,
		)
	}
	return nil
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
