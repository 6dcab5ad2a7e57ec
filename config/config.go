/*
Package config loads runtime configuration for the points engine.

PURPOSE:
  One place that knows every knob the server accepts. Values come from three
  layers, lowest precedence first: built-in defaults, an optional YAML file,
  then environment variables. A .env file in the working directory is loaded
  into the environment before any of that happens, so local development needs
  no exported shell state.

KEY CONCEPTS:
  - Config: the full tree handed to cmd/server at startup
  - Load: defaults -> YAML file -> env overrides
  - Validate: fails fast on nonsense before any socket opens

SEE ALSO:
  - cmd/server/main.go: the only consumer
  - .env.example: documented copy of every variable
*/
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// =============================================================================
// CONFIG TREE
// =============================================================================

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Store    StoreConfig    `yaml:"store"`
	Ledger   LedgerConfig   `yaml:"ledger"`
	Auth     AuthConfig     `yaml:"auth"`
	Identity IdentityConfig `yaml:"identity"`
	Log      LogConfig      `yaml:"log"`
	Tracing  TracingConfig  `yaml:"tracing"`
}

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Port           string `yaml:"port"`
	AllowedOrigins string `yaml:"allowed_origins"` // comma-separated
}

// StoreConfig selects and configures the persistence backends.
type StoreConfig struct {
	// Backend names the primary document backend: cortex, sqlite, redis
	// or memory. The in-memory fallback is always present regardless.
	Backend   string `yaml:"backend"`
	CortexURL string `yaml:"cortex_url"`
	SQLitePath string `yaml:"sqlite_path"`
	RedisAddr  string `yaml:"redis_addr"`
	// IndexPath is where the consistency index persists between restarts.
	IndexPath string `yaml:"index_path"`
	NodeID    int64  `yaml:"node_id"`
	Seed      bool   `yaml:"seed"`
}

// LedgerConfig holds point accounting settings.
type LedgerConfig struct {
	ConversionRate float64 `yaml:"conversion_rate"`
	WelcomeBonus   int64   `yaml:"welcome_bonus"`
}

// AuthConfig holds token signing settings.
type AuthConfig struct {
	JWTSecret    string `yaml:"jwt_secret"`
	AccessTTLMin int    `yaml:"access_ttl_minutes"`
}

// IdentityConfig holds the external compliance gateway settings.
type IdentityConfig struct {
	CRSBaseURL  string `yaml:"crs_base_url"`
	CRSUsername string `yaml:"crs_username"`
	CRSPassword string `yaml:"crs_password"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level string `yaml:"level"`
	Dev   bool   `yaml:"dev"`
	// File, when set, additionally writes rotated JSON logs under this path.
	File string `yaml:"file"`
}

// TracingConfig holds distributed tracing settings.
type TracingConfig struct {
	Enabled     bool   `yaml:"enabled"`
	JaegerURL   string `yaml:"jaeger_url"`
	Environment string `yaml:"environment"`
}

// =============================================================================
// LOADING
// =============================================================================

// Load builds the configuration. yamlPath may be empty; environment variables
// always win over the file.
func Load(yamlPath string) (*Config, error) {
	_ = godotenv.Load()

	cfg := defaults()

	if yamlPath != "" {
		data, err := os.ReadFile(yamlPath)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	overrideFromEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Port:           "8080",
			AllowedOrigins: "*",
		},
		Store: StoreConfig{
			Backend:    "memory",
			CortexURL:  "http://localhost:6334",
			SQLitePath: "./points.db",
			RedisAddr:  "localhost:6379",
			IndexPath:  "./consistency_index.json",
			NodeID:     1,
			Seed:       true,
		},
		Ledger: LedgerConfig{
			ConversionRate: 0.5,
			WelcomeBonus:   100,
		},
		Auth: AuthConfig{
			JWTSecret:    "",
			AccessTTLMin: 60,
		},
		Identity: IdentityConfig{
			CRSBaseURL: "",
		},
		Log: LogConfig{
			Level: "info",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			JaegerURL:   "http://localhost:14268/api/traces",
			Environment: "dev",
		},
	}
}

func overrideFromEnv(cfg *Config) {
	setString(&cfg.Server.Port, "SERVER_PORT")
	setString(&cfg.Server.AllowedOrigins, "ALLOWED_ORIGINS")

	setString(&cfg.Store.Backend, "STORE_BACKEND")
	setString(&cfg.Store.CortexURL, "CORTEX_URL")
	setString(&cfg.Store.SQLitePath, "SQLITE_PATH")
	setString(&cfg.Store.RedisAddr, "REDIS_ADDR")
	setString(&cfg.Store.IndexPath, "INDEX_PATH")
	setInt64(&cfg.Store.NodeID, "NODE_ID")
	setBool(&cfg.Store.Seed, "SEED_DEMO_DATA")

	setFloat(&cfg.Ledger.ConversionRate, "POINTS_CONVERSION_RATE")
	setInt64(&cfg.Ledger.WelcomeBonus, "WELCOME_BONUS_POINTS")

	setString(&cfg.Auth.JWTSecret, "JWT_SECRET")
	setInt(&cfg.Auth.AccessTTLMin, "ACCESS_TOKEN_TTL_MINUTES")

	setString(&cfg.Identity.CRSBaseURL, "CRS_BASE_URL")
	setString(&cfg.Identity.CRSUsername, "CRS_USERNAME")
	setString(&cfg.Identity.CRSPassword, "CRS_PASSWORD")

	setString(&cfg.Log.Level, "LOG_LEVEL")
	setBool(&cfg.Log.Dev, "LOG_DEV")
	setString(&cfg.Log.File, "LOG_FILE")

	setBool(&cfg.Tracing.Enabled, "TRACING_ENABLED")
	setString(&cfg.Tracing.JaegerURL, "JAEGER_URL")
	setString(&cfg.Tracing.Environment, "DEPLOY_ENV")
}

// Validate fails fast on settings the server cannot run with.
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	switch c.Store.Backend {
	case "cortex", "sqlite", "redis", "memory":
	default:
		return fmt.Errorf("unknown store backend %q", c.Store.Backend)
	}
	if c.Store.Backend == "cortex" && c.Store.CortexURL == "" {
		return fmt.Errorf("cortex backend requires CORTEX_URL")
	}
	if c.Ledger.ConversionRate <= 0 {
		return fmt.Errorf("conversion rate must be positive, got %v", c.Ledger.ConversionRate)
	}
	if c.Ledger.WelcomeBonus < 0 {
		return fmt.Errorf("welcome bonus cannot be negative")
	}
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if c.Auth.AccessTTLMin <= 0 {
		return fmt.Errorf("access token TTL must be positive")
	}
	return nil
}

// AccessTTL returns the access token lifetime as a duration.
func (c *Config) AccessTTL() time.Duration {
	return time.Duration(c.Auth.AccessTTLMin) * time.Minute
}

// Origins splits the allowed-origins setting into a slice for the CORS layer.
func (c *Config) Origins() []string {
	parts := strings.Split(c.Server.AllowedOrigins, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		out = []string{"*"}
	}
	return out
}

// =============================================================================
// ENV HELPERS
// =============================================================================

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = strings.ToLower(v) == "true" || v == "1"
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			*dst = i
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = i
		}
	}
}

func setFloat(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}
