package config

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

type ctxKey string

const configContextKey ctxKey = "vesting.config"

// EnvPrefix is the prefix of every environment variable read by LoadConfig,
// e.g. VESTING_DATABASE_DSN.
const EnvPrefix = "vesting"

func WithContext(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, configContextKey, cfg)
}

func FromContext(ctx context.Context) *Config {
	cfg, ok := ctx.Value(configContextKey).(*Config)
	if !ok {
		return nil
	}
	return cfg
}

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Reconcile ReconcileConfig `yaml:"reconcile"`
	NATS      NATSConfig      `yaml:"nats"      envconfig:"NATS"`
	Auth      AuthConfig      `yaml:"auth"`
	MCP       MCPConfig       `yaml:"mcp"       envconfig:"MCP"`
	Log       LogConfig       `yaml:"log"`
}

type ServerConfig struct {
	Port            int           `yaml:"port"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout" split_words:"true"`
}

type DatabaseConfig struct {
	// Driver is sqlite or postgres
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"    envconfig:"DSN"`
}

type ReconcileConfig struct {
	Interval          time.Duration `yaml:"interval"`
	BatchSize         int           `yaml:"batchSize"         split_words:"true"`
	PendingAlertAfter time.Duration `yaml:"pendingAlertAfter" split_words:"true"`
}

// NATSConfig configures the event bus. An empty URL disables it.
type NATSConfig struct {
	URL             string `yaml:"url"             envconfig:"URL"`
	StatusSubject   string `yaml:"statusSubject"   split_words:"true"`
	ResolvedSubject string `yaml:"resolvedSubject" split_words:"true"`
	QueueGroup      string `yaml:"queueGroup"      split_words:"true"`
}

type AuthConfig struct {
	JWTSecret string `yaml:"jwtSecret" envconfig:"JWT_SECRET"`
	JWKSURL   string `yaml:"jwksUrl"   envconfig:"JWKS_URL"`
	Audience  string `yaml:"audience"`
	Issuer    string `yaml:"issuer"`
	// CallbackSecret enables the chain-layer status callback. Empty disables it.
	CallbackSecret string `yaml:"callbackSecret" envconfig:"CALLBACK_SECRET"`
}

// MCPConfig configures the MCP tool surface.
type MCPConfig struct {
	// HTTP mounts the streamable HTTP endpoint at /mcp on the API server.
	HTTP bool `yaml:"http" envconfig:"HTTP"`
	// Organization is the organization stdio sessions act for. Stdio has no token to read it from.
	Organization string `yaml:"organization"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the configuration used when neither a file nor the environment set a value.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ShutdownTimeout: 30 * time.Second,
		},
		Database: DatabaseConfig{
			Driver: "sqlite",
			DSN:    "data/vesting.db",
		},
		Reconcile: ReconcileConfig{
			Interval:          15 * time.Second,
			BatchSize:         100,
			PendingAlertAfter: 30 * time.Minute,
		},
		NATS: NATSConfig{
			StatusSubject:   "vesting.tx.status",
			ResolvedSubject: "vesting.tx.resolved",
			QueueGroup:      "vesting-reconcile",
		},
		MCP: MCPConfig{
			HTTP: true,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// LoadConfig reads configFile (if not empty) over the defaults and then applies
// VESTING_* environment variables on top.
func LoadConfig(configFile string) (*Config, error) {
	cfg := Default()

	if configFile != "" {
		buf, err := os.ReadFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		if err := yaml.Unmarshal(buf, cfg); err != nil {
			return nil, fmt.Errorf("error parsing config file: %w", err)
		}
	}

	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("error processing environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("invalid database driver %q (must be 'sqlite' or 'postgres')", c.Database.Driver)
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("database dsn is required")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	if c.Reconcile.Interval <= 0 {
		return fmt.Errorf("reconcile interval must be positive")
	}
	if c.Reconcile.BatchSize <= 0 {
		return fmt.Errorf("reconcile batch size must be positive")
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log format %q (must be 'text' or 'json')", c.Log.Format)
	}
	return nil
}
