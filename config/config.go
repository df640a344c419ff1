package config

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultTimezone   = "America/Sao_Paulo"
	defaultBackground = "#5b2fa6"

	databaseURLEnv    = "DATABASE_URL"
	minioEndpointEnv  = "MINIO_ENDPOINT"
	minioAccessKeyEnv = "MINIO_ACCESS_KEY"
	minioSecretKeyEnv = "MINIO_SECRET_KEY"
	minioBucketEnv    = "MINIO_BUCKET"
	logLevelEnv       = "LOG_LEVEL"
)

// Backend drivers
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverMinio    = "minio"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Storage  StorageConfig  `yaml:"storage"`
	Minio    MinioConfig    `yaml:"minio"`
	Render   RenderConfig   `yaml:"render"`
	Log      LogConfig      `yaml:"log"`
}

type ServerConfig struct {
	Port      int             `yaml:"port"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

// RateLimitConfig caps requests per client IP. Zero requests disables it.
type RateLimitConfig struct {
	Requests int           `yaml:"requests"`
	Window   time.Duration `yaml:"window"`
}

// DatabaseConfig selects the process ledger backend.
type DatabaseConfig struct {
	Driver   string `yaml:"driver"`
	DSN      string `yaml:"dsn"`
	MaxConns int32  `yaml:"max_conns"`
	MinConns int32  `yaml:"min_conns"`
}

// StorageConfig selects the artifact store backend.
type StorageConfig struct {
	Driver  string `yaml:"driver"`
	BaseURL string `yaml:"base_url"`
}

type MinioConfig struct {
	Endpoint   string `yaml:"endpoint"`
	AccessKey  string `yaml:"access_key"`
	SecretKey  string `yaml:"secret_key"`
	Bucket     string `yaml:"bucket"`
	UseSSL     bool   `yaml:"use_ssl"`
	PublicURL  string `yaml:"public_url"`
	ExpireDays int    `yaml:"expire_days"`
}

// RenderConfig controls the look and clock of the rendered documents.
type RenderConfig struct {
	Timezone   string         `yaml:"timezone"`
	Background string         `yaml:"background"`
	location   *time.Location `yaml:"-"`
}

// Location resolves the render timezone.
func (r RenderConfig) Location() *time.Location {
	if r.location != nil {
		return r.location
	}
	return time.UTC
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

var GlobalConfig *Config

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()
	cfg.applyEnvOverrides()
	cfg.bindTimezone()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	GlobalConfig = &cfg
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.RateLimit.Window == 0 {
		c.Server.RateLimit.Window = time.Minute
	}
	if c.Database.Driver == "" {
		c.Database.Driver = DriverMemory
	}
	if c.Database.MaxConns == 0 {
		c.Database.MaxConns = 10
	}
	if c.Database.MinConns == 0 {
		c.Database.MinConns = 1
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = DriverMemory
	}
	if c.Storage.BaseURL == "" {
		c.Storage.BaseURL = "memory://artifacts"
	}
	if c.Minio.ExpireDays == 0 {
		c.Minio.ExpireDays = 7
	}
	if c.Render.Timezone == "" {
		c.Render.Timezone = defaultTimezone
	}
	if c.Render.Background == "" {
		c.Render.Background = defaultBackground
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(databaseURLEnv); v != "" {
		c.Database.DSN = v
	}
	if v := os.Getenv(minioEndpointEnv); v != "" {
		c.Minio.Endpoint = v
	}
	if v := os.Getenv(minioAccessKeyEnv); v != "" {
		c.Minio.AccessKey = v
	}
	if v := os.Getenv(minioSecretKeyEnv); v != "" {
		c.Minio.SecretKey = v
	}
	if v := os.Getenv(minioBucketEnv); v != "" {
		c.Minio.Bucket = v
	}
	if v := os.Getenv(logLevelEnv); v != "" {
		c.Log.Level = v
	}
}

func (c *Config) bindTimezone() {
	loc, err := time.LoadLocation(c.Render.Timezone)
	if err != nil {
		slog.Warn("unknown render timezone, using UTC", "timezone", c.Render.Timezone, "error", err)
		loc = time.UTC
	}
	c.Render.location = loc
}

// Validate checks that the selected drivers have what they need.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case DriverMemory:
	case DriverPostgres:
		if c.Database.DSN == "" {
			return fmt.Errorf("database.dsn is required for driver %q", DriverPostgres)
		}
		if c.Database.MinConns > c.Database.MaxConns {
			return fmt.Errorf("database.min_conns (%d) exceeds max_conns (%d)", c.Database.MinConns, c.Database.MaxConns)
		}
	default:
		return fmt.Errorf("unknown database driver %q", c.Database.Driver)
	}

	switch c.Storage.Driver {
	case DriverMemory:
	case DriverMinio:
		if c.Minio.Endpoint == "" || c.Minio.Bucket == "" {
			return fmt.Errorf("minio.endpoint and minio.bucket are required for driver %q", DriverMinio)
		}
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	return nil
}
