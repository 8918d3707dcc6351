// Package config loads the tenancy configuration from a YAML file with
// PGTENANCY_* environment overrides. Missing values get defaults;
// malformed configuration fails loading so problems surface at startup
// instead of at first use.
package config

import (
	"database/sql"
	"fmt"
	"os"
	"strconv"
	"time"

	_ "github.com/lib/pq"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/getpup/pgtenancy"
)

// DatabaseConfig holds connection and pool configuration.
type DatabaseConfig struct {
	DSN             string        `yaml:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// TenancyConfig holds the schema layout and entity classification.
type TenancyConfig struct {
	PublicSchema     string   `yaml:"public_schema"`
	TenantTable      string   `yaml:"tenant_table"`
	IdentifierColumn string   `yaml:"identifier_column"`
	SharedEntities   []string `yaml:"shared_entities"`
	TenantEntities   []string `yaml:"tenant_entities"`
}

// MigrationsConfig holds migration directories and runner settings.
type MigrationsConfig struct {
	SharedDir   string `yaml:"shared_dir"`
	TenantDir   string `yaml:"tenant_dir"`
	LedgerTable string `yaml:"ledger_table"`
	Workers     int    `yaml:"workers"`
}

// CacheConfig holds the optional Redis registry cache configuration.
// An empty Addr disables the cache.
type CacheConfig struct {
	Addr string        `yaml:"addr"`
	TTL  time.Duration `yaml:"ttl"`
}

// MetricsConfig holds the Prometheus endpoint configuration.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
	Path    string `yaml:"path"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Config represents the complete tenancy configuration.
type Config struct {
	Database   DatabaseConfig   `yaml:"database"`
	Tenancy    TenancyConfig    `yaml:"tenancy"`
	Migrations MigrationsConfig `yaml:"migrations"`
	Cache      CacheConfig      `yaml:"cache"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// Load reads the configuration file at path, applies environment
// overrides and defaults, and validates the result. An empty path skips
// the file and builds the configuration from environment and defaults
// alone.
func Load(path string) (*Config, error) {
	var cfg Config

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("%w: %v", pgtenancy.ErrConfiguration, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	setDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// applyEnv overrides file values from PGTENANCY_* environment variables.
func (c *Config) applyEnv() error {
	if v := os.Getenv("PGTENANCY_DATABASE_DSN"); v != "" {
		c.Database.DSN = v
	}
	if v := os.Getenv("PGTENANCY_PUBLIC_SCHEMA"); v != "" {
		c.Tenancy.PublicSchema = v
	}
	if v := os.Getenv("PGTENANCY_CACHE_ADDR"); v != "" {
		c.Cache.Addr = v
	}
	if v := os.Getenv("PGTENANCY_METRICS_ADDR"); v != "" {
		c.Metrics.Addr = v
	}
	if v := os.Getenv("PGTENANCY_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("PGTENANCY_LOG_FORMAT"); v != "" {
		c.Logging.Format = v
	}
	if v := os.Getenv("PGTENANCY_MIGRATION_WORKERS"); v != "" {
		workers, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: PGTENANCY_MIGRATION_WORKERS: %v", pgtenancy.ErrConfiguration, err)
		}
		c.Migrations.Workers = workers
	}
	return nil
}

// setDefaults sets default values for unspecified configuration
func setDefaults(cfg *Config) {
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 25
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = 30 * time.Minute
	}

	if cfg.Tenancy.PublicSchema == "" {
		cfg.Tenancy.PublicSchema = "public"
	}
	if cfg.Tenancy.TenantTable == "" {
		cfg.Tenancy.TenantTable = "tenants"
	}
	if cfg.Tenancy.IdentifierColumn == "" {
		cfg.Tenancy.IdentifierColumn = "identifier"
	}

	if cfg.Migrations.SharedDir == "" {
		cfg.Migrations.SharedDir = "migrations/shared"
	}
	if cfg.Migrations.TenantDir == "" {
		cfg.Migrations.TenantDir = "migrations/tenant"
	}
	if cfg.Migrations.LedgerTable == "" {
		cfg.Migrations.LedgerTable = "schema_migrations"
	}
	if cfg.Migrations.Workers == 0 {
		cfg.Migrations.Workers = 4
	}

	if cfg.Cache.TTL == 0 {
		cfg.Cache.TTL = 30 * time.Second
	}

	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Database.DSN == "" {
		return fmt.Errorf("%w: database.dsn is required", pgtenancy.ErrConfiguration)
	}
	if err := pgtenancy.ValidateSchemaName(c.Tenancy.PublicSchema); err != nil {
		return fmt.Errorf("%w: tenancy.public_schema: %v", pgtenancy.ErrConfiguration, err)
	}

	shared := make(map[string]bool, len(c.Tenancy.SharedEntities))
	for _, entity := range c.Tenancy.SharedEntities {
		shared[entity] = true
	}
	for _, entity := range c.Tenancy.TenantEntities {
		if shared[entity] {
			return fmt.Errorf("%w: entity %q is classified as both shared and tenant", pgtenancy.ErrConfiguration, entity)
		}
	}

	if c.Migrations.Workers < 1 {
		return fmt.Errorf("%w: migrations.workers must be at least 1", pgtenancy.ErrConfiguration)
	}
	if c.Cache.Addr != "" && c.Cache.TTL <= 0 {
		return fmt.Errorf("%w: cache.ttl must be positive", pgtenancy.ErrConfiguration)
	}

	if _, err := zapcore.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("%w: logging.level %q", pgtenancy.ErrConfiguration, c.Logging.Level)
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("%w: logging.format must be json or console", pgtenancy.ErrConfiguration)
	}

	return nil
}

// Router builds the entity routing table from the configured
// classification.
func (t TenancyConfig) Router() (*pgtenancy.Router, error) {
	return pgtenancy.NewRouter(pgtenancy.RouterConfig{
		SharedSchema:   t.PublicSchema,
		SharedEntities: t.SharedEntities,
		TenantEntities: t.TenantEntities,
	})
}

// Open opens the configured database and applies the pool settings.
func (d DatabaseConfig) Open() (*sql.DB, error) {
	db, err := sql.Open("postgres", d.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(d.MaxOpenConns)
	db.SetMaxIdleConns(d.MaxIdleConns)
	db.SetConnMaxLifetime(d.ConnMaxLifetime)

	return db, nil
}

// Build constructs a zap logger from the logging configuration.
func (l LoggingConfig) Build() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(l.Level)
	if err != nil {
		return nil, fmt.Errorf("%w: logging.level %q", pgtenancy.ErrConfiguration, l.Level)
	}

	var zapCfg zap.Config
	if l.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)

	return zapCfg.Build()
}
