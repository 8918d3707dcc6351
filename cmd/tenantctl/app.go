package main

import (
	"context"
	"database/sql"
	"os"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/getpup/pgtenancy/config"
	"github.com/getpup/pgtenancy/lifecycle"
	"github.com/getpup/pgtenancy/metrics"
	"github.com/getpup/pgtenancy/migrate"
	"github.com/getpup/pgtenancy/pkg/migrations"
	"github.com/getpup/pgtenancy/registry"
	"github.com/getpup/pgtenancy/store"
	"github.com/getpup/pgtenancy/store/postgres"
	"github.com/getpup/pgtenancy/store/rediscache"
)

// loadConfig loads .env, applies the --database-url override through the
// documented environment variable, and reads the configuration.
func loadConfig() (*config.Config, error) {
	_ = godotenv.Load()

	if databaseURL != "" {
		os.Setenv("PGTENANCY_DATABASE_DSN", databaseURL)
	}

	return config.Load(configPath)
}

// app holds the wired components every database-touching command needs.
type app struct {
	cfg       *config.Config
	logger    *zap.Logger
	db        *sql.DB
	registry  *registry.Registry
	collector *metrics.Collector
}

func buildApp() (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	logger, err := cfg.Logging.Build()
	if err != nil {
		return nil, err
	}

	db, err := cfg.Database.Open()
	if err != nil {
		return nil, err
	}

	var collector *metrics.Collector
	if cfg.Metrics.Enabled {
		collector = metrics.NewCollector()
	}

	var tenantStore store.TenantStore = postgres.NewWithConfig(db, postgres.TableConfig{
		Schema:           cfg.Tenancy.PublicSchema,
		TenantsTable:     cfg.Tenancy.TenantTable,
		IdentifierColumn: cfg.Tenancy.IdentifierColumn,
	})

	if cfg.Cache.Addr != "" {
		tenantStore, err = rediscache.New(rediscache.Config{
			Client:  redis.NewClient(&redis.Options{Addr: cfg.Cache.Addr}),
			Store:   tenantStore,
			TTL:     cfg.Cache.TTL,
			Logger:  logger,
			Metrics: collector,
		})
		if err != nil {
			_ = db.Close()
			return nil, err
		}
	}

	reg, err := registry.New(registry.Config{
		Store:        tenantStore,
		SharedSchema: cfg.Tenancy.PublicSchema,
		Logger:       logger,
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	return &app{cfg: cfg, logger: logger, db: db, registry: reg, collector: collector}, nil
}

func (a *app) close() {
	_ = a.db.Close()
	_ = a.logger.Sync()
}

// runner loads the migration directory into a graph and builds a runner
// over it.
func (a *app) runner(dir string) (*migrate.Runner, error) {
	graph, err := migrations.LoadDir(dir)
	if err != nil {
		return nil, err
	}

	return migrate.New(migrate.Config{
		DB:          a.db,
		Graph:       graph,
		LedgerTable: a.cfg.Migrations.LedgerTable,
		Workers:     a.cfg.Migrations.Workers,
		Logger:      a.logger,
		Metrics:     a.collector,
	})
}

func (a *app) manager(applier lifecycle.Applier) (*lifecycle.Manager, error) {
	return lifecycle.New(lifecycle.Config{
		DB:       a.db,
		Registry: a.registry,
		Applier:  applier,
		Logger:   a.logger,
		Metrics:  a.collector,
	})
}

// metricsServer starts the scrape endpoint when metrics are enabled and
// an address is configured. The returned stop function is safe to call
// either way.
func (a *app) metricsServer() func() {
	if !a.cfg.Metrics.Enabled || a.cfg.Metrics.Addr == "" {
		return func() {}
	}

	server := metrics.NewServer(a.cfg.Metrics.Addr, a.cfg.Metrics.Path)
	server.Start()
	a.logger.Info("metrics server started",
		zap.String("addr", a.cfg.Metrics.Addr),
		zap.String("path", a.cfg.Metrics.Path))

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			a.logger.Warn("metrics server shutdown failed", zap.Error(err))
		}
	}
}
