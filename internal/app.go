// Package internal wires the application together: config, logging, the
// tenant router, the two-tier cache, the engine and the HTTP server.
package internal

import (
	"context"
	"fmt"
	"os"

	"log/slog"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"brandpulse/internal/cache"
	"brandpulse/internal/config"
	"brandpulse/internal/engine"
	"brandpulse/internal/http"
	"brandpulse/internal/jobs"
	"brandpulse/internal/logger"
	"brandpulse/internal/metrics"
	"brandpulse/internal/tenants"
	"brandpulse/internal/timewindow"
)

// Application holds the wired components and their lifecycle.
type Application struct {
	Config    *config.Config
	Logger    *slog.Logger
	Engine    *engine.Engine
	Server    *http.Server
	Scheduler *jobs.Scheduler

	router  *tenants.DBRouter
	cacheDB *gorm.DB
}

// NewApp builds the application from the environment configuration.
func NewApp() (*Application, error) {
	cfg := config.GetConfig()
	log := logger.New(cfg)

	router, err := tenants.LoadRouter(cfg.TenantsFile, log)
	if err != nil {
		return nil, fmt.Errorf("loading tenant registry: %w", err)
	}

	cacheDB, err := openCacheDB(cfg)
	if err != nil {
		return nil, fmt.Errorf("opening cache database: %w", err)
	}
	store := cache.NewGormStore(cacheDB)
	daily := cache.NewCache[engine.DailyMetrics](log, cfg.CacheTTL(), store)
	samples := cache.NewCache[metrics.Sample](log, cfg.CacheTTL(), store)

	resolver := timewindow.NewResolver(cfg.BusinessUTCOffsetMinutes, nil)
	eng := engine.New(router, resolver, metrics.NewRegistry(), daily, samples, log)
	eng.SetWorkerCount(cfg.MetricWorkerCount)

	scheduler := jobs.NewScheduler(cfg, jobs.NewSweeperJob(store, log, daily, samples), log)
	server := http.NewServer(cfg, eng, log)

	return &Application{
		Config:    cfg,
		Logger:    log,
		Engine:    eng,
		Server:    server,
		Scheduler: scheduler,
		router:    router,
		cacheDB:   cacheDB,
	}, nil
}

// Start launches background jobs and blocks serving HTTP.
func (a *Application) Start() error {
	if err := a.Scheduler.Start(); err != nil {
		return err
	}
	a.Logger.Info("Starting server", slog.String("port", a.Config.GetPort()))
	return a.Server.Listen()
}

// Shutdown stops background work, drains the server and closes every
// database handle.
func (a *Application) Shutdown(ctx context.Context) error {
	a.Scheduler.Stop()

	if err := a.Server.Shutdown(ctx); err != nil {
		return err
	}
	if err := a.router.Close(); err != nil {
		a.Logger.Warn("Closing tenant connections", slog.Any("error", err))
	}
	if sqlDB, err := a.cacheDB.DB(); err == nil {
		sqlDB.Close()
	}
	return nil
}

func openCacheDB(cfg *config.Config) (*gorm.DB, error) {
	if err := os.MkdirAll(cfg.StoragePath, 0o755); err != nil {
		return nil, err
	}

	gormLevel := gormlogger.Silent
	if cfg.IsDevelopment() {
		gormLevel = gormlogger.Warn
	}
	db, err := gorm.Open(sqlite.Open(cfg.CacheDBPath), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormLevel),
	})
	if err != nil {
		return nil, err
	}
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(cfg.DatabaseMaxOpenConns)
		sqlDB.SetMaxIdleConns(cfg.DatabaseMaxIdleConns)
	}

	if err := db.AutoMigrate(&cache.CacheRecord{}); err != nil {
		return nil, fmt.Errorf("migrating cache table: %w", err)
	}
	return db, nil
}
