// Package testsupport provides shared helpers for package tests: isolated
// in-memory tenant databases migrated with the summary-table models, plus
// seeding shortcuts.
package testsupport

import (
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"brandpulse/internal/cache"
	"brandpulse/internal/metrics"
)

var dbSequence atomic.Int64

// Logger returns a logger that discards everything; tests assert on
// behavior, not log output.
func Logger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// OpenTestDB opens a fresh in-memory SQLite database migrated with the
// summary-table and cache models. Each call gets its own keyspace.
func OpenTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:brandpulse_test_%d?mode=memory&cache=shared", dbSequence.Add(1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(
		&metrics.DailySummary{},
		&metrics.HourlySales{},
		&cache.CacheRecord{},
	))

	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db
}

// SeedDaily inserts per-day rollup rows.
func SeedDaily(t *testing.T, db *gorm.DB, rows ...metrics.DailySummary) {
	t.Helper()
	for _, row := range rows {
		require.NoError(t, db.Create(&row).Error)
	}
}

// SeedHourly inserts per-hour rollup rows.
func SeedHourly(t *testing.T, db *gorm.DB, rows ...metrics.HourlySales) {
	t.Helper()
	for _, row := range rows {
		require.NoError(t, db.Create(&row).Error)
	}
}

// SeedUniformHours fills every hour of a date with identical counts, which
// keeps hour-aligned expectations easy to derive in tests.
func SeedUniformHours(t *testing.T, db *gorm.DB, date string, perHour metrics.HourlySales) {
	t.Helper()
	for hour := 0; hour < 24; hour++ {
		row := perHour
		row.Date = date
		row.Hour = hour
		require.NoError(t, db.Create(&row).Error)
	}
}
