package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func openStoreDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&CacheRecord{}))
	return db
}

func TestGormStoreRoundTripAndUpsert(t *testing.T) {
	store := NewGormStore(openStoreDB(t))
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "k", []byte(`{"value":1}`), time.Minute))
	raw, ok, err := store.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, `{"value":1}`, string(raw))

	// A second write for the same key replaces the row instead of erroring
	// on the unique index.
	require.NoError(t, store.Set(ctx, "k", []byte(`{"value":2}`), time.Minute))
	raw, ok, err = store.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, `{"value":2}`, string(raw))
}

func TestGormStoreExpiredRowsReadAsMisses(t *testing.T) {
	store := NewGormStore(openStoreDB(t))
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "gone", []byte(`{}`), -time.Second))
	require.NoError(t, store.Set(ctx, "live", []byte(`{}`), time.Minute))

	_, ok, err := store.Get(ctx, "gone")
	require.NoError(t, err)
	assert.False(t, ok)

	rows, err := store.BatchGet(ctx, []string{"gone", "live", "absent"})
	require.NoError(t, err)
	assert.NotContains(t, rows, "gone")
	assert.Contains(t, rows, "live")
	assert.Len(t, rows, 1)
}

func TestGormStorePurgeExpired(t *testing.T) {
	store := NewGormStore(openStoreDB(t))
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "a", []byte(`{}`), -time.Second))
	require.NoError(t, store.Set(ctx, "b", []byte(`{}`), -time.Second))
	require.NoError(t, store.Set(ctx, "c", []byte(`{}`), time.Minute))

	removed, err := store.PurgeExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), removed)

	_, ok, err := store.Get(ctx, "c")
	require.NoError(t, err)
	assert.True(t, ok)
}
