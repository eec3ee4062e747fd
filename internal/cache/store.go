package cache

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
)

// Store is the durable tier shared across process instances.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	BatchGet(ctx context.Context, keys []string) (map[string][]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// CacheRecord is one durable cache row.
type CacheRecord struct {
	ID        uint      `gorm:"primaryKey;autoIncrement"`
	Key       string    `gorm:"uniqueIndex;not null"`
	Value     string    `gorm:"not null"`
	ExpiresAt time.Time `gorm:"index;not null"`
	CreatedAt time.Time `gorm:"not null;autoCreateTime:milli"`
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime:milli"`
}

// GormStore implements Store over a cache_records table.
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var record CacheRecord
	err := s.db.WithContext(ctx).
		Where("key = ? AND expires_at > ?", key, time.Now().UTC()).
		First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return []byte(record.Value), true, nil
}

func (s *GormStore) BatchGet(ctx context.Context, keys []string) (map[string][]byte, error) {
	var records []CacheRecord
	err := s.db.WithContext(ctx).
		Where("key IN ? AND expires_at > ?", keys, time.Now().UTC()).
		Find(&records).Error
	if err != nil {
		return nil, err
	}

	values := make(map[string][]byte, len(records))
	for _, record := range records {
		values[record.Key] = []byte(record.Value)
	}
	return values, nil
}

func (s *GormStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	now := time.Now().UTC()
	return s.db.WithContext(ctx).Exec(`
        INSERT INTO cache_records (key, value, expires_at, created_at, updated_at)
        VALUES (?, ?, ?, ?, ?)
        ON CONFLICT(key) DO UPDATE SET
            value = excluded.value,
            expires_at = excluded.expires_at,
            updated_at = excluded.updated_at
    `, key, string(value), now.Add(ttl), now, now).Error
}

// PurgeExpired deletes rows past their expiry and returns how many were
// removed.
func (s *GormStore) PurgeExpired(ctx context.Context) (int64, error) {
	result := s.db.WithContext(ctx).
		Where("expires_at <= ?", time.Now().UTC()).
		Delete(&CacheRecord{})
	return result.RowsAffected, result.Error
}
