package sheetsync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bitbucket.org/gezisoft/agency_backend/models"
	mysqlDriver "github.com/go-sql-driver/mysql"
	"gorm.io/gorm"
)

// DefaultLockTTL bounds how long a crashed or hung worker can block syncs for
// one hotel.
const DefaultLockTTL = 10 * time.Minute

// LockStore serializes sync runs per (tenant, hotel). Acquire must be atomic:
// two concurrent calls for the same key before any release see at most one
// true. A false return is contention, not an error.
type LockStore interface {
	Acquire(ctx context.Context, tenantID string, hotelID string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, tenantID string, hotelID string) error
}

func lockKey(tenantID, hotelID string) string {
	return fmt.Sprintf("%s:%s", tenantID, hotelID)
}

type gormLockStore struct {
	// Resolved per call; the pool connects after the server starts listening.
	db func() *gorm.DB
}

// NewLockStore returns the MySQL-backed lock table implementation. db is
// usually config.GetDB.
func NewLockStore(db func() *gorm.DB) LockStore {
	return &gormLockStore{db: db}
}

func isDuplicateKeyErr(err error) bool {
	var mysqlErr *mysqlDriver.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == 1062
	}
	return false
}

// lockExpired mirrors the reclaim condition in SQL: a lock whose expires_at
// has passed (or is exactly now) no longer excludes other workers.
func lockExpired(expiresAt, now time.Time) bool {
	return !expiresAt.After(now)
}

// Acquire wins the lock either by inserting a fresh row (unique lock_key) or
// by taking over an expired one with a single conditional UPDATE. Both paths
// are single atomic writes, so concurrent acquirers cannot both succeed.
func (s *gormLockStore) Acquire(ctx context.Context, tenantID string, hotelID string, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		ttl = DefaultLockTTL
	}
	now := time.Now().UTC()
	lock := models.SheetSyncLock{
		LockKey:   lockKey(tenantID, hotelID),
		LockedAt:  now,
		ExpiresAt: now.Add(ttl),
	}

	err := s.db().WithContext(ctx).Create(&lock).Error
	if err == nil {
		return true, nil
	}
	if !isDuplicateKeyErr(err) {
		return false, err
	}

	// A row exists. If it is still live there is nothing to reclaim; bail
	// without touching it.
	var held models.SheetSyncLock
	if err := s.db().WithContext(ctx).Where("lock_key = ?", lock.LockKey).Take(&held).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// The holder released between our insert and this read; treat it
			// as contention and let the caller retry on its next tick.
			return false, nil
		}
		return false, err
	}
	if !lockExpired(held.ExpiresAt, now) {
		return false, nil
	}

	// The row looked expired; the conditional UPDATE re-checks so that two
	// reclaimers racing here see at most one affected row.
	res := s.db().WithContext(ctx).
		Model(&models.SheetSyncLock{}).
		Where("lock_key = ? AND expires_at <= ?", lock.LockKey, now).
		Updates(map[string]interface{}{
			"locked_at":  now,
			"expires_at": now.Add(ttl),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// Release drops the lock row unconditionally. Safe when the lock already
// expired or never existed.
func (s *gormLockStore) Release(ctx context.Context, tenantID string, hotelID string) error {
	return s.db().WithContext(ctx).
		Where("lock_key = ?", lockKey(tenantID, hotelID)).
		Delete(&models.SheetSyncLock{}).Error
}
