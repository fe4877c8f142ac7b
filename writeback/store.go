package writeback

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/gezisoft/agency_backend/models"
	mysqlDriver "github.com/go-sql-driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Store is the persistence surface of the write-back queue. The dispatcher
// runs entirely against it so the claim/skip/retry logic is testable without
// MySQL.
type Store interface {
	EnqueueJob(ctx context.Context, job *models.WritebackJob) error
	ClaimPending(ctx context.Context, dispatcherID string, limit int, lockTimeout time.Duration) ([]models.WritebackJob, error)
	MarkJob(ctx context.Context, jobID uint, fields map[string]interface{}) error

	HasMarker(ctx context.Context, tenantID, sourceID, eventType string) (bool, error)
	// CreateMarker reports false when the marker already existed.
	CreateMarker(ctx context.Context, marker *models.WritebackMarker) (bool, error)
	CreateLogEntry(ctx context.Context, entry *models.WritebackLogEntry) error

	// GetActiveConnection returns nil without error when the hotel has no
	// active sheet connection.
	GetActiveConnection(ctx context.Context, tenantID, hotelID string) (*models.SheetConnection, error)

	AdjustAllotment(ctx context.Context, tenantID, hotelID, roomType, date string, delta int) error
}

type gormStore struct {
	// Resolved per call; the pool connects after the server starts listening.
	db func() *gorm.DB
}

// NewStore returns the gorm-backed Store. db is usually config.GetDB.
func NewStore(db func() *gorm.DB) Store {
	return &gormStore{db: db}
}

func (s *gormStore) EnqueueJob(ctx context.Context, job *models.WritebackJob) error {
	return s.db().WithContext(ctx).Create(job).Error
}

// ClaimPending atomically moves a batch of eligible jobs to "processing"
// under this dispatcher's id. Eligible jobs are queued or retry, plus
// processing jobs whose lock went stale (a dispatcher crashed mid-batch).
func (s *gormStore) ClaimPending(ctx context.Context, dispatcherID string, limit int, lockTimeout time.Duration) ([]models.WritebackJob, error) {
	now := time.Now().UTC()
	staleBefore := now.Add(-lockTimeout)

	var claimed []models.WritebackJob
	err := s.db().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		q := tx.
			Where(`
				status IN ?
				OR (status = ? AND locked_at IS NOT NULL AND locked_at <= ?)
			`, []string{models.WritebackStatusQueued, models.WritebackStatusRetry},
				models.WritebackStatusProcessing, staleBefore).
			Order("id ASC").
			Limit(limit).
			Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"})
		if err := q.Find(&claimed).Error; err != nil {
			return err
		}
		for i := range claimed {
			claimed[i].Status = models.WritebackStatusProcessing
			claimed[i].LockedAt = &now
			claimed[i].LockedBy = &dispatcherID
			claimed[i].Attempts = claimed[i].Attempts + 1
			if err := tx.Model(&models.WritebackJob{}).Where("id = ?", claimed[i].ID).Updates(map[string]interface{}{
				"status":    models.WritebackStatusProcessing,
				"locked_at": &now,
				"locked_by": &dispatcherID,
				"attempts":  gorm.Expr("attempts + 1"),
			}).Error; err != nil {
				return err
			}
		}
		return nil
	})
	return claimed, err
}

func (s *gormStore) MarkJob(ctx context.Context, jobID uint, fields map[string]interface{}) error {
	return s.db().WithContext(ctx).
		Model(&models.WritebackJob{}).
		Where("id = ?", jobID).
		Updates(fields).Error
}

func (s *gormStore) HasMarker(ctx context.Context, tenantID, sourceID, eventType string) (bool, error) {
	var marker models.WritebackMarker
	err := s.db().WithContext(ctx).
		Where("tenant_id = ? AND source_id = ? AND event_type = ?", tenantID, sourceID, eventType).
		Take(&marker).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (s *gormStore) CreateMarker(ctx context.Context, marker *models.WritebackMarker) (bool, error) {
	err := s.db().WithContext(ctx).Create(marker).Error
	if err == nil {
		return true, nil
	}
	if isDuplicateKeyErr(err) {
		return false, nil
	}
	return false, err
}

func (s *gormStore) CreateLogEntry(ctx context.Context, entry *models.WritebackLogEntry) error {
	return s.db().WithContext(ctx).Create(entry).Error
}

func (s *gormStore) GetActiveConnection(ctx context.Context, tenantID, hotelID string) (*models.SheetConnection, error) {
	var conn models.SheetConnection
	err := s.db().WithContext(ctx).
		Where("tenant_id = ? AND hotel_id = ? AND source_type = ? AND status = ?",
			tenantID, hotelID, models.SheetSourceTypeExternal, models.ConnectionStatusActive).
		Take(&conn).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &conn, nil
}

// clampedAllotment mirrors the GREATEST(... , 0) expression in SQL: allotment
// never goes negative, and the insert-on-miss path seeds the same value the
// update would have produced from an empty row.
func clampedAllotment(current, delta int) int {
	next := current + delta
	if next < 0 {
		return 0
	}
	return next
}

// AdjustAllotment applies a relative allotment change for one night, clamped
// at zero. Missing inventory rows are created on decrement-before-sync so the
// adjustment is not lost; the next sheet sync overwrites absolute values
// anyway.
func (s *gormStore) AdjustAllotment(ctx context.Context, tenantID, hotelID, roomType, date string, delta int) error {
	res := s.db().WithContext(ctx).
		Model(&models.HotelInventory{}).
		Where("tenant_id = ? AND hotel_id = ? AND date = ? AND room_type = ?", tenantID, hotelID, date, roomType).
		Update("allotment", gorm.Expr("GREATEST(COALESCE(allotment, 0) + ?, 0)", delta))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 {
		return nil
	}

	initial := clampedAllotment(0, delta)
	rec := models.HotelInventory{
		TenantId:  tenantID,
		HotelId:   hotelID,
		Date:      date,
		RoomType:  roomType,
		Allotment: &initial,
		Source:    "writeback",
	}
	if err := s.db().WithContext(ctx).Create(&rec).Error; err != nil {
		if isDuplicateKeyErr(err) {
			// Lost a race with a concurrent insert; retry as an update.
			return s.db().WithContext(ctx).
				Model(&models.HotelInventory{}).
				Where("tenant_id = ? AND hotel_id = ? AND date = ? AND room_type = ?", tenantID, hotelID, date, roomType).
				Update("allotment", gorm.Expr("GREATEST(COALESCE(allotment, 0) + ?, 0)", delta)).Error
		}
		return err
	}
	return nil
}

func isDuplicateKeyErr(err error) bool {
	var mysqlErr *mysqlDriver.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == 1062
	}
	return false
}
