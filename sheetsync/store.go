package sheetsync

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/gezisoft/agency_backend/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Store is the persistence surface the sync engine needs. Handlers and the
// engine take it as a parameter so tests can substitute an in-memory fake.
type Store interface {
	GetRowFingerprint(ctx context.Context, tenantID, hotelID, rowKey string) (string, bool, error)
	SaveRowFingerprint(ctx context.Context, tenantID, hotelID, rowKey, fingerprint string) error
	DeleteRowFingerprints(ctx context.Context, tenantID, hotelID string) error

	UpsertInventory(ctx context.Context, rec *models.HotelInventory) error
	UpdateHotelProfile(ctx context.Context, tenantID, hotelID string, fields map[string]interface{}) error

	CreateRun(ctx context.Context, run *models.SheetSyncRun) error
	UpdateRun(ctx context.Context, run *models.SheetSyncRun) error

	UpdateConnection(ctx context.Context, connectionID uint, fields map[string]interface{}) error
	ListEnabledConnections(ctx context.Context) ([]models.SheetConnection, error)
	ListDueConnections(ctx context.Context, now time.Time) ([]models.SheetConnection, error)
}

type gormStore struct {
	// db is resolved per call: the service starts listening before the pool
	// connects, and the readiness middleware gates traffic until it has.
	db func() *gorm.DB
}

// NewStore returns the gorm-backed Store. db is usually config.GetDB.
func NewStore(db func() *gorm.DB) Store {
	return &gormStore{db: db}
}

func (s *gormStore) GetRowFingerprint(ctx context.Context, tenantID, hotelID, rowKey string) (string, bool, error) {
	var fp models.SheetRowFingerprint
	err := s.db().WithContext(ctx).
		Where("tenant_id = ? AND hotel_id = ? AND row_key = ?", tenantID, hotelID, rowKey).
		Take(&fp).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", false, nil
		}
		return "", false, err
	}
	return fp.Fingerprint, true, nil
}

func (s *gormStore) SaveRowFingerprint(ctx context.Context, tenantID, hotelID, rowKey, fingerprint string) error {
	rec := models.SheetRowFingerprint{
		TenantId:    tenantID,
		HotelId:     hotelID,
		RowKey:      rowKey,
		Fingerprint: fingerprint,
	}
	return s.db().WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "tenant_id"}, {Name: "hotel_id"}, {Name: "row_key"}},
			DoUpdates: clause.AssignmentColumns([]string{"fingerprint", "updated_at"}),
		}).
		Create(&rec).Error
}

func (s *gormStore) DeleteRowFingerprints(ctx context.Context, tenantID, hotelID string) error {
	return s.db().WithContext(ctx).
		Where("tenant_id = ? AND hotel_id = ?", tenantID, hotelID).
		Delete(&models.SheetRowFingerprint{}).Error
}

func (s *gormStore) UpsertInventory(ctx context.Context, rec *models.HotelInventory) error {
	assignments := map[string]interface{}{
		"source":     rec.Source,
		"updated_at": time.Now().UTC(),
	}
	if rec.Price != nil {
		assignments["price"] = rec.Price
	}
	if rec.Allotment != nil {
		assignments["allotment"] = rec.Allotment
	}
	if rec.StopSale != nil {
		assignments["stop_sale"] = rec.StopSale
	}
	return s.db().WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "tenant_id"}, {Name: "hotel_id"}, {Name: "date"}, {Name: "room_type"}},
			DoUpdates: clause.Assignments(assignments),
		}).
		Create(rec).Error
}

func (s *gormStore) UpdateHotelProfile(ctx context.Context, tenantID, hotelID string, fields map[string]interface{}) error {
	if len(fields) == 0 {
		return nil
	}
	res := s.db().WithContext(ctx).
		Model(&models.Hotel{}).
		Where("tenant_id = ? AND hotel_id = ?", tenantID, hotelID).
		Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 {
		return nil
	}

	hotel := models.Hotel{TenantId: tenantID, HotelId: hotelID}
	if err := s.db().WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "tenant_id"}, {Name: "hotel_id"}},
			DoNothing: true,
		}).
		Create(&hotel).Error; err != nil {
		return err
	}
	return s.db().WithContext(ctx).
		Model(&models.Hotel{}).
		Where("tenant_id = ? AND hotel_id = ?", tenantID, hotelID).
		Updates(fields).Error
}

func (s *gormStore) CreateRun(ctx context.Context, run *models.SheetSyncRun) error {
	return s.db().WithContext(ctx).Create(run).Error
}

func (s *gormStore) UpdateRun(ctx context.Context, run *models.SheetSyncRun) error {
	return s.db().WithContext(ctx).Save(run).Error
}

func (s *gormStore) UpdateConnection(ctx context.Context, connectionID uint, fields map[string]interface{}) error {
	return s.db().WithContext(ctx).
		Model(&models.SheetConnection{}).
		Where("id = ?", connectionID).
		Updates(fields).Error
}

func (s *gormStore) ListEnabledConnections(ctx context.Context) ([]models.SheetConnection, error) {
	var conns []models.SheetConnection
	err := s.db().WithContext(ctx).
		Where("sync_enabled = ? AND source_type = ? AND status = ?", true, models.SheetSourceTypeExternal, models.ConnectionStatusActive).
		Order("id asc").
		Find(&conns).Error
	return conns, err
}

// ListDueConnections filters enabled connections to those whose sync interval
// has elapsed (or that never synced).
func (s *gormStore) ListDueConnections(ctx context.Context, now time.Time) ([]models.SheetConnection, error) {
	conns, err := s.ListEnabledConnections(ctx)
	if err != nil {
		return nil, err
	}
	due := make([]models.SheetConnection, 0, len(conns))
	for _, conn := range conns {
		interval := time.Duration(conn.SyncIntervalMinutes) * time.Minute
		if interval <= 0 {
			interval = time.Hour
		}
		if conn.LastSyncAt == nil || now.Sub(*conn.LastSyncAt) >= interval {
			due = append(due, conn)
		}
	}
	return due, nil
}
