package models

import "time"

const (
	SheetSourceTypeExternal = "external_sheet"
)

const (
	ConnectionStatusActive   = "active"
	ConnectionStatusInactive = "inactive"
	ConnectionStatusError    = "error"
)

const (
	SyncRunStatusRunning       = "running"
	SyncRunStatusSuccess       = "success"
	SyncRunStatusNoChange      = "no_change"
	SyncRunStatusPartial       = "partial"
	SyncRunStatusFailed        = "failed"
	SyncRunStatusNotConfigured = "not_configured"
	SyncRunStatusSkipped       = "skipped"
)

const (
	SyncTriggerManual     = "manual"
	SyncTriggerManualBulk = "manual_bulk"
	SyncTriggerScheduled  = "scheduled"
)

// SheetConnection binds one tenant's hotel to one external sheet tab.
// At most one connection may exist per (tenant, hotel, source type).
type SheetConnection struct {
	ID                  uint       `gorm:"primary_key" json:"id"`
	TenantId            string     `gorm:"uniqueIndex:idx_sheet_connection,priority:1;size:64;not null" json:"tenant_id"`
	HotelId             string     `gorm:"uniqueIndex:idx_sheet_connection,priority:2;size:64;not null" json:"hotel_id"`
	SourceType          string     `gorm:"uniqueIndex:idx_sheet_connection,priority:3;size:32;not null" json:"source_type"`
	SpreadsheetId       string     `gorm:"size:128" json:"spreadsheet_id"`
	TabName             string     `gorm:"size:128" json:"tab_name"`
	MappingJSON         []byte     `gorm:"type:json" json:"mapping"`
	SyncEnabled         bool       `json:"sync_enabled"`
	SyncIntervalMinutes int        `json:"sync_interval_minutes"`
	LastSyncAt          *time.Time `json:"last_sync_at"`
	LastSyncStatus      string     `gorm:"size:20" json:"last_sync_status"`
	LastError           string     `gorm:"type:text" json:"last_error"`
	LastFingerprint     string     `gorm:"size:64" json:"last_fingerprint"`
	Status              string     `gorm:"size:20;not null" json:"status"`
	CreatedAt           time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt           time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// SheetRowFingerprint memoises the last-seen content hash of one logical row.
// RowKey is positional: "<hotel_id>|row|<row_number>".
type SheetRowFingerprint struct {
	ID          uint      `gorm:"primary_key" json:"id"`
	TenantId    string    `gorm:"uniqueIndex:idx_sheet_row_fp,priority:1;size:64;not null" json:"tenant_id"`
	HotelId     string    `gorm:"uniqueIndex:idx_sheet_row_fp,priority:2;size:64;not null" json:"hotel_id"`
	RowKey      string    `gorm:"uniqueIndex:idx_sheet_row_fp,priority:3;size:128;not null" json:"row_key"`
	Fingerprint string    `gorm:"size:64;not null" json:"fingerprint"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// SheetSyncLock is the per-tenant-per-hotel mutual-exclusion record.
// A live lock is one whose expires_at is in the future; expired locks are
// reclaimable, so a crashed holder self-heals after the TTL.
type SheetSyncLock struct {
	ID        uint      `gorm:"primary_key" json:"id"`
	LockKey   string    `gorm:"uniqueIndex;size:150;not null" json:"lock_key"`
	LockedAt  time.Time `json:"locked_at"`
	ExpiresAt time.Time `gorm:"index" json:"expires_at"`
}

// SheetSyncRun is the audit record of one orchestration attempt. Inserted in
// "running" state, updated in place, never deleted.
type SheetSyncRun struct {
	ID           uint       `gorm:"primary_key" json:"id"`
	TenantId     string     `gorm:"index;size:64;not null" json:"tenant_id"`
	HotelId      string     `gorm:"index;size:64;not null" json:"hotel_id"`
	ConnectionId uint       `gorm:"index;not null" json:"connection_id"`
	Trigger      string     `gorm:"size:20" json:"trigger"`
	Status       string     `gorm:"size:20;not null" json:"status"`
	RowsRead     int        `json:"rows_read"`
	RowsChanged  int        `json:"rows_changed"`
	Upserted     int        `json:"upserted"`
	Skipped      int        `json:"skipped"`
	ErrorCount   int        `json:"error_count"`
	ErrorsJSON   []byte     `gorm:"type:json" json:"errors"`
	ParentRunId  *uint      `gorm:"index" json:"parent_run_id"`
	StartedAt    *time.Time `json:"started_at"`
	FinishedAt   *time.Time `json:"finished_at"`
	DurationMs   int64      `json:"duration_ms"`
	CreatedAt    time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}
