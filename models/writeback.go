package models

import "time"

const (
	WritebackStatusQueued               = "queued"
	WritebackStatusProcessing           = "processing"
	WritebackStatusRetry                = "retry"
	WritebackStatusCompleted            = "completed"
	WritebackStatusFailed               = "failed"
	WritebackStatusSkippedDuplicate     = "skipped_duplicate"
	WritebackStatusSkippedNoConnection  = "skipped_no_connection"
	WritebackStatusSkippedNotConfigured = "skipped_not_configured"
	WritebackStatusSkippedUnknownEvent  = "skipped_unknown_event"
)

const (
	WritebackEventReservationCreated   = "reservation_created"
	WritebackEventReservationCancelled = "reservation_cancelled"
	WritebackEventBookingConfirmed     = "booking_confirmed"
	WritebackEventBookingCancelled     = "booking_cancelled"
	WritebackEventBookingAmended       = "booking_amended"
)

const WritebackDefaultMaxAttempts = 3

// WritebackJob is a queued request to push one domain event out to the
// external sheet. Once failed (attempts exhausted) it is never retried
// automatically; operators must intervene.
type WritebackJob struct {
	ID          uint       `gorm:"primary_key" json:"id"`
	TenantId    string     `gorm:"index;size:64;not null" json:"tenant_id"`
	HotelId     string     `gorm:"index;size:64;not null" json:"hotel_id"`
	EventType   string     `gorm:"size:32;not null" json:"event_type"`
	PayloadJSON []byte     `gorm:"type:json" json:"payload"`
	SourceId    string     `gorm:"index;size:128;not null" json:"source_id"`
	Status      string     `gorm:"index;size:32;not null" json:"status"`
	Attempts    int        `json:"attempts"`
	MaxAttempts int        `json:"max_attempts"`
	LastError   string     `gorm:"type:text" json:"last_error"`
	LockedAt    *time.Time `json:"locked_at"`
	LockedBy    *string    `gorm:"size:64" json:"locked_by"`
	CreatedAt   time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// WritebackMarker proves that (tenant, source entity, event type) was already
// pushed to the external sheet. Written only after a successful external call;
// never deleted.
type WritebackMarker struct {
	ID        uint      `gorm:"primary_key" json:"id"`
	TenantId  string    `gorm:"uniqueIndex:idx_writeback_marker,priority:1;size:64;not null" json:"tenant_id"`
	SourceId  string    `gorm:"uniqueIndex:idx_writeback_marker,priority:2;size:128;not null" json:"source_id"`
	EventType string    `gorm:"uniqueIndex:idx_writeback_marker,priority:3;size:32;not null" json:"event_type"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// WritebackLogEntry records which payload fields were written for a completed
// job, for operator-facing change history.
type WritebackLogEntry struct {
	ID         uint      `gorm:"primary_key" json:"id"`
	TenantId   string    `gorm:"index;size:64;not null" json:"tenant_id"`
	HotelId    string    `gorm:"index;size:64;not null" json:"hotel_id"`
	JobId      uint      `gorm:"index;not null" json:"job_id"`
	EventType  string    `gorm:"size:32" json:"event_type"`
	SourceId   string    `gorm:"size:128" json:"source_id"`
	FieldsJSON []byte    `gorm:"type:json" json:"fields"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
}
