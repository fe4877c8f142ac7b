package writeback

import (
	"context"
	"sync"
	"time"

	"bitbucket.org/gezisoft/agency_backend/models"
	"bitbucket.org/gezisoft/agency_backend/sheetsync"
)

// NOTE: These tests are intentionally DB-free. The dispatcher runs entirely
// against the Store and sheetsync.Provider interfaces, so claim, skip, retry
// and allotment semantics are exercised with in-memory fakes.

type adjustmentCall struct {
	hotelID  string
	roomType string
	date     string
	delta    int
}

type fakeQueueStore struct {
	mu sync.Mutex

	jobs       []*models.WritebackJob
	markers    map[string]bool
	logEntries []*models.WritebackLogEntry
	jobUpdates map[uint]map[string]interface{}

	activeConn  *models.SheetConnection
	adjustments []adjustmentCall

	markerErr error
	adjustErr error
	nextJobID uint
}

func newFakeQueueStore() *fakeQueueStore {
	return &fakeQueueStore{
		markers:    map[string]bool{},
		jobUpdates: map[uint]map[string]interface{}{},
	}
}

func markerKey(tenantID, sourceID, eventType string) string {
	return tenantID + "|" + sourceID + "|" + eventType
}

func (s *fakeQueueStore) EnqueueJob(ctx context.Context, job *models.WritebackJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextJobID++
	job.ID = s.nextJobID
	s.jobs = append(s.jobs, job)
	return nil
}

func (s *fakeQueueStore) ClaimPending(ctx context.Context, dispatcherID string, limit int, lockTimeout time.Duration) ([]models.WritebackJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	var claimed []models.WritebackJob
	for _, job := range s.jobs {
		if len(claimed) >= limit {
			break
		}
		if job.Status != models.WritebackStatusQueued && job.Status != models.WritebackStatusRetry {
			continue
		}
		job.Status = models.WritebackStatusProcessing
		job.LockedAt = &now
		job.LockedBy = &dispatcherID
		job.Attempts++
		claimed = append(claimed, *job)
	}
	return claimed, nil
}

func (s *fakeQueueStore) MarkJob(ctx context.Context, jobID uint, fields map[string]interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobUpdates[jobID] = fields
	for _, job := range s.jobs {
		if job.ID == jobID {
			if status, ok := fields["status"].(string); ok {
				job.Status = status
			}
		}
	}
	return nil
}

func (s *fakeQueueStore) HasMarker(ctx context.Context, tenantID, sourceID, eventType string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.markers[markerKey(tenantID, sourceID, eventType)], nil
}

func (s *fakeQueueStore) CreateMarker(ctx context.Context, marker *models.WritebackMarker) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.markerErr != nil {
		return false, s.markerErr
	}
	key := markerKey(marker.TenantId, marker.SourceId, marker.EventType)
	if s.markers[key] {
		return false, nil
	}
	s.markers[key] = true
	return true, nil
}

func (s *fakeQueueStore) CreateLogEntry(ctx context.Context, entry *models.WritebackLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logEntries = append(s.logEntries, entry)
	return nil
}

func (s *fakeQueueStore) GetActiveConnection(ctx context.Context, tenantID, hotelID string) (*models.SheetConnection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeConn, nil
}

func (s *fakeQueueStore) AdjustAllotment(ctx context.Context, tenantID, hotelID, roomType, date string, delta int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.adjustErr != nil {
		return s.adjustErr
	}
	s.adjustments = append(s.adjustments, adjustmentCall{hotelID: hotelID, roomType: roomType, date: date, delta: delta})
	return nil
}

func (s *fakeQueueStore) jobStatus(jobID uint) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, job := range s.jobs {
		if job.ID == jobID {
			return job.Status
		}
	}
	if fields, ok := s.jobUpdates[jobID]; ok {
		if status, ok := fields["status"].(string); ok {
			return status
		}
	}
	return ""
}

type fakeSheetProvider struct {
	configured bool
	appended   [][]string
	appendErr  error
}

func (p *fakeSheetProvider) IsConfigured() bool { return p.configured }

func (p *fakeSheetProvider) GetMetadata(ctx context.Context, spreadsheetID string) (*sheetsync.SheetMetadata, error) {
	return &sheetsync.SheetMetadata{Title: "test"}, nil
}

func (p *fakeSheetProvider) Read(ctx context.Context, spreadsheetID string, tab string) (*sheetsync.SheetData, error) {
	return &sheetsync.SheetData{}, nil
}

func (p *fakeSheetProvider) GetFingerprint(ctx context.Context, spreadsheetID string, tab string) (string, error) {
	return "", sheetsync.ErrFingerprintUnsupported
}

func (p *fakeSheetProvider) AppendRows(ctx context.Context, spreadsheetID string, tab string, rows [][]string) error {
	if p.appendErr != nil {
		return p.appendErr
	}
	p.appended = append(p.appended, rows...)
	return nil
}

func (p *fakeSheetProvider) UpdateCells(ctx context.Context, spreadsheetID string, tab string, rangeA1 string, values [][]string) error {
	return nil
}
