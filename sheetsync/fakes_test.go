package sheetsync

import (
	"context"
	"errors"
	"sync"
	"time"

	"bitbucket.org/gezisoft/agency_backend/models"
)

// NOTE: These tests are intentionally DB-free. The engine runs entirely
// against the Store/LockStore/Provider interfaces, so the state machine is
// exercised with in-memory fakes. Full MySQL + Sheets integration tests need
// an environment that can run both.

type fakeStore struct {
	mu sync.Mutex

	fingerprints map[string]string
	inventory    map[string]*models.HotelInventory
	profiles     map[string]map[string]interface{}
	runs         []*models.SheetSyncRun
	connUpdates  []map[string]interface{}
	conns        []models.SheetConnection

	failUpsertDates map[string]bool // dates whose inventory upsert fails
	failGetFp       bool
	nextRunID       uint
	upsertCalls     int
	fpSaves         int
	fpSavedRowKeys  []string
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		fingerprints:    map[string]string{},
		inventory:       map[string]*models.HotelInventory{},
		profiles:        map[string]map[string]interface{}{},
		failUpsertDates: map[string]bool{},
	}
}

func fpKey(tenantID, hotelID, rowKey string) string {
	return tenantID + "|" + hotelID + "|" + rowKey
}

func (s *fakeStore) GetRowFingerprint(ctx context.Context, tenantID, hotelID, rowKey string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failGetFp {
		return "", false, errors.New("fingerprint lookup failed")
	}
	fp, ok := s.fingerprints[fpKey(tenantID, hotelID, rowKey)]
	return fp, ok, nil
}

func (s *fakeStore) SaveRowFingerprint(ctx context.Context, tenantID, hotelID, rowKey, fingerprint string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fingerprints[fpKey(tenantID, hotelID, rowKey)] = fingerprint
	s.fpSaves++
	s.fpSavedRowKeys = append(s.fpSavedRowKeys, rowKey)
	return nil
}

func (s *fakeStore) DeleteRowFingerprints(ctx context.Context, tenantID, hotelID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k := range s.fingerprints {
		delete(s.fingerprints, k)
	}
	return nil
}

func (s *fakeStore) UpsertInventory(ctx context.Context, rec *models.HotelInventory) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.upsertCalls++
	if s.failUpsertDates[rec.Date] {
		return errors.New("inventory write failed")
	}
	key := rec.TenantId + "|" + rec.HotelId + "|" + rec.Date + "|" + rec.RoomType
	s.inventory[key] = rec
	return nil
}

func (s *fakeStore) UpdateHotelProfile(ctx context.Context, tenantID, hotelID string, fields map[string]interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := tenantID + "|" + hotelID
	if s.profiles[key] == nil {
		s.profiles[key] = map[string]interface{}{}
	}
	for k, v := range fields {
		s.profiles[key][k] = v
	}
	return nil
}

func (s *fakeStore) CreateRun(ctx context.Context, run *models.SheetSyncRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextRunID++
	run.ID = s.nextRunID
	s.runs = append(s.runs, run)
	return nil
}

func (s *fakeStore) UpdateRun(ctx context.Context, run *models.SheetSyncRun) error {
	return nil
}

func (s *fakeStore) UpdateConnection(ctx context.Context, connectionID uint, fields map[string]interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connUpdates = append(s.connUpdates, fields)
	return nil
}

func (s *fakeStore) ListEnabledConnections(ctx context.Context) ([]models.SheetConnection, error) {
	return s.conns, nil
}

func (s *fakeStore) ListDueConnections(ctx context.Context, now time.Time) ([]models.SheetConnection, error) {
	return s.conns, nil
}

func (s *fakeStore) lastConnUpdate() map[string]interface{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.connUpdates) == 0 {
		return nil
	}
	return s.connUpdates[len(s.connUpdates)-1]
}

type fakeLocks struct {
	mu       sync.Mutex
	held     map[string]bool
	denyAll  bool
	acquires int
	releases int
}

func newFakeLocks() *fakeLocks {
	return &fakeLocks{held: map[string]bool{}}
}

func (l *fakeLocks) Acquire(ctx context.Context, tenantID, hotelID string, ttl time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.denyAll {
		return false, nil
	}
	key := lockKey(tenantID, hotelID)
	if l.held[key] {
		return false, nil
	}
	l.held[key] = true
	l.acquires++
	return true, nil
}

func (l *fakeLocks) Release(ctx context.Context, tenantID, hotelID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.held, lockKey(tenantID, hotelID))
	l.releases++
	return nil
}

type fakeProvider struct {
	configured  bool
	fingerprint string
	fpErr       error
	data        *SheetData
	readErr     error
	appended    [][]string
	appendErr   error
}

func (p *fakeProvider) IsConfigured() bool { return p.configured }

func (p *fakeProvider) GetMetadata(ctx context.Context, spreadsheetID string) (*SheetMetadata, error) {
	return &SheetMetadata{Title: "test"}, nil
}

func (p *fakeProvider) Read(ctx context.Context, spreadsheetID string, tab string) (*SheetData, error) {
	if p.readErr != nil {
		return nil, p.readErr
	}
	if p.data == nil {
		return &SheetData{}, nil
	}
	return p.data, nil
}

func (p *fakeProvider) GetFingerprint(ctx context.Context, spreadsheetID string, tab string) (string, error) {
	if p.fpErr != nil {
		return "", p.fpErr
	}
	return p.fingerprint, nil
}

func (p *fakeProvider) AppendRows(ctx context.Context, spreadsheetID string, tab string, rows [][]string) error {
	if p.appendErr != nil {
		return p.appendErr
	}
	p.appended = append(p.appended, rows...)
	return nil
}

func (p *fakeProvider) UpdateCells(ctx context.Context, spreadsheetID string, tab string, rangeA1 string, values [][]string) error {
	return nil
}
