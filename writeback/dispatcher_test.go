package writeback

import (
	"context"
	"errors"
	"testing"

	"bitbucket.org/gezisoft/agency_backend/models"
)

func activeTestConnection() *models.SheetConnection {
	return &models.SheetConnection{
		ID:            1,
		TenantId:      "t1",
		HotelId:       "h1",
		SourceType:    models.SheetSourceTypeExternal,
		SpreadsheetId: "sheet-1",
		TabName:       "Rezervasyonlar",
		Status:        models.ConnectionStatusActive,
	}
}

func testDispatcher(store *fakeQueueStore, provider *fakeSheetProvider) *Dispatcher {
	return &Dispatcher{
		Store:        store,
		Provider:     provider,
		DispatcherID: "test-dispatcher",
		BatchSize:    10,
		MaxAttempts:  models.WritebackDefaultMaxAttempts,
	}
}

func enqueueReservation(t *testing.T, store *fakeQueueStore, p *ReservationPayload) *models.WritebackJob {
	t.Helper()
	job, err := OnReservationCreated(context.Background(), store, "t1", p)
	if err != nil {
		t.Fatal(err)
	}
	return job
}

func sampleReservation() *ReservationPayload {
	return &ReservationPayload{
		ReservationId: "res-42",
		HotelId:       "h1",
		RoomType:      "deluxe",
		GuestName:     "Ali Veli",
		CheckIn:       "2026-09-01",
		CheckOut:      "2026-09-04",
		Rooms:         2,
	}
}

func TestProcessPending_SuccessfulReservation(t *testing.T) {
	store := newFakeQueueStore()
	store.activeConn = activeTestConnection()
	provider := &fakeSheetProvider{configured: true}
	d := testDispatcher(store, provider)

	job := enqueueReservation(t, store, sampleReservation())

	handled, err := d.ProcessPending(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if handled != 1 {
		t.Fatalf("handled = %d", handled)
	}
	if got := store.jobStatus(job.ID); got != models.WritebackStatusCompleted {
		t.Fatalf("job status = %q", got)
	}

	if len(provider.appended) != 1 {
		t.Fatalf("appended %d rows", len(provider.appended))
	}
	row := provider.appended[0]
	if row[0] != models.WritebackEventReservationCreated || row[1] != "res-42" {
		t.Errorf("row = %v", row)
	}

	if !store.markers[markerKey("t1", "res-42", models.WritebackEventReservationCreated)] {
		t.Errorf("marker must be written after the external append")
	}
	if len(store.logEntries) != 1 {
		t.Errorf("log entries = %d", len(store.logEntries))
	}

	// Three occupied nights, two rooms each, consumed from allotment.
	if len(store.adjustments) != 3 {
		t.Fatalf("adjustments = %d, want 3", len(store.adjustments))
	}
	wantDates := []string{"2026-09-01", "2026-09-02", "2026-09-03"}
	for i, adj := range store.adjustments {
		if adj.date != wantDates[i] || adj.delta != -2 || adj.roomType != "deluxe" {
			t.Errorf("adjustment[%d] = %+v", i, adj)
		}
	}
}

func TestProcessPending_DuplicateMarkerSkips(t *testing.T) {
	store := newFakeQueueStore()
	store.activeConn = activeTestConnection()
	store.markers[markerKey("t1", "res-42", models.WritebackEventReservationCreated)] = true
	provider := &fakeSheetProvider{configured: true}
	d := testDispatcher(store, provider)

	job := enqueueReservation(t, store, sampleReservation())

	if _, err := d.ProcessPending(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := store.jobStatus(job.ID); got != models.WritebackStatusSkippedDuplicate {
		t.Fatalf("job status = %q", got)
	}
	if len(provider.appended) != 0 {
		t.Errorf("duplicate must not reach the sheet")
	}
	if len(store.adjustments) != 0 {
		t.Errorf("duplicate must not adjust allotment")
	}
}

func TestProcessPending_ConnectionRemovedAfterEnqueue(t *testing.T) {
	store := newFakeQueueStore()
	store.activeConn = activeTestConnection()
	provider := &fakeSheetProvider{configured: true}
	d := testDispatcher(store, provider)

	job := enqueueReservation(t, store, sampleReservation())
	store.activeConn = nil

	if _, err := d.ProcessPending(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := store.jobStatus(job.ID); got != models.WritebackStatusSkippedNoConnection {
		t.Fatalf("job status = %q", got)
	}
}

func TestProcessPending_ProviderNotConfigured(t *testing.T) {
	store := newFakeQueueStore()
	store.activeConn = activeTestConnection()
	provider := &fakeSheetProvider{configured: false}
	d := testDispatcher(store, provider)

	job := enqueueReservation(t, store, sampleReservation())

	if _, err := d.ProcessPending(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := store.jobStatus(job.ID); got != models.WritebackStatusSkippedNotConfigured {
		t.Fatalf("job status = %q", got)
	}
}

func TestProcessPending_MalformedPayloadFailsTerminally(t *testing.T) {
	store := newFakeQueueStore()
	store.activeConn = activeTestConnection()
	provider := &fakeSheetProvider{configured: true}
	d := testDispatcher(store, provider)

	job := &models.WritebackJob{
		TenantId:    "t1",
		HotelId:     "h1",
		EventType:   models.WritebackEventReservationCreated,
		SourceId:    "res-bad",
		PayloadJSON: []byte(`{"reservation_id":"res-bad","hotel_id":"h1","check_in":"2026-09-04","check_out":"2026-09-01"}`),
		Status:      models.WritebackStatusQueued,
		MaxAttempts: models.WritebackDefaultMaxAttempts,
	}
	if err := store.EnqueueJob(context.Background(), job); err != nil {
		t.Fatal(err)
	}

	if _, err := d.ProcessPending(context.Background()); err != nil {
		t.Fatal(err)
	}
	// First attempt, but an inverted stay range never becomes valid.
	if got := store.jobStatus(job.ID); got != models.WritebackStatusFailed {
		t.Fatalf("job status = %q", got)
	}
	if len(provider.appended) != 0 {
		t.Errorf("invalid payload must not reach the sheet")
	}
}

func TestProcessPending_UnknownEventTypeIsLoggedNoOp(t *testing.T) {
	store := newFakeQueueStore()
	store.activeConn = activeTestConnection()
	provider := &fakeSheetProvider{configured: true}
	d := testDispatcher(store, provider)

	// A job written by another release may carry an event type this build has
	// no handler for. It is drained without becoming a failure.
	job := &models.WritebackJob{
		TenantId:    "t1",
		HotelId:     "h1",
		EventType:   "room_repainted",
		SourceId:    "room-9",
		PayloadJSON: []byte(`{}`),
		Status:      models.WritebackStatusQueued,
		MaxAttempts: models.WritebackDefaultMaxAttempts,
	}
	if err := store.EnqueueJob(context.Background(), job); err != nil {
		t.Fatal(err)
	}

	if _, err := d.ProcessPending(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := store.jobStatus(job.ID); got != models.WritebackStatusSkippedUnknownEvent {
		t.Fatalf("job status = %q, want %q", got, models.WritebackStatusSkippedUnknownEvent)
	}
	if len(provider.appended) != 0 {
		t.Errorf("unknown event must not reach the sheet")
	}
	if len(store.adjustments) != 0 {
		t.Errorf("unknown event must not adjust allotment")
	}
}

func TestProcessPending_AppendErrorRetriesThenFails(t *testing.T) {
	store := newFakeQueueStore()
	store.activeConn = activeTestConnection()
	provider := &fakeSheetProvider{configured: true, appendErr: errors.New("sheets api unavailable")}
	d := testDispatcher(store, provider)

	job := enqueueReservation(t, store, sampleReservation())

	for attempt := 1; attempt < models.WritebackDefaultMaxAttempts; attempt++ {
		if _, err := d.ProcessPending(context.Background()); err != nil {
			t.Fatal(err)
		}
		if got := store.jobStatus(job.ID); got != models.WritebackStatusRetry {
			t.Fatalf("attempt %d: job status = %q, want retry", attempt, got)
		}
	}

	if _, err := d.ProcessPending(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := store.jobStatus(job.ID); got != models.WritebackStatusFailed {
		t.Fatalf("exhausted job status = %q, want failed", got)
	}

	fields := store.jobUpdates[job.ID]
	if fields["last_error"] == nil || fields["last_error"] == "" {
		t.Errorf("failed job must record the cause")
	}
	if fields["locked_at"] != nil || fields["locked_by"] != nil {
		t.Errorf("settled job must release its claim")
	}
}

func TestProcessPending_CancellationGivesNightsBack(t *testing.T) {
	store := newFakeQueueStore()
	store.activeConn = activeTestConnection()
	provider := &fakeSheetProvider{configured: true}
	d := testDispatcher(store, provider)

	p := sampleReservation()
	if _, err := OnReservationCancelled(context.Background(), store, "t1", p); err != nil {
		t.Fatal(err)
	}

	if _, err := d.ProcessPending(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(store.adjustments) != 3 {
		t.Fatalf("adjustments = %d", len(store.adjustments))
	}
	for _, adj := range store.adjustments {
		if adj.delta != 2 {
			t.Errorf("cancellation must return rooms, got delta %d on %s", adj.delta, adj.date)
		}
	}
}

func TestProcessPending_BookingAmendedAppendsWithoutAdjusting(t *testing.T) {
	store := newFakeQueueStore()
	store.activeConn = activeTestConnection()
	provider := &fakeSheetProvider{configured: true}
	d := testDispatcher(store, provider)

	p := &BookingPayload{
		BookingId: "bk-7",
		HotelId:   "h1",
		CheckIn:   "2026-09-01",
		CheckOut:  "2026-09-03",
		Rooms:     1,
		Note:      "late arrival",
	}
	job, err := OnBookingAmended(context.Background(), store, "t1", p)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := d.ProcessPending(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := store.jobStatus(job.ID); got != models.WritebackStatusCompleted {
		t.Fatalf("job status = %q", got)
	}
	if len(provider.appended) != 1 {
		t.Errorf("amended booking must still append, got %d rows", len(provider.appended))
	}
	if len(store.adjustments) != 0 {
		t.Errorf("amendment must not touch allotment, got %+v", store.adjustments)
	}
}

func TestProcessPending_RoomTypeFallsBackToDefault(t *testing.T) {
	store := newFakeQueueStore()
	store.activeConn = activeTestConnection()
	provider := &fakeSheetProvider{configured: true}
	d := testDispatcher(store, provider)

	p := sampleReservation()
	p.RoomType = ""
	enqueueReservation(t, store, p)

	if _, err := d.ProcessPending(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(store.adjustments) == 0 || store.adjustments[0].roomType != "standard" {
		t.Errorf("adjustments = %+v", store.adjustments)
	}
}

func TestProcessPending_MarkerFailureStillCompletes(t *testing.T) {
	store := newFakeQueueStore()
	store.activeConn = activeTestConnection()
	store.markerErr = errors.New("marker table unavailable")
	provider := &fakeSheetProvider{configured: true}
	d := testDispatcher(store, provider)

	job := enqueueReservation(t, store, sampleReservation())

	if _, err := d.ProcessPending(context.Background()); err != nil {
		t.Fatal(err)
	}
	// The external append happened; re-running the job would double write, so
	// the job still settles as completed.
	if got := store.jobStatus(job.ID); got != models.WritebackStatusCompleted {
		t.Fatalf("job status = %q", got)
	}
}
