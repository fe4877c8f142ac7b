package writeback

import (
	"context"
	"fmt"
	"time"

	"bitbucket.org/gezisoft/agency_backend/models"
	"bitbucket.org/gezisoft/agency_backend/sheetsync"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Dispatcher drains the write-back queue: claim a batch, push each job to the
// external sheet, settle its terminal or retry state. Multiple instances can
// run concurrently; claims and idempotency markers keep them from double
// writing.
type Dispatcher struct {
	Store    Store
	Provider sheetsync.Provider
	Logger   *logrus.Logger

	DispatcherID string
	BatchSize    int
	MaxAttempts  int
	LockTimeout  time.Duration
}

func NewDispatcher(store Store, provider sheetsync.Provider, logger *logrus.Logger) *Dispatcher {
	return &Dispatcher{
		Store:        store,
		Provider:     provider,
		Logger:       logger,
		DispatcherID: uuid.NewString(),
		BatchSize:    50,
		MaxAttempts:  models.WritebackDefaultMaxAttempts,
		LockTimeout:  5 * time.Minute,
	}
}

// ProcessPending claims and dispatches one batch. Returns how many jobs were
// handled, terminal skips included.
func (d *Dispatcher) ProcessPending(ctx context.Context) (int, error) {
	jobs, err := d.Store.ClaimPending(ctx, d.DispatcherID, d.batchSize(), d.lockTimeout())
	if err != nil {
		return 0, err
	}
	for _, job := range jobs {
		d.dispatch(ctx, job)
	}
	return len(jobs), nil
}

func (d *Dispatcher) batchSize() int {
	if d.BatchSize > 0 {
		return d.BatchSize
	}
	return 50
}

func (d *Dispatcher) lockTimeout() time.Duration {
	if d.LockTimeout > 0 {
		return d.LockTimeout
	}
	return 5 * time.Minute
}

func (d *Dispatcher) maxAttempts(job models.WritebackJob) int {
	if job.MaxAttempts > 0 {
		return job.MaxAttempts
	}
	if d.MaxAttempts > 0 {
		return d.MaxAttempts
	}
	return models.WritebackDefaultMaxAttempts
}

// dispatch settles exactly one claimed job. Every path ends in a status
// update; a job is never left in "processing" except across a crash, which
// the stale-lock reclaim covers.
func (d *Dispatcher) dispatch(ctx context.Context, job models.WritebackJob) {
	// The marker is written only after a successful external call, so its
	// presence proves this (entity, event) already reached the sheet.
	duplicate, err := d.Store.HasMarker(ctx, job.TenantId, job.SourceId, job.EventType)
	if err != nil {
		d.settleFailure(ctx, job, fmt.Errorf("marker lookup: %w", err))
		return
	}
	if duplicate {
		d.settle(ctx, job, models.WritebackStatusSkippedDuplicate, "")
		return
	}

	conn, err := d.Store.GetActiveConnection(ctx, job.TenantId, job.HotelId)
	if err != nil {
		d.settleFailure(ctx, job, fmt.Errorf("connection lookup: %w", err))
		return
	}
	if conn == nil {
		d.settle(ctx, job, models.WritebackStatusSkippedNoConnection, "")
		return
	}
	if !d.Provider.IsConfigured() {
		d.settle(ctx, job, models.WritebackStatusSkippedNotConfigured, "")
		return
	}

	if !isReservationEvent(job.EventType) && !isBookingEvent(job.EventType) {
		// Jobs written by an older or newer release may carry event types this
		// build does not know. They are not failures; log and move on.
		d.logJobError(job, "unknown event type", fmt.Errorf("no handler for event type %q", job.EventType))
		d.settle(ctx, job, models.WritebackStatusSkippedUnknownEvent, "")
		return
	}

	row, adjustments, err := d.render(job)
	if err != nil {
		// A malformed payload never becomes valid; retrying is pointless.
		d.settle(ctx, job, models.WritebackStatusFailed, err.Error())
		return
	}

	if err := d.Provider.AppendRows(ctx, conn.SpreadsheetId, conn.TabName, [][]string{row}); err != nil {
		d.settleFailure(ctx, job, fmt.Errorf("append to sheet: %w", err))
		return
	}

	if _, err := d.Store.CreateMarker(ctx, &models.WritebackMarker{
		TenantId:  job.TenantId,
		SourceId:  job.SourceId,
		EventType: job.EventType,
	}); err != nil {
		// The external write happened; losing the marker risks a duplicate
		// append on redispatch, so surface it loudly but finish the job.
		d.logJobError(job, "create marker", err)
	}

	for _, adj := range adjustments {
		if err := d.Store.AdjustAllotment(ctx, job.TenantId, job.HotelId, adj.roomType, adj.date, adj.delta); err != nil {
			d.logJobError(job, fmt.Sprintf("adjust allotment %s", adj.date), err)
		}
	}

	if err := d.Store.CreateLogEntry(ctx, &models.WritebackLogEntry{
		TenantId:   job.TenantId,
		HotelId:    job.HotelId,
		JobId:      job.ID,
		EventType:  job.EventType,
		SourceId:   job.SourceId,
		FieldsJSON: job.PayloadJSON,
	}); err != nil {
		d.logJobError(job, "create log entry", err)
	}

	d.settle(ctx, job, models.WritebackStatusCompleted, "")
}

type allotmentAdjustment struct {
	date     string
	roomType string
	delta    int
}

// render produces the sheet row and the per-night allotment deltas of a job.
// Created/confirmed events consume rooms, cancellations give them back,
// amendments only append.
func (d *Dispatcher) render(job models.WritebackJob) ([]string, []allotmentAdjustment, error) {
	switch {
	case isReservationEvent(job.EventType):
		p, err := decodeReservation(job.PayloadJSON)
		if err != nil {
			return nil, nil, err
		}
		if err := p.Validate(); err != nil {
			return nil, nil, err
		}
		delta := -p.roomCount()
		if job.EventType == models.WritebackEventReservationCancelled {
			delta = p.roomCount()
		}
		adjustments, err := stayAdjustments(p.CheckIn, p.CheckOut, p.RoomType, delta)
		if err != nil {
			return nil, nil, err
		}
		return p.SheetRow(job.EventType), adjustments, nil

	case isBookingEvent(job.EventType):
		p, err := decodeBooking(job.PayloadJSON)
		if err != nil {
			return nil, nil, err
		}
		if err := p.Validate(); err != nil {
			return nil, nil, err
		}
		rooms := p.Rooms
		if rooms <= 0 {
			rooms = 1
		}
		var adjustments []allotmentAdjustment
		switch job.EventType {
		case models.WritebackEventBookingConfirmed:
			adjustments, err = stayAdjustments(p.CheckIn, p.CheckOut, p.RoomType, -rooms)
		case models.WritebackEventBookingCancelled:
			adjustments, err = stayAdjustments(p.CheckIn, p.CheckOut, p.RoomType, rooms)
		}
		if err != nil {
			return nil, nil, err
		}
		return p.SheetRow(job.EventType), adjustments, nil
	}
	return nil, nil, fmt.Errorf("unknown event type %q", job.EventType)
}

func stayAdjustments(checkIn, checkOut, roomType string, delta int) ([]allotmentAdjustment, error) {
	dates, err := StayDates(checkIn, checkOut)
	if err != nil {
		return nil, err
	}
	if roomType == "" {
		roomType = sheetsync.DefaultRoomType
	}
	out := make([]allotmentAdjustment, 0, len(dates))
	for _, date := range dates {
		out = append(out, allotmentAdjustment{date: date, roomType: roomType, delta: delta})
	}
	return out, nil
}

func (d *Dispatcher) settle(ctx context.Context, job models.WritebackJob, status, lastError string) {
	fields := map[string]interface{}{
		"status":    status,
		"locked_at": nil,
		"locked_by": nil,
	}
	if lastError != "" {
		fields["last_error"] = lastError
	}
	if err := d.Store.MarkJob(ctx, job.ID, fields); err != nil {
		d.logJobError(job, "settle job", err)
	}
}

// settleFailure routes a transient failure to retry, or to terminal failed
// once attempts are exhausted.
func (d *Dispatcher) settleFailure(ctx context.Context, job models.WritebackJob, cause error) {
	status := models.WritebackStatusRetry
	if job.Attempts >= d.maxAttempts(job) {
		status = models.WritebackStatusFailed
		if d.Logger != nil {
			d.Logger.WithFields(logrus.Fields{
				"module":     "writeback",
				"tenant_id":  job.TenantId,
				"hotel_id":   job.HotelId,
				"job_id":     job.ID,
				"event_type": job.EventType,
				"attempts":   job.Attempts,
			}).Error("writeback job failed permanently: " + cause.Error())
		}
	}
	d.settle(ctx, job, status, cause.Error())
}

func (d *Dispatcher) logJobError(job models.WritebackJob, context string, err error) {
	if d.Logger == nil {
		return
	}
	d.Logger.WithFields(logrus.Fields{
		"module":     "writeback",
		"context":    context,
		"tenant_id":  job.TenantId,
		"hotel_id":   job.HotelId,
		"job_id":     job.ID,
		"event_type": job.EventType,
	}).Error(err)
}
