package writeback

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"bitbucket.org/gezisoft/agency_backend/models"
)

// Enqueue records a domain event for write-back. A hotel with no active sheet
// connection has nowhere to write to, so the event is dropped and the queue
// stays empty; the returned job is nil in that case.
func Enqueue(ctx context.Context, store Store, tenantID, hotelID, eventType, sourceID string, payload interface{}) (*models.WritebackJob, error) {
	if !isReservationEvent(eventType) && !isBookingEvent(eventType) {
		return nil, fmt.Errorf("unknown writeback event type %q", eventType)
	}
	if strings.TrimSpace(sourceID) == "" {
		return nil, fmt.Errorf("source id is required")
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}

	conn, err := store.GetActiveConnection(ctx, tenantID, hotelID)
	if err != nil {
		return nil, err
	}
	if conn == nil {
		return nil, nil
	}

	job := &models.WritebackJob{
		TenantId:    tenantID,
		HotelId:     hotelID,
		EventType:   eventType,
		PayloadJSON: raw,
		SourceId:    strings.TrimSpace(sourceID),
		Status:      models.WritebackStatusQueued,
		MaxAttempts: models.WritebackDefaultMaxAttempts,
	}
	if err := store.EnqueueJob(ctx, job); err != nil {
		return nil, err
	}
	return job, nil
}

// OnReservationCreated enqueues the sheet append and the per-night allotment
// decrement for a new internal reservation.
func OnReservationCreated(ctx context.Context, store Store, tenantID string, p *ReservationPayload) (*models.WritebackJob, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return Enqueue(ctx, store, tenantID, p.HotelId, models.WritebackEventReservationCreated, p.ReservationId, p)
}

// OnReservationCancelled enqueues the append and gives the nights back.
func OnReservationCancelled(ctx context.Context, store Store, tenantID string, p *ReservationPayload) (*models.WritebackJob, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return Enqueue(ctx, store, tenantID, p.HotelId, models.WritebackEventReservationCancelled, p.ReservationId, p)
}

func OnBookingConfirmed(ctx context.Context, store Store, tenantID string, p *BookingPayload) (*models.WritebackJob, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return Enqueue(ctx, store, tenantID, p.HotelId, models.WritebackEventBookingConfirmed, p.BookingId, p)
}

func OnBookingCancelled(ctx context.Context, store Store, tenantID string, p *BookingPayload) (*models.WritebackJob, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return Enqueue(ctx, store, tenantID, p.HotelId, models.WritebackEventBookingCancelled, p.BookingId, p)
}

func OnBookingAmended(ctx context.Context, store Store, tenantID string, p *BookingPayload) (*models.WritebackJob, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return Enqueue(ctx, store, tenantID, p.HotelId, models.WritebackEventBookingAmended, p.BookingId, p)
}
