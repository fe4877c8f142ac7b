package writeback

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"bitbucket.org/gezisoft/agency_backend/config"
	"bitbucket.org/gezisoft/agency_backend/models"
	"bitbucket.org/gezisoft/agency_backend/sheetsync"
	"bitbucket.org/gezisoft/agency_backend/utils"
	"github.com/gin-gonic/gin"
)

// ProcessHandler drains one batch on demand, for operators and for
// environments without the scheduler loop.
func ProcessHandler(dispatcher *Dispatcher) gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, err := sheetsync.ResolveTenantID(c); err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		if !config.WritebackEnabled() {
			c.JSON(http.StatusConflict, gin.H{"error": "writeback is disabled"})
			return
		}

		processed, err := dispatcher.ProcessPending(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"processed": processed})
	}
}

// StatsHandler rolls the tenant's queue up by status.
func StatsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		tenantId, err := sheetsync.ResolveTenantID(c)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		ctx := utils.SetTenantIdInContext(c.Request.Context(), tenantId)
		db := config.GetDB().WithContext(ctx)

		type row struct {
			Status string
			Count  int64
		}
		var rows []row
		if err := db.Model(&models.WritebackJob{}).
			Select("status, count(*) as count").
			Where("tenant_id = ?", tenantId).
			Group("status").
			Find(&rows).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		stats := make(map[string]int64, len(rows))
		for _, r := range rows {
			stats[r.Status] = r.Count
		}
		c.JSON(http.StatusOK, gin.H{"stats": stats})
	}
}

type jobResponse struct {
	ID          uint    `json:"id"`
	HotelId     string  `json:"hotelId"`
	EventType   string  `json:"eventType"`
	SourceId    string  `json:"sourceId"`
	Status      string  `json:"status"`
	Attempts    int     `json:"attempts"`
	MaxAttempts int     `json:"maxAttempts"`
	LastError   string  `json:"lastError,omitempty"`
	CreatedAt   string  `json:"createdAt"`
	UpdatedAt   string  `json:"updatedAt"`
	LockedBy    *string `json:"lockedBy,omitempty"`
}

func JobsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		tenantId, err := sheetsync.ResolveTenantID(c)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		limit := 50
		if v := strings.TrimSpace(c.Query("limit")); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 200 {
				limit = n
			}
		}

		ctx := utils.SetTenantIdInContext(c.Request.Context(), tenantId)
		db := config.GetDB().WithContext(ctx)

		query := db.Where("tenant_id = ?", tenantId)
		if status := strings.TrimSpace(c.Query("status")); status != "" {
			query = query.Where("status = ?", status)
		}
		if hotelId := strings.TrimSpace(c.Query("hotel_id")); hotelId != "" {
			query = query.Where("hotel_id = ?", hotelId)
		}

		var jobs []models.WritebackJob
		if err := query.Order("id desc").Limit(limit).Find(&jobs).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		items := make([]jobResponse, 0, len(jobs))
		for _, job := range jobs {
			items = append(items, jobResponse{
				ID:          job.ID,
				HotelId:     job.HotelId,
				EventType:   job.EventType,
				SourceId:    job.SourceId,
				Status:      job.Status,
				Attempts:    job.Attempts,
				MaxAttempts: job.MaxAttempts,
				LastError:   job.LastError,
				CreatedAt:   job.CreatedAt.UTC().Format(time.RFC3339),
				UpdatedAt:   job.UpdatedAt.UTC().Format(time.RFC3339),
				LockedBy:    job.LockedBy,
			})
		}
		c.JSON(http.StatusOK, gin.H{"items": items})
	}
}

// RequeueJobHandler puts one terminally failed job back in the queue. The
// idempotency marker still protects against a double append if the original
// attempt did reach the sheet.
func RequeueJobHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		tenantId, err := sheetsync.ResolveTenantID(c)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		id, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid job id"})
			return
		}

		ctx := utils.SetTenantIdInContext(c.Request.Context(), tenantId)
		db := config.GetDB().WithContext(ctx)

		res := db.Model(&models.WritebackJob{}).
			Where("id = ? AND tenant_id = ? AND status = ?", id, tenantId, models.WritebackStatusFailed).
			Updates(map[string]interface{}{
				"status":     models.WritebackStatusQueued,
				"attempts":   0,
				"last_error": "",
				"locked_at":  nil,
				"locked_by":  nil,
			})
		if res.Error != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": res.Error.Error()})
			return
		}
		if res.RowsAffected == 0 {
			c.JSON(http.StatusNotFound, gin.H{"error": "no failed job with that id"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true})
	}
}

func ChangelogHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		tenantId, err := sheetsync.ResolveTenantID(c)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		limit := 50
		if v := strings.TrimSpace(c.Query("limit")); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 200 {
				limit = n
			}
		}

		ctx := utils.SetTenantIdInContext(c.Request.Context(), tenantId)
		db := config.GetDB().WithContext(ctx)

		query := db.Where("tenant_id = ?", tenantId)
		if hotelId := strings.TrimSpace(c.Query("hotel_id")); hotelId != "" {
			query = query.Where("hotel_id = ?", hotelId)
		}

		var entries []models.WritebackLogEntry
		if err := query.Order("id desc").Limit(limit).Find(&entries).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"items": entries})
	}
}

// ReservationCreatedHandler and friends are the internal event intake: other
// services of the platform post domain events here instead of importing this
// package.
func ReservationCreatedHandler(store Store) gin.HandlerFunc {
	return reservationEventHandler(store, OnReservationCreated)
}

func ReservationCancelledHandler(store Store) gin.HandlerFunc {
	return reservationEventHandler(store, OnReservationCancelled)
}

func BookingConfirmedHandler(store Store) gin.HandlerFunc {
	return bookingEventHandler(store, OnBookingConfirmed)
}

func BookingCancelledHandler(store Store) gin.HandlerFunc {
	return bookingEventHandler(store, OnBookingCancelled)
}

func BookingAmendedHandler(store Store) gin.HandlerFunc {
	return bookingEventHandler(store, OnBookingAmended)
}

func reservationEventHandler(store Store, enqueue func(ctx context.Context, s Store, tenantId string, p *ReservationPayload) (*models.WritebackJob, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		tenantId, err := sheetsync.ResolveTenantID(c)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		var payload ReservationPayload
		if err := c.ShouldBindJSON(&payload); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "fields": utils.ProcessValidationErrors(err)})
			return
		}

		ctx := utils.SetTenantIdInContext(c.Request.Context(), tenantId)
		job, err := enqueue(ctx, store, tenantId, &payload)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if job == nil {
			c.JSON(http.StatusAccepted, gin.H{"status": models.WritebackStatusSkippedNoConnection})
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"id": job.ID, "status": job.Status})
	}
}

func bookingEventHandler(store Store, enqueue func(ctx context.Context, s Store, tenantId string, p *BookingPayload) (*models.WritebackJob, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		tenantId, err := sheetsync.ResolveTenantID(c)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		var payload BookingPayload
		if err := c.ShouldBindJSON(&payload); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "fields": utils.ProcessValidationErrors(err)})
			return
		}

		ctx := utils.SetTenantIdInContext(c.Request.Context(), tenantId)
		job, err := enqueue(ctx, store, tenantId, &payload)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if job == nil {
			c.JSON(http.StatusAccepted, gin.H{"status": models.WritebackStatusSkippedNoConnection})
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"id": job.ID, "status": job.Status})
	}
}
