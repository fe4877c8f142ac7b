package sheetsync

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"bitbucket.org/gezisoft/agency_backend/config"
	"bitbucket.org/gezisoft/agency_backend/models"
	"bitbucket.org/gezisoft/agency_backend/utils"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

func ListConnectionsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		tenantId, err := ResolveTenantID(c)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		ctx := utils.SetTenantIdInContext(c.Request.Context(), tenantId)
		db := config.GetDB().WithContext(ctx)

		var conns []models.SheetConnection
		if err := db.Where("tenant_id = ?", tenantId).Order("hotel_id asc").Find(&conns).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		items := make([]ConnectionResponse, 0, len(conns))
		for _, conn := range conns {
			items = append(items, mapConnectionToResponse(conn))
		}
		c.JSON(http.StatusOK, gin.H{"items": items})
	}
}

// ConnectHandler creates or replaces the sheet connection for one hotel. When
// the request carries no explicit mapping, the sheet headers are read and a
// mapping detected, so the caller sees what the sync will do before enabling
// it.
func ConnectHandler(provider Provider) gin.HandlerFunc {
	return func(c *gin.Context) {
		tenantId, err := ResolveTenantID(c)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		var req ConnectRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "fields": utils.ProcessValidationErrors(err)})
			return
		}
		if strings.TrimSpace(req.HotelId) == "" || strings.TrimSpace(req.SpreadsheetId) == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "hotelId and spreadsheetId are required"})
			return
		}

		ctx := utils.SetTenantIdInContext(c.Request.Context(), tenantId)
		db := config.GetDB().WithContext(ctx)

		mapping := req.Mapping
		sheetTitle := ""
		if provider.IsConfigured() {
			if meta, metaErr := provider.GetMetadata(ctx, req.SpreadsheetId); metaErr == nil {
				sheetTitle = meta.Title
			}
			if len(mapping) == 0 {
				if data, readErr := provider.Read(ctx, req.SpreadsheetId, req.TabName); readErr == nil {
					mapping = DetectMapping(data.Headers)
				}
			}
			// An unreadable sheet is not fatal at connect time; the first
			// sync run will surface it.
		}

		syncEnabled := true
		if req.SyncEnabled != nil {
			syncEnabled = *req.SyncEnabled
		}
		interval := req.SyncIntervalMinutes
		if interval <= 0 {
			interval = 60
		}

		conn, err := getConnection(db, tenantId, req.HotelId)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		now := time.Now().UTC()
		if conn == nil {
			conn = &models.SheetConnection{
				TenantId:            tenantId,
				HotelId:             strings.TrimSpace(req.HotelId),
				SourceType:          models.SheetSourceTypeExternal,
				SpreadsheetId:       strings.TrimSpace(req.SpreadsheetId),
				TabName:             strings.TrimSpace(req.TabName),
				MappingJSON:         EncodeMapping(mapping),
				SyncEnabled:         syncEnabled,
				SyncIntervalMinutes: interval,
				Status:              models.ConnectionStatusActive,
			}
			if err := db.Create(conn).Error; err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
				return
			}
		} else {
			// Reconnecting to a different sheet invalidates the remembered
			// row state; stale fingerprints would mask real changes.
			if conn.SpreadsheetId != strings.TrimSpace(req.SpreadsheetId) || conn.TabName != strings.TrimSpace(req.TabName) {
				if err := db.Where("tenant_id = ? AND hotel_id = ?", tenantId, conn.HotelId).
					Delete(&models.SheetRowFingerprint{}).Error; err != nil {
					c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
					return
				}
			}
			update := map[string]interface{}{
				"spreadsheet_id":        strings.TrimSpace(req.SpreadsheetId),
				"tab_name":              strings.TrimSpace(req.TabName),
				"sync_enabled":          syncEnabled,
				"sync_interval_minutes": interval,
				"status":                models.ConnectionStatusActive,
				"last_fingerprint":      "",
				"last_error":            "",
				"updated_at":            now,
			}
			if len(mapping) > 0 {
				update["mapping_json"] = EncodeMapping(mapping)
			}
			if err := db.Model(conn).Updates(update).Error; err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
				return
			}
		}

		c.JSON(http.StatusOK, gin.H{"id": conn.ID, "mapping": mapping, "sheetTitle": sheetTitle})
	}
}

func UpdateConnectionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		tenantId, err := ResolveTenantID(c)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		hotelId := strings.TrimSpace(c.Param("hotelId"))
		var req UpdateConnectionRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "fields": utils.ProcessValidationErrors(err)})
			return
		}

		ctx := utils.SetTenantIdInContext(c.Request.Context(), tenantId)
		db := config.GetDB().WithContext(ctx)

		conn, err := getConnection(db, tenantId, hotelId)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if conn == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}

		update := map[string]interface{}{"updated_at": time.Now().UTC()}
		if req.TabName != nil {
			update["tab_name"] = strings.TrimSpace(*req.TabName)
		}
		if req.Mapping != nil {
			update["mapping_json"] = EncodeMapping(req.Mapping)
		}
		if req.SyncEnabled != nil {
			update["sync_enabled"] = *req.SyncEnabled
		}
		if req.SyncIntervalMinutes != nil && *req.SyncIntervalMinutes > 0 {
			update["sync_interval_minutes"] = *req.SyncIntervalMinutes
		}
		if req.Status != nil {
			status := strings.TrimSpace(*req.Status)
			if status != models.ConnectionStatusActive && status != models.ConnectionStatusInactive {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid status"})
				return
			}
			update["status"] = status
		}

		if err := db.Model(conn).Updates(update).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true})
	}
}

// DeleteConnectionHandler removes the connection and its remembered row
// fingerprints. Synced inventory stays; disconnecting is not an undo.
func DeleteConnectionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		tenantId, err := ResolveTenantID(c)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		hotelId := strings.TrimSpace(c.Param("hotelId"))
		ctx := utils.SetTenantIdInContext(c.Request.Context(), tenantId)
		db := config.GetDB().WithContext(ctx)

		conn, err := getConnection(db, tenantId, hotelId)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if conn == nil {
			c.JSON(http.StatusOK, gin.H{"success": true})
			return
		}

		if err := db.Transaction(func(tx *gorm.DB) error {
			if err := tx.Where("tenant_id = ? AND hotel_id = ?", tenantId, hotelId).
				Delete(&models.SheetRowFingerprint{}).Error; err != nil {
				return err
			}
			return tx.Delete(conn).Error
		}); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true})
	}
}

// PreviewMappingHandler reads live sheet headers and returns the detected
// mapping without touching any stored state.
func PreviewMappingHandler(provider Provider) gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, err := ResolveTenantID(c); err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		var req PreviewMappingRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "fields": utils.ProcessValidationErrors(err)})
			return
		}
		if !provider.IsConfigured() {
			c.JSON(http.StatusConflict, gin.H{"error": "sheet provider is not configured"})
			return
		}

		data, err := provider.Read(c.Request.Context(), req.SpreadsheetId, req.TabName)
		if err != nil {
			c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
			return
		}

		mapping := DetectMapping(data.Headers)
		sampleRows := data.Rows
		if len(sampleRows) > 20 {
			sampleRows = sampleRows[:20]
		}
		c.JSON(http.StatusOK, gin.H{
			"headers": data.Headers,
			"mapping": mapping,
			"rows":    len(data.Rows),
			"sample":  ApplyMapping(data.Headers, sampleRows, mapping),
		})
	}
}

// TriggerSyncHandler starts a manual sync for one hotel. With Pub/Sub enabled
// the run is published and executed by the push endpoint; otherwise it runs
// inline.
func TriggerSyncHandler(engine *Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		tenantId, err := ResolveTenantID(c)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		hotelId := strings.TrimSpace(c.Param("hotelId"))
		ctx := utils.SetTenantIdInContext(c.Request.Context(), tenantId)
		db := config.GetDB().WithContext(ctx)

		conn, err := getConnection(db, tenantId, hotelId)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if conn == nil {
			c.JSON(http.StatusConflict, gin.H{"error": "hotel has no sheet connection"})
			return
		}
		if conn.Status == models.ConnectionStatusInactive {
			c.JSON(http.StatusConflict, gin.H{"error": "connection is inactive"})
			return
		}

		if config.SheetSyncUsePubSub() {
			run := models.SheetSyncRun{
				TenantId:     tenantId,
				HotelId:      conn.HotelId,
				ConnectionId: conn.ID,
				Trigger:      models.SyncTriggerManual,
				Status:       models.SyncRunStatusRunning,
			}
			if err := db.Create(&run).Error; err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
				return
			}
			_ = PublishSyncTrigger(ctx, SyncPubSubPayload{
				RunId:        run.ID,
				TenantId:     tenantId,
				ConnectionId: conn.ID,
				Trigger:      models.SyncTriggerManual,
			})
			c.JSON(http.StatusAccepted, gin.H{"id": run.ID})
			return
		}

		run, err := engine.RunSync(ctx, *conn, models.SyncTriggerManual, nil)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, mapRunToResponse(*run))
	}
}

// BulkSyncHandler sweeps every enabled connection of the tenant inline and
// returns the summary.
func BulkSyncHandler(engine *Engine, runner *Runner) gin.HandlerFunc {
	return func(c *gin.Context) {
		tenantId, err := ResolveTenantID(c)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		ctx := utils.SetTenantIdInContext(c.Request.Context(), tenantId)
		db := config.GetDB().WithContext(ctx)

		var conns []models.SheetConnection
		if err := db.Where("tenant_id = ? AND sync_enabled = ? AND status = ?",
			tenantId, true, models.ConnectionStatusActive).
			Order("id asc").
			Find(&conns).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		summary := runner.runConnections(ctx, conns, models.SyncTriggerManualBulk)
		c.JSON(http.StatusOK, summary)
	}
}

func SyncHistoryHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		tenantId, err := ResolveTenantID(c)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		limit := 20
		if v := strings.TrimSpace(c.Query("limit")); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 100 {
				limit = n
			}
		}

		ctx := utils.SetTenantIdInContext(c.Request.Context(), tenantId)
		db := config.GetDB().WithContext(ctx)

		query := db.Where("tenant_id = ?", tenantId)
		if hotelId := strings.TrimSpace(c.Query("hotel_id")); hotelId != "" {
			query = query.Where("hotel_id = ?", hotelId)
		}
		if status := strings.TrimSpace(c.Query("status")); status != "" {
			query = query.Where("status = ?", status)
		}

		var runs []models.SheetSyncRun
		if err := query.Order("id desc").Limit(limit).Find(&runs).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		items := make([]RunResponse, 0, len(runs))
		for _, run := range runs {
			items = append(items, mapRunToResponse(run))
		}
		c.JSON(http.StatusOK, gin.H{"items": items})
	}
}

func SyncRunDetailHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		tenantId, err := ResolveTenantID(c)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		id, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid run id"})
			return
		}

		ctx := utils.SetTenantIdInContext(c.Request.Context(), tenantId)
		db := config.GetDB().WithContext(ctx)

		var run models.SheetSyncRun
		if err := db.Where("id = ? AND tenant_id = ?", id, tenantId).Take(&run).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, mapRunToResponse(run))
	}
}

// RetrySyncRunHandler starts a fresh run for the connection of a past run,
// linked through parent_run_id for traceability.
func RetrySyncRunHandler(engine *Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		tenantId, err := ResolveTenantID(c)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		id, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid run id"})
			return
		}

		ctx := utils.SetTenantIdInContext(c.Request.Context(), tenantId)
		db := config.GetDB().WithContext(ctx)

		var parent models.SheetSyncRun
		if err := db.Where("id = ? AND tenant_id = ?", id, tenantId).Take(&parent).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		var conn models.SheetConnection
		if err := db.Where("id = ? AND tenant_id = ?", parent.ConnectionId, tenantId).Take(&conn).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				c.JSON(http.StatusConflict, gin.H{"error": "connection no longer exists"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		run, err := engine.RunSync(ctx, conn, models.SyncTriggerManual, &parent.ID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, mapRunToResponse(*run))
	}
}

// ResolveTenantID identifies the caller's tenant. Admins may act on another
// tenant through the tenant_id query parameter.
func ResolveTenantID(c *gin.Context) (string, error) {
	username, ok := utils.GetUsernameFromContext(c.Request.Context())
	if !ok || strings.TrimSpace(username) == "" {
		return "", errors.New("unauthorized")
	}

	tenantId := strings.TrimSpace(c.Query("tenant_id"))
	if tenantId != "" {
		if err := authorizeTenant(c.Request.Context(), tenantId); err != nil {
			return "", err
		}
		return tenantId, nil
	}

	user, err := lookupUser(c.Request.Context(), username)
	if err != nil {
		return "", err
	}
	tenantId = strings.TrimSpace(user.TenantId)
	if tenantId == "" {
		return "", errors.New("tenant_id is required")
	}
	return tenantId, nil
}

func authorizeTenant(ctx context.Context, tenantId string) error {
	username, ok := utils.GetUsernameFromContext(ctx)
	if !ok || username == "" {
		return errors.New("unauthorized")
	}
	if tenantId == "" {
		return errors.New("tenant_id is required")
	}

	user, err := lookupUser(ctx, username)
	if err != nil {
		return err
	}
	if user.Role == models.UserRoleAdmin {
		return nil
	}
	if user.TenantId != tenantId {
		return errors.New("unauthorized")
	}
	return nil
}

func lookupUser(ctx context.Context, username string) (*models.User, error) {
	var user models.User
	exists, err := config.GetRedisObject("User:"+username, &user)
	if err == nil && exists {
		return &user, nil
	}

	db := config.GetDB()
	if db == nil {
		return nil, errors.New("db is nil")
	}
	if err := db.WithContext(ctx).
		Model(&models.User{}).
		Where("username = ?", username).
		Take(&user).Error; err != nil {
		return nil, errors.New("unauthorized")
	}
	_ = config.SetRedisObject("User:"+username, &user, 10*time.Minute)
	return &user, nil
}

func getConnection(db *gorm.DB, tenantId, hotelId string) (*models.SheetConnection, error) {
	if strings.TrimSpace(hotelId) == "" {
		return nil, errors.New("hotelId is required")
	}
	var conn models.SheetConnection
	err := db.Where("tenant_id = ? AND hotel_id = ? AND source_type = ?",
		tenantId, hotelId, models.SheetSourceTypeExternal).Take(&conn).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &conn, nil
}

func formatTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.UTC().Format(time.RFC3339)
	return &s
}

func mapConnectionToResponse(conn models.SheetConnection) ConnectionResponse {
	return ConnectionResponse{
		ID:                  conn.ID,
		HotelId:             conn.HotelId,
		SpreadsheetId:       conn.SpreadsheetId,
		TabName:             conn.TabName,
		Mapping:             DecodeMapping(conn.MappingJSON),
		SyncEnabled:         conn.SyncEnabled,
		SyncIntervalMinutes: conn.SyncIntervalMinutes,
		LastSyncAt:          formatTime(conn.LastSyncAt),
		LastSyncStatus:      conn.LastSyncStatus,
		LastError:           conn.LastError,
		Status:              conn.Status,
	}
}

func mapRunToResponse(run models.SheetSyncRun) RunResponse {
	return RunResponse{
		ID:          run.ID,
		HotelId:     run.HotelId,
		Trigger:     run.Trigger,
		Status:      run.Status,
		RowsRead:    run.RowsRead,
		RowsChanged: run.RowsChanged,
		Upserted:    run.Upserted,
		Skipped:     run.Skipped,
		ErrorCount:  run.ErrorCount,
		Errors:      DecodeRunErrors(run.ErrorsJSON),
		ParentRunId: run.ParentRunId,
		StartedAt:   formatTime(run.StartedAt),
		FinishedAt:  formatTime(run.FinishedAt),
		DurationMs:  run.DurationMs,
	}
}
