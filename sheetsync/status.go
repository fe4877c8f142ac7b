package sheetsync

import (
	"net/http"
	"time"

	"bitbucket.org/gezisoft/agency_backend/config"
	"bitbucket.org/gezisoft/agency_backend/models"
	"bitbucket.org/gezisoft/agency_backend/utils"
	"github.com/gin-gonic/gin"
)

// staleFactor marks a connection stale once this many sync intervals have
// passed without a successful run. SHEET_SYNC_STALE_AFTER_MINUTES overrides
// the interval-relative rule with a fixed age.
const staleFactor = 3

// staleCutoff is the oldest acceptable last-sync time. fixedMinutes > 0 wins
// over the per-connection interval.
func staleCutoff(now time.Time, interval time.Duration, fixedMinutes int) time.Time {
	if fixedMinutes > 0 {
		return now.Add(-time.Duration(fixedMinutes) * time.Minute)
	}
	if interval <= 0 {
		interval = time.Hour
	}
	return now.Add(-staleFactor * interval)
}

type dashboardCounts struct {
	Total         int64 `json:"total"`
	Enabled       int64 `json:"enabled"`
	Healthy       int64 `json:"healthy"`
	Failing       int64 `json:"failing"`
	NeverSynced   int64 `json:"neverSynced"`
	NotConfigured int64 `json:"notConfigured"`
}

// DashboardHandler rolls the tenant's connections up by sync health, so an
// operator sees failing hotels without paging through runs.
func DashboardHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		tenantId, err := ResolveTenantID(c)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		ctx := utils.SetTenantIdInContext(c.Request.Context(), tenantId)
		db := config.GetDB().WithContext(ctx)

		var counts dashboardCounts
		if err := db.Model(&models.SheetConnection{}).
			Where("tenant_id = ?", tenantId).
			Count(&counts.Total).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		type row struct {
			LastSyncStatus string
			SyncEnabled    bool
			Count          int64
		}
		var rows []row
		if err := db.Model(&models.SheetConnection{}).
			Select("last_sync_status, sync_enabled, count(*) as count").
			Where("tenant_id = ?", tenantId).
			Group("last_sync_status, sync_enabled").
			Find(&rows).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		for _, r := range rows {
			if r.SyncEnabled {
				counts.Enabled += r.Count
			}
			switch r.LastSyncStatus {
			case models.SyncRunStatusSuccess, models.SyncRunStatusNoChange:
				counts.Healthy += r.Count
			case models.SyncRunStatusFailed, models.SyncRunStatusPartial:
				counts.Failing += r.Count
			case models.SyncRunStatusNotConfigured:
				counts.NotConfigured += r.Count
			case "":
				counts.NeverSynced += r.Count
			}
		}

		stale, err := staleConnections(c, tenantId)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"counts": counts,
			"stale":  stale,
		})
	}
}

// StaleConnectionsHandler lists connections with no successful sync for
// several intervals.
func StaleConnectionsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		tenantId, err := ResolveTenantID(c)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		stale, err := staleConnections(c, tenantId)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"items": stale})
	}
}

func staleConnections(c *gin.Context, tenantId string) ([]ConnectionResponse, error) {
	ctx := utils.SetTenantIdInContext(c.Request.Context(), tenantId)
	db := config.GetDB().WithContext(ctx)

	var conns []models.SheetConnection
	if err := db.Where("tenant_id = ? AND sync_enabled = ? AND status = ?",
		tenantId, true, models.ConnectionStatusActive).
		Find(&conns).Error; err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	fixedMinutes := config.SheetSyncStaleAfterMinutes()
	stale := make([]ConnectionResponse, 0)
	for _, conn := range conns {
		interval := time.Duration(conn.SyncIntervalMinutes) * time.Minute
		cutoff := staleCutoff(now, interval, fixedMinutes)
		if conn.LastSyncAt == nil || conn.LastSyncAt.Before(cutoff) {
			stale = append(stale, mapConnectionToResponse(conn))
		}
	}
	return stale, nil
}
