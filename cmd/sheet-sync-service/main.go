package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"bitbucket.org/gezisoft/agency_backend/config"
	"bitbucket.org/gezisoft/agency_backend/middlewares"
	"bitbucket.org/gezisoft/agency_backend/models"
	"bitbucket.org/gezisoft/agency_backend/sheetsync"
	"bitbucket.org/gezisoft/agency_backend/utils"
	"bitbucket.org/gezisoft/agency_backend/writeback"
	"github.com/bsm/redislock"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const defaultPort = "8080"

func main() {
	port := os.Getenv("SHEET_SYNC_PORT")
	if port == "" {
		port = os.Getenv("PORT")
	}
	if port == "" {
		port = defaultPort
	}

	logger := config.GetLogger()

	sigCtx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	r := gin.New()
	r.Use(func(c *gin.Context) {
		cid := c.GetHeader("x-correlation-id")
		if cid == "" {
			cid = uuid.NewString()
		}
		c.Request = c.Request.WithContext(utils.SetCorrelationIdInContext(c.Request.Context(), cid))
		c.Next()
	})
	r.Use(func(c *gin.Context) {
		if c.Request.URL.Path == "/healthz" {
			c.Status(http.StatusNoContent)
			c.Abort()
			return
		}
		if config.GetDB() == nil || config.GetRedisDB() == nil {
			c.AbortWithStatus(http.StatusServiceUnavailable)
			return
		}
		c.Next()
	})
	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	corsConfig := cors.DefaultConfig()
	allowedOrigins := strings.TrimSpace(os.Getenv("CORS_ALLOWED_ORIGINS"))
	if strings.EqualFold(strings.TrimSpace(os.Getenv("GO_ENV")), "production") {
		if allowedOrigins == "" {
			corsConfig.AllowOrigins = []string{}
		} else {
			corsConfig.AllowOrigins = utils.SplitAndTrim(allowedOrigins)
		}
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AddAllowMethods("GET", "POST", "PUT", "DELETE", "OPTIONS")
	corsConfig.AddAllowHeaders("token", "Origin", "Content-Type", "Authorization")
	corsConfig.AddExposeHeaders("Content-Length")
	corsConfig.AllowCredentials = true

	r.Use(cors.New(corsConfig))
	r.Use(middlewares.AuthMiddleware())
	r.Use(requestLogger(logger))
	r.Use(gin.Recovery())

	provider := buildProvider()
	engine := &sheetsync.Engine{
		Store:    sheetsync.NewStore(config.GetDB),
		Locks:    sheetsync.NewLockStore(config.GetDB),
		Provider: provider,
		Logger:   logger,
		LockTTL:  time.Duration(intFromEnv("SHEET_SYNC_LOCK_TTL_MINUTES", 10)) * time.Minute,
	}
	runner := &sheetsync.Runner{
		Engine:        engine,
		MaxConcurrent: intFromEnv("SHEET_SYNC_MAX_CONCURRENT", sheetsync.DefaultMaxConcurrent),
	}
	wbStore := writeback.NewStore(config.GetDB)
	dispatcher := writeback.NewDispatcher(wbStore, provider, logger)

	// Connections endpoints.
	r.GET("/api/sheet-sync/connections", sheetsync.ListConnectionsHandler())
	r.POST("/api/sheet-sync/connections", sheetsync.ConnectHandler(provider))
	r.PUT("/api/sheet-sync/connections/:hotelId", sheetsync.UpdateConnectionHandler())
	r.DELETE("/api/sheet-sync/connections/:hotelId", sheetsync.DeleteConnectionHandler())
	r.POST("/api/sheet-sync/preview-mapping", sheetsync.PreviewMappingHandler(provider))

	// Sync endpoints.
	r.POST("/api/sheet-sync/connections/:hotelId/sync", sheetsync.TriggerSyncHandler(engine))
	r.POST("/api/sheet-sync/sync-all", sheetsync.BulkSyncHandler(engine, runner))
	r.GET("/api/sheet-sync/sync-runs", sheetsync.SyncHistoryHandler())
	r.GET("/api/sheet-sync/sync-runs/:id", sheetsync.SyncRunDetailHandler())
	r.POST("/api/sheet-sync/sync-runs/:id/retry", sheetsync.RetrySyncRunHandler(engine))
	r.GET("/api/sheet-sync/dashboard", sheetsync.DashboardHandler())
	r.GET("/api/sheet-sync/stale", sheetsync.StaleConnectionsHandler())

	// Write-back endpoints.
	r.POST("/api/sheet-sync/writeback/process", writeback.ProcessHandler(dispatcher))
	r.GET("/api/sheet-sync/writeback/stats", writeback.StatsHandler())
	r.GET("/api/sheet-sync/writeback/jobs", writeback.JobsHandler())
	r.POST("/api/sheet-sync/writeback/jobs/:id/requeue", writeback.RequeueJobHandler())
	r.GET("/api/sheet-sync/writeback/changelog", writeback.ChangelogHandler())

	// Internal event intake.
	r.POST("/internal/events/reservation-created", writeback.ReservationCreatedHandler(wbStore))
	r.POST("/internal/events/reservation-cancelled", writeback.ReservationCancelledHandler(wbStore))
	r.POST("/internal/events/booking-confirmed", writeback.BookingConfirmedHandler(wbStore))
	r.POST("/internal/events/booking-cancelled", writeback.BookingCancelledHandler(wbStore))
	r.POST("/internal/events/booking-amended", writeback.BookingAmendedHandler(wbStore))

	// Pub/Sub push endpoint for async manual triggers.
	r.POST("/pubsub/sheet-sync", sheetsync.PubSubPushHandler(engine))

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "route not found"})
	})

	srv := &http.Server{
		Addr:    ":" + port,
		Handler: r,
	}
	serverErrCh := make(chan error, 1)
	go func() {
		serverErrCh <- srv.ListenAndServe()
	}()

	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()

	db := config.GetDB()
	sqlDB, _ := db.DB()
	defer func() {
		if sqlDB != nil {
			_ = sqlDB.Close()
		}
	}()

	if !strings.EqualFold(strings.TrimSpace(os.Getenv("SKIP_MIGRATIONS")), "true") {
		models.MigrateTable()
	} else {
		logger.WithFields(logrus.Fields{"field": "migrations"}).Warn("SKIP_MIGRATIONS=true; skipping AutoMigrate on startup")
	}

	if config.SheetSyncSchedulerEnabled() {
		go schedulerLoop(sigCtx, logger, runner, dispatcher)
	}

	select {
	case <-sigCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	case err := <-serverErrCh:
		if err != nil && err != http.ErrServerClosed {
			logger.WithFields(logrus.Fields{"field": "server"}).Error(err)
		}
	}
}

func buildProvider() sheetsync.Provider {
	if dir := strings.TrimSpace(os.Getenv("SHEET_XLSX_DIR")); dir != "" {
		return sheetsync.NewXLSXProvider(dir)
	}
	return sheetsync.NewGoogleSheetsProvider()
}

// schedulerLoop ticks the due-connection sweep and the write-back dispatcher.
// A Redis lock makes the tick a singleton across replicas; losing the lock
// just means another instance is doing the work.
func schedulerLoop(ctx context.Context, logger *logrus.Logger, runner *sheetsync.Runner, dispatcher *writeback.Dispatcher) {
	interval := time.Duration(intFromEnv("SHEET_SYNC_TICK_SECONDS", 60)) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		locker := config.GetRedisLock()
		if locker == nil {
			continue
		}
		lock, err := locker.Obtain(ctx, "sheet-sync:scheduler", interval, nil)
		if err != nil {
			if err != redislock.ErrNotObtained {
				logger.WithFields(logrus.Fields{"field": "scheduler"}).Error(err)
			}
			continue
		}

		now := time.Now().UTC()
		if summary, err := runner.RunDue(ctx, now); err != nil {
			logger.WithFields(logrus.Fields{"field": "scheduler"}).Error(err)
		} else if summary.Total > 0 {
			logger.WithFields(logrus.Fields{
				"field":     "scheduler",
				"total":     summary.Total,
				"succeeded": summary.Succeeded,
				"failed":    summary.Failed,
				"skipped":   summary.Skipped,
			}).Info("scheduled sync sweep finished")
		}

		if config.WritebackEnabled() {
			if _, err := dispatcher.ProcessPending(ctx); err != nil {
				logger.WithFields(logrus.Fields{"field": "scheduler"}).Error(err)
			}
		}

		_ = lock.Release(ctx)
	}
}

func requestLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		latency := time.Since(start)
		cid, _ := utils.GetCorrelationIdFromContext(c.Request.Context())
		logger.WithFields(logrus.Fields{
			"status":         c.Writer.Status(),
			"method":         c.Request.Method,
			"path":           c.Request.URL.Path,
			"latency":        latency.String(),
			"correlation_id": cid,
		}).Info("request")
	}
}

func intFromEnv(key string, def int) int {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return def
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return def
	}
	return n
}
