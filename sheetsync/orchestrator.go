package sheetsync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bitbucket.org/gezisoft/agency_backend/models"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Engine drives one connection through a full sync pass. All collaborators
// are interfaces so the state machine is testable without MySQL or a live
// spreadsheet backend.
type Engine struct {
	Store    Store
	Locks    LockStore
	Provider Provider
	Logger   *logrus.Logger

	// LockTTL bounds a run's exclusive hold; zero means DefaultLockTTL.
	LockTTL time.Duration
}

var tracer = otel.Tracer("sheetsync")

// RunSync executes the sync state machine for one connection and returns the
// finished run record. The run row is created in "running" state first, so a
// crash mid-sync still leaves an audit trail. Every terminal path finishes
// the run and releases the lock; the returned error is non-nil only for
// bookkeeping failures (the run row itself could not be written).
func (e *Engine) RunSync(ctx context.Context, conn models.SheetConnection, trigger string, parentRunID *uint) (*models.SheetSyncRun, error) {
	ctx, span := tracer.Start(ctx, "sheetsync.run", trace.WithAttributes(
		attribute.String("tenant_id", conn.TenantId),
		attribute.String("hotel_id", conn.HotelId),
		attribute.String("trigger", trigger),
	))
	defer span.End()

	now := time.Now().UTC()
	run := &models.SheetSyncRun{
		TenantId:     conn.TenantId,
		HotelId:      conn.HotelId,
		ConnectionId: conn.ID,
		Trigger:      trigger,
		Status:       models.SyncRunStatusRunning,
		ParentRunId:  parentRunID,
		StartedAt:    &now,
	}
	if err := e.Store.CreateRun(ctx, run); err != nil {
		return nil, fmt.Errorf("create sync run: %w", err)
	}

	acquired, err := e.Locks.Acquire(ctx, conn.TenantId, conn.HotelId, e.LockTTL)
	if err != nil {
		return run, e.finishRun(ctx, run, models.SyncRunStatusFailed, nil, fmt.Sprintf("acquire lock: %v", err))
	}
	if !acquired {
		// Another run holds this hotel; not an error, just yield.
		return run, e.finishRun(ctx, run, models.SyncRunStatusSkipped, nil, "sync already in progress")
	}

	defer func() {
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		if err := e.Locks.Release(releaseCtx, conn.TenantId, conn.HotelId); err != nil {
			e.logError(conn, "RunSync", "release lock", err)
		}
	}()
	defer func() {
		if r := recover(); r != nil {
			e.logError(conn, "RunSync", "panic recovered", fmt.Errorf("%v", r))
			_ = e.finishRun(ctx, run, models.SyncRunStatusFailed, nil, fmt.Sprintf("panic: %v", r))
		}
	}()

	if !e.Provider.IsConfigured() {
		err := e.finishRun(ctx, run, models.SyncRunStatusNotConfigured, nil, "sheet provider credentials not configured")
		e.updateConnectionAfterRun(ctx, conn, run, "", "sheet provider credentials not configured")
		return run, err
	}

	sheetFingerprint, fpErr := e.Provider.GetFingerprint(ctx, conn.SpreadsheetId, conn.TabName)
	if fpErr == nil && sheetFingerprint != "" && sheetFingerprint == conn.LastFingerprint {
		err := e.finishRun(ctx, run, models.SyncRunStatusNoChange, nil, "")
		e.updateConnectionAfterRun(ctx, conn, run, sheetFingerprint, "")
		return run, err
	}
	if fpErr != nil && !errors.Is(fpErr, ErrFingerprintUnsupported) {
		// Cheap check failed; fall through to the full read rather than fail.
		e.logError(conn, "RunSync", "sheet fingerprint", fpErr)
	}

	data, err := e.Provider.Read(ctx, conn.SpreadsheetId, conn.TabName)
	if err != nil {
		finErr := e.finishRun(ctx, run, models.SyncRunStatusFailed, nil, fmt.Sprintf("read sheet: %v", err))
		e.markConnectionError(ctx, conn, err)
		return run, finErr
	}

	// Providers without a cheap change marker get the hash computed from the
	// rows just read, so the whole per-row diff is skipped on identical
	// content.
	if sheetFingerprint == "" {
		sheetFingerprint = SheetFingerprint(data.Headers, data.Rows)
		if sheetFingerprint == conn.LastFingerprint {
			run.RowsRead = len(data.Rows)
			err := e.finishRun(ctx, run, models.SyncRunStatusNoChange, nil, "")
			e.updateConnectionAfterRun(ctx, conn, run, sheetFingerprint, "")
			return run, err
		}
	}

	run.RowsRead = len(data.Rows)
	if len(data.Rows) == 0 {
		err := e.finishRun(ctx, run, models.SyncRunStatusSuccess, nil, "")
		e.updateConnectionAfterRun(ctx, conn, run, sheetFingerprint, "")
		return run, err
	}

	mapping := DecodeMapping(conn.MappingJSON)
	if mapping == nil {
		mapping = DetectMapping(data.Headers)
	}

	mapped := ApplyMapping(data.Headers, data.Rows, mapping)
	changed, skipped, err := ComputeDelta(ctx, e.Store, conn.TenantId, conn.HotelId, mapped)
	if err != nil {
		finErr := e.finishRun(ctx, run, models.SyncRunStatusFailed, nil, fmt.Sprintf("compute delta: %v", err))
		e.markConnectionError(ctx, conn, err)
		return run, finErr
	}

	run.RowsChanged = len(changed)
	run.Skipped = skipped

	if len(changed) == 0 {
		err := e.finishRun(ctx, run, models.SyncRunStatusNoChange, nil, "")
		e.updateConnectionAfterRun(ctx, conn, run, sheetFingerprint, "")
		return run, err
	}

	result, err := UpsertRows(ctx, e.Store, conn.TenantId, conn.HotelId, changed)
	if err != nil {
		finErr := e.finishRun(ctx, run, models.SyncRunStatusFailed, nil, fmt.Sprintf("upsert rows: %v", err))
		e.markConnectionError(ctx, conn, err)
		return run, finErr
	}

	run.Upserted = result.Upserted
	run.ErrorCount = result.Failed
	run.ErrorsJSON = EncodeRunErrors(result.Errors)

	// Row failures never fail the run as a whole; the run completed, the
	// surviving rows landed. "failed" is reserved for aborts before upsert.
	status := models.SyncRunStatusSuccess
	lastError := ""
	if result.Failed > 0 {
		status = models.SyncRunStatusPartial
		lastError = fmt.Sprintf("%d of %d changed rows failed", result.Failed, len(changed))
	}

	finErr := e.finishRun(ctx, run, status, result.Errors, lastError)
	// Only a fully clean pass advances the sheet fingerprint; a partial run
	// must re-examine the sheet next time.
	advanceFP := sheetFingerprint
	if status != models.SyncRunStatusSuccess {
		advanceFP = ""
	}
	e.updateConnectionAfterRun(ctx, conn, run, advanceFP, lastError)
	span.SetAttributes(
		attribute.String("status", status),
		attribute.Int("rows_read", run.RowsRead),
		attribute.Int("upserted", run.Upserted),
	)
	return run, finErr
}

func (e *Engine) finishRun(ctx context.Context, run *models.SheetSyncRun, status string, errs []RowError, lastError string) error {
	finished := time.Now().UTC()
	run.Status = status
	run.FinishedAt = &finished
	if run.StartedAt != nil {
		run.DurationMs = finished.Sub(*run.StartedAt).Milliseconds()
	}
	if len(errs) > 0 && run.ErrorsJSON == nil {
		run.ErrorsJSON = EncodeRunErrors(errs)
	}
	if err := e.Store.UpdateRun(ctx, run); err != nil {
		return fmt.Errorf("finish sync run: %w", err)
	}
	if e.Logger != nil {
		e.Logger.WithFields(logrus.Fields{
			"module":       "sheetsync",
			"tenant_id":    run.TenantId,
			"hotel_id":     run.HotelId,
			"run_id":       run.ID,
			"status":       status,
			"rows_read":    run.RowsRead,
			"rows_changed": run.RowsChanged,
			"upserted":     run.Upserted,
			"skipped":      run.Skipped,
			"error_count":  run.ErrorCount,
			"duration_ms":  run.DurationMs,
			"last_error":   lastError,
		}).Info("sync run finished")
	}
	return nil
}

// updateConnectionAfterRun records the run outcome on the connection. A
// non-empty fingerprint advances last_fingerprint.
func (e *Engine) updateConnectionAfterRun(ctx context.Context, conn models.SheetConnection, run *models.SheetSyncRun, fingerprint string, lastError string) {
	fields := map[string]interface{}{
		"last_sync_at":     run.FinishedAt,
		"last_sync_status": run.Status,
		"last_error":       lastError,
	}
	if fingerprint != "" {
		fields["last_fingerprint"] = fingerprint
	}
	if err := e.Store.UpdateConnection(ctx, conn.ID, fields); err != nil {
		e.logError(conn, "updateConnectionAfterRun", "update connection", err)
	}
}

// markConnectionError flips the connection into error state with the cause.
// The connection stays enabled; the next scheduled pass retries it.
func (e *Engine) markConnectionError(ctx context.Context, conn models.SheetConnection, cause error) {
	now := time.Now().UTC()
	fields := map[string]interface{}{
		"last_sync_at":     now,
		"last_sync_status": models.SyncRunStatusFailed,
		"last_error":       cause.Error(),
		"status":           models.ConnectionStatusError,
	}
	if err := e.Store.UpdateConnection(ctx, conn.ID, fields); err != nil {
		e.logError(conn, "markConnectionError", "update connection", err)
	}
}

func (e *Engine) logError(conn models.SheetConnection, funcName, context string, err error) {
	if e.Logger == nil {
		return
	}
	e.Logger.WithFields(logrus.Fields{
		"module":    "sheetsync",
		"func":      funcName,
		"context":   context,
		"tenant_id": conn.TenantId,
		"hotel_id":  conn.HotelId,
	}).Error(err)
}
