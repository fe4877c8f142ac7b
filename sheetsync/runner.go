package sheetsync

import (
	"context"
	"sync"
	"time"

	"bitbucket.org/gezisoft/agency_backend/models"
	"golang.org/x/sync/errgroup"
)

// DefaultMaxConcurrent bounds how many hotels sync in parallel during a bulk
// or scheduled sweep.
const DefaultMaxConcurrent = 4

// Runner fans one sweep out over many connections. Connection failures are
// isolated: one hotel's failed run never aborts the sweep.
type Runner struct {
	Engine        *Engine
	MaxConcurrent int
}

func (r *Runner) limit() int {
	if r.MaxConcurrent > 0 {
		return r.MaxConcurrent
	}
	return DefaultMaxConcurrent
}

// RunAll syncs every enabled connection, at most MaxConcurrent at a time.
func (r *Runner) RunAll(ctx context.Context, trigger string) (*BulkSyncSummary, error) {
	conns, err := r.Engine.Store.ListEnabledConnections(ctx)
	if err != nil {
		return nil, err
	}
	return r.runConnections(ctx, conns, trigger), nil
}

// RunDue syncs only the connections whose interval has elapsed. Used by the
// scheduler tick.
func (r *Runner) RunDue(ctx context.Context, now time.Time) (*BulkSyncSummary, error) {
	conns, err := r.Engine.Store.ListDueConnections(ctx, now)
	if err != nil {
		return nil, err
	}
	return r.runConnections(ctx, conns, models.SyncTriggerScheduled), nil
}

func (r *Runner) runConnections(ctx context.Context, conns []models.SheetConnection, trigger string) *BulkSyncSummary {
	summary := &BulkSyncSummary{Total: len(conns)}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.limit())
	for _, conn := range conns {
		conn := conn
		g.Go(func() error {
			run, err := r.Engine.RunSync(gctx, conn, trigger, nil)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				summary.Failed++
			case run.Status == models.SyncRunStatusSuccess || run.Status == models.SyncRunStatusNoChange:
				summary.Succeeded++
			case run.Status == models.SyncRunStatusSkipped || run.Status == models.SyncRunStatusNotConfigured:
				summary.Skipped++
			default:
				summary.Failed++
			}
			// Failures are reported per run; never abort the sweep.
			return nil
		})
	}
	_ = g.Wait()
	return summary
}
