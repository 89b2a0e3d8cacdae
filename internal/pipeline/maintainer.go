package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// MaintenanceStore is the storage surface the maintainer touches.
type MaintenanceStore interface {
	PruneCurves(maxAgeDays int) (int64, error)
	EvictStale() (int64, error)
	BackfillDifficulty() (int64, error)
}

// MaintenanceReport counts what one maintenance pass changed.
type MaintenanceReport struct {
	CurvesPruned   int64 `json:"curves_pruned"`
	QuestsEvicted  int64 `json:"quests_evicted"`
	QuestsBackfill int64 `json:"quests_backfilled"`
}

// Maintainer periodically prunes old curves, evicts stale quests and
// backfills missing difficulty.
type Maintainer struct {
	store     MaintenanceStore
	interval  time.Duration
	curveDays int
	logger    *slog.Logger
}

// NewMaintainer creates a Maintainer. If interval is <= 0 it defaults to 24h;
// if curveMaxAgeDays is <= 0 it defaults to 30.
func NewMaintainer(store MaintenanceStore, interval time.Duration, curveMaxAgeDays int) *Maintainer {
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	if curveMaxAgeDays <= 0 {
		curveMaxAgeDays = 30
	}
	return &Maintainer{
		store:     store,
		interval:  interval,
		curveDays: curveMaxAgeDays,
		logger:    slog.Default(),
	}
}

// Run performs a pass immediately and then every interval until ctx is
// cancelled.
func (m *Maintainer) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		if _, err := m.RunOnce(ctx); err != nil {
			m.logger.Error("maintenance pass failed", "error", err)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(m.interval):
		}
	}
}

// RunOnce performs a single maintenance pass. Each step runs even if an
// earlier one failed; the first error is returned.
func (m *Maintainer) RunOnce(ctx context.Context) (MaintenanceReport, error) {
	var (
		rep      MaintenanceReport
		firstErr error
		err      error
	)
	record := func(step string, e error) {
		if e == nil {
			return
		}
		m.logger.Warn("maintenance step failed", "step", step, "error", e)
		if firstErr == nil {
			firstErr = fmt.Errorf("%s: %w", step, e)
		}
	}

	rep.CurvesPruned, err = m.store.PruneCurves(m.curveDays)
	record("prune curves", err)
	if ctx.Err() != nil {
		return rep, ctx.Err()
	}
	rep.QuestsEvicted, err = m.store.EvictStale()
	record("evict quests", err)
	if ctx.Err() != nil {
		return rep, ctx.Err()
	}
	rep.QuestsBackfill, err = m.store.BackfillDifficulty()
	record("backfill difficulty", err)

	m.logger.Info("maintenance pass complete",
		"curves_pruned", rep.CurvesPruned,
		"quests_evicted", rep.QuestsEvicted,
		"quests_backfilled", rep.QuestsBackfill,
	)
	return rep, firstErr
}
