package workflow

import (
	"context"
	"log/slog"

	"newsforge/internal/domain"
	"newsforge/internal/ports"
)

// Recorder appends timing and outcome metrics for finished runs. It is a
// pure observer: a failing sink is logged and swallowed, never propagated,
// so analytics can never change the workflow's result.
type Recorder struct {
	sink   ports.AnalyticsSink
	logger *slog.Logger
}

// NewRecorder wires an optional sink; a nil sink records to the log only.
func NewRecorder(sink ports.AnalyticsSink, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{sink: sink, logger: logger}
}

// Record persists the run summary.
func (r *Recorder) Record(ctx context.Context, state *domain.RunState) {
	summary := state.Summary()

	r.logger.Info("run recorded",
		"run_id", summary.RunID,
		"user_id", summary.UserID,
		"outcome", summary.Outcome,
		"abort_reason", summary.AbortReason,
		"items_collected", summary.ItemsCollected,
		"items_curated", summary.ItemsCurated,
		"delivery_status", summary.DeliveryStatus,
		"delivery_attempts", summary.DeliveryAttempts,
		"error_count", summary.ErrorCount)

	if r.sink == nil {
		return
	}
	if err := r.sink.Record(ctx, summary); err != nil {
		r.logger.Warn("analytics sink failed", "run_id", summary.RunID, "error", err)
	}
}
