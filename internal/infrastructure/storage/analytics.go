package storage

import (
	"context"
	"database/sql"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"newsforge/internal/domain"
	"newsforge/internal/ports"
)

// AnalyticsStore appends run summaries to Postgres for later analysis.
type AnalyticsStore struct {
	db *sql.DB
	sb sq.StatementBuilderType
}

var _ ports.AnalyticsSink = (*AnalyticsStore)(nil)

// NewAnalyticsStore wires a sql.DB implementation.
func NewAnalyticsStore(db *sql.DB) *AnalyticsStore {
	return &AnalyticsStore{
		db: db,
		sb: sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

// Record inserts one finished run summary.
func (s *AnalyticsStore) Record(ctx context.Context, summary domain.RunSummary) error {
	if s.db == nil {
		return fmt.Errorf("analytics store is not configured")
	}

	query, args, err := s.sb.
		Insert("newsletter_runs").
		Columns("run_id", "user_id", "outcome", "abort_reason",
			"items_collected", "items_curated",
			"delivery_status", "delivery_attempts", "error_count",
			"started_at", "finished_at", "duration_ms").
		Values(
			summary.RunID,
			summary.UserID,
			string(summary.Outcome),
			string(summary.AbortReason),
			summary.ItemsCollected,
			summary.ItemsCurated,
			string(summary.DeliveryStatus),
			summary.DeliveryAttempts,
			summary.ErrorCount,
			summary.StartedAt,
			summary.FinishedAt,
			summary.FinishedAt.Sub(summary.StartedAt).Milliseconds(),
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert run summary: %w", err)
	}
	return nil
}
