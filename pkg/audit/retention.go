package audit

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/camberhq/camber/pkg/observability"
)

// Retention deletes audit events older than the configured window. It runs on
// a schedule from cmd/camber and is the only code path that removes audit
// rows.
type Retention struct {
	db            *sql.DB
	logger        *observability.Logger
	retentionDays int
	batchSize     int
}

// NewRetention creates a retention job. retentionDays below 1 disables it.
func NewRetention(db *sql.DB, logger *observability.Logger, retentionDays int) *Retention {
	return &Retention{
		db:            db,
		logger:        logger,
		retentionDays: retentionDays,
		batchSize:     10000,
	}
}

// Run deletes expired events in batches until none remain. Returns the total
// number of events removed.
func (r *Retention) Run(ctx context.Context) (int64, error) {
	if r.retentionDays < 1 {
		return 0, nil
	}

	cutoff := time.Now().UTC().AddDate(0, 0, -r.retentionDays)
	var total int64

	for {
		deleted, err := r.deleteBatch(ctx, cutoff)
		if err != nil {
			return total, err
		}
		total += deleted

		if deleted < int64(r.batchSize) {
			break
		}
	}

	if total > 0 && r.logger != nil {
		r.logger.WithField("deleted", total).
			WithField("cutoff", cutoff.Format(time.RFC3339)).
			Info("audit retention cleanup completed")
	}

	return total, nil
}

// deleteBatch removes one batch inside a transaction asserting the
// maintenance setting, the only condition the delete policy accepts. Like
// every camber.* setting it is transaction-local.
func (r *Retention) deleteBatch(ctx context.Context, cutoff time.Time) (int64, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin retention transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "SELECT set_config('camber.maintenance', 'true', true)"); err != nil {
		return 0, fmt.Errorf("failed to assert maintenance scope: %w", err)
	}

	result, err := tx.ExecContext(ctx, `
		DELETE FROM audit_events
		WHERE id IN (
			SELECT id FROM audit_events
			WHERE performed_at < $1
			ORDER BY id
			LIMIT $2
		)
	`, cutoff, r.batchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired audit events: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	return deleted, tx.Commit()
}
