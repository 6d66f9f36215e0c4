// Package outbox relays audit entries from the transactional outbox table
// to Kafka.
//
// The audit store writes entries and outbox rows in one transaction; the
// relay polls the table, publishes each row and deletes it on ack. Rows are
// locked with SKIP LOCKED so multiple instances never publish the same row
// twice concurrently. Delivery is at-least-once; consumers dedupe on the
// entry id.
package outbox

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Publisher sends one outbox row to the audit topic.
type Publisher interface {
	Publish(ctx context.Context, key string, payload []byte) error
}

// Row is one pending outbox record.
type Row struct {
	ID          uuid.UUID
	AggregateID uuid.UUID
	EventType   string
	Payload     []byte
}

// Relay polls the outbox table and drains it to the publisher.
type Relay struct {
	db        *sql.DB
	publisher Publisher
	logger    *slog.Logger
	interval  time.Duration
	batchSize int
}

func NewRelay(db *sql.DB, publisher Publisher, logger *slog.Logger, interval time.Duration, batchSize int) *Relay {
	return &Relay{
		db:        db,
		publisher: publisher,
		logger:    logger,
		interval:  interval,
		batchSize: batchSize,
	}
}

// Run polls until the context is cancelled. One failed batch is logged and
// retried on the next tick; rows stay in the table until acked.
func (r *Relay) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			published, err := r.RelayOnce(ctx)
			if err != nil {
				r.logger.ErrorContext(ctx, "outbox relay batch failed", "error", err)
				continue
			}
			if published > 0 {
				r.logger.DebugContext(ctx, "outbox batch published", "rows", published)
			}
		}
	}
}

// RelayOnce publishes at most one batch and reports how many rows it drained.
func (r *Relay) RelayOnce(ctx context.Context) (int, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin outbox tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	rows, err := tx.QueryContext(ctx, `
		SELECT id, aggregate_id, event_type, payload
		FROM checkin_audit_outbox
		ORDER BY created_at
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	`, r.batchSize)
	if err != nil {
		return 0, fmt.Errorf("query outbox rows: %w", err)
	}

	var batch []Row
	for rows.Next() {
		var row Row
		if err := rows.Scan(&row.ID, &row.AggregateID, &row.EventType, &row.Payload); err != nil {
			rows.Close()
			return 0, fmt.Errorf("scan outbox row: %w", err)
		}
		batch = append(batch, row)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return 0, fmt.Errorf("iterate outbox rows: %w", err)
	}
	rows.Close()

	if len(batch) == 0 {
		return 0, nil
	}

	published := make([]uuid.UUID, 0, len(batch))
	for _, row := range batch {
		// Key on the aggregate so one registration's entries stay ordered
		// within a partition.
		if err := r.publisher.Publish(ctx, row.AggregateID.String(), row.Payload); err != nil {
			r.logger.WarnContext(ctx, "outbox publish failed",
				"outbox_id", row.ID.String(),
				"event_type", row.EventType,
				"error", err,
			)
			break
		}
		published = append(published, row.ID)
	}
	if len(published) == 0 {
		return 0, nil
	}

	for _, rowID := range published {
		if _, err := tx.ExecContext(ctx, `DELETE FROM checkin_audit_outbox WHERE id = $1`, rowID); err != nil {
			return 0, fmt.Errorf("delete outbox row: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit outbox tx: %w", err)
	}
	return len(published), nil
}
