// Package queue provides the durable device-local queue for check-ins
// captured while the gateway is unreachable.
//
// Rows survive process restarts; they are only marked synced after the
// gateway acknowledged the batch. Uses SQLite with WAL mode so a sync cycle
// can read while the capture path writes.
package queue

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	id "presence/pkg/domain"
	"presence/pkg/platform/sentinel"
)

//go:embed schema.sql
var schemaSQL string

// Item is one queued check-in awaiting reconciliation.
type Item struct {
	ID             int64
	RegistrationID id.RegistrationID
	EventID        id.EventID
	RecordedAt     time.Time
	QueuedAt       time.Time
}

// Queue is the durable offline check-in queue.
type Queue struct {
	db *sql.DB
}

// Open creates or opens the queue database at the given path. Safe to call
// repeatedly; the schema is applied idempotently.
func Open(path string) (*Queue, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open queue database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect queue database: %w", err)
	}

	// SQLite allows a single writer; one connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply %q: %w", pragma, err)
		}
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply queue schema: %w", err)
	}

	return &Queue{db: db}, nil
}

// Close closes the underlying database.
func (q *Queue) Close() error {
	return q.db.Close()
}

// Enqueue stores one captured check-in. A pair already queued or already
// synced from this device returns sentinel.ErrConflict and is not stored
// again.
func (q *Queue) Enqueue(ctx context.Context, registrationID id.RegistrationID, eventID id.EventID, recordedAt time.Time) error {
	if recordedAt.IsZero() {
		recordedAt = time.Now().UTC()
	}

	result, err := q.db.ExecContext(ctx, `
		INSERT INTO offline_queue (registration_id, event_id, recorded_at, queued_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (registration_id, event_id) DO NOTHING
	`,
		registrationID.String(),
		eventID.String(),
		recordedAt.UTC().Format(time.RFC3339Nano),
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("enqueue check-in: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("enqueue check-in: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("pair already queued: %w", sentinel.ErrConflict)
	}
	return nil
}

// Pending returns up to limit unsynced items in capture order.
func (q *Queue) Pending(ctx context.Context, limit int) ([]Item, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT id, registration_id, event_id, recorded_at, queued_at
		FROM offline_queue
		WHERE synced = 0
		ORDER BY id
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query pending items: %w", err)
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		var (
			item       Item
			regID      string
			evID       string
			recordedAt string
			queuedAt   string
		)
		if err := rows.Scan(&item.ID, &regID, &evID, &recordedAt, &queuedAt); err != nil {
			return nil, fmt.Errorf("scan pending item: %w", err)
		}
		if item.RegistrationID, err = id.ParseRegistrationID(regID); err != nil {
			return nil, fmt.Errorf("corrupt queue row %d: %w", item.ID, err)
		}
		if item.EventID, err = id.ParseEventID(evID); err != nil {
			return nil, fmt.Errorf("corrupt queue row %d: %w", item.ID, err)
		}
		if item.RecordedAt, err = time.Parse(time.RFC3339Nano, recordedAt); err != nil {
			return nil, fmt.Errorf("corrupt queue row %d: %w", item.ID, err)
		}
		if item.QueuedAt, err = time.Parse(time.RFC3339Nano, queuedAt); err != nil {
			return nil, fmt.Errorf("corrupt queue row %d: %w", item.ID, err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pending items: %w", err)
	}
	return items, nil
}

// PendingCount reports how many items await reconciliation.
func (q *Queue) PendingCount(ctx context.Context) (int, error) {
	var count int
	err := q.db.QueryRowContext(ctx, `SELECT count(*) FROM offline_queue WHERE synced = 0`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count pending items: %w", err)
	}
	return count, nil
}

// MarkSynced records the gateway's classification for the given items. Only
// acked items are marked; anything left unmarked is retried next cycle.
func (q *Queue) MarkSynced(ctx context.Context, ids []int64, status string) error {
	if len(ids) == 0 {
		return nil
	}

	tx, err := q.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin mark tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	syncedAt := time.Now().UTC().Format(time.RFC3339Nano)
	for _, itemID := range ids {
		_, err := tx.ExecContext(ctx, `
			UPDATE offline_queue
			SET synced = 1, synced_at = ?, sync_status = ?
			WHERE id = ?
		`, syncedAt, status, itemID)
		if err != nil {
			return fmt.Errorf("mark item %d: %w", itemID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit mark tx: %w", err)
	}
	return nil
}

// PurgeSynced deletes synced rows older than the cutoff and reports how many
// were removed. Keeps the device database from growing unbounded.
func (q *Queue) PurgeSynced(ctx context.Context, olderThan time.Time) (int64, error) {
	result, err := q.db.ExecContext(ctx, `
		DELETE FROM offline_queue
		WHERE synced = 1 AND synced_at < ?
	`, olderThan.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return 0, fmt.Errorf("purge synced items: %w", err)
	}
	purged, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("purge synced items: %w", err)
	}
	return purged, nil
}
