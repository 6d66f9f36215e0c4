// Package roster caches downloaded attendance rosters on the device so
// attendants can verify registrations while the gateway is unreachable.
package roster

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"presence/internal/offline/client"
	id "presence/pkg/domain"
	"presence/pkg/platform/sentinel"
)

//go:embed schema.sql
var schemaSQL string

// Snapshot is a cached roster together with when it was fetched.
type Snapshot struct {
	Roster    client.Roster
	FetchedAt time.Time
}

// Store persists one roster snapshot per event.
type Store struct {
	db *sql.DB
}

// Open creates or opens the roster cache at the given path. Safe to call
// repeatedly; the schema is applied idempotently.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open roster cache: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect roster cache: %w", err)
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
		return nil, fmt.Errorf("apply roster cache schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Save stores the roster for its event, replacing any earlier snapshot.
func (s *Store) Save(ctx context.Context, roster client.Roster) error {
	payload, err := json.Marshal(roster)
	if err != nil {
		return fmt.Errorf("encode roster: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO roster_cache (event_id, payload, fetched_at)
		VALUES (?, ?, ?)
		ON CONFLICT (event_id) DO UPDATE SET payload = excluded.payload, fetched_at = excluded.fetched_at
	`,
		roster.EventID,
		string(payload),
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("save roster: %w", err)
	}
	return nil
}

// Load returns the cached roster for the event, or sentinel.ErrNotFound when
// no snapshot exists.
func (s *Store) Load(ctx context.Context, eventID id.EventID) (Snapshot, error) {
	var (
		payload   string
		fetchedAt string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT payload, fetched_at FROM roster_cache WHERE event_id = ?
	`, eventID.String()).Scan(&payload, &fetchedAt)
	if err == sql.ErrNoRows {
		return Snapshot{}, fmt.Errorf("roster for event %s: %w", eventID, sentinel.ErrNotFound)
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("load roster: %w", err)
	}

	var snapshot Snapshot
	if err := json.Unmarshal([]byte(payload), &snapshot.Roster); err != nil {
		return Snapshot{}, fmt.Errorf("corrupt roster snapshot for event %s: %w", eventID, err)
	}
	if snapshot.FetchedAt, err = time.Parse(time.RFC3339Nano, fetchedAt); err != nil {
		return Snapshot{}, fmt.Errorf("corrupt roster snapshot for event %s: %w", eventID, err)
	}
	return snapshot, nil
}

// Downloader fetches the current roster from the gateway.
type Downloader interface {
	DownloadRoster(ctx context.Context, eventID id.EventID) (client.Roster, error)
}

// Refresh downloads the current roster through the gateway client and stores
// it, returning the fresh snapshot.
func (s *Store) Refresh(ctx context.Context, gateway Downloader, eventID id.EventID) (Snapshot, error) {
	roster, err := gateway.DownloadRoster(ctx, eventID)
	if err != nil {
		return Snapshot{}, err
	}
	if err := s.Save(ctx, roster); err != nil {
		return Snapshot{}, err
	}
	return Snapshot{Roster: roster, FetchedAt: time.Now().UTC()}, nil
}
