package attendance

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"presence/internal/checkin/models"
	id "presence/pkg/domain"
	"presence/pkg/platform/sentinel"
)

// uniqueViolation is the postgres error code raised when the
// (registration_id, event_id) unique constraint rejects a write.
const uniqueViolation = "23505"

// PostgresStore persists attendance records. The unique index on
// (registration_id, event_id) is the sole serialization point for concurrent
// check-ins; this store performs no read-then-write checks.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Record(ctx context.Context, rec models.AttendanceRecord) (models.AttendanceRecord, error) {
	query := `
		INSERT INTO attendance (id, registration_id, event_id, recorded_at, origin, operator_id)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	var operatorID *uuid.UUID
	if rec.OperatorID != nil {
		op := uuid.UUID(*rec.OperatorID)
		operatorID = &op
	}

	_, err := s.db.ExecContext(ctx, query,
		rec.ID,
		uuid.UUID(rec.RegistrationID),
		uuid.UUID(rec.EventID),
		rec.RecordedAt,
		string(rec.Origin),
		operatorID,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return models.AttendanceRecord{}, fmt.Errorf("attendance for %s/%s: %w",
				rec.RegistrationID, rec.EventID, sentinel.ErrConflict)
		}
		return models.AttendanceRecord{}, fmt.Errorf("insert attendance: %w", err)
	}
	return rec, nil
}

func (s *PostgresStore) Exists(ctx context.Context, registrationID id.RegistrationID, eventID id.EventID) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM attendance WHERE registration_id = $1 AND event_id = $2
		)
	`
	var exists bool
	err := s.db.QueryRowContext(ctx, query, uuid.UUID(registrationID), uuid.UUID(eventID)).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check attendance exists: %w", err)
	}
	return exists, nil
}

func (s *PostgresStore) Find(ctx context.Context, registrationID id.RegistrationID, eventID id.EventID) (models.AttendanceRecord, error) {
	query := `
		SELECT id, registration_id, event_id, recorded_at, origin, operator_id
		FROM attendance
		WHERE registration_id = $1 AND event_id = $2
	`
	return s.scanOne(s.db.QueryRowContext(ctx, query, uuid.UUID(registrationID), uuid.UUID(eventID)))
}

func (s *PostgresStore) FindByRegistration(ctx context.Context, registrationID id.RegistrationID) (models.AttendanceRecord, error) {
	query := `
		SELECT id, registration_id, event_id, recorded_at, origin, operator_id
		FROM attendance
		WHERE registration_id = $1
		ORDER BY recorded_at
		LIMIT 1
	`
	return s.scanOne(s.db.QueryRowContext(ctx, query, uuid.UUID(registrationID)))
}

func (s *PostgresStore) ListByEvent(ctx context.Context, eventID id.EventID) ([]models.AttendanceRecord, error) {
	query := `
		SELECT id, registration_id, event_id, recorded_at, origin, operator_id
		FROM attendance
		WHERE event_id = $1
		ORDER BY recorded_at
	`
	rows, err := s.db.QueryContext(ctx, query, uuid.UUID(eventID))
	if err != nil {
		return nil, fmt.Errorf("query attendance by event: %w", err)
	}
	defer rows.Close()

	var records []models.AttendanceRecord
	for rows.Next() {
		rec, err := scanRecord(rows.Scan)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate attendance rows: %w", err)
	}
	return records, nil
}

func (s *PostgresStore) scanOne(row *sql.Row) (models.AttendanceRecord, error) {
	rec, err := scanRecord(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return models.AttendanceRecord{}, sentinel.ErrNotFound
	}
	return rec, err
}

func scanRecord(scan func(...any) error) (models.AttendanceRecord, error) {
	var (
		rec            models.AttendanceRecord
		registrationID uuid.UUID
		eventID        uuid.UUID
		origin         string
		operatorID     *uuid.UUID
	)
	err := scan(&rec.ID, &registrationID, &eventID, &rec.RecordedAt, &origin, &operatorID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.AttendanceRecord{}, err
		}
		return models.AttendanceRecord{}, fmt.Errorf("scan attendance record: %w", err)
	}

	rec.RegistrationID = id.RegistrationID(registrationID)
	rec.EventID = id.EventID(eventID)
	rec.Origin = models.Origin(origin)
	if operatorID != nil {
		op := id.OperatorID(*operatorID)
		rec.OperatorID = &op
	}
	return rec, nil
}
