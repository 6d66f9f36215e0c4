package auditlog

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"presence/internal/checkin/models"
	id "presence/pkg/domain"
)

// PostgresStore persists audit entries using the transactional outbox
// pattern: each entry is written to checkin_audit and mirrored into
// checkin_audit_outbox in the same transaction. The outbox relay publishes
// rows to Kafka and deletes them.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// outboxPayload is the JSON structure published to Kafka.
type outboxPayload struct {
	ID             string `json:"id"`
	RegistrationID string `json:"registration_id"`
	EventID        string `json:"event_id"`
	Action         string `json:"action"`
	Origin         string `json:"origin"`
	FailureReason  string `json:"failure_reason,omitempty"`
	OperatorID     string `json:"operator_id,omitempty"`
	SourceAddress  string `json:"source_address,omitempty"`
	OccurredAt     string `json:"occurred_at"`
}

func (s *PostgresStore) Append(ctx context.Context, entry models.AuditEntry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin audit tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var operatorID *uuid.UUID
	if entry.OperatorID != nil {
		op := uuid.UUID(*entry.OperatorID)
		operatorID = &op
	}

	rawPayload := entry.RawPayload
	if rawPayload == nil {
		rawPayload = json.RawMessage("null")
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO checkin_audit (
			id, registration_id, event_id, action, origin,
			raw_payload, failure_reason, operator_id, source_address, occurred_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`,
		entry.ID,
		uuid.UUID(entry.RegistrationID),
		uuid.UUID(entry.EventID),
		string(entry.Action),
		string(entry.Origin),
		[]byte(rawPayload),
		nullString(entry.FailureReason),
		operatorID,
		nullString(entry.SourceAddress),
		entry.OccurredAt,
	)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}

	payload := outboxPayload{
		ID:             entry.ID.String(),
		RegistrationID: entry.RegistrationID.String(),
		EventID:        entry.EventID.String(),
		Action:         string(entry.Action),
		Origin:         string(entry.Origin),
		FailureReason:  entry.FailureReason,
		SourceAddress:  entry.SourceAddress,
		OccurredAt:     entry.OccurredAt.Format(time.RFC3339Nano),
	}
	if entry.OperatorID != nil {
		payload.OperatorID = entry.OperatorID.String()
	}

	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal outbox payload: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO checkin_audit_outbox (id, aggregate_type, aggregate_id, event_type, payload)
		VALUES ($1, $2, $3, $4, $5)
	`,
		uuid.New(),
		"registration",
		uuid.UUID(entry.RegistrationID),
		string(entry.Action),
		payloadBytes,
	)
	if err != nil {
		return fmt.Errorf("insert outbox entry: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit audit tx: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListByPair(ctx context.Context, registrationID id.RegistrationID, eventID id.EventID) ([]models.AuditEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, registration_id, event_id, action, origin,
		       raw_payload, failure_reason, operator_id, source_address, occurred_at
		FROM checkin_audit
		WHERE registration_id = $1 AND event_id = $2
		ORDER BY seq
	`, uuid.UUID(registrationID), uuid.UUID(eventID))
	if err != nil {
		return nil, fmt.Errorf("query audit entries: %w", err)
	}
	defer rows.Close()

	var entries []models.AuditEntry
	for rows.Next() {
		var (
			entry         models.AuditEntry
			regID         uuid.UUID
			evID          uuid.UUID
			action        string
			origin        string
			rawPayload    []byte
			failureReason sql.NullString
			operatorID    *uuid.UUID
			sourceAddress sql.NullString
		)
		err := rows.Scan(&entry.ID, &regID, &evID, &action, &origin,
			&rawPayload, &failureReason, &operatorID, &sourceAddress, &entry.OccurredAt)
		if err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}

		entry.RegistrationID = id.RegistrationID(regID)
		entry.EventID = id.EventID(evID)
		entry.Action = models.Action(action)
		entry.Origin = models.Origin(origin)
		entry.RawPayload = rawPayload
		entry.FailureReason = failureReason.String
		entry.SourceAddress = sourceAddress.String
		if operatorID != nil {
			op := id.OperatorID(*operatorID)
			entry.OperatorID = &op
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit entries: %w", err)
	}
	return entries, nil
}

func nullString(value string) sql.NullString {
	if value == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: value, Valid: true}
}
