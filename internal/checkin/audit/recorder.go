// Package audit provides the append-never-fails recorder wrapped around an
// audit entry store.
//
// Audit must not block business logic: an append failure is swallowed after
// being logged and counted, because the absence of audit writes is an
// operational signal handled by alerting, not by failing check-ins.
package audit

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"presence/internal/checkin/models"
	"presence/pkg/requestcontext"
)

// Store is the append-only persistence contract for audit entries.
type Store interface {
	Append(ctx context.Context, entry models.AuditEntry) error
}

// DropCounter counts audit entries that could not be persisted.
type DropCounter interface {
	Inc()
}

// Recorder writes audit entries for every check-in attempt.
type Recorder struct {
	store   Store
	logger  *slog.Logger
	dropped DropCounter
}

func NewRecorder(store Store, logger *slog.Logger, dropped DropCounter) *Recorder {
	return &Recorder{store: store, logger: logger, dropped: dropped}
}

// Record appends an audit entry. It never returns an error; persistence
// failures are logged at Error and counted.
func (r *Recorder) Record(ctx context.Context, input models.CheckinInput, action models.Action, failureReason string) {
	entry := models.AuditEntry{
		ID:             uuid.New(),
		RegistrationID: input.RegistrationID,
		EventID:        input.EventID,
		Action:         action,
		Origin:         input.Origin,
		RawPayload:     input.RawPayload,
		FailureReason:  failureReason,
		SourceAddress:  requestcontext.ClientIP(ctx),
		OccurredAt:     time.Now().UTC(),
	}
	if operatorID := requestcontext.OperatorID(ctx); !operatorID.IsNil() {
		entry.OperatorID = &operatorID
	}
	if entry.RawPayload == nil {
		entry.RawPayload = rawFallback(input)
	}

	if err := r.store.Append(ctx, entry); err != nil {
		r.dropped.Inc()
		r.logger.ErrorContext(ctx, "audit entry dropped",
			"error", err,
			"registration_id", entry.RegistrationID.String(),
			"event_id", entry.EventID.String(),
			"action", string(entry.Action),
			"request_id", requestcontext.RequestID(ctx),
		)
		return
	}

	r.logger.InfoContext(ctx, "checkin audit",
		"registration_id", entry.RegistrationID.String(),
		"event_id", entry.EventID.String(),
		"action", string(entry.Action),
		"origin", string(entry.Origin),
		"failure_reason", entry.FailureReason,
		"request_id", requestcontext.RequestID(ctx),
		"log_type", "audit",
	)
}

// rawFallback reconstructs a payload snapshot when the transport did not
// supply one (offline sync items arrive pre-parsed).
func rawFallback(input models.CheckinInput) json.RawMessage {
	snapshot := map[string]string{
		"registration_id": input.RegistrationID.String(),
		"event_id":        input.EventID.String(),
		"origin":          string(input.Origin),
	}
	if !input.RecordedAt.IsZero() {
		snapshot["recorded_at"] = input.RecordedAt.Format(time.RFC3339Nano)
	}
	raw, err := json.Marshal(snapshot)
	if err != nil {
		return nil
	}
	return raw
}
