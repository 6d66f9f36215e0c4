package handler

import (
	"encoding/json"
	"time"

	"presence/internal/checkin/models"
	id "presence/pkg/domain"
	dErrors "presence/pkg/domain-errors"
)

// maxSyncItems bounds one reconciliation batch; devices submit the remainder
// on the next cycle.
const maxSyncItems = 500

// CheckinRequest is the wire shape of POST /checkin.
type CheckinRequest struct {
	RegistrationID string     `json:"registration_id"`
	EventID        string     `json:"event_id"`
	Origin         string     `json:"origin"`
	RecordedAt     *time.Time `json:"recorded_at,omitempty"`

	registrationID id.RegistrationID
	eventID        id.EventID
}

// Validate parses and normalizes the request.
// Implements the Validatable interface for httputil.DecodeAndPrepare.
func (r *CheckinRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}

	registrationID, err := id.ParseRegistrationID(r.RegistrationID)
	if err != nil {
		return err
	}
	eventID, err := id.ParseEventID(r.EventID)
	if err != nil {
		return err
	}

	if r.Origin == "" {
		r.Origin = string(models.OriginOnline)
	}
	if !models.Origin(r.Origin).Valid() {
		return dErrors.New(dErrors.CodeBadRequest, "origin must be online, offline or qrcode")
	}

	r.registrationID = registrationID
	r.eventID = eventID
	return nil
}

// ToInput builds the service-layer input, carrying the raw body for audit.
func (r *CheckinRequest) ToInput(raw json.RawMessage) models.CheckinInput {
	input := models.CheckinInput{
		RegistrationID: r.registrationID,
		EventID:        r.eventID,
		Origin:         models.Origin(r.Origin),
		RawPayload:     raw,
	}
	if r.RecordedAt != nil {
		input.RecordedAt = r.RecordedAt.UTC()
	}
	return input
}

// SyncItemRequest is one queued check-in inside an offline-sync batch.
// Items are parsed individually so one malformed entry cannot abort the batch.
type SyncItemRequest struct {
	RegistrationID string     `json:"registration_id"`
	EventID        string     `json:"event_id"`
	RecordedAt     *time.Time `json:"recorded_at,omitempty"`
}

// Parse converts the wire item into a service sync item.
func (r SyncItemRequest) Parse() (models.SyncItem, error) {
	registrationID, err := id.ParseRegistrationID(r.RegistrationID)
	if err != nil {
		return models.SyncItem{}, err
	}
	eventID, err := id.ParseEventID(r.EventID)
	if err != nil {
		return models.SyncItem{}, err
	}

	item := models.SyncItem{RegistrationID: registrationID, EventID: eventID}
	if r.RecordedAt != nil {
		item.RecordedAt = r.RecordedAt.UTC()
	}
	raw, err := json.Marshal(r)
	if err == nil {
		item.RawPayload = raw
	}
	return item, nil
}

// SyncRequest is the wire shape of POST /checkin/offline-sync.
type SyncRequest struct {
	Checkins []SyncItemRequest `json:"checkins"`
}

// Validate checks the batch envelope; item contents are validated per item.
func (r *SyncRequest) Validate() error {
	if r == nil || len(r.Checkins) == 0 {
		return dErrors.New(dErrors.CodeBadRequest, "checkins must not be empty")
	}
	if len(r.Checkins) > maxSyncItems {
		return dErrors.New(dErrors.CodeBadRequest, "batch exceeds the item limit")
	}
	return nil
}
