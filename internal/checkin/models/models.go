// Package models defines the attendance domain types owned by the presence
// service.
package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	id "presence/pkg/domain"
)

// Origin is the channel through which a check-in was captured.
type Origin string

const (
	OriginOnline  Origin = "online"
	OriginOffline Origin = "offline"
	OriginQRCode  Origin = "qrcode"
)

// Valid reports whether the origin is one of the known channels.
func (o Origin) Valid() bool {
	switch o {
	case OriginOnline, OriginOffline, OriginQRCode:
		return true
	}
	return false
}

// AttendanceRecord is the durable record of one successful check-in.
// Created exactly once per (registration, event); never updated or deleted.
type AttendanceRecord struct {
	ID             uuid.UUID
	RegistrationID id.RegistrationID
	EventID        id.EventID
	RecordedAt     time.Time
	Origin         Origin
	// OperatorID is nil for self check-in.
	OperatorID *id.OperatorID
}

// Action classifies an audit entry.
type Action string

const (
	ActionAttempt     Action = "attempt"
	ActionSuccess     Action = "success"
	ActionFailure     Action = "failure"
	ActionOfflineSync Action = "offline_sync"
)

// AuditEntry records one check-in attempt, regardless of outcome.
// Append-only; retained indefinitely.
type AuditEntry struct {
	ID             uuid.UUID
	RegistrationID id.RegistrationID
	EventID        id.EventID
	Action         Action
	Origin         Origin
	// RawPayload is an opaque snapshot of the request that triggered the entry.
	RawPayload    json.RawMessage
	FailureReason string
	OperatorID    *id.OperatorID
	SourceAddress string
	OccurredAt    time.Time
}

// CheckinInput is a validated check-in request as seen by the service layer.
type CheckinInput struct {
	RegistrationID id.RegistrationID
	EventID        id.EventID
	// RecordedAt is client-supplied for offline capture; zero means "now".
	RecordedAt time.Time
	Origin     Origin
	// RawPayload is carried through to audit entries untouched.
	RawPayload json.RawMessage
}

// CheckinStatus classifies the outcome of one check-in attempt.
type CheckinStatus string

const (
	StatusAccepted  CheckinStatus = "accepted"
	StatusDuplicate CheckinStatus = "duplicate"
	StatusRejected  CheckinStatus = "rejected"
)

// CheckinResult is the classified outcome returned to the transport layer.
type CheckinResult struct {
	Status CheckinStatus
	Reason string
	// Record is the created record on accept, or the pre-existing record on
	// duplicate when it could be loaded.
	Record *AttendanceRecord
}

// SyncItem is one queued offline check-in submitted for reconciliation.
type SyncItem struct {
	RegistrationID id.RegistrationID
	EventID        id.EventID
	RecordedAt     time.Time
	RawPayload     json.RawMessage
}

// SyncItemResult classifies one reconciled item.
type SyncItemResult struct {
	RegistrationID id.RegistrationID
	EventID        id.EventID
	Status         CheckinStatus
	Reason         string
}

// SyncReport aggregates a reconciliation batch.
type SyncReport struct {
	Total     int
	Accepted  int
	Duplicate int
	Failed    int
	Results   []SyncItemResult
}

// RosterEntry is one registration on an event's attendance roster.
type RosterEntry struct {
	RegistrationID id.RegistrationID
	ParticipantID  string
	Name           string
	Email          string
	Status         string
	HasAttendance  bool
	RegisteredAt   time.Time
}

// Roster is the attendance roster for an event, used to seed offline clients.
type Roster struct {
	EventID            id.EventID
	EventName          string
	StartsAt           time.Time
	EndsAt             time.Time
	Entries            []RosterEntry
	TotalRegistrations int
	TotalCheckedIn     int
}
