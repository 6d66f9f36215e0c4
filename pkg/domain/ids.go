// Package domain holds typed identifiers shared across the presence service.
//
// IDs are distinct types over uuid.UUID so a RegistrationID can never be
// passed where an EventID is expected. Parsing enforces the invariant that
// IDs are valid, non-nil UUIDs at trust boundaries.
package domain

import (
	"github.com/google/uuid"

	dErrors "presence/pkg/domain-errors"
)

// RegistrationID identifies a registration owned by the registrations collaborator.
type RegistrationID uuid.UUID

// EventID identifies an event owned by the events collaborator.
type EventID uuid.UUID

// OperatorID identifies the authenticated actor performing a check-in.
type OperatorID uuid.UUID

func parseUUID(s, kind string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, kind+" id is required")
	}
	parsed, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "invalid "+kind+" id")
	}
	if parsed == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, kind+" id must not be nil")
	}
	return parsed, nil
}

// ParseRegistrationID validates and returns a RegistrationID.
func ParseRegistrationID(s string) (RegistrationID, error) {
	parsed, err := parseUUID(s, "registration")
	return RegistrationID(parsed), err
}

// ParseEventID validates and returns an EventID.
func ParseEventID(s string) (EventID, error) {
	parsed, err := parseUUID(s, "event")
	return EventID(parsed), err
}

// ParseOperatorID validates and returns an OperatorID.
func ParseOperatorID(s string) (OperatorID, error) {
	parsed, err := parseUUID(s, "operator")
	return OperatorID(parsed), err
}

func (id RegistrationID) String() string { return uuid.UUID(id).String() }
func (id EventID) String() string        { return uuid.UUID(id).String() }
func (id OperatorID) String() string     { return uuid.UUID(id).String() }

func (id RegistrationID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id EventID) IsNil() bool        { return uuid.UUID(id) == uuid.Nil }
func (id OperatorID) IsNil() bool     { return uuid.UUID(id) == uuid.Nil }
