package domain

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "presence/pkg/domain-errors"
)

// TestParseUUID_Invariants validates the parsing invariant:
// IDs must be valid, non-empty, non-nil UUIDs.
func TestParseUUID_Invariants(t *testing.T) {
	t.Run("rejects empty string", func(t *testing.T) {
		_, err := ParseRegistrationID("")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("rejects invalid format", func(t *testing.T) {
		_, err := ParseRegistrationID("not-a-uuid")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("rejects nil UUID", func(t *testing.T) {
		_, err := ParseEventID(uuid.Nil.String())
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("accepts valid UUID", func(t *testing.T) {
		validUUID := uuid.New()
		parsed, err := ParseRegistrationID(validUUID.String())
		require.NoError(t, err)
		assert.Equal(t, RegistrationID(validUUID), parsed)
	})

	t.Run("operator id round-trips", func(t *testing.T) {
		validUUID := uuid.New()
		parsed, err := ParseOperatorID(validUUID.String())
		require.NoError(t, err)
		assert.Equal(t, validUUID.String(), parsed.String())
		assert.False(t, parsed.IsNil())
	})
}

// TestTypeDistinction verifies the compiler enforces type safety.
func TestTypeDistinction(t *testing.T) {
	registrationID := RegistrationID(uuid.New())
	eventID := EventID(uuid.New())

	// These would fail to compile if types were interchangeable:
	// var _ RegistrationID = eventID // compile error
	// var _ EventID = registrationID // compile error

	assert.NotEqual(t, uuid.UUID(registrationID), uuid.UUID(eventID))
}
