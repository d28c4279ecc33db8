package domain

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "enrollsync/pkg/domain-errors"
)

// TestParseUUID_Invariants validates the parsing invariant:
// "IDs must be valid, non-empty, non-nil UUIDs"
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
		_, err := ParseRegistrationID(uuid.Nil.String())
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("accepts valid UUID", func(t *testing.T) {
		validUUID := uuid.New()
		id, err := ParseRegistrationID(validUUID.String())
		require.NoError(t, err)
		assert.Equal(t, RegistrationID(validUUID), id)
	})
}

// TestTypeDistinction verifies the compiler enforces type safety.
// This is a compile-time check - if this compiles, the invariant holds.
func TestTypeDistinction(t *testing.T) {
	regID := RegistrationID(uuid.New())
	guardianID := GuardianID(uuid.New())

	// These would fail to compile if types were interchangeable:
	// var _ RegistrationID = guardianID   // compile error
	// var _ GuardianID = regID            // compile error

	// Verify they're distinct at runtime too
	assert.NotEqual(t, uuid.UUID(regID), uuid.UUID(guardianID))
}

// TestParseID_TrustBoundary validates parsing rules at trigger-payload
// entry points; hostile input must be rejected before it reaches a store.
func TestParseID_TrustBoundary(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		// Attack vectors
		{"SQL injection attempt", "'; DROP TABLE registrations;--", true},
		{"Path traversal", "../../../etc/passwd", true},
		{"Null byte injection", "550e8400\x00-e29b-41d4-a716-446655440000", true},
		{"Oversized input", strings.Repeat("a", 1000), true},
		{"Unicode zero-width space", "550e8400​-e29b-41d4-a716-446655440000", true},

		// Edge cases
		{"Empty string", "", true},
		{"Nil UUID", uuid.Nil.String(), true},
		{"Whitespace only", "   ", true},
		{"Uppercase valid UUID", "550E8400-E29B-41D4-A716-446655440000", false},

		// Valid
		{"Valid UUID lowercase", "550e8400-e29b-41d4-a716-446655440000", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseRegistrationID(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
			} else {
				require.NoError(t, err)
			}
		})
	}
}

// TestAllIDTypes_ConsistentBehavior ensures all ID types share identical
// parsing behavior; they wrap one parser and must stay that way.
func TestAllIDTypes_ConsistentBehavior(t *testing.T) {
	validUUID := uuid.New().String()
	invalidInputs := []string{"", "invalid", uuid.Nil.String()}

	t.Run("all accept valid UUID", func(t *testing.T) {
		_, errReg := ParseRegistrationID(validUUID)
		_, errOrg := ParseOrgID(validUUID)
		_, errGuardian := ParseGuardianID(validUUID)
		_, errStudent := ParseStudentID(validUUID)
		_, errClass := ParseClassID(validUUID)

		require.NoError(t, errReg)
		require.NoError(t, errOrg)
		require.NoError(t, errGuardian)
		require.NoError(t, errStudent)
		require.NoError(t, errClass)
	})

	for _, input := range invalidInputs {
		t.Run("all reject: "+input, func(t *testing.T) {
			_, errReg := ParseRegistrationID(input)
			_, errOrg := ParseOrgID(input)
			_, errGuardian := ParseGuardianID(input)
			_, errStudent := ParseStudentID(input)
			_, errClass := ParseClassID(input)

			require.Error(t, errReg)
			require.Error(t, errOrg)
			require.Error(t, errGuardian)
			require.Error(t, errStudent)
			require.Error(t, errClass)
		})
	}
}

func TestIsNil(t *testing.T) {
	assert.True(t, RegistrationID{}.IsNil())
	assert.False(t, NewRegistrationID().IsNil())
	assert.True(t, GuardianID(uuid.Nil).IsNil())
}
