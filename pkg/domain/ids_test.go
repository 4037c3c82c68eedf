package domain

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "deploygate/pkg/domain-errors"
)

func TestParseUUID_Invariants(t *testing.T) {
	t.Run("rejects empty string", func(t *testing.T) {
		_, err := ParseRecordID("")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	})

	t.Run("rejects invalid format", func(t *testing.T) {
		_, err := ParseUserID("not-a-uuid")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	})

	t.Run("rejects nil UUID", func(t *testing.T) {
		_, err := ParseUserID(uuid.Nil.String())
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	})

	t.Run("accepts valid UUID", func(t *testing.T) {
		valid := uuid.New()
		got, err := ParseRecordID(valid.String())
		require.NoError(t, err)
		assert.Equal(t, RecordID(valid), got)
	})
}

func TestPrincipalIsImmutable(t *testing.T) {
	roles := []string{EntitlementUser}
	p := NewPrincipal("alice", roles...)
	roles[0] = "ROLE_ADMIN"

	assert.True(t, p.HasEntitlement(EntitlementUser))
	assert.False(t, p.HasEntitlement("ROLE_ADMIN"))

	exposed := p.Entitlements()
	exposed[0] = "ROLE_ADMIN"
	assert.True(t, p.HasEntitlement(EntitlementUser))
}

func TestFormatTimestamp(t *testing.T) {
	ts := time.Date(2024, time.March, 5, 14, 7, 9, 0, time.UTC)
	assert.Equal(t, "05/03/2024 02:07:09", FormatTimestamp(ts))
	assert.Empty(t, FormatTimestamp(time.Time{}))
}
