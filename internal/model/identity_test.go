package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIdentityUnmarshalsLegacyBareString(t *testing.T) {
	var id Identity
	require.NoError(t, json.Unmarshal([]byte(`"ABCDEF123456"`), &id))

	assert.True(t, id.IsLegacy())
	assert.Equal(t, PseudonymID("ABCDEF123456"), id.Legacy)
	assert.Equal(t, []PseudonymID{"ABCDEF123456"}, id.Pseudonyms())
}

func TestIdentityUnmarshalsStructuredRecord(t *testing.T) {
	payload := `{
		"display_name": "Alice",
		"user_id": "USERAAAABBBB",
		"role": "admin",
		"admin_id": "ADMINAAABBBB",
		"role_history": [{"role": "admin", "timestamp": "2024-01-01T12:00:00Z"}]
	}`

	var id Identity
	require.NoError(t, json.Unmarshal([]byte(payload), &id))

	require.False(t, id.IsLegacy())
	assert.Equal(t, PseudonymID("USERAAAABBBB"), id.Record.UserID)
	require.NotNil(t, id.Record.AdminID)
	assert.Equal(t, PseudonymID("ADMINAAABBBB"), *id.Record.AdminID)
	assert.ElementsMatch(t, []PseudonymID{"USERAAAABBBB", "ADMINAAABBBB"}, id.Pseudonyms())
}

func TestIdentityMarshalsLegacyAsBareString(t *testing.T) {
	data, err := json.Marshal(Identity{Legacy: "ABCDEF123456"})
	require.NoError(t, err)
	assert.JSONEq(t, `"ABCDEF123456"`, string(data))
}

func TestIdentityMarshalRoundTrip(t *testing.T) {
	admin := PseudonymID("ADMINAAABBBB")
	id := Identity{
		Record: &IdentityRecord{
			DisplayName: "Alice",
			UserID:      "USERAAAABBBB",
			Role:        RoleAdmin,
			AdminID:     &admin,
			RoleHistory: []RoleEvent{{Role: RoleAdmin, Timestamp: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}},
		},
	}

	data, err := json.Marshal(id)
	require.NoError(t, err)

	var decoded Identity
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.False(t, decoded.IsLegacy())
	assert.Equal(t, id.Record.UserID, decoded.Record.UserID)
	assert.Equal(t, id.Record.RoleHistory, decoded.Record.RoleHistory)
}

func TestIdentityCloneDoesNotAlias(t *testing.T) {
	admin := PseudonymID("ADMINAAABBBB")
	id := &Identity{
		MemberID: "m1",
		Record: &IdentityRecord{
			MemberID:    "m1",
			UserID:      "USERAAAABBBB",
			Role:        RoleAdmin,
			AdminID:     &admin,
			RoleHistory: []RoleEvent{{Role: RoleAdmin, Timestamp: time.Now()}},
		},
	}

	clone := id.Clone()
	clone.Record.Role = RoleUser
	*clone.Record.AdminID = "CHANGED00000"
	clone.Record.RoleHistory[0].Role = RoleUser

	assert.Equal(t, RoleAdmin, id.Record.Role)
	assert.Equal(t, PseudonymID("ADMINAAABBBB"), *id.Record.AdminID)
	assert.Equal(t, RoleAdmin, id.Record.RoleHistory[0].Role)
}

func TestEarliestRoleTimestamp(t *testing.T) {
	early := time.Date(2023, 5, 1, 0, 0, 0, 0, time.UTC)
	late := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	rec := &IdentityRecord{
		RoleHistory: []RoleEvent{
			{Role: RoleMember, Timestamp: late},
			{Role: RoleAdmin, Timestamp: late},
			{Role: RoleMember, Timestamp: early},
		},
	}

	ts, ok := rec.EarliestRoleTimestamp(RoleMember)
	require.True(t, ok)
	assert.Equal(t, early, ts)

	_, ok = rec.EarliestRoleTimestamp(RoleUser)
	assert.False(t, ok)
}

func TestRoleValid(t *testing.T) {
	assert.True(t, RoleUser.Valid())
	assert.True(t, RoleMember.Valid())
	assert.True(t, RoleAdmin.Valid())
	assert.False(t, Role("owner").Valid())
}

func TestRateLimitedErrorIs(t *testing.T) {
	err := &RateLimitedError{DaysLeft: 3}
	assert.ErrorIs(t, err, ErrRateLimited)
	assert.NotErrorIs(t, err, ErrPermissionDenied)
}
