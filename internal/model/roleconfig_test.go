package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseTier(t *testing.T) {
	for _, input := range []string{"superAdmin", "superadmin", "SuperAdmin"} {
		tier, ok := ParseTier(input)
		assert.True(t, ok)
		assert.Equal(t, TierSuperAdmin, tier)
	}

	tier, ok := ParseTier("admin")
	assert.True(t, ok)
	assert.Equal(t, TierAdmin, tier)

	tier, ok = ParseTier("member")
	assert.True(t, ok)
	assert.Equal(t, TierMember, tier)

	_, ok = ParseTier("Admin")
	assert.False(t, ok)
	_, ok = ParseTier("moderator")
	assert.False(t, ok)
}

func TestTierRoleIDs(t *testing.T) {
	cfg := &RoleConfig{
		SuperAdminRoleID: "r-super",
		AdminRoleIDs:     []RoleID{"r-admin-1", "r-admin-2"},
		MemberRoleIDs:    []RoleID{"r-member"},
	}

	assert.Equal(t, []RoleID{"r-super"}, cfg.TierRoleIDs(TierSuperAdmin))
	assert.Equal(t, []RoleID{"r-admin-1", "r-admin-2"}, cfg.TierRoleIDs(TierAdmin))
	assert.Equal(t, []RoleID{"r-member"}, cfg.TierRoleIDs(TierMember))

	empty := &RoleConfig{}
	assert.Nil(t, empty.TierRoleIDs(TierSuperAdmin))
}

func TestIntersects(t *testing.T) {
	roles := []RoleID{"a", "b"}
	assert.True(t, Intersects(roles, []RoleID{"b", "c"}))
	assert.False(t, Intersects(roles, []RoleID{"c", "d"}))
	assert.False(t, Intersects(nil, roles))
	assert.False(t, Intersects(roles, nil))
}

func TestRoleConfigCloneDoesNotAlias(t *testing.T) {
	cfg := &RoleConfig{
		SuperAdminRoleID: "r-super",
		AdminRoleIDs:     []RoleID{"r-admin"},
	}

	clone := cfg.Clone()
	clone.AdminRoleIDs[0] = "changed"
	clone.SuperAdminRoleID = "changed"

	assert.Equal(t, RoleID("r-admin"), cfg.AdminRoleIDs[0])
	assert.Equal(t, RoleID("r-super"), cfg.SuperAdminRoleID)
}
