package model

// RoleID is a platform role identifier.
type RoleID string

// ChannelID is a platform channel or category identifier.
type ChannelID string

// Tier is one of the configurable staff tiers.
type Tier string

const (
	TierSuperAdmin Tier = "superAdmin"
	TierAdmin      Tier = "admin"
	TierMember     Tier = "member"
)

// ParseTier maps command input to a Tier, case-insensitively on the
// conventional spellings.
func ParseTier(s string) (Tier, bool) {
	switch s {
	case "superAdmin", "superadmin", "SuperAdmin":
		return TierSuperAdmin, true
	case "admin":
		return TierAdmin, true
	case "member":
		return TierMember, true
	}
	return "", false
}

// RoleConfig is the process-wide tier configuration. It is re-read from
// storage before every command, never cached in a global.
type RoleConfig struct {
	// SuperAdminRoleID is empty until the bootstrap setRole superAdmin runs.
	SuperAdminRoleID RoleID   `json:"super_admin_role"`
	AdminRoleIDs     []RoleID `json:"admin_roles"`
	MemberRoleIDs    []RoleID `json:"member_roles"`
	// AllowedCategoryID is the category holding members' private identity
	// channels. The relay never posts into it.
	AllowedCategoryID ChannelID `json:"allowed_category"`
	// WelcomeChannelID receives the greeting when a member joins.
	WelcomeChannelID ChannelID `json:"welcome_channel"`
}

// Clone returns a deep copy.
func (c *RoleConfig) Clone() *RoleConfig {
	if c == nil {
		return nil
	}
	out := *c
	out.AdminRoleIDs = append([]RoleID(nil), c.AdminRoleIDs...)
	out.MemberRoleIDs = append([]RoleID(nil), c.MemberRoleIDs...)
	return &out
}

// HasSuperAdmin reports whether the super-admin role has been configured.
func (c *RoleConfig) HasSuperAdmin() bool {
	return c.SuperAdminRoleID != ""
}

// TierRoleIDs returns the configured role ids for tier.
func (c *RoleConfig) TierRoleIDs(tier Tier) []RoleID {
	switch tier {
	case TierSuperAdmin:
		if c.SuperAdminRoleID == "" {
			return nil
		}
		return []RoleID{c.SuperAdminRoleID}
	case TierAdmin:
		return c.AdminRoleIDs
	case TierMember:
		return c.MemberRoleIDs
	}
	return nil
}

// Intersects reports whether any of the member's live roles appears in ids.
func Intersects(memberRoles []RoleID, ids []RoleID) bool {
	for _, have := range memberRoles {
		for _, want := range ids {
			if have == want {
				return true
			}
		}
	}
	return false
}
