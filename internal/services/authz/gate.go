package authz

import (
	"context"
	"errors"

	"github.com/TheGitHubist/MaskerBot/internal/model"
	"github.com/TheGitHubist/MaskerBot/internal/platform"
	"github.com/TheGitHubist/MaskerBot/internal/services/roleconfig"
)

// Gate decides whether a caller may run a gated operation. Tiers are
// independent requirement sets, not a hierarchy: an admin-gated operation
// checks the caller's live roles against the admin list only, so holding the
// super-admin role does not imply admin access unless that role id is also
// listed there. The guild owner bypasses every gate.
type Gate struct {
	config   *roleconfig.Service
	platform platform.Platform
}

// NewGate creates a new Gate
func NewGate(config *roleconfig.Service, platform platform.Platform) *Gate {
	return &Gate{
		config:   config,
		platform: platform,
	}
}

func (g *Gate) isOwner(ctx context.Context, caller model.MemberID) (bool, error) {
	owner, err := g.platform.GuildOwner(ctx)
	if err != nil {
		return false, errors.Join(model.ErrExternal, err)
	}
	return owner == caller, nil
}

func (g *Gate) callerRoles(ctx context.Context, caller model.MemberID) ([]model.RoleID, error) {
	m, err := g.platform.Member(ctx, caller)
	if err != nil {
		if errors.Is(err, platform.ErrNotFound) {
			return nil, model.ErrMemberNotFound
		}
		return nil, errors.Join(model.ErrExternal, err)
	}
	return m.Roles, nil
}

// RequireTier passes when the caller's live platform roles intersect the
// tier's configured role list, or the caller is the guild owner. An
// unconfigured tier denies everyone but the owner.
func (g *Gate) RequireTier(ctx context.Context, caller model.MemberID, tier model.Tier) error {
	if owner, err := g.isOwner(ctx, caller); err != nil {
		return err
	} else if owner {
		return nil
	}

	cfg, err := g.config.Get(ctx)
	if err != nil {
		return err
	}
	roles, err := g.callerRoles(ctx, caller)
	if err != nil {
		return err
	}
	if !model.Intersects(roles, cfg.TierRoleIDs(tier)) {
		return model.ErrPermissionDenied
	}
	return nil
}

// RequireCommunity is the floor under every command except helpDisplay and
// the role bootstrap: the caller must hold at least one configured tier role.
func (g *Gate) RequireCommunity(ctx context.Context, caller model.MemberID) error {
	if owner, err := g.isOwner(ctx, caller); err != nil {
		return err
	} else if owner {
		return nil
	}

	cfg, err := g.config.Get(ctx)
	if err != nil {
		return err
	}
	roles, err := g.callerRoles(ctx, caller)
	if err != nil {
		return err
	}
	for _, tier := range []model.Tier{model.TierSuperAdmin, model.TierAdmin, model.TierMember} {
		if model.Intersects(roles, cfg.TierRoleIDs(tier)) {
			return nil
		}
	}
	return model.ErrPermissionDenied
}

// RequireSetRole gates the tier-configuration commands. While no super-admin
// role is configured, configuring the super-admin tier is open to anyone;
// that is the bootstrap path for a fresh guild. Every other case requires a
// current super-admin.
func (g *Gate) RequireSetRole(ctx context.Context, caller model.MemberID, tier model.Tier) error {
	cfg, err := g.config.Get(ctx)
	if err != nil {
		return err
	}
	if tier == model.TierSuperAdmin && !cfg.HasSuperAdmin() {
		return nil
	}
	return g.RequireTier(ctx, caller, model.TierSuperAdmin)
}

// RequireTargetNotSuperAdmin refuses staff actions against a target who
// holds the super-admin role.
func (g *Gate) RequireTargetNotSuperAdmin(ctx context.Context, target model.MemberID) error {
	cfg, err := g.config.Get(ctx)
	if err != nil {
		return err
	}
	if !cfg.HasSuperAdmin() {
		return nil
	}
	roles, err := g.callerRoles(ctx, target)
	if err != nil {
		return err
	}
	if model.Intersects(roles, []model.RoleID{cfg.SuperAdminRoleID}) {
		return model.ErrPermissionDenied
	}
	return nil
}
