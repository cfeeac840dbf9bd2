package roleconfig

import (
	"context"

	"github.com/TheGitHubist/MaskerBot/internal/model"
	"github.com/TheGitHubist/MaskerBot/internal/storage"
)

// Service manages the tier-to-platform-role configuration. Callers read a
// fresh config per command; nothing is cached here.
type Service struct {
	storage storage.Storage
}

// NewService creates a new roleconfig Service
func NewService(storage storage.Storage) *Service {
	return &Service{storage: storage}
}

// Get returns the current configuration, zero-valued when never set.
func (s *Service) Get(ctx context.Context) (*model.RoleConfig, error) {
	return s.storage.GetRoleConfig(ctx)
}

// SetTier replaces the role list for a tier. The super-admin tier is a
// single role; passing more than one id there is rejected.
func (s *Service) SetTier(ctx context.Context, tier model.Tier, roles []model.RoleID) (*model.RoleConfig, error) {
	if tier == model.TierSuperAdmin && len(roles) != 1 {
		return nil, model.ErrSuperAdminSingleton
	}
	return s.storage.UpdateRoleConfig(ctx, func(cfg *model.RoleConfig) error {
		switch tier {
		case model.TierSuperAdmin:
			cfg.SuperAdminRoleID = roles[0]
		case model.TierAdmin:
			cfg.AdminRoleIDs = append([]model.RoleID(nil), roles...)
		case model.TierMember:
			cfg.MemberRoleIDs = append([]model.RoleID(nil), roles...)
		default:
			return model.ErrInvalidTier
		}
		return nil
	})
}

// AddToTier appends roles to a tier, skipping ids already present. The
// super-admin tier cannot grow past its single role.
func (s *Service) AddToTier(ctx context.Context, tier model.Tier, roles []model.RoleID) (*model.RoleConfig, error) {
	if tier == model.TierSuperAdmin {
		return nil, model.ErrSuperAdminSingleton
	}
	return s.storage.UpdateRoleConfig(ctx, func(cfg *model.RoleConfig) error {
		var list *[]model.RoleID
		switch tier {
		case model.TierAdmin:
			list = &cfg.AdminRoleIDs
		case model.TierMember:
			list = &cfg.MemberRoleIDs
		default:
			return model.ErrInvalidTier
		}
		for _, r := range roles {
			if !model.Intersects([]model.RoleID{r}, *list) {
				*list = append(*list, r)
			}
		}
		return nil
	})
}

// RemoveFromTier removes roles from a tier. Removing the super-admin role
// clears it, reopening the bootstrap path.
func (s *Service) RemoveFromTier(ctx context.Context, tier model.Tier, roles []model.RoleID) (*model.RoleConfig, error) {
	return s.storage.UpdateRoleConfig(ctx, func(cfg *model.RoleConfig) error {
		switch tier {
		case model.TierSuperAdmin:
			for _, r := range roles {
				if cfg.SuperAdminRoleID == r {
					cfg.SuperAdminRoleID = ""
				}
			}
		case model.TierAdmin:
			cfg.AdminRoleIDs = without(cfg.AdminRoleIDs, roles)
		case model.TierMember:
			cfg.MemberRoleIDs = without(cfg.MemberRoleIDs, roles)
		default:
			return model.ErrInvalidTier
		}
		return nil
	})
}

// SetAllowedCategory records the category holding members' private identity
// channels.
func (s *Service) SetAllowedCategory(ctx context.Context, category model.ChannelID) (*model.RoleConfig, error) {
	return s.storage.UpdateRoleConfig(ctx, func(cfg *model.RoleConfig) error {
		cfg.AllowedCategoryID = category
		return nil
	})
}

// SetWelcomeChannel records the channel greeted members are announced in.
func (s *Service) SetWelcomeChannel(ctx context.Context, channel model.ChannelID) (*model.RoleConfig, error) {
	return s.storage.UpdateRoleConfig(ctx, func(cfg *model.RoleConfig) error {
		cfg.WelcomeChannelID = channel
		return nil
	})
}

func without(list []model.RoleID, remove []model.RoleID) []model.RoleID {
	out := list[:0]
	for _, have := range list {
		keep := true
		for _, r := range remove {
			if have == r {
				keep = false
				break
			}
		}
		if keep {
			out = append(out, have)
		}
	}
	return out
}
