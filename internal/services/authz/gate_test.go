package authz

import (
	"context"
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/TheGitHubist/MaskerBot/internal/model"
	"github.com/TheGitHubist/MaskerBot/internal/platform/platformtest"
	"github.com/TheGitHubist/MaskerBot/internal/services/roleconfig"
	"github.com/TheGitHubist/MaskerBot/internal/storage/memory"
)

type GateSuite struct {
	suite.Suite
	config   *roleconfig.Service
	platform *platformtest.Fake
	gate     *Gate
	ctx      context.Context
}

func TestGateSuite(t *testing.T) {
	suite.Run(t, new(GateSuite))
}

func (s *GateSuite) SetupTest() {
	s.config = roleconfig.NewService(memory.New())
	s.platform = platformtest.New()
	s.platform.OwnerID = "owner"
	s.gate = NewGate(s.config, s.platform)
	s.ctx = context.Background()

	s.platform.AddMember("owner", "Owner")
	s.platform.AddMember("boss", "Boss", "r-super")
	s.platform.AddMember("staff", "Staff", "r-admin")
	s.platform.AddMember("regular", "Regular", "r-member")
	s.platform.AddMember("outsider", "Outsider", "r-unrelated")
}

func (s *GateSuite) configureTiers() {
	_, err := s.config.SetTier(s.ctx, model.TierSuperAdmin, []model.RoleID{"r-super"})
	s.Require().NoError(err)
	_, err = s.config.SetTier(s.ctx, model.TierAdmin, []model.RoleID{"r-admin"})
	s.Require().NoError(err)
	_, err = s.config.SetTier(s.ctx, model.TierMember, []model.RoleID{"r-member"})
	s.Require().NoError(err)
}

// RequireTier tests

func (s *GateSuite) TestTierMembershipPasses() {
	s.configureTiers()
	s.NoError(s.gate.RequireTier(s.ctx, "staff", model.TierAdmin))
	s.NoError(s.gate.RequireTier(s.ctx, "regular", model.TierMember))
}

func (s *GateSuite) TestTiersAreNotHierarchical() {
	s.configureTiers()

	// super-admin alone does not satisfy an admin or member gate
	s.ErrorIs(s.gate.RequireTier(s.ctx, "boss", model.TierAdmin), model.ErrPermissionDenied)
	s.ErrorIs(s.gate.RequireTier(s.ctx, "boss", model.TierMember), model.ErrPermissionDenied)

	// and an admin does not satisfy the super-admin gate
	s.ErrorIs(s.gate.RequireTier(s.ctx, "staff", model.TierSuperAdmin), model.ErrPermissionDenied)
}

func (s *GateSuite) TestOwnerBypassesEveryGate() {
	s.configureTiers()
	s.NoError(s.gate.RequireTier(s.ctx, "owner", model.TierSuperAdmin))
	s.NoError(s.gate.RequireTier(s.ctx, "owner", model.TierAdmin))
	s.NoError(s.gate.RequireCommunity(s.ctx, "owner"))
}

func (s *GateSuite) TestUnconfiguredTierDeniesNonOwner() {
	s.ErrorIs(s.gate.RequireTier(s.ctx, "staff", model.TierAdmin), model.ErrPermissionDenied)
}

func (s *GateSuite) TestUnknownCallerIsMemberNotFound() {
	s.configureTiers()
	s.ErrorIs(s.gate.RequireTier(s.ctx, "ghost", model.TierAdmin), model.ErrMemberNotFound)
}

// RequireCommunity tests

func (s *GateSuite) TestCommunityFloor() {
	s.configureTiers()
	s.NoError(s.gate.RequireCommunity(s.ctx, "boss"))
	s.NoError(s.gate.RequireCommunity(s.ctx, "staff"))
	s.NoError(s.gate.RequireCommunity(s.ctx, "regular"))
	s.ErrorIs(s.gate.RequireCommunity(s.ctx, "outsider"), model.ErrPermissionDenied)
}

// RequireSetRole tests

func (s *GateSuite) TestBootstrapOpenWhileSuperAdminUnset() {
	// anyone may configure the super-admin tier on a fresh guild
	s.NoError(s.gate.RequireSetRole(s.ctx, "outsider", model.TierSuperAdmin))
}

func (s *GateSuite) TestBootstrapClosesOnceConfigured() {
	s.configureTiers()
	s.ErrorIs(s.gate.RequireSetRole(s.ctx, "outsider", model.TierSuperAdmin), model.ErrPermissionDenied)
	s.ErrorIs(s.gate.RequireSetRole(s.ctx, "staff", model.TierSuperAdmin), model.ErrPermissionDenied)
	s.NoError(s.gate.RequireSetRole(s.ctx, "boss", model.TierSuperAdmin))
}

func (s *GateSuite) TestOtherTiersNeverBootstrap() {
	// admin tier configuration requires a super-admin even on a fresh guild
	s.ErrorIs(s.gate.RequireSetRole(s.ctx, "outsider", model.TierAdmin), model.ErrPermissionDenied)
	s.NoError(s.gate.RequireSetRole(s.ctx, "owner", model.TierAdmin))
}

// RequireTargetNotSuperAdmin tests

func (s *GateSuite) TestSuperAdminTargetIsProtected() {
	s.configureTiers()
	s.ErrorIs(s.gate.RequireTargetNotSuperAdmin(s.ctx, "boss"), model.ErrPermissionDenied)
	s.NoError(s.gate.RequireTargetNotSuperAdmin(s.ctx, "staff"))
}

func (s *GateSuite) TestTargetProtectionInertWhileUnconfigured() {
	s.NoError(s.gate.RequireTargetNotSuperAdmin(s.ctx, "boss"))
}
