package identity

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/TheGitHubist/MaskerBot/internal/dependencies/mocks"
	"github.com/TheGitHubist/MaskerBot/internal/model"
	"github.com/TheGitHubist/MaskerBot/internal/storage/memory"
)

type ServiceSuite struct {
	suite.Suite
	storage *memory.Storage
	clock   *mocks.MockClock
	random  *mocks.MockRandom
	service *Service
	ctx     context.Context
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.storage = memory.New()
	s.clock = mocks.NewMockClock(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))
	s.random = mocks.NewMockRandom()
	s.service = NewService(s.storage, s.clock, s.random)
	s.ctx = context.Background()
}

// seedLegacy writes a bare-string entry directly, bypassing the service.
func (s *ServiceSuite) seedLegacy(member model.MemberID, pseudonym model.PseudonymID) {
	_, err := s.storage.UpdateIdentity(s.ctx, member,
		func(current *model.Identity, taken model.PseudonymSet) (*model.Identity, error) {
			return &model.Identity{MemberID: member, Legacy: pseudonym}, nil
		})
	s.Require().NoError(err)
}

// GetOrCreate tests

func (s *ServiceSuite) TestGetOrCreateCreatesUser() {
	s.random.QueueID("AAAAAAAAAAAA")

	rec, err := s.service.GetOrCreate(s.ctx, "m1", "Alice", false)
	s.Require().NoError(err)

	s.Equal(model.PseudonymID("AAAAAAAAAAAA"), rec.UserID)
	s.Equal(model.RoleUser, rec.Role)
	s.Nil(rec.AdminID)
	s.Require().Len(rec.RoleHistory, 1)
	s.Equal(model.RoleUser, rec.RoleHistory[0].Role)
	s.Equal(s.clock.Now(), rec.RoleHistory[0].Timestamp)
}

func (s *ServiceSuite) TestGetOrCreateCreatesAdminAtJoin() {
	s.random.QueueID("AAAAAAAAAAAA", "BBBBBBBBBBBB")

	rec, err := s.service.GetOrCreate(s.ctx, "m1", "Alice", true)
	s.Require().NoError(err)

	s.Equal(model.RoleAdmin, rec.Role)
	s.Require().NotNil(rec.AdminID)
	s.Equal(model.PseudonymID("BBBBBBBBBBBB"), *rec.AdminID)
	s.Require().Len(rec.RoleHistory, 1)
	s.Equal(model.RoleAdmin, rec.RoleHistory[0].Role)
}

func (s *ServiceSuite) TestGetOrCreateReturnsExisting() {
	s.random.QueueID("AAAAAAAAAAAA")
	first, err := s.service.GetOrCreate(s.ctx, "m1", "Alice", false)
	s.Require().NoError(err)

	second, err := s.service.GetOrCreate(s.ctx, "m1", "Alice (renamed)", false)
	s.Require().NoError(err)
	s.Equal(first.UserID, second.UserID)
	s.Len(second.RoleHistory, 1)
}

func (s *ServiceSuite) TestGetOrCreateRejectsLegacy() {
	s.seedLegacy("m1", "LegacyLegacy")

	_, err := s.service.GetOrCreate(s.ctx, "m1", "Alice", false)
	s.ErrorIs(err, model.ErrLegacyRecord)
}

func (s *ServiceSuite) TestGetOrCreateRetriesOnCollision() {
	s.random.QueueID("AAAAAAAAAAAA")
	_, err := s.service.GetOrCreate(s.ctx, "m1", "Alice", false)
	s.Require().NoError(err)

	// first draw collides with m1's pseudonym, second succeeds
	s.random.QueueID("AAAAAAAAAAAA", "CCCCCCCCCCCC")
	rec, err := s.service.GetOrCreate(s.ctx, "m2", "Bob", false)
	s.Require().NoError(err)
	s.Equal(model.PseudonymID("CCCCCCCCCCCC"), rec.UserID)
}

// MigrateLegacy tests

func (s *ServiceSuite) TestMigrateLegacyPreservesPseudonym() {
	s.seedLegacy("m1", "LegacyLegacy")

	rec, err := s.service.MigrateLegacy(s.ctx, "m1", "Alice", false)
	s.Require().NoError(err)
	s.Equal(model.PseudonymID("LegacyLegacy"), rec.UserID)
	s.Equal(model.RoleUser, rec.Role)
	s.Len(rec.RoleHistory, 1)
}

func (s *ServiceSuite) TestMigrateLegacyWithAdminHint() {
	s.seedLegacy("m1", "LegacyLegacy")
	s.random.QueueID("BBBBBBBBBBBB")

	rec, err := s.service.MigrateLegacy(s.ctx, "m1", "Alice", true)
	s.Require().NoError(err)
	s.Equal(model.PseudonymID("LegacyLegacy"), rec.UserID)
	s.Equal(model.RoleAdmin, rec.Role)
	s.Require().NotNil(rec.AdminID)
	s.Equal(model.PseudonymID("BBBBBBBBBBBB"), *rec.AdminID)
}

func (s *ServiceSuite) TestMigrateLegacyUnknownMember() {
	_, err := s.service.MigrateLegacy(s.ctx, "nobody", "Alice", false)
	s.ErrorIs(err, model.ErrIdentityNotFound)
}

// Generate tests

func (s *ServiceSuite) TestGenerateCreates() {
	s.random.QueueID("AAAAAAAAAAAA")

	rec, outcome, err := s.service.Generate(s.ctx, "m1", "Alice", false)
	s.Require().NoError(err)
	s.Equal(OutcomeCreated, outcome)
	s.Equal(model.PseudonymID("AAAAAAAAAAAA"), rec.UserID)
}

func (s *ServiceSuite) TestGenerateMigrates() {
	s.seedLegacy("m1", "LegacyLegacy")

	rec, outcome, err := s.service.Generate(s.ctx, "m1", "Alice", false)
	s.Require().NoError(err)
	s.Equal(OutcomeMigrated, outcome)
	s.Equal(model.PseudonymID("LegacyLegacy"), rec.UserID)
}

func (s *ServiceSuite) TestGeneratePromotesToAdmin() {
	s.random.QueueID("AAAAAAAAAAAA")
	_, err := s.service.GetOrCreate(s.ctx, "m1", "Alice", false)
	s.Require().NoError(err)

	s.random.QueueID("BBBBBBBBBBBB")
	rec, outcome, err := s.service.Generate(s.ctx, "m1", "Alice", true)
	s.Require().NoError(err)
	s.Equal(OutcomePromoted, outcome)
	s.Equal(model.RoleAdmin, rec.Role)
	s.Require().NotNil(rec.AdminID)
	s.Equal(model.PseudonymID("BBBBBBBBBBBB"), *rec.AdminID)
	s.Len(rec.RoleHistory, 2)
}

func (s *ServiceSuite) TestGenerateUnchanged() {
	s.random.QueueID("AAAAAAAAAAAA")
	_, err := s.service.GetOrCreate(s.ctx, "m1", "Alice", false)
	s.Require().NoError(err)

	rec, outcome, err := s.service.Generate(s.ctx, "m1", "Alice", false)
	s.Require().NoError(err)
	s.Equal(OutcomeUnchanged, outcome)
	s.Len(rec.RoleHistory, 1)
}

// SetRole tests

func (s *ServiceSuite) TestSetRoleMintsAdminID() {
	s.random.QueueID("AAAAAAAAAAAA")
	_, err := s.service.GetOrCreate(s.ctx, "m1", "Alice", false)
	s.Require().NoError(err)

	s.random.QueueID("BBBBBBBBBBBB")
	s.clock.Advance(time.Hour)
	rec, err := s.service.SetRole(s.ctx, "m1", model.RoleAdmin)
	s.Require().NoError(err)

	s.Equal(model.RoleAdmin, rec.Role)
	s.Require().NotNil(rec.AdminID)
	s.Equal(model.PseudonymID("BBBBBBBBBBBB"), *rec.AdminID)
	s.Require().Len(rec.RoleHistory, 2)
	s.Equal(model.RoleAdmin, rec.RoleHistory[1].Role)
	s.Equal(s.clock.Now(), rec.RoleHistory[1].Timestamp)
}

func (s *ServiceSuite) TestSetRoleLeavingAdminClearsAdminID() {
	s.random.QueueID("AAAAAAAAAAAA", "BBBBBBBBBBBB")
	_, err := s.service.GetOrCreate(s.ctx, "m1", "Alice", true)
	s.Require().NoError(err)

	rec, err := s.service.SetRole(s.ctx, "m1", model.RoleMember)
	s.Require().NoError(err)
	s.Equal(model.RoleMember, rec.Role)
	s.Nil(rec.AdminID)
}

func (s *ServiceSuite) TestSetRoleAppendsHistoryEvenWhenUnchanged() {
	s.random.QueueID("AAAAAAAAAAAA")
	_, err := s.service.GetOrCreate(s.ctx, "m1", "Alice", false)
	s.Require().NoError(err)

	rec, err := s.service.SetRole(s.ctx, "m1", model.RoleUser)
	s.Require().NoError(err)
	s.Equal(model.RoleUser, rec.Role)
	s.Len(rec.RoleHistory, 2)
}

func (s *ServiceSuite) TestSetRoleInvalidRole() {
	_, err := s.service.SetRole(s.ctx, "m1", model.Role("overlord"))
	s.ErrorIs(err, model.ErrInvalidRole)
}

func (s *ServiceSuite) TestSetRoleLegacyRecord() {
	s.seedLegacy("m1", "LegacyLegacy")
	_, err := s.service.SetRole(s.ctx, "m1", model.RoleMember)
	s.ErrorIs(err, model.ErrLegacyRecord)
}

func (s *ServiceSuite) TestSetRoleUnknownMember() {
	_, err := s.service.SetRole(s.ctx, "nobody", model.RoleMember)
	s.ErrorIs(err, model.ErrIdentityNotFound)
}

// Remove tests

func (s *ServiceSuite) TestRemoveReturnsUserPseudonym() {
	s.random.QueueID("AAAAAAAAAAAA")
	_, err := s.service.GetOrCreate(s.ctx, "m1", "Alice", false)
	s.Require().NoError(err)

	pseudonym, err := s.service.Remove(s.ctx, "m1")
	s.Require().NoError(err)
	s.Equal(model.PseudonymID("AAAAAAAAAAAA"), pseudonym)

	_, err = s.service.Get(s.ctx, "m1")
	s.ErrorIs(err, model.ErrIdentityNotFound)
}

func (s *ServiceSuite) TestRemoveLegacyEntry() {
	s.seedLegacy("m1", "LegacyLegacy")

	pseudonym, err := s.service.Remove(s.ctx, "m1")
	s.Require().NoError(err)
	s.Equal(model.PseudonymID("LegacyLegacy"), pseudonym)
}

// RoleTenure tests

func (s *ServiceSuite) TestRoleTenureEarliestTimestampWins() {
	s.random.QueueID("AAAAAAAAAAAA")
	_, err := s.service.GetOrCreate(s.ctx, "m1", "Alice", false)
	s.Require().NoError(err)
	joined := s.clock.Now()

	// user -> member -> user again; the earliest user stamp is the join
	s.clock.Advance(time.Hour)
	_, err = s.service.SetRole(s.ctx, "m1", model.RoleMember)
	s.Require().NoError(err)
	s.clock.Advance(time.Hour)
	_, err = s.service.SetRole(s.ctx, "m1", model.RoleUser)
	s.Require().NoError(err)

	tenures, err := s.service.RoleTenure(s.ctx, model.RoleUser)
	s.Require().NoError(err)
	s.Require().Len(tenures, 1)
	s.Equal(model.PseudonymID("AAAAAAAAAAAA"), tenures[0].Pseudonym)
	s.Equal(joined, tenures[0].Since)
}

func (s *ServiceSuite) TestRoleTenureUsesAdminPseudonymForAdmins() {
	s.random.QueueID("AAAAAAAAAAAA", "BBBBBBBBBBBB")
	_, err := s.service.GetOrCreate(s.ctx, "m1", "Alice", true)
	s.Require().NoError(err)

	tenures, err := s.service.RoleTenure(s.ctx, model.RoleAdmin)
	s.Require().NoError(err)
	s.Require().Len(tenures, 1)
	s.Equal(model.PseudonymID("BBBBBBBBBBBB"), tenures[0].Pseudonym)
}

func (s *ServiceSuite) TestRoleTenureSkipsLegacyEntries() {
	s.seedLegacy("m1", "LegacyLegacy")

	tenures, err := s.service.RoleTenure(s.ctx, model.RoleUser)
	s.Require().NoError(err)
	s.Empty(tenures)
}

// ListAdmins tests

func (s *ServiceSuite) TestListAdmins() {
	s.random.QueueID("AAAAAAAAAAAA", "BBBBBBBBBBBB", "CCCCCCCCCCCC")
	_, err := s.service.GetOrCreate(s.ctx, "m1", "Alice", true)
	s.Require().NoError(err)
	_, err = s.service.GetOrCreate(s.ctx, "m2", "Bob", false)
	s.Require().NoError(err)
	s.seedLegacy("m3", "LegacyLegacy")

	admins, err := s.service.ListAdmins(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(admins, 1)
	s.Equal(model.MemberID("m1"), admins[0].MemberID)
}

// ClaimAdminRequest tests

func (s *ServiceSuite) TestClaimAdminRequestStampsFirstClaim() {
	s.random.QueueID("AAAAAAAAAAAA")
	_, err := s.service.GetOrCreate(s.ctx, "m1", "Alice", false)
	s.Require().NoError(err)

	now := s.clock.Now()
	rec, prev, err := s.service.ClaimAdminRequest(s.ctx, "m1", now, 7)
	s.Require().NoError(err)
	s.Nil(prev)
	s.Require().NotNil(rec.LastAdminRequest)
	s.Equal(now, *rec.LastAdminRequest)
}

func (s *ServiceSuite) TestClaimAdminRequestRejectsInsideWindow() {
	s.random.QueueID("AAAAAAAAAAAA")
	_, err := s.service.GetOrCreate(s.ctx, "m1", "Alice", false)
	s.Require().NoError(err)

	_, _, err = s.service.ClaimAdminRequest(s.ctx, "m1", s.clock.Now(), 7)
	s.Require().NoError(err)

	// three whole days elapsed leaves four days of the window
	later := s.clock.Now().Add(3*24*time.Hour + 5*time.Hour)
	_, _, err = s.service.ClaimAdminRequest(s.ctx, "m1", later, 7)

	var rl *model.RateLimitedError
	s.Require().True(errors.As(err, &rl))
	s.Equal(4, rl.DaysLeft)
}

func (s *ServiceSuite) TestClaimAdminRequestExpiredWindowReturnsPreviousStamp() {
	s.random.QueueID("AAAAAAAAAAAA")
	_, err := s.service.GetOrCreate(s.ctx, "m1", "Alice", false)
	s.Require().NoError(err)

	first := s.clock.Now()
	_, _, err = s.service.ClaimAdminRequest(s.ctx, "m1", first, 7)
	s.Require().NoError(err)

	second := first.Add(7 * 24 * time.Hour)
	rec, prev, err := s.service.ClaimAdminRequest(s.ctx, "m1", second, 7)
	s.Require().NoError(err)
	s.Require().NotNil(prev)
	s.Equal(first, *prev)
	s.Equal(second, *rec.LastAdminRequest)
}

func (s *ServiceSuite) TestReleaseAdminRequestRestoresPreviousStamp() {
	s.random.QueueID("AAAAAAAAAAAA")
	_, err := s.service.GetOrCreate(s.ctx, "m1", "Alice", false)
	s.Require().NoError(err)

	_, prev, err := s.service.ClaimAdminRequest(s.ctx, "m1", s.clock.Now(), 7)
	s.Require().NoError(err)

	s.Require().NoError(s.service.ReleaseAdminRequest(s.ctx, "m1", prev))

	rec, err := s.service.Get(s.ctx, "m1")
	s.Require().NoError(err)
	s.Nil(rec.LastAdminRequest)
}

func (s *ServiceSuite) TestConcurrentClaimsAcceptOne() {
	s.random.QueueID("AAAAAAAAAAAA")
	_, err := s.service.GetOrCreate(s.ctx, "m1", "Alice", false)
	s.Require().NoError(err)

	now := s.clock.Now()
	const attempts = 4
	results := make(chan error, attempts)
	var wg sync.WaitGroup
	for range attempts {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := s.service.ClaimAdminRequest(s.ctx, "m1", now, 7)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	accepted, limited := 0, 0
	for err := range results {
		switch {
		case err == nil:
			accepted++
		case errors.Is(err, model.ErrRateLimited):
			limited++
		default:
			s.Require().NoError(err)
		}
	}
	s.Equal(1, accepted)
	s.Equal(attempts-1, limited)
}
