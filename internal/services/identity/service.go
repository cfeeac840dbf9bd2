package identity

import (
	"context"
	"sort"
	"time"

	"github.com/TheGitHubist/MaskerBot/internal/dependencies/clock"
	"github.com/TheGitHubist/MaskerBot/internal/dependencies/random"
	"github.com/TheGitHubist/MaskerBot/internal/model"
	"github.com/TheGitHubist/MaskerBot/internal/storage"
)

// PseudonymLength is the length of generated pseudonym ids
const PseudonymLength = 12

// GenerateOutcome describes what Generate did to the caller's entry.
type GenerateOutcome int

const (
	// OutcomeUnchanged means the entry already matched the live roles
	OutcomeUnchanged GenerateOutcome = iota
	// OutcomeCreated means a fresh entry was created
	OutcomeCreated
	// OutcomeMigrated means a legacy bare-string entry was upgraded
	OutcomeMigrated
	// OutcomePromoted means an admin id was minted for an existing entry
	OutcomePromoted
)

// Tenure is one member's earliest acquisition of a role, keyed by pseudonym
// so role-history reports never leak real account ids.
type Tenure struct {
	Pseudonym model.PseudonymID
	Since     time.Time
}

// Service manages the pseudonymous identity table. Every mutation runs as a
// storage update transaction, so concurrent commands can never lose writes.
type Service struct {
	storage storage.Storage
	clock   clock.Clock
	random  random.Random
}

// NewService creates a new identity Service
func NewService(storage storage.Storage, clock clock.Clock, random random.Random) *Service {
	return &Service{
		storage: storage,
		clock:   clock,
		random:  random,
	}
}

// newPseudonym draws ids until one misses both the table-wide taken set and
// the explicit exclusions. The space is 62^12, so collisions are retries in
// tests, not in production.
func (s *Service) newPseudonym(taken model.PseudonymSet, exclude ...model.PseudonymID) model.PseudonymID {
	for {
		id := model.PseudonymID(s.random.Alphanumeric(PseudonymLength))
		if taken.Contains(id) {
			continue
		}
		collides := false
		for _, ex := range exclude {
			if id == ex {
				collides = true
				break
			}
		}
		if !collides {
			return id
		}
	}
}

// Get fetches a member's structured record. Legacy entries return
// model.ErrLegacyRecord; unknown members model.ErrIdentityNotFound.
func (s *Service) Get(ctx context.Context, member model.MemberID) (*model.IdentityRecord, error) {
	id, err := s.storage.GetIdentity(ctx, member)
	if err != nil {
		return nil, err
	}
	if id.IsLegacy() {
		return nil, model.ErrLegacyRecord
	}
	return id.Record, nil
}

// GetOrCreate returns the member's record, creating a fresh one when the
// member is unknown. A member joining with a live admin role is seeded as an
// admin straight away.
func (s *Service) GetOrCreate(
	ctx context.Context,
	member model.MemberID,
	displayName string,
	adminAtJoin bool,
) (*model.IdentityRecord, error) {
	updated, err := s.storage.UpdateIdentity(ctx, member,
		func(current *model.Identity, taken model.PseudonymSet) (*model.Identity, error) {
			if current != nil {
				if current.IsLegacy() {
					return nil, model.ErrLegacyRecord
				}
				return current, nil
			}
			return s.freshIdentity(member, displayName, adminAtJoin, taken), nil
		})
	if err != nil {
		return nil, err
	}
	return updated.Record, nil
}

// freshIdentity builds a brand new entry with generated pseudonyms and a
// single-entry role history.
func (s *Service) freshIdentity(
	member model.MemberID,
	displayName string,
	admin bool,
	taken model.PseudonymSet,
) *model.Identity {
	now := s.clock.Now()
	rec := &model.IdentityRecord{
		MemberID:    member,
		DisplayName: displayName,
		UserID:      s.newPseudonym(taken),
		Role:        model.RoleUser,
	}
	if admin {
		rec.Role = model.RoleAdmin
		adminID := s.newPseudonym(taken, rec.UserID)
		rec.AdminID = &adminID
	}
	rec.RoleHistory = []model.RoleEvent{{Role: rec.Role, Timestamp: now}}
	return &model.Identity{MemberID: member, Record: rec}
}

// MigrateLegacy upgrades a bare-string entry to the structured format. The
// stored string survives as the user pseudonym, so relayed history stays
// attributable to the same identity.
func (s *Service) MigrateLegacy(
	ctx context.Context,
	member model.MemberID,
	displayName string,
	adminHint bool,
) (*model.IdentityRecord, error) {
	updated, err := s.storage.UpdateIdentity(ctx, member,
		func(current *model.Identity, taken model.PseudonymSet) (*model.Identity, error) {
			if current == nil {
				return nil, model.ErrIdentityNotFound
			}
			if !current.IsLegacy() {
				return current, nil
			}
			return s.migrated(member, current.Legacy, displayName, adminHint, taken), nil
		})
	if err != nil {
		return nil, err
	}
	return updated.Record, nil
}

func (s *Service) migrated(
	member model.MemberID,
	legacy model.PseudonymID,
	displayName string,
	admin bool,
	taken model.PseudonymSet,
) *model.Identity {
	now := s.clock.Now()
	rec := &model.IdentityRecord{
		MemberID:    member,
		DisplayName: displayName,
		UserID:      legacy,
		Role:        model.RoleUser,
	}
	if admin {
		rec.Role = model.RoleAdmin
		adminID := s.newPseudonym(taken, rec.UserID)
		rec.AdminID = &adminID
	}
	rec.RoleHistory = []model.RoleEvent{{Role: rec.Role, Timestamp: now}}
	return &model.Identity{MemberID: member, Record: rec}
}

// Generate is the generateID command flow: create the entry when absent,
// migrate it when legacy, and mint an admin id when the caller's live roles
// say admin but the record does not yet.
func (s *Service) Generate(
	ctx context.Context,
	member model.MemberID,
	displayName string,
	hasAdminRole bool,
) (*model.IdentityRecord, GenerateOutcome, error) {
	outcome := OutcomeUnchanged
	updated, err := s.storage.UpdateIdentity(ctx, member,
		func(current *model.Identity, taken model.PseudonymSet) (*model.Identity, error) {
			// outcome assignment is safe under retry: the closure always
			// starts from the freshly-read current entry
			if current == nil {
				outcome = OutcomeCreated
				return s.freshIdentity(member, displayName, hasAdminRole, taken), nil
			}
			if current.IsLegacy() {
				outcome = OutcomeMigrated
				return s.migrated(member, current.Legacy, displayName, hasAdminRole, taken), nil
			}
			rec := current.Record
			if hasAdminRole && rec.AdminID == nil {
				outcome = OutcomePromoted
				next := current.Clone()
				adminID := s.newPseudonym(taken, rec.UserID)
				next.Record.AdminID = &adminID
				next.Record.Role = model.RoleAdmin
				next.Record.RoleHistory = append(next.Record.RoleHistory, model.RoleEvent{
					Role:      model.RoleAdmin,
					Timestamp: s.clock.Now(),
				})
				return next, nil
			}
			outcome = OutcomeUnchanged
			return current, nil
		})
	if err != nil {
		return nil, OutcomeUnchanged, err
	}
	return updated.Record, outcome, nil
}

// SetRole changes a member's stored role. Entering admin mints an admin
// pseudonym if one is not already held; leaving admin discards it. A history
// entry is appended even when the role value did not change, matching the
// behavior relied on by the role-history reports.
func (s *Service) SetRole(
	ctx context.Context,
	member model.MemberID,
	newRole model.Role,
) (*model.IdentityRecord, error) {
	if !newRole.Valid() {
		return nil, model.ErrInvalidRole
	}
	updated, err := s.storage.UpdateIdentity(ctx, member,
		func(current *model.Identity, taken model.PseudonymSet) (*model.Identity, error) {
			if current == nil {
				return nil, model.ErrIdentityNotFound
			}
			if current.IsLegacy() {
				return nil, model.ErrLegacyRecord
			}
			next := current.Clone()
			rec := next.Record
			if newRole == model.RoleAdmin && rec.AdminID == nil {
				adminID := s.newPseudonym(taken, rec.UserID)
				rec.AdminID = &adminID
			}
			if newRole != model.RoleAdmin {
				rec.AdminID = nil
			}
			rec.Role = newRole
			rec.RoleHistory = append(rec.RoleHistory, model.RoleEvent{
				Role:      newRole,
				Timestamp: s.clock.Now(),
			})
			return next, nil
		})
	if err != nil {
		return nil, err
	}
	return updated.Record, nil
}

// Remove deletes a member's entry and returns the user pseudonym it held, so
// the caller can tear down the member's private channel.
func (s *Service) Remove(ctx context.Context, member model.MemberID) (model.PseudonymID, error) {
	id, err := s.storage.GetIdentity(ctx, member)
	if err != nil {
		return "", err
	}
	if err := s.storage.DeleteIdentity(ctx, member); err != nil {
		return "", err
	}
	if id.IsLegacy() {
		return id.Legacy, nil
	}
	return id.Record.UserID, nil
}

// RoleTenure reports, per member, the earliest time the member first held
// role. Legacy entries have no history and are skipped. Results are sorted
// oldest first.
func (s *Service) RoleTenure(ctx context.Context, role model.Role) ([]Tenure, error) {
	ids, err := s.storage.ListIdentities(ctx)
	if err != nil {
		return nil, err
	}
	var out []Tenure
	for _, id := range ids {
		if id.IsLegacy() {
			continue
		}
		since, ok := id.Record.EarliestRoleTimestamp(role)
		if !ok {
			continue
		}
		pseudonym := id.Record.UserID
		if role == model.RoleAdmin && id.Record.AdminID != nil {
			pseudonym = *id.Record.AdminID
		}
		out = append(out, Tenure{Pseudonym: pseudonym, Since: since})
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Since.Equal(out[j].Since) {
			return out[i].Since.Before(out[j].Since)
		}
		return out[i].Pseudonym < out[j].Pseudonym
	})
	return out, nil
}

// ListAdmins returns every structured record currently holding the admin
// role. The request broker selects from this list, trusting the store over
// live platform roles.
func (s *Service) ListAdmins(ctx context.Context) ([]*model.IdentityRecord, error) {
	ids, err := s.storage.ListIdentities(ctx)
	if err != nil {
		return nil, err
	}
	var out []*model.IdentityRecord
	for _, id := range ids {
		if id.IsLegacy() {
			continue
		}
		if id.Record.Role == model.RoleAdmin {
			out = append(out, id.Record)
		}
	}
	return out, nil
}

// ClaimAdminRequest enforces the rolling request cooldown and stamps the
// member's last-admin-request time in a single storage transaction, so
// simultaneous requests from the same member cannot each slip under the
// window. Elapsed time counts in whole days. The stamp that was replaced is
// returned so a claim that could not be brokered can be handed back via
// ReleaseAdminRequest.
func (s *Service) ClaimAdminRequest(
	ctx context.Context,
	member model.MemberID,
	now time.Time,
	cooldownDays int,
) (*model.IdentityRecord, *time.Time, error) {
	var prev *time.Time
	updated, err := s.storage.UpdateIdentity(ctx, member,
		func(current *model.Identity, taken model.PseudonymSet) (*model.Identity, error) {
			if current == nil {
				return nil, model.ErrIdentityNotFound
			}
			if current.IsLegacy() {
				return nil, model.ErrLegacyRecord
			}
			prev = nil
			if last := current.Record.LastAdminRequest; last != nil {
				days := int(now.Sub(*last).Hours() / 24)
				if days < cooldownDays {
					return nil, &model.RateLimitedError{DaysLeft: cooldownDays - days}
				}
				stamp := *last
				prev = &stamp
			}
			next := current.Clone()
			stamp := now
			next.Record.LastAdminRequest = &stamp
			return next, nil
		})
	if err != nil {
		return nil, nil, err
	}
	return updated.Record, prev, nil
}

// ReleaseAdminRequest hands a claimed request slot back, restoring the stamp
// that preceded the claim.
func (s *Service) ReleaseAdminRequest(ctx context.Context, member model.MemberID, prev *time.Time) error {
	_, err := s.storage.UpdateIdentity(ctx, member,
		func(current *model.Identity, taken model.PseudonymSet) (*model.Identity, error) {
			if current == nil {
				return nil, model.ErrIdentityNotFound
			}
			if current.IsLegacy() {
				return nil, model.ErrLegacyRecord
			}
			next := current.Clone()
			next.Record.LastAdminRequest = nil
			if prev != nil {
				stamp := *prev
				next.Record.LastAdminRequest = &stamp
			}
			return next, nil
		})
	return err
}
