package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/TheGitHubist/MaskerBot/internal/model"
	"github.com/TheGitHubist/MaskerBot/internal/storage"
)

// Storage is an in-memory implementation of the storage interface. A single
// mutex serializes every mutation, which is exactly the write discipline the
// source system lacked.
type Storage struct {
	mu sync.RWMutex

	identities map[model.MemberID]*model.Identity
	roleConfig *model.RoleConfig
}

// New creates a new in-memory storage instance
func New() *Storage {
	return &Storage{
		identities: make(map[model.MemberID]*model.Identity),
		roleConfig: &model.RoleConfig{},
	}
}

// Ensure Storage implements the interface
var _ storage.Storage = (*Storage)(nil)

func (s *Storage) GetIdentity(ctx context.Context, member model.MemberID) (*model.Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.identities[member]
	if !ok {
		return nil, model.ErrIdentityNotFound
	}
	return id.Clone(), nil
}

func (s *Storage) ListIdentities(ctx context.Context) ([]*model.Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*model.Identity, 0, len(s.identities))
	for _, id := range s.identities {
		out = append(out, id.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MemberID < out[j].MemberID })
	return out, nil
}

func (s *Storage) UpdateIdentity(ctx context.Context, member model.MemberID, fn storage.IdentityUpdateFn) (*model.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	taken := make(model.PseudonymSet)
	for _, id := range s.identities {
		for _, p := range id.Pseudonyms() {
			taken.Add(p)
		}
	}

	var current *model.Identity
	if existing, ok := s.identities[member]; ok {
		current = existing.Clone()
	}

	updated, err := fn(current, taken)
	if err != nil {
		return nil, err
	}
	updated.SetMember(member)
	s.identities[member] = updated.Clone()
	return updated, nil
}

func (s *Storage) DeleteIdentity(ctx context.Context, member model.MemberID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.identities, member)
	return nil
}

func (s *Storage) GetRoleConfig(ctx context.Context) (*model.RoleConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.roleConfig.Clone(), nil
}

func (s *Storage) UpdateRoleConfig(ctx context.Context, fn storage.RoleConfigUpdateFn) (*model.RoleConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cfg := s.roleConfig.Clone()
	if err := fn(cfg); err != nil {
		return nil, err
	}
	s.roleConfig = cfg.Clone()
	return cfg, nil
}
