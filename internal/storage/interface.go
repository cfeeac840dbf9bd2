package storage

import (
	"context"

	"github.com/TheGitHubist/MaskerBot/internal/model"
)

// IdentityUpdateFn mutates one member's identity entry. It receives the
// current entry (nil when the member is unknown) and the set of every
// pseudonym id currently in use across the table, and returns the entry to
// persist. Returning an error aborts the update without writing.
//
// The function runs inside the backend's transaction and may be retried on
// contention, so it must be side-effect free.
type IdentityUpdateFn func(current *model.Identity, taken model.PseudonymSet) (*model.Identity, error)

// RoleConfigUpdateFn mutates the role configuration in place. The same
// retry caveat as IdentityUpdateFn applies.
type RoleConfigUpdateFn func(cfg *model.RoleConfig) error

// Storage defines the interface for data persistence.
//
// The source system did whole-table read-modify-write with no locking and
// could silently lose concurrent writers. Here every mutation goes through
// an Update method that the backend executes atomically: concurrent updates
// to the same or different members must all survive.
type Storage interface {
	// Identity table operations
	GetIdentity(ctx context.Context, member model.MemberID) (*model.Identity, error)
	ListIdentities(ctx context.Context) ([]*model.Identity, error)
	UpdateIdentity(ctx context.Context, member model.MemberID, fn IdentityUpdateFn) (*model.Identity, error)
	DeleteIdentity(ctx context.Context, member model.MemberID) error

	// Role configuration operations. GetRoleConfig returns a zero-value
	// config when nothing has been stored yet.
	GetRoleConfig(ctx context.Context) (*model.RoleConfig, error)
	UpdateRoleConfig(ctx context.Context, fn RoleConfigUpdateFn) (*model.RoleConfig, error)
}
