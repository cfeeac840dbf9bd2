package badger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"sort"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/TheGitHubist/MaskerBot/internal/model"
	"github.com/TheGitHubist/MaskerBot/internal/storage"
)

var (
	identityPrefix = []byte("identity:")
	roleConfigKey  = []byte("roleconfig")
)

// Storage is an embedded BadgerDB implementation of the storage interface.
// Badger's serializable read-write transactions give the atomic
// read-modify-write the JSON-file original never had, while keeping the
// deployment a single process with a data directory.
type Storage struct {
	db *badger.DB

	// txRetries bounds the ErrConflict retry loop.
	txRetries int
}

// Config holds BadgerDB settings
type Config struct {
	// Path is the data directory. Empty selects an in-memory database,
	// which is only useful in tests.
	Path string

	// TxRetries bounds the transaction conflict retry loop.
	TxRetries int
}

// DefaultConfig returns sensible defaults for Badger configuration
func DefaultConfig() Config {
	return Config{
		Path:      "data/masker",
		TxRetries: 16,
	}
}

// New opens (creating if needed) a Badger database at cfg.Path
func New(cfg Config) (*Storage, error) {
	opts := badger.DefaultOptions(cfg.Path)
	if cfg.Path == "" {
		opts = opts.WithInMemory(true)
	}
	// The bot's own slog output is enough; badger's internal logger is noisy.
	opts = opts.WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}

	retries := cfg.TxRetries
	if retries <= 0 {
		retries = DefaultConfig().TxRetries
	}
	return &Storage{db: db, txRetries: retries}, nil
}

// Close closes the underlying database
func (s *Storage) Close() error {
	return s.db.Close()
}

// Ensure Storage implements the interface
var _ storage.Storage = (*Storage)(nil)

func identityKey(member model.MemberID) []byte {
	return append(append([]byte(nil), identityPrefix...), member...)
}

func (s *Storage) GetIdentity(ctx context.Context, member model.MemberID) (*model.Identity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var id *model.Identity
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(identityKey(member))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return model.ErrIdentityNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			id, err = decodeIdentity(member, val)
			return err
		})
	})
	if err != nil {
		return nil, err
	}
	return id, nil
}

func (s *Storage) ListIdentities(ctx context.Context) ([]*model.Identity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var out []*model.Identity
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(identityPrefix); it.ValidForPrefix(identityPrefix); it.Next() {
			item := it.Item()
			member := model.MemberID(bytes.TrimPrefix(item.KeyCopy(nil), identityPrefix))
			err := item.Value(func(val []byte) error {
				id, err := decodeIdentity(member, val)
				if err != nil {
					return err
				}
				out = append(out, id)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MemberID < out[j].MemberID })
	return out, nil
}

func (s *Storage) UpdateIdentity(ctx context.Context, member model.MemberID, fn storage.IdentityUpdateFn) (*model.Identity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var updated *model.Identity
	txn := func(txn *badger.Txn) error {
		taken := make(model.PseudonymSet)
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		for it.Seek(identityPrefix); it.ValidForPrefix(identityPrefix); it.Next() {
			item := it.Item()
			m := model.MemberID(bytes.TrimPrefix(item.KeyCopy(nil), identityPrefix))
			err := item.Value(func(val []byte) error {
				id, err := decodeIdentity(m, val)
				if err != nil {
					return err
				}
				for _, p := range id.Pseudonyms() {
					taken.Add(p)
				}
				return nil
			})
			if err != nil {
				it.Close()
				return err
			}
		}
		it.Close()

		var current *model.Identity
		item, err := txn.Get(identityKey(member))
		switch {
		case errors.Is(err, badger.ErrKeyNotFound):
			current = nil
		case err != nil:
			return err
		default:
			if err := item.Value(func(val []byte) error {
				current, err = decodeIdentity(member, val)
				return err
			}); err != nil {
				return err
			}
		}

		next, err := fn(current, taken)
		if err != nil {
			return err
		}
		next.SetMember(member)

		payload, err := json.Marshal(next)
		if err != nil {
			return err
		}
		if err := txn.Set(identityKey(member), payload); err != nil {
			return err
		}
		updated = next
		return nil
	}

	var err error
	for i := 0; i < s.txRetries; i++ {
		err = s.db.Update(txn)
		if err == nil {
			return updated, nil
		}
		if errors.Is(err, badger.ErrConflict) {
			continue
		}
		return nil, err
	}
	return nil, err
}

func (s *Storage) DeleteIdentity(ctx context.Context, member model.MemberID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(identityKey(member))
	})
}

func (s *Storage) GetRoleConfig(ctx context.Context) (*model.RoleConfig, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	cfg := &model.RoleConfig{}
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(roleConfigKey)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, cfg)
		})
	})
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

func (s *Storage) UpdateRoleConfig(ctx context.Context, fn storage.RoleConfigUpdateFn) (*model.RoleConfig, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var updated *model.RoleConfig
	txn := func(txn *badger.Txn) error {
		cfg := &model.RoleConfig{}
		item, err := txn.Get(roleConfigKey)
		if err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		if err == nil {
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, cfg)
			}); err != nil {
				return err
			}
		}

		if err := fn(cfg); err != nil {
			return err
		}

		payload, err := json.Marshal(cfg)
		if err != nil {
			return err
		}
		if err := txn.Set(roleConfigKey, payload); err != nil {
			return err
		}
		updated = cfg
		return nil
	}

	var err error
	for i := 0; i < s.txRetries; i++ {
		err = s.db.Update(txn)
		if err == nil {
			return updated, nil
		}
		if errors.Is(err, badger.ErrConflict) {
			continue
		}
		return nil, err
	}
	return nil, err
}

// decodeIdentity parses a stored entry, accepting both the legacy bare
// string and the structured object form.
func decodeIdentity(member model.MemberID, data []byte) (*model.Identity, error) {
	var id model.Identity
	if err := json.Unmarshal(data, &id); err != nil {
		return nil, err
	}
	id.SetMember(member)
	return &id, nil
}
