package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/TheGitHubist/MaskerBot/internal/model"
	"github.com/TheGitHubist/MaskerBot/internal/storage"
)

// Storage is a Redis-backed implementation of the storage interface.
// Identity mutations run as optimistic WATCH/MULTI transactions keyed on the
// member's entry and the pseudonym index, so contended writers retry instead
// of clobbering each other.
type Storage struct {
	client *redis.Client
	cfg    Config
}

// New creates a new Redis storage instance
func New(cfg Config) (*Storage, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, err
	}

	opts.PoolSize = cfg.PoolSize
	opts.MinIdleConns = cfg.MinIdleConns

	client := redis.NewClient(opts)

	// Verify connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return &Storage{
		client: client,
		cfg:    cfg,
	}, nil
}

// NewWithClient creates a Redis storage with an existing client (for testing)
func NewWithClient(client *redis.Client, cfg Config) *Storage {
	if cfg.TxRetries <= 0 {
		cfg.TxRetries = DefaultConfig().TxRetries
	}
	return &Storage{
		client: client,
		cfg:    cfg,
	}
}

// Close closes the Redis connection
func (s *Storage) Close() error {
	return s.client.Close()
}

// Ensure Storage implements the interface
var _ storage.Storage = (*Storage)(nil)

func (s *Storage) GetIdentity(ctx context.Context, member model.MemberID) (*model.Identity, error) {
	data, err := s.client.Get(ctx, identityKey(member)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, model.ErrIdentityNotFound
		}
		return nil, err
	}
	return decodeIdentity(member, data)
}

func (s *Storage) ListIdentities(ctx context.Context) ([]*model.Identity, error) {
	members, err := s.client.SMembers(ctx, membersIndexKey()).Result()
	if err != nil {
		return nil, err
	}

	out := make([]*model.Identity, 0, len(members))
	for _, m := range members {
		id, err := s.GetIdentity(ctx, model.MemberID(m))
		if errors.Is(err, model.ErrIdentityNotFound) {
			// index can briefly outlive a deleted entry
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, nil
}

func (s *Storage) UpdateIdentity(ctx context.Context, member model.MemberID, fn storage.IdentityUpdateFn) (*model.Identity, error) {
	key := identityKey(member)
	idx := pseudonymsIndexKey()

	var updated *model.Identity

	txn := func(tx *redis.Tx) error {
		var current *model.Identity
		data, err := tx.Get(ctx, key).Bytes()
		switch {
		case errors.Is(err, redis.Nil):
			current = nil
		case err != nil:
			return err
		default:
			if current, err = decodeIdentity(member, data); err != nil {
				return err
			}
		}

		inUse, err := tx.SMembers(ctx, idx).Result()
		if err != nil {
			return err
		}
		taken := make(model.PseudonymSet, len(inUse))
		for _, p := range inUse {
			taken.Add(model.PseudonymID(p))
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

		var removed []any
		if current != nil {
			kept := make(model.PseudonymSet)
			for _, p := range next.Pseudonyms() {
				kept.Add(p)
			}
			for _, p := range current.Pseudonyms() {
				if !kept.Contains(p) {
					removed = append(removed, string(p))
				}
			}
		}
		added := make([]any, 0, 2)
		for _, p := range next.Pseudonyms() {
			added = append(added, string(p))
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, payload, 0)
			pipe.SAdd(ctx, membersIndexKey(), string(member))
			if len(added) > 0 {
				pipe.SAdd(ctx, idx, added...)
			}
			if len(removed) > 0 {
				pipe.SRem(ctx, idx, removed...)
			}
			return nil
		})
		if err != nil {
			return err
		}

		updated = next
		return nil
	}

	for i := 0; i < s.cfg.TxRetries; i++ {
		err := s.client.Watch(ctx, txn, key, idx)
		if err == nil {
			return updated, nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return nil, err
	}
	return nil, redis.TxFailedErr
}

func (s *Storage) DeleteIdentity(ctx context.Context, member model.MemberID) error {
	key := identityKey(member)
	idx := pseudonymsIndexKey()

	txn := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return nil
		}
		if err != nil {
			return err
		}
		current, err := decodeIdentity(member, data)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, key)
			pipe.SRem(ctx, membersIndexKey(), string(member))
			for _, p := range current.Pseudonyms() {
				pipe.SRem(ctx, idx, string(p))
			}
			return nil
		})
		return err
	}

	for i := 0; i < s.cfg.TxRetries; i++ {
		err := s.client.Watch(ctx, txn, key, idx)
		if err == nil {
			return nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return redis.TxFailedErr
}

func (s *Storage) GetRoleConfig(ctx context.Context) (*model.RoleConfig, error) {
	data, err := s.client.Get(ctx, roleConfigKey()).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return &model.RoleConfig{}, nil
		}
		return nil, err
	}

	var cfg model.RoleConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (s *Storage) UpdateRoleConfig(ctx context.Context, fn storage.RoleConfigUpdateFn) (*model.RoleConfig, error) {
	key := roleConfigKey()

	var updated *model.RoleConfig

	txn := func(tx *redis.Tx) error {
		cfg := &model.RoleConfig{}
		data, err := tx.Get(ctx, key).Bytes()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if err == nil {
			if err := json.Unmarshal(data, cfg); err != nil {
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
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, payload, 0)
			return nil
		})
		if err != nil {
			return err
		}
		updated = cfg
		return nil
	}

	for i := 0; i < s.cfg.TxRetries; i++ {
		err := s.client.Watch(ctx, txn, key)
		if err == nil {
			return updated, nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return nil, err
	}
	return nil, redis.TxFailedErr
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
