// Package factory wires the application graph from configuration.
package factory

import (
	"errors"
	"io"
	"log/slog"

	"github.com/TheGitHubist/MaskerBot/internal/bot"
	"github.com/TheGitHubist/MaskerBot/internal/dependencies/clock"
	"github.com/TheGitHubist/MaskerBot/internal/dependencies/random"
	"github.com/TheGitHubist/MaskerBot/internal/platform"
	"github.com/TheGitHubist/MaskerBot/internal/services/authz"
	"github.com/TheGitHubist/MaskerBot/internal/services/identity"
	"github.com/TheGitHubist/MaskerBot/internal/services/relay"
	"github.com/TheGitHubist/MaskerBot/internal/services/request"
	"github.com/TheGitHubist/MaskerBot/internal/services/roleconfig"
	"github.com/TheGitHubist/MaskerBot/internal/storage"
	badgerstorage "github.com/TheGitHubist/MaskerBot/internal/storage/badger"
	"github.com/TheGitHubist/MaskerBot/internal/storage/memory"
	redisstorage "github.com/TheGitHubist/MaskerBot/internal/storage/redis"
)

// Storage type constants
const (
	StorageTypeMemory = "memory"
	StorageTypeRedis  = "redis"
	StorageTypeBadger = "badger"
)

// App contains all wired application components
type App struct {
	// Storage
	Storage storage.Storage

	// External dependencies
	Clock  clock.Clock
	Random random.Random

	// Services
	IdentityService *identity.Service
	ConfigService   *roleconfig.Service
	Gate            *authz.Gate
	RelayService    *relay.Service
	RequestBroker   *request.Broker
	Dispatcher      *bot.Dispatcher
}

// Config holds configuration for the application factory
type Config struct {
	// Platform is the guild collaborator (required)
	Platform platform.Platform
	// Logger is the application logger (optional)
	// If nil, a no-op logger is used
	Logger *slog.Logger
	// StorageType selects the storage backend ("memory", "redis" or "badger")
	// If empty, defaults to "memory"
	StorageType string
	// RedisConfig holds Redis connection settings (required if StorageType is "redis")
	RedisConfig *redisstorage.Config
	// BadgerConfig holds Badger settings (required if StorageType is "badger")
	BadgerConfig *badgerstorage.Config
}

// New creates a new application with all dependencies wired
func New(cfg Config) (*App, error) {
	if cfg.Platform == nil {
		return nil, errors.New("Platform is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}

	storageType := cfg.StorageType
	if storageType == "" {
		storageType = StorageTypeMemory
	}

	var store storage.Storage
	switch storageType {
	case StorageTypeMemory:
		store = memory.New()
	case StorageTypeRedis:
		if cfg.RedisConfig == nil {
			return nil, errors.New("RedisConfig required when StorageType is redis")
		}
		redisStore, err := redisstorage.New(*cfg.RedisConfig)
		if err != nil {
			return nil, err
		}
		store = redisStore
	case StorageTypeBadger:
		if cfg.BadgerConfig == nil {
			return nil, errors.New("BadgerConfig required when StorageType is badger")
		}
		badgerStore, err := badgerstorage.New(*cfg.BadgerConfig)
		if err != nil {
			return nil, err
		}
		store = badgerStore
	default:
		return nil, errors.New("invalid StorageType: must be 'memory', 'redis' or 'badger'")
	}

	clk := clock.New()
	rnd := random.New()

	return newWithDependencies(store, cfg.Platform, clk, rnd, logger), nil
}

// newWithDependencies creates an App with the given dependencies (useful for testing)
func newWithDependencies(
	store storage.Storage,
	pf platform.Platform,
	clk clock.Clock,
	rnd random.Random,
	logger *slog.Logger,
) *App {
	identityService := identity.NewService(store, clk, rnd)
	configService := roleconfig.NewService(store)
	gate := authz.NewGate(configService, pf)
	relayService := relay.NewService(identityService, configService, gate, pf, logger)
	broker := request.NewBroker(identityService, pf, clk, rnd, logger)
	dispatcher := bot.NewDispatcher(
		identityService, configService, gate, relayService, broker,
		pf, clk, logger,
	)

	return &App{
		Storage:         store,
		Clock:           clk,
		Random:          rnd,
		IdentityService: identityService,
		ConfigService:   configService,
		Gate:            gate,
		RelayService:    relayService,
		RequestBroker:   broker,
		Dispatcher:      dispatcher,
	}
}

// Close releases backend resources held by the app.
func (a *App) Close() error {
	if closer, ok := a.Storage.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}
