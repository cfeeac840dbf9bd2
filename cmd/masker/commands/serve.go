package commands

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"github.com/TheGitHubist/MaskerBot/internal/config"
	"github.com/TheGitHubist/MaskerBot/internal/factory"
	"github.com/TheGitHubist/MaskerBot/internal/gateway"
	"github.com/TheGitHubist/MaskerBot/internal/platform/rest"
	badgerstorage "github.com/TheGitHubist/MaskerBot/internal/storage/badger"
	redisstorage "github.com/TheGitHubist/MaskerBot/internal/storage/redis"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the bot and its event gateway",
	Long: `Load configuration from MASKER_* environment variables, connect to the
platform API and listen for signed event deliveries.`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel(cfg.LogLevel),
	}))
	slog.SetDefault(logger)

	pf := rest.New(rest.Config{
		BaseURL: cfg.PlatformBaseURL,
		Token:   cfg.PlatformToken,
		GuildID: cfg.PlatformGuildID,
		Timeout: cfg.PlatformTimeout,
	})

	factoryCfg := factory.Config{
		Platform:    pf,
		Logger:      logger,
		StorageType: cfg.StorageType,
	}
	switch cfg.StorageType {
	case factory.StorageTypeRedis:
		redisCfg := redisstorage.DefaultConfig()
		redisCfg.URL = cfg.RedisURL
		factoryCfg.RedisConfig = &redisCfg
	case factory.StorageTypeBadger:
		badgerCfg := badgerstorage.DefaultConfig()
		badgerCfg.Path = cfg.BadgerPath
		factoryCfg.BadgerConfig = &badgerCfg
	}

	app, err := factory.New(factoryCfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := app.Close(); err != nil {
			logger.Error("closing storage", slog.Any("error", err))
		}
	}()

	publicKey, err := cfg.VerifyKey()
	if err != nil {
		return err
	}

	router := gateway.NewRouter(gateway.RouterConfig{
		Logger:    logger,
		Sink:      app.Dispatcher,
		PublicKey: publicKey,
		Limiter:   gateway.NewSenderLimiter(rate.Limit(cfg.RateLimit), cfg.RateBurst),
	})

	mux := http.NewServeMux()
	mux.Handle("/", router)

	serverCfg := gateway.DefaultServerConfig()
	serverCfg.Host = cfg.Host
	serverCfg.Port = cfg.Port
	server := gateway.NewServer(mux, serverCfg, logger)

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		logger.Info("shutdown signal received")
		cancel()
	}()

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	logger.Info("bot started", slog.String("addr", server.Addr()))

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		if err := server.Shutdown(context.Background()); err != nil {
			return err
		}
	}

	logger.Info("bot stopped")
	return nil
}

func logLevel(name string) slog.Level {
	switch name {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
