package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/reelcritic/reelcritic/api"
	"github.com/reelcritic/reelcritic/auth"
	"github.com/reelcritic/reelcritic/config"
	"github.com/reelcritic/reelcritic/kvstore"
	"github.com/reelcritic/reelcritic/movies"
	"github.com/reelcritic/reelcritic/postgres"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
		logger.Fatal().Err(err).Msg("failed to load configuration")
	}

	initLogger(cfg)
	log.Info().
		Str("http_port", cfg.HTTPPort).
		Str("cache_backend", cfg.CacheBackend).
		Bool("provider_configured", cfg.ProviderConfigured()).
		Msg("starting reelcritic server")

	ctx := context.Background()

	pool, err := postgres.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()

	if err := postgres.Migrate(ctx, pool); err != nil {
		log.Fatal().Err(err).Msg("failed to migrate database")
	}

	kv, closeKV, err := newKVStore(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize key-value store")
	}
	defer closeKV()

	userRepo := postgres.NewUserRepository(pool)
	reviewRepo := postgres.NewReviewRepository(pool)

	sessions := auth.NewSessionManager(kv)
	verifier := auth.NewVerifier(
		cfg.IssuerURL(),
		cfg.ProviderClientID,
		cfg.JWKSURL(),
		time.Duration(cfg.JWKSRefreshSec)*time.Second,
	)
	flow := auth.NewFlow(cfg, kv, sessions, verifier, userRepo)

	respCache := movies.NewResponseCache(kv, time.Duration(cfg.MovieCacheTTLSec)*time.Second)
	movieSvc := movies.NewService(cfg.TMDBAPIKey, cfg.TMDBBaseURL, reviewRepo, respCache)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	api.New(cfg, flow, sessions, movieSvc, respCache, reviewRepo).RegisterRoutes(e)

	go func() {
		log.Info().Str("port", cfg.HTTPPort).Msg("HTTP server listening")
		if err := e.Start(":" + cfg.HTTPPort); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("failed to start HTTP server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	log.Info().Str("signal", sig.String()).Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	log.Info().Msg("server stopped")
}

func initLogger(cfg *config.Config) {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	if cfg.LogPretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout})
	}
}

// newKVStore selects the cache backend once at startup.
func newKVStore(ctx context.Context, cfg *config.Config) (kvstore.Store, func(), error) {
	switch cfg.CacheBackend {
	case "redis":
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, nil, err
		}
		client := redis.NewClient(opts)
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, nil, err
		}
		store := kvstore.NewRedisStore(client, "reelcritic")
		return store, func() { _ = client.Close() }, nil
	default:
		store := kvstore.NewMemoryStore()
		return store, store.Close, nil
	}
}
