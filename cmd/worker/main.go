// Package main provides the entrypoint for the circuitd event archiver.
// It consumes circuit audit events from Pub/Sub and appends them to the
// durable store, giving a fleet of breaker processes one shared trail.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/circuitd/circuitd/internal/circuit"
	"github.com/circuitd/circuitd/internal/config"
	"github.com/circuitd/circuitd/internal/database"
	"github.com/circuitd/circuitd/internal/events"
)

// Version and BuildTime are set at compile time via ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	const serviceName = "circuitd-worker"

	cfg, err := config.Load()
	if err != nil {
		errLog := zerolog.New(os.Stderr)
		errLog.Fatal().Err(err).Msg("failed to load configuration")
	}

	level, err := zerolog.ParseLevel(cfg.Logging.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	log := zerolog.New(os.Stdout).
		Level(level).
		With().
		Timestamp().
		Str("service", serviceName).
		Str("version", Version).
		Logger()

	log.Info().
		Str("build_time", BuildTime).
		Msg("starting circuitd event archiver")

	if !cfg.PubSub.Enabled {
		log.Fatal().Msg("pubsub is disabled, nothing to archive")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := newArchiveStore(ctx, cfg, log)

	archiver, err := events.NewArchiver(ctx, events.ArchiverConfig{
		ProjectID:    cfg.PubSub.ProjectID,
		Subscription: cfg.PubSub.Subscription,
		Store:        store,
		Logger:       log,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create archiver")
	}
	defer func() {
		if closeErr := archiver.Close(); closeErr != nil {
			log.Error().Err(closeErr).Msg("failed to close archiver")
		}
	}()

	// Health check server for the container platform
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"OK","version":"` + Version + `"}`))
	})

	server := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Info().Str("addr", server.Addr).Msg("health check server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("health server error")
		}
	}()

	// Consume the subscription until interrupted
	go func() {
		log.Info().
			Str("subscription", cfg.PubSub.Subscription).
			Msg("archiver consuming events")
		if err := archiver.Start(ctx); err != nil {
			log.Error().Err(err).Msg("archiver stopped")
			cancel()
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down archiver")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("health server forced to shutdown")
	}

	log.Info().Msg("archiver stopped")
}

// newArchiveStore builds the durable store events are archived to. An
// in-memory store is accepted but pointless across restarts, so it logs
// a warning.
func newArchiveStore(ctx context.Context, cfg *config.Config, log zerolog.Logger) circuit.Store {
	switch cfg.Store.Backend {
	case config.StorePostgres:
		dbConfig := database.ConfigFromEnv()
		pool, err := database.Connect(ctx, dbConfig)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to postgres")
		}
		log.Info().
			Str("host", dbConfig.Host).
			Str("database", dbConfig.Database).
			Msg("database connected")
		return circuit.NewPostgresStore(pool)

	case config.StoreRedis:
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Store.RedisAddr})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := rdb.Ping(pingCtx).Err(); err != nil {
			log.Fatal().Err(err).Msg("failed to connect to redis")
		}
		log.Info().Str("addr", cfg.Store.RedisAddr).Msg("redis connected")
		return circuit.NewRedisStore(rdb)

	default:
		log.Warn().Msg("archiving to in-memory store, events will not survive restarts")
		return circuit.NewMemoryStore()
	}
}
