// Package main provides the entrypoint for the circuitd API server.
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

	"github.com/circuitd/circuitd/internal/api"
	"github.com/circuitd/circuitd/internal/api/middleware"
	"github.com/circuitd/circuitd/internal/auth"
	"github.com/circuitd/circuitd/internal/circuit"
	"github.com/circuitd/circuitd/internal/config"
	"github.com/circuitd/circuitd/internal/database"
	"github.com/circuitd/circuitd/internal/events"
	"github.com/circuitd/circuitd/internal/telemetry"
)

// Version and BuildTime are set at compile time via ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	const serviceName = "circuitd-api"

	cfg, err := config.Load()
	if err != nil {
		errLog := zerolog.New(os.Stderr)
		errLog.Fatal().Err(err).Msg("failed to load configuration")
	}

	// Setup structured logging
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
		Str("environment", cfg.Server.Environment).
		Msg("starting circuitd API")

	// Initialize OpenTelemetry
	ctx := context.Background()
	tp, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:    serviceName,
		ServiceVersion: Version,
		Environment:    cfg.Server.Environment,
		OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
		Enabled:        cfg.Telemetry.Enabled,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize telemetry")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if shutdownErr := tp.Shutdown(shutdownCtx); shutdownErr != nil {
			log.Error().Err(shutdownErr).Msg("failed to shutdown telemetry")
		}
	}()

	if cfg.Telemetry.Enabled {
		log.Info().
			Str("otlp_endpoint", cfg.Telemetry.OTLPEndpoint).
			Msg("OpenTelemetry initialized")
	}

	// Initialize metrics
	metrics, err := middleware.NewMetrics()
	if err != nil {
		log.Error().Err(err).Msg("failed to initialize metrics")
		os.Exit(1) //nolint:gocritic // intentional exit, telemetry cleanup is best-effort
	}

	// Select the state store. Persistence is best-effort: when a backend
	// cannot be reached the breaker degrades to in-memory state rather
	// than refusing to start.
	store, storeName := newStore(ctx, cfg, log)

	// Optional Pub/Sub fanout of audit events
	var publisher circuit.Publisher
	if cfg.PubSub.Enabled {
		p, err := events.NewPublisher(ctx, events.PublisherConfig{
			ProjectID: cfg.PubSub.ProjectID,
			Topic:     cfg.PubSub.Topic,
			Logger:    log,
		})
		if err != nil {
			log.Warn().Err(err).Msg("pubsub publisher unavailable, events stay local")
		} else {
			defer func() {
				if closeErr := p.Close(); closeErr != nil {
					log.Error().Err(closeErr).Msg("failed to close pubsub publisher")
				}
			}()
			publisher = p
			log.Info().
				Str("topic", cfg.PubSub.Topic).
				Msg("pubsub event publisher initialized")
		}
	}

	// Initialize the breaker
	breaker := circuit.New(circuit.BreakerConfig{
		Store:     store,
		Publisher: publisher,
		Logger:    log,
		Defaults:  cfg.Breaker,
	})
	defer breaker.Close()
	log.Info().
		Str("store", storeName).
		Int("failure_threshold", cfg.Breaker.FailureThreshold).
		Int("success_threshold", cfg.Breaker.SuccessThreshold).
		Dur("timeout", cfg.Breaker.Timeout).
		Msg("circuit breaker initialized")

	// Initialize the admin token service
	signingKey := cfg.Auth.SigningKey
	if signingKey == "" {
		signingKey = "local-dev-signing-key-change-in-production"
		log.Warn().Msg("using default token signing key - not secure for production")
	}
	tokenService := auth.NewTokenService(auth.TokenConfig{
		SigningKey: signingKey,
		Issuer:     cfg.Auth.Issuer,
		Audience:   cfg.Auth.Audience,
	})

	// Create router with configuration
	router := api.NewRouter(api.RouterConfig{
		Version:      Version,
		BuildTime:    BuildTime,
		Logger:       log,
		ServiceName:  serviceName,
		StoreName:    storeName,
		Metrics:      metrics,
		TokenService: tokenService,
		Breaker:      breaker,
	})

	// Create HTTP server
	server := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info().
			Str("addr", server.Addr).
			Msg("server listening")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
		os.Exit(1)
	}

	log.Info().Msg("server stopped")
}

// newStore builds the configured circuit.Store, falling back to the
// in-memory store when the backend cannot be reached.
func newStore(ctx context.Context, cfg *config.Config, log zerolog.Logger) (circuit.Store, string) {
	switch cfg.Store.Backend {
	case config.StorePostgres:
		dbConfig := database.ConfigFromEnv()
		pool, err := database.Connect(ctx, dbConfig)
		if err != nil {
			log.Warn().Err(err).Msg("postgres unavailable, degrading to in-memory state")
			return circuit.NewMemoryStore(), "memory"
		}
		log.Info().
			Str("host", dbConfig.Host).
			Int("port", dbConfig.Port).
			Str("database", dbConfig.Database).
			Msg("database connected")
		return circuit.NewPostgresStore(pool), "postgres"

	case config.StoreRedis:
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Store.RedisAddr})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := rdb.Ping(pingCtx).Err(); err != nil {
			log.Warn().Err(err).Msg("redis unavailable, degrading to in-memory state")
			return circuit.NewMemoryStore(), "memory"
		}
		log.Info().Str("addr", cfg.Store.RedisAddr).Msg("redis connected")
		return circuit.NewRedisStore(rdb), "redis"

	default:
		return circuit.NewMemoryStore(), "memory"
	}
}
