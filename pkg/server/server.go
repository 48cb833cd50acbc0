// Package server provides the public entry point for initializing the
// AgentFront edge proxy: it wires the configuration store, the expiring
// key-value store, the rate limiter, admin sessions, the upstream client,
// and the HTTP router into a ready-to-serve handler.
package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/agentfront/agentfront/internal/api"
	"github.com/agentfront/agentfront/internal/api/handlers"
	"github.com/agentfront/agentfront/internal/config"
	"github.com/agentfront/agentfront/internal/kv"
	"github.com/agentfront/agentfront/internal/ratelimit"
	"github.com/agentfront/agentfront/internal/sessions"
	"github.com/agentfront/agentfront/internal/store"
	"github.com/agentfront/agentfront/internal/telemetry"
	"github.com/agentfront/agentfront/internal/upstream"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

// Server holds the initialized edge proxy.
type Server struct {
	// Handler is the HTTP handler with all routes and middleware.
	Handler http.Handler

	// Store is the instance-configuration store.
	Store store.Store

	// KV is the expiring key-value store for counters, sessions, and
	// the widget cache.
	KV kv.Store

	// Port is the port the server should listen on.
	Port int

	// ShutdownFunc should be called on graceful shutdown to stop the
	// janitor, close the stores, and flush telemetry.
	ShutdownFunc func(context.Context) error
}

// New initializes the proxy from environment configuration.
func New(ctx context.Context) (*Server, error) {
	return NewWithConfig(ctx, config.Load())
}

// NewWithConfig initializes the proxy with an explicit configuration.
func NewWithConfig(ctx context.Context, cfg *config.Config) (*Server, error) {
	telemetryShutdown, err := telemetry.Init(cfg.Telemetry)
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}

	configStore, err := store.OpenSQLite(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("open config store: %w", err)
	}
	log.Info().Str("path", cfg.Database.Path).Msg("Instance store initialized")

	var kvStore kv.Store
	if cfg.KV.Path != "" {
		kvStore, err = kv.OpenSQLite(cfg.KV.Path)
		if err != nil {
			configStore.Close()
			return nil, fmt.Errorf("open kv store: %w", err)
		}
		log.Info().Str("path", cfg.KV.Path).Msg("Persistent KV store initialized")
	} else {
		kvStore = kv.NewMemory()
		log.Info().Msg("In-memory KV store initialized")
	}

	limiter := ratelimit.New(kvStore)
	sess := sessions.New(kvStore)
	up := upstream.New(cfg.Upstream)

	h := handlers.New(configStore, kvStore, limiter, sess, up, cfg)
	router := api.NewRouter(h, sess)

	// Expired counters and sessions are invisible to reads; the janitor
	// reclaims the space.
	janitor := cron.New()
	if _, err := janitor.AddFunc("@every 5m", func() {
		if n, err := kvStore.Purge(context.Background()); err != nil {
			log.Warn().Err(err).Msg("KV purge failed")
		} else if n > 0 {
			log.Debug().Int("removed", n).Msg("Purged expired KV entries")
		}
	}); err != nil {
		configStore.Close()
		kvStore.Close()
		return nil, fmt.Errorf("schedule kv janitor: %w", err)
	}
	janitor.Start()

	shutdown := func(ctx context.Context) error {
		<-janitor.Stop().Done()
		if err := kvStore.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close KV store")
		}
		if err := configStore.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close instance store")
		}
		return telemetryShutdown(ctx)
	}

	return &Server{
		Handler:      router,
		Store:        configStore,
		KV:           kvStore,
		Port:         cfg.Port,
		ShutdownFunc: shutdown,
	}, nil
}
