package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/hashicorp/go-hclog"

	"github.com/strefethen/metalookup-go/internal/api"
	"github.com/strefethen/metalookup-go/internal/auth"
	"github.com/strefethen/metalookup-go/internal/autotag"
	"github.com/strefethen/metalookup-go/internal/config"
	"github.com/strefethen/metalookup-go/internal/db"
	"github.com/strefethen/metalookup-go/internal/lookup"
	"github.com/strefethen/metalookup-go/internal/musicbrainz"
	"github.com/strefethen/metalookup-go/internal/openapi"
	"github.com/strefethen/metalookup-go/internal/system"
)

// requestLoggerMiddleware logs all incoming HTTP requests
func requestLoggerMiddleware(logger hclog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			// WrapResponseWriter keeps http.Hijacker for the websocket routes.
			wrapped := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(wrapped, r)
			status := wrapped.Status()
			if status == 0 {
				status = http.StatusOK
			}
			logger.Info("request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", status,
				"duration", time.Since(start).Round(time.Millisecond),
				"request_id", api.GetRequestID(r),
			)
		})
	}
}

// Options controls server wiring.
type Options struct {
	// Transport replaces the outbound HTTP transport (for tests).
	Transport lookup.Transport
	// DisablePruner skips the scheduled cache expiry job.
	DisablePruner bool
}

// NewHandler builds the HTTP handler and returns a shutdown function.
func NewHandler(cfg config.Config, options Options, logger hclog.Logger) (http.Handler, func(context.Context) error, error) {
	if logger == nil {
		logger = hclog.Default()
	}

	logger.Info("using database", "path", cfg.SQLiteDBPath)
	dbPair, err := db.Init(cfg.SQLiteDBPath)
	if err != nil {
		return nil, nil, err
	}

	router := chi.NewRouter()
	router.Use(middleware.StripSlashes)
	router.Use(api.RequestIDMiddleware)
	router.Use(requestLoggerMiddleware(logger.Named("http")))
	router.Use(api.RecovererMiddleware(logger))
	router.Use(auth.Middleware(cfg))

	transport := options.Transport
	if transport == nil {
		transport = lookup.NewHTTPTransport(lookup.HTTPTransportConfig{
			UserAgent: cfg.LookupUserAgent,
			Timeout:   time.Duration(cfg.LookupTimeoutMs) * time.Millisecond,
		})
	}

	// Memory tier in front of the shared sqlite tier, one memory cache per channel.
	store := lookup.NewCacheStore(dbPair, logger)
	var prunables []lookup.Prunable
	if cfg.CachePersistent {
		prunables = append(prunables, store)
	}
	cacheFor := func(channel string) lookup.Cache {
		memory := lookup.NewMemoryCache(cfg.CacheMaxEntries)
		prunables = append(prunables, memory)
		if !cfg.CachePersistent {
			return memory
		}
		return lookup.NewTieredCache(memory, store.ForChannel(channel))
	}

	lookupService := lookup.NewService(lookup.ServiceConfig{
		Channels:  channelConfigs(cfg),
		Transport: transport,
		CacheFor:  cacheFor,
	}, logger)

	client := musicbrainz.NewClient(lookupService, musicbrainz.ClientConfig{
		SearchLimit: cfg.SearchLimit,
	}, logger)
	musicbrainz.RegisterRoutes(router, client, lookupService)

	autotagService := autotag.NewService(client, autotag.Config{
		Concurrency: cfg.AutotagConcurrency,
	}, logger)
	autotag.RegisterRoutes(router, autotagService, logger)
	prunables = append(prunables, autotagService)

	pruner := lookup.NewPruner(cfg.CachePruneSchedule, logger, prunables...)
	if !options.DisablePruner {
		if err := pruner.Start(); err != nil {
			lookupService.Close()
			_ = dbPair.Close()
			return nil, nil, err
		}
	}

	registerHealthRoutes(router, lookupService, pruner)
	openapi.RegisterRoutes(router)

	systemDeps := system.Deps{
		Channels: lookupService,
		Pruner:   pruner,
		Jobs:     autotagService,
	}
	if cfg.CachePersistent {
		systemDeps.Cache = store
	}
	system.RegisterRoutes(router, system.NewService(dbPair, systemDeps, logger))

	shutdown := func(ctx context.Context) error {
		if ctx == nil {
			ctx = context.Background()
		}
		done := make(chan struct{})
		go func() {
			defer close(done)
			pruner.Stop()
			autotagService.Close()
			lookupService.Close()
		}()
		select {
		case <-done:
		case <-ctx.Done():
			return errors.Join(ctx.Err(), dbPair.Close())
		}
		return dbPair.Close()
	}

	return router, shutdown, nil
}

func channelConfigs(cfg config.Config) []lookup.ChannelConfig {
	settings := cfg.Channels()
	configs := make([]lookup.ChannelConfig, 0, len(settings))
	for _, ch := range settings {
		configs = append(configs, lookup.ChannelConfig{
			Name:        ch.Name,
			BaseURL:     ch.BaseURL,
			MinInterval: time.Duration(ch.MinIntervalMs) * time.Millisecond,
			Timeout:     time.Duration(ch.TimeoutMs) * time.Millisecond,
			DefaultTTL:  time.Duration(ch.CacheTTLSeconds) * time.Second,
		})
	}
	return configs
}

func registerHealthRoutes(router chi.Router, stats musicbrainz.StatsProvider, pruner *lookup.Pruner) {
	router.Method(http.MethodGet, "/v1/health", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
		response := map[string]any{
			"status":    "healthy",
			"service":   "metalookup",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
			"channels":  stats.Stats(),
			"cache":     pruner.Stats(),
		}
		return api.WriteJSON(w, http.StatusOK, response)
	}))
	router.Method(http.MethodGet, "/v1/health/live", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
		return api.WriteJSON(w, http.StatusOK, map[string]any{"status": "ok"})
	}))
}
