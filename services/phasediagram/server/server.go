// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package server wires configuration into a running phase-diagram API.
//
// # Description
//
// New builds every dependency named by config.Config: the phase store, the
// diagram cache backend, Prometheus metrics, the OTLP tracer and the gin
// router. Run serves until its context is cancelled and then shuts down
// gracefully.
//
// # Thread Safety
//
// A Server is built once and Run once. Router is safe to call
// concurrently with Run.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/AleutianAI/AleutianMaterials/services/phasediagram"
	"github.com/AleutianAI/AleutianMaterials/services/phasediagram/cache"
	"github.com/AleutianAI/AleutianMaterials/services/phasediagram/config"
	"github.com/AleutianAI/AleutianMaterials/services/phasediagram/middleware"
	"github.com/AleutianAI/AleutianMaterials/services/phasediagram/observability"
	"github.com/AleutianAI/AleutianMaterials/services/phasediagram/storage/badger"
	"github.com/AleutianAI/AleutianMaterials/services/phasediagram/store"
)

// ServiceName identifies the process in traces and metrics.
const ServiceName = "materials-phase-diagram"

// tracerShutdownTimeout bounds the final span flush.
const tracerShutdownTimeout = 5 * time.Second

// =============================================================================
// Server
// =============================================================================

// Server is a configured, not yet running API process.
type Server struct {
	cfg      config.Config
	logger   *slog.Logger
	svc      *phasediagram.Service
	router   *gin.Engine
	registry *prometheus.Registry

	seedWatcher   *SeedWatcher
	tracerCleanup func(context.Context)
	closeOnce     sync.Once
	closeErr      error
}

// Option configures New.
type Option func(*options)

type options struct {
	store   store.Store
	backend cache.Backend
}

// WithStore replaces the store named by the configuration. The server
// takes ownership and closes it.
func WithStore(st store.Store) Option {
	return func(o *options) { o.store = st }
}

// WithCacheBackend replaces the cache backend named by the configuration.
func WithCacheBackend(b cache.Backend) Option {
	return func(o *options) { o.backend = b }
}

// New builds a Server from cfg.
//
// # Inputs
//
//	ctx    - Bounds connection setup (postgres, redis, migrations).
//	cfg    - Validated configuration.
//	logger - Process logger. Nil uses slog.Default().
//	opts   - Overrides for the store or cache backend.
//
// # Outputs
//
//	*Server - Ready to Run. Caller must Close it when Run is not used.
//	error   - Invalid configuration or a dependency that failed to open.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger, opts ...Option) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	s := &Server{cfg: cfg, logger: logger, registry: prometheus.NewRegistry()}
	s.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := observability.NewMetrics(s.registry)

	st := o.store
	if st == nil {
		var err error
		if st, err = OpenStore(ctx, cfg.Store, logger); err != nil {
			return nil, err
		}
	}

	backend := o.backend
	if backend == nil && cfg.Cache.Backend != config.CacheNone {
		var err error
		if backend, err = openBackend(ctx, cfg.Cache, logger); err != nil {
			_ = st.Close()
			return nil, err
		}
	}

	svcOpts := []phasediagram.ServiceOption{
		phasediagram.WithMetrics(metrics),
		phasediagram.WithLogger(logger),
		phasediagram.WithTolerance(cfg.StabilityTol),
	}
	if backend != nil {
		loader := cache.NewLoader(backend,
			cache.WithTTL(cfg.Cache.TTL),
			cache.WithLoadTimeout(cfg.Server.RequestTimeout),
			cache.WithLogger(logger),
			cache.WithObserver(metrics),
		)
		svcOpts = append(svcOpts, phasediagram.WithCache(loader))
	}
	s.svc = phasediagram.NewService(st, svcOpts...)

	if cfg.Store.WatchSeed && cfg.Store.SeedFile != "" {
		w, err := NewSeedWatcher(cfg.Store.SeedFile, s.svc, logger, 0)
		if err != nil {
			_ = s.svc.Close()
			return nil, err
		}
		w.Start(context.Background())
		s.seedWatcher = w
	}

	if cfg.Tracing.Enabled() {
		cleanup, err := initTracer(ctx, cfg.Tracing)
		if err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("failed to setup the tracer: %w", err)
		}
		s.tracerCleanup = cleanup
	}

	s.initRouter()
	return s, nil
}

// OpenStore opens the phase store named by cfg. A postgres store is
// migrated first when AutoMigrate is set; a memory store is preloaded from
// SeedFile.
func OpenStore(ctx context.Context, cfg config.StoreConfig, logger *slog.Logger) (store.Store, error) {
	switch cfg.Backend {
	case config.StorePostgres:
		pg, err := store.OpenPostgres(ctx, store.PostgresConfig{
			DSN:             cfg.PostgresDSN,
			MaxOpenConns:    cfg.MaxOpenConns,
			MaxIdleConns:    cfg.MaxIdleConns,
			ConnMaxLifetime: cfg.ConnMaxLifetime,
		})
		if err != nil {
			return nil, err
		}
		if cfg.AutoMigrate {
			if err := store.Migrate(ctx, pg.DB()); err != nil {
				_ = pg.Close()
				return nil, err
			}
			logger.Info("Database migrations applied")
		}
		return pg, nil

	default:
		var phases []store.Phase
		if cfg.SeedFile != "" {
			var err error
			if phases, err = store.LoadSeedFile(cfg.SeedFile); err != nil {
				return nil, err
			}
		}
		mem, err := store.NewMemoryStore(phases...)
		if err != nil {
			return nil, fmt.Errorf("seed memory store: %w", err)
		}
		logger.Info("Memory store ready", "phases", mem.Len(), "seed_file", cfg.SeedFile)
		return mem, nil
	}
}

func openBackend(ctx context.Context, cfg config.CacheConfig, logger *slog.Logger) (cache.Backend, error) {
	switch cfg.Backend {
	case config.CacheBadger:
		bcfg := badger.InMemoryConfig()
		if cfg.BadgerDir != "" {
			bcfg = badger.DefaultConfig(cfg.BadgerDir)
		}
		bcfg.Logger = logger
		db, err := badger.Open(bcfg)
		if err != nil {
			return nil, err
		}
		return cache.NewBadgerBackend(db), nil

	case config.CacheRedis:
		rb, err := cache.OpenRedis(ctx, cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		return rb, nil

	default:
		return cache.NewMemoryBackend(cfg.MaxEntries), nil
	}
}

// =============================================================================
// Tracing
// =============================================================================

func initTracer(ctx context.Context, cfg config.TracingConfig) (func(context.Context), error) {
	exporter, err := newExporter(ctx, cfg)
	if err != nil {
		return nil, err
	}
	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceNameKey.String(ServiceName)))
	if err != nil {
		return nil, err
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRatio))),
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(sdktrace.NewBatchSpanProcessor(exporter)))
	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{}))

	return func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, tracerShutdownTimeout)
		defer cancel()
		if err := provider.Shutdown(ctx); err != nil {
			slog.Error("failed to shutdown tracer provider", "error", err)
		}
	}, nil
}

func newExporter(ctx context.Context, cfg config.TracingConfig) (sdktrace.SpanExporter, error) {
	if cfg.Exporter == config.ExporterStdout {
		return stdouttrace.New(stdouttrace.WithWriter(os.Stderr))
	}

	creds := insecure.NewCredentials()
	if !cfg.Insecure {
		creds = credentials.NewClientTLSFromCert(nil, "")
	}
	conn, err := grpc.NewClient(cfg.OTLPEndpoint, grpc.WithTransportCredentials(creds))
	if err != nil {
		return nil, err
	}
	return otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
}

// =============================================================================
// Routing
// =============================================================================

func (s *Server) initRouter() {
	s.router = gin.New()
	s.router.Use(gin.Recovery())
	s.router.Use(otelgin.Middleware(ServiceName))
	s.router.Use(middleware.Timeout(s.cfg.Server.RequestTimeout))

	var limiter *middleware.RateLimiter
	if s.cfg.RateLimit.WritesPerSecond > 0 {
		limiter = middleware.NewRateLimiter(s.cfg.RateLimit.WritesPerSecond, s.cfg.RateLimit.Burst, s.logger)
	}
	phasediagram.SetupRoutes(s.router, s.svc, limiter, s.logger)
	s.router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})))
}

// Router returns the HTTP handler.
func (s *Server) Router() *gin.Engine { return s.router }

// Service returns the phase-diagram service behind the router.
func (s *Server) Service() *phasediagram.Service { return s.svc }

// Run serves on the configured address until ctx is cancelled, then
// drains in-flight requests for up to Server.ShutdownTimeout and releases
// every dependency.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Address(),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Phase diagram service listening", "address", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	var serveErr error
	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			serveErr = err
		}
	case <-ctx.Done():
		s.logger.Info("Shutting down", "timeout", s.cfg.Server.ShutdownTimeout.String())
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			serveErr = fmt.Errorf("shutdown: %w", err)
		}
	}

	return errors.Join(serveErr, s.Close())
}

// Close stops the seed watcher and releases the store, the cache and the
// tracer. Later calls return
// the first result.
func (s *Server) Close() error {
	s.closeOnce.Do(func() {
		if s.seedWatcher != nil {
			s.seedWatcher.Stop()
		}
		s.closeErr = s.svc.Close()
		if s.tracerCleanup != nil {
			s.tracerCleanup(context.Background())
		}
	})
	return s.closeErr
}
