// Package main provides the patient summary viewer service entry point.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/drfirst/go-summaryview/internal/api/handlers"
	"github.com/drfirst/go-summaryview/internal/api/middleware"
	"github.com/drfirst/go-summaryview/internal/audit"
	"github.com/drfirst/go-summaryview/internal/auth"
	"github.com/drfirst/go-summaryview/internal/config"
	"github.com/drfirst/go-summaryview/internal/fetcher"
	"github.com/drfirst/go-summaryview/internal/infrastructure/postgres"
	"github.com/drfirst/go-summaryview/internal/infrastructure/redpanda"
	"github.com/drfirst/go-summaryview/internal/observability/metrics"
	"github.com/drfirst/go-summaryview/internal/observability/tracing"
	"github.com/drfirst/go-summaryview/internal/viewer"
	"github.com/drfirst/go-summaryview/pkg/circuitbreaker"
	"github.com/drfirst/go-summaryview/pkg/workerpool"
)

const serviceName = "summary-viewer"

// viewerIdleTimeout is how long an unused browser's viewer state is kept.
const viewerIdleTimeout = 30 * time.Minute

type readinessCheck struct {
	name  string
	check func(ctx context.Context) error
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	logger, err := cfg.NewLogger()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx := context.Background()

	// Tracing
	traceCfg := tracing.DefaultConfig(serviceName)
	traceCfg.OTLPEndpoint = cfg.OTLPEndpoint
	traceCfg.Environment = cfg.Environment
	tp, err := tracing.Init(ctx, traceCfg)
	if err != nil {
		logger.Fatal("failed to init tracing", zap.Error(err))
	}
	defer tp.Shutdown(context.Background())

	m := metrics.New(nil)

	// Upstream summary endpoint
	breakerCfg := fetcher.BreakerConfig("summary-api")
	breakerCfg.OnStateChange = func(name string, _, to circuitbreaker.State) {
		m.SetBreakerState(name, string(to))
	}
	breaker, err := circuitbreaker.New(breakerCfg, logger)
	if err != nil {
		logger.Fatal("failed to create circuit breaker", zap.Error(err))
	}
	m.SetBreakerState(breaker.Name(), string(breaker.GetState()))

	client, err := fetcher.New(fetcher.Config{
		BaseURL: cfg.SummaryAPIURL,
		Timeout: cfg.FetchTimeout,
	}, logger, fetcher.WithBreaker(breaker), fetcher.WithMetrics(m))
	if err != nil {
		logger.Fatal("failed to create summary client", zap.Error(err))
	}

	var checks []readinessCheck

	// Sessions
	var sessions auth.SessionStore
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		defer rdb.Close()
		store := auth.NewRedisStore(rdb)
		if err := store.Ping(ctx); err != nil {
			logger.Fatal("could not connect to redis", zap.Error(err))
		}
		sessions = store
		checks = append(checks, readinessCheck{"redis", store.Ping})
		logger.Info("session store connected", zap.String("addr", cfg.RedisAddr))
	} else {
		logger.Warn("no session store configured; all viewers are anonymous")
	}

	// Audit sinks
	var sinks []audit.Sink
	if cfg.DatabaseURL != "" {
		pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatal("failed to connect to database", zap.Error(err))
		}
		defer pool.Close()
		accessLog := postgres.NewAccessLog(pool, logger)
		if err := accessLog.EnsureSchema(ctx); err != nil {
			logger.Fatal("failed to prepare access log", zap.Error(err))
		}
		sinks = append(sinks, accessLog)
		checks = append(checks, readinessCheck{"postgres", accessLog.Ping})
		logger.Info("connected to database")
	}
	if len(cfg.KafkaBrokers) > 0 {
		admin, err := redpanda.NewAdmin(cfg.KafkaBrokers, logger)
		if err != nil {
			logger.Fatal("failed to create redpanda admin", zap.Error(err))
		}
		if err := admin.EnsureTopics(ctx); err != nil {
			logger.Fatal("failed to ensure topics", zap.Error(err))
		}
		admin.Close()

		producerCfg := redpanda.DefaultProducerConfig()
		producerCfg.Brokers = cfg.KafkaBrokers
		producer, err := redpanda.NewProducer(producerCfg, logger)
		if err != nil {
			logger.Fatal("failed to create producer", zap.Error(err))
		}
		defer producer.Close()
		sinks = append(sinks, redpanda.NewAuditPublisher(producer))
		checks = append(checks, readinessCheck{"redpanda", producer.Ping})
		logger.Info("publishing access events", zap.String("topic", redpanda.TopicAuditTrail))
	}

	recorder, err := audit.NewRecorder(workerpool.DefaultConfig(), sinks, m, logger)
	if err != nil {
		logger.Fatal("failed to create audit recorder", zap.Error(err))
	}
	recorder.Start()

	// Per-browser viewer state
	registry := viewer.NewRegistry(client, logger)
	sweepCtx, stopSweep := context.WithCancel(ctx)
	defer stopSweep()
	go sweepViewers(sweepCtx, registry)

	// Handlers
	opts := handlers.Options{
		Matcher:  cfg.Matcher(),
		Gate:     cfg.Gate(),
		Recorder: recorder,
		Metrics:  m,

		LookupLimit: middleware.RateLimit(cfg.RateLimitPerMinute),
	}
	summaryHandler := handlers.NewSummaryHandler(client, opts, logger)
	webHandler, err := handlers.NewWebHandler(registry, cfg.AuthEndpoints(), opts, logger)
	if err != nil {
		logger.Fatal("failed to load templates", zap.Error(err))
	}

	// Setup router
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Recover(logger))
	r.Use(middleware.Tracing(serviceName))
	r.Use(auth.Middleware(sessions, logger))
	r.Use(middleware.Logger(logger))

	r.Get("/health", healthHandler)
	r.Get("/ready", readyHandler(breaker, recorder, checks))
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.CORS(cfg.CORSOrigins))
		r.Mount("/patients", summaryHandler.Routes())
	})
	r.Mount("/", webHandler.Routes())

	// Start server
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: writeTimeout(cfg.FetchTimeout),
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		logger.Info("shutting down server")
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			logger.Error("shutdown error", zap.Error(err))
		}
	}()

	logger.Info("starting summary viewer",
		zap.String("port", cfg.Port),
		zap.String("summary_api", cfg.SummaryAPIURL),
		zap.String("reference_match", cfg.ReferenceMatch),
		zap.String("auth_gate", cfg.Gate().String()))
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		logger.Fatal("server error", zap.Error(err))
	}

	if err := recorder.Stop(); err != nil {
		logger.Warn("audit recorder stop", zap.Error(err))
	}
	logger.Info("server stopped")
}

// writeTimeout leaves room for a full upstream fetch inside one request.
func writeTimeout(fetchTimeout time.Duration) time.Duration {
	if fetchTimeout <= 0 {
		return 0
	}
	return fetchTimeout + 15*time.Second
}

func sweepViewers(ctx context.Context, registry *viewer.Registry) {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			registry.Sweep(viewerIdleTimeout)
		}
	}
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{"status":"healthy","service":"%s","version":"1.0.0"}`, serviceName)
}

func readyHandler(breaker *circuitbreaker.CircuitBreaker, recorder *audit.Recorder, checks []readinessCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()

		ready := true
		deps := make(map[string]string, len(checks))
		for _, c := range checks {
			if err := c.check(ctx); err != nil {
				deps[c.name] = err.Error()
				ready = false
				continue
			}
			deps[c.name] = "ok"
		}

		health := breaker.Health()
		if !health.Healthy {
			ready = false
		}

		status := http.StatusOK
		if !ready {
			status = http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"ready":        ready,
			"upstream":     health,
			"dependencies": deps,
			"audit":        recorder.Stats(),
		})
	}
}
