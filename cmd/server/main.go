package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"hauler/pkg/platform/audit"
	"hauler/pkg/platform/httputil"

	"hauler/internal/bins"
	"hauler/internal/platform/config"
	"hauler/internal/platform/logger"
	"hauler/internal/platform/metrics"
	platformmw "hauler/internal/platform/middleware"
	platformredis "hauler/internal/platform/redis"
	rlconfig "hauler/internal/ratelimit/config"
	"hauler/internal/ratelimit/engine"
	rlmiddleware "hauler/internal/ratelimit/middleware"
	"hauler/internal/ratelimit/store"
	"hauler/internal/ratelimit/store/memory"
	"hauler/internal/ratelimit/store/redisstore"
	"hauler/internal/resilience/circuit"
	"hauler/internal/resilience/classifier"
	"hauler/internal/resilience/handler"
	"hauler/internal/resilience/recovery"
	"hauler/internal/resilience/respond"
	"hauler/internal/routeopt"
)

const (
	fallbackCacheTTL = 5 * time.Minute
	requestTimeout   = 30 * time.Second
	shutdownTimeout  = 10 * time.Second
)

// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Business logic lives in internal services packages.
func main() {
	_ = godotenv.Load()
	cfg := config.FromEnv()
	log := logger.New(cfg.DevMode)

	log.Info("initializing hauler",
		"addr", cfg.Addr,
		"dev_mode", cfg.DevMode,
		"redis_configured", cfg.Redis.URL != "",
	)

	m := metrics.New()
	publisher := audit.NewLogPublisher(log)
	defer publisher.Close()

	redisClient, err := platformredis.New(cfg.Redis)
	if err != nil {
		fatal(log, "redis initialization failed", err)
	}

	// Redis backs every shared store; without it the process falls back to
	// in-process equivalents and coordination is per-instance only.
	var (
		counters store.CounterStore
		cache    recovery.ResponseCache
		binStore bins.Store
	)
	if redisClient != nil {
		counters = redisstore.New(redisClient.Client)
		cache = recovery.NewRedisCache(redisClient.Client)
		binStore = bins.NewRedisStore(redisClient.Client)
		go recordPoolStats(redisClient)
	} else {
		log.Warn("redis not configured, using in-process stores")
		counters = memory.New()
		cache = recovery.NewMemoryCache()
		binStore = bins.NewMemoryStore(devBins()...)
	}

	eng, err := engine.New(counters,
		engine.WithLogger(log),
		engine.WithMetrics(m),
		engine.WithAuditPublisher(publisher),
		engine.WithStoreTimeout(cfg.StoreTimeout),
	)
	if err != nil {
		fatal(log, "rate limit engine initialization failed", err)
	}
	rl := rlmiddleware.New(eng, rlconfig.DefaultConfig(), log)

	cl, err := classifier.New(counters,
		classifier.WithLogger(log),
		classifier.WithMetrics(m),
		classifier.WithAuditPublisher(publisher),
		classifier.WithStoreTimeout(cfg.StoreTimeout),
	)
	if err != nil {
		fatal(log, "classifier initialization failed", err)
	}

	tracker, err := circuit.New(counters, log,
		circuit.WithMetrics(m),
		circuit.WithAuditPublisher(publisher),
		circuit.WithStoreTimeout(cfg.StoreTimeout),
	)
	if err != nil {
		fatal(log, "circuit tracker initialization failed", err)
	}

	registry := recovery.NewRegistry(
		recovery.NewCachedFallbackStrategy(cache, m),
		recovery.NewCircuitOpenStrategy(tracker),
		recovery.RetryHintStrategy{},
		recovery.DegradationStrategy{},
	)
	orch, err := recovery.NewOrchestrator(registry, log, recovery.WithMetrics(m))
	if err != nil {
		fatal(log, "recovery orchestrator initialization failed", err)
	}

	hook, err := handler.NewHook(cl, orch, respond.NewComposer(log, cfg.DevMode), log)
	if err != nil {
		fatal(log, "resilience hook initialization failed", err)
	}

	r := chi.NewRouter()
	r.Use(platformmw.Recovery(log))
	r.Use(platformmw.RequestID)
	r.Use(platformmw.ClientIP)
	r.Use(platformmw.Logger(log))
	r.Use(platformmw.Timeout(requestTimeout))
	r.Use(platformmw.ResolveIdentity(cfg.JWTSigningKey, log))

	r.Get("/healthz", healthHandler(redisClient))
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(handler.CaptureResponses(cache, fallbackCacheTTL, log))
		r.Use(rl.Limit("authenticated"))
		bins.NewHandler(binStore, tracker).RegisterRoutes(r, hook)
	})

	r.Group(func(r chi.Router) {
		r.Use(rl.LimitComposite("critical"))
		routeopt.NewHandler().RegisterRoutes(r, hook)
	})

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      requestTimeout,
		IdleTimeout:       2 * time.Minute,
	}

	log.Info("starting http server", "addr", cfg.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fatal(log, "server error", err)
		}
	}()

	// Graceful shutdown on SIGINT
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt)
	<-quit

	log.Info("shutting down server gracefully")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		fatal(log, "graceful shutdown failed", err)
	}

	log.Info("server stopped")
}

func healthHandler(redisClient *platformredis.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := map[string]string{"status": "ok", "redis": "unconfigured"}
		if redisClient != nil {
			status["redis"] = "ok"
			if err := redisClient.Health(r.Context()); err != nil {
				status["redis"] = "unhealthy"
			}
		}
		httputil.WriteJSON(w, http.StatusOK, status)
	}
}

func recordPoolStats(client *platformredis.Client) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()
	for range ticker.C {
		client.RecordPoolStats()
	}
}

// devBins gives the in-process store something to serve when no Redis is
// configured.
func devBins() []bins.Bin {
	now := time.Now().UTC()
	return []bins.Bin{
		{ID: "7", Location: "Harbor Plaza", FillPercent: 35, Status: bins.StatusActive, LastCollectedAt: now.Add(-18 * time.Hour)},
		{ID: "12", Location: "Dockside Market", FillPercent: 81, Status: bins.StatusActive, LastCollectedAt: now.Add(-42 * time.Hour)},
	}
}

func fatal(log *slog.Logger, msg string, err error) {
	log.Error(msg, "error", err)
	os.Exit(1)
}
