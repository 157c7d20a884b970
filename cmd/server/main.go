package main

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/dominieq/market-stock/internal/api"
	"github.com/dominieq/market-stock/internal/generator"
	"github.com/dominieq/market-stock/internal/metrics"
	"github.com/dominieq/market-stock/internal/model"
	"github.com/dominieq/market-stock/internal/sim"
	"github.com/dominieq/market-stock/internal/store"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	seed := time.Now().UnixNano()
	if s := os.Getenv("SEED"); s != "" {
		parsed, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			slog.Error("invalid SEED", "err", err)
			os.Exit(1)
		}
		seed = parsed
	}

	cfg := sim.DefaultConfig()
	if d := envDuration("WORKER_MIN_SLEEP"); d > 0 {
		cfg.Worker.MinSleep = d
	}
	if d := envDuration("WORKER_MAX_SLEEP"); d > 0 {
		cfg.Worker.MaxSleep = d
	}

	// --- Initialize store ---
	var st store.Store
	var cleanup []func()

	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		pool, err := pgxpool.New(context.Background(), dbURL)
		if err != nil {
			slog.Error("database connection failed", "err", err)
			os.Exit(1)
		}
		cleanup = append(cleanup, pool.Close)
		st = store.NewPostgresStore(pool)
		slog.Info("connected to PostgreSQL")

		// Wrap with Redis read-through cache if configured.
		if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
			opt, err := redis.ParseURL(redisURL)
			if err != nil {
				slog.Error("invalid REDIS_URL", "err", err)
				os.Exit(1)
			}
			rdb := redis.NewClient(opt)
			cleanup = append(cleanup, func() { rdb.Close() })
			st = store.NewCachedStore(st, rdb, 30*time.Second)
			slog.Info("Redis cache enabled")
		}
	} else {
		slog.Warn("DATABASE_URL not set, using in-memory store (snapshots will not persist)")
		st = store.NewMemoryStore()
	}

	defer func() {
		for _, fn := range cleanup {
			fn()
		}
	}()

	// --- WebSocket hub ---
	wsHub := api.NewWSHub()
	go wsHub.Run()

	// --- Simulation ---
	newGenerator := func(seed int64) (*generator.Generator, *rand.Rand) {
		rng := rand.New(rand.NewSource(seed))
		gen, err := generator.New(rng, generator.DefaultSources())
		if err != nil {
			slog.Error("generator construction failed", "err", err)
			os.Exit(1)
		}
		return gen, rng
	}

	gen, rng := newGenerator(seed)
	simulation := sim.New(gen, rng, cfg, wsHub.BroadcastRate)
	slog.Info("simulation created", "seed", seed)

	if os.Getenv("SKIP_DEMO") == "" {
		seedDemo(simulation)
	}

	restore := func(snap *sim.Snapshot) (*sim.Orchestrator, error) {
		g, r := newGenerator(seed + 1)
		return sim.Restore(g, r, cfg, wsHub.BroadcastRate, snap)
	}
	svc := api.NewService(simulation, st, restore)

	// --- HTTP router ---
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(metrics.Middleware)

	// CORS middleware for frontend cross-origin requests.
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","service":"market-stock"}`))
	})

	// Prometheus metrics endpoint.
	r.Handle("/metrics", metrics.Handler())

	r.Mount("/api/v1", svc.Router(wsHub))

	// --- Server ---
	srv := &http.Server{
		Addr:         ":" + port,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("market-stock listening", "port", port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	slog.Info("shutting down market-stock...")
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("shutdown error", "err", err)
	}
	svc.Sim().Shutdown()
	fmt.Println("market-stock stopped")
}

// seedDemo populates a fresh simulation with a small world to trade in:
// one exchange per kind, a handful of listings, a ranking index, and a
// few autonomous participants.
func seedDemo(o *sim.Orchestrator) {
	stock, err := o.AddExchange(model.ExchangeStock)
	if err != nil {
		slog.Error("demo seed failed", "err", err)
		return
	}
	for i := 0; i < 4; i++ {
		if _, err := o.AddAsset(stock.ID); err != nil {
			slog.Error("demo share listing failed", "err", err)
		}
	}
	if _, err := o.AddIndex(stock.ID, "TOP3", "max", 3); err != nil {
		slog.Error("demo index failed", "err", err)
	}

	for _, kind := range []model.ExchangeKind{model.ExchangeCurrency, model.ExchangeCommodity} {
		x, err := o.AddExchange(kind)
		if err != nil {
			slog.Error("demo seed failed", "err", err)
			continue
		}
		for i := 0; i < 3; i++ {
			if _, err := o.AddAsset(x.ID); err != nil {
				slog.Error("demo listing failed", "err", err)
			}
		}
	}

	for i := 0; i < 3; i++ {
		if _, err := o.AddInvestor(); err != nil {
			slog.Error("demo investor failed", "err", err)
		}
	}
	if _, err := o.AddFund(); err != nil {
		slog.Error("demo fund failed", "err", err)
	}
	slog.Info("demo world seeded")
}

// envDuration parses an optional duration environment variable; zero when
// unset or malformed.
func envDuration(name string) time.Duration {
	v := os.Getenv(name)
	if v == "" {
		return 0
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		slog.Warn("ignoring malformed duration", "var", name, "value", v)
		return 0
	}
	return d
}
