package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/terrafund/asset-engine/internal/engine"
	"github.com/terrafund/asset-engine/internal/events"
	"github.com/terrafund/asset-engine/internal/metrics"
	"github.com/terrafund/asset-engine/internal/model"
	"github.com/terrafund/asset-engine/internal/store"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	configPath := os.Getenv("TOKENS_CONFIG")
	if configPath == "" {
		configPath = "config/platform.json"
	}
	cfg, err := model.LoadPlatformConfig(configPath)
	if err != nil {
		slog.Error("platform config load failed", "path", configPath, "err", err)
		os.Exit(1)
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
		slog.Warn("DATABASE_URL not set, using in-memory store (data will not persist)")
		st = store.NewMemoryStore()
	}

	defer func() {
		for _, fn := range cleanup {
			fn()
		}
	}()

	// --- WebSocket hub ---
	hub := events.NewHub()
	go hub.Run()

	// --- Platform ---
	svc, err := engine.NewPlatform(cfg, st, hub)
	if err != nil {
		slog.Error("platform deployment failed", "err", err)
		os.Exit(1)
	}
	if err := svc.RestoreState(context.Background()); err != nil {
		slog.Error("state restore failed", "err", err)
		os.Exit(1)
	}

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
		w.Write([]byte(`{"status":"ok","service":"asset-engine"}`))
	})

	// Prometheus metrics endpoint.
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		// WebSocket endpoint for real-time contract events.
		r.Get("/ws", hub.HandleWS)

		// Logical chain.
		r.Get("/chain", svc.GetChain)
		r.Post("/chain/advance", svc.AdvanceChain)

		// Asset tokens.
		r.Get("/tokens", svc.ListTokens)
		r.Get("/tokens/{symbol}", svc.GetToken)
		r.Get("/tokens/{symbol}/balances/{account}", svc.GetBalance)
		r.Get("/tokens/{symbol}/reward/{account}", svc.GetReward)
		r.Post("/tokens/{symbol}/purchase", svc.Purchase)
		r.Post("/tokens/{symbol}/refund", svc.Refund)
		r.Post("/tokens/{symbol}/transfer", svc.Transfer)
		r.Post("/tokens/{symbol}/claim", svc.Claim)
		r.Post("/tokens/{symbol}/withdraw", svc.Withdraw)
		r.Post("/tokens/{symbol}/reward-per-block", svc.SetRewardPerBlock)
		r.Post("/tokens/{symbol}/controller", svc.SetController)
		r.Post("/tokens/{symbol}/pause", svc.Pause)
		r.Post("/tokens/{symbol}/unpause", svc.Unpause)

		// Controller.
		r.Post("/controller/oracles", svc.SetOraclePrice)
		r.Post("/controller/whitelist", svc.AddWhitelist)
		r.Delete("/controller/whitelist", svc.RemoveWhitelist)
		r.Post("/controller/whitelist/rotate", svc.RotateWhitelist)

		// Operation journal.
		r.Get("/journal", svc.GetJournal)
	})

	// --- Server ---
	srv := &http.Server{
		Addr:         ":" + port,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("asset-engine listening", "port", port, "tokens", len(cfg.Tokens))
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

	slog.Info("shutting down asset-engine...")
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("shutdown error", "err", err)
	}
	fmt.Println("asset-engine stopped")
}
