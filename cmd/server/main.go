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

	"github.com/classstock/trading-engine/internal/catalog"
	"github.com/classstock/trading-engine/internal/feed"
	"github.com/classstock/trading-engine/internal/metrics"
	"github.com/classstock/trading-engine/internal/simclock"
	"github.com/classstock/trading-engine/internal/store"
	"github.com/classstock/trading-engine/internal/trade"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// --- Initialize store ---
	var st store.Store
	var cleanup []func()

	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		pool, err := pgxpool.New(ctx, dbURL)
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

	// --- Price catalog ---
	cat := catalog.New(catalog.DefaultUniverse())

	// --- WebSocket hub ---
	wsHub := trade.NewWSHub()
	go wsHub.Run()

	// --- Price source: live feed or daily simulation ---
	feedClient, err := feed.NewClient(
		os.Getenv("FEED_BASE_URL"),
		os.Getenv("FEED_APP_KEY"),
		os.Getenv("FEED_APP_SECRET"),
	)
	if err == nil {
		slog.Info("live price feed configured, daily simulation disabled")
		go feedClient.Run(ctx, cat)
	} else {
		lastAdvance, err := st.LoadClockState(ctx)
		if err != nil {
			slog.Warn("failed to load clock state, assuming never advanced", "err", err)
		}
		clock := simclock.New(cat, lastAdvance, st.SaveClockState)
		clock.Advance(ctx) // catch up immediately on start
		go clock.Run(ctx, func() {
			wsHub.Broadcast(trade.WSMessage{
				Type: "prices_advanced",
				Date: clock.LastAdvance(),
			})
		})
		slog.Info("daily price simulation enabled", "last_advance", clock.LastAdvance())
	}

	// --- Trade service ---
	tradeSvc := trade.NewService(st, cat, wsHub)

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
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
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
		w.Write([]byte(`{"status":"ok","service":"trading-engine"}`))
	})

	// Prometheus metrics endpoint.
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		// WebSocket endpoint for real-time updates.
		r.Get("/ws", wsHub.HandleWS)

		// Price catalog.
		r.Get("/stocks", tradeSvc.ListStocks)

		// Class management.
		r.Post("/classes", tradeSvc.CreateClass)
		r.Get("/classes/{classID}", tradeSvc.GetClass)
		r.Patch("/classes/{classID}", tradeSvc.UpdateClass)
		r.Post("/classes/{classID}/students", tradeSvc.EnrollStudent)
		r.Get("/classes/{classID}/ranking", tradeSvc.GetRanking)

		// Trade execution and bonus grants.
		r.Post("/trade", tradeSvc.ExecuteTrade)
		r.Post("/bonus", tradeSvc.GrantBonusHandler)

		// Student accounts and reporting.
		r.Delete("/students/{studentID}", tradeSvc.RemoveStudent)
		r.Get("/students/{studentID}/portfolio", tradeSvc.GetPortfolio)
		r.Get("/students/{studentID}/transactions", tradeSvc.GetTransactions)
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
		slog.Info("trading-engine listening", "port", port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	slog.Info("shutting down trading-engine...")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
	}
	fmt.Println("trading-engine stopped")
}
