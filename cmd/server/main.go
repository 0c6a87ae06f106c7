package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
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
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/atmx/prediction-engine/internal/api"
	"github.com/atmx/prediction-engine/internal/config"
	"github.com/atmx/prediction-engine/internal/engine"
	"github.com/atmx/prediction-engine/internal/journal"
	"github.com/atmx/prediction-engine/internal/metrics"
	"github.com/atmx/prediction-engine/internal/store"
)

func main() {
	var configPath string

	root := &cobra.Command{
		Use:          "prediction-engine",
		Short:        "Deterministic prediction-market game server",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a YAML config file")
	root.AddCommand(newServeCmd(&configPath), newReplayCmd(&configPath))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := root.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func setupLogger(level string) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(logger)
}

func newServeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			setupLogger(cfg.Log.Level)
			return serve(cmd.Context(), cfg)
		},
	}
}

func serve(ctx context.Context, cfg *config.Config) error {
	gameCfg, err := cfg.Game.Engine()
	if err != nil {
		return err
	}

	// --- Initialize store ---
	var st store.Store
	var cleanup []func()
	defer func() {
		for _, fn := range cleanup {
			fn()
		}
	}()

	if cfg.Database.URL != "" {
		pool, err := pgxpool.New(ctx, cfg.Database.URL)
		if err != nil {
			slog.Error("database connection failed", "err", err)
			return err
		}
		cleanup = append(cleanup, pool.Close)
		pg := store.NewPostgresStore(pool)
		if err := pg.EnsureSchema(ctx); err != nil {
			return err
		}
		st = pg
		slog.Info("connected to PostgreSQL")

		// Wrap with Redis read-through cache if configured.
		if cfg.Redis.URL != "" {
			opt, err := redis.ParseURL(cfg.Redis.URL)
			if err != nil {
				slog.Error("invalid redis url", "err", err)
				return err
			}
			rdb := redis.NewClient(opt)
			cleanup = append(cleanup, func() { rdb.Close() })
			st = store.NewCachedStore(st, rdb, cfg.Redis.CacheTTL)
			slog.Info("Redis cache enabled", "ttl", cfg.Redis.CacheTTL)
		}
	} else {
		slog.Warn("database url not set, using in-memory store (data will not persist)")
		st = store.NewMemoryStore()
	}

	// --- Journal ---
	var jnl *journal.SQLite
	if cfg.Journal.Path != "" {
		jnl, err = journal.Open(cfg.Journal.Path)
		if err != nil {
			return err
		}
		cleanup = append(cleanup, func() { jnl.Close() })
		slog.Info("action journal enabled", "path", cfg.Journal.Path)
	}

	// --- Engine ---
	eng, err := restore(ctx, st, jnl, gameCfg)
	if err != nil {
		return err
	}

	// --- WebSocket hub ---
	wsHub := api.NewWSHub()

	// --- Service ---
	deps := api.Deps{
		Engine:  eng,
		Store:   st,
		Hub:     wsHub,
		IsAdmin: cfg.IsAdmin,
	}
	if jnl != nil {
		deps.Journal = jnl
	}
	svc, err := api.NewService(ctx, deps)
	if err != nil {
		return err
	}

	// --- HTTP router ---
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(metrics.Middleware)

	// CORS middleware for frontend cross-origin requests.
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, "+api.PlayerHeader)
			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","service":"prediction-engine"}`))
	})

	// Prometheus metrics endpoint.
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		// WebSocket endpoint for the live event stream. Kept outside the
		// timeout middleware so connections stay open.
		r.Get("/ws", wsHub.HandleWS)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(30 * time.Second))
			if limiter := api.NewCallerLimiter(cfg.Server.RateLimit, cfg.Server.RateBurst); limiter != nil {
				r.Use(limiter.Middleware)
			}
			svc.Routes(r)
		})
	})

	// --- Server ---
	srv := &http.Server{
		Addr:         ":" + strconv.Itoa(cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		wsHub.Run(gctx)
		return nil
	})
	g.Go(func() error {
		slog.Info("prediction-engine listening", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		// Graceful shutdown.
		<-gctx.Done()
		slog.Info("shutting down prediction-engine...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		slog.Error("prediction-engine stopped with error", "err", err)
		return err
	}
	slog.Info("prediction-engine stopped")
	return nil
}

// restore rebuilds the engine from the store, falling back to replaying the
// journal, and starts empty when neither has state.
func restore(ctx context.Context, st store.Store, jnl *journal.SQLite, cfg engine.Config) (*engine.Engine, error) {
	snap, err := st.Load(ctx)
	switch {
	case err == nil:
		eng, err := engine.Restore(snap, cfg)
		if err != nil {
			return nil, fmt.Errorf("restore engine: %w", err)
		}
		slog.Info("state restored from store", "players", len(snap.Players), "markets", len(snap.Markets))
		return eng, nil
	case !errors.Is(err, store.ErrNoState):
		return nil, fmt.Errorf("load state: %w", err)
	}

	eng, err := engine.New(cfg)
	if err != nil {
		return nil, err
	}
	if jnl == nil {
		return eng, nil
	}

	n, err := journal.Replay(ctx, jnl, eng)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return eng, nil
	}
	full, err := eng.Snapshot()
	if err != nil {
		return nil, err
	}
	if err := st.Save(ctx, full); err != nil {
		return nil, fmt.Errorf("seed store from journal: %w", err)
	}
	slog.Info("state rebuilt from journal", "actions", n)
	return eng, nil
}

func newReplayCmd(configPath *string) *cobra.Command {
	var journalPath string

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Rebuild state from an action journal and print the leaderboard",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			setupLogger(cfg.Log.Level)

			if journalPath == "" {
				journalPath = cfg.Journal.Path
			}
			if journalPath == "" {
				return errors.New("no journal: pass --journal or set journal.path")
			}
			gameCfg, err := cfg.Game.Engine()
			if err != nil {
				return err
			}

			jnl, err := journal.Open(journalPath)
			if err != nil {
				return err
			}
			defer jnl.Close()

			eng, err := engine.New(gameCfg)
			if err != nil {
				return err
			}
			n, err := journal.Replay(cmd.Context(), jnl, eng)
			if err != nil {
				return err
			}

			out := struct {
				Actions      int    `json:"actions"`
				TotalSupply  string `json:"total_supply"`
				PlatformPool string `json:"platform_pool"`
				Leaderboard  any    `json:"leaderboard"`
			}{n, eng.TotalSupply().String(), eng.PlatformPool().String(), eng.Leaderboard()}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		},
	}
	cmd.Flags().StringVar(&journalPath, "journal", "", "journal database path (defaults to journal.path)")
	return cmd
}
