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

	"github.com/p-n-ai/pai-engine/internal/achievement"
	"github.com/p-n-ai/pai-engine/internal/catalog"
	"github.com/p-n-ai/pai-engine/internal/engine"
	"github.com/p-n-ai/pai-engine/internal/graph"
	"github.com/p-n-ai/pai-engine/internal/httpapi"
	"github.com/p-n-ai/pai-engine/internal/platform/cache"
	"github.com/p-n-ai/pai-engine/internal/platform/config"
	"github.com/p-n-ai/pai-engine/internal/platform/database"
	"github.com/p-n-ai/pai-engine/internal/progress"
	"github.com/p-n-ai/pai-engine/internal/recommend"
	"github.com/p-n-ai/pai-engine/internal/streak"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	db, err := database.New(ctx, cfg.Database.URL, cfg.Database.MaxConns, cfg.Database.MinConns)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	if err := db.Migrate(ctx); err != nil {
		slog.Error("failed to apply schema", "error", err)
		os.Exit(1)
	}

	redis, err := cache.New(ctx, cfg.Cache.URL)
	if err != nil {
		slog.Error("failed to connect to cache", "error", err)
		os.Exit(1)
	}
	defer redis.Close()

	handler, err := buildEngine(cfg, db, redis)
	if err != nil {
		slog.Error("failed to build engine", "error", err)
		os.Exit(1)
	}

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      handler.Mux(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "error", err)
	}
}

// buildEngine wires the catalog, graph, stores and evaluators into the
// outcome engine and its HTTP handler.
func buildEngine(cfg *config.Config, db *database.DB, redis *cache.Cache) (*httpapi.Handler, error) {
	loader, err := catalog.NewLoader(cfg.Catalog.TopicsDir)
	if err != nil {
		return nil, fmt.Errorf("loading topic catalog: %w", err)
	}

	achievementDefs, err := catalog.LoadAchievements(cfg.Catalog.AchievementsPath)
	if err != nil {
		return nil, fmt.Errorf("loading achievement catalog: %w", err)
	}

	threshold := cfg.Engine.MasteryThreshold
	if threshold == 0 {
		threshold = graph.DefaultMasteryThreshold
	}
	g, err := graph.New(loader.AllTopics(), threshold)
	if err != nil {
		return nil, fmt.Errorf("building prerequisite graph: %w", err)
	}

	progressStore, err := progress.NewPostgresStore(db.Pool)
	if err != nil {
		return nil, err
	}
	tracker := progress.NewTracker(progress.TrackerConfig{
		Store: progressStore,
		Step:  cfg.Engine.MasteryStep,
	})

	streakStore, err := streak.NewPostgresStore(db.Pool)
	if err != nil {
		return nil, err
	}
	streaks := streak.NewCalculator(streak.CalculatorConfig{
		Store:    streakStore,
		Location: cfg.Location(),
	})

	unlockStore, err := achievement.NewPostgresStore(db.Pool)
	if err != nil {
		return nil, err
	}
	evaluator, err := achievement.NewEvaluator(achievementDefs, unlockStore)
	if err != nil {
		return nil, fmt.Errorf("compiling achievement catalog: %w", err)
	}

	recommender, err := recommend.NewEngine(recommend.EngineConfig{
		Graph:    g,
		Progress: tracker,
		Cache:    redis,
		CacheTTL: cfg.Engine.RecommendationTTL,
	})
	if err != nil {
		return nil, err
	}

	eng, err := engine.New(engine.Config{
		Catalog:      loader,
		Graph:        g,
		Tracker:      tracker,
		Streaks:      streaks,
		Achievements: evaluator,
		Recommender:  recommender,
		Events:       engine.NewPostgresEventLogger(db.Pool),
	})
	if err != nil {
		return nil, err
	}

	return httpapi.NewHandler(httpapi.HandlerConfig{
		Engine: eng,
		DB:     db,
		Cache:  redis,
	})
}
