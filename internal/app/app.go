// Package app wires configuration to adapters and the workflow engine.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"time"

	_ "github.com/lib/pq"
	"gopkg.in/yaml.v3"

	"newsforge/internal/collect"
	"newsforge/internal/config"
	"newsforge/internal/curate"
	"newsforge/internal/deliver"
	"newsforge/internal/domain"
	"newsforge/internal/infrastructure/email"
	"newsforge/internal/infrastructure/llm"
	"newsforge/internal/infrastructure/scheduler"
	"newsforge/internal/infrastructure/sources"
	"newsforge/internal/infrastructure/storage"
	"newsforge/internal/logging"
	"newsforge/internal/ports"
	"newsforge/internal/ratelimit"
	"newsforge/internal/workflow"
)

// Application holds the wired workflow engine and its collaborators.
type Application struct {
	cfg      config.Config
	engine   *workflow.Engine
	profiles ports.ProfileStore
	logger   *slog.Logger
	db       *sql.DB
}

// New builds a runnable application instance.
func New(cfg config.Config, baseLogger *slog.Logger) (*Application, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level)
	}

	limiter := ratelimit.New(limiterWindows(cfg.RateLimits))

	registry := collect.NewRegistry()
	registry.Register(sources.NewGitHub(cfg.GitHub, limiter, nil))
	registry.Register(sources.NewHackerNews(cfg.HackerNews, limiter, nil))
	registry.Register(sources.NewTrending(limiter, nil))
	registry.Register(sources.NewExtractor(cfg.Extractor, limiter, nil))

	collector := collect.NewCollector(
		registry,
		cfg.Collection.SourceTimeout(),
		cfg.Collection.MaxItemsPerSource,
		baseLogger.With("component", "collector"),
	)

	curator := curate.NewEngine(
		llm.NewClient(cfg.OpenAI, limiter),
		curate.Config{
			BatchSize:           cfg.Curation.BatchSize,
			AnalysisRetries:     cfg.Curation.AnalysisRetries,
			AnalysisBackoff:     cfg.Curation.AnalysisBackoff(),
			MinCompositeScore:   cfg.Curation.MinCompositeScore,
			DefaultQualityFloor: cfg.Curation.DefaultQualityFloor,
		},
		baseLogger.With("component", "curator"),
	)

	renderer, err := email.NewRenderer()
	if err != nil {
		return nil, err
	}

	dispatcher := deliver.NewDispatcher(
		email.NewResendClient(cfg.Resend, nil),
		deliver.Config{
			MaxAttempts:    cfg.Delivery.MaxAttempts,
			BaseBackoff:    cfg.Delivery.BaseBackoff(),
			AttemptTimeout: cfg.Delivery.AttemptTimeout(),
		},
		baseLogger.With("component", "dispatcher"),
	)

	var (
		db       *sql.DB
		sink     ports.AnalyticsSink
		profiles ports.ProfileStore
	)
	if cfg.Database.DSN != "" {
		db, err = sql.Open("postgres", cfg.Database.DSN)
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		sink = storage.NewAnalyticsStore(db)
		profiles = storage.NewProfileStore(db)
	}

	recorder := workflow.NewRecorder(sink, baseLogger.With("component", "analytics"))

	engine := workflow.NewEngine(
		collector,
		curator,
		renderer,
		dispatcher,
		recorder,
		baseLogger.With("component", "workflow"),
	)

	return &Application{
		cfg:      cfg,
		engine:   engine,
		profiles: profiles,
		logger:   baseLogger,
		db:       db,
	}, nil
}

// RunProfile executes one workflow run for an in-memory profile.
func (a *Application) RunProfile(ctx context.Context, profile *domain.UserProfile) *domain.RunState {
	return a.engine.Run(ctx, profile)
}

// RunUser loads the profile from the store and executes one run.
func (a *Application) RunUser(ctx context.Context, userID string) (*domain.RunState, error) {
	if a.profiles == nil {
		return nil, fmt.Errorf("no profile store configured; set database.dsn or pass a profile file")
	}
	profile, err := a.profiles.GetProfile(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load profile %s: %w", userID, err)
	}
	return a.engine.Run(ctx, profile), nil
}

// Serve runs scheduled newsletters for the configured users until the
// context ends.
func (a *Application) Serve(ctx context.Context) error {
	if len(a.cfg.Serve.Users) == 0 {
		return fmt.Errorf("serve mode needs serve.users in configuration")
	}

	sched := scheduler.NewTickerScheduler(a.cfg.Serve.TickInterval(), a.cfg.Serve.RunOnStart)
	err := sched.Start(ctx, func(t time.Time) {
		for _, userID := range a.cfg.Serve.Users {
			state, err := a.RunUser(ctx, userID)
			if err != nil {
				a.logger.Error("scheduled run failed to start", "user_id", userID, "error", err)
				continue
			}
			a.logger.Info("scheduled run finished",
				"user_id", userID, "outcome", state.Outcome, "tick", t)
		}
	})
	if err != nil {
		return err
	}

	<-ctx.Done()
	return sched.Stop(context.Background())
}

// Close releases held resources.
func (a *Application) Close() error {
	if a.db != nil {
		return a.db.Close()
	}
	return nil
}

// LoadProfileFile reads a YAML user profile, useful for runs without a
// database.
func LoadProfileFile(path string) (*domain.UserProfile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read profile %s: %w", path, err)
	}
	var profile domain.UserProfile
	if err := yaml.Unmarshal(raw, &profile); err != nil {
		return nil, fmt.Errorf("parse profile %s: %w", path, err)
	}
	return &profile, nil
}

func limiterWindows(cfgs map[string]config.RateLimitConfig) map[string]ratelimit.Window {
	windows := make(map[string]ratelimit.Window, len(cfgs))
	for key, c := range cfgs {
		windows[key] = ratelimit.Window{MaxCalls: c.MaxCalls, Period: c.Window()}
	}
	return windows
}
