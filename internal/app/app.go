package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/lib/pq"

	"ContentPipeline/internal/audit"
	"ContentPipeline/internal/config"
	"ContentPipeline/internal/domain"
	"ContentPipeline/internal/infrastructure/agents"
	"ContentPipeline/internal/infrastructure/githubtarget"
	"ContentPipeline/internal/infrastructure/netlify"
	"ContentPipeline/internal/infrastructure/scheduler"
	"ContentPipeline/internal/infrastructure/storage"
	"ContentPipeline/internal/infrastructure/verify"
	"ContentPipeline/internal/logging"
	"ContentPipeline/internal/resilience"
	"ContentPipeline/internal/tracker"
	"ContentPipeline/internal/usecase"
)

// Application wires configuration into use cases and owns lifecycle.
type Application struct {
	cfg          config.Config
	db           *sql.DB
	orchestrator *usecase.Orchestrator
	publisher    *usecase.Publisher
	runner       *usecase.Runner
	logger       *slog.Logger
}

// New builds a runnable application instance.
func New(ctx context.Context, cfg config.Config, baseLogger *slog.Logger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level)
	}

	db, err := sql.Open("postgres", cfg.Database.DSN)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	store := storage.NewPostgresStore(db)

	breaker := resilience.NewBreaker(cfg.Breaker.Threshold, cfg.Breaker.Cooldown.Std())
	retrier := resilience.NewRetrier(store, breaker, baseLogger.With("component", "retrier"))
	policy := resilience.Policy{
		MaxRetries:        cfg.Retry.MaxRetries,
		InitialDelay:      cfg.Retry.InitialDelay.Std(),
		BackoffMultiplier: cfg.Retry.BackoffMultiplier,
		AttemptTimeout:    cfg.Retry.AttemptTimeout.Std(),
	}

	registry := audit.NewRegistry()
	dimensions := dimensionSpecs(cfg.Quality.Dimensions)
	engine, err := audit.NewEngine(registry, dimensions, cfg.Quality.Threshold)
	if err != nil {
		return nil, fmt.Errorf("configure quality engine: %w", err)
	}

	monitor := tracker.NewMonitor(store,
		cfg.Retention.MaxAge.Std(),
		cfg.Retention.FailureWindow.Std(),
		cfg.Retention.MaxFailures,
		baseLogger.With("component", "tracker"))

	directory := agents.NewDirectory()
	for stage, agentCfg := range cfg.Agents {
		directory.Register(domain.Stage(stage),
			agents.NewHTTPAgent(agentCfg.Name, agentCfg.Endpoint, agentCfg.APIKey))
	}

	var publisher *usecase.Publisher
	if cfg.GitHub.Token != "" {
		target, err := githubtarget.NewTarget(ctx, cfg.GitHub.Token, cfg.GitHub.Owner, cfg.GitHub.Repo)
		if err != nil {
			return nil, fmt.Errorf("configure deploy target: %w", err)
		}
		builds := netlify.NewClient(cfg.Netlify.BuildHookURL, cfg.Netlify.APIBase,
			cfg.Netlify.SiteID, cfg.Netlify.Token)
		publisher = usecase.NewPublisher(usecase.PublisherDeps{
			Store:       store,
			Audits:      store,
			Deployments: store,
			Target:      target,
			Builds:      builds,
			Verifier:    verify.NewVerifier(),
			Monitor:     monitor,
			Threshold:   engine.Threshold(),
			Config: usecase.PublishConfig{
				BaseBranch:   cfg.GitHub.BaseBranch,
				SiteURL:      cfg.Netlify.SiteURL,
				PollInterval: cfg.Netlify.PollInterval.Std(),
				PollDeadline: cfg.Netlify.PollDeadline.Std(),
			},
			Logger: baseLogger.With("component", "publisher"),
		})
	} else {
		baseLogger.Warn("github token not set, publishing disabled")
	}

	orchestrator := usecase.NewOrchestrator(usecase.OrchestratorDeps{
		Store:     store,
		Artifacts: store,
		Audits:    store,
		Agents:    directory,
		Engine:    engine,
		Retrier:   retrier,
		Publisher: publisher,
		Monitor:   monitor,
		Policy:    policy,
		BatchSize: cfg.Pipeline.BatchSize,
		Logger:    baseLogger.With("component", "orchestrator"),
	})

	runner := usecase.NewRunner(
		scheduler.NewIntervalScheduler(cfg.Scheduler.Interval.Std()),
		orchestrator,
		monitor,
		baseLogger.With("component", "runner"))

	return &Application{
		cfg:          cfg,
		db:           db,
		orchestrator: orchestrator,
		publisher:    publisher,
		runner:       runner,
		logger:       baseLogger,
	}, nil
}

func dimensionSpecs(configured []config.DimensionConfig) []audit.DimensionSpec {
	if len(configured) == 0 {
		return audit.DefaultDimensions()
	}
	specs := make([]audit.DimensionSpec, 0, len(configured))
	for _, dim := range configured {
		specs = append(specs, audit.DimensionSpec{
			Name:   dim.Name,
			Weight: dim.Weight,
			Checks: dim.Checks,
		})
	}
	return specs
}

// RunBatch executes one sweep across every ready status.
func (a *Application) RunBatch(ctx context.Context) (usecase.BatchResult, error) {
	return a.orchestrator.RunBatch(ctx)
}

// RunStage executes one sweep for a single status.
func (a *Application) RunStage(ctx context.Context, status domain.Status) (usecase.BatchResult, error) {
	return a.orchestrator.RunStage(ctx, status)
}

// AuditContent evaluates one item and persists the audit.
func (a *Application) AuditContent(ctx context.Context, contentID string) (domain.QualityAudit, error) {
	return a.orchestrator.AuditContent(ctx, contentID)
}

// Publish runs the deployment protocol for one item.
func (a *Application) Publish(ctx context.Context, contentID string, force bool) (usecase.PublishResult, error) {
	if a.publisher == nil {
		return usecase.PublishResult{}, fmt.Errorf("publishing is not configured (github token missing)")
	}
	return a.publisher.Publish(ctx, contentID, force)
}

// Watch runs autonomous sweeps until ctx is cancelled.
func (a *Application) Watch(ctx context.Context) error {
	if err := a.runner.Start(ctx); err != nil {
		return fmt.Errorf("start runner: %w", err)
	}
	<-ctx.Done()

	stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return a.runner.Stop(stopCtx)
}

// Close releases held resources.
func (a *Application) Close() error {
	return a.db.Close()
}
