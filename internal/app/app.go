// Package app wires the data source, agents, synthesis, prompt store, loop, sector verticals and transports.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/rewired-gh/macrooracle/internal/agents"
	"github.com/rewired-gh/macrooracle/internal/api"
	"github.com/rewired-gh/macrooracle/internal/config"
	"github.com/rewired-gh/macrooracle/internal/fred"
	"github.com/rewired-gh/macrooracle/internal/logger"
	"github.com/rewired-gh/macrooracle/internal/models"
	"github.com/rewired-gh/macrooracle/internal/orchestrator"
	"github.com/rewired-gh/macrooracle/internal/prompts"
	"github.com/rewired-gh/macrooracle/internal/reasoning"
	"github.com/rewired-gh/macrooracle/internal/scheduler"
	"github.com/rewired-gh/macrooracle/internal/storage"
	"github.com/rewired-gh/macrooracle/internal/telegram"
	"github.com/rewired-gh/macrooracle/internal/verticals"
)

const shutdownTimeout = 10 * time.Second

// App owns every long-lived component.
type App struct {
	config   *config.Config
	store    *storage.Storage
	data     *fred.Client
	prompts  *prompts.Store
	orch     *orchestrator.Orchestrator
	loop     *scheduler.Loop
	sectors  *verticals.Service
	server   *api.Server
	telegram *telegram.Client
}

// Option customizes App construction.
type Option func(*options)

type options struct {
	telegram *telegram.Client
}

// WithTelegram uses an already constructed Telegram client instead of dialing one from config.
func WithTelegram(c *telegram.Client) Option {
	return func(o *options) { o.telegram = c }
}

// New builds the component graph from cfg. Nothing runs until Run or RunOnce.
func New(cfg *config.Config, opts ...Option) (*App, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	store, err := storage.New(cfg.Storage.MaxRuns, cfg.Storage.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	if err := store.RotateRuns(context.Background()); err != nil {
		logger.Warn("Failed to rotate runs: %v", err)
	}

	a := &App{config: cfg, store: store}

	a.data = fred.NewClient(fred.Config{
		BaseURL:       cfg.FRED.BaseURL,
		APIKey:        cfg.FRED.APIKey,
		Timeout:       cfg.FRED.Timeout,
		CacheTTL:      cfg.FRED.CacheTTL,
		LookbackYears: cfg.FRED.LookbackYears,
		BatchSize:     cfg.FRED.BatchSize,
		BatchPause:    cfg.FRED.BatchPause,
		MaxRetries:    cfg.FRED.MaxRetries,
		RetryDelay:    cfg.FRED.RetryDelay,
	})

	a.prompts = prompts.NewStore(store, prompts.Config{
		PromotionThreshold: cfg.Prompts.PromotionThreshold,
		MinGoodConfidence:  cfg.Prompts.MinGoodConfidence,
	})

	// A typed nil *reasoning.Client would make the interface non-nil.
	var reasoner orchestrator.Reasoner
	if cfg.ReasoningEnabled() {
		rc := reasoning.DefaultConfig()
		rc.BaseURL = cfg.Reasoning.BaseURL
		rc.APIKey = cfg.Reasoning.APIKey
		rc.Model = cfg.Reasoning.Model
		rc.MaxTokens = cfg.Reasoning.MaxTokens
		rc.Timeout = cfg.Reasoning.Timeout
		reasoner = reasoning.NewClient(rc)
		logger.Info("Reasoning synthesis enabled (model: %s)", rc.Model)
	} else {
		logger.Info("No reasoning API key, using rule-based synthesis")
	}

	oc := orchestrator.DefaultConfig()
	oc.SynthesisTimeout = cfg.Orchestrator.SynthesisTimeout
	oc.BootstrapTimeout = cfg.Orchestrator.BootstrapTimeout
	if cfg.Orchestrator.UserIntent != "" {
		oc.UserIntent = cfg.Orchestrator.UserIntent
	}
	a.orch = orchestrator.New(agents.Default(cfg.Orchestrator.RollingWindow), a.prompts, reasoner, oc)

	a.telegram = o.telegram
	if a.telegram == nil && cfg.Telegram.Enabled {
		a.telegram, err = telegram.NewClient(cfg.Telegram.BotToken, cfg.Telegram.ChatID,
			cfg.Telegram.MaxRetries, cfg.Telegram.RetryDelayBase)
		if err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("failed to initialize Telegram client: %w", err)
		}
		logger.Info("Telegram client initialized successfully")
	}

	lc := scheduler.Config{
		Interval:         cfg.Loop.Interval,
		BackoffStep:      cfg.Loop.BackoffStep,
		BackoffCap:       cfg.Loop.BackoffCap,
		SubscriberBuffer: cfg.Loop.SubscriberBuffer,
		Series:           cfg.FRED.Series,
	}
	if len(lc.Series) == 0 {
		lc.Series = fred.AllSeriesIDs()
	}
	loopOpts := []scheduler.Option{scheduler.WithRecorder(store)}
	if a.telegram != nil {
		loopOpts = append(loopOpts, scheduler.WithCycleHook(a.telegram.HandleCycle))
	}
	a.loop = scheduler.New(a.data, a.orch, lc, loopOpts...)

	vertOpts := []verticals.Option{verticals.WithPrimary(a.loop)}
	if reasoner != nil {
		vertOpts = append(vertOpts, verticals.WithReasoning(a.prompts, reasoner))
	}
	a.sectors = verticals.New(a.data, verticals.Config{
		AnalysisTTL:      cfg.Orchestrator.VerticalTTL,
		SynthesisTimeout: cfg.Orchestrator.SynthesisTimeout,
		BootstrapTimeout: cfg.Orchestrator.BootstrapTimeout,
		PrimarySeries:    lc.Series,
	}, vertOpts...)

	if cfg.Server.Enabled {
		sc := api.DefaultConfig()
		sc.Addr = cfg.Server.Addr
		a.server = api.NewServer(sc, a.loop,
			api.WithPrompts(a.prompts, a.orch),
			api.WithRuns(store),
			api.WithDataCache(a.data),
			api.WithSeries(a.data, lc.Series),
			api.WithAgents(a.orch),
			api.WithVerticals(a.sectors),
		)
	}

	return a, nil
}

// Run starts the loop, the API and the bot listener, and blocks until ctx is done.
func (a *App) Run(ctx context.Context) error {
	if a.server != nil {
		if err := a.server.Start(ctx); err != nil {
			return err
		}
	}
	if a.telegram != nil {
		a.telegram.ListenForCommands(ctx, a.loop)
	}
	if a.config.Loop.AutoStart {
		a.loop.Start(ctx)
	} else {
		logger.Info("Loop auto start disabled, waiting for forced runs")
	}

	<-ctx.Done()
	logger.Info("Shutdown signal received, cleaning up...")

	a.loop.Stop()
	if a.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			logger.Warn("API shutdown: %v", err)
		}
	}
	logger.Info("Service stopped")
	return nil
}

// RunOnce runs a single cycle without starting the loop.
func (a *App) RunOnce(ctx context.Context) (*models.LoopResult, error) {
	return a.loop.RunNow(ctx)
}

// Prompts returns the prompt lifecycle store.
func (a *App) Prompts() *prompts.Store { return a.prompts }

// Orchestrator returns the synthesis engine.
func (a *App) Orchestrator() *orchestrator.Orchestrator { return a.orch }

// Verticals returns the sector dashboard service.
func (a *App) Verticals() *verticals.Service { return a.sectors }

// Storage returns the database handle.
func (a *App) Storage() *storage.Storage { return a.store }

// Close releases the database.
func (a *App) Close() error {
	return a.store.Close()
}
