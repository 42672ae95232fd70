package cli

import (
	"context"
	"fmt"

	"github.com/soyeahso/tagstream/internal/agent"
	"github.com/soyeahso/tagstream/internal/config"
	"github.com/soyeahso/tagstream/internal/failover"
	"github.com/soyeahso/tagstream/internal/hooks"
	"github.com/soyeahso/tagstream/internal/llm"
	"github.com/soyeahso/tagstream/internal/logging"
	"github.com/soyeahso/tagstream/internal/store"
	"github.com/soyeahso/tagstream/internal/tags"
)

// newFactory builds provider clients; tests replace it with a mock.
var newFactory = llm.FactoryFor

// app holds the components every turn-running command shares.
type app struct {
	db       *store.DB
	fstore   *store.FailoverStore
	threads  *store.ThreadStore
	hooks    *hooks.Manager
	failover *failover.Controller
	runner   *agent.Runner
}

// openApp opens the state store, restores failover state from it and builds
// the runner.
func openApp(ctx context.Context, cfg config.Config, p config.Paths, log *logging.Logger) (*app, error) {
	if issues := config.Validate(&cfg); len(issues) > 0 {
		for _, issue := range issues {
			log.Error().Str("path", issue.Path).Msg(issue.Message)
		}
		return nil, fmt.Errorf("config validation failed with %d issue(s)", len(issues))
	}

	dbPath := store.Memory
	if cfg.Store.Driver == "sqlite" {
		dbPath = p.StorePath(cfg.Store)
	}
	db, err := store.Open(ctx, dbPath, log)
	if err != nil {
		return nil, fmt.Errorf("opening state store: %w", err)
	}

	a := &app{
		db:      db,
		fstore:  store.NewFailoverStore(db),
		threads: store.NewThreadStore(db),
		hooks:   newHooks(cfg.Hooks, log),
	}

	a.failover, err = failover.New(failover.Config{
		Credentials:     cfg.Failover.Credentials,
		Models:          cfg.Failover.Models,
		ShortBlock:      cfg.Failover.ShortBlock,
		LongBlock:       cfg.Failover.LongBlock,
		PermissionBlock: cfg.Failover.PermissionBlock,
		Persister:       a.fstore,
	}, log)
	if err != nil {
		db.Close()
		return nil, err
	}
	if err := a.failover.Load(ctx); err != nil {
		log.Warn().Err(err).Msg("could not restore failover state; starting fresh")
	}

	factory, err := newFactory(cfg.Provider.Backend, cfg.Provider.BaseURL)
	if err != nil {
		db.Close()
		return nil, err
	}

	extractor := tags.New(tags.Options{
		Vocabulary: tags.Vocabulary{
			Reactions: cfg.Grammar.Reactions,
			Stickers:  cfg.Grammar.Stickers,
		},
		EchoDetection: cfg.Engine.EchoDetection,
	})

	a.runner = agent.NewRunner(agent.RunnerConfig{
		System:              cfg.Provider.System,
		MaxTokens:           cfg.Provider.MaxTokens,
		Temperature:         cfg.Provider.Temperature,
		MaxOverloadAttempts: cfg.Engine.MaxOverloadAttempts,
		BaseDelay:           cfg.Engine.BaseDelay,
		MaxRotations:        cfg.Engine.MaxRotations,
	}, a.failover, llm.NewRegistry(factory, log), extractor, log,
		agent.WithThreads(a.threads),
		agent.WithHooks(a.hooks),
	)

	log.Debug().
		Str("backend", cfg.Provider.Backend).
		Int("credentials", len(cfg.Failover.Credentials)).
		Strs("models", cfg.Failover.Models).
		Str("store", dbPath).
		Msg("runner ready")
	return a, nil
}

func (a *app) Close() error {
	return a.db.Close()
}

// newHooks registers a log handler for each event named in cfg.Log.
func newHooks(cfg config.HooksConfig, log *logging.Logger) *hooks.Manager {
	m := hooks.NewManager(log)
	hookLog := log.Sub("hooks")
	for _, ev := range cfg.Log {
		m.On(ev, "log", hooks.LogHandler(hookLog))
	}
	return m
}
