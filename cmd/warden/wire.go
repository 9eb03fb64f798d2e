// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/sigil-dev/warden/internal/agent"
	"github.com/sigil-dev/warden/internal/audit"
	"github.com/sigil-dev/warden/internal/capability"
	"github.com/sigil-dev/warden/internal/capability/compute"
	"github.com/sigil-dev/warden/internal/capability/retrieve"
	"github.com/sigil-dev/warden/internal/config"
	"github.com/sigil-dev/warden/internal/provider"
	anthropicprov "github.com/sigil-dev/warden/internal/provider/anthropic"
	googleprov "github.com/sigil-dev/warden/internal/provider/google"
	openaiprov "github.com/sigil-dev/warden/internal/provider/openai"
	"github.com/sigil-dev/warden/internal/store"
	"github.com/sigil-dev/warden/internal/store/jsonl"
	_ "github.com/sigil-dev/warden/internal/store/sqlite" // register sqlite backend
	"github.com/sigil-dev/warden/internal/validator"
	sigilerr "github.com/sigil-dev/warden/pkg/errors"
)

const openRouterBaseURL = "https://openrouter.ai/api/v1"

// App holds all wired subsystems and manages their lifecycle.
type App struct {
	Config       *config.Config
	Manuals      store.ManualStore
	AuditStore   store.AuditStore
	Emitter      *audit.Emitter
	Capabilities *capability.Registry
	Invoker      *agent.Invoker
	Controller   *agent.Controller
	Providers    *provider.Registry

	// strategy is the router strategy in effect. It falls back to "rules"
	// when the configured classifier model cannot be routed.
	strategy string
	logger   *slog.Logger
}

// Wire creates all subsystems and wires them together. dataDir is the root
// directory for persistent state.
func Wire(cfg *config.Config, dataDir string, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, sigilerr.Errorf(sigilerr.CodeCLISetupFailure, "creating data directory: %w", err)
	}

	app := &App{Config: cfg, strategy: cfg.Router.Strategy, logger: logger}
	storeCfg := &store.StorageConfig{Backend: cfg.Storage.Backend}

	// 1. Stores.
	manuals, err := store.NewManualStore(storeCfg, dataDir)
	if err != nil {
		return nil, sigilerr.Errorf(sigilerr.CodeCLISetupFailure, "creating manual store: %w", err)
	}
	app.Manuals = manuals

	auditStore, err := newAuditStore(cfg, storeCfg, dataDir)
	if err != nil {
		_ = app.Close(context.Background())
		return nil, err
	}
	app.AuditStore = auditStore

	// 2. Audit emitter.
	app.Emitter = audit.NewEmitter(auditStore, audit.Config{
		BufferSize:   cfg.Audit.BufferSize,
		WriteTimeout: cfg.Audit.WriteTimeout,
	}, logger)

	// 3. Capabilities.
	app.Capabilities = capability.NewRegistry()
	for _, c := range []capability.Capability{
		compute.New(cfg.Simulator, logger),
		retrieve.New(manuals, logger),
	} {
		if err := app.Capabilities.Register(c); err != nil {
			_ = app.Close(context.Background())
			return nil, sigilerr.Errorf(sigilerr.CodeCLISetupFailure, "registering capability: %w", err)
		}
	}
	app.Invoker = agent.NewInvoker(agent.InvokerConfig{
		Registry:       app.Capabilities,
		Timeout:        cfg.Capabilities.Timeout,
		MaxRetries:     cfg.Capabilities.MaxRetries,
		RetryBackoff:   cfg.Capabilities.RetryBackoff,
		HealthCooldown: cfg.Capabilities.HealthCooldown,
		Logger:         logger,
	})

	// 4. Providers and the intent classifier.
	app.Providers = provider.NewRegistry()
	registerBuiltinProviders(cfg, app.Providers, logger)
	classifier := app.classifier()

	// 5. Validator and controller.
	v, err := validator.New(cfg.Validator, logger)
	if err != nil {
		_ = app.Close(context.Background())
		return nil, sigilerr.Errorf(sigilerr.CodeCLISetupFailure, "creating validator: %w", err)
	}

	ctrl, err := agent.NewController(agent.ControllerConfig{
		Router: agent.NewRouter(agent.RouterConfig{
			Classifier: classifier,
			TopK:       cfg.Capabilities.TopK,
			Logger:     logger,
		}),
		Invoker:       app.Invoker,
		Synthesizer:   agent.NewSynthesizer(cfg.Validator),
		Validator:     v,
		Audit:         app.Emitter,
		MaxIterations: cfg.Orchestrator.MaxIterations,
		Hooks: &agent.Hooks{
			OnTerminal: func(out *agent.Outcome) {
				logger.Info("query finished",
					"query_id", out.QueryID,
					"status", out.Status,
					"iterations", out.Iterations,
					"risk_level", out.RiskLevel)
			},
		},
		Logger: logger,
	})
	if err != nil {
		_ = app.Close(context.Background())
		return nil, sigilerr.Errorf(sigilerr.CodeCLISetupFailure, "creating controller: %w", err)
	}
	app.Controller = ctrl

	return app, nil
}

// newAuditStore opens the configured backend and, when audit.file.path is
// set, mirrors every entry into a rotated JSONL file.
func newAuditStore(cfg *config.Config, storeCfg *store.StorageConfig, dataDir string) (store.AuditStore, error) {
	primary, err := store.NewAuditStore(storeCfg, dataDir)
	if err != nil {
		return nil, sigilerr.Errorf(sigilerr.CodeCLISetupFailure, "creating audit store: %w", err)
	}

	fc := cfg.Audit.File
	if fc.Path == "" {
		return primary, nil
	}
	path := fc.Path
	if !filepath.IsAbs(path) {
		path = filepath.Join(dataDir, path)
	}
	mirror, err := jsonl.New(jsonl.Config{
		Path:       path,
		MaxSizeMB:  fc.MaxSizeMB,
		MaxBackups: fc.MaxBackups,
		MaxAgeDays: fc.MaxAgeDays,
		Compress:   fc.Compress,
	})
	if err != nil {
		_ = primary.Close()
		return nil, sigilerr.Errorf(sigilerr.CodeCLISetupFailure, "creating audit file sink: %w", err)
	}
	return store.NewMultiAuditStore(primary, mirror), nil
}

// classifier returns the LLM intent classifier, or nil when the rules
// strategy is configured or the classifier model cannot be routed.
func (a *App) classifier() agent.Classifier {
	cfg := a.Config.Router
	if cfg.Strategy != "llm" {
		return nil
	}
	if err := a.Providers.SetDefault(cfg.Model); err != nil {
		a.logger.Warn("llm router unavailable, using keyword rules",
			"model", cfg.Model, "error", err)
		a.strategy = "rules"
		return nil
	}
	if len(cfg.Failover) > 0 {
		if err := a.Providers.SetFailover(cfg.Failover); err != nil {
			a.logger.Warn("ignoring router failover chain", "error", err)
		}
	}
	return agent.NewProviderClassifier(a.Providers, cfg.Model, a.logger)
}

// Strategy returns the router strategy in effect.
func (a *App) Strategy() string { return a.strategy }

// Resolve runs q through the loop under the configured query timeout.
func (a *App) Resolve(ctx context.Context, q agent.Query) *agent.Outcome {
	if d := a.Config.Orchestrator.QueryTimeout; d > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}
	return a.Controller.Resolve(ctx, q)
}

// Close drains the audit emitter before closing the stores it writes to.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.Emitter != nil {
		if err := a.Emitter.Close(ctx); err != nil {
			errs = append(errs, err)
		}
		if n := a.Emitter.Dropped(); n > 0 {
			a.logger.Warn("audit records dropped", "count", n)
		}
	}

	type closer interface{ Close() error }
	var closers []closer
	if a.AuditStore != nil {
		closers = append(closers, a.AuditStore)
	}
	if a.Manuals != nil {
		closers = append(closers, a.Manuals)
	}
	if a.Providers != nil {
		closers = append(closers, a.Providers)
	}
	for _, c := range closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// dataDir returns the configured data directory, defaulting to
// ~/.local/share/warden.
func dataDir(cfg *config.Config) (string, error) {
	if cfg.Storage.DataDir != "" {
		return cfg.Storage.DataDir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", sigilerr.Errorf(sigilerr.CodeCLISetupFailure, "resolving home directory: %w", err)
	}
	return filepath.Join(home, ".local", "share", "warden"), nil
}

// wireFromConfig loads the configuration and wires the application.
func wireFromConfig() (*App, error) {
	cfg, logger, err := loadConfig()
	if err != nil {
		return nil, err
	}
	dir, err := dataDir(cfg)
	if err != nil {
		return nil, err
	}
	return Wire(cfg, dir, logger)
}

// providerFactory builds a provider.Provider from a ProviderConfig.
type providerFactory func(config.ProviderConfig) (provider.Provider, error)

// builtinProviderFactories maps provider names to their constructors.
// Declared as a variable so tests can inject failing factories.
var builtinProviderFactories = map[string]providerFactory{
	"anthropic": func(pc config.ProviderConfig) (provider.Provider, error) {
		return anthropicprov.New(anthropicprov.Config{APIKey: pc.APIKey, BaseURL: pc.Endpoint})
	},
	"google": func(pc config.ProviderConfig) (provider.Provider, error) {
		return googleprov.New(googleprov.Config{APIKey: pc.APIKey})
	},
	"openai": func(pc config.ProviderConfig) (provider.Provider, error) {
		return openaiprov.New(openaiprov.Config{APIKey: pc.APIKey, BaseURL: pc.Endpoint})
	},
	"openrouter": func(pc config.ProviderConfig) (provider.Provider, error) {
		baseURL := pc.Endpoint
		if baseURL == "" {
			baseURL = openRouterBaseURL
		}
		return openaiprov.New(openaiprov.Config{APIKey: pc.APIKey, BaseURL: baseURL, Name: "openrouter"})
	},
}

// registerBuiltinProviders registers every configured provider that has a
// key and a built-in implementation. Neither a missing key nor an unknown
// name is fatal at startup.
func registerBuiltinProviders(cfg *config.Config, reg *provider.Registry, logger *slog.Logger) {
	for name, pc := range cfg.Providers {
		if pc.APIKey == "" {
			logger.Warn("skipping provider with empty API key", "provider", name)
			continue
		}
		factory, ok := builtinProviderFactories[name]
		if !ok {
			logger.Warn("unknown provider in config, skipping", "provider", name)
			continue
		}
		p, err := factory(pc)
		if err != nil {
			logger.Warn("failed to create provider", "provider", name, "error", err)
			continue
		}
		reg.Register(p)
		logger.Info("registered provider", "provider", name)
	}
}
