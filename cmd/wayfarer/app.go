package main

import (
	"fmt"
	"io"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/rahul/wayfarer/internal/agent"
	"github.com/rahul/wayfarer/internal/browser"
	"github.com/rahul/wayfarer/internal/executor"
	"github.com/rahul/wayfarer/internal/extract"
	"github.com/rahul/wayfarer/internal/gateway"
	"github.com/rahul/wayfarer/internal/governance"
	"github.com/rahul/wayfarer/internal/llm"
	"github.com/rahul/wayfarer/internal/observability"
	"github.com/rahul/wayfarer/internal/store"
	"github.com/rahul/wayfarer/internal/task"
	"github.com/rahul/wayfarer/pkg/config"
)

// app is every long-lived component, wired from one config.
type app struct {
	cfg         *config.Config
	logger      *observability.Logger
	status      *observability.Status
	registry    *prometheus.Registry
	transcripts *store.TranscriptStore
	agent       *agent.Agent
	gateway     *llm.Gateway
	prompts     *llm.PromptManager
	manager     *task.Manager
	listeners   []gateway.Listener
}

func newApp(cfg *config.Config, logOut io.Writer) (*app, error) {
	a := &app{
		cfg: cfg,
		logger: observability.NewLogger(observability.LogConfig{
			Level:      cfg.Log.Level,
			Format:     cfg.Log.Format,
			Output:     logOut,
			LLMLogPath: cfg.Log.LLMLogPath,
		}),
		status:   observability.NewStatus(),
		registry: prometheus.NewRegistry(),
	}
	metrics, err := observability.NewMetrics(a.registry)
	if err != nil {
		return nil, err
	}

	name, provider := cfg.GetDefaultProvider()
	if name == "" {
		return nil, fmt.Errorf("no enabled provider found in config")
	}
	completer, err := llm.NewCompleter(provider)
	if err != nil {
		return nil, fmt.Errorf("provider %s: %w", name, err)
	}
	a.logger.Info("model provider selected", "provider", name, "model", provider.Model)

	a.prompts = llm.NewPromptManager(cfg.LLM.PromptsDir)
	gw := llm.NewGateway(completer, a.prompts, a.logger, metrics)
	a.gateway = gw
	gw.Retry.MaxAttempts = cfg.LLM.MaxAttempts
	gw.Retry.BaseDelay = cfg.LLM.BaseDelay
	gw.Defaults = llm.CallOptions{Temperature: provider.Temperature, MaxTokens: provider.MaxTokens}
	if cfg.Memory.Path != "" {
		a.transcripts, err = store.NewTranscriptStore(cfg.Memory.Path)
		if err != nil {
			return nil, err
		}
		gw.Transcripts = a.transcripts
	}

	policy, err := governance.NewPolicyEngine(cfg.Governance.DenyURLPatterns)
	if err != nil {
		return nil, err
	}
	for _, h := range cfg.Governance.DenyHosts {
		policy.DenyHost(h)
	}
	exec := executor.New(extract.NewEngine(cfg.Executor.ProbeConcurrency), policy, a.logger, metrics, executor.Options{
		SearchEngine:   cfg.Browser.SearchEngine,
		ScrollFraction: cfg.Executor.ScrollFraction,
		CheckboxPolicy: cfg.Executor.CheckboxPolicy,
		Seed:           cfg.Executor.Seed,
	})
	a.agent = agent.New(exec, gw, policy, a.logger, a.status, agent.Options{
		Planner:       cfg.LLM.Planner,
		ScreenshotDir: cfg.Browser.ScreenshotDir,
	})

	browserOpts := browserOptions(cfg)
	sessions := func() (*browser.Session, error) {
		d, err := browser.NewDriver(browserOpts)
		if err != nil {
			return nil, err
		}
		return browser.NewSession(d), nil
	}

	notifier := gateway.NewMulti(a.logger)
	a.manager = task.NewManager(a.agent, sessions, task.Options{
		Debug:    cfg.Debug,
		Notifier: notifier,
		Logger:   a.logger,
		Metrics:  metrics,
		Status:   a.status,
	})

	for _, name := range []string{"telegram", "discord"} {
		gc, ok := cfg.GetGateway(name)
		if !ok {
			continue
		}
		m, err := gateway.Open(name, gc, a.manager, a.logger)
		if err != nil {
			a.logger.Error("gateway disabled", "gateway", name, "error", err)
			continue
		}
		notifier.Add(gateway.Route{Messenger: m, Target: gc.Target})
		if l, ok := m.(gateway.Listener); ok {
			a.listeners = append(a.listeners, l)
		}
	}
	return a, nil
}

// browserOptions maps the browser config; debug runs show the window.
func browserOptions(cfg *config.Config) browser.Options {
	return browser.Options{
		Engine:         cfg.Browser.Engine,
		Headless:       cfg.Browser.Headless && !cfg.Debug,
		ViewportWidth:  cfg.Browser.ViewportWidth,
		ViewportHeight: cfg.Browser.ViewportHeight,
		UserAgent:      cfg.Browser.UserAgent,
		Timeout:        cfg.Browser.Timeout,
	}
}

func (a *app) close() {
	for _, l := range a.listeners {
		_ = l.Stop()
	}
	if a.transcripts != nil {
		_ = a.transcripts.Close()
	}
}
