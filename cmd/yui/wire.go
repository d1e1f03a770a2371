package main

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	yui "github.com/autonoplus/yui"
	"github.com/autonoplus/yui/agent"
	"github.com/autonoplus/yui/guard"
	"github.com/autonoplus/yui/jobs"
	"github.com/autonoplus/yui/llm"
	"github.com/autonoplus/yui/memory"
	"github.com/autonoplus/yui/missions"
	"github.com/autonoplus/yui/pipeline"
	"github.com/autonoplus/yui/sandbox"
	"github.com/autonoplus/yui/store"
	"github.com/autonoplus/yui/tools"
)

// app bundles the wired components shared by the chat and serve
// commands.
type app struct {
	cfg      *yui.Config
	store    *store.SQLiteStore
	pipeline *pipeline.Pipeline
	broker   *pipeline.EventBroker
	usage    *pipeline.UsageTracker
	queue    *jobs.Queue
	governor *guard.Governor
	sched    *cron.Cron
}

// buildApp wires the full pipeline from configuration.
func buildApp(cfg *yui.Config) (*app, error) {
	if err := yui.EnsureHome(); err != nil {
		return nil, fmt.Errorf("create home: %w", err)
	}

	cs, err := store.NewSQLiteStore(yui.DefaultDBPath())
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := cs.Init(); err != nil {
		cs.Close()
		return nil, fmt.Errorf("init database: %w", err)
	}

	model := llm.NewOpenAI(
		llm.WithAPIKey(cfg.ModelProviderKey),
		llm.WithModel(cfg.ModelName),
	)

	usage := pipeline.NewUsageTracker(cfg.ModelName)
	if err := usage.Start(); err != nil {
		slog.Warn("usage reset schedule failed", "error", err)
	}

	bridge, err := sandbox.NewBridge(cfg.SandboxDir, cfg.DownloadDir)
	if err != nil {
		cs.Close()
		return nil, fmt.Errorf("open sandbox: %w", err)
	}

	brain := missions.NewBrain(cfg.DataDir)
	lessons := memory.NewLessons(cfg.SandboxDir)
	events := memory.NewEventStore(cfg.DataDir)

	reg := tools.NewRegistry()
	runner := tools.NewRunner(reg,
		tools.WithPlugins(tools.NewPluginLoader(cfg.PluginsDir, nil)))

	ag := agent.New(model, reg, runner, nil)
	ag.Usage = usage

	mem := memory.NewManager(cs, pipeline.Summarizer(model), nil)
	governor := guard.NewGovernor(
		guard.NewSampler(5*time.Second),
		cfg.EnergyMax, cfg.EnergyLowThreshold, cfg.EnergyCriticalThreshold)
	broker := pipeline.NewEventBroker()
	provider := pipeline.NewDuckDuckGo()

	p := pipeline.New(cs, mem, ag, model,
		pipeline.WithSearch(provider),
		pipeline.WithEvents(events),
		pipeline.WithRing(memory.NewRing(cfg.DataDir)),
		pipeline.WithLessons(lessons),
		pipeline.WithBroker(broker),
		pipeline.WithGovernor(governor),
	)

	tools.RegisterBuiltins(reg, tools.BuiltinDeps{
		Bridge:  bridge,
		LLM:     model,
		Search:  pipeline.SearchTool(provider, p.WebCache()),
		Brain:   brain,
		Lessons: lessons,
	})

	// Nightly refresh of the workspace dependency map.
	sched := cron.New()
	if _, err := sched.AddFunc("30 3 * * *", func() {
		if _, err := sandbox.NewMapper(cfg.SandboxDir).Generate(); err != nil {
			slog.Warn("map refresh failed", "error", err)
		}
	}); err != nil {
		slog.Warn("map refresh schedule failed", "error", err)
	}
	sched.Start()

	return &app{
		cfg:      cfg,
		store:    cs,
		pipeline: p,
		broker:   broker,
		usage:    usage,
		queue:    jobs.New(),
		governor: governor,
		sched:    sched,
	}, nil
}

// Close releases the app's resources.
func (a *app) Close() {
	a.sched.Stop()
	a.usage.Stop()
	a.broker.Close()
	a.store.Close()
}

// loadConfig reads the config file, defaulting to the home layout.
func loadConfig(path string) *yui.Config {
	if path == "" {
		path = yui.Home() + "/config.yaml"
	}
	cfg, err := yui.LoadConfig(path)
	if err != nil {
		slog.Error("config load failed", "path", path, "error", err)
		cfg = yui.DefaultConfig()
	}
	return cfg
}
