package main

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/rahul/planflow/internal/agent"
	"github.com/rahul/planflow/internal/governance"
	"github.com/rahul/planflow/internal/observability"
	"github.com/rahul/planflow/internal/store"
	"github.com/rahul/planflow/internal/tools"
	"github.com/rahul/planflow/internal/workflow"
	"github.com/rahul/planflow/pkg/config"
)

// app holds the wired components shared by the commands.
type app struct {
	cfg    *config.Config
	store  workflow.Checkpointer
	locker workflow.Locker
	logger *observability.Logger
	close  func() error
}

func openApp(flags *globalFlags) (*app, error) {
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return nil, err
	}

	var out io.Writer = io.Discard
	if flags.verbose {
		out = os.Stderr
	}
	logger := observability.NewWriterLogger(out).WithLLMLog(cfg.App.LLMLog)

	a := &app{cfg: cfg, logger: logger, close: func() error { return nil }}
	switch cfg.Memory.Type {
	case "memory":
		a.store = store.NewMemoryStore()
	default:
		cs, err := store.NewCheckpointStore(cfg.Memory.Path)
		if err != nil {
			return nil, err
		}
		locker, err := store.NewThreadLocker(cfg.Memory.LockDir)
		if err != nil {
			cs.Close()
			return nil, err
		}
		a.store, a.locker, a.close = cs, locker, cs.Close
	}
	return a, nil
}

func (a *app) newModel() (llms.Model, error) {
	name, p := a.cfg.GetDefaultProvider()
	if name == "" {
		return nil, fmt.Errorf("no enabled provider found in config")
	}

	switch name {
	case "openai", "openrouter":
		opts := []openai.Option{
			openai.WithToken(p.APIKey),
			openai.WithModel(p.Model),
		}
		if p.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(p.BaseURL))
		}
		llm, err := openai.New(opts...)
		if err != nil {
			return nil, err
		}
		return llm, nil
	default:
		return nil, fmt.Errorf("provider %s is not supported", name)
	}
}

func (a *app) newRegistry() *tools.Registry {
	tc := a.cfg.Tools
	registry := tools.NewRegistry()

	registry.Register(tools.NewWineSearchTool(tools.NewWineSearchClient(tc.WineSearchURL, tc.Timeout)))
	registry.Register(tools.NewPageTool(tc.Timeout))

	webSearch, err := tools.NewWebSearchTool(tc.WebSearchResults)
	if err != nil {
		log.Printf("Warning: Failed to initialize search tool: %v", err)
	} else {
		registry.Register(webSearch)
	}

	workDir := filepath.Join(a.cfg.App.Workspace, "sandbox")
	if err := os.MkdirAll(workDir, 0o750); err != nil {
		log.Printf("Warning: Failed to create sandbox directory: %v", err)
		workDir = ""
	}
	registry.Register(tools.NewPythonTool(tools.NewPythonRunner(tc.PythonPath, workDir, tc.Timeout)))
	if workDir != "" {
		registry.Register(tools.NewWorkspaceTool(workDir))
	}
	return registry
}

// newEngine wires the model-backed capabilities into a workflow engine.
func (a *app) newEngine(overrides ...func(*workflow.Options)) (*workflow.Engine, error) {
	model, err := a.newModel()
	if err != nil {
		return nil, err
	}

	prompts := agent.NewPromptManager(a.cfg.App.PromptsDir)
	if a.cfg.App.Locale != "" {
		prompts.Locale = a.cfg.App.Locale
	}
	registry := a.newRegistry()

	wc := a.cfg.Workflow
	wopts := agent.WorkerOptions{
		Budget:       wc.ToolCallBudget,
		ToolTimeout:  a.cfg.Tools.Timeout,
		ModelTimeout: wc.ModelTimeout,
		RateLimit:    wc.ToolRateLimit,
	}

	gov := governance.NewDefaultPolicyEngine()
	// Default safety rules: Block dangerous destructive commands
	_ = gov.DenyArguments(`rm\s+-rf`)
	_ = gov.DenyArguments(`mkfs`)

	coordinator := agent.NewCoordinator(model, prompts, a.logger)
	coordinator.Timeout = wc.ModelTimeout
	planner := agent.NewPlanner(model, prompts, registry, a.logger)
	planner.Timeout = wc.ModelTimeout
	reporter := agent.NewReporter(model, prompts, a.logger)
	reporter.Timeout = wc.ModelTimeout

	caps := workflow.Capabilities{
		Coordinator: coordinator,
		Planner:     planner,
		Researcher: agent.NewWorker(agent.RoleResearcher, model,
			registry.Subset("wine_search", "web_search", "fetch_page"), prompts, gov, a.logger, wopts),
		Coder: agent.NewWorker(agent.RoleCoder, model,
			registry.Subset("python_repl", "workspace_files"), prompts, governance.NewSandboxPolicy("python_repl"), a.logger, wopts),
		Reporter: reporter,
	}

	opts := wc.Options()
	for _, o := range overrides {
		o(&opts)
	}

	engineOpts := []workflow.EngineOption{workflow.WithLogger(a.logger)}
	if a.locker != nil {
		engineOpts = append(engineOpts, workflow.WithLocker(a.locker))
	}
	return workflow.NewEngine(caps, a.store, opts, engineOpts...)
}
