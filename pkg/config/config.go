// Package config loads planflow settings from YAML and the environment.
package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/renameio/v2"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/rahul/planflow/internal/workflow"
)

const (
	EnvPrefix = "PLANFLOW"
	// RecursionLimitEnv overrides the executors' tool call budget.
	RecursionLimitEnv = "AGENT_RECURSION_LIMIT"
)

type Config struct {
	App       AppConfig                 `mapstructure:"app" yaml:"app"`
	Gateways  map[string]GatewayConfig  `mapstructure:"gateways" yaml:"gateways"`
	Providers map[string]ProviderConfig `mapstructure:"providers" yaml:"providers"`
	Memory    MemoryConfig              `mapstructure:"memory" yaml:"memory"`
	Workflow  WorkflowConfig            `mapstructure:"workflow" yaml:"workflow"`
	Tools     ToolsConfig               `mapstructure:"tools" yaml:"tools"`
}

type AppConfig struct {
	Name       string `mapstructure:"name" yaml:"name"`
	Workspace  string `mapstructure:"workspace" yaml:"workspace"`
	PromptsDir string `mapstructure:"prompts_dir" yaml:"prompts_dir"`
	Locale     string `mapstructure:"locale" yaml:"locale"`
	LLMLog     string `mapstructure:"llm_log" yaml:"llm_log"`
}

type GatewayConfig struct {
	Token   string `mapstructure:"token" yaml:"token"`
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
}

type ProviderConfig struct {
	APIKey  string `mapstructure:"api_key" yaml:"api_key"`
	Model   string `mapstructure:"model" yaml:"model"`
	BaseURL string `mapstructure:"base_url" yaml:"base_url,omitempty"`
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
}

// MemoryConfig selects the checkpoint store. Type is "sqlite" or "memory".
type MemoryConfig struct {
	Type    string `mapstructure:"type" yaml:"type"`
	Path    string `mapstructure:"path" yaml:"path"`
	LockDir string `mapstructure:"lock_dir" yaml:"lock_dir"`
}

type WorkflowConfig struct {
	MaxPlanIterations int           `mapstructure:"max_plan_iterations" yaml:"max_plan_iterations"`
	MaxStepNum        int           `mapstructure:"max_step_num" yaml:"max_step_num"`
	RecursionLimit    int           `mapstructure:"recursion_limit" yaml:"recursion_limit"`
	MaxStepAttempts   int           `mapstructure:"max_step_attempts" yaml:"max_step_attempts"`
	MaxPlanEdits      int           `mapstructure:"max_plan_edits" yaml:"max_plan_edits"`
	AutoAcceptPlan    bool          `mapstructure:"auto_accept_plan" yaml:"auto_accept_plan"`
	CompatRouting     bool          `mapstructure:"compat_routing" yaml:"compat_routing"`
	ToolCallBudget    int           `mapstructure:"tool_call_budget" yaml:"tool_call_budget"`
	ToolRateLimit     float64       `mapstructure:"tool_rate_limit" yaml:"tool_rate_limit"`
	ModelTimeout      time.Duration `mapstructure:"model_timeout" yaml:"model_timeout"`
}

type ToolsConfig struct {
	WineSearchURL    string        `mapstructure:"wine_search_url" yaml:"wine_search_url"`
	WebSearchResults int           `mapstructure:"web_search_results" yaml:"web_search_results"`
	PythonPath       string        `mapstructure:"python_path" yaml:"python_path"`
	Timeout          time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// Options converts the workflow section into engine options.
func (w WorkflowConfig) Options() workflow.Options {
	return workflow.Options{
		MaxPlanIterations: w.MaxPlanIterations,
		MaxStepNum:        w.MaxStepNum,
		RecursionLimit:    w.RecursionLimit,
		MaxStepAttempts:   w.MaxStepAttempts,
		MaxPlanEdits:      w.MaxPlanEdits,
		AutoAcceptPlan:    w.AutoAcceptPlan,
		CompatRouting:     w.CompatRouting,
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "planflow")
	v.SetDefault("app.workspace", ".planflow")
	v.SetDefault("app.prompts_dir", "")
	v.SetDefault("app.locale", "en-US")
	v.SetDefault("app.llm_log", ".planflow/logs/llm.jsonl")

	v.SetDefault("gateways.telegram.enabled", false)
	v.SetDefault("gateways.telegram.token", "")
	v.SetDefault("gateways.discord.enabled", false)
	v.SetDefault("gateways.discord.token", "")

	v.SetDefault("providers.openai.enabled", true)
	v.SetDefault("providers.openai.model", "gpt-4o-mini")
	v.SetDefault("providers.openai.api_key", "")
	v.SetDefault("providers.openai.base_url", "")

	v.SetDefault("memory.type", "sqlite")
	v.SetDefault("memory.path", ".planflow/state/checkpoints.db")
	v.SetDefault("memory.lock_dir", ".planflow/state/locks")

	v.SetDefault("workflow.max_plan_iterations", workflow.DefaultMaxPlanIterations)
	v.SetDefault("workflow.max_step_num", workflow.DefaultMaxStepNum)
	v.SetDefault("workflow.recursion_limit", workflow.DefaultRecursionLimit)
	v.SetDefault("workflow.max_step_attempts", workflow.DefaultMaxStepAttempts)
	v.SetDefault("workflow.max_plan_edits", workflow.DefaultMaxPlanEdits)
	v.SetDefault("workflow.auto_accept_plan", false)
	v.SetDefault("workflow.compat_routing", false)
	v.SetDefault("workflow.tool_call_budget", 25)
	v.SetDefault("workflow.tool_rate_limit", 2.0)
	v.SetDefault("workflow.model_timeout", "120s")

	v.SetDefault("tools.wine_search_url", "http://localhost:8000")
	v.SetDefault("tools.web_search_results", 5)
	v.SetDefault("tools.python_path", "python3")
	v.SetDefault("tools.timeout", "60s")
}

// Load reads path (optional) on top of the defaults, then applies
// PLANFLOW_* environment overrides, e.g. PLANFLOW_WORKFLOW_MAX_STEP_NUM.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("providers.openai.api_key", EnvPrefix+"_PROVIDERS_OPENAI_API_KEY", "OPENAI_API_KEY")
	_ = v.BindEnv("gateways.telegram.token", EnvPrefix+"_GATEWAYS_TELEGRAM_TOKEN", "TELEGRAM_BOT_TOKEN")
	_ = v.BindEnv("gateways.discord.token", EnvPrefix+"_GATEWAYS_DISCORD_TOKEN", "DISCORD_BOT_TOKEN")

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("reading config: %w", err)
			}
			log.Printf("Config file %s not found, using defaults", path)
		}
	}

	applyRecursionLimitEnv(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyRecursionLimitEnv honours AGENT_RECURSION_LIMIT. Invalid values are
// ignored with a warning.
func applyRecursionLimitEnv(v *viper.Viper) {
	raw, ok := os.LookupEnv(RecursionLimitEnv)
	if !ok || strings.TrimSpace(raw) == "" {
		return
	}
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n <= 0 {
		log.Printf("Warning: %s=%q is not a positive integer, using %d", RecursionLimitEnv, raw, v.GetInt("workflow.tool_call_budget"))
		return
	}
	v.Set("workflow.tool_call_budget", n)
}

func (c *Config) Validate() error {
	switch c.Memory.Type {
	case "sqlite":
		if c.Memory.Path == "" {
			return fmt.Errorf("memory.path is required for the sqlite store")
		}
	case "memory":
	default:
		return fmt.Errorf("unknown memory.type %q", c.Memory.Type)
	}
	if c.Tools.Timeout < 0 {
		return fmt.Errorf("tools.timeout must not be negative")
	}
	if c.Workflow.ModelTimeout < 0 {
		return fmt.Errorf("workflow.model_timeout must not be negative")
	}
	return nil
}

// Default returns the built-in configuration.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("config defaults do not decode: %v", err))
	}
	return &cfg
}

// WriteDefault writes the built-in configuration to path atomically.
func WriteDefault(path string) error {
	data, err := yaml.Marshal(Default())
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return err
	}
	return renameio.WriteFile(path, data, 0o600)
}

// GetDefaultProvider returns the first enabled provider
func (c *Config) GetDefaultProvider() (string, ProviderConfig) {
	for name, p := range c.Providers {
		if p.Enabled {
			return name, p
		}
	}
	return "", ProviderConfig{}
}

// GetGateway returns the named gateway config if enabled
func (c *Config) GetGateway(name string) (GatewayConfig, bool) {
	gw, ok := c.Gateways[name]
	if ok && gw.Enabled && gw.Token != "" {
		return gw, true
	}
	return GatewayConfig{}, false
}
