package agent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tmc/langchaingo/llms"
	"golang.org/x/time/rate"

	"github.com/rahul/planflow/internal/governance"
	"github.com/rahul/planflow/internal/observability"
	"github.com/rahul/planflow/internal/tools"
)

const (
	DefaultToolCallBudget = 25
	DefaultToolTimeout    = 60 * time.Second
)

// ErrToolBudgetExhausted is returned when a worker wants more tool calls
// than its budget allows.
var ErrToolBudgetExhausted = errors.New("tool call budget exhausted")

// NormalizeBudget returns the default budget for values that are not
// positive. ok is false when the fallback was used.
func NormalizeBudget(n int) (budget int, ok bool) {
	if n <= 0 {
		return DefaultToolCallBudget, false
	}
	return n, true
}

type WorkerOptions struct {
	Budget       int
	ToolTimeout  time.Duration
	ModelTimeout time.Duration
	// RateLimit is tool calls per second shared by the worker. Zero means
	// unlimited.
	RateLimit float64
}

// Worker is a ReAct agent that completes one plan step with its tools.
// The researcher and the coder are both Workers with different tools.
type Worker struct {
	Name         string
	Model        llms.Model
	Registry     *tools.Registry
	Prompts      *PromptManager
	Policy       governance.PolicyEngine
	Limiter      *rate.Limiter
	Logger       *observability.Logger
	Budget       int
	ToolTimeout  time.Duration
	ModelTimeout time.Duration
}

func NewWorker(name string, model llms.Model, registry *tools.Registry, prompts *PromptManager, policy governance.PolicyEngine, logger *observability.Logger, opts WorkerOptions) *Worker {
	budget, ok := NormalizeBudget(opts.Budget)
	if !ok {
		logger.LogWarning("", name, fmt.Sprintf("invalid tool call budget %d, using default %d", opts.Budget, budget))
	}
	if opts.ToolTimeout <= 0 {
		opts.ToolTimeout = DefaultToolTimeout
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if opts.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), 1)
	}
	if policy == nil {
		policy = governance.NewDefaultPolicyEngine()
	}

	return &Worker{
		Name:         name,
		Model:        model,
		Registry:     registry,
		Prompts:      prompts,
		Policy:       policy,
		Limiter:      limiter,
		Logger:       logger,
		Budget:       budget,
		ToolTimeout:  opts.ToolTimeout,
		ModelTimeout: opts.ModelTimeout,
	}
}

// Execute runs the reasoning loop on task until the model answers without
// calling a tool.
func (w *Worker) Execute(ctx context.Context, threadID, task string) (string, error) {
	systemPrompt, err := w.Prompts.GetPrompt(w.Name, PromptData{})
	if err != nil {
		return "", err
	}
	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, systemPrompt),
		llms.TextParts(llms.ChatMessageTypeHuman, task),
	}

	var opts []llms.CallOption
	if defs := toolDefinitions(w.Registry); len(defs) > 0 {
		opts = append(opts, llms.WithTools(defs))
	}

	calls := 0
	for {
		choice, err := generate(ctx, w.Model, w.ModelTimeout, messages, opts...)
		if err != nil {
			return "", err
		}
		w.Logger.LogLLM(threadID, w.Name, task, choice.Content, choice.ToolCalls)

		var assistantParts []llms.ContentPart
		if choice.Content != "" {
			assistantParts = append(assistantParts, llms.TextContent{Text: choice.Content})
		}
		for _, tc := range choice.ToolCalls {
			assistantParts = append(assistantParts, tc)
		}
		messages = append(messages, llms.MessageContent{
			Role:  llms.ChatMessageTypeAI,
			Parts: assistantParts,
		})

		// No tool calls means this is the final answer.
		if len(choice.ToolCalls) == 0 {
			return choice.Content, nil
		}

		for _, tc := range choice.ToolCalls {
			if calls >= w.Budget {
				return "", fmt.Errorf("%w: %s used %d calls", ErrToolBudgetExhausted, w.Name, calls)
			}
			calls++

			result, err := w.runTool(ctx, threadID, tc)
			if err != nil {
				return "", err
			}
			messages = append(messages, llms.MessageContent{
				Role: llms.ChatMessageTypeTool,
				Parts: []llms.ContentPart{
					llms.ToolCallResponse{
						ToolCallID: tc.ID,
						Name:       tc.FunctionCall.Name,
						Content:    result,
					},
				},
			})
		}
	}
}

// runTool returns the observation for one tool call. Tool failures become
// text for the model; only cancellation is returned as an error.
func (w *Worker) runTool(ctx context.Context, threadID string, tc llms.ToolCall) (string, error) {
	if tc.FunctionCall == nil {
		return "Error: malformed tool call", nil
	}
	name, args := tc.FunctionCall.Name, tc.FunctionCall.Arguments

	tool := w.Registry.Get(name)
	if tool == nil {
		return fmt.Sprintf("Error: Tool %s not found", name), nil
	}

	verdict, err := w.Policy.Evaluate(ctx, governance.Request{Tool: name, Arguments: args, ThreadID: threadID, Executor: w.Name})
	if err != nil {
		return fmt.Sprintf("Error: policy check failed: %v", err), nil
	}
	w.Logger.LogPolicy(threadID, w.Name, name, string(verdict.Effect), verdict.Reason)
	if verdict.Effect == governance.EffectDeny {
		return "Error: " + verdict.Reason, nil
	}

	if err := w.Limiter.Wait(ctx); err != nil {
		return "", err
	}

	w.Logger.LogToolCall(threadID, w.Name, name, args)
	tctx, cancel := context.WithTimeout(ctx, w.ToolTimeout)
	defer cancel()

	res, err := tool.Execute(tctx, args)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return fmt.Sprintf("Error: %v", err), nil
	}
	return res, nil
}
