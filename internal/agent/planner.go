package agent

import (
	"context"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"

	"github.com/rahul/planflow/internal/observability"
	"github.com/rahul/planflow/internal/tools"
	"github.com/rahul/planflow/internal/workflow"
)

// Planner asks the model for a plan document in JSON mode.
type Planner struct {
	Model   llms.Model
	Prompts *PromptManager
	// Tools lists the executors' capabilities so steps stay feasible.
	Tools   *tools.Registry
	Logger  *observability.Logger
	Timeout time.Duration
}

func NewPlanner(model llms.Model, prompts *PromptManager, registry *tools.Registry, logger *observability.Logger) *Planner {
	return &Planner{Model: model, Prompts: prompts, Tools: registry, Logger: logger, Timeout: DefaultModelTimeout}
}

func (p *Planner) GeneratePlan(ctx context.Context, req workflow.PlanRequest) (string, error) {
	prompt, err := p.Prompts.GetPrompt(RolePlanner, PromptData{MaxStepNum: req.MaxStepNum})
	if err != nil {
		return "", err
	}
	if p.Tools != nil && len(p.Tools.Tools) > 0 {
		var lines []string
		for _, t := range p.Tools.List() {
			lines = append(lines, "- "+t.Name()+": "+t.Description())
		}
		prompt += "\n\n## Available Tools\n" + strings.Join(lines, "\n")
	}

	messages := conversation(prompt, req.Messages)
	if req.Findings != "" {
		messages = append(messages, llms.TextParts(llms.ChatMessageTypeHuman, req.Findings))
	}

	choice, err := generate(ctx, p.Model, p.Timeout, messages, llms.WithJSONMode())
	if err != nil {
		return "", err
	}
	p.Logger.LogLLM(req.ThreadID, RolePlanner, req.Findings, choice.Content, nil)
	return choice.Content, nil
}
