package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/tmc/langchaingo/llms"

	"github.com/rahul/planflow/internal/observability"
	"github.com/rahul/planflow/internal/workflow"
)

const handoffTool = "handoff_to_planner"

var coordinatorTools = []llms.Tool{
	{
		Type: "function",
		Function: &llms.FunctionDefinition{
			Name:        handoffTool,
			Description: "Hand the request to the planner when it needs research or calculation.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"task_title": map[string]any{
						"type":        "string",
						"description": "The title of the task to be handed off.",
					},
				},
				"required": []string{"task_title"},
			},
		},
	},
}

// Coordinator decides whether a request goes to the planner.
type Coordinator struct {
	Model   llms.Model
	Prompts *PromptManager
	Logger  *observability.Logger
	Timeout time.Duration
}

func NewCoordinator(model llms.Model, prompts *PromptManager, logger *observability.Logger) *Coordinator {
	return &Coordinator{Model: model, Prompts: prompts, Logger: logger, Timeout: DefaultModelTimeout}
}

func (c *Coordinator) Classify(ctx context.Context, threadID string, msgs []workflow.Message) (workflow.Classification, error) {
	prompt, err := c.Prompts.GetPrompt(RoleCoordinator, PromptData{})
	if err != nil {
		return workflow.Classification{}, err
	}

	choice, err := generate(ctx, c.Model, c.Timeout, conversation(prompt, msgs), llms.WithTools(coordinatorTools))
	if err != nil {
		return workflow.Classification{}, err
	}
	c.Logger.LogLLM(threadID, RoleCoordinator, msgs, choice.Content, choice.ToolCalls)

	for _, tc := range choice.ToolCalls {
		if tc.FunctionCall == nil || tc.FunctionCall.Name != handoffTool {
			continue
		}
		var args struct {
			TaskTitle string `json:"task_title"`
		}
		if err := json.Unmarshal([]byte(tc.FunctionCall.Arguments), &args); err != nil {
			return workflow.Classification{}, fmt.Errorf("failed to parse %s arguments: %w", handoffTool, err)
		}
		return workflow.Classification{Handoff: true, Title: args.TaskTitle}, nil
	}
	return workflow.Classification{Reply: choice.Content}, nil
}
