package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"

	"github.com/rahul/planflow/internal/observability"
	"github.com/rahul/planflow/internal/workflow"
)

const tableInstruction = `Format the wines you recommend as a markdown table with these columns:

| Wine Name | Description | Vintage Year | Region | Country | User Rating | Price per Bottle | Estimated Quantity | Total Price |

Use '-' for any missing data, except vintage_year which should be 0.`

// Reporter writes the final answer from the plan and its observations.
type Reporter struct {
	Model   llms.Model
	Prompts *PromptManager
	Logger  *observability.Logger
	Timeout time.Duration
}

func NewReporter(model llms.Model, prompts *PromptManager, logger *observability.Logger) *Reporter {
	return &Reporter{Model: model, Prompts: prompts, Logger: logger, Timeout: DefaultModelTimeout}
}

func (r *Reporter) Synthesize(ctx context.Context, req workflow.ReportRequest) (string, error) {
	prompt, err := r.Prompts.GetPrompt(RoleReporter, PromptData{})
	if err != nil {
		return "", err
	}

	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, prompt),
		llms.TextParts(llms.ChatMessageTypeHuman, requirements(req)),
		llms.TextParts(llms.ChatMessageTypeHuman, tableInstruction),
	}
	for _, obs := range req.Observations {
		messages = append(messages, llms.TextParts(llms.ChatMessageTypeHuman,
			"Below are some observations for the research task:\n\n"+obs.Content))
	}

	choice, err := generate(ctx, r.Model, r.Timeout, messages)
	if err != nil {
		return "", err
	}
	r.Logger.LogLLM(req.ThreadID, RoleReporter, len(req.Observations), choice.Content, nil)

	if strings.TrimSpace(choice.Content) == "" {
		return "", errors.New("model returned an empty report")
	}
	return choice.Content, nil
}

// requirements describes the research task. Without a plan the last user
// request stands in for it.
func requirements(req workflow.ReportRequest) string {
	var title, thought string
	if req.Plan != nil {
		title, thought = req.Plan.Title, req.Plan.Thought
	} else {
		for i := len(req.Messages) - 1; i >= 0; i-- {
			if req.Messages[i].Role == workflow.RoleHuman {
				title = req.Messages[i].Content
				break
			}
		}
	}
	return fmt.Sprintf("# Research Requirements\n\n## Task\n\n%s\n\n## Description\n\n%s", title, thought)
}
