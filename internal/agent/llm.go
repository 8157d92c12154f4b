package agent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tmc/langchaingo/llms"

	"github.com/rahul/planflow/internal/tools"
	"github.com/rahul/planflow/internal/workflow"
)

// DefaultModelTimeout bounds a single model call.
const DefaultModelTimeout = 2 * time.Minute

var errEmptyResponse = errors.New("model returned no choices")

// generate runs one model call bounded by timeout and returns its first
// choice. A timeout of zero or less uses DefaultModelTimeout.
func generate(ctx context.Context, model llms.Model, timeout time.Duration, messages []llms.MessageContent, opts ...llms.CallOption) (*llms.ContentChoice, error) {
	if timeout <= 0 {
		timeout = DefaultModelTimeout
	}
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resp, err := model.GenerateContent(cctx, messages, opts...)
	if err != nil {
		if ctx.Err() == nil && cctx.Err() != nil {
			return nil, fmt.Errorf("model call timed out after %s: %w", timeout, err)
		}
		return nil, err
	}
	return firstChoice(resp)
}

func firstChoice(resp *llms.ContentResponse) (*llms.ContentChoice, error) {
	if resp == nil || len(resp.Choices) == 0 {
		return nil, errEmptyResponse
	}
	return resp.Choices[0], nil
}

// conversation converts workflow messages into model messages behind a
// system prompt.
func conversation(systemPrompt string, msgs []workflow.Message) []llms.MessageContent {
	out := make([]llms.MessageContent, 0, len(msgs)+1)
	if systemPrompt != "" {
		out = append(out, llms.TextParts(llms.ChatMessageTypeSystem, systemPrompt))
	}
	for _, m := range msgs {
		role := llms.ChatMessageTypeHuman
		switch m.Role {
		case workflow.RoleAI:
			role = llms.ChatMessageTypeAI
		case workflow.RoleSystem:
			role = llms.ChatMessageTypeSystem
		}
		out = append(out, llms.TextParts(role, m.Content))
	}
	return out
}

func toolDefinitions(r *tools.Registry) []llms.Tool {
	if r == nil {
		return nil
	}
	var defs []llms.Tool
	for _, t := range r.List() {
		defs = append(defs, llms.Tool{
			Type: "function",
			Function: &llms.FunctionDefinition{
				Name:        t.Name(),
				Description: t.Description(),
				Parameters:  t.Parameters(),
			},
		})
	}
	return defs
}
