package workflow

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rahul/planflow/internal/observability"
	"github.com/rahul/planflow/internal/plan"
)

// stepNode runs the first incomplete step through an Executor and writes
// the result back into the plan. Researcher and coder share it.
type stepNode struct {
	name   NodeName
	exec   Executor
	opts   Options
	logger *observability.Logger
}

func (n *stepNode) Name() NodeName { return n.name }

func (n *stepNode) Run(ctx context.Context, st *State) (Command, error) {
	i, step, ok := plan.FirstIncompleteStep(st.CurrentPlan)
	if !ok {
		n.logger.LogWarning(st.ThreadID, string(n.name), "no incomplete step to execute")
		return goTo(NodeDispatcher, StateUpdate{}), nil
	}
	n.logger.LogStep(st.ThreadID, string(n.name), step.Title, "started")

	task := TaskInput(plan.CompletedSteps(st.CurrentPlan), *step)
	out, err := n.exec.Execute(ctx, st.ThreadID, task)
	if err != nil {
		if ctx.Err() != nil {
			return Command{}, ctx.Err()
		}
		n.logger.LogStep(st.ThreadID, string(n.name), step.Title, "failed")
		return goTo(NodeDispatcher, StateUpdate{
			StepFailure: strPtr(fmt.Sprintf("step %q: %v", step.Title, err)),
		}), nil
	}

	if strings.TrimSpace(out) == "" {
		attempts := copyAttempts(st.StepAttempts)
		if attempts == nil {
			attempts = map[int]int{}
		}
		attempts[i]++
		n.logger.LogStep(st.ThreadID, string(n.name), step.Title, "empty")
		u := StateUpdate{StepAttempts: attempts}
		if attempts[i] >= n.opts.MaxStepAttempts {
			u.StepFailure = strPtr(fmt.Sprintf("step %q returned no result after %d attempts", step.Title, attempts[i]))
		}
		return goTo(NodeDispatcher, u), nil
	}

	p := st.CurrentPlan.Clone()
	p.Complete(i, out)
	n.logger.LogStep(st.ThreadID, string(n.name), step.Title, "completed")
	return goTo(NodeDispatcher, StateUpdate{
		CurrentPlan:  p,
		Observations: []Observation{{Step: step.Title, Executor: string(n.name), Content: out, At: time.Now().UTC()}},
		Messages:     []Message{{Role: RoleAI, Name: string(n.name), Content: out}},
	}), nil
}
