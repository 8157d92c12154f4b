package workflow

import (
	"context"
	"fmt"

	"github.com/rahul/planflow/internal/observability"
	"github.com/rahul/planflow/internal/plan"
)

type plannerNode struct {
	gen    PlanGenerator
	opts   Options
	logger *observability.Logger
}

func (n *plannerNode) Name() NodeName { return NodePlanner }

func (n *plannerNode) Run(ctx context.Context, st *State) (Command, error) {
	if st.PlanIterations >= n.opts.MaxPlanIterations {
		return goTo(NodeReporter, StateUpdate{}), nil
	}

	raw, err := n.gen.GeneratePlan(ctx, PlanRequest{
		ThreadID:   st.ThreadID,
		Messages:   st.Messages,
		Findings:   FindingsDigest(plan.CompletedSteps(st.CurrentPlan)),
		MaxStepNum: n.opts.MaxStepNum,
	})
	if err != nil && ctx.Err() != nil {
		return Command{}, ctx.Err()
	}
	var p *plan.Plan
	if err == nil {
		p, err = plan.Parse(raw)
	}
	if err != nil {
		return planningFailed(st, err, n.logger), nil
	}
	p.Truncate(n.opts.MaxStepNum)
	n.logger.LogPlan(st.ThreadID, p.Title, len(p.Steps), p.HasEnoughContext)

	doc := p.JSON()
	u := StateUpdate{
		Messages:     []Message{{Role: RoleAI, Name: string(NodePlanner), Content: doc}},
		CurrentPlan:  p,
		PendingPlan:  &doc,
		StepAttempts: map[int]int{},
		StepFailure:  strPtr(""),
	}
	switch {
	case plan.AllStepsComplete(p):
		return goTo(NodeReporter, u), nil
	case p.HasEnoughContext:
		return goTo(NodeDispatcher, u), nil
	default:
		return goTo(NodeHumanFeedback, u), nil
	}
}

// planningFailed reports what there is once a plan was accepted and fails
// the run otherwise.
func planningFailed(st *State, err error, logger *observability.Logger) Command {
	if st.PlanIterations > 0 {
		logger.LogWarning(st.ThreadID, string(NodePlanner), "plan rejected, reporting existing findings: "+err.Error())
		return goTo(NodeReporter, StateUpdate{})
	}
	return fail(fmt.Errorf("%w: %v", ErrPlanning, err))
}
