package workflow

import (
	"context"
	"fmt"

	"github.com/rahul/planflow/internal/plan"
)

// dispatcherNode routes to the executor of the first incomplete step. It
// never changes state.
type dispatcherNode struct {
	opts Options
}

func (n *dispatcherNode) Name() NodeName { return NodeDispatcher }

func (n *dispatcherNode) Run(ctx context.Context, st *State) (Command, error) {
	if st.StepFailure != "" {
		if len(st.Observations) > 0 {
			return goTo(NodeReporter, StateUpdate{}), nil
		}
		return fail(fmt.Errorf("%w: %s", ErrExecutor, st.StepFailure)), nil
	}
	if st.CurrentPlan == nil || len(st.CurrentPlan.Steps) == 0 {
		return goTo(NodePlanner, StateUpdate{}), nil
	}

	_, step, ok := plan.FirstIncompleteStep(st.CurrentPlan)
	if !ok {
		return goTo(NodeReporter, StateUpdate{}), nil
	}
	switch {
	case step.StepType == plan.StepResearch:
		return goTo(NodeResearcher, StateUpdate{}), nil
	case step.StepType == plan.StepProcessing, n.opts.CompatRouting:
		return goTo(NodeCoder, StateUpdate{}), nil
	default:
		return fail(fmt.Errorf("%w: %q in step %q", ErrUnknownStepType, step.StepType, step.Title)), nil
	}
}
