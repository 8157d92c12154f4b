package workflow

import (
	"context"
	"fmt"
)

type reporterNode struct {
	synth Synthesizer
}

func (n *reporterNode) Name() NodeName { return NodeReporter }

func (n *reporterNode) Run(ctx context.Context, st *State) (Command, error) {
	report, err := n.synth.Synthesize(ctx, ReportRequest{
		ThreadID:     st.ThreadID,
		Plan:         st.CurrentPlan,
		Observations: st.Observations,
		Messages:     st.Messages,
	})
	if err != nil {
		if ctx.Err() != nil {
			return Command{}, ctx.Err()
		}
		return fail(fmt.Errorf("%w: %v", ErrReport, err)), nil
	}
	return goTo(End, StateUpdate{
		Messages:    []Message{{Role: RoleAI, Name: string(NodeReporter), Content: report}},
		FinalReport: &report,
	}), nil
}
