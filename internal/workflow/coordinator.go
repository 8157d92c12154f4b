package workflow

import (
	"context"
	"fmt"
)

type coordinatorNode struct {
	classifier Classifier
}

func (n *coordinatorNode) Name() NodeName { return NodeCoordinator }

// Run hands research requests to the planner and answers anything else
// directly.
func (n *coordinatorNode) Run(ctx context.Context, st *State) (Command, error) {
	c, err := n.classifier.Classify(ctx, st.ThreadID, st.Messages)
	if err != nil {
		if ctx.Err() != nil {
			return Command{}, ctx.Err()
		}
		return fail(fmt.Errorf("%w: %v", ErrCoordinator, err)), nil
	}
	if c.Handoff {
		return goTo(NodePlanner, StateUpdate{}), nil
	}
	return goTo(End, StateUpdate{
		Messages: []Message{{Role: RoleAI, Name: string(NodeCoordinator), Content: c.Reply}},
	}), nil
}
