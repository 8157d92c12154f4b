package workflow

import (
	"context"
	"fmt"
)

// NodeName identifies a node of the graph.
type NodeName string

const (
	NodeCoordinator   NodeName = "coordinator"
	NodePlanner       NodeName = "planner"
	NodeHumanFeedback NodeName = "human_feedback"
	NodeDispatcher    NodeName = "research_team"
	NodeResearcher    NodeName = "researcher"
	NodeCoder         NodeName = "coder"
	NodeReporter      NodeName = "reporter"

	// End and ErrorEnd are terminal. ErrorEnd carries a fatal error.
	End      NodeName = "__end__"
	ErrorEnd NodeName = "__error__"
)

// Terminal reports whether n ends a run.
func (n NodeName) Terminal() bool {
	return n == End || n == ErrorEnd
}

// Command is what a node returns: where to go next and what to change.
// Interrupt halts the run at the current node until Resume is called.
type Command struct {
	Goto      NodeName
	Update    StateUpdate
	Interrupt bool
	// Err is set with Goto == ErrorEnd and becomes the run's fatal error.
	Err error
}

// Node is one step of the graph. Run receives a private copy of the
// state. A non-nil error means the node could not finish at all (for
// example ctx was cancelled); the engine then leaves the thread at this
// node so it can be continued later. Domain failures are reported with a
// Command that goes to ErrorEnd instead.
type Node interface {
	Name() NodeName
	Run(ctx context.Context, st *State) (Command, error)
}

// edges lists every transition the graph allows. ErrorEnd is reachable
// from every node.
var edges = map[NodeName][]NodeName{
	NodeCoordinator:   {NodePlanner, End},
	NodePlanner:       {NodeReporter, NodeDispatcher, NodeHumanFeedback},
	NodeHumanFeedback: {NodePlanner, NodeDispatcher, NodeReporter},
	NodeDispatcher:    {NodePlanner, NodeResearcher, NodeCoder, NodeReporter},
	NodeResearcher:    {NodeDispatcher},
	NodeCoder:         {NodeDispatcher},
	NodeReporter:      {End},
}

func checkEdge(from, to NodeName) error {
	if to == ErrorEnd {
		return nil
	}
	for _, n := range edges[from] {
		if n == to {
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
}

func goTo(n NodeName, u StateUpdate) Command {
	return Command{Goto: n, Update: u}
}

func fail(err error) Command {
	return Command{Goto: ErrorEnd, Err: err}
}
