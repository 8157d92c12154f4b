package workflow

import (
	"context"

	"github.com/rahul/planflow/internal/plan"
)

// Classification is the coordinator's verdict on the latest request.
type Classification struct {
	// Handoff routes the request to the planner. Otherwise Reply answers
	// the user directly.
	Handoff bool
	Title   string
	Reply   string
}

type Classifier interface {
	Classify(ctx context.Context, threadID string, msgs []Message) (Classification, error)
}

// PlanRequest is the input for one planning call.
type PlanRequest struct {
	ThreadID   string
	Messages   []Message
	Findings   string
	MaxStepNum int
}

// PlanGenerator returns the raw text of a plan document. The planner node
// repairs and parses it.
type PlanGenerator interface {
	GeneratePlan(ctx context.Context, req PlanRequest) (string, error)
}

// Executor runs one plan step. An empty result means the step did not
// complete.
type Executor interface {
	Execute(ctx context.Context, threadID, task string) (string, error)
}

// ReportRequest is the input for the final report.
type ReportRequest struct {
	ThreadID     string
	Plan         *plan.Plan
	Observations []Observation
	Messages     []Message
}

type Synthesizer interface {
	Synthesize(ctx context.Context, req ReportRequest) (string, error)
}

// Capabilities are the collaborators behind the graph's nodes.
type Capabilities struct {
	Coordinator Classifier
	Planner     PlanGenerator
	Researcher  Executor
	Coder       Executor
	Reporter    Synthesizer
}
