package workflow

import (
	"context"
	"fmt"
	"strings"

	"github.com/rahul/planflow/internal/observability"
	"github.com/rahul/planflow/internal/plan"
)

// Resume tokens understood by the human feedback node. Matching is on the
// upper-cased, trimmed prefix; text after EDIT_PLAN is the edit request.
const (
	TokenAccepted = "[ACCEPTED]"
	TokenEditPlan = "[EDIT_PLAN]"
)

type feedbackKind int

const (
	feedbackUnknown feedbackKind = iota
	feedbackAccepted
	feedbackEdit
)

func parseFeedback(token string) (feedbackKind, string) {
	t := strings.TrimSpace(token)
	upper := strings.ToUpper(t)
	for _, p := range []struct {
		prefix string
		kind   feedbackKind
	}{
		{TokenAccepted, feedbackAccepted},
		{TokenEditPlan, feedbackEdit},
		{strings.Trim(TokenAccepted, "[]"), feedbackAccepted},
		{strings.Trim(TokenEditPlan, "[]"), feedbackEdit},
	} {
		if strings.HasPrefix(upper, p.prefix) {
			rest := strings.TrimSpace(t[len(p.prefix):])
			return p.kind, strings.TrimSpace(strings.TrimPrefix(rest, ":"))
		}
	}
	return feedbackUnknown, ""
}

// ValidFeedback reports whether token is an ACCEPTED or EDIT_PLAN token.
// Any other token fails a suspended thread on resume.
func ValidFeedback(token string) bool {
	kind, _ := parseFeedback(token)
	return kind != feedbackUnknown
}

type humanNode struct {
	opts   Options
	logger *observability.Logger
}

func (n *humanNode) Name() NodeName { return NodeHumanFeedback }

func (n *humanNode) Run(ctx context.Context, st *State) (Command, error) {
	token := st.Feedback
	if n.opts.AutoAcceptPlan && token == "" {
		token = TokenAccepted
	}
	if token == "" {
		return Command{Interrupt: true}, nil
	}
	n.logger.LogResume(st.ThreadID, string(NodeHumanFeedback), token)

	kind, text := parseFeedback(token)
	switch kind {
	case feedbackEdit:
		edits := st.PlanEdits + 1
		if n.opts.MaxPlanEdits > 0 && edits > n.opts.MaxPlanEdits {
			return fail(fmt.Errorf("%w: limit is %d", ErrTooManyEdits, n.opts.MaxPlanEdits)), nil
		}
		if text == "" {
			text = token
		}
		return goTo(NodePlanner, StateUpdate{
			Messages:  []Message{{Role: RoleHuman, Name: "feedback", Content: text}},
			PlanEdits: intPtr(edits),
			Feedback:  strPtr(""),
		}), nil

	case feedbackAccepted:
		p, err := plan.Parse(st.PendingPlan)
		if err != nil {
			return planningFailed(st, err, n.logger), nil
		}
		p.Truncate(n.opts.MaxStepNum)
		u := StateUpdate{
			CurrentPlan:    p,
			PlanIterations: intPtr(st.PlanIterations + 1),
			Feedback:       strPtr(""),
		}
		if p.HasEnoughContext {
			return goTo(NodeReporter, u), nil
		}
		return goTo(NodeDispatcher, u), nil

	default:
		return fail(fmt.Errorf("%w: %q", ErrUnknownFeedback, token)), nil
	}
}
