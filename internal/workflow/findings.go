package workflow

import (
	"fmt"
	"strings"

	"github.com/rahul/planflow/internal/plan"
)

// FindingsDigest renders the results of completed steps for the next
// executor or planner call.
func FindingsDigest(done []plan.Step) string {
	if len(done) == 0 {
		return "No previous findings available. This is a standalone task.\n\n"
	}
	var b strings.Builder
	b.WriteString("# Existing Research Findings\n\n")
	for i, s := range done {
		fmt.Fprintf(&b, "## Existing Finding %d: %s\n\n", i+1, s.Title)
		fmt.Fprintf(&b, "<finding>\n%s\n</finding>\n\n", s.ExecutionResult)
	}
	return b.String()
}

// TaskInput is the full prompt handed to an executor for the current step.
func TaskInput(done []plan.Step, current plan.Step) string {
	var b strings.Builder
	b.WriteString(FindingsDigest(done))
	b.WriteString("# Current Task\n\n")
	fmt.Fprintf(&b, "## Title\n\n%s\n\n", current.Title)
	fmt.Fprintf(&b, "## Description\n\n%s", current.Description)
	return b.String()
}
