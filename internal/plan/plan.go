// Package plan holds the plan and step types shared by every workflow node.
package plan

import (
	"encoding/json"
	"strings"
)

// StepType selects which executor runs a step.
type StepType string

const (
	StepResearch   StepType = "research"
	StepProcessing StepType = "processing"
)

// Known reports whether t is one of the recognised step types.
func (t StepType) Known() bool {
	return t == StepResearch || t == StepProcessing
}

// Step represents a single delegated unit of work in a plan.
type Step struct {
	NeedWebSearch   bool     `json:"need_web_search"`
	Title           string   `json:"title"`
	Description     string   `json:"description"`
	StepType        StepType `json:"step_type"`
	ExecutionResult string   `json:"execution_res,omitempty"`
}

// Done reports whether the step has a non-blank execution result.
func (s Step) Done() bool {
	return strings.TrimSpace(s.ExecutionResult) != ""
}

// Plan is the ordered set of steps produced for one user goal.
// Step order is execution order.
type Plan struct {
	Locale           string `json:"locale,omitempty"`
	HasEnoughContext bool   `json:"has_enough_context"`
	Thought          string `json:"thought"`
	Title            string `json:"title"`
	Steps            []Step `json:"steps"`
}

// AllStepsComplete is true iff every step has a result or the plan has no steps.
func AllStepsComplete(p *Plan) bool {
	if p == nil {
		return true
	}
	for _, s := range p.Steps {
		if !s.Done() {
			return false
		}
	}
	return true
}

// FirstIncompleteStep returns the index and step of the first step, in plan
// order, that has no result yet.
func FirstIncompleteStep(p *Plan) (int, *Step, bool) {
	if p == nil {
		return -1, nil, false
	}
	for i := range p.Steps {
		if !p.Steps[i].Done() {
			return i, &p.Steps[i], true
		}
	}
	return -1, nil, false
}

// CompletedSteps returns the completed steps preceding the first incomplete
// one, in plan order.
func CompletedSteps(p *Plan) []Step {
	if p == nil {
		return nil
	}
	var done []Step
	for _, s := range p.Steps {
		if !s.Done() {
			break
		}
		done = append(done, s)
	}
	return done
}

// Complete records result on step i. It is first-write-wins: a step that
// already has a result, or a blank result, leaves the plan unchanged and
// returns false.
func (p *Plan) Complete(i int, result string) bool {
	if p == nil || i < 0 || i >= len(p.Steps) {
		return false
	}
	if p.Steps[i].Done() || strings.TrimSpace(result) == "" {
		return false
	}
	p.Steps[i].ExecutionResult = result
	return true
}

// Truncate drops steps beyond max. A non-positive max keeps every step.
func (p *Plan) Truncate(max int) {
	if p == nil || max <= 0 || len(p.Steps) <= max {
		return
	}
	p.Steps = p.Steps[:max]
}

// Clone returns a deep copy of the plan.
func (p *Plan) Clone() *Plan {
	if p == nil {
		return nil
	}
	c := *p
	c.Steps = append([]Step(nil), p.Steps...)
	return &c
}

// JSON returns the indented wire form of the plan.
func (p *Plan) JSON() string {
	data, err := json.MarshalIndent(p, "", "    ")
	if err != nil {
		return "{}"
	}
	return string(data)
}
