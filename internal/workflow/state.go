// Package workflow runs the plan orchestration graph: coordinator, planner,
// human feedback, dispatcher, step executors and reporter, with every node
// transition checkpointed per thread.
package workflow

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rahul/planflow/internal/plan"
)

// StateVersion is bumped whenever the persisted State shape changes.
// Checkpoints written with another version are rejected on load.
const StateVersion = 1

// ErrVersionMismatch is returned when a checkpoint was written by a
// different State layout.
var ErrVersionMismatch = errors.New("checkpoint version mismatch")

// Role is the author of a conversation message.
type Role string

const (
	RoleHuman  Role = "human"
	RoleAI     Role = "ai"
	RoleSystem Role = "system"
	RoleTool   Role = "tool"
)

type Message struct {
	Role    Role   `json:"role"`
	Name    string `json:"name,omitempty"`
	Content string `json:"content"`
}

// Observation is the raw output of one executor run. Observations are only
// appended, and only the reporter reads them.
type Observation struct {
	Step     string    `json:"step"`
	Executor string    `json:"executor"`
	Content  string    `json:"content"`
	At       time.Time `json:"at"`
}

// Status is the lifecycle state of a thread.
type Status string

const (
	StatusRunning   Status = "running"
	StatusSuspended Status = "suspended"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// State is the checkpointed unit of one thread.
type State struct {
	ThreadID       string        `json:"thread_id"`
	Messages       []Message     `json:"messages"`
	CurrentPlan    *plan.Plan    `json:"current_plan,omitempty"`
	PendingPlan    string        `json:"pending_plan,omitempty"`
	Observations   []Observation `json:"observations"`
	PlanIterations int           `json:"plan_iterations"`
	PlanEdits      int           `json:"plan_edits"`
	StepAttempts   map[int]int   `json:"step_attempts,omitempty"`
	FinalReport    string        `json:"final_report,omitempty"`

	// Feedback is the resume token delivered to the human feedback node.
	Feedback string `json:"interrupt_feedback,omitempty"`
	// StepFailure makes the dispatcher stop executing and decide between a
	// partial report and a failed run.
	StepFailure string `json:"step_failure,omitempty"`

	Next        NodeName  `json:"next"`
	Status      Status    `json:"status"`
	Error       string    `json:"error,omitempty"`
	Transitions int       `json:"transitions"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func newState(threadID string) *State {
	now := time.Now().UTC()
	return &State{
		ThreadID:  threadID,
		Next:      NodeCoordinator,
		Status:    StatusRunning,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// LastMessage returns the most recent message, if any.
func (s *State) LastMessage() (Message, bool) {
	if len(s.Messages) == 0 {
		return Message{}, false
	}
	return s.Messages[len(s.Messages)-1], true
}

// StateUpdate is a partial update returned by a node. Nil fields are left
// untouched; Messages and Observations are appended; a non-nil StepAttempts
// replaces the whole map.
type StateUpdate struct {
	Messages       []Message
	Observations   []Observation
	CurrentPlan    *plan.Plan
	PendingPlan    *string
	PlanIterations *int
	PlanEdits      *int
	StepAttempts   map[int]int
	FinalReport    *string
	Feedback       *string
	StepFailure    *string
}

// Apply merges u into s.
func (s *State) Apply(u StateUpdate) {
	s.Messages = append(s.Messages, u.Messages...)
	s.Observations = append(s.Observations, u.Observations...)
	if u.CurrentPlan != nil {
		s.CurrentPlan = u.CurrentPlan
	}
	if u.PendingPlan != nil {
		s.PendingPlan = *u.PendingPlan
	}
	if u.PlanIterations != nil {
		s.PlanIterations = *u.PlanIterations
	}
	if u.PlanEdits != nil {
		s.PlanEdits = *u.PlanEdits
	}
	if u.StepAttempts != nil {
		s.StepAttempts = copyAttempts(u.StepAttempts)
	}
	if u.FinalReport != nil {
		s.FinalReport = *u.FinalReport
	}
	if u.Feedback != nil {
		s.Feedback = *u.Feedback
	}
	if u.StepFailure != nil {
		s.StepFailure = *u.StepFailure
	}
}

// Clone returns a deep copy of s so nodes can never alias engine state.
func (s *State) Clone() *State {
	c := *s
	c.Messages = append([]Message(nil), s.Messages...)
	c.Observations = append([]Observation(nil), s.Observations...)
	c.CurrentPlan = s.CurrentPlan.Clone()
	c.StepAttempts = copyAttempts(s.StepAttempts)
	return &c
}

func copyAttempts(m map[int]int) map[int]int {
	if m == nil {
		return nil
	}
	out := make(map[int]int, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

type envelope struct {
	Version int    `json:"version"`
	State   *State `json:"state"`
}

func encodeState(s *State) ([]byte, error) {
	return json.Marshal(envelope{Version: StateVersion, State: s})
}

func decodeState(version int, data []byte) (*State, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decoding checkpoint: %w", err)
	}
	if version != StateVersion || env.Version != StateVersion {
		return nil, fmt.Errorf("%w: have %d, want %d", ErrVersionMismatch, env.Version, StateVersion)
	}
	if env.State == nil {
		return nil, fmt.Errorf("decoding checkpoint: missing state")
	}
	return env.State, nil
}

func intPtr(v int) *int       { return &v }
func strPtr(v string) *string { return &v }
