package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rahul/planflow/internal/observability"
	"github.com/rahul/planflow/internal/plan"
	"github.com/rahul/planflow/internal/store"
)

// Checkpointer persists thread snapshots. store.CheckpointStore and
// store.MemoryStore implement it.
type Checkpointer interface {
	Save(ctx context.Context, snap store.Snapshot) error
	Load(ctx context.Context, threadID string) (store.Snapshot, error)
	Delete(ctx context.Context, threadID string) error
	List(ctx context.Context, status string) ([]store.ThreadInfo, error)
}

// Locker serialises a thread across processes.
type Locker interface {
	Lock(ctx context.Context, threadID string) (func(), error)
}

// Suspension describes a run halted for plan review.
type Suspension struct {
	ThreadID string
	Plan     *plan.Plan
}

// Result is the outcome of one Run, Resume or Continue call.
type Result struct {
	ThreadID    string
	Status      Status
	Reply       string
	FinalReport string
	Suspension  *Suspension
	// Err is the fatal error of a failed run.
	Err error
}

// Engine drives threads through the graph. Calls for the same thread are
// serialised; distinct threads run in parallel.
type Engine struct {
	nodes   map[NodeName]Node
	store   Checkpointer
	opts    Options
	logger  *observability.Logger
	threads *store.KeyedMutex
	locker  Locker
}

type EngineOption func(*Engine)

func WithLogger(l *observability.Logger) EngineOption {
	return func(e *Engine) { e.logger = l }
}

// WithLocker adds a cross-process lock around every thread operation.
func WithLocker(l Locker) EngineOption {
	return func(e *Engine) { e.locker = l }
}

// WithNode replaces the node registered under n.Name().
func WithNode(n Node) EngineOption {
	return func(e *Engine) { e.nodes[n.Name()] = n }
}

func NewEngine(caps Capabilities, cp Checkpointer, opts Options, options ...EngineOption) (*Engine, error) {
	switch {
	case cp == nil:
		return nil, errors.New("workflow: checkpointer is required")
	case caps.Coordinator == nil, caps.Planner == nil, caps.Reporter == nil:
		return nil, errors.New("workflow: coordinator, planner and reporter are required")
	case caps.Researcher == nil, caps.Coder == nil:
		return nil, errors.New("workflow: researcher and coder are required")
	}

	e := &Engine{
		store:   cp,
		opts:    opts.withDefaults(),
		logger:  observability.Nop(),
		threads: store.NewKeyedMutex(),
	}
	e.nodes = map[NodeName]Node{}
	for _, o := range options {
		o(e)
	}

	defaults := []Node{
		&coordinatorNode{classifier: caps.Coordinator},
		&plannerNode{gen: caps.Planner, opts: e.opts, logger: e.logger},
		&humanNode{opts: e.opts, logger: e.logger},
		&dispatcherNode{opts: e.opts},
		&stepNode{name: NodeResearcher, exec: caps.Researcher, opts: e.opts, logger: e.logger},
		&stepNode{name: NodeCoder, exec: caps.Coder, opts: e.opts, logger: e.logger},
		&reporterNode{synth: caps.Reporter},
	}
	for _, n := range defaults {
		if _, ok := e.nodes[n.Name()]; !ok {
			e.nodes[n.Name()] = n
		}
	}
	return e, nil
}

// Options returns the effective limits.
func (e *Engine) Options() Options { return e.opts }

// Run starts a new request on threadID. Earlier messages of the thread
// are kept as conversation history; plan and findings start fresh.
func (e *Engine) Run(ctx context.Context, threadID, input string) (*Result, error) {
	unlock, err := e.lock(ctx, threadID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	st, err := e.load(ctx, threadID)
	switch {
	case errors.Is(err, ErrThreadNotFound):
		st = newState(threadID)
	case err != nil:
		return nil, err
	case st.Status == StatusSuspended:
		return nil, fmt.Errorf("%w: %s", ErrSuspended, threadID)
	case st.Status == StatusRunning:
		return nil, fmt.Errorf("%w: %s", ErrThreadBusy, threadID)
	default:
		st.reset()
	}

	st.Messages = append(st.Messages, Message{Role: RoleHuman, Content: input})
	if err := e.save(ctx, st, ""); err != nil {
		return nil, err
	}
	return e.loop(ctx, st)
}

// Resume delivers a feedback token to a thread suspended for plan review.
func (e *Engine) Resume(ctx context.Context, threadID, token string) (*Result, error) {
	unlock, err := e.lock(ctx, threadID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	st, err := e.load(ctx, threadID)
	if err != nil {
		return nil, err
	}
	if st.Status != StatusSuspended {
		return nil, fmt.Errorf("%w: %s is %s", ErrNotSuspended, threadID, st.Status)
	}

	st.Feedback = token
	st.Status = StatusRunning
	if err := e.save(ctx, st, ""); err != nil {
		return nil, err
	}
	return e.loop(ctx, st)
}

// Continue picks up a run that was interrupted between nodes, for example
// by a cancelled context or a process restart.
func (e *Engine) Continue(ctx context.Context, threadID string) (*Result, error) {
	unlock, err := e.lock(ctx, threadID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	st, err := e.load(ctx, threadID)
	if err != nil {
		return nil, err
	}
	if st.Status != StatusRunning {
		return nil, fmt.Errorf("%w: %s is %s", ErrNotRunning, threadID, st.Status)
	}
	return e.loop(ctx, st)
}

// Get returns the stored state of a thread.
func (e *Engine) Get(ctx context.Context, threadID string) (*State, error) {
	return e.load(ctx, threadID)
}

func (e *Engine) Delete(ctx context.Context, threadID string) error {
	unlock, err := e.lock(ctx, threadID)
	if err != nil {
		return err
	}
	defer unlock()

	if err := e.store.Delete(ctx, threadID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrThreadNotFound, threadID)
		}
		return fmt.Errorf("%w: %v", ErrCheckpoint, err)
	}
	return nil
}

// Threads lists stored threads, optionally filtered by status.
func (e *Engine) Threads(ctx context.Context, status Status) ([]store.ThreadInfo, error) {
	infos, err := e.store.List(ctx, string(status))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCheckpoint, err)
	}
	return infos, nil
}

func (e *Engine) loop(ctx context.Context, st *State) (*Result, error) {
	defer observability.ClearStatus(st.ThreadID)

	for steps := 0; ; steps++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		from := st.Next
		var cmd Command
		node, ok := e.nodes[from]
		switch {
		case steps >= e.opts.RecursionLimit:
			cmd = fail(fmt.Errorf("%w: %d transitions", ErrRunaway, steps))
		case !ok:
			cmd = fail(fmt.Errorf("%w: unknown node %q", ErrInvalidTransition, from))
		default:
			observability.SetStatus(st.ThreadID, string(from))
			e.logger.LogNode(st.ThreadID, string(from), "enter")

			var err error
			cmd, err = node.Run(ctx, st.Clone())
			if err != nil {
				return nil, fmt.Errorf("%s: %w", from, err)
			}
			if cmd.Interrupt {
				return e.suspend(ctx, st)
			}
			if err := checkEdge(from, cmd.Goto); err != nil {
				cmd = fail(err)
			}
		}

		res, err := e.transition(ctx, st, from, cmd)
		if res != nil || err != nil {
			return res, err
		}
	}
}

func (e *Engine) transition(ctx context.Context, st *State, from NodeName, cmd Command) (*Result, error) {
	st.Apply(cmd.Update)
	st.Next = cmd.Goto
	st.Transitions++
	switch cmd.Goto {
	case End:
		st.Status = StatusCompleted
	case ErrorEnd:
		st.Status = StatusFailed
		if cmd.Err == nil {
			cmd.Err = errors.New("run failed")
		}
		st.Error = cmd.Err.Error()
	}

	if err := e.save(ctx, st, from); err != nil {
		return nil, err
	}
	e.logger.LogTransition(st.ThreadID, string(from), string(cmd.Goto), st.Transitions)
	if cmd.Err != nil {
		e.logger.LogError(st.ThreadID, string(from), cmd.Err)
	}

	if !cmd.Goto.Terminal() {
		return nil, nil
	}
	return e.result(st, cmd.Err), nil
}

func (e *Engine) suspend(ctx context.Context, st *State) (*Result, error) {
	st.Status = StatusSuspended
	if err := e.save(ctx, st, ""); err != nil {
		return nil, err
	}
	e.logger.LogSuspend(st.ThreadID, string(st.Next))
	return e.result(st, nil), nil
}

func (e *Engine) result(st *State, err error) *Result {
	res := &Result{
		ThreadID:    st.ThreadID,
		Status:      st.Status,
		FinalReport: st.FinalReport,
		Err:         err,
	}
	switch st.Status {
	case StatusSuspended:
		res.Suspension = &Suspension{ThreadID: st.ThreadID, Plan: st.CurrentPlan.Clone()}
	case StatusFailed:
		res.Reply = "The request could not be completed: " + st.Error
	default:
		if m, ok := st.LastMessage(); ok && m.Role == RoleAI {
			res.Reply = m.Content
		}
	}
	return res
}

// reset clears per-request fields so a finished thread can take a new
// request.
func (s *State) reset() {
	s.CurrentPlan = nil
	s.PendingPlan = ""
	s.Observations = nil
	s.PlanIterations = 0
	s.PlanEdits = 0
	s.StepAttempts = nil
	s.FinalReport = ""
	s.Feedback = ""
	s.StepFailure = ""
	s.Error = ""
	s.Next = NodeCoordinator
	s.Status = StatusRunning
}

func (e *Engine) lock(ctx context.Context, threadID string) (func(), error) {
	if threadID == "" {
		return nil, errors.New("workflow: empty thread id")
	}
	unlock := e.threads.Lock(threadID)
	if e.locker == nil {
		return unlock, nil
	}
	release, err := e.locker.Lock(ctx, threadID)
	if err != nil {
		unlock()
		return nil, err
	}
	return func() {
		release()
		unlock()
	}, nil
}

// save persists st even when ctx was cancelled after the node finished,
// so the completed transition is never lost.
func (e *Engine) save(ctx context.Context, st *State, from NodeName) error {
	st.UpdatedAt = time.Now().UTC()
	data, err := encodeState(st)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCheckpoint, err)
	}
	err = e.store.Save(context.WithoutCancel(ctx), store.Snapshot{
		ThreadID:  st.ThreadID,
		Version:   StateVersion,
		Status:    string(st.Status),
		Node:      string(st.Next),
		From:      string(from),
		Data:      data,
		UpdatedAt: st.UpdatedAt,
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCheckpoint, err)
	}
	return nil
}

func (e *Engine) load(ctx context.Context, threadID string) (*State, error) {
	return LoadState(ctx, e.store, threadID)
}

// LoadState reads a thread's state straight from a checkpoint store.
func LoadState(ctx context.Context, cp Checkpointer, threadID string) (*State, error) {
	snap, err := cp.Load(ctx, threadID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrThreadNotFound, threadID)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCheckpoint, err)
	}
	return decodeState(snap.Version, snap.Data)
}
