package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rahul/planflow/internal/plan"
	"github.com/rahul/planflow/internal/store"
)

type fakeClassifier struct {
	handoff bool
	reply   string
	err     error
}

func (f *fakeClassifier) Classify(ctx context.Context, threadID string, msgs []Message) (Classification, error) {
	return Classification{Handoff: f.handoff, Reply: f.reply}, f.err
}

// fakePlanner returns its outputs in order and repeats the last one.
type fakePlanner struct {
	mu      sync.Mutex
	outputs []string
	err     error
	reqs    []PlanRequest
}

func (f *fakePlanner) GeneratePlan(ctx context.Context, req PlanRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reqs = append(f.reqs, req)
	if f.err != nil {
		return "", f.err
	}
	i := len(f.reqs) - 1
	if i >= len(f.outputs) {
		i = len(f.outputs) - 1
	}
	return f.outputs[i], nil
}

func (f *fakePlanner) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.reqs)
}

// fakeExecutor answers with results in order. Once they run out it
// echoes the task title.
type fakeExecutor struct {
	mu      sync.Mutex
	results []string
	errs    map[int]error
	tasks   []string
	hook    func(call int)
}

func (f *fakeExecutor) Execute(ctx context.Context, threadID, task string) (string, error) {
	f.mu.Lock()
	call := len(f.tasks)
	f.tasks = append(f.tasks, task)
	hook := f.hook
	f.mu.Unlock()

	if hook != nil {
		hook(call)
		if err := ctx.Err(); err != nil {
			return "", err
		}
	}
	if err := f.errs[call]; err != nil {
		return "", err
	}
	if call < len(f.results) {
		return f.results[call], nil
	}
	return "result for " + taskTitle(task), nil
}

func (f *fakeExecutor) calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.tasks...)
}

func taskTitle(task string) string {
	_, rest, _ := strings.Cut(task, "## Title\n\n")
	title, _, _ := strings.Cut(rest, "\n")
	return title
}

type fakeReporter struct {
	mu   sync.Mutex
	err  error
	reqs []ReportRequest
}

func (f *fakeReporter) Synthesize(ctx context.Context, req ReportRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reqs = append(f.reqs, req)
	if f.err != nil {
		return "", f.err
	}
	return fmt.Sprintf("report with %d observations", len(req.Observations)), nil
}

func (f *fakeReporter) last() ReportRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reqs[len(f.reqs)-1]
}

type harness struct {
	classifier *fakeClassifier
	planner    *fakePlanner
	researcher *fakeExecutor
	coder      *fakeExecutor
	reporter   *fakeReporter
	store      *store.MemoryStore
}

func newHarness(plans ...string) *harness {
	return &harness{
		classifier: &fakeClassifier{handoff: true},
		planner:    &fakePlanner{outputs: plans},
		researcher: &fakeExecutor{},
		coder:      &fakeExecutor{},
		reporter:   &fakeReporter{},
		store:      store.NewMemoryStore(),
	}
}

func (h *harness) engine(t *testing.T, opts Options, options ...EngineOption) *Engine {
	t.Helper()
	e, err := NewEngine(Capabilities{
		Coordinator: h.classifier,
		Planner:     h.planner,
		Researcher:  h.researcher,
		Coder:       h.coder,
		Reporter:    h.reporter,
	}, h.store, opts, options...)
	require.NoError(t, err)
	return e
}

func (h *harness) path(t *testing.T, threadID string) []string {
	t.Helper()
	trs, err := h.store.Transitions(context.Background(), threadID)
	require.NoError(t, err)
	out := make([]string, 0, len(trs))
	for _, tr := range trs {
		out = append(out, tr.From+">"+tr.To)
	}
	return out
}

func planJSON(hasEnough bool, steps ...plan.Step) string {
	p := &plan.Plan{Locale: "en-US", Title: "Wine research", Thought: "find good wines", HasEnoughContext: hasEnough, Steps: steps}
	if p.Steps == nil {
		p.Steps = []plan.Step{}
	}
	return p.JSON()
}

func research(title string) plan.Step {
	return plan.Step{Title: title, Description: "look up " + title, StepType: plan.StepResearch, NeedWebSearch: true}
}

func processing(title string) plan.Step {
	return plan.Step{Title: title, Description: "compute " + title, StepType: plan.StepProcessing}
}

func TestRun_DirectReply(t *testing.T) {
	h := newHarness(planJSON(false))
	h.classifier.handoff = false
	h.classifier.reply = "Hello! Ask me about wine."

	res, err := h.engine(t, Options{}).Run(context.Background(), "t1", "hi")
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, res.Status)
	assert.Equal(t, "Hello! Ask me about wine.", res.Reply)
	assert.Zero(t, h.planner.calls())
	assert.Equal(t, []string{"coordinator>__end__"}, h.path(t, "t1"))
}

func TestRun_SuspendThenAccept(t *testing.T) {
	ctx := context.Background()
	h := newHarness(planJSON(false, research("Find Napa cabernets"), processing("Compare prices")))
	e := h.engine(t, Options{})

	res, err := e.Run(ctx, "t1", "best napa cabernet under $50")
	require.NoError(t, err)
	require.Equal(t, StatusSuspended, res.Status)
	require.NotNil(t, res.Suspension)
	assert.Len(t, res.Suspension.Plan.Steps, 2)
	assert.Empty(t, h.researcher.calls())

	st, err := e.Get(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, NodeHumanFeedback, st.Next)
	assert.Equal(t, StatusSuspended, st.Status)

	res, err = e.Resume(ctx, "t1", "[ACCEPTED]")
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, res.Status)
	assert.Equal(t, "report with 2 observations", res.FinalReport)

	require.Len(t, h.researcher.calls(), 1)
	require.Len(t, h.coder.calls(), 1)
	coderTask := h.coder.calls()[0]
	assert.Contains(t, coderTask, "## Existing Finding 1: Find Napa cabernets")
	assert.Contains(t, coderTask, "result for Find Napa cabernets")
	assert.Contains(t, coderTask, "## Title\n\nCompare prices")

	st, err = e.Get(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, 1, st.PlanIterations)
	assert.True(t, plan.AllStepsComplete(st.CurrentPlan))
	assert.Len(t, st.Observations, 2)
	assert.Equal(t, []string{
		"coordinator>planner",
		"planner>human_feedback",
		"human_feedback>research_team",
		"research_team>researcher",
		"researcher>research_team",
		"research_team>coder",
		"coder>research_team",
		"research_team>reporter",
		"reporter>__end__",
	}, h.path(t, "t1"))
}

func TestResume_MatchesUninterruptedRun(t *testing.T) {
	ctx := context.Background()
	doc := planJSON(false, research("a"), research("b"))

	interrupted := newHarness(doc)
	res, err := interrupted.engine(t, Options{}).Run(ctx, "t1", "q")
	require.NoError(t, err)
	require.Equal(t, StatusSuspended, res.Status)

	// A fresh engine over the same store stands in for a restarted process.
	res, err = interrupted.engine(t, Options{}).Resume(ctx, "t1", "accepted")
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, res.Status)

	direct := newHarness(doc)
	res, err = direct.engine(t, Options{AutoAcceptPlan: true}).Run(ctx, "t1", "q")
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, res.Status)

	assert.Equal(t, direct.path(t, "t1"), interrupted.path(t, "t1"))
	assert.Equal(t, direct.researcher.calls(), interrupted.researcher.calls())
}

func TestPlanner_EnoughContextWithoutStepsGoesToReporter(t *testing.T) {
	h := newHarness(planJSON(true))

	res, err := h.engine(t, Options{}).Run(context.Background(), "t1", "what is a vintage?")
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, res.Status)
	assert.Equal(t, []string{"coordinator>planner", "planner>reporter", "reporter>__end__"}, h.path(t, "t1"))
	assert.Empty(t, h.researcher.calls())
}

func TestPlanner_EnoughContextSkipsReview(t *testing.T) {
	h := newHarness(planJSON(true, research("a")))

	res, err := h.engine(t, Options{}).Run(context.Background(), "t1", "q")
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, res.Status)
	assert.NotContains(t, h.path(t, "t1"), "planner>human_feedback")
	assert.Len(t, h.researcher.calls(), 1)
}

func TestPlanner_MalformedPlanIsFatalBeforeAcceptance(t *testing.T) {
	h := newHarness("I cannot produce a plan today")

	res, err := h.engine(t, Options{MaxPlanIterations: 1}).Run(context.Background(), "t1", "q")
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, res.Status)
	assert.True(t, errors.Is(res.Err, ErrPlanning))
	assert.True(t, strings.HasPrefix(res.Reply, "The request could not be completed"))
	assert.Empty(t, h.reporter.reqs)

	st, err := h.engine(t, Options{}).Get(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, st.Status)
	assert.NotEmpty(t, st.Error)
}

func TestPlanner_ErrorIsFatalBeforeAcceptance(t *testing.T) {
	h := newHarness(planJSON(false))
	h.planner.err = errors.New("model unavailable")

	res, err := h.engine(t, Options{}).Run(context.Background(), "t1", "q")
	require.NoError(t, err)
	assert.True(t, errors.Is(res.Err, ErrPlanning))
}

func TestPlanner_IterationCapRoutesToReporter(t *testing.T) {
	gen := &fakePlanner{outputs: []string{planJSON(false, research("a"))}}
	n := &plannerNode{gen: gen, opts: Options{MaxPlanIterations: 2}.withDefaults()}

	cmd, err := n.Run(context.Background(), &State{ThreadID: "t1", PlanIterations: 2})
	require.NoError(t, err)
	assert.Equal(t, NodeReporter, cmd.Goto)
	assert.Zero(t, gen.calls())

	cmd, err = n.Run(context.Background(), &State{ThreadID: "t1", PlanIterations: 1})
	require.NoError(t, err)
	assert.Equal(t, NodeHumanFeedback, cmd.Goto)
	assert.Equal(t, 1, gen.calls())
}

func TestPlanner_MalformedPlanAfterAcceptanceIsReported(t *testing.T) {
	n := &plannerNode{gen: &fakePlanner{outputs: []string{"{broken"}}, opts: Options{MaxPlanIterations: 3}.withDefaults()}

	cmd, err := n.Run(context.Background(), &State{ThreadID: "t1", PlanIterations: 1})
	require.NoError(t, err)
	assert.Equal(t, NodeReporter, cmd.Goto)
	assert.NoError(t, cmd.Err)
}

func TestHumanFeedback_EditPlan(t *testing.T) {
	ctx := context.Background()
	h := newHarness(planJSON(false, research("a")), planJSON(false, research("a"), research("b")))
	e := h.engine(t, Options{MaxPlanEdits: 1})

	_, err := e.Run(ctx, "t1", "q")
	require.NoError(t, err)

	res, err := e.Resume(ctx, "t1", "[EDIT_PLAN] also check Sonoma")
	require.NoError(t, err)
	require.Equal(t, StatusSuspended, res.Status)
	assert.Len(t, res.Suspension.Plan.Steps, 2)
	require.Equal(t, 2, h.planner.calls())

	last := h.planner.reqs[1].Messages
	assert.Equal(t, Message{Role: RoleHuman, Name: "feedback", Content: "also check Sonoma"}, last[len(last)-1])

	st, err := e.Get(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, 0, st.PlanIterations)
	assert.Equal(t, 1, st.PlanEdits)

	res, err = e.Resume(ctx, "t1", "EDIT_PLAN: and Oregon")
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, res.Status)
	assert.True(t, errors.Is(res.Err, ErrTooManyEdits))
}

func TestResume_UnknownToken(t *testing.T) {
	ctx := context.Background()
	h := newHarness(planJSON(false, research("a")))
	e := h.engine(t, Options{})

	_, err := e.Run(ctx, "t1", "q")
	require.NoError(t, err)

	res, err := e.Resume(ctx, "t1", "looks fine I guess")
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, res.Status)
	assert.True(t, errors.Is(res.Err, ErrUnknownFeedback))
}

func TestResume_RequiresSuspendedThread(t *testing.T) {
	ctx := context.Background()
	h := newHarness(planJSON(true))
	e := h.engine(t, Options{})

	_, err := e.Resume(ctx, "missing", "[ACCEPTED]")
	assert.True(t, errors.Is(err, ErrThreadNotFound))

	_, err = e.Run(ctx, "t1", "q")
	require.NoError(t, err)
	_, err = e.Resume(ctx, "t1", "[ACCEPTED]")
	assert.True(t, errors.Is(err, ErrNotSuspended))
}

func TestRun_RejectsSuspendedThread(t *testing.T) {
	ctx := context.Background()
	h := newHarness(planJSON(false, research("a")))
	e := h.engine(t, Options{})

	_, err := e.Run(ctx, "t1", "q")
	require.NoError(t, err)
	_, err = e.Run(ctx, "t1", "another question")
	assert.True(t, errors.Is(err, ErrSuspended))
}

func TestRun_FinishedThreadStartsFreshRequest(t *testing.T) {
	ctx := context.Background()
	h := newHarness(planJSON(true, research("a")))
	e := h.engine(t, Options{})

	_, err := e.Run(ctx, "t1", "first")
	require.NoError(t, err)
	res, err := e.Run(ctx, "t1", "second")
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, res.Status)

	st, err := e.Get(ctx, "t1")
	require.NoError(t, err)
	assert.Len(t, st.Observations, 1)
	assert.Equal(t, "first", st.Messages[0].Content)
	assert.Len(t, h.researcher.calls(), 2)
}

func TestExecutor_StepsRunInOrder(t *testing.T) {
	h := newHarness(planJSON(true, research("one"), processing("two"), research("three")))

	_, err := h.engine(t, Options{}).Run(context.Background(), "t1", "q")
	require.NoError(t, err)

	var titles []string
	for _, task := range h.researcher.calls() {
		titles = append(titles, taskTitle(task))
	}
	assert.Equal(t, []string{"one", "three"}, titles)
	assert.Contains(t, h.researcher.calls()[1], "## Existing Finding 2: two")

	obs := h.reporter.last().Observations
	require.Len(t, obs, 3)
	assert.Equal(t, []string{"one", "two", "three"}, []string{obs[0].Step, obs[1].Step, obs[2].Step})
	assert.Equal(t, "coder", obs[1].Executor)
}

func TestExecutor_EmptyResultRetriesSameStep(t *testing.T) {
	h := newHarness(planJSON(true, research("a")))
	h.researcher.results = []string{"   ", "found it"}

	res, err := h.engine(t, Options{}).Run(context.Background(), "t1", "q")
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, res.Status)

	calls := h.researcher.calls()
	require.Len(t, calls, 2)
	assert.Equal(t, calls[0], calls[1])
	assert.Len(t, h.reporter.last().Observations, 1)
}

func TestExecutor_AttemptsExhausted(t *testing.T) {
	t.Run("no findings fails the run", func(t *testing.T) {
		h := newHarness(planJSON(true, research("a")))
		h.researcher.results = []string{"", "", "", ""}

		res, err := h.engine(t, Options{MaxStepAttempts: 2}).Run(context.Background(), "t1", "q")
		require.NoError(t, err)
		assert.Equal(t, StatusFailed, res.Status)
		assert.True(t, errors.Is(res.Err, ErrExecutor))
		assert.Len(t, h.researcher.calls(), 2)
	})

	t.Run("partial findings are reported", func(t *testing.T) {
		h := newHarness(planJSON(true, research("a"), research("b")))
		h.researcher.results = []string{"a done", "", ""}

		res, err := h.engine(t, Options{MaxStepAttempts: 2}).Run(context.Background(), "t1", "q")
		require.NoError(t, err)
		assert.Equal(t, StatusCompleted, res.Status)
		assert.Equal(t, "report with 1 observations", res.FinalReport)
	})
}

func TestExecutor_ErrorAfterFindingsIsReported(t *testing.T) {
	h := newHarness(planJSON(true, research("a"), research("b")))
	h.researcher.errs = map[int]error{1: errors.New("search API down")}

	res, err := h.engine(t, Options{}).Run(context.Background(), "t1", "q")
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, res.Status)
	assert.Len(t, h.reporter.last().Observations, 1)
}

func TestExecutor_ErrorWithoutFindingsFails(t *testing.T) {
	h := newHarness(planJSON(true, research("a")))
	h.researcher.errs = map[int]error{0: errors.New("search API down")}

	res, err := h.engine(t, Options{}).Run(context.Background(), "t1", "q")
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, res.Status)
	assert.True(t, errors.Is(res.Err, ErrExecutor))
	assert.Contains(t, res.Err.Error(), "search API down")
}

func TestDispatcher_UnknownStepType(t *testing.T) {
	doc := planJSON(true, plan.Step{Title: "taste", Description: "taste it", StepType: "tasting"})

	h := newHarness(doc)
	res, err := h.engine(t, Options{}).Run(context.Background(), "t1", "q")
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, res.Status)
	assert.True(t, errors.Is(res.Err, ErrUnknownStepType))

	compat := newHarness(doc)
	res, err = compat.engine(t, Options{CompatRouting: true}).Run(context.Background(), "t1", "q")
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, res.Status)
	assert.Len(t, compat.coder.calls(), 1)
}

func TestReporter_ErrorIsFatal(t *testing.T) {
	h := newHarness(planJSON(true))
	h.reporter.err = errors.New("context window exceeded")

	res, err := h.engine(t, Options{}).Run(context.Background(), "t1", "q")
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, res.Status)
	assert.True(t, errors.Is(res.Err, ErrReport))
}

func TestRecursionLimit(t *testing.T) {
	h := newHarness(planJSON(true, research("a"), research("b"), research("c")))

	res, err := h.engine(t, Options{RecursionLimit: 4}).Run(context.Background(), "t1", "q")
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, res.Status)
	assert.True(t, errors.Is(res.Err, ErrRunaway))
	assert.Len(t, h.path(t, "t1"), 5)
}

type strayNode struct{}

func (strayNode) Name() NodeName { return NodeCoordinator }

func (strayNode) Run(ctx context.Context, st *State) (Command, error) {
	return goTo(NodeReporter, StateUpdate{}), nil
}

func TestInvalidTransitionFailsRun(t *testing.T) {
	h := newHarness(planJSON(true))

	res, err := h.engine(t, Options{}, WithNode(strayNode{})).Run(context.Background(), "t1", "q")
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, res.Status)
	assert.True(t, errors.Is(res.Err, ErrInvalidTransition))
	assert.Empty(t, h.reporter.reqs)
}

func TestContinue_AfterCancellation(t *testing.T) {
	h := newHarness(planJSON(true, research("a"), research("b")))
	ctx, cancel := context.WithCancel(context.Background())
	h.researcher.hook = func(call int) {
		if call == 1 {
			cancel()
		}
	}
	e := h.engine(t, Options{})

	_, err := e.Run(ctx, "t1", "q")
	require.ErrorIs(t, err, context.Canceled)

	st, err := e.Get(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, StatusRunning, st.Status)
	assert.Equal(t, NodeResearcher, st.Next)
	assert.Len(t, st.Observations, 1)

	_, err = e.Run(context.Background(), "t1", "q")
	assert.True(t, errors.Is(err, ErrThreadBusy))

	res, err := e.Continue(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, res.Status)
	assert.Equal(t, "report with 2 observations", res.FinalReport)

	_, err = e.Continue(context.Background(), "t1")
	assert.True(t, errors.Is(err, ErrNotRunning))
}

func TestConcurrentThreadsAreIndependent(t *testing.T) {
	h := newHarness(planJSON(true, research("a"), processing("b")))
	e := h.engine(t, Options{})

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := e.Run(context.Background(), fmt.Sprintf("thread-%d", i), "q")
			if err == nil && res.Status != StatusCompleted {
				err = fmt.Errorf("status %s", res.Status)
			}
			errs[i] = err
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}
	threads, err := e.Threads(context.Background(), StatusCompleted)
	require.NoError(t, err)
	assert.Len(t, threads, 8)
}

func TestDeleteThread(t *testing.T) {
	ctx := context.Background()
	h := newHarness(planJSON(true))
	e := h.engine(t, Options{})

	_, err := e.Run(ctx, "t1", "q")
	require.NoError(t, err)
	require.NoError(t, e.Delete(ctx, "t1"))

	_, err = e.Get(ctx, "t1")
	assert.True(t, errors.Is(err, ErrThreadNotFound))

	err = e.Delete(ctx, "t1")
	assert.True(t, errors.Is(err, ErrThreadNotFound))
	assert.True(t, errors.Is(e.Delete(ctx, "nope"), ErrThreadNotFound))
}

type brokenStore struct{ *store.MemoryStore }

func (brokenStore) Save(ctx context.Context, snap store.Snapshot) error {
	return errors.New("disk full")
}

func TestCheckpointFailureStopsRun(t *testing.T) {
	h := newHarness(planJSON(true))
	e, err := NewEngine(Capabilities{
		Coordinator: h.classifier, Planner: h.planner, Researcher: h.researcher, Coder: h.coder, Reporter: h.reporter,
	}, brokenStore{store.NewMemoryStore()}, Options{})
	require.NoError(t, err)

	_, err = e.Run(context.Background(), "t1", "q")
	assert.True(t, errors.Is(err, ErrCheckpoint))
	assert.Zero(t, h.planner.calls())
}

func TestNewEngine_RequiresCapabilities(t *testing.T) {
	_, err := NewEngine(Capabilities{}, store.NewMemoryStore(), Options{})
	assert.Error(t, err)
}
