package plan

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func threeSteps() *Plan {
	return &Plan{
		Title: "Birthday dinner",
		Steps: []Step{
			{Title: "A", StepType: StepResearch},
			{Title: "B", StepType: StepProcessing},
			{Title: "C", StepType: StepResearch},
		},
	}
}

func TestAllStepsComplete(t *testing.T) {
	tests := []struct {
		name string
		plan *Plan
		want bool
	}{
		{"zero steps", &Plan{}, true},
		{"none done", threeSteps(), false},
		{"whitespace result", &Plan{Steps: []Step{{ExecutionResult: "  \n"}}}, false},
		{"all done", &Plan{Steps: []Step{{ExecutionResult: "x"}, {ExecutionResult: "y"}}}, true},
		{"one missing", &Plan{Steps: []Step{{ExecutionResult: "x"}, {}}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, AllStepsComplete(tt.plan))
		})
	}
}

func TestFirstIncompleteStep_PlanOrder(t *testing.T) {
	p := threeSteps()

	i, s, ok := FirstIncompleteStep(p)
	require.True(t, ok)
	assert.Equal(t, 0, i)
	assert.Equal(t, "A", s.Title)

	require.True(t, p.Complete(0, "found wines"))
	i, s, ok = FirstIncompleteStep(p)
	require.True(t, ok)
	assert.Equal(t, 1, i)
	assert.Equal(t, "B", s.Title)

	p.Complete(1, "b")
	p.Complete(2, "c")
	_, _, ok = FirstIncompleteStep(p)
	assert.False(t, ok)
	assert.True(t, AllStepsComplete(p))
}

func TestComplete_FirstWriteWins(t *testing.T) {
	p := threeSteps()

	assert.False(t, p.Complete(0, "   "), "blank result must not complete a step")
	assert.False(t, p.Steps[0].Done())

	assert.True(t, p.Complete(0, "first"))
	assert.False(t, p.Complete(0, "second"))
	assert.Equal(t, "first", p.Steps[0].ExecutionResult)

	assert.False(t, p.Complete(7, "out of range"))
}

func TestCompletedSteps_StopsAtFirstGap(t *testing.T) {
	p := threeSteps()
	p.Steps[0].ExecutionResult = "a"
	p.Steps[2].ExecutionResult = "c"

	done := CompletedSteps(p)
	require.Len(t, done, 1)
	assert.Equal(t, "A", done[0].Title)
}

func TestTruncateAndClone(t *testing.T) {
	p := threeSteps()
	c := p.Clone()
	c.Truncate(2)
	assert.Len(t, c.Steps, 2)
	assert.Len(t, p.Steps, 3)

	c.Truncate(0)
	assert.Len(t, c.Steps, 2)
}

func TestParse(t *testing.T) {
	raw := "Here is the plan:\n```json\n{\"title\":\"T\",\"thought\":\"why\",\"has_enough_context\":false," +
		"\"steps\":[{\"title\":\"s1\",\"description\":\"d\",\"step_type\":\"RESEARCH\"}]}\n```"

	p, err := Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "T", p.Title)
	require.Len(t, p.Steps, 1)
	assert.Equal(t, StepResearch, p.Steps[0].StepType)
}

func TestParse_MissingStepsIsEmpty(t *testing.T) {
	p, err := Parse(`{"title":"T","has_enough_context":true}`)
	require.NoError(t, err)
	assert.NotNil(t, p.Steps)
	assert.Empty(t, p.Steps)
	assert.True(t, AllStepsComplete(p))
}

func TestParse_Malformed(t *testing.T) {
	for _, raw := range []string{"", "not json at all", "{\"title\": }"} {
		_, err := Parse(raw)
		assert.True(t, errors.Is(err, ErrMalformed), "input %q", raw)
	}
}

func TestPlanJSONRoundTrip(t *testing.T) {
	p := threeSteps()
	p.Steps[0].ExecutionResult = "done"

	back, err := Parse(p.JSON())
	require.NoError(t, err)
	assert.Equal(t, p, back)
}
