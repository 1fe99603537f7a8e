package operations_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"adminexport/internal/acquisition"
	"adminexport/internal/dataprocessing"
	"adminexport/internal/operations"
)

func TestRunStateLifecycle(t *testing.T) {
	state := operations.NewRunState("run-1", "p.d.t")
	assert.Equal(t, operations.RunStatusPending, state.Status)

	state.Start()
	assert.Equal(t, operations.RunStatusRunning, state.Status)
	assert.Nil(t, state.EndTime)

	state.Fail(errors.New("boom"))
	assert.Equal(t, operations.RunStatusFailed, state.Status)
	require.NotNil(t, state.EndTime)
	assert.EqualError(t, state.Error, "boom")
	assert.Equal(t, state.EndTime.Sub(state.StartTime), state.Duration())
}

func TestRunStateSteps(t *testing.T) {
	state := operations.NewRunState("run-1", "p.d.t")
	for _, id := range []string{"a", "b", "c"} {
		state.SetStep(id, operations.NewStepState(id, id))
	}
	// Re-registering keeps the original position
	state.SetStep("a", operations.NewStepState("a", "a"))

	assert.Equal(t, []string{"a", "b", "c"}, state.Order)
	assert.Nil(t, state.FailedStep())

	state.GetStep("b").Complete()
	state.GetStep("c").Fail(errors.New("x"))

	completed := state.StepsWithStatus(operations.StepStatusCompleted)
	require.Len(t, completed, 1)
	assert.Equal(t, "b", completed[0].ID)
	assert.Len(t, state.StepsWithStatus(operations.StepStatusPending), 1)
	assert.Equal(t, "c", state.FailedStep().ID)
}

func TestRunStateAccessors(t *testing.T) {
	state := operations.NewRunState("run-1", "p.d.t")
	assert.Zero(t, state.RowCount())
	assert.Empty(t, state.ArtifactPath())

	state.Dataset = &dataprocessing.Dataset{Columns: []string{"a"}, Rows: [][]string{{"1"}, {"2"}}}
	state.Artifact = &acquisition.Artifact{Path: "/dl/goods.csv"}

	assert.Equal(t, 2, state.RowCount())
	assert.Equal(t, "/dl/goods.csv", state.ArtifactPath())
}
