package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "adminexport/internal/errors"
)

func openJournal(t *testing.T) *Journal {
	t.Helper()
	j, err := Open(context.Background(), filepath.Join(t.TempDir(), "state", "runs.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { j.Close() })
	return j
}

func TestJournal_Disabled(t *testing.T) {
	ctx := context.Background()
	j, err := Open(ctx, "", nil)
	require.NoError(t, err)

	assert.False(t, j.Enabled())
	assert.NoError(t, j.Begin(ctx, "run-1", "p.d.t", time.Now()))
	assert.NoError(t, j.Finish(ctx, Run{ID: "run-1", Status: StatusCompleted}))
	runs, err := j.Recent(ctx, 5)
	assert.NoError(t, err)
	assert.Empty(t, runs)
	assert.NoError(t, j.Close())
}

func TestJournal_BeginFinish(t *testing.T) {
	ctx := context.Background()
	j := openJournal(t)
	require.True(t, j.Enabled())

	started := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	require.NoError(t, j.Begin(ctx, "run-1", "p.raw_data.goods_csv", started))

	runs, err := j.Recent(ctx, 1)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, StatusRunning, runs[0].Status)
	assert.Nil(t, runs[0].FinishedAt)

	finished := started.Add(3 * time.Minute)
	require.NoError(t, j.Finish(ctx, Run{
		ID:         "run-1",
		Status:     StatusCompleted,
		FinishedAt: &finished,
		Artifact:   "/dl/goods.csv",
		Strategy:   "filesystem",
		Rows:       1200,
	}))

	runs, err = j.Recent(ctx, 1)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	got := runs[0]
	assert.Equal(t, "run-1", got.ID)
	assert.Equal(t, "p.raw_data.goods_csv", got.Destination)
	assert.Equal(t, StatusCompleted, got.Status)
	assert.True(t, started.Equal(got.StartedAt))
	require.NotNil(t, got.FinishedAt)
	assert.True(t, finished.Equal(*got.FinishedAt))
	assert.Equal(t, "/dl/goods.csv", got.Artifact)
	assert.Equal(t, "filesystem", got.Strategy)
	assert.Equal(t, int64(1200), got.Rows)
	assert.Empty(t, got.Error)
}

func TestJournal_FinishUnknownRun(t *testing.T) {
	j := openJournal(t)

	err := j.Finish(context.Background(), Run{ID: "missing", Status: StatusFailed})
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeStorage))
}

func TestJournal_Recent(t *testing.T) {
	ctx := context.Background()
	j := openJournal(t)

	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b", "c"} {
		require.NoError(t, j.Begin(ctx, id, "p.d.t", base.Add(time.Duration(i)*time.Hour)))
	}
	require.NoError(t, j.Finish(ctx, Run{ID: "b", Status: StatusFailed, FailedStep: "load", Error: "[PARSING] bad"}))

	runs, err := j.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "c", runs[0].ID)
	assert.Equal(t, "b", runs[1].ID)
	assert.Equal(t, "load", runs[1].FailedStep)
	assert.Equal(t, "[PARSING] bad", runs[1].Error)

	runs, err = j.Recent(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestJournal_DuplicateBegin(t *testing.T) {
	ctx := context.Background()
	j := openJournal(t)

	require.NoError(t, j.Begin(ctx, "run-1", "p.d.t", time.Now()))
	err := j.Begin(ctx, "run-1", "p.d.t", time.Now())
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeStorage))
}

func TestJournal_Reopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "runs.db")

	j, err := Open(ctx, path, nil)
	require.NoError(t, err)
	require.NoError(t, j.Begin(ctx, "run-1", "p.d.t", time.Now()))
	require.NoError(t, j.Close())

	j, err = Open(ctx, path, nil)
	require.NoError(t, err)
	defer j.Close()

	runs, err := j.Recent(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}
