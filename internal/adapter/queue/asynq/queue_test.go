package asynq_test

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/hybrid-capture/internal/adapter/queue/asynq"
)

func TestDispatcherDispatchEnqueuesAndReturnsRunID(t *testing.T) {
	mr := miniredis.RunT(t)
	d, err := asynq.NewDispatcher("redis://" + mr.Addr())
	require.NoError(t, err)
	defer d.Close()

	runID, err := d.Dispatch(context.Background(), "progressive_capture_details", map[string]string{
		"job_id":        "job-1",
		"repository_id": "repo-1",
	})
	require.NoError(t, err)
	require.NotEmpty(t, runID)
}
