package asynq

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/hybrid-capture/internal/domain"
)

func TestJobFromInputsRejectsMissingJobID(t *testing.T) {
	_, err := jobFromInputs(WorkflowPayload{Inputs: map[string]string{}})
	require.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestJobFromInputsRoundTripsRouterFields(t *testing.T) {
	job, err := jobFromInputs(WorkflowPayload{
		WorkflowName: "progressive_capture_details",
		Inputs: map[string]string{
			"job_id":          "job-1",
			"job_kind":        string(domain.JobKindDetails),
			"repository_id":   "repo-1",
			"repository_name": "octo/hello",
			"time_range_days": "7",
			"pr_numbers":      "1,2,3",
		},
	})
	require.NoError(t, err)

	assert.Equal(t, "job-1", job.ID)
	assert.Equal(t, domain.JobKindDetails, job.Kind)
	assert.Equal(t, "repo-1", job.RepositoryID)
	assert.Equal(t, "octo/hello", job.RepositoryName)
	assert.Equal(t, domain.BackendBatch, job.Backend)
	assert.Equal(t, 7, job.TimeRangeDays)
	assert.Equal(t, []int{1, 2, 3}, job.PRNumbers)
}

func TestJobFromInputsToleratesMissingOptionalFields(t *testing.T) {
	job, err := jobFromInputs(WorkflowPayload{Inputs: map[string]string{"job_id": "job-2"}})
	require.NoError(t, err)

	assert.Equal(t, "job-2", job.ID)
	assert.Equal(t, 0, job.TimeRangeDays)
	assert.Empty(t, job.PRNumbers)
}
