package statusapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/hybrid-capture/internal/domain"
	"github.com/fairyhunter13/hybrid-capture/internal/rollout"
)

type fakeJobRepo struct {
	jobs map[string]domain.Job
}

func (f *fakeJobRepo) Create(ctx context.Context, job *domain.Job) error { return nil }
func (f *fakeJobRepo) UpdateStatus(ctx context.Context, id string, status domain.JobStatus, externalRunID, lastError string) error {
	return nil
}
func (f *fakeJobRepo) Get(ctx context.Context, id string) (*domain.Job, error) {
	j, ok := f.jobs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &j, nil
}
func (f *fakeJobRepo) ListByStatus(ctx context.Context, status domain.JobStatus, startedBefore time.Time, limit int) ([]domain.Job, error) {
	return nil, nil
}

type fakeRolloutRepo struct{ cfg domain.RolloutConfig }

func (f *fakeRolloutRepo) Get(ctx context.Context, feature string) (*domain.RolloutConfig, error) {
	cfg := f.cfg
	return &cfg, nil
}
func (f *fakeRolloutRepo) Update(ctx context.Context, cfg domain.RolloutConfig, entry domain.RolloutHistoryEntry) error {
	f.cfg = cfg
	return nil
}
func (f *fakeRolloutRepo) History(ctx context.Context, feature string, limit int) ([]domain.RolloutHistoryEntry, error) {
	return nil, nil
}
func (f *fakeRolloutRepo) RepositoryCategory(ctx context.Context, repositoryID string) (domain.RepositoryCategory, error) {
	return domain.CategorySmall, nil
}
func (f *fakeRolloutRepo) Whitelist(ctx context.Context, feature string) (map[string]struct{}, error) {
	return nil, nil
}

func newTestServer() (*Server, *fakeJobRepo, *fakeRolloutRepo) {
	jobs := &fakeJobRepo{jobs: map[string]domain.Job{
		"job-1": {ID: "job-1", Status: domain.JobCompleted},
	}}
	repo := &fakeRolloutRepo{cfg: domain.RolloutConfig{Feature: domain.DefaultFeature, Percentage: 25, IsActive: true}}
	controller := rollout.New(repo, nil)
	return NewServer(jobs, controller, nil, "*", 1000), jobs, repo
}

func TestHealthzReturnsOK(t *testing.T) {
	s, _, _ := newTestServer()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	s.BuildRouter().ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestJobStatusHandlerFound(t *testing.T) {
	s, _, _ := newTestServer()
	req := httptest.NewRequest(http.MethodGet, "/jobs/job-1", nil)
	w := httptest.NewRecorder()
	s.BuildRouter().ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "job-1")
}

func TestJobStatusHandlerNotFound(t *testing.T) {
	s, _, _ := newTestServer()
	req := httptest.NewRequest(http.MethodGet, "/jobs/missing", nil)
	w := httptest.NewRecorder()
	s.BuildRouter().ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRolloutQueryHandlerDefaultsFeature(t *testing.T) {
	s, _, _ := newTestServer()
	req := httptest.NewRequest(http.MethodGet, "/rollout", nil)
	w := httptest.NewRecorder()
	s.BuildRouter().ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"Percentage":25`)
}
