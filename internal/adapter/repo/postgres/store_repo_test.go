package postgres_test

import (
	"context"
	"testing"
	"time"

	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/hybrid-capture/internal/adapter/repo/postgres"
	"github.com/fairyhunter13/hybrid-capture/internal/domain"
)

func TestStoreRepoUpsertRepository(t *testing.T) {
	t.Parallel()
	m, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer m.Close()
	repo := postgres.NewStoreRepo(m)
	ctx := context.Background()

	m.ExpectExec("INSERT INTO repositories").
		WithArgs("repo-1", "octo/hello").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, repo.UpsertRepository(ctx, "repo-1", "octo/hello"))
	require.NoError(t, m.ExpectationsWereMet())
}

func TestStoreRepoUpsertRepositoryConflict(t *testing.T) {
	t.Parallel()
	m, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer m.Close()
	repo := postgres.NewStoreRepo(m)
	ctx := context.Background()

	m.ExpectExec("INSERT INTO repositories").
		WithArgs("repo-1", "octo/hello").
		WillReturnError(&pgconn.PgError{Code: "23505"})

	err = repo.UpsertRepository(ctx, "repo-1", "octo/hello")
	assert.ErrorIs(t, err, domain.ErrStoreConflict)
	require.NoError(t, m.ExpectationsWereMet())
}

func TestStoreRepoUpsertPullRequest(t *testing.T) {
	t.Parallel()
	m, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer m.Close()
	repo := postgres.NewStoreRepo(m)
	ctx := context.Background()

	pr := domain.PullRequest{
		ID:     "pr-node-1",
		Number: 42,
		Title:  "fix bug",
		State:  "open",
		Author: domain.Actor{ID: "u1", Login: "alice"},
		Timestamps: domain.PullRequestTimestamps{
			Created: time.Now().UTC(),
			Updated: time.Now().UTC(),
		},
	}

	m.ExpectExec("INSERT INTO pull_requests").
		WithArgs("repo-1", pr.Number, pr.ID, pr.Title, pr.Body, pr.State, pr.Draft,
			pr.Additions, pr.Deletions, pr.ChangedFiles, pr.CommitCount,
			pr.Author.ID, pr.Author.Login, pr.Merged, "", "",
			pr.Mergeable, pr.BaseRef, pr.HeadRef,
			pr.Timestamps.Created, pr.Timestamps.Updated, pr.Timestamps.Closed, pr.Timestamps.Merged).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, repo.UpsertPullRequest(ctx, "repo-1", pr))
	require.NoError(t, m.ExpectationsWereMet())
}

func TestStoreRepoUpsertReview(t *testing.T) {
	t.Parallel()
	m, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer m.Close()
	repo := postgres.NewStoreRepo(m)
	ctx := context.Background()

	r := domain.Review{ID: "rev-1", State: "APPROVED", Author: domain.Actor{ID: "u1", Login: "alice"}, SubmittedAt: time.Now().UTC()}
	m.ExpectExec("INSERT INTO reviews").
		WithArgs(r.ID, "repo-1", 42, r.State, r.Body, r.Author.ID, r.Author.Login, r.CommitID, r.SubmittedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, repo.UpsertReview(ctx, "repo-1", 42, r))
	require.NoError(t, m.ExpectationsWereMet())
}

func TestStoreRepoUpsertComment(t *testing.T) {
	t.Parallel()
	m, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer m.Close()
	repo := postgres.NewStoreRepo(m)
	ctx := context.Background()

	c := domain.Comment{ID: "cmt-1", Body: "nit", Author: domain.Actor{ID: "u1", Login: "alice"}, CreatedAt: time.Now().UTC(), UpdatedAt: time.Now().UTC()}
	m.ExpectExec("INSERT INTO comments").
		WithArgs(c.ID, "repo-1", 42, true, c.Body, c.Author.ID, c.Author.Login, c.Path, c.Position,
			c.OriginalPosition, c.DiffHunk, c.InReplyToID, c.ReviewID, c.CreatedAt, c.UpdatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, repo.UpsertComment(ctx, "repo-1", 42, c, true))
	require.NoError(t, m.ExpectationsWereMet())
}

func TestStoreRepoUpsertFileChanges(t *testing.T) {
	t.Parallel()
	m, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer m.Close()
	repo := postgres.NewStoreRepo(m)
	ctx := context.Background()

	files := []domain.FileChange{{Filename: "a.go", Additions: 3, Deletions: 1, Changes: 4, Status: "modified"}}

	m.ExpectBegin()
	m.ExpectExec("DELETE FROM file_changes").
		WithArgs("repo-1", 42).
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	m.ExpectExec("INSERT INTO file_changes").
		WithArgs("repo-1", 42, "a.go", 3, 1, 4, "modified").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	m.ExpectCommit()

	require.NoError(t, repo.UpsertFileChanges(ctx, "repo-1", 42, files))
	require.NoError(t, m.ExpectationsWereMet())
}
