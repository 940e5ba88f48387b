package postgres

import (
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/fairyhunter13/hybrid-capture/internal/domain"
)

// StoreRepo upserts the normalised rows Capture Workers produce into
// repositories/pull_requests/reviews/comments/file_changes, keyed so that
// replays of the same PR/review/comment are idempotent.
type StoreRepo struct{ Pool PgxPool }

// NewStoreRepo constructs a StoreRepo.
func NewStoreRepo(p PgxPool) *StoreRepo { return &StoreRepo{Pool: p} }

// UpsertRepository ensures a repositories row exists for id.
func (r *StoreRepo) UpsertRepository(ctx domain.Context, id, name string) error {
	tracer := otel.Tracer("repo.store")
	ctx, span := tracer.Start(ctx, "store.UpsertRepository")
	defer span.End()
	span.SetAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation", "UPSERT"),
		attribute.String("db.sql.table", "repositories"),
	)

	const q = `
		INSERT INTO repositories (id, name)
		VALUES ($1,$2)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name`
	if err := r.exec(ctx, q, id, name); err != nil {
		return fmt.Errorf("op=store.UpsertRepository: %w", err)
	}
	return nil
}

// UpsertPullRequest upserts a PullRequest keyed on (repository_id, number).
func (r *StoreRepo) UpsertPullRequest(ctx domain.Context, repositoryID string, pr domain.PullRequest) error {
	tracer := otel.Tracer("repo.store")
	ctx, span := tracer.Start(ctx, "store.UpsertPullRequest")
	defer span.End()
	span.SetAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation", "UPSERT"),
		attribute.String("db.sql.table", "pull_requests"),
		attribute.Int("pr.number", pr.Number),
	)

	var mergedByID, mergedByLogin string
	if pr.MergedBy != nil {
		mergedByID, mergedByLogin = pr.MergedBy.ID, pr.MergedBy.Login
	}

	const q = `
		INSERT INTO pull_requests
			(repository_id, number, github_id, title, body, state, draft,
			 additions, deletions, changed_files, commit_count,
			 author_id, author_login, merged, merged_by_id, merged_by_login,
			 mergeable, base_ref, head_ref,
			 created_at, updated_at, closed_at, merged_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23)
		ON CONFLICT (repository_id, number) DO UPDATE SET
			github_id = EXCLUDED.github_id,
			title = EXCLUDED.title,
			body = EXCLUDED.body,
			state = EXCLUDED.state,
			draft = EXCLUDED.draft,
			additions = EXCLUDED.additions,
			deletions = EXCLUDED.deletions,
			changed_files = EXCLUDED.changed_files,
			commit_count = EXCLUDED.commit_count,
			author_id = EXCLUDED.author_id,
			author_login = EXCLUDED.author_login,
			merged = EXCLUDED.merged,
			merged_by_id = EXCLUDED.merged_by_id,
			merged_by_login = EXCLUDED.merged_by_login,
			mergeable = EXCLUDED.mergeable,
			base_ref = EXCLUDED.base_ref,
			head_ref = EXCLUDED.head_ref,
			updated_at = EXCLUDED.updated_at,
			closed_at = EXCLUDED.closed_at,
			merged_at = EXCLUDED.merged_at`
	err := r.exec(ctx, q,
		repositoryID, pr.Number, pr.ID, pr.Title, pr.Body, pr.State, pr.Draft,
		pr.Additions, pr.Deletions, pr.ChangedFiles, pr.CommitCount,
		pr.Author.ID, pr.Author.Login, pr.Merged, mergedByID, mergedByLogin,
		pr.Mergeable, pr.BaseRef, pr.HeadRef,
		pr.Timestamps.Created, pr.Timestamps.Updated, pr.Timestamps.Closed, pr.Timestamps.Merged)
	if err != nil {
		return fmt.Errorf("op=store.UpsertPullRequest: %w", err)
	}
	return nil
}

// UpsertReview upserts a Review keyed on github_id.
func (r *StoreRepo) UpsertReview(ctx domain.Context, repositoryID string, prNumber int, rev domain.Review) error {
	tracer := otel.Tracer("repo.store")
	ctx, span := tracer.Start(ctx, "store.UpsertReview")
	defer span.End()
	span.SetAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation", "UPSERT"),
		attribute.String("db.sql.table", "reviews"),
		attribute.Int("pr.number", prNumber),
	)

	const q = `
		INSERT INTO reviews
			(github_id, repository_id, pr_number, state, body,
			 author_id, author_login, commit_id, submitted_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		ON CONFLICT (github_id) DO UPDATE SET
			state = EXCLUDED.state,
			body = EXCLUDED.body,
			author_id = EXCLUDED.author_id,
			author_login = EXCLUDED.author_login,
			commit_id = EXCLUDED.commit_id,
			submitted_at = EXCLUDED.submitted_at`
	err := r.exec(ctx, q,
		rev.ID, repositoryID, prNumber, rev.State, rev.Body,
		rev.Author.ID, rev.Author.Login, rev.CommitID, rev.SubmittedAt)
	if err != nil {
		return fmt.Errorf("op=store.UpsertReview: %w", err)
	}
	return nil
}

// UpsertComment upserts a Comment keyed on github_id. isReviewComment
// distinguishes issueComments from reviewComments, which share a table but
// only reviewComments populate the diff-position columns.
func (r *StoreRepo) UpsertComment(ctx domain.Context, repositoryID string, prNumber int, c domain.Comment, isReviewComment bool) error {
	tracer := otel.Tracer("repo.store")
	ctx, span := tracer.Start(ctx, "store.UpsertComment")
	defer span.End()
	span.SetAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation", "UPSERT"),
		attribute.String("db.sql.table", "comments"),
		attribute.Int("pr.number", prNumber),
		attribute.Bool("comment.is_review_comment", isReviewComment),
	)

	const q = `
		INSERT INTO comments
			(github_id, repository_id, pr_number, is_review_comment, body,
			 author_id, author_login, path, position, original_position,
			 diff_hunk, in_reply_to_id, review_id, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
		ON CONFLICT (github_id) DO UPDATE SET
			body = EXCLUDED.body,
			author_id = EXCLUDED.author_id,
			author_login = EXCLUDED.author_login,
			path = EXCLUDED.path,
			position = EXCLUDED.position,
			original_position = EXCLUDED.original_position,
			diff_hunk = EXCLUDED.diff_hunk,
			in_reply_to_id = EXCLUDED.in_reply_to_id,
			review_id = EXCLUDED.review_id,
			updated_at = EXCLUDED.updated_at`
	err := r.exec(ctx, q,
		c.ID, repositoryID, prNumber, isReviewComment, c.Body,
		c.Author.ID, c.Author.Login, c.Path, c.Position, c.OriginalPosition,
		c.DiffHunk, c.InReplyToID, c.ReviewID, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("op=store.UpsertComment: %w", err)
	}
	return nil
}

// UpsertFileChanges replaces the file_changes rows for a PR with files, in a
// single transaction: the diff file-set for a PR revision is a replacement,
// not an append.
func (r *StoreRepo) UpsertFileChanges(ctx domain.Context, repositoryID string, prNumber int, files []domain.FileChange) error {
	tracer := otel.Tracer("repo.store")
	ctx, span := tracer.Start(ctx, "store.UpsertFileChanges")
	defer span.End()
	span.SetAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation", "UPSERT"),
		attribute.String("db.sql.table", "file_changes"),
		attribute.Int("pr.number", prNumber),
		attribute.Int("file_changes.count", len(files)),
	)

	tx, err := r.Pool.BeginTx(ctx, txOpts())
	if err != nil {
		return fmt.Errorf("op=store.UpsertFileChanges begin_tx: %w", domain.ErrStoreError)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback(ctx)
		}
	}()

	const del = `DELETE FROM file_changes WHERE repository_id = $1 AND pr_number = $2`
	if _, err := tx.Exec(ctx, del, repositoryID, prNumber); err != nil {
		return fmt.Errorf("op=store.UpsertFileChanges delete: %w", domain.ErrStoreError)
	}

	const ins = `
		INSERT INTO file_changes (repository_id, pr_number, filename, additions, deletions, changes, status)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`
	for _, f := range files {
		if _, err := tx.Exec(ctx, ins, repositoryID, prNumber, f.Filename, f.Additions, f.Deletions, f.Changes, f.Status); err != nil {
			return fmt.Errorf("op=store.UpsertFileChanges insert: %w", domain.ErrStoreError)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("op=store.UpsertFileChanges commit: %w", domain.ErrStoreError)
	}
	committed = true
	return nil
}

// exec runs a write query and maps a unique-constraint violation to
// domain.ErrStoreConflict, any other failure to domain.ErrStoreError.
func (r *StoreRepo) exec(ctx domain.Context, sql string, args ...any) error {
	if _, err := r.Pool.Exec(ctx, sql, args...); err != nil {
		var pgErr *pgconn.PgError
		if isUniqueViolation(err, &pgErr) {
			return domain.ErrStoreConflict
		}
		return domain.ErrStoreError
	}
	return nil
}
