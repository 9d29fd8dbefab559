package repository

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"github.com/lib/pq"
	"postflow/internal/models"
)

// ErrDuplicateTweetID is returned when a post tries to record a tweet id
// another post already claimed.
var ErrDuplicateTweetID = errors.New("tweet id already recorded for another post")

type PostRepository interface {
	GetByID(ctx context.Context, id int64) (*models.Post, error)
	ListDue(ctx context.Context, now time.Time) ([]*models.Post, error)
	CountDue(ctx context.Context, now time.Time) (int, error)
	ClaimForProcessing(ctx context.Context, id int64) (bool, error)
	MarkPosted(ctx context.Context, id int64, tweetID string) error
	MarkFailed(ctx context.Context, id int64, lastError string, retryCount int, nextRetryAt *time.Time) error
}

type postRepository struct {
	db *sql.DB
}

func NewPostRepository(db *sql.DB) PostRepository {
	return &postRepository{db: db}
}

const postColumns = `id, user_id, account_id, caption, scheduled_time, status, tweet_id,
	last_error, retry_count, max_retries, next_retry_at, created_at, updated_at`

func scanPost(row interface{ Scan(...any) error }) (*models.Post, error) {
	var post models.Post
	err := row.Scan(&post.ID, &post.UserID, &post.AccountID, &post.Caption,
		&post.ScheduledTime, &post.Status, &post.TweetID, &post.LastError,
		&post.RetryCount, &post.MaxRetries, &post.NextRetryAt,
		&post.CreatedAt, &post.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &post, nil
}

func (r *postRepository) GetByID(ctx context.Context, id int64) (*models.Post, error) {
	query := `SELECT ` + postColumns + ` FROM posts WHERE id = $1`
	post, err := scanPost(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		slog.Info(err.Error())
		return nil, err
	}
	return post, nil
}

// ListDue selects the tick's work: scheduled/queued posts whose time has
// arrived plus failed posts inside their retry window. Exhausted posts
// (retry_count >= max_retries) never match because next_retry_at is nulled.
func (r *postRepository) ListDue(ctx context.Context, now time.Time) ([]*models.Post, error) {
	query := `SELECT ` + postColumns + ` FROM posts
		WHERE (status IN ($1, $2) AND scheduled_time <= $3)
		   OR (status = $4 AND next_retry_at IS NOT NULL AND next_retry_at <= $3 AND retry_count < max_retries)`

	rows, err := r.db.QueryContext(ctx, query,
		models.PostStatusScheduled, models.PostStatusQueued, now, models.PostStatusFailed)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var posts []*models.Post
	for rows.Next() {
		post, err := scanPost(rows)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		posts = append(posts, post)
	}
	if err := rows.Err(); err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	return posts, nil
}

func (r *postRepository) CountDue(ctx context.Context, now time.Time) (int, error) {
	query := `SELECT COUNT(*) FROM posts
		WHERE (status IN ($1, $2) AND scheduled_time <= $3)
		   OR (status = $4 AND next_retry_at IS NOT NULL AND next_retry_at <= $3 AND retry_count < max_retries)`

	var count int
	err := r.db.QueryRowContext(ctx, query,
		models.PostStatusScheduled, models.PostStatusQueued, now, models.PostStatusFailed).Scan(&count)
	if err != nil {
		slog.Info(err.Error())
		return 0, err
	}
	return count, nil
}

// ClaimForProcessing flips a due post to processing with an expected-status
// guard, so a post selected twice is only worked once.
func (r *postRepository) ClaimForProcessing(ctx context.Context, id int64) (bool, error) {
	query := `
		UPDATE posts
		SET status = $1, updated_at = $2
		WHERE id = $3 AND status IN ($4, $5, $6)
	`
	result, err := r.db.ExecContext(ctx, query, models.PostStatusProcessing, time.Now(), id,
		models.PostStatusScheduled, models.PostStatusQueued, models.PostStatusFailed)
	if err != nil {
		slog.Info(err.Error())
		return false, err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		slog.Info(err.Error())
		return false, err
	}
	return affected == 1, nil
}

func (r *postRepository) MarkPosted(ctx context.Context, id int64, tweetID string) error {
	query := `
		UPDATE posts
		SET status = $1, tweet_id = $2, last_error = '', next_retry_at = NULL, updated_at = $3
		WHERE id = $4
	`
	_, err := r.db.ExecContext(ctx, query, models.PostStatusPosted, tweetID, time.Now(), id)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return ErrDuplicateTweetID
		}
		slog.Info(err.Error())
		return err
	}
	return nil
}

func (r *postRepository) MarkFailed(ctx context.Context, id int64, lastError string, retryCount int, nextRetryAt *time.Time) error {
	query := `
		UPDATE posts
		SET status = $1, last_error = $2, retry_count = $3, next_retry_at = $4, updated_at = $5
		WHERE id = $6
	`
	_, err := r.db.ExecContext(ctx, query, models.PostStatusFailed, lastError, retryCount, nextRetryAt, time.Now(), id)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}
