package service

import (
	"context"
	"time"

	config "postflow/configs"
	"postflow/internal/models"
	"postflow/internal/repository"
)

type RetryService interface {
	// ScheduleRetry records a failed attempt: bumps the retry count and
	// either schedules the next attempt with exponential backoff or, once
	// the ceiling is hit, finalizes the post as failed with no retry time.
	// Returns true when the failure is terminal. The same policy applies
	// to every error category.
	ScheduleRetry(ctx context.Context, post *models.Post, failureMessage string, now time.Time) (bool, error)
}

type retryService struct {
	cfg   config.Config
	posts repository.PostRepository
}

func NewRetryService(cfg config.Config, posts repository.PostRepository) RetryService {
	return &retryService{cfg: cfg, posts: posts}
}

func (s *retryService) ScheduleRetry(ctx context.Context, post *models.Post, failureMessage string, now time.Time) (bool, error) {
	maxRetries := post.MaxRetries
	if maxRetries <= 0 {
		maxRetries = s.cfg.MaxRetries
	}

	retryCount := post.RetryCount + 1

	var nextRetryAt *time.Time
	if retryCount < maxRetries {
		delay := s.cfg.RetryBaseDelay * (1 << (retryCount - 1))
		next := now.Add(delay)
		nextRetryAt = &next
	}

	if err := s.posts.MarkFailed(ctx, post.ID, failureMessage, retryCount, nextRetryAt); err != nil {
		return false, err
	}

	post.Status = models.PostStatusFailed
	post.LastError = failureMessage
	post.RetryCount = retryCount
	post.NextRetryAt = nextRetryAt

	return nextRetryAt == nil, nil
}
