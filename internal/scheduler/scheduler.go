// Package scheduler owns the periodic tick: it selects due posts, groups
// them by account, and drives credential refresh, publishing, retry
// bookkeeping, and notification dispatch. One active instance is assumed.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	config "postflow/configs"
	"postflow/internal/models"
	"postflow/internal/queue"
	"postflow/internal/repository"
	"postflow/internal/service"
)

// Distinct accounts publish concurrently up to this limit. Posts within
// one account stay strictly sequential: credential refresh mutates shared
// account state and the platform rate-limits per account.
const concurrencyLimit = 10

type Scheduler struct {
	cfg        config.Config
	posts      repository.PostRepository
	accounts   repository.SocialAccountRepository
	pm         repository.PostMediaRepository
	history    repository.PostingHistoryRepository
	twitter    service.TwitterService
	retries    service.RetryService
	dispatcher *queue.Dispatcher

	running atomic.Bool
	now     func() time.Time
}

func NewScheduler(
	cfg config.Config,
	posts repository.PostRepository,
	accounts repository.SocialAccountRepository,
	pm repository.PostMediaRepository,
	history repository.PostingHistoryRepository,
	twitter service.TwitterService,
	retries service.RetryService,
	dispatcher *queue.Dispatcher) *Scheduler {
	return &Scheduler{
		cfg:        cfg,
		posts:      posts,
		accounts:   accounts,
		pm:         pm,
		history:    history,
		twitter:    twitter,
		retries:    retries,
		dispatcher: dispatcher,
		now:        time.Now,
	}
}

// Run is one tick. A selection failure is logged and abandoned; the next
// tick starts over. If the previous tick is still in flight the new one
// is skipped rather than overlapped.
func (s *Scheduler) Run() {
	if !s.running.CompareAndSwap(false, true) {
		slog.Info("previous tick still running, skipping this one")
		return
	}
	defer s.running.Store(false)

	ctx := context.Background()
	now := s.now()

	due, err := s.posts.ListDue(ctx, now)
	if err != nil {
		slog.Info("due-post selection failed", "error", err.Error())
		return
	}
	if len(due) == 0 {
		return
	}

	batches := make(map[int64][]*models.Post)
	for _, post := range due {
		batches[post.AccountID] = append(batches[post.AccountID], post)
	}

	slog.Info("tick selected due posts", "posts", len(due), "accounts", len(batches))

	var wg sync.WaitGroup
	semaphore := make(chan struct{}, concurrencyLimit)

	for accountID, batch := range batches {
		wg.Add(1)
		semaphore <- struct{}{}

		go func(accountID int64, batch []*models.Post) {
			defer wg.Done()
			defer func() { <-semaphore }()
			s.processBatch(ctx, accountID, batch)
		}(accountID, batch)
	}

	wg.Wait()
}

// processBatch publishes one account's due posts sequentially. Failures
// here are isolated: they never block another account's batch.
func (s *Scheduler) processBatch(ctx context.Context, accountID int64, batch []*models.Post) {
	acc, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		slog.Info("failed to load account, skipping its batch", "account_id", accountID, "error", err.Error())
		return
	}
	if acc == nil {
		slog.Info("account not found, skipping its batch", "account_id", accountID)
		return
	}

	for _, post := range batch {
		s.processPost(ctx, post, acc)
	}
}

func (s *Scheduler) processPost(ctx context.Context, post *models.Post, acc *models.SocialAccount) {
	claimed, err := s.posts.ClaimForProcessing(ctx, post.ID)
	if err != nil {
		slog.Info("failed to claim post", "post_id", post.ID, "error", err.Error())
		return
	}
	if !claimed {
		slog.Info("post no longer claimable, skipping", "post_id", post.ID)
		return
	}

	mediaCount, err := s.pm.CountByPostID(ctx, post.ID)
	if err != nil {
		slog.Info("failed to count post media", "post_id", post.ID, "error", err.Error())
	}

	tweetID, pubErr := s.twitter.HandlePost(ctx, post, acc)
	s.recordHistory(ctx, post, acc, tweetID, pubErr)

	if pubErr != nil {
		s.handleFailure(ctx, post, acc, pubErr, mediaCount)
		return
	}

	if err := s.posts.MarkPosted(ctx, post.ID, tweetID); err != nil {
		if errors.Is(err, repository.ErrDuplicateTweetID) {
			slog.Info("tweet id already recorded, refusing duplicate bookkeeping",
				"post_id", post.ID, "tweet_id", tweetID)
			return
		}
		slog.Info("failed to mark post as posted", "post_id", post.ID, "error", err.Error())
		return
	}

	slog.Info("post published", "post_id", post.ID, "tweet_id", tweetID, "account_id", acc.ID)
	s.dispatcher.PostPublished(ctx, post, acc, tweetID, s.now(), mediaCount)
}

func (s *Scheduler) handleFailure(ctx context.Context, post *models.Post, acc *models.SocialAccount, pubErr error, mediaCount int) {
	message := failureMessage(pubErr)

	terminal, err := s.retries.ScheduleRetry(ctx, post, message, s.now())
	if err != nil {
		slog.Info("failed to record retry state", "post_id", post.ID, "error", err.Error())
	}

	slog.Info("post publish failed",
		"post_id", post.ID,
		"account_id", acc.ID,
		"retry_count", post.RetryCount,
		"terminal", terminal,
		"error", message)

	s.dispatcher.PostFailed(ctx, post, acc, message, mediaCount)
}

func (s *Scheduler) recordHistory(ctx context.Context, post *models.Post, acc *models.SocialAccount, tweetID string, pubErr error) {
	entry := models.PostingHistory{
		UserID:    post.UserID,
		PostID:    post.ID,
		AccountID: acc.ID,
		TweetID:   tweetID,
	}
	if pubErr != nil {
		entry.ErrorMessage = failureMessage(pubErr)
	}
	if _, err := s.history.Create(ctx, &entry); err != nil {
		slog.Info("failed to record posting history", "post_id", post.ID, "error", err.Error())
	}
}

// failureMessage prefers the classified message over the raw error text.
func failureMessage(err error) string {
	var pubErr *service.PublishError
	if errors.As(err, &pubErr) {
		return pubErr.Message
	}
	return err.Error()
}
