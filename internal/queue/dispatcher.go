package queue

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"postflow/internal/models"
	"postflow/internal/notifier"
	"postflow/internal/repository"
)

// Dispatcher decides whether an outcome should notify anyone, then hands
// the event to the queue. Every failure in here is logged only; the
// pipeline never sees it.
type Dispatcher struct {
	settings repository.SettingsRepository
	enqueuer Enqueuer
}

func NewDispatcher(settings repository.SettingsRepository, enqueuer Enqueuer) *Dispatcher {
	return &Dispatcher{settings: settings, enqueuer: enqueuer}
}

func (d *Dispatcher) PostPublished(ctx context.Context, post *models.Post, acc *models.SocialAccount, tweetID string, postedAt time.Time, mediaCount int) {
	prefs, ok := d.preferences(ctx, post.UserID)
	if !ok || !prefs.NotifyOnSuccess {
		return
	}

	payload := NotificationPayload{
		Kind:    NotificationKindSuccess,
		Address: prefs.Email,
		Success: &notifier.SuccessEvent{
			Content:            post.Caption,
			AccountHandle:      acc.AccountUsername,
			AccountDisplayName: acc.AccountName,
			ScheduledAt:        post.ScheduledTime,
			PostedAt:           postedAt,
			MediaCount:         mediaCount,
			PostURL:            fmt.Sprintf("https://twitter.com/%s/status/%s", acc.AccountUsername, tweetID),
		},
	}

	if err := d.enqueuer.EnqueueNotification(payload); err != nil {
		slog.Info("failed to enqueue success notification", "post_id", post.ID, "error", err.Error())
	}
}

func (d *Dispatcher) PostFailed(ctx context.Context, post *models.Post, acc *models.SocialAccount, errorMessage string, mediaCount int) {
	prefs, ok := d.preferences(ctx, post.UserID)
	if !ok || !prefs.NotifyOnFailure {
		return
	}

	payload := NotificationPayload{
		Kind:    NotificationKindFailure,
		Address: prefs.Email,
		Failure: &notifier.FailureEvent{
			Content:            post.Caption,
			AccountHandle:      acc.AccountUsername,
			AccountDisplayName: acc.AccountName,
			ScheduledAt:        post.ScheduledTime,
			MediaCount:         mediaCount,
			ErrorMessage:       errorMessage,
		},
	}

	if err := d.enqueuer.EnqueueNotification(payload); err != nil {
		slog.Info("failed to enqueue failure notification", "post_id", post.ID, "error", err.Error())
	}
}

func (d *Dispatcher) preferences(ctx context.Context, userID int64) (*models.NotificationSettings, bool) {
	prefs, found, err := d.settings.GetByUserID(ctx, userID)
	if err != nil {
		slog.Info("failed to load notification settings", "user_id", userID, "error", err.Error())
		return nil, false
	}
	if !found || !prefs.Enabled || prefs.Email == "" {
		return nil, false
	}
	return prefs, true
}
