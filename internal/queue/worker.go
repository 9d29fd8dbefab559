package queue

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"
)

// HandleNotificationTask delivers one queued notification. Delivery
// failures are logged and swallowed: a lost notification never changes a
// post's status and is not worth asynq's own retry machinery.
func (q *Queue) HandleNotificationTask(ctx context.Context, task *asynq.Task) error {
	var payload NotificationPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return err
	}

	switch payload.Kind {
	case NotificationKindSuccess:
		if payload.Success == nil {
			slog.Info("success notification task without event payload")
			return nil
		}
		if _, err := q.n.SendSuccess(ctx, payload.Address, *payload.Success); err != nil {
			slog.Info("success notification delivery failed", "to", payload.Address, "error", err.Error())
		}
	case NotificationKindFailure:
		if payload.Failure == nil {
			slog.Info("failure notification task without event payload")
			return nil
		}
		if _, err := q.n.SendFailure(ctx, payload.Address, *payload.Failure); err != nil {
			slog.Info("failure notification delivery failed", "to", payload.Address, "error", err.Error())
		}
	default:
		slog.Info("unknown notification kind", "kind", payload.Kind)
	}

	return nil
}
