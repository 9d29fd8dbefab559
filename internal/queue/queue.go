package queue

import (
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"
)

// Enqueuer hands a notification off for asynchronous delivery.
type Enqueuer interface {
	EnqueueNotification(payload NotificationPayload) error
}

type AsynqEnqueuer struct {
	client *asynq.Client
}

func NewAsynqEnqueuer(client *asynq.Client) *AsynqEnqueuer {
	return &AsynqEnqueuer{client: client}
}

func (e *AsynqEnqueuer) EnqueueNotification(payload NotificationPayload) error {
	taskPayload, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	task := asynq.NewTask(TaskTypeNotification, taskPayload)

	if _, err := e.client.Enqueue(task); err != nil {
		return err
	}

	slog.Info("notification task enqueued", "kind", payload.Kind, "to", payload.Address)
	return nil
}
