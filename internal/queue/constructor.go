package queue

import (
	"postflow/internal/notifier"
)

// Queue holds the worker-side dependencies for background tasks.
type Queue struct {
	n notifier.Notifier
}

func NewQueue(n notifier.Notifier) *Queue {
	return &Queue{n: n}
}

const TaskTypeNotification = "notification:email"

const (
	NotificationKindSuccess = "success"
	NotificationKindFailure = "failure"
)

type NotificationPayload struct {
	Kind    string                 `json:"kind"`
	Address string                 `json:"address"`
	Success *notifier.SuccessEvent `json:"success,omitempty"`
	Failure *notifier.FailureEvent `json:"failure,omitempty"`
}
