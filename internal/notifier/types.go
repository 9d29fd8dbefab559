// Package notifier defines the narrow capability interface the pipeline
// uses to tell users about publish outcomes, plus the concrete providers.
// Providers are injected at startup; nothing in the pipeline knows which
// one is behind the interface.
package notifier

import (
	"context"
	"time"
)

type SuccessEvent struct {
	Content            string    `json:"content"`
	AccountHandle      string    `json:"account_handle"`
	AccountDisplayName string    `json:"account_display_name"`
	ScheduledAt        time.Time `json:"scheduled_at"`
	PostedAt           time.Time `json:"posted_at"`
	MediaCount         int       `json:"media_count"`
	PostURL            string    `json:"post_url"`
}

type FailureEvent struct {
	Content            string    `json:"content"`
	AccountHandle      string    `json:"account_handle"`
	AccountDisplayName string    `json:"account_display_name"`
	ScheduledAt        time.Time `json:"scheduled_at"`
	MediaCount         int       `json:"media_count"`
	ErrorMessage       string    `json:"error_message"`
}

type SendResult struct {
	Success   bool   `json:"success"`
	MessageID string `json:"message_id,omitempty"`
	Error     string `json:"error,omitempty"`
}

type Notifier interface {
	SendSuccess(ctx context.Context, address string, event SuccessEvent) (*SendResult, error)
	SendFailure(ctx context.Context, address string, event FailureEvent) (*SendResult, error)
}
