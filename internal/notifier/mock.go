package notifier

import (
	"context"
	"log/slog"
	"sync"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

// MockNotifier logs events instead of delivering them. Used in local
// development and tests.
type MockNotifier struct {
	mu        sync.Mutex
	Successes []SuccessEvent
	Failures  []FailureEvent
}

func NewMockNotifier() *MockNotifier {
	return &MockNotifier{}
}

func (m *MockNotifier) SendSuccess(_ context.Context, address string, event SuccessEvent) (*SendResult, error) {
	m.mu.Lock()
	m.Successes = append(m.Successes, event)
	m.mu.Unlock()

	slog.Info("MOCK success notification", "to", address, "post_url", event.PostURL)
	messageID, _ := gonanoid.New()
	return &SendResult{Success: true, MessageID: messageID}, nil
}

func (m *MockNotifier) SendFailure(_ context.Context, address string, event FailureEvent) (*SendResult, error) {
	m.mu.Lock()
	m.Failures = append(m.Failures, event)
	m.mu.Unlock()

	slog.Info("MOCK failure notification", "to", address, "error", event.ErrorMessage)
	messageID, _ := gonanoid.New()
	return &SendResult{Success: true, MessageID: messageID}, nil
}
