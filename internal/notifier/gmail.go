package notifier

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/codeGROOVE-dev/retry"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"google.golang.org/api/gmail/v1"
)

// GmailNotifier delivers events as email through the Gmail API.
type GmailNotifier struct {
	service *gmail.Service
	from    string
}

func NewGmailNotifier(service *gmail.Service, from string) *GmailNotifier {
	return &GmailNotifier{service: service, from: from}
}

func (g *GmailNotifier) SendSuccess(ctx context.Context, address string, event SuccessEvent) (*SendResult, error) {
	subject := fmt.Sprintf("Posted: %s", truncate(event.Content, 60))

	var b strings.Builder
	fmt.Fprintf(&b, "Your scheduled post for @%s (%s) is live.\n\n", event.AccountHandle, event.AccountDisplayName)
	fmt.Fprintf(&b, "%s\n\n", event.Content)
	fmt.Fprintf(&b, "Scheduled for: %s\n", event.ScheduledAt.Format(time.RFC1123))
	fmt.Fprintf(&b, "Posted at: %s\n", event.PostedAt.Format(time.RFC1123))
	fmt.Fprintf(&b, "Media attached: %d\n", event.MediaCount)
	fmt.Fprintf(&b, "\n%s\n", event.PostURL)

	return g.send(ctx, address, subject, b.String())
}

func (g *GmailNotifier) SendFailure(ctx context.Context, address string, event FailureEvent) (*SendResult, error) {
	subject := fmt.Sprintf("Failed to post: %s", truncate(event.Content, 60))

	var b strings.Builder
	fmt.Fprintf(&b, "Your scheduled post for @%s (%s) could not be published.\n\n", event.AccountHandle, event.AccountDisplayName)
	fmt.Fprintf(&b, "%s\n\n", event.Content)
	fmt.Fprintf(&b, "Scheduled for: %s\n", event.ScheduledAt.Format(time.RFC1123))
	fmt.Fprintf(&b, "Media attached: %d\n", event.MediaCount)
	fmt.Fprintf(&b, "Error: %s\n", event.ErrorMessage)

	return g.send(ctx, address, subject, b.String())
}

func (g *GmailNotifier) send(ctx context.Context, to, subject, body string) (*SendResult, error) {
	var msg strings.Builder
	msg.WriteString("MIME-Version: 1.0\r\n")
	fmt.Fprintf(&msg, "From: %s\r\n", g.from)
	fmt.Fprintf(&msg, "To: %s\r\n", to)
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	msg.WriteString("Content-Type: text/plain; charset=utf-8\r\n\r\n")
	msg.WriteString(body)
	encoded := base64.URLEncoding.EncodeToString([]byte(msg.String()))

	err := retry.Do(
		func() error {
			_, err := g.service.Users.Messages.Send("me", &gmail.Message{
				Raw: encoded,
			}).Context(ctx).Do()
			return err
		},
		retry.Attempts(5),
		retry.Delay(time.Second),
		retry.MaxDelay(time.Minute),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, err error) {
			slog.Info("retrying notification email", "attempt", n, "to", to, "error", err.Error())
		}),
	)
	if err != nil {
		return &SendResult{Success: false, Error: err.Error()}, fmt.Errorf("after retries: %w", err)
	}

	messageID, _ := gonanoid.New()
	return &SendResult{Success: true, MessageID: messageID}, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
