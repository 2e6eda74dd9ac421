package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Notifier publishes user-facing notifications over NATS. Delivery is
// best effort; downstream consumers (mail, push, in-app feed) subscribe
// to the subject and fan out as they see fit.
type Notifier struct {
	queue   *Queue
	subject string
}

func NewNotifier(queue *Queue, subject string) *Notifier {
	return &Notifier{queue: queue, subject: subject}
}

type notificationEvent struct {
	UserID    string    `json:"user_id"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Severity  string    `json:"severity"`
	CreatedAt time.Time `json:"created_at"`
}

func (n *Notifier) Notify(ctx context.Context, userID, title, message, severity string) error {
	payload, err := json.Marshal(notificationEvent{
		UserID:    userID,
		Title:     title,
		Message:   message,
		Severity:  severity,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	call := func(_ context.Context) error {
		if err := n.queue.conn.Publish(n.subject, payload); err != nil {
			return fmt.Errorf("nats publish notification: %w", err)
		}
		return nil
	}

	if n.queue.executor != nil {
		err = n.queue.executor.Execute(ctx, "nats.notify", call, classifyNATSError)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return wrapTemporaryIfNeeded(err)
	}
	return nil
}
