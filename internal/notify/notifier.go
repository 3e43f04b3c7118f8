// Package notify delivers messages about entities to people. Delivery is
// best effort: callers inside a mutation log failures instead of aborting.
package notify

import (
	"context"
	"errors"
	"log/slog"

	"umbrella-admin/internal/event"
)

type Notifier interface {
	Send(ctx context.Context, recipients []string, subject string, body string, data map[string]any) error
}

// LogNotifier writes messages to the structured log. It is the default when
// no mail relay is configured.
type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Send(ctx context.Context, recipients []string, subject string, body string, data map[string]any) error {
	n.logger.InfoContext(ctx, "notification", "recipients", recipients, "subject", subject, "body_len", len(body), "data", data)
	return nil
}

// BusNotifier publishes every message on the event bus so live clients see
// it.
type BusNotifier struct {
	bus event.Bus
}

func NewBusNotifier(bus event.Bus) *BusNotifier {
	return &BusNotifier{bus: bus}
}

type Notification struct {
	Recipients []string       `json:"recipients"`
	Subject    string         `json:"subject"`
	Body       string         `json:"body"`
	Data       map[string]any `json:"data,omitempty"`
}

func (n *BusNotifier) Send(_ context.Context, recipients []string, subject string, body string, data map[string]any) error {
	n.bus.Publish(event.Event{
		Type:    event.TypeNotificationSent,
		Payload: Notification{Recipients: recipients, Subject: subject, Body: body, Data: data},
	})
	return nil
}

// Multi sends through every notifier and joins their errors.
type Multi []Notifier

func (m Multi) Send(ctx context.Context, recipients []string, subject string, body string, data map[string]any) error {
	var errs []error
	for _, n := range m {
		if err := n.Send(ctx, recipients, subject, body, data); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
