package notify

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"umbrella-admin/internal/event"
)

type mockNotifier struct {
	mock.Mock
}

func (m *mockNotifier) Send(ctx context.Context, recipients []string, subject string, body string, data map[string]any) error {
	return m.Called(ctx, recipients, subject, body, data).Error(0)
}

func TestLogNotifier(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	n := NewLogNotifier(slog.New(slog.NewTextHandler(&buf, nil)))

	require.NoError(t, n.Send(context.Background(), []string{"alice"}, "Invoice sent", "body", nil))
	assert.Contains(t, buf.String(), "Invoice sent")
}

func TestBusNotifier(t *testing.T) {
	t.Parallel()

	bus := event.NewBus()
	events, unsubscribe := bus.Subscribe()
	defer unsubscribe()

	require.NoError(t, NewBusNotifier(bus).Send(context.Background(), []string{"bob"}, "Hello", "world", map[string]any{"id": "e1"}))

	select {
	case e := <-events:
		assert.Equal(t, event.TypeNotificationSent, e.Type)
		payload, ok := e.Payload.(Notification)
		require.True(t, ok)
		assert.Equal(t, []string{"bob"}, payload.Recipients)
	case <-time.After(time.Second):
		t.Fatal("notification not published")
	}
}

func TestMultiJoinsErrors(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	ok := &mockNotifier{}
	ok.On("Send", ctx, []string{"a"}, "s", "b", map[string]any(nil)).Return(nil).Once()
	failing := &mockNotifier{}
	failing.On("Send", ctx, []string{"a"}, "s", "b", map[string]any(nil)).Return(errors.New("relay down")).Once()

	err := Multi{ok, failing}.Send(ctx, []string{"a"}, "s", "b", nil)
	require.ErrorContains(t, err, "relay down")
	ok.AssertExpectations(t)
	failing.AssertExpectations(t)
}
