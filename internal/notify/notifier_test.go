package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/angelmondragon/marketplace-payouts/pkg/logger"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingNotifier struct {
	calls int
}

func (f *failingNotifier) Notify(context.Context, Event) error {
	f.calls++
	return errors.New("smtp down")
}

type fakePublisher struct {
	messages []*gcppubsub.Message
	err      error
}

func (f *fakePublisher) Publish(_ context.Context, msg *gcppubsub.Message) publishResult {
	f.messages = append(f.messages, msg)
	return fakeResult{err: f.err}
}

type fakeResult struct {
	err error
}

func (r fakeResult) Get(context.Context) (string, error) {
	return "server-id", r.err
}

func TestSafeSwallowsErrorsAndLogs(t *testing.T) {
	buf := &bytes.Buffer{}
	logg := logger.New(logger.Options{ServiceName: "test", Output: buf})
	inner := &failingNotifier{}

	err := NewSafe(inner, logg).Notify(context.Background(), Event{Type: EventPayoutCompleted, OrderID: uuid.New()})

	require.NoError(t, err)
	assert.Equal(t, 1, inner.calls)
	assert.Contains(t, buf.String(), "notification dispatch failed")
}

func TestSafeDefaultsToNoop(t *testing.T) {
	require.NoError(t, NewSafe(nil, nil).Notify(context.Background(), Event{}))
}

func TestPubSubNotifierPublishesJSON(t *testing.T) {
	pub := &fakePublisher{}
	notifier := newPubSubNotifier(pub, time.Second)
	event := Event{
		Type:       EventPayoutCompleted,
		OrderID:    uuid.New(),
		SellerID:   uuid.New(),
		Status:     "completed",
		Amount:     "905.60",
		OccurredAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}

	require.NoError(t, notifier.Notify(context.Background(), event))
	require.Len(t, pub.messages, 1)

	msg := pub.messages[0]
	assert.Equal(t, "payout.completed", msg.Attributes["event_type"])
	assert.Equal(t, event.OrderID.String(), msg.Attributes["order_id"])

	var decoded Event
	require.NoError(t, json.Unmarshal(msg.Data, &decoded))
	assert.Equal(t, event.Amount, decoded.Amount)
}

func TestPubSubNotifierSurfacesPublishError(t *testing.T) {
	pub := &fakePublisher{err: errors.New("deadline exceeded")}
	err := newPubSubNotifier(pub, 0).Notify(context.Background(), Event{Type: EventPayoutFailed})
	require.Error(t, err)
}
