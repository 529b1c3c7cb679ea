package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
)

const defaultPublishTimeout = 5 * time.Second

type publisher interface {
	Publish(context.Context, *gcppubsub.Message) publishResult
}

type publishResult interface {
	Get(context.Context) (string, error)
}

// PubSubNotifier publishes events as JSON to the notification topic.
type PubSubNotifier struct {
	pub     publisher
	timeout time.Duration
}

func NewPubSubNotifier(p *gcppubsub.Publisher, timeout time.Duration) (*PubSubNotifier, error) {
	if p == nil {
		return nil, fmt.Errorf("pubsub publisher required")
	}
	return newPubSubNotifier(&gcpPublisher{Publisher: p}, timeout), nil
}

func newPubSubNotifier(pub publisher, timeout time.Duration) *PubSubNotifier {
	if timeout <= 0 {
		timeout = defaultPublishTimeout
	}
	return &PubSubNotifier{pub: pub, timeout: timeout}
}

func (n *PubSubNotifier) Notify(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encoding notification: %w", err)
	}

	msg := &gcppubsub.Message{
		Data: payload,
		Attributes: map[string]string{
			"event_type":  string(event.Type),
			"order_id":    event.OrderID.String(),
			"seller_id":   event.SellerID.String(),
			"status":      event.Status,
			"occurred_at": event.OccurredAt.Format(time.RFC3339Nano),
		},
	}

	publishCtx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()
	result := n.pub.Publish(publishCtx, msg)
	if result == nil {
		return errors.New("publisher returned nil result")
	}
	if _, err := result.Get(publishCtx); err != nil {
		return fmt.Errorf("publishing %s: %w", event.Type, err)
	}
	return nil
}

type gcpPublisher struct {
	*gcppubsub.Publisher
}

func (p *gcpPublisher) Publish(ctx context.Context, msg *gcppubsub.Message) publishResult {
	if p == nil || p.Publisher == nil {
		return nil
	}
	return &gcpPublishResult{PublishResult: p.Publisher.Publish(ctx, msg)}
}

type gcpPublishResult struct {
	*gcppubsub.PublishResult
}

func (r *gcpPublishResult) Get(ctx context.Context) (string, error) {
	if r == nil || r.PublishResult == nil {
		return "", errors.New("publish result is nil")
	}
	return r.PublishResult.Get(ctx)
}
