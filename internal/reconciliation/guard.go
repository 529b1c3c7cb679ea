package reconciliation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/angelmondragon/marketplace-payouts/pkg/redis"
)

// WebhookGuard remembers webhook deliveries already handled so provider
// redeliveries are acknowledged without touching the database.
type WebhookGuard struct {
	store redis.IdempotencyStore
	ttl   time.Duration
	scope string
}

func NewWebhookGuard(store redis.IdempotencyStore, ttl time.Duration, scope string) (*WebhookGuard, error) {
	if store == nil {
		return nil, errors.New("idempotency store is required")
	}
	if ttl < 0 {
		return nil, errors.New("ttl must be non-negative")
	}
	if scope == "" {
		return nil, errors.New("scope is required")
	}
	return &WebhookGuard{store: store, ttl: ttl, scope: scope}, nil
}

// CheckAndMark reports whether deliveryKey was seen before, marking it when not.
func (g *WebhookGuard) CheckAndMark(ctx context.Context, deliveryKey string) (bool, error) {
	if deliveryKey == "" {
		return false, errors.New("delivery key is required")
	}
	key := g.store.IdempotencyKey(g.scope, deliveryKey)
	set, err := g.store.SetNX(ctx, key, "1", g.ttl)
	if err != nil {
		return false, fmt.Errorf("set idempotency key: %w", err)
	}
	return !set, nil
}

// Delete forgets a delivery so the provider's retry is processed again.
func (g *WebhookGuard) Delete(ctx context.Context, deliveryKey string) error {
	if deliveryKey == "" {
		return errors.New("delivery key is required")
	}
	return g.store.Del(ctx, g.store.IdempotencyKey(g.scope, deliveryKey))
}
