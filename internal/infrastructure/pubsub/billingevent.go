package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	vo "selah/internal/domain/subscription/valueobjects"
	"selah/internal/shared/logger"
)

// BillingChangeType represents the type of billing change event.
type BillingChangeType string

const (
	// BillingChangeActivation indicates a subscription became usable.
	BillingChangeActivation BillingChangeType = "activation"
	// BillingChangeCharge indicates a successful charge was collected.
	BillingChangeCharge BillingChangeType = "charge"
	// BillingChangeDeactivation indicates a subscription lost service access.
	BillingChangeDeactivation BillingChangeType = "deactivation"
	// BillingChangeUpdate indicates a metadata or status refresh.
	BillingChangeUpdate BillingChangeType = "update"
)

// BillingChangeEvent is published for cross-instance synchronization:
// entitlement caches, revenue analytics and notification workers consume it.
type BillingChangeEvent struct {
	SubscriptionID  uint              `json:"subscription_id"`
	SubscriptionSID string            `json:"subscription_sid"`
	UserID          uint              `json:"user_id"`
	Provider        string            `json:"provider"`
	ChangeType      BillingChangeType `json:"change_type"`
	Status          string            `json:"status"`
	Amount          int64             `json:"amount,omitempty"`
	Currency        string            `json:"currency,omitempty"`
	Timestamp       int64             `json:"timestamp"`
}

// BillingEventHandler is a callback for handling billing events.
type BillingEventHandler func(ctx context.Context, event BillingChangeEvent)

// BillingEventPublisher publishes billing change events. Publishing is
// fire-and-forget at the call sites: failures are logged, never propagated
// into the webhook pipeline.
type BillingEventPublisher interface {
	PublishActivation(ctx context.Context, subscriptionID uint, sid string, userID uint, provider vo.ProviderType) error
	PublishCharge(ctx context.Context, subscriptionID uint, sid string, userID uint, provider vo.ProviderType, amount int64, currency string) error
	PublishDeactivation(ctx context.Context, subscriptionID uint, sid string, userID uint, provider vo.ProviderType, status vo.Status) error
	PublishUpdate(ctx context.Context, subscriptionID uint, sid string, userID uint, provider vo.ProviderType, status vo.Status) error
}

// BillingEventSubscriber subscribes to billing change events.
type BillingEventSubscriber interface {
	Subscribe(ctx context.Context, handler BillingEventHandler) error
}

const billingChangeChannel = "selah:billing:change"

// RedisBillingEventBus implements both publisher and subscriber over Redis
// Pub/Sub.
type RedisBillingEventBus struct {
	client *redis.Client
	logger logger.Interface
}

func NewRedisBillingEventBus(client *redis.Client, log logger.Interface) *RedisBillingEventBus {
	return &RedisBillingEventBus{client: client, logger: log}
}

func (b *RedisBillingEventBus) PublishActivation(ctx context.Context, subscriptionID uint, sid string, userID uint, provider vo.ProviderType) error {
	return b.publish(ctx, BillingChangeEvent{
		SubscriptionID:  subscriptionID,
		SubscriptionSID: sid,
		UserID:          userID,
		Provider:        string(provider),
		ChangeType:      BillingChangeActivation,
		Status:          string(vo.StatusActive),
		Timestamp:       time.Now().Unix(),
	})
}

func (b *RedisBillingEventBus) PublishCharge(ctx context.Context, subscriptionID uint, sid string, userID uint, provider vo.ProviderType, amount int64, currency string) error {
	return b.publish(ctx, BillingChangeEvent{
		SubscriptionID:  subscriptionID,
		SubscriptionSID: sid,
		UserID:          userID,
		Provider:        string(provider),
		ChangeType:      BillingChangeCharge,
		Status:          string(vo.StatusActive),
		Amount:          amount,
		Currency:        currency,
		Timestamp:       time.Now().Unix(),
	})
}

func (b *RedisBillingEventBus) PublishDeactivation(ctx context.Context, subscriptionID uint, sid string, userID uint, provider vo.ProviderType, status vo.Status) error {
	return b.publish(ctx, BillingChangeEvent{
		SubscriptionID:  subscriptionID,
		SubscriptionSID: sid,
		UserID:          userID,
		Provider:        string(provider),
		ChangeType:      BillingChangeDeactivation,
		Status:          string(status),
		Timestamp:       time.Now().Unix(),
	})
}

func (b *RedisBillingEventBus) PublishUpdate(ctx context.Context, subscriptionID uint, sid string, userID uint, provider vo.ProviderType, status vo.Status) error {
	return b.publish(ctx, BillingChangeEvent{
		SubscriptionID:  subscriptionID,
		SubscriptionSID: sid,
		UserID:          userID,
		Provider:        string(provider),
		ChangeType:      BillingChangeUpdate,
		Status:          string(status),
		Timestamp:       time.Now().Unix(),
	})
}

func (b *RedisBillingEventBus) publish(ctx context.Context, event BillingChangeEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if err := b.client.Publish(ctx, billingChangeChannel, data).Err(); err != nil {
		b.logger.Errorw("failed to publish billing change event",
			"subscription_id", event.SubscriptionID,
			"change_type", event.ChangeType,
			"error", err,
		)
		return fmt.Errorf("failed to publish event: %w", err)
	}

	b.logger.Debugw("billing change event published",
		"subscription_id", event.SubscriptionID,
		"change_type", event.ChangeType,
		"status", event.Status,
	)
	return nil
}

// Subscribe consumes billing change events until the context ends. Each
// event is handled in its own goroutine so a slow handler cannot stall the
// event loop.
func (b *RedisBillingEventBus) Subscribe(ctx context.Context, handler BillingEventHandler) error {
	pubsub := b.client.Subscribe(ctx, billingChangeChannel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to channel: %w", err)
	}

	b.logger.Infow("subscribed to billing change events", "channel", billingChangeChannel)

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			b.logger.Infow("billing event subscriber stopped", "reason", ctx.Err())
			return ctx.Err()

		case msg, ok := <-ch:
			if !ok {
				b.logger.Warnw("billing event channel closed")
				return nil
			}

			var event BillingChangeEvent
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				b.logger.Warnw("failed to unmarshal billing event", "payload", msg.Payload, "error", err)
				continue
			}

			go handler(context.Background(), event)
		}
	}
}
