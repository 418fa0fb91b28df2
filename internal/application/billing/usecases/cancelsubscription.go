package usecases

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"selah/internal/application/billing/provider"
	"selah/internal/domain/subscription"
	vo "selah/internal/domain/subscription/valueobjects"
	"selah/internal/shared/errors"
	"selah/internal/shared/lock"
	"selah/internal/shared/logger"
)

// CancelSubscriptionCommand cancels a subscription, optionally at cycle end.
type CancelSubscriptionCommand struct {
	UserID           uint
	SubscriptionSID  string
	CancelAtCycleEnd bool
	Reason           string
}

// CancelSubscriptionResult reports the outcome.
type CancelSubscriptionResult struct {
	SubscriptionSID string
	Status          vo.Status
	CancelledAt     *time.Time
	ActiveUntil     *time.Time
}

// CancelSubscriptionUseCase cancels at the provider first, then locally.
// With cancel-at-cycle-end the subscription moves to pending_cancellation
// and access continues until the paid period ends.
type CancelSubscriptionUseCase struct {
	subRepo  subscription.Repository
	registry *provider.Registry
	locks    *lock.KeyedMutex
	logger   logger.Interface
}

func NewCancelSubscriptionUseCase(subRepo subscription.Repository, registry *provider.Registry, locks *lock.KeyedMutex, log logger.Interface) *CancelSubscriptionUseCase {
	return &CancelSubscriptionUseCase{subRepo: subRepo, registry: registry, locks: locks, logger: log}
}

func (uc *CancelSubscriptionUseCase) Execute(ctx context.Context, cmd CancelSubscriptionCommand) (*CancelSubscriptionResult, error) {
	sub, err := uc.subRepo.GetBySID(ctx, cmd.SubscriptionSID)
	if err != nil {
		if stderrors.Is(err, subscription.ErrSubscriptionNotFound) {
			return nil, errors.NewNotFoundError("subscription not found")
		}
		return nil, fmt.Errorf("failed to load subscription: %w", err)
	}
	if sub.UserID() != cmd.UserID {
		return nil, errors.NewNotFoundError("subscription not found")
	}

	if sub.Status().IsTerminal() {
		return nil, errors.NewStateConflictError("subscription is already " + string(sub.Status()))
	}

	// Store subscriptions are cancelled in the store app, not through us.
	if sub.Provider().IsStore() {
		return nil, errors.NewMethodNotSupportedError(string(sub.Provider()), "CancelSubscription")
	}

	adapter, err := uc.registry.Get(sub.Provider())
	if err != nil {
		return nil, err
	}
	if err := adapter.CancelSubscription(ctx, sub.ProviderSubscriptionID(), cmd.CancelAtCycleEnd); err != nil {
		uc.logger.Errorw("provider cancellation failed",
			"subscription_id", sub.ID(), "error", err)
		return nil, err
	}

	lockKey := string(sub.Provider()) + ":" + sub.ProviderSubscriptionID()
	uc.locks.Lock(lockKey)
	defer uc.locks.Unlock(lockKey)

	// Reload under the lock: a webhook may have raced us.
	sub, err = uc.subRepo.GetBySID(ctx, cmd.SubscriptionSID)
	if err != nil {
		return nil, fmt.Errorf("failed to reload subscription: %w", err)
	}

	prevStatus := sub.Status()
	if err := sub.Cancel(cmd.CancelAtCycleEnd, cmd.Reason); err != nil {
		return nil, err
	}

	eventType := vo.EventCancelled
	entry, err := subscription.NewHistory(sub.ID(), sub.UserID(), eventType, &prevStatus, sub.Status(),
		fmt.Sprintf("local:%s:cancel:%d", sub.ProviderSubscriptionID(), time.Now().Unix()),
		subscription.HistoryParams{Note: "user-initiated cancellation"})
	if err != nil {
		return nil, err
	}
	if err := uc.subRepo.RecordTransition(ctx, sub, entry); err != nil && !stderrors.Is(err, subscription.ErrDuplicateEvent) {
		return nil, err
	}

	uc.logger.Infow("subscription cancelled",
		"subscription_id", sub.ID(),
		"at_cycle_end", cmd.CancelAtCycleEnd,
		"status", sub.Status(),
	)

	result := &CancelSubscriptionResult{
		SubscriptionSID: sub.SID(),
		Status:          sub.Status(),
		CancelledAt:     sub.CancelledAt(),
	}
	if sub.Status() == vo.StatusPendingCancellation {
		result.ActiveUntil = sub.CurrentPeriodEnd()
	}
	return result, nil
}
