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

// ResumeSubscriptionCommand reverts a scheduled cancellation.
type ResumeSubscriptionCommand struct {
	UserID          uint
	SubscriptionSID string
}

// ResumeSubscriptionResult reports the outcome.
type ResumeSubscriptionResult struct {
	SubscriptionSID string
	Status          vo.Status
}

// ResumeSubscriptionUseCase re-activates a pending_cancellation
// subscription before its paid period runs out.
type ResumeSubscriptionUseCase struct {
	subRepo  subscription.Repository
	registry *provider.Registry
	locks    *lock.KeyedMutex
	logger   logger.Interface
}

func NewResumeSubscriptionUseCase(subRepo subscription.Repository, registry *provider.Registry, locks *lock.KeyedMutex, log logger.Interface) *ResumeSubscriptionUseCase {
	return &ResumeSubscriptionUseCase{subRepo: subRepo, registry: registry, locks: locks, logger: log}
}

func (uc *ResumeSubscriptionUseCase) Execute(ctx context.Context, cmd ResumeSubscriptionCommand) (*ResumeSubscriptionResult, error) {
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

	if sub.Status() != vo.StatusPendingCancellation && sub.Status() != vo.StatusPaused {
		return nil, errors.NewStateConflictError("subscription cannot be resumed from " + string(sub.Status()))
	}
	if sub.Provider().IsStore() {
		return nil, errors.NewMethodNotSupportedError(string(sub.Provider()), "ResumeSubscription")
	}

	adapter, err := uc.registry.Get(sub.Provider())
	if err != nil {
		return nil, err
	}
	if err := adapter.ResumeSubscription(ctx, sub.ProviderSubscriptionID()); err != nil {
		uc.logger.Errorw("provider resume failed", "subscription_id", sub.ID(), "error", err)
		return nil, err
	}

	lockKey := string(sub.Provider()) + ":" + sub.ProviderSubscriptionID()
	uc.locks.Lock(lockKey)
	defer uc.locks.Unlock(lockKey)

	sub, err = uc.subRepo.GetBySID(ctx, cmd.SubscriptionSID)
	if err != nil {
		return nil, fmt.Errorf("failed to reload subscription: %w", err)
	}

	prevStatus := sub.Status()
	if err := sub.Activate(nil, nil); err != nil {
		return nil, err
	}

	entry, err := subscription.NewHistory(sub.ID(), sub.UserID(), vo.EventResumed, &prevStatus, sub.Status(),
		fmt.Sprintf("local:%s:resume:%d", sub.ProviderSubscriptionID(), time.Now().Unix()),
		subscription.HistoryParams{Note: "user-initiated resume"})
	if err != nil {
		return nil, err
	}
	if err := uc.subRepo.RecordTransition(ctx, sub, entry); err != nil && !stderrors.Is(err, subscription.ErrDuplicateEvent) {
		return nil, err
	}

	uc.logger.Infow("subscription resumed", "subscription_id", sub.ID(), "prev_status", prevStatus)

	return &ResumeSubscriptionResult{SubscriptionSID: sub.SID(), Status: sub.Status()}, nil
}
