package usecases

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"selah/internal/domain/subscription"
	vo "selah/internal/domain/subscription/valueobjects"
	"selah/internal/shared/lock"
	"selah/internal/shared/logger"
)

const sweepBatchSize = 200

// ExpireSubscriptionsUseCase is the post-grace sweep: cancelled and
// completed subscriptions whose period ended more than the grace window ago
// move to expired. The scheduler runs it periodically.
type ExpireSubscriptionsUseCase struct {
	subRepo   subscription.Repository
	locks     *lock.KeyedMutex
	graceDays int
	logger    logger.Interface
}

func NewExpireSubscriptionsUseCase(subRepo subscription.Repository, locks *lock.KeyedMutex, graceDays int, log logger.Interface) *ExpireSubscriptionsUseCase {
	return &ExpireSubscriptionsUseCase{
		subRepo:   subRepo,
		locks:     locks,
		graceDays: graceDays,
		logger:    log,
	}
}

// Execute returns the number of subscriptions expired. Per-row failures are
// logged and skipped so one bad row cannot wedge the sweep.
func (uc *ExpireSubscriptionsUseCase) Execute(ctx context.Context) (int, error) {
	now := time.Now().UTC()
	due, err := uc.subRepo.FindDueForExpiry(ctx, now, uc.graceDays, sweepBatchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to find subscriptions due for expiry: %w", err)
	}

	expired := 0
	for _, sub := range due {
		if err := uc.expireOne(ctx, sub, now); err != nil {
			uc.logger.Warnw("failed to expire subscription", "subscription_id", sub.ID(), "error", err)
			continue
		}
		expired++
	}

	if expired > 0 {
		uc.logger.Infow("expiry sweep completed", "expired", expired, "candidates", len(due))
	}
	return expired, nil
}

func (uc *ExpireSubscriptionsUseCase) expireOne(ctx context.Context, sub *subscription.Subscription, now time.Time) error {
	lockKey := string(sub.Provider()) + ":" + sub.ProviderSubscriptionID()
	uc.locks.Lock(lockKey)
	defer uc.locks.Unlock(lockKey)

	prevStatus := sub.Status()
	if err := sub.MarkExpired(); err != nil {
		return err
	}

	entry, err := subscription.NewHistory(sub.ID(), sub.UserID(), vo.EventUpdated, &prevStatus, sub.Status(),
		fmt.Sprintf("sweep:%s:expire:%d", sub.ProviderSubscriptionID(), now.Unix()),
		subscription.HistoryParams{Note: "expired by post-grace sweep"})
	if err != nil {
		return err
	}

	if err := uc.subRepo.RecordTransition(ctx, sub, entry); err != nil {
		if stderrors.Is(err, subscription.ErrDuplicateEvent) || stderrors.Is(err, subscription.ErrVersionConflict) {
			// A concurrent writer or an earlier sweep run got here first.
			return nil
		}
		return err
	}
	return nil
}
