package usecases

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"selah/internal/domain/subscription"
	vo "selah/internal/domain/subscription/valueobjects"
	"selah/internal/infrastructure/pubsub"
	"selah/internal/shared/goroutine"
	"selah/internal/shared/lock"
	"selah/internal/shared/logger"
)

// SweepPendingCancellationsUseCase finalizes scheduled cancellations whose
// paid period has elapsed: pending_cancellation moves to cancelled and the
// user loses access.
type SweepPendingCancellationsUseCase struct {
	subRepo subscription.Repository
	locks   *lock.KeyedMutex
	events  pubsub.BillingEventPublisher // optional
	logger  logger.Interface
}

func NewSweepPendingCancellationsUseCase(subRepo subscription.Repository, locks *lock.KeyedMutex, log logger.Interface) *SweepPendingCancellationsUseCase {
	return &SweepPendingCancellationsUseCase{
		subRepo: subRepo,
		locks:   locks,
		logger:  log,
	}
}

// SetEventPublisher sets the pubsub publisher (optional dependency injection).
func (uc *SweepPendingCancellationsUseCase) SetEventPublisher(events pubsub.BillingEventPublisher) {
	uc.events = events
}

// Execute returns the number of cancellations finalized.
func (uc *SweepPendingCancellationsUseCase) Execute(ctx context.Context) (int, error) {
	now := time.Now().UTC()
	elapsed, err := uc.subRepo.FindElapsedPendingCancellations(ctx, now, sweepBatchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to find elapsed pending cancellations: %w", err)
	}

	finalized := 0
	for _, sub := range elapsed {
		if err := uc.finalizeOne(ctx, sub, now); err != nil {
			uc.logger.Warnw("failed to finalize cancellation", "subscription_id", sub.ID(), "error", err)
			continue
		}
		finalized++
	}

	if finalized > 0 {
		uc.logger.Infow("pending cancellation sweep completed", "finalized", finalized, "candidates", len(elapsed))
	}
	return finalized, nil
}

func (uc *SweepPendingCancellationsUseCase) finalizeOne(ctx context.Context, sub *subscription.Subscription, now time.Time) error {
	lockKey := string(sub.Provider()) + ":" + sub.ProviderSubscriptionID()
	uc.locks.Lock(lockKey)
	defer uc.locks.Unlock(lockKey)

	if !sub.IsPendingCancellationElapsed(now) {
		return nil
	}

	prevStatus := sub.Status()
	if err := sub.FinalizeCancellation(); err != nil {
		return err
	}

	entry, err := subscription.NewHistory(sub.ID(), sub.UserID(), vo.EventCancelled, &prevStatus, sub.Status(),
		fmt.Sprintf("sweep:%s:finalize:%d", sub.ProviderSubscriptionID(), now.Unix()),
		subscription.HistoryParams{Note: "pending cancellation period elapsed"})
	if err != nil {
		return err
	}

	if err := uc.subRepo.RecordTransition(ctx, sub, entry); err != nil {
		if stderrors.Is(err, subscription.ErrDuplicateEvent) || stderrors.Is(err, subscription.ErrVersionConflict) {
			return nil
		}
		return err
	}

	if uc.events != nil {
		subID := sub.ID()
		sid := sub.SID()
		userID := sub.UserID()
		providerType := sub.Provider()
		goroutine.SafeGo(uc.logger, "sweep-notify", func() {
			if err := uc.events.PublishDeactivation(context.Background(), subID, sid, userID, providerType, vo.StatusCancelled); err != nil {
				uc.logger.Warnw("failed to publish deactivation event", "subscription_id", subID, "error", err)
			}
		})
	}
	return nil
}
