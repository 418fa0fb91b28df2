package scheduler

import (
	"context"
	"sync"
	"time"

	billingUsecases "selah/internal/application/billing/usecases"
	"selah/internal/shared/logger"
)

// BillingScheduler handles periodic subscription maintenance:
// finalizing elapsed scheduled cancellations and expiring subscriptions
// whose grace window has passed. Webhooks drive the normal lifecycle;
// these sweeps only catch what the providers never delivered.
type BillingScheduler struct {
	expireUC   *billingUsecases.ExpireSubscriptionsUseCase
	finalizeUC *billingUsecases.SweepPendingCancellationsUseCase
	logger     logger.Interface
	stopChan   chan struct{}
	stopOnce   sync.Once
	wg         sync.WaitGroup
	interval   time.Duration
}

// NewBillingScheduler creates a new BillingScheduler
func NewBillingScheduler(
	expireUC *billingUsecases.ExpireSubscriptionsUseCase,
	finalizeUC *billingUsecases.SweepPendingCancellationsUseCase,
	interval time.Duration,
	logger logger.Interface,
) *BillingScheduler {
	if interval <= 0 {
		interval = time.Hour
	}
	return &BillingScheduler{
		expireUC:   expireUC,
		finalizeUC: finalizeUC,
		logger:     logger,
		stopChan:   make(chan struct{}),
		interval:   interval,
	}
}

// Start starts the scheduler
func (s *BillingScheduler) Start(ctx context.Context) {
	s.logger.Infow("starting billing scheduler", "interval", s.interval)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.runLoop(ctx)
	}()
}

// Stop stops the scheduler gracefully
func (s *BillingScheduler) Stop() {
	s.stopOnce.Do(func() {
		s.logger.Infow("stopping billing scheduler")
		close(s.stopChan)
		s.wg.Wait()
		s.logger.Infow("billing scheduler stopped")
	})
}

func (s *BillingScheduler) runLoop(ctx context.Context) {
	// Run immediately on startup to clear any backlog
	s.runSweeps(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Infow("billing scheduler stopped due to context cancellation")
			return
		case <-s.stopChan:
			return
		case <-ticker.C:
			s.runSweeps(ctx)
		}
	}
}

func (s *BillingScheduler) runSweeps(ctx context.Context) {
	s.logger.Debugw("billing sweep started")
	startTime := time.Now()

	finalized, err := s.finalizeUC.Execute(ctx)
	if err != nil {
		s.logger.Errorw("failed to finalize pending cancellations",
			"error", err,
			"duration", time.Since(startTime),
		)
	}

	expired, err := s.expireUC.Execute(ctx)
	if err != nil {
		s.logger.Errorw("failed to expire subscriptions",
			"error", err,
			"duration", time.Since(startTime),
		)
	}

	if finalized > 0 || expired > 0 {
		s.logger.Infow("billing sweep completed",
			"finalized", finalized,
			"expired", expired,
			"duration", time.Since(startTime),
		)
	} else {
		s.logger.Debugw("billing sweep found nothing to do",
			"duration", time.Since(startTime),
		)
	}
}
