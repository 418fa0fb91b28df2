package usecases

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"selah/internal/application/billing/provider"
	"selah/internal/domain/subscription"
	vo "selah/internal/domain/subscription/valueobjects"
	"selah/internal/infrastructure/pubsub"
	"selah/internal/shared/errors"
	"selah/internal/shared/goroutine"
	"selah/internal/shared/lock"
	"selah/internal/shared/logger"
)

// SubmitReceiptCommand carries a client-submitted store receipt.
type SubmitReceiptCommand struct {
	UserID   uint
	Platform string // android | ios
	Receipt  string
}

// SubmitReceiptResult reports the entitlement the receipt proved.
type SubmitReceiptResult struct {
	SubscriptionSID string
	Status          vo.Status
	ProductID       string
	ExpiresAt       string
	Trial           bool
	IntroOffer      bool
}

// platformProviders maps the client platform discriminator to the provider
// type.
var platformProviders = map[string]vo.ProviderType{
	"android": vo.ProviderGooglePlay,
	"ios":     vo.ProviderAppStore,
}

// SubmitReceiptUseCase validates a store receipt against the provider and
// creates or refreshes the local subscription. Store subscriptions enter
// directly at active on their first valid receipt.
type SubmitReceiptUseCase struct {
	subRepo  subscription.Repository
	registry *provider.Registry
	locks    *lock.KeyedMutex
	events   pubsub.BillingEventPublisher // optional
	logger   logger.Interface
}

func NewSubmitReceiptUseCase(
	subRepo subscription.Repository,
	registry *provider.Registry,
	locks *lock.KeyedMutex,
	log logger.Interface,
) *SubmitReceiptUseCase {
	return &SubmitReceiptUseCase{
		subRepo:  subRepo,
		registry: registry,
		locks:    locks,
		logger:   log,
	}
}

// SetEventPublisher sets the pubsub publisher (optional dependency injection).
func (uc *SubmitReceiptUseCase) SetEventPublisher(events pubsub.BillingEventPublisher) {
	uc.events = events
}

func (uc *SubmitReceiptUseCase) Execute(ctx context.Context, cmd SubmitReceiptCommand) (*SubmitReceiptResult, error) {
	if cmd.UserID == 0 {
		return nil, errors.NewValidationError("user ID is required", "")
	}
	providerType, ok := platformProviders[cmd.Platform]
	if !ok {
		return nil, errors.NewValidationError("unsupported platform", cmd.Platform)
	}

	adapter, err := uc.registry.Get(providerType)
	if err != nil {
		return nil, err
	}

	validation, err := adapter.ValidateReceipt(ctx, cmd.Receipt)
	if err != nil {
		uc.logger.Warnw("receipt validation failed",
			"user_id", cmd.UserID,
			"platform", cmd.Platform,
			"error", err,
		)
		return nil, err
	}

	if !validation.Valid {
		return nil, errors.NewVerificationError("receipt did not validate")
	}
	if validation.Status == vo.StatusExpired {
		return nil, errors.NewValidationError("receipt is expired", validation.ProductID)
	}

	lockKey := string(providerType) + ":" + validation.ProviderSubscriptionID
	uc.locks.Lock(lockKey)
	defer uc.locks.Unlock(lockKey)

	sub, err := uc.subRepo.GetByProviderSubscriptionID(ctx, providerType, validation.ProviderSubscriptionID)
	if err != nil {
		if !stderrors.Is(err, subscription.ErrSubscriptionNotFound) {
			return nil, fmt.Errorf("failed to load subscription: %w", err)
		}
		sub, err = uc.createFromReceipt(ctx, cmd.UserID, providerType, validation)
		if err != nil {
			return nil, err
		}
	} else {
		if sub.UserID() != cmd.UserID {
			uc.logger.Warnw("receipt belongs to a different user",
				"subscription_id", sub.ID(),
				"owner_id", sub.UserID(),
				"claimed_by", cmd.UserID,
			)
			return nil, errors.NewConflictError("receipt already linked to another account")
		}
		if err := uc.refreshFromReceipt(ctx, sub, validation); err != nil {
			return nil, err
		}
	}

	return &SubmitReceiptResult{
		SubscriptionSID: sub.SID(),
		Status:          sub.Status(),
		ProductID:       validation.ProductID,
		ExpiresAt:       validation.PeriodEnd.Format(time.RFC3339),
		Trial:           validation.Trial,
		IntroOffer:      validation.IntroOffer,
	}, nil
}

func (uc *SubmitReceiptUseCase) createFromReceipt(ctx context.Context, userID uint, providerType vo.ProviderType, validation *provider.ReceiptValidation) (*subscription.Subscription, error) {
	sub, err := subscription.NewStoreSubscription(
		userID, providerType, validation.ProviderSubscriptionID, validation.ProductID,
		validation.Amount, defaultCurrency(validation.Currency),
		validation.PeriodStart, validation.PeriodEnd,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to build store subscription: %w", err)
	}

	// Receipt may prove a non-active (e.g. paused) entitlement.
	if validation.Status != vo.StatusActive {
		if err := sub.SyncProviderStatus(validation.Status); err != nil {
			return nil, err
		}
	}

	if err := uc.subRepo.Create(ctx, sub); err != nil {
		return nil, err
	}

	entry, err := subscription.NewHistory(sub.ID(), sub.UserID(), vo.EventCreated, nil, sub.Status(),
		"receipt:"+validation.ProviderSubscriptionID+":first", subscription.HistoryParams{
			Note: "store subscription created from receipt",
		})
	if err != nil {
		return nil, err
	}
	if err := uc.subRepo.RecordEvent(ctx, entry); err != nil && !stderrors.Is(err, subscription.ErrDuplicateEvent) {
		return nil, err
	}

	uc.logger.Infow("store subscription created from receipt",
		"subscription_id", sub.ID(),
		"provider", providerType,
		"product_id", validation.ProductID,
		"status", sub.Status(),
	)

	uc.notifyActivation(sub)
	return sub, nil
}

func (uc *SubmitReceiptUseCase) refreshFromReceipt(ctx context.Context, sub *subscription.Subscription, validation *provider.ReceiptValidation) error {
	prevStatus := sub.Status()

	changed := false
	if validation.PeriodEnd.After(timeOrZero(sub.CurrentPeriodEnd())) {
		// Play reports startTime as the subscription origin, not the cycle
		// start; a renewal's period begins where the previous one ended.
		periodStart := validation.PeriodStart
		if prevEnd := sub.CurrentPeriodEnd(); prevEnd != nil && prevEnd.After(periodStart) {
			periodStart = *prevEnd
		}
		if err := sub.Charge(periodStart, validation.PeriodEnd); err != nil {
			// Provider truth wins when the transition table refuses.
			if syncErr := sub.SyncProviderStatus(validation.Status); syncErr != nil {
				return syncErr
			}
		}
		changed = true
	}
	if sub.Status() != validation.Status {
		if err := sub.SyncProviderStatus(validation.Status); err != nil {
			return err
		}
		changed = true
	}
	if !changed {
		return nil
	}

	entry, err := subscription.NewHistory(sub.ID(), sub.UserID(), vo.EventUpdated, &prevStatus, sub.Status(),
		fmt.Sprintf("receipt:%s:%d", sub.ProviderSubscriptionID(), validation.PeriodEnd.Unix()),
		subscription.HistoryParams{Note: "refreshed from receipt"})
	if err != nil {
		return err
	}

	if err := uc.subRepo.RecordTransition(ctx, sub, entry); err != nil {
		if stderrors.Is(err, subscription.ErrDuplicateEvent) {
			return nil
		}
		return err
	}

	if sub.Status() == vo.StatusActive && prevStatus != vo.StatusActive {
		uc.notifyActivation(sub)
	}
	return nil
}

func (uc *SubmitReceiptUseCase) notifyActivation(sub *subscription.Subscription) {
	if uc.events == nil || sub.Status() != vo.StatusActive {
		return
	}
	subID := sub.ID()
	sid := sub.SID()
	userID := sub.UserID()
	providerType := sub.Provider()
	goroutine.SafeGo(uc.logger, "receipt-notify", func() {
		if err := uc.events.PublishActivation(context.Background(), subID, sid, userID, providerType); err != nil {
			uc.logger.Warnw("failed to publish activation event", "subscription_id", subID, "error", err)
		}
	})
}

func defaultCurrency(currency string) string {
	if currency == "" {
		return "USD"
	}
	return currency
}

func timeOrZero(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}
