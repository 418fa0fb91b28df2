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

const reconcileTimeout = 30 * time.Second

// ProcessWebhookEventUseCase applies a canonicalized provider event to the
// local subscription: per-subscription lock, stale/duplicate guards,
// transition, atomic ledger write, then fire-and-forget notifications.
// Signature verification happens at the HTTP boundary before this runs; no
// provider network call happens inline, so the webhook response stays within
// the provider's acknowledgment budget.
type ProcessWebhookEventUseCase struct {
	subRepo     subscription.Repository
	invoiceRepo subscription.InvoiceRepository
	registry    *provider.Registry
	locks       *lock.KeyedMutex
	events      pubsub.BillingEventPublisher // optional
	logger      logger.Interface
}

func NewProcessWebhookEventUseCase(
	subRepo subscription.Repository,
	invoiceRepo subscription.InvoiceRepository,
	registry *provider.Registry,
	locks *lock.KeyedMutex,
	log logger.Interface,
) *ProcessWebhookEventUseCase {
	return &ProcessWebhookEventUseCase{
		subRepo:     subRepo,
		invoiceRepo: invoiceRepo,
		registry:    registry,
		locks:       locks,
		logger:      log,
	}
}

// SetEventPublisher sets the pubsub publisher (optional dependency injection).
func (uc *ProcessWebhookEventUseCase) SetEventPublisher(events pubsub.BillingEventPublisher) {
	uc.events = events
}

func (uc *ProcessWebhookEventUseCase) Execute(ctx context.Context, event *provider.Event) error {
	// Refund events reference a payment, not a subscription; resolve them
	// through the invoice before any subscription lock exists.
	if event.Type == vo.EventRefunded {
		return uc.handleRefund(ctx, event)
	}

	lockKey := string(event.Provider) + ":" + event.ProviderSubscriptionID
	uc.locks.Lock(lockKey)
	defer uc.locks.Unlock(lockKey)

	sub, err := uc.subRepo.GetByProviderSubscriptionID(ctx, event.Provider, event.ProviderSubscriptionID)
	if err != nil {
		if stderrors.Is(err, subscription.ErrSubscriptionNotFound) {
			uc.logger.Warnw("webhook for unknown subscription",
				"provider", event.Provider,
				"provider_subscription_id", event.ProviderSubscriptionID,
				"event_type", event.Type,
			)
			return errors.NewNotFoundError("subscription not found")
		}
		return fmt.Errorf("failed to load subscription: %w", err)
	}

	// Audit-only events never mutate state.
	if event.Type == vo.EventPending || event.Type == vo.EventCreated {
		return uc.recordAuditEntry(ctx, sub, event, "recorded without state change")
	}

	// Out-of-order redelivery: ledger it, change nothing.
	if uc.isStale(sub, event) {
		uc.logger.Infow("ignoring stale event",
			"subscription_id", sub.ID(),
			"event_type", event.Type,
			"occurred_at", event.OccurredAt,
			"last_event_at", sub.LastEventAt(),
		)
		return uc.recordAuditEntry(ctx, sub, event, "stale event, state not mutated")
	}

	prevStatus := sub.Status()
	if err := uc.applyEvent(sub, event); err != nil {
		if stderrors.Is(err, subscription.ErrInvalidTransition) {
			return uc.handleAnomaly(ctx, sub, event, err)
		}
		return err
	}
	sub.RecordEventTime(event.OccurredAt)

	entry, err := uc.buildLedgerEntry(sub, event, &prevStatus, "")
	if err != nil {
		return err
	}

	if err := uc.subRepo.RecordTransition(ctx, sub, entry); err != nil {
		if stderrors.Is(err, subscription.ErrDuplicateEvent) {
			// Replay of work already done: success, zero side effects.
			uc.logger.Infow("duplicate event ignored",
				"subscription_id", sub.ID(),
				"provider_event_id", event.ProviderEventID,
			)
			return nil
		}
		return err
	}

	if event.Type == vo.EventCharged && event.PaymentID != "" {
		uc.recordInvoice(ctx, sub, event)
	}

	uc.notify(sub, event.Type, prevStatus)

	uc.logger.Infow("webhook event processed",
		"subscription_id", sub.ID(),
		"event_type", event.Type,
		"prev_status", prevStatus,
		"new_status", sub.Status(),
	)
	return nil
}

// isStale reports whether the event predates what the subscription already
// reflects: an older charged period, or a provider timestamp behind the last
// applied event's. The comparison uses the provider's clock on both sides;
// the local write clock is never consulted, since providers emit lifecycle
// pairs (activated then charged) within the same second.
func (uc *ProcessWebhookEventUseCase) isStale(sub *subscription.Subscription, event *provider.Event) bool {
	if event.Type == vo.EventCharged && event.PeriodEnd != nil && sub.IsPeriodStale(*event.PeriodEnd) {
		return true
	}
	return sub.IsEventStale(event.OccurredAt)
}

func (uc *ProcessWebhookEventUseCase) applyEvent(sub *subscription.Subscription, event *provider.Event) error {
	switch event.Type {
	case vo.EventAuthenticated:
		return sub.Authenticate()

	case vo.EventActivated:
		return sub.Activate(event.PeriodStart, event.PeriodEnd)

	case vo.EventCharged:
		if event.PeriodStart == nil || event.PeriodEnd == nil {
			return errors.NewValidationError("charged event missing billing period", string(event.Type))
		}
		if err := sub.Charge(*event.PeriodStart, *event.PeriodEnd); err != nil {
			return err
		}
		if sub.IsCycleExhausted() {
			return sub.Complete()
		}
		return nil

	case vo.EventCancelled:
		return sub.Cancel(false, "provider cancellation")

	case vo.EventPaused:
		return sub.Pause()

	case vo.EventResumed:
		return sub.Resume()

	case vo.EventCompleted:
		return sub.Complete()

	case vo.EventUpdated:
		sub.RefreshPlan(event.PlanID, event.Amount, event.Currency)
		if event.Status != "" && event.Status != sub.Status() {
			// Provider truth wins over the local cache.
			return sub.SyncProviderStatus(event.Status)
		}
		return nil

	default:
		return errors.NewValidationError("unsupported event type", string(event.Type))
	}
}

func (uc *ProcessWebhookEventUseCase) buildLedgerEntry(sub *subscription.Subscription, event *provider.Event, prevStatus *vo.Status, note string) (*subscription.History, error) {
	params := subscription.HistoryParams{
		Payload: event.Payload,
		Note:    note,
	}
	if event.PaymentID != "" {
		paymentID := event.PaymentID
		amount := event.PaymentAmount
		status := event.PaymentStatus
		params.PaymentID = &paymentID
		params.PaymentAmount = &amount
		params.PaymentStatus = &status
	}

	entry, err := subscription.NewHistory(sub.ID(), sub.UserID(), event.Type, prevStatus, sub.Status(), event.ProviderEventID, params)
	if err != nil {
		return nil, fmt.Errorf("failed to build ledger entry: %w", err)
	}
	return entry, nil
}

// recordAuditEntry appends a no-mutation ledger row; a duplicate is success.
func (uc *ProcessWebhookEventUseCase) recordAuditEntry(ctx context.Context, sub *subscription.Subscription, event *provider.Event, note string) error {
	current := sub.Status()
	entry, err := uc.buildLedgerEntry(sub, event, &current, note)
	if err != nil {
		return err
	}
	if err := uc.subRepo.RecordEvent(ctx, entry); err != nil {
		if stderrors.Is(err, subscription.ErrDuplicateEvent) {
			return nil
		}
		return err
	}
	return nil
}

// handleAnomaly covers events the transition table rejects, e.g. a charged
// event for an already cancelled subscription. The anomaly is ledgered, the
// webhook acknowledged, and the provider's live state fetched asynchronously
// to correct the local cache.
func (uc *ProcessWebhookEventUseCase) handleAnomaly(ctx context.Context, sub *subscription.Subscription, event *provider.Event, cause error) error {
	uc.logger.Warnw("anomalous event, deferring to provider reconciliation",
		"subscription_id", sub.ID(),
		"event_type", event.Type,
		"current_status", sub.Status(),
		"error", cause,
	)

	if err := uc.recordAuditEntry(ctx, sub, event, "anomaly: "+cause.Error()); err != nil {
		return err
	}

	subID := sub.ID()
	providerType := sub.Provider()
	providerSubID := sub.ProviderSubscriptionID()
	lockKey := string(providerType) + ":" + providerSubID
	goroutine.SafeGo(uc.logger, "webhook-anomaly-reconcile", func() {
		reconcileCtx, cancel := context.WithTimeout(context.Background(), reconcileTimeout)
		defer cancel()
		uc.reconcile(reconcileCtx, subID, providerType, providerSubID, lockKey)
	})
	return nil
}

// reconcile fetches the provider's authoritative state and corrects the
// local row.
func (uc *ProcessWebhookEventUseCase) reconcile(ctx context.Context, subID uint, providerType vo.ProviderType, providerSubID, lockKey string) {
	adapter, err := uc.registry.Get(providerType)
	if err != nil {
		uc.logger.Errorw("reconciliation aborted, no provider adapter", "provider", providerType, "error", err)
		return
	}

	details, err := adapter.FetchSubscription(ctx, providerSubID)
	if err != nil {
		uc.logger.Errorw("reconciliation fetch failed",
			"subscription_id", subID,
			"provider", providerType,
			"error", err,
		)
		return
	}

	uc.locks.Lock(lockKey)
	defer uc.locks.Unlock(lockKey)

	sub, err := uc.subRepo.GetByID(ctx, subID)
	if err != nil {
		uc.logger.Errorw("reconciliation load failed", "subscription_id", subID, "error", err)
		return
	}

	if sub.Status() == details.Status {
		return
	}

	prevStatus := sub.Status()
	if err := sub.SyncProviderStatus(details.Status); err != nil {
		uc.logger.Warnw("reconciliation refused status sync",
			"subscription_id", subID,
			"local_status", prevStatus,
			"provider_status", details.Status,
			"error", err,
		)
		return
	}

	if err := uc.subRepo.Update(ctx, sub); err != nil {
		uc.logger.Errorw("reconciliation update failed", "subscription_id", subID, "error", err)
		return
	}

	uc.logger.Infow("subscription reconciled to provider state",
		"subscription_id", subID,
		"prev_status", prevStatus,
		"new_status", details.Status,
	)
}

// recordInvoice persists the charge's payment row. Failure is logged, not
// propagated: the transition is already committed and the ledger carries the
// payment fields.
func (uc *ProcessWebhookEventUseCase) recordInvoice(ctx context.Context, sub *subscription.Subscription, event *provider.Event) {
	existing, err := uc.invoiceRepo.GetByProviderPaymentID(ctx, event.PaymentID)
	if err != nil {
		uc.logger.Warnw("invoice lookup failed", "provider_payment_id", event.PaymentID, "error", err)
		return
	}
	if existing != nil {
		return
	}

	currency := event.PaymentCurrency
	if currency == "" {
		currency = sub.Currency()
	}

	invoice, err := subscription.NewInvoice(sub.ID(), sub.UserID(), event.PaymentID, event.PaymentAmount, currency, subscription.InvoiceStatusPaid, event.PaymentMethod)
	if err != nil {
		uc.logger.Warnw("failed to build invoice", "provider_payment_id", event.PaymentID, "error", err)
		return
	}
	if event.PeriodStart != nil && event.PeriodEnd != nil {
		if err := invoice.SetPeriod(*event.PeriodStart, *event.PeriodEnd); err != nil {
			uc.logger.Warnw("invalid invoice period", "provider_payment_id", event.PaymentID, "error", err)
		}
	}
	invoice.MarkPaid(event.OccurredAt)

	if err := uc.invoiceRepo.Create(ctx, invoice); err != nil {
		uc.logger.Warnw("failed to record invoice", "provider_payment_id", event.PaymentID, "error", err)
	}
}

// handleRefund flips the matching invoice to refunded and ledgers the event
// on its subscription. The subscription status is untouched; Razorpay keeps
// a refunded subscription in whatever lifecycle state it already had.
func (uc *ProcessWebhookEventUseCase) handleRefund(ctx context.Context, event *provider.Event) error {
	invoice, err := uc.invoiceRepo.GetByProviderPaymentID(ctx, event.PaymentID)
	if err != nil {
		return fmt.Errorf("failed to look up refunded invoice: %w", err)
	}
	if invoice == nil {
		// A refund for a payment this service never recorded, e.g. a one-off
		// charge outside the subscription flow. Acknowledge and move on.
		uc.logger.Warnw("refund for unknown payment ignored",
			"provider", event.Provider,
			"provider_payment_id", event.PaymentID,
		)
		return nil
	}

	sub, err := uc.subRepo.GetByID(ctx, invoice.SubscriptionID())
	if err != nil {
		return fmt.Errorf("failed to load subscription for refund: %w", err)
	}

	lockKey := string(sub.Provider()) + ":" + sub.ProviderSubscriptionID()
	uc.locks.Lock(lockKey)
	defer uc.locks.Unlock(lockKey)

	if invoice.Status() == subscription.InvoiceStatusRefunded {
		// Duplicate delivery; the audit row dedupes on the event ID.
		return uc.recordAuditEntry(ctx, sub, event, "refund already recorded")
	}
	if err := invoice.MarkRefunded(); err != nil {
		return uc.recordAuditEntry(ctx, sub, event, "refund rejected: "+err.Error())
	}
	if err := uc.invoiceRepo.Update(ctx, invoice); err != nil {
		return fmt.Errorf("failed to mark invoice refunded: %w", err)
	}

	uc.logger.Infow("invoice refunded",
		"subscription_id", sub.ID(),
		"invoice_iid", invoice.IID(),
		"provider_payment_id", event.PaymentID,
	)
	return uc.recordAuditEntry(ctx, sub, event, "refund recorded")
}

// notify publishes the change on the side channel, fire-and-forget.
func (uc *ProcessWebhookEventUseCase) notify(sub *subscription.Subscription, eventType vo.EventType, prevStatus vo.Status) {
	if uc.events == nil {
		return
	}

	subID := sub.ID()
	sid := sub.SID()
	userID := sub.UserID()
	providerType := sub.Provider()
	status := sub.Status()
	amount := sub.Amount()
	currency := sub.Currency()

	goroutine.SafeGo(uc.logger, "webhook-notify", func() {
		notifyCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		var err error
		switch {
		case eventType == vo.EventCharged:
			err = uc.events.PublishCharge(notifyCtx, subID, sid, userID, providerType, amount, currency)
		case status == vo.StatusActive && prevStatus != vo.StatusActive:
			err = uc.events.PublishActivation(notifyCtx, subID, sid, userID, providerType)
		case !status.CanUseService() && prevStatus.CanUseService():
			err = uc.events.PublishDeactivation(notifyCtx, subID, sid, userID, providerType, status)
		default:
			err = uc.events.PublishUpdate(notifyCtx, subID, sid, userID, providerType, status)
		}
		if err != nil {
			uc.logger.Warnw("failed to publish billing event", "subscription_id", subID, "error", err)
		}
	})
}
