package subscription

import (
	"fmt"
	"time"

	vo "selah/internal/domain/subscription/valueobjects"
	"selah/internal/shared/id"
)

// Subscription is the aggregate root for one user-provider subscription
// relationship. It is mutated only through the methods below; every mutation
// is guarded by the canonical transition table and bumps the optimistic-lock
// version.
type Subscription struct {
	dbID                   uint
	sid                    string
	userID                 uint
	provider               vo.ProviderType
	providerSubscriptionID string
	planID                 string
	status                 vo.Status
	currentPeriodStart     *time.Time
	currentPeriodEnd       *time.Time
	nextBillingAt          *time.Time
	totalCount             *int // nil = unlimited cycles
	paidCount              int
	amount                 int64 // smallest currency unit
	currency               string
	cancelAtCycleEnd       bool
	cancelledAt            *time.Time
	cancelReason           *string
	metadata               map[string]interface{}
	// lastEventAt is the provider-clock timestamp of the last applied
	// event. Staleness checks compare against it, never against the local
	// write clock, so same-instant provider events still apply.
	lastEventAt *time.Time
	version     int
	// baseVersion is the version the row carried when loaded; the
	// conditional UPDATE compares against it.
	baseVersion int
	createdAt   time.Time
	updatedAt   time.Time
}

// NewSubscription creates a hosted-checkout subscription in the created
// state. Store IAP subscriptions enter through NewStoreSubscription instead.
func NewSubscription(userID uint, provider vo.ProviderType, providerSubscriptionID, planID string, amount int64, currency string, totalCount *int) (*Subscription, error) {
	if userID == 0 {
		return nil, fmt.Errorf("user ID is required")
	}
	if providerSubscriptionID == "" {
		return nil, fmt.Errorf("provider subscription ID is required")
	}
	if !vo.ValidProviderTypes[provider] {
		return nil, fmt.Errorf("invalid provider type: %s", provider)
	}
	if currency == "" {
		return nil, fmt.Errorf("currency is required")
	}

	now := time.Now().UTC()
	return &Subscription{
		sid:                    id.MustGenerateWithPrefix(id.PrefixSubscription, id.DefaultLength),
		userID:                 userID,
		provider:               provider,
		providerSubscriptionID: providerSubscriptionID,
		planID:                 planID,
		status:                 vo.StatusCreated,
		totalCount:             totalCount,
		amount:                 amount,
		currency:               currency,
		metadata:               make(map[string]interface{}),
		version:                1,
		baseVersion:            1,
		createdAt:              now,
		updatedAt:              now,
	}, nil
}

// NewStoreSubscription creates a store IAP subscription directly in the
// active state from a first valid receipt.
func NewStoreSubscription(userID uint, provider vo.ProviderType, providerSubscriptionID, planID string, amount int64, currency string, periodStart, periodEnd time.Time) (*Subscription, error) {
	if !provider.IsStore() {
		return nil, fmt.Errorf("provider %s is not a store provider", provider)
	}

	sub, err := NewSubscription(userID, provider, providerSubscriptionID, planID, amount, currency, nil)
	if err != nil {
		return nil, err
	}
	if periodEnd.Before(periodStart) {
		return nil, fmt.Errorf("period end must be after period start")
	}

	sub.status = vo.StatusActive
	sub.currentPeriodStart = &periodStart
	sub.currentPeriodEnd = &periodEnd
	sub.nextBillingAt = &periodEnd
	return sub, nil
}

// ReconstructParams carries persisted state back into the aggregate.
type ReconstructParams struct {
	DBID                   uint
	SID                    string
	UserID                 uint
	Provider               vo.ProviderType
	ProviderSubscriptionID string
	PlanID                 string
	Status                 vo.Status
	CurrentPeriodStart     *time.Time
	CurrentPeriodEnd       *time.Time
	NextBillingAt          *time.Time
	TotalCount             *int
	PaidCount              int
	Amount                 int64
	Currency               string
	CancelAtCycleEnd       bool
	CancelledAt            *time.Time
	CancelReason           *string
	Metadata               map[string]interface{}
	LastEventAt            *time.Time
	Version                int
	CreatedAt              time.Time
	UpdatedAt              time.Time
}

// Reconstruct rebuilds a subscription from persistence.
func Reconstruct(p ReconstructParams) (*Subscription, error) {
	if p.DBID == 0 {
		return nil, fmt.Errorf("subscription ID cannot be zero")
	}
	if p.UserID == 0 {
		return nil, fmt.Errorf("user ID is required")
	}
	if !vo.ValidStatuses[p.Status] {
		return nil, fmt.Errorf("invalid subscription status: %s", p.Status)
	}
	if !vo.ValidProviderTypes[p.Provider] {
		return nil, fmt.Errorf("invalid provider type: %s", p.Provider)
	}
	if p.Metadata == nil {
		p.Metadata = make(map[string]interface{})
	}

	return &Subscription{
		dbID:                   p.DBID,
		sid:                    p.SID,
		userID:                 p.UserID,
		provider:               p.Provider,
		providerSubscriptionID: p.ProviderSubscriptionID,
		planID:                 p.PlanID,
		status:                 p.Status,
		currentPeriodStart:     p.CurrentPeriodStart,
		currentPeriodEnd:       p.CurrentPeriodEnd,
		nextBillingAt:          p.NextBillingAt,
		totalCount:             p.TotalCount,
		paidCount:              p.PaidCount,
		amount:                 p.Amount,
		currency:               p.Currency,
		cancelAtCycleEnd:       p.CancelAtCycleEnd,
		cancelledAt:            p.CancelledAt,
		cancelReason:           p.CancelReason,
		metadata:               p.Metadata,
		lastEventAt:            p.LastEventAt,
		version:                p.Version,
		baseVersion:            p.Version,
		createdAt:              p.CreatedAt,
		updatedAt:              p.UpdatedAt,
	}, nil
}

func (s *Subscription) ID() uint                        { return s.dbID }
func (s *Subscription) SID() string                     { return s.sid }
func (s *Subscription) UserID() uint                    { return s.userID }
func (s *Subscription) Provider() vo.ProviderType       { return s.provider }
func (s *Subscription) ProviderSubscriptionID() string  { return s.providerSubscriptionID }
func (s *Subscription) PlanID() string                  { return s.planID }
func (s *Subscription) Status() vo.Status               { return s.status }
func (s *Subscription) CurrentPeriodStart() *time.Time  { return s.currentPeriodStart }
func (s *Subscription) CurrentPeriodEnd() *time.Time    { return s.currentPeriodEnd }
func (s *Subscription) NextBillingAt() *time.Time       { return s.nextBillingAt }
func (s *Subscription) TotalCount() *int                { return s.totalCount }
func (s *Subscription) PaidCount() int                  { return s.paidCount }
func (s *Subscription) Amount() int64                   { return s.amount }
func (s *Subscription) Currency() string                { return s.currency }
func (s *Subscription) CancelAtCycleEnd() bool          { return s.cancelAtCycleEnd }
func (s *Subscription) CancelledAt() *time.Time         { return s.cancelledAt }
func (s *Subscription) CancelReason() *string           { return s.cancelReason }
func (s *Subscription) Metadata() map[string]interface{} { return s.metadata }
func (s *Subscription) LastEventAt() *time.Time         { return s.lastEventAt }
func (s *Subscription) Version() int                    { return s.version }
func (s *Subscription) BaseVersion() int                { return s.baseVersion }
func (s *Subscription) CreatedAt() time.Time            { return s.createdAt }
func (s *Subscription) UpdatedAt() time.Time            { return s.updatedAt }

// RemainingCount returns the cycles left to charge, or nil for unlimited
// subscriptions.
func (s *Subscription) RemainingCount() *int {
	if s.totalCount == nil {
		return nil
	}
	remaining := *s.totalCount - s.paidCount
	if remaining < 0 {
		remaining = 0
	}
	return &remaining
}

// SetID sets the database ID (persistence layer only).
func (s *Subscription) SetID(dbID uint) error {
	if s.dbID != 0 {
		return fmt.Errorf("subscription ID is already set")
	}
	if dbID == 0 {
		return fmt.Errorf("subscription ID cannot be zero")
	}
	s.dbID = dbID
	return nil
}

func (s *Subscription) transitionTo(target vo.Status) error {
	if !s.status.CanTransitionTo(target) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s.status, target)
	}
	s.status = target
	s.touch()
	return nil
}

func (s *Subscription) touch() {
	s.updatedAt = time.Now().UTC()
	s.version++
}

// Authenticate moves a fresh hosted-checkout subscription to authenticated
// (the customer completed the checkout mandate).
func (s *Subscription) Authenticate() error {
	if s.status == vo.StatusAuthenticated {
		return nil
	}
	if s.status != vo.StatusCreated {
		return fmt.Errorf("%w: cannot authenticate subscription with status %s", ErrInvalidTransition, s.status)
	}
	return s.transitionTo(vo.StatusAuthenticated)
}

// Activate moves the subscription to active. Activation does not charge;
// period bounds are taken from the provider when it reports them.
func (s *Subscription) Activate(periodStart, periodEnd *time.Time) error {
	if s.status == vo.StatusActive {
		return nil
	}
	switch s.status {
	case vo.StatusCreated, vo.StatusAuthenticated, vo.StatusPaused, vo.StatusPendingCancellation:
	default:
		return fmt.Errorf("%w: cannot activate subscription with status %s", ErrInvalidTransition, s.status)
	}

	if err := s.transitionTo(vo.StatusActive); err != nil {
		return err
	}
	if periodStart != nil && periodEnd != nil {
		s.currentPeriodStart = periodStart
		s.currentPeriodEnd = periodEnd
		s.nextBillingAt = periodEnd
	}
	s.cancelAtCycleEnd = false
	return nil
}

// Charge records a successful charge for the billing period reported by the
// provider: advances the paid count, the period bounds, and the next billing
// time. A charge on a paused or pending-cancellation subscription reactivates
// it (the provider collected, so access continues).
func (s *Subscription) Charge(periodStart, periodEnd time.Time) error {
	if periodEnd.Before(periodStart) {
		return fmt.Errorf("period end must be after period start")
	}

	if s.status != vo.StatusActive {
		switch s.status {
		case vo.StatusCreated, vo.StatusAuthenticated, vo.StatusPaused, vo.StatusPendingCancellation:
			if err := s.transitionTo(vo.StatusActive); err != nil {
				return err
			}
		default:
			return fmt.Errorf("%w: cannot charge subscription with status %s", ErrInvalidTransition, s.status)
		}
	} else {
		s.touch()
	}

	s.paidCount++
	s.currentPeriodStart = &periodStart
	s.currentPeriodEnd = &periodEnd
	s.nextBillingAt = &periodEnd
	s.cancelAtCycleEnd = false
	return nil
}

// RecordEventTime stores the provider-clock timestamp of an applied event.
// Called alongside the mutation it belongs to; monotonicity is kept by
// ignoring timestamps behind the recorded one.
func (s *Subscription) RecordEventTime(at time.Time) {
	if at.IsZero() {
		return
	}
	if s.lastEventAt != nil && at.Before(*s.lastEventAt) {
		return
	}
	s.lastEventAt = &at
}

// IsEventStale reports whether a provider event predates the last applied
// one. Events sharing the same provider timestamp are not stale; providers
// emit lifecycle pairs (activated then charged) within the same second.
func (s *Subscription) IsEventStale(occurredAt time.Time) bool {
	if occurredAt.IsZero() || s.lastEventAt == nil {
		return false
	}
	return occurredAt.Before(*s.lastEventAt)
}

// IsPeriodStale reports whether the given period end predates the currently
// recorded one, i.e. the event is an out-of-order redelivery.
func (s *Subscription) IsPeriodStale(periodEnd time.Time) bool {
	return s.currentPeriodEnd != nil && periodEnd.Before(*s.currentPeriodEnd)
}

// Cancel cancels the subscription. With atCycleEnd the subscription moves to
// pending_cancellation and access continues until the period ends; otherwise
// it is cancelled immediately.
func (s *Subscription) Cancel(atCycleEnd bool, reason string) error {
	if s.status == vo.StatusCancelled {
		return nil
	}

	now := time.Now().UTC()
	if atCycleEnd {
		if s.status != vo.StatusActive {
			return fmt.Errorf("%w: cannot schedule cancellation for subscription with status %s", ErrInvalidTransition, s.status)
		}
		if err := s.transitionTo(vo.StatusPendingCancellation); err != nil {
			return err
		}
		s.cancelAtCycleEnd = true
	} else {
		if err := s.transitionTo(vo.StatusCancelled); err != nil {
			return err
		}
		s.cancelAtCycleEnd = false
	}

	s.cancelledAt = &now
	if reason != "" {
		s.cancelReason = &reason
	}
	return nil
}

// FinalizeCancellation completes a pending cancellation once the paid period
// has elapsed.
func (s *Subscription) FinalizeCancellation() error {
	if s.status != vo.StatusPendingCancellation {
		return fmt.Errorf("%w: no pending cancellation to finalize (status %s)", ErrInvalidTransition, s.status)
	}
	return s.transitionTo(vo.StatusCancelled)
}

// Pause suspends an active subscription.
func (s *Subscription) Pause() error {
	if s.status == vo.StatusPaused {
		return nil
	}
	if s.status != vo.StatusActive {
		return fmt.Errorf("%w: cannot pause subscription with status %s", ErrInvalidTransition, s.status)
	}
	return s.transitionTo(vo.StatusPaused)
}

// Resume reactivates a paused subscription.
func (s *Subscription) Resume() error {
	if s.status == vo.StatusActive {
		return nil
	}
	if s.status != vo.StatusPaused {
		return fmt.Errorf("%w: cannot resume subscription with status %s", ErrInvalidTransition, s.status)
	}
	return s.transitionTo(vo.StatusActive)
}

// Complete marks the subscription's cycle count as exhausted.
func (s *Subscription) Complete() error {
	if s.status == vo.StatusCompleted {
		return nil
	}
	if s.status != vo.StatusActive {
		return fmt.Errorf("%w: cannot complete subscription with status %s", ErrInvalidTransition, s.status)
	}
	return s.transitionTo(vo.StatusCompleted)
}

// MarkExpired moves a terminal (cancelled/completed) subscription to expired
// after the grace period. The expiry sweep is the only caller.
func (s *Subscription) MarkExpired() error {
	if s.status == vo.StatusExpired {
		return nil
	}
	return s.transitionTo(vo.StatusExpired)
}

// SyncProviderStatus corrects local state to the provider-reported status.
// The provider is the source of truth; the local row is a cache. Used by the
// updated-event path and anomaly reconciliation, so it bypasses the event
// transition guards but still refuses to resurrect a terminal subscription.
func (s *Subscription) SyncProviderStatus(target vo.Status) error {
	if s.status == target {
		return nil
	}
	if !vo.ValidStatuses[target] {
		return fmt.Errorf("invalid status: %s", target)
	}
	if s.status.IsTerminal() && !target.IsTerminal() {
		return fmt.Errorf("%w: refusing to revive %s subscription to %s", ErrInvalidTransition, s.status, target)
	}
	s.status = target
	s.touch()
	return nil
}

// RefreshPlan applies a metadata refresh from an updated event. Status is not
// touched here.
func (s *Subscription) RefreshPlan(planID string, amount int64, currency string) {
	changed := false
	if planID != "" && planID != s.planID {
		s.planID = planID
		changed = true
	}
	if amount > 0 && amount != s.amount {
		s.amount = amount
		changed = true
	}
	if currency != "" && currency != s.currency {
		s.currency = currency
		changed = true
	}
	if changed {
		s.touch()
	}
}

// IsCycleExhausted reports whether the paid count has reached the total.
func (s *Subscription) IsCycleExhausted() bool {
	return s.totalCount != nil && s.paidCount >= *s.totalCount
}

// IsPendingCancellationElapsed reports whether a scheduled cancellation's
// paid period has run out.
func (s *Subscription) IsPendingCancellationElapsed(now time.Time) bool {
	return s.status == vo.StatusPendingCancellation &&
		s.currentPeriodEnd != nil && now.After(*s.currentPeriodEnd)
}

// SetMetadata stores a provider metadata entry.
func (s *Subscription) SetMetadata(key string, value interface{}) {
	if s.metadata == nil {
		s.metadata = make(map[string]interface{})
	}
	s.metadata[key] = value
}

// Validate performs domain-level validation.
func (s *Subscription) Validate() error {
	if s.userID == 0 {
		return fmt.Errorf("user ID is required")
	}
	if !vo.ValidStatuses[s.status] {
		return fmt.Errorf("invalid status: %s", s.status)
	}
	if s.providerSubscriptionID == "" {
		return fmt.Errorf("provider subscription ID is required")
	}
	if s.currentPeriodStart != nil && s.currentPeriodEnd != nil &&
		s.currentPeriodEnd.Before(*s.currentPeriodStart) {
		return fmt.Errorf("current period end must be after current period start")
	}
	return nil
}
