package subscription

import (
	"context"
	"time"

	vo "selah/internal/domain/subscription/valueobjects"
)

// Repository persists subscription aggregates.
type Repository interface {
	Create(ctx context.Context, sub *Subscription) error
	GetByID(ctx context.Context, dbID uint) (*Subscription, error)
	GetBySID(ctx context.Context, sid string) (*Subscription, error)
	// GetByProviderSubscriptionID is the webhook and receipt lookup path.
	GetByProviderSubscriptionID(ctx context.Context, provider vo.ProviderType, providerSubscriptionID string) (*Subscription, error)
	ListByUserID(ctx context.Context, userID uint) ([]*Subscription, error)
	// Update persists the aggregate with a version-conditional write and
	// returns ErrVersionConflict when the row moved underneath us.
	Update(ctx context.Context, sub *Subscription) error
	// RecordTransition writes the updated aggregate and its ledger entry in
	// one transaction. A duplicate provider event ID yields ErrDuplicateEvent
	// and no mutation.
	RecordTransition(ctx context.Context, sub *Subscription, entry *History) error
	// RecordEvent appends a ledger entry without touching the aggregate, for
	// audit-only events such as pending charges and stale redeliveries.
	RecordEvent(ctx context.Context, entry *History) error
	// FindDueForExpiry returns cancelled/completed subscriptions whose period
	// ended more than graceDays ago.
	FindDueForExpiry(ctx context.Context, now time.Time, graceDays int, limit int) ([]*Subscription, error)
	// FindElapsedPendingCancellations returns pending_cancellation
	// subscriptions whose paid period has run out.
	FindElapsedPendingCancellations(ctx context.Context, now time.Time, limit int) ([]*Subscription, error)
}

// HistoryRepository reads the append-only ledger.
type HistoryRepository interface {
	Create(ctx context.Context, entry *History) error
	ListBySubscriptionID(ctx context.Context, subscriptionID uint, limit, offset int) ([]*History, error)
	ExistsByProviderEventID(ctx context.Context, subscriptionID uint, providerEventID string) (bool, error)
}

// InvoiceRepository persists provider payments.
type InvoiceRepository interface {
	Create(ctx context.Context, inv *Invoice) error
	GetByProviderPaymentID(ctx context.Context, providerPaymentID string) (*Invoice, error)
	ListBySubscriptionID(ctx context.Context, subscriptionID uint) ([]*Invoice, error)
	Update(ctx context.Context, inv *Invoice) error
}
