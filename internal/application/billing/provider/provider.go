// Package provider defines the capability surface every billing provider
// adapter implements, plus the registry that resolves provider types to
// configured singletons.
package provider

import (
	"context"
	"time"

	vo "selah/internal/domain/subscription/valueobjects"
)

// Provider is the uniform capability surface over Razorpay hosted checkout
// and the Google Play / App Store IAP backends. Adapters that cannot support
// an operation return a method-not-supported error, which callers treat as
// permanent.
type Provider interface {
	// CreateSubscription registers a subscription with the provider and
	// returns the identifiers the client needs to complete checkout.
	CreateSubscription(ctx context.Context, params CreateParams) (*CreateResult, error)

	// CancelSubscription cancels at the provider, optionally at cycle end.
	CancelSubscription(ctx context.Context, providerSubscriptionID string, atCycleEnd bool) error

	// ResumeSubscription reverts a scheduled cancellation at the provider.
	ResumeSubscription(ctx context.Context, providerSubscriptionID string) error

	// FetchSubscription reads the provider's current view of a subscription.
	// This is the reconciliation source of truth.
	FetchSubscription(ctx context.Context, providerSubscriptionID string) (*SubscriptionDetails, error)

	// ValidateReceipt verifies a client-submitted store receipt and returns
	// the entitlement it proves.
	ValidateReceipt(ctx context.Context, receipt string) (*ReceiptValidation, error)

	// VerifyWebhookSignature checks a webhook's authenticity against the raw
	// request body. It never panics on malformed input.
	VerifyWebhookSignature(body []byte, signature string) error
}

// CreateParams carries everything needed to open a subscription at the
// provider.
type CreateParams struct {
	PlanID     string
	TotalCount *int // nil = until cancelled
	UserID     uint
	Notes      map[string]string
}

// CreateResult is the provider's answer to CreateSubscription.
type CreateResult struct {
	ProviderSubscriptionID string
	Status                 vo.Status
	ShortURL               string // hosted checkout URL, empty for stores
	Amount                 int64
	Currency               string
}

// SubscriptionDetails is the provider's current view of a subscription,
// already mapped to canonical vocabulary.
type SubscriptionDetails struct {
	ProviderSubscriptionID string
	Status                 vo.Status
	PlanID                 string
	CurrentPeriodStart     *time.Time
	CurrentPeriodEnd       *time.Time
	NextBillingAt          *time.Time
	TotalCount             *int
	PaidCount              int
	Amount                 int64
	Currency               string
	CancelAtCycleEnd       bool
	Metadata               map[string]interface{}
}

// ReceiptValidation is the entitlement proven by a store receipt. Trial and
// IntroOffer are distinct signals: a trial period is free, an introductory
// offer is a discounted paid period.
type ReceiptValidation struct {
	ProviderSubscriptionID string // purchase token / original transaction id
	ProductID              string
	Valid                  bool
	Status                 vo.Status
	PeriodStart            time.Time
	PeriodEnd              time.Time
	AutoRenewing           bool
	Trial                  bool
	IntroOffer             bool
	Amount                 int64
	Currency               string
}

// Event is a provider webhook or notification canonicalized for the
// pipeline.
type Event struct {
	Type                   vo.EventType
	Provider               vo.ProviderType
	ProviderEventID        string
	ProviderSubscriptionID string
	Status                 vo.Status // provider-reported status, mapped
	PlanID                 string
	Amount                 int64
	Currency               string
	PeriodStart            *time.Time
	PeriodEnd              *time.Time
	PaymentID              string
	PaymentAmount          int64
	PaymentCurrency        string
	PaymentStatus          string
	PaymentMethod          string
	OccurredAt             time.Time
	Payload                map[string]interface{}
}
