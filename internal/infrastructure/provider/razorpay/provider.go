package razorpay

import (
	"context"
	"fmt"

	"selah/internal/application/billing/provider"
	"selah/internal/shared/config"
	"selah/internal/shared/errors"
	"selah/internal/shared/logger"
)

// maxCycleCount is used when the caller wants an until-cancelled
// subscription: the API requires a finite total_count.
const maxCycleCount = 120

// RazorpayProvider adapts the Razorpay Subscriptions API to the billing
// provider interface.
type RazorpayProvider struct {
	client        *Client
	webhookSecret string
	logger        logger.Interface
}

var _ provider.Provider = (*RazorpayProvider)(nil)

// NewProvider builds the Razorpay adapter from config, failing fast on
// missing credentials.
func NewProvider(cfg *config.RazorpayConfig, log logger.Interface) (*RazorpayProvider, error) {
	client, err := NewClient(cfg.KeyID, cfg.KeySecret)
	if err != nil {
		return nil, err
	}
	if cfg.WebhookSecret == "" {
		return nil, errors.NewConfigurationError("razorpay webhook secret is required")
	}
	return &RazorpayProvider{
		client:        client,
		webhookSecret: cfg.WebhookSecret,
		logger:        log.Named("razorpay"),
	}, nil
}

type createSubscriptionRequest struct {
	PlanID         string            `json:"plan_id"`
	TotalCount     int               `json:"total_count"`
	CustomerNotify int               `json:"customer_notify"`
	Notes          map[string]string `json:"notes,omitempty"`
}

// CreateSubscription opens a subscription at Razorpay and returns the hosted
// checkout URL the customer completes the mandate on.
func (p *RazorpayProvider) CreateSubscription(ctx context.Context, params provider.CreateParams) (*provider.CreateResult, error) {
	totalCount := maxCycleCount
	if params.TotalCount != nil {
		totalCount = *params.TotalCount
	}

	notes := map[string]string{"user_id": fmt.Sprintf("%d", params.UserID)}
	for k, v := range params.Notes {
		notes[k] = v
	}

	var entity subscriptionEntity
	err := p.client.do(ctx, "POST", "/subscriptions", createSubscriptionRequest{
		PlanID:         params.PlanID,
		TotalCount:     totalCount,
		CustomerNotify: 1,
		Notes:          notes,
	}, &entity)
	if err != nil {
		return nil, err
	}

	status, ok := MapStatus(entity.Status)
	if !ok {
		return nil, errors.NewProviderFetchError("razorpay returned unknown status: "+entity.Status, 0, "", nil)
	}

	p.logger.Infow("created razorpay subscription",
		"provider_subscription_id", entity.ID,
		"plan_id", entity.PlanID,
		"status", entity.Status,
	)

	return &provider.CreateResult{
		ProviderSubscriptionID: entity.ID,
		Status:                 status,
		ShortURL:               entity.ShortURL,
	}, nil
}

// CancelSubscription cancels at Razorpay, either immediately or at the end
// of the current cycle.
func (p *RazorpayProvider) CancelSubscription(ctx context.Context, providerSubscriptionID string, atCycleEnd bool) error {
	cycleEnd := 0
	if atCycleEnd {
		cycleEnd = 1
	}
	body := map[string]int{"cancel_at_cycle_end": cycleEnd}
	return p.client.do(ctx, "POST", "/subscriptions/"+providerSubscriptionID+"/cancel", body, nil)
}

// ResumeSubscription reverts a scheduled cancellation. Razorpay models this
// as an update clearing the cycle-end cancellation flag.
func (p *RazorpayProvider) ResumeSubscription(ctx context.Context, providerSubscriptionID string) error {
	body := map[string]interface{}{"schedule_change_at": "now", "customer_notify": 1}
	return p.client.do(ctx, "POST", "/subscriptions/"+providerSubscriptionID+"/resume", body, nil)
}

// FetchSubscription reads the provider's live view.
func (p *RazorpayProvider) FetchSubscription(ctx context.Context, providerSubscriptionID string) (*provider.SubscriptionDetails, error) {
	var entity subscriptionEntity
	if err := p.client.do(ctx, "GET", "/subscriptions/"+providerSubscriptionID, nil, &entity); err != nil {
		return nil, err
	}
	return entity.toDetails(), nil
}

// ValidateReceipt is a store-only capability.
func (p *RazorpayProvider) ValidateReceipt(ctx context.Context, receipt string) (*provider.ReceiptValidation, error) {
	return nil, errors.NewMethodNotSupportedError("razorpay", "ValidateReceipt")
}

// VerifyWebhookSignature checks the X-Razorpay-Signature header against the
// raw body.
func (p *RazorpayProvider) VerifyWebhookSignature(body []byte, signature string) error {
	return VerifySignature(body, signature, p.webhookSecret)
}
