package googleplay

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"selah/internal/application/billing/provider"
	"selah/internal/shared/config"
	vo "selah/internal/domain/subscription/valueobjects"
	"selah/internal/shared/errors"
	"selah/internal/shared/logger"
)

const (
	apiBaseURL    = "https://androidpublisher.googleapis.com/androidpublisher/v3"
	clientTimeout = 15 * time.Second
)

// GooglePlayProvider validates Play Billing receipts and reads authoritative
// subscription state from the Android Publisher API.
type GooglePlayProvider struct {
	packageName string
	httpClient  *http.Client
	logger      logger.Interface
}

var _ provider.Provider = (*GooglePlayProvider)(nil)

// NewProvider builds the Play adapter, exchanging the service-account key
// lazily through a shared cached token source.
func NewProvider(cfg *config.GooglePlayConfig, log logger.Interface) (*GooglePlayProvider, error) {
	if cfg.PackageName == "" {
		return nil, errors.NewConfigurationError("google play package name is required")
	}

	ts, err := newTokenSource(context.Background(), []byte(cfg.CredentialsJSON))
	if err != nil {
		return nil, err
	}

	httpClient := oauth2.NewClient(context.Background(), ts)
	httpClient.Timeout = clientTimeout

	return &GooglePlayProvider{
		packageName: cfg.PackageName,
		httpClient:  httpClient,
		logger:      log.Named("googleplay"),
	}, nil
}

// parseReceipt splits the client-submitted "productId:purchaseToken" format.
// A missing delimiter is a client-input error, not a provider failure.
func parseReceipt(receipt string) (productID, purchaseToken string, err error) {
	parts := strings.SplitN(receipt, ":", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", errors.NewValidationError("malformed receipt", "expected productId:purchaseToken")
	}
	return parts[0], parts[1], nil
}

func (p *GooglePlayProvider) fetchPurchase(ctx context.Context, purchaseToken string) (*subscriptionPurchase, error) {
	endpoint := fmt.Sprintf("%s/applications/%s/purchases/subscriptionsv2/tokens/%s",
		apiBaseURL, url.PathEscape(p.packageName), url.PathEscape(purchaseToken))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, errors.NewProviderFetchError("google play request failed", 0, "", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, errors.NewProviderFetchError("failed to read google play response", resp.StatusCode, "", err)
	}

	if resp.StatusCode != http.StatusOK {
		var apiErr struct {
			Error struct {
				Status  string `json:"status"`
				Message string `json:"message"`
			} `json:"error"`
		}
		_ = json.Unmarshal(body, &apiErr)
		return nil, errors.NewProviderFetchError(
			fmt.Sprintf("google play lookup failed: %s", apiErr.Error.Message),
			resp.StatusCode, apiErr.Error.Status, nil,
		)
	}

	var purchase subscriptionPurchase
	if err := json.Unmarshal(body, &purchase); err != nil {
		return nil, errors.NewProviderFetchError("failed to decode google play response", resp.StatusCode, "", err)
	}
	return &purchase, nil
}

// ValidateReceipt verifies a Play receipt against the store's authoritative
// subscription state.
func (p *GooglePlayProvider) ValidateReceipt(ctx context.Context, receipt string) (*provider.ReceiptValidation, error) {
	productID, purchaseToken, err := parseReceipt(receipt)
	if err != nil {
		return nil, err
	}

	purchase, err := p.fetchPurchase(ctx, purchaseToken)
	if err != nil {
		return nil, err
	}

	status, ok := MapState(purchase.SubscriptionState)
	if !ok {
		return nil, errors.NewVerificationError("unknown subscription state: " + purchase.SubscriptionState)
	}

	item := purchase.currentLineItem(productID)
	if item == nil {
		return nil, errors.NewVerificationError("receipt product does not match purchase: " + productID)
	}

	p.logger.Debugw("validated play receipt",
		"product_id", productID,
		"state", purchase.SubscriptionState,
		"expiry", item.ExpiryTime,
	)

	return &provider.ReceiptValidation{
		ProviderSubscriptionID: purchaseToken,
		ProductID:              productID,
		Valid:                  true,
		Status:                 status,
		PeriodStart:            purchase.StartTime,
		PeriodEnd:              item.ExpiryTime,
		AutoRenewing:           purchase.autoRenewing(item),
		Trial:                  item.isTrial(),
		IntroOffer:             item.isIntroOffer(),
	}, nil
}

// FetchSubscription reads current state by purchase token. Used by the
// reconciliation path.
func (p *GooglePlayProvider) FetchSubscription(ctx context.Context, providerSubscriptionID string) (*provider.SubscriptionDetails, error) {
	purchase, err := p.fetchPurchase(ctx, providerSubscriptionID)
	if err != nil {
		return nil, err
	}

	status, ok := MapState(purchase.SubscriptionState)
	if !ok {
		return nil, errors.NewVerificationError("unknown subscription state: " + purchase.SubscriptionState)
	}

	details := &provider.SubscriptionDetails{
		ProviderSubscriptionID: providerSubscriptionID,
		Status:                 status,
		CancelAtCycleEnd:       status == vo.StatusPendingCancellation,
	}
	if item := purchase.currentLineItem(""); item != nil {
		details.PlanID = item.ProductID
		start := purchase.StartTime
		end := item.ExpiryTime
		details.CurrentPeriodStart = &start
		details.CurrentPeriodEnd = &end
		if purchase.autoRenewing(item) {
			details.NextBillingAt = &end
		}
	}
	return details, nil
}

// CreateSubscription is store-managed: purchases happen on-device.
func (p *GooglePlayProvider) CreateSubscription(ctx context.Context, params provider.CreateParams) (*provider.CreateResult, error) {
	return nil, errors.NewMethodNotSupportedError("google_play", "CreateSubscription")
}

// CancelSubscription is store-managed: the user cancels in Play.
func (p *GooglePlayProvider) CancelSubscription(ctx context.Context, providerSubscriptionID string, atCycleEnd bool) error {
	return errors.NewMethodNotSupportedError("google_play", "CancelSubscription")
}

// ResumeSubscription is store-managed.
func (p *GooglePlayProvider) ResumeSubscription(ctx context.Context, providerSubscriptionID string) error {
	return errors.NewMethodNotSupportedError("google_play", "ResumeSubscription")
}

// VerifyWebhookSignature: Play pushes RTDN through Pub/Sub, not signed
// webhooks; the receipt path is the inbound surface here.
func (p *GooglePlayProvider) VerifyWebhookSignature(body []byte, signature string) error {
	return errors.NewMethodNotSupportedError("google_play", "VerifyWebhookSignature")
}
