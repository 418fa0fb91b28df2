package appstore

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"selah/internal/application/billing/provider"
	"selah/internal/shared/config"
	vo "selah/internal/domain/subscription/valueobjects"
	"selah/internal/shared/errors"
	"selah/internal/shared/logger"
)

const (
	productionBaseURL = "https://api.storekit.itunes.apple.com"
	sandboxBaseURL    = "https://api.storekit-sandbox.itunes.apple.com"
	clientTimeout     = 15 * time.Second
)

// AppStoreProvider validates App Store receipts by original transaction ID
// against the App Store Server API subscription statuses endpoint.
type AppStoreProvider struct {
	baseURL    string
	bundleID   string
	tokens     *tokenGenerator
	httpClient *http.Client
	logger     logger.Interface
}

var _ provider.Provider = (*AppStoreProvider)(nil)

// NewProvider builds the App Store adapter, failing fast on missing or
// unparseable credentials.
func NewProvider(cfg *config.AppStoreConfig, log logger.Interface) (*AppStoreProvider, error) {
	tokens, err := newTokenGenerator(cfg.IssuerID, cfg.KeyID, cfg.BundleID, cfg.PrivateKeyPEM)
	if err != nil {
		return nil, err
	}

	baseURL := productionBaseURL
	if cfg.Sandbox {
		baseURL = sandboxBaseURL
	}

	return &AppStoreProvider{
		baseURL:    baseURL,
		bundleID:   cfg.BundleID,
		tokens:     tokens,
		httpClient: &http.Client{Timeout: clientTimeout},
		logger:     log.Named("appstore"),
	}, nil
}

// statusResponse is the /inApps/v1/subscriptions/{id} answer: subscription
// groups, each with the latest transactions per subscription.
type statusResponse struct {
	BundleID string `json:"bundleId"`
	Data     []struct {
		SubscriptionGroupIdentifier string `json:"subscriptionGroupIdentifier"`
		LastTransactions            []struct {
			OriginalTransactionID string `json:"originalTransactionId"`
			Status                int    `json:"status"`
			SignedTransactionInfo string `json:"signedTransactionInfo"`
		} `json:"lastTransactions"`
	} `json:"data"`
}

func (p *AppStoreProvider) fetchStatuses(ctx context.Context, originalTransactionID string) (*statusResponse, error) {
	token, err := p.tokens.Token()
	if err != nil {
		return nil, err
	}

	endpoint := fmt.Sprintf("%s/inApps/v1/subscriptions/%s", p.baseURL, url.PathEscape(originalTransactionID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, errors.NewProviderFetchError("app store request failed", 0, "", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, errors.NewProviderFetchError("failed to read app store response", resp.StatusCode, "", err)
	}

	if resp.StatusCode != http.StatusOK {
		var apiErr struct {
			ErrorCode    int    `json:"errorCode"`
			ErrorMessage string `json:"errorMessage"`
		}
		_ = json.Unmarshal(body, &apiErr)
		return nil, errors.NewProviderFetchError(
			fmt.Sprintf("app store lookup failed: %s", apiErr.ErrorMessage),
			resp.StatusCode, fmt.Sprintf("%d", apiErr.ErrorCode), nil,
		)
	}

	var statuses statusResponse
	if err := json.Unmarshal(body, &statuses); err != nil {
		return nil, errors.NewProviderFetchError("failed to decode app store response", resp.StatusCode, "", err)
	}
	return &statuses, nil
}

// latestTransaction finds the most relevant transaction across groups: the
// one matching the original transaction ID, else the first reported.
func (r *statusResponse) latestTransaction(originalTransactionID string) (int, string, bool) {
	for _, group := range r.Data {
		for _, tx := range group.LastTransactions {
			if tx.OriginalTransactionID == originalTransactionID {
				return tx.Status, tx.SignedTransactionInfo, true
			}
		}
	}
	for _, group := range r.Data {
		if len(group.LastTransactions) > 0 {
			tx := group.LastTransactions[0]
			return tx.Status, tx.SignedTransactionInfo, true
		}
	}
	return 0, "", false
}

// ValidateReceipt verifies an iOS receipt. The receipt string is the
// original transaction ID StoreKit 2 hands the client.
func (p *AppStoreProvider) ValidateReceipt(ctx context.Context, receipt string) (*provider.ReceiptValidation, error) {
	if receipt == "" {
		return nil, errors.NewValidationError("malformed receipt", "original transaction ID is required")
	}

	statuses, err := p.fetchStatuses(ctx, receipt)
	if err != nil {
		return nil, err
	}

	statusCode, signedTx, found := statuses.latestTransaction(receipt)
	if !found {
		return nil, errors.NewVerificationError("no transactions found for receipt")
	}

	status, ok := MapStatus(statusCode)
	if !ok {
		return nil, errors.NewVerificationError(fmt.Sprintf("unknown subscription status: %d", statusCode))
	}

	transaction, err := decodeTransaction(signedTx)
	if err != nil {
		return nil, errors.NewVerificationError("undecodable transaction: " + err.Error())
	}
	if transaction.BundleID != p.bundleID {
		return nil, errors.NewVerificationError("transaction bundle ID mismatch: " + transaction.BundleID)
	}

	p.logger.Debugw("validated app store receipt",
		"original_transaction_id", transaction.OriginalTransactionID,
		"product_id", transaction.ProductID,
		"status", statusCode,
	)

	return &provider.ReceiptValidation{
		ProviderSubscriptionID: transaction.OriginalTransactionID,
		ProductID:              transaction.ProductID,
		Valid:                  true,
		Status:                 status,
		PeriodStart:            transaction.purchaseTime(),
		PeriodEnd:              transaction.expiresTime(),
		AutoRenewing:           status == vo.StatusActive || status == vo.StatusPaused,
		Trial:                  transaction.isTrial(),
		IntroOffer:             transaction.isIntroOffer(),
	}, nil
}

// FetchSubscription reads current state by original transaction ID. Used by
// the reconciliation path.
func (p *AppStoreProvider) FetchSubscription(ctx context.Context, providerSubscriptionID string) (*provider.SubscriptionDetails, error) {
	validation, err := p.ValidateReceipt(ctx, providerSubscriptionID)
	if err != nil {
		return nil, err
	}

	start := validation.PeriodStart
	end := validation.PeriodEnd
	details := &provider.SubscriptionDetails{
		ProviderSubscriptionID: validation.ProviderSubscriptionID,
		Status:                 validation.Status,
		PlanID:                 validation.ProductID,
		CurrentPeriodStart:     &start,
		CurrentPeriodEnd:       &end,
	}
	if validation.AutoRenewing {
		details.NextBillingAt = &end
	}
	return details, nil
}

// CreateSubscription is store-managed: purchases happen on-device.
func (p *AppStoreProvider) CreateSubscription(ctx context.Context, params provider.CreateParams) (*provider.CreateResult, error) {
	return nil, errors.NewMethodNotSupportedError("app_store", "CreateSubscription")
}

// CancelSubscription is store-managed: the user cancels in Settings.
func (p *AppStoreProvider) CancelSubscription(ctx context.Context, providerSubscriptionID string, atCycleEnd bool) error {
	return errors.NewMethodNotSupportedError("app_store", "CancelSubscription")
}

// ResumeSubscription is store-managed.
func (p *AppStoreProvider) ResumeSubscription(ctx context.Context, providerSubscriptionID string) error {
	return errors.NewMethodNotSupportedError("app_store", "ResumeSubscription")
}

// VerifyWebhookSignature: App Store Server Notifications arrive as signed
// JWS payloads, not HMAC webhooks; the receipt path is the inbound surface
// here.
func (p *AppStoreProvider) VerifyWebhookSignature(body []byte, signature string) error {
	return errors.NewMethodNotSupportedError("app_store", "VerifyWebhookSignature")
}
