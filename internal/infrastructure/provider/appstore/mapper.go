package appstore

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	vo "selah/internal/domain/subscription/valueobjects"
)

// App Store Server API subscription statuses.
const (
	statusActive             = 1
	statusExpired            = 2
	statusInBillingRetry     = 3
	statusInBillingGrace     = 4
	statusRevoked            = 5
)

// statusMap translates App Store subscription statuses to canonical ones.
// Billing grace keeps access while Apple retries the charge; billing retry
// (grace exhausted) suspends it; revoked (refund / family-sharing
// revocation) cancels outright.
var statusMap = map[int]vo.Status{
	statusActive:         vo.StatusActive,
	statusExpired:        vo.StatusExpired,
	statusInBillingRetry: vo.StatusPaused,
	statusInBillingGrace: vo.StatusActive,
	statusRevoked:        vo.StatusCancelled,
}

// MapStatus maps an App Store subscription status code to the canonical
// status.
func MapStatus(code int) (vo.Status, bool) {
	status, ok := statusMap[code]
	return status, ok
}

// transactionPayload is the decoded JWS transaction from the App Store
// Server API. Timestamps are unix milliseconds.
type transactionPayload struct {
	TransactionID         string `json:"transactionId"`
	OriginalTransactionID string `json:"originalTransactionId"`
	BundleID              string `json:"bundleId"`
	ProductID             string `json:"productId"`
	SubscriptionGroupID   string `json:"subscriptionGroupId"`
	PurchaseDate          int64  `json:"purchaseDate"`
	ExpiresDate           int64  `json:"expiresDate"`
	Type                  string `json:"type"`
	OfferType             *int   `json:"offerType,omitempty"`
	OfferDiscountType     string `json:"offerDiscountType,omitempty"`
	RevocationDate        *int64 `json:"revocationDate,omitempty"`
	Environment           string `json:"environment"`
}

// Offer types on a transaction.
const (
	offerTypeIntroductory = 1
	offerTypePromotional  = 2
	offerTypeOfferCode    = 3

	offerDiscountFreeTrial = "FREE_TRIAL"
)

func (t *transactionPayload) purchaseTime() time.Time {
	return time.UnixMilli(t.PurchaseDate).UTC()
}

func (t *transactionPayload) expiresTime() time.Time {
	return time.UnixMilli(t.ExpiresDate).UTC()
}

// isIntroOffer reports a discounted paid introductory period. Free trials
// are introductory offers with the FREE_TRIAL discount type and are reported
// separately through isTrial.
func (t *transactionPayload) isIntroOffer() bool {
	if t.OfferType == nil || *t.OfferType != offerTypeIntroductory {
		return false
	}
	return t.OfferDiscountType != offerDiscountFreeTrial
}

func (t *transactionPayload) isTrial() bool {
	return t.OfferType != nil && *t.OfferType == offerTypeIntroductory &&
		t.OfferDiscountType == offerDiscountFreeTrial
}

// decodeTransaction extracts the payload of a signedTransactionInfo JWS.
// The transaction arrives over TLS from Apple's own API in response to our
// authenticated request, so the x5c chain is not re-verified here.
func decodeTransaction(signedTransaction string) (*transactionPayload, error) {
	parts := strings.Split(signedTransaction, ".")
	if len(parts) != 3 {
		return nil, fmt.Errorf("malformed signed transaction")
	}

	payload, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return nil, fmt.Errorf("failed to decode transaction payload: %w", err)
	}

	var transaction transactionPayload
	if err := json.Unmarshal(payload, &transaction); err != nil {
		return nil, fmt.Errorf("failed to parse transaction payload: %w", err)
	}
	return &transaction, nil
}
