package appstore

import (
	"encoding/base64"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	vo "selah/internal/domain/subscription/valueobjects"
)

func TestMapStatus(t *testing.T) {
	tests := []struct {
		code     int
		expected vo.Status
	}{
		{statusActive, vo.StatusActive},
		{statusExpired, vo.StatusExpired},
		{statusInBillingRetry, vo.StatusPaused},
		{statusInBillingGrace, vo.StatusActive},
		{statusRevoked, vo.StatusCancelled},
	}
	for _, tt := range tests {
		status, ok := MapStatus(tt.code)
		require.True(t, ok)
		assert.Equal(t, tt.expected, status)
	}

	_, ok := MapStatus(99)
	assert.False(t, ok)
}

func encodeTransaction(t *testing.T, payload transactionPayload) string {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"ES256"}`))
	return header + "." + base64.RawURLEncoding.EncodeToString(body) + ".sig"
}

func TestDecodeTransaction(t *testing.T) {
	intro := offerTypeIntroductory
	signed := encodeTransaction(t, transactionPayload{
		TransactionID:         "2000000001",
		OriginalTransactionID: "1000000001",
		BundleID:              "com.example.selah",
		ProductID:             "premium_monthly",
		PurchaseDate:          time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC).UnixMilli(),
		ExpiresDate:           time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC).UnixMilli(),
		OfferType:             &intro,
	})

	transaction, err := decodeTransaction(signed)
	require.NoError(t, err)

	assert.Equal(t, "1000000001", transaction.OriginalTransactionID)
	assert.Equal(t, "premium_monthly", transaction.ProductID)
	assert.Equal(t, time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC), transaction.purchaseTime())
	assert.Equal(t, time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC), transaction.expiresTime())
	assert.True(t, transaction.isIntroOffer())
	assert.False(t, transaction.isTrial())
}

func TestDecodeTransaction_FreeTrial(t *testing.T) {
	intro := offerTypeIntroductory
	signed := encodeTransaction(t, transactionPayload{
		OriginalTransactionID: "1000000002",
		ProductID:             "premium_monthly",
		OfferType:             &intro,
		OfferDiscountType:     offerDiscountFreeTrial,
	})

	transaction, err := decodeTransaction(signed)
	require.NoError(t, err)
	assert.True(t, transaction.isTrial())
	assert.False(t, transaction.isIntroOffer(), "a free trial is not a discounted paid offer")
}

func TestDecodeTransaction_Malformed(t *testing.T) {
	_, err := decodeTransaction("only.two")
	assert.Error(t, err)

	_, err = decodeTransaction("a.!!!notbase64!!!.c")
	assert.Error(t, err)
}

func TestStatusResponse_LatestTransaction(t *testing.T) {
	response := &statusResponse{
		Data: []struct {
			SubscriptionGroupIdentifier string `json:"subscriptionGroupIdentifier"`
			LastTransactions            []struct {
				OriginalTransactionID string `json:"originalTransactionId"`
				Status                int    `json:"status"`
				SignedTransactionInfo string `json:"signedTransactionInfo"`
			} `json:"lastTransactions"`
		}{
			{
				SubscriptionGroupIdentifier: "g1",
				LastTransactions: []struct {
					OriginalTransactionID string `json:"originalTransactionId"`
					Status                int    `json:"status"`
					SignedTransactionInfo string `json:"signedTransactionInfo"`
				}{
					{OriginalTransactionID: "1000000001", Status: statusActive, SignedTransactionInfo: "tx1"},
				},
			},
		},
	}

	status, signed, found := response.latestTransaction("1000000001")
	require.True(t, found)
	assert.Equal(t, statusActive, status)
	assert.Equal(t, "tx1", signed)

	status, signed, found = response.latestTransaction("other")
	require.True(t, found, "falls back to first reported transaction")
	assert.Equal(t, "tx1", signed)

	_, _, found = (&statusResponse{}).latestTransaction("1000000001")
	assert.False(t, found)
}
