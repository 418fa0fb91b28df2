package razorpay

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"time"

	"selah/internal/application/billing/provider"
	vo "selah/internal/domain/subscription/valueobjects"
	"selah/internal/shared/errors"
)

// ErrUnsupportedEvent marks webhook event types this service does not
// track. Callers acknowledge these so the provider stops redelivering.
var ErrUnsupportedEvent = stderrors.New("unsupported webhook event")

// webhookPayload is the envelope Razorpay posts to the webhook endpoint.
type webhookPayload struct {
	Entity  string `json:"entity"`
	Event   string `json:"event"`
	Payload struct {
		Subscription struct {
			Entity subscriptionEntity `json:"entity"`
		} `json:"subscription"`
		Payment struct {
			Entity struct {
				ID       string `json:"id"`
				Amount   int64  `json:"amount"`
				Currency string `json:"currency"`
				Status   string `json:"status"`
				Method   string `json:"method"`
			} `json:"entity"`
		} `json:"payment"`
		Refund struct {
			Entity struct {
				ID        string `json:"id"`
				PaymentID string `json:"payment_id"`
				Amount    int64  `json:"amount"`
				Currency  string `json:"currency"`
				Status    string `json:"status"`
			} `json:"entity"`
		} `json:"refund"`
	} `json:"payload"`
	CreatedAt int64 `json:"created_at"`
}

// VerifySignature checks the X-Razorpay-Signature header value against an
// HMAC-SHA256 of the raw body. Fails closed when the secret is not
// configured.
func VerifySignature(body []byte, signature, secret string) error {
	if secret == "" {
		return errors.NewConfigurationError("razorpay webhook secret is not configured")
	}
	if signature == "" {
		return errors.NewVerificationError("missing webhook signature")
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return errors.NewVerificationError("webhook signature mismatch")
	}
	return nil
}

// ParseWebhook canonicalizes a verified Razorpay webhook body. eventID is
// the X-Razorpay-Event-Id header, the provider's delivery identifier.
func ParseWebhook(body []byte, eventID string) (*provider.Event, error) {
	var payload webhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, errors.NewValidationError("malformed webhook body", err.Error())
	}

	// Refund events carry a refund entity instead of a subscription entity;
	// they resolve to a subscription through the invoice's payment ID.
	if payload.Event == "refund.created" || payload.Event == "refund.processed" {
		return parseRefundWebhook(&payload, body, eventID)
	}

	eventType, ok := MapEventType(payload.Event)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedEvent, payload.Event)
	}

	sub := payload.Payload.Subscription.Entity
	if sub.ID == "" {
		return nil, errors.NewValidationError("webhook missing subscription entity", payload.Event)
	}
	if eventID == "" {
		// Provider always sets the header; synthesize a stable fallback so
		// idempotency still holds for a given event+period.
		eventID = fmt.Sprintf("%s:%s:%d", payload.Event, sub.ID, payload.CreatedAt)
	}

	status, ok := MapStatus(sub.Status)
	if !ok {
		return nil, errors.NewValidationError("unknown subscription status", sub.Status)
	}

	var rawPayload map[string]interface{}
	_ = json.Unmarshal(body, &rawPayload)

	event := &provider.Event{
		Type:                   eventType,
		Provider:               vo.ProviderRazorpay,
		ProviderEventID:        eventID,
		ProviderSubscriptionID: sub.ID,
		Status:                 status,
		PlanID:                 sub.PlanID,
		PeriodStart:            unixToTime(sub.CurrentStart),
		PeriodEnd:              unixToTime(sub.CurrentEnd),
		OccurredAt:             time.Unix(payload.CreatedAt, 0).UTC(),
		Payload:                rawPayload,
	}

	if pay := payload.Payload.Payment.Entity; pay.ID != "" {
		event.PaymentID = pay.ID
		event.PaymentAmount = pay.Amount
		event.PaymentCurrency = pay.Currency
		event.PaymentStatus = pay.Status
		event.PaymentMethod = pay.Method
	}
	return event, nil
}

func parseRefundWebhook(payload *webhookPayload, body []byte, eventID string) (*provider.Event, error) {
	refund := payload.Payload.Refund.Entity
	if refund.PaymentID == "" {
		return nil, errors.NewValidationError("refund webhook missing payment reference", payload.Event)
	}
	if eventID == "" {
		eventID = fmt.Sprintf("%s:%s:%d", payload.Event, refund.ID, payload.CreatedAt)
	}

	var rawPayload map[string]interface{}
	_ = json.Unmarshal(body, &rawPayload)

	return &provider.Event{
		Type:            vo.EventRefunded,
		Provider:        vo.ProviderRazorpay,
		ProviderEventID: eventID,
		PaymentID:       refund.PaymentID,
		PaymentAmount:   refund.Amount,
		PaymentCurrency: refund.Currency,
		PaymentStatus:   refund.Status,
		OccurredAt:      time.Unix(payload.CreatedAt, 0).UTC(),
		Payload:         rawPayload,
	}, nil
}
