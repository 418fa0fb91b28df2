package razorpay

import (
	"time"

	"selah/internal/application/billing/provider"
	vo "selah/internal/domain/subscription/valueobjects"
)

// subscriptionEntity is Razorpay's subscription object. Timestamps are unix
// seconds.
type subscriptionEntity struct {
	ID             string                 `json:"id"`
	PlanID         string                 `json:"plan_id"`
	Status         string                 `json:"status"`
	CurrentStart   int64                  `json:"current_start"`
	CurrentEnd     int64                  `json:"current_end"`
	ChargeAt       int64                  `json:"charge_at"`
	EndAt          int64                  `json:"end_at"`
	TotalCount     int                    `json:"total_count"`
	PaidCount      int                    `json:"paid_count"`
	RemainingCount int                    `json:"remaining_count"`
	ShortURL       string                 `json:"short_url"`
	// Notes is skipped: Razorpay sends [] instead of {} when empty, which
	// breaks map decoding.
	Notes     map[string]interface{} `json:"-"`
	CreatedAt int64                  `json:"created_at"`
}

// statusMap translates Razorpay subscription statuses to canonical ones.
// "pending" means a charge retry is in progress and access is retained;
// "halted" means retries are exhausted and collection is suspended.
var statusMap = map[string]vo.Status{
	"created":       vo.StatusCreated,
	"authenticated": vo.StatusAuthenticated,
	"active":        vo.StatusActive,
	"pending":       vo.StatusActive,
	"halted":        vo.StatusPaused,
	"paused":        vo.StatusPaused,
	"cancelled":     vo.StatusCancelled,
	"completed":     vo.StatusCompleted,
	"expired":       vo.StatusExpired,
}

// eventMap translates Razorpay webhook event names to canonical event types.
var eventMap = map[string]vo.EventType{
	"subscription.authenticated": vo.EventAuthenticated,
	"subscription.activated":     vo.EventActivated,
	"subscription.charged":       vo.EventCharged,
	"subscription.cancelled":     vo.EventCancelled,
	"subscription.paused":        vo.EventPaused,
	"subscription.resumed":       vo.EventResumed,
	"subscription.completed":     vo.EventCompleted,
	"subscription.pending":       vo.EventPending,
	"subscription.halted":        vo.EventPaused,
	"subscription.updated":       vo.EventUpdated,
}

// MapStatus maps a Razorpay status string to the canonical status. Unknown
// statuses map to the zero value and ok=false.
func MapStatus(razorpayStatus string) (vo.Status, bool) {
	status, ok := statusMap[razorpayStatus]
	return status, ok
}

// MapEventType maps a Razorpay webhook event name to the canonical event
// type.
func MapEventType(event string) (vo.EventType, bool) {
	eventType, ok := eventMap[event]
	return eventType, ok
}

func unixToTime(ts int64) *time.Time {
	if ts == 0 {
		return nil
	}
	t := time.Unix(ts, 0).UTC()
	return &t
}

func (e *subscriptionEntity) toDetails() *provider.SubscriptionDetails {
	status, ok := MapStatus(e.Status)
	if !ok {
		status = vo.StatusCreated
	}

	details := &provider.SubscriptionDetails{
		ProviderSubscriptionID: e.ID,
		Status:                 status,
		PlanID:                 e.PlanID,
		CurrentPeriodStart:     unixToTime(e.CurrentStart),
		CurrentPeriodEnd:       unixToTime(e.CurrentEnd),
		NextBillingAt:          unixToTime(e.ChargeAt),
		PaidCount:              e.PaidCount,
	}
	if e.TotalCount > 0 {
		total := e.TotalCount
		details.TotalCount = &total
	}
	return details
}
