package googleplay

import (
	"time"

	vo "selah/internal/domain/subscription/valueobjects"
)

// subscriptionPurchase is the relevant subset of the Android Publisher
// subscriptionsv2 resource.
type subscriptionPurchase struct {
	Kind                 string                `json:"kind"`
	StartTime            time.Time             `json:"startTime"`
	SubscriptionState    string                `json:"subscriptionState"`
	LatestOrderID        string                `json:"latestOrderId"`
	LineItems            []lineItem            `json:"lineItems"`
	CanceledStateContext *canceledStateContext `json:"canceledStateContext,omitempty"`
	TestPurchase         *struct{}             `json:"testPurchase,omitempty"`
}

type lineItem struct {
	ProductID    string            `json:"productId"`
	ExpiryTime   time.Time         `json:"expiryTime"`
	AutoRenewing *autoRenewingPlan `json:"autoRenewingPlan,omitempty"`
	OfferDetails *offerDetails     `json:"offerDetails,omitempty"`
}

type autoRenewingPlan struct {
	AutoRenewEnabled bool `json:"autoRenewEnabled"`
}

type offerDetails struct {
	OfferTags  []string `json:"offerTags"`
	BasePlanID string   `json:"basePlanId"`
	OfferID    string   `json:"offerId"`
}

type canceledStateContext struct {
	UserInitiated   *struct{} `json:"userInitiatedCancellation,omitempty"`
	SystemInitiated *struct{} `json:"systemInitiatedCancellation,omitempty"`
}

// stateMap translates Play subscription states to canonical ones. Grace
// period keeps access while the store retries the charge; on-hold suspends
// access until payment recovers; canceled keeps access until expiry with
// auto-renew off.
var stateMap = map[string]vo.Status{
	"SUBSCRIPTION_STATE_PENDING":         vo.StatusCreated,
	"SUBSCRIPTION_STATE_ACTIVE":          vo.StatusActive,
	"SUBSCRIPTION_STATE_IN_GRACE_PERIOD": vo.StatusActive,
	"SUBSCRIPTION_STATE_ON_HOLD":         vo.StatusPaused,
	"SUBSCRIPTION_STATE_PAUSED":          vo.StatusPaused,
	"SUBSCRIPTION_STATE_CANCELED":        vo.StatusPendingCancellation,
	"SUBSCRIPTION_STATE_EXPIRED":         vo.StatusExpired,
}

// MapState maps a Play subscriptionState to the canonical status.
func MapState(state string) (vo.Status, bool) {
	status, ok := stateMap[state]
	return status, ok
}

// currentLineItem picks the line item matching the claimed product, or the
// first one when no claim is made.
func (p *subscriptionPurchase) currentLineItem(productID string) *lineItem {
	for i := range p.LineItems {
		if p.LineItems[i].ProductID == productID {
			return &p.LineItems[i]
		}
	}
	if productID == "" && len(p.LineItems) > 0 {
		return &p.LineItems[0]
	}
	return nil
}

// autoRenewing derives the renewal flag: an explicit plan flag wins,
// otherwise absence of a cancellation context means the plan renews.
func (p *subscriptionPurchase) autoRenewing(item *lineItem) bool {
	if item != nil && item.AutoRenewing != nil {
		return item.AutoRenewing.AutoRenewEnabled
	}
	return p.CanceledStateContext == nil
}

// isTrial reports whether the offer carries a trial tag.
func (item *lineItem) isTrial() bool {
	if item == nil || item.OfferDetails == nil {
		return false
	}
	for _, tag := range item.OfferDetails.OfferTags {
		if tag == "trial" || tag == "free-trial" {
			return true
		}
	}
	return false
}

// isIntroOffer reports whether a discounted paid offer is attached: an offer
// beyond the base plan that is not a free trial.
func (item *lineItem) isIntroOffer() bool {
	if item == nil || item.OfferDetails == nil || item.OfferDetails.OfferID == "" {
		return false
	}
	return !item.isTrial()
}
