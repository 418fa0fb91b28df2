package subscription

import (
	"fmt"
	"time"

	vo "selah/internal/domain/subscription/valueobjects"
	"selah/internal/shared/id"
)

// History is one append-only ledger entry: a provider event applied (or
// recorded) against a subscription. Entries are never updated or deleted.
type History struct {
	dbID            uint
	eid             string
	subscriptionID  uint
	userID          uint
	eventType       vo.EventType
	prevStatus      *vo.Status
	newStatus       vo.Status
	providerEventID string
	paymentID       *string
	paymentAmount   *int64
	paymentStatus   *string
	payload         map[string]interface{}
	note            string
	createdAt       time.Time
}

// HistoryParams carries the optional payment and payload attributes of a
// ledger entry.
type HistoryParams struct {
	PaymentID     *string
	PaymentAmount *int64
	PaymentStatus *string
	Payload       map[string]interface{}
	Note          string
}

// NewHistory creates a ledger entry for an event applied to a subscription.
// prevStatus is nil for the entry that creates the subscription.
func NewHistory(subscriptionID, userID uint, eventType vo.EventType, prevStatus *vo.Status, newStatus vo.Status, providerEventID string, p HistoryParams) (*History, error) {
	if subscriptionID == 0 {
		return nil, fmt.Errorf("subscription ID is required")
	}
	if !vo.ValidEventTypes[eventType] {
		return nil, fmt.Errorf("invalid event type: %s", eventType)
	}
	if !vo.ValidStatuses[newStatus] {
		return nil, fmt.Errorf("invalid status: %s", newStatus)
	}
	if providerEventID == "" {
		return nil, fmt.Errorf("provider event ID is required")
	}

	return &History{
		eid:             id.MustGenerateWithPrefix(id.PrefixEvent, id.DefaultLength),
		subscriptionID:  subscriptionID,
		userID:          userID,
		eventType:       eventType,
		prevStatus:      prevStatus,
		newStatus:       newStatus,
		providerEventID: providerEventID,
		paymentID:       p.PaymentID,
		paymentAmount:   p.PaymentAmount,
		paymentStatus:   p.PaymentStatus,
		payload:         p.Payload,
		note:            p.Note,
		createdAt:       time.Now().UTC(),
	}, nil
}

// ReconstructHistoryParams carries persisted ledger state.
type ReconstructHistoryParams struct {
	DBID            uint
	EID             string
	SubscriptionID  uint
	UserID          uint
	EventType       vo.EventType
	PrevStatus      *vo.Status
	NewStatus       vo.Status
	ProviderEventID string
	PaymentID       *string
	PaymentAmount   *int64
	PaymentStatus   *string
	Payload         map[string]interface{}
	Note            string
	CreatedAt       time.Time
}

// ReconstructHistory rebuilds a ledger entry from persistence.
func ReconstructHistory(p ReconstructHistoryParams) *History {
	return &History{
		dbID:            p.DBID,
		eid:             p.EID,
		subscriptionID:  p.SubscriptionID,
		userID:          p.UserID,
		eventType:       p.EventType,
		prevStatus:      p.PrevStatus,
		newStatus:       p.NewStatus,
		providerEventID: p.ProviderEventID,
		paymentID:       p.PaymentID,
		paymentAmount:   p.PaymentAmount,
		paymentStatus:   p.PaymentStatus,
		payload:         p.Payload,
		note:            p.Note,
		createdAt:       p.CreatedAt,
	}
}

func (h *History) ID() uint                         { return h.dbID }
func (h *History) EID() string                      { return h.eid }
func (h *History) SubscriptionID() uint             { return h.subscriptionID }
func (h *History) UserID() uint                     { return h.userID }
func (h *History) EventType() vo.EventType          { return h.eventType }
func (h *History) PrevStatus() *vo.Status           { return h.prevStatus }
func (h *History) NewStatus() vo.Status             { return h.newStatus }
func (h *History) ProviderEventID() string          { return h.providerEventID }
func (h *History) PaymentID() *string               { return h.paymentID }
func (h *History) PaymentAmount() *int64            { return h.paymentAmount }
func (h *History) PaymentStatus() *string           { return h.paymentStatus }
func (h *History) Payload() map[string]interface{}  { return h.payload }
func (h *History) Note() string                     { return h.note }
func (h *History) CreatedAt() time.Time             { return h.createdAt }

// SetID sets the database ID (persistence layer only).
func (h *History) SetID(dbID uint) error {
	if h.dbID != 0 {
		return fmt.Errorf("history ID is already set")
	}
	h.dbID = dbID
	return nil
}
