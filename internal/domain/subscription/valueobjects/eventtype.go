package valueobjects

// EventType is the canonical event vocabulary. Provider payload event names
// (Razorpay webhook events, Play subscription states, App Store notification
// types) are mapped into these before they reach the state machine.
type EventType string

const (
	EventCreated       EventType = "created"
	EventAuthenticated EventType = "authenticated"
	EventActivated     EventType = "activated"
	EventCharged       EventType = "charged"
	EventCancelled     EventType = "cancelled"
	EventPaused        EventType = "paused"
	EventResumed       EventType = "resumed"
	EventCompleted     EventType = "completed"
	// EventPending marks a payment retry in progress. Audit only; never
	// mutates status.
	EventPending EventType = "pending"
	// EventUpdated is a metadata refresh (plan or amount change). Status only
	// changes when the provider-reported status diverges from local state.
	EventUpdated EventType = "updated"
	// EventRefunded marks a refund against an earlier charge. Audit only; it
	// flips the invoice, never the subscription status.
	EventRefunded EventType = "refunded"
)

func (e EventType) String() string {
	return string(e)
}

var ValidEventTypes = map[EventType]bool{
	EventCreated:       true,
	EventAuthenticated: true,
	EventActivated:     true,
	EventCharged:       true,
	EventCancelled:     true,
	EventPaused:        true,
	EventResumed:       true,
	EventCompleted:     true,
	EventPending:       true,
	EventUpdated:       true,
	EventRefunded:      true,
}
