package valueobjects

// Status is the canonical subscription status every provider vocabulary is
// translated into. created/authenticated are entry states reachable only from
// a fresh hosted-checkout subscription; store IAP subscriptions enter
// directly at active on first valid receipt.
type Status string

const (
	StatusCreated             Status = "created"
	StatusAuthenticated       Status = "authenticated"
	StatusActive              Status = "active"
	StatusPendingCancellation Status = "pending_cancellation"
	StatusPaused              Status = "paused"
	StatusCancelled           Status = "cancelled"
	StatusCompleted           Status = "completed"
	StatusExpired             Status = "expired"
)

func (s Status) String() string {
	return string(s)
}

// IsTerminal reports whether the subscription has left the billable
// lifecycle. Terminal subscriptions are retained for audit and only move
// through the expiry sweep.
func (s Status) IsTerminal() bool {
	return s == StatusCancelled || s == StatusCompleted || s == StatusExpired
}

// CanUseService reports whether the user retains access. A pending
// cancellation keeps access until the period ends.
func (s Status) CanUseService() bool {
	return s == StatusActive || s == StatusPendingCancellation
}

// CanTransitionTo enforces the canonical transition table. active → expired
// is admitted only for provider-truth corrections (the provider reports a
// state the local cache missed the intermediate steps of).
func (s Status) CanTransitionTo(target Status) bool {
	transitions := map[Status][]Status{
		StatusCreated:             {StatusAuthenticated, StatusActive, StatusCancelled},
		StatusAuthenticated:       {StatusActive, StatusCancelled},
		StatusActive:              {StatusPendingCancellation, StatusPaused, StatusCancelled, StatusCompleted, StatusExpired},
		StatusPendingCancellation: {StatusActive, StatusCancelled},
		StatusPaused:              {StatusActive, StatusCancelled},
		StatusCancelled:           {StatusExpired},
		StatusCompleted:           {StatusExpired},
		StatusExpired:             {},
	}

	allowed, exists := transitions[s]
	if !exists {
		return false
	}

	for _, allowedStatus := range allowed {
		if allowedStatus == target {
			return true
		}
	}
	return false
}

var ValidStatuses = map[Status]bool{
	StatusCreated:             true,
	StatusAuthenticated:       true,
	StatusActive:              true,
	StatusPendingCancellation: true,
	StatusPaused:              true,
	StatusCancelled:           true,
	StatusCompleted:           true,
	StatusExpired:             true,
}
