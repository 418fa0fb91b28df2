package subscription

import "errors"

var (
	// ErrSubscriptionNotFound signals lookup misses across all repository methods.
	ErrSubscriptionNotFound = errors.New("subscription not found")

	// ErrInvalidTransition signals a state change the canonical table forbids.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrDuplicateEvent signals a provider event already recorded in the
	// ledger. Callers treat it as success: the work was done the first time.
	ErrDuplicateEvent = errors.New("provider event already processed")

	// ErrVersionConflict signals a lost optimistic-lock race on update.
	ErrVersionConflict = errors.New("subscription was modified concurrently")
)
