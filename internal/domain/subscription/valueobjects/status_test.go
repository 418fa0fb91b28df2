package valueobjects

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatus_CanTransitionTo(t *testing.T) {
	tests := []struct {
		name    string
		from    Status
		to      Status
		allowed bool
	}{
		{"created to authenticated", StatusCreated, StatusAuthenticated, true},
		{"created to active", StatusCreated, StatusActive, true},
		{"created to cancelled", StatusCreated, StatusCancelled, true},
		{"created to paused", StatusCreated, StatusPaused, false},
		{"authenticated to active", StatusAuthenticated, StatusActive, true},
		{"authenticated to paused", StatusAuthenticated, StatusPaused, false},
		{"active to pending cancellation", StatusActive, StatusPendingCancellation, true},
		{"active to paused", StatusActive, StatusPaused, true},
		{"active to completed", StatusActive, StatusCompleted, true},
		{"active to expired", StatusActive, StatusExpired, true},
		{"active to created", StatusActive, StatusCreated, false},
		{"pending cancellation back to active", StatusPendingCancellation, StatusActive, true},
		{"pending cancellation to cancelled", StatusPendingCancellation, StatusCancelled, true},
		{"pending cancellation to paused", StatusPendingCancellation, StatusPaused, false},
		{"paused to active", StatusPaused, StatusActive, true},
		{"paused to cancelled", StatusPaused, StatusCancelled, true},
		{"cancelled to expired", StatusCancelled, StatusExpired, true},
		{"cancelled to active", StatusCancelled, StatusActive, false},
		{"completed to expired", StatusCompleted, StatusExpired, true},
		{"expired is final", StatusExpired, StatusActive, false},
		{"self transition rejected", StatusActive, StatusActive, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.allowed, tt.from.CanTransitionTo(tt.to))
		})
	}
}

func TestStatus_IsTerminal(t *testing.T) {
	assert.True(t, StatusCancelled.IsTerminal())
	assert.True(t, StatusCompleted.IsTerminal())
	assert.True(t, StatusExpired.IsTerminal())
	assert.False(t, StatusActive.IsTerminal())
	assert.False(t, StatusPendingCancellation.IsTerminal())
	assert.False(t, StatusPaused.IsTerminal())
}

func TestStatus_CanUseService(t *testing.T) {
	assert.True(t, StatusActive.CanUseService())
	assert.True(t, StatusPendingCancellation.CanUseService())
	assert.False(t, StatusCreated.CanUseService())
	assert.False(t, StatusPaused.CanUseService())
	assert.False(t, StatusCancelled.CanUseService())
}
