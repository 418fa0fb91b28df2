package subscription

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	vo "selah/internal/domain/subscription/valueobjects"
)

func newTestSubscription(t *testing.T) *Subscription {
	t.Helper()
	total := 12
	sub, err := NewSubscription(42, vo.ProviderRazorpay, "rzp_sub_001", "plan_monthly", 49900, "INR", &total)
	require.NoError(t, err)
	return sub
}

func TestNewSubscription(t *testing.T) {
	sub := newTestSubscription(t)

	assert.Equal(t, vo.StatusCreated, sub.Status())
	assert.Equal(t, uint(42), sub.UserID())
	assert.Equal(t, vo.ProviderRazorpay, sub.Provider())
	assert.True(t, strings.HasPrefix(sub.SID(), "sub_"))
	assert.Equal(t, 1, sub.Version())
	assert.Equal(t, 0, sub.PaidCount())
	require.NotNil(t, sub.RemainingCount())
	assert.Equal(t, 12, *sub.RemainingCount())
	assert.Nil(t, sub.CurrentPeriodEnd())
}

func TestNewSubscription_Validation(t *testing.T) {
	_, err := NewSubscription(0, vo.ProviderRazorpay, "rzp_sub_001", "plan", 100, "INR", nil)
	assert.Error(t, err)

	_, err = NewSubscription(1, vo.ProviderRazorpay, "", "plan", 100, "INR", nil)
	assert.Error(t, err)

	_, err = NewSubscription(1, vo.ProviderType("stripe"), "sub_1", "plan", 100, "INR", nil)
	assert.Error(t, err)
}

func TestNewStoreSubscription(t *testing.T) {
	start := time.Now().UTC()
	end := start.Add(30 * 24 * time.Hour)

	sub, err := NewStoreSubscription(7, vo.ProviderGooglePlay, "token-abc", "premium_monthly", 499, "USD", start, end)
	require.NoError(t, err)

	assert.Equal(t, vo.StatusActive, sub.Status())
	assert.Nil(t, sub.TotalCount())
	assert.Nil(t, sub.RemainingCount())
	require.NotNil(t, sub.NextBillingAt())
	assert.Equal(t, end, *sub.NextBillingAt())

	_, err = NewStoreSubscription(7, vo.ProviderRazorpay, "x", "p", 1, "USD", start, end)
	assert.Error(t, err, "non-store provider must be rejected")
}

func TestSubscription_Lifecycle(t *testing.T) {
	sub := newTestSubscription(t)
	v := sub.Version()

	require.NoError(t, sub.Authenticate())
	assert.Equal(t, vo.StatusAuthenticated, sub.Status())
	assert.Equal(t, v+1, sub.Version())

	require.NoError(t, sub.Activate(nil, nil))
	assert.Equal(t, vo.StatusActive, sub.Status())

	start := time.Now().UTC()
	end := start.AddDate(0, 1, 0)
	require.NoError(t, sub.Charge(start, end))
	assert.Equal(t, 1, sub.PaidCount())
	require.NotNil(t, sub.RemainingCount())
	assert.Equal(t, 11, *sub.RemainingCount())
	assert.Equal(t, end, *sub.CurrentPeriodEnd())
	assert.Equal(t, end, *sub.NextBillingAt())
}

func TestSubscription_Authenticate_Idempotent(t *testing.T) {
	sub := newTestSubscription(t)
	require.NoError(t, sub.Authenticate())
	v := sub.Version()

	require.NoError(t, sub.Authenticate())
	assert.Equal(t, v, sub.Version(), "repeated authenticate must be a no-op")
}

func TestSubscription_Charge_ReactivatesPaused(t *testing.T) {
	sub := newTestSubscription(t)
	require.NoError(t, sub.Activate(nil, nil))
	require.NoError(t, sub.Pause())

	start := time.Now().UTC()
	require.NoError(t, sub.Charge(start, start.AddDate(0, 1, 0)))
	assert.Equal(t, vo.StatusActive, sub.Status())
}

func TestSubscription_Charge_RejectsTerminal(t *testing.T) {
	sub := newTestSubscription(t)
	require.NoError(t, sub.Cancel(false, "user request"))

	start := time.Now().UTC()
	err := sub.Charge(start, start.AddDate(0, 1, 0))
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestSubscription_IsPeriodStale(t *testing.T) {
	sub := newTestSubscription(t)
	require.NoError(t, sub.Activate(nil, nil))

	start := time.Now().UTC()
	end := start.AddDate(0, 1, 0)
	require.NoError(t, sub.Charge(start, end))

	assert.True(t, sub.IsPeriodStale(end.Add(-time.Hour)))
	assert.False(t, sub.IsPeriodStale(end.AddDate(0, 1, 0)))
}

func TestSubscription_CancelAtCycleEnd(t *testing.T) {
	sub := newTestSubscription(t)
	require.NoError(t, sub.Activate(nil, nil))

	require.NoError(t, sub.Cancel(true, "too expensive"))
	assert.Equal(t, vo.StatusPendingCancellation, sub.Status())
	assert.True(t, sub.CancelAtCycleEnd())
	assert.True(t, sub.Status().CanUseService())
	require.NotNil(t, sub.CancelReason())
	assert.Equal(t, "too expensive", *sub.CancelReason())

	require.NoError(t, sub.FinalizeCancellation())
	assert.Equal(t, vo.StatusCancelled, sub.Status())
}

func TestSubscription_CancelImmediate_Idempotent(t *testing.T) {
	sub := newTestSubscription(t)
	require.NoError(t, sub.Cancel(false, ""))
	assert.Equal(t, vo.StatusCancelled, sub.Status())
	v := sub.Version()

	require.NoError(t, sub.Cancel(false, ""))
	assert.Equal(t, v, sub.Version())
}

func TestSubscription_ReactivateAfterPendingCancellation(t *testing.T) {
	sub := newTestSubscription(t)
	require.NoError(t, sub.Activate(nil, nil))
	require.NoError(t, sub.Cancel(true, ""))

	require.NoError(t, sub.Activate(nil, nil))
	assert.Equal(t, vo.StatusActive, sub.Status())
	assert.False(t, sub.CancelAtCycleEnd())
}

func TestSubscription_PauseResume(t *testing.T) {
	sub := newTestSubscription(t)
	require.NoError(t, sub.Activate(nil, nil))

	require.NoError(t, sub.Pause())
	assert.Equal(t, vo.StatusPaused, sub.Status())
	assert.False(t, sub.Status().CanUseService())

	require.NoError(t, sub.Resume())
	assert.Equal(t, vo.StatusActive, sub.Status())

	assert.NoError(t, sub.Resume(), "resuming an active subscription is a no-op")
}

func TestSubscription_Pause_RequiresActive(t *testing.T) {
	sub := newTestSubscription(t)
	assert.ErrorIs(t, sub.Pause(), ErrInvalidTransition)
}

func TestSubscription_CycleExhaustion(t *testing.T) {
	total := 2
	sub, err := NewSubscription(1, vo.ProviderRazorpay, "rzp_sub_002", "plan", 100, "INR", &total)
	require.NoError(t, err)
	require.NoError(t, sub.Activate(nil, nil))

	start := time.Now().UTC()
	require.NoError(t, sub.Charge(start, start.AddDate(0, 1, 0)))
	assert.False(t, sub.IsCycleExhausted())

	require.NoError(t, sub.Charge(start.AddDate(0, 1, 0), start.AddDate(0, 2, 0)))
	assert.True(t, sub.IsCycleExhausted())

	require.NoError(t, sub.Complete())
	assert.Equal(t, vo.StatusCompleted, sub.Status())
}

func TestSubscription_SyncProviderStatus(t *testing.T) {
	sub := newTestSubscription(t)
	require.NoError(t, sub.Activate(nil, nil))

	require.NoError(t, sub.SyncProviderStatus(vo.StatusPaused))
	assert.Equal(t, vo.StatusPaused, sub.Status())

	require.NoError(t, sub.Cancel(false, ""))
	err := sub.SyncProviderStatus(vo.StatusActive)
	assert.ErrorIs(t, err, ErrInvalidTransition, "terminal subscriptions must not be revived")
}

func TestSubscription_IsPendingCancellationElapsed(t *testing.T) {
	sub := newTestSubscription(t)
	require.NoError(t, sub.Activate(nil, nil))

	start := time.Now().UTC().AddDate(0, -2, 0)
	require.NoError(t, sub.Charge(start, start.AddDate(0, 1, 0)))
	require.NoError(t, sub.Cancel(true, ""))

	assert.True(t, sub.IsPendingCancellationElapsed(time.Now().UTC()))
	assert.False(t, sub.IsPendingCancellationElapsed(start.AddDate(0, 0, 15)))
}

func TestSubscription_RefreshPlan(t *testing.T) {
	sub := newTestSubscription(t)
	v := sub.Version()

	sub.RefreshPlan("plan_yearly", 499900, "INR")
	assert.Equal(t, "plan_yearly", sub.PlanID())
	assert.Equal(t, int64(499900), sub.Amount())
	assert.Equal(t, v+1, sub.Version())

	sub.RefreshPlan("", 0, "")
	assert.Equal(t, v+1, sub.Version(), "empty refresh must not bump version")
}

func TestSubscription_EventStaleness(t *testing.T) {
	sub := newTestSubscription(t)
	at := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)

	assert.False(t, sub.IsEventStale(at), "nothing applied yet, nothing is stale")

	sub.RecordEventTime(at)
	require.NotNil(t, sub.LastEventAt())

	assert.False(t, sub.IsEventStale(at), "same provider instant is not stale")
	assert.False(t, sub.IsEventStale(at.Add(time.Second)))
	assert.True(t, sub.IsEventStale(at.Add(-time.Second)))
	assert.False(t, sub.IsEventStale(time.Time{}), "events without a timestamp are never stale")

	// An older timestamp never rewinds the recorded one.
	sub.RecordEventTime(at.Add(-time.Minute))
	assert.True(t, sub.LastEventAt().Equal(at))
}

func TestReconstruct(t *testing.T) {
	now := time.Now().UTC()
	end := now.AddDate(0, 1, 0)
	sub, err := Reconstruct(ReconstructParams{
		DBID:                   9,
		SID:                    "sub_abc123",
		UserID:                 42,
		Provider:               vo.ProviderAppStore,
		ProviderSubscriptionID: "orig-tx-1",
		PlanID:                 "premium",
		Status:                 vo.StatusActive,
		CurrentPeriodStart:     &now,
		CurrentPeriodEnd:       &end,
		PaidCount:              3,
		Amount:                 999,
		Currency:               "USD",
		Version:                7,
		CreatedAt:              now,
		UpdatedAt:              now,
	})
	require.NoError(t, err)

	assert.Equal(t, uint(9), sub.ID())
	assert.Equal(t, vo.StatusActive, sub.Status())
	assert.Equal(t, 7, sub.Version())
	assert.Nil(t, sub.RemainingCount())

	_, err = Reconstruct(ReconstructParams{DBID: 1, UserID: 1, Provider: vo.ProviderRazorpay, Status: vo.Status("bogus")})
	assert.Error(t, err)
}
