package usecases

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"selah/internal/application/billing/provider"
	vo "selah/internal/domain/subscription/valueobjects"
	"selah/internal/shared/errors"
)

func chargedEvent(providerSubID, eventID string, start, end time.Time) *provider.Event {
	return &provider.Event{
		Type:                   vo.EventCharged,
		Provider:               vo.ProviderRazorpay,
		ProviderEventID:        eventID,
		ProviderSubscriptionID: providerSubID,
		Status:                 vo.StatusActive,
		PeriodStart:            timePtr(start),
		PeriodEnd:              timePtr(end),
		PaymentID:              "pay_" + eventID,
		PaymentAmount:          49900,
		PaymentCurrency:        "INR",
		PaymentStatus:          "captured",
		PaymentMethod:          "card",
		OccurredAt:             time.Now().UTC(),
	}
}

func simpleEvent(eventType vo.EventType, providerSubID, eventID string) *provider.Event {
	return &provider.Event{
		Type:                   eventType,
		Provider:               vo.ProviderRazorpay,
		ProviderEventID:        eventID,
		ProviderSubscriptionID: providerSubID,
		OccurredAt:             time.Now().UTC(),
	}
}

func TestProcessWebhookEvent_Lifecycle(t *testing.T) {
	env := newTestEnv(t)
	uc := NewProcessWebhookEventUseCase(env.subRepo, env.invRepo, env.registry, env.locks, env.log)
	ctx := context.Background()

	sub := env.seedSubscription(t, "rzp_sub_100")

	require.NoError(t, uc.Execute(ctx, simpleEvent(vo.EventAuthenticated, "rzp_sub_100", "evt_1")))
	require.NoError(t, uc.Execute(ctx, simpleEvent(vo.EventActivated, "rzp_sub_100", "evt_2")))

	start := time.Now().UTC()
	end := start.AddDate(0, 1, 0)
	require.NoError(t, uc.Execute(ctx, chargedEvent("rzp_sub_100", "evt_3", start, end)))

	found, err := env.subRepo.GetByID(ctx, sub.ID())
	require.NoError(t, err)
	assert.Equal(t, vo.StatusActive, found.Status())
	assert.Equal(t, 1, found.PaidCount())
	require.NotNil(t, found.CurrentPeriodEnd())
	assert.WithinDuration(t, end, *found.CurrentPeriodEnd(), time.Second)

	assert.Equal(t, 3, env.ledgerCount(t, sub.ID()))

	// The charge produced an invoice.
	invoice, err := env.invRepo.GetByProviderPaymentID(ctx, "pay_evt_3")
	require.NoError(t, err)
	require.NotNil(t, invoice)
	assert.Equal(t, int64(49900), invoice.Amount())
}

func TestProcessWebhookEvent_SameSecondLifecyclePair(t *testing.T) {
	env := newTestEnv(t)
	uc := NewProcessWebhookEventUseCase(env.subRepo, env.invRepo, env.registry, env.locks, env.log)
	ctx := context.Background()

	sub := env.seedSubscription(t, "rzp_sub_108")

	// Razorpay stamps activated and the first charged with the same
	// created_at. Neither may be dropped as stale.
	occurred := time.Now().UTC().Truncate(time.Second)
	activated := simpleEvent(vo.EventActivated, "rzp_sub_108", "evt_act_same")
	activated.OccurredAt = occurred
	require.NoError(t, uc.Execute(ctx, activated))

	start := occurred
	charged := chargedEvent("rzp_sub_108", "evt_chg_same", start, start.AddDate(0, 1, 0))
	charged.OccurredAt = occurred
	require.NoError(t, uc.Execute(ctx, charged))

	found, err := env.subRepo.GetByID(ctx, sub.ID())
	require.NoError(t, err)
	assert.Equal(t, vo.StatusActive, found.Status())
	assert.Equal(t, 1, found.PaidCount(), "same-second charge after activation must advance the paid count")
	require.NotNil(t, found.LastEventAt())
	assert.True(t, found.LastEventAt().Equal(occurred))
}

func TestProcessWebhookEvent_DuplicateIsNoop(t *testing.T) {
	env := newTestEnv(t)
	uc := NewProcessWebhookEventUseCase(env.subRepo, env.invRepo, env.registry, env.locks, env.log)
	ctx := context.Background()

	sub := env.seedSubscription(t, "rzp_sub_101")
	require.NoError(t, uc.Execute(ctx, simpleEvent(vo.EventAuthenticated, "rzp_sub_101", "evt_auth")))

	// Redelivery of the identical event succeeds with zero side effects.
	require.NoError(t, uc.Execute(ctx, simpleEvent(vo.EventAuthenticated, "rzp_sub_101", "evt_auth")))

	assert.Equal(t, 1, env.ledgerCount(t, sub.ID()))

	found, err := env.subRepo.GetByID(ctx, sub.ID())
	require.NoError(t, err)
	assert.Equal(t, vo.StatusAuthenticated, found.Status())
}

func TestProcessWebhookEvent_StaleChargeIgnored(t *testing.T) {
	env := newTestEnv(t)
	uc := NewProcessWebhookEventUseCase(env.subRepo, env.invRepo, env.registry, env.locks, env.log)
	ctx := context.Background()

	sub := env.seedSubscription(t, "rzp_sub_102")
	require.NoError(t, uc.Execute(ctx, simpleEvent(vo.EventActivated, "rzp_sub_102", "evt_act")))

	start := time.Now().UTC()
	require.NoError(t, uc.Execute(ctx, chargedEvent("rzp_sub_102", "evt_c2", start.AddDate(0, 1, 0), start.AddDate(0, 2, 0))))

	// An older period arrives late: ledgered, state untouched.
	require.NoError(t, uc.Execute(ctx, chargedEvent("rzp_sub_102", "evt_c1", start, start.AddDate(0, 1, 0))))

	found, err := env.subRepo.GetByID(ctx, sub.ID())
	require.NoError(t, err)
	assert.Equal(t, 1, found.PaidCount(), "stale charge must not advance the paid count")
	require.NotNil(t, found.CurrentPeriodEnd())
	assert.WithinDuration(t, start.AddDate(0, 2, 0), *found.CurrentPeriodEnd(), time.Second)

	assert.Equal(t, 3, env.ledgerCount(t, sub.ID()), "stale event still gets a ledger row")
}

func TestProcessWebhookEvent_PendingIsAuditOnly(t *testing.T) {
	env := newTestEnv(t)
	uc := NewProcessWebhookEventUseCase(env.subRepo, env.invRepo, env.registry, env.locks, env.log)
	ctx := context.Background()

	sub := env.seedSubscription(t, "rzp_sub_103")
	require.NoError(t, uc.Execute(ctx, simpleEvent(vo.EventActivated, "rzp_sub_103", "evt_act")))

	require.NoError(t, uc.Execute(ctx, simpleEvent(vo.EventPending, "rzp_sub_103", "evt_pending")))

	found, err := env.subRepo.GetByID(ctx, sub.ID())
	require.NoError(t, err)
	assert.Equal(t, vo.StatusActive, found.Status(), "pending must not change status")
	assert.Equal(t, 2, env.ledgerCount(t, sub.ID()))
}

func TestProcessWebhookEvent_AnomalyLedgeredWithoutTransition(t *testing.T) {
	env := newTestEnv(t)
	uc := NewProcessWebhookEventUseCase(env.subRepo, env.invRepo, env.registry, env.locks, env.log)
	ctx := context.Background()

	sub := env.seedSubscription(t, "rzp_sub_104")
	require.NoError(t, uc.Execute(ctx, simpleEvent(vo.EventCancelled, "rzp_sub_104", "evt_cancel")))

	// A charge against the cancelled subscription is anomalous: ack it,
	// ledger it, do not blindly transition.
	start := time.Now().UTC()
	err := uc.Execute(ctx, chargedEvent("rzp_sub_104", "evt_late_charge", start, start.AddDate(0, 1, 0)))
	require.NoError(t, err)

	found, err := env.subRepo.GetByID(ctx, sub.ID())
	require.NoError(t, err)
	assert.Equal(t, vo.StatusCancelled, found.Status())
	assert.Equal(t, 2, env.ledgerCount(t, sub.ID()))
}

func TestProcessWebhookEvent_ReconcileSyncsProviderTruth(t *testing.T) {
	env := newTestEnv(t)
	uc := NewProcessWebhookEventUseCase(env.subRepo, env.invRepo, env.registry, env.locks, env.log)
	ctx := context.Background()

	sub := env.seedSubscription(t, "rzp_sub_105")
	require.NoError(t, uc.Execute(ctx, simpleEvent(vo.EventActivated, "rzp_sub_105", "evt_act")))

	env.stub.details = &provider.SubscriptionDetails{
		ProviderSubscriptionID: "rzp_sub_105",
		Status:                 vo.StatusPaused,
	}

	uc.reconcile(ctx, sub.ID(), vo.ProviderRazorpay, "rzp_sub_105", "razorpay:rzp_sub_105")

	found, err := env.subRepo.GetByID(ctx, sub.ID())
	require.NoError(t, err)
	assert.Equal(t, vo.StatusPaused, found.Status())
}

func TestProcessWebhookEvent_UnknownSubscription(t *testing.T) {
	env := newTestEnv(t)
	uc := NewProcessWebhookEventUseCase(env.subRepo, env.invRepo, env.registry, env.locks, env.log)

	err := uc.Execute(context.Background(), simpleEvent(vo.EventActivated, "rzp_sub_missing", "evt_x"))
	require.Error(t, err)
	assert.True(t, errors.IsNotFoundError(err))
}

func TestProcessWebhookEvent_UpdatedRefreshesPlanAndSyncsStatus(t *testing.T) {
	env := newTestEnv(t)
	uc := NewProcessWebhookEventUseCase(env.subRepo, env.invRepo, env.registry, env.locks, env.log)
	ctx := context.Background()

	sub := env.seedSubscription(t, "rzp_sub_106")
	require.NoError(t, uc.Execute(ctx, simpleEvent(vo.EventActivated, "rzp_sub_106", "evt_act")))

	updated := simpleEvent(vo.EventUpdated, "rzp_sub_106", "evt_upd")
	updated.PlanID = "plan_yearly"
	updated.Status = vo.StatusPaused

	require.NoError(t, uc.Execute(ctx, updated))

	found, err := env.subRepo.GetByID(ctx, sub.ID())
	require.NoError(t, err)
	assert.Equal(t, "plan_yearly", found.PlanID())
	assert.Equal(t, vo.StatusPaused, found.Status(), "provider truth corrects local status")
}

func TestProcessWebhookEvent_CycleExhaustionCompletes(t *testing.T) {
	env := newTestEnv(t)
	uc := NewProcessWebhookEventUseCase(env.subRepo, env.invRepo, env.registry, env.locks, env.log)
	ctx := context.Background()

	total := 1
	sub, err := subscriptionWithTotal(env, 43, "rzp_sub_107", &total)
	require.NoError(t, err)

	require.NoError(t, uc.Execute(ctx, simpleEvent(vo.EventActivated, "rzp_sub_107", "evt_act")))

	start := time.Now().UTC()
	require.NoError(t, uc.Execute(ctx, chargedEvent("rzp_sub_107", "evt_final", start, start.AddDate(0, 1, 0))))

	found, err := env.subRepo.GetByID(ctx, sub.ID())
	require.NoError(t, err)
	assert.Equal(t, vo.StatusCompleted, found.Status(), "final cycle charge completes the subscription")
}
