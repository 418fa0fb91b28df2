package usecases

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	vo "selah/internal/domain/subscription/valueobjects"
)

func TestExpireSubscriptions(t *testing.T) {
	env := newTestEnv(t)
	uc := NewExpireSubscriptionsUseCase(env.subRepo, env.locks, 7, env.log)
	ctx := context.Background()
	now := time.Now().UTC()

	// Cancelled with a period that ended well past the grace window.
	overdue := env.seedSubscription(t, "rzp_sub_sw1")
	loaded, err := env.subRepo.GetByID(ctx, overdue.ID())
	require.NoError(t, err)
	require.NoError(t, loaded.Activate(nil, nil))
	start := now.AddDate(0, -3, 0)
	require.NoError(t, loaded.Charge(start, start.AddDate(0, 1, 0)))
	require.NoError(t, loaded.Cancel(false, ""))
	require.NoError(t, env.subRepo.Update(ctx, loaded))

	// Cancelled yesterday: still inside the grace window.
	recent := env.seedSubscription(t, "rzp_sub_sw2")
	loaded2, err := env.subRepo.GetByID(ctx, recent.ID())
	require.NoError(t, err)
	require.NoError(t, loaded2.Activate(nil, nil))
	recentStart := now.AddDate(0, -1, 0)
	require.NoError(t, loaded2.Charge(recentStart, now.AddDate(0, 0, -1)))
	require.NoError(t, loaded2.Cancel(false, ""))
	require.NoError(t, env.subRepo.Update(ctx, loaded2))

	expired, err := uc.Execute(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, expired)

	found, err := env.subRepo.GetByID(ctx, overdue.ID())
	require.NoError(t, err)
	assert.Equal(t, vo.StatusExpired, found.Status())

	untouched, err := env.subRepo.GetByID(ctx, recent.ID())
	require.NoError(t, err)
	assert.Equal(t, vo.StatusCancelled, untouched.Status())
}

func TestExpireSubscriptions_Idempotent(t *testing.T) {
	env := newTestEnv(t)
	uc := NewExpireSubscriptionsUseCase(env.subRepo, env.locks, 7, env.log)
	ctx := context.Background()
	now := time.Now().UTC()

	sub := env.seedSubscription(t, "rzp_sub_sw3")
	loaded, err := env.subRepo.GetByID(ctx, sub.ID())
	require.NoError(t, err)
	require.NoError(t, loaded.Activate(nil, nil))
	start := now.AddDate(0, -3, 0)
	require.NoError(t, loaded.Charge(start, start.AddDate(0, 1, 0)))
	require.NoError(t, loaded.Cancel(false, ""))
	require.NoError(t, env.subRepo.Update(ctx, loaded))

	first, err := uc.Execute(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, first)

	second, err := uc.Execute(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, second, "expired rows leave the sweep's result set")
}

func TestSweepPendingCancellations(t *testing.T) {
	env := newTestEnv(t)
	uc := NewSweepPendingCancellationsUseCase(env.subRepo, env.locks, env.log)
	ctx := context.Background()
	now := time.Now().UTC()

	// Scheduled cancellation whose paid period ran out.
	elapsed := env.seedSubscription(t, "rzp_sub_pc1")
	loaded, err := env.subRepo.GetByID(ctx, elapsed.ID())
	require.NoError(t, err)
	require.NoError(t, loaded.Activate(nil, nil))
	start := now.AddDate(0, -2, 0)
	require.NoError(t, loaded.Charge(start, start.AddDate(0, 1, 0)))
	require.NoError(t, loaded.Cancel(true, "downgrade"))
	require.NoError(t, env.subRepo.Update(ctx, loaded))

	// Scheduled cancellation with time left keeps access.
	current := env.seedSubscription(t, "rzp_sub_pc2")
	loaded2, err := env.subRepo.GetByID(ctx, current.ID())
	require.NoError(t, err)
	require.NoError(t, loaded2.Activate(nil, nil))
	require.NoError(t, loaded2.Charge(now, now.AddDate(0, 1, 0)))
	require.NoError(t, loaded2.Cancel(true, ""))
	require.NoError(t, env.subRepo.Update(ctx, loaded2))

	finalized, err := uc.Execute(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, finalized)

	found, err := env.subRepo.GetByID(ctx, elapsed.ID())
	require.NoError(t, err)
	assert.Equal(t, vo.StatusCancelled, found.Status())

	stillPending, err := env.subRepo.GetByID(ctx, current.ID())
	require.NoError(t, err)
	assert.Equal(t, vo.StatusPendingCancellation, stillPending.Status())
	assert.True(t, stillPending.Status().CanUseService())
}
