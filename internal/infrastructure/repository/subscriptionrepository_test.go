package repository

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"selah/internal/domain/subscription"
	vo "selah/internal/domain/subscription/valueobjects"
	"selah/internal/infrastructure/persistence/models"
	"selah/internal/shared/logger"
)

func setupTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	err = db.AutoMigrate(
		&models.SubscriptionModel{},
		&models.SubscriptionHistoryModel{},
		&models.InvoiceModel{},
	)
	require.NoError(t, err)
	return db
}

func testLogger() logger.Interface {
	return logger.NewLoggerWithSlog(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func createTestSubscription(t *testing.T, repo subscription.Repository, providerSubID string) *subscription.Subscription {
	t.Helper()
	total := 12
	sub, err := subscription.NewSubscription(42, vo.ProviderRazorpay, providerSubID, "plan_monthly", 49900, "INR", &total)
	require.NoError(t, err)
	require.NoError(t, repo.Create(context.Background(), sub))
	return sub
}

func TestSubscriptionRepository_CreateAndGet(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSubscriptionRepository(db, testLogger())
	ctx := context.Background()

	sub := createTestSubscription(t, repo, "rzp_sub_001")
	assert.NotZero(t, sub.ID())

	found, err := repo.GetByID(ctx, sub.ID())
	require.NoError(t, err)
	assert.Equal(t, sub.SID(), found.SID())
	assert.Equal(t, vo.StatusCreated, found.Status())
	assert.Equal(t, int64(49900), found.Amount())

	bySID, err := repo.GetBySID(ctx, sub.SID())
	require.NoError(t, err)
	assert.Equal(t, sub.ID(), bySID.ID())

	byProvider, err := repo.GetByProviderSubscriptionID(ctx, vo.ProviderRazorpay, "rzp_sub_001")
	require.NoError(t, err)
	assert.Equal(t, sub.ID(), byProvider.ID())
}

func TestSubscriptionRepository_NotFound(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSubscriptionRepository(db, testLogger())
	ctx := context.Background()

	_, err := repo.GetByID(ctx, 999)
	assert.ErrorIs(t, err, subscription.ErrSubscriptionNotFound)

	_, err = repo.GetByProviderSubscriptionID(ctx, vo.ProviderRazorpay, "missing")
	assert.ErrorIs(t, err, subscription.ErrSubscriptionNotFound)
}

func TestSubscriptionRepository_Update_VersionConflict(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSubscriptionRepository(db, testLogger())
	ctx := context.Background()

	created := createTestSubscription(t, repo, "rzp_sub_002")

	// Two loads of the same row race to update.
	first, err := repo.GetByID(ctx, created.ID())
	require.NoError(t, err)
	second, err := repo.GetByID(ctx, created.ID())
	require.NoError(t, err)

	require.NoError(t, first.Authenticate())
	require.NoError(t, repo.Update(ctx, first))

	require.NoError(t, second.Authenticate())
	err = repo.Update(ctx, second)
	assert.ErrorIs(t, err, subscription.ErrVersionConflict)
}

func TestSubscriptionRepository_Update_MultipleMutations(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSubscriptionRepository(db, testLogger())
	ctx := context.Background()

	created := createTestSubscription(t, repo, "rzp_sub_003")

	loaded, err := repo.GetByID(ctx, created.ID())
	require.NoError(t, err)
	require.NoError(t, loaded.Authenticate())
	require.NoError(t, loaded.Activate(nil, nil))
	require.NoError(t, repo.Update(ctx, loaded))

	found, err := repo.GetByID(ctx, created.ID())
	require.NoError(t, err)
	assert.Equal(t, vo.StatusActive, found.Status())
	assert.Equal(t, loaded.Version(), found.Version())
}

func TestSubscriptionRepository_RecordTransition(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSubscriptionRepository(db, testLogger())
	historyRepo := NewHistoryRepository(db, testLogger())
	ctx := context.Background()

	sub := createTestSubscription(t, repo, "rzp_sub_004")

	loaded, err := repo.GetByID(ctx, sub.ID())
	require.NoError(t, err)
	prev := loaded.Status()
	require.NoError(t, loaded.Authenticate())

	entry, err := subscription.NewHistory(loaded.ID(), loaded.UserID(), vo.EventAuthenticated, &prev, loaded.Status(), "evt_rzp_100", subscription.HistoryParams{})
	require.NoError(t, err)
	require.NoError(t, repo.RecordTransition(ctx, loaded, entry))
	assert.NotZero(t, entry.ID())

	found, err := repo.GetByID(ctx, sub.ID())
	require.NoError(t, err)
	assert.Equal(t, vo.StatusAuthenticated, found.Status())

	entries, err := historyRepo.ListBySubscriptionID(ctx, sub.ID(), 10, 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "evt_rzp_100", entries[0].ProviderEventID())
}

func TestSubscriptionRepository_RecordTransition_DuplicateEvent(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSubscriptionRepository(db, testLogger())
	historyRepo := NewHistoryRepository(db, testLogger())
	ctx := context.Background()

	sub := createTestSubscription(t, repo, "rzp_sub_005")

	loaded, err := repo.GetByID(ctx, sub.ID())
	require.NoError(t, err)
	prev := loaded.Status()
	require.NoError(t, loaded.Authenticate())
	entry, err := subscription.NewHistory(loaded.ID(), loaded.UserID(), vo.EventAuthenticated, &prev, loaded.Status(), "evt_rzp_dup", subscription.HistoryParams{})
	require.NoError(t, err)
	require.NoError(t, repo.RecordTransition(ctx, loaded, entry))

	// Redelivery: same provider event against the fresh row.
	reloaded, err := repo.GetByID(ctx, sub.ID())
	require.NoError(t, err)
	prev2 := reloaded.Status()
	require.NoError(t, reloaded.Activate(nil, nil))
	dup, err := subscription.NewHistory(reloaded.ID(), reloaded.UserID(), vo.EventAuthenticated, &prev2, reloaded.Status(), "evt_rzp_dup", subscription.HistoryParams{})
	require.NoError(t, err)

	err = repo.RecordTransition(ctx, reloaded, dup)
	assert.ErrorIs(t, err, subscription.ErrDuplicateEvent)

	// The rolled-back transition must leave state and ledger untouched.
	found, err := repo.GetByID(ctx, sub.ID())
	require.NoError(t, err)
	assert.Equal(t, vo.StatusAuthenticated, found.Status())

	entries, err := historyRepo.ListBySubscriptionID(ctx, sub.ID(), 10, 0)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestSubscriptionRepository_FindDueForExpiry(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSubscriptionRepository(db, testLogger())
	ctx := context.Background()
	now := time.Now().UTC()

	// Cancelled long ago: due.
	due := createTestSubscription(t, repo, "rzp_sub_due")
	loaded, err := repo.GetByID(ctx, due.ID())
	require.NoError(t, err)
	require.NoError(t, loaded.Activate(nil, nil))
	start := now.AddDate(0, -3, 0)
	require.NoError(t, loaded.Charge(start, start.AddDate(0, 1, 0)))
	require.NoError(t, loaded.Cancel(false, ""))
	require.NoError(t, repo.Update(ctx, loaded))

	// Active: never due.
	activeSub := createTestSubscription(t, repo, "rzp_sub_active")
	loadedActive, err := repo.GetByID(ctx, activeSub.ID())
	require.NoError(t, err)
	require.NoError(t, loadedActive.Activate(nil, nil))
	require.NoError(t, loadedActive.Charge(now, now.AddDate(0, 1, 0)))
	require.NoError(t, repo.Update(ctx, loadedActive))

	found, err := repo.FindDueForExpiry(ctx, now, 7, 100)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, due.ID(), found[0].ID())
}

func TestSubscriptionRepository_FindElapsedPendingCancellations(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSubscriptionRepository(db, testLogger())
	ctx := context.Background()
	now := time.Now().UTC()

	elapsed := createTestSubscription(t, repo, "rzp_sub_pc")
	loaded, err := repo.GetByID(ctx, elapsed.ID())
	require.NoError(t, err)
	require.NoError(t, loaded.Activate(nil, nil))
	start := now.AddDate(0, -2, 0)
	require.NoError(t, loaded.Charge(start, start.AddDate(0, 1, 0)))
	require.NoError(t, loaded.Cancel(true, "downgrade"))
	require.NoError(t, repo.Update(ctx, loaded))

	stillPaid := createTestSubscription(t, repo, "rzp_sub_pc2")
	loaded2, err := repo.GetByID(ctx, stillPaid.ID())
	require.NoError(t, err)
	require.NoError(t, loaded2.Activate(nil, nil))
	require.NoError(t, loaded2.Charge(now, now.AddDate(0, 1, 0)))
	require.NoError(t, loaded2.Cancel(true, ""))
	require.NoError(t, repo.Update(ctx, loaded2))

	found, err := repo.FindElapsedPendingCancellations(ctx, now, 100)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, elapsed.ID(), found[0].ID())
}

func TestInvoiceRepository_RoundTrip(t *testing.T) {
	db := setupTestDB(t)
	subRepo := NewSubscriptionRepository(db, testLogger())
	invoiceRepo := NewInvoiceRepository(db, testLogger())
	ctx := context.Background()

	sub := createTestSubscription(t, subRepo, "rzp_sub_inv")

	inv, err := subscription.NewInvoice(sub.ID(), sub.UserID(), "pay_001", 49900, "INR", subscription.InvoiceStatusPaid, "card")
	require.NoError(t, err)
	now := time.Now().UTC()
	require.NoError(t, inv.SetPeriod(now, now.AddDate(0, 1, 0)))
	inv.MarkPaid(now)
	require.NoError(t, invoiceRepo.Create(ctx, inv))

	found, err := invoiceRepo.GetByProviderPaymentID(ctx, "pay_001")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, subscription.InvoiceStatusPaid, found.Status())
	assert.Equal(t, sub.ID(), found.SubscriptionID())
	require.NotNil(t, found.PaidAt())

	listed, err := invoiceRepo.ListBySubscriptionID(ctx, sub.ID())
	require.NoError(t, err)
	assert.Len(t, listed, 1)

	missing, err := invoiceRepo.GetByProviderPaymentID(ctx, "pay_missing")
	require.NoError(t, err)
	assert.Nil(t, missing)
}
