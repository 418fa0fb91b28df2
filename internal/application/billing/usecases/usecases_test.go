package usecases

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"selah/internal/application/billing/provider"
	"selah/internal/domain/subscription"
	vo "selah/internal/domain/subscription/valueobjects"
	"selah/internal/infrastructure/persistence/models"
	"selah/internal/infrastructure/repository"
	"selah/internal/shared/lock"
	"selah/internal/shared/logger"
)

// stubProvider is a scriptable provider adapter for pipeline tests.
type stubProvider struct {
	details       *provider.SubscriptionDetails
	fetchErr      error
	receipt       *provider.ReceiptValidation
	receiptErr    error
	createResult  *provider.CreateResult
	createErr     error
	cancelErr     error
	resumeErr     error
	cancelledWith []bool
	resumedIDs    []string
	validatedWith []string
}

func (s *stubProvider) CreateSubscription(ctx context.Context, params provider.CreateParams) (*provider.CreateResult, error) {
	if s.createErr != nil {
		return nil, s.createErr
	}
	return s.createResult, nil
}

func (s *stubProvider) CancelSubscription(ctx context.Context, id string, atCycleEnd bool) error {
	s.cancelledWith = append(s.cancelledWith, atCycleEnd)
	return s.cancelErr
}

func (s *stubProvider) ResumeSubscription(ctx context.Context, id string) error {
	s.resumedIDs = append(s.resumedIDs, id)
	return s.resumeErr
}

func (s *stubProvider) FetchSubscription(ctx context.Context, id string) (*provider.SubscriptionDetails, error) {
	if s.fetchErr != nil {
		return nil, s.fetchErr
	}
	return s.details, nil
}

func (s *stubProvider) ValidateReceipt(ctx context.Context, receipt string) (*provider.ReceiptValidation, error) {
	s.validatedWith = append(s.validatedWith, receipt)
	if s.receiptErr != nil {
		return nil, s.receiptErr
	}
	return s.receipt, nil
}

func (s *stubProvider) VerifyWebhookSignature(body []byte, signature string) error {
	return nil
}

type testEnv struct {
	db       *gorm.DB
	subRepo  subscription.Repository
	invRepo  subscription.InvoiceRepository
	histRepo subscription.HistoryRepository
	registry *provider.Registry
	stub     *stubProvider
	locks    *lock.KeyedMutex
	log      logger.Interface
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.SubscriptionModel{},
		&models.SubscriptionHistoryModel{},
		&models.InvoiceModel{},
	))

	log := logger.NewLoggerWithSlog(slog.New(slog.NewTextHandler(io.Discard, nil)))
	stub := &stubProvider{}
	registry := provider.NewRegistry()
	for _, pt := range []vo.ProviderType{vo.ProviderRazorpay, vo.ProviderGooglePlay, vo.ProviderAppStore} {
		registry.Register(pt, func() (provider.Provider, error) { return stub, nil })
	}

	return &testEnv{
		db:       db,
		subRepo:  repository.NewSubscriptionRepository(db, log),
		invRepo:  repository.NewInvoiceRepository(db, log),
		histRepo: repository.NewHistoryRepository(db, log),
		registry: registry,
		stub:     stub,
		locks:    lock.NewKeyedMutex(),
		log:      log,
	}
}

// seedSubscription creates a hosted-checkout subscription in created state.
func (env *testEnv) seedSubscription(t *testing.T, providerSubID string) *subscription.Subscription {
	t.Helper()
	total := 12
	sub, err := subscription.NewSubscription(42, vo.ProviderRazorpay, providerSubID, "plan_monthly", 49900, "INR", &total)
	require.NoError(t, err)
	require.NoError(t, env.subRepo.Create(context.Background(), sub))
	return sub
}

func (env *testEnv) ledgerCount(t *testing.T, subscriptionID uint) int {
	t.Helper()
	entries, err := env.histRepo.ListBySubscriptionID(context.Background(), subscriptionID, 100, 0)
	require.NoError(t, err)
	return len(entries)
}

func timePtr(t time.Time) *time.Time { return &t }

// subscriptionWithTotal seeds a hosted-checkout subscription with a custom
// cycle count.
func subscriptionWithTotal(env *testEnv, userID uint, providerSubID string, total *int) (*subscription.Subscription, error) {
	sub, err := subscription.NewSubscription(userID, vo.ProviderRazorpay, providerSubID, "plan_monthly", 49900, "INR", total)
	if err != nil {
		return nil, err
	}
	if err := env.subRepo.Create(context.Background(), sub); err != nil {
		return nil, err
	}
	return sub, nil
}
