package handlers

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"selah/internal/application/billing/provider"
	billingUsecases "selah/internal/application/billing/usecases"
	"selah/internal/domain/subscription"
	vo "selah/internal/domain/subscription/valueobjects"
	"selah/internal/infrastructure/persistence/models"
	"selah/internal/infrastructure/repository"
	"selah/internal/shared/lock"
	"selah/internal/shared/logger"
)

const testWebhookSecret = "whsec_test"

// fakeProvider is a scriptable adapter for handler tests.
type fakeProvider struct {
	createResult *provider.CreateResult
	createErr    error
	cancelErr    error
	resumeErr    error
	receipt      *provider.ReceiptValidation
	receiptErr   error
	details      *provider.SubscriptionDetails
}

func (f *fakeProvider) CreateSubscription(ctx context.Context, params provider.CreateParams) (*provider.CreateResult, error) {
	return f.createResult, f.createErr
}

func (f *fakeProvider) CancelSubscription(ctx context.Context, id string, atCycleEnd bool) error {
	return f.cancelErr
}

func (f *fakeProvider) ResumeSubscription(ctx context.Context, id string) error {
	return f.resumeErr
}

func (f *fakeProvider) FetchSubscription(ctx context.Context, id string) (*provider.SubscriptionDetails, error) {
	return f.details, nil
}

func (f *fakeProvider) ValidateReceipt(ctx context.Context, receipt string) (*provider.ReceiptValidation, error) {
	if f.receiptErr != nil {
		return nil, f.receiptErr
	}
	return f.receipt, nil
}

func (f *fakeProvider) VerifyWebhookSignature(body []byte, signature string) error {
	return nil
}

type handlerEnv struct {
	subRepo subscription.Repository
	invRepo subscription.InvoiceRepository
	fake    *fakeProvider
	router  *gin.Engine
}

func newHandlerEnv(t *testing.T) *handlerEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.SubscriptionModel{},
		&models.SubscriptionHistoryModel{},
		&models.InvoiceModel{},
	))

	log := logger.NewLoggerWithSlog(slog.New(slog.NewTextHandler(io.Discard, nil)))
	subRepo := repository.NewSubscriptionRepository(db, log)
	invRepo := repository.NewInvoiceRepository(db, log)
	locks := lock.NewKeyedMutex()

	fake := &fakeProvider{}
	registry := provider.NewRegistry()
	for _, pt := range []vo.ProviderType{vo.ProviderRazorpay, vo.ProviderGooglePlay, vo.ProviderAppStore} {
		registry.Register(pt, func() (provider.Provider, error) { return fake, nil })
	}

	processUC := billingUsecases.NewProcessWebhookEventUseCase(subRepo, invRepo, registry, locks, log)
	submitUC := billingUsecases.NewSubmitReceiptUseCase(subRepo, registry, locks, log)
	createUC := billingUsecases.NewCreateSubscriptionUseCase(subRepo, registry, log)
	cancelUC := billingUsecases.NewCancelSubscriptionUseCase(subRepo, registry, locks, log)
	resumeUC := billingUsecases.NewResumeSubscriptionUseCase(subRepo, registry, locks, log)
	getUC := billingUsecases.NewGetSubscriptionUseCase(subRepo, log)
	listUC := billingUsecases.NewListSubscriptionsUseCase(subRepo, log)

	webhookHandler := NewWebhookHandler(processUC, testWebhookSecret, log)
	receiptHandler := NewReceiptHandler(submitUC, log)
	subscriptionHandler := NewSubscriptionHandler(createUC, cancelUC, resumeUC, getUC, listUC, log)

	router := gin.New()
	router.POST("/api/v1/webhooks/razorpay", webhookHandler.HandleRazorpay)

	authed := router.Group("/api/v1")
	authed.Use(userContextForTest())
	authed.POST("/receipts", receiptHandler.SubmitReceipt)
	authed.POST("/subscriptions", subscriptionHandler.Create)
	authed.GET("/subscriptions", subscriptionHandler.List)
	authed.GET("/subscriptions/:sid", subscriptionHandler.Get)
	authed.DELETE("/subscriptions/:sid", subscriptionHandler.Cancel)
	authed.POST("/subscriptions/:sid/resume", subscriptionHandler.Resume)

	return &handlerEnv{subRepo: subRepo, invRepo: invRepo, fake: fake, router: router}
}

// userContextForTest mirrors middleware.UserContext without importing it,
// keeping the handler package tests self-contained.
func userContextForTest() gin.HandlerFunc {
	return func(c *gin.Context) {
		if raw := c.GetHeader("X-User-ID"); raw == "7" {
			c.Set("user_id", uint(7))
		}
		c.Next()
	}
}

func signBody(body []byte) string {
	mac := hmac.New(sha256.New, []byte(testWebhookSecret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// chargeSeeded gives a seeded subscription a paid period so cycle-end
// cancellation has a period to run out.
func chargeSeeded(t *testing.T, env *handlerEnv, subID uint) {
	t.Helper()
	ctx := context.Background()
	sub, err := env.subRepo.GetByID(ctx, subID)
	require.NoError(t, err)
	now := time.Now().UTC()
	require.NoError(t, sub.Charge(now, now.AddDate(0, 1, 0)))
	require.NoError(t, env.subRepo.Update(ctx, sub))
}

func (env *handlerEnv) seedActiveSubscription(t *testing.T, providerSubID string) *subscription.Subscription {
	t.Helper()
	total := 12
	sub, err := subscription.NewSubscription(7, vo.ProviderRazorpay, providerSubID, "plan_monthly", 49900, "INR", &total)
	require.NoError(t, err)
	require.NoError(t, sub.Authenticate())
	require.NoError(t, sub.Activate(nil, nil))
	require.NoError(t, env.subRepo.Create(context.Background(), sub))
	return sub
}
