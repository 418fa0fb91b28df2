package usecases

import (
	"context"
	stderrors "errors"
	"fmt"

	"selah/internal/application/billing/provider"
	"selah/internal/domain/subscription"
	vo "selah/internal/domain/subscription/valueobjects"
	"selah/internal/shared/errors"
	"selah/internal/shared/logger"
)

// CreateSubscriptionCommand opens a hosted-checkout subscription.
type CreateSubscriptionCommand struct {
	UserID     uint
	PlanID     string
	Amount     int64
	Currency   string
	TotalCount *int // nil = until cancelled
}

// CreateSubscriptionResult carries what the client needs to complete
// checkout.
type CreateSubscriptionResult struct {
	SubscriptionSID        string
	ProviderSubscriptionID string
	AuthorizationURL       string
	Amount                 int64
	Currency               string
	Status                 vo.Status
}

// CreateSubscriptionUseCase registers the subscription with the hosted
// checkout provider first, then persists the local row in created state. The
// webhooks drive it forward from there.
type CreateSubscriptionUseCase struct {
	subRepo  subscription.Repository
	registry *provider.Registry
	logger   logger.Interface
}

func NewCreateSubscriptionUseCase(subRepo subscription.Repository, registry *provider.Registry, log logger.Interface) *CreateSubscriptionUseCase {
	return &CreateSubscriptionUseCase{subRepo: subRepo, registry: registry, logger: log}
}

func (uc *CreateSubscriptionUseCase) Execute(ctx context.Context, cmd CreateSubscriptionCommand) (*CreateSubscriptionResult, error) {
	if cmd.UserID == 0 {
		return nil, errors.NewValidationError("user ID is required", "")
	}
	if cmd.PlanID == "" {
		return nil, errors.NewValidationError("plan ID is required", "")
	}
	if cmd.Currency == "" {
		return nil, errors.NewValidationError("currency is required", "")
	}

	adapter, err := uc.registry.Get(vo.ProviderRazorpay)
	if err != nil {
		return nil, err
	}

	result, err := adapter.CreateSubscription(ctx, provider.CreateParams{
		PlanID:     cmd.PlanID,
		TotalCount: cmd.TotalCount,
		UserID:     cmd.UserID,
	})
	if err != nil {
		uc.logger.Errorw("provider subscription creation failed",
			"user_id", cmd.UserID, "plan_id", cmd.PlanID, "error", err)
		return nil, err
	}

	sub, err := subscription.NewSubscription(cmd.UserID, vo.ProviderRazorpay, result.ProviderSubscriptionID, cmd.PlanID, cmd.Amount, cmd.Currency, cmd.TotalCount)
	if err != nil {
		return nil, fmt.Errorf("failed to build subscription: %w", err)
	}

	if err := uc.subRepo.Create(ctx, sub); err != nil {
		// The provider-side subscription exists but the local row does not;
		// the first webhook will 404 and the provider will retry, so surface
		// the failure loudly.
		uc.logger.Errorw("failed to persist subscription after provider creation",
			"provider_subscription_id", result.ProviderSubscriptionID, "error", err)
		return nil, err
	}

	entry, err := subscription.NewHistory(sub.ID(), sub.UserID(), vo.EventCreated, nil, sub.Status(),
		"local:"+result.ProviderSubscriptionID+":created", subscription.HistoryParams{
			Note: "subscription registered with provider",
		})
	if err != nil {
		return nil, err
	}
	if err := uc.subRepo.RecordEvent(ctx, entry); err != nil && !stderrors.Is(err, subscription.ErrDuplicateEvent) {
		return nil, err
	}

	uc.logger.Infow("subscription created",
		"subscription_id", sub.ID(),
		"sid", sub.SID(),
		"user_id", cmd.UserID,
		"plan_id", cmd.PlanID,
	)

	return &CreateSubscriptionResult{
		SubscriptionSID:        sub.SID(),
		ProviderSubscriptionID: result.ProviderSubscriptionID,
		AuthorizationURL:       result.ShortURL,
		Amount:                 cmd.Amount,
		Currency:               cmd.Currency,
		Status:                 sub.Status(),
	}, nil
}
