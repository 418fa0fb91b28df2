package usecases

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"selah/internal/domain/subscription"
	vo "selah/internal/domain/subscription/valueobjects"
	"selah/internal/shared/errors"
	"selah/internal/shared/logger"
)

// GetSubscriptionQuery fetches one subscription for its owner.
type GetSubscriptionQuery struct {
	UserID          uint
	SubscriptionSID string
}

// SubscriptionDTO is the read model handed to the HTTP layer.
type SubscriptionDTO struct {
	SID                string                 `json:"sid"`
	Provider           string                 `json:"provider"`
	PlanID             string                 `json:"plan_id"`
	Status             string                 `json:"status"`
	CurrentPeriodStart *time.Time             `json:"current_period_start,omitempty"`
	CurrentPeriodEnd   *time.Time             `json:"current_period_end,omitempty"`
	PaidCount          int                    `json:"paid_count"`
	TotalCount         *int                   `json:"total_count,omitempty"`
	RemainingCount     *int                   `json:"remaining_count,omitempty"`
	Amount             int64                  `json:"amount"`
	Currency           string                 `json:"currency"`
	CancelAtCycleEnd   bool                   `json:"cancel_at_cycle_end"`
	CancelledAt        *time.Time             `json:"cancelled_at,omitempty"`
	Metadata           map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt          time.Time              `json:"created_at"`
}

// NextBillingInfo is present while the subscription will charge again.
type NextBillingInfo struct {
	Date   time.Time `json:"date"`
	Amount int64     `json:"amount"`
}

// GetSubscriptionResult is the full read answer.
type GetSubscriptionResult struct {
	Subscription *SubscriptionDTO `json:"subscription"`
	NextBilling  *NextBillingInfo `json:"next_billing,omitempty"`
	CanCancel    bool             `json:"can_cancel"`
	CanUse       bool             `json:"can_use"`
}

type GetSubscriptionUseCase struct {
	subRepo subscription.Repository
	logger  logger.Interface
}

func NewGetSubscriptionUseCase(subRepo subscription.Repository, log logger.Interface) *GetSubscriptionUseCase {
	return &GetSubscriptionUseCase{subRepo: subRepo, logger: log}
}

func (uc *GetSubscriptionUseCase) Execute(ctx context.Context, query GetSubscriptionQuery) (*GetSubscriptionResult, error) {
	sub, err := uc.subRepo.GetBySID(ctx, query.SubscriptionSID)
	if err != nil {
		if stderrors.Is(err, subscription.ErrSubscriptionNotFound) {
			return nil, errors.NewNotFoundError("subscription not found")
		}
		return nil, fmt.Errorf("failed to load subscription: %w", err)
	}
	if sub.UserID() != query.UserID {
		return nil, errors.NewNotFoundError("subscription not found")
	}

	result := &GetSubscriptionResult{
		Subscription: toDTO(sub),
		CanCancel:    !sub.Status().IsTerminal() && !sub.Provider().IsStore() && sub.Status() != vo.StatusPendingCancellation,
		CanUse:       sub.Status().CanUseService(),
	}
	if sub.Status() == vo.StatusActive && sub.NextBillingAt() != nil && !sub.IsCycleExhausted() {
		result.NextBilling = &NextBillingInfo{Date: *sub.NextBillingAt(), Amount: sub.Amount()}
	}
	return result, nil
}

// ListSubscriptionsUseCase lists a user's subscriptions, newest first.
type ListSubscriptionsUseCase struct {
	subRepo subscription.Repository
	logger  logger.Interface
}

func NewListSubscriptionsUseCase(subRepo subscription.Repository, log logger.Interface) *ListSubscriptionsUseCase {
	return &ListSubscriptionsUseCase{subRepo: subRepo, logger: log}
}

func (uc *ListSubscriptionsUseCase) Execute(ctx context.Context, userID uint) ([]*SubscriptionDTO, error) {
	subs, err := uc.subRepo.ListByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list subscriptions: %w", err)
	}

	dtos := make([]*SubscriptionDTO, 0, len(subs))
	for _, sub := range subs {
		dtos = append(dtos, toDTO(sub))
	}
	return dtos, nil
}

func toDTO(sub *subscription.Subscription) *SubscriptionDTO {
	return &SubscriptionDTO{
		SID:                sub.SID(),
		Provider:           string(sub.Provider()),
		PlanID:             sub.PlanID(),
		Status:             string(sub.Status()),
		CurrentPeriodStart: sub.CurrentPeriodStart(),
		CurrentPeriodEnd:   sub.CurrentPeriodEnd(),
		PaidCount:          sub.PaidCount(),
		TotalCount:         sub.TotalCount(),
		RemainingCount:     sub.RemainingCount(),
		Amount:             sub.Amount(),
		Currency:           sub.Currency(),
		CancelAtCycleEnd:   sub.CancelAtCycleEnd(),
		CancelledAt:        sub.CancelledAt(),
		Metadata:           sub.Metadata(),
		CreatedAt:          sub.CreatedAt(),
	}
}
