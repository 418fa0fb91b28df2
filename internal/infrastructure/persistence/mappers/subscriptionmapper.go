package mappers

import (
	"encoding/json"
	"fmt"

	"gorm.io/datatypes"

	"selah/internal/domain/subscription"
	vo "selah/internal/domain/subscription/valueobjects"
	"selah/internal/infrastructure/persistence/models"
)

type SubscriptionMapper interface {
	ToEntity(model *models.SubscriptionModel) (*subscription.Subscription, error)
	ToModel(entity *subscription.Subscription) (*models.SubscriptionModel, error)
	ToEntities(models []*models.SubscriptionModel) ([]*subscription.Subscription, error)
}

type subscriptionMapperImpl struct{}

func NewSubscriptionMapper() SubscriptionMapper {
	return &subscriptionMapperImpl{}
}

func (m *subscriptionMapperImpl) ToEntity(model *models.SubscriptionModel) (*subscription.Subscription, error) {
	if model == nil {
		return nil, nil
	}

	var metadata map[string]interface{}
	if model.Metadata != nil {
		if err := json.Unmarshal(model.Metadata, &metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
	}

	return subscription.Reconstruct(subscription.ReconstructParams{
		DBID:                   model.ID,
		SID:                    model.SID,
		UserID:                 model.UserID,
		Provider:               vo.ProviderType(model.Provider),
		ProviderSubscriptionID: model.ProviderSubscriptionID,
		PlanID:                 model.PlanID,
		Status:                 vo.Status(model.Status),
		CurrentPeriodStart:     model.CurrentPeriodStart,
		CurrentPeriodEnd:       model.CurrentPeriodEnd,
		NextBillingAt:          model.NextBillingAt,
		TotalCount:             model.TotalCount,
		PaidCount:              model.PaidCount,
		Amount:                 model.Amount,
		Currency:               model.Currency,
		CancelAtCycleEnd:       model.CancelAtCycleEnd,
		CancelledAt:            model.CancelledAt,
		CancelReason:           model.CancelReason,
		Metadata:               metadata,
		LastEventAt:            model.LastEventAt,
		Version:                model.Version,
		CreatedAt:              model.CreatedAt,
		UpdatedAt:              model.UpdatedAt,
	})
}

func (m *subscriptionMapperImpl) ToModel(entity *subscription.Subscription) (*models.SubscriptionModel, error) {
	if entity == nil {
		return nil, nil
	}

	var metadata datatypes.JSON
	if len(entity.Metadata()) > 0 {
		encoded, err := json.Marshal(entity.Metadata())
		if err != nil {
			return nil, fmt.Errorf("failed to marshal metadata: %w", err)
		}
		metadata = encoded
	}

	return &models.SubscriptionModel{
		ID:                     entity.ID(),
		SID:                    entity.SID(),
		UserID:                 entity.UserID(),
		Provider:               string(entity.Provider()),
		ProviderSubscriptionID: entity.ProviderSubscriptionID(),
		PlanID:                 entity.PlanID(),
		Status:                 string(entity.Status()),
		CurrentPeriodStart:     entity.CurrentPeriodStart(),
		CurrentPeriodEnd:       entity.CurrentPeriodEnd(),
		NextBillingAt:          entity.NextBillingAt(),
		TotalCount:             entity.TotalCount(),
		PaidCount:              entity.PaidCount(),
		Amount:                 entity.Amount(),
		Currency:               entity.Currency(),
		CancelAtCycleEnd:       entity.CancelAtCycleEnd(),
		CancelledAt:            entity.CancelledAt(),
		CancelReason:           entity.CancelReason(),
		Metadata:               metadata,
		LastEventAt:            entity.LastEventAt(),
		Version:                entity.Version(),
		CreatedAt:              entity.CreatedAt(),
		UpdatedAt:              entity.UpdatedAt(),
	}, nil
}

func (m *subscriptionMapperImpl) ToEntities(subscriptionModels []*models.SubscriptionModel) ([]*subscription.Subscription, error) {
	entities := make([]*subscription.Subscription, 0, len(subscriptionModels))
	for _, model := range subscriptionModels {
		entity, err := m.ToEntity(model)
		if err != nil {
			return nil, err
		}
		entities = append(entities, entity)
	}
	return entities, nil
}
