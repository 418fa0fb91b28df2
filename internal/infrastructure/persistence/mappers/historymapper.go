package mappers

import (
	"encoding/json"
	"fmt"

	"gorm.io/datatypes"

	"selah/internal/domain/subscription"
	vo "selah/internal/domain/subscription/valueobjects"
	"selah/internal/infrastructure/persistence/models"
)

type HistoryMapper interface {
	ToEntity(model *models.SubscriptionHistoryModel) (*subscription.History, error)
	ToModel(entity *subscription.History) (*models.SubscriptionHistoryModel, error)
	ToEntities(models []*models.SubscriptionHistoryModel) ([]*subscription.History, error)
}

type historyMapperImpl struct{}

func NewHistoryMapper() HistoryMapper {
	return &historyMapperImpl{}
}

func (m *historyMapperImpl) ToEntity(model *models.SubscriptionHistoryModel) (*subscription.History, error) {
	if model == nil {
		return nil, nil
	}

	var payload map[string]interface{}
	if model.Payload != nil {
		if err := json.Unmarshal(model.Payload, &payload); err != nil {
			return nil, fmt.Errorf("failed to unmarshal payload: %w", err)
		}
	}

	var prevStatus *vo.Status
	if model.PrevStatus != nil {
		status := vo.Status(*model.PrevStatus)
		prevStatus = &status
	}

	return subscription.ReconstructHistory(subscription.ReconstructHistoryParams{
		DBID:            model.ID,
		EID:             model.EID,
		SubscriptionID:  model.SubscriptionID,
		UserID:          model.UserID,
		EventType:       vo.EventType(model.EventType),
		PrevStatus:      prevStatus,
		NewStatus:       vo.Status(model.NewStatus),
		ProviderEventID: model.ProviderEventID,
		PaymentID:       model.PaymentID,
		PaymentAmount:   model.PaymentAmount,
		PaymentStatus:   model.PaymentStatus,
		Payload:         payload,
		Note:            model.Note,
		CreatedAt:       model.CreatedAt,
	}), nil
}

func (m *historyMapperImpl) ToModel(entity *subscription.History) (*models.SubscriptionHistoryModel, error) {
	if entity == nil {
		return nil, nil
	}

	var payload datatypes.JSON
	if len(entity.Payload()) > 0 {
		encoded, err := json.Marshal(entity.Payload())
		if err != nil {
			return nil, fmt.Errorf("failed to marshal payload: %w", err)
		}
		payload = encoded
	}

	var prevStatus *string
	if entity.PrevStatus() != nil {
		status := string(*entity.PrevStatus())
		prevStatus = &status
	}

	return &models.SubscriptionHistoryModel{
		ID:              entity.ID(),
		EID:             entity.EID(),
		SubscriptionID:  entity.SubscriptionID(),
		UserID:          entity.UserID(),
		EventType:       string(entity.EventType()),
		PrevStatus:      prevStatus,
		NewStatus:       string(entity.NewStatus()),
		ProviderEventID: entity.ProviderEventID(),
		PaymentID:       entity.PaymentID(),
		PaymentAmount:   entity.PaymentAmount(),
		PaymentStatus:   entity.PaymentStatus(),
		Payload:         payload,
		Note:            entity.Note(),
		CreatedAt:       entity.CreatedAt(),
	}, nil
}

func (m *historyMapperImpl) ToEntities(historyModels []*models.SubscriptionHistoryModel) ([]*subscription.History, error) {
	entities := make([]*subscription.History, 0, len(historyModels))
	for _, model := range historyModels {
		entity, err := m.ToEntity(model)
		if err != nil {
			return nil, err
		}
		entities = append(entities, entity)
	}
	return entities, nil
}
