package mappers

import (
	"selah/internal/domain/subscription"
	"selah/internal/infrastructure/persistence/models"
)

type InvoiceMapper interface {
	ToEntity(model *models.InvoiceModel) *subscription.Invoice
	ToModel(entity *subscription.Invoice) *models.InvoiceModel
	ToEntities(models []*models.InvoiceModel) []*subscription.Invoice
}

type invoiceMapperImpl struct{}

func NewInvoiceMapper() InvoiceMapper {
	return &invoiceMapperImpl{}
}

func (m *invoiceMapperImpl) ToEntity(model *models.InvoiceModel) *subscription.Invoice {
	if model == nil {
		return nil
	}
	return subscription.ReconstructInvoice(subscription.ReconstructInvoiceParams{
		DBID:              model.ID,
		IID:               model.IID,
		SubscriptionID:    model.SubscriptionID,
		UserID:            model.UserID,
		ProviderPaymentID: model.ProviderPaymentID,
		Amount:            model.Amount,
		Currency:          model.Currency,
		Status:            model.Status,
		Method:            model.Method,
		PeriodStart:       model.PeriodStart,
		PeriodEnd:         model.PeriodEnd,
		PaidAt:            model.PaidAt,
		CreatedAt:         model.CreatedAt,
		UpdatedAt:         model.UpdatedAt,
	})
}

func (m *invoiceMapperImpl) ToModel(entity *subscription.Invoice) *models.InvoiceModel {
	if entity == nil {
		return nil
	}
	return &models.InvoiceModel{
		ID:                entity.ID(),
		IID:               entity.IID(),
		SubscriptionID:    entity.SubscriptionID(),
		UserID:            entity.UserID(),
		ProviderPaymentID: entity.ProviderPaymentID(),
		Amount:            entity.Amount(),
		Currency:          entity.Currency(),
		Status:            entity.Status(),
		Method:            entity.Method(),
		PeriodStart:       entity.PeriodStart(),
		PeriodEnd:         entity.PeriodEnd(),
		PaidAt:            entity.PaidAt(),
		CreatedAt:         entity.CreatedAt(),
		UpdatedAt:         entity.UpdatedAt(),
	}
}

func (m *invoiceMapperImpl) ToEntities(invoiceModels []*models.InvoiceModel) []*subscription.Invoice {
	entities := make([]*subscription.Invoice, 0, len(invoiceModels))
	for _, model := range invoiceModels {
		entities = append(entities, m.ToEntity(model))
	}
	return entities
}
