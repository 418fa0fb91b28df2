package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"selah/internal/domain/subscription"
	"selah/internal/infrastructure/persistence/mappers"
	"selah/internal/infrastructure/persistence/models"
	"selah/internal/shared/db"
	"selah/internal/shared/logger"
)

type InvoiceRepositoryImpl struct {
	db     *gorm.DB
	mapper mappers.InvoiceMapper
	logger logger.Interface
}

func NewInvoiceRepository(gormDB *gorm.DB, log logger.Interface) subscription.InvoiceRepository {
	return &InvoiceRepositoryImpl{
		db:     gormDB,
		mapper: mappers.NewInvoiceMapper(),
		logger: log,
	}
}

func (r *InvoiceRepositoryImpl) getDB(ctx context.Context) *gorm.DB {
	return db.GetTxFromContext(ctx, r.db)
}

func (r *InvoiceRepositoryImpl) Create(ctx context.Context, inv *subscription.Invoice) error {
	model := r.mapper.ToModel(inv)
	if err := r.getDB(ctx).WithContext(ctx).Create(model).Error; err != nil {
		r.logger.Errorw("failed to create invoice", "provider_payment_id", inv.ProviderPaymentID(), "error", err)
		return fmt.Errorf("failed to create invoice: %w", err)
	}
	return inv.SetID(model.ID)
}

func (r *InvoiceRepositoryImpl) GetByProviderPaymentID(ctx context.Context, providerPaymentID string) (*subscription.Invoice, error) {
	var model models.InvoiceModel
	err := r.getDB(ctx).WithContext(ctx).
		Where("provider_payment_id = ?", providerPaymentID).
		First(&model).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		r.logger.Errorw("failed to get invoice", "provider_payment_id", providerPaymentID, "error", err)
		return nil, fmt.Errorf("failed to get invoice: %w", err)
	}
	return r.mapper.ToEntity(&model), nil
}

func (r *InvoiceRepositoryImpl) ListBySubscriptionID(ctx context.Context, subscriptionID uint) ([]*subscription.Invoice, error) {
	var invoiceModels []*models.InvoiceModel
	err := r.getDB(ctx).WithContext(ctx).
		Where("subscription_id = ?", subscriptionID).
		Order("created_at DESC").
		Find(&invoiceModels).Error
	if err != nil {
		r.logger.Errorw("failed to list invoices", "subscription_id", subscriptionID, "error", err)
		return nil, fmt.Errorf("failed to list invoices: %w", err)
	}
	return r.mapper.ToEntities(invoiceModels), nil
}

func (r *InvoiceRepositoryImpl) Update(ctx context.Context, inv *subscription.Invoice) error {
	model := r.mapper.ToModel(inv)
	err := r.getDB(ctx).WithContext(ctx).
		Model(&models.InvoiceModel{}).
		Where("id = ?", model.ID).
		Select("*").
		Omit("id", "created_at").
		Updates(model).Error
	if err != nil {
		r.logger.Errorw("failed to update invoice", "id", model.ID, "error", err)
		return fmt.Errorf("failed to update invoice: %w", err)
	}
	return nil
}
