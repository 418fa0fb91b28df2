package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"selah/internal/domain/subscription"
	"selah/internal/infrastructure/persistence/mappers"
	"selah/internal/infrastructure/persistence/models"
	"selah/internal/shared/db"
	"selah/internal/shared/errors"
	"selah/internal/shared/logger"
)

type HistoryRepositoryImpl struct {
	db     *gorm.DB
	mapper mappers.HistoryMapper
	logger logger.Interface
}

func NewHistoryRepository(gormDB *gorm.DB, log logger.Interface) subscription.HistoryRepository {
	return &HistoryRepositoryImpl{
		db:     gormDB,
		mapper: mappers.NewHistoryMapper(),
		logger: log,
	}
}

func (r *HistoryRepositoryImpl) getDB(ctx context.Context) *gorm.DB {
	return db.GetTxFromContext(ctx, r.db)
}

func (r *HistoryRepositoryImpl) Create(ctx context.Context, entry *subscription.History) error {
	model, err := r.mapper.ToModel(entry)
	if err != nil {
		return fmt.Errorf("failed to map history entry: %w", err)
	}

	if err := r.getDB(ctx).WithContext(ctx).Create(model).Error; err != nil {
		if errors.IsDuplicateError(err) {
			return subscription.ErrDuplicateEvent
		}
		r.logger.Errorw("failed to create history entry", "error", err)
		return fmt.Errorf("failed to create history entry: %w", err)
	}
	return entry.SetID(model.ID)
}

func (r *HistoryRepositoryImpl) ListBySubscriptionID(ctx context.Context, subscriptionID uint, limit, offset int) ([]*subscription.History, error) {
	var historyModels []*models.SubscriptionHistoryModel
	err := r.getDB(ctx).WithContext(ctx).
		Where("subscription_id = ?", subscriptionID).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Offset(offset).
		Find(&historyModels).Error
	if err != nil {
		r.logger.Errorw("failed to list history entries", "subscription_id", subscriptionID, "error", err)
		return nil, fmt.Errorf("failed to list history entries: %w", err)
	}
	return r.mapper.ToEntities(historyModels)
}

func (r *HistoryRepositoryImpl) ExistsByProviderEventID(ctx context.Context, subscriptionID uint, providerEventID string) (bool, error) {
	var count int64
	err := r.getDB(ctx).WithContext(ctx).
		Model(&models.SubscriptionHistoryModel{}).
		Where("subscription_id = ? AND provider_event_id = ?", subscriptionID, providerEventID).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check event existence: %w", err)
	}
	return count > 0, nil
}
