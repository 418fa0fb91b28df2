package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"selah/internal/domain/subscription"
	vo "selah/internal/domain/subscription/valueobjects"
	"selah/internal/infrastructure/persistence/mappers"
	"selah/internal/infrastructure/persistence/models"
	"selah/internal/shared/db"
	"selah/internal/shared/errors"
	"selah/internal/shared/logger"
)

type SubscriptionRepositoryImpl struct {
	db            *gorm.DB
	mapper        mappers.SubscriptionMapper
	historyMapper mappers.HistoryMapper
	logger        logger.Interface
}

func NewSubscriptionRepository(gormDB *gorm.DB, log logger.Interface) subscription.Repository {
	return &SubscriptionRepositoryImpl{
		db:            gormDB,
		mapper:        mappers.NewSubscriptionMapper(),
		historyMapper: mappers.NewHistoryMapper(),
		logger:        log,
	}
}

// getDB prefers the transaction bound to the context over the root handle.
func (r *SubscriptionRepositoryImpl) getDB(ctx context.Context) *gorm.DB {
	return db.GetTxFromContext(ctx, r.db)
}

func (r *SubscriptionRepositoryImpl) Create(ctx context.Context, sub *subscription.Subscription) error {
	model, err := r.mapper.ToModel(sub)
	if err != nil {
		r.logger.Errorw("failed to map subscription entity to model", "error", err)
		return fmt.Errorf("failed to map subscription entity: %w", err)
	}

	if err := r.getDB(ctx).WithContext(ctx).Create(model).Error; err != nil {
		r.logger.Errorw("failed to create subscription in database", "error", err)
		return fmt.Errorf("failed to create subscription: %w", err)
	}

	if err := sub.SetID(model.ID); err != nil {
		return fmt.Errorf("failed to set subscription ID: %w", err)
	}

	r.logger.Infow("subscription created",
		"id", model.ID, "sid", model.SID, "user_id", model.UserID, "provider", model.Provider)
	return nil
}

func (r *SubscriptionRepositoryImpl) GetByID(ctx context.Context, dbID uint) (*subscription.Subscription, error) {
	var model models.SubscriptionModel
	if err := r.getDB(ctx).WithContext(ctx).First(&model, dbID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, subscription.ErrSubscriptionNotFound
		}
		r.logger.Errorw("failed to get subscription by ID", "id", dbID, "error", err)
		return nil, fmt.Errorf("failed to get subscription: %w", err)
	}
	return r.mapper.ToEntity(&model)
}

func (r *SubscriptionRepositoryImpl) GetBySID(ctx context.Context, sid string) (*subscription.Subscription, error) {
	var model models.SubscriptionModel
	if err := r.getDB(ctx).WithContext(ctx).Where("sid = ?", sid).First(&model).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, subscription.ErrSubscriptionNotFound
		}
		r.logger.Errorw("failed to get subscription by SID", "sid", sid, "error", err)
		return nil, fmt.Errorf("failed to get subscription: %w", err)
	}
	return r.mapper.ToEntity(&model)
}

func (r *SubscriptionRepositoryImpl) GetByProviderSubscriptionID(ctx context.Context, provider vo.ProviderType, providerSubscriptionID string) (*subscription.Subscription, error) {
	var model models.SubscriptionModel
	err := r.getDB(ctx).WithContext(ctx).
		Where("provider = ? AND provider_subscription_id = ?", string(provider), providerSubscriptionID).
		First(&model).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, subscription.ErrSubscriptionNotFound
		}
		r.logger.Errorw("failed to get subscription by provider ID",
			"provider", provider, "provider_subscription_id", providerSubscriptionID, "error", err)
		return nil, fmt.Errorf("failed to get subscription: %w", err)
	}
	return r.mapper.ToEntity(&model)
}

func (r *SubscriptionRepositoryImpl) ListByUserID(ctx context.Context, userID uint) ([]*subscription.Subscription, error) {
	var subscriptionModels []*models.SubscriptionModel
	err := r.getDB(ctx).WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&subscriptionModels).Error
	if err != nil {
		r.logger.Errorw("failed to list subscriptions by user ID", "user_id", userID, "error", err)
		return nil, fmt.Errorf("failed to list subscriptions: %w", err)
	}
	return r.mapper.ToEntities(subscriptionModels)
}

// Update persists the aggregate conditionally on the version the row
// carried when loaded. Zero affected rows means a concurrent writer won.
func (r *SubscriptionRepositoryImpl) Update(ctx context.Context, sub *subscription.Subscription) error {
	model, err := r.mapper.ToModel(sub)
	if err != nil {
		return fmt.Errorf("failed to map subscription entity: %w", err)
	}

	result := r.getDB(ctx).WithContext(ctx).
		Model(&models.SubscriptionModel{}).
		Where("id = ? AND version = ?", model.ID, sub.BaseVersion()).
		Select("*").
		Omit("id", "created_at").
		Updates(model)
	if result.Error != nil {
		r.logger.Errorw("failed to update subscription", "id", model.ID, "error", result.Error)
		return fmt.Errorf("failed to update subscription: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return subscription.ErrVersionConflict
	}
	return nil
}

// RecordTransition writes the aggregate update and its ledger entry in one
// transaction. The ledger's unique (subscription_id, provider_event_id)
// index is the idempotency backstop: a duplicate maps to ErrDuplicateEvent
// and rolls back the whole unit.
func (r *SubscriptionRepositoryImpl) RecordTransition(ctx context.Context, sub *subscription.Subscription, entry *subscription.History) error {
	subModel, err := r.mapper.ToModel(sub)
	if err != nil {
		return fmt.Errorf("failed to map subscription entity: %w", err)
	}
	historyModel, err := r.historyMapper.ToModel(entry)
	if err != nil {
		return fmt.Errorf("failed to map history entry: %w", err)
	}

	err = r.getDB(ctx).WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(historyModel).Error; err != nil {
			if errors.IsDuplicateError(err) {
				return subscription.ErrDuplicateEvent
			}
			return fmt.Errorf("failed to record ledger entry: %w", err)
		}

		result := tx.Model(&models.SubscriptionModel{}).
			Where("id = ? AND version = ?", subModel.ID, sub.BaseVersion()).
			Select("*").
			Omit("id", "created_at").
			Updates(subModel)
		if result.Error != nil {
			return fmt.Errorf("failed to update subscription: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return subscription.ErrVersionConflict
		}
		return nil
	})
	if err != nil {
		return err
	}

	if setErr := entry.SetID(historyModel.ID); setErr != nil {
		r.logger.Warnw("failed to set history ID after insert", "error", setErr)
	}
	r.logger.Infow("subscription transition recorded",
		"subscription_id", sub.ID(),
		"event_type", entry.EventType(),
		"new_status", entry.NewStatus(),
		"provider_event_id", entry.ProviderEventID(),
	)
	return nil
}

// RecordEvent appends an audit-only ledger entry without touching the
// aggregate.
func (r *SubscriptionRepositoryImpl) RecordEvent(ctx context.Context, entry *subscription.History) error {
	historyModel, err := r.historyMapper.ToModel(entry)
	if err != nil {
		return fmt.Errorf("failed to map history entry: %w", err)
	}

	if err := r.getDB(ctx).WithContext(ctx).Create(historyModel).Error; err != nil {
		if errors.IsDuplicateError(err) {
			return subscription.ErrDuplicateEvent
		}
		r.logger.Errorw("failed to record ledger event", "error", err)
		return fmt.Errorf("failed to record ledger event: %w", err)
	}
	return entry.SetID(historyModel.ID)
}

func (r *SubscriptionRepositoryImpl) FindDueForExpiry(ctx context.Context, now time.Time, graceDays int, limit int) ([]*subscription.Subscription, error) {
	cutoff := now.AddDate(0, 0, -graceDays)

	var subscriptionModels []*models.SubscriptionModel
	err := r.getDB(ctx).WithContext(ctx).
		Where("status IN ?", []string{string(vo.StatusCancelled), string(vo.StatusCompleted)}).
		Where("(current_period_end IS NOT NULL AND current_period_end < ?) OR (current_period_end IS NULL AND updated_at < ?)", cutoff, cutoff).
		Order("id ASC").
		Limit(limit).
		Find(&subscriptionModels).Error
	if err != nil {
		r.logger.Errorw("failed to find subscriptions due for expiry", "error", err)
		return nil, fmt.Errorf("failed to find subscriptions due for expiry: %w", err)
	}
	return r.mapper.ToEntities(subscriptionModels)
}

func (r *SubscriptionRepositoryImpl) FindElapsedPendingCancellations(ctx context.Context, now time.Time, limit int) ([]*subscription.Subscription, error) {
	var subscriptionModels []*models.SubscriptionModel
	err := r.getDB(ctx).WithContext(ctx).
		Where("status = ?", string(vo.StatusPendingCancellation)).
		Where("current_period_end IS NOT NULL AND current_period_end < ?", now).
		Order("id ASC").
		Limit(limit).
		Find(&subscriptionModels).Error
	if err != nil {
		r.logger.Errorw("failed to find elapsed pending cancellations", "error", err)
		return nil, fmt.Errorf("failed to find elapsed pending cancellations: %w", err)
	}
	return r.mapper.ToEntities(subscriptionModels)
}
