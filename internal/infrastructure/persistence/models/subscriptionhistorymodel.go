package models

import (
	"time"

	"gorm.io/datatypes"

	"selah/internal/shared/constants"
)

// SubscriptionHistoryModel is the persistence model for the append-only
// event ledger. Rows are never updated or deleted, so there is no UpdatedAt
// and no soft delete. The unique (subscription_id, provider_event_id) index
// is the natural idempotency key for webhook redelivery.
type SubscriptionHistoryModel struct {
	ID              uint   `gorm:"primarykey"`
	EID             string `gorm:"column:eid;uniqueIndex;not null;size:50;comment:Stripe-style ID: evt_xxx"`
	SubscriptionID  uint   `gorm:"not null;uniqueIndex:idx_sub_event,priority:1"`
	UserID          uint   `gorm:"not null;index:idx_history_user"`
	EventType       string `gorm:"not null;size:30"`
	PrevStatus      *string `gorm:"size:30"`
	NewStatus       string  `gorm:"not null;size:30"`
	ProviderEventID string  `gorm:"not null;size:191;uniqueIndex:idx_sub_event,priority:2"`
	PaymentID       *string `gorm:"size:100"`
	PaymentAmount   *int64
	PaymentStatus   *string `gorm:"size:30"`
	Payload         datatypes.JSON
	Note            string `gorm:"size:500"`
	CreatedAt       time.Time
}

// TableName specifies the table name for GORM.
func (SubscriptionHistoryModel) TableName() string {
	return constants.TableSubscriptionHistories
}
