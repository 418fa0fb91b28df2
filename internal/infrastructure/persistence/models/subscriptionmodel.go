package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"selah/internal/shared/constants"
)

// SubscriptionModel is the persistence model for subscriptions. This is the
// anti-corruption layer between domain and database.
type SubscriptionModel struct {
	ID                     uint   `gorm:"primarykey"`
	SID                    string `gorm:"column:sid;uniqueIndex;not null;size:50;comment:Stripe-style ID: sub_xxx"`
	UserID                 uint   `gorm:"not null;index:idx_user_subscription"`
	Provider               string `gorm:"not null;size:20;uniqueIndex:idx_provider_sub,priority:1"`
	ProviderSubscriptionID string `gorm:"not null;size:191;uniqueIndex:idx_provider_sub,priority:2"`
	PlanID                 string `gorm:"not null;size:100"`
	Status                 string `gorm:"not null;size:30;index:idx_status"`
	CurrentPeriodStart     *time.Time
	CurrentPeriodEnd       *time.Time `gorm:"index:idx_period_end"`
	NextBillingAt          *time.Time
	TotalCount             *int
	PaidCount              int    `gorm:"not null;default:0"`
	Amount                 int64  `gorm:"not null;default:0;comment:smallest currency unit"`
	Currency               string `gorm:"not null;size:10"`
	CancelAtCycleEnd       bool   `gorm:"not null;default:false"`
	CancelledAt            *time.Time
	CancelReason           *string `gorm:"size:500"`
	Metadata               datatypes.JSON
	LastEventAt            *time.Time `gorm:"comment:provider-clock time of last applied event"`
	Version                int        `gorm:"not null;default:1"`
	CreatedAt              time.Time
	UpdatedAt              time.Time
}

// TableName specifies the table name for GORM.
func (SubscriptionModel) TableName() string {
	return constants.TableSubscriptions
}

// BeforeCreate hook for GORM.
func (s *SubscriptionModel) BeforeCreate(tx *gorm.DB) error {
	if s.Version == 0 {
		s.Version = 1
	}
	return nil
}
