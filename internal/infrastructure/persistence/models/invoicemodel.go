package models

import (
	"time"

	"selah/internal/shared/constants"
)

// InvoiceModel is the persistence model for provider payments.
type InvoiceModel struct {
	ID                uint   `gorm:"primarykey"`
	IID               string `gorm:"column:iid;uniqueIndex;not null;size:50;comment:Stripe-style ID: inv_xxx"`
	SubscriptionID    uint   `gorm:"not null;index:idx_invoice_subscription"`
	UserID            uint   `gorm:"not null;index:idx_invoice_user"`
	ProviderPaymentID string `gorm:"uniqueIndex;not null;size:191"`
	Amount            int64  `gorm:"not null"`
	Currency          string `gorm:"not null;size:10"`
	Status            string `gorm:"not null;size:20;index:idx_invoice_status"`
	Method            string `gorm:"size:30"`
	PeriodStart       *time.Time
	PeriodEnd         *time.Time
	PaidAt            *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// TableName specifies the table name for GORM.
func (InvoiceModel) TableName() string {
	return constants.TableSubscriptionInvoices
}
