package subscription

import (
	"fmt"
	"time"

	"selah/internal/shared/id"
)

// Invoice statuses as reported by the provider.
const (
	InvoiceStatusPending  = "pending"
	InvoiceStatusPaid     = "paid"
	InvoiceStatusFailed   = "failed"
	InvoiceStatusRefunded = "refunded"
)

var validInvoiceStatuses = map[string]bool{
	InvoiceStatusPending:  true,
	InvoiceStatusPaid:     true,
	InvoiceStatusFailed:   true,
	InvoiceStatusRefunded: true,
}

// Invoice records one provider payment against a subscription.
type Invoice struct {
	dbID              uint
	iid               string
	subscriptionID    uint
	userID            uint
	providerPaymentID string
	amount            int64
	currency          string
	status            string
	method            string
	periodStart       *time.Time
	periodEnd         *time.Time
	paidAt            *time.Time
	createdAt         time.Time
	updatedAt         time.Time
}

// NewInvoice creates an invoice for a provider payment.
func NewInvoice(subscriptionID, userID uint, providerPaymentID string, amount int64, currency, status, method string) (*Invoice, error) {
	if subscriptionID == 0 {
		return nil, fmt.Errorf("subscription ID is required")
	}
	if providerPaymentID == "" {
		return nil, fmt.Errorf("provider payment ID is required")
	}
	if !validInvoiceStatuses[status] {
		return nil, fmt.Errorf("invalid invoice status: %s", status)
	}

	now := time.Now().UTC()
	return &Invoice{
		iid:               id.MustGenerateWithPrefix(id.PrefixInvoice, id.DefaultLength),
		subscriptionID:    subscriptionID,
		userID:            userID,
		providerPaymentID: providerPaymentID,
		amount:            amount,
		currency:          currency,
		status:            status,
		method:            method,
		createdAt:         now,
		updatedAt:         now,
	}, nil
}

// ReconstructInvoiceParams carries persisted invoice state.
type ReconstructInvoiceParams struct {
	DBID              uint
	IID               string
	SubscriptionID    uint
	UserID            uint
	ProviderPaymentID string
	Amount            int64
	Currency          string
	Status            string
	Method            string
	PeriodStart       *time.Time
	PeriodEnd         *time.Time
	PaidAt            *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// ReconstructInvoice rebuilds an invoice from persistence.
func ReconstructInvoice(p ReconstructInvoiceParams) *Invoice {
	return &Invoice{
		dbID:              p.DBID,
		iid:               p.IID,
		subscriptionID:    p.SubscriptionID,
		userID:            p.UserID,
		providerPaymentID: p.ProviderPaymentID,
		amount:            p.Amount,
		currency:          p.Currency,
		status:            p.Status,
		method:            p.Method,
		periodStart:       p.PeriodStart,
		periodEnd:         p.PeriodEnd,
		paidAt:            p.PaidAt,
		createdAt:         p.CreatedAt,
		updatedAt:         p.UpdatedAt,
	}
}

func (i *Invoice) ID() uint                  { return i.dbID }
func (i *Invoice) IID() string               { return i.iid }
func (i *Invoice) SubscriptionID() uint      { return i.subscriptionID }
func (i *Invoice) UserID() uint              { return i.userID }
func (i *Invoice) ProviderPaymentID() string { return i.providerPaymentID }
func (i *Invoice) Amount() int64             { return i.amount }
func (i *Invoice) Currency() string          { return i.currency }
func (i *Invoice) Status() string            { return i.status }
func (i *Invoice) Method() string            { return i.method }
func (i *Invoice) PeriodStart() *time.Time   { return i.periodStart }
func (i *Invoice) PeriodEnd() *time.Time     { return i.periodEnd }
func (i *Invoice) PaidAt() *time.Time        { return i.paidAt }
func (i *Invoice) CreatedAt() time.Time      { return i.createdAt }
func (i *Invoice) UpdatedAt() time.Time      { return i.updatedAt }

// SetPeriod records the billing period the payment covers.
func (i *Invoice) SetPeriod(start, end time.Time) error {
	if end.Before(start) {
		return fmt.Errorf("period end must be after period start")
	}
	i.periodStart = &start
	i.periodEnd = &end
	i.updatedAt = time.Now().UTC()
	return nil
}

// MarkPaid records a successful collection.
func (i *Invoice) MarkPaid(paidAt time.Time) {
	i.status = InvoiceStatusPaid
	i.paidAt = &paidAt
	i.updatedAt = time.Now().UTC()
}

// MarkRefunded records a refund of a previously paid invoice.
func (i *Invoice) MarkRefunded() error {
	if i.status != InvoiceStatusPaid {
		return fmt.Errorf("cannot refund invoice with status %s", i.status)
	}
	i.status = InvoiceStatusRefunded
	i.updatedAt = time.Now().UTC()
	return nil
}

// SetID sets the database ID (persistence layer only).
func (i *Invoice) SetID(dbID uint) error {
	if i.dbID != 0 {
		return fmt.Errorf("invoice ID is already set")
	}
	i.dbID = dbID
	return nil
}
