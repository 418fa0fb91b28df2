package constants

// Database table names.
const (
	TableSubscriptions         = "subscriptions"
	TableSubscriptionHistories = "subscription_histories"
	TableSubscriptionInvoices  = "subscription_invoices"
)
