package valueobjects

// ProviderType identifies the external payment backend a subscription is
// sourced from.
type ProviderType string

const (
	// ProviderRazorpay is the hosted-checkout recurring-billing provider.
	ProviderRazorpay ProviderType = "razorpay"
	// ProviderGooglePlay is the Android in-app-purchase store.
	ProviderGooglePlay ProviderType = "google_play"
	// ProviderAppStore is the iOS in-app-purchase store.
	ProviderAppStore ProviderType = "app_store"
)

func (p ProviderType) String() string {
	return string(p)
}

// IsStore reports whether purchases originate client-side in a store UI and
// are verified server-side via receipt.
func (p ProviderType) IsStore() bool {
	return p == ProviderGooglePlay || p == ProviderAppStore
}

var ValidProviderTypes = map[ProviderType]bool{
	ProviderRazorpay:   true,
	ProviderGooglePlay: true,
	ProviderAppStore:   true,
}
