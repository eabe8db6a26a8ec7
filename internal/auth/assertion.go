package auth

// Assertion is a verified identity statement returned by an external
// provider. It carries facts only; linking and account decisions are made
// by the caller.
type Assertion struct {
	Provider       string // e.g. "google"
	ProviderUserID string // provider-scoped stable subject (sub)
	Email          string
	EmailVerified  bool
	DisplayName    string
}
