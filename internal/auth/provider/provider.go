package provider

import (
	"context"
	"errors"

	"github.com/sreeharsha06/Enhanced-Authentication-API/internal/auth"
)

var (
	// ErrExchangeFailed covers network and provider-side failures of the code exchange.
	ErrExchangeFailed = errors.New("federation exchange failed")
	// ErrTokenInvalid means the returned id_token failed signature, audience or claim checks.
	ErrTokenInvalid    = errors.New("federation token invalid")
	ErrUnknownProvider = errors.New("unknown oauth provider")
)

// OAuthProvider defines the contract every external auth provider
// must implement. Implementations return identity facts only and
// must not perform user creation, linking, or token issuance.
type OAuthProvider interface {
	// Name returns the provider identifier (e.g. "google").
	Name() string

	// AuthCodeURL returns the OAuth authorization URL.
	// State and PKCE parameters are provided by the caller.
	AuthCodeURL(state string, codeChallenge string) string

	// ExchangeCode exchanges the authorization code and returns an
	// assertion built only from verified id_token claims.
	ExchangeCode(
		ctx context.Context,
		code string,
		codeVerifier string,
	) (*auth.Assertion, error)
}
