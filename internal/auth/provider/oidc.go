package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"

	"github.com/sreeharsha06/Enhanced-Authentication-API/internal/auth"
	"github.com/sreeharsha06/Enhanced-Authentication-API/internal/logger"
)

// DefaultExchangeTimeout bounds the code exchange and id_token verification.
const DefaultExchangeTimeout = 10 * time.Second

type OIDCConfig struct {
	Name     string
	OAuth    *oauth2.Config
	Verifier *oidc.IDTokenVerifier
	Timeout  time.Duration
	// HTTPClient is used for the token endpoint call when set.
	HTTPClient *http.Client
}

// OIDC implements OAuthProvider for any OpenID Connect issuer. It holds no
// mutable state and is safe for concurrent use.
type OIDC struct {
	name        string
	oauthConfig *oauth2.Config
	verifier    *oidc.IDTokenVerifier
	timeout     time.Duration
	httpClient  *http.Client
}

func NewOIDC(cfg OIDCConfig) (*OIDC, error) {
	if cfg.Name == "" {
		return nil, errors.New("oidc provider name is required")
	}
	if cfg.OAuth == nil || cfg.Verifier == nil {
		return nil, fmt.Errorf("%s: oauth config and verifier are required", cfg.Name)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultExchangeTimeout
	}
	return &OIDC{
		name:        cfg.Name,
		oauthConfig: cfg.OAuth,
		verifier:    cfg.Verifier,
		timeout:     timeout,
		httpClient:  cfg.HTTPClient,
	}, nil
}

// Name returns the provider identifier used by the registry.
func (p *OIDC) Name() string {
	return p.name
}

// AuthCodeURL builds the OAuth authorization URL with PKCE parameters.
func (p *OIDC) AuthCodeURL(state string, codeChallenge string) string {
	return p.oauthConfig.AuthCodeURL(
		state,
		oauth2.AccessTypeOnline,
		oauth2.SetAuthURLParam("code_challenge", codeChallenge),
		oauth2.SetAuthURLParam("code_challenge_method", "S256"),
	)
}

// ExchangeCode redeems code at the token endpoint and verifies the returned
// id_token (signature, issuer, audience, expiry) before reading any claim.
func (p *OIDC) ExchangeCode(
	ctx context.Context,
	code string,
	codeVerifier string,
) (*auth.Assertion, error) {

	if code == "" {
		return nil, fmt.Errorf("%w: %s: empty authorization code", ErrExchangeFailed, p.name)
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	if p.httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)
	}

	var opts []oauth2.AuthCodeOption
	if codeVerifier != "" {
		opts = append(opts, oauth2.VerifierOption(codeVerifier))
	}

	token, err := p.oauthConfig.Exchange(ctx, code, opts...)
	if err != nil {
		logger.Error("oauth token exchange failed", map[string]any{
			"provider": p.name,
			"error":    err.Error(),
		})
		return nil, fmt.Errorf("%w: %s token exchange: %w", ErrExchangeFailed, p.name, err)
	}

	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok || rawIDToken == "" {
		return nil, fmt.Errorf("%w: %s did not return id_token", ErrExchangeFailed, p.name)
	}

	idToken, err := p.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		logger.Warn("id_token verification failed", map[string]any{
			"provider": p.name,
			"error":    err.Error(),
		})
		return nil, fmt.Errorf("%w: %s id_token verification: %w", ErrTokenInvalid, p.name, err)
	}

	var claims struct {
		Subject       string `json:"sub"`
		Email         string `json:"email"`
		EmailVerified bool   `json:"email_verified"`
		Name          string `json:"name"`
	}

	if err := idToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("%w: %s id_token claims parse: %w", ErrTokenInvalid, p.name, err)
	}

	if claims.Subject == "" || claims.Email == "" {
		return nil, fmt.Errorf("%w: %s id_token missing required claims", ErrTokenInvalid, p.name)
	}

	logger.Info("oidc verified", map[string]any{
		"provider":       p.name,
		"issuer":         idToken.Issuer,
		"email_verified": claims.EmailVerified,
		"audience":       idToken.Audience,
		"expiry_unix":    idToken.Expiry.Unix(),
	})

	return &auth.Assertion{
		Provider:       p.name,
		ProviderUserID: claims.Subject,
		Email:          claims.Email,
		EmailVerified:  claims.EmailVerified,
		DisplayName:    claims.Name,
	}, nil
}
