package google

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"

	"github.com/sreeharsha06/Enhanced-Authentication-API/internal/auth/provider"
)

const (
	providerName = "google"
	issuer       = "https://accounts.google.com"
)

type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Timeout      time.Duration
}

// New builds the Google provider through OIDC discovery. The verifier checks
// id_token signatures against Google's published keys and the audience
// against ClientID.
func New(ctx context.Context, cfg Config) (*provider.OIDC, error) {
	return newWithIssuer(ctx, issuer, cfg)
}

func newWithIssuer(ctx context.Context, issuerURL string, cfg Config) (*provider.OIDC, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" || cfg.RedirectURL == "" {
		return nil, errors.New("google oauth config missing required fields")
	}

	discoveryCtx := ctx
	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		discoveryCtx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}

	oidcProvider, err := oidc.NewProvider(discoveryCtx, issuerURL)
	if err != nil {
		return nil, fmt.Errorf("failed to init google oidc provider: %w", err)
	}

	verifier := oidcProvider.Verifier(&oidc.Config{
		ClientID: cfg.ClientID,
	})

	oauthCfg := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  cfg.RedirectURL,
		Endpoint:     oidcProvider.Endpoint(),
		Scopes: []string{
			oidc.ScopeOpenID,
			"profile",
			"email",
		},
	}

	return provider.NewOIDC(provider.OIDCConfig{
		Name:     providerName,
		OAuth:    oauthCfg,
		Verifier: verifier,
		Timeout:  cfg.Timeout,
	})
}
