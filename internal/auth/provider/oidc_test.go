package provider

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

const (
	testIssuer   = "https://issuer.test"
	testClientID = "client-1"
)

type fakeIDP struct {
	t          *testing.T
	key        *rsa.PrivateKey
	server     *httptest.Server
	claims     jwt.MapClaims
	status     int
	omitToken  bool
	lastParams map[string]string
}

func newFakeIDP(t *testing.T) *fakeIDP {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	idp := &fakeIDP{t: t, key: key, status: http.StatusOK}
	idp.claims = jwt.MapClaims{
		"iss":            testIssuer,
		"aud":            testClientID,
		"sub":            "google-sub-1",
		"email":          "alice@x.com",
		"email_verified": true,
		"name":           "Alice",
		"iat":            time.Now().Unix(),
		"exp":            time.Now().Add(time.Hour).Unix(),
	}
	idp.server = httptest.NewServer(http.HandlerFunc(idp.token))
	t.Cleanup(idp.server.Close)
	return idp
}

func (f *fakeIDP) token(w http.ResponseWriter, r *http.Request) {
	require.NoError(f.t, r.ParseForm())
	f.lastParams = map[string]string{
		"code":          r.PostForm.Get("code"),
		"code_verifier": r.PostForm.Get("code_verifier"),
	}

	if f.status != http.StatusOK {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(f.status)
		_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
		return
	}

	body := map[string]any{
		"access_token": "access",
		"token_type":   "Bearer",
		"expires_in":   3600,
	}
	if !f.omitToken {
		signed, err := jwt.NewWithClaims(jwt.SigningMethodRS256, f.claims).SignedString(f.key)
		require.NoError(f.t, err)
		body["id_token"] = signed
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(body)
}

func (f *fakeIDP) provider(t *testing.T, verifyKey crypto.PublicKey) *OIDC {
	t.Helper()
	verifier := oidc.NewVerifier(
		testIssuer,
		&oidc.StaticKeySet{PublicKeys: []crypto.PublicKey{verifyKey}},
		&oidc.Config{ClientID: testClientID},
	)
	p, err := NewOIDC(OIDCConfig{
		Name: "google",
		OAuth: &oauth2.Config{
			ClientID:     testClientID,
			ClientSecret: "client-secret",
			RedirectURL:  "http://localhost/auth/google/callback",
			Endpoint: oauth2.Endpoint{
				AuthURL:   f.server.URL + "/auth",
				TokenURL:  f.server.URL + "/token",
				AuthStyle: oauth2.AuthStyleInParams,
			},
			Scopes: []string{oidc.ScopeOpenID, "email", "profile"},
		},
		Verifier: verifier,
		Timeout:  2 * time.Second,
	})
	require.NoError(t, err)
	return p
}

func TestExchangeCodeReturnsVerifiedAssertion(t *testing.T) {
	idp := newFakeIDP(t)
	p := idp.provider(t, &idp.key.PublicKey)

	a, err := p.ExchangeCode(context.Background(), "code-1", "verifier-1")
	require.NoError(t, err)

	assert.Equal(t, "google", a.Provider)
	assert.Equal(t, "google-sub-1", a.ProviderUserID)
	assert.Equal(t, "alice@x.com", a.Email)
	assert.True(t, a.EmailVerified)
	assert.Equal(t, "Alice", a.DisplayName)
	assert.Equal(t, "code-1", idp.lastParams["code"])
	assert.Equal(t, "verifier-1", idp.lastParams["code_verifier"])
}

func TestExchangeCodeRejectsWrongAudience(t *testing.T) {
	idp := newFakeIDP(t)
	idp.claims["aud"] = "someone-else"
	p := idp.provider(t, &idp.key.PublicKey)

	_, err := p.ExchangeCode(context.Background(), "code-1", "")
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestExchangeCodeRejectsForeignSignature(t *testing.T) {
	idp := newFakeIDP(t)
	other, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	p := idp.provider(t, &other.PublicKey)

	_, err = p.ExchangeCode(context.Background(), "code-1", "")
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestExchangeCodeRejectsExpiredIDToken(t *testing.T) {
	idp := newFakeIDP(t)
	idp.claims["exp"] = time.Now().Add(-time.Hour).Unix()
	p := idp.provider(t, &idp.key.PublicKey)

	_, err := p.ExchangeCode(context.Background(), "code-1", "")
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestExchangeCodeRequiresSubjectAndEmail(t *testing.T) {
	idp := newFakeIDP(t)
	delete(idp.claims, "email")
	p := idp.provider(t, &idp.key.PublicKey)

	_, err := p.ExchangeCode(context.Background(), "code-1", "")
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestExchangeCodeProviderFailure(t *testing.T) {
	idp := newFakeIDP(t)
	idp.status = http.StatusBadRequest
	p := idp.provider(t, &idp.key.PublicKey)

	_, err := p.ExchangeCode(context.Background(), "code-1", "")
	assert.ErrorIs(t, err, ErrExchangeFailed)
	assert.False(t, errors.Is(err, ErrTokenInvalid))
}

func TestExchangeCodeMissingIDToken(t *testing.T) {
	idp := newFakeIDP(t)
	idp.omitToken = true
	p := idp.provider(t, &idp.key.PublicKey)

	_, err := p.ExchangeCode(context.Background(), "code-1", "")
	assert.ErrorIs(t, err, ErrExchangeFailed)
}

func TestExchangeCodeEmptyCode(t *testing.T) {
	idp := newFakeIDP(t)
	p := idp.provider(t, &idp.key.PublicKey)

	_, err := p.ExchangeCode(context.Background(), "", "")
	assert.ErrorIs(t, err, ErrExchangeFailed)
}

func TestExchangeCodeTimesOut(t *testing.T) {
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	t.Cleanup(slow.Close)

	p, err := NewOIDC(OIDCConfig{
		Name: "google",
		OAuth: &oauth2.Config{
			ClientID: testClientID,
			Endpoint: oauth2.Endpoint{TokenURL: slow.URL, AuthStyle: oauth2.AuthStyleInParams},
		},
		Verifier: oidc.NewVerifier(testIssuer, &oidc.StaticKeySet{}, &oidc.Config{ClientID: testClientID}),
		Timeout:  50 * time.Millisecond,
	})
	require.NoError(t, err)

	start := time.Now()
	_, err = p.ExchangeCode(context.Background(), "code-1", "")
	assert.ErrorIs(t, err, ErrExchangeFailed)
	assert.Less(t, time.Since(start), time.Second)
}

func TestAuthCodeURLCarriesPKCE(t *testing.T) {
	idp := newFakeIDP(t)
	p := idp.provider(t, &idp.key.PublicKey)

	u := p.AuthCodeURL("state-1", "challenge-1")
	assert.Contains(t, u, "state=state-1")
	assert.Contains(t, u, "code_challenge=challenge-1")
	assert.Contains(t, u, "code_challenge_method=S256")
	assert.Contains(t, u, "client_id="+testClientID)
}

func TestRegistry(t *testing.T) {
	idp := newFakeIDP(t)
	p := idp.provider(t, &idp.key.PublicKey)

	r := NewRegistry(p, nil)
	got, err := r.Get("google")
	require.NoError(t, err)
	assert.Equal(t, "google", got.Name())
	assert.Equal(t, []string{"google"}, r.Names())

	_, err = r.Get("keycloak")
	assert.ErrorIs(t, err, ErrUnknownProvider)
}
