package account

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/sreeharsha06/Enhanced-Authentication-API/internal/auth"
	"github.com/sreeharsha06/Enhanced-Authentication-API/internal/auth/credentials"
	"github.com/sreeharsha06/Enhanced-Authentication-API/internal/auth/provider"
	"github.com/sreeharsha06/Enhanced-Authentication-API/internal/auth/resolver"
	"github.com/sreeharsha06/Enhanced-Authentication-API/internal/auth/token"
	"github.com/sreeharsha06/Enhanced-Authentication-API/internal/identity"
	"github.com/sreeharsha06/Enhanced-Authentication-API/internal/identity/memstore"
	"github.com/sreeharsha06/Enhanced-Authentication-API/internal/session"
)

type stubProvider struct {
	assertion *auth.Assertion
	err       error
	calls     int
}

func (p *stubProvider) Name() string { return identity.ProviderGoogle }

func (p *stubProvider) AuthCodeURL(state, challenge string) string {
	return "https://idp.test/auth?state=" + state
}

func (p *stubProvider) ExchangeCode(ctx context.Context, code, verifier string) (*auth.Assertion, error) {
	p.calls++
	if p.err != nil {
		return nil, p.err
	}
	a := *p.assertion
	return &a, nil
}

type failingStore struct {
	identity.Store
}

func (failingStore) FindByEmail(context.Context, string) (identity.Identity, error) {
	return identity.Identity{}, errors.New("connection reset")
}

type env struct {
	svc    *Service
	store  *memstore.Store
	tokens *token.Service
	idp    *stubProvider
	revs   *session.RedisRevocations
	now    time.Time
}

func newEnv(t *testing.T) *env {
	t.Helper()
	now := time.Now().UTC().Truncate(time.Second)

	tokens, err := token.NewService(token.Config{
		Secret: []byte("secret"),
		Now:    func() time.Time { return now },
	})
	require.NoError(t, err)

	hasher, err := credentials.NewHasher(bcrypt.MinCost)
	require.NoError(t, err)

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	revs := session.NewRedisRevocations(client)

	idp := &stubProvider{assertion: &auth.Assertion{
		Provider:       identity.ProviderGoogle,
		ProviderUserID: "g-1",
		Email:          "bob@x.com",
		EmailVerified:  true,
		DisplayName:    "Bob",
	}}

	store := memstore.New()
	svc, err := New(Deps{
		Store:       store,
		Hasher:      hasher,
		Tokens:      tokens,
		Providers:   provider.NewRegistry(idp),
		Revocations: revs,
		Now:         func() time.Time { return now },
	})
	require.NoError(t, err)

	return &env{svc: svc, store: store, tokens: tokens, idp: idp, revs: revs, now: now}
}

func TestRegisterIssuesPasswordToken(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	res, err := e.svc.Register(ctx, "Alice", "Alice@X.com", "secret1")
	require.NoError(t, err)
	assert.Equal(t, "alice@x.com", res.Profile.Email)
	assert.Equal(t, identity.RoleUser, res.Profile.Role)
	assert.True(t, res.Profile.IsPublic)
	assert.Equal(t, e.now.Add(2*time.Hour), res.Token.ExpiresAt)

	claims, err := e.tokens.Validate(res.Token.Value)
	require.NoError(t, err)
	assert.Equal(t, res.Profile.ID, claims.SubjectID)

	stored, err := e.store.FindByEmail(ctx, "alice@x.com")
	require.NoError(t, err)
	assert.NotEqual(t, "secret1", stored.PasswordHash)
}

func TestRegisterRejections(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	_, err := e.svc.Register(ctx, "Alice", "alice@x.com", "secret1")
	require.NoError(t, err)

	cases := []struct {
		name, displayName, email, password string
		want                               error
	}{
		{"duplicate", "Other", "ALICE@x.com", "secret2", ErrDuplicateAccount},
		{"empty name", "", "n@x.com", "secret1", identity.ErrValidation},
		{"bad email", "N", "not-an-email", "secret1", identity.ErrValidation},
		{"short password", "N", "n@x.com", "12345", identity.ErrValidation},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := e.svc.Register(ctx, tc.displayName, tc.email, tc.password)
			assert.ErrorIs(t, err, tc.want)
		})
	}

	all, err := e.store.ListAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestLogin(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	reg, err := e.svc.Register(ctx, "Alice", "alice@x.com", "secret1")
	require.NoError(t, err)

	res, err := e.svc.Login(ctx, " Alice@x.com", "secret1")
	require.NoError(t, err)
	assert.Equal(t, reg.Profile.ID, res.Profile.ID)
	assert.Equal(t, e.now.Add(2*time.Hour), res.Token.ExpiresAt)

	_, err = e.svc.Login(ctx, "alice@x.com", "wrong-pass")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = e.svc.Login(ctx, "nobody@x.com", "secret1")
	assert.ErrorIs(t, err, ErrAccountNotFound)
}

func TestLoginFederationOnlyAccount(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	_, err := e.svc.LoginFederated(ctx, identity.ProviderGoogle, "code", "verifier")
	require.NoError(t, err)

	_, err = e.svc.Login(ctx, "bob@x.com", "anything")
	assert.ErrorIs(t, err, ErrFederationOnlyAccount)
}

func TestLoginStoreFailureIsDependency(t *testing.T) {
	e := newEnv(t)
	svc, err := New(Deps{Store: failingStore{e.store}, Hasher: e.svc.hasher, Tokens: e.tokens})
	require.NoError(t, err)

	_, err = svc.Login(context.Background(), "a@x.com", "secret1")
	assert.ErrorIs(t, err, ErrDependency)
}

func TestLoginFederated(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	first, err := e.svc.LoginFederated(ctx, identity.ProviderGoogle, "code", "verifier")
	require.NoError(t, err)
	assert.Equal(t, e.now.Add(time.Hour), first.Token.ExpiresAt)
	assert.Equal(t, identity.ProviderGoogle, first.Profile.FederationProvider)

	second, err := e.svc.LoginFederated(ctx, identity.ProviderGoogle, "code-2", "verifier")
	require.NoError(t, err)
	assert.Equal(t, first.Profile.ID, second.Profile.ID)
}

func TestLoginFederatedFailuresWriteNothing(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	e.idp.err = provider.ErrTokenInvalid
	_, err := e.svc.LoginFederated(ctx, identity.ProviderGoogle, "code", "verifier")
	assert.ErrorIs(t, err, provider.ErrTokenInvalid)

	e.idp.err = provider.ErrExchangeFailed
	_, err = e.svc.LoginFederated(ctx, identity.ProviderGoogle, "code", "verifier")
	assert.ErrorIs(t, err, provider.ErrExchangeFailed)

	_, err = e.svc.LoginFederated(ctx, "github", "code", "verifier")
	assert.ErrorIs(t, err, provider.ErrUnknownProvider)

	all, err := e.store.ListAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestLoginFederatedRequiresLinkForExistingEmail(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	_, err := e.svc.Register(ctx, "Bob", "bob@x.com", "secret1")
	require.NoError(t, err)

	_, err = e.svc.LoginFederated(ctx, identity.ProviderGoogle, "code", "verifier")
	assert.ErrorIs(t, err, ErrLinkRequired)
	assert.ErrorIs(t, err, resolver.ErrLinkRequired)
}

func TestLinkFederation(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	reg, err := e.svc.Register(ctx, "Bob", "bob@x.com", "secret1")
	require.NoError(t, err)

	p, err := e.svc.LinkFederation(ctx, reg.Profile.ID, identity.ProviderGoogle, "code", "verifier")
	require.NoError(t, err)
	assert.Equal(t, identity.ProviderGoogle, p.FederationProvider)

	// Idempotent for the same key.
	_, err = e.svc.LinkFederation(ctx, reg.Profile.ID, identity.ProviderGoogle, "code", "verifier")
	require.NoError(t, err)

	// Now both login paths reach the same identity.
	fed, err := e.svc.LoginFederated(ctx, identity.ProviderGoogle, "code", "verifier")
	require.NoError(t, err)
	assert.Equal(t, reg.Profile.ID, fed.Profile.ID)

	pw, err := e.svc.Login(ctx, "bob@x.com", "secret1")
	require.NoError(t, err)
	assert.Equal(t, reg.Profile.ID, pw.Profile.ID)
}

func TestLinkFederationConflicts(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	owner, err := e.svc.LoginFederated(ctx, identity.ProviderGoogle, "code", "verifier")
	require.NoError(t, err)
	other, err := e.svc.Register(ctx, "Carol", "carol@x.com", "secret1")
	require.NoError(t, err)

	_, err = e.svc.LinkFederation(ctx, other.Profile.ID, identity.ProviderGoogle, "code", "verifier")
	assert.ErrorIs(t, err, ErrFederationInUse)

	e.idp.assertion.ProviderUserID = "g-2"
	_, err = e.svc.LinkFederation(ctx, owner.Profile.ID, identity.ProviderGoogle, "code", "verifier")
	assert.ErrorIs(t, err, ErrAlreadyLinked)

	_, err = e.svc.LinkFederation(ctx, "ghost", identity.ProviderGoogle, "code", "verifier")
	assert.ErrorIs(t, err, ErrAccountNotFound)
}

func TestLogoutRevokesToken(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	res, err := e.svc.Register(ctx, "Alice", "alice@x.com", "secret1")
	require.NoError(t, err)

	claims, err := e.tokens.Validate(res.Token.Value)
	require.NoError(t, err)

	require.NoError(t, e.svc.Logout(ctx, claims))

	revoked, err := e.revs.IsRevoked(ctx, claims.ID)
	require.NoError(t, err)
	assert.True(t, revoked)
}

func TestNewRequiresCollaborators(t *testing.T) {
	_, err := New(Deps{})
	assert.Error(t, err)
}
