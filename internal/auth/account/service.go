// Package account orchestrates registration, password login, federated login,
// provider linking and logout. Every successful flow ends with a signed token
// for the resolved identity; every failure is one of the sentinel errors below
// or an error from the identity, provider or resolver packages.
package account

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sreeharsha06/Enhanced-Authentication-API/internal/auth"
	"github.com/sreeharsha06/Enhanced-Authentication-API/internal/auth/provider"
	"github.com/sreeharsha06/Enhanced-Authentication-API/internal/auth/resolver"
	"github.com/sreeharsha06/Enhanced-Authentication-API/internal/auth/token"
	"github.com/sreeharsha06/Enhanced-Authentication-API/internal/identity"
	"github.com/sreeharsha06/Enhanced-Authentication-API/internal/metrics"
	"github.com/sreeharsha06/Enhanced-Authentication-API/internal/session"
)

var (
	ErrDuplicateAccount      = errors.New("account already exists")
	ErrAccountNotFound       = errors.New("account not found")
	ErrFederationOnlyAccount = errors.New("account has no password; use federated sign-in")
	ErrInvalidCredentials    = errors.New("invalid credentials")
	ErrFederationInUse       = errors.New("provider account is linked to another user")
	ErrAlreadyLinked         = errors.New("account is already linked to a different provider account")
	// ErrDependency wraps store, hashing, signing and revocation failures.
	ErrDependency = errors.New("dependency failure")
)

// ErrLinkRequired is returned by LoginFederated when the asserted email
// belongs to an account that has not linked this provider.
var ErrLinkRequired = resolver.ErrLinkRequired

const (
	DefaultPasswordTTL   = 2 * time.Hour
	DefaultFederationTTL = time.Hour
)

type Hasher interface {
	Hash(password string) (string, error)
	Verify(password string, hash string) bool
}

type TokenIssuer interface {
	Issue(subjectID string, ttl time.Duration) (token.Token, error)
}

type Deps struct {
	Store       identity.Store
	Hasher      Hasher
	Tokens      TokenIssuer
	Providers   *provider.Registry
	Resolver    resolver.Resolver
	Revocations session.Revocations
	Metrics     *metrics.Metrics
	Logger      *slog.Logger

	PasswordTTL   time.Duration
	FederationTTL time.Duration
	Now           func() time.Time
}

// Result is what a successful login or registration hands back.
type Result struct {
	Token   token.Token
	Profile identity.Profile
}

type Service struct {
	store       identity.Store
	hasher      Hasher
	tokens      TokenIssuer
	providers   *provider.Registry
	resolver    resolver.Resolver
	revocations session.Revocations
	metrics     *metrics.Metrics
	log         *slog.Logger

	passwordTTL   time.Duration
	federationTTL time.Duration
	now           func() time.Time
}

func New(d Deps) (*Service, error) {
	if d.Store == nil || d.Hasher == nil || d.Tokens == nil {
		return nil, errors.New("account: store, hasher and token issuer are required")
	}

	s := &Service{
		store:         d.Store,
		hasher:        d.Hasher,
		tokens:        d.Tokens,
		providers:     d.Providers,
		resolver:      d.Resolver,
		revocations:   d.Revocations,
		metrics:       d.Metrics,
		log:           d.Logger,
		passwordTTL:   d.PasswordTTL,
		federationTTL: d.FederationTTL,
		now:           d.Now,
	}
	if s.providers == nil {
		s.providers = provider.NewRegistry()
	}
	if s.resolver == nil {
		s.resolver = resolver.NewStoreResolver(d.Store)
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	s.log = s.log.With("service", "account")
	if s.passwordTTL <= 0 {
		s.passwordTTL = DefaultPasswordTTL
	}
	if s.federationTTL <= 0 {
		s.federationTTL = DefaultFederationTTL
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s, nil
}

// Register creates a password account and signs the caller in.
func (s *Service) Register(ctx context.Context, name, email, password string) (res Result, err error) {
	defer func() { s.record("register", err) }()

	name = strings.TrimSpace(name)
	email = identity.NormalizeEmail(email)
	if err := identity.ValidateName(name); err != nil {
		return Result{}, err
	}
	if err := identity.ValidateEmail(email); err != nil {
		return Result{}, err
	}
	if err := identity.ValidatePassword(password); err != nil {
		return Result{}, err
	}

	_, err = s.store.FindByEmail(ctx, email)
	switch {
	case err == nil:
		return Result{}, ErrDuplicateAccount
	case !errors.Is(err, identity.ErrNotFound):
		return Result{}, s.dependency(ctx, "find by email", err)
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return Result{}, s.dependency(ctx, "hash password", err)
	}

	now := s.now().UTC()
	created := identity.Identity{
		ID:           uuid.NewString(),
		DisplayName:  name,
		Email:        email,
		PasswordHash: hash,
		Role:         identity.RoleUser,
		Visibility:   identity.VisibilityPublic,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.Create(ctx, created); err != nil {
		if errors.Is(err, identity.ErrDuplicateEmail) {
			return Result{}, ErrDuplicateAccount
		}
		return Result{}, s.dependency(ctx, "create identity", err)
	}

	s.log.InfoContext(ctx, "account registered", slog.String("subject_id", created.ID))
	return s.issue(ctx, created, s.passwordTTL)
}

// Login verifies a password. Unknown account, federation-only account and
// wrong password are distinct errors.
func (s *Service) Login(ctx context.Context, email, password string) (res Result, err error) {
	defer func() { s.record("password", err) }()

	ident, err := s.store.FindByEmail(ctx, identity.NormalizeEmail(email))
	if errors.Is(err, identity.ErrNotFound) {
		return Result{}, ErrAccountNotFound
	}
	if err != nil {
		return Result{}, s.dependency(ctx, "find by email", err)
	}

	if !ident.HasPassword() {
		return Result{}, ErrFederationOnlyAccount
	}
	if !s.hasher.Verify(password, ident.PasswordHash) {
		return Result{}, ErrInvalidCredentials
	}

	return s.issue(ctx, ident, s.passwordTTL)
}

// LoginFederated completes an authorization-code flow. Nothing is written
// until the provider's assertion has been fully verified.
func (s *Service) LoginFederated(ctx context.Context, providerName, code, codeVerifier string) (res Result, err error) {
	defer func() { s.record("federated", err) }()

	assertion, err := s.exchange(ctx, providerName, code, codeVerifier)
	if err != nil {
		return Result{}, err
	}

	ident, err := s.resolver.Resolve(ctx, assertion)
	if err != nil {
		if errors.Is(err, resolver.ErrLinkRequired) || errors.Is(err, resolver.ErrEmailNotVerified) {
			return Result{}, err
		}
		return Result{}, s.dependency(ctx, "resolve assertion", err)
	}

	return s.issue(ctx, ident, s.federationTTL)
}

// LinkFederation attaches a provider account to the authenticated caller.
// Linking the key the caller already holds is a no-op.
func (s *Service) LinkFederation(ctx context.Context, subjectID, providerName, code, codeVerifier string) (p identity.Profile, err error) {
	defer func() { s.record("link", err) }()

	assertion, err := s.exchange(ctx, providerName, code, codeVerifier)
	if err != nil {
		return identity.Profile{}, err
	}
	key := identity.FederationKey{Provider: assertion.Provider, Subject: assertion.ProviderUserID}

	caller, err := s.store.FindByID(ctx, subjectID)
	if errors.Is(err, identity.ErrNotFound) {
		return identity.Profile{}, ErrAccountNotFound
	}
	if err != nil {
		return identity.Profile{}, s.dependency(ctx, "find caller", err)
	}

	owner, err := s.store.FindByFederationKey(ctx, key)
	switch {
	case err == nil && owner.ID == caller.ID:
		return caller.Profile(), nil
	case err == nil:
		return identity.Profile{}, ErrFederationInUse
	case !errors.Is(err, identity.ErrNotFound):
		return identity.Profile{}, s.dependency(ctx, "find by federation key", err)
	}

	if caller.IsFederated() {
		return identity.Profile{}, ErrAlreadyLinked
	}

	caller.Federation = key
	caller.UpdatedAt = s.now().UTC()
	if err := s.store.Update(ctx, caller); err != nil {
		if errors.Is(err, identity.ErrDuplicateFederationKey) {
			return identity.Profile{}, ErrFederationInUse
		}
		return identity.Profile{}, s.dependency(ctx, "link federation", err)
	}

	s.log.InfoContext(ctx, "federation linked",
		slog.String("subject_id", caller.ID),
		slog.String("provider", key.Provider),
	)
	return caller.Profile(), nil
}

// Logout revokes the presented token until its natural expiry.
func (s *Service) Logout(ctx context.Context, claims token.Claims) error {
	if s.revocations == nil {
		return s.dependency(ctx, "revoke token", errors.New("no revocation store configured"))
	}
	if err := s.revocations.Revoke(ctx, claims.ID, claims.ExpiresAt); err != nil {
		return s.dependency(ctx, "revoke token", err)
	}
	s.log.InfoContext(ctx, "token revoked", slog.String("subject_id", claims.SubjectID))
	return nil
}

func (s *Service) exchange(ctx context.Context, providerName, code, codeVerifier string) (*auth.Assertion, error) {
	p, err := s.providers.Get(providerName)
	if err != nil {
		return nil, err
	}
	return p.ExchangeCode(ctx, code, codeVerifier)
}

func (s *Service) issue(ctx context.Context, ident identity.Identity, ttl time.Duration) (Result, error) {
	tok, err := s.tokens.Issue(ident.ID, ttl)
	if err != nil {
		return Result{}, s.dependency(ctx, "issue token", err)
	}
	return Result{Token: tok, Profile: ident.Profile()}, nil
}

func (s *Service) dependency(ctx context.Context, op string, err error) error {
	s.log.ErrorContext(ctx, "dependency failure", slog.String("op", op), slog.Any("error", err))
	return fmt.Errorf("%w: %s: %w", ErrDependency, op, err)
}

func (s *Service) record(flow string, err error) {
	switch {
	case err == nil:
		s.metrics.RecordAuth(flow, "success")
	case errors.Is(err, ErrDependency):
		s.metrics.RecordAuth(flow, "error")
	default:
		s.metrics.RecordAuth(flow, "rejected")
	}
}
