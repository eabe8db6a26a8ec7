package resolver

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sreeharsha06/Enhanced-Authentication-API/internal/auth"
	"github.com/sreeharsha06/Enhanced-Authentication-API/internal/identity"
)

var (
	// ErrLinkRequired means the asserted email belongs to an account that is
	// not linked to this provider. The owner has to sign in and link explicitly.
	ErrLinkRequired     = errors.New("account exists; sign in and link the provider")
	ErrEmailNotVerified = errors.New("provider email is not verified")
)

// Resolver determines which identity an external assertion belongs to.
// It is the ONLY place where assertion-to-identity mapping logic lives.
type Resolver interface {
	Resolve(
		ctx context.Context,
		assertion *auth.Assertion,
	) (identity.Identity, error)
}

// StoreResolver matches on (provider, subject) only. Email is used to
// detect collisions, never to link.
type StoreResolver struct {
	store identity.Store
	now   func() time.Time
}

func NewStoreResolver(store identity.Store) *StoreResolver {
	return &StoreResolver{store: store, now: time.Now}
}

func (r *StoreResolver) Resolve(
	ctx context.Context,
	assertion *auth.Assertion,
) (identity.Identity, error) {

	if assertion == nil {
		return identity.Identity{}, errors.New("assertion is nil")
	}

	key := identity.FederationKey{
		Provider: assertion.Provider,
		Subject:  assertion.ProviderUserID,
	}

	// 1. Known federation key
	existing, err := r.store.FindByFederationKey(ctx, key)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, identity.ErrNotFound) {
		return identity.Identity{}, fmt.Errorf("find by federation key: %w", err)
	}

	if !assertion.EmailVerified {
		return identity.Identity{}, ErrEmailNotVerified
	}
	email := identity.NormalizeEmail(assertion.Email)

	// 2. Email already taken by an unlinked account
	byEmail, err := r.store.FindByEmail(ctx, email)
	if err == nil {
		if byEmail.Federation == key {
			return byEmail, nil
		}
		return identity.Identity{}, ErrLinkRequired
	}
	if !errors.Is(err, identity.ErrNotFound) {
		return identity.Identity{}, fmt.Errorf("find by email: %w", err)
	}

	// 3. New federation-only identity
	now := r.now().UTC()
	created := identity.Identity{
		ID:          uuid.NewString(),
		DisplayName: displayName(assertion),
		Email:       email,
		Federation:  key,
		Role:        identity.RoleUser,
		Visibility:  identity.VisibilityPublic,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	err = r.store.Create(ctx, created)
	switch {
	case err == nil:
		return created, nil
	case errors.Is(err, identity.ErrDuplicateFederationKey):
		// Lost a race with a concurrent callback for the same subject.
		return r.store.FindByFederationKey(ctx, key)
	case errors.Is(err, identity.ErrDuplicateEmail):
		return identity.Identity{}, ErrLinkRequired
	default:
		return identity.Identity{}, fmt.Errorf("create identity: %w", err)
	}
}

func displayName(a *auth.Assertion) string {
	if name := strings.TrimSpace(a.DisplayName); name != "" {
		return name
	}
	local, _, _ := strings.Cut(a.Email, "@")
	return local
}

var _ Resolver = (*StoreResolver)(nil)
