package memstore

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sreeharsha06/Enhanced-Authentication-API/internal/identity"
)

func TestCreateFindUpdate(t *testing.T) {
	s := New()
	ctx := context.Background()
	now := time.Now()

	key := identity.FederationKey{Provider: identity.ProviderGoogle, Subject: "sub-1"}
	require.NoError(t, s.Create(ctx, identity.Identity{
		ID: "id-1", Email: "A@x.com", Role: identity.RoleUser,
		Visibility: identity.VisibilityPublic, Federation: key, CreatedAt: now,
	}))

	got, err := s.FindByEmail(ctx, "a@X.com")
	require.NoError(t, err)
	assert.Equal(t, "id-1", got.ID)

	got, err = s.FindByFederationKey(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "a@x.com", got.Email)

	got.Email = "new@x.com"
	got.Federation = identity.FederationKey{}
	require.NoError(t, s.Update(ctx, got))

	_, err = s.FindByEmail(ctx, "a@x.com")
	assert.ErrorIs(t, err, identity.ErrNotFound)
	_, err = s.FindByFederationKey(ctx, key)
	assert.ErrorIs(t, err, identity.ErrNotFound)

	assert.ErrorIs(t, s.Update(ctx, identity.Identity{ID: "missing"}), identity.ErrNotFound)
}

func TestUniqueness(t *testing.T) {
	s := New()
	ctx := context.Background()
	key := identity.FederationKey{Provider: identity.ProviderGoogle, Subject: "sub-1"}

	require.NoError(t, s.Create(ctx, identity.Identity{ID: "id-1", Email: "a@x.com", Federation: key}))
	assert.ErrorIs(t, s.Create(ctx, identity.Identity{ID: "id-2", Email: "a@x.com"}), identity.ErrDuplicateEmail)
	assert.ErrorIs(t, s.Create(ctx, identity.Identity{ID: "id-3", Email: "c@x.com", Federation: key}), identity.ErrDuplicateFederationKey)

	require.NoError(t, s.Create(ctx, identity.Identity{ID: "id-4", Email: "d@x.com"}))
	assert.ErrorIs(t, s.Update(ctx, identity.Identity{ID: "id-4", Email: "d@x.com", Federation: key}), identity.ErrDuplicateFederationKey)
}

func TestListOrderingAndVisibility(t *testing.T) {
	s := New()
	ctx := context.Background()
	base := time.Now()

	require.NoError(t, s.Create(ctx, identity.Identity{ID: "b", Email: "b@x.com", Visibility: identity.VisibilityPublic, CreatedAt: base.Add(time.Second)}))
	require.NoError(t, s.Create(ctx, identity.Identity{ID: "a", Email: "a@x.com", Visibility: identity.VisibilityPublic, CreatedAt: base}))
	require.NoError(t, s.Create(ctx, identity.Identity{ID: "c", Email: "c@x.com", Visibility: identity.VisibilityPrivate, CreatedAt: base}))

	public, err := s.ListPublic(ctx)
	require.NoError(t, err)
	require.Len(t, public, 2)
	assert.Equal(t, "a", public[0].ID)
	assert.Equal(t, "b", public[1].ID)

	all, err := s.ListAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestConcurrentCreate(t *testing.T) {
	s := New()
	ctx := context.Background()

	var wg sync.WaitGroup
	var mu sync.Mutex
	created := 0
	for k := 0; k < 20; k++ {
		wg.Add(1)
		go func(k int) {
			defer wg.Done()
			err := s.Create(ctx, identity.Identity{ID: fmt.Sprintf("id-%d", k), Email: "same@x.com"})
			if err == nil {
				mu.Lock()
				created++
				mu.Unlock()
			}
		}(k)
	}
	wg.Wait()
	assert.Equal(t, 1, created)
}

func TestCanceledContext(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.FindByID(ctx, "x")
	assert.ErrorIs(t, err, context.Canceled)
}
