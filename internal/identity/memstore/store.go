// Package memstore is an in-process identity.Store used by tests and the
// "memory" database driver.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/sreeharsha06/Enhanced-Authentication-API/internal/identity"
)

type Store struct {
	mu       sync.RWMutex
	byID     map[string]identity.Identity
	byEmail  map[string]string
	byFedKey map[identity.FederationKey]string
}

func New() *Store {
	return &Store{
		byID:     make(map[string]identity.Identity),
		byEmail:  make(map[string]string),
		byFedKey: make(map[identity.FederationKey]string),
	}
}

func (s *Store) FindByEmail(ctx context.Context, email string) (identity.Identity, error) {
	if err := ctx.Err(); err != nil {
		return identity.Identity{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byEmail[identity.NormalizeEmail(email)]
	if !ok {
		return identity.Identity{}, identity.ErrNotFound
	}
	return s.byID[id], nil
}

func (s *Store) FindByID(ctx context.Context, id string) (identity.Identity, error) {
	if err := ctx.Err(); err != nil {
		return identity.Identity{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	i, ok := s.byID[id]
	if !ok {
		return identity.Identity{}, identity.ErrNotFound
	}
	return i, nil
}

func (s *Store) FindByFederationKey(ctx context.Context, key identity.FederationKey) (identity.Identity, error) {
	if err := ctx.Err(); err != nil {
		return identity.Identity{}, err
	}
	if key.Provider == "" || key.Subject == "" {
		return identity.Identity{}, identity.ErrNotFound
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byFedKey[key]
	if !ok {
		return identity.Identity{}, identity.ErrNotFound
	}
	return s.byID[id], nil
}

func (s *Store) Create(ctx context.Context, i identity.Identity) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	i.Email = identity.NormalizeEmail(i.Email)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byID[i.ID]; ok {
		return fmt.Errorf("identity %s already exists", i.ID)
	}
	if err := s.checkUnique(i); err != nil {
		return err
	}
	s.index(i)
	return nil
}

func (s *Store) Update(ctx context.Context, i identity.Identity) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	i.Email = identity.NormalizeEmail(i.Email)

	s.mu.Lock()
	defer s.mu.Unlock()

	prev, ok := s.byID[i.ID]
	if !ok {
		return identity.ErrNotFound
	}
	if err := s.checkUnique(i); err != nil {
		return err
	}

	delete(s.byEmail, prev.Email)
	if prev.IsFederated() {
		delete(s.byFedKey, prev.Federation)
	}
	i.CreatedAt = prev.CreatedAt
	s.index(i)
	return nil
}

func (s *Store) ListPublic(ctx context.Context) ([]identity.Profile, error) {
	return s.list(ctx, func(i identity.Identity) bool {
		return i.Visibility == identity.VisibilityPublic
	})
}

func (s *Store) ListAll(ctx context.Context) ([]identity.Profile, error) {
	return s.list(ctx, func(identity.Identity) bool { return true })
}

func (s *Store) list(ctx context.Context, keep func(identity.Identity) bool) ([]identity.Profile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	matched := make([]identity.Identity, 0, len(s.byID))
	for _, i := range s.byID {
		if keep(i) {
			matched = append(matched, i)
		}
	}
	s.mu.RUnlock()

	sort.Slice(matched, func(a, b int) bool {
		if matched[a].CreatedAt.Equal(matched[b].CreatedAt) {
			return matched[a].ID < matched[b].ID
		}
		return matched[a].CreatedAt.Before(matched[b].CreatedAt)
	})

	profiles := make([]identity.Profile, 0, len(matched))
	for _, i := range matched {
		profiles = append(profiles, i.Profile())
	}
	return profiles, nil
}

// checkUnique must be called with mu held.
func (s *Store) checkUnique(i identity.Identity) error {
	if owner, ok := s.byEmail[i.Email]; ok && owner != i.ID {
		return identity.ErrDuplicateEmail
	}
	if i.IsFederated() {
		if owner, ok := s.byFedKey[i.Federation]; ok && owner != i.ID {
			return identity.ErrDuplicateFederationKey
		}
	}
	return nil
}

func (s *Store) index(i identity.Identity) {
	s.byID[i.ID] = i
	s.byEmail[i.Email] = i.ID
	if i.IsFederated() {
		s.byFedKey[i.Federation] = i.ID
	}
}

var _ identity.Store = (*Store)(nil)
