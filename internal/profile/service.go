// Package profile serves the signed-in user's own profile and the directory
// of profiles visible to them.
package profile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/sreeharsha06/Enhanced-Authentication-API/internal/auth/account"
	"github.com/sreeharsha06/Enhanced-Authentication-API/internal/identity"
	"github.com/sreeharsha06/Enhanced-Authentication-API/internal/photo"
)

const (
	maxBioLength   = 500
	maxPhoneLength = 32
)

// UpdateInput carries the fields to change. Nil fields are left untouched.
type UpdateInput struct {
	Name     *string
	Bio      *string
	Phone    *string
	Email    *string
	Password *string
}

type PhotoResolver interface {
	Resolve(ctx context.Context, upload *photo.Upload, remoteURL string) (string, error)
}

type Service struct {
	store  identity.Store
	hasher account.Hasher
	photos PhotoResolver
	log    *slog.Logger
	now    func() time.Time
}

func NewService(store identity.Store, hasher account.Hasher, photos PhotoResolver, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		store:  store,
		hasher: hasher,
		photos: photos,
		log:    log.With("service", "profile"),
		now:    time.Now,
	}
}

func (s *Service) Me(ctx context.Context, id string) (identity.Profile, error) {
	ident, err := s.load(ctx, id)
	if err != nil {
		return identity.Profile{}, err
	}
	return ident.Profile(), nil
}

func (s *Service) Update(ctx context.Context, id string, in UpdateInput) (identity.Profile, error) {
	ident, err := s.load(ctx, id)
	if err != nil {
		return identity.Profile{}, err
	}

	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if err := identity.ValidateName(name); err != nil {
			return identity.Profile{}, err
		}
		ident.DisplayName = name
	}
	if in.Email != nil {
		email := identity.NormalizeEmail(*in.Email)
		if err := identity.ValidateEmail(email); err != nil {
			return identity.Profile{}, err
		}
		ident.Email = email
	}
	if in.Bio != nil {
		bio := strings.TrimSpace(*in.Bio)
		if utf8.RuneCountInString(bio) > maxBioLength {
			return identity.Profile{}, fmt.Errorf("%w: bio is too long", identity.ErrValidation)
		}
		ident.Bio = bio
	}
	if in.Phone != nil {
		phone := strings.TrimSpace(*in.Phone)
		if len(phone) > maxPhoneLength {
			return identity.Profile{}, fmt.Errorf("%w: phone is too long", identity.ErrValidation)
		}
		ident.Phone = phone
	}
	if in.Password != nil {
		if err := identity.ValidatePassword(*in.Password); err != nil {
			return identity.Profile{}, err
		}
		hash, err := s.hasher.Hash(*in.Password)
		if err != nil {
			return identity.Profile{}, s.dependency(ctx, "hash password", err)
		}
		ident.PasswordHash = hash
	}

	if err := s.save(ctx, &ident); err != nil {
		return identity.Profile{}, err
	}
	return ident.Profile(), nil
}

func (s *Service) SetVisibility(ctx context.Context, id string, public bool) (identity.Profile, error) {
	ident, err := s.load(ctx, id)
	if err != nil {
		return identity.Profile{}, err
	}

	ident.Visibility = identity.VisibilityPrivate
	if public {
		ident.Visibility = identity.VisibilityPublic
	}
	if err := s.save(ctx, &ident); err != nil {
		return identity.Profile{}, err
	}
	return ident.Profile(), nil
}

// SetPhoto resolves the photo before touching the identity so a failed
// download leaves the stored reference unchanged.
func (s *Service) SetPhoto(ctx context.Context, id string, upload *photo.Upload, remoteURL string) (identity.Profile, error) {
	ident, err := s.load(ctx, id)
	if err != nil {
		return identity.Profile{}, err
	}

	ref, err := s.photos.Resolve(ctx, upload, remoteURL)
	if err != nil {
		return identity.Profile{}, err
	}

	ident.PhotoRef = ref
	if err := s.save(ctx, &ident); err != nil {
		return identity.Profile{}, err
	}
	return ident.Profile(), nil
}

// List returns every profile to admins and only public profiles otherwise.
// The caller's role is read fresh from the store.
func (s *Service) List(ctx context.Context, callerID string) ([]identity.Profile, error) {
	caller, err := s.load(ctx, callerID)
	if err != nil {
		return nil, err
	}

	var profiles []identity.Profile
	if caller.Role.Satisfies(identity.RoleAdmin) {
		profiles, err = s.store.ListAll(ctx)
	} else {
		profiles, err = s.store.ListPublic(ctx)
	}
	if err != nil {
		return nil, s.dependency(ctx, "list profiles", err)
	}
	return profiles, nil
}

// ListAll is the admin directory; callers are gated by role upstream.
func (s *Service) ListAll(ctx context.Context) ([]identity.Profile, error) {
	profiles, err := s.store.ListAll(ctx)
	if err != nil {
		return nil, s.dependency(ctx, "list profiles", err)
	}
	return profiles, nil
}

func (s *Service) load(ctx context.Context, id string) (identity.Identity, error) {
	ident, err := s.store.FindByID(ctx, id)
	if errors.Is(err, identity.ErrNotFound) {
		return identity.Identity{}, identity.ErrNotFound
	}
	if err != nil {
		return identity.Identity{}, s.dependency(ctx, "find identity", err)
	}
	return ident, nil
}

func (s *Service) save(ctx context.Context, ident *identity.Identity) error {
	ident.UpdatedAt = s.now().UTC()
	err := s.store.Update(ctx, *ident)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, identity.ErrDuplicateEmail):
		return account.ErrDuplicateAccount
	case errors.Is(err, identity.ErrNotFound):
		return identity.ErrNotFound
	default:
		return s.dependency(ctx, "update identity", err)
	}
}

func (s *Service) dependency(ctx context.Context, op string, err error) error {
	s.log.ErrorContext(ctx, "dependency failure", slog.String("op", op), slog.Any("error", err))
	return fmt.Errorf("%w: %s: %w", account.ErrDependency, op, err)
}
