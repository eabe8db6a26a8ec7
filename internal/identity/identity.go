// Package identity defines the user record owned by the persistent store and
// the port through which the rest of the service reads and writes it.
//
// Identity carries the password hash and is only handled inside the service.
// Anything leaving the process goes through Profile, which has no credential
// material.
package identity

import (
	"context"
	"errors"
	"strings"
	"time"
)

var (
	ErrNotFound               = errors.New("identity not found")
	ErrDuplicateEmail         = errors.New("email already registered")
	ErrDuplicateFederationKey = errors.New("federation identity already linked")
)

type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

var roleRank = map[Role]int{
	RoleUser:  1,
	RoleAdmin: 2,
}

func (r Role) Valid() bool {
	_, ok := roleRank[r]
	return ok
}

// Satisfies reports whether r grants at least the privileges of required.
func (r Role) Satisfies(required Role) bool {
	have, ok := roleRank[r]
	if !ok {
		return false
	}
	need, ok := roleRank[required]
	if !ok {
		return false
	}
	return have >= need
}

type Visibility string

const (
	VisibilityPublic  Visibility = "public"
	VisibilityPrivate Visibility = "private"
)

func (v Visibility) Valid() bool {
	return v == VisibilityPublic || v == VisibilityPrivate
}

// ProviderGoogle is the only federation provider currently supported.
const ProviderGoogle = "google"

// FederationKey identifies an account at an external provider.
type FederationKey struct {
	Provider string
	Subject  string
}

func (k FederationKey) IsZero() bool {
	return k.Provider == "" && k.Subject == ""
}

type Identity struct {
	ID           string
	DisplayName  string
	Email        string
	PasswordHash string // empty for federation-only accounts
	Federation   FederationKey
	Role         Role
	Visibility   Visibility
	PhotoRef     string
	Bio          string
	Phone        string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (i Identity) HasPassword() bool {
	return i.PasswordHash != ""
}

func (i Identity) IsFederated() bool {
	return i.Federation.Provider != "" && i.Federation.Subject != ""
}

// Profile is the externally visible projection of an Identity.
type Profile struct {
	ID                 string     `json:"id"`
	Name               string     `json:"name"`
	Email              string     `json:"email"`
	FederationProvider string     `json:"provider,omitempty"`
	Role               Role       `json:"role"`
	Visibility         Visibility `json:"visibility"`
	IsPublic           bool       `json:"isPublic"`
	ProfilePhoto       string     `json:"profilePhoto,omitempty"`
	Bio                string     `json:"bio,omitempty"`
	Phone              string     `json:"phone,omitempty"`
	CreatedAt          time.Time  `json:"createdAt"`
	UpdatedAt          time.Time  `json:"updatedAt"`
}

func (i Identity) Profile() Profile {
	return Profile{
		ID:                 i.ID,
		Name:               i.DisplayName,
		Email:              i.Email,
		FederationProvider: i.Federation.Provider,
		Role:               i.Role,
		Visibility:         i.Visibility,
		IsPublic:           i.Visibility == VisibilityPublic,
		ProfilePhoto:       i.PhotoRef,
		Bio:                i.Bio,
		Phone:              i.Phone,
		CreatedAt:          i.CreatedAt,
		UpdatedAt:          i.UpdatedAt,
	}
}

// NormalizeEmail trims and lower-cases an address; uniqueness is checked on this form.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Store is the persistent identity store. Reads return ErrNotFound when no
// row matches. Create and Update return ErrDuplicateEmail or
// ErrDuplicateFederationKey on uniqueness violations. List operations return
// projections only.
type Store interface {
	FindByEmail(ctx context.Context, email string) (Identity, error)
	FindByID(ctx context.Context, id string) (Identity, error)
	FindByFederationKey(ctx context.Context, key FederationKey) (Identity, error)
	Create(ctx context.Context, i Identity) error
	Update(ctx context.Context, i Identity) error
	ListPublic(ctx context.Context) ([]Profile, error)
	ListAll(ctx context.Context) ([]Profile, error)
}
