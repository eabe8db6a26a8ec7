// Package sqlstore implements identity.Store over database/sql for the
// postgres and sqlite dialects.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	"github.com/sreeharsha06/Enhanced-Authentication-API/internal/db"
	"github.com/sreeharsha06/Enhanced-Authentication-API/internal/identity"
)

const identityColumns = `id, display_name, email, password_hash, federation_provider,
federation_subject, role, visibility, photo_ref, bio, phone, created_at, updated_at`

const profileOrder = ` ORDER BY created_at ASC, id ASC`

type Store struct {
	db      *sql.DB
	dialect string
}

// New wraps an open pool. dialect is db.DriverPostgres or db.DriverSQLite.
func New(sqlDB *sql.DB, dialect string) (*Store, error) {
	if sqlDB == nil {
		return nil, errors.New("sql db is required")
	}
	switch dialect {
	case db.DriverPostgres, db.DriverSQLite:
	default:
		return nil, fmt.Errorf("unsupported dialect: %s", dialect)
	}
	return &Store{db: sqlDB, dialect: dialect}, nil
}

// toMillis normalizes timestamps into millisecond precision for storage.
func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// rebind rewrites $N placeholders to ?N for sqlite.
func (s *Store) rebind(query string) string {
	if s.dialect != db.DriverSQLite {
		return query
	}
	var b strings.Builder
	for i := 0; i < len(query); i++ {
		if query[i] == '$' && i+1 < len(query) && query[i+1] >= '0' && query[i+1] <= '9' {
			b.WriteByte('?')
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanIdentity(row rowScanner) (identity.Identity, error) {
	var (
		i                                   identity.Identity
		hash, provider, subject, photo, bio sql.NullString
		phone                               sql.NullString
		role, visibility                    string
		created, updated                    int64
	)
	err := row.Scan(
		&i.ID, &i.DisplayName, &i.Email, &hash, &provider,
		&subject, &role, &visibility, &photo, &bio, &phone, &created, &updated,
	)
	if err != nil {
		return identity.Identity{}, err
	}
	i.PasswordHash = hash.String
	i.Federation = identity.FederationKey{Provider: provider.String, Subject: subject.String}
	i.Role = identity.Role(role)
	i.Visibility = identity.Visibility(visibility)
	i.PhotoRef = photo.String
	i.Bio = bio.String
	i.Phone = phone.String
	i.CreatedAt = fromMillis(created)
	i.UpdatedAt = fromMillis(updated)
	return i, nil
}

func (s *Store) findOne(ctx context.Context, where string, args ...any) (identity.Identity, error) {
	query := s.rebind(`SELECT ` + identityColumns + ` FROM identities WHERE ` + where)
	i, err := scanIdentity(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return identity.Identity{}, identity.ErrNotFound
	}
	if err != nil {
		return identity.Identity{}, fmt.Errorf("query identity: %w", err)
	}
	return i, nil
}

func (s *Store) FindByEmail(ctx context.Context, email string) (identity.Identity, error) {
	return s.findOne(ctx, `email = $1`, identity.NormalizeEmail(email))
}

func (s *Store) FindByID(ctx context.Context, id string) (identity.Identity, error) {
	return s.findOne(ctx, `id = $1`, id)
}

func (s *Store) FindByFederationKey(ctx context.Context, key identity.FederationKey) (identity.Identity, error) {
	if key.Provider == "" || key.Subject == "" {
		return identity.Identity{}, identity.ErrNotFound
	}
	return s.findOne(ctx, `federation_provider = $1 AND federation_subject = $2`, key.Provider, key.Subject)
}

func (s *Store) Create(ctx context.Context, i identity.Identity) error {
	query := s.rebind(`INSERT INTO identities (` + identityColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`)

	_, err := s.db.ExecContext(ctx, query,
		i.ID, i.DisplayName, identity.NormalizeEmail(i.Email), nullable(i.PasswordHash),
		nullable(i.Federation.Provider), nullable(i.Federation.Subject),
		string(i.Role), string(i.Visibility), nullable(i.PhotoRef), nullable(i.Bio), nullable(i.Phone),
		toMillis(i.CreatedAt), toMillis(i.UpdatedAt),
	)
	if err != nil {
		return s.translate("insert identity", err)
	}
	return nil
}

// Update replaces every mutable column of the row identified by i.ID.
func (s *Store) Update(ctx context.Context, i identity.Identity) error {
	query := s.rebind(`UPDATE identities SET
display_name = $2, email = $3, password_hash = $4, federation_provider = $5,
federation_subject = $6, role = $7, visibility = $8, photo_ref = $9, bio = $10,
phone = $11, updated_at = $12
WHERE id = $1`)

	res, err := s.db.ExecContext(ctx, query,
		i.ID, i.DisplayName, identity.NormalizeEmail(i.Email), nullable(i.PasswordHash),
		nullable(i.Federation.Provider), nullable(i.Federation.Subject),
		string(i.Role), string(i.Visibility), nullable(i.PhotoRef), nullable(i.Bio), nullable(i.Phone),
		toMillis(i.UpdatedAt),
	)
	if err != nil {
		return s.translate("update identity", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update identity: %w", err)
	}
	if n == 0 {
		return identity.ErrNotFound
	}
	return nil
}

func (s *Store) ListPublic(ctx context.Context) ([]identity.Profile, error) {
	return s.list(ctx, `SELECT ` + identityColumns + ` FROM identities WHERE visibility = $1` + profileOrder,
		string(identity.VisibilityPublic))
}

func (s *Store) ListAll(ctx context.Context) ([]identity.Profile, error) {
	return s.list(ctx, `SELECT ` + identityColumns + ` FROM identities` + profileOrder)
}

func (s *Store) list(ctx context.Context, query string, args ...any) ([]identity.Profile, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("list identities: %w", err)
	}
	defer rows.Close()

	profiles := make([]identity.Profile, 0)
	for rows.Next() {
		i, err := scanIdentity(rows)
		if err != nil {
			return nil, fmt.Errorf("scan identity: %w", err)
		}
		profiles = append(profiles, i.Profile())
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list identities: %w", err)
	}
	return profiles, nil
}

// translate maps unique violations onto the store's sentinel errors.
func (s *Store) translate(op string, err error) error {
	switch uniqueViolation(err) {
	case "email":
		return identity.ErrDuplicateEmail
	case "federation":
		return identity.ErrDuplicateFederationKey
	}
	return fmt.Errorf("%s: %w", op, err)
}

// uniqueViolation returns "email", "federation", "other" for a unique
// constraint failure and "" for anything else.
func uniqueViolation(err error) string {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		if pqErr.Code != "23505" {
			return ""
		}
		switch pqErr.Constraint {
		case "identities_email_unique":
			return "email"
		case "identities_federation_unique":
			return "federation"
		}
		return "other"
	}

	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_UNIQUE, sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY:
		default:
			return ""
		}
	}
	message := strings.ToLower(err.Error())
	if !strings.Contains(message, "unique constraint failed") {
		return ""
	}
	switch {
	case strings.Contains(message, "identities.email"):
		return "email"
	case strings.Contains(message, "identities.federation_provider"):
		return "federation"
	}
	return "other"
}

var _ identity.Store = (*Store)(nil)
