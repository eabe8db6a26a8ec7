// Package token issues and validates the stateless bearer tokens handed to
// clients after a successful login. Tokens are HS256 JWTs carrying the subject,
// issue time, expiry and a unique token ID. They are tamper-evident, not
// confidential, so nothing secret goes into the claims.
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrTokenExpired          = errors.New("token expired")
	ErrTokenInvalidSignature = errors.New("token signature invalid")
	ErrTokenMalformed        = errors.New("token malformed")
	ErrMissingSecret         = errors.New("token: signing secret is required")
)

var signingMethod = jwt.SigningMethodHS256

type Config struct {
	Secret []byte
	Issuer string
	// Leeway tolerates clock skew on exp. Zero means strict expiry: a token
	// is rejected from the instant now reaches exp, exp itself included.
	Leeway time.Duration
	// Now overrides the clock; nil uses time.Now.
	Now func() time.Time
}

// Token is an issued bearer token.
type Token struct {
	Value     string
	ID        string
	ExpiresAt time.Time
}

// Claims are the authenticated facts recovered from a valid token.
type Claims struct {
	SubjectID string
	ID        string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

type Service struct {
	secret []byte
	issuer string
	leeway time.Duration
	now    func() time.Time
}

func NewService(cfg Config) (*Service, error) {
	if len(cfg.Secret) == 0 {
		return nil, ErrMissingSecret
	}
	if cfg.Leeway < 0 {
		return nil, errors.New("token: leeway must not be negative")
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		secret: cfg.Secret,
		issuer: cfg.Issuer,
		leeway: cfg.Leeway,
		now:    now,
	}, nil
}

// Issue signs a token for subjectID valid for ttl.
func (s *Service) Issue(subjectID string, ttl time.Duration) (Token, error) {
	if subjectID == "" {
		return Token{}, errors.New("token: subject is required")
	}
	if ttl <= 0 {
		return Token{}, errors.New("token: ttl must be positive")
	}

	now := s.now()
	expiresAt := now.Add(ttl)
	id := uuid.NewString()

	claims := jwt.RegisteredClaims{
		Subject:   subjectID,
		ID:        id,
		Issuer:    s.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}

	signed, err := jwt.NewWithClaims(signingMethod, claims).SignedString(s.secret)
	if err != nil {
		return Token{}, fmt.Errorf("token: sign: %w", err)
	}

	return Token{
		Value:     signed,
		ID:        id,
		ExpiresAt: expiresAt.Truncate(time.Second),
	}, nil
}

// Validate verifies signature and expiry and returns the claims.
// Only HS256 is accepted; "none" and any other algorithm fail as an invalid signature.
// Expiry is exclusive: at now == exp (plus leeway) the token is already expired.
// Segments must be canonical base64url, so flipping the unused low bits of the
// final signature character is rejected too.
func (s *Service) Validate(raw string) (Claims, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{signingMethod.Alg()}),
		jwt.WithStrictDecoding(),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	}
	if s.leeway > 0 {
		options = append(options, jwt.WithLeeway(s.leeway))
	}
	if s.issuer != "" {
		options = append(options, jwt.WithIssuer(s.issuer))
	}

	var claims jwt.RegisteredClaims
	_, err := jwt.NewParser(options...).ParseWithClaims(raw, &claims, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != signingMethod.Alg() {
			return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
		}
		return s.secret, nil
	})
	if err != nil {
		return Claims{}, classify(err)
	}

	if claims.Subject == "" || claims.ID == "" || claims.ExpiresAt == nil {
		return Claims{}, fmt.Errorf("%w: missing required claims", ErrTokenMalformed)
	}

	out := Claims{
		SubjectID: claims.Subject,
		ID:        claims.ID,
		ExpiresAt: claims.ExpiresAt.Time,
	}
	if claims.IssuedAt != nil {
		out.IssuedAt = claims.IssuedAt.Time
	}
	return out, nil
}

func classify(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return fmt.Errorf("%w: %w", ErrTokenInvalidSignature, err)
	case errors.Is(err, jwt.ErrTokenExpired):
		return fmt.Errorf("%w: %w", ErrTokenExpired, err)
	default:
		return fmt.Errorf("%w: %w", ErrTokenMalformed, err)
	}
}
