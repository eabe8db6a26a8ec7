package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/sreeharsha06/Enhanced-Authentication-API/internal/auth/token"
	"github.com/sreeharsha06/Enhanced-Authentication-API/internal/identity"
	"github.com/sreeharsha06/Enhanced-Authentication-API/internal/logger"
	"github.com/sreeharsha06/Enhanced-Authentication-API/internal/metrics"
	"github.com/sreeharsha06/Enhanced-Authentication-API/internal/session"
)

var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrInternal     = errors.New("internal error")
)

// Fixed client-facing messages. Causes are logged, never returned.
const (
	msgUnauthorized = "Token is not valid"
	msgForbidden    = "Access denied"
	msgInternal     = "Server error"
)

// unexported, collision-proof context key
type claimsContextKeyType struct{}

var claimsKey = claimsContextKeyType{}

// ClaimsFromContext extracts the authenticated token claims from context.
func ClaimsFromContext(ctx context.Context) (token.Claims, bool) {
	claims, ok := ctx.Value(claimsKey).(token.Claims)
	return claims, ok
}

// SubjectFromContext extracts the authenticated subject ID from context.
func SubjectFromContext(ctx context.Context) (string, bool) {
	claims, ok := ClaimsFromContext(ctx)
	if !ok || claims.SubjectID == "" {
		return "", false
	}
	return claims.SubjectID, true
}

// WithClaims stores claims in ctx the same way RequireAuth does.
func WithClaims(ctx context.Context, claims token.Claims) context.Context {
	return context.WithValue(ctx, claimsKey, claims)
}

type TokenValidator interface {
	Validate(raw string) (token.Claims, error)
}

type IdentityReader interface {
	FindByID(ctx context.Context, id string) (identity.Identity, error)
}

type AuthMiddleware struct {
	tokens      TokenValidator
	revocations session.Revocations
	identities  IdentityReader
	metrics     *metrics.Metrics
}

// NewAuthMiddleware wires the token validator, the revocation list and the
// identity store. revocations may be nil, in which case no revocation check
// is made.
func NewAuthMiddleware(
	tokens TokenValidator,
	revocations session.Revocations,
	identities IdentityReader,
	m *metrics.Metrics,
) *AuthMiddleware {
	return &AuthMiddleware{
		tokens:      tokens,
		revocations: revocations,
		identities:  identities,
		metrics:     m,
	}
}

// Authenticate validates an Authorization header value. Every token problem
// collapses to ErrUnauthorized; only a failed revocation lookup is ErrInternal.
func (a *AuthMiddleware) Authenticate(ctx context.Context, header string) (token.Claims, error) {
	raw, ok := bearerToken(header)
	if !ok {
		a.metrics.RecordDecision("authenticate", "missing_token")
		return token.Claims{}, ErrUnauthorized
	}

	claims, err := a.tokens.Validate(raw)
	if err != nil {
		a.metrics.RecordDecision("authenticate", "invalid_token")
		logger.FromContext(ctx).Debug("token rejected", "error", err)
		return token.Claims{}, ErrUnauthorized
	}

	if a.revocations != nil {
		revoked, err := a.revocations.IsRevoked(ctx, claims.ID)
		if err != nil {
			a.metrics.RecordDecision("authenticate", "error")
			logger.FromContext(ctx).Error("revocation lookup failed", "error", err)
			return token.Claims{}, ErrInternal
		}
		if revoked {
			a.metrics.RecordDecision("authenticate", "revoked")
			return token.Claims{}, ErrUnauthorized
		}
	}

	a.metrics.RecordDecision("authenticate", "allowed")
	return claims, nil
}

// Authorize re-reads the identity so role changes apply on the next request.
func (a *AuthMiddleware) Authorize(ctx context.Context, subjectID string, required identity.Role) error {
	ident, err := a.identities.FindByID(ctx, subjectID)
	if errors.Is(err, identity.ErrNotFound) {
		a.metrics.RecordDecision("authorize", "unknown_subject")
		return ErrUnauthorized
	}
	if err != nil {
		a.metrics.RecordDecision("authorize", "error")
		logger.FromContext(ctx).Error("role lookup failed", "subject_id", subjectID, "error", err)
		return ErrInternal
	}

	if !ident.Role.Satisfies(required) {
		a.metrics.RecordDecision("authorize", "forbidden")
		return ErrForbidden
	}

	a.metrics.RecordDecision("authorize", "allowed")
	return nil
}

func (a *AuthMiddleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, err := a.Authenticate(r.Context(), r.Header.Get("Authorization"))
		if err != nil {
			writeDecisionError(w, err)
			return
		}

		next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
	})
}

// RequireRole must run behind RequireAuth.
func (a *AuthMiddleware) RequireRole(role identity.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			subjectID, ok := SubjectFromContext(r.Context())
			if !ok {
				writeDecisionError(w, ErrUnauthorized)
				return
			}

			if err := a.Authorize(r.Context(), subjectID, role); err != nil {
				writeDecisionError(w, err)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// DecisionStatus maps a middleware error to its HTTP status and message.
func DecisionStatus(err error) (int, string) {
	switch {
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized, msgUnauthorized
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden, msgForbidden
	default:
		return http.StatusInternalServerError, msgInternal
	}
}

func writeDecisionError(w http.ResponseWriter, err error) {
	status, msg := DecisionStatus(err)
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if len(value) < len(bearer) || !strings.EqualFold(value[:len(bearer)], bearer) {
		return "", false
	}

	raw := strings.TrimSpace(value[len(bearer):])
	if raw == "" {
		return "", false
	}

	return raw, true
}
