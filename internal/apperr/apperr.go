// Package apperr maps domain errors onto the outcome categories the HTTP
// layer reports. Messages are fixed strings; error detail is logged, never
// sent to the client.
package apperr

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/sreeharsha06/Enhanced-Authentication-API/internal/auth/account"
	"github.com/sreeharsha06/Enhanced-Authentication-API/internal/auth/provider"
	"github.com/sreeharsha06/Enhanced-Authentication-API/internal/auth/resolver"
	"github.com/sreeharsha06/Enhanced-Authentication-API/internal/auth/token"
	"github.com/sreeharsha06/Enhanced-Authentication-API/internal/identity"
	"github.com/sreeharsha06/Enhanced-Authentication-API/internal/logger"
	"github.com/sreeharsha06/Enhanced-Authentication-API/internal/middleware"
	"github.com/sreeharsha06/Enhanced-Authentication-API/internal/photo"
)

type Category int

const (
	Success Category = iota
	BadRequest
	Unauthorized
	Forbidden
	NotFound
	Internal
)

func (c Category) String() string {
	switch c {
	case Success:
		return "success"
	case BadRequest:
		return "bad_request"
	case Unauthorized:
		return "unauthorized"
	case Forbidden:
		return "forbidden"
	case NotFound:
		return "not_found"
	default:
		return "internal_error"
	}
}

func (c Category) HTTPStatus() int {
	switch c {
	case Success:
		return http.StatusOK
	case BadRequest:
		return http.StatusBadRequest
	case Unauthorized:
		return http.StatusUnauthorized
	case Forbidden:
		return http.StatusForbidden
	case NotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

type Outcome struct {
	Category Category
	Message  string
}

const (
	MsgServerError  = "Server error"
	MsgTokenInvalid = "Token is not valid"
)

type rule struct {
	target   error
	category Category
	message  string
}

// rules are checked in order; the first errors.Is match wins.
var rules = []rule{
	{account.ErrDuplicateAccount, BadRequest, "User already exists"},
	{account.ErrAccountNotFound, BadRequest, "User not found"},
	{account.ErrInvalidCredentials, BadRequest, "Invalid credentials"},
	{account.ErrFederationOnlyAccount, BadRequest, "This account signs in with an external provider"},
	{account.ErrFederationInUse, BadRequest, "This provider account is linked to another user"},
	{account.ErrAlreadyLinked, BadRequest, "Your account is already linked to a different provider account"},
	{resolver.ErrLinkRequired, BadRequest, "An account with this email already exists. Sign in and link the provider first"},
	{resolver.ErrEmailNotVerified, BadRequest, "The provider has not verified this email address"},
	{provider.ErrUnknownProvider, BadRequest, "Unknown oauth provider"},
	{provider.ErrTokenInvalid, Unauthorized, "Authentication failed"},

	{photo.ErrAmbiguousPhotoSource, BadRequest, "Provide either profile photo file or URL, not both."},
	{photo.ErrMissingPhotoSource, BadRequest, "Provide either profile photo file or URL."},
	{photo.ErrInvalidPhotoURL, BadRequest, "Profile photo URL must be an absolute http or https URL"},
	{photo.ErrPhotoFetchFailed, BadRequest, "Failed to download image from URL"},
	{photo.ErrPhotoTooLarge, BadRequest, "Profile photo is too large"},

	{identity.ErrNotFound, NotFound, "User not found"},

	{middleware.ErrUnauthorized, Unauthorized, MsgTokenInvalid},
	{token.ErrTokenExpired, Unauthorized, MsgTokenInvalid},
	{token.ErrTokenInvalidSignature, Unauthorized, MsgTokenInvalid},
	{token.ErrTokenMalformed, Unauthorized, MsgTokenInvalid},
	{middleware.ErrForbidden, Forbidden, "Access denied"},
}

// Classify maps err to its outcome. nil is Success; anything unrecognized,
// including dependency failures, is Internal.
func Classify(err error) Outcome {
	if err == nil {
		return Outcome{Category: Success}
	}

	// Validation messages are built from fixed strings and are safe to echo.
	if errors.Is(err, identity.ErrValidation) {
		msg := strings.TrimPrefix(err.Error(), identity.ErrValidation.Error()+": ")
		return Outcome{Category: BadRequest, Message: msg}
	}

	for _, r := range rules {
		if errors.Is(err, r.target) {
			return Outcome{Category: r.category, Message: r.message}
		}
	}
	return Outcome{Category: Internal, Message: MsgServerError}
}

// Abort writes the classified error as {"error": message} and stops the
// gin chain. Internal failures are logged with their cause.
func Abort(c *gin.Context, err error) {
	out := Classify(err)
	if out.Category == Internal {
		logger.FromContext(c.Request.Context()).Error("request failed",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"error", err,
		)
	}
	c.AbortWithStatusJSON(out.Category.HTTPStatus(), gin.H{"error": out.Message})
}
