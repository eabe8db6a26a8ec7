package apperr

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sreeharsha06/Enhanced-Authentication-API/internal/auth/account"
	"github.com/sreeharsha06/Enhanced-Authentication-API/internal/auth/provider"
	"github.com/sreeharsha06/Enhanced-Authentication-API/internal/auth/resolver"
	"github.com/sreeharsha06/Enhanced-Authentication-API/internal/identity"
	"github.com/sreeharsha06/Enhanced-Authentication-API/internal/middleware"
	"github.com/sreeharsha06/Enhanced-Authentication-API/internal/photo"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want Category
	}{
		{"nil", nil, Success},
		{"validation", fmt.Errorf("%w: name is required", identity.ErrValidation), BadRequest},
		{"duplicate", account.ErrDuplicateAccount, BadRequest},
		{"not found account", account.ErrAccountNotFound, BadRequest},
		{"bad password", account.ErrInvalidCredentials, BadRequest},
		{"federation only", account.ErrFederationOnlyAccount, BadRequest},
		{"link required", resolver.ErrLinkRequired, BadRequest},
		{"ambiguous photo", photo.ErrAmbiguousPhotoSource, BadRequest},
		{"fetch failed", fmt.Errorf("%w: remote returned 404", photo.ErrPhotoFetchFailed), BadRequest},
		{"photo store", photo.ErrPhotoStore, Internal},
		{"federation token", fmt.Errorf("%w: bad aud", provider.ErrTokenInvalid), Unauthorized},
		{"exchange failed", provider.ErrExchangeFailed, Internal},
		{"unauthorized", middleware.ErrUnauthorized, Unauthorized},
		{"forbidden", middleware.ErrForbidden, Forbidden},
		{"middleware internal", middleware.ErrInternal, Internal},
		{"missing identity", identity.ErrNotFound, NotFound},
		{"dependency", fmt.Errorf("%w: find: boom", account.ErrDependency), Internal},
		{"unknown", errors.New("boom"), Internal},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Classify(tc.err).Category)
		})
	}
}

func TestClassifyValidationMessage(t *testing.T) {
	out := Classify(fmt.Errorf("%w: password must be at least 6 characters long", identity.ErrValidation))
	assert.Equal(t, "password must be at least 6 characters long", out.Message)
}

func TestHTTPStatus(t *testing.T) {
	assert.Equal(t, http.StatusOK, Success.HTTPStatus())
	assert.Equal(t, http.StatusBadRequest, BadRequest.HTTPStatus())
	assert.Equal(t, http.StatusUnauthorized, Unauthorized.HTTPStatus())
	assert.Equal(t, http.StatusForbidden, Forbidden.HTTPStatus())
	assert.Equal(t, http.StatusNotFound, NotFound.HTTPStatus())
	assert.Equal(t, http.StatusInternalServerError, Internal.HTTPStatus())
}

func TestAbortHidesInternalDetail(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/x", func(c *gin.Context) {
		Abort(c, fmt.Errorf("%w: db password=hunter2", account.ErrDependency))
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, MsgServerError, body["error"])
	assert.NotContains(t, rec.Body.String(), "hunter2")
}
