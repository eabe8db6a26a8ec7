package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/sreeharsha06/Enhanced-Authentication-API/internal/identity"
)

// SubjectKey is the gin context key holding the authenticated subject ID.
const SubjectKey = "subjectID"

// GinRequireAuth adapts the net/http AuthMiddleware to Gin.
func GinRequireAuth(auth *AuthMiddleware) gin.HandlerFunc {
	return bridge(auth.RequireAuth)
}

// GinRequireRole adapts RequireRole to Gin. It must follow GinRequireAuth.
func GinRequireRole(auth *AuthMiddleware, role identity.Role) gin.HandlerFunc {
	return bridge(auth.RequireRole(role))
}

func bridge(mw func(http.Handler) http.Handler) gin.HandlerFunc {
	return func(c *gin.Context) {
		passed := false

		// Bridge handler to allow net/http middleware execution
		next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			passed = true
			c.Request = r
			if subjectID, ok := SubjectFromContext(r.Context()); ok {
				c.Set(SubjectKey, subjectID)
			}
			c.Next()
		})

		mw(next).ServeHTTP(c.Writer, c.Request)

		// The middleware answered the request itself; stop the Gin chain.
		if !passed {
			c.Abort()
		}
	}
}
