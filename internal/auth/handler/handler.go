package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/sreeharsha06/Enhanced-Authentication-API/internal/apperr"
	"github.com/sreeharsha06/Enhanced-Authentication-API/internal/auth/account"
	"github.com/sreeharsha06/Enhanced-Authentication-API/internal/auth/provider"
	"github.com/sreeharsha06/Enhanced-Authentication-API/internal/logger"
	"github.com/sreeharsha06/Enhanced-Authentication-API/internal/middleware"
)

type Handler struct {
	accounts     *account.Service
	providers    *provider.Registry
	cookieSecure bool
}

func NewHandler(
	accounts *account.Service,
	registry *provider.Registry,
	cookieSecure bool,
) *Handler {
	return &Handler{
		accounts:     accounts,
		providers:    registry,
		cookieSecure: cookieSecure,
	}
}

// RegisterRoutes mounts the public auth routes on r and the authenticated
// ones behind requireAuth.
func (h *Handler) RegisterRoutes(r *gin.Engine, requireAuth gin.HandlerFunc) {
	g := r.Group("/auth")

	g.POST("/register", h.Register)
	g.POST("/login", h.Login)
	g.GET("/:provider", h.login)
	g.GET("/:provider/callback", h.callback)

	g.POST("/logout", requireAuth, h.Logout)
	g.POST("/:provider/link", requireAuth, h.Link)
}

type tokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

func respondToken(c *gin.Context, res account.Result) {
	c.JSON(http.StatusOK, tokenResponse{
		Token:     res.Token.Value,
		ExpiresAt: res.Token.ExpiresAt,
	})
}

// login starts the authorization-code flow for a provider.
func (h *Handler) login(c *gin.Context) {
	providerName := c.Param("provider")

	p, err := h.providers.Get(providerName)
	if err != nil {
		apperr.Abort(c, err)
		return
	}

	state, err := h.generateState(c)
	if err != nil {
		apperr.Abort(c, err)
		return
	}
	_, codeChallenge, err := h.generatePKCE(c)
	if err != nil {
		apperr.Abort(c, err)
		return
	}

	authURL := p.AuthCodeURL(state, codeChallenge)
	c.Redirect(http.StatusFound, authURL)
}

func (h *Handler) callback(c *gin.Context) {
	providerName := c.Param("provider")
	log := logger.FromContext(c.Request.Context())

	if _, err := h.providers.Get(providerName); err != nil {
		apperr.Abort(c, err)
		return
	}

	if !h.validateState(c) {
		c.JSON(http.StatusUnauthorized, gin.H{
			"error": "invalid state",
		})
		return
	}

	// Provider-side failure, e.g. the user denied consent.
	if errParam := c.Query("error"); errParam != "" {
		log.Warn("oidc callback returned error",
			"provider", providerName,
			"error", errParam,
			"desc", c.Query("error_description"),
		)
		c.JSON(http.StatusUnauthorized, gin.H{
			"error": "authentication failed",
		})
		return
	}

	code := c.Query("code")
	if code == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "missing authorization code",
		})
		return
	}

	codeVerifier := h.takePKCEVerifier(c)
	if codeVerifier == "" {
		c.JSON(http.StatusUnauthorized, gin.H{
			"error": "missing pkce verifier",
		})
		return
	}

	res, err := h.accounts.LoginFederated(c.Request.Context(), providerName, code, codeVerifier)
	if err != nil {
		log.Info("federated login rejected", "provider", providerName, "error", err)
		apperr.Abort(c, err)
		return
	}

	log.Info("federated login", "provider", providerName, "subject_id", res.Profile.ID)
	respondToken(c, res)
}

type linkRequest struct {
	Code         string `json:"code" binding:"required"`
	CodeVerifier string `json:"code_verifier" binding:"required"`
}

// Link attaches a provider account to the signed-in user. The client runs
// the authorization-code flow itself and posts the code with its verifier.
func (h *Handler) Link(c *gin.Context) {
	var req linkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "code and code_verifier are required"})
		return
	}

	subjectID, ok := middleware.SubjectFromContext(c.Request.Context())
	if !ok {
		apperr.Abort(c, middleware.ErrUnauthorized)
		return
	}

	p, err := h.accounts.LinkFederation(c.Request.Context(), subjectID, c.Param("provider"), req.Code, req.CodeVerifier)
	if err != nil {
		apperr.Abort(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *Handler) Logout(c *gin.Context) {
	claims, ok := middleware.ClaimsFromContext(c.Request.Context())
	if !ok {
		apperr.Abort(c, middleware.ErrUnauthorized)
		return
	}

	if err := h.accounts.Logout(c.Request.Context(), claims); err != nil {
		apperr.Abort(c, err)
		return
	}

	logger.FromContext(c.Request.Context()).Info("logout", "subject_id", claims.SubjectID, "ip", c.ClientIP())
	c.JSON(http.StatusOK, gin.H{"message": "Logged out"})
}
