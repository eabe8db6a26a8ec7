package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/sreeharsha06/Enhanced-Authentication-API/internal/apperr"
	"github.com/sreeharsha06/Enhanced-Authentication-API/internal/middleware"
	"github.com/sreeharsha06/Enhanced-Authentication-API/internal/photo"
	"github.com/sreeharsha06/Enhanced-Authentication-API/internal/profile"
)

const (
	photoFileField = "profilePhotoFile"
	photoURLField  = "profilePhotoUrl"
)

type Handler struct {
	profiles *profile.Service
}

func NewHandler(profiles *profile.Service) *Handler {
	return &Handler{profiles: profiles}
}

// RegisterRoutes mounts /profile behind requireAuth and /admin behind both
// requireAuth and requireAdmin.
func (h *Handler) RegisterRoutes(r *gin.Engine, requireAuth, requireAdmin gin.HandlerFunc) {
	p := r.Group("/profile", requireAuth)
	p.GET("/me", h.Me)
	p.PUT("/update", h.Update)
	p.PUT("/photo", h.Photo)
	p.PUT("/visibility", h.Visibility)
	p.GET("/all", h.List)

	admin := r.Group("/admin", requireAuth, requireAdmin)
	admin.GET("/profiles", h.AdminList)
}

func subject(c *gin.Context) (string, bool) {
	id := c.GetString(middleware.SubjectKey)
	if id == "" {
		apperr.Abort(c, middleware.ErrUnauthorized)
		return "", false
	}
	return id, true
}

func (h *Handler) Me(c *gin.Context) {
	id, ok := subject(c)
	if !ok {
		return
	}

	p, err := h.profiles.Me(c.Request.Context(), id)
	if err != nil {
		apperr.Abort(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

type updateRequest struct {
	Name     *string `json:"name"`
	Bio      *string `json:"bio"`
	Phone    *string `json:"phone"`
	Email    *string `json:"email"`
	Password *string `json:"password"`
}

func (h *Handler) Update(c *gin.Context) {
	id, ok := subject(c)
	if !ok {
		return
	}

	var req updateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	p, err := h.profiles.Update(c.Request.Context(), id, profile.UpdateInput{
		Name:     req.Name,
		Bio:      req.Bio,
		Phone:    req.Phone,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		apperr.Abort(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

type visibilityRequest struct {
	IsPublic *bool `json:"isPublic" binding:"required"`
}

func (h *Handler) Visibility(c *gin.Context) {
	id, ok := subject(c)
	if !ok {
		return
	}

	var req visibilityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "isPublic is required"})
		return
	}

	p, err := h.profiles.SetVisibility(c.Request.Context(), id, *req.IsPublic)
	if err != nil {
		apperr.Abort(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// Photo accepts a multipart file in profilePhotoFile or a remote URL in
// profilePhotoUrl. Choosing between them is left to the resolver.
func (h *Handler) Photo(c *gin.Context) {
	id, ok := subject(c)
	if !ok {
		return
	}

	var upload *photo.Upload
	fh, err := c.FormFile(photoFileField)
	switch {
	case err == nil:
		f, err := fh.Open()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable upload"})
			return
		}
		defer f.Close()
		upload = &photo.Upload{Filename: fh.Filename, Content: f}
	case errors.Is(err, http.ErrMissingFile), errors.Is(err, http.ErrNotMultipart):
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid multipart form"})
		return
	}

	p, err := h.profiles.SetPhoto(c.Request.Context(), id, upload, c.PostForm(photoURLField))
	if err != nil {
		apperr.Abort(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *Handler) List(c *gin.Context) {
	id, ok := subject(c)
	if !ok {
		return
	}

	profiles, err := h.profiles.List(c.Request.Context(), id)
	if err != nil {
		apperr.Abort(c, err)
		return
	}
	c.JSON(http.StatusOK, profiles)
}

func (h *Handler) AdminList(c *gin.Context) {
	profiles, err := h.profiles.ListAll(c.Request.Context())
	if err != nil {
		apperr.Abort(c, err)
		return
	}
	c.JSON(http.StatusOK, profiles)
}
