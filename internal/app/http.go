package app

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/sreeharsha06/Enhanced-Authentication-API/internal/auth/account"
	"github.com/sreeharsha06/Enhanced-Authentication-API/internal/auth/credentials"
	authhandler "github.com/sreeharsha06/Enhanced-Authentication-API/internal/auth/handler"
	"github.com/sreeharsha06/Enhanced-Authentication-API/internal/auth/provider"
	"github.com/sreeharsha06/Enhanced-Authentication-API/internal/auth/provider/google"
	"github.com/sreeharsha06/Enhanced-Authentication-API/internal/auth/resolver"
	"github.com/sreeharsha06/Enhanced-Authentication-API/internal/auth/token"
	"github.com/sreeharsha06/Enhanced-Authentication-API/internal/config"
	"github.com/sreeharsha06/Enhanced-Authentication-API/internal/identity"
	"github.com/sreeharsha06/Enhanced-Authentication-API/internal/logger"
	"github.com/sreeharsha06/Enhanced-Authentication-API/internal/metrics"
	"github.com/sreeharsha06/Enhanced-Authentication-API/internal/middleware"
	"github.com/sreeharsha06/Enhanced-Authentication-API/internal/photo"
	"github.com/sreeharsha06/Enhanced-Authentication-API/internal/profile"
	profilehandler "github.com/sreeharsha06/Enhanced-Authentication-API/internal/profile/handler"
	"github.com/sreeharsha06/Enhanced-Authentication-API/internal/session"
)

const requestIDHeader = "X-Request-ID"

func setupHTTP(ctx context.Context, cfg config.Config) (*gin.Engine, func() error, error) {

	infra, err := setupInfra(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}

	router, err := buildRouter(ctx, cfg, infra)
	if err != nil {
		_ = infra.Close()
		return nil, nil, err
	}

	return router, infra.Close, nil
}

func buildRouter(ctx context.Context, cfg config.Config, infra *Infra) (*gin.Engine, error) {

	// ----------------------------
	// Dependencies
	// ----------------------------

	registry := prometheus.NewRegistry()
	m := metrics.NewMetrics(registry)

	tokens, err := token.NewService(token.Config{
		Secret: []byte(cfg.JWTSecret),
		Issuer: cfg.TokenIssuer,
		Leeway: cfg.TokenLeeway,
	})
	if err != nil {
		return nil, err
	}

	hasher, err := credentials.NewHasher(cfg.HashCost)
	if err != nil {
		return nil, err
	}

	providers, err := setupProviders(ctx, cfg)
	if err != nil {
		return nil, err
	}

	revocations := session.NewRedisRevocations(infra.Redis.Client)

	accounts, err := account.New(account.Deps{
		Store:         infra.Store,
		Hasher:        hasher,
		Tokens:        tokens,
		Providers:     providers,
		Resolver:      resolver.NewStoreResolver(infra.Store),
		Revocations:   revocations,
		Metrics:       m,
		Logger:        logger.L,
		PasswordTTL:   cfg.PasswordTokenTTL,
		FederationTTL: cfg.FederationTokenTTL,
	})
	if err != nil {
		return nil, err
	}

	photos, err := photo.NewResolver(photo.Config{
		Dir:      cfg.UploadDir,
		MaxBytes: cfg.PhotoMaxBytes,
		Timeout:  cfg.PhotoFetchTimeout,
		Metrics:  m,
	})
	if err != nil {
		return nil, err
	}

	profiles := profile.NewService(infra.Store, hasher, photos, logger.L)
	authMiddleware := middleware.NewAuthMiddleware(tokens, revocations, infra.Store, m)

	// ----------------------------
	// Router
	// ----------------------------

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger(m))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(m.Handler()))

	requireAuth := middleware.GinRequireAuth(authMiddleware)
	requireAdmin := middleware.GinRequireRole(authMiddleware, identity.RoleAdmin)

	authhandler.NewHandler(accounts, providers, cfg.CookieSecure).RegisterRoutes(router, requireAuth)
	profilehandler.NewHandler(profiles).RegisterRoutes(router, requireAuth, requireAdmin)

	// Stored photo references are paths under the upload directory.
	router.Static("/uploads", cfg.UploadDir)

	return router, nil
}

func setupProviders(ctx context.Context, cfg config.Config) (*provider.Registry, error) {
	if !cfg.GoogleEnabled() {
		logger.Warn("google federation disabled: GOOGLE_* not configured", nil)
		return provider.NewRegistry(), nil
	}

	googleProvider, err := google.New(ctx, google.Config{
		ClientID:     cfg.GoogleClientID,
		ClientSecret: cfg.GoogleClientSecret,
		RedirectURL:  cfg.GoogleRedirectURL,
		Timeout:      cfg.FederationTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("google provider: %w", err)
	}

	return provider.NewRegistry(googleProvider), nil
}

// requestLogger attaches a request-scoped logger, then logs and counts the
// request once it completes.
func requestLogger(m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		requestID := c.GetHeader(requestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Header(requestIDHeader, requestID)

		log := logger.L.With("request_id", requestID)
		c.Request = c.Request.WithContext(logger.WithContext(c.Request.Context(), log))

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()
		elapsed := time.Since(start)

		m.RecordRequest(route, c.Request.Method, strconv.Itoa(status), elapsed.Seconds())
		log.Info("http request",
			"method", c.Request.Method,
			"route", route,
			"status", status,
			"duration_ms", elapsed.Milliseconds(),
			"ip", c.ClientIP(),
		)
	}
}
