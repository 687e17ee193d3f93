// Command admission runs the tenant-aware request admission and routing
// core: it authenticates every inbound request, resolves its tenant to a
// live pooled database connection, and enforces the static role/permission
// table before a handler ever runs.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/carplatform/admission/internal/audit"
	"github.com/carplatform/admission/internal/auth"
	admissioncache "github.com/carplatform/admission/internal/cache"
	"github.com/carplatform/admission/internal/config"
	"github.com/carplatform/admission/internal/controlplane"
	"github.com/carplatform/admission/internal/crypto"
	apperr "github.com/carplatform/admission/internal/errors"
	"github.com/carplatform/admission/internal/jwks"
	"github.com/carplatform/admission/internal/logger"
	"github.com/carplatform/admission/internal/middleware"
	"github.com/carplatform/admission/internal/rbac"
	"github.com/carplatform/admission/internal/tenant"
)

func main() {
	cfg, err := config.Load(".env")
	if err != nil {
		// The logger is not initialized yet; this is the one place the
		// process writes directly to stderr before exiting.
		os.Stderr.WriteString("admission: " + err.Error() + "\n")
		os.Exit(1)
	}

	logger.Initialize(cfg.LogLevel, cfg.LogPretty)
	log := logger.GetLogger()

	cp, err := controlplane.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open control-plane store")
	}
	defer cp.Close()

	if err := cp.Migrate(); err != nil {
		log.Fatal().Err(err).Msg("failed to apply control-plane migrations")
	}

	decryptor, err := crypto.NewDecryptor(cfg.EncryptionKey)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build decryptor")
	}

	fetcher := jwks.NewKeyFetcher(cfg.JWKSFetchTimeout(), cfg.JWKSMaxRetries)
	keyCache := jwks.NewCache(fetcher, cfg.AuthJWKSURI)

	serviceAccounts := auth.NewServiceAccountTokenStore(cp)
	validator := auth.NewValidator(serviceAccounts, keyCache, cfg.AuthAudience, string(cfg.AuthAlgorithm))

	resolver := tenant.NewResolver(cp, decryptor, cfg.HealthProbeTimeout(), cfg.ControlPlaneTimeout())
	tenantCache := tenant.NewCache(cfg.TenantCacheTTL(), resolver.Resolve)

	redisCache, err := admissioncache.NewCacheFromURL(cfg.RedisURL)
	if err != nil {
		log.Warn().Err(err).Msg("failed to connect to Redis; tenant-cache invalidation will stay local-only")
		redisCache, _ = admissioncache.NewCache(admissioncache.Config{Enabled: false})
	}
	defer redisCache.Close()

	broadcaster := tenant.NewBroadcaster(redisCache, tenantCache)
	broadcastCtx, stopBroadcast := context.WithCancel(context.Background())
	defer stopBroadcast()
	go broadcaster.Listen(broadcastCtx)

	admission := middleware.NewAdmission(validator, tenantCache)
	guard := middleware.NewAuthorizationGuard(audit.NewLogSink())

	router := newRouter(cfg, admission, guard, tenantCache)

	srv := &http.Server{
		Addr:    ":" + cfg.APIPort,
		Handler: router,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Msg("admission core listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	waitForShutdown(log, srv, tenantCache, stopBroadcast)
}

// newRouter wires the ambient middleware chain and the tenant-aware route
// groups. Every route under cfg.APIPathPrefix runs through admission first;
// routes outside that prefix (the /healthz probe) bypass it entirely.
func newRouter(cfg *config.Config, admission *middleware.Admission, guard *middleware.AuthorizationGuard, tenantCache *tenant.Cache) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	validator := middleware.NewInputValidator()

	router.Use(
		middleware.RequestID(),
		apperr.Recovery(),
		middleware.StructuredLogger(),
		middleware.SecurityHeaders(),
		middleware.DefaultSizeLimiter(),
		middleware.TimeoutWithDuration(30*time.Second),
		middleware.Gzip(middleware.DefaultCompression),
		validator.Middleware(),
		apperr.ErrorHandler(),
	)

	router.GET("/healthz", func(c *gin.Context) {
		stats := tenantCache.Stats()
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
			"tenant_cache": gin.H{
				"total":   stats.Total,
				"active":  stats.Active,
				"expired": stats.Expired,
			},
		})
	})

	api := router.Group(cfg.APIPathPrefix)
	api.Use(admission.Middleware())
	registerDocumentRoutes(api, guard)
	registerUserRoutes(api, guard)

	return router
}

// registerDocumentRoutes mounts the document endpoints every permission in
// the rbac table's document group exists to gate.
func registerDocumentRoutes(api *gin.RouterGroup, guard *middleware.AuthorizationGuard) {
	docs := api.Group("/documents")
	docs.GET("", guard.RequirePermission(rbac.PermSearchDocuments), listDocuments)
	docs.GET("/:id", guard.RequirePermission(rbac.PermViewDocument), getDocument)
	docs.POST("", guard.RequirePermission(rbac.PermUploadDocument), uploadDocument)
	docs.PUT("/:id", guard.RequirePermission(rbac.PermEditDocument), editDocument)
	docs.DELETE("/:id", guard.RequirePermission(rbac.PermDeleteDocument), deleteDocument)
}

// registerUserRoutes mounts the tenant user-management endpoints. Creating
// or deleting a user is gated on the admin role itself rather than a
// permission check.
func registerUserRoutes(api *gin.RouterGroup, guard *middleware.AuthorizationGuard) {
	users := api.Group("/users")
	users.GET("", guard.RequirePermission(rbac.PermListUsers), listUsers)
	users.POST("", guard.RequireRole(string(rbac.RoleAdmin)), createUser)
	users.DELETE("/:id", guard.RequireRole(string(rbac.RoleAdmin)), deleteUser)
}

func listDocuments(c *gin.Context) {
	db := middleware.MustGetTenantDB(c)
	tenantID := middleware.MustGetTenantID(c)

	rows, err := db.QueryContext(c.Request.Context(), `SELECT id, name FROM documents WHERE tenant_id = $1 LIMIT 100`, tenantID)
	if err != nil {
		apperr.HandleError(c, apperr.Internal("failed to list documents"))
		return
	}
	defer rows.Close()

	type doc struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}
	var out []doc
	for rows.Next() {
		var d doc
		if err := rows.Scan(&d.ID, &d.Name); err != nil {
			apperr.HandleError(c, apperr.Internal("failed to scan document"))
			return
		}
		out = append(out, d)
	}
	c.JSON(http.StatusOK, gin.H{"documents": out})
}

func getDocument(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"id": c.Param("id")})
}

func uploadDocument(c *gin.Context) {
	c.JSON(http.StatusCreated, gin.H{"status": "accepted"})
}

func editDocument(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"id": c.Param("id"), "status": "updated"})
}

func deleteDocument(c *gin.Context) {
	c.Status(http.StatusNoContent)
}

func listUsers(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"users": []string{}})
}

func createUser(c *gin.Context) {
	var body struct {
		Username string `json:"username"`
		Email    string `json:"email"`
	}
	if err := c.BindJSON(&body); err != nil {
		apperr.HandleError(c, apperr.Internal("invalid request body"))
		return
	}
	if err := middleware.ValidateUsername(body.Username); err != nil {
		apperr.HandleError(c, apperr.Internal(err.Error()))
		return
	}
	if err := middleware.ValidateEmail(body.Email); err != nil {
		apperr.HandleError(c, apperr.Internal(err.Error()))
		return
	}
	c.JSON(http.StatusCreated, gin.H{"username": body.Username})
}

func deleteUser(c *gin.Context) {
	c.Status(http.StatusNoContent)
}

// waitForShutdown blocks until SIGINT/SIGTERM, then drains in-flight
// requests and releases every long-lived resource the admission core holds.
func waitForShutdown(log *zerolog.Logger, srv *http.Server, tenantCache *tenant.Cache, stopBroadcast context.CancelFunc) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}

	stopBroadcast()
	tenantCache.InvalidateAll()
}
