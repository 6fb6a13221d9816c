package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	"github.com/smallbiznis/ifs-auth/internal/authz"
	"github.com/smallbiznis/ifs-auth/internal/catalog"
	"github.com/smallbiznis/ifs-auth/internal/config"
	"github.com/smallbiznis/ifs-auth/internal/http/handler"
	httpmiddleware "github.com/smallbiznis/ifs-auth/internal/http/middleware"
	"github.com/smallbiznis/ifs-auth/internal/middleware"
	"github.com/smallbiznis/ifs-auth/internal/telemetry"
)

// Handlers groups everything the router mounts.
type Handlers struct {
	Auth      *handler.AuthHandler
	Directory *handler.DirectoryHandler
	Health    *handler.HealthHandler
}

// NewRouter wires Gin routes and middleware. Guards are declared per route
// with the permission codenames of the catalog.
func NewRouter(cfg config.Config, h Handlers, authn *httpmiddleware.Authenticator, checker authz.PermissionChecker, throttle *middleware.Throttle, metrics *telemetry.Metrics, logger *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(httpmiddleware.RequestLogger(logger))
	r.Use(metrics.GinMiddleware())
	r.Use(throttle.Handler())
	r.Use(middleware.CORS(cfg))
	r.Use(otelgin.Middleware(cfg.ServiceName))

	r.GET("/healthz", h.Health.Live)
	r.GET("/readyz", h.Health.Ready)
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	api := r.Group("/")
	api.Use(authn.Handler())

	auth := api.Group("/auth")
	{
		auth.POST("/login", h.Auth.Login)
		auth.POST("/refresh", h.Auth.Refresh)
		auth.POST("/logout", h.Auth.Logout)
		auth.GET("/me", authz.RequireIdentity(), h.Auth.Me)
		auth.POST("/password", authz.RequireIdentity(), h.Auth.ChangePassword)
	}

	users := api.Group("/users")
	{
		users.POST("", authz.RequirePermission(checker, catalog.UserAdd, logger), h.Directory.CreateUser)
		users.GET("", authz.RequirePermission(checker, catalog.UserList, logger), h.Directory.ListUsers)
		users.GET("/:id", authz.RequirePermission(checker, catalog.UserView, logger), h.Directory.GetUser)
	}

	roles := api.Group("/roles")
	roles.Use(authz.RequirePermission(checker, catalog.RoleManagement, logger))
	{
		roles.GET("/:id/permissions", h.Directory.RolePermissions)
		roles.PUT("/:id/permissions", h.Directory.SetRolePermissions)
	}

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "error_description": "Route not found."})
	})

	return r
}
