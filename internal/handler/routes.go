package handler

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/userhub-io/userhub-api/internal/middleware"
	"github.com/userhub-io/userhub-api/internal/models"
	"github.com/userhub-io/userhub-api/internal/service"
)

// RegisterRoutes mounts all API routes onto the engine. Route protection is
// scope based: each guarded group names the capabilities it requires and the
// effective set is recomputed from the caller's current role on every request.
func RegisterRoutes(r *gin.Engine, authService *service.AuthService, auditStore middleware.AuditStore, logr *zap.Logger, auth *AuthHandler, users *UserHandler, admin *AdminHandler) {
	api := r.Group("/api/v1")

	authGroup := api.Group("/auth")
	{
		authGroup.POST("/register", users.Register)
		authGroup.POST("/login", auth.Login)
		authGroup.POST("/refresh", auth.Refresh)

		session := authGroup.Group("", middleware.Authenticated(authService))
		{
			session.POST("/logout", auth.Logout)
			session.POST("/logout-all", auth.LogoutAll)
			session.GET("/sessions", auth.Sessions)
			session.POST("/change-password", auth.ChangePassword)
		}
	}

	me := api.Group("/me", middleware.RequireScopes(authService, models.ScopeProfileRead))
	{
		me.GET("", users.Me)
		me.PUT("/profile",
			middleware.RequireScopes(authService, models.ScopeProfileWrite),
			middleware.Audit(auditStore, logr, models.AuditActionProfileUpdate, "profile"),
			users.UpdateProfile)
	}

	userGroup := api.Group("/users")
	{
		// Listing the whole table is an admin view, not a per-user read.
		userGroup.GET("", middleware.RequireScopes(authService, models.ScopeAdminRead, models.ScopeUserRead), users.List)
		userGroup.GET("/:id", middleware.RequireScopes(authService, models.ScopeUserRead), users.Get)
		userGroup.POST("", middleware.RequireScopes(authService, models.ScopeUserWrite), users.Create)
		userGroup.PUT("/:id", middleware.RequireScopes(authService, models.ScopeUserWrite), users.Update)
		userGroup.DELETE("/:id", middleware.RequireScopes(authService, models.ScopeUserDelete), users.Delete)
	}

	adminGroup := api.Group("/admin")
	{
		adminGroup.GET("/stats", middleware.RequireScopes(authService, models.ScopeStatsRead), admin.Stats)
		adminGroup.GET("/audit-logs", middleware.RequireScopes(authService, models.ScopeLogsRead), admin.AuditLogs)
	}
}
