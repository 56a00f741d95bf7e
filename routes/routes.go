package routes

import (
	"net/http"

	"qrmenu-api/apperror"
	"qrmenu-api/handlers"
	"qrmenu-api/metrics"
	"qrmenu-api/middleware"
	"qrmenu-api/models"
	"qrmenu-api/response"

	"github.com/gin-gonic/gin"
)

func keyByIP(c *gin.Context) string {
	return "ip:" + middleware.ClientIP(c)
}

// SetupRoutes registers the API. The session and access gate middleware run
// on every request, so page paths served by the same engine are guarded too.
func SetupRoutes(r *gin.Engine, h *handlers.Handler) {
	r.Use(middleware.Authenticate(h.Sessions, h.DB), middleware.AccessGate())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy", "service": "qrmenu-api"})
	})
	r.GET("/metrics", metrics.Handler())
	r.NoRoute(func(c *gin.Context) {
		response.Fail(c, apperror.NotFound("Route not found"))
	})

	// ── Public routes ──────────────────────────────────────────────
	public := r.Group("/api")
	{
		public.POST("/auth/signup", h.Signup)
		public.POST("/auth/login", h.Login)
		public.POST("/auth/logout", h.Logout)
		public.GET("/auth/me", h.Me)

		public.POST("/auth/forgot-password",
			middleware.RateLimit(h.ResetRequests, keyByIP, h.Logger), h.RequestPasswordReset)
		public.POST("/auth/verify-otp", h.VerifyOTP)
		public.POST("/auth/reset-password", h.ResetPassword)

		public.GET("/public/menu/:slug", h.GetPublicMenu)
	}

	// ── Restaurant owner routes ────────────────────────────────────
	owner := r.Group("/api")
	owner.Use(middleware.AuthRequired(), middleware.RoleRequired(models.RoleOwner))
	{
		owner.POST("/business/setup", h.SetupBusiness)
		owner.GET("/business", h.GetMyBusiness)
		owner.PUT("/business", h.UpdateBusiness)

		owner.GET("/menu/items", h.ListMenuItems)
		owner.POST("/menu/items", h.AddMenuItem)
		owner.PUT("/menu/items/:id", h.UpdateMenuItem)
		owner.DELETE("/menu/items/:id", h.DeleteMenuItem)
		owner.POST("/menu/items/:id/image", h.UploadMenuItemImage)

		owner.POST("/tables", h.CreateTables)
		owner.GET("/tables", h.ListTables)
		owner.DELETE("/tables/:id", h.DeleteTable)
	}

	// ── Super admin routes ─────────────────────────────────────────
	admin := r.Group("/api/admin")
	admin.Use(middleware.AuthRequired(), middleware.RoleRequired(models.RoleSuperAdmin))
	{
		admin.GET("/signup-requests", h.ListSignupRequests)
		admin.GET("/signup-requests/:id", h.GetSignupRequest)
		admin.POST("/signup-requests/:id/decision", h.DecideSignupRequest)
		admin.GET("/businesses", h.ListBusinesses)
		admin.GET("/state-machine", h.GetSignupStateMachine)
	}
}
