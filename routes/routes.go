package routes

import (
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"civicsync-fe/config"
	"civicsync-fe/controllers"
	"civicsync-fe/metrics"
	"civicsync-fe/middlewares"
	"civicsync-fe/models"
)

// Setup builds the engine with every route group.
func Setup(cfg *config.Config, h *controllers.Handler, redisClient *redis.Client) *gin.Engine {
	r := gin.New()
	r.Use(middlewares.RequestLogger(), middlewares.Recovery())
	r.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.CORSOrigins,
		AllowMethods:     []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", middlewares.RequestIDHeader},
		ExposeHeaders:    []string{middlewares.RequestIDHeader},
		AllowCredentials: true,
	}))

	r.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	apiGroup := r.Group("/api")
	apiGroup.Use(middlewares.SessionMiddleware(h.Sessions, h.Registry, middlewares.SessionOptions{
		Secret:       cfg.JWTSecret,
		TTL:          cfg.SessionTTL,
		SecureCookie: cfg.Env == "production",
	}))

	AuthRoutes(apiGroup, h)
	IssueRoutes(apiGroup, h, redisClient, cfg)
	UserRoutes(apiGroup, h)
	AdminRoutes(apiGroup, h)
	StaffRoutes(apiGroup, h)
	return r
}

func AuthRoutes(rg *gin.RouterGroup, h *controllers.Handler) {
	auth := rg.Group("/auth")
	{
		auth.POST("/signin", h.SignIn)
		auth.POST("/signup", h.SignUp)
		auth.POST("/signout", h.SignOut)
		auth.GET("/me", h.Me)
	}
}

func IssueRoutes(rg *gin.RouterGroup, h *controllers.Handler, redisClient *redis.Client, cfg *config.Config) {
	issues := rg.Group("/issues")
	{
		issues.GET("", h.ListIssues)
		issues.GET("/latest-resolved", h.LatestResolved)
		issues.GET("/:id", h.GetIssue)

		issues.POST("", middlewares.RequireAuth(),
			middlewares.ReportThrottle(redisClient, cfg.ReportQueue, cfg.DailyReportLimit), h.ReportIssue)
		issues.PATCH("/:id", middlewares.RequireAuth(), h.EditIssue)
		issues.DELETE("/:id", middlewares.RequireAuth(), h.DeleteIssue)
		issues.POST("/:id/upvote", middlewares.RequireAuth(), h.UpvoteIssue)
		issues.POST("/:id/boost", middlewares.RequireAuth(), h.BoostIssue)
	}
}

func UserRoutes(rg *gin.RouterGroup, h *controllers.Handler) {
	me := rg.Group("/me", middlewares.RequireAuth())
	{
		me.GET("/profile", h.GetProfile)
		me.PATCH("/profile", h.UpdateProfile)
		me.GET("/issues", h.MyIssues)
		me.GET("/payments", h.MyPayments)
		me.POST("/subscribe", h.Subscribe)
	}

	rg.GET("/payments/success", middlewares.RequireAuth(), h.PaymentSuccess)
	rg.POST("/uploads", middlewares.RequireAuth(), h.UploadImage)

	confirmations := rg.Group("/confirmations", middlewares.RequireAuth())
	{
		confirmations.GET("/:id", h.GetConfirmation)
		confirmations.POST("/:id", h.ResolveConfirmation)
	}
}

func AdminRoutes(rg *gin.RouterGroup, h *controllers.Handler) {
	admin := rg.Group("/admin", middlewares.RequireRole(h.Profile, models.RoleAdmin))
	{
		admin.GET("/stats", h.Stats)

		admin.GET("/issues", h.AdminIssues)
		admin.PATCH("/issues/:id/assign", h.AssignStaff)
		admin.PATCH("/issues/:id/reject", h.RejectIssue)

		admin.GET("/users", h.AdminUsers)
		admin.PATCH("/users/:id/block", h.SetBlocked)

		admin.GET("/payments", h.AdminPayments)
		admin.DELETE("/payments/:id", h.DeletePayment)

		admin.GET("/staff", h.AdminStaff)
		admin.POST("/staff", h.CreateStaff)
		admin.PATCH("/staff/:id", h.UpdateStaff)
		admin.DELETE("/staff/:id", h.DeleteStaff)
	}
}

func StaffRoutes(rg *gin.RouterGroup, h *controllers.Handler) {
	staff := rg.Group("/staff", middlewares.RequireRole(h.Profile, models.RoleStaff))
	{
		staff.GET("/issues", h.AssignedIssues)
		staff.PATCH("/issues/:id/status", h.AdvanceStatus)
	}
}
