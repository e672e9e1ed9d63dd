package router

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-cbt/internal/config"
	"github.com/stemsi/exstem-cbt/internal/handler"
	"github.com/stemsi/exstem-cbt/internal/metrics"
	"github.com/stemsi/exstem-cbt/internal/middleware"
	"github.com/stemsi/exstem-cbt/internal/model"
	"github.com/stemsi/exstem-cbt/internal/response"
	"github.com/stemsi/exstem-cbt/internal/service"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Attempt      *handler.AttemptHandler
	AdminAttempt *handler.AdminAttemptHandler
	Monitor      *handler.MonitorHandler
	WS           *handler.WSHandler
	System       *handler.SystemHandler
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
func SetupRouter(
	authService *service.AuthService,
	handlers *Handlers,
	answerLimiter *middleware.RateLimiter,
	cfg *config.Config,
	log zerolog.Logger,
) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.New()
	router.Use(gin.Recovery())

	// ─── CORS ──────────────────────────────────────────────────────────
	// If AllowedOrigins is set in config, restrict to that list;
	// otherwise allow all (*) so dev works without extra config.
	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	// Request ID and request-scoped logger on every response.
	router.Use(response.RequestIDMiddleware(log))
	router.Use(metrics.Middleware())

	router.GET("/healthz", handlers.System.Health)
	router.GET("/metrics", metrics.Handler())

	api := router.Group("/api/v1")
	api.Use(middleware.Brotli())

	// ─── 1. Student Group (JWT, never cached) ──────────────────────────
	studentAPI := api.Group("/student")
	studentAPI.Use(middleware.RequireStudentJWT(authService), middleware.NoStore())
	{
		studentAPI.POST("/exams/:exam_id/attempts", handlers.Attempt.StartAttempt)

		attempts := studentAPI.Group("/attempts/:attempt_id")
		{
			attempts.GET("", handlers.Attempt.GetSession)
			attempts.PUT("/answers/:question_id", answerLimiter.Middleware(), handlers.Attempt.SubmitAnswer)
			attempts.POST("/questions/:question_id/flag", handlers.Attempt.FlagQuestion)
			attempts.DELETE("/questions/:question_id/flag", handlers.Attempt.UnflagQuestion)
			attempts.POST("/tab-switch", handlers.Attempt.RecordTabSwitch)
			attempts.POST("/submit", handlers.Attempt.SubmitAttempt)
			attempts.GET("/time", handlers.Attempt.GetTimeRemaining)
			attempts.GET("/results", handlers.Attempt.GetResults)
		}
	}

	// ─── 2. WebSocket Group (token via ?token=) ────────────────────────
	ws := router.Group("/ws/v1")
	ws.Use(middleware.RequireStudentJWT(authService))
	{
		ws.GET("/student/attempts/:attempt_id/stream", handlers.WS.AttemptStream)
	}

	// ─── 3. Admin Group (JWT + RBAC) ───────────────────────────────────
	adminAPI := api.Group("/admin")
	adminAPI.Use(middleware.RequireAdminJWT(authService))
	{
		adminAPI.GET("/exams/:exam_id/attempts",
			middleware.RequirePermission(model.PermissionAttemptsRead),
			handlers.AdminAttempt.ListAttempts,
		)
		adminAPI.POST("/attempts/:attempt_id/force-submit",
			middleware.RequirePermission(model.PermissionAttemptsForceSubmit),
			handlers.AdminAttempt.ForceSubmit,
		)
		adminAPI.GET("/exams/:exam_id/monitor",
			middleware.RequirePermission(model.PermissionExamsMonitor),
			handlers.Monitor.MonitorExamSSE,
		)
		adminAPI.GET("/exams/:exam_id/monitor/snapshot",
			middleware.RequirePermission(model.PermissionExamsMonitor),
			handlers.Monitor.GetSnapshot,
		)

		// System status, open to all admins.
		adminAPI.GET("/system/status", handlers.System.Status)
	}

	return router
}
