package http

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mohamedazimal27/rag-docmind/internal/bootstrap"
	"github.com/mohamedazimal27/rag-docmind/internal/transport/http/handler"
	"github.com/mohamedazimal27/rag-docmind/internal/transport/http/middleware"
)

func NewRouter(app *bootstrap.App) *gin.Engine {
	gin.SetMode(app.Config.App.GinMode)
	router := gin.New()
	router.Use(requestLogger(app.Logger), gin.Recovery())
	router.MaxMultipartMemory = app.Config.Storage.MaxUploadBytes

	healthHandler := handler.NewHealthHandler(app.Config.App.Name, app.Config.App.Env, app.StartedAt, app.HealthChecks())
	authHandler := handler.NewAuthHandler(app.AuthService)
	fileHandler := handler.NewFileHandler(app.UploadService, app.Config.Storage.MaxUploadBytes)
	chatHandler := handler.NewChatHandler(app.ChatService)

	router.GET("/healthz", healthHandler.Check)

	v1 := router.Group("/api/v1")
	authGroup := v1.Group("/auth")
	authGroup.POST("/register", authHandler.Register)
	authGroup.POST("/login", authHandler.Login)
	authGroup.GET("/me", middleware.AuthJWT(app.Config.Auth.JWTSecret), authHandler.Me)

	protected := v1.Group("")
	protected.Use(middleware.AuthJWT(app.Config.Auth.JWTSecret))
	protected.POST("/files", fileHandler.Upload)
	protected.GET("/files", fileHandler.List)
	protected.POST("/chat", chatHandler.Ask)
	protected.GET("/chat/history", chatHandler.GetHistory)

	return router
}

func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("http request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}
}
