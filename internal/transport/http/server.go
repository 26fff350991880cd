package http

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"lumina-knowledge-base/internal/bootstrap"
	"lumina-knowledge-base/internal/transport/http/handler"
	"lumina-knowledge-base/internal/transport/http/middleware"
)

func NewRouter(app *bootstrap.App) *gin.Engine {
	gin.SetMode(app.Config.App.GinMode)
	router := gin.New()
	router.Use(middleware.RequestLog(app.Logger), gin.Recovery())
	// Multipart bodies beyond this spill to temp files instead of memory.
	router.MaxMultipartMemory = 8 << 20

	healthHandler := handler.NewHealthHandler(app)
	router.GET("/healthz", healthHandler.Check)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(app.Registry, promhttp.HandlerOpts{})))

	authHandler := handler.NewAuthHandler(app.AuthService, app.Logger)
	documentHandler := handler.NewDocumentHandler(app.DocumentService, app.Logger)
	searchHandler := handler.NewSearchHandler(app.SearchService)
	requireAuth := middleware.AuthJWT(app.Config.Auth.JWTSecret, app.Logger)

	v1 := router.Group("/api/v1")
	authGroup := v1.Group("/auth")
	authGroup.POST("/register", authHandler.Register)
	authGroup.POST("/login", authHandler.Login)
	authGroup.GET("/me", requireAuth, authHandler.Me)

	documentGroup := v1.Group("/documents")
	documentGroup.Use(requireAuth)
	documentGroup.GET("", documentHandler.List)
	documentGroup.POST("/upload", documentHandler.Upload)
	documentGroup.GET("/:id", documentHandler.Get)
	documentGroup.DELETE("/:id", documentHandler.Delete)

	v1.POST("/search", requireAuth, searchHandler.Search)

	return router
}
