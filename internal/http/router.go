package http

import (
	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ondrasimku/upload-service-go/internal/auth"
	"github.com/ondrasimku/upload-service-go/internal/config"
	"github.com/ondrasimku/upload-service-go/internal/http/handler"
	"github.com/ondrasimku/upload-service-go/internal/http/middleware"
	"github.com/ondrasimku/upload-service-go/internal/notify"
	"github.com/ondrasimku/upload-service-go/internal/upload"
)

func NewRouter(service *upload.Service, dispatcher *notify.Dispatcher, cfg *config.Config, logger *slog.Logger) *gin.Engine {
	router := gin.New()
	router.HandleMethodNotAllowed = true
	router.MaxMultipartMemory = 8 << 20

	router.Use(gin.Recovery(), middleware.RequestID(), middleware.Logger(logger), middleware.Metrics())
	router.NoRoute(handler.NotFound)
	router.NoMethod(handler.MethodNotAllowed)

	healthHandler := handler.NewHealthHandler()
	uploadHandler := handler.NewUploadHandler(service, dispatcher, cfg.MaxFileSize, logger)
	sharexHandler := handler.NewShareXHandler(service.UploadURL())

	router.GET("/healthz", healthHandler.Health)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	router.GET("/uploads/:filename", uploadHandler.GetFile)

	authMiddleware := auth.Middleware(auth.Config{
		Passwords:    cfg.Upload.Passwords,
		JWKSUrl:      cfg.Auth.JWKSUrl,
		Issuer:       cfg.Auth.Issuer,
		Audience:     cfg.Auth.Audience,
		JWKSCacheTTL: cfg.Auth.JWKSCacheTTL,
	}, logger)

	api := router.Group("/api")
	{
		api.GET("/sharex/upload", sharexHandler.Config)
		api.POST("/upload", authMiddleware, uploadHandler.Upload)
		api.GET("/delete-file/:hmac_hash/:filename", uploadHandler.Delete)
	}

	return router
}
