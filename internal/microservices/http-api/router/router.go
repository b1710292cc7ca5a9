package router

import (
	"log/slog"

	"socialhub/internal/microservices/http-api/handler"
	"socialhub/internal/microservices/http-api/middleware"
	"socialhub/internal/microservices/http-api/service"
	"socialhub/internal/microservices/websocket"

	"github.com/gin-gonic/gin"
)

type Deps struct {
	Notifications service.NotificationService
	Verifier      service.IdentityVerifier
	Push          *websocket.WSHandler
	Logger        *slog.Logger
}

// New wires the REST fallback surface, the push endpoint and health on one engine
func New(deps Deps) *gin.Engine {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger(logger))

	// public: the push endpoint verifies its own credential
	r.GET("/health", deps.Push.Health)
	r.GET("/ws", deps.Push.Handle)

	api := r.Group("", middleware.AuthMiddleware(deps.Verifier))
	handler.NewNotificationHandler(deps.Notifications).RegisterRoutes(api)

	return r
}
