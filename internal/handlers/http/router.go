package http

import (
	"net/http"

	"remotedesk/internal/infrastructure/middleware"
	"remotedesk/pkg/config"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// NewRouter builds the control API engine. metrics, when set, is served on
// /metrics outside the token check.
func NewRouter(cfg *config.Config, h *ControlHandler, metrics http.Handler, logger *zap.SugaredLogger) *gin.Engine {
	router := gin.New()
	router.Use(
		middleware.Recovery(logger),
		middleware.Tracing(),
		middleware.ErrorHandler(logger),
	)

	if metrics != nil {
		router.GET("/metrics", gin.WrapH(metrics))
	}

	api := router.Group("/",
		middleware.RateLimit(cfg),
		middleware.BearerToken(cfg.Control.Token),
	)
	h.SetupRoutes(api)
	return router
}
