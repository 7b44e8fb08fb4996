package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

type HandlerCtx struct {
	gatherer prometheus.Gatherer
	logger   *zap.Logger
}

func New(gatherer prometheus.Gatherer, logger *zap.Logger) *HandlerCtx {
	return &HandlerCtx{
		gatherer: gatherer,
		logger:   logger,
	}
}

func (c *HandlerCtx) RegisterRoute(router gin.IRouter) {
	router.GET("/health", c.health)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(c.gatherer, promhttp.HandlerOpts{})))
}

func (c *HandlerCtx) health(cGin *gin.Context) {
	c.logger.Debug("health check")
	cGin.Status(http.StatusOK)
}
