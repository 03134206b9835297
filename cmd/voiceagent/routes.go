package main

import (
	"database/sql"
	"net/http"
	"time"

	"voice-agent/internal/metrics"
	"voice-agent/pkg/logger"
	"voice-agent/pkg/utils"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

// registerPublicRoutes wires unauthenticated probes.
// Keep this file free of business logic.
func registerPublicRoutes(r *gin.Engine, db *sql.DB, reg *prometheus.Registry) {
	r.GET("/healthz", func(c *gin.Context) {
		if err := utils.HealthCheck(c.Request.Context(), db, 2*time.Second); err != nil {
			logger.FromGin(c).Warn("health check failed", "err", err)
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "postgres": "down"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.GET("/metrics", gin.WrapH(metrics.Handler(reg)))
}
