package http

import (
	"net/http"

	"streamcast/internal/infrastructure/monitoring"

	"github.com/gin-gonic/gin"
)

// ReadyHandler reports 503 while any dependency check fails.
func ReadyHandler(checker *monitoring.HealthChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		status := checker.CheckAll(c.Request.Context())
		code := http.StatusOK
		if !status.Healthy() {
			code = http.StatusServiceUnavailable
		}
		c.JSON(code, status)
	}
}
