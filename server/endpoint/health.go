// Package endpoint provides the standard service endpoints.
package endpoint

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// HealthChecker reports per-component health. A nil error means healthy.
type HealthChecker func(ctx context.Context) map[string]error

// Health returns a handler that reports service health including component statuses.
func Health(serviceName string, checker HealthChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		status := "healthy"
		components := map[string]string{}

		if checker != nil {
			for name, err := range checker(c.Request.Context()) {
				if err != nil {
					status = "unhealthy"
					components[name] = err.Error()
				} else {
					components[name] = "ok"
				}
			}
		}

		httpStatus := http.StatusOK
		if status == "unhealthy" {
			httpStatus = http.StatusServiceUnavailable
		}

		c.JSON(httpStatus, gin.H{
			"status":     status,
			"service":    serviceName,
			"timestamp":  time.Now().UTC().Format(time.RFC3339),
			"components": components,
		})
	}
}
