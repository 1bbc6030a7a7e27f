package middleware

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/gin-gonic/gin"
)

// Probe paths; they are kept out of access logs, traces and request metrics
const (
	PathHealth  = "/health"
	PathReady   = "/ready"
	PathMetrics = "/metrics"
)

// DependencyCheck reports whether one dependency can serve stock traffic
type DependencyCheck func(ctx context.Context) error

// ReadinessTimeout bounds all dependency checks of one readiness probe
const ReadinessTimeout = 2 * time.Second

// RegisterProbes mounts the liveness probe and a readiness probe that fails
// while any check fails. Each check's outcome is listed by name.
func RegisterProbes(router gin.IRoutes, serviceName string, checks map[string]DependencyCheck) {
	names := make([]string, 0, len(checks))
	for name := range checks {
		names = append(names, name)
	}
	sort.Strings(names)

	router.GET(PathHealth, func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy", "service": serviceName})
	})

	router.GET(PathReady, func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), ReadinessTimeout)
		defer cancel()

		status, code := "ready", http.StatusOK
		results := make(map[string]string, len(names))
		for _, name := range names {
			if err := checks[name](ctx); err != nil {
				results[name] = err.Error()
				status, code = "not ready", http.StatusServiceUnavailable
				continue
			}
			results[name] = "ok"
		}

		c.JSON(code, gin.H{"status": status, "service": serviceName, "checks": results})
	})
}

func isProbePath(path string) bool {
	return path == PathHealth || path == PathReady || path == PathMetrics
}
