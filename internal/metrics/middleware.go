package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const unmatchedRoute = "unmatched"

// GinMiddleware records request count, latency and in-flight requests. The
// path label is the route template so ids never become label values.
func (collectors *Collectors) GinMiddleware() gin.HandlerFunc {
	return func(context *gin.Context) {
		start := time.Now()
		collectors.HTTPRequestsInFlight.Inc()
		defer collectors.HTTPRequestsInFlight.Dec()

		context.Next()

		path := context.FullPath()
		if path == "" {
			path = unmatchedRoute
		}
		collectors.HTTPRequestsTotal.WithLabelValues(
			context.Request.Method,
			path,
			strconv.Itoa(context.Writer.Status()),
		).Inc()
		collectors.HTTPRequestDuration.WithLabelValues(
			context.Request.Method,
			path,
		).Observe(time.Since(start).Seconds())
	}
}

// Handler serves the registry in the Prometheus exposition format.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
