package ingress

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// metricsHandler serves the process's Prometheus registry at GET /metrics.
func metricsHandler() http.Handler {
	return promhttp.Handler()
}
