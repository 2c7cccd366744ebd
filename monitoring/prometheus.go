// Package monitoring provides Prometheus metrics endpoint
package monitoring

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var serviceInfo = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "sentiment_service_info",
		Help: "Static service metadata, value is always 1",
	},
	[]string{"service"},
)

func init() {
	serviceInfo.WithLabelValues("sentiment-backend").Set(1)
}

// MetricsHandler returns an HTTP handler for serving Prometheus metrics
func MetricsHandler() http.Handler {
	return promhttp.HandlerFor(prometheus.DefaultGatherer, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// SetupMetricsEndpoint configures the metrics endpoint on the given router
func SetupMetricsEndpoint(router *mux.Router) {
	router.Handle("/metrics", MetricsHandler()).Methods("GET")
}
