package gateway

import (
	"strings"
	"unicode"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	apiRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "siasat_api_requests_total",
			Help: "REST calls made to the SIA.Sat backend",
		},
		[]string{"endpoint", "method", "outcome"},
	)

	apiLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "siasat_api_request_duration_seconds",
			Help:    "Latency of REST calls to the SIA.Sat backend",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 10),
		},
		[]string{"endpoint", "method"},
	)
)

const (
	outcomeOK          = "ok"
	outcomeRejected    = "rejected"
	outcomeUnreachable = "unreachable"
	outcomeCanceled    = "canceled"
)

// routeLabel collapses ids so the endpoint label stays low-cardinality:
// /workshops/seats/3f2a.../reserve -> /workshops/seats/:id/reserve
func routeLabel(endpoint string) string {
	if i := strings.IndexByte(endpoint, '?'); i >= 0 {
		endpoint = endpoint[:i]
	}
	parts := strings.Split(endpoint, "/")
	for i, p := range parts {
		if strings.IndexFunc(p, unicode.IsDigit) >= 0 {
			parts[i] = ":id"
		}
	}
	return strings.Join(parts, "/")
}
