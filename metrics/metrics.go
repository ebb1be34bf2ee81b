// Package metrics provides Prometheus instrumentation for the RFQ service.
package metrics

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "agrorfq",
			Name:      "http_requests_total",
			Help:      "Total HTTP requests by method, path pattern, and status code.",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration observes request latency by method and path.
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "agrorfq",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	RequestsCreatedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "agrorfq",
			Name:      "rfq_requests_created_total",
			Help:      "Requests created, by request type.",
		},
		[]string{"type"},
	)

	OffersSubmittedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "agrorfq",
		Name:      "rfq_offers_submitted_total",
		Help:      "Offers submitted against requests.",
	})

	// OfferTransitionsTotal counts offer status changes by target status.
	OfferTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "agrorfq",
			Name:      "rfq_offer_transitions_total",
			Help:      "Offer status transitions by target status.",
		},
		[]string{"status"},
	)

	OrdersCreatedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "agrorfq",
			Name:      "rfq_orders_created_total",
			Help:      "Orders derived from offers or instant takes, by source.",
		},
		[]string{"source"},
	)

	PaymentVerificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "agrorfq",
			Name:      "rfq_payment_verifications_total",
			Help:      "Payment verifications by result.",
		},
		[]string{"result"},
	)

	PayoutsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "agrorfq",
			Name:      "rfq_payouts_total",
			Help:      "Order payout attempts by result.",
		},
		[]string{"result"},
	)
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		RequestsCreatedTotal,
		OffersSubmittedTotal,
		OfferTransitionsTotal,
		OrdersCreatedTotal,
		PaymentVerificationsTotal,
		PayoutsTotal,
	)
}

// Middleware returns a gin middleware that records request metrics.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.FullPath() // route pattern, keeps label cardinality bounded
		if path == "" {
			path = "unmatched"
		}
		timer := prometheus.NewTimer(HTTPRequestDuration.WithLabelValues(c.Request.Method, path))

		c.Next()

		timer.ObserveDuration()
		HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			path,
			statusBucket(c.Writer.Status()),
		).Inc()
	}
}

// Handler returns the Prometheus metrics HTTP handler for /metrics endpoint.
func Handler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// statusBucket groups HTTP status codes into buckets (2xx, 3xx, 4xx, 5xx).
func statusBucket(code int) string {
	switch {
	case code < 200:
		return "1xx"
	case code < 300:
		return "2xx"
	case code < 400:
		return "3xx"
	case code < 500:
		return "4xx"
	default:
		return "5xx"
	}
}
