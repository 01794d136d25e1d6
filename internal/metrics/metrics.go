package metrics

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Login methods used as the method label.
const (
	MethodPassword = "password"
	MethodOTP      = "otp"
	MethodOAuth    = "oauth"
	MethodRefresh  = "refresh"
	MethodRegister = "register"
)

var (
	authAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "identity_auth_attempts_total",
			Help: "Authentication attempts by method and outcome",
		},
		[]string{"method", "outcome"},
	)

	lockouts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "identity_lockout_rejections_total",
			Help: "Attempts rejected because the email was locked out",
		},
	)

	federationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "identity_federation_duration_seconds",
			Help:    "Duration of provider code exchange and profile fetch",
			Buckets: []float64{.05, .1, .25, .5, 1, 2, 5, 10},
		},
		[]string{"provider", "outcome"},
	)
)

func outcome(err error) string {
	if err != nil {
		return "failure"
	}
	return "success"
}

func RecordAuth(method string, err error) {
	authAttempts.WithLabelValues(method, outcome(err)).Inc()
}

func RecordLockout() {
	lockouts.Inc()
}

func ObserveFederation(provider string, started time.Time, err error) {
	federationDuration.WithLabelValues(provider, outcome(err)).Observe(time.Since(started).Seconds())
}

// Handler serves the default registry in the Prometheus text format.
func Handler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}
