// Package metrics holds the Prometheus collectors of the wallet authentication service.
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	nonceIssued = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "walletauth_nonce_issued_total",
			Help: "Total number of login challenges issued.",
		},
	)

	nonceValidation = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "walletauth_nonce_validation_total",
			Help: "Total number of nonce validations, by result.",
		},
		[]string{"result"}, // ok, nonce_not_found, nonce_expired, nonce_already_consumed, internal
	)

	loginAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "walletauth_login_total",
			Help: "Total number of wallet login attempts, by result.",
		},
		[]string{"result"},
	)

	noncesSwept = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "walletauth_nonce_swept_total",
			Help: "Total number of expired challenges removed by the sweeper.",
		},
	)

	httpRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "walletauth_http_requests_total",
			Help: "Total number of HTTP requests, by route and status code.",
		},
		[]string{"method", "route", "code"},
	)
)

// NonceIssued counts an issued challenge
func NonceIssued() {
	nonceIssued.Inc()
}

// NonceValidated counts a ValidateAndConsume outcome
func NonceValidated(result string) {
	nonceValidation.WithLabelValues(result).Inc()
}

// LoginAttempt counts a finished login attempt
func LoginAttempt(result string) {
	loginAttempts.WithLabelValues(result).Inc()
}

// NoncesSwept counts challenges removed by a sweep
func NoncesSwept(n int) {
	noncesSwept.Add(float64(n))
}

// HTTPRequest counts a served request
func HTTPRequest(method, route string, code int) {
	httpRequests.WithLabelValues(method, route, strconv.Itoa(code)).Inc()
}

// Handler serves the default registry in the Prometheus exposition format
func Handler() http.Handler {
	return promhttp.Handler()
}
