package telegram

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "tgsforge"

var (
	// telegramRequestDuration measures the duration of Telegram API requests.
	// Labels:
	//   - method: API method name (sendMessage, sendDocument, getUpdates, ...)
	//   - status: request outcome (success, error, timeout)
	telegramRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "telegram",
			Name:      "request_duration_seconds",
			Help:      "Duration of Telegram API requests in seconds",
			// Buckets cover short calls (sendMessage: 0.1-1s), document
			// uploads (1-10s) and long polling (25-35s).
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 25, 30, 35},
		},
		[]string{"method", "status"},
	)

	// telegramRequestsTotal counts Telegram API requests.
	telegramRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "telegram",
			Name:      "requests_total",
			Help:      "Total number of Telegram API requests",
		},
		[]string{"method", "status"},
	)

	// telegramRetriesTotal counts retry attempts per method.
	telegramRetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "telegram",
			Name:      "retries_total",
			Help:      "Total number of retry attempts for Telegram API requests",
		},
		[]string{"method"},
	)

	// telegramErrorsTotal counts errors by type.
	// Labels:
	//   - method: API method name
	//   - error_type: network, timeout, api_error, decode_error
	telegramErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "telegram",
			Name:      "errors_total",
			Help:      "Total number of errors by type",
		},
		[]string{"method", "error_type"},
	)

	// telegramLongPollingActive is 1 while a getUpdates call is in flight.
	telegramLongPollingActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: "telegram",
			Name:      "long_polling_active",
			Help:      "Whether long polling is currently active (1 = active, 0 = inactive)",
		},
	)

	telegramLongPollingUpdates = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "telegram",
			Name:      "long_polling_updates_total",
			Help:      "Total number of updates received via long polling",
		},
	)
)

const (
	statusSuccess = "success"
	statusError   = "error"
	statusTimeout = "timeout"
)

const (
	errorTypeNetwork = "network"
	errorTypeTimeout = "timeout"
	errorTypeAPI     = "api_error"
	errorTypeDecode  = "decode_error"
)

func recordRequestDuration(method, status string, durationSeconds float64) {
	telegramRequestDuration.WithLabelValues(method, status).Observe(durationSeconds)
	telegramRequestsTotal.WithLabelValues(method, status).Inc()
}

func recordRetry(method string) {
	telegramRetriesTotal.WithLabelValues(method).Inc()
}

func recordError(method, errorType string) {
	telegramErrorsTotal.WithLabelValues(method, errorType).Inc()
}

func setLongPollingActive(active bool) {
	if active {
		telegramLongPollingActive.Set(1)
	} else {
		telegramLongPollingActive.Set(0)
	}
}

func recordLongPollingUpdates(count int) {
	telegramLongPollingUpdates.Add(float64(count))
}
