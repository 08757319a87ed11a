package converter

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "tgsforge"

var (
	// conversionDuration measures end-to-end subprocess conversion time.
	conversionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "converter",
			Name:      "duration_seconds",
			Help:      "Duration of SVG to TGS conversions in seconds",
			// Typical lottie runs take 0.5-10s depending on SVG complexity.
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 3, 5, 10, 20, 30},
		},
		[]string{"status"},
	)

	// conversionsTotal counts conversion attempts.
	// Labels:
	//   - status: success, error, empty_output
	conversionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "converter",
			Name:      "conversions_total",
			Help:      "Total number of conversion attempts",
		},
		[]string{"status"},
	)

	// outputSizeBytes tracks the size of produced TGS artifacts. The 64 KiB
	// bucket edge matches the Telegram sticker limit.
	outputSizeBytes = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "converter",
			Name:      "output_size_bytes",
			Help:      "Size of converted TGS files in bytes",
			Buckets:   []float64{1024, 4096, 16384, 32768, 49152, 65536, 131072, 262144},
		},
	)
)

const (
	statusSuccess = "success"
	statusError   = "error"
	statusEmpty   = "empty_output"
)

func recordConversion(status string, durationSeconds float64, sizeBytes int64) {
	conversionDuration.WithLabelValues(status).Observe(durationSeconds)
	conversionsTotal.WithLabelValues(status).Inc()
	if sizeBytes > 0 {
		outputSizeBytes.Observe(float64(sizeBytes))
	}
}
