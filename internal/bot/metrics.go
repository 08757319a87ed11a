package bot

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	updatesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tgsforge",
			Subsystem: "bot",
			Name:      "updates_total",
			Help:      "Total number of Telegram updates received, by kind.",
		},
		[]string{"kind"},
	)

	updatesIgnoredBannedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "tgsforge",
			Subsystem: "bot",
			Name:      "updates_ignored_banned_total",
			Help:      "Total number of updates silently dropped from banned users.",
		},
	)

	commandsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tgsforge",
			Subsystem: "bot",
			Name:      "commands_total",
			Help:      "Total number of commands handled, by command and outcome.",
		},
		[]string{"command", "outcome"},
	)

	batchesOpenedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "tgsforge",
			Subsystem: "bot",
			Name:      "batches_opened_total",
			Help:      "Total number of upload batches opened.",
		},
	)

	batchFilesDroppedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "tgsforge",
			Subsystem: "bot",
			Name:      "batch_files_dropped_total",
			Help:      "Total number of files dropped because a batch was full.",
		},
	)

	batchSizeFiles = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "tgsforge",
			Subsystem: "bot",
			Name:      "batch_size_files",
			Help:      "Number of files per processed batch.",
			Buckets:   []float64{1, 2, 3, 5, 8, 10, 15},
		},
	)

	batchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "tgsforge",
			Subsystem: "bot",
			Name:      "batch_duration_seconds",
			Help:      "Wall-clock time spent processing a batch.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		},
		[]string{"status"},
	)

	batchFilesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tgsforge",
			Subsystem: "bot",
			Name:      "batch_files_total",
			Help:      "Total number of batch files processed, by result.",
		},
		[]string{"result"},
	)

	broadcastsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "tgsforge",
			Subsystem: "bot",
			Name:      "broadcasts_total",
			Help:      "Total number of broadcasts performed.",
		},
	)

	broadcastMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tgsforge",
			Subsystem: "bot",
			Name:      "broadcast_messages_total",
			Help:      "Total number of broadcast deliveries, by result.",
		},
		[]string{"result"},
	)
)

const (
	fileResultConverted = "converted"
	fileResultFailed    = "failed"

	batchStatusCompleted = "completed"
	batchStatusTimeout   = "timeout"
	batchStatusPanic     = "panic"
)
