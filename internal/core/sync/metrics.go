package sync

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// OperationsTotal counts finished operation runs by outcome.
	OperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pocketsync",
			Name:      "operations_total",
			Help:      "Total number of sync operation runs",
		},
		[]string{"operation", "status"},
	)

	OperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "pocketsync",
			Name:      "operation_duration_seconds",
			Help:      "Duration of sync operation runs in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	// ItemsApplied counts saved items and tags written by sync pages.
	ItemsApplied = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pocketsync",
			Name:      "items_applied_total",
			Help:      "Total number of entities applied from server pages",
		},
		[]string{"collection", "result"},
	)

	RetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pocketsync",
			Name:      "retries_total",
			Help:      "Total number of operation retries triggered by the retry signal",
		},
		[]string{"operation"},
	)

	PendingTasks = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "pocketsync",
			Name:      "pending_tasks",
			Help:      "Number of mutations waiting to be sent",
		},
	)

	// Online is 1 while the API endpoint answers probes.
	Online = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "pocketsync",
			Name:      "online",
			Help:      "API reachability (1 = reachable, 0 = unreachable)",
		},
	)
)

// RecordOperation records a finished operation run.
func RecordOperation(operation string, status Status, seconds float64) {
	OperationsTotal.WithLabelValues(operation, status.String()).Inc()
	OperationDuration.WithLabelValues(operation).Observe(seconds)
}

// RecordApplied records entities applied from one page.
func RecordApplied(collection Collection, result string, n int) {
	if n > 0 {
		ItemsApplied.WithLabelValues(string(collection), result).Add(float64(n))
	}
}

func RecordRetry(operation string) {
	RetriesTotal.WithLabelValues(operation).Inc()
}

func SetOnline(online bool) {
	if online {
		Online.Set(1)
	} else {
		Online.Set(0)
	}
}
