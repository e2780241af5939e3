package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// StorageMetrics observes object-store gateway operations. A nil receiver is
// a valid no-op.
type StorageMetrics struct {
	operationsTotal   *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	bytesTransferred  *prometheus.CounterVec
	batchSize         prometheus.Histogram
}

// NewStorageMetrics creates the storage metrics, nil when metrics are
// disabled.
func NewStorageMetrics() *StorageMetrics {
	if !IsEnabled() {
		return nil
	}

	reg := GetRegistry()
	return &StorageMetrics{
		operationsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "stratafs_storage_operations_total",
				Help: "Total number of object store operations by operation and status",
			},
			[]string{"operation", "status"},
		),
		operationDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "stratafs_storage_operation_duration_seconds",
				Help: "Duration of object store operations in seconds",
				Buckets: []float64{
					0.01, // 10ms
					0.05, // 50ms
					0.1,  // 100ms
					0.25, // 250ms
					0.5,  // 500ms
					1.0,  // 1s
					2.5,  // 2.5s
					5.0,  // 5s
					30.0, // 30s
				},
			},
			[]string{"operation"},
		),
		bytesTransferred: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "stratafs_storage_bytes_transferred_total",
				Help: "Total bytes transferred to and from the object store",
			},
			[]string{"direction"}, // read or write
		),
		batchSize: promauto.With(reg).NewHistogram(
			prometheus.HistogramOpts{
				Name:    "stratafs_storage_batch_delete_size",
				Help:    "Number of keys per batch delete call",
				Buckets: []float64{1, 10, 50, 100, 250, 500, 1000},
			},
		),
	}
}

// ObserveOperation records one gateway call.
func (m *StorageMetrics) ObserveOperation(operation string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	m.operationsTotal.WithLabelValues(operation, status).Inc()
	m.operationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordBytes records payload bytes moved in the given direction.
func (m *StorageMetrics) RecordBytes(direction string, bytes int64) {
	if m == nil {
		return
	}
	m.bytesTransferred.WithLabelValues(direction).Add(float64(bytes))
}

// RecordBatchSize records the key count of one batch delete.
func (m *StorageMetrics) RecordBatchSize(n int) {
	if m == nil {
		return
	}
	m.batchSize.Observe(float64(n))
}
