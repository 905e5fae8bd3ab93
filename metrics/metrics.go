// Package metrics holds the Prometheus collectors shared by the store,
// the sync controller and the blob service.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "lifeos"

// Metrics is safe to use as a nil pointer; every method is then a no-op.
type Metrics struct {
	storeOps     *prometheus.CounterVec
	syncOps      *prometheus.CounterVec
	syncDuration *prometheus.HistogramVec
	syncStatus   *prometheus.GaugeVec
	blobRequests *prometheus.CounterVec
	blobBytes    prometheus.Histogram
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		storeOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "operations_total",
			Help:      "Local store operations by operation and result.",
		}, []string{"op", "result"}),
		syncOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "operations_total",
			Help:      "Cloud sync operations by action and result.",
		}, []string{"action", "result"}),
		syncDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "duration_seconds",
			Help:      "Duration of cloud sync operations.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"action"}),
		syncStatus: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "status",
			Help:      "1 for the current sync status, 0 otherwise.",
		}, []string{"status"}),
		blobRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "blob",
			Name:      "requests_total",
			Help:      "Blob service requests by operation and HTTP status code.",
		}, []string{"op", "code"}),
		blobBytes: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "blob",
			Name:      "payload_bytes",
			Help:      "Size of blobs written to the blob service.",
			Buckets:   prometheus.ExponentialBuckets(256, 4, 8),
		}),
	}
	if reg != nil {
		reg.MustRegister(m.storeOps, m.syncOps, m.syncDuration, m.syncStatus, m.blobRequests, m.blobBytes)
	}
	return m
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// StoreOp counts one local store operation.
func (m *Metrics) StoreOp(op string, err error) {
	if m == nil {
		return
	}
	m.storeOps.WithLabelValues(op, result(err)).Inc()
}

// SyncOp records the outcome and duration of a sync action.
func (m *Metrics) SyncOp(action string, started time.Time, err error) {
	if m == nil {
		return
	}
	m.syncOps.WithLabelValues(action, result(err)).Inc()
	m.syncDuration.WithLabelValues(action).Observe(time.Since(started).Seconds())
}

// SyncStatus marks status as the current one among all.
func (m *Metrics) SyncStatus(status string, all []string) {
	if m == nil {
		return
	}
	for _, s := range all {
		v := 0.0
		if s == status {
			v = 1
		}
		m.syncStatus.WithLabelValues(s).Set(v)
	}
}

// BlobRequest counts one blob service request.
func (m *Metrics) BlobRequest(op string, code int) {
	if m == nil {
		return
	}
	m.blobRequests.WithLabelValues(op, strconv.Itoa(code)).Inc()
}

// BlobWrite records the size of a stored blob.
func (m *Metrics) BlobWrite(size int) {
	if m == nil {
		return
	}
	m.blobBytes.Observe(float64(size))
}
