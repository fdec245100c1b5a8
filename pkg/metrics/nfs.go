package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// NFSMetrics implements nfs3.Metrics against the global Prometheus
// registry. If metrics are disabled (InitRegistry was never called),
// NewNFSMetrics returns a no-op implementation instead.
type NFSMetrics interface {
	RecordRequest(procedure string, durationSeconds float64, status uint32)
	RecordBytesTransferred(direction string, bytes int64)
}

type nfsMetrics struct {
	requestsTotal    *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
	bytesTransferred *prometheus.CounterVec
}

// NewNFSMetrics builds a Prometheus-backed NFSMetrics, or a no-op one if
// InitRegistry has not been called.
func NewNFSMetrics() NFSMetrics {
	if !IsEnabled() {
		return noopNFSMetrics{}
	}

	reg := GetRegistry()

	return &nfsMetrics{
		requestsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "nfsd3_requests_total",
				Help: "Total number of NFSv3 requests by procedure and RPC accept_stat",
			},
			[]string{"procedure", "status"},
		),
		requestDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "nfsd3_request_duration_seconds",
				Help:    "Duration of NFSv3 requests in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
			},
			[]string{"procedure"},
		),
		bytesTransferred: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "nfsd3_bytes_transferred_total",
				Help: "Total bytes transferred via READ/WRITE operations",
			},
			[]string{"direction"},
		),
	}
}

func (m *nfsMetrics) RecordRequest(procedure string, durationSeconds float64, status uint32) {
	m.requestsTotal.WithLabelValues(procedure, fmt.Sprintf("%d", status)).Inc()
	m.requestDuration.WithLabelValues(procedure).Observe(durationSeconds)
}

func (m *nfsMetrics) RecordBytesTransferred(direction string, bytes int64) {
	m.bytesTransferred.WithLabelValues(direction).Add(float64(bytes))
}

type noopNFSMetrics struct{}

func (noopNFSMetrics) RecordRequest(string, float64, uint32)    {}
func (noopNFSMetrics) RecordBytesTransferred(string, int64)     {}
