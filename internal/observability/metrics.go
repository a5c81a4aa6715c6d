package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	DirectionIn  = "in"
	DirectionOut = "out"
)

var (
	registerOnce sync.Once

	framesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "duplex",
			Name:      "frames_total",
			Help:      "Frames moved through duplex connections.",
		},
		[]string{"direction"},
	)
	bytesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "duplex",
			Name:      "bytes_total",
			Help:      "Raw channel bytes moved through duplex connections.",
		},
		[]string{"direction"},
	)
	failuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "duplex",
			Name:      "failures_total",
			Help:      "Fatal duplex connection failures by kind.",
		},
		[]string{"kind"},
	)
	connectionsOpen = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "duplex",
			Name:      "connections_open",
			Help:      "Duplex connections whose channel is open.",
		},
	)
)

// RegisterMetrics registers the collectors with the default registry once.
func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(framesTotal, bytesTotal, failuresTotal, connectionsOpen)
	})
}

// MetricsServer returns an HTTP server exposing the default registry on
// /metrics. The caller runs and shuts it down.
func MetricsServer(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

func RecordFrame(direction string) {
	framesTotal.WithLabelValues(direction).Inc()
}

func RecordBytes(direction string, n int) {
	if n <= 0 {
		return
	}
	bytesTotal.WithLabelValues(direction).Add(float64(n))
}

func RecordFailure(kind string) {
	failuresTotal.WithLabelValues(kind).Inc()
}

func ConnectionOpened() {
	connectionsOpen.Inc()
}

func ConnectionClosed() {
	connectionsOpen.Dec()
}
