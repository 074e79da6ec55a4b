package metrics

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/ruteri/shardvault/interfaces"
)

// MetricsServer serves a dedicated Prometheus registry.
type MetricsServer struct {
	registry *prometheus.Registry
	recorder *Recorder
	srv      *http.Server
}

// New creates a metrics server listening on addr with metrics prefixed by namespace.
// The process and Go runtime collectors are registered alongside the Recorder.
func New(namespace, addr string) (*MetricsServer, error) {
	registry := prometheus.NewRegistry()
	if err := registry.Register(collectors.NewGoCollector()); err != nil {
		return nil, err
	}
	if err := registry.Register(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{})); err != nil {
		return nil, err
	}

	recorder, err := NewRecorder(namespace, registry)
	if err != nil {
		return nil, err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}))

	return &MetricsServer{
		registry: registry,
		recorder: recorder,
		srv: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}, nil
}

// Recorder returns the recorder bound to this server's registry.
func (m *MetricsServer) Recorder() *Recorder {
	return m.recorder
}

// Registry returns the underlying registry.
func (m *MetricsServer) Registry() *prometheus.Registry {
	return m.registry
}

func (m *MetricsServer) ListenAndServe() error {
	return m.srv.ListenAndServe()
}

func (m *MetricsServer) Shutdown(ctx context.Context) error {
	return m.srv.Shutdown(ctx)
}

// Recorder groups the store and node-call metrics.
type Recorder struct {
	nodeRequests *prometheus.CounterVec
	nodeLatency  *prometheus.HistogramVec
	storeOps     *prometheus.CounterVec
	storeLatency *prometheus.HistogramVec
	records      *prometheus.CounterVec
}

// NewRecorder creates and registers the collectors on reg.
func NewRecorder(namespace string, reg prometheus.Registerer) (*Recorder, error) {
	r := &Recorder{
		nodeRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "node_requests_total",
			Help:      "Node API calls by node, operation and result",
		}, []string{"node", "op", "result"}),
		nodeLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "node_request_duration_seconds",
			Help:      "Latency of node API calls that produced a response",
			Buckets:   prometheus.DefBuckets,
		}, []string{"node", "op"}),
		storeOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_operations_total",
			Help:      "Replicated store operations by outcome",
		}, []string{"op", "success"}),
		storeLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "store_operation_duration_seconds",
			Help:      "Latency of replicated store operations",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"op"}),
		records: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_records_total",
			Help:      "Records seen while reading, by reconstruction result",
		}, []string{"result"}),
	}

	for _, c := range []prometheus.Collector{r.nodeRequests, r.nodeLatency, r.storeOps, r.storeLatency, r.records} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *Recorder) NodeSuccess(node, op string) {
	if r == nil {
		return
	}
	r.nodeRequests.WithLabelValues(node, op, "ok").Inc()
}

func (r *Recorder) NodeFailure(node, op string, kind interfaces.FailureKind) {
	if r == nil {
		return
	}
	r.nodeRequests.WithLabelValues(node, op, kind.String()).Inc()
}

func (r *Recorder) NodeLatency(node, op string, d time.Duration) {
	if r == nil {
		return
	}
	r.nodeLatency.WithLabelValues(node, op).Observe(d.Seconds())
}

// StoreOperation records the outcome and duration of a store-level operation.
func (r *Recorder) StoreOperation(op string, success bool, d time.Duration) {
	if r == nil {
		return
	}
	r.storeOps.WithLabelValues(op, strconv.FormatBool(success)).Inc()
	r.storeLatency.WithLabelValues(op).Observe(d.Seconds())
}

// Records counts record groups by result: "reconstructed", "incomplete",
// "inconsistent" or "failed".
func (r *Recorder) Records(result string, n int) {
	if r == nil || n == 0 {
		return
	}
	r.records.WithLabelValues(result).Add(float64(n))
}
