package panodecode

import (
	"errors"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes Prometheus collectors that report orchestrator activity.
// A nil *Metrics records nothing.
type Metrics struct {
	requests       *prometheus.CounterVec
	outcomes       *prometheus.CounterVec
	failures       *prometheus.CounterVec
	decodeDuration *prometheus.HistogramVec
	pending        prometheus.Gauge
	cacheHits      prometheus.Counter
}

var (
	defaultMetricsOnce sync.Once
	sharedMetrics      *Metrics
)

// DefaultMetrics returns a Metrics instance registered with the global registry.
// Collectors are created once so several orchestrators can share them.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		sharedMetrics = MustNewMetrics(prometheus.DefaultRegisterer)
	})
	return sharedMetrics
}

// MustNewMetrics constructs Metrics and registers them with reg, panicking on
// registration errors the way promauto does.
func MustNewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "panodecode",
			Subsystem: "orchestrator",
			Name:      "requests_total",
			Help:      "Decode requests submitted.",
		}, []string{"format", "target"}),
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "panodecode",
			Subsystem: "orchestrator",
			Name:      "outcomes_total",
			Help:      "Resolved decode requests by outcome.",
		}, []string{"outcome"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "panodecode",
			Subsystem: "orchestrator",
			Name:      "failures_total",
			Help:      "Failed decodes by error class.",
		}, []string{"reason"}),
		decodeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "panodecode",
			Subsystem: "orchestrator",
			Name:      "decode_duration_seconds",
			Help:      "Wall time spent decoding a single request.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
		}, []string{"format"}),
		pending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "panodecode",
			Subsystem: "orchestrator",
			Name:      "pending_requests",
			Help:      "Requests waiting for a result.",
		}),
		cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "panodecode",
			Subsystem: "orchestrator",
			Name:      "cache_hits_total",
			Help:      "Requests served from the result cache.",
		}),
	}
	reg.MustRegister(m.requests, m.outcomes, m.failures, m.decodeDuration, m.pending, m.cacheHits)
	return m
}

const (
	outcomeOK         = "ok"
	outcomeError      = "error"
	outcomeSuperseded = "superseded"
	outcomeTerminated = "terminated"
	outcomeWithdrawn  = "withdrawn"
)

func (m *Metrics) requested(f Format, k TargetKind) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(f.String(), k.String()).Inc()
}

func (m *Metrics) resolved(outcome string) {
	if m == nil {
		return
	}
	m.outcomes.WithLabelValues(outcome).Inc()
}

func (m *Metrics) failed(err error) {
	if m == nil {
		return
	}
	m.failures.WithLabelValues(errorReason(err)).Inc()
}

func (m *Metrics) observeDecode(f Format, d time.Duration) {
	if m == nil {
		return
	}
	m.decodeDuration.WithLabelValues(f.String()).Observe(d.Seconds())
}

func (m *Metrics) setPending(n int) {
	if m == nil {
		return
	}
	m.pending.Set(float64(n))
}

func (m *Metrics) cacheHit() {
	if m == nil {
		return
	}
	m.cacheHits.Inc()
}

var errorReasons = []struct {
	err    error
	reason string
}{
	{ErrInvalidSignature, "invalid_signature"},
	{ErrInvalidFormat, "invalid_format"},
	{ErrInvalidHeader, "invalid_header"},
	{ErrInvalidResolution, "invalid_resolution"},
	{ErrUnsupportedCompression, "unsupported_compression"},
	{ErrTiledUnsupported, "tiled_unsupported"},
	{ErrInvalidChunkSize, "invalid_chunk_size"},
	{ErrUnexpectedEOF, "unexpected_eof"},
}

// errorReason maps an error to a low-cardinality label.
func errorReason(err error) string {
	for _, r := range errorReasons {
		if errors.Is(err, r.err) {
			return r.reason
		}
	}
	return "other"
}
