package metrics

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	dto "github.com/prometheus/client_model/go"
)

const namespace = "sc2cc"

// Metrics holds every server collector.
type Metrics struct {
	reg *prometheus.Registry

	streamsCreated prometheus.Counter
	streamsEvicted *prometheus.CounterVec
	framesReceived *prometheus.CounterVec
	encodedChunks  prometheus.Counter
	encodedBytes   prometheus.Counter
	encodeFailures prometheus.Counter
}

// New creates and registers all collectors, including the Go runtime and
// process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		reg: reg,
		streamsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "streams_created_total",
			Help:      "Total number of streams created.",
		}),
		streamsEvicted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "streams_evicted_total",
			Help:      "Total number of streams evicted from the store, by reason.",
		}, []string{"reason"}),
		framesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_received_total",
			Help:      "Total number of ingestion frames received, by channel, kind and result.",
		}, []string{"channel", "kind", "result"}),
		encodedChunks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "encoded_chunks_total",
			Help:      "Total number of encoded chunks produced.",
		}),
		encodedBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "encoded_bytes_total",
			Help:      "Total number of encoded bytes produced.",
		}),
		encodeFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "encode_failures_total",
			Help:      "Total number of encoder failures. Each one terminates a stream.",
		}),
	}
	reg.MustRegister(
		m.streamsCreated,
		m.streamsEvicted,
		m.framesReceived,
		m.encodedChunks,
		m.encodedBytes,
		m.encodeFailures,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

// TrackStreams registers the active-streams gauge, read from count at
// scrape time. It must be called at most once.
func (m *Metrics) TrackStreams(count func() int) {
	m.reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "streams_active",
		Help:      "Number of streams currently held by the store.",
	}, func() float64 { return float64(count()) }))
}

func (m *Metrics) StreamCreated() { m.streamsCreated.Inc() }

func (m *Metrics) StreamsEvicted(reason string, n int) {
	m.streamsEvicted.WithLabelValues(reason).Add(float64(n))
}

// FrameReceived counts one ingestion frame. kind is "data" or "end".
func (m *Metrics) FrameReceived(channel, kind string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.framesReceived.WithLabelValues(channel, kind, result).Inc()
}

func (m *Metrics) ChunkEncoded(bytes int) {
	m.encodedChunks.Inc()
	m.encodedBytes.Add(float64(bytes))
}

func (m *Metrics) EncodeFailed() { m.encodeFailures.Inc() }

// Snapshot is a summary of the counters, summed over all label values.
type Snapshot struct {
	StreamsActive  float64 `json:"streams_active"`
	StreamsCreated float64 `json:"streams_created"`
	StreamsEvicted float64 `json:"streams_evicted"`
	FramesReceived float64 `json:"frames_received"`
	EncodedChunks  float64 `json:"encoded_chunks"`
	EncodedBytes   float64 `json:"encoded_bytes"`
	EncodeFailures float64 `json:"encode_failures"`
}

// Snapshot gathers the registry and summarises the sc2cc families.
func (m *Metrics) Snapshot() (Snapshot, error) {
	families, err := m.reg.Gather()
	if err != nil {
		return Snapshot{}, fmt.Errorf("gather metrics: %w", err)
	}
	byName := make(map[string]*dto.MetricFamily, len(families))
	for _, mf := range families {
		byName[mf.GetName()] = mf
	}
	return Snapshot{
		StreamsActive:  sumFamily(byName[namespace+"_streams_active"]),
		StreamsCreated: sumFamily(byName[namespace+"_streams_created_total"]),
		StreamsEvicted: sumFamily(byName[namespace+"_streams_evicted_total"]),
		FramesReceived: sumFamily(byName[namespace+"_frames_received_total"]),
		EncodedChunks:  sumFamily(byName[namespace+"_encoded_chunks_total"]),
		EncodedBytes:   sumFamily(byName[namespace+"_encoded_bytes_total"]),
		EncodeFailures: sumFamily(byName[namespace+"_encode_failures_total"]),
	}, nil
}

// sumFamily adds up every sample in a counter or gauge family.
func sumFamily(mf *dto.MetricFamily) float64 {
	if mf == nil {
		return 0
	}
	var total float64
	for _, m := range mf.GetMetric() {
		switch {
		case m.Counter != nil:
			total += m.Counter.GetValue()
		case m.Gauge != nil:
			total += m.Gauge.GetValue()
		case m.Untyped != nil:
			total += m.Untyped.GetValue()
		}
	}
	return total
}
