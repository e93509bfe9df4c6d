// Package prometheus exposes arena metrics to Prometheus.
package prometheus

import (
	"errors"
	"time"

	"github.com/bsm/svo"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// arenaMetrics is the Prometheus implementation of svo.ArenaMetrics.
type arenaMetrics struct {
	chunksAllocated prometheus.Counter
	chunkBytes      prometheus.Counter
	allocFailures   *prometheus.CounterVec
	liveSlots       prometheus.Gauge
	flushOperations prometheus.Counter
	flushChunks     prometheus.Histogram
	flushBytes      prometheus.Histogram
	flushDuration   prometheus.Histogram
}

// NewArenaMetrics creates a new Prometheus-backed ArenaMetrics instance
// and registers its collectors with reg. The constLabels are attached to
// every series, to tell multiple trees apart.
//
// Returns nil if reg is nil, which disables metrics.
func NewArenaMetrics(reg prometheus.Registerer, constLabels prometheus.Labels) svo.ArenaMetrics {
	if reg == nil {
		return nil
	}

	return &arenaMetrics{
		chunksAllocated: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name:        "svo_arena_chunks_allocated_total",
				Help:        "Total number of chunks obtained from the block allocator",
				ConstLabels: constLabels,
			},
		),
		chunkBytes: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name:        "svo_arena_chunk_bytes_total",
				Help:        "Total number of bytes obtained from the block allocator",
				ConstLabels: constLabels,
			},
		),
		allocFailures: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name:        "svo_arena_alloc_failures_total",
				Help:        "Total number of failed chunk allocations by reason",
				ConstLabels: constLabels,
			},
			[]string{"reason"}, // "host_memory", "device_memory", "mapping", "too_many_objects", "other"
		),
		liveSlots: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name:        "svo_arena_live_slots",
				Help:        "Number of allocated arena slots",
				ConstLabels: constLabels,
			},
		),
		flushOperations: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name:        "svo_arena_flush_operations_total",
				Help:        "Total number of successful flushes",
				ConstLabels: constLabels,
			},
		),
		flushChunks: promauto.With(reg).NewHistogram(
			prometheus.HistogramOpts{
				Name:        "svo_arena_flush_chunks",
				Help:        "Distribution of dirty chunks per flush",
				ConstLabels: constLabels,
				Buckets:     []float64{1, 2, 4, 8, 16, 64, 256, 1024},
			},
		),
		flushBytes: promauto.With(reg).NewHistogram(
			prometheus.HistogramOpts{
				Name:        "svo_arena_flush_bytes",
				Help:        "Distribution of bytes written per flush",
				ConstLabels: constLabels,
				Buckets: []float64{
					1024,     // 1KB - a handful of nodes
					16384,    // 16KB
					65536,    // 64KB - one default chunk
					262144,   // 256KB
					1048576,  // 1MB
					4194304,  // 4MB
					16777216, // 16MB
				},
			},
		),
		flushDuration: promauto.With(reg).NewHistogram(
			prometheus.HistogramOpts{
				Name:        "svo_arena_flush_duration_milliseconds",
				Help:        "Duration of flushes in milliseconds",
				ConstLabels: constLabels,
				Buckets:     []float64{0.01, 0.1, 0.5, 1, 5, 10, 50, 100, 500},
			},
		),
	}
}

func (m *arenaMetrics) ObserveChunkAllocated(bytes int) {
	m.chunksAllocated.Inc()
	m.chunkBytes.Add(float64(bytes))
}

func (m *arenaMetrics) ObserveAllocFailure(err error) {
	m.allocFailures.WithLabelValues(failureReason(err)).Inc()
}

func (m *arenaMetrics) ObserveLiveSlots(n int) {
	m.liveSlots.Set(float64(n))
}

func (m *arenaMetrics) ObserveFlush(chunks, bytes int, d time.Duration) {
	m.flushOperations.Inc()
	m.flushChunks.Observe(float64(chunks))
	m.flushBytes.Observe(float64(bytes))
	m.flushDuration.Observe(float64(d) / float64(time.Millisecond))
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, svo.ErrOutOfHostMemory):
		return "host_memory"
	case errors.Is(err, svo.ErrOutOfDeviceMemory):
		return "device_memory"
	case errors.Is(err, svo.ErrMappingFailed):
		return "mapping"
	case errors.Is(err, svo.ErrTooManyObjects):
		return "too_many_objects"
	default:
		return "other"
	}
}
