package fiducial

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const outcomeDecoded = "decoded"

// Metrics holds the detector's Prometheus collectors. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	candidates    *prometheus.CounterVec
	frameDuration prometheus.Histogram
	markers       prometheus.Histogram
}

// NewMetrics registers the detector collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		candidates: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "squarefid_candidates_total",
				Help: "Candidate quadrilaterals processed, by outcome",
			},
			[]string{"outcome"},
		),
		frameDuration: f.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "squarefid_frame_duration_seconds",
				Help:    "Time to decode all candidates of one frame",
				Buckets: prometheus.ExponentialBuckets(0.0001, 4, 10),
			},
		),
		markers: f.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "squarefid_markers_per_frame",
				Help:    "Decoded markers per frame",
				Buckets: []float64{0, 1, 2, 4, 8, 16, 32, 64},
			},
		),
	}
}

func (m *Metrics) observeCandidate(outcome string) {
	if m == nil {
		return
	}
	m.candidates.WithLabelValues(outcome).Inc()
}

func (m *Metrics) observeFrame(d time.Duration, markers int) {
	if m == nil {
		return
	}
	m.frameDuration.Observe(d.Seconds())
	m.markers.Observe(float64(markers))
}
