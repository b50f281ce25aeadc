package monitor

import (
	"github.com/cyclopcam/linecount/pkg/nn"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are the prometheus instruments of the monitor
type Metrics struct {
	FramesProcessed prometheus.Counter
	Crossings       *prometheus.CounterVec
	ActiveSessions  prometheus.Gauge
	DetectorErrors  prometheus.Counter
}

// NewMetrics creates the monitor's instruments, and registers them with reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		FramesProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "linecount",
			Name:      "frames_processed_total",
			Help:      "Number of frames that have been run through the counting pipeline",
		}),
		Crossings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "linecount",
			Name:      "crossings_total",
			Help:      "Number of vehicles counted crossing a line, by class",
		}, []string{"class"}),
		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "linecount",
			Name:      "active_sessions",
			Help:      "Number of sessions whose frame loop is running",
		}),
		DetectorErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "linecount",
			Name:      "detector_errors_total",
			Help:      "Number of frames on which the object detector failed",
		}),
	}
	reg.MustRegister(m.FramesProcessed, m.Crossings, m.ActiveSessions, m.DetectorErrors)
	// Make every class visible from the start, instead of only after its first crossing
	for _, c := range nn.AllVehicleClasses {
		m.Crossings.WithLabelValues(c.String())
	}
	return m
}
