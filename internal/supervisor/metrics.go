package supervisor

import "github.com/prometheus/client_golang/prometheus"

// Sink receives counters from each tick. The default is NoopSink; a real
// deployment wires PrometheusSink so an operator can scrape tick health.
type Sink interface {
	ObserveTick(rowsRead, rowsMarked, artifactsBuilt, deliveriesOK, deliveriesFailed int)
	ObserveTickDuration(seconds float64)
}

// NoopSink discards every observation.
type NoopSink struct{}

func (NoopSink) ObserveTick(int, int, int, int, int) {}
func (NoopSink) ObserveTickDuration(float64)         {}

// PrometheusSink records tick counters as Prometheus metrics.
type PrometheusSink struct {
	rowsRead         prometheus.Counter
	rowsMarked       prometheus.Counter
	artifactsBuilt   prometheus.Counter
	deliveriesOK     prometheus.Counter
	deliveriesFailed prometheus.Counter
	tickDuration     prometheus.Histogram
}

// NewPrometheusSink registers and returns a PrometheusSink on reg.
func NewPrometheusSink(reg prometheus.Registerer) *PrometheusSink {
	s := &PrometheusSink{
		rowsRead: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "posync_rows_read_total", Help: "Rows read from the source during change detection.",
		}),
		rowsMarked: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "posync_rows_marked_total", Help: "Rows marked transferred on the source.",
		}),
		artifactsBuilt: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "posync_artifacts_built_total", Help: "Per-site artifact files written.",
		}),
		deliveriesOK: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "posync_deliveries_succeeded_total", Help: "Artifacts successfully emailed.",
		}),
		deliveriesFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "posync_deliveries_failed_total", Help: "Artifact deliveries that failed.",
		}),
		tickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name: "posync_tick_duration_seconds", Help: "Wall time of a full supervisor tick.",
		}),
	}
	reg.MustRegister(s.rowsRead, s.rowsMarked, s.artifactsBuilt, s.deliveriesOK, s.deliveriesFailed, s.tickDuration)
	return s
}

func (s *PrometheusSink) ObserveTick(rowsRead, rowsMarked, artifactsBuilt, deliveriesOK, deliveriesFailed int) {
	s.rowsRead.Add(float64(rowsRead))
	s.rowsMarked.Add(float64(rowsMarked))
	s.artifactsBuilt.Add(float64(artifactsBuilt))
	s.deliveriesOK.Add(float64(deliveriesOK))
	s.deliveriesFailed.Add(float64(deliveriesFailed))
}

func (s *PrometheusSink) ObserveTickDuration(seconds float64) {
	s.tickDuration.Observe(seconds)
}
