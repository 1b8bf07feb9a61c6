// Package metrics exposes extraction counters to prometheus.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hyperifyio/bunkmate/internal/extract"
)

// Collector counts strategy attempts and extraction outcomes. It satisfies
// extract.Observer.
type Collector struct {
	Attempts *prometheus.CounterVec
	Results  *prometheus.CounterVec
	Passes   *prometheus.CounterVec
	Last     *prometheus.GaugeVec
}

// New builds the collectors and registers them with reg. A nil reg skips
// registration.
func New(reg prometheus.Registerer) *Collector {
	c := &Collector{
		Attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bunkmate",
			Name:      "strategy_attempts_total",
			Help:      "Extraction strategies invoked, by method.",
		}, []string{"method"}),
		Results: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bunkmate",
			Name:      "extractions_total",
			Help:      "Extraction results, by outcome and winning method.",
		}, []string{"outcome", "method"}),
		Passes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bunkmate",
			Name:      "driver_passes_total",
			Help:      "Driver passes, by result.",
		}, []string{"result"}),
		Last: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "bunkmate",
			Name:      "last_record_classes",
			Help:      "Figures of the last successful extraction.",
		}, []string{"kind"}),
	}
	if reg != nil {
		reg.MustRegister(c.Attempts, c.Results, c.Passes, c.Last)
	}
	return c
}

func (c *Collector) OnAttempt(m extract.Method) {
	c.Attempts.WithLabelValues(string(m)).Inc()
}

func (c *Collector) OnResult(r extract.Record) {
	method := string(r.Method)
	if method == "" {
		method = "none"
	}
	c.Results.WithLabelValues(string(r.Outcome), method).Inc()
	if r.Found {
		c.Last.WithLabelValues("total").Set(float64(r.TotalClasses))
		c.Last.WithLabelValues("attended").Set(float64(r.AttendedClasses))
	}
}

// OnPass records how a driver pass ended: "found", "failed", "skipped" or
// "not_relevant".
func (c *Collector) OnPass(result string) {
	c.Passes.WithLabelValues(result).Inc()
}
