package metrics

import "github.com/prometheus/client_golang/prometheus"

// NopRegistry implements Registry with metrics that discard every value.
// It is used when no remote write endpoint is configured.
type NopRegistry struct{}

// NewNopRegistry creates a registry whose metrics do nothing.
func NewNopRegistry() *NopRegistry { return &NopRegistry{} }

func (*NopRegistry) NewGauge(prometheus.GaugeOpts) (Gauge, error) { return nopMetric{}, nil }

func (*NopRegistry) NewGaugeVec(prometheus.GaugeOpts, []string) (GaugeVec, error) {
	return nopGaugeVec{}, nil
}

func (*NopRegistry) NewCounter(prometheus.CounterOpts) (Counter, error) { return nopMetric{}, nil }

func (*NopRegistry) NewCounterVec(prometheus.CounterOpts, []string) (CounterVec, error) {
	return nopCounterVec{}, nil
}

type nopMetric struct{}

func (nopMetric) Set(float64) {}
func (nopMetric) Inc()        {}
func (nopMetric) Add(float64) {}

type nopGaugeVec struct{}

func (nopGaugeVec) With(prometheus.Labels) Gauge { return nopMetric{} }

type nopCounterVec struct{}

func (nopCounterVec) With(prometheus.Labels) Counter { return nopMetric{} }
