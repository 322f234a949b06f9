package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// namespace prefixes every metric this sink registers, so the exposition
// endpoint never collides with another process's metrics on a shared
// scrape target.
const namespace = "opusrtp"

// Prometheus is a Sink backed by github.com/prometheus/client_golang,
// registering one CounterVec/GaugeVec/HistogramVec family the first time
// each metric name is observed.
type Prometheus struct {
	registry *prometheus.Registry

	mu         sync.Mutex
	counters   map[string]*prometheus.CounterVec
	gauges     map[string]*prometheus.GaugeVec
	histograms map[string]*prometheus.HistogramVec
}

// NewPrometheus creates a sink with its own registry (so tests and
// multiple instances never collide on the global default registry).
func NewPrometheus() *Prometheus {
	return &Prometheus{
		registry:   prometheus.NewRegistry(),
		counters:   make(map[string]*prometheus.CounterVec),
		gauges:     make(map[string]*prometheus.GaugeVec),
		histograms: make(map[string]*prometheus.HistogramVec),
	}
}

// Registry exposes the underlying registry so cmd/* can mount
// promhttp.HandlerFor on --metrics-bind.
func (p *Prometheus) Registry() *prometheus.Registry { return p.registry }

func (p *Prometheus) counterFor(name string) *prometheus.CounterVec {
	p.mu.Lock()
	defer p.mu.Unlock()
	if c, ok := p.counters[name]; ok {
		return c
	}
	c := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      name,
		Help:      "opusrtp counter: " + name,
	}, nil)
	p.registry.MustRegister(c)
	p.counters[name] = c
	return c
}

func (p *Prometheus) gaugeFor(name string) *prometheus.GaugeVec {
	p.mu.Lock()
	defer p.mu.Unlock()
	if g, ok := p.gauges[name]; ok {
		return g
	}
	g := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      name,
		Help:      "opusrtp gauge: " + name,
	}, nil)
	p.registry.MustRegister(g)
	p.gauges[name] = g
	return g
}

func (p *Prometheus) histogramFor(name string) *prometheus.HistogramVec {
	p.mu.Lock()
	defer p.mu.Unlock()
	if h, ok := p.histograms[name]; ok {
		return h
	}
	h := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      name,
		Help:      "opusrtp histogram: " + name,
		Buckets:   prometheus.DefBuckets,
	}, nil)
	p.registry.MustRegister(h)
	p.histograms[name] = h
	return h
}

// CounterInc adds delta to the named counter, registering it on first use.
func (p *Prometheus) CounterInc(name string, delta float64) {
	p.counterFor(name).WithLabelValues().Add(delta)
}

// GaugeSet sets the named gauge to value, registering it on first use.
func (p *Prometheus) GaugeSet(name string, value float64) {
	p.gaugeFor(name).WithLabelValues().Set(value)
}

// HistogramObserve records value in the named histogram, registering it
// on first use.
func (p *Prometheus) HistogramObserve(name string, value float64) {
	p.histogramFor(name).WithLabelValues().Observe(value)
}
