// Package metrics exposes the best-effort metric-publish hook the
// runtime calls at defined points, without pulling the rest of the
// observability subsystem into scope.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Hook records a single named measurement with optional labels. The
// runtime calls it; it never returns an error, since a metrics failure
// must never affect dispatch.
type Hook func(name string, delta float64, labels map[string]string)

// Noop discards every measurement; used in tests and deployments that
// don't want a /metrics endpoint.
func Noop(string, float64, map[string]string) {}

// Prometheus backs a Hook (see its Hook method) with prometheus counters,
// registered lazily on first use of each metric name.
type Prometheus struct {
	registry  *prometheus.Registry
	counters  map[string]*prometheus.CounterVec
}

// NewPrometheus constructs a Prometheus metrics hook against its own
// registry, so callers control what gets exposed on a /metrics handler.
func NewPrometheus() *Prometheus {
	return &Prometheus{
		registry: prometheus.NewRegistry(),
		counters: make(map[string]*prometheus.CounterVec),
	}
}

// Registry returns the underlying prometheus registry, for wiring into
// an HTTP handler.
func (p *Prometheus) Registry() *prometheus.Registry {
	return p.registry
}

// Hook returns the Hook function bound to p.
func (p *Prometheus) Hook() Hook {
	return func(name string, delta float64, labels map[string]string) {
		labelNames := make([]string, 0, len(labels))
		for k := range labels {
			labelNames = append(labelNames, k)
		}

		counter, ok := p.counters[name]
		if !ok {
			counter = prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "quadracode_" + name,
				Help: "Quadracode runtime counter: " + name,
			}, labelNames)
			if err := p.registry.Register(counter); err != nil {
				return
			}
			p.counters[name] = counter
		}

		counter.With(labels).Add(delta)
	}
}
