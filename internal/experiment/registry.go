package experiment

import (
	"fmt"
	"sort"

	"github.com/san-kum/lazyfall/internal/metrics"
)

// Registry maps metric names to constructors. It starts with every
// default trace metric.
type Registry struct {
	metrics map[string]func() metrics.Metric
}

func NewRegistry() *Registry {
	r := &Registry{metrics: make(map[string]func() metrics.Metric)}

	for i, m := range metrics.Defaults() {
		r.metrics[m.Name()] = func() metrics.Metric { return metrics.Defaults()[i] }
	}

	return r
}

func (r *Registry) GetMetric(name string) (metrics.Metric, error) {
	fn, ok := r.metrics[name]
	if !ok {
		return nil, fmt.Errorf("unknown metric: %s", name)
	}
	return fn(), nil
}

// Metrics builds the named metrics, or all of them when names is empty.
func (r *Registry) Metrics(names []string) ([]metrics.Metric, error) {
	if len(names) == 0 {
		names = r.ListMetrics()
	}
	out := make([]metrics.Metric, 0, len(names))
	for _, name := range names {
		m, err := r.GetMetric(name)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

func (r *Registry) ListMetrics() []string {
	names := make([]string, 0, len(r.metrics))
	for name := range r.metrics {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
