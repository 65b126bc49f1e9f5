// Package metrics summarizes the samples of a single body's trace.
package metrics

import "github.com/san-kum/lazyfall/internal/sim"

// Metric folds a stream of samples into one number. t is the sample time
// in milliseconds since the trace started.
type Metric interface {
	Name() string
	Observe(s sim.Sample, t float64)
	Value() float64
	Reset()
}

// Defaults returns a fresh instance of every trace metric.
func Defaults() []Metric {
	return []Metric{
		NewBounces(),
		NewLandedAt(),
		NewPeakSpeed(),
	}
}

// Collect reads every metric into a map keyed by name.
func Collect(ms []Metric) map[string]float64 {
	out := make(map[string]float64, len(ms))
	for _, m := range ms {
		out[m.Name()] = m.Value()
	}
	return out
}
