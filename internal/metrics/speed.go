package metrics

import (
	"math"

	"github.com/san-kum/lazyfall/internal/sim"
)

// PeakSpeed is the largest vertical speed seen, in units per frame.
type PeakSpeed struct {
	name string
	peak float64
}

func NewPeakSpeed() *PeakSpeed {
	return &PeakSpeed{name: "peak_speed"}
}

func (p *PeakSpeed) Name() string {
	return p.name
}

func (p *PeakSpeed) Observe(s sim.Sample, t float64) {
	p.peak = math.Max(p.peak, math.Abs(float64(s.Velocity)))
}

func (p *PeakSpeed) Value() float64 {
	return p.peak
}

func (p *PeakSpeed) Reset() {
	p.peak = 0
}
