package metrics

import "github.com/san-kum/lazyfall/internal/sim"

// Bounces counts ground contacts that sent the body back up. A landing is
// the only step that leaves the body at exactly y=0 while airborne, so a
// contact is seen even when one query spans a whole arc. A contact that
// brings the body to rest is not a bounce.
type Bounces struct {
	name  string
	count int
}

func NewBounces() *Bounces {
	return &Bounces{name: "bounces"}
}

func (b *Bounces) Name() string {
	return b.name
}

func (b *Bounces) Observe(s sim.Sample, t float64) {
	if s.Y() == 0 && !s.Grounded && s.Velocity > 0 {
		b.count++
	}
}

func (b *Bounces) Value() float64 {
	return float64(b.count)
}

func (b *Bounces) Reset() {
	b.count = 0
}
