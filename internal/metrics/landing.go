package metrics

import "github.com/san-kum/lazyfall/internal/sim"

// LandedAt records when the body first came to rest, or -1.
type LandedAt struct {
	name string
	at   float64
}

func NewLandedAt() *LandedAt {
	return &LandedAt{name: "landed_at_ms", at: -1}
}

func (l *LandedAt) Name() string { return l.name }

func (l *LandedAt) Observe(s sim.Sample, t float64) {
	if l.at < 0 && s.Grounded {
		l.at = t
	}
}

func (l *LandedAt) Value() float64 { return l.at }

func (l *LandedAt) Reset() { l.at = -1 }
