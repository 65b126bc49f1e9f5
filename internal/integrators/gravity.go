package integrators

import (
	"fmt"

	"github.com/san-kum/lazyfall/internal/dynamo"
)

// Reference tuning. Products of these are evaluated in float32.
const (
	DefaultGravity     float32 = 9.81
	DefaultScale       float32 = 0.001
	DefaultRestitution float32 = 0.9
	DefaultRestSpeed   float32 = 0.005
)

type Params struct {
	Gravity     float32
	Scale       float32
	Restitution float32
	RestSpeed   float32
}

func DefaultParams() Params {
	return Params{
		Gravity:     DefaultGravity,
		Scale:       DefaultScale,
		Restitution: DefaultRestitution,
		RestSpeed:   DefaultRestSpeed,
	}
}

func (p Params) Validate() error {
	if p.Gravity < 0 {
		return fmt.Errorf("%w: gravity %v must be non-negative", dynamo.ErrParameterBounds, p.Gravity)
	}
	if p.Scale <= 0 {
		return fmt.Errorf("%w: scale %v must be positive", dynamo.ErrParameterBounds, p.Scale)
	}
	if p.Restitution < 0 || p.Restitution > 1 {
		return fmt.Errorf("%w: restitution %v must be in [0, 1]", dynamo.ErrParameterBounds, p.Restitution)
	}
	if p.RestSpeed < 0 {
		return fmt.Errorf("%w: rest speed %v must be non-negative", dynamo.ErrParameterBounds, p.RestSpeed)
	}
	return nil
}

// Gravity drops a body onto the y=0 plane and lets it bounce until the
// rebound speed falls under the rest threshold.
type Gravity struct {
	accel       float32
	restitution float32
	restSpeed   float32
}

func NewGravity(p Params) *Gravity {
	return &Gravity{
		accel:       p.Gravity * p.Scale,
		restitution: p.Restitution,
		restSpeed:   p.RestSpeed,
	}
}

// Step advances b by delta reference frames. A grounded body never moves
// again. A step that would cross y=0 only lands the body: Y is clamped and
// velocity reflected, with no further translation this step. Large deltas
// are applied in one step.
func (g *Gravity) Step(b *dynamo.Body, delta float32) {
	if b.Grounded {
		return
	}
	if delta < 0 {
		delta = 0
	}

	b.Velocity += -g.accel * delta

	if b.Y()+b.Velocity <= 0 {
		b.SetY(0)
		b.Velocity = -b.Velocity * g.restitution

		if abs32(b.Velocity) < g.restSpeed {
			b.Velocity = 0
			b.Grounded = true
		}
		return
	}

	b.Transform[dynamo.CellY] += b.Velocity
}

func abs32(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}
