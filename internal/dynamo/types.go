package dynamo

import (
	"math"
	"time"

	"github.com/go-gl/mathgl/mgl32"
)

// Cells of the column-major transform holding the translation.
const (
	CellX = 12
	CellY = 13
	CellZ = 14
)

// Body is the physical state of one simulated object.
type Body struct {
	Transform  mgl32.Mat4
	Velocity   float32
	Grounded   bool
	LastUpdate time.Time
}

// NewBody returns a body at the origin with an identity transform.
func NewBody(lastUpdate time.Time) Body {
	return Body{
		Transform:  mgl32.Ident4(),
		LastUpdate: lastUpdate,
	}
}

// Move translates the body by v.
func (b *Body) Move(v mgl32.Vec3) {
	b.Transform[CellX] += v.X()
	b.Transform[CellY] += v.Y()
	b.Transform[CellZ] += v.Z()
}

func (b *Body) Y() float32 {
	return b.Transform[CellY]
}

// SetY overwrites the vertical translation.
func (b *Body) SetY(y float32) {
	b.Transform[CellY] = y
}

// Flatten returns a copy of the transform cells.
func (b *Body) Flatten() [16]float32 {
	return [16]float32(b.Transform)
}

// IsValid reports whether every cell and the velocity are finite.
func (b *Body) IsValid() bool {
	for _, v := range b.Transform {
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			return false
		}
	}
	v := float64(b.Velocity)
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// Integrator advances a body by delta reference frames.
type Integrator interface {
	Step(b *Body, delta float32)
}
