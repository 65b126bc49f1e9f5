package sim

import (
	"math"
	"time"

	"github.com/san-kum/lazyfall/internal/dynamo"
)

const (
	FrameRate float32 = 60
	// FrameMillis is the length of one reference frame in milliseconds.
	FrameMillis float32 = 1 / FrameRate * 1000
)

// Sample is what one query observed.
type Sample struct {
	Index     int
	At        time.Time
	Since     time.Time // LastUpdate this query measured against
	Delta     float32
	Transform [16]float32
	Velocity  float32
	Grounded  bool
}

func (s Sample) Y() float32 {
	return s.Transform[dynamo.CellY]
}

// Engine advances bodies lazily: a body only moves when it is queried, by
// the real time elapsed since its previous query.
type Engine struct {
	pop        *Population
	integrator dynamo.Integrator
	clock      Clock
}

func NewEngine(pop *Population, integrator dynamo.Integrator, clock Clock) *Engine {
	if clock == nil {
		clock = SystemClock{}
	}
	return &Engine{pop: pop, integrator: integrator, clock: clock}
}

func (e *Engine) Population() *Population {
	return e.pop
}

// Query steps the body at index and returns its new state. The body lock is
// held once across read, step and timestamp write, so two queries on the
// same body can never measure against the same LastUpdate. The clock is
// read under that lock so LastUpdate only moves forward.
func (e *Engine) Query(index int) (Sample, error) {
	slot, err := e.pop.Borrow(index)
	if err != nil {
		return Sample{}, err
	}

	s := Sample{Index: index}
	slot.With(func(b *dynamo.Body) {
		now := e.clock.Now()
		s.At = now
		s.Since = b.LastUpdate
		elapsed := now.Sub(b.LastUpdate)
		b.LastUpdate = now

		s.Delta = FrameDelta(elapsed)
		e.integrator.Step(b, s.Delta)

		s.Transform = b.Flatten()
		s.Velocity = b.Velocity
		s.Grounded = b.Grounded
	})
	return s, nil
}

// QueryPosition steps the body at index and returns its flattened transform.
func (e *Engine) QueryPosition(index int) ([16]float32, error) {
	s, err := e.Query(index)
	if err != nil {
		return [16]float32{}, err
	}
	return s.Transform, nil
}

// FrameDelta converts elapsed time to reference frames. Elapsed time is
// truncated to whole milliseconds first and saturates at MaxUint32;
// negative spans count as zero.
func FrameDelta(elapsed time.Duration) float32 {
	if elapsed < 0 {
		return 0
	}
	ms := elapsed.Milliseconds()
	if ms > math.MaxUint32 {
		ms = math.MaxUint32
	}
	return float32(uint32(ms)) / FrameMillis
}
