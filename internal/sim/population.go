package sim

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/san-kum/lazyfall/internal/dynamo"
)

// Spawn bounds the randomized starting offsets. X and Y are drawn from the
// half-open ranges [MinX, MaxX) and [MinY, MaxY); Z is ZSpacing times the index.
type Spawn struct {
	MinX, MaxX float32
	MinY, MaxY float32
	ZSpacing   float32
}

func DefaultSpawn() Spawn {
	return Spawn{
		MinX:     -25,
		MaxX:     0,
		MinY:     0,
		MaxY:     25,
		ZSpacing: 1.2,
	}
}

func (s Spawn) Validate() error {
	if s.MaxX < s.MinX {
		return fmt.Errorf("%w: spawn x range [%v, %v) is empty", dynamo.ErrParameterBounds, s.MinX, s.MaxX)
	}
	if s.MaxY < s.MinY {
		return fmt.Errorf("%w: spawn y range [%v, %v) is empty", dynamo.ErrParameterBounds, s.MinY, s.MaxY)
	}
	return nil
}

// Slot is one independently lockable body.
type Slot struct {
	mu   sync.Mutex
	body dynamo.Body
}

// With runs fn while holding the slot's lock.
func (s *Slot) With(fn func(b *dynamo.Body)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.body)
}

// Population owns a fixed table of slots. The outer lock only guards the
// table itself; it is read-locked for the duration of a lookup, so
// lookups never wait on each other or on a body's lock.
type Population struct {
	mu    sync.RWMutex
	slots []*Slot
}

// NewPopulation builds maxID+1 bodies, all stamped with now.
func NewPopulation(maxID int, spawn Spawn, rng *rand.Rand, now time.Time) (*Population, error) {
	if maxID < 0 {
		return nil, fmt.Errorf("%w: max id %d must be non-negative", dynamo.ErrParameterBounds, maxID)
	}
	if err := spawn.Validate(); err != nil {
		return nil, err
	}

	slots := make([]*Slot, maxID+1)
	for i := range slots {
		b := dynamo.NewBody(now)
		b.Move(mgl32.Vec3{
			uniform(rng, spawn.MinX, spawn.MaxX),
			uniform(rng, spawn.MinY, spawn.MaxY),
			spawn.ZSpacing * float32(i),
		})
		slots[i] = &Slot{body: b}
	}

	return &Population{slots: slots}, nil
}

func uniform(rng *rand.Rand, lo, hi float32) float32 {
	if hi <= lo {
		return lo
	}
	v := lo + rng.Float32()*(hi-lo)
	if v >= hi {
		// rounding can land exactly on hi
		return lo
	}
	return v
}

// Borrow returns the slot at index. Callers are expected to have checked the
// index already; a miss here is a programming error reported as *dynamo.IndexError.
func (p *Population) Borrow(index int) (*Slot, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if index < 0 || index >= len(p.slots) {
		return nil, &dynamo.IndexError{Index: index, Len: len(p.slots)}
	}
	return p.slots[index], nil
}

func (p *Population) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.slots)
}

// MaxID is the largest valid index.
func (p *Population) MaxID() int {
	return p.Len() - 1
}

// Snapshot copies a body without stepping it.
func (p *Population) Snapshot(index int) (dynamo.Body, error) {
	slot, err := p.Borrow(index)
	if err != nil {
		return dynamo.Body{}, err
	}

	var out dynamo.Body
	slot.With(func(b *dynamo.Body) { out = *b })
	return out, nil
}
