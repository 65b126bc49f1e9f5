// Package experiment replays one body's fall offline on a manual clock.
package experiment

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/san-kum/lazyfall/internal/dynamo"
	"github.com/san-kum/lazyfall/internal/integrators"
	"github.com/san-kum/lazyfall/internal/metrics"
	"github.com/san-kum/lazyfall/internal/sim"
)

var epoch = time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)

type Config struct {
	Body       int
	MaxID      int
	Interval   time.Duration
	Queries    int
	StopOnRest bool
	Seed       int64
	Spawn      sim.Spawn
	Physics    integrators.Params
}

func (c Config) Validate() error {
	if c.Body < 0 || c.Body > c.MaxID {
		return fmt.Errorf("%w: body %d outside 0..%d", dynamo.ErrInvalidID, c.Body, c.MaxID)
	}
	if c.Interval < 0 {
		return fmt.Errorf("%w: interval %v must not be negative", dynamo.ErrParameterBounds, c.Interval)
	}
	if c.Queries <= 0 {
		return fmt.Errorf("%w: queries %d must be positive", dynamo.ErrParameterBounds, c.Queries)
	}
	return nil
}

type Result struct {
	Body    int
	Times   []float64 // milliseconds since the first query
	Samples []sim.Sample
	Metrics map[string]float64
}

type Experiment struct {
	cfg     Config
	clock   *sim.ManualClock
	engine  *sim.Engine
	metrics []metrics.Metric
}

// New spawns a private population from cfg.Seed, so the same config always
// yields the same trace.
func New(cfg Config) (*Experiment, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Physics.Validate(); err != nil {
		return nil, err
	}

	clock := sim.NewManualClock(epoch)
	pop, err := sim.NewPopulation(cfg.MaxID, cfg.Spawn, rand.New(rand.NewSource(cfg.Seed)), clock.Now())
	if err != nil {
		return nil, err
	}

	return &Experiment{
		cfg:    cfg,
		clock:  clock,
		engine: sim.NewEngine(pop, integrators.NewGravity(cfg.Physics), clock),
	}, nil
}

func (e *Experiment) AddMetric(m metrics.Metric) {
	e.metrics = append(e.metrics, m)
}

// Run issues cfg.Queries queries against the body, the first at time zero
// and each later one cfg.Interval after the previous.
func (e *Experiment) Run(ctx context.Context) (*Result, error) {
	for _, m := range e.metrics {
		m.Reset()
	}

	res := &Result{
		Body:    e.cfg.Body,
		Times:   make([]float64, 0, e.cfg.Queries),
		Samples: make([]sim.Sample, 0, e.cfg.Queries),
	}

	for i := 0; i < e.cfg.Queries; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if i > 0 {
			e.clock.Advance(e.cfg.Interval)
		}

		s, err := e.engine.Query(e.cfg.Body)
		if err != nil {
			return nil, err
		}
		t := float64(s.At.Sub(epoch)) / float64(time.Millisecond)

		res.Times = append(res.Times, t)
		res.Samples = append(res.Samples, s)
		for _, m := range e.metrics {
			m.Observe(s, t)
		}

		if e.cfg.StopOnRest && s.Grounded {
			break
		}
	}

	body, err := e.engine.Population().Snapshot(e.cfg.Body)
	if err != nil {
		return nil, err
	}
	if !body.IsValid() {
		return nil, fmt.Errorf("%w: body %d diverged to a non-finite state", dynamo.ErrParameterBounds, e.cfg.Body)
	}

	res.Metrics = metrics.Collect(e.metrics)
	return res, nil
}

// Heights returns the Y coordinate of every sample.
func (r *Result) Heights() []float64 {
	out := make([]float64, len(r.Samples))
	for i, s := range r.Samples {
		out[i] = float64(s.Y())
	}
	return out
}
