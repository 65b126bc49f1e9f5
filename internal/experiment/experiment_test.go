package experiment

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/san-kum/lazyfall/internal/dynamo"
	"github.com/san-kum/lazyfall/internal/integrators"
	"github.com/san-kum/lazyfall/internal/metrics"
	"github.com/san-kum/lazyfall/internal/sim"
)

func testConfig() Config {
	return Config{
		Body:       3,
		MaxID:      10,
		Interval:   16 * time.Millisecond,
		Queries:    10000,
		StopOnRest: true,
		Seed:       7,
		Spawn:      sim.DefaultSpawn(),
		Physics:    integrators.DefaultParams(),
	}
}

func run(t *testing.T, cfg Config) *Result {
	t.Helper()
	exp, err := New(cfg)
	if err != nil {
		t.Fatal(err)
	}
	ms, err := NewRegistry().Metrics(nil)
	if err != nil {
		t.Fatal(err)
	}
	for _, m := range ms {
		exp.AddMetric(m)
	}
	res, err := exp.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	return res
}

func TestRunUntilRest(t *testing.T) {
	res := run(t, testConfig())

	if len(res.Samples) == 0 || len(res.Samples) != len(res.Times) {
		t.Fatalf("got %d samples and %d times", len(res.Samples), len(res.Times))
	}
	if res.Times[0] != 0 || res.Samples[0].Delta != 0 {
		t.Errorf("first query should be at t=0 with no backlog, got t=%v delta=%v", res.Times[0], res.Samples[0].Delta)
	}
	for i := 1; i < len(res.Times); i++ {
		if res.Times[i]-res.Times[i-1] != 16 {
			t.Fatalf("sample %d: expected 16ms spacing, got %v", i, res.Times[i]-res.Times[i-1])
		}
	}

	last := res.Samples[len(res.Samples)-1]
	if !last.Grounded || last.Y() != 0 {
		t.Errorf("expected trace to end at rest on the ground, got %+v", last)
	}
	if res.Metrics["landed_at_ms"] != res.Times[len(res.Times)-1] {
		t.Errorf("landed_at_ms %v does not match last sample time %v", res.Metrics["landed_at_ms"], res.Times[len(res.Times)-1])
	}
	if res.Metrics["bounces"] < 1 {
		t.Errorf("expected at least one bounce, got %v", res.Metrics["bounces"])
	}
	if res.Metrics["peak_speed"] <= 0 {
		t.Errorf("expected a positive peak speed, got %v", res.Metrics["peak_speed"])
	}
}

// At three frames per query the rebound converges on r*g*d/(1+r), which is
// above the rest threshold, so the body keeps bouncing in place forever.
func TestRunFiftyMillisecondsNeverRests(t *testing.T) {
	cfg := testConfig()
	cfg.Interval = 50 * time.Millisecond
	cfg.Queries = 4000

	res := run(t, cfg)
	if len(res.Samples) != cfg.Queries {
		t.Fatalf("expected the trace to run all %d queries, got %d", cfg.Queries, len(res.Samples))
	}
	if res.Metrics["landed_at_ms"] != -1 {
		t.Errorf("body should never rest at 50ms, landed_at_ms=%v", res.Metrics["landed_at_ms"])
	}

	p := cfg.Physics
	g := float64(p.Gravity * p.Scale)
	r := float64(p.Restitution)
	delta := float64(sim.FrameDelta(cfg.Interval))
	cycle := r * g * delta / (1 + r)
	if cycle <= float64(p.RestSpeed) {
		t.Fatalf("cycle speed %v should sit above the rest threshold %v", cycle, p.RestSpeed)
	}
	for _, s := range res.Samples[len(res.Samples)-10:] {
		if s.Grounded || s.Y() != 0 {
			t.Fatalf("expected a contact on every query, got y=%v grounded=%v", s.Y(), s.Grounded)
		}
		if math.Abs(float64(s.Velocity)-cycle) > 1e-4 {
			t.Errorf("rebound %v has not settled on %v", s.Velocity, cycle)
		}
	}
}

func TestRunBouncesKeepCountingInCycle(t *testing.T) {
	cfg := testConfig()
	cfg.Interval = 50 * time.Millisecond
	cfg.StopOnRest = false

	cfg.Queries = 2000
	short := run(t, cfg)
	cfg.Queries = 3000
	long := run(t, cfg)

	// every extra query in the cycle is one more contact
	if got := long.Metrics["bounces"] - short.Metrics["bounces"]; got != 1000 {
		t.Errorf("expected 1000 more bounces, got %v (%v then %v)", got, short.Metrics["bounces"], long.Metrics["bounces"])
	}
}

func TestRunFixedLength(t *testing.T) {
	cfg := testConfig()
	cfg.Queries = 5
	cfg.StopOnRest = false
	cfg.Spawn.MinY = 10
	res := run(t, cfg)

	if len(res.Samples) != 5 {
		t.Fatalf("expected 5 samples, got %d", len(res.Samples))
	}
	if res.Metrics["landed_at_ms"] != -1 {
		t.Errorf("body should still be falling, landed_at_ms=%v", res.Metrics["landed_at_ms"])
	}
	heights := res.Heights()
	for i := 1; i < len(heights); i++ {
		if heights[i] > heights[i-1] {
			t.Errorf("height rose during the first fall: %v", heights)
		}
	}
}

func TestRunDeterministic(t *testing.T) {
	a := run(t, testConfig())
	b := run(t, testConfig())

	if len(a.Samples) != len(b.Samples) {
		t.Fatalf("lengths differ: %d vs %d", len(a.Samples), len(b.Samples))
	}
	for i := range a.Samples {
		if a.Samples[i].Transform != b.Samples[i].Transform {
			t.Fatalf("sample %d differs", i)
		}
	}
}

func TestNewRejectsBadConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   error
	}{
		{"body past max", func(c *Config) { c.Body = 11 }, dynamo.ErrInvalidID},
		{"negative body", func(c *Config) { c.Body = -1 }, dynamo.ErrInvalidID},
		{"no queries", func(c *Config) { c.Queries = 0 }, dynamo.ErrParameterBounds},
		{"negative interval", func(c *Config) { c.Interval = -time.Second }, dynamo.ErrParameterBounds},
		{"bad physics", func(c *Config) { c.Physics.Restitution = 2 }, dynamo.ErrParameterBounds},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.mutate(&cfg)
			if _, err := New(cfg); !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestRunCanceled(t *testing.T) {
	exp, err := New(testConfig())
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := exp.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	if got := r.ListMetrics(); len(got) != 3 || got[0] != "bounces" {
		t.Errorf("unexpected metric list %v", got)
	}
	if _, err := r.Metrics([]string{"peak_speed", "nope"}); err == nil {
		t.Error("expected error for unknown metric")
	}

	for _, m := range metrics.Defaults() {
		a, err := r.GetMetric(m.Name())
		if err != nil {
			t.Fatalf("default metric %q not registered: %v", m.Name(), err)
		}
		b, _ := r.GetMetric(m.Name())
		if a == b {
			t.Errorf("metric %q should be built fresh on every call", m.Name())
		}
	}
}

func TestRunDiverged(t *testing.T) {
	cfg := testConfig()
	cfg.Queries = 3
	cfg.StopOnRest = false
	cfg.Physics = integrators.Params{Gravity: 3e38, Scale: 1, Restitution: 0.9, RestSpeed: 0.005}

	exp, err := New(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := exp.Run(context.Background()); !errors.Is(err, dynamo.ErrParameterBounds) {
		t.Errorf("expected ErrParameterBounds for a diverged body, got %v", err)
	}
}
