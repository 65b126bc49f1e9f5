// Package automation runs batches of traces: scripted scenarios and
// single-parameter sweeps.
package automation

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/san-kum/lazyfall/internal/config"
	"github.com/san-kum/lazyfall/internal/dynamo"
	"github.com/san-kum/lazyfall/internal/experiment"
	"gopkg.in/yaml.v3"
)

// Scenario defines a scripted sequence of traces.
type Scenario struct {
	Name        string         `yaml:"name"`
	Description string         `yaml:"description"`
	Steps       []ScenarioStep `yaml:"steps"`
}

// ScenarioStep is one trace. Zero fields fall back to the base config and
// the trace defaults.
type ScenarioStep struct {
	Body       int                `yaml:"body"`
	Preset     string             `yaml:"preset"`
	IntervalMs float64            `yaml:"interval_ms"`
	Queries    int                `yaml:"queries"`
	Seed       int64              `yaml:"seed"`
	StopOnRest *bool              `yaml:"stop_on_rest"`
	Physics    map[string]float64 `yaml:"physics"`
	SaveAs     string             `yaml:"save_as"`
}

const (
	// Longer intervals settle into a bounce that never drops under RestSpeed.
	defaultInterval = 16 * time.Millisecond
	defaultQueries  = 5000
)

// LoadScenario loads a scenario from a YAML file
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var scenario Scenario
	if err := yaml.Unmarshal(data, &scenario); err != nil {
		return nil, fmt.Errorf("parse scenario %q: %w", path, err)
	}
	if len(scenario.Steps) == 0 {
		return nil, fmt.Errorf("scenario %q has no steps", path)
	}

	return &scenario, nil
}

// StepResult pairs a finished trace with the config that produced it.
type StepResult struct {
	Name   string
	Config experiment.Config
	Result *experiment.Result
}

// RunScenario executes all steps in order on top of base.
func RunScenario(ctx context.Context, scenario *Scenario, base *config.Config, registry *experiment.Registry) ([]StepResult, error) {
	results := make([]StepResult, 0, len(scenario.Steps))

	for i, step := range scenario.Steps {
		cfg, err := step.config(base)
		if err != nil {
			return results, fmt.Errorf("step %d: %w", i+1, err)
		}

		res, err := runTrace(ctx, cfg, registry)
		if err != nil {
			return results, fmt.Errorf("step %d: %w", i+1, err)
		}

		name := step.SaveAs
		if name == "" {
			name = fmt.Sprintf("%s_step%d", scenario.Name, i+1)
		}
		results = append(results, StepResult{Name: name, Config: cfg, Result: res})
	}

	return results, nil
}

func (s ScenarioStep) config(base *config.Config) (experiment.Config, error) {
	c := *base
	if s.Preset != "" {
		p := config.GetPreset(s.Preset)
		if p == nil {
			return experiment.Config{}, fmt.Errorf("unknown preset: %s", s.Preset)
		}
		c = *p
	}
	for name, v := range s.Physics {
		if err := SetPhysics(&c, name, v); err != nil {
			return experiment.Config{}, err
		}
	}

	cfg := experiment.Config{
		Body:       s.Body,
		MaxID:      c.Population.MaxID,
		Interval:   defaultInterval,
		Queries:    defaultQueries,
		StopOnRest: true,
		Seed:       c.SeedOrNow(),
		Spawn:      c.Spawn(),
		Physics:    c.IntegratorParams(),
	}
	if s.IntervalMs > 0 {
		cfg.Interval = time.Duration(s.IntervalMs * float64(time.Millisecond))
	}
	if s.Queries > 0 {
		cfg.Queries = s.Queries
	}
	if s.Seed != 0 {
		cfg.Seed = s.Seed
	}
	if s.StopOnRest != nil {
		cfg.StopOnRest = *s.StopOnRest
	}
	return cfg, nil
}

// SetPhysics sets one named physics parameter on c.
func SetPhysics(c *config.Config, name string, v float64) error {
	switch name {
	case "gravity":
		c.Physics.Gravity = v
	case "scale":
		c.Physics.Scale = v
	case "restitution":
		c.Physics.Restitution = v
	case "rest_speed":
		c.Physics.RestSpeed = v
	default:
		return fmt.Errorf("%w: unknown physics parameter %q", dynamo.ErrParameterBounds, name)
	}
	return nil
}

// ParameterSweep traces one body across evenly spaced values of a physics
// parameter, holding the spawn seed fixed.
type ParameterSweep struct {
	Base      *config.Config
	Body      int
	ParamName string
	ParamMin  float64
	ParamMax  float64
	NumSteps  int
	Interval  time.Duration
	Queries   int
}

// SweepResult holds the metrics of one sweep point.
type SweepResult struct {
	ParamValue float64
	Samples    int
	Metrics    map[string]float64
}

// RunSweep executes a parameter sweep
func RunSweep(ctx context.Context, sweep *ParameterSweep, registry *experiment.Registry) ([]SweepResult, error) {
	if sweep.NumSteps < 1 {
		return nil, fmt.Errorf("%w: sweep needs at least one step", dynamo.ErrParameterBounds)
	}

	paramStep := 0.0
	if sweep.NumSteps > 1 {
		paramStep = (sweep.ParamMax - sweep.ParamMin) / float64(sweep.NumSteps-1)
	}
	seed := sweep.Base.SeedOrNow()

	results := make([]SweepResult, 0, sweep.NumSteps)
	for i := 0; i < sweep.NumSteps; i++ {
		paramVal := sweep.ParamMin + float64(i)*paramStep

		c := *sweep.Base
		if err := SetPhysics(&c, sweep.ParamName, paramVal); err != nil {
			return nil, err
		}

		cfg := experiment.Config{
			Body:       sweep.Body,
			MaxID:      c.Population.MaxID,
			Interval:   sweep.Interval,
			Queries:    sweep.Queries,
			StopOnRest: true,
			Seed:       seed,
			Spawn:      c.Spawn(),
			Physics:    c.IntegratorParams(),
		}
		if cfg.Interval <= 0 {
			cfg.Interval = defaultInterval
		}
		if cfg.Queries <= 0 {
			cfg.Queries = defaultQueries
		}

		res, err := runTrace(ctx, cfg, registry)
		if err != nil {
			return nil, fmt.Errorf("%s=%.4f: %w", sweep.ParamName, paramVal, err)
		}

		results = append(results, SweepResult{
			ParamValue: paramVal,
			Samples:    len(res.Samples),
			Metrics:    res.Metrics,
		})
	}

	return results, nil
}

func runTrace(ctx context.Context, cfg experiment.Config, registry *experiment.Registry) (*experiment.Result, error) {
	exp, err := experiment.New(cfg)
	if err != nil {
		return nil, err
	}
	ms, err := registry.Metrics(nil)
	if err != nil {
		return nil, err
	}
	for _, m := range ms {
		exp.AddMetric(m)
	}
	return exp.Run(ctx)
}
