package config

import (
	"fmt"
	"os"
	"time"

	"github.com/san-kum/lazyfall/internal/dynamo"
	"github.com/san-kum/lazyfall/internal/integrators"
	"github.com/san-kum/lazyfall/internal/sim"
	"gopkg.in/yaml.v3"
)

const (
	DefaultHost          = "127.0.0.1"
	DefaultPort          = 5000
	DefaultAllowedOrigin = "http://127.0.0.1:8080"
	DefaultStreamHz      = 30
	DefaultMaxID         = 50
	DefaultZSpacing      = 1.2
	DefaultSpawnRange    = 25.0
	DefaultFrameRate     = 60.0
	DefaultLogLevel      = "info"
	DefaultLogFormat     = "console"
)

type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Population PopulationConfig `yaml:"population"`
	Physics    PhysicsConfig    `yaml:"physics"`
	Logging    LoggingConfig    `yaml:"logging"`
}

type ServerConfig struct {
	Host          string `yaml:"host"`
	Port          int    `yaml:"port"`
	Workers       int    `yaml:"workers"`
	AllowedOrigin string `yaml:"allowed_origin"`
	StreamHz      int    `yaml:"stream_hz"`
}

type PopulationConfig struct {
	MaxID int         `yaml:"max_id"`
	Seed  int64       `yaml:"seed"`
	Spawn SpawnConfig `yaml:"spawn"`
}

type SpawnConfig struct {
	MinX     float64 `yaml:"min_x"`
	MaxX     float64 `yaml:"max_x"`
	MinY     float64 `yaml:"min_y"`
	MaxY     float64 `yaml:"max_y"`
	ZSpacing float64 `yaml:"z_spacing"`
}

type PhysicsConfig struct {
	Gravity     float64 `yaml:"gravity"`
	Scale       float64 `yaml:"scale"`
	Restitution float64 `yaml:"restitution"`
	RestSpeed   float64 `yaml:"rest_speed"`
	FrameRate   float64 `yaml:"frame_rate"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func DefaultConfig() *Config {
	p := integrators.DefaultParams()
	return &Config{
		Server: ServerConfig{
			Host:          DefaultHost,
			Port:          DefaultPort,
			AllowedOrigin: DefaultAllowedOrigin,
			StreamHz:      DefaultStreamHz,
		},
		Population: PopulationConfig{
			MaxID: DefaultMaxID,
			Spawn: SpawnConfig{
				MinX:     -DefaultSpawnRange,
				MaxX:     0,
				MinY:     0,
				MaxY:     DefaultSpawnRange,
				ZSpacing: DefaultZSpacing,
			},
		},
		Physics: PhysicsConfig{
			Gravity:     float64(p.Gravity),
			Scale:       float64(p.Scale),
			Restitution: float64(p.Restitution),
			RestSpeed:   float64(p.RestSpeed),
			FrameRate:   DefaultFrameRate,
		},
		Logging: LoggingConfig{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
	}
}

// Load reads a YAML file over the defaults; keys absent from the file keep
// their default values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %q: %w", path, err)
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func (c *Config) Validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("%w: port %d", dynamo.ErrParameterBounds, c.Server.Port)
	}
	if c.Server.Workers < 0 {
		return fmt.Errorf("%w: workers %d must be non-negative", dynamo.ErrParameterBounds, c.Server.Workers)
	}
	if c.Server.StreamHz <= 0 {
		return fmt.Errorf("%w: stream_hz %d must be positive", dynamo.ErrParameterBounds, c.Server.StreamHz)
	}
	if c.Population.MaxID < 0 {
		return fmt.Errorf("%w: max_id %d must be non-negative", dynamo.ErrParameterBounds, c.Population.MaxID)
	}
	if c.Physics.FrameRate != DefaultFrameRate {
		// the query engine's frame length is fixed
		return fmt.Errorf("%w: frame_rate %v is not supported, only %v", dynamo.ErrParameterBounds, c.Physics.FrameRate, DefaultFrameRate)
	}
	if err := c.Spawn().Validate(); err != nil {
		return err
	}
	return c.IntegratorParams().Validate()
}

func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

func (c *Config) StreamInterval() time.Duration {
	if c.Server.StreamHz <= 0 {
		return time.Second / DefaultStreamHz
	}
	return time.Second / time.Duration(c.Server.StreamHz)
}

func (c *Config) Spawn() sim.Spawn {
	s := c.Population.Spawn
	return sim.Spawn{
		MinX:     float32(s.MinX),
		MaxX:     float32(s.MaxX),
		MinY:     float32(s.MinY),
		MaxY:     float32(s.MaxY),
		ZSpacing: float32(s.ZSpacing),
	}
}

func (c *Config) IntegratorParams() integrators.Params {
	return integrators.Params{
		Gravity:     float32(c.Physics.Gravity),
		Scale:       float32(c.Physics.Scale),
		Restitution: float32(c.Physics.Restitution),
		RestSpeed:   float32(c.Physics.RestSpeed),
	}
}

// SeedOrNow returns the configured seed, or a clock-derived one when unset.
func (c *Config) SeedOrNow() int64 {
	if c.Population.Seed != 0 {
		return c.Population.Seed
	}
	return time.Now().UnixNano()
}
