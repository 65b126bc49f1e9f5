package config

import "sort"

// Presets are named variations layered onto DefaultConfig.
var Presets = map[string]func(*Config){
	"reference": func(c *Config) {},
	"moon": func(c *Config) {
		c.Physics.Gravity = 1.62
	},
	"crowd": func(c *Config) {
		c.Population.MaxID = 500
		c.Population.Spawn.ZSpacing = 0.3
	},
	"bouncy": func(c *Config) {
		c.Physics.Restitution = 0.98
		c.Physics.RestSpeed = 0.001
	},
}

func GetPreset(name string) *Config {
	apply, ok := Presets[name]
	if !ok {
		return nil
	}
	cfg := DefaultConfig()
	apply(cfg)
	return cfg
}

func ListPresets() []string {
	names := make([]string, 0, len(Presets))
	for name := range Presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
