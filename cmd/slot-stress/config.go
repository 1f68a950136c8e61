package main

import (
	"time"

	"github.com/JeremyLoy/config"
	"github.com/rotisserie/eris"
)

// Config holds the stress test settings. Every field can be set from the
// environment; command line flags override the environment.
type Config struct {
	Duration       string `config:"SLOT_STRESS_DURATION"`
	Entities       int    `config:"SLOT_STRESS_ENTITIES"`
	Sprites        int    `config:"SLOT_STRESS_SPRITES"`
	Seed           int64  `config:"SLOT_STRESS_SEED"`
	LogLevel       string `config:"SLOT_STRESS_LOG_LEVEL"`
	CatalogDir     string `config:"SLOT_STRESS_CATALOG_DIR"`
	GCPauseMetrics bool   `config:"SLOT_STRESS_GC_PAUSE_METRICS"`
}

func defaultConfig() Config {
	return Config{
		Duration: "10s",
		Entities: 10000,
		Sprites:  64,
		Seed:     1,
		LogLevel: "info",
	}
}

// LoadConfig reads the environment over the defaults.
func LoadConfig() (Config, error) {
	cfg := defaultConfig()
	if err := config.FromEnv().To(&cfg); err != nil {
		return cfg, eris.Wrap(err, "read environment")
	}
	return cfg, nil
}

func (c Config) RunDuration() (time.Duration, error) {
	d, err := time.ParseDuration(c.Duration)
	if err != nil {
		return 0, eris.Wrapf(err, "parse duration %q", c.Duration)
	}
	return d, nil
}
