package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config is the runtime configuration of the ad waterfall server.
type Config struct {
	Port      string `env:"PORT" envDefault:"8080"`
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	// Sources lists the ad source ids, highest priority first.
	Sources      []string      `env:"AD_SOURCES" envSeparator:"," envDefault:"primary,secondary,fallback"`
	LoadTimeout  time.Duration `env:"AD_LOAD_TIMEOUT" envDefault:"2s"`
	Preload      bool          `env:"AD_PRELOAD" envDefault:"true"`
	RetryInitial time.Duration `env:"AD_RETRY_INITIAL" envDefault:"1s"`
	RetryMax     time.Duration `env:"AD_RETRY_MAX" envDefault:"1m"`

	Simulator SimulatorConfig
}

// SimulatorConfig tunes the in-process ad SDK.
type SimulatorConfig struct {
	Latency  time.Duration `env:"AD_SIM_LATENCY" envDefault:"500ms"`
	FailRate float64       `env:"AD_SIM_FAIL_RATE" envDefault:"0.2"`
	Display  time.Duration `env:"AD_SIM_DISPLAY" envDefault:"5s"`
}

// Load reads the .env file from the current working directory and sets
// environment variables. If .env does not exist, Load returns an error but
// callers can ignore it and use system env or defaults. Pass one or more paths
// to load from specific files (e.g. ".env"); with no paths, ".env" is used.
func Load(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	return godotenv.Load(paths...)
}

// Parse fills a Config from the environment and validates it.
func Parse() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	cfg.Sources = normalizeSources(cfg.Sources)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	if c.LoadTimeout <= 0 {
		return errors.New("AD_LOAD_TIMEOUT must be positive")
	}
	if c.RetryInitial < 0 || c.RetryMax < 0 {
		return errors.New("AD_RETRY_INITIAL and AD_RETRY_MAX must not be negative")
	}
	if c.Simulator.FailRate < 0 || c.Simulator.FailRate > 1 {
		return fmt.Errorf("AD_SIM_FAIL_RATE must be within [0,1], got %v", c.Simulator.FailRate)
	}
	return nil
}

// normalizeSources trims ids and drops empty entries, keeping order.
func normalizeSources(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
