// Package config loads monitor settings from the environment, with an
// optional .env file for local development. CLI flags default from these
// values and win when set explicitly.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config is the full environment-derived configuration.
type Config struct {
	DBPath       string        `env:"OBDMON_DB" envDefault:"emissions.db"`
	Listen       string        `env:"OBDMON_LISTEN" envDefault:":8080"`
	SerialPort   string        `env:"OBDMON_SERIAL_PORT"`
	Baud         int           `env:"OBDMON_BAUD" envDefault:"38400"`
	TCPAddr      string        `env:"OBDMON_TCP_ADDR"`
	PollInterval time.Duration `env:"OBDMON_POLL_INTERVAL" envDefault:"1s"`
	Vehicle      string        `env:"OBDMON_VEHICLE" envDefault:"my-car"`
	Debug        bool          `env:"OBDMON_DEBUG" envDefault:"false"`
}

// Load reads .env if present (best effort, a missing file is fine) and
// parses the OBDMON_* variables over the built-in defaults.
func Load() (Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}
