package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/Gobusters/ectoenv"
	"github.com/joho/godotenv"
)

// Load reads the optional .env files and binds the environment onto a Config.
// Variables already set in the environment win over .env values.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, file := range envFiles {
		if err := godotenv.Load(file); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", file, err)
		}
	}

	cfg := &Config{}
	if err := ectoenv.BindEnv(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// Location resolves the configured timezone
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("config: unknown TIMEZONE %q: %w", c.Timezone, err)
	}
	return loc, nil
}
