// Package config loads engine settings from defaults, an optional YAML
// file, and BOMBCELL_ environment variables, later layers winning.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

const envPrefix = "BOMBCELL_"

// Recording describes the binary file to read from.
type Recording struct {
	Path       string  `koanf:"path"`
	Channels   int     `koanf:"channels"`
	Compressed bool    `koanf:"compressed"`
	Decoder    string  `koanf:"decoder"`
	Samples    int64   `koanf:"samples"`
	SampleRate float64 `koanf:"samplerate"`
}

// Extract tunes the extraction run itself.
type Extract struct {
	Snippets int   `koanf:"snippets"`
	Width    int   `koanf:"width"`
	Seed     int64 `koanf:"seed"`
	Workers  int   `koanf:"workers"`
	Keep     bool  `koanf:"keep"`
	Force    bool  `koanf:"force"`
}

// Results controls where output lands.
type Results struct {
	Dir     string `koanf:"dir"`
	Archive bool   `koanf:"archive"`
}

// Config is the full immutable settings value handed to the engine.
type Config struct {
	Recording Recording `koanf:"recording"`
	Extract   Extract   `koanf:"extract"`
	Results   Results   `koanf:"results"`
	Verbose   bool      `koanf:"verbose"`
}

func defaults() Config {
	return Config{
		Recording: Recording{
			Channels:   385,
			SampleRate: 30000,
		},
		Extract: Extract{
			Snippets: 100,
			Width:    83,
		},
		Results: Results{
			Dir: "bombcell_results",
		},
	}
}

// Load layers defaults, the YAML file at path (when non-empty), and
// BOMBCELL_ environment variables. BOMBCELL_EXTRACT_SNIPPETS=50 sets
// extract.snippets.
func Load(path string) (Config, error) {
	k := koanf.New(".")
	if err := k.Load(structs.Provider(defaults(), "koanf"), nil); err != nil {
		return Config{}, fmt.Errorf("load defaults: %w", err)
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return Config{}, fmt.Errorf("load %s: %w", path, err)
		}
	}
	err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, envPrefix)), "_", ".")
	}), nil)
	if err != nil {
		return Config{}, fmt.Errorf("load environment: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	return cfg, nil
}

// Validate rejects settings the engine cannot run with.
func (c Config) Validate() error {
	if c.Recording.Path == "" {
		return errors.New("recording.path is required")
	}
	if c.Recording.Channels < 1 {
		return fmt.Errorf("recording.channels must be positive, got %d", c.Recording.Channels)
	}
	if c.Recording.Compressed && c.Recording.Decoder == "" {
		return errors.New("recording.decoder is required for compressed recordings")
	}
	if c.Recording.Compressed && c.Recording.Samples < 1 {
		return errors.New("recording.samples is required for compressed recordings")
	}
	if c.Recording.SampleRate <= 0 {
		return fmt.Errorf("recording.samplerate must be positive, got %v", c.Recording.SampleRate)
	}
	if c.Extract.Snippets < 1 {
		return fmt.Errorf("extract.snippets must be positive, got %d", c.Extract.Snippets)
	}
	if c.Extract.Width < 1 {
		return fmt.Errorf("extract.width must be positive, got %d", c.Extract.Width)
	}
	if c.Results.Dir == "" {
		return errors.New("results.dir is required")
	}
	return nil
}
