// Package config loads and validates the TOML job configuration.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/BurntSushi/toml"

	"badc0de.net/pkg/go-bullseye/catalog"
)

// ConfigurationError rejects a config file before any engine work starts.
// Invalid values never reach the pipeline.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration field %q: %s", e.Field, e.Reason)
}

// Range limits processing to a Pokémon number range. Zero value means all.
type Range struct {
	Min int `toml:"min"`
	Max int `toml:"max"`
}

// Scaling holds the default battle-sprite scale per table plus per-number
// overrides. Override keys are number strings ("25" or "025"); TOML does
// not allow integer map keys.
type Scaling struct {
	Summary   float64            `toml:"summary"`
	Front     float64            `toml:"front"`
	Back      float64            `toml:"back"`
	Overrides map[string]float64 `toml:"overrides"`
}

// Mod describes the packaged mod's metadata for info.xml.
type Mod struct {
	Name        string   `toml:"name"`
	Version     string   `toml:"version"`
	Authors     []string `toml:"authors"`
	Description string   `toml:"description"`
}

// Config is the whole job configuration.
type Config struct {
	BadgeDir  string `toml:"badge_dir"`
	SpriteDir string `toml:"sprite_dir"`
	OutputDir string `toml:"output_dir"`

	DetectionThreshold float64 `toml:"detection_threshold"`

	Range   Range   `toml:"range"`
	Scaling Scaling `toml:"scaling"`
	Mod     Mod     `toml:"mod"`
}

// Default returns the configuration used when a field is absent from the
// file. The scale defaults match the stock PokeMMO battle sprite tables.
func Default() Config {
	return Config{
		DetectionThreshold: 1.10,
		Scaling:            Scaling{Summary: 2.7, Front: 1.0, Back: 1.0},
		Mod:                Mod{Name: "bullseye-sprites", Version: "1.0"},
	}
}

// Load reads and validates path. A missing file is an error here, unlike a
// missing optional user config: a job without directories cannot run.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return Config{}, &ConfigurationError{Field: "config", Reason: "path is empty"}
	}
	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		if os.IsNotExist(err) {
			return Config{}, &ConfigurationError{Field: "config", Reason: "file not found: " + path}
		}
		return Config{}, &ConfigurationError{Field: "config", Reason: err.Error()}
	}
	if undec := md.Undecoded(); len(undec) > 0 {
		return Config{}, &ConfigurationError{Field: undec[0].String(), Reason: "unknown field"}
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks every field the engine consumes. Returns the first
// *ConfigurationError found, or nil.
func (c *Config) Validate() error {
	for _, d := range []struct{ field, val string }{
		{"badge_dir", c.BadgeDir},
		{"sprite_dir", c.SpriteDir},
		{"output_dir", c.OutputDir},
	} {
		if d.val == "" {
			return &ConfigurationError{Field: d.field, Reason: "must be set"}
		}
	}

	if c.DetectionThreshold < 1 {
		return &ConfigurationError{Field: "detection_threshold",
			Reason: fmt.Sprintf("must be >= 1, got %v", c.DetectionThreshold)}
	}

	if c.Range != (Range{}) {
		if c.Range.Min < 1 || c.Range.Max > catalog.MaxNumber || c.Range.Min > c.Range.Max {
			return &ConfigurationError{Field: "range",
				Reason: fmt.Sprintf("want 1 <= min <= max <= %d, got %d..%d", catalog.MaxNumber, c.Range.Min, c.Range.Max)}
		}
	}

	for _, s := range []struct {
		field string
		val   float64
	}{
		{"scaling.summary", c.Scaling.Summary},
		{"scaling.front", c.Scaling.Front},
		{"scaling.back", c.Scaling.Back},
	} {
		if s.val <= 0 {
			return &ConfigurationError{Field: s.field, Reason: fmt.Sprintf("must be > 0, got %v", s.val)}
		}
	}
	for k, v := range c.Scaling.Overrides {
		n, err := strconv.Atoi(k)
		if err != nil || n < 1 || n > catalog.MaxNumber {
			return &ConfigurationError{Field: "scaling.overrides",
				Reason: fmt.Sprintf("key %q is not a number in 1..%d", k, catalog.MaxNumber)}
		}
		if v <= 0 {
			return &ConfigurationError{Field: "scaling.overrides",
				Reason: fmt.Sprintf("scale for %q must be > 0, got %v", k, v)}
		}
	}
	return nil
}

// OverridesByNumber returns the scaling overrides keyed by number. Call only after
// Validate; malformed keys are skipped here, not diagnosed.
func (s Scaling) OverridesByNumber() map[int]float64 {
	if len(s.Overrides) == 0 {
		return nil
	}
	out := make(map[int]float64, len(s.Overrides))
	for k, v := range s.Overrides {
		if n, err := strconv.Atoi(k); err == nil {
			out[n] = v
		}
	}
	return out
}
