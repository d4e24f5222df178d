// Package config loads the options of a sync engine from YAML.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/luca-patrignani/mental-poker-sync/state"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// Options are the recognized engine options. Durations are written as Go
// duration strings ("30s", "1m").
type Options struct {
	SyncInterval       time.Duration `yaml:"sync_interval"`
	RetryAttempts      int           `yaml:"retry_attempts"`
	RetryDelay         time.Duration `yaml:"retry_delay"`
	BatchSize          int           `yaml:"batch_size"`
	OptimisticUpdates  bool          `yaml:"optimistic_updates"`
	ConflictResolution state.Policy  `yaml:"conflict_resolution"`
	MaxHistory         int           `yaml:"max_history"`
	CriticalPaths      []string      `yaml:"critical_paths,omitempty"`
}

// Default returns the options used when nothing is configured. An empty
// CriticalPaths means the built-in critical paths.
func Default() Options {
	return Options{
		SyncInterval:       30 * time.Second,
		RetryAttempts:      3,
		RetryDelay:         time.Second,
		BatchSize:          100,
		OptimisticUpdates:  true,
		ConflictResolution: state.PolicyMerge,
		MaxHistory:         50,
	}
}

// Parse decodes YAML on top of Default and validates the result.
func Parse(b []byte) (Options, error) {
	o := Default()
	if err := yaml.Unmarshal(b, &o); err != nil {
		return Options{}, fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if p, ok := state.ParsePolicy(strings.ToLower(string(o.ConflictResolution))); ok {
		o.ConflictResolution = p
	}
	if err := o.Validate(); err != nil {
		return Options{}, err
	}
	return o, nil
}

// Load reads and parses the file at path.
func Load(path string) (Options, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Options{}, fmt.Errorf("reading config: %w", err)
	}
	return Parse(b)
}

// Validate reports the first invalid option.
func (o Options) Validate() error {
	switch {
	case o.SyncInterval < 0:
		return fmt.Errorf("%w: sync_interval %v is negative", ErrInvalid, o.SyncInterval)
	case o.RetryAttempts < 1:
		return fmt.Errorf("%w: retry_attempts must be at least 1, got %d", ErrInvalid, o.RetryAttempts)
	case o.RetryDelay < 0:
		return fmt.Errorf("%w: retry_delay %v is negative", ErrInvalid, o.RetryDelay)
	case o.BatchSize < 0:
		return fmt.Errorf("%w: batch_size %d is negative", ErrInvalid, o.BatchSize)
	case !o.ConflictResolution.Valid():
		return fmt.Errorf("%w: unknown conflict_resolution %q", ErrInvalid, o.ConflictResolution)
	case o.MaxHistory < 1:
		return fmt.Errorf("%w: max_history must be at least 1, got %d", ErrInvalid, o.MaxHistory)
	}
	for _, p := range o.CriticalPaths {
		if strings.TrimSpace(p) == "" {
			return fmt.Errorf("%w: empty critical path", ErrInvalid)
		}
	}
	return nil
}

// Marshal encodes o as YAML.
func (o Options) Marshal() ([]byte, error) {
	return yaml.Marshal(o)
}
