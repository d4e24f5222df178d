package engine

import (
	"log/slog"

	"github.com/luca-patrignani/mental-poker-sync/config"
	"github.com/luca-patrignani/mental-poker-sync/state"
)

type Option func(*Engine)

// WithConfig replaces the default options.
func WithConfig(o config.Options) Option {
	return func(e *Engine) { e.cfg = o }
}

func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

func WithClock(c state.Clock) Option {
	return func(e *Engine) { e.clock = c }
}

func WithChecksum(c state.Checksummer) Option {
	return func(e *Engine) { e.checksum = c }
}

// WithIDs replaces the generator of StateChange ids.
func WithIDs(gen func() string) Option {
	return func(e *Engine) { e.newID = gen }
}

// WithOnChange registers a function called with a copy of the state after
// every commit and every rollback.
func WithOnChange(fn func(state.VersionedState)) Option {
	return func(e *Engine) { e.onChange = fn }
}
