// Package optimistic applies deltas to a VersionedState before the remote
// authority confirms them, and keeps what is needed to undo each of them
// independently.
package optimistic

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/luca-patrignani/mental-poker-sync/delta"
	"github.com/luca-patrignani/mental-poker-sync/state"
)

// Record is what an optimistic application leaves behind until it is
// confirmed or rolled back.
type Record struct {
	Before    map[string]any
	Delta     delta.Delta
	Timestamp time.Time
}

// Tracker is an arena of optimistic records. Tokens come from a monotonic
// counter and index a dense table, so lookup and removal by token are O(1).
type Tracker struct {
	mu      sync.Mutex
	next    state.Token
	base    state.Token
	records []*Record
	live    int
	newID   func() string
	logger  *slog.Logger
}

type Option func(*Tracker)

// WithLogger sets the logger used for apply and rollback events.
func WithLogger(l *slog.Logger) Option {
	return func(t *Tracker) { t.logger = l }
}

// WithIDs replaces the generator of StateChange ids.
func WithIDs(gen func() string) Option {
	return func(t *Tracker) { t.newID = gen }
}

func NewTracker(opts ...Option) *Tracker {
	t := &Tracker{
		base:   1,
		newID:  uuid.NewString,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Apply writes d into vs, records the undo information under a fresh token,
// appends one local StateChange per delta entry tagged with that token and
// increments the version. It must run inside a Store mutation.
func (t *Tracker) Apply(vs *state.VersionedState, d delta.Delta, at time.Time) state.Token {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.next++
	tok := t.next
	rec := &Record{
		Before:    delta.CloneState(vs.Data),
		Delta:     d,
		Timestamp: at,
	}
	if t.live == 0 {
		t.records = t.records[:0]
		t.base = tok
	}
	t.records = append(t.records, rec)
	t.live++

	for _, c := range d.Changes {
		vs.Changes = append(vs.Changes, state.NewChange(t.newID(), c, state.OriginLocal, tok))
	}
	vs.Data = delta.Apply(vs.Data, d)
	vs.Version++
	t.logger.Debug("optimistic update applied", "token", uint64(tok), "changes", len(d.Changes), "version", vs.Version)
	return tok
}

// Rollback undoes the record whose delta equals d. It reports false when no
// such record exists.
func (t *Tracker) Rollback(vs *state.VersionedState, d delta.Delta) bool {
	tok, ok := t.Find(d)
	if !ok {
		return false
	}
	return t.RollbackToken(vs, tok)
}

// RollbackToken restores the paths touched by the record to their value in
// the record's before-snapshot, decrements the version and removes the log
// entries tagged with tok on those paths. Entries of other records survive,
// and so do their effects on paths this record did not touch.
func (t *Tracker) RollbackToken(vs *state.VersionedState, tok state.Token) bool {
	t.mu.Lock()
	rec := t.take(tok)
	t.mu.Unlock()
	if rec == nil {
		return false
	}

	paths := make(map[string]bool, len(rec.Delta.Changes))
	for _, c := range rec.Delta.Changes {
		paths[c.Key()] = true
		if before, ok := delta.Get(rec.Before, c.Path); ok {
			delta.Set(vs.Data, c.Path, delta.Clone(before))
		} else {
			delta.Delete(vs.Data, c.Path)
		}
	}

	kept := vs.Changes[:0]
	for _, c := range vs.Changes {
		if c.OptimisticKey == tok && paths[c.Key()] {
			continue
		}
		kept = append(kept, c)
	}
	vs.Changes = kept
	if vs.Version > 0 {
		vs.Version--
	}
	t.logger.Debug("optimistic update rolled back", "token", uint64(tok), "version", vs.Version)
	return true
}

// HandleRejection rolls d back and records each conflict's resolved value as
// a remote change, skipping conflicts whose change is already in the log.
func (t *Tracker) HandleRejection(vs *state.VersionedState, d delta.Delta, conflicts []state.Conflict, at time.Time) bool {
	rolled := t.Rollback(vs, d)
	for _, c := range conflicts {
		resolved := c.ServerValue
		if c.Resolved {
			resolved = c.ResolvedValue
		}
		change := state.StateChange{
			ID:        t.newID(),
			Kind:      delta.KindUpdate,
			Path:      append([]string(nil), c.Path...),
			Value:     delta.Clone(resolved),
			OldValue:  delta.Clone(c.ClientValue),
			NewValue:  delta.Clone(resolved),
			Timestamp: at,
			Origin:    state.OriginRemote,
		}
		if containsEquivalent(vs.Changes, change) {
			continue
		}
		vs.Changes = append(vs.Changes, change)
	}
	return rolled
}

// Confirm discards the record of tok once the remote side acknowledged it.
func (t *Tracker) Confirm(tok state.Token) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.take(tok) != nil
}

// Find returns the token of the oldest live record whose delta equals d.
func (t *Tracker) Find(d delta.Delta) (state.Token, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i, rec := range t.records {
		if rec != nil && rec.Delta.Equal(d) {
			return t.base + state.Token(i), true
		}
	}
	return 0, false
}

// Get returns the record stored under tok.
func (t *Tracker) Get(tok state.Token) (Record, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if rec := t.at(tok); rec != nil {
		return *rec, true
	}
	return Record{}, false
}

// Pending returns the number of live records.
func (t *Tracker) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.live
}

func (t *Tracker) at(tok state.Token) *Record {
	if tok < t.base {
		return nil
	}
	i := int(tok - t.base)
	if i >= len(t.records) {
		return nil
	}
	return t.records[i]
}

func (t *Tracker) take(tok state.Token) *Record {
	rec := t.at(tok)
	if rec == nil {
		return nil
	}
	t.records[int(tok-t.base)] = nil
	t.live--
	return rec
}

func containsEquivalent(changes []state.StateChange, c state.StateChange) bool {
	for _, existing := range changes {
		if existing.Equivalent(c) {
			return true
		}
	}
	return false
}
