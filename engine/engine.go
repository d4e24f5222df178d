package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/luca-patrignani/mental-poker-sync/config"
	"github.com/luca-patrignani/mental-poker-sync/conflict"
	"github.com/luca-patrignani/mental-poker-sync/delta"
	"github.com/luca-patrignani/mental-poker-sync/ledger"
	"github.com/luca-patrignani/mental-poker-sync/optimistic"
	"github.com/luca-patrignani/mental-poker-sync/state"
	"github.com/luca-patrignani/mental-poker-sync/syncer"
)

// ErrDestroyed is returned by every operation of a destroyed engine.
var ErrDestroyed = syncer.ErrDestroyed

type Engine struct {
	cfg      config.Options
	clock    state.Clock
	checksum state.Checksummer
	newID    func() string
	logger   *slog.Logger
	onChange func(state.VersionedState)

	store    *state.Store
	tracker  *optimistic.Tracker
	resolver *conflict.Resolver
	history  *ledger.History
	sync     *syncer.Coordinator

	// changes sent ahead of their local commit when optimistic updates
	// are off
	stagedMu sync.Mutex
	staged   []state.StateChange

	destroyed atomic.Bool
}

// New creates an engine holding an empty state at version 0 that talks to
// the authority through t.
func New(t syncer.Transport, opts ...Option) *Engine {
	e := &Engine{
		cfg:      config.Default(),
		clock:    state.SystemClock{},
		checksum: state.NewKyberChecksum(),
		newID:    uuid.NewString,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}

	e.store = state.NewStore(e.checksum, e.clock)
	e.tracker = optimistic.NewTracker(
		optimistic.WithLogger(e.logger),
		optimistic.WithIDs(e.newID),
	)
	resolverOpts := []conflict.Option{
		conflict.WithClock(e.clock),
		conflict.WithLogger(e.logger),
		conflict.WithIDs(e.newID),
	}
	if len(e.cfg.CriticalPaths) > 0 {
		resolverOpts = append(resolverOpts, conflict.WithCriticalPaths(e.cfg.CriticalPaths...))
	}
	e.resolver = conflict.NewResolver(e.cfg.ConflictResolution, resolverOpts...)
	e.history = ledger.NewHistory(
		ledger.WithMaxLength(e.cfg.MaxHistory),
		ledger.WithChecksum(e.checksum),
		ledger.WithClock(e.clock),
		ledger.WithCounter(state.CounterFunc(e.store.Version)),
	)
	e.sync = syncer.NewCoordinator(t, source{e}, syncer.Config{
		Interval:      e.cfg.SyncInterval,
		RetryAttempts: e.cfg.RetryAttempts,
		RetryDelay:    e.cfg.RetryDelay,
		BatchSize:     e.cfg.BatchSize,
	}, syncer.WithClock(e.clock), syncer.WithLogger(e.logger))
	return e
}

// UpdateState overlays partial onto the current state and commits the
// difference. With optimistic updates the difference is visible immediately
// and rolled back if the authority does not confirm it; otherwise it is
// committed only after confirmation. An update that changes nothing is not
// sent. The returned state is the state after the call.
func (e *Engine) UpdateState(ctx context.Context, partial map[string]any) (state.VersionedState, error) {
	if e.destroyed.Load() {
		return state.VersionedState{}, ErrDestroyed
	}
	current := e.store.Snapshot()
	at := e.clock.Now()
	d := delta.Calculate(current.Data, delta.Overlay(current.Data, partial), at)
	if d.Empty() {
		return current, nil
	}
	d.From, d.To = current.Version, current.Version+1

	if e.cfg.OptimisticUpdates {
		return e.updateOptimistic(ctx, d, at)
	}
	return e.updateConfirmed(ctx, d)
}

func (e *Engine) updateOptimistic(ctx context.Context, d delta.Delta, at time.Time) (state.VersionedState, error) {
	var tok state.Token
	e.store.Mutate(func(vs *state.VersionedState) {
		tok = e.tracker.Apply(vs, d, at)
	})
	e.notify()

	_, err := e.sync.Sync(ctx)
	if e.destroyed.Load() {
		return state.VersionedState{}, ErrDestroyed
	}
	if err != nil {
		var rejected *syncer.RejectedError
		e.store.Mutate(func(vs *state.VersionedState) {
			if errors.As(err, &rejected) {
				e.tracker.HandleRejection(vs, d, rejected.Conflicts, e.clock.Now())
				return
			}
			e.tracker.RollbackToken(vs, tok)
		})
		e.logger.Warn("update rolled back", "paths", delta.ChangedPaths(d), "error", err)
		e.notify()
		return e.store.Snapshot(), fmt.Errorf("update to version %d: %w", d.To, err)
	}

	e.tracker.Confirm(tok)
	return e.commit(nil), nil
}

func (e *Engine) updateConfirmed(ctx context.Context, d delta.Delta) (state.VersionedState, error) {
	changes := make([]state.StateChange, len(d.Changes))
	for i, c := range d.Changes {
		changes[i] = state.NewChange(e.newID(), c, state.OriginLocal, 0)
	}
	e.stagedMu.Lock()
	e.staged = changes
	e.stagedMu.Unlock()

	_, err := e.sync.Sync(ctx)

	e.stagedMu.Lock()
	e.staged = nil
	e.stagedMu.Unlock()

	if e.destroyed.Load() {
		return state.VersionedState{}, ErrDestroyed
	}
	if err != nil {
		return e.store.Snapshot(), fmt.Errorf("update to version %d: %w", d.To, err)
	}
	return e.commit(func(vs *state.VersionedState) {
		vs.Data = delta.Apply(vs.Data, d)
		vs.Changes = append(vs.Changes, changes...)
		vs.Version++
	}), nil
}

// commit runs fn, stamps the last sync time, records the result in the
// history and notifies the observer.
func (e *Engine) commit(fn func(vs *state.VersionedState)) state.VersionedState {
	e.store.Mutate(func(vs *state.VersionedState) {
		if fn != nil {
			fn(vs)
		}
		vs.LastSync = e.sync.LastSync()
	})
	snap := e.store.Snapshot()
	e.history.CreateVersion(snap.Data, snap.Changes)
	e.notify()
	return snap
}

// Reconcile merges an authoritative delta into the local state. Conflicts
// are detected against the local state and each is resolved and committed:
// the whole-state conflict first, then the per-path ones. Changes without a
// conflict are applied directly unless a whole-state conflict already decided
// the outcome. The local version advances to d.To when that is ahead and some
// remote value was applied or won a conflict; local wins keep the local
// version. The resolved conflicts are returned.
func (e *Engine) Reconcile(d delta.Delta) ([]state.Conflict, error) {
	if e.destroyed.Load() {
		return nil, ErrDestroyed
	}
	var resolved []state.Conflict
	snap := e.commit(func(vs *state.VersionedState) {
		conflicts := e.resolver.Detect(vs, d)
		whole := false
		conflicted := make(map[string]bool, len(conflicts))
		for _, c := range conflicts {
			if c.Kind == state.ConflictMerge && len(c.Path) == 0 {
				whole = true
				continue
			}
			conflicted[c.Key()] = true
		}
		remoteWon := len(conflicts) == 0
		for _, c := range conflicts {
			c = e.resolver.Handle(vs, c)
			if c.Policy != state.PolicyLocal {
				remoteWon = true
			}
			resolved = append(resolved, c)
		}
		if !whole {
			for _, c := range d.Changes {
				if conflicted[c.Key()] {
					continue
				}
				if c.Kind == delta.KindDelete {
					delta.Delete(vs.Data, c.Path)
				} else {
					delta.Set(vs.Data, c.Path, delta.Clone(c.NewValue))
				}
				vs.Changes = append(vs.Changes, state.NewChange(e.newID(), c, state.OriginRemote, 0))
				remoteWon = true
			}
		}
		if remoteWon && d.To > vs.Version {
			vs.Version = d.To
		}
	})
	e.logger.Info("remote delta reconciled", "from", d.From, "to", d.To, "changes", len(d.Changes), "conflicts", len(resolved), "version", snap.Version)
	return resolved, nil
}

// ReconcileSnapshot reconciles an authoritative snapshot of the data at
// version. The snapshot is turned into a delta against the local data based
// on version, so a local state at any other version raises a whole-state
// conflict.
func (e *Engine) ReconcileSnapshot(version int, data map[string]any) ([]state.Conflict, error) {
	if e.destroyed.Load() {
		return nil, ErrDestroyed
	}
	d := delta.Calculate(e.store.Snapshot().Data, data, e.clock.Now())
	d.From, d.To = version, version
	return e.Reconcile(d)
}

// GetState returns a copy of the current data.
func (e *Engine) GetState() map[string]any {
	var data map[string]any
	e.store.Read(func(vs *state.VersionedState) {
		data = delta.CloneState(vs.Data)
	})
	return data
}

// GetVersion returns the current version.
func (e *Engine) GetVersion() int {
	return e.store.Version()
}

// Versioned returns a copy of the whole versioned state.
func (e *Engine) Versioned() state.VersionedState {
	return e.store.Snapshot()
}

// Version returns the history entry recorded as version n.
func (e *Engine) Version(n int) (state.VersionedState, error) {
	return e.history.Lookup(n)
}

// VersionRange returns the history entries between a and b inclusive.
func (e *Engine) VersionRange(a, b int) []state.VersionedState {
	return e.history.Range(a, b)
}

// CompareVersions returns the change log recorded at version b. Both
// versions must be in the history.
func (e *Engine) CompareVersions(a, b int) ([]state.StateChange, error) {
	return e.history.Compare(a, b)
}

// History exposes the version history.
func (e *Engine) History() *ledger.History {
	return e.history
}

// RegisterResolver installs a custom resolver for a conflict kind. A nil fn
// removes it.
func (e *Engine) RegisterResolver(kind state.ConflictKind, fn conflict.ResolveFunc) {
	e.resolver.Register(kind, fn)
}

// PendingUpdates returns the number of optimistic updates awaiting
// confirmation.
func (e *Engine) PendingUpdates() int {
	return e.tracker.Pending()
}

// StartSync starts the periodic heartbeat.
func (e *Engine) StartSync() {
	e.sync.StartInterval()
}

// StopSync stops the periodic heartbeat.
func (e *Engine) StopSync() {
	e.sync.StopInterval()
}

// SyncPhase returns the phase of the sync coordinator.
func (e *Engine) SyncPhase() syncer.Phase {
	return e.sync.Phase()
}

// Destroy stops every timer. The data stays readable; results of calls still
// in flight are discarded.
func (e *Engine) Destroy() {
	if e.destroyed.Swap(true) {
		return
	}
	e.sync.Destroy()
	e.logger.Debug("engine destroyed", "version", e.GetVersion())
}

func (e *Engine) notify() {
	if e.onChange != nil {
		e.onChange(e.store.Snapshot())
	}
}

// source feeds sync requests from the engine state.
type source struct{ e *Engine }

func (s source) Version() int { return s.e.store.Version() }

// SyncRequest carries the local changes recorded after since, oldest first,
// followed by the staged ones.
func (s source) SyncRequest(since time.Time, limit int) syncer.Request {
	var req syncer.Request
	s.e.store.Read(func(vs *state.VersionedState) {
		req.Version = vs.Version
		req.Checksum = s.e.checksum.Checksum(vs.Data)
		for _, c := range vs.Changes {
			if c.Origin == state.OriginLocal && c.Timestamp.After(since) {
				req.PendingChanges = append(req.PendingChanges, c)
			}
		}
	})
	s.e.stagedMu.Lock()
	req.PendingChanges = append(req.PendingChanges, s.e.staged...)
	s.e.stagedMu.Unlock()
	if limit > 0 && len(req.PendingChanges) > limit {
		req.PendingChanges = req.PendingChanges[:limit]
	}
	req.PendingChanges = append([]state.StateChange(nil), req.PendingChanges...)
	return req
}
