package conflict

import (
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/luca-patrignani/mental-poker-sync/delta"
	"github.com/luca-patrignani/mental-poker-sync/state"
)

// Default critical paths of a poker table state.
const (
	PathCurrentTurn    = "currentTurn"
	PathPhase          = "phase"
	PathPot            = "pot"
	PathDealer         = "dealer"
	PathCommunityCards = "communityCards"
)

// DefaultCriticalPaths returns the fields only the authority may decide.
func DefaultCriticalPaths() []string {
	return []string{PathCurrentTurn, PathPhase, PathPot, PathDealer, PathCommunityCards}
}

// ResolveFunc replaces the built-in resolution of one conflict kind. It
// returns the conflict with ResolvedValue and Policy set; Policy decides
// whether Handle writes the value.
type ResolveFunc func(c state.Conflict) state.Conflict

// Resolver detects and resolves conflicts.
type Resolver struct {
	policy   state.Policy
	critical [][]string
	custom   map[state.ConflictKind]ResolveFunc
	clock    state.Clock
	newID    func() string
	logger   *slog.Logger
}

type Option func(*Resolver)

// WithCriticalPaths replaces the default critical paths (dot-joined).
func WithCriticalPaths(paths ...string) Option {
	return func(r *Resolver) {
		r.critical = r.critical[:0]
		for _, p := range paths {
			r.critical = append(r.critical, delta.ParsePath(p))
		}
	}
}

func WithClock(c state.Clock) Option {
	return func(r *Resolver) { r.clock = c }
}

func WithLogger(l *slog.Logger) Option {
	return func(r *Resolver) { r.logger = l }
}

// WithIDs replaces the generator of audit StateChange ids.
func WithIDs(gen func() string) Option {
	return func(r *Resolver) { r.newID = gen }
}

// NewResolver creates a resolver applying policy to non-critical paths. An
// invalid policy falls back to merge.
func NewResolver(policy state.Policy, opts ...Option) *Resolver {
	if !policy.Valid() {
		policy = state.PolicyMerge
	}
	r := &Resolver{
		policy: policy,
		custom: make(map[state.ConflictKind]ResolveFunc),
		clock:  state.SystemClock{},
		newID:  uuid.NewString,
		logger: slog.Default(),
	}
	WithCriticalPaths(DefaultCriticalPaths()...)(r)
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Policy returns the configured default policy.
func (r *Resolver) Policy() state.Policy {
	return r.policy
}

// Register installs fn as the resolver of every conflict of the given kind.
func (r *Resolver) Register(kind state.ConflictKind, fn ResolveFunc) {
	if fn == nil {
		delete(r.custom, kind)
		return
	}
	r.custom[kind] = fn
}

// IsCritical reports whether path is, or lies under, a critical path.
func (r *Resolver) IsCritical(path []string) bool {
	for _, c := range r.critical {
		if len(c) > 0 && delta.HasPrefix(path, c) {
			return true
		}
	}
	return false
}

func (r *Resolver) criticalKeys() map[string]bool {
	keys := make(map[string]bool, len(r.critical))
	for _, c := range r.critical {
		if len(c) == 1 {
			keys[c[0]] = true
		}
	}
	return keys
}

// Detect compares d against the local state vs.
func (r *Resolver) Detect(vs *state.VersionedState, d delta.Delta) []state.Conflict {
	remoteVersion := d.To
	if remoteVersion == 0 {
		remoteVersion = d.From
	}

	var conflicts []state.Conflict
	if d.From != vs.Version {
		conflicts = append(conflicts, state.Conflict{
			ClientVersion: vs.Version,
			ServerVersion: remoteVersion,
			Kind:          state.ConflictMerge,
			Policy:        r.policy,
			ClientValue:   delta.CloneState(vs.Data),
			ServerValue:   delta.Apply(vs.Data, d),
		})
	}
	for _, c := range d.Changes {
		local, _ := delta.Get(vs.Data, c.Path)
		if delta.Equal(local, c.OldValue) {
			continue
		}
		conflicts = append(conflicts, state.Conflict{
			ClientVersion:   vs.Version,
			ServerVersion:   remoteVersion,
			Kind:            state.ConflictOverride,
			Policy:          r.policy,
			Path:            append([]string(nil), c.Path...),
			ClientValue:     delta.Clone(local),
			ServerValue:     delta.Clone(c.NewValue),
			ClientTimestamp: lastChangeAt(vs.Changes, c.Key()),
			ServerTimestamp: c.Timestamp,
		})
	}
	return conflicts
}

// lastChangeAt returns the time of the latest logged change on key.
func lastChangeAt(changes []state.StateChange, key string) time.Time {
	for i := len(changes) - 1; i >= 0; i-- {
		if changes[i].Key() == key {
			return changes[i].Timestamp
		}
	}
	return time.Time{}
}

// Resolve fills in the resolved value of c. A custom resolver registered for
// the conflict kind takes over entirely; otherwise critical paths resolve to
// the remote value and every other path follows the conflict policy. Under
// merge, a per-path conflict whose local change is the later one keeps the
// local value.
func (r *Resolver) Resolve(c state.Conflict) state.Conflict {
	if fn, ok := r.custom[c.Kind]; ok {
		c = fn(c)
		c.Resolved = true
		return c
	}
	if len(c.Path) > 0 && r.IsCritical(c.Path) {
		c.Policy = state.PolicyRemote
		c.ResolvedValue = delta.Clone(c.ServerValue)
		c.Resolved = true
		return c
	}
	if !c.Policy.Valid() {
		c.Policy = r.policy
	}
	switch c.Policy {
	case state.PolicyLocal:
		c.ResolvedValue = delta.Clone(c.ClientValue)
	case state.PolicyRemote:
		c.ResolvedValue = delta.Clone(c.ServerValue)
	default:
		if len(c.Path) > 0 && localIsLater(c) {
			c.ResolvedValue = delta.Clone(c.ClientValue)
			break
		}
		c.ResolvedValue = Merge(c.ClientValue, c.ServerValue, r.criticalKeys())
	}
	c.Resolved = true
	return c
}

func localIsLater(c state.Conflict) bool {
	return !c.ClientTimestamp.IsZero() && !c.ServerTimestamp.IsZero() && c.ClientTimestamp.After(c.ServerTimestamp)
}

// Merge combines a local and a remote value. An absent side yields the other;
// scalars and times yield the remote value; slices yield a copy of the remote
// slice; maps start from a copy of the local map and take the remote value
// only for the critical keys. The merge is shallow.
func Merge(local, remote any, critical map[string]bool) any {
	if local == nil {
		return delta.Clone(remote)
	}
	if remote == nil {
		return delta.Clone(local)
	}
	switch rv := remote.(type) {
	case []any:
		return delta.Clone(rv)
	case map[string]any:
		lv, ok := local.(map[string]any)
		if !ok {
			return delta.CloneState(rv)
		}
		out := delta.CloneState(lv)
		for k := range critical {
			if v, ok := rv[k]; ok {
				out[k] = delta.Clone(v)
			}
		}
		return out
	case time.Time:
		return rv
	}
	return remote
}

// Handle resolves c if needed and commits it to vs. When the effective policy
// is remote or merge, the version advances to the remote version and the
// resolved value is written at the conflict path (merged key by key into the
// whole state for the root path). One remote audit change is appended in
// every case. The resolved conflict is returned.
func (r *Resolver) Handle(vs *state.VersionedState, c state.Conflict) state.Conflict {
	if !c.Resolved {
		c = r.Resolve(c)
	}

	old, _ := delta.Get(vs.Data, c.Path)
	old = delta.Clone(old)
	newValue := old
	if c.Policy != state.PolicyLocal {
		if c.ServerVersion > vs.Version {
			vs.Version = c.ServerVersion
		}
		if len(c.Path) == 0 {
			if m, ok := c.ResolvedValue.(map[string]any); ok {
				for k, v := range m {
					vs.Data[k] = delta.Clone(v)
				}
			}
		} else {
			delta.Set(vs.Data, c.Path, delta.Clone(c.ResolvedValue))
		}
		newValue, _ = delta.Get(vs.Data, c.Path)
		newValue = delta.Clone(newValue)
	}

	vs.Changes = append(vs.Changes, state.StateChange{
		ID:        r.newID(),
		Kind:      delta.KindUpdate,
		Path:      append([]string(nil), c.Path...),
		Value:     delta.Clone(c.ResolvedValue),
		OldValue:  old,
		NewValue:  newValue,
		Timestamp: r.clock.Now(),
		Origin:    state.OriginRemote,
	})
	r.logger.Info("conflict resolved",
		"kind", string(c.Kind),
		"path", c.Key(),
		"policy", string(c.Policy),
		"version", vs.Version,
	)
	return c
}
