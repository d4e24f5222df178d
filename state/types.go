package state

import (
	"time"

	"github.com/luca-patrignani/mental-poker-sync/delta"
)

// Origin tells where a change came from.
type Origin string

const (
	OriginLocal  Origin = "local"
	OriginRemote Origin = "remote"
)

// Token identifies the optimistic record a change was applied under.
// The zero Token means the change is not optimistic.
type Token uint64

// StateChange is one entry of the audit log of a VersionedState.
type StateChange struct {
	ID            string     `json:"id"`
	Kind          delta.Kind `json:"kind"`
	Path          []string   `json:"path"`
	Value         any        `json:"value"`
	OldValue      any        `json:"oldValue"`
	NewValue      any        `json:"newValue"`
	Timestamp     time.Time  `json:"timestamp"`
	Origin        Origin     `json:"origin"`
	OptimisticKey Token      `json:"optimisticKey,omitempty"`
}

// Key returns the dot-joined path of the change.
func (c StateChange) Key() string {
	return delta.JoinPath(c.Path)
}

// NewChange builds the log entry recording c. A zero tok marks a change that
// is not optimistic.
func NewChange(id string, c delta.Change, origin Origin, tok Token) StateChange {
	return StateChange{
		ID:            id,
		Kind:          c.Kind,
		Path:          append([]string(nil), c.Path...),
		Value:         delta.Clone(c.NewValue),
		OldValue:      delta.Clone(c.OldValue),
		NewValue:      delta.Clone(c.NewValue),
		Timestamp:     c.Timestamp,
		Origin:        origin,
		OptimisticKey: tok,
	}
}

// Equivalent reports whether two changes record the same transition on the
// same path.
func (c StateChange) Equivalent(other StateChange) bool {
	return c.Key() == other.Key() &&
		delta.Equal(c.OldValue, other.OldValue) &&
		delta.Equal(c.NewValue, other.NewValue)
}

// VersionedState is the canonical, locally held copy of the shared state.
type VersionedState struct {
	Version   int            `json:"version"`
	Timestamp time.Time      `json:"timestamp"`
	Checksum  string         `json:"checksum"`
	Data      map[string]any `json:"data"`
	Changes   []StateChange  `json:"changes"`
	LastSync  time.Time      `json:"lastSync"`
}

// Clone returns a deep copy of vs.
func (vs VersionedState) Clone() VersionedState {
	out := vs
	out.Data = delta.CloneState(vs.Data)
	out.Changes = make([]StateChange, len(vs.Changes))
	for i, c := range vs.Changes {
		c.Path = append([]string(nil), c.Path...)
		c.Value = delta.Clone(c.Value)
		c.OldValue = delta.Clone(c.OldValue)
		c.NewValue = delta.Clone(c.NewValue)
		out.Changes[i] = c
	}
	return out
}

// ConflictKind distinguishes whole-state from per-path conflicts.
type ConflictKind string

const (
	// ConflictMerge is a whole-state conflict raised by a version mismatch.
	ConflictMerge ConflictKind = "merge"
	// ConflictOverride is raised when a path drifted from the value the
	// remote side assumed.
	ConflictOverride ConflictKind = "override"
)

// Policy is a conflict resolution rule.
type Policy string

const (
	PolicyLocal  Policy = "local"
	PolicyRemote Policy = "remote"
	PolicyMerge  Policy = "merge"
)

// Valid reports whether p is one of the known policies.
func (p Policy) Valid() bool {
	switch p {
	case PolicyLocal, PolicyRemote, PolicyMerge:
		return true
	}
	return false
}

// ParsePolicy accepts the local/remote/merge names as well as the
// client/server aliases.
func ParsePolicy(s string) (Policy, bool) {
	switch s {
	case "local", "client":
		return PolicyLocal, true
	case "remote", "server":
		return PolicyRemote, true
	case "merge":
		return PolicyMerge, true
	}
	return "", false
}

// Conflict is a detected divergence between the local and the remote view.
type Conflict struct {
	ClientVersion int          `json:"clientVersion"`
	ServerVersion int          `json:"serverVersion"`
	Kind          ConflictKind `json:"kind"`
	Policy        Policy       `json:"policy"`
	Path          []string     `json:"path"`
	ClientValue   any          `json:"clientValue"`
	ServerValue   any          `json:"serverValue"`
	ResolvedValue any          `json:"resolvedValue"`
	Resolved      bool         `json:"resolved"`
	// Times of the changes that produced each side of a per-path conflict.
	// Zero when unknown.
	ClientTimestamp time.Time `json:"clientTimestamp"`
	ServerTimestamp time.Time `json:"serverTimestamp"`
}

// Key returns the dot-joined path of the conflict.
func (c Conflict) Key() string {
	return delta.JoinPath(c.Path)
}
