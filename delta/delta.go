package delta

import (
	"sort"
	"time"
)

// Kind classifies a Change.
type Kind string

const (
	KindCreate Kind = "create"
	KindUpdate Kind = "update"
	KindDelete Kind = "delete"
)

// Change is one path-addressed difference between two snapshots.
type Change struct {
	Path      []string  `json:"path"`
	Kind      Kind      `json:"kind"`
	OldValue  any       `json:"oldValue"`
	NewValue  any       `json:"newValue"`
	Timestamp time.Time `json:"timestamp"`
}

// Key returns the dot-joined form of the change path.
func (c Change) Key() string {
	return JoinPath(c.Path)
}

// Delta is an ordered list of changes between two versions of a state.
type Delta struct {
	Changes []Change `json:"changes"`
	From    int      `json:"from"`
	To      int      `json:"to"`
}

// Empty reports whether the delta carries no change.
func (d Delta) Empty() bool {
	return len(d.Changes) == 0
}

// Equal reports whether two deltas hold the same ordered changes. Timestamps
// and the version range are ignored.
func (d Delta) Equal(other Delta) bool {
	if len(d.Changes) != len(other.Changes) {
		return false
	}
	for i := range d.Changes {
		a, b := d.Changes[i], other.Changes[i]
		if a.Key() != b.Key() || a.Kind != b.Kind {
			return false
		}
		if !Equal(a.OldValue, b.OldValue) || !Equal(a.NewValue, b.NewValue) {
			return false
		}
	}
	return true
}

// Calculate returns the changes turning oldState into newState, each stamped
// with at. Keys are visited in sorted order so the result is deterministic.
func Calculate(oldState, newState map[string]any, at time.Time) Delta {
	var changes []Change
	diff(nil, oldState, newState, at, &changes)
	return Delta{Changes: changes}
}

func diff(prefix []string, a, b map[string]any, at time.Time, out *[]Change) {
	for _, k := range unionKeys(a, b) {
		path := make([]string, len(prefix)+1)
		copy(path, prefix)
		path[len(prefix)] = k

		av, aok := a[k]
		bv, bok := b[k]
		am, aIsMap := av.(map[string]any)
		bm, bIsMap := bv.(map[string]any)
		if aok && bok && aIsMap && bIsMap {
			diff(path, am, bm, at, out)
			continue
		}
		if aok && bok && Equal(av, bv) {
			continue
		}

		kind := KindUpdate
		switch {
		case !aok:
			kind = KindCreate
		case !bok:
			kind = KindDelete
		}
		*out = append(*out, Change{
			Path:      path,
			Kind:      kind,
			OldValue:  Clone(av),
			NewValue:  Clone(bv),
			Timestamp: at,
		})
	}
}

func unionKeys(a, b map[string]any) []string {
	keys := make([]string, 0, len(a)+len(b))
	for k := range a {
		keys = append(keys, k)
	}
	for k := range b {
		if _, ok := a[k]; !ok {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

// Apply returns a copy of s with every change of d written at its path.
// Deletes remove the key, every other kind stores the new value.
func Apply(s map[string]any, d Delta) map[string]any {
	out := CloneState(s)
	for _, c := range d.Changes {
		if c.Kind == KindDelete {
			Delete(out, c.Path)
			continue
		}
		Set(out, c.Path, Clone(c.NewValue))
	}
	return out
}

// ChangedPaths returns the dot-joined paths touched by d, deduplicated, in
// the order they first appear.
func ChangedPaths(d Delta) []string {
	seen := make(map[string]bool, len(d.Changes))
	paths := make([]string, 0, len(d.Changes))
	for _, c := range d.Changes {
		k := c.Key()
		if seen[k] {
			continue
		}
		seen[k] = true
		paths = append(paths, k)
	}
	return paths
}
