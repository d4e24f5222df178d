// Package delta implements structural diffing and patching of plain nested
// state, the kind of state that round-trips through JSON: maps keyed by
// strings, slices, and scalar leaves.
//
// # Core Components
//
// Change: a single path-addressed value change (create, update or delete).
//
// Delta: an ordered list of changes plus the version range it spans. The
// differ itself is version-agnostic, From and To are filled in by callers.
//
// # Paths
//
// A path is an ordered list of map keys. Its textual form joins the segments
// with dots ("players.1.bet"), and ParsePath/JoinPath convert between the two
// forms symmetrically.
//
// # Semantics
//
// Calculate recurses only when both sides hold a map at the same key. Any other
// pair of differing values (slices, scalars, nil versus map, map versus scalar)
// is recorded as a full replacement at that path. Apply never mutates its input
// and creates missing intermediate maps instead of failing.
package delta
