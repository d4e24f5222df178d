// Package engine keeps a locally held, optimistically mutated copy of the
// shared game state consistent with a remote authority.
//
// An Engine owns exactly one VersionedState. Local updates go through
// UpdateState: the partial update is diffed against the current state, applied
// optimistically, pushed to the authority and confirmed or rolled back.
// Authoritative deltas and snapshots come in through Reconcile and
// ReconcileSnapshot, where divergences are detected and resolved per policy.
// Every commit is recorded in a bounded version history.
//
// The engine assumes a single writer: callers serialize their own
// UpdateState calls.
package engine
