// Package state holds the data model shared by the synchronization engine:
// the versioned state itself, the audit log of changes, conflicts, and the
// strategy objects (checksum, clock, version counter) the engine is built
// from.
//
// # Core Components
//
// VersionedState: canonical data plus version, checksum, timestamp and the
// ordered change log.
//
// Store: the single owner of a VersionedState. Every mutation goes through
// Mutate, which recomputes the checksum at commit.
//
// Checksummer, Clock, Counter: constructor-injected providers, so tests can
// swap in deterministic fakes.
package state
