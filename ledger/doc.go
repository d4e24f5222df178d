// Package ledger keeps a bounded history of versioned snapshots of the synced
// state, for audit and range queries.
//
// # Core Components
//
// History: a FIFO-bounded, hash-chained log of VersionedState snapshots.
//
// Entry: one snapshot plus its link to the previous entry.
//
// # Properties
//
// The history provides:
//   - Boundedness: it never holds more than its configured maximum length
//   - FIFO eviction: the oldest entry goes first
//   - Tamper detection: every entry hashes its predecessor, and Verify checks
//     the links of the retained window
//
// Checksum, clock and version counter are constructor-supplied strategies so
// that tests run deterministically.
package ledger
