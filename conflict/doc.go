// Package conflict detects and resolves divergence between the locally held
// state and an authoritative remote delta.
//
// # Core Components
//
// Resolver: holds the default policy, the critical paths and the custom
// per-kind resolvers.
//
// # Detection
//
// A delta whose base version differs from the local version yields one
// whole-state conflict (kind merge). Each change whose declared old value no
// longer matches the local value yields one per-path conflict (kind override).
//
// # Resolution
//
// Critical paths are game-authoritative: whose turn it is, the phase, the pot,
// the dealer marker and the shared cards. A conflict on a critical path always
// resolves to the remote value. Other paths follow the policy:
//   - local: keep the local value
//   - remote: take the remote value
//   - merge: see Merge
//
// Resolution is all-or-nothing per conflict: Handle writes the whole resolved
// value or nothing.
package conflict
