// Package syncer pushes the local state to the remote authority and retries
// failed pushes.
//
// # Core Components
//
// Transport: the only boundary dependency, a narrow send(event, payload)
// capability any socket, HTTP or pub/sub client can satisfy.
//
// Coordinator: runs sync cycles, owns the heartbeat and retry timers and emits
// the sync_attempt and sync_failed telemetry events.
//
// # Phases
//
// A coordinator moves idle -> syncing -> idle on success. A failed attempt
// goes to retry-wait and back to syncing after the retry delay, until the
// configured number of attempts is exhausted, which ends in failed. The
// heartbeat is paused for as long as retries are pending, so at most one of
// the two timers is live.
package syncer
