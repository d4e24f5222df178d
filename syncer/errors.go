package syncer

import (
	"errors"
	"fmt"

	"github.com/luca-patrignani/mental-poker-sync/state"
)

var (
	// ErrTransport marks a single failed attempt: no acknowledgment, a
	// transport error, or a negative acknowledgment without conflicts.
	ErrTransport = errors.New("transport failure")
	// ErrSyncFailed is returned once every configured attempt failed.
	ErrSyncFailed = errors.New("sync failed")
	// ErrDestroyed is returned by a disposed coordinator.
	ErrDestroyed = errors.New("sync coordinator destroyed")
)

// RejectedError is returned when the authority answered with a negative
// acknowledgment carrying conflicts. Rejections are not retried.
type RejectedError struct {
	Conflicts []state.Conflict
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("sync rejected with %d conflicts", len(e.Conflicts))
}
