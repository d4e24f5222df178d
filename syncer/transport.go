package syncer

import (
	"context"
	"time"

	"github.com/luca-patrignani/mental-poker-sync/state"
)

// Outbound events.
const (
	EventSyncRequest = "sync_request"
	EventSyncAttempt = "sync_attempt"
	EventSyncFailed  = "sync_failed"
)

// Transport sends one event to the remote authority and waits for its
// acknowledgment. How the acknowledgment travels back is up to the
// implementation.
type Transport interface {
	Send(ctx context.Context, event string, payload any) (Ack, error)
}

// TransportFunc adapts a function to Transport.
type TransportFunc func(ctx context.Context, event string, payload any) (Ack, error)

func (f TransportFunc) Send(ctx context.Context, event string, payload any) (Ack, error) {
	return f(ctx, event, payload)
}

// Ack is the acknowledgment of an event. A negative Ack carrying conflicts is
// a rejection; a negative Ack without them is a transport failure.
type Ack struct {
	OK        bool             `json:"ok"`
	Version   int              `json:"version,omitempty"`
	Conflicts []state.Conflict `json:"conflicts,omitempty"`
}

// Request is the payload of sync_request.
type Request struct {
	Version        int                 `json:"version"`
	Checksum       string              `json:"checksum"`
	PendingChanges []state.StateChange `json:"pendingChanges"`
}

// Attempt is the payload of sync_attempt.
type Attempt struct {
	Version   int       `json:"version"`
	Timestamp time.Time `json:"timestamp"`
	Attempt   int       `json:"attempt"`
}

// Failure is the payload of sync_failed.
type Failure struct {
	Version   int       `json:"version"`
	Timestamp time.Time `json:"timestamp"`
}
