package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/luca-patrignani/mental-poker-sync/state"
)

// Phase is the state of the coordinator.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseSyncing
	PhaseRetryWait
	PhaseFailed
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseSyncing:
		return "syncing"
	case PhaseRetryWait:
		return "retry-wait"
	case PhaseFailed:
		return "failed"
	}
	return fmt.Sprintf("phase(%d)", int(p))
}

// Source provides what a sync cycle sends.
type Source interface {
	// Version is the current local version.
	Version() int
	// SyncRequest builds the sync_request payload with at most limit
	// changes recorded after since. A limit <= 0 means no cap.
	SyncRequest(since time.Time, limit int) Request
}

// Config holds the timing knobs of a coordinator.
type Config struct {
	Interval      time.Duration
	RetryAttempts int
	RetryDelay    time.Duration
	BatchSize     int
}

// Coordinator runs sync cycles against a Transport.
type Coordinator struct {
	transport Transport
	source    Source
	cfg       Config
	clock     state.Clock
	logger    *slog.Logger

	cycle sync.Mutex // one sync cycle at a time

	mu          sync.Mutex
	phase       Phase
	retries     int
	lastSync    time.Time
	heartbeat   chan struct{}
	retryCancel chan struct{}
	done        chan struct{}
	closed      bool
}

type Option func(*Coordinator)

func WithClock(c state.Clock) Option {
	return func(co *Coordinator) { co.clock = c }
}

func WithLogger(l *slog.Logger) Option {
	return func(co *Coordinator) { co.logger = l }
}

// NewCoordinator creates an idle coordinator. RetryAttempts below 1 is
// treated as 1.
func NewCoordinator(t Transport, src Source, cfg Config, opts ...Option) *Coordinator {
	if cfg.RetryAttempts < 1 {
		cfg.RetryAttempts = 1
	}
	c := &Coordinator{
		transport: t,
		source:    src,
		cfg:       cfg,
		clock:     state.SystemClock{},
		logger:    slog.Default(),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Sync runs one full sync cycle: a fresh attempt, then retries after
// RetryDelay until an attempt succeeds or RetryAttempts attempts failed.
// Every retry is announced with sync_attempt; exhaustion emits sync_failed
// once and returns an error wrapping ErrSyncFailed. A rejection returns a
// *RejectedError without retrying.
func (c *Coordinator) Sync(ctx context.Context) (Ack, error) {
	c.cycle.Lock()
	defer c.cycle.Unlock()

	isRetry := false
	for {
		ack, err := c.syncState(ctx, isRetry)
		if err == nil || !errors.Is(err, ErrTransport) {
			return ack, err
		}

		c.mu.Lock()
		c.retries++
		attempt := c.retries
		c.mu.Unlock()

		version := c.source.Version()
		if attempt >= c.cfg.RetryAttempts {
			c.emit(ctx, EventSyncFailed, Failure{Version: version, Timestamp: c.clock.Now()})
			c.mu.Lock()
			c.retries = 0
			c.phase = PhaseFailed
			c.mu.Unlock()
			c.logger.Error("sync failed", "version", version, "attempts", attempt, "error", err)
			return ack, fmt.Errorf("%w after %d attempts: %w", ErrSyncFailed, attempt, err)
		}

		c.emit(ctx, EventSyncAttempt, Attempt{Version: version, Timestamp: c.clock.Now(), Attempt: attempt})
		c.logger.Warn("sync attempt failed, retrying", "version", version, "attempt", attempt, "delay", c.cfg.RetryDelay, "error", err)
		if werr := c.waitRetry(ctx); werr != nil {
			return ack, errors.Join(werr, err)
		}
		isRetry = true
	}
}

// syncState performs a single attempt. A fresh attempt resets the retry
// counter.
func (c *Coordinator) syncState(ctx context.Context, isRetry bool) (Ack, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return Ack{}, ErrDestroyed
	}
	if !isRetry {
		c.retries = 0
	}
	c.phase = PhaseSyncing
	since := c.lastSync
	c.mu.Unlock()

	req := c.source.SyncRequest(since, c.cfg.BatchSize)
	ack, err := c.transport.Send(ctx, EventSyncRequest, req)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return Ack{}, ErrDestroyed
	}
	switch {
	case err != nil:
		return ack, fmt.Errorf("%w: %w", ErrTransport, err)
	case !ack.OK && len(ack.Conflicts) > 0:
		c.phase = PhaseIdle
		return ack, &RejectedError{Conflicts: ack.Conflicts}
	case !ack.OK:
		return ack, fmt.Errorf("%w: negative acknowledgment", ErrTransport)
	}

	now := c.clock.Now()
	if !now.After(c.lastSync) {
		now = c.lastSync.Add(time.Nanosecond)
	}
	c.lastSync = now
	c.retries = 0
	c.phase = PhaseIdle
	c.startIntervalLocked()
	return ack, nil
}

func (c *Coordinator) waitRetry(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrDestroyed
	}
	c.stopIntervalLocked()
	c.phase = PhaseRetryWait
	cancel := make(chan struct{})
	c.retryCancel = cancel
	done := c.done
	c.mu.Unlock()

	timer := time.NewTimer(c.cfg.RetryDelay)
	defer timer.Stop()
	defer func() {
		c.mu.Lock()
		if c.retryCancel == cancel {
			c.retryCancel = nil
		}
		c.mu.Unlock()
	}()

	select {
	case <-timer.C:
		return nil
	case <-cancel:
		return errors.New("retry canceled")
	case <-done:
		return ErrDestroyed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// emit sends a telemetry event. Failures are logged and otherwise ignored.
func (c *Coordinator) emit(ctx context.Context, event string, payload any) {
	if _, err := c.transport.Send(ctx, event, payload); err != nil {
		c.logger.Debug("telemetry not delivered", "event", event, "error", err)
	}
}

// StartInterval starts the heartbeat, which runs a sync cycle every Interval.
// It does nothing if the heartbeat already runs, while retries are pending,
// or when Interval is not positive.
func (c *Coordinator) StartInterval() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.startIntervalLocked()
}

func (c *Coordinator) startIntervalLocked() {
	if c.closed || c.heartbeat != nil || c.retryCancel != nil || c.cfg.Interval <= 0 {
		return
	}
	stop := make(chan struct{})
	c.heartbeat = stop
	go c.runHeartbeat(stop, c.cfg.Interval)
}

func (c *Coordinator) runHeartbeat(stop chan struct{}, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if _, err := c.Sync(context.Background()); err != nil {
				c.logger.Warn("heartbeat sync failed", "error", err)
			}
		case <-stop:
			return
		}
	}
}

// StopInterval stops the heartbeat. It is safe to call any number of times.
func (c *Coordinator) StopInterval() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopIntervalLocked()
}

func (c *Coordinator) stopIntervalLocked() {
	if c.heartbeat != nil {
		close(c.heartbeat)
		c.heartbeat = nil
	}
}

// CancelRetry aborts a pending retry; the waiting cycle returns an error. It
// is safe to call any number of times.
func (c *Coordinator) CancelRetry() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.retryCancel != nil {
		close(c.retryCancel)
		c.retryCancel = nil
	}
}

// Destroy stops both timers. An in-flight Send is not aborted, but its
// outcome is ignored.
func (c *Coordinator) Destroy() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.stopIntervalLocked()
	close(c.done)
}

// Phase returns the current phase.
func (c *Coordinator) Phase() Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

// LastSync returns the time of the last successful sync.
func (c *Coordinator) LastSync() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastSync
}

// Retries returns the failed attempts of the running cycle.
func (c *Coordinator) Retries() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.retries
}

// HeartbeatRunning reports whether the heartbeat timer is live.
func (c *Coordinator) HeartbeatRunning() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.heartbeat != nil
}
