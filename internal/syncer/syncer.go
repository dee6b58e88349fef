// Package syncer keeps a client view current against the booking ledger by
// polling its event feed at a fixed interval. State moves Disconnected ->
// Syncing -> Connected; any failed pull drops back to Disconnected and the
// next tick retries. Consumers read Status for the state and how stale the
// local view is.
package syncer

import (
	"context"
	"log"
	"sync"
	"time"

	"tideline/internal/domain"
)

const (
	StateDisconnected = "disconnected"
	StateSyncing      = "syncing"
	StateConnected    = "connected"

	defaultInterval = 30 * time.Second
	defaultBatch    = 100
)

// Source is where deltas come from: the local ledger or a remote API.
type Source interface {
	// Pull returns events with IDs greater than the cursor, ascending,
	// at most limit of them.
	Pull(ctx context.Context, after int64, limit int) ([]domain.Event, error)
}

// Handler consumes pulled events in order. An error aborts the batch; the
// cursor stops before the failed event so it is retried next tick.
type Handler func(evt domain.Event) error

type Coordinator struct {
	Source   Source
	Interval time.Duration
	Timeout  time.Duration
	Batch    int
	Handler  Handler
	Now      func() time.Time

	mu         sync.Mutex
	state      string
	cursor     int64
	lastSyncAt time.Time
	lastError  string
}

// Status is a point-in-time snapshot of the coordinator.
type Status struct {
	State      string        `json:"state"`
	Cursor     int64         `json:"cursor"`
	LastSyncAt string        `json:"last_sync_at,omitempty"`
	Staleness  time.Duration `json:"staleness_ns"`
	LastError  string        `json:"last_error,omitempty"`
}

func New(source Source) *Coordinator {
	return &Coordinator{
		Source:   source,
		Interval: defaultInterval,
		Batch:    defaultBatch,
		Now:      time.Now,
		state:    StateDisconnected,
	}
}

func (c *Coordinator) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

func (c *Coordinator) interval() time.Duration {
	if c.Interval <= 0 {
		return defaultInterval
	}
	return c.Interval
}

func (c *Coordinator) batch() int {
	if c.Batch <= 0 {
		return defaultBatch
	}
	return c.Batch
}

// Run polls until the context is cancelled. The first pull happens
// immediately, then on every tick. Ticks are fixed-interval: a slow pull
// does not shift the schedule.
func (c *Coordinator) Run(ctx context.Context) {
	ticker := time.NewTicker(c.interval())
	defer ticker.Stop()
	c.pullOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			c.setState(StateDisconnected, "stopped")
			return
		case <-ticker.C:
			c.pullOnce(ctx)
		}
	}
}

// SyncOnce performs a single pull cycle, for callers that drive the schedule
// themselves.
func (c *Coordinator) SyncOnce(ctx context.Context) error {
	return c.pullOnce(ctx)
}

func (c *Coordinator) pullOnce(ctx context.Context) error {
	c.setState(StateSyncing, "")
	pullCtx := ctx
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		pullCtx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}
	for {
		cursor := c.Cursor()
		events, err := c.Source.Pull(pullCtx, cursor, c.batch())
		if err != nil {
			log.Printf("sync: pull after %d failed: %v", cursor, err)
			c.setState(StateDisconnected, err.Error())
			return err
		}
		for _, evt := range events {
			if c.Handler != nil {
				if err := c.Handler(evt); err != nil {
					log.Printf("sync: handler for event %d failed: %v", evt.ID, err)
					c.setState(StateDisconnected, err.Error())
					return err
				}
			}
			c.setCursor(evt.ID)
		}
		if len(events) < c.batch() {
			break
		}
	}
	c.mu.Lock()
	c.state = StateConnected
	c.lastSyncAt = c.now()
	c.lastError = ""
	c.mu.Unlock()
	return nil
}

func (c *Coordinator) setState(state, errMsg string) {
	c.mu.Lock()
	c.state = state
	c.lastError = errMsg
	c.mu.Unlock()
}

func (c *Coordinator) setCursor(v int64) {
	c.mu.Lock()
	if v > c.cursor {
		c.cursor = v
	}
	c.mu.Unlock()
}

func (c *Coordinator) Cursor() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cursor
}

// SetCursor seeds the sync token, typically from a persisted checkpoint.
func (c *Coordinator) SetCursor(v int64) {
	c.mu.Lock()
	c.cursor = v
	c.mu.Unlock()
}

// Staleness is the age of the local view: time since the last successful
// pull, or a negative duration when nothing has synced yet.
func (c *Coordinator) Staleness() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.lastSyncAt.IsZero() {
		return -1
	}
	return c.now().Sub(c.lastSyncAt)
}

func (c *Coordinator) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := Status{
		State:     c.state,
		Cursor:    c.cursor,
		LastError: c.lastError,
	}
	if !c.lastSyncAt.IsZero() {
		s.LastSyncAt = c.lastSyncAt.UTC().Format(time.RFC3339)
		s.Staleness = c.now().Sub(c.lastSyncAt)
	} else {
		s.Staleness = -1
	}
	return s
}
