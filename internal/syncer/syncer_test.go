package syncer_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"tideline/internal/domain"
	"tideline/internal/syncer"
)

type fakeSource struct {
	events []domain.Event
	err    error
	pulls  int
}

func (f *fakeSource) Pull(ctx context.Context, after int64, limit int) ([]domain.Event, error) {
	f.pulls++
	if f.err != nil {
		return nil, f.err
	}
	var out []domain.Event
	for _, evt := range f.events {
		if evt.ID > after {
			out = append(out, evt)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func evt(id int64) domain.Event {
	return domain.Event{ID: id, Type: "booking.create", EntityKind: "booking", ActorID: "tester"}
}

func TestSyncOnceAdvancesCursorAndConnects(t *testing.T) {
	src := &fakeSource{events: []domain.Event{evt(1), evt(2), evt(3)}}
	c := syncer.New(src)
	var seen []int64
	c.Handler = func(e domain.Event) error {
		seen = append(seen, e.ID)
		return nil
	}

	if st := c.Status(); st.State != syncer.StateDisconnected {
		t.Fatalf("initial state should be disconnected, got %s", st.State)
	}
	if c.Staleness() >= 0 {
		t.Fatalf("staleness before first sync must be negative")
	}

	if err := c.SyncOnce(context.Background()); err != nil {
		t.Fatalf("sync: %v", err)
	}
	st := c.Status()
	if st.State != syncer.StateConnected {
		t.Fatalf("want connected, got %s", st.State)
	}
	if st.Cursor != 3 {
		t.Fatalf("cursor should land on last event, got %d", st.Cursor)
	}
	if len(seen) != 3 || seen[0] != 1 || seen[2] != 3 {
		t.Fatalf("handler order wrong: %v", seen)
	}
	if st.Staleness < 0 {
		t.Fatalf("staleness should be set after a pull")
	}

	// a second pull from the cursor sees nothing new
	seen = nil
	if err := c.SyncOnce(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(seen) != 0 {
		t.Fatalf("no new events expected, got %v", seen)
	}
}

func TestSyncBatchesUntilDrained(t *testing.T) {
	var events []domain.Event
	for id := int64(1); id <= 25; id++ {
		events = append(events, evt(id))
	}
	src := &fakeSource{events: events}
	c := syncer.New(src)
	c.Batch = 10
	if err := c.SyncOnce(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := c.Cursor(); got != 25 {
		t.Fatalf("cursor %d, want 25", got)
	}
	// 10 + 10 + 5: the short page ends the cycle
	if src.pulls != 3 {
		t.Fatalf("want 3 pulls, got %d", src.pulls)
	}
}

func TestPullFailureDisconnects(t *testing.T) {
	src := &fakeSource{err: errors.New("server unreachable")}
	c := syncer.New(src)
	if err := c.SyncOnce(context.Background()); err == nil {
		t.Fatalf("expected pull error")
	}
	st := c.Status()
	if st.State != syncer.StateDisconnected {
		t.Fatalf("want disconnected, got %s", st.State)
	}
	if st.LastError == "" {
		t.Fatalf("last error should be recorded")
	}

	// recovery on the next clean pull
	src.err = nil
	src.events = []domain.Event{evt(1)}
	if err := c.SyncOnce(context.Background()); err != nil {
		t.Fatal(err)
	}
	st = c.Status()
	if st.State != syncer.StateConnected || st.LastError != "" {
		t.Fatalf("want clean connected state, got %+v", st)
	}
}

func TestHandlerFailureKeepsCursorBeforeBadEvent(t *testing.T) {
	src := &fakeSource{events: []domain.Event{evt(1), evt(2), evt(3)}}
	c := syncer.New(src)
	c.Handler = func(e domain.Event) error {
		if e.ID == 2 {
			return errors.New("apply failed")
		}
		return nil
	}
	if err := c.SyncOnce(context.Background()); err == nil {
		t.Fatalf("expected handler error")
	}
	if got := c.Cursor(); got != 1 {
		t.Fatalf("cursor must stop before the failed event, got %d", got)
	}
	if st := c.Status(); st.State != syncer.StateDisconnected {
		t.Fatalf("want disconnected, got %s", st.State)
	}
}

func TestRunStopsOnContextCancel(t *testing.T) {
	src := &fakeSource{events: []domain.Event{evt(1)}}
	c := syncer.New(src)
	c.Interval = 10 * time.Millisecond
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for c.Cursor() < 1 {
		select {
		case <-deadline:
			t.Fatalf("run never pulled")
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("run did not stop on cancel")
	}
	if st := c.Status(); st.State != syncer.StateDisconnected || st.LastError != "stopped" {
		t.Fatalf("stopped run should report disconnected, got %+v", st)
	}
}

func TestSetCursorSeedsResume(t *testing.T) {
	src := &fakeSource{events: []domain.Event{evt(1), evt(2), evt(3)}}
	c := syncer.New(src)
	c.SetCursor(2)
	var seen []int64
	c.Handler = func(e domain.Event) error {
		seen = append(seen, e.ID)
		return nil
	}
	if err := c.SyncOnce(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(seen) != 1 || seen[0] != 3 {
		t.Fatalf("resume should only see events after the seed, got %v", seen)
	}
}
