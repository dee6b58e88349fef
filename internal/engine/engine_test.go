package engine_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"tideline/internal/config"
	"tideline/internal/db"
	"tideline/internal/domain"
	"tideline/internal/engine"
	"tideline/internal/migrate"
	"tideline/internal/repo"
)

type testEnv struct {
	Engine *engine.Engine
	Ctx    context.Context
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	cfg := config.Default("op-1")
	eng := engine.New(conn, cfg)
	eng.Now = func() time.Time { return time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC) }
	ctx := context.Background()
	if err := eng.Repo.UpsertOperatorConfig(ctx, "op-1", cfg); err != nil {
		t.Fatalf("seed config: %v", err)
	}
	if err := eng.Repo.EnsureActor(ctx, "tester", "2026-06-01T08:00:00Z"); err != nil {
		t.Fatalf("seed actor: %v", err)
	}
	return testEnv{Engine: eng, Ctx: ctx}
}

func mustResource(t *testing.T, env testEnv, id string, capacity int) domain.Resource {
	t.Helper()
	res, err := env.Engine.CreateResource(env.Ctx, engine.ResourceCreateOptions{
		ID:       id,
		Name:     "Reef Runner",
		Type:     "boat",
		Capacity: capacity,
		ActorID:  "tester",
	})
	if err != nil {
		t.Fatalf("create resource: %v", err)
	}
	return res
}

func mustBooking(t *testing.T, env testEnv, resourceID, start, end string) domain.Booking {
	t.Helper()
	b, err := env.Engine.CreateBooking(env.Ctx, engine.BookingCreateOptions{
		Title:      "Morning charter",
		ResourceID: resourceID,
		StartAt:    start,
		EndAt:      end,
		Guests:     2,
		ActorID:    "tester",
	})
	if err != nil {
		t.Fatalf("create booking: %v", err)
	}
	return b
}

func TestCreateBookingHappyPath(t *testing.T) {
	env := newTestEnv(t)
	mustResource(t, env, "boat-1", 8)
	b := mustBooking(t, env, "boat-1", "2026-06-10T09:00:00Z", "2026-06-10T11:00:00Z")
	if b.Status != domain.BookingPending {
		t.Fatalf("want pending, got %s", b.Status)
	}
	if b.Day != "2026-06-10" {
		t.Fatalf("day should derive from start, got %s", b.Day)
	}
	if b.Eligibility != "eligible" {
		t.Fatalf("no rules means eligible, got %s", b.Eligibility)
	}
	res, err := env.Engine.GetResource(env.Ctx, "boat-1")
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != domain.ResourceBooked {
		t.Fatalf("resource should flip to booked, got %s", res.Status)
	}
}

func TestOverlappingBookingRejected(t *testing.T) {
	env := newTestEnv(t)
	mustResource(t, env, "boat-1", 8)
	first := mustBooking(t, env, "boat-1", "2026-06-10T09:00:00Z", "2026-06-10T11:00:00Z")

	_, err := env.Engine.CreateBooking(env.Ctx, engine.BookingCreateOptions{
		Title:      "Clash",
		ResourceID: "boat-1",
		StartAt:    "2026-06-10T10:00:00Z",
		EndAt:      "2026-06-10T12:00:00Z",
		Guests:     1,
		ActorID:    "tester",
	})
	var ce engine.ConflictError
	if !errors.As(err, &ce) {
		t.Fatalf("want ConflictError, got %v", err)
	}
	if ce.CompetingBookingID != first.ID {
		t.Fatalf("competing id %s, want %s", ce.CompetingBookingID, first.ID)
	}

	// touching windows do not overlap
	if _, err := env.Engine.CreateBooking(env.Ctx, engine.BookingCreateOptions{
		Title:      "Back-to-back",
		ResourceID: "boat-1",
		StartAt:    "2026-06-10T11:00:00Z",
		EndAt:      "2026-06-10T13:00:00Z",
		Guests:     1,
		ActorID:    "tester",
	}); err != nil {
		t.Fatalf("adjacent booking should succeed: %v", err)
	}
}

func TestConcurrentCreatesOnlyOneWins(t *testing.T) {
	env := newTestEnv(t)
	mustResource(t, env, "heli-1", 4)

	const n = 8
	var wg sync.WaitGroup
	errs := make([]error, n)
	for k := 0; k < n; k++ {
		wg.Add(1)
		go func(k int) {
			defer wg.Done()
			_, errs[k] = env.Engine.CreateBooking(env.Ctx, engine.BookingCreateOptions{
				Title:      "Race",
				ResourceID: "heli-1",
				StartAt:    "2026-06-10T09:00:00Z",
				EndAt:      "2026-06-10T10:00:00Z",
				Guests:     1,
				ActorID:    "tester",
			})
		}(k)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
			continue
		}
		var ce engine.ConflictError
		if !errors.As(err, &ce) && !errors.Is(err, engine.ErrBusy) {
			t.Fatalf("unexpected error kind: %v", err)
		}
	}
	if wins != 1 {
		t.Fatalf("exactly one create should win, got %d", wins)
	}
}

func TestBookingStatusMachine(t *testing.T) {
	env := newTestEnv(t)
	mustResource(t, env, "boat-1", 8)
	b := mustBooking(t, env, "boat-1", "2026-06-10T09:00:00Z", "2026-06-10T11:00:00Z")

	b, err := env.Engine.UpdateBookingStatus(env.Ctx, b.ID, domain.BookingConfirmed, "tester")
	if err != nil || b.Status != domain.BookingConfirmed {
		t.Fatalf("confirm: %v", err)
	}
	b, err = env.Engine.UpdateBookingStatus(env.Ctx, b.ID, domain.BookingCompleted, "tester")
	if err != nil || b.Status != domain.BookingCompleted {
		t.Fatalf("complete: %v", err)
	}
	// completed is terminal
	_, err = env.Engine.UpdateBookingStatus(env.Ctx, b.ID, domain.BookingCancelled, "tester")
	var ite engine.InvalidTransitionError
	if !errors.As(err, &ite) {
		t.Fatalf("want InvalidTransitionError, got %v", err)
	}
	// completing freed the resource
	res, _ := env.Engine.GetResource(env.Ctx, "boat-1")
	if res.Status != domain.ResourceAvailable {
		t.Fatalf("resource should revert to available, got %s", res.Status)
	}
}

func TestCancelReleasesSlotSeat(t *testing.T) {
	env := newTestEnv(t)
	mustResource(t, env, "boat-1", 8)
	tpl, err := env.Engine.CreateTemplate(env.Ctx, engine.TemplateCreateOptions{
		ResourceID: "boat-1",
		Weekdays:   0x7F,
		Slots:      []engine.SlotSpec{{StartTime: "09:00", DurationMin: 120, Capacity: 1}},
		ActorID:    "tester",
	})
	if err != nil {
		t.Fatalf("create template: %v", err)
	}
	slotID := tpl.Slots[0].ID

	b, err := env.Engine.CreateBooking(env.Ctx, engine.BookingCreateOptions{
		Title:      "Slotted",
		ResourceID: "boat-1",
		StartAt:    "2026-06-10T09:00:00Z",
		EndAt:      "2026-06-10T11:00:00Z",
		SlotID:     slotID,
		Guests:     1,
		ActorID:    "tester",
	})
	if err != nil {
		t.Fatalf("create booking: %v", err)
	}

	// slot is full now
	_, err = env.Engine.CreateBooking(env.Ctx, engine.BookingCreateOptions{
		Title:      "Overflow",
		ResourceID: "boat-1",
		StartAt:    "2026-06-11T09:00:00Z",
		EndAt:      "2026-06-11T11:00:00Z",
		SlotID:     slotID,
		Guests:     1,
		ActorID:    "tester",
	})
	var sue repo.SlotUnavailableError
	if !errors.As(err, &sue) || sue.Reason != "capacity_exceeded" {
		t.Fatalf("want capacity_exceeded, got %v", err)
	}

	if _, err := env.Engine.UpdateBookingStatus(env.Ctx, b.ID, domain.BookingCancelled, "tester"); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	// seat came back
	if _, err := env.Engine.CreateBooking(env.Ctx, engine.BookingCreateOptions{
		Title:      "Retry",
		ResourceID: "boat-1",
		StartAt:    "2026-06-11T09:00:00Z",
		EndAt:      "2026-06-11T11:00:00Z",
		SlotID:     slotID,
		Guests:     1,
		ActorID:    "tester",
	}); err != nil {
		t.Fatalf("rebook after cancel: %v", err)
	}
}

func TestResourceStatusGatesBookings(t *testing.T) {
	env := newTestEnv(t)
	mustResource(t, env, "buggy-1", 2)
	if _, err := env.Engine.SetResourceStatus(env.Ctx, "buggy-1", domain.ResourceMaintenance, "tester"); err != nil {
		t.Fatalf("to maintenance: %v", err)
	}
	_, err := env.Engine.CreateBooking(env.Ctx, engine.BookingCreateOptions{
		Title:      "Nope",
		ResourceID: "buggy-1",
		StartAt:    "2026-06-10T09:00:00Z",
		EndAt:      "2026-06-10T10:00:00Z",
		Guests:     1,
		ActorID:    "tester",
	})
	var rue engine.ResourceUnavailableError
	if !errors.As(err, &rue) {
		t.Fatalf("want ResourceUnavailableError, got %v", err)
	}
	// maintenance only goes back to available
	if _, err := env.Engine.SetResourceStatus(env.Ctx, "buggy-1", domain.ResourceOffline, "tester"); err == nil {
		t.Fatalf("maintenance->offline should be refused")
	}
	if _, err := env.Engine.SetResourceStatus(env.Ctx, "buggy-1", domain.ResourceAvailable, "tester"); err != nil {
		t.Fatalf("back to available: %v", err)
	}
}

func TestConfirmBlockedByRuleUnlessOverride(t *testing.T) {
	env := newTestEnv(t)
	mustResource(t, env, "heli-1", 4)
	maxWind := 20.0
	if _, err := env.Engine.CreateRule(env.Ctx, engine.RuleCreateOptions{
		ResourceID: "heli-1",
		Name:       "wind ceiling",
		Severity:   domain.SeverityBlock,
		MaxWindKmh: &maxWind,
		ActorID:    "tester",
	}); err != nil {
		t.Fatalf("create rule: %v", err)
	}

	wind := 45.0
	b, err := env.Engine.CreateBooking(env.Ctx, engine.BookingCreateOptions{
		Title:      "Gusty",
		ResourceID: "heli-1",
		StartAt:    "2026-06-10T09:00:00Z",
		EndAt:      "2026-06-10T10:00:00Z",
		Guests:     1,
		Weather:    &domain.WeatherSnapshot{WindKmh: &wind},
		ActorID:    "tester",
	})
	if err != nil {
		t.Fatalf("create stores the verdict without failing: %v", err)
	}
	if b.Eligibility != "blocked" {
		t.Fatalf("want blocked verdict, got %s", b.Eligibility)
	}

	_, err = env.Engine.UpdateBookingStatus(env.Ctx, b.ID, domain.BookingConfirmed, "tester")
	var ebe engine.EligibilityBlockedError
	if !errors.As(err, &ebe) {
		t.Fatalf("want EligibilityBlockedError, got %v", err)
	}
	if len(ebe.Reasons) == 0 || ebe.Reasons[0].Code != "wind_exceeded" {
		t.Fatalf("unexpected reasons: %v", ebe.Reasons)
	}

	// a manager may push it through
	if err := env.Engine.Repo.AssignRole(env.Ctx, "tester", "manager"); err != nil {
		t.Fatalf("grant role: %v", err)
	}
	if _, err := env.Engine.UpdateBookingStatus(env.Ctx, b.ID, domain.BookingConfirmed, "tester"); err != nil {
		t.Fatalf("override confirm: %v", err)
	}
}

func TestConfirmBlockedByMinAgeRule(t *testing.T) {
	env := newTestEnv(t)
	mustResource(t, env, "boat-1", 8)
	minAge := 18
	if _, err := env.Engine.CreateRule(env.Ctx, engine.RuleCreateOptions{
		ResourceID: "boat-1",
		Name:       "adults only",
		Severity:   domain.SeverityBlock,
		MinAge:     &minAge,
		ActorID:    "tester",
	}); err != nil {
		t.Fatalf("create rule: %v", err)
	}

	b, err := env.Engine.CreateBooking(env.Ctx, engine.BookingCreateOptions{
		Title:      "Family trip",
		ResourceID: "boat-1",
		StartAt:    "2026-06-10T09:00:00Z",
		EndAt:      "2026-06-10T11:00:00Z",
		Guests:     2,
		GuestAges:  []int{9, 40},
		ActorID:    "tester",
	})
	if err != nil {
		t.Fatalf("create stores the verdict without failing: %v", err)
	}
	if b.Eligibility != "blocked" {
		t.Fatalf("want blocked verdict, got %s", b.Eligibility)
	}

	// ages survive a reload, and the create response matches the stored row
	stored, err := env.Engine.GetBooking(env.Ctx, b.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(stored.GuestAges) != 2 || stored.GuestAges[0] != 9 || stored.GuestAges[1] != 40 {
		t.Fatalf("guest ages not persisted: %v", stored.GuestAges)
	}
	if stored.Notes != b.Notes {
		t.Fatalf("create returned notes %q but stored %q", b.Notes, stored.Notes)
	}

	_, err = env.Engine.UpdateBookingStatus(env.Ctx, b.ID, domain.BookingConfirmed, "tester")
	var ebe engine.EligibilityBlockedError
	if !errors.As(err, &ebe) {
		t.Fatalf("want EligibilityBlockedError, got %v", err)
	}
	if len(ebe.Reasons) == 0 || ebe.Reasons[0].Code != "under_min_age" {
		t.Fatalf("unexpected reasons: %v", ebe.Reasons)
	}
	// the refused confirm must not rewrite the stored verdict
	stored, _ = env.Engine.GetBooking(env.Ctx, b.ID)
	if stored.Eligibility != "blocked" || stored.Status != domain.BookingPending {
		t.Fatalf("want pending/blocked after refusal, got %s/%s", stored.Status, stored.Eligibility)
	}

	if err := env.Engine.Repo.AssignRole(env.Ctx, "tester", "manager"); err != nil {
		t.Fatalf("grant role: %v", err)
	}
	if _, err := env.Engine.UpdateBookingStatus(env.Ctx, b.ID, domain.BookingConfirmed, "tester"); err != nil {
		t.Fatalf("override confirm: %v", err)
	}
}

func TestReserveSlotHonorsSeasonalCapacity(t *testing.T) {
	env := newTestEnv(t)
	mustResource(t, env, "boat-1", 8)
	tpl, err := env.Engine.CreateTemplate(env.Ctx, engine.TemplateCreateOptions{
		ResourceID: "boat-1",
		Weekdays:   0x7F,
		Slots:      []engine.SlotSpec{{StartTime: "09:00", DurationMin: 120, Capacity: 4}},
		Overrides:  []engine.OverrideSpec{{Starts: "06-01", Ends: "08-31", CapacityMultiplier: 0.5}},
		ActorID:    "tester",
	})
	if err != nil {
		t.Fatalf("create template: %v", err)
	}
	slotID := tpl.Slots[0].ID

	// capacity 4 scales to 2 inside the override window
	for _, day := range []string{"2026-06-10", "2026-06-11"} {
		if _, err := env.Engine.CreateBooking(env.Ctx, engine.BookingCreateOptions{
			Title:      "Scaled",
			ResourceID: "boat-1",
			StartAt:    day + "T09:00:00Z",
			EndAt:      day + "T11:00:00Z",
			SlotID:     slotID,
			Guests:     1,
			ActorID:    "tester",
		}); err != nil {
			t.Fatalf("booking on %s: %v", day, err)
		}
	}
	_, err = env.Engine.CreateBooking(env.Ctx, engine.BookingCreateOptions{
		Title:      "Over the scaled limit",
		ResourceID: "boat-1",
		StartAt:    "2026-06-12T09:00:00Z",
		EndAt:      "2026-06-12T11:00:00Z",
		SlotID:     slotID,
		Guests:     1,
		ActorID:    "tester",
	})
	var sue repo.SlotUnavailableError
	if !errors.As(err, &sue) || sue.Reason != "capacity_exceeded" {
		t.Fatalf("want capacity_exceeded at the seasonal limit, got %v", err)
	}
}

func TestNotificationSeqFollowsCommitOrder(t *testing.T) {
	env := newTestEnv(t)
	mustResource(t, env, "boat-1", 8)
	b := mustBooking(t, env, "boat-1", "2026-06-10T09:00:00Z", "2026-06-10T11:00:00Z")
	if _, err := env.Engine.UpdateBookingStatus(env.Ctx, b.ID, domain.BookingConfirmed, "tester"); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.UpdateBookingStatus(env.Ctx, b.ID, domain.BookingCancelled, "tester"); err != nil {
		t.Fatal(err)
	}

	items, err := env.Engine.Notify.List(env.Ctx, repo.NotificationFilters{BookingID: b.ID})
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 3 {
		t.Fatalf("want 3 notifications, got %d", len(items))
	}
	wantActions := []string{"created", "updated", "cancelled"}
	for k, n := range items {
		if n.Seq != int64(k+1) {
			t.Fatalf("seq gap at %d: got %d", k, n.Seq)
		}
		if n.Action != wantActions[k] {
			t.Fatalf("action[%d]=%s, want %s", k, n.Action, wantActions[k])
		}
	}
	snap, err := engine.BookingSnapshot(items[0])
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if snap.ID != b.ID || snap.Status != domain.BookingPending {
		t.Fatalf("snapshot should capture creation-time state, got %s/%s", snap.ID, snap.Status)
	}
}

func TestCrewDoubleBookingRefused(t *testing.T) {
	env := newTestEnv(t)
	mustResource(t, env, "boat-1", 8)
	mustResource(t, env, "boat-2", 8)
	if _, err := env.Engine.CreateCrewMember(env.Ctx, "skip-1", "Skipper", []string{"coastal"}); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.CreateBooking(env.Ctx, engine.BookingCreateOptions{
		Title:      "First",
		ResourceID: "boat-1",
		StartAt:    "2026-06-10T09:00:00Z",
		EndAt:      "2026-06-10T11:00:00Z",
		Guests:     1,
		Crew:       []string{"skip-1"},
		ActorID:    "tester",
	}); err != nil {
		t.Fatal(err)
	}
	_, err := env.Engine.CreateBooking(env.Ctx, engine.BookingCreateOptions{
		Title:      "Second",
		ResourceID: "boat-2",
		StartAt:    "2026-06-10T10:00:00Z",
		EndAt:      "2026-06-10T12:00:00Z",
		Guests:     1,
		Crew:       []string{"skip-1"},
		ActorID:    "tester",
	})
	var cce engine.CrewConflictError
	if !errors.As(err, &cce) {
		t.Fatalf("want CrewConflictError, got %v", err)
	}
	if len(cce.CrewIDs) != 1 || cce.CrewIDs[0] != "skip-1" {
		t.Fatalf("unexpected crew ids: %v", cce.CrewIDs)
	}
}

func TestAppendNoteAndEvents(t *testing.T) {
	env := newTestEnv(t)
	mustResource(t, env, "boat-1", 8)
	b := mustBooking(t, env, "boat-1", "2026-06-10T09:00:00Z", "2026-06-10T11:00:00Z")
	b, err := env.Engine.AppendBookingNote(env.Ctx, b.ID, "fuel topped up", "tester")
	if err != nil {
		t.Fatalf("note: %v", err)
	}
	if b.Notes == "" {
		t.Fatalf("note missing")
	}
	events, err := env.Engine.Repo.LatestEvents(env.Ctx, 10, "boat-1", "", "booking", b.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) < 2 {
		t.Fatalf("expected create+note events, got %d", len(events))
	}
}
