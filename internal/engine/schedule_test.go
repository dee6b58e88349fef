package engine_test

import (
	"errors"
	"testing"

	"tideline/internal/domain"
	"tideline/internal/engine"
)

func mustTemplate(t *testing.T, env testEnv, opts engine.TemplateCreateOptions) domain.ScheduleTemplate {
	t.Helper()
	opts.ActorID = "tester"
	tpl, err := env.Engine.CreateTemplate(env.Ctx, opts)
	if err != nil {
		t.Fatalf("create template: %v", err)
	}
	return tpl
}

func TestTemplateRejectsOverlappingSlots(t *testing.T) {
	env := newTestEnv(t)
	mustResource(t, env, "boat-1", 8)
	_, err := env.Engine.CreateTemplate(env.Ctx, engine.TemplateCreateOptions{
		ResourceID: "boat-1",
		Weekdays:   0x1F,
		Slots: []engine.SlotSpec{
			{StartTime: "09:00", DurationMin: 120, Capacity: 8},
			{StartTime: "10:30", DurationMin: 60, Capacity: 8},
		},
		ActorID: "tester",
	})
	var ve engine.ValidationError
	if !errors.As(err, &ve) || ve.Field != "slots" {
		t.Fatalf("want slot overlap validation error, got %v", err)
	}
	// back-to-back is fine
	mustTemplate(t, env, engine.TemplateCreateOptions{
		ResourceID: "boat-1",
		Weekdays:   0x1F,
		Slots: []engine.SlotSpec{
			{StartTime: "09:00", DurationMin: 90, Capacity: 8},
			{StartTime: "10:30", DurationMin: 90, Capacity: 8},
		},
	})
}

func TestAvailabilityWeekdayMask(t *testing.T) {
	env := newTestEnv(t)
	mustResource(t, env, "boat-1", 8)
	// Monday..Friday only
	mustTemplate(t, env, engine.TemplateCreateOptions{
		ResourceID: "boat-1",
		Weekdays:   0x1F,
		Slots:      []engine.SlotSpec{{StartTime: "09:00", DurationMin: 120, Capacity: 8}},
	})

	// 2026-06-08 is a Monday, 2026-06-13 a Saturday
	slots, err := env.Engine.ResolveAvailability(env.Ctx, "boat-1", "2026-06-08")
	if err != nil || len(slots) != 1 {
		t.Fatalf("monday should have one slot: %v %v", slots, err)
	}
	if slots[0].StartAt != "2026-06-08T09:00:00Z" || slots[0].EndAt != "2026-06-08T11:00:00Z" {
		t.Fatalf("bad window: %s..%s", slots[0].StartAt, slots[0].EndAt)
	}
	slots, err = env.Engine.ResolveAvailability(env.Ctx, "boat-1", "2026-06-13")
	if err != nil || len(slots) != 0 {
		t.Fatalf("saturday should be empty: %v %v", slots, err)
	}
}

func TestAvailabilityBlackoutAndBlockedSlot(t *testing.T) {
	env := newTestEnv(t)
	mustResource(t, env, "boat-1", 8)
	tpl := mustTemplate(t, env, engine.TemplateCreateOptions{
		ResourceID:    "boat-1",
		Weekdays:      0x7F,
		Slots:         []engine.SlotSpec{{StartTime: "09:00", DurationMin: 60, Capacity: 4}},
		BlackoutDates: []string{"2026-06-10"},
	})

	slots, err := env.Engine.ResolveAvailability(env.Ctx, "boat-1", "2026-06-10")
	if err != nil || len(slots) != 0 {
		t.Fatalf("blackout day should be empty: %v %v", slots, err)
	}
	slots, _ = env.Engine.ResolveAvailability(env.Ctx, "boat-1", "2026-06-11")
	if len(slots) != 1 {
		t.Fatalf("day after blackout should be open")
	}

	if _, err := env.Engine.SetSlotStatus(env.Ctx, tpl.Slots[0].ID, domain.SlotBlocked, "engine swap", "tester"); err != nil {
		t.Fatalf("block slot: %v", err)
	}
	slots, _ = env.Engine.ResolveAvailability(env.Ctx, "boat-1", "2026-06-11")
	if len(slots) != 0 {
		t.Fatalf("blocked slot must not appear")
	}
	// reopen
	if _, err := env.Engine.SetSlotStatus(env.Ctx, tpl.Slots[0].ID, domain.SlotActive, "", "tester"); err != nil {
		t.Fatalf("reopen slot: %v", err)
	}
	slots, _ = env.Engine.ResolveAvailability(env.Ctx, "boat-1", "2026-06-11")
	if len(slots) != 1 {
		t.Fatalf("reopened slot should appear")
	}
}

func TestSlotCancelledIsTerminal(t *testing.T) {
	env := newTestEnv(t)
	mustResource(t, env, "boat-1", 8)
	tpl := mustTemplate(t, env, engine.TemplateCreateOptions{
		ResourceID: "boat-1",
		Weekdays:   0x7F,
		Slots:      []engine.SlotSpec{{StartTime: "09:00", DurationMin: 60, Capacity: 4}},
	})
	if _, err := env.Engine.SetSlotStatus(env.Ctx, tpl.Slots[0].ID, domain.SlotCancelled, "", "tester"); err != nil {
		t.Fatalf("cancel slot: %v", err)
	}
	_, err := env.Engine.SetSlotStatus(env.Ctx, tpl.Slots[0].ID, domain.SlotActive, "", "tester")
	var ite engine.InvalidTransitionError
	if !errors.As(err, &ite) {
		t.Fatalf("cancelled is terminal, got %v", err)
	}
}

func TestSeasonalOverrideScalesCapacityAndPrice(t *testing.T) {
	env := newTestEnv(t)
	mustResource(t, env, "boat-1", 8)
	mustTemplate(t, env, engine.TemplateCreateOptions{
		ResourceID: "boat-1",
		Weekdays:   0x7F,
		Slots:      []engine.SlotSpec{{StartTime: "09:00", DurationMin: 60, Capacity: 5}},
		Overrides: []engine.OverrideSpec{
			{Starts: "06-01", Ends: "08-31", CapacityMultiplier: 0.5, PriceMultiplier: 1.5},
		},
	})

	// inside season: capacity floors 5*0.5 -> 2, price scales
	slots, err := env.Engine.ResolveAvailability(env.Ctx, "boat-1", "2026-07-15")
	if err != nil || len(slots) != 1 {
		t.Fatalf("availability: %v %v", slots, err)
	}
	if slots[0].Capacity != 2 || slots[0].Remaining != 2 {
		t.Fatalf("want capacity 2, got %d/%d", slots[0].Capacity, slots[0].Remaining)
	}
	if slots[0].PriceMultiplier != 1.5 {
		t.Fatalf("want price multiplier 1.5, got %v", slots[0].PriceMultiplier)
	}

	// outside season: base values
	slots, _ = env.Engine.ResolveAvailability(env.Ctx, "boat-1", "2026-09-15")
	if len(slots) != 1 || slots[0].Capacity != 5 || slots[0].PriceMultiplier != 1.0 {
		t.Fatalf("off-season slot wrong: %+v", slots)
	}
}

func TestAvailabilityHiddenWhileOffline(t *testing.T) {
	env := newTestEnv(t)
	mustResource(t, env, "boat-1", 8)
	mustTemplate(t, env, engine.TemplateCreateOptions{
		ResourceID: "boat-1",
		Weekdays:   0x7F,
		Slots:      []engine.SlotSpec{{StartTime: "09:00", DurationMin: 60, Capacity: 4}},
	})
	if _, err := env.Engine.SetResourceStatus(env.Ctx, "boat-1", domain.ResourceOffline, "tester"); err != nil {
		t.Fatal(err)
	}
	slots, err := env.Engine.ResolveAvailability(env.Ctx, "boat-1", "2026-06-11")
	if err != nil || len(slots) != 0 {
		t.Fatalf("offline resource has no availability: %v %v", slots, err)
	}
}
