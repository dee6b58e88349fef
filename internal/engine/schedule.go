package engine

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"tideline/internal/domain"
	"tideline/internal/events"
)

// TemplateCreateOptions are parameters for a recurring schedule template.
type TemplateCreateOptions struct {
	ID            string
	ResourceID    string
	Weekdays      int // bitmask, Monday=1<<0 .. Sunday=1<<6
	Slots         []SlotSpec
	BlackoutDates []string // YYYY-MM-DD
	Overrides     []OverrideSpec
	ActorID       string
}

type SlotSpec struct {
	StartTime       string // HH:MM
	DurationMin     int
	Capacity        int
	PriceMultiplier float64
}

type OverrideSpec struct {
	Starts             string // MM-DD
	Ends               string // MM-DD
	CapacityMultiplier float64
	PriceMultiplier    float64
}

func (e *Engine) CreateTemplate(ctx context.Context, opts TemplateCreateOptions) (domain.ScheduleTemplate, error) {
	if opts.ResourceID == "" {
		return domain.ScheduleTemplate{}, ValidationError{Field: "resource_id", Detail: "required"}
	}
	if opts.Weekdays <= 0 || opts.Weekdays > 0x7F {
		return domain.ScheduleTemplate{}, ValidationError{Field: "weekdays", Detail: "mask must be within 1..127"}
	}
	if len(opts.Slots) == 0 {
		return domain.ScheduleTemplate{}, ValidationError{Field: "slots", Detail: "at least one slot required"}
	}
	minutes := make([]int, 0, len(opts.Slots))
	for _, s := range opts.Slots {
		m, err := parseClock(s.StartTime)
		if err != nil {
			return domain.ScheduleTemplate{}, ValidationError{Field: "slots", Detail: err.Error()}
		}
		if s.DurationMin <= 0 {
			return domain.ScheduleTemplate{}, ValidationError{Field: "slots", Detail: "duration_min must be positive"}
		}
		if s.Capacity <= 0 {
			return domain.ScheduleTemplate{}, ValidationError{Field: "slots", Detail: "capacity must be positive"}
		}
		minutes = append(minutes, m)
	}
	// Slots within one template share every scheduled weekday, so any pair
	// overlapping in clock time is a conflict.
	for i := range opts.Slots {
		for j := i + 1; j < len(opts.Slots); j++ {
			iEnd := minutes[i] + opts.Slots[i].DurationMin
			jEnd := minutes[j] + opts.Slots[j].DurationMin
			if minutes[i] < jEnd && minutes[j] < iEnd {
				return domain.ScheduleTemplate{}, ValidationError{
					Field:  "slots",
					Detail: fmt.Sprintf("slot %s overlaps slot %s", opts.Slots[i].StartTime, opts.Slots[j].StartTime),
				}
			}
		}
	}
	for _, day := range opts.BlackoutDates {
		if _, err := time.Parse("2006-01-02", day); err != nil {
			return domain.ScheduleTemplate{}, ValidationError{Field: "blackout_dates", Detail: fmt.Sprintf("bad day %q", day)}
		}
	}
	for _, o := range opts.Overrides {
		if !validMonthDay(o.Starts) || !validMonthDay(o.Ends) {
			return domain.ScheduleTemplate{}, ValidationError{Field: "overrides", Detail: "starts/ends must be MM-DD"}
		}
	}
	if _, err := e.Repo.GetResource(ctx, opts.ResourceID); err != nil {
		return domain.ScheduleTemplate{}, err
	}

	now := e.nowRFC3339()
	id := opts.ID
	if id == "" {
		id = uuid.NewString()
	}
	t := domain.ScheduleTemplate{
		ID:            id,
		ResourceID:    opts.ResourceID,
		Weekdays:      opts.Weekdays,
		BlackoutDates: opts.BlackoutDates,
		CreatedAt:     now,
	}
	for _, s := range opts.Slots {
		mult := s.PriceMultiplier
		if mult == 0 {
			mult = 1.0
		}
		t.Slots = append(t.Slots, domain.TimeSlot{
			ID:              uuid.NewString(),
			TemplateID:      t.ID,
			StartTime:       s.StartTime,
			DurationMin:     s.DurationMin,
			Capacity:        s.Capacity,
			PriceMultiplier: mult,
			Status:          domain.SlotActive,
		})
	}
	for _, o := range opts.Overrides {
		capMult := o.CapacityMultiplier
		if capMult == 0 {
			capMult = 1.0
		}
		priceMult := o.PriceMultiplier
		if priceMult == 0 {
			priceMult = 1.0
		}
		t.Overrides = append(t.Overrides, domain.SeasonalOverride{
			ID:                 uuid.NewString(),
			TemplateID:         t.ID,
			Starts:             o.Starts,
			Ends:               o.Ends,
			CapacityMultiplier: capMult,
			PriceMultiplier:    priceMult,
		})
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.ScheduleTemplate{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertTemplate(ctx, tx, t); err != nil {
		return domain.ScheduleTemplate{}, fmt.Errorf("insert template: %w", err)
	}
	if err := e.Events.Append(ctx, tx, "template.create", t.ResourceID, "template", t.ID, opts.ActorID, events.EventPayload{"weekdays": t.Weekdays, "slots": len(t.Slots)}); err != nil {
		return domain.ScheduleTemplate{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.ScheduleTemplate{}, err
	}
	return t, nil
}

func parseClock(v string) (int, error) {
	t, err := time.Parse("15:04", v)
	if err != nil {
		return 0, fmt.Errorf("bad start_time %q, want HH:MM", v)
	}
	return t.Hour()*60 + t.Minute(), nil
}

func validMonthDay(v string) bool {
	_, err := time.Parse("01-02", v)
	return err == nil
}

// SlotAvailability is one bookable slot instance on a concrete day with
// seasonal capacity applied.
type SlotAvailability struct {
	SlotID          string  `json:"slot_id"`
	TemplateID      string  `json:"template_id"`
	StartAt         string  `json:"start_at"`
	EndAt           string  `json:"end_at"`
	Capacity        int     `json:"capacity"`
	BookedCount     int     `json:"booked_count"`
	Remaining       int     `json:"remaining"`
	PriceMultiplier float64 `json:"price_multiplier"`
}

// ResolveAvailability expands a resource's templates for one day: the
// weekday must be in the mask, the day must not be blacked out, and only
// active slots with remaining seats appear. Seasonal overrides scale
// capacity (rounded down, bounded by zero and the slot's base capacity)
// and price.
func (e *Engine) ResolveAvailability(ctx context.Context, resourceID, day string) ([]SlotAvailability, error) {
	date, err := time.Parse("2006-01-02", day)
	if err != nil {
		return nil, ValidationError{Field: "day", Detail: "must be YYYY-MM-DD"}
	}
	res, err := e.Repo.GetResource(ctx, resourceID)
	if err != nil {
		return nil, err
	}
	if res.Status == domain.ResourceMaintenance || res.Status == domain.ResourceOffline {
		return nil, nil
	}
	templates, err := e.Repo.TemplatesForResource(ctx, resourceID)
	if err != nil {
		return nil, err
	}
	// time.Weekday has Sunday=0; the mask has Monday=1<<0.
	bit := 1 << ((int(date.Weekday()) + 6) % 7)
	monthDay := day[5:]
	var out []SlotAvailability
	for _, t := range templates {
		if t.Weekdays&bit == 0 {
			continue
		}
		if containsDay(t.BlackoutDates, day) {
			continue
		}
		capMult, priceMult := 1.0, 1.0
		for _, o := range t.Overrides {
			if inWindow(monthDay, o.Starts, o.Ends) {
				capMult = o.CapacityMultiplier
				priceMult = o.PriceMultiplier
				break
			}
		}
		for _, s := range t.Slots {
			if s.Status != domain.SlotActive {
				continue
			}
			effCapacity := int(math.Floor(float64(s.Capacity) * capMult))
			if effCapacity < 0 {
				effCapacity = 0
			}
			if effCapacity > s.Capacity {
				effCapacity = s.Capacity
			}
			remaining := effCapacity - s.BookedCount
			if remaining <= 0 {
				continue
			}
			startAt := slotStart(date, s.StartTime)
			out = append(out, SlotAvailability{
				SlotID:          s.ID,
				TemplateID:      t.ID,
				StartAt:         startAt.Format(time.RFC3339),
				EndAt:           startAt.Add(time.Duration(s.DurationMin) * time.Minute).Format(time.RFC3339),
				Capacity:        effCapacity,
				BookedCount:     s.BookedCount,
				Remaining:       remaining,
				PriceMultiplier: s.PriceMultiplier * priceMult,
			})
		}
	}
	return out, nil
}

func containsDay(days []string, day string) bool {
	for _, d := range days {
		if d == day {
			return true
		}
	}
	return false
}

func slotStart(date time.Time, clock string) time.Time {
	t, err := time.Parse("15:04", clock)
	if err != nil {
		return date
	}
	return time.Date(date.Year(), date.Month(), date.Day(), t.Hour(), t.Minute(), 0, 0, time.UTC)
}

// slotTransitions: blocked slots reopen, cancelled is terminal.
var slotTransitions = map[string][]string{
	domain.SlotActive:  {domain.SlotBlocked, domain.SlotCancelled},
	domain.SlotBlocked: {domain.SlotActive, domain.SlotCancelled},
}

// SetSlotStatus blocks, reopens or cancels a slot. Blocking never touches
// bookings already holding the slot; those are cancelled explicitly.
func (e *Engine) SetSlotStatus(ctx context.Context, slotID, status, reason, actorID string) (domain.TimeSlot, error) {
	slot, err := e.Repo.GetSlot(ctx, slotID)
	if err != nil {
		return domain.TimeSlot{}, err
	}
	allowed := false
	for _, next := range slotTransitions[slot.Status] {
		if next == status {
			allowed = true
			break
		}
	}
	if !allowed {
		return domain.TimeSlot{}, InvalidTransitionError{Entity: "slot", From: slot.Status, To: status}
	}
	t, err := e.Repo.GetTemplate(ctx, slot.TemplateID)
	if err != nil {
		return domain.TimeSlot{}, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.TimeSlot{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.SetSlotStatus(ctx, tx, slotID, status); err != nil {
		return domain.TimeSlot{}, err
	}
	payload := events.EventPayload{"status": status, "previous": slot.Status}
	if reason != "" {
		payload["reason"] = reason
	}
	if err := e.Events.Append(ctx, tx, "slot.status", t.ResourceID, "slot", slotID, actorID, payload); err != nil {
		return domain.TimeSlot{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.TimeSlot{}, err
	}
	slot.Status = status
	return slot, nil
}

func (e *Engine) GetTemplate(ctx context.Context, id string) (domain.ScheduleTemplate, error) {
	return e.Repo.GetTemplate(ctx, id)
}

func (e *Engine) TemplatesForResource(ctx context.Context, resourceID string) ([]domain.ScheduleTemplate, error) {
	return e.Repo.TemplatesForResource(ctx, resourceID)
}
