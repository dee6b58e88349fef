package repo

import (
	"context"
	"database/sql"
	"fmt"

	"tideline/internal/domain"
)

// SlotUnavailableError reports why a slot reservation was refused.
type SlotUnavailableError struct {
	SlotID string
	Reason string // capacity_exceeded | blocked | cancelled
}

func (e SlotUnavailableError) Error() string {
	return fmt.Sprintf("slot %s unavailable: %s", e.SlotID, e.Reason)
}

func (r Repo) InsertTemplate(ctx context.Context, tx *sql.Tx, t domain.ScheduleTemplate) error {
	if _, err := tx.ExecContext(ctx, `INSERT INTO schedule_templates(id,resource_id,weekdays,created_at) VALUES (?,?,?,?)`,
		t.ID, t.ResourceID, t.Weekdays, t.CreatedAt); err != nil {
		return err
	}
	for _, s := range t.Slots {
		if err := r.InsertSlot(ctx, tx, s); err != nil {
			return err
		}
	}
	for _, day := range t.BlackoutDates {
		if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO blackout_dates(template_id,day) VALUES (?,?)`, t.ID, day); err != nil {
			return err
		}
	}
	for _, o := range t.Overrides {
		if _, err := tx.ExecContext(ctx, `INSERT INTO seasonal_overrides(id,template_id,starts,ends,capacity_multiplier,price_multiplier) VALUES (?,?,?,?,?,?)`,
			o.ID, t.ID, o.Starts, o.Ends, o.CapacityMultiplier, o.PriceMultiplier); err != nil {
			return err
		}
	}
	return nil
}

func (r Repo) InsertSlot(ctx context.Context, tx *sql.Tx, s domain.TimeSlot) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO time_slots(id,template_id,start_time,duration_min,capacity,price_multiplier,status,booked_count) VALUES (?,?,?,?,?,?,?,?)`,
		s.ID, s.TemplateID, s.StartTime, s.DurationMin, s.Capacity, s.PriceMultiplier, s.Status, s.BookedCount)
	return err
}

func (r Repo) GetTemplate(ctx context.Context, id string) (domain.ScheduleTemplate, error) {
	var t domain.ScheduleTemplate
	err := r.DB.QueryRowContext(ctx, `SELECT id,resource_id,weekdays,created_at FROM schedule_templates WHERE id=?`, id).
		Scan(&t.ID, &t.ResourceID, &t.Weekdays, &t.CreatedAt)
	if err == sql.ErrNoRows {
		return t, ErrNotFound
	}
	if err != nil {
		return t, err
	}
	return r.loadTemplateChildren(ctx, t)
}

// TemplatesForResource returns all templates for a resource with slots,
// blackouts and overrides resolved.
func (r Repo) TemplatesForResource(ctx context.Context, resourceID string) ([]domain.ScheduleTemplate, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,resource_id,weekdays,created_at FROM schedule_templates WHERE resource_id=? ORDER BY created_at ASC, id ASC`, resourceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var templates []domain.ScheduleTemplate
	for rows.Next() {
		var t domain.ScheduleTemplate
		if err := rows.Scan(&t.ID, &t.ResourceID, &t.Weekdays, &t.CreatedAt); err != nil {
			return nil, err
		}
		templates = append(templates, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i, t := range templates {
		resolved, err := r.loadTemplateChildren(ctx, t)
		if err != nil {
			return nil, err
		}
		templates[i] = resolved
	}
	return templates, nil
}

func (r Repo) loadTemplateChildren(ctx context.Context, t domain.ScheduleTemplate) (domain.ScheduleTemplate, error) {
	slots, err := r.DB.QueryContext(ctx, `SELECT id,template_id,start_time,duration_min,capacity,price_multiplier,status,booked_count FROM time_slots WHERE template_id=? ORDER BY start_time ASC, id ASC`, t.ID)
	if err != nil {
		return t, err
	}
	defer slots.Close()
	for slots.Next() {
		var s domain.TimeSlot
		if err := slots.Scan(&s.ID, &s.TemplateID, &s.StartTime, &s.DurationMin, &s.Capacity, &s.PriceMultiplier, &s.Status, &s.BookedCount); err != nil {
			return t, err
		}
		t.Slots = append(t.Slots, s)
	}
	if err := slots.Err(); err != nil {
		return t, err
	}
	days, err := r.DB.QueryContext(ctx, `SELECT day FROM blackout_dates WHERE template_id=? ORDER BY day`, t.ID)
	if err != nil {
		return t, err
	}
	defer days.Close()
	for days.Next() {
		var day string
		if err := days.Scan(&day); err != nil {
			return t, err
		}
		t.BlackoutDates = append(t.BlackoutDates, day)
	}
	if err := days.Err(); err != nil {
		return t, err
	}
	overrides, err := r.DB.QueryContext(ctx, `SELECT id,template_id,starts,ends,capacity_multiplier,price_multiplier FROM seasonal_overrides WHERE template_id=? ORDER BY starts`, t.ID)
	if err != nil {
		return t, err
	}
	defer overrides.Close()
	for overrides.Next() {
		var o domain.SeasonalOverride
		if err := overrides.Scan(&o.ID, &o.TemplateID, &o.Starts, &o.Ends, &o.CapacityMultiplier, &o.PriceMultiplier); err != nil {
			return t, err
		}
		t.Overrides = append(t.Overrides, o)
	}
	return t, overrides.Err()
}

func scanSlot(scan func(dest ...any) error) (domain.TimeSlot, error) {
	var s domain.TimeSlot
	err := scan(&s.ID, &s.TemplateID, &s.StartTime, &s.DurationMin, &s.Capacity, &s.PriceMultiplier, &s.Status, &s.BookedCount)
	if err == sql.ErrNoRows {
		return s, ErrNotFound
	}
	return s, err
}

const slotColumns = `id,template_id,start_time,duration_min,capacity,price_multiplier,status,booked_count`

func (r Repo) GetSlot(ctx context.Context, id string) (domain.TimeSlot, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+slotColumns+` FROM time_slots WHERE id=?`, id)
	return scanSlot(row.Scan)
}

func (r Repo) GetSlotTx(ctx context.Context, tx *sql.Tx, id string) (domain.TimeSlot, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+slotColumns+` FROM time_slots WHERE id=?`, id)
	return scanSlot(row.Scan)
}

// ReserveSlot atomically increments booked_count while the slot is active and
// a seat remains. effectiveCapacity is the seasonally scaled limit the caller
// advertised in availability; the slot's base capacity stays the hard ceiling
// either way. Zero rows affected means the slot cannot take the booking; the
// slot is re-read to report why.
func (r Repo) ReserveSlot(ctx context.Context, tx *sql.Tx, slotID string, effectiveCapacity int) error {
	res, err := tx.ExecContext(ctx, `UPDATE time_slots SET booked_count=booked_count+1 WHERE id=? AND status='active' AND booked_count<capacity AND booked_count<?`, slotID, effectiveCapacity)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}
	slot, err := r.GetSlotTx(ctx, tx, slotID)
	if err != nil {
		return err
	}
	reason := "capacity_exceeded"
	if slot.Status != "active" {
		reason = slot.Status
	}
	return SlotUnavailableError{SlotID: slotID, Reason: reason}
}

// ReleaseSlot decrements booked_count floored at zero, so a duplicate
// cancellation is a no-op.
func (r Repo) ReleaseSlot(ctx context.Context, tx *sql.Tx, slotID string) error {
	_, err := tx.ExecContext(ctx, `UPDATE time_slots SET booked_count=booked_count-1 WHERE id=? AND booked_count>0`, slotID)
	return err
}

func (r Repo) SetSlotStatus(ctx context.Context, tx *sql.Tx, slotID, status string) error {
	res, err := tx.ExecContext(ctx, `UPDATE time_slots SET status=? WHERE id=?`, status, slotID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
