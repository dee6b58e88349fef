package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"

	"tideline/internal/domain"
)

const bookingColumns = `id,title,resource_id,resource_name,client_name,client_contact,partner_ref,day,start_at,end_at,slot_id,guests,guest_ages_json,status,price,weather_json,eligibility,notes,created_at,created_by,updated_at,updated_by`

func (r Repo) InsertBooking(ctx context.Context, tx *sql.Tx, b domain.Booking) error {
	weather, err := marshalWeather(b.Weather)
	if err != nil {
		return err
	}
	ages, err := marshalAges(b.GuestAges)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO bookings(`+bookingColumns+`)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		b.ID, b.Title, b.ResourceID, nullable(b.ResourceName), nullable(b.ClientName), nullable(b.ClientContact),
		nullableStringPtr(b.PartnerRef), b.Day, b.StartAt, b.EndAt, nullableStringPtr(b.SlotID), b.Guests, ages, b.Status,
		b.Price, weather, nullable(b.Eligibility), nullable(b.Notes), b.CreatedAt, b.CreatedBy, b.UpdatedAt, nullable(b.UpdatedBy))
	return err
}

func (r Repo) UpdateBooking(ctx context.Context, tx *sql.Tx, b domain.Booking) error {
	weather, err := marshalWeather(b.Weather)
	if err != nil {
		return err
	}
	ages, err := marshalAges(b.GuestAges)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `UPDATE bookings SET title=?, client_name=?, client_contact=?, partner_ref=?, day=?, start_at=?, end_at=?, slot_id=?, guests=?, guest_ages_json=?, status=?, price=?, weather_json=?, eligibility=?, notes=?, updated_at=?, updated_by=? WHERE id=?`,
		b.Title, nullable(b.ClientName), nullable(b.ClientContact), nullableStringPtr(b.PartnerRef), b.Day, b.StartAt, b.EndAt,
		nullableStringPtr(b.SlotID), b.Guests, ages, b.Status, b.Price, weather, nullable(b.Eligibility), nullable(b.Notes),
		b.UpdatedAt, nullable(b.UpdatedBy), b.ID)
	return err
}

func marshalWeather(w *domain.WeatherSnapshot) (any, error) {
	if w == nil {
		return nil, nil
	}
	b, err := json.Marshal(w)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func marshalAges(ages []int) (any, error) {
	if len(ages) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(ages)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func scanBooking(scan func(dest ...any) error) (domain.Booking, error) {
	var b domain.Booking
	var resourceName, clientName, clientContact, partnerRef, slotID, guestAges, weather, eligibility, notes, updatedBy sql.NullString
	err := scan(&b.ID, &b.Title, &b.ResourceID, &resourceName, &clientName, &clientContact, &partnerRef,
		&b.Day, &b.StartAt, &b.EndAt, &slotID, &b.Guests, &guestAges, &b.Status, &b.Price, &weather, &eligibility, &notes,
		&b.CreatedAt, &b.CreatedBy, &b.UpdatedAt, &updatedBy)
	if err == sql.ErrNoRows {
		return b, ErrNotFound
	}
	if err != nil {
		return b, err
	}
	if resourceName.Valid {
		b.ResourceName = resourceName.String
	}
	if clientName.Valid {
		b.ClientName = clientName.String
	}
	if clientContact.Valid {
		b.ClientContact = clientContact.String
	}
	if partnerRef.Valid {
		b.PartnerRef = &partnerRef.String
	}
	if slotID.Valid {
		b.SlotID = &slotID.String
	}
	if guestAges.Valid && guestAges.String != "" {
		var ages []int
		if err := json.Unmarshal([]byte(guestAges.String), &ages); err == nil {
			b.GuestAges = ages
		}
	}
	if weather.Valid && weather.String != "" {
		var w domain.WeatherSnapshot
		if err := json.Unmarshal([]byte(weather.String), &w); err == nil {
			b.Weather = &w
		}
	}
	if eligibility.Valid {
		b.Eligibility = eligibility.String
	}
	if notes.Valid {
		b.Notes = notes.String
	}
	if updatedBy.Valid {
		b.UpdatedBy = updatedBy.String
	}
	return b, nil
}

func (r Repo) GetBooking(ctx context.Context, id string) (domain.Booking, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id=?`, id)
	b, err := scanBooking(row.Scan)
	if err != nil {
		return b, err
	}
	b.Crew, err = r.BookingCrew(ctx, b.ID)
	return b, err
}

func (r Repo) GetBookingTx(ctx context.Context, tx *sql.Tx, id string) (domain.Booking, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id=?`, id)
	return scanBooking(row.Scan)
}

type BookingFilters struct {
	ResourceID      string
	Status          string
	Day             string
	ClientContact   string
	Limit           int
	CursorCreatedAt string
	CursorID        string
}

func (r Repo) ListBookings(ctx context.Context, f BookingFilters) ([]domain.Booking, error) {
	var clauses []string
	var args []any
	if f.ResourceID != "" {
		clauses = append(clauses, "resource_id=?")
		args = append(args, f.ResourceID)
	}
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	if f.Day != "" {
		clauses = append(clauses, "day=?")
		args = append(args, f.Day)
	}
	if f.ClientContact != "" {
		clauses = append(clauses, "client_contact=?")
		args = append(args, f.ClientContact)
	}
	if f.CursorCreatedAt != "" && f.CursorID != "" {
		clauses = append(clauses, "(created_at < ? OR (created_at = ? AND id < ?))")
		args = append(args, f.CursorCreatedAt, f.CursorCreatedAt, f.CursorID)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	query := `SELECT ` + bookingColumns + ` FROM bookings ` + where + ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Booking
	for rows.Next() {
		b, err := scanBooking(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, b)
	}
	return res, rows.Err()
}

// FindConflicts returns active bookings on a resource whose [start,end)
// interval overlaps the given window: existing.start < end AND start <
// existing.end. Timestamps are UTC RFC3339 so string comparison orders them.
func (r Repo) FindConflicts(ctx context.Context, resourceID, startAt, endAt, excludeID string) ([]domain.Booking, error) {
	return r.findConflicts(ctx, nil, resourceID, startAt, endAt, excludeID)
}

func (r Repo) FindConflictsTx(ctx context.Context, tx *sql.Tx, resourceID, startAt, endAt, excludeID string) ([]domain.Booking, error) {
	return r.findConflicts(ctx, tx, resourceID, startAt, endAt, excludeID)
}

func (r Repo) findConflicts(ctx context.Context, tx *sql.Tx, resourceID, startAt, endAt, excludeID string) ([]domain.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings
WHERE resource_id=? AND status IN ('pending','confirmed') AND start_at < ? AND ? < end_at`
	args := []any{resourceID, endAt, startAt}
	if excludeID != "" {
		query += ` AND id != ?`
		args = append(args, excludeID)
	}
	query += ` ORDER BY start_at ASC, id ASC`
	var rows *sql.Rows
	var err error
	if tx != nil {
		rows, err = tx.QueryContext(ctx, query, args...)
	} else {
		rows, err = r.DB.QueryContext(ctx, query, args...)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Booking
	for rows.Next() {
		b, err := scanBooking(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, b)
	}
	return res, rows.Err()
}

// CrewConflicts returns crew ids from the given set that are already tied to
// an active booking overlapping the window on a different resource.
func (r Repo) CrewConflicts(ctx context.Context, tx *sql.Tx, crewIDs []string, startAt, endAt, excludeResourceID string) ([]string, error) {
	if len(crewIDs) == 0 {
		return nil, nil
	}
	placeholders := strings.TrimRight(strings.Repeat("?,", len(crewIDs)), ",")
	query := `SELECT DISTINCT bc.crew_id FROM booking_crew bc
JOIN bookings b ON b.id=bc.booking_id
WHERE bc.crew_id IN (` + placeholders + `) AND b.status IN ('pending','confirmed') AND b.start_at < ? AND ? < b.end_at`
	args := make([]any, 0, len(crewIDs)+3)
	for _, id := range crewIDs {
		args = append(args, id)
	}
	args = append(args, endAt, startAt)
	if excludeResourceID != "" {
		query += ` AND b.resource_id != ?`
		args = append(args, excludeResourceID)
	}
	var rows *sql.Rows
	var err error
	if tx != nil {
		rows, err = tx.QueryContext(ctx, query, args...)
	} else {
		rows, err = r.DB.QueryContext(ctx, query, args...)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var busy []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		busy = append(busy, id)
	}
	return busy, rows.Err()
}

func (r Repo) SetBookingCrew(ctx context.Context, tx *sql.Tx, bookingID string, crewIDs []string) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM booking_crew WHERE booking_id=?`, bookingID); err != nil {
		return err
	}
	for _, id := range crewIDs {
		if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO booking_crew(booking_id,crew_id) VALUES (?,?)`, bookingID, id); err != nil {
			return err
		}
	}
	return nil
}

func (r Repo) BookingCrew(ctx context.Context, bookingID string) ([]string, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT crew_id FROM booking_crew WHERE booking_id=? ORDER BY crew_id`, bookingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r Repo) CountBookingsByStatus(ctx context.Context, resourceID string) (map[string]int, error) {
	query := `SELECT status, count(*) FROM bookings`
	var args []any
	if resourceID != "" {
		query += ` WHERE resource_id=?`
		args = append(args, resourceID)
	}
	query += ` GROUP BY status`
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := map[string]int{}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		res[status] = count
	}
	return res, rows.Err()
}
