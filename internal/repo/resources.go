package repo

import (
	"context"
	"database/sql"
	"strings"

	"tideline/internal/domain"
)

func (r Repo) InsertResource(ctx context.Context, tx *sql.Tx, res domain.Resource) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO resources(id,name,type,capacity,status,location,created_at,updated_at) VALUES (?,?,?,?,?,?,?,?)`,
		res.ID, res.Name, res.Type, res.Capacity, res.Status, nullable(res.Location), res.CreatedAt, res.UpdatedAt)
	return err
}

func scanResource(scan func(dest ...any) error) (domain.Resource, error) {
	var res domain.Resource
	var location sql.NullString
	err := scan(&res.ID, &res.Name, &res.Type, &res.Capacity, &res.Status, &location, &res.CreatedAt, &res.UpdatedAt)
	if err == sql.ErrNoRows {
		return res, ErrNotFound
	}
	if err != nil {
		return res, err
	}
	if location.Valid {
		res.Location = location.String
	}
	return res, nil
}

const resourceColumns = `id,name,type,capacity,status,location,created_at,updated_at`

func (r Repo) GetResource(ctx context.Context, id string) (domain.Resource, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+resourceColumns+` FROM resources WHERE id=?`, id)
	res, err := scanResource(row.Scan)
	if err != nil {
		return res, err
	}
	res.Crew, err = r.ResourceCrew(ctx, res.ID)
	return res, err
}

func (r Repo) GetResourceTx(ctx context.Context, tx *sql.Tx, id string) (domain.Resource, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+resourceColumns+` FROM resources WHERE id=?`, id)
	return scanResource(row.Scan)
}

type ResourceFilters struct {
	Type            string
	Status          string
	Limit           int
	CursorCreatedAt string
	CursorID        string
}

func (r Repo) ListResources(ctx context.Context, f ResourceFilters) ([]domain.Resource, error) {
	var clauses []string
	var args []any
	if f.Type != "" {
		clauses = append(clauses, "type=?")
		args = append(args, f.Type)
	}
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	if f.CursorCreatedAt != "" && f.CursorID != "" {
		clauses = append(clauses, "(created_at < ? OR (created_at = ? AND id < ?))")
		args = append(args, f.CursorCreatedAt, f.CursorCreatedAt, f.CursorID)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	query := `SELECT ` + resourceColumns + ` FROM resources ` + where + ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Resource
	for rows.Next() {
		item, err := scanResource(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, item)
	}
	return res, rows.Err()
}

func (r Repo) UpdateResourceStatus(ctx context.Context, tx *sql.Tx, id, status, updatedAt string) error {
	res, err := tx.ExecContext(ctx, `UPDATE resources SET status=?, updated_at=? WHERE id=?`, status, updatedAt, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) ResourceCrew(ctx context.Context, resourceID string) ([]string, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT crew_id FROM resource_crew WHERE resource_id=? ORDER BY crew_id`, resourceID)
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

func (r Repo) SetResourceCrew(ctx context.Context, tx *sql.Tx, resourceID string, crewIDs []string) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM resource_crew WHERE resource_id=?`, resourceID); err != nil {
		return err
	}
	for _, id := range crewIDs {
		if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO resource_crew(resource_id,crew_id) VALUES (?,?)`, resourceID, id); err != nil {
			return err
		}
	}
	return nil
}

// CountActiveBookings counts pending/confirmed bookings on a resource inside
// the caller's transaction.
func (r Repo) CountActiveBookings(ctx context.Context, tx *sql.Tx, resourceID string) (int, error) {
	row := tx.QueryRowContext(ctx, `SELECT count(*) FROM bookings WHERE resource_id=? AND status IN ('pending','confirmed')`, resourceID)
	var n int
	err := row.Scan(&n)
	return n, err
}
