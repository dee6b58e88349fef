package repo

import (
	"context"
	"database/sql"
	"strings"

	"tideline/internal/domain"
)

func (r Repo) InsertCrewMember(ctx context.Context, m domain.CrewMember) error {
	certs, err := marshalStrings(m.Certs)
	if err != nil {
		return err
	}
	_, err = r.DB.ExecContext(ctx, `INSERT INTO crew_members(id,name,certs_json,created_at) VALUES (?,?,?,?)`,
		m.ID, m.Name, certs, m.CreatedAt)
	return err
}

func (r Repo) GetCrewMember(ctx context.Context, id string) (domain.CrewMember, error) {
	var m domain.CrewMember
	var certs sql.NullString
	err := r.DB.QueryRowContext(ctx, `SELECT id,name,certs_json,created_at FROM crew_members WHERE id=?`, id).
		Scan(&m.ID, &m.Name, &certs, &m.CreatedAt)
	if err == sql.ErrNoRows {
		return m, ErrNotFound
	}
	if err != nil {
		return m, err
	}
	m.Certs = unmarshalStrings(certs)
	return m, nil
}

func (r Repo) ListCrewMembers(ctx context.Context) ([]domain.CrewMember, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,name,certs_json,created_at FROM crew_members ORDER BY name ASC, id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.CrewMember
	for rows.Next() {
		var m domain.CrewMember
		var certs sql.NullString
		if err := rows.Scan(&m.ID, &m.Name, &certs, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.Certs = unmarshalStrings(certs)
		res = append(res, m)
	}
	return res, rows.Err()
}

// CrewCerts returns the union of certifications held by the given crew, used
// when checking required_certs rules.
func (r Repo) CrewCerts(ctx context.Context, tx *sql.Tx, crewIDs []string) (map[string]bool, error) {
	certs := map[string]bool{}
	if len(crewIDs) == 0 {
		return certs, nil
	}
	placeholders := strings.TrimRight(strings.Repeat("?,", len(crewIDs)), ",")
	query := `SELECT certs_json FROM crew_members WHERE id IN (` + placeholders + `)`
	args := make([]any, 0, len(crewIDs))
	for _, id := range crewIDs {
		args = append(args, id)
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
	for rows.Next() {
		var raw sql.NullString
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		for _, c := range unmarshalStrings(raw) {
			certs[c] = true
		}
	}
	return certs, rows.Err()
}

func (r Repo) DeleteCrewMember(ctx context.Context, id string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM crew_members WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
