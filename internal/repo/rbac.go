package repo

import (
	"context"
	"database/sql"
)

func (r Repo) EnsureActor(ctx context.Context, actorID, createdAt string) error {
	_, err := r.DB.ExecContext(ctx, `INSERT OR IGNORE INTO actors(id,created_at) VALUES (?,?)`, actorID, createdAt)
	return err
}

func (r Repo) AssignRole(ctx context.Context, actorID, role string) error {
	_, err := r.DB.ExecContext(ctx, `INSERT OR IGNORE INTO actor_roles(actor_id,role) VALUES (?,?)`, actorID, role)
	return err
}

func (r Repo) RevokeRole(ctx context.Context, actorID, role string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM actor_roles WHERE actor_id=? AND role=?`, actorID, role)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) ActorRoles(ctx context.Context, actorID string) ([]string, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT role FROM actor_roles WHERE actor_id=? ORDER BY role`, actorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var roles []string
	for rows.Next() {
		var role string
		if err := rows.Scan(&role); err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

func (r Repo) ActorHasRole(ctx context.Context, actorID string, roles []string) (bool, error) {
	if len(roles) == 0 {
		return false, nil
	}
	for _, role := range roles {
		row := r.DB.QueryRowContext(ctx, `SELECT 1 FROM actor_roles WHERE actor_id=? AND role=?`, actorID, role)
		var one int
		err := row.Scan(&one)
		if err == sql.ErrNoRows {
			continue
		}
		if err != nil {
			return false, err
		}
		return true, nil
	}
	return false, nil
}
