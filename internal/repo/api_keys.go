package repo

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"

	"tideline/internal/domain"
)

// HashAPIKey returns the hex SHA-256 of a raw key. Only hashes are stored.
func HashAPIKey(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

func (r Repo) InsertAPIKey(ctx context.Context, k domain.APIKey) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO api_keys(id,actor_id,name,key_hash,created_at) VALUES (?,?,?,?,?)`,
		k.ID, k.ActorID, nullable(k.Name), k.KeyHash, k.CreatedAt)
	return err
}

func (r Repo) APIKeyByHash(ctx context.Context, hash string) (domain.APIKey, error) {
	var k domain.APIKey
	var name sql.NullString
	err := r.DB.QueryRowContext(ctx, `SELECT id,actor_id,name,key_hash,created_at FROM api_keys WHERE key_hash=?`, hash).
		Scan(&k.ID, &k.ActorID, &name, &k.KeyHash, &k.CreatedAt)
	if err == sql.ErrNoRows {
		return k, ErrNotFound
	}
	if err != nil {
		return k, err
	}
	if name.Valid {
		k.Name = name.String
	}
	return k, nil
}

func (r Repo) ListAPIKeys(ctx context.Context, actorID string) ([]domain.APIKey, error) {
	query := `SELECT id,actor_id,name,key_hash,created_at FROM api_keys`
	var args []any
	if actorID != "" {
		query += ` WHERE actor_id=?`
		args = append(args, actorID)
	}
	query += ` ORDER BY created_at DESC, id DESC`
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.APIKey
	for rows.Next() {
		var k domain.APIKey
		var name sql.NullString
		if err := rows.Scan(&k.ID, &k.ActorID, &name, &k.KeyHash, &k.CreatedAt); err != nil {
			return nil, err
		}
		if name.Valid {
			k.Name = name.String
		}
		res = append(res, k)
	}
	return res, rows.Err()
}

func (r Repo) DeleteAPIKey(ctx context.Context, id string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM api_keys WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
