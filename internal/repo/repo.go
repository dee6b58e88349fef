package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"tideline/internal/config"
	"tideline/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableStringPtr(v *string) any {
	if v == nil {
		return nil
	}
	if *v == "" {
		return nil
	}
	return *v
}

func marshalStrings(in []string) (any, error) {
	if len(in) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(in)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func unmarshalStrings(raw sql.NullString) []string {
	if !raw.Valid || raw.String == "" {
		return nil
	}
	var out []string
	_ = json.Unmarshal([]byte(raw.String), &out)
	return out
}

func (r Repo) UpsertOperatorConfig(ctx context.Context, operatorID string, cfg *config.Config) error {
	return upsertOperatorConfig(ctx, r.DB, nil, operatorID, cfg)
}

func (r Repo) UpsertOperatorConfigTx(ctx context.Context, tx *sql.Tx, operatorID string, cfg *config.Config) error {
	return upsertOperatorConfig(ctx, nil, tx, operatorID, cfg)
}

func upsertOperatorConfig(ctx context.Context, db *sql.DB, tx *sql.Tx, operatorID string, cfg *config.Config) error {
	if cfg == nil {
		return fmt.Errorf("config nil")
	}
	cfg.Operator.ID = operatorID
	if err := cfg.Validate(); err != nil {
		return err
	}
	payload, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	now := time.Now().UTC().Format(time.RFC3339)
	exec := func(query string, args ...any) (sql.Result, error) {
		if tx != nil {
			return tx.ExecContext(ctx, query, args...)
		}
		return db.ExecContext(ctx, query, args...)
	}
	_, err = exec(`INSERT INTO operator_configs(operator_id,config_json,created_at,updated_at) VALUES (?,?,?,?)
ON CONFLICT(operator_id) DO UPDATE SET config_json=excluded.config_json, updated_at=excluded.updated_at`, operatorID, string(payload), now, now)
	return err
}

func (r Repo) GetOperatorConfig(ctx context.Context, operatorID string) (*config.Config, error) {
	var payload string
	err := r.DB.QueryRowContext(ctx, `SELECT config_json FROM operator_configs WHERE operator_id=?`, operatorID).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var cfg config.Config
	if err := json.Unmarshal([]byte(payload), &cfg); err != nil {
		return nil, err
	}
	if cfg.Operator.ID == "" {
		cfg.Operator.ID = operatorID
	}
	return &cfg, cfg.Validate()
}

func (r Repo) LatestEvents(ctx context.Context, limit int, resourceID, evtType, entityKind, entityID string) ([]domain.Event, error) {
	return r.LatestEventsFrom(ctx, limit, 0, resourceID, evtType, entityKind, entityID)
}

func (r Repo) LatestEventsFrom(ctx context.Context, limit int, cursor int64, resourceID, evtType, entityKind, entityID string) ([]domain.Event, error) {
	clauses := []string{"1=1"}
	var args []any
	if resourceID != "" {
		clauses = append(clauses, "resource_id=?")
		args = append(args, resourceID)
	}
	if evtType != "" {
		clauses = append(clauses, "type=?")
		args = append(args, evtType)
	}
	if entityKind != "" {
		clauses = append(clauses, "entity_kind=?")
		args = append(args, entityKind)
	}
	if entityID != "" {
		clauses = append(clauses, "entity_id=?")
		args = append(args, entityID)
	}
	if cursor > 0 {
		clauses = append(clauses, "id<?")
		args = append(args, cursor)
	}
	where := "WHERE " + strings.Join(clauses, " AND ")
	query := fmt.Sprintf(`SELECT id,ts,type,COALESCE(resource_id,''),entity_kind,COALESCE(entity_id,''),actor_id,payload_json FROM events %s ORDER BY id DESC LIMIT ?`, where)
	args = append(args, limit)
	return r.queryEvents(ctx, query, args...)
}

// EventsAfter returns events with IDs greater than the cursor in ascending
// order. This is the sync delta feed.
func (r Repo) EventsAfter(ctx context.Context, limit int, cursor int64, resourceID string) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	clauses := []string{"1=1"}
	var args []any
	if resourceID != "" {
		clauses = append(clauses, "resource_id=?")
		args = append(args, resourceID)
	}
	if cursor > 0 {
		clauses = append(clauses, "id>?")
		args = append(args, cursor)
	}
	where := "WHERE " + strings.Join(clauses, " AND ")
	query := fmt.Sprintf(`SELECT id,ts,type,COALESCE(resource_id,''),entity_kind,COALESCE(entity_id,''),actor_id,payload_json FROM events %s ORDER BY id ASC LIMIT ?`, where)
	args = append(args, limit)
	return r.queryEvents(ctx, query, args...)
}

func (r Repo) queryEvents(ctx context.Context, query string, args ...any) ([]domain.Event, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Event
	for rows.Next() {
		var e domain.Event
		var payload sql.NullString
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &e.ResourceID, &e.EntityKind, &e.EntityID, &e.ActorID, &payload); err != nil {
			return nil, err
		}
		if payload.Valid {
			e.Payload = payload.String
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

// LatestEventID returns the most recent event ID, the initial sync token.
func (r Repo) LatestEventID(ctx context.Context) (int64, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT COALESCE(MAX(id),0) FROM events`)
	var id int64
	if err := row.Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}
