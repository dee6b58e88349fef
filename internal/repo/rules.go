package repo

import (
	"context"
	"database/sql"

	"tideline/internal/domain"
)

const ruleColumns = `id,resource_id,name,severity,max_wind_kmh,max_precipitation_mm,min_visibility_km,allowed_conditions_json,season_start,season_end,min_age,required_certs_json,active,created_at`

func (r Repo) InsertRule(ctx context.Context, tx *sql.Tx, rule domain.EligibilityRule) error {
	conditions, err := marshalStrings(rule.AllowedConditions)
	if err != nil {
		return err
	}
	certs, err := marshalStrings(rule.RequiredCerts)
	if err != nil {
		return err
	}
	active := 0
	if rule.Active {
		active = 1
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO eligibility_rules(`+ruleColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		rule.ID, rule.ResourceID, rule.Name, rule.Severity, nullableFloatPtr(rule.MaxWindKmh), nullableFloatPtr(rule.MaxPrecipitationMm),
		nullableFloatPtr(rule.MinVisibilityKm), conditions, nullable(rule.SeasonStart), nullable(rule.SeasonEnd),
		nullableIntPtr(rule.MinAge), certs, active, rule.CreatedAt)
	return err
}

func nullableFloatPtr(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullableIntPtr(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}

func scanRule(scan func(dest ...any) error) (domain.EligibilityRule, error) {
	var rule domain.EligibilityRule
	var maxWind, maxPrecip, minVis sql.NullFloat64
	var conditions, seasonStart, seasonEnd, certs sql.NullString
	var minAge sql.NullInt64
	var active int
	err := scan(&rule.ID, &rule.ResourceID, &rule.Name, &rule.Severity, &maxWind, &maxPrecip, &minVis,
		&conditions, &seasonStart, &seasonEnd, &minAge, &certs, &active, &rule.CreatedAt)
	if err == sql.ErrNoRows {
		return rule, ErrNotFound
	}
	if err != nil {
		return rule, err
	}
	if maxWind.Valid {
		rule.MaxWindKmh = &maxWind.Float64
	}
	if maxPrecip.Valid {
		rule.MaxPrecipitationMm = &maxPrecip.Float64
	}
	if minVis.Valid {
		rule.MinVisibilityKm = &minVis.Float64
	}
	rule.AllowedConditions = unmarshalStrings(conditions)
	if seasonStart.Valid {
		rule.SeasonStart = seasonStart.String
	}
	if seasonEnd.Valid {
		rule.SeasonEnd = seasonEnd.String
	}
	if minAge.Valid {
		age := int(minAge.Int64)
		rule.MinAge = &age
	}
	rule.RequiredCerts = unmarshalStrings(certs)
	rule.Active = active != 0
	return rule, nil
}

func (r Repo) GetRule(ctx context.Context, id string) (domain.EligibilityRule, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+ruleColumns+` FROM eligibility_rules WHERE id=?`, id)
	return scanRule(row.Scan)
}

// RulesForResource returns rules for a resource, optionally only active ones.
func (r Repo) RulesForResource(ctx context.Context, resourceID string, activeOnly bool) ([]domain.EligibilityRule, error) {
	query := `SELECT ` + ruleColumns + ` FROM eligibility_rules WHERE resource_id=?`
	args := []any{resourceID}
	if activeOnly {
		query += ` AND active=1`
	}
	query += ` ORDER BY created_at ASC, id ASC`
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.EligibilityRule
	for rows.Next() {
		rule, err := scanRule(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, rule)
	}
	return res, rows.Err()
}

func (r Repo) SetRuleActive(ctx context.Context, tx *sql.Tx, id string, active bool) error {
	flag := 0
	if active {
		flag = 1
	}
	res, err := tx.ExecContext(ctx, `UPDATE eligibility_rules SET active=? WHERE id=?`, flag, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) DeleteRule(ctx context.Context, id string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM eligibility_rules WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
