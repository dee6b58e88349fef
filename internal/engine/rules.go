package engine

import (
	"context"
	"time"

	"github.com/google/uuid"

	"tideline/internal/domain"
	"tideline/internal/events"
)

// RuleCreateOptions are parameters for an eligibility rule.
type RuleCreateOptions struct {
	ID                 string
	ResourceID         string
	Name               string
	Severity           string
	MaxWindKmh         *float64
	MaxPrecipitationMm *float64
	MinVisibilityKm    *float64
	AllowedConditions  []string
	SeasonStart        string
	SeasonEnd          string
	MinAge             *int
	RequiredCerts      []string
	ActorID            string
}

func (e *Engine) CreateRule(ctx context.Context, opts RuleCreateOptions) (domain.EligibilityRule, error) {
	if opts.ResourceID == "" {
		return domain.EligibilityRule{}, ValidationError{Field: "resource_id", Detail: "required"}
	}
	if opts.Name == "" {
		return domain.EligibilityRule{}, ValidationError{Field: "name", Detail: "required"}
	}
	switch opts.Severity {
	case domain.SeverityWarning, domain.SeverityBlock:
	case "":
		opts.Severity = domain.SeverityBlock
	default:
		return domain.EligibilityRule{}, ValidationError{Field: "severity", Detail: "must be warning or block"}
	}
	if (opts.SeasonStart == "") != (opts.SeasonEnd == "") {
		return domain.EligibilityRule{}, ValidationError{Field: "season", Detail: "season_start and season_end go together"}
	}
	if opts.SeasonStart != "" && (!validMonthDay(opts.SeasonStart) || !validMonthDay(opts.SeasonEnd)) {
		return domain.EligibilityRule{}, ValidationError{Field: "season", Detail: "season bounds must be MM-DD"}
	}
	if opts.MinAge != nil && *opts.MinAge < 0 {
		return domain.EligibilityRule{}, ValidationError{Field: "min_age", Detail: "must not be negative"}
	}
	if _, err := e.Repo.GetResource(ctx, opts.ResourceID); err != nil {
		return domain.EligibilityRule{}, err
	}
	id := opts.ID
	if id == "" {
		id = uuid.NewString()
	}
	rule := domain.EligibilityRule{
		ID:                 id,
		ResourceID:         opts.ResourceID,
		Name:               opts.Name,
		Severity:           opts.Severity,
		MaxWindKmh:         opts.MaxWindKmh,
		MaxPrecipitationMm: opts.MaxPrecipitationMm,
		MinVisibilityKm:    opts.MinVisibilityKm,
		AllowedConditions:  opts.AllowedConditions,
		SeasonStart:        opts.SeasonStart,
		SeasonEnd:          opts.SeasonEnd,
		MinAge:             opts.MinAge,
		RequiredCerts:      opts.RequiredCerts,
		Active:             true,
		CreatedAt:          e.now().UTC().Format(time.RFC3339),
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.EligibilityRule{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertRule(ctx, tx, rule); err != nil {
		return domain.EligibilityRule{}, err
	}
	if err := e.Events.Append(ctx, tx, "rule.create", rule.ResourceID, "rule", rule.ID, opts.ActorID, events.EventPayload{"severity": rule.Severity}); err != nil {
		return domain.EligibilityRule{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.EligibilityRule{}, err
	}
	return rule, nil
}

func (e *Engine) SetRuleActive(ctx context.Context, ruleID string, active bool, actorID string) error {
	rule, err := e.Repo.GetRule(ctx, ruleID)
	if err != nil {
		return err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.SetRuleActive(ctx, tx, ruleID, active); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "rule.active", rule.ResourceID, "rule", rule.ID, actorID, events.EventPayload{"active": active}); err != nil {
		return err
	}
	return tx.Commit()
}

func (e *Engine) RulesForResource(ctx context.Context, resourceID string, activeOnly bool) ([]domain.EligibilityRule, error) {
	return e.Repo.RulesForResource(ctx, resourceID, activeOnly)
}
