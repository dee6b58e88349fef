package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"tideline/internal/config"
	"tideline/internal/repo"
)

// ResolveConfig picks the active operator config: a tideline.yml in the
// workspace wins, then the config stored in the DB, then seeded defaults.
// The winning config is persisted so the server and CLI agree on it.
func ResolveConfig(ctx context.Context, workspace, operatorOverride, actorID string, r repo.Repo) (string, *config.Config, error) {
	fileCfg, err := config.LoadOptional(workspace)
	if err != nil {
		return "", nil, err
	}

	operatorID := operatorOverride
	if operatorID == "" && fileCfg != nil {
		operatorID = fileCfg.Operator.ID
	}
	if operatorID == "" {
		operatorID = "local-operator"
	}

	if fileCfg != nil {
		if err := r.UpsertOperatorConfig(ctx, operatorID, fileCfg); err != nil {
			return "", nil, fmt.Errorf("store operator config: %w", err)
		}
		if err := ensureActor(ctx, r, actorID); err != nil {
			return "", nil, err
		}
		return operatorID, fileCfg, nil
	}

	cfg, err := r.GetOperatorConfig(ctx, operatorID)
	if err != nil {
		if !errors.Is(err, repo.ErrNotFound) {
			return "", nil, err
		}
		cfg = config.Default(operatorID)
		if err := r.UpsertOperatorConfig(ctx, operatorID, cfg); err != nil {
			return "", nil, fmt.Errorf("seed operator config: %w", err)
		}
	}
	if err := ensureActor(ctx, r, actorID); err != nil {
		return "", nil, err
	}
	return operatorID, cfg, nil
}

func ensureActor(ctx context.Context, r repo.Repo, actorID string) error {
	if actorID == "" {
		actorID = "local-user"
	}
	return r.EnsureActor(ctx, actorID, time.Now().UTC().Format(time.RFC3339))
}
