package syncer

import (
	"context"
	"encoding/json"

	"tideline/internal/domain"
	"tideline/internal/repo"
	tidelinesdk "tideline/sdk/go"
)

// LocalSource pulls deltas straight from the workspace ledger.
type LocalSource struct {
	Repo       repo.Repo
	ResourceID string // optional filter
}

func (s LocalSource) Pull(ctx context.Context, after int64, limit int) ([]domain.Event, error) {
	return s.Repo.EventsAfter(ctx, limit, after, s.ResourceID)
}

// HTTPSource pulls deltas from a remote tideline server.
type HTTPSource struct {
	Client     *tidelinesdk.Client
	ResourceID string
}

func (s HTTPSource) Pull(ctx context.Context, after int64, limit int) ([]domain.Event, error) {
	items, err := s.Client.EventsAfter(ctx, after, limit, s.ResourceID)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Event, 0, len(items))
	for _, it := range items {
		evt := domain.Event{
			ID:         it.ID,
			TS:         it.TS,
			Type:       it.Type,
			ResourceID: it.ResourceID,
			EntityKind: it.EntityKind,
			EntityID:   it.EntityID,
			ActorID:    it.ActorID,
		}
		if it.Payload != nil {
			raw, err := json.Marshal(it.Payload)
			if err == nil {
				evt.Payload = string(raw)
			}
		}
		out = append(out, evt)
	}
	return out, nil
}
