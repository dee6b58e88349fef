package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"tideline/internal/engine"
	"tideline/internal/syncer"
)

type EventResponse struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts"`
	Type       string         `json:"type"`
	ResourceID string         `json:"resource_id,omitempty"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id,omitempty"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload"`
}

func registerEvents(api huma.API, e *engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "Ledger events; with after= this is the sync delta feed",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		After    int64  `query:"after"`
		Limit    int    `query:"limit"`
		Resource string `query:"resource"`
		Type     string `query:"type"`
	}) (*struct {
		Body struct {
			Items []EventResponse `json:"items"`
		} `json:"body"`
	}, error) {
		limit := input.Limit
		if limit <= 0 {
			limit = 100
		}
		out := &struct {
			Body struct {
				Items []EventResponse `json:"items"`
			} `json:"body"`
		}{}
		var err error
		if input.After > 0 {
			items, ferr := e.Repo.EventsAfter(ctx, limit, input.After, input.Resource)
			err = ferr
			for _, evt := range items {
				out.Body.Items = append(out.Body.Items, eventResponse(evt.ID, evt.TS, evt.Type, evt.ResourceID, evt.EntityKind, evt.EntityID, evt.ActorID, evt.Payload))
			}
		} else {
			items, ferr := e.Repo.LatestEvents(ctx, limit, input.Resource, input.Type, "", "")
			err = ferr
			for _, evt := range items {
				out.Body.Items = append(out.Body.Items, eventResponse(evt.ID, evt.TS, evt.Type, evt.ResourceID, evt.EntityKind, evt.EntityID, evt.ActorID, evt.Payload))
			}
		}
		if err != nil {
			return nil, handleError(err)
		}
		return out, nil
	})
}

func eventResponse(id int64, ts, evtType, resourceID, entityKind, entityID, actorID, payload string) EventResponse {
	resp := EventResponse{
		ID:         id,
		TS:         ts,
		Type:       evtType,
		ResourceID: resourceID,
		EntityKind: entityKind,
		EntityID:   entityID,
		ActorID:    actorID,
		Payload:    map[string]any{},
	}
	if payload != "" {
		_ = json.Unmarshal([]byte(payload), &resp.Payload)
	}
	return resp
}

func registerSync(api huma.API, sync *syncer.Coordinator) {
	huma.Register(api, huma.Operation{
		OperationID: "sync-status",
		Method:      http.MethodGet,
		Path:        "/sync",
		Summary:     "Sync coordinator state and staleness",
		Errors:      []int{http.StatusServiceUnavailable},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body syncer.Status `json:"body"`
	}, error) {
		if sync == nil {
			return nil, newAPIError(http.StatusServiceUnavailable, "sync_disabled", "sync coordinator not running", nil)
		}
		return &struct {
			Body syncer.Status `json:"body"`
		}{Body: sync.Status()}, nil
	})
}

func registerRBAC(api huma.API, e *engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "assign-role",
		Method:      http.MethodPost,
		Path:        "/actors/{actor_id}/roles",
		Summary:     "Assign a role to an actor",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		ActorID string            `path:"actor_id"`
		Body    AssignRoleRequest `json:"body"`
	}) (*struct {
		Body map[string]any `json:"body"`
	}, error) {
		if input.Body.Role == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "role is required", nil)
		}
		if _, authErr := actorIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		now := time.Now().UTC().Format(time.RFC3339)
		if err := e.Repo.EnsureActor(ctx, input.ActorID, now); err != nil {
			return nil, handleError(err)
		}
		if err := e.Repo.AssignRole(ctx, input.ActorID, input.Body.Role); err != nil {
			return nil, handleError(err)
		}
		roles, err := e.Repo.ActorRoles(ctx, input.ActorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body map[string]any `json:"body"`
		}{Body: map[string]any{
			"actor_id": input.ActorID,
			"roles":    roles,
		}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-roles",
		Method:      http.MethodGet,
		Path:        "/actors/{actor_id}/roles",
		Summary:     "List an actor's roles",
	}, func(ctx context.Context, input *struct {
		ActorID string `path:"actor_id"`
	}) (*struct {
		Body map[string]any `json:"body"`
	}, error) {
		roles, err := e.Repo.ActorRoles(ctx, input.ActorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body map[string]any `json:"body"`
		}{Body: map[string]any{
			"actor_id": input.ActorID,
			"roles":    roles,
		}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-api-key",
		Method:        http.MethodPost,
		Path:          "/apikeys",
		Summary:       "Create an API key; the raw key is returned once",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Body CreateAPIKeyRequest `json:"body"`
	}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		if input.Body.ActorID == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "actor_id is required", nil)
		}
		if _, authErr := actorIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		raw, key, err := engine.NewAPIKey(input.Body.ActorID, deref(input.Body.Name))
		if err != nil {
			return nil, handleError(err)
		}
		if err := e.Repo.InsertAPIKey(ctx, key); err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{
			"id":       key.ID,
			"actor_id": key.ActorID,
			"key":      raw,
		}}, nil
	})
}
