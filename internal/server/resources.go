package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"tideline/internal/engine"
	"tideline/internal/repo"
)

func registerResources(api huma.API, e *engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-resource",
		Method:        http.MethodPost,
		Path:          "/resources",
		Summary:       "Register a resource",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnauthorized,
			http.StatusUnprocessableEntity,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Body CreateResourceRequest `json:"body"`
	}) (*struct {
		Body ResourceResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		res, err := e.CreateResource(ctx, engine.ResourceCreateOptions{
			ID:       deref(input.Body.ID),
			Name:     input.Body.Name,
			Type:     input.Body.Type,
			Capacity: input.Body.Capacity,
			Location: deref(input.Body.Location),
			Crew:     input.Body.Crew,
			ActorID:  actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ResourceResponse `json:"body"`
		}{Body: resourceResponse(res)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-resources",
		Method:      http.MethodGet,
		Path:        "/resources",
		Summary:     "List resources",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Type   string `query:"type"`
		Status string `query:"status"`
		Limit  int    `query:"limit"`
	}) (*struct {
		Body struct {
			Items []ResourceResponse `json:"items"`
		} `json:"body"`
	}, error) {
		limit := input.Limit
		if limit <= 0 {
			limit = 100
		}
		items, err := e.ListResources(ctx, repo.ResourceFilters{
			Type:   input.Type,
			Status: input.Status,
			Limit:  limit,
		})
		if err != nil {
			return nil, handleError(err)
		}
		out := &struct {
			Body struct {
				Items []ResourceResponse `json:"items"`
			} `json:"body"`
		}{}
		out.Body.Items = mapResources(items)
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-resource",
		Method:      http.MethodGet,
		Path:        "/resources/{resource_id}",
		Summary:     "Get resource",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ResourceID string `path:"resource_id"`
	}) (*struct {
		Body ResourceResponse `json:"body"`
	}, error) {
		res, err := e.GetResource(ctx, input.ResourceID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ResourceResponse `json:"body"`
		}{Body: resourceResponse(res)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-resource-status",
		Method:      http.MethodPatch,
		Path:        "/resources/{resource_id}/status",
		Summary:     "Change resource status",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
			http.StatusConflict,
			http.StatusUnprocessableEntity,
			http.StatusServiceUnavailable,
		},
	}, func(ctx context.Context, input *struct {
		ResourceID string                   `path:"resource_id"`
		Body       SetResourceStatusRequest `json:"body"`
	}) (*struct {
		Body ResourceResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		res, err := e.SetResourceStatus(ctx, input.ResourceID, input.Body.Status, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ResourceResponse `json:"body"`
		}{Body: resourceResponse(res)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "assign-crew",
		Method:      http.MethodPut,
		Path:        "/resources/{resource_id}/crew",
		Summary:     "Assign standing crew to a resource",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
			http.StatusConflict,
			http.StatusUnprocessableEntity,
		},
	}, func(ctx context.Context, input *struct {
		ResourceID string            `path:"resource_id"`
		Body       AssignCrewRequest `json:"body"`
	}) (*struct {
		Body ResourceResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		res, err := e.AssignCrew(ctx, input.ResourceID, input.Body.Crew, deref(input.Body.StartAt), deref(input.Body.EndAt), actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ResourceResponse `json:"body"`
		}{Body: resourceResponse(res)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "resource-availability",
		Method:      http.MethodGet,
		Path:        "/resources/{resource_id}/availability",
		Summary:     "Bookable slots for a resource on a day",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
			http.StatusUnprocessableEntity,
		},
	}, func(ctx context.Context, input *struct {
		ResourceID string `path:"resource_id"`
		Day        string `query:"day" required:"true"`
	}) (*struct {
		Body AvailabilityResponse `json:"body"`
	}, error) {
		items, err := e.ResolveAvailability(ctx, input.ResourceID, input.Day)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body AvailabilityResponse `json:"body"`
		}{Body: AvailabilityResponse{
			ResourceID: input.ResourceID,
			Day:        input.Day,
			Items:      items,
		}}, nil
	})
}

func registerTemplates(api huma.API, e *engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-template",
		Method:        http.MethodPost,
		Path:          "/resources/{resource_id}/templates",
		Summary:       "Create a schedule template",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
			http.StatusUnprocessableEntity,
		},
	}, func(ctx context.Context, input *struct {
		ResourceID string                `path:"resource_id"`
		Body       CreateTemplateRequest `json:"body"`
	}) (*struct {
		Body TemplateResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		opts := engine.TemplateCreateOptions{
			ID:            deref(input.Body.ID),
			ResourceID:    input.ResourceID,
			Weekdays:      input.Body.Weekdays,
			BlackoutDates: input.Body.BlackoutDates,
			ActorID:       actorID,
		}
		for _, s := range input.Body.Slots {
			spec := engine.SlotSpec{
				StartTime:   s.StartTime,
				DurationMin: s.DurationMin,
				Capacity:    s.Capacity,
			}
			if s.PriceMultiplier != nil {
				spec.PriceMultiplier = *s.PriceMultiplier
			}
			opts.Slots = append(opts.Slots, spec)
		}
		for _, o := range input.Body.Overrides {
			spec := engine.OverrideSpec{Starts: o.Starts, Ends: o.Ends}
			if o.CapacityMultiplier != nil {
				spec.CapacityMultiplier = *o.CapacityMultiplier
			}
			if o.PriceMultiplier != nil {
				spec.PriceMultiplier = *o.PriceMultiplier
			}
			opts.Overrides = append(opts.Overrides, spec)
		}
		t, err := e.CreateTemplate(ctx, opts)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body TemplateResponse `json:"body"`
		}{Body: templateResponse(t)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-templates",
		Method:      http.MethodGet,
		Path:        "/resources/{resource_id}/templates",
		Summary:     "List schedule templates",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ResourceID string `path:"resource_id"`
	}) (*struct {
		Body struct {
			Items []TemplateResponse `json:"items"`
		} `json:"body"`
	}, error) {
		if _, err := e.GetResource(ctx, input.ResourceID); err != nil {
			return nil, handleError(err)
		}
		items, err := e.TemplatesForResource(ctx, input.ResourceID)
		if err != nil {
			return nil, handleError(err)
		}
		out := &struct {
			Body struct {
				Items []TemplateResponse `json:"items"`
			} `json:"body"`
		}{}
		for _, t := range items {
			out.Body.Items = append(out.Body.Items, templateResponse(t))
		}
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-slot-status",
		Method:      http.MethodPatch,
		Path:        "/slots/{slot_id}/status",
		Summary:     "Block, reopen or cancel a slot",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
			http.StatusConflict,
		},
	}, func(ctx context.Context, input *struct {
		SlotID string               `path:"slot_id"`
		Body   SetSlotStatusRequest `json:"body"`
	}) (*struct {
		Body map[string]any `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		slot, err := e.SetSlotStatus(ctx, input.SlotID, input.Body.Status, deref(input.Body.Reason), actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body map[string]any `json:"body"`
		}{Body: map[string]any{
			"slot_id": slot.ID,
			"status":  slot.Status,
		}}, nil
	})
}

func registerCrew(api huma.API, e *engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-crew-member",
		Method:        http.MethodPost,
		Path:          "/crew",
		Summary:       "Register a crew member",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnprocessableEntity,
		},
	}, func(ctx context.Context, input *struct {
		Body CreateCrewMemberRequest `json:"body"`
	}) (*struct {
		Body map[string]any `json:"body"`
	}, error) {
		if _, authErr := actorIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		m, err := e.CreateCrewMember(ctx, deref(input.Body.ID), input.Body.Name, input.Body.Certs)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body map[string]any `json:"body"`
		}{Body: map[string]any{
			"id":    m.ID,
			"name":  m.Name,
			"certs": m.Certs,
		}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-crew",
		Method:      http.MethodGet,
		Path:        "/crew",
		Summary:     "List crew members",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body struct {
			Items []map[string]any `json:"items"`
		} `json:"body"`
	}, error) {
		items, err := e.Repo.ListCrewMembers(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		out := &struct {
			Body struct {
				Items []map[string]any `json:"items"`
			} `json:"body"`
		}{}
		for _, m := range items {
			out.Body.Items = append(out.Body.Items, map[string]any{
				"id":         m.ID,
				"name":       m.Name,
				"certs":      m.Certs,
				"created_at": m.CreatedAt,
			})
		}
		return out, nil
	})
}
