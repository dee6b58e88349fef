package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"tideline/internal/engine"
	"tideline/internal/repo"
)

func registerBookings(api huma.API, e *engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-booking",
		Method:        http.MethodPost,
		Path:          "/bookings",
		Summary:       "Create a booking",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
			http.StatusConflict,
			http.StatusUnprocessableEntity,
			http.StatusServiceUnavailable,
		},
	}, func(ctx context.Context, input *struct {
		Body CreateBookingRequest `json:"body"`
	}) (*struct {
		Body BookingResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		opts := engine.BookingCreateOptions{
			ID:            deref(input.Body.ID),
			Title:         input.Body.Title,
			ResourceID:    input.Body.ResourceID,
			StartAt:       input.Body.StartAt,
			EndAt:         input.Body.EndAt,
			SlotID:        deref(input.Body.SlotID),
			Guests:        input.Body.Guests,
			GuestAges:     input.Body.GuestAges,
			ClientName:    deref(input.Body.ClientName),
			ClientContact: deref(input.Body.ClientContact),
			PartnerRef:    deref(input.Body.PartnerRef),
			Crew:          input.Body.Crew,
			Weather:       weatherFromRequest(input.Body.Weather),
			Notes:         deref(input.Body.Notes),
			Recipients:    input.Body.Recipients,
			ActorID:       actorID,
		}
		if input.Body.Price != nil {
			opts.Price = *input.Body.Price
		}
		b, err := e.CreateBooking(ctx, opts)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body BookingResponse `json:"body"`
		}{Body: bookingResponse(b)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-bookings",
		Method:      http.MethodGet,
		Path:        "/bookings",
		Summary:     "List bookings",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Resource string `query:"resource"`
		Status   string `query:"status"`
		Day      string `query:"day"`
		Limit    int    `query:"limit"`
	}) (*struct {
		Body struct {
			Items []BookingResponse `json:"items"`
		} `json:"body"`
	}, error) {
		limit := input.Limit
		if limit <= 0 {
			limit = 100
		}
		items, err := e.ListBookings(ctx, repo.BookingFilters{
			ResourceID: input.Resource,
			Status:     input.Status,
			Day:        input.Day,
			Limit:      limit,
		})
		if err != nil {
			return nil, handleError(err)
		}
		out := &struct {
			Body struct {
				Items []BookingResponse `json:"items"`
			} `json:"body"`
		}{}
		out.Body.Items = mapBookings(items)
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-booking",
		Method:      http.MethodGet,
		Path:        "/bookings/{booking_id}",
		Summary:     "Get booking",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		BookingID string `path:"booking_id"`
	}) (*struct {
		Body BookingResponse `json:"body"`
	}, error) {
		b, err := e.GetBooking(ctx, input.BookingID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body BookingResponse `json:"body"`
		}{Body: bookingResponse(b)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-booking-status",
		Method:      http.MethodPatch,
		Path:        "/bookings/{booking_id}/status",
		Summary:     "Confirm, complete or cancel a booking",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
			http.StatusConflict,
			http.StatusUnprocessableEntity,
			http.StatusServiceUnavailable,
		},
	}, func(ctx context.Context, input *struct {
		BookingID string                  `path:"booking_id"`
		Body      SetBookingStatusRequest `json:"body"`
	}) (*struct {
		Body BookingResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		b, err := e.UpdateBookingStatus(ctx, input.BookingID, input.Body.Status, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body BookingResponse `json:"body"`
		}{Body: bookingResponse(b)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "append-booking-note",
		Method:      http.MethodPost,
		Path:        "/bookings/{booking_id}/notes",
		Summary:     "Append a note to a booking",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
			http.StatusUnprocessableEntity,
		},
	}, func(ctx context.Context, input *struct {
		BookingID string            `path:"booking_id"`
		Body      AppendNoteRequest `json:"body"`
	}) (*struct {
		Body BookingResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		b, err := e.AppendBookingNote(ctx, input.BookingID, input.Body.Note, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body BookingResponse `json:"body"`
		}{Body: bookingResponse(b)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "check-conflicts",
		Method:      http.MethodGet,
		Path:        "/resources/{resource_id}/conflicts",
		Summary:     "Active bookings overlapping a window",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
			http.StatusUnprocessableEntity,
		},
	}, func(ctx context.Context, input *struct {
		ResourceID string `path:"resource_id"`
		StartAt    string `query:"start_at" required:"true"`
		EndAt      string `query:"end_at" required:"true"`
	}) (*struct {
		Body struct {
			Items []BookingResponse `json:"items"`
		} `json:"body"`
	}, error) {
		if _, err := e.GetResource(ctx, input.ResourceID); err != nil {
			return nil, handleError(err)
		}
		items, err := e.CheckConflicts(ctx, input.ResourceID, input.StartAt, input.EndAt)
		if err != nil {
			return nil, handleError(err)
		}
		out := &struct {
			Body struct {
				Items []BookingResponse `json:"items"`
			} `json:"body"`
		}{}
		out.Body.Items = mapBookings(items)
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "evaluate-booking",
		Method:      http.MethodGet,
		Path:        "/bookings/{booking_id}/eligibility",
		Summary:     "Re-run eligibility for a booking",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		BookingID string `path:"booking_id"`
	}) (*struct {
		Body map[string]any `json:"body"`
	}, error) {
		res, err := e.EvaluateBooking(ctx, input.BookingID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body map[string]any `json:"body"`
		}{Body: map[string]any{
			"verdict": res.Verdict,
			"reasons": res.Reasons,
		}}, nil
	})
}

func registerRules(api huma.API, e *engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-rule",
		Method:        http.MethodPost,
		Path:          "/resources/{resource_id}/rules",
		Summary:       "Create an eligibility rule",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
			http.StatusUnprocessableEntity,
		},
	}, func(ctx context.Context, input *struct {
		ResourceID string            `path:"resource_id"`
		Body       CreateRuleRequest `json:"body"`
	}) (*struct {
		Body map[string]any `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		rule, err := e.CreateRule(ctx, engine.RuleCreateOptions{
			ID:                 deref(input.Body.ID),
			ResourceID:         input.ResourceID,
			Name:               input.Body.Name,
			Severity:           input.Body.Severity,
			MaxWindKmh:         input.Body.MaxWindKmh,
			MaxPrecipitationMm: input.Body.MaxPrecipitationMm,
			MinVisibilityKm:    input.Body.MinVisibilityKm,
			AllowedConditions:  input.Body.AllowedConditions,
			SeasonStart:        deref(input.Body.SeasonStart),
			SeasonEnd:          deref(input.Body.SeasonEnd),
			MinAge:             input.Body.MinAge,
			RequiredCerts:      input.Body.RequiredCerts,
			ActorID:            actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body map[string]any `json:"body"`
		}{Body: map[string]any{
			"id":       rule.ID,
			"name":     rule.Name,
			"severity": rule.Severity,
			"active":   rule.Active,
		}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-rules",
		Method:      http.MethodGet,
		Path:        "/resources/{resource_id}/rules",
		Summary:     "List eligibility rules",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ResourceID string `path:"resource_id"`
		ActiveOnly bool   `query:"active"`
	}) (*struct {
		Body struct {
			Items []map[string]any `json:"items"`
		} `json:"body"`
	}, error) {
		if _, err := e.GetResource(ctx, input.ResourceID); err != nil {
			return nil, handleError(err)
		}
		rules, err := e.RulesForResource(ctx, input.ResourceID, input.ActiveOnly)
		if err != nil {
			return nil, handleError(err)
		}
		out := &struct {
			Body struct {
				Items []map[string]any `json:"items"`
			} `json:"body"`
		}{}
		for _, r := range rules {
			out.Body.Items = append(out.Body.Items, map[string]any{
				"id":       r.ID,
				"name":     r.Name,
				"severity": r.Severity,
				"active":   r.Active,
			})
		}
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-rule-active",
		Method:      http.MethodPatch,
		Path:        "/rules/{rule_id}",
		Summary:     "Enable or disable a rule",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		RuleID string `path:"rule_id"`
		Body   struct {
			Active bool `json:"active"`
		} `json:"body"`
	}) (*struct {
		Body map[string]any `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.SetRuleActive(ctx, input.RuleID, input.Body.Active, actorID); err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body map[string]any `json:"body"`
		}{Body: map[string]any{
			"id":     input.RuleID,
			"active": input.Body.Active,
		}}, nil
	})
}

func registerNotifications(api huma.API, e *engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-notifications",
		Method:      http.MethodGet,
		Path:        "/notifications",
		Summary:     "List notifications for a recipient",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Recipient string `query:"recipient"`
		Booking   string `query:"booking"`
		Unread    bool   `query:"unread"`
		Limit     int    `query:"limit"`
	}) (*struct {
		Body struct {
			Items []NotificationResponse `json:"items"`
		} `json:"body"`
	}, error) {
		limit := input.Limit
		if limit <= 0 {
			limit = 100
		}
		items, err := e.Notify.List(ctx, repo.NotificationFilters{
			Recipient: input.Recipient,
			BookingID: input.Booking,
			Unread:    input.Unread,
			Limit:     limit,
		})
		if err != nil {
			return nil, handleError(err)
		}
		out := &struct {
			Body struct {
				Items []NotificationResponse `json:"items"`
			} `json:"body"`
		}{}
		out.Body.Items = mapNotifications(items)
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "mark-notification-read",
		Method:        http.MethodPost,
		Path:          "/notifications/{notification_id}/read",
		Summary:       "Mark a notification read",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		NotificationID string `path:"notification_id"`
		Body           struct {
			Recipient string `json:"recipient"`
		} `json:"body"`
	}) (*struct{}, error) {
		if input.Body.Recipient == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "recipient is required", nil)
		}
		if err := e.Notify.MarkRead(ctx, input.NotificationID, input.Body.Recipient); err != nil {
			return nil, handleError(err)
		}
		return nil, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "mark-all-notifications-read",
		Method:        http.MethodPost,
		Path:          "/notifications/read-all",
		Summary:       "Mark all notifications read for a recipient",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Body struct {
			Recipient string `json:"recipient"`
		} `json:"body"`
	}) (*struct{}, error) {
		if input.Body.Recipient == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "recipient is required", nil)
		}
		if err := e.Notify.MarkAllRead(ctx, input.Body.Recipient); err != nil {
			return nil, handleError(err)
		}
		return nil, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "unread-count",
		Method:      http.MethodGet,
		Path:        "/notifications/unread-count",
		Summary:     "Unread notification count for a recipient",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Recipient string `query:"recipient" required:"true"`
	}) (*struct {
		Body map[string]int `json:"body"`
	}, error) {
		n, err := e.Notify.UnreadCount(ctx, input.Recipient)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body map[string]int `json:"body"`
		}{Body: map[string]int{"unread": n}}, nil
	})
}
