package server

import (
	"tideline/internal/domain"
	"tideline/internal/engine"
)

// Request payloads

type CreateResourceRequest struct {
	ID       *string  `json:"id,omitempty"`
	Name     string   `json:"name"`
	Type     string   `json:"type" enum:"boat,helicopter,buggy,staff,other"`
	Capacity int      `json:"capacity"`
	Location *string  `json:"location,omitempty"`
	Crew     []string `json:"crew,omitempty"`
}

type SetResourceStatusRequest struct {
	Status string `json:"status" enum:"available,booked,maintenance,offline"`
}

type AssignCrewRequest struct {
	Crew    []string `json:"crew"`
	StartAt *string  `json:"start_at,omitempty"`
	EndAt   *string  `json:"end_at,omitempty"`
}

type SlotRequest struct {
	StartTime       string   `json:"start_time"`
	DurationMin     int      `json:"duration_min"`
	Capacity        int      `json:"capacity"`
	PriceMultiplier *float64 `json:"price_multiplier,omitempty"`
}

type OverrideRequest struct {
	Starts             string   `json:"starts"`
	Ends               string   `json:"ends"`
	CapacityMultiplier *float64 `json:"capacity_multiplier,omitempty"`
	PriceMultiplier    *float64 `json:"price_multiplier,omitempty"`
}

type CreateTemplateRequest struct {
	ID            *string           `json:"id,omitempty"`
	Weekdays      int               `json:"weekdays"`
	Slots         []SlotRequest     `json:"slots"`
	BlackoutDates []string          `json:"blackout_dates,omitempty"`
	Overrides     []OverrideRequest `json:"overrides,omitempty"`
}

type SetSlotStatusRequest struct {
	Status string  `json:"status" enum:"active,blocked,cancelled"`
	Reason *string `json:"reason,omitempty"`
}

type WeatherRequest struct {
	WindKmh         *float64 `json:"wind_kmh,omitempty"`
	PrecipitationMm *float64 `json:"precipitation_mm,omitempty"`
	VisibilityKm    *float64 `json:"visibility_km,omitempty"`
	Condition       *string  `json:"condition,omitempty"`
}

type CreateBookingRequest struct {
	ID            *string         `json:"id,omitempty"`
	Title         string          `json:"title"`
	ResourceID    string          `json:"resource_id"`
	StartAt       string          `json:"start_at"`
	EndAt         string          `json:"end_at"`
	SlotID        *string         `json:"slot_id,omitempty"`
	Guests        int             `json:"guests"`
	GuestAges     []int           `json:"guest_ages,omitempty"`
	ClientName    *string         `json:"client_name,omitempty"`
	ClientContact *string         `json:"client_contact,omitempty"`
	PartnerRef    *string         `json:"partner_ref,omitempty"`
	Crew          []string        `json:"crew,omitempty"`
	Weather       *WeatherRequest `json:"weather,omitempty"`
	Price         *float64        `json:"price,omitempty"`
	Notes         *string         `json:"notes,omitempty"`
	Recipients    []string        `json:"recipients,omitempty"`
}

type SetBookingStatusRequest struct {
	Status string `json:"status" enum:"confirmed,completed,cancelled"`
}

type AppendNoteRequest struct {
	Note string `json:"note"`
}

type CreateRuleRequest struct {
	ID                 *string  `json:"id,omitempty"`
	Name               string   `json:"name"`
	Severity           string   `json:"severity,omitempty" enum:"warning,block"`
	MaxWindKmh         *float64 `json:"max_wind_kmh,omitempty"`
	MaxPrecipitationMm *float64 `json:"max_precipitation_mm,omitempty"`
	MinVisibilityKm    *float64 `json:"min_visibility_km,omitempty"`
	AllowedConditions  []string `json:"allowed_conditions,omitempty"`
	SeasonStart        *string  `json:"season_start,omitempty"`
	SeasonEnd          *string  `json:"season_end,omitempty"`
	MinAge             *int     `json:"min_age,omitempty"`
	RequiredCerts      []string `json:"required_certs,omitempty"`
}

type CreateCrewMemberRequest struct {
	ID    *string  `json:"id,omitempty"`
	Name  string   `json:"name"`
	Certs []string `json:"certs,omitempty"`
}

type CreateAPIKeyRequest struct {
	ActorID string  `json:"actor_id"`
	Name    *string `json:"name,omitempty"`
}

type AssignRoleRequest struct {
	Role string `json:"role"`
}

type DevLoginRequest struct {
	ActorID string   `json:"actor_id"`
	Roles   []string `json:"roles,omitempty"`
}

type DevLoginResponse struct {
	Token string `json:"token"`
}

// Response payloads

type ResourceResponse struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Type      string   `json:"type"`
	Capacity  int      `json:"capacity"`
	Status    string   `json:"status"`
	Location  string   `json:"location,omitempty"`
	Crew      []string `json:"crew,omitempty"`
	CreatedAt string   `json:"created_at"`
	UpdatedAt string   `json:"updated_at"`
}

func resourceResponse(r domain.Resource) ResourceResponse {
	return ResourceResponse{
		ID:        r.ID,
		Name:      r.Name,
		Type:      r.Type,
		Capacity:  r.Capacity,
		Status:    r.Status,
		Location:  r.Location,
		Crew:      r.Crew,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

func mapResources(items []domain.Resource) []ResourceResponse {
	out := make([]ResourceResponse, 0, len(items))
	for _, it := range items {
		out = append(out, resourceResponse(it))
	}
	return out
}

type BookingResponse struct {
	ID            string                  `json:"id"`
	Title         string                  `json:"title"`
	ResourceID    string                  `json:"resource_id"`
	ResourceName  string                  `json:"resource_name,omitempty"`
	ClientName    string                  `json:"client_name,omitempty"`
	ClientContact string                  `json:"client_contact,omitempty"`
	PartnerRef    *string                 `json:"partner_ref,omitempty"`
	Day           string                  `json:"day"`
	StartAt       string                  `json:"start_at"`
	EndAt         string                  `json:"end_at"`
	SlotID        *string                 `json:"slot_id,omitempty"`
	Guests        int                     `json:"guests"`
	GuestAges     []int                   `json:"guest_ages,omitempty"`
	Status        string                  `json:"status"`
	Price         float64                 `json:"price,omitempty"`
	Weather       *domain.WeatherSnapshot `json:"weather,omitempty"`
	Eligibility   string                  `json:"eligibility,omitempty"`
	Crew          []string                `json:"crew,omitempty"`
	Notes         string                  `json:"notes,omitempty"`
	CreatedAt     string                  `json:"created_at"`
	CreatedBy     string                  `json:"created_by"`
	UpdatedAt     string                  `json:"updated_at"`
	UpdatedBy     string                  `json:"updated_by,omitempty"`
}

func bookingResponse(b domain.Booking) BookingResponse {
	return BookingResponse{
		ID:            b.ID,
		Title:         b.Title,
		ResourceID:    b.ResourceID,
		ResourceName:  b.ResourceName,
		ClientName:    b.ClientName,
		ClientContact: b.ClientContact,
		PartnerRef:    b.PartnerRef,
		Day:           b.Day,
		StartAt:       b.StartAt,
		EndAt:         b.EndAt,
		SlotID:        b.SlotID,
		Guests:        b.Guests,
		GuestAges:     b.GuestAges,
		Status:        b.Status,
		Price:         b.Price,
		Weather:       b.Weather,
		Eligibility:   b.Eligibility,
		Crew:          b.Crew,
		Notes:         b.Notes,
		CreatedAt:     b.CreatedAt,
		CreatedBy:     b.CreatedBy,
		UpdatedAt:     b.UpdatedAt,
		UpdatedBy:     b.UpdatedBy,
	}
}

func mapBookings(items []domain.Booking) []BookingResponse {
	out := make([]BookingResponse, 0, len(items))
	for _, it := range items {
		out = append(out, bookingResponse(it))
	}
	return out
}

type TemplateResponse struct {
	ID            string                    `json:"id"`
	ResourceID    string                    `json:"resource_id"`
	Weekdays      int                       `json:"weekdays"`
	Slots         []domain.TimeSlot         `json:"slots,omitempty"`
	BlackoutDates []string                  `json:"blackout_dates,omitempty"`
	Overrides     []domain.SeasonalOverride `json:"overrides,omitempty"`
	CreatedAt     string                    `json:"created_at"`
}

func templateResponse(t domain.ScheduleTemplate) TemplateResponse {
	return TemplateResponse{
		ID:            t.ID,
		ResourceID:    t.ResourceID,
		Weekdays:      t.Weekdays,
		Slots:         t.Slots,
		BlackoutDates: t.BlackoutDates,
		Overrides:     t.Overrides,
		CreatedAt:     t.CreatedAt,
	}
}

func weatherFromRequest(w *WeatherRequest) *domain.WeatherSnapshot {
	if w == nil {
		return nil
	}
	snap := &domain.WeatherSnapshot{
		WindKmh:         w.WindKmh,
		PrecipitationMm: w.PrecipitationMm,
		VisibilityKm:    w.VisibilityKm,
	}
	if w.Condition != nil {
		snap.Condition = *w.Condition
	}
	return snap
}

type AvailabilityResponse struct {
	ResourceID string                    `json:"resource_id"`
	Day        string                    `json:"day"`
	Items      []engine.SlotAvailability `json:"items"`
}

type NotificationResponse struct {
	ID         string                         `json:"id"`
	Seq        int64                          `json:"seq"`
	BookingID  string                         `json:"booking_id"`
	Action     string                         `json:"action"`
	Message    string                         `json:"message"`
	Booking    string                         `json:"booking_json,omitempty"`
	Recipients []domain.NotificationRecipient `json:"recipients,omitempty"`
	CreatedAt  string                         `json:"created_at"`
}

func notificationResponse(n domain.Notification) NotificationResponse {
	return NotificationResponse{
		ID:         n.ID,
		Seq:        n.Seq,
		BookingID:  n.BookingID,
		Action:     n.Action,
		Message:    n.Message,
		Booking:    n.BookingJSON,
		Recipients: n.Recipients,
		CreatedAt:  n.CreatedAt,
	}
}

func mapNotifications(items []domain.Notification) []NotificationResponse {
	out := make([]NotificationResponse, 0, len(items))
	for _, it := range items {
		out = append(out, notificationResponse(it))
	}
	return out
}

func deref(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
