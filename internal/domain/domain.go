package domain

const (
	ResourceAvailable   = "available"
	ResourceBooked      = "booked"
	ResourceMaintenance = "maintenance"
	ResourceOffline     = "offline"

	BookingPending   = "pending"
	BookingConfirmed = "confirmed"
	BookingCompleted = "completed"
	BookingCancelled = "cancelled"

	SlotActive    = "active"
	SlotBlocked   = "blocked"
	SlotCancelled = "cancelled"

	SeverityWarning = "warning"
	SeverityBlock   = "block"
)

// Resource is a bookable asset (boat, helicopter, buggy) or staff unit.
type Resource struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Type      string   `json:"type" enum:"boat,helicopter,buggy,staff,other"`
	Capacity  int      `json:"capacity"`
	Status    string   `json:"status" enum:"available,booked,maintenance,offline"`
	Location  string   `json:"location,omitempty"`
	Crew      []string `json:"crew,omitempty"`
	CreatedAt string   `json:"created_at" format:"date-time"`
	UpdatedAt string   `json:"updated_at" format:"date-time"`
}

// ScheduleTemplate defines recurring availability for one resource.
// Weekdays is a bitmask with Monday=1<<0 through Sunday=1<<6.
type ScheduleTemplate struct {
	ID            string             `json:"id"`
	ResourceID    string             `json:"resource_id"`
	Weekdays      int                `json:"weekdays"`
	Slots         []TimeSlot         `json:"slots,omitempty"`
	BlackoutDates []string           `json:"blackout_dates,omitempty"`
	Overrides     []SeasonalOverride `json:"overrides,omitempty"`
	CreatedAt     string             `json:"created_at" format:"date-time"`
}

type TimeSlot struct {
	ID              string  `json:"id"`
	TemplateID      string  `json:"template_id"`
	StartTime       string  `json:"start_time"`
	DurationMin     int     `json:"duration_min"`
	Capacity        int     `json:"capacity"`
	PriceMultiplier float64 `json:"price_multiplier"`
	Status          string  `json:"status" enum:"active,blocked,cancelled"`
	BookedCount     int     `json:"booked_count"`
}

// SeasonalOverride scales slot capacity and price inside a month-day window.
// Starts/Ends are "MM-DD"; a window may wrap the year end (e.g. 11-01..03-31).
type SeasonalOverride struct {
	ID                 string  `json:"id"`
	TemplateID         string  `json:"template_id"`
	Starts             string  `json:"starts"`
	Ends               string  `json:"ends"`
	CapacityMultiplier float64 `json:"capacity_multiplier"`
	PriceMultiplier    float64 `json:"price_multiplier"`
}

// WeatherSnapshot is the weather captured at booking creation. Fields are
// pointers so a missing reading is distinguishable from zero.
type WeatherSnapshot struct {
	WindKmh         *float64 `json:"wind_kmh,omitempty"`
	PrecipitationMm *float64 `json:"precipitation_mm,omitempty"`
	VisibilityKm    *float64 `json:"visibility_km,omitempty"`
	Condition       string   `json:"condition,omitempty"`
	CapturedAt      string   `json:"captured_at,omitempty" format:"date-time"`
}

type Booking struct {
	ID            string           `json:"id"`
	Title         string           `json:"title"`
	ResourceID    string           `json:"resource_id"`
	ResourceName  string           `json:"resource_name,omitempty"`
	ClientName    string           `json:"client_name,omitempty"`
	ClientContact string           `json:"client_contact,omitempty"`
	PartnerRef    *string          `json:"partner_ref,omitempty"`
	Day           string           `json:"day"`
	StartAt       string           `json:"start_at" format:"date-time"`
	EndAt         string           `json:"end_at" format:"date-time"`
	SlotID        *string          `json:"slot_id,omitempty"`
	Guests        int              `json:"guests"`
	GuestAges     []int            `json:"guest_ages,omitempty"`
	Status        string           `json:"status" enum:"pending,confirmed,completed,cancelled"`
	Price         float64          `json:"price,omitempty"`
	Weather       *WeatherSnapshot `json:"weather,omitempty"`
	Eligibility   string           `json:"eligibility,omitempty" enum:"eligible,warn,blocked"`
	Crew          []string         `json:"crew,omitempty"`
	Notes         string           `json:"notes,omitempty"`
	CreatedAt     string           `json:"created_at" format:"date-time"`
	CreatedBy     string           `json:"created_by"`
	UpdatedAt     string           `json:"updated_at" format:"date-time"`
	UpdatedBy     string           `json:"updated_by,omitempty"`
}

// EligibilityRule gates booking confirmation for a resource. Numeric limits
// are non-strict: actual <= max passes, actual >= min passes. Severity
// "block" refuses confirmation; "warning" flags it for review.
type EligibilityRule struct {
	ID                 string   `json:"id"`
	ResourceID         string   `json:"resource_id"`
	Name               string   `json:"name"`
	Severity           string   `json:"severity" enum:"warning,block"`
	MaxWindKmh         *float64 `json:"max_wind_kmh,omitempty"`
	MaxPrecipitationMm *float64 `json:"max_precipitation_mm,omitempty"`
	MinVisibilityKm    *float64 `json:"min_visibility_km,omitempty"`
	AllowedConditions  []string `json:"allowed_conditions,omitempty"`
	SeasonStart        string   `json:"season_start,omitempty"`
	SeasonEnd          string   `json:"season_end,omitempty"`
	MinAge             *int     `json:"min_age,omitempty"`
	RequiredCerts      []string `json:"required_certs,omitempty"`
	Active             bool     `json:"active"`
	CreatedAt          string   `json:"created_at" format:"date-time"`
}

// Notification records a booking lifecycle transition for a recipient set.
// Seq is monotonic per booking, in commit order. BookingJSON is the booking
// snapshot at emission time, kept even if the booking later changes.
type Notification struct {
	ID          string                  `json:"id"`
	Seq         int64                   `json:"seq"`
	BookingID   string                  `json:"booking_id"`
	Action      string                  `json:"action" enum:"created,updated,cancelled"`
	Message     string                  `json:"message"`
	BookingJSON string                  `json:"booking_json,omitempty"`
	Recipients  []NotificationRecipient `json:"recipients,omitempty"`
	CreatedAt   string                  `json:"created_at" format:"date-time"`
}

type NotificationRecipient struct {
	Recipient string  `json:"recipient"`
	Read      bool    `json:"read"`
	ReadAt    *string `json:"read_at,omitempty" format:"date-time"`
}

// CrewMember is a staff unit that can be assigned to resources and bookings.
type CrewMember struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Certs     []string `json:"certs,omitempty"`
	CreatedAt string   `json:"created_at" format:"date-time"`
}

// Event is an append-only ledger delta. ID is the sync token: pulling events
// with id greater than the last seen token yields everything since.
type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	ResourceID string `json:"resource_id,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

type APIKey struct {
	ID        string `json:"id"`
	ActorID   string `json:"actor_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash"`
	CreatedAt string `json:"created_at" format:"date-time"`
}
