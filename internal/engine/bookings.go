package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"tideline/internal/domain"
	"tideline/internal/engine/eligibility"
	"tideline/internal/events"
	"tideline/internal/notify"
	"tideline/internal/repo"
)

// BookingCreateOptions are parameters for creating a booking.
type BookingCreateOptions struct {
	ID            string
	Title         string
	ResourceID    string
	Day           string // YYYY-MM-DD, derived from StartAt when empty
	StartAt       string // RFC3339 UTC
	EndAt         string // RFC3339 UTC
	SlotID        string
	Guests        int
	GuestAges     []int
	ClientName    string
	ClientContact string
	PartnerRef    string
	Crew          []string
	Weather       *domain.WeatherSnapshot
	Price         float64
	Notes         string
	Recipients    []string
	ActorID       string
}

// CreateBooking validates, conflict-checks and commits a booking. All checks
// and the insert run under the resource's write lock inside one transaction,
// so two racing requests for an overlapping window cannot both commit.
func (e *Engine) CreateBooking(ctx context.Context, opts BookingCreateOptions) (domain.Booking, error) {
	if opts.Title == "" {
		return domain.Booking{}, ValidationError{Field: "title", Detail: "required"}
	}
	if opts.ResourceID == "" {
		return domain.Booking{}, ValidationError{Field: "resource_id", Detail: "required"}
	}
	start, err := time.Parse(time.RFC3339, opts.StartAt)
	if err != nil {
		return domain.Booking{}, ValidationError{Field: "start_at", Detail: "must be RFC3339"}
	}
	end, err := time.Parse(time.RFC3339, opts.EndAt)
	if err != nil {
		return domain.Booking{}, ValidationError{Field: "end_at", Detail: "must be RFC3339"}
	}
	if !start.Before(end) {
		return domain.Booking{}, ValidationError{Field: "end_at", Detail: "must be after start_at"}
	}
	if opts.Guests <= 0 {
		return domain.Booking{}, ValidationError{Field: "guests", Detail: "must be positive"}
	}
	startAt := start.UTC().Format(time.RFC3339)
	endAt := end.UTC().Format(time.RFC3339)
	day := opts.Day
	if day == "" {
		day = start.UTC().Format("2006-01-02")
	}

	res, err := e.Repo.GetResource(ctx, opts.ResourceID)
	if err != nil {
		return domain.Booking{}, err
	}
	if res.Status == domain.ResourceMaintenance || res.Status == domain.ResourceOffline {
		return domain.Booking{}, ResourceUnavailableError{ResourceID: res.ID, Status: res.Status}
	}
	if opts.Guests > res.Capacity {
		return domain.Booking{}, ValidationError{Field: "guests", Detail: fmt.Sprintf("exceeds resource capacity %d", res.Capacity)}
	}

	rules, err := e.Repo.RulesForResource(ctx, opts.ResourceID, true)
	if err != nil {
		return domain.Booking{}, err
	}

	release, err := e.locks.acquire(opts.ResourceID, e.lockWait())
	if err != nil {
		return domain.Booking{}, err
	}
	defer release()

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Booking{}, err
	}
	defer tx.Rollback()

	conflicts, err := e.Repo.FindConflictsTx(ctx, tx, opts.ResourceID, startAt, endAt, "")
	if err != nil {
		return domain.Booking{}, err
	}
	if len(conflicts) > 0 {
		return domain.Booking{}, ConflictError{ResourceID: opts.ResourceID, CompetingBookingID: conflicts[0].ID}
	}
	if len(opts.Crew) > 0 {
		busy, err := e.Repo.CrewConflicts(ctx, tx, opts.Crew, startAt, endAt, opts.ResourceID)
		if err != nil {
			return domain.Booking{}, err
		}
		if len(busy) > 0 {
			return domain.Booking{}, CrewConflictError{CrewIDs: busy}
		}
	}

	price := opts.Price
	if opts.SlotID != "" {
		slot, err := e.Repo.GetSlotTx(ctx, tx, opts.SlotID)
		if err != nil {
			return domain.Booking{}, err
		}
		capMult, priceMult := e.seasonalMultipliers(ctx, slot.TemplateID, day)
		effCapacity := int(math.Floor(float64(slot.Capacity) * capMult))
		if err := e.Repo.ReserveSlot(ctx, tx, opts.SlotID, effCapacity); err != nil {
			return domain.Booking{}, err
		}
		if price == 0 && e.Config != nil {
			price = e.Config.Booking.DefaultPrice * slot.PriceMultiplier * priceMult
		}
	} else if price == 0 && e.Config != nil {
		price = e.Config.Booking.DefaultPrice
	}

	certs, err := e.Repo.CrewCerts(ctx, tx, opts.Crew)
	if err != nil {
		return domain.Booking{}, err
	}
	verdict := eligibility.Evaluate(rules, eligibility.Candidate{
		Day:       day,
		Weather:   opts.Weather,
		GuestAges: opts.GuestAges,
		CrewCerts: certs,
	})

	status := domain.BookingPending
	if e.Config != nil && e.Config.Booking.DefaultStatus == domain.BookingConfirmed && !verdict.Blocked() {
		status = domain.BookingConfirmed
	}

	now := e.nowRFC3339()
	id := opts.ID
	if id == "" {
		id = uuid.NewString()
	}
	b := domain.Booking{
		ID:            id,
		Title:         opts.Title,
		ResourceID:    res.ID,
		ResourceName:  res.Name,
		ClientName:    opts.ClientName,
		ClientContact: opts.ClientContact,
		Day:           day,
		StartAt:       startAt,
		EndAt:         endAt,
		Guests:        opts.Guests,
		GuestAges:     opts.GuestAges,
		Status:        status,
		Price:         price,
		Weather:       opts.Weather,
		Eligibility:   verdict.Verdict,
		Crew:          opts.Crew,
		Notes:         opts.Notes,
		CreatedAt:     now,
		CreatedBy:     opts.ActorID,
		UpdatedAt:     now,
	}
	if opts.PartnerRef != "" {
		b.PartnerRef = &opts.PartnerRef
	}
	if opts.SlotID != "" {
		slotID := opts.SlotID
		b.SlotID = &slotID
	}

	if err := e.Repo.InsertBooking(ctx, tx, b); err != nil {
		return domain.Booking{}, fmt.Errorf("insert booking: %w", err)
	}
	if len(opts.Crew) > 0 {
		if err := e.Repo.SetBookingCrew(ctx, tx, b.ID, opts.Crew); err != nil {
			return domain.Booking{}, err
		}
	}
	if res.Status == domain.ResourceAvailable {
		if err := e.Repo.UpdateResourceStatus(ctx, tx, res.ID, domain.ResourceBooked, now); err != nil {
			return domain.Booking{}, err
		}
	}
	payload := events.EventPayload{"status": b.Status, "start_at": b.StartAt, "end_at": b.EndAt, "eligibility": b.Eligibility}
	if err := e.Events.Append(ctx, tx, "booking.create", res.ID, "booking", b.ID, opts.ActorID, payload); err != nil {
		return domain.Booking{}, err
	}
	recipients := opts.Recipients
	if len(recipients) == 0 {
		recipients = e.defaultRecipients()
	}
	msg := fmt.Sprintf("booking %q on %s %s", b.Title, res.Name, b.Day)
	if _, err := e.Notify.Emit(ctx, tx, b, notify.ActionCreated, msg, recipients); err != nil {
		return domain.Booking{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Booking{}, err
	}
	return b, nil
}

// seasonalMultipliers looks up the template's override covering the day.
// Lookup failures fall back to 1.0; scaling never fails a booking by itself.
func (e *Engine) seasonalMultipliers(ctx context.Context, templateID, day string) (capMult, priceMult float64) {
	capMult, priceMult = 1.0, 1.0
	t, err := e.Repo.GetTemplate(ctx, templateID)
	if err != nil || len(day) != 10 {
		return capMult, priceMult
	}
	monthDay := day[5:]
	for _, o := range t.Overrides {
		if inWindow(monthDay, o.Starts, o.Ends) {
			return o.CapacityMultiplier, o.PriceMultiplier
		}
	}
	return capMult, priceMult
}

func inWindow(monthDay, start, end string) bool {
	if start <= end {
		return monthDay >= start && monthDay <= end
	}
	return monthDay >= start || monthDay <= end
}

// bookingTransitions is the allowed status machine.
var bookingTransitions = map[string][]string{
	domain.BookingPending:   {domain.BookingConfirmed, domain.BookingCancelled},
	domain.BookingConfirmed: {domain.BookingCompleted, domain.BookingCancelled},
}

func ensureBookingTransition(from, to string) error {
	for _, allowed := range bookingTransitions[from] {
		if allowed == to {
			return nil
		}
	}
	return InvalidTransitionError{Entity: "booking", From: from, To: to}
}

// UpdateBookingStatus moves a booking through its status machine.
// Confirmation re-evaluates eligibility against the stored weather snapshot
// and guest ages; a block-severity failure refuses it unless the actor holds
// an override role. Cancellation releases the slot seat and frees the
// resource when no other active booking remains.
func (e *Engine) UpdateBookingStatus(ctx context.Context, bookingID, newStatus, actorID string) (domain.Booking, error) {
	current, err := e.Repo.GetBooking(ctx, bookingID)
	if err != nil {
		return domain.Booking{}, err
	}

	release, err := e.locks.acquire(current.ResourceID, e.lockWait())
	if err != nil {
		return domain.Booking{}, err
	}
	defer release()

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Booking{}, err
	}
	defer tx.Rollback()

	b, err := e.Repo.GetBookingTx(ctx, tx, bookingID)
	if err != nil {
		return domain.Booking{}, err
	}
	b.Crew = current.Crew
	if err := ensureBookingTransition(b.Status, newStatus); err != nil {
		return domain.Booking{}, err
	}

	if newStatus == domain.BookingConfirmed {
		rules, err := e.Repo.RulesForResource(ctx, b.ResourceID, true)
		if err != nil {
			return domain.Booking{}, err
		}
		certs, err := e.Repo.CrewCerts(ctx, tx, b.Crew)
		if err != nil {
			return domain.Booking{}, err
		}
		verdict := eligibility.Evaluate(rules, eligibility.Candidate{
			Day:       b.Day,
			Weather:   b.Weather,
			GuestAges: b.GuestAges,
			CrewCerts: certs,
		})
		b.Eligibility = verdict.Verdict
		if verdict.Blocked() {
			allowed, err := e.actorMayOverride(ctx, actorID)
			if err != nil {
				return domain.Booking{}, err
			}
			if !allowed {
				return domain.Booking{}, EligibilityBlockedError{BookingID: b.ID, Reasons: blockedReasons(verdict.Reasons)}
			}
		}
	}

	now := e.nowRFC3339()
	b.Status = newStatus
	b.UpdatedAt = now
	b.UpdatedBy = actorID
	if err := e.Repo.UpdateBooking(ctx, tx, b); err != nil {
		return domain.Booking{}, err
	}

	action := notify.ActionUpdated
	if newStatus == domain.BookingCancelled {
		action = notify.ActionCancelled
		if b.SlotID != nil {
			if err := e.Repo.ReleaseSlot(ctx, tx, *b.SlotID); err != nil {
				return domain.Booking{}, err
			}
		}
	}
	if newStatus == domain.BookingCancelled || newStatus == domain.BookingCompleted {
		remaining, err := e.Repo.CountActiveBookings(ctx, tx, b.ResourceID)
		if err != nil {
			return domain.Booking{}, err
		}
		if remaining == 0 {
			res, err := e.Repo.GetResourceTx(ctx, tx, b.ResourceID)
			if err != nil {
				return domain.Booking{}, err
			}
			if res.Status == domain.ResourceBooked {
				if err := e.Repo.UpdateResourceStatus(ctx, tx, b.ResourceID, domain.ResourceAvailable, now); err != nil {
					return domain.Booking{}, err
				}
			}
		}
	}

	payload := events.EventPayload{"status": newStatus, "eligibility": b.Eligibility}
	if err := e.Events.Append(ctx, tx, "booking.status", b.ResourceID, "booking", b.ID, actorID, payload); err != nil {
		return domain.Booking{}, err
	}
	msg := fmt.Sprintf("booking %q %s", b.Title, newStatus)
	if _, err := e.Notify.Emit(ctx, tx, b, action, msg, e.defaultRecipients()); err != nil {
		return domain.Booking{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Booking{}, err
	}
	return b, nil
}

func blockedReasons(reasons []eligibility.Reason) []eligibility.Reason {
	var out []eligibility.Reason
	for _, r := range reasons {
		if r.Severity == domain.SeverityBlock {
			out = append(out, r)
		}
	}
	return out
}

func (e *Engine) actorMayOverride(ctx context.Context, actorID string) (bool, error) {
	if e.Config == nil || actorID == "" {
		return false, nil
	}
	return e.Repo.ActorHasRole(ctx, actorID, e.Config.RBAC.OverrideRoles)
}

// AppendBookingNote adds a timestamped note line to a booking.
func (e *Engine) AppendBookingNote(ctx context.Context, bookingID, note, actorID string) (domain.Booking, error) {
	if note == "" {
		return domain.Booking{}, ValidationError{Field: "note", Detail: "required"}
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Booking{}, err
	}
	defer tx.Rollback()

	b, err := e.Repo.GetBookingTx(ctx, tx, bookingID)
	if err != nil {
		return domain.Booking{}, err
	}
	now := e.nowRFC3339()
	line := fmt.Sprintf("[%s] %s", now, note)
	if b.Notes == "" {
		b.Notes = line
	} else {
		b.Notes = b.Notes + "\n" + line
	}
	b.UpdatedAt = now
	b.UpdatedBy = actorID
	if err := e.Repo.UpdateBooking(ctx, tx, b); err != nil {
		return domain.Booking{}, err
	}
	if err := e.Events.Append(ctx, tx, "booking.note", b.ResourceID, "booking", b.ID, actorID, events.EventPayload{}); err != nil {
		return domain.Booking{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Booking{}, err
	}
	return b, nil
}

// CheckConflicts reports active bookings overlapping a window without
// mutating anything.
func (e *Engine) CheckConflicts(ctx context.Context, resourceID, startAt, endAt string) ([]domain.Booking, error) {
	if _, err := time.Parse(time.RFC3339, startAt); err != nil {
		return nil, ValidationError{Field: "start_at", Detail: "must be RFC3339"}
	}
	if _, err := time.Parse(time.RFC3339, endAt); err != nil {
		return nil, ValidationError{Field: "end_at", Detail: "must be RFC3339"}
	}
	return e.Repo.FindConflicts(ctx, resourceID, startAt, endAt, "")
}

// GetBooking loads a booking with crew.
func (e *Engine) GetBooking(ctx context.Context, id string) (domain.Booking, error) {
	return e.Repo.GetBooking(ctx, id)
}

func (e *Engine) ListBookings(ctx context.Context, f repo.BookingFilters) ([]domain.Booking, error) {
	return e.Repo.ListBookings(ctx, f)
}

// EvaluateBooking re-runs eligibility for an existing booking without
// changing it.
func (e *Engine) EvaluateBooking(ctx context.Context, bookingID string) (eligibility.Result, error) {
	b, err := e.Repo.GetBooking(ctx, bookingID)
	if err != nil {
		return eligibility.Result{}, err
	}
	rules, err := e.Repo.RulesForResource(ctx, b.ResourceID, true)
	if err != nil {
		return eligibility.Result{}, err
	}
	certs, err := e.Repo.CrewCerts(ctx, nil, b.Crew)
	if err != nil {
		return eligibility.Result{}, err
	}
	return eligibility.Evaluate(rules, eligibility.Candidate{Day: b.Day, Weather: b.Weather, GuestAges: b.GuestAges, CrewCerts: certs}), nil
}

// BookingSnapshot decodes the booking JSON captured in a notification.
func BookingSnapshot(n domain.Notification) (domain.Booking, error) {
	var b domain.Booking
	if n.BookingJSON == "" {
		return b, fmt.Errorf("notification %s has no snapshot", n.ID)
	}
	err := json.Unmarshal([]byte(n.BookingJSON), &b)
	return b, err
}
