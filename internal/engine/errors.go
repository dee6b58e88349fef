package engine

import (
	"errors"
	"fmt"
	"strings"

	"tideline/internal/engine/eligibility"
)

// ErrBusy means the per-resource lock could not be acquired within the
// configured wait budget.
var ErrBusy = errors.New("resource busy, retry")

// ValidationError reports the first failed input check.
type ValidationError struct {
	Field  string
	Detail string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Detail)
}

// ConflictError means the requested window overlaps an active booking on the
// same resource.
type ConflictError struct {
	ResourceID         string
	CompetingBookingID string
}

func (e ConflictError) Error() string {
	return fmt.Sprintf("resource %s already booked in this window by %s", e.ResourceID, e.CompetingBookingID)
}

// EligibilityBlockedError means a block-severity rule refused confirmation.
type EligibilityBlockedError struct {
	BookingID string
	Reasons   []eligibility.Reason
}

func (e EligibilityBlockedError) Error() string {
	details := make([]string, 0, len(e.Reasons))
	for _, r := range e.Reasons {
		details = append(details, r.Detail)
	}
	return fmt.Sprintf("booking %s blocked by eligibility rules: %s", e.BookingID, strings.Join(details, "; "))
}

// InvalidTransitionError reports a status change outside the allowed machine.
type InvalidTransitionError struct {
	Entity string
	From   string
	To     string
}

func (e InvalidTransitionError) Error() string {
	return fmt.Sprintf("%s cannot move from %s to %s", e.Entity, e.From, e.To)
}

// ResourceUnavailableError means the resource is not in a bookable status.
type ResourceUnavailableError struct {
	ResourceID string
	Status     string
}

func (e ResourceUnavailableError) Error() string {
	return fmt.Sprintf("resource %s is %s", e.ResourceID, e.Status)
}

// CrewConflictError means assigned crew are already committed elsewhere in
// the window.
type CrewConflictError struct {
	CrewIDs []string
}

func (e CrewConflictError) Error() string {
	return "crew already committed in this window: " + strings.Join(e.CrewIDs, ", ")
}
