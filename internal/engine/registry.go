package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"tideline/internal/domain"
	"tideline/internal/events"
	"tideline/internal/repo"
)

// ResourceCreateOptions are parameters for registering a resource.
type ResourceCreateOptions struct {
	ID       string
	Name     string
	Type     string
	Capacity int
	Location string
	Crew     []string
	ActorID  string
}

var resourceTypes = map[string]bool{
	"boat": true, "helicopter": true, "buggy": true, "staff": true, "other": true,
}

func (e *Engine) CreateResource(ctx context.Context, opts ResourceCreateOptions) (domain.Resource, error) {
	if opts.Name == "" {
		return domain.Resource{}, ValidationError{Field: "name", Detail: "required"}
	}
	if !resourceTypes[opts.Type] {
		return domain.Resource{}, ValidationError{Field: "type", Detail: fmt.Sprintf("unknown type %q", opts.Type)}
	}
	if opts.Capacity <= 0 {
		return domain.Resource{}, ValidationError{Field: "capacity", Detail: "must be positive"}
	}
	now := e.nowRFC3339()
	id := opts.ID
	if id == "" {
		id = uuid.NewString()
	}
	res := domain.Resource{
		ID:        id,
		Name:      opts.Name,
		Type:      opts.Type,
		Capacity:  opts.Capacity,
		Status:    domain.ResourceAvailable,
		Location:  opts.Location,
		Crew:      opts.Crew,
		CreatedAt: now,
		UpdatedAt: now,
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Resource{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertResource(ctx, tx, res); err != nil {
		return domain.Resource{}, fmt.Errorf("insert resource: %w", err)
	}
	if len(opts.Crew) > 0 {
		if err := e.Repo.SetResourceCrew(ctx, tx, res.ID, opts.Crew); err != nil {
			return domain.Resource{}, err
		}
	}
	if err := e.Events.Append(ctx, tx, "resource.create", res.ID, "resource", res.ID, opts.ActorID, events.EventPayload{"type": res.Type, "status": res.Status}); err != nil {
		return domain.Resource{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Resource{}, err
	}
	return res, nil
}

// resourceTransitions is the allowed status machine. booked is entered and
// left by the booking ledger, not by hand; manual moves go through available.
var resourceTransitions = map[string][]string{
	domain.ResourceAvailable:   {domain.ResourceMaintenance, domain.ResourceOffline},
	domain.ResourceBooked:      {domain.ResourceAvailable},
	domain.ResourceMaintenance: {domain.ResourceAvailable},
	domain.ResourceOffline:     {domain.ResourceAvailable},
}

func ensureResourceTransition(from, to string) error {
	for _, allowed := range resourceTransitions[from] {
		if allowed == to {
			return nil
		}
	}
	return InvalidTransitionError{Entity: "resource", From: from, To: to}
}

// SetResourceStatus applies a manual status change. A booked resource with
// active bookings cannot be forced back to available.
func (e *Engine) SetResourceStatus(ctx context.Context, resourceID, status, actorID string) (domain.Resource, error) {
	release, err := e.locks.acquire(resourceID, e.lockWait())
	if err != nil {
		return domain.Resource{}, err
	}
	defer release()

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Resource{}, err
	}
	defer tx.Rollback()

	res, err := e.Repo.GetResourceTx(ctx, tx, resourceID)
	if err != nil {
		return domain.Resource{}, err
	}
	if err := ensureResourceTransition(res.Status, status); err != nil {
		return domain.Resource{}, err
	}
	if res.Status == domain.ResourceBooked && status == domain.ResourceAvailable {
		active, err := e.Repo.CountActiveBookings(ctx, tx, resourceID)
		if err != nil {
			return domain.Resource{}, err
		}
		if active > 0 {
			return domain.Resource{}, ValidationError{Field: "status", Detail: fmt.Sprintf("%d active bookings remain", active)}
		}
	}
	now := e.nowRFC3339()
	if err := e.Repo.UpdateResourceStatus(ctx, tx, resourceID, status, now); err != nil {
		return domain.Resource{}, err
	}
	if err := e.Events.Append(ctx, tx, "resource.status", resourceID, "resource", resourceID, actorID, events.EventPayload{"status": status, "previous": res.Status}); err != nil {
		return domain.Resource{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Resource{}, err
	}
	res.Status = status
	res.UpdatedAt = now
	return res, nil
}

func (e *Engine) GetResource(ctx context.Context, id string) (domain.Resource, error) {
	return e.Repo.GetResource(ctx, id)
}

func (e *Engine) ListResources(ctx context.Context, f repo.ResourceFilters) ([]domain.Resource, error) {
	return e.Repo.ListResources(ctx, f)
}

// AssignCrew replaces a resource's standing crew. Crew already committed to
// overlapping bookings on other resources in the given window are refused.
func (e *Engine) AssignCrew(ctx context.Context, resourceID string, crewIDs []string, startAt, endAt, actorID string) (domain.Resource, error) {
	res, err := e.Repo.GetResource(ctx, resourceID)
	if err != nil {
		return domain.Resource{}, err
	}
	for _, id := range crewIDs {
		if _, err := e.Repo.GetCrewMember(ctx, id); err != nil {
			if err == repo.ErrNotFound {
				return domain.Resource{}, ValidationError{Field: "crew", Detail: fmt.Sprintf("unknown crew member %s", id)}
			}
			return domain.Resource{}, err
		}
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Resource{}, err
	}
	defer tx.Rollback()
	if startAt != "" && endAt != "" {
		busy, err := e.Repo.CrewConflicts(ctx, tx, crewIDs, startAt, endAt, resourceID)
		if err != nil {
			return domain.Resource{}, err
		}
		if len(busy) > 0 {
			return domain.Resource{}, CrewConflictError{CrewIDs: busy}
		}
	}
	if err := e.Repo.SetResourceCrew(ctx, tx, resourceID, crewIDs); err != nil {
		return domain.Resource{}, err
	}
	if err := e.Events.Append(ctx, tx, "resource.crew", resourceID, "resource", resourceID, actorID, events.EventPayload{"crew": crewIDs}); err != nil {
		return domain.Resource{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Resource{}, err
	}
	res.Crew = crewIDs
	return res, nil
}

// CreateCrewMember registers a staff member with certifications.
func (e *Engine) CreateCrewMember(ctx context.Context, id, name string, certs []string) (domain.CrewMember, error) {
	if name == "" {
		return domain.CrewMember{}, ValidationError{Field: "name", Detail: "required"}
	}
	if id == "" {
		id = uuid.NewString()
	}
	m := domain.CrewMember{
		ID:        id,
		Name:      name,
		Certs:     certs,
		CreatedAt: e.now().UTC().Format(time.RFC3339),
	}
	if err := e.Repo.InsertCrewMember(ctx, m); err != nil {
		return domain.CrewMember{}, err
	}
	return m, nil
}
