package care

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"kinhelp.org/internal/obs"
)

// AcceptRequest assigns a pending request to the acting volunteer. Of two concurrent accepts on
// the same request exactly one commits; the other receives *ConflictError.
// Only registered volunteers may accept; anyone else gets *NotFoundError and nothing is written.
func (s *Service) AcceptRequest(ctx context.Context, actor Actor, id string) (HelpRequest, error) {
	if actor.Role != RoleVolunteer {
		return HelpRequest{}, &ForbiddenError{Role: actor.Role, Action: "accept help requests"}
	}
	if strings.TrimSpace(actor.ID) == "" {
		return HelpRequest{}, invalid("volunteer_id", "is required")
	}
	if _, err := s.store.Volunteers().Get(ctx, actor.ID); err != nil {
		return HelpRequest{}, err
	}
	return s.assign(ctx, actor, id, actor.ID)
}

// AssignRequest lets an admin bind a pending request to a registered volunteer.
// Unknown volunteers are *NotFoundError; a request that is no longer pending is *ConflictError.
func (s *Service) AssignRequest(ctx context.Context, actor Actor, id, volunteerID string) (HelpRequest, error) {
	if actor.Role != RoleAdmin {
		return HelpRequest{}, &ForbiddenError{Role: actor.Role, Action: "assign help requests"}
	}
	volunteerID = strings.TrimSpace(volunteerID)
	if volunteerID == "" {
		return HelpRequest{}, invalid("volunteer_id", "is required")
	}
	if _, err := s.store.Volunteers().Get(ctx, volunteerID); err != nil {
		return HelpRequest{}, err
	}
	return s.assign(ctx, actor, id, volunteerID)
}

func (s *Service) assign(ctx context.Context, actor Actor, id, volunteerID string) (HelpRequest, error) {
	cur, err := s.liveHelp(ctx, id)
	if err != nil {
		return HelpRequest{}, err
	}
	next, err := ApplyHelp(cur, HelpTransition{To: HelpActive, Actor: actor, AssignedTo: volunteerID}, s.now())
	if err != nil {
		return HelpRequest{}, conflictAware(KindHelpRequest, err)
	}
	if err := s.store.HelpRequests().Swap(ctx, next, cur.Status); err != nil {
		return HelpRequest{}, conflictAware(KindHelpRequest, err)
	}
	s.committed(ctx, Transition{Kind: KindHelpRequest, ID: next.ID, From: string(cur.Status), To: string(HelpActive), Actor: actor})
	if _, err := s.store.Volunteers().AdjustLoad(ctx, volunteerID, 1, next.UpdatedAt); err != nil {
		obs.Logger().Error("volunteer_load_failed", zap.String("volunteer_id", volunteerID), zap.Int("delta", 1), zap.Error(err))
	}
	return next, s.emit(ctx, Event{Type: EventHelpAccepted, Actor: actor, Help: &next}, next.ID)
}

// UnassignRequest returns an active request to pending (assignee declining, or admin
// reassignment) and releases the volunteer's slot.
func (s *Service) UnassignRequest(ctx context.Context, actor Actor, id string) (HelpRequest, error) {
	cur, err := s.liveHelp(ctx, id)
	if err != nil {
		return HelpRequest{}, err
	}
	next, err := ApplyHelp(cur, HelpTransition{To: HelpPending, Actor: actor}, s.now())
	if err != nil {
		return HelpRequest{}, err
	}
	if err := s.store.HelpRequests().Swap(ctx, next, cur.Status); err != nil {
		return HelpRequest{}, conflictAware(KindHelpRequest, err)
	}
	s.committed(ctx, Transition{Kind: KindHelpRequest, ID: next.ID, From: string(cur.Status), To: string(HelpPending), Actor: actor})
	s.releaseLoad(ctx, cur.Assignee(), next.UpdatedAt)
	return next, s.emit(ctx, Event{Type: EventHelpUnassigned, Actor: actor, Help: &next}, next.ID)
}

// releaseLoad decrements the workload counter. The counter is not transactional with the
// request; a failure is logged and leaves the counter high until the next adjustment.
func (s *Service) releaseLoad(ctx context.Context, volunteerID string, at time.Time) {
	if volunteerID == "" {
		return
	}
	if _, err := s.store.Volunteers().AdjustLoad(ctx, volunteerID, -1, at); err != nil && !errors.Is(err, ErrNotFound) {
		obs.Logger().Error("volunteer_load_failed", zap.String("volunteer_id", volunteerID), zap.Int("delta", -1), zap.Error(err))
	}
}

// RegisterVolunteer adds a volunteer directly (admin only). Registering twice returns the
// existing record.
func (s *Service) RegisterVolunteer(ctx context.Context, actor Actor, volunteerID string) (Volunteer, error) {
	if actor.Role != RoleAdmin {
		return Volunteer{}, &ForbiddenError{Role: actor.Role, Action: "register volunteers"}
	}
	volunteerID = strings.TrimSpace(volunteerID)
	if volunteerID == "" {
		return Volunteer{}, invalid("volunteer_id", "is required")
	}
	now := s.now()
	return s.store.Volunteers().Ensure(ctx, Volunteer{ID: volunteerID, CreatedAt: now, UpdatedAt: now})
}

// GetVolunteer is readable by the volunteer themself, caregivers and admins.
func (s *Service) GetVolunteer(ctx context.Context, actor Actor, volunteerID string) (Volunteer, error) {
	switch actor.Role {
	case RoleAdmin, RoleCaregiver:
	case RoleVolunteer:
		if actor.ID != volunteerID {
			return Volunteer{}, &ForbiddenError{Role: actor.Role, Action: "read another volunteer"}
		}
	default:
		return Volunteer{}, &ForbiddenError{Role: actor.Role, Action: "read volunteers"}
	}
	return s.store.Volunteers().Get(ctx, volunteerID)
}
