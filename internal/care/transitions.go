package care

import (
	"strings"
	"time"
)

// HelpTransition requests a status change on a help request.
//   - To == HelpActive assigns AssignedTo (accept by the volunteer, or admin on their behalf).
//   - To == HelpPending from active is an unassign.
//   - To == HelpCompleted closes the request.
type HelpTransition struct {
	To         HelpStatus
	Actor      Actor
	AssignedTo string
}

// ApplyHelp validates t against cur and returns the next record. It does not touch storage.
func ApplyHelp(cur HelpRequest, t HelpTransition, now time.Time) (HelpRequest, error) {
	next := cur
	next.UpdatedAt = laterOf(cur.UpdatedAt, now)
	illegal := &InvalidTransitionError{Kind: KindHelpRequest, ID: cur.ID, From: string(cur.Status), To: string(t.To)}

	if cur.Status == HelpCompleted {
		return HelpRequest{}, illegal
	}

	switch t.To {
	case HelpActive:
		switch t.Actor.Role {
		case RoleVolunteer:
			if t.AssignedTo != "" && t.AssignedTo != t.Actor.ID {
				return HelpRequest{}, &ForbiddenError{Role: t.Actor.Role, Action: "accept on behalf of another volunteer"}
			}
			t.AssignedTo = t.Actor.ID
		case RoleAdmin:
		default:
			return HelpRequest{}, &ForbiddenError{Role: t.Actor.Role, Action: "accept help requests"}
		}
		if strings.TrimSpace(t.AssignedTo) == "" {
			return HelpRequest{}, invalid("assigned_to", "is required")
		}
		if cur.Status != HelpPending {
			return HelpRequest{}, &ConflictError{Kind: KindHelpRequest, ID: cur.ID, Expected: string(HelpPending), Actual: string(cur.Status)}
		}
		next.Status = HelpActive
		next.AssignedTo = strPtr(t.AssignedTo)
		next.AcceptedAt = timePtr(next.UpdatedAt)
		return next, nil

	case HelpCompleted:
		if cur.Status != HelpActive || cur.AssignedTo == nil {
			return HelpRequest{}, illegal
		}
		if !isAdminOrAssignee(t.Actor, cur) {
			return HelpRequest{}, &ForbiddenError{Role: t.Actor.Role, Action: "complete a request assigned to someone else"}
		}
		next.Status = HelpCompleted
		next.CompletedAt = timePtr(next.UpdatedAt)
		return next, nil

	case HelpPending:
		if cur.Status != HelpActive {
			return HelpRequest{}, illegal
		}
		if !isAdminOrAssignee(t.Actor, cur) {
			return HelpRequest{}, &ForbiddenError{Role: t.Actor.Role, Action: "unassign a request assigned to someone else"}
		}
		next.Status = HelpPending
		next.AssignedTo = nil
		return next, nil
	}
	return HelpRequest{}, illegal
}

func isAdminOrAssignee(a Actor, r HelpRequest) bool {
	if a.Role == RoleAdmin {
		return true
	}
	return a.Role == RoleVolunteer && a.ID != "" && a.ID == r.Assignee()
}

// SOSTransition requests a status change on an SOS alert.
type SOSTransition struct {
	To     SOSStatus
	Actor  Actor
	Reason string
}

// ApplySOS validates t against cur and returns the next alert. Resolved alerts are locked.
func ApplySOS(cur SOSAlert, t SOSTransition, now time.Time) (SOSAlert, error) {
	next := cur
	next.UpdatedAt = laterOf(cur.UpdatedAt, now)
	illegal := &InvalidTransitionError{Kind: KindSOSAlert, ID: cur.ID, From: string(cur.Status), To: string(t.To)}

	if cur.Status == SOSResolved {
		return SOSAlert{}, illegal
	}

	switch t.To {
	case SOSAcknowledged:
		if cur.Status != SOSActive {
			return SOSAlert{}, illegal
		}
		if !isResponder(t.Actor) {
			return SOSAlert{}, &ForbiddenError{Role: t.Actor.Role, Action: "acknowledge SOS alerts"}
		}
		next.Status = SOSAcknowledged
		next.AcknowledgedBy = t.Actor.ID
		return next, nil

	case SOSEscalated:
		if cur.Status != SOSActive && cur.Status != SOSAcknowledged {
			return SOSAlert{}, illegal
		}
		if t.Actor.Role != RoleAdmin {
			return SOSAlert{}, &ForbiddenError{Role: t.Actor.Role, Action: "escalate SOS alerts"}
		}
		reason := strings.TrimSpace(t.Reason)
		if reason == "" {
			return SOSAlert{}, invalid("reason", "is required to escalate")
		}
		next.Status = SOSEscalated
		next.EscalatedBy = t.Actor.ID
		next.EscalationReason = reason
		return next, nil

	case SOSResolved:
		if !isResponder(t.Actor) {
			return SOSAlert{}, &ForbiddenError{Role: t.Actor.Role, Action: "resolve SOS alerts"}
		}
		next.Status = SOSResolved
		next.ResolvedBy = t.Actor.ID
		next.ResolvedAt = timePtr(next.UpdatedAt)
		return next, nil
	}
	return SOSAlert{}, illegal
}

func isResponder(a Actor) bool {
	return a.Role == RoleCaregiver || a.Role == RoleAdmin
}

// ApplicationDecision is an admin verdict on a volunteer application.
type ApplicationDecision struct {
	To     ApplicationStatus
	Actor  Actor
	Reason string
}

// ApplyApplication validates d against cur. Re-applying the terminal state the application is
// already in returns changed == false and cur untouched.
func ApplyApplication(cur VolunteerApplication, d ApplicationDecision, now time.Time) (next VolunteerApplication, changed bool, err error) {
	if d.Actor.Role != RoleAdmin {
		return VolunteerApplication{}, false, &ForbiddenError{Role: d.Actor.Role, Action: "decide volunteer applications"}
	}
	illegal := &InvalidTransitionError{Kind: KindApplication, ID: cur.ID, From: string(cur.Status), To: string(d.To)}
	if d.To != ApplicationApproved && d.To != ApplicationRejected {
		return VolunteerApplication{}, false, illegal
	}
	if cur.Status == d.To {
		return cur, false, nil
	}
	if cur.Status != ApplicationPending {
		return VolunteerApplication{}, false, illegal
	}

	next = cur
	next.UpdatedAt = laterOf(cur.UpdatedAt, now)
	next.Status = d.To
	if d.To == ApplicationApproved {
		next.ApprovedBy = strPtr(d.Actor.ID)
		next.ApprovedAt = timePtr(next.UpdatedAt)
		return next, true, nil
	}
	reason := strings.TrimSpace(d.Reason)
	if reason == "" {
		return VolunteerApplication{}, false, invalid("reason", "is required to reject")
	}
	next.RejectedBy = strPtr(d.Actor.ID)
	next.RejectedAt = timePtr(next.UpdatedAt)
	next.Reason = strPtr(reason)
	return next, true, nil
}

// laterOf keeps timestamps monotonically non-decreasing under clock skew.
func laterOf(prev, now time.Time) time.Time {
	if now.Before(prev) {
		return prev
	}
	return now
}
