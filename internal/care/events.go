package care

import (
	"context"
	"fmt"
	"time"
)

// EventType names a committed transition that may produce a notification.
type EventType string

const (
	EventHelpCreated          EventType = "help_request.created"
	EventHelpAccepted         EventType = "help_request.accepted"
	EventHelpUnassigned       EventType = "help_request.unassigned"
	EventHelpCompleted        EventType = "help_request.completed"
	EventSOSCreated           EventType = "sos.created"
	EventSOSAcknowledged      EventType = "sos.acknowledged"
	EventSOSEscalated         EventType = "sos.escalated"
	EventSOSResolved          EventType = "sos.resolved"
	EventApplicationSubmitted EventType = "application.submitted"
	EventApplicationApproved  EventType = "application.approved"
	EventApplicationRejected  EventType = "application.rejected"
)

// Event carries the committed record. Exactly one of the entity pointers is set.
type Event struct {
	Type        EventType
	Actor       Actor
	At          time.Time
	Help        *HelpRequest
	SOS         *SOSAlert
	Application *VolunteerApplication
}

// Emitter turns a committed transition into a stored notification.
type Emitter interface {
	Emit(ctx context.Context, ev Event) (Notification, error)
}

// NotificationFor maps an event to its notification record. The caller assigns id and
// CreatedAt. ok is false for events without a mapping.
func NotificationFor(ev Event) (n Notification, ok bool) {
	switch {
	case ev.Help != nil:
		r := ev.Help
		n.SubjectID = r.ID
		switch ev.Type {
		case EventHelpCreated:
			n.TargetRole, n.Type = RoleVolunteer, NotifyVolunteerRequest
			n.Message = fmt.Sprintf("New %s request (%s priority)", r.Category, r.Priority)
		case EventHelpAccepted:
			n.TargetUserID, n.Type = r.SeniorID, NotifyVolunteerRequest
			n.Message = fmt.Sprintf("A volunteer accepted your %s request", r.Category)
		case EventHelpUnassigned:
			n.TargetRole, n.Type = RoleVolunteer, NotifyVolunteerRequest
			n.Message = fmt.Sprintf("A %s request needs a volunteer again", r.Category)
		case EventHelpCompleted:
			n.TargetUserID, n.Type = r.SeniorID, NotifySystem
			n.Message = fmt.Sprintf("Your %s request was completed", r.Category)
		default:
			return Notification{}, false
		}
	case ev.SOS != nil:
		a := ev.SOS
		n.SubjectID = a.ID
		switch ev.Type {
		case EventSOSCreated:
			n.TargetRole, n.Type = RoleCaregiver, NotifySOSAlert
			n.Message = "SOS raised by senior " + a.SeniorID
			if a.Message != "" {
				n.Message += ": " + a.Message
			}
		case EventSOSAcknowledged:
			n.TargetUserID, n.Type = a.SeniorID, NotifySOSAlert
			n.Message = "Help is on the way: your SOS was acknowledged"
		case EventSOSEscalated:
			n.TargetRole, n.Type = RoleAdmin, NotifyIncident
			n.Message = fmt.Sprintf("SOS %s escalated: %s", a.ID, a.EscalationReason)
		case EventSOSResolved:
			n.TargetUserID, n.Type = a.SeniorID, NotifySOSAlert
			n.Message = "Your SOS alert was resolved"
		default:
			return Notification{}, false
		}
	case ev.Application != nil:
		app := ev.Application
		n.SubjectID = app.ID
		n.Type = NotifyApproval
		switch ev.Type {
		case EventApplicationSubmitted:
			n.TargetRole = RoleAdmin
			n.Message = "New volunteer application from " + app.ApplicantID
		case EventApplicationApproved:
			n.TargetUserID = app.ApplicantID
			n.Message = "Your volunteer application was approved"
		case EventApplicationRejected:
			n.TargetUserID = app.ApplicantID
			n.Message = "Your volunteer application was rejected"
			if app.Reason != nil {
				n.Message += ": " + *app.Reason
			}
		default:
			return Notification{}, false
		}
	default:
		return Notification{}, false
	}
	return n, true
}

// StoreEmitter writes mapped notifications straight to the store.
type StoreEmitter struct {
	Store Store
	NewID func() string
}

func (e StoreEmitter) Emit(ctx context.Context, ev Event) (Notification, error) {
	n, ok := NotificationFor(ev)
	if !ok {
		return Notification{}, fmt.Errorf("no notification mapping for %s", ev.Type)
	}
	n.ID = e.NewID()
	n.CreatedAt = ev.At
	if err := e.Store.Notifications().Create(ctx, n); err != nil {
		return Notification{}, fmt.Errorf("store notification: %w", err)
	}
	return n, nil
}
