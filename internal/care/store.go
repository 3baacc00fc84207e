package care

import (
	"context"
	"iter"
	"time"
)

// Store describes persistence required by the care core. Every entity type maps to one logical
// collection. Implementations never validate business rules: Service runs the transition engine
// on a fresh read and then commits with a compare-and-set on the status column.
type Store interface {
	HelpRequests() HelpRequestStore
	SOSAlerts() SOSAlertStore
	Notifications() NotificationStore
	Applications() ApplicationStore
	Volunteers() VolunteerStore
	MoodLogs() MoodLogStore
}

// HelpRequestStore manages the helpRequests collection.
type HelpRequestStore interface {
	Create(ctx context.Context, r HelpRequest) error
	// Get returns removed requests too; callers decide how to treat RemovedAt.
	Get(ctx context.Context, id string) (HelpRequest, error)
	// Query never yields removed requests.
	Query(ctx context.Context, f HelpRequestFilter) iter.Seq2[HelpRequest, error]
	// Swap stores next only if the stored record has status expect and is not removed.
	Swap(ctx context.Context, next HelpRequest, expect HelpStatus) error
}

// SOSAlertStore manages the sosAlerts collection.
type SOSAlertStore interface {
	Create(ctx context.Context, a SOSAlert) error
	Get(ctx context.Context, id string) (SOSAlert, error)
	Query(ctx context.Context, f SOSFilter) iter.Seq2[SOSAlert, error]
	Swap(ctx context.Context, next SOSAlert, expect SOSStatus) error
}

// NotificationStore manages the notifications collection.
type NotificationStore interface {
	Create(ctx context.Context, n Notification) error
	Get(ctx context.Context, id string) (Notification, error)
	Query(ctx context.Context, f NotificationFilter) iter.Seq2[Notification, error]
	// MarkRead sets the read flag once; marking an already read notification is a no-op.
	MarkRead(ctx context.Context, id string, at time.Time) (Notification, error)
}

// ApplicationStore manages the volunteerApplications collection.
type ApplicationStore interface {
	Create(ctx context.Context, a VolunteerApplication) error
	Get(ctx context.Context, id string) (VolunteerApplication, error)
	Query(ctx context.Context, f ApplicationFilter) iter.Seq2[VolunteerApplication, error]
	Swap(ctx context.Context, next VolunteerApplication, expect ApplicationStatus) error
}

// VolunteerStore tracks registered volunteers and their active workload.
type VolunteerStore interface {
	// Ensure registers the volunteer unless already present and returns the stored record.
	Ensure(ctx context.Context, v Volunteer) (Volunteer, error)
	Get(ctx context.Context, id string) (Volunteer, error)
	// AdjustLoad adds delta to ActiveRequests, never going below zero.
	AdjustLoad(ctx context.Context, id string, delta int, at time.Time) (Volunteer, error)
}

// MoodLogStore is append-only.
type MoodLogStore interface {
	Create(ctx context.Context, m MoodLog) error
	Query(ctx context.Context, f MoodFilter) iter.Seq2[MoodLog, error]
}

// Filters select records by field equality; zero values match everything.
// Results are ordered by CreatedAt descending, then ID descending. Limit <= 0 means no limit.

type HelpRequestFilter struct {
	Status     HelpStatus
	SeniorID   string
	AssignedTo string
	Limit      int
}

type SOSFilter struct {
	Status   SOSStatus
	SeniorID string
	Limit    int
}

// NotificationFilter matches TargetUserID and TargetRole. When both are set, a notification
// addressed to either one matches (the recipient view of an actor).
type NotificationFilter struct {
	TargetRole   Role
	TargetUserID string
	UnreadOnly   bool
	Limit        int
}

type ApplicationFilter struct {
	Status      ApplicationStatus
	ApplicantID string
	Limit       int
}

type MoodFilter struct {
	SeniorID string
	Limit    int
}

// Collect drains a query sequence into a slice, stopping at the first error.
func Collect[T any](seq iter.Seq2[T, error]) ([]T, error) {
	var out []T
	for item, err := range seq {
		if err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, nil
}

// Matches reports whether n satisfies f. Shared by backends that filter in process.
func (f NotificationFilter) Matches(n Notification) bool {
	if f.UnreadOnly && n.Read {
		return false
	}
	switch {
	case f.TargetUserID != "" && f.TargetRole != "":
		return n.TargetUserID == f.TargetUserID || (n.TargetUserID == "" && n.TargetRole == f.TargetRole)
	case f.TargetUserID != "":
		return n.TargetUserID == f.TargetUserID
	case f.TargetRole != "":
		return n.TargetUserID == "" && n.TargetRole == f.TargetRole
	}
	return true
}
