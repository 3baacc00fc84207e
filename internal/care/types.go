package care

import (
	"strings"
	"time"
)

// Role identifies the kind of actor issuing an operation.
type Role string

const (
	RoleSenior    Role = "senior"
	RoleVolunteer Role = "volunteer"
	RoleCaregiver Role = "caregiver"
	RoleAdmin     Role = "admin"
	// RoleSystem is used by automated triggers (e.g. fall detection raising an SOS).
	RoleSystem Role = "system"
)

// ParseRole normalises a role name. Unknown roles return false.
func ParseRole(s string) (Role, bool) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	switch r {
	case RoleSenior, RoleVolunteer, RoleCaregiver, RoleAdmin, RoleSystem:
		return r, true
	}
	return "", false
}

// Actor is the authenticated caller of a service operation.
type Actor struct {
	ID   string `json:"id"`
	Role Role   `json:"role"`
}

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	}
	return false
}

type HelpStatus string

const (
	HelpPending   HelpStatus = "pending"
	HelpActive    HelpStatus = "active"
	HelpCompleted HelpStatus = "completed"
)

// HelpRequest is a senior's request for assistance.
type HelpRequest struct {
	ID          string     `json:"id"`
	SeniorID    string     `json:"senior_id"`
	Category    string     `json:"category"`
	Priority    Priority   `json:"priority"`
	Description string     `json:"description,omitempty"`
	Status      HelpStatus `json:"status"`
	AssignedTo  *string    `json:"assigned_to"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	AcceptedAt  *time.Time `json:"accepted_at"`
	CompletedAt *time.Time `json:"completed_at"`
	RemovedAt   *time.Time `json:"removed_at,omitempty"`
}

// Assignee returns the assigned volunteer id or "".
func (r HelpRequest) Assignee() string {
	if r.AssignedTo == nil {
		return ""
	}
	return *r.AssignedTo
}

type SOSStatus string

const (
	SOSActive       SOSStatus = "active"
	SOSAcknowledged SOSStatus = "acknowledged"
	SOSEscalated    SOSStatus = "escalated"
	SOSResolved     SOSStatus = "resolved"
)

// SOSAlert is an emergency signal raised by (or on behalf of) a senior.
type SOSAlert struct {
	ID               string     `json:"id"`
	SeniorID         string     `json:"senior_id"`
	Message          string     `json:"message,omitempty"`
	Status           SOSStatus  `json:"status"`
	AcknowledgedBy   string     `json:"acknowledged_by,omitempty"`
	EscalatedBy      string     `json:"escalated_by,omitempty"`
	EscalationReason string     `json:"escalation_reason,omitempty"`
	ResolvedBy       string     `json:"resolved_by,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
	ResolvedAt       *time.Time `json:"resolved_at"`
}

type NotificationType string

const (
	NotifyVolunteerRequest NotificationType = "volunteer_request"
	NotifySOSAlert         NotificationType = "sos_alert"
	NotifyIncident         NotificationType = "incident"
	NotifyApproval         NotificationType = "approval"
	NotifySystem           NotificationType = "system"
)

// Notification is an immutable fan-out record; only the read flag changes.
type Notification struct {
	ID           string           `json:"id"`
	TargetRole   Role             `json:"target_role,omitempty"`
	TargetUserID string           `json:"target_user_id,omitempty"`
	Type         NotificationType `json:"type"`
	Message      string           `json:"message"`
	SubjectID    string           `json:"subject_id,omitempty"`
	Read         bool             `json:"read"`
	CreatedAt    time.Time        `json:"created_at"`
	ReadAt       *time.Time       `json:"read_at,omitempty"`
}

// AddressedTo reports whether the actor is a recipient of the notification.
func (n Notification) AddressedTo(a Actor) bool {
	if n.TargetUserID != "" {
		return n.TargetUserID == a.ID
	}
	return n.TargetRole != "" && n.TargetRole == a.Role
}

type ApplicationStatus string

const (
	ApplicationPending  ApplicationStatus = "pending"
	ApplicationApproved ApplicationStatus = "approved"
	ApplicationRejected ApplicationStatus = "rejected"
)

// VolunteerApplication tracks an applicant through admin approval.
type VolunteerApplication struct {
	ID          string            `json:"id"`
	ApplicantID string            `json:"applicant_id"`
	Motivation  string            `json:"motivation,omitempty"`
	Status      ApplicationStatus `json:"status"`
	ApprovedBy  *string           `json:"approved_by"`
	ApprovedAt  *time.Time        `json:"approved_at"`
	RejectedBy  *string           `json:"rejected_by"`
	RejectedAt  *time.Time        `json:"rejected_at"`
	Reason      *string           `json:"reason"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// Volunteer is a registered helper and their current workload.
type Volunteer struct {
	ID             string    `json:"id"`
	ActiveRequests int       `json:"active_requests"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// MoodLog is an append-only daily check-in.
type MoodLog struct {
	ID        string    `json:"id"`
	SeniorID  string    `json:"senior_id"`
	Mood      int       `json:"mood"` // 1 (very low) .. 5 (very good)
	Note      string    `json:"note,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func strPtr(s string) *string { return &s }

func timePtr(t time.Time) *time.Time { return &t }
