package sqlite

import (
	"time"

	"kinhelp.org/internal/care"
)

// Row models keep gorm tags out of the care package. Timestamps are owned by the service, so
// gorm's auto time tracking is disabled.

type helpRequestRow struct {
	ID          string    `gorm:"primaryKey"`
	SeniorID    string    `gorm:"index;not null"`
	Category    string    `gorm:"not null"`
	Priority    string    `gorm:"not null"`
	Description string    `gorm:"type:text;not null;default:''"`
	Status      string    `gorm:"index;not null"`
	AssignedTo  *string   `gorm:"index"`
	CreatedAt   time.Time `gorm:"index;autoCreateTime:false"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime:false"`
	AcceptedAt  *time.Time
	CompletedAt *time.Time
	RemovedAt   *time.Time `gorm:"index"`
}

func (helpRequestRow) TableName() string { return "help_requests" }

func fromHelp(r care.HelpRequest) helpRequestRow {
	return helpRequestRow{
		ID: r.ID, SeniorID: r.SeniorID, Category: r.Category, Priority: string(r.Priority),
		Description: r.Description, Status: string(r.Status), AssignedTo: r.AssignedTo,
		CreatedAt: r.CreatedAt, UpdatedAt: r.UpdatedAt, AcceptedAt: r.AcceptedAt,
		CompletedAt: r.CompletedAt, RemovedAt: r.RemovedAt,
	}
}

func (r helpRequestRow) toCare() care.HelpRequest {
	return care.HelpRequest{
		ID: r.ID, SeniorID: r.SeniorID, Category: r.Category, Priority: care.Priority(r.Priority),
		Description: r.Description, Status: care.HelpStatus(r.Status), AssignedTo: r.AssignedTo,
		CreatedAt: r.CreatedAt, UpdatedAt: r.UpdatedAt, AcceptedAt: r.AcceptedAt,
		CompletedAt: r.CompletedAt, RemovedAt: r.RemovedAt,
	}
}

type sosAlertRow struct {
	ID               string    `gorm:"primaryKey"`
	SeniorID         string    `gorm:"index;not null"`
	Message          string    `gorm:"type:text;not null;default:''"`
	Status           string    `gorm:"index;not null"`
	AcknowledgedBy   string    `gorm:"not null;default:''"`
	EscalatedBy      string    `gorm:"not null;default:''"`
	EscalationReason string    `gorm:"type:text;not null;default:''"`
	ResolvedBy       string    `gorm:"not null;default:''"`
	CreatedAt        time.Time `gorm:"index;autoCreateTime:false"`
	UpdatedAt        time.Time `gorm:"autoUpdateTime:false"`
	ResolvedAt       *time.Time
}

func (sosAlertRow) TableName() string { return "sos_alerts" }

func fromSOS(a care.SOSAlert) sosAlertRow {
	return sosAlertRow{
		ID: a.ID, SeniorID: a.SeniorID, Message: a.Message, Status: string(a.Status),
		AcknowledgedBy: a.AcknowledgedBy, EscalatedBy: a.EscalatedBy, EscalationReason: a.EscalationReason,
		ResolvedBy: a.ResolvedBy, CreatedAt: a.CreatedAt, UpdatedAt: a.UpdatedAt, ResolvedAt: a.ResolvedAt,
	}
}

func (r sosAlertRow) toCare() care.SOSAlert {
	return care.SOSAlert{
		ID: r.ID, SeniorID: r.SeniorID, Message: r.Message, Status: care.SOSStatus(r.Status),
		AcknowledgedBy: r.AcknowledgedBy, EscalatedBy: r.EscalatedBy, EscalationReason: r.EscalationReason,
		ResolvedBy: r.ResolvedBy, CreatedAt: r.CreatedAt, UpdatedAt: r.UpdatedAt, ResolvedAt: r.ResolvedAt,
	}
}

type notificationRow struct {
	ID           string    `gorm:"primaryKey"`
	TargetRole   string    `gorm:"index;not null;default:''"`
	TargetUserID string    `gorm:"index;not null;default:''"`
	Type         string    `gorm:"not null"`
	Message      string    `gorm:"type:text;not null"`
	SubjectID    string    `gorm:"index;not null;default:''"`
	Read         bool      `gorm:"not null;default:false"`
	CreatedAt    time.Time `gorm:"index;autoCreateTime:false"`
	ReadAt       *time.Time
}

func (notificationRow) TableName() string { return "notifications" }

func fromNote(n care.Notification) notificationRow {
	return notificationRow{
		ID: n.ID, TargetRole: string(n.TargetRole), TargetUserID: n.TargetUserID, Type: string(n.Type),
		Message: n.Message, SubjectID: n.SubjectID, Read: n.Read, CreatedAt: n.CreatedAt, ReadAt: n.ReadAt,
	}
}

func (r notificationRow) toCare() care.Notification {
	return care.Notification{
		ID: r.ID, TargetRole: care.Role(r.TargetRole), TargetUserID: r.TargetUserID, Type: care.NotificationType(r.Type),
		Message: r.Message, SubjectID: r.SubjectID, Read: r.Read, CreatedAt: r.CreatedAt, ReadAt: r.ReadAt,
	}
}

type applicationRow struct {
	ID          string `gorm:"primaryKey"`
	ApplicantID string `gorm:"index;not null"`
	Motivation  string `gorm:"type:text;not null;default:''"`
	Status      string `gorm:"index;not null"`
	ApprovedBy  *string
	ApprovedAt  *time.Time
	RejectedBy  *string
	RejectedAt  *time.Time
	Reason      *string
	CreatedAt   time.Time `gorm:"index;autoCreateTime:false"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime:false"`
}

func (applicationRow) TableName() string { return "volunteer_applications" }

func fromApp(a care.VolunteerApplication) applicationRow {
	return applicationRow{
		ID: a.ID, ApplicantID: a.ApplicantID, Motivation: a.Motivation, Status: string(a.Status),
		ApprovedBy: a.ApprovedBy, ApprovedAt: a.ApprovedAt, RejectedBy: a.RejectedBy, RejectedAt: a.RejectedAt,
		Reason: a.Reason, CreatedAt: a.CreatedAt, UpdatedAt: a.UpdatedAt,
	}
}

func (r applicationRow) toCare() care.VolunteerApplication {
	return care.VolunteerApplication{
		ID: r.ID, ApplicantID: r.ApplicantID, Motivation: r.Motivation, Status: care.ApplicationStatus(r.Status),
		ApprovedBy: r.ApprovedBy, ApprovedAt: r.ApprovedAt, RejectedBy: r.RejectedBy, RejectedAt: r.RejectedAt,
		Reason: r.Reason, CreatedAt: r.CreatedAt, UpdatedAt: r.UpdatedAt,
	}
}

type volunteerRow struct {
	ID             string    `gorm:"primaryKey"`
	ActiveRequests int       `gorm:"not null;default:0"`
	CreatedAt      time.Time `gorm:"autoCreateTime:false"`
	UpdatedAt      time.Time `gorm:"autoUpdateTime:false"`
}

func (volunteerRow) TableName() string { return "volunteers" }

func (r volunteerRow) toCare() care.Volunteer {
	return care.Volunteer{ID: r.ID, ActiveRequests: r.ActiveRequests, CreatedAt: r.CreatedAt, UpdatedAt: r.UpdatedAt}
}

type moodLogRow struct {
	ID        string    `gorm:"primaryKey"`
	SeniorID  string    `gorm:"index;not null"`
	Mood      int       `gorm:"not null"`
	Note      string    `gorm:"type:text;not null;default:''"`
	CreatedAt time.Time `gorm:"index;autoCreateTime:false"`
}

func (moodLogRow) TableName() string { return "mood_logs" }

func (r moodLogRow) toCare() care.MoodLog {
	return care.MoodLog{ID: r.ID, SeniorID: r.SeniorID, Mood: r.Mood, Note: r.Note, CreatedAt: r.CreatedAt}
}

func allModels() []any {
	return []any{&helpRequestRow{}, &sosAlertRow{}, &notificationRow{}, &applicationRow{}, &volunteerRow{}, &moodLogRow{}}
}
