// Package sqlite implements care.Store with gorm on SQLite, for single-node deployments and
// local development.
package sqlite

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"kinhelp.org/internal/care"
)

type Store struct {
	db *gorm.DB
}

var _ care.Store = (*Store)(nil)

// Open opens (or creates) the database at path and migrates the schema. SQLite allows a single
// writer, so the pool is capped at one connection and transitions queue behind each other.
func Open(path string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)
	if err := db.AutoMigrate(allModels()...); err != nil {
		return nil, fmt.Errorf("migrate sqlite: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *Store) HelpRequests() care.HelpRequestStore   { return helpStore{s.db} }
func (s *Store) SOSAlerts() care.SOSAlertStore         { return sosStore{s.db} }
func (s *Store) Notifications() care.NotificationStore { return noteStore{s.db} }
func (s *Store) Applications() care.ApplicationStore   { return appStore{s.db} }
func (s *Store) Volunteers() care.VolunteerStore       { return volStore{s.db} }
func (s *Store) MoodLogs() care.MoodLogStore           { return moodStore{s.db} }

// --- help requests ---

type helpStore struct{ db *gorm.DB }

func (h helpStore) Create(ctx context.Context, r care.HelpRequest) error {
	row := fromHelp(r)
	return createErr(care.KindHelpRequest, r.ID, h.db.WithContext(ctx).Create(&row).Error)
}

func (h helpStore) Get(ctx context.Context, id string) (care.HelpRequest, error) {
	var row helpRequestRow
	if err := first(ctx, h.db, &row, id, care.KindHelpRequest); err != nil {
		return care.HelpRequest{}, err
	}
	return row.toCare(), nil
}

func (h helpStore) Query(ctx context.Context, f care.HelpRequestFilter) iter.Seq2[care.HelpRequest, error] {
	q := h.db.WithContext(ctx).Model(&helpRequestRow{}).Where("removed_at IS NULL")
	if f.Status != "" {
		q = q.Where("status = ?", string(f.Status))
	}
	if f.SeniorID != "" {
		q = q.Where("senior_id = ?", f.SeniorID)
	}
	if f.AssignedTo != "" {
		q = q.Where("assigned_to = ?", f.AssignedTo)
	}
	return scanAll(q, f.Limit, helpRequestRow.toCare)
}

func (h helpStore) Swap(ctx context.Context, next care.HelpRequest, expect care.HelpStatus) error {
	result := h.db.WithContext(ctx).Model(&helpRequestRow{}).
		Where("id = ? AND status = ? AND removed_at IS NULL", next.ID, string(expect)).
		Updates(map[string]any{
			"category":     next.Category,
			"priority":     string(next.Priority),
			"description":  next.Description,
			"status":       string(next.Status),
			"assigned_to":  next.AssignedTo,
			"updated_at":   next.UpdatedAt,
			"accepted_at":  next.AcceptedAt,
			"completed_at": next.CompletedAt,
			"removed_at":   next.RemovedAt,
		})
	if result.Error != nil {
		return fmt.Errorf("update help request: %w", result.Error)
	}
	if result.RowsAffected > 0 {
		return nil
	}
	cur, err := h.Get(ctx, next.ID)
	if err != nil {
		return err
	}
	if cur.RemovedAt != nil {
		return &care.NotFoundError{Kind: care.KindHelpRequest, ID: next.ID}
	}
	return &care.ConflictError{Kind: care.KindHelpRequest, ID: next.ID, Expected: string(expect), Actual: string(cur.Status)}
}

// --- SOS alerts ---

type sosStore struct{ db *gorm.DB }

func (s sosStore) Create(ctx context.Context, a care.SOSAlert) error {
	row := fromSOS(a)
	return createErr(care.KindSOSAlert, a.ID, s.db.WithContext(ctx).Create(&row).Error)
}

func (s sosStore) Get(ctx context.Context, id string) (care.SOSAlert, error) {
	var row sosAlertRow
	if err := first(ctx, s.db, &row, id, care.KindSOSAlert); err != nil {
		return care.SOSAlert{}, err
	}
	return row.toCare(), nil
}

func (s sosStore) Query(ctx context.Context, f care.SOSFilter) iter.Seq2[care.SOSAlert, error] {
	q := s.db.WithContext(ctx).Model(&sosAlertRow{})
	if f.Status != "" {
		q = q.Where("status = ?", string(f.Status))
	}
	if f.SeniorID != "" {
		q = q.Where("senior_id = ?", f.SeniorID)
	}
	return scanAll(q, f.Limit, sosAlertRow.toCare)
}

func (s sosStore) Swap(ctx context.Context, next care.SOSAlert, expect care.SOSStatus) error {
	result := s.db.WithContext(ctx).Model(&sosAlertRow{}).
		Where("id = ? AND status = ?", next.ID, string(expect)).
		Updates(map[string]any{
			"status":            string(next.Status),
			"acknowledged_by":   next.AcknowledgedBy,
			"escalated_by":      next.EscalatedBy,
			"escalation_reason": next.EscalationReason,
			"resolved_by":       next.ResolvedBy,
			"updated_at":        next.UpdatedAt,
			"resolved_at":       next.ResolvedAt,
		})
	if result.Error != nil {
		return fmt.Errorf("update sos alert: %w", result.Error)
	}
	if result.RowsAffected > 0 {
		return nil
	}
	cur, err := s.Get(ctx, next.ID)
	if err != nil {
		return err
	}
	return &care.ConflictError{Kind: care.KindSOSAlert, ID: next.ID, Expected: string(expect), Actual: string(cur.Status)}
}

// --- notifications ---

type noteStore struct{ db *gorm.DB }

func (s noteStore) Create(ctx context.Context, n care.Notification) error {
	row := fromNote(n)
	return createErr(care.KindNotification, n.ID, s.db.WithContext(ctx).Create(&row).Error)
}

func (s noteStore) Get(ctx context.Context, id string) (care.Notification, error) {
	var row notificationRow
	if err := first(ctx, s.db, &row, id, care.KindNotification); err != nil {
		return care.Notification{}, err
	}
	return row.toCare(), nil
}

func (s noteStore) Query(ctx context.Context, f care.NotificationFilter) iter.Seq2[care.Notification, error] {
	q := s.db.WithContext(ctx).Model(&notificationRow{})
	switch {
	case f.TargetUserID != "" && f.TargetRole != "":
		q = q.Where("target_user_id = ? OR (target_user_id = '' AND target_role = ?)", f.TargetUserID, string(f.TargetRole))
	case f.TargetUserID != "":
		q = q.Where("target_user_id = ?", f.TargetUserID)
	case f.TargetRole != "":
		q = q.Where("target_user_id = '' AND target_role = ?", string(f.TargetRole))
	}
	if f.UnreadOnly {
		q = q.Where("read = ?", false)
	}
	return scanAll(q, f.Limit, notificationRow.toCare)
}

func (s noteStore) MarkRead(ctx context.Context, id string, at time.Time) (care.Notification, error) {
	result := s.db.WithContext(ctx).Model(&notificationRow{}).
		Where("id = ? AND read = ?", id, false).
		Updates(map[string]any{"read": true, "read_at": at})
	if result.Error != nil {
		return care.Notification{}, fmt.Errorf("mark notification read: %w", result.Error)
	}
	return s.Get(ctx, id)
}

// --- volunteer applications ---

type appStore struct{ db *gorm.DB }

func (s appStore) Create(ctx context.Context, a care.VolunteerApplication) error {
	row := fromApp(a)
	return createErr(care.KindApplication, a.ID, s.db.WithContext(ctx).Create(&row).Error)
}

func (s appStore) Get(ctx context.Context, id string) (care.VolunteerApplication, error) {
	var row applicationRow
	if err := first(ctx, s.db, &row, id, care.KindApplication); err != nil {
		return care.VolunteerApplication{}, err
	}
	return row.toCare(), nil
}

func (s appStore) Query(ctx context.Context, f care.ApplicationFilter) iter.Seq2[care.VolunteerApplication, error] {
	q := s.db.WithContext(ctx).Model(&applicationRow{})
	if f.Status != "" {
		q = q.Where("status = ?", string(f.Status))
	}
	if f.ApplicantID != "" {
		q = q.Where("applicant_id = ?", f.ApplicantID)
	}
	return scanAll(q, f.Limit, applicationRow.toCare)
}

func (s appStore) Swap(ctx context.Context, next care.VolunteerApplication, expect care.ApplicationStatus) error {
	result := s.db.WithContext(ctx).Model(&applicationRow{}).
		Where("id = ? AND status = ?", next.ID, string(expect)).
		Updates(map[string]any{
			"status":      string(next.Status),
			"approved_by": next.ApprovedBy,
			"approved_at": next.ApprovedAt,
			"rejected_by": next.RejectedBy,
			"rejected_at": next.RejectedAt,
			"reason":      next.Reason,
			"updated_at":  next.UpdatedAt,
		})
	if result.Error != nil {
		return fmt.Errorf("update application: %w", result.Error)
	}
	if result.RowsAffected > 0 {
		return nil
	}
	cur, err := s.Get(ctx, next.ID)
	if err != nil {
		return err
	}
	return &care.ConflictError{Kind: care.KindApplication, ID: next.ID, Expected: string(expect), Actual: string(cur.Status)}
}

// --- volunteers ---

type volStore struct{ db *gorm.DB }

func (s volStore) Ensure(ctx context.Context, v care.Volunteer) (care.Volunteer, error) {
	row := volunteerRow{ID: v.ID, ActiveRequests: v.ActiveRequests, CreatedAt: v.CreatedAt, UpdatedAt: v.UpdatedAt}
	if err := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&row).Error; err != nil {
		return care.Volunteer{}, fmt.Errorf("insert volunteer: %w", err)
	}
	return s.Get(ctx, v.ID)
}

func (s volStore) Get(ctx context.Context, id string) (care.Volunteer, error) {
	var row volunteerRow
	if err := first(ctx, s.db, &row, id, care.KindVolunteer); err != nil {
		return care.Volunteer{}, err
	}
	return row.toCare(), nil
}

func (s volStore) AdjustLoad(ctx context.Context, id string, delta int, at time.Time) (care.Volunteer, error) {
	result := s.db.WithContext(ctx).Model(&volunteerRow{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"active_requests": gorm.Expr("MAX(0, active_requests + ?)", delta),
			"updated_at":      at,
		})
	if result.Error != nil {
		return care.Volunteer{}, fmt.Errorf("adjust volunteer load: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return care.Volunteer{}, &care.NotFoundError{Kind: care.KindVolunteer, ID: id}
	}
	return s.Get(ctx, id)
}

// --- mood logs ---

type moodStore struct{ db *gorm.DB }

func (s moodStore) Create(ctx context.Context, m care.MoodLog) error {
	row := moodLogRow{ID: m.ID, SeniorID: m.SeniorID, Mood: m.Mood, Note: m.Note, CreatedAt: m.CreatedAt}
	return createErr(care.KindMoodLog, m.ID, s.db.WithContext(ctx).Create(&row).Error)
}

func (s moodStore) Query(ctx context.Context, f care.MoodFilter) iter.Seq2[care.MoodLog, error] {
	q := s.db.WithContext(ctx).Model(&moodLogRow{})
	if f.SeniorID != "" {
		q = q.Where("senior_id = ?", f.SeniorID)
	}
	return scanAll(q, f.Limit, moodLogRow.toCare)
}

// --- helpers ---

func first[R any](ctx context.Context, db *gorm.DB, row *R, id, kind string) error {
	err := db.WithContext(ctx).Where("id = ?", id).First(row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &care.NotFoundError{Kind: kind, ID: id}
	}
	if err != nil {
		return fmt.Errorf("get %s: %w", kind, err)
	}
	return nil
}

// scanAll streams rows in newest-first order. The cursor stays open only while the consumer
// keeps ranging.
func scanAll[R, T any](q *gorm.DB, limit int, convert func(R) T) iter.Seq2[T, error] {
	q = q.Order("created_at DESC").Order("id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	return func(yield func(T, error) bool) {
		var zero T
		tx := q.Session(&gorm.Session{})
		rows, err := tx.Rows()
		if err != nil {
			yield(zero, fmt.Errorf("query: %w", err))
			return
		}
		defer rows.Close()
		for rows.Next() {
			var row R
			if err := tx.ScanRows(rows, &row); err != nil {
				yield(zero, fmt.Errorf("scan: %w", err))
				return
			}
			if !yield(convert(row), nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(zero, err)
		}
	}
}

func createErr(kind, id string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return &care.ConflictError{Kind: kind, ID: id, Expected: "absent", Actual: "present"}
	}
	return fmt.Errorf("insert %s: %w", kind, err)
}
