package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"iter"
	"time"

	"kinhelp.org/internal/care"
)

// --- notifications ---

type noteStore struct{ db *sql.DB }

const noteColumns = `id, target_role, target_user_id, type, message, subject_id, read, created_at, read_at`

func scanNote(row scanner) (care.Notification, error) {
	var n care.Notification
	err := row.Scan(&n.ID, &n.TargetRole, &n.TargetUserID, &n.Type, &n.Message, &n.SubjectID, &n.Read, &n.CreatedAt, &n.ReadAt)
	return n, err
}

func (s noteStore) Create(ctx context.Context, n care.Notification) error {
	_, err := s.db.ExecContext(ctx, `
		insert into notifications (`+noteColumns+`)
		values ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, n.ID, n.TargetRole, n.TargetUserID, n.Type, n.Message, n.SubjectID, n.Read, n.CreatedAt, n.ReadAt)
	return createErr(care.KindNotification, n.ID, err)
}

func (s noteStore) Get(ctx context.Context, id string) (care.Notification, error) {
	n, err := scanNote(s.db.QueryRowContext(ctx, `select `+noteColumns+` from notifications where id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return care.Notification{}, &care.NotFoundError{Kind: care.KindNotification, ID: id}
	}
	if err != nil {
		return care.Notification{}, fmt.Errorf("get notification: %w", err)
	}
	return n, nil
}

func (s noteStore) Query(ctx context.Context, f care.NotificationFilter) iter.Seq2[care.Notification, error] {
	var w where
	switch {
	case f.TargetUserID != "" && f.TargetRole != "":
		w.args = append(w.args, f.TargetUserID, string(f.TargetRole))
		w.raw(fmt.Sprintf("(target_user_id = $%d or (target_user_id = '' and target_role = $%d))", len(w.args)-1, len(w.args)))
	case f.TargetUserID != "":
		w.eq("target_user_id", f.TargetUserID)
	case f.TargetRole != "":
		w.raw("target_user_id = ''")
		w.eq("target_role", string(f.TargetRole))
	}
	if f.UnreadOnly {
		w.raw("not read")
	}
	q := `select ` + noteColumns + ` from notifications` + w.clause() + ` order by created_at desc, id desc` + w.limit(f.Limit)
	return queryRows(ctx, s.db, q, w.args, scanNote)
}

func (s noteStore) MarkRead(ctx context.Context, id string, at time.Time) (care.Notification, error) {
	if _, err := s.db.ExecContext(ctx, `update notifications set read = true, read_at = $2 where id = $1 and not read`, id, at); err != nil {
		return care.Notification{}, fmt.Errorf("mark notification read: %w", err)
	}
	return s.Get(ctx, id)
}

// --- volunteer applications ---

type appStore struct{ db *sql.DB }

const appColumns = `id, applicant_id, motivation, status, approved_by, approved_at, rejected_by, rejected_at,
	reason, created_at, updated_at`

func scanApp(row scanner) (care.VolunteerApplication, error) {
	var a care.VolunteerApplication
	err := row.Scan(&a.ID, &a.ApplicantID, &a.Motivation, &a.Status, &a.ApprovedBy, &a.ApprovedAt,
		&a.RejectedBy, &a.RejectedAt, &a.Reason, &a.CreatedAt, &a.UpdatedAt)
	return a, err
}

func (s appStore) Create(ctx context.Context, a care.VolunteerApplication) error {
	_, err := s.db.ExecContext(ctx, `
		insert into volunteer_applications (`+appColumns+`)
		values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
	`, a.ID, a.ApplicantID, a.Motivation, a.Status, a.ApprovedBy, a.ApprovedAt, a.RejectedBy, a.RejectedAt,
		a.Reason, a.CreatedAt, a.UpdatedAt)
	return createErr(care.KindApplication, a.ID, err)
}

func (s appStore) Get(ctx context.Context, id string) (care.VolunteerApplication, error) {
	a, err := scanApp(s.db.QueryRowContext(ctx, `select `+appColumns+` from volunteer_applications where id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return care.VolunteerApplication{}, &care.NotFoundError{Kind: care.KindApplication, ID: id}
	}
	if err != nil {
		return care.VolunteerApplication{}, fmt.Errorf("get application: %w", err)
	}
	return a, nil
}

func (s appStore) Query(ctx context.Context, f care.ApplicationFilter) iter.Seq2[care.VolunteerApplication, error] {
	var w where
	w.eq("status", string(f.Status))
	w.eq("applicant_id", f.ApplicantID)
	q := `select ` + appColumns + ` from volunteer_applications` + w.clause() + ` order by created_at desc, id desc` + w.limit(f.Limit)
	return queryRows(ctx, s.db, q, w.args, scanApp)
}

func (s appStore) Swap(ctx context.Context, next care.VolunteerApplication, expect care.ApplicationStatus) error {
	res, err := s.db.ExecContext(ctx, `
		update volunteer_applications
		set status = $2, approved_by = $3, approved_at = $4, rejected_by = $5, rejected_at = $6,
			reason = $7, updated_at = $8
		where id = $1 and status = $9
	`, next.ID, next.Status, next.ApprovedBy, next.ApprovedAt, next.RejectedBy, next.RejectedAt,
		next.Reason, next.UpdatedAt, expect)
	if err != nil {
		return fmt.Errorf("update application: %w", err)
	}
	return resolveSwap(ctx, res, care.KindApplication, next.ID, string(expect), func() (string, bool, error) {
		var status string
		err := s.db.QueryRowContext(ctx, `select status from volunteer_applications where id = $1`, next.ID).Scan(&status)
		return status, true, err
	})
}

// --- volunteers ---

type volStore struct{ db *sql.DB }

func scanVol(row scanner) (care.Volunteer, error) {
	var v care.Volunteer
	err := row.Scan(&v.ID, &v.ActiveRequests, &v.CreatedAt, &v.UpdatedAt)
	return v, err
}

func (s volStore) Ensure(ctx context.Context, v care.Volunteer) (care.Volunteer, error) {
	if _, err := s.db.ExecContext(ctx, `
		insert into volunteers (id, active_requests, created_at, updated_at)
		values ($1, $2, $3, $4)
		on conflict (id) do nothing
	`, v.ID, v.ActiveRequests, v.CreatedAt, v.UpdatedAt); err != nil {
		return care.Volunteer{}, fmt.Errorf("insert volunteer: %w", err)
	}
	return s.Get(ctx, v.ID)
}

func (s volStore) Get(ctx context.Context, id string) (care.Volunteer, error) {
	v, err := scanVol(s.db.QueryRowContext(ctx, `select id, active_requests, created_at, updated_at from volunteers where id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return care.Volunteer{}, &care.NotFoundError{Kind: care.KindVolunteer, ID: id}
	}
	if err != nil {
		return care.Volunteer{}, fmt.Errorf("get volunteer: %w", err)
	}
	return v, nil
}

func (s volStore) AdjustLoad(ctx context.Context, id string, delta int, at time.Time) (care.Volunteer, error) {
	v, err := scanVol(s.db.QueryRowContext(ctx, `
		update volunteers
		set active_requests = greatest(0, active_requests + $2), updated_at = $3
		where id = $1
		returning id, active_requests, created_at, updated_at
	`, id, delta, at))
	if errors.Is(err, sql.ErrNoRows) {
		return care.Volunteer{}, &care.NotFoundError{Kind: care.KindVolunteer, ID: id}
	}
	if err != nil {
		return care.Volunteer{}, fmt.Errorf("adjust volunteer load: %w", err)
	}
	return v, nil
}

// --- mood logs ---

type moodStore struct{ db *sql.DB }

func (s moodStore) Create(ctx context.Context, m care.MoodLog) error {
	_, err := s.db.ExecContext(ctx, `
		insert into mood_logs (id, senior_id, mood, note, created_at) values ($1, $2, $3, $4, $5)
	`, m.ID, m.SeniorID, m.Mood, m.Note, m.CreatedAt)
	return createErr(care.KindMoodLog, m.ID, err)
}

func (s moodStore) Query(ctx context.Context, f care.MoodFilter) iter.Seq2[care.MoodLog, error] {
	var w where
	w.eq("senior_id", f.SeniorID)
	q := `select id, senior_id, mood, note, created_at from mood_logs` + w.clause() + ` order by created_at desc, id desc` + w.limit(f.Limit)
	return queryRows(ctx, s.db, q, w.args, func(row scanner) (care.MoodLog, error) {
		var m care.MoodLog
		err := row.Scan(&m.ID, &m.SeniorID, &m.Mood, &m.Note, &m.CreatedAt)
		return m, err
	})
}
