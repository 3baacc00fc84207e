package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"iter"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"kinhelp.org/internal/care"
)

const pgErrUniqueViolation = "23505"

// Store implements care.Store on PostgreSQL. Transitions are single conditional updates
// (`where id = $1 and status = $n`); zero rows affected is resolved into NotFound or Conflict.
type Store struct {
	db *sql.DB
}

var _ care.Store = (*Store)(nil)

func Open(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &Store{db: db}, nil
}

// New wraps an existing handle (tests use sqlmock).
func New(db *sql.DB) *Store { return &Store{db: db} }

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *Store) HelpRequests() care.HelpRequestStore   { return helpStore{s.db} }
func (s *Store) SOSAlerts() care.SOSAlertStore         { return sosStore{s.db} }
func (s *Store) Notifications() care.NotificationStore { return noteStore{s.db} }
func (s *Store) Applications() care.ApplicationStore   { return appStore{s.db} }
func (s *Store) Volunteers() care.VolunteerStore       { return volStore{s.db} }
func (s *Store) MoodLogs() care.MoodLogStore           { return moodStore{s.db} }

// --- help requests ---

type helpStore struct{ db *sql.DB }

const helpColumns = `id, senior_id, category, priority, description, status, assigned_to,
	created_at, updated_at, accepted_at, completed_at, removed_at`

func scanHelp(row scanner) (care.HelpRequest, error) {
	var r care.HelpRequest
	err := row.Scan(&r.ID, &r.SeniorID, &r.Category, &r.Priority, &r.Description, &r.Status, &r.AssignedTo,
		&r.CreatedAt, &r.UpdatedAt, &r.AcceptedAt, &r.CompletedAt, &r.RemovedAt)
	return r, err
}

func (h helpStore) Create(ctx context.Context, r care.HelpRequest) error {
	_, err := h.db.ExecContext(ctx, `
		insert into help_requests (`+helpColumns+`)
		values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
	`, r.ID, r.SeniorID, r.Category, r.Priority, r.Description, r.Status, r.AssignedTo,
		r.CreatedAt, r.UpdatedAt, r.AcceptedAt, r.CompletedAt, r.RemovedAt)
	return createErr(care.KindHelpRequest, r.ID, err)
}

func (h helpStore) Get(ctx context.Context, id string) (care.HelpRequest, error) {
	r, err := scanHelp(h.db.QueryRowContext(ctx, `select `+helpColumns+` from help_requests where id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return care.HelpRequest{}, &care.NotFoundError{Kind: care.KindHelpRequest, ID: id}
	}
	if err != nil {
		return care.HelpRequest{}, fmt.Errorf("get help request: %w", err)
	}
	return r, nil
}

func (h helpStore) Query(ctx context.Context, f care.HelpRequestFilter) iter.Seq2[care.HelpRequest, error] {
	var w where
	w.raw("removed_at is null")
	w.eq("status", string(f.Status))
	w.eq("senior_id", f.SeniorID)
	w.eq("assigned_to", f.AssignedTo)
	q := `select ` + helpColumns + ` from help_requests` + w.clause() + ` order by created_at desc, id desc` + w.limit(f.Limit)
	return queryRows(ctx, h.db, q, w.args, scanHelp)
}

func (h helpStore) Swap(ctx context.Context, next care.HelpRequest, expect care.HelpStatus) error {
	res, err := h.db.ExecContext(ctx, `
		update help_requests
		set category = $2, priority = $3, description = $4, status = $5, assigned_to = $6,
			updated_at = $7, accepted_at = $8, completed_at = $9, removed_at = $10
		where id = $1 and status = $11 and removed_at is null
	`, next.ID, next.Category, next.Priority, next.Description, next.Status, next.AssignedTo,
		next.UpdatedAt, next.AcceptedAt, next.CompletedAt, next.RemovedAt, expect)
	if err != nil {
		return fmt.Errorf("update help request: %w", err)
	}
	return resolveSwap(ctx, res, care.KindHelpRequest, next.ID, string(expect), func() (string, bool, error) {
		var status string
		var removed *time.Time
		err := h.db.QueryRowContext(ctx, `select status, removed_at from help_requests where id = $1`, next.ID).Scan(&status, &removed)
		return status, removed == nil, err
	})
}

// --- SOS alerts ---

type sosStore struct{ db *sql.DB }

const sosColumns = `id, senior_id, message, status, acknowledged_by, escalated_by, escalation_reason,
	resolved_by, created_at, updated_at, resolved_at`

func scanSOS(row scanner) (care.SOSAlert, error) {
	var a care.SOSAlert
	err := row.Scan(&a.ID, &a.SeniorID, &a.Message, &a.Status, &a.AcknowledgedBy, &a.EscalatedBy,
		&a.EscalationReason, &a.ResolvedBy, &a.CreatedAt, &a.UpdatedAt, &a.ResolvedAt)
	return a, err
}

func (s sosStore) Create(ctx context.Context, a care.SOSAlert) error {
	_, err := s.db.ExecContext(ctx, `
		insert into sos_alerts (`+sosColumns+`)
		values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
	`, a.ID, a.SeniorID, a.Message, a.Status, a.AcknowledgedBy, a.EscalatedBy, a.EscalationReason,
		a.ResolvedBy, a.CreatedAt, a.UpdatedAt, a.ResolvedAt)
	return createErr(care.KindSOSAlert, a.ID, err)
}

func (s sosStore) Get(ctx context.Context, id string) (care.SOSAlert, error) {
	a, err := scanSOS(s.db.QueryRowContext(ctx, `select `+sosColumns+` from sos_alerts where id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return care.SOSAlert{}, &care.NotFoundError{Kind: care.KindSOSAlert, ID: id}
	}
	if err != nil {
		return care.SOSAlert{}, fmt.Errorf("get sos alert: %w", err)
	}
	return a, nil
}

func (s sosStore) Query(ctx context.Context, f care.SOSFilter) iter.Seq2[care.SOSAlert, error] {
	var w where
	w.eq("status", string(f.Status))
	w.eq("senior_id", f.SeniorID)
	q := `select ` + sosColumns + ` from sos_alerts` + w.clause() + ` order by created_at desc, id desc` + w.limit(f.Limit)
	return queryRows(ctx, s.db, q, w.args, scanSOS)
}

func (s sosStore) Swap(ctx context.Context, next care.SOSAlert, expect care.SOSStatus) error {
	res, err := s.db.ExecContext(ctx, `
		update sos_alerts
		set status = $2, acknowledged_by = $3, escalated_by = $4, escalation_reason = $5,
			resolved_by = $6, updated_at = $7, resolved_at = $8
		where id = $1 and status = $9
	`, next.ID, next.Status, next.AcknowledgedBy, next.EscalatedBy, next.EscalationReason,
		next.ResolvedBy, next.UpdatedAt, next.ResolvedAt, expect)
	if err != nil {
		return fmt.Errorf("update sos alert: %w", err)
	}
	return resolveSwap(ctx, res, care.KindSOSAlert, next.ID, string(expect), func() (string, bool, error) {
		var status string
		err := s.db.QueryRowContext(ctx, `select status from sos_alerts where id = $1`, next.ID).Scan(&status)
		return status, true, err
	})
}

// --- shared helpers ---

type scanner interface {
	Scan(dest ...any) error
}

// queryRows runs q lazily: nothing is sent until the sequence is ranged over, and rows are
// closed when the consumer stops early.
func queryRows[T any](ctx context.Context, db *sql.DB, q string, args []any, scan func(scanner) (T, error)) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		var zero T
		rows, err := db.QueryContext(ctx, q, args...)
		if err != nil {
			yield(zero, fmt.Errorf("query: %w", err))
			return
		}
		defer rows.Close()
		for rows.Next() {
			item, err := scan(rows)
			if err != nil {
				yield(zero, fmt.Errorf("scan: %w", err))
				return
			}
			if !yield(item, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(zero, err)
		}
	}
}

// resolveSwap turns a zero-row conditional update into NotFound or Conflict. current reports
// the stored status and whether the record is still live.
func resolveSwap(ctx context.Context, res sql.Result, kind, id, expect string, current func() (string, bool, error)) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 1 {
		return nil
	}
	status, live, err := current()
	if errors.Is(err, sql.ErrNoRows) || (err == nil && !live) {
		return &care.NotFoundError{Kind: kind, ID: id}
	}
	if err != nil {
		return fmt.Errorf("read %s after conflict: %w", kind, err)
	}
	return &care.ConflictError{Kind: kind, ID: id, Expected: expect, Actual: status}
}

func createErr(kind, id string, err error) error {
	if err == nil {
		return nil
	}
	if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
		return &care.ConflictError{Kind: kind, ID: id, Expected: "absent", Actual: "present"}
	}
	return fmt.Errorf("insert %s: %w", kind, err)
}

func maybePgError(err error) (*pgconn.PgError, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr, true
	}
	return nil, false
}

// where accumulates positional predicates.
type where struct {
	clauses []string
	args    []any
}

func (w *where) raw(clause string) { w.clauses = append(w.clauses, clause) }

func (w *where) eq(col, v string) {
	if v == "" {
		return
	}
	w.args = append(w.args, v)
	w.clauses = append(w.clauses, fmt.Sprintf("%s = $%d", col, len(w.args)))
}

func (w *where) clause() string {
	if len(w.clauses) == 0 {
		return ""
	}
	return " where " + strings.Join(w.clauses, " and ")
}

func (w *where) limit(n int) string {
	if n <= 0 {
		return ""
	}
	w.args = append(w.args, n)
	return fmt.Sprintf(" limit $%d", len(w.args))
}
