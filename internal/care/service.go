package care

import (
	"context"
	"errors"
	"iter"
	"strings"
	"time"

	"go.uber.org/zap"

	"kinhelp.org/internal/ids"
	"kinhelp.org/internal/obs"
)

// Service is the single writer of care entities. Every mutation reads the current record, runs
// the transition engine, commits with a compare-and-set and then emits the mapped notification.
type Service struct {
	store    Store
	emitter  Emitter
	now      func() time.Time
	newID    func() string
	onCommit []func(context.Context, Transition)
}

// Transition describes one committed status change. From is empty for creations.
type Transition struct {
	Kind  string
	ID    string
	From  string
	To    string
	Actor Actor
}

type Option func(*Service)

// WithEmitter replaces the default store-only emitter (e.g. to add real-time sinks).
func WithEmitter(e Emitter) Option { return func(s *Service) { s.emitter = e } }

func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

func WithIDs(newID func() string) Option { return func(s *Service) { s.newID = newID } }

// WithCommitHook runs fn after every committed transition, before notifications go out.
func WithCommitHook(fn func(context.Context, Transition)) Option {
	return func(s *Service) { s.onCommit = append(s.onCommit, fn) }
}

func NewService(store Store, opts ...Option) *Service {
	s := &Service{
		store: store,
		now:   func() time.Time { return time.Now().UTC() },
		newID: ids.New,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.emitter == nil {
		s.emitter = StoreEmitter{Store: store, NewID: s.newID}
	}
	return s
}

// emit runs after a commit. A failure is logged and returned as *NotificationError so the
// caller still receives the committed record.
func (s *Service) emit(ctx context.Context, ev Event, subjectID string) error {
	ev.At = s.now()
	n, err := s.emitter.Emit(ctx, ev)
	if err != nil {
		obs.Logger().Warn("notification_failed",
			zap.String("event", string(ev.Type)),
			zap.String("subject_id", subjectID),
			zap.Error(err))
		return &NotificationError{Event: ev.Type, SubjectID: subjectID, Err: err}
	}
	obs.RecordNotification(string(n.Type))
	return nil
}

func (s *Service) committed(ctx context.Context, t Transition) {
	obs.RecordTransition(t.Kind, t.To)
	for _, fn := range s.onCommit {
		fn(ctx, t)
	}
}

func conflictAware(kind string, err error) error {
	if errors.Is(err, ErrConflict) {
		obs.RecordConflict(kind)
	}
	return err
}

// --- help requests ---

// NewHelpRequest is the caller-supplied part of a help request.
type NewHelpRequest struct {
	Category    string   `json:"category"`
	Priority    Priority `json:"priority"`
	Description string   `json:"description"`
}

// CreateHelpRequest stores a pending request for seniorID. Seniors may only create their own
// requests; admins may create on behalf of any senior.
func (s *Service) CreateHelpRequest(ctx context.Context, actor Actor, seniorID string, in NewHelpRequest) (HelpRequest, error) {
	seniorID = strings.TrimSpace(seniorID)
	if seniorID == "" && actor.Role == RoleSenior {
		seniorID = actor.ID
	}
	switch actor.Role {
	case RoleSenior:
		if seniorID != actor.ID {
			return HelpRequest{}, &ForbiddenError{Role: actor.Role, Action: "create requests for another senior"}
		}
	case RoleAdmin:
	default:
		return HelpRequest{}, &ForbiddenError{Role: actor.Role, Action: "create help requests"}
	}
	if seniorID == "" {
		return HelpRequest{}, invalid("senior_id", "is required")
	}
	category := strings.TrimSpace(in.Category)
	if category == "" {
		return HelpRequest{}, invalid("category", "is required")
	}
	if in.Priority == "" {
		in.Priority = PriorityMedium
	}
	if !in.Priority.Valid() {
		return HelpRequest{}, invalid("priority", "must be low, medium or high")
	}

	now := s.now()
	r := HelpRequest{
		ID:          s.newID(),
		SeniorID:    seniorID,
		Category:    category,
		Priority:    in.Priority,
		Description: strings.TrimSpace(in.Description),
		Status:      HelpPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.HelpRequests().Create(ctx, r); err != nil {
		return HelpRequest{}, err
	}
	s.committed(ctx, Transition{Kind: KindHelpRequest, ID: r.ID, To: string(HelpPending), Actor: actor})
	return r, s.emit(ctx, Event{Type: EventHelpCreated, Actor: actor, Help: &r}, r.ID)
}

// GetHelpRequest returns a live request. Removed requests and other seniors' requests read as
// not found for senior actors.
func (s *Service) GetHelpRequest(ctx context.Context, actor Actor, id string) (HelpRequest, error) {
	r, err := s.liveHelp(ctx, id)
	if err != nil {
		return HelpRequest{}, err
	}
	if actor.Role == RoleSenior && r.SeniorID != actor.ID {
		return HelpRequest{}, notFound(KindHelpRequest, id)
	}
	return r, nil
}

// ListHelpRequests queries requests; seniors only ever see their own.
func (s *Service) ListHelpRequests(ctx context.Context, actor Actor, f HelpRequestFilter) iter.Seq2[HelpRequest, error] {
	if actor.Role == RoleSenior {
		f.SeniorID = actor.ID
	}
	return s.store.HelpRequests().Query(ctx, f)
}

func (s *Service) liveHelp(ctx context.Context, id string) (HelpRequest, error) {
	r, err := s.store.HelpRequests().Get(ctx, id)
	if err != nil {
		return HelpRequest{}, err
	}
	if r.RemovedAt != nil {
		return HelpRequest{}, notFound(KindHelpRequest, id)
	}
	return r, nil
}

// CompleteRequest closes an active request. Only the assignee or an admin may complete it.
func (s *Service) CompleteRequest(ctx context.Context, actor Actor, id string) (HelpRequest, error) {
	cur, err := s.liveHelp(ctx, id)
	if err != nil {
		return HelpRequest{}, err
	}
	next, err := ApplyHelp(cur, HelpTransition{To: HelpCompleted, Actor: actor}, s.now())
	if err != nil {
		return HelpRequest{}, err
	}
	if err := s.store.HelpRequests().Swap(ctx, next, cur.Status); err != nil {
		return HelpRequest{}, conflictAware(KindHelpRequest, err)
	}
	s.committed(ctx, Transition{Kind: KindHelpRequest, ID: next.ID, From: string(cur.Status), To: string(HelpCompleted), Actor: actor})
	s.releaseLoad(ctx, next.Assignee(), next.UpdatedAt)
	return next, s.emit(ctx, Event{Type: EventHelpCompleted, Actor: actor, Help: &next}, next.ID)
}

// RemoveRequest withdraws a pending request (owner senior or admin). The record is kept with
// RemovedAt stamped and disappears from reads.
func (s *Service) RemoveRequest(ctx context.Context, actor Actor, id string) error {
	cur, err := s.liveHelp(ctx, id)
	if err != nil {
		return err
	}
	switch {
	case actor.Role == RoleAdmin:
	case actor.Role == RoleSenior && actor.ID == cur.SeniorID:
	default:
		return &ForbiddenError{Role: actor.Role, Action: "remove this help request"}
	}
	if cur.Status != HelpPending {
		return &InvalidTransitionError{Kind: KindHelpRequest, ID: id, From: string(cur.Status), To: "removed"}
	}
	next := cur
	next.UpdatedAt = laterOf(cur.UpdatedAt, s.now())
	next.RemovedAt = timePtr(next.UpdatedAt)
	if err := s.store.HelpRequests().Swap(ctx, next, HelpPending); err != nil {
		return conflictAware(KindHelpRequest, err)
	}
	s.committed(ctx, Transition{Kind: KindHelpRequest, ID: next.ID, From: string(cur.Status), To: "removed", Actor: actor})
	return nil
}

// --- SOS alerts ---

// CreateSOSAlert raises an active alert for seniorID. Seniors raise their own; the system role
// (automated triggers) and admins may raise one for any senior.
func (s *Service) CreateSOSAlert(ctx context.Context, actor Actor, seniorID, message string) (SOSAlert, error) {
	seniorID = strings.TrimSpace(seniorID)
	if seniorID == "" && actor.Role == RoleSenior {
		seniorID = actor.ID
	}
	switch actor.Role {
	case RoleSenior:
		if seniorID != actor.ID {
			return SOSAlert{}, &ForbiddenError{Role: actor.Role, Action: "raise SOS for another senior"}
		}
	case RoleSystem, RoleAdmin:
	default:
		return SOSAlert{}, &ForbiddenError{Role: actor.Role, Action: "raise SOS alerts"}
	}
	if seniorID == "" {
		return SOSAlert{}, invalid("senior_id", "is required")
	}

	now := s.now()
	a := SOSAlert{
		ID:        s.newID(),
		SeniorID:  seniorID,
		Message:   strings.TrimSpace(message),
		Status:    SOSActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.SOSAlerts().Create(ctx, a); err != nil {
		return SOSAlert{}, err
	}
	s.committed(ctx, Transition{Kind: KindSOSAlert, ID: a.ID, To: string(SOSActive), Actor: actor})
	return a, s.emit(ctx, Event{Type: EventSOSCreated, Actor: actor, SOS: &a}, a.ID)
}

func (s *Service) AcknowledgeSOS(ctx context.Context, actor Actor, id string) (SOSAlert, error) {
	return s.transitionSOS(ctx, id, SOSTransition{To: SOSAcknowledged, Actor: actor}, EventSOSAcknowledged)
}

func (s *Service) EscalateSOS(ctx context.Context, actor Actor, id, reason string) (SOSAlert, error) {
	return s.transitionSOS(ctx, id, SOSTransition{To: SOSEscalated, Actor: actor, Reason: reason}, EventSOSEscalated)
}

func (s *Service) ResolveSOS(ctx context.Context, actor Actor, id string) (SOSAlert, error) {
	return s.transitionSOS(ctx, id, SOSTransition{To: SOSResolved, Actor: actor}, EventSOSResolved)
}

func (s *Service) transitionSOS(ctx context.Context, id string, t SOSTransition, ev EventType) (SOSAlert, error) {
	cur, err := s.store.SOSAlerts().Get(ctx, id)
	if err != nil {
		return SOSAlert{}, err
	}
	next, err := ApplySOS(cur, t, s.now())
	if err != nil {
		return SOSAlert{}, err
	}
	if err := s.store.SOSAlerts().Swap(ctx, next, cur.Status); err != nil {
		return SOSAlert{}, conflictAware(KindSOSAlert, err)
	}
	s.committed(ctx, Transition{Kind: KindSOSAlert, ID: next.ID, From: string(cur.Status), To: string(next.Status), Actor: t.Actor})
	return next, s.emit(ctx, Event{Type: ev, Actor: t.Actor, SOS: &next}, next.ID)
}

func (s *Service) GetSOSAlert(ctx context.Context, actor Actor, id string) (SOSAlert, error) {
	a, err := s.store.SOSAlerts().Get(ctx, id)
	if err != nil {
		return SOSAlert{}, err
	}
	if actor.Role == RoleSenior && a.SeniorID != actor.ID {
		return SOSAlert{}, notFound(KindSOSAlert, id)
	}
	return a, nil
}

func (s *Service) ListSOSAlerts(ctx context.Context, actor Actor, f SOSFilter) iter.Seq2[SOSAlert, error] {
	if actor.Role == RoleSenior {
		f.SeniorID = actor.ID
	}
	return s.store.SOSAlerts().Query(ctx, f)
}

// --- volunteer applications ---

// SubmitApplication files a pending application for the acting user. A second pending
// application from the same applicant is a conflict.
func (s *Service) SubmitApplication(ctx context.Context, actor Actor, motivation string) (VolunteerApplication, error) {
	if strings.TrimSpace(actor.ID) == "" {
		return VolunteerApplication{}, invalid("applicant_id", "is required")
	}
	if actor.Role == RoleSystem {
		return VolunteerApplication{}, &ForbiddenError{Role: actor.Role, Action: "apply as a volunteer"}
	}
	pending, err := Collect(s.store.Applications().Query(ctx, ApplicationFilter{
		Status: ApplicationPending, ApplicantID: actor.ID, Limit: 1,
	}))
	if err != nil {
		return VolunteerApplication{}, err
	}
	if len(pending) > 0 {
		return VolunteerApplication{}, &ConflictError{Kind: KindApplication, ID: pending[0].ID, Expected: "no pending application", Actual: string(ApplicationPending)}
	}

	now := s.now()
	a := VolunteerApplication{
		ID:          s.newID(),
		ApplicantID: actor.ID,
		Motivation:  strings.TrimSpace(motivation),
		Status:      ApplicationPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.Applications().Create(ctx, a); err != nil {
		return VolunteerApplication{}, err
	}
	s.committed(ctx, Transition{Kind: KindApplication, ID: a.ID, To: string(ApplicationPending), Actor: actor})
	return a, s.emit(ctx, Event{Type: EventApplicationSubmitted, Actor: actor, Application: &a}, a.ID)
}

// ApproveVolunteer approves a pending application and registers the applicant as a volunteer.
// Approving an approved application returns it unchanged without a notification.
func (s *Service) ApproveVolunteer(ctx context.Context, actor Actor, id string) (VolunteerApplication, error) {
	return s.decide(ctx, id, ApplicationDecision{To: ApplicationApproved, Actor: actor}, EventApplicationApproved)
}

// RejectVolunteer rejects a pending application; reason is required.
func (s *Service) RejectVolunteer(ctx context.Context, actor Actor, id, reason string) (VolunteerApplication, error) {
	return s.decide(ctx, id, ApplicationDecision{To: ApplicationRejected, Actor: actor, Reason: reason}, EventApplicationRejected)
}

func (s *Service) decide(ctx context.Context, id string, d ApplicationDecision, ev EventType) (VolunteerApplication, error) {
	cur, err := s.store.Applications().Get(ctx, id)
	if err != nil {
		return VolunteerApplication{}, err
	}
	next, changed, err := ApplyApplication(cur, d, s.now())
	if err != nil || !changed {
		return next, err
	}
	if err := s.store.Applications().Swap(ctx, next, cur.Status); err != nil {
		return VolunteerApplication{}, conflictAware(KindApplication, err)
	}
	s.committed(ctx, Transition{Kind: KindApplication, ID: next.ID, From: string(cur.Status), To: string(next.Status), Actor: d.Actor})
	if next.Status == ApplicationApproved {
		if _, err := s.store.Volunteers().Ensure(ctx, Volunteer{ID: next.ApplicantID, CreatedAt: next.UpdatedAt, UpdatedAt: next.UpdatedAt}); err != nil {
			obs.Logger().Error("volunteer_register_failed", zap.String("volunteer_id", next.ApplicantID), zap.Error(err))
		}
	}
	return next, s.emit(ctx, Event{Type: ev, Actor: d.Actor, Application: &next}, next.ID)
}

func (s *Service) GetApplication(ctx context.Context, actor Actor, id string) (VolunteerApplication, error) {
	a, err := s.store.Applications().Get(ctx, id)
	if err != nil {
		return VolunteerApplication{}, err
	}
	if actor.Role != RoleAdmin && a.ApplicantID != actor.ID {
		return VolunteerApplication{}, notFound(KindApplication, id)
	}
	return a, nil
}

// ListApplications returns all applications to admins and the caller's own to anyone else.
func (s *Service) ListApplications(ctx context.Context, actor Actor, f ApplicationFilter) iter.Seq2[VolunteerApplication, error] {
	if actor.Role != RoleAdmin {
		f.ApplicantID = actor.ID
	}
	return s.store.Applications().Query(ctx, f)
}

// --- notifications ---

// ListNotifications returns notifications addressed to the actor, directly or through its role.
func (s *Service) ListNotifications(ctx context.Context, actor Actor, unreadOnly bool, limit int) iter.Seq2[Notification, error] {
	return s.store.Notifications().Query(ctx, NotificationFilter{
		TargetUserID: actor.ID,
		TargetRole:   actor.Role,
		UnreadOnly:   unreadOnly,
		Limit:        limit,
	})
}

// MarkNotificationRead flips the read flag. Only a recipient may do so.
func (s *Service) MarkNotificationRead(ctx context.Context, actor Actor, id string) (Notification, error) {
	n, err := s.store.Notifications().Get(ctx, id)
	if err != nil {
		return Notification{}, err
	}
	if !n.AddressedTo(actor) {
		return Notification{}, &ForbiddenError{Role: actor.Role, Action: "mark another recipient's notification read"}
	}
	if n.Read {
		return n, nil
	}
	return s.store.Notifications().MarkRead(ctx, id, s.now())
}

// --- mood logs ---

func (s *Service) LogMood(ctx context.Context, actor Actor, mood int, note string) (MoodLog, error) {
	if actor.Role != RoleSenior {
		return MoodLog{}, &ForbiddenError{Role: actor.Role, Action: "log mood"}
	}
	if actor.ID == "" {
		return MoodLog{}, invalid("senior_id", "is required")
	}
	if mood < 1 || mood > 5 {
		return MoodLog{}, invalid("mood", "must be between 1 and 5")
	}
	l := MoodLog{
		ID:        s.newID(),
		SeniorID:  actor.ID,
		Mood:      mood,
		Note:      strings.TrimSpace(note),
		CreatedAt: s.now(),
	}
	if err := s.store.MoodLogs().Create(ctx, l); err != nil {
		return MoodLog{}, err
	}
	return l, nil
}

// ListMoodLogs returns a senior's check-ins. Seniors see their own; caregivers and admins any.
func (s *Service) ListMoodLogs(ctx context.Context, actor Actor, f MoodFilter) (iter.Seq2[MoodLog, error], error) {
	switch actor.Role {
	case RoleSenior:
		f.SeniorID = actor.ID
	case RoleCaregiver, RoleAdmin:
	default:
		return nil, &ForbiddenError{Role: actor.Role, Action: "read mood logs"}
	}
	return s.store.MoodLogs().Query(ctx, f), nil
}
