package care

import (
	"cmp"
	"context"
	"iter"
	"slices"
	"sync"
	"time"
)

// InMemory implements Store with in-process concurrency safety. A single lock serialises all
// writes, so compare-and-set reduces to a status check under the write lock.
type InMemory struct {
	mu    sync.RWMutex
	help  map[string]HelpRequest
	sos   map[string]SOSAlert
	notes map[string]Notification
	apps  map[string]VolunteerApplication
	vols  map[string]Volunteer
	moods map[string]MoodLog
}

var _ Store = (*InMemory)(nil)

// NewInMemory creates an empty store.
func NewInMemory() *InMemory {
	return &InMemory{
		help:  make(map[string]HelpRequest),
		sos:   make(map[string]SOSAlert),
		notes: make(map[string]Notification),
		apps:  make(map[string]VolunteerApplication),
		vols:  make(map[string]Volunteer),
		moods: make(map[string]MoodLog),
	}
}

func (s *InMemory) HelpRequests() HelpRequestStore   { return memHelp{s} }
func (s *InMemory) SOSAlerts() SOSAlertStore         { return memSOS{s} }
func (s *InMemory) Notifications() NotificationStore { return memNotes{s} }
func (s *InMemory) Applications() ApplicationStore   { return memApps{s} }
func (s *InMemory) Volunteers() VolunteerStore       { return memVols{s} }
func (s *InMemory) MoodLogs() MoodLogStore           { return memMoods{s} }

// --- help requests ---

type memHelp struct{ s *InMemory }

func (m memHelp) Create(ctx context.Context, r HelpRequest) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if _, ok := m.s.help[r.ID]; ok {
		return &ConflictError{Kind: KindHelpRequest, ID: r.ID, Expected: "absent", Actual: "present"}
	}
	m.s.help[r.ID] = cloneHelp(r)
	return nil
}

func (m memHelp) Get(ctx context.Context, id string) (HelpRequest, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	r, ok := m.s.help[id]
	if !ok {
		return HelpRequest{}, notFound(KindHelpRequest, id)
	}
	return cloneHelp(r), nil
}

func (m memHelp) Query(ctx context.Context, f HelpRequestFilter) iter.Seq2[HelpRequest, error] {
	m.s.mu.RLock()
	var res []HelpRequest
	for _, r := range m.s.help {
		if r.RemovedAt != nil {
			continue
		}
		if f.Status != "" && r.Status != f.Status {
			continue
		}
		if f.SeniorID != "" && r.SeniorID != f.SeniorID {
			continue
		}
		if f.AssignedTo != "" && r.Assignee() != f.AssignedTo {
			continue
		}
		res = append(res, cloneHelp(r))
	}
	m.s.mu.RUnlock()
	return yieldNewest(ctx, res, f.Limit, func(r HelpRequest) (time.Time, string) { return r.CreatedAt, r.ID })
}

func (m memHelp) Swap(ctx context.Context, next HelpRequest, expect HelpStatus) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	cur, ok := m.s.help[next.ID]
	if !ok || cur.RemovedAt != nil {
		return notFound(KindHelpRequest, next.ID)
	}
	if cur.Status != expect {
		return &ConflictError{Kind: KindHelpRequest, ID: next.ID, Expected: string(expect), Actual: string(cur.Status)}
	}
	m.s.help[next.ID] = cloneHelp(next)
	return nil
}

// --- SOS alerts ---

type memSOS struct{ s *InMemory }

func (m memSOS) Create(ctx context.Context, a SOSAlert) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if _, ok := m.s.sos[a.ID]; ok {
		return &ConflictError{Kind: KindSOSAlert, ID: a.ID, Expected: "absent", Actual: "present"}
	}
	m.s.sos[a.ID] = cloneSOS(a)
	return nil
}

func (m memSOS) Get(ctx context.Context, id string) (SOSAlert, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	a, ok := m.s.sos[id]
	if !ok {
		return SOSAlert{}, notFound(KindSOSAlert, id)
	}
	return cloneSOS(a), nil
}

func (m memSOS) Query(ctx context.Context, f SOSFilter) iter.Seq2[SOSAlert, error] {
	m.s.mu.RLock()
	var res []SOSAlert
	for _, a := range m.s.sos {
		if f.Status != "" && a.Status != f.Status {
			continue
		}
		if f.SeniorID != "" && a.SeniorID != f.SeniorID {
			continue
		}
		res = append(res, cloneSOS(a))
	}
	m.s.mu.RUnlock()
	return yieldNewest(ctx, res, f.Limit, func(a SOSAlert) (time.Time, string) { return a.CreatedAt, a.ID })
}

func (m memSOS) Swap(ctx context.Context, next SOSAlert, expect SOSStatus) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	cur, ok := m.s.sos[next.ID]
	if !ok {
		return notFound(KindSOSAlert, next.ID)
	}
	if cur.Status != expect {
		return &ConflictError{Kind: KindSOSAlert, ID: next.ID, Expected: string(expect), Actual: string(cur.Status)}
	}
	m.s.sos[next.ID] = cloneSOS(next)
	return nil
}

// --- notifications ---

type memNotes struct{ s *InMemory }

func (m memNotes) Create(ctx context.Context, n Notification) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if _, ok := m.s.notes[n.ID]; ok {
		return &ConflictError{Kind: KindNotification, ID: n.ID, Expected: "absent", Actual: "present"}
	}
	n.ReadAt = cloneTime(n.ReadAt)
	m.s.notes[n.ID] = n
	return nil
}

func (m memNotes) Get(ctx context.Context, id string) (Notification, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	n, ok := m.s.notes[id]
	if !ok {
		return Notification{}, notFound(KindNotification, id)
	}
	n.ReadAt = cloneTime(n.ReadAt)
	return n, nil
}

func (m memNotes) Query(ctx context.Context, f NotificationFilter) iter.Seq2[Notification, error] {
	m.s.mu.RLock()
	var res []Notification
	for _, n := range m.s.notes {
		if !f.Matches(n) {
			continue
		}
		n.ReadAt = cloneTime(n.ReadAt)
		res = append(res, n)
	}
	m.s.mu.RUnlock()
	return yieldNewest(ctx, res, f.Limit, func(n Notification) (time.Time, string) { return n.CreatedAt, n.ID })
}

func (m memNotes) MarkRead(ctx context.Context, id string, at time.Time) (Notification, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	n, ok := m.s.notes[id]
	if !ok {
		return Notification{}, notFound(KindNotification, id)
	}
	if !n.Read {
		n.Read = true
		n.ReadAt = timePtr(at)
		m.s.notes[id] = n
	}
	n.ReadAt = cloneTime(n.ReadAt)
	return n, nil
}

// --- volunteer applications ---

type memApps struct{ s *InMemory }

func (m memApps) Create(ctx context.Context, a VolunteerApplication) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if _, ok := m.s.apps[a.ID]; ok {
		return &ConflictError{Kind: KindApplication, ID: a.ID, Expected: "absent", Actual: "present"}
	}
	m.s.apps[a.ID] = cloneApp(a)
	return nil
}

func (m memApps) Get(ctx context.Context, id string) (VolunteerApplication, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	a, ok := m.s.apps[id]
	if !ok {
		return VolunteerApplication{}, notFound(KindApplication, id)
	}
	return cloneApp(a), nil
}

func (m memApps) Query(ctx context.Context, f ApplicationFilter) iter.Seq2[VolunteerApplication, error] {
	m.s.mu.RLock()
	var res []VolunteerApplication
	for _, a := range m.s.apps {
		if f.Status != "" && a.Status != f.Status {
			continue
		}
		if f.ApplicantID != "" && a.ApplicantID != f.ApplicantID {
			continue
		}
		res = append(res, cloneApp(a))
	}
	m.s.mu.RUnlock()
	return yieldNewest(ctx, res, f.Limit, func(a VolunteerApplication) (time.Time, string) { return a.CreatedAt, a.ID })
}

func (m memApps) Swap(ctx context.Context, next VolunteerApplication, expect ApplicationStatus) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	cur, ok := m.s.apps[next.ID]
	if !ok {
		return notFound(KindApplication, next.ID)
	}
	if cur.Status != expect {
		return &ConflictError{Kind: KindApplication, ID: next.ID, Expected: string(expect), Actual: string(cur.Status)}
	}
	m.s.apps[next.ID] = cloneApp(next)
	return nil
}

// --- volunteers ---

type memVols struct{ s *InMemory }

func (m memVols) Ensure(ctx context.Context, v Volunteer) (Volunteer, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if cur, ok := m.s.vols[v.ID]; ok {
		return cur, nil
	}
	m.s.vols[v.ID] = v
	return v, nil
}

func (m memVols) Get(ctx context.Context, id string) (Volunteer, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	v, ok := m.s.vols[id]
	if !ok {
		return Volunteer{}, notFound(KindVolunteer, id)
	}
	return v, nil
}

func (m memVols) AdjustLoad(ctx context.Context, id string, delta int, at time.Time) (Volunteer, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	v, ok := m.s.vols[id]
	if !ok {
		return Volunteer{}, notFound(KindVolunteer, id)
	}
	v.ActiveRequests = max(0, v.ActiveRequests+delta)
	v.UpdatedAt = at
	m.s.vols[id] = v
	return v, nil
}

// --- mood logs ---

type memMoods struct{ s *InMemory }

func (m memMoods) Create(ctx context.Context, l MoodLog) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if _, ok := m.s.moods[l.ID]; ok {
		return &ConflictError{Kind: KindMoodLog, ID: l.ID, Expected: "absent", Actual: "present"}
	}
	m.s.moods[l.ID] = l
	return nil
}

func (m memMoods) Query(ctx context.Context, f MoodFilter) iter.Seq2[MoodLog, error] {
	m.s.mu.RLock()
	var res []MoodLog
	for _, l := range m.s.moods {
		if f.SeniorID != "" && l.SeniorID != f.SeniorID {
			continue
		}
		res = append(res, l)
	}
	m.s.mu.RUnlock()
	return yieldNewest(ctx, res, f.Limit, func(l MoodLog) (time.Time, string) { return l.CreatedAt, l.ID })
}

// --- helpers ---

// yieldNewest sorts a snapshot newest first and yields it lazily, stopping on ctx cancellation.
func yieldNewest[T any](ctx context.Context, items []T, limit int, key func(T) (time.Time, string)) iter.Seq2[T, error] {
	slices.SortFunc(items, func(a, b T) int {
		ta, ia := key(a)
		tb, ib := key(b)
		if c := tb.Compare(ta); c != 0 {
			return c
		}
		return cmp.Compare(ib, ia)
	})
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return func(yield func(T, error) bool) {
		for _, item := range items {
			if err := ctx.Err(); err != nil {
				var zero T
				yield(zero, err)
				return
			}
			if !yield(item, nil) {
				return
			}
		}
	}
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func cloneStr(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func cloneHelp(r HelpRequest) HelpRequest {
	r.AssignedTo = cloneStr(r.AssignedTo)
	r.AcceptedAt = cloneTime(r.AcceptedAt)
	r.CompletedAt = cloneTime(r.CompletedAt)
	r.RemovedAt = cloneTime(r.RemovedAt)
	return r
}

func cloneSOS(a SOSAlert) SOSAlert {
	a.ResolvedAt = cloneTime(a.ResolvedAt)
	return a
}

func cloneApp(a VolunteerApplication) VolunteerApplication {
	a.ApprovedBy = cloneStr(a.ApprovedBy)
	a.ApprovedAt = cloneTime(a.ApprovedAt)
	a.RejectedBy = cloneStr(a.RejectedBy)
	a.RejectedAt = cloneTime(a.RejectedAt)
	a.Reason = cloneStr(a.Reason)
	return a
}
