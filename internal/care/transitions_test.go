package care

import (
	"errors"
	"testing"
	"time"
)

var t0 = time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)

func TestApplyHelpTable(t *testing.T) {
	pending := HelpRequest{ID: "r1", SeniorID: "S1", Status: HelpPending, CreatedAt: t0, UpdatedAt: t0}
	active := pending
	active.Status = HelpActive
	active.AssignedTo = strPtr("V1")
	active.AcceptedAt = timePtr(t0)
	completed := active
	completed.Status = HelpCompleted
	completed.CompletedAt = timePtr(t0)

	cases := []struct {
		name string
		cur  HelpRequest
		tr   HelpTransition
		want error
	}{
		{"volunteer accepts", pending, HelpTransition{To: HelpActive, Actor: v1}, nil},
		{"admin assigns", pending, HelpTransition{To: HelpActive, Actor: admin, AssignedTo: "V2"}, nil},
		{"admin without assignee", pending, HelpTransition{To: HelpActive, Actor: admin}, ErrValidation},
		{"volunteer for someone else", pending, HelpTransition{To: HelpActive, Actor: v1, AssignedTo: "V2"}, ErrForbidden},
		{"senior accepts", pending, HelpTransition{To: HelpActive, Actor: senior}, ErrForbidden},
		{"accept active", active, HelpTransition{To: HelpActive, Actor: v2}, ErrConflict},
		{"accept completed", completed, HelpTransition{To: HelpActive, Actor: v2}, ErrInvalidTransition},
		{"complete pending", pending, HelpTransition{To: HelpCompleted, Actor: admin}, ErrInvalidTransition},
		{"assignee completes", active, HelpTransition{To: HelpCompleted, Actor: v1}, nil},
		{"other volunteer completes", active, HelpTransition{To: HelpCompleted, Actor: v2}, ErrForbidden},
		{"caregiver completes", active, HelpTransition{To: HelpCompleted, Actor: caregiver}, ErrForbidden},
		{"complete completed", completed, HelpTransition{To: HelpCompleted, Actor: admin}, ErrInvalidTransition},
		{"unassign pending", pending, HelpTransition{To: HelpPending, Actor: admin}, ErrInvalidTransition},
		{"assignee unassigns", active, HelpTransition{To: HelpPending, Actor: v1}, nil},
		{"unknown target", pending, HelpTransition{To: "archived", Actor: admin}, ErrInvalidTransition},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			next, err := ApplyHelp(tc.cur, tc.tr, t0.Add(time.Minute))
			if tc.want == nil {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if (next.AssignedTo != nil) != (next.Status != HelpPending) {
					t.Fatalf("assignedTo invariant broken: %+v", next)
				}
				if (next.CompletedAt != nil) != (next.Status == HelpCompleted) {
					t.Fatalf("completedAt invariant broken: %+v", next)
				}
				return
			}
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestApplyHelpKeepsTimestampsMonotonic(t *testing.T) {
	cur := HelpRequest{ID: "r1", Status: HelpPending, CreatedAt: t0, UpdatedAt: t0}
	next, err := ApplyHelp(cur, HelpTransition{To: HelpActive, Actor: v1}, t0.Add(-time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if next.UpdatedAt.Before(cur.UpdatedAt) || next.AcceptedAt.Before(cur.UpdatedAt) {
		t.Fatalf("timestamps went backwards: %+v", next)
	}
}

func TestApplySOSTable(t *testing.T) {
	at := func(s SOSStatus) SOSAlert { return SOSAlert{ID: "a1", SeniorID: "S1", Status: s, CreatedAt: t0, UpdatedAt: t0} }
	cases := []struct {
		name string
		cur  SOSAlert
		tr   SOSTransition
		want error
	}{
		{"caregiver acknowledges", at(SOSActive), SOSTransition{To: SOSAcknowledged, Actor: caregiver}, nil},
		{"volunteer acknowledges", at(SOSActive), SOSTransition{To: SOSAcknowledged, Actor: v1}, ErrForbidden},
		{"acknowledge twice", at(SOSAcknowledged), SOSTransition{To: SOSAcknowledged, Actor: caregiver}, ErrInvalidTransition},
		{"admin escalates active", at(SOSActive), SOSTransition{To: SOSEscalated, Actor: admin, Reason: "x"}, nil},
		{"admin escalates acknowledged", at(SOSAcknowledged), SOSTransition{To: SOSEscalated, Actor: admin, Reason: "x"}, nil},
		{"escalate without reason", at(SOSAcknowledged), SOSTransition{To: SOSEscalated, Actor: admin}, ErrValidation},
		{"escalate twice", at(SOSEscalated), SOSTransition{To: SOSEscalated, Actor: admin, Reason: "x"}, ErrInvalidTransition},
		{"resolve active", at(SOSActive), SOSTransition{To: SOSResolved, Actor: caregiver}, nil},
		{"resolve escalated", at(SOSEscalated), SOSTransition{To: SOSResolved, Actor: admin}, nil},
		{"senior resolves", at(SOSActive), SOSTransition{To: SOSResolved, Actor: senior}, ErrForbidden},
		{"resolved is terminal", at(SOSResolved), SOSTransition{To: SOSAcknowledged, Actor: admin}, ErrInvalidTransition},
		{"back to active", at(SOSAcknowledged), SOSTransition{To: SOSActive, Actor: admin}, ErrInvalidTransition},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			next, err := ApplySOS(tc.cur, tc.tr, t0.Add(time.Minute))
			if tc.want == nil {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if next.Status != tc.tr.To {
					t.Fatalf("expected %s, got %s", tc.tr.To, next.Status)
				}
				if (next.ResolvedAt != nil) != (next.Status == SOSResolved) {
					t.Fatalf("resolvedAt invariant broken: %+v", next)
				}
				return
			}
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestApplyApplicationIdempotence(t *testing.T) {
	approved := VolunteerApplication{ID: "ap1", ApplicantID: "U1", Status: ApplicationApproved, ApprovedBy: strPtr("A1"), UpdatedAt: t0}

	next, changed, err := ApplyApplication(approved, ApplicationDecision{To: ApplicationApproved, Actor: Actor{ID: "A2", Role: RoleAdmin}}, t0.Add(time.Hour))
	if err != nil || changed {
		t.Fatalf("expected no-op, got changed=%v err=%v", changed, err)
	}
	if *next.ApprovedBy != "A1" || !next.UpdatedAt.Equal(t0) {
		t.Fatalf("no-op altered record: %+v", next)
	}

	_, _, err = ApplyApplication(approved, ApplicationDecision{To: ApplicationRejected, Actor: admin, Reason: "x"}, t0)
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected InvalidTransitionError, got %v", err)
	}
	_, _, err = ApplyApplication(approved, ApplicationDecision{To: ApplicationPending, Actor: admin}, t0)
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected InvalidTransitionError, got %v", err)
	}
}

func TestErrorsCarryContext(t *testing.T) {
	err := error(&ConflictError{Kind: KindHelpRequest, ID: "r1", Expected: "pending", Actual: "active"})
	var ce *ConflictError
	if !errors.As(err, &ce) || ce.Actual != "active" {
		t.Fatalf("expected ConflictError details, got %v", err)
	}
	if errors.Is(err, ErrNotFound) {
		t.Fatal("conflict must not match not found")
	}
	if got := err.Error(); got != `help_request "r1": conflict, expected status pending but found active` {
		t.Fatalf("unexpected message: %s", got)
	}
}
