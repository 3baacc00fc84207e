package care

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestInMemoryQueryOrderAndLimit(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		r := HelpRequest{
			ID:        fmt.Sprintf("r%d", i),
			SeniorID:  "S1",
			Status:    HelpPending,
			CreatedAt: t0.Add(time.Duration(i/2) * time.Minute),
		}
		if err := s.HelpRequests().Create(ctx, r); err != nil {
			t.Fatal(err)
		}
	}
	got, err := Collect(s.HelpRequests().Query(ctx, HelpRequestFilter{Limit: 3}))
	if err != nil {
		t.Fatal(err)
	}
	var order []string
	for _, r := range got {
		order = append(order, r.ID)
	}
	if fmt.Sprint(order) != "[r4 r3 r2]" {
		t.Fatalf("unexpected order: %v", order)
	}

	if err := s.HelpRequests().Create(ctx, HelpRequest{ID: "r1"}); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected duplicate create conflict, got %v", err)
	}
}

func TestInMemoryQueryStopsEarly(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_ = s.MoodLogs().Create(ctx, MoodLog{ID: fmt.Sprintf("m%d", i), SeniorID: "S1", Mood: 3, CreatedAt: t0})
	}
	n := 0
	for _, err := range s.MoodLogs().Query(ctx, MoodFilter{SeniorID: "S1"}) {
		if err != nil {
			t.Fatal(err)
		}
		n++
		break
	}
	if n != 1 {
		t.Fatalf("expected early stop, got %d", n)
	}

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	if _, err := Collect(s.MoodLogs().Query(cancelled, MoodFilter{})); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context error, got %v", err)
	}
}

func TestInMemorySwapIsCompareAndSet(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()
	a := SOSAlert{ID: "a1", Status: SOSActive, CreatedAt: t0}
	_ = s.SOSAlerts().Create(ctx, a)

	next := a
	next.Status = SOSAcknowledged
	if err := s.SOSAlerts().Swap(ctx, next, SOSActive); err != nil {
		t.Fatal(err)
	}
	var ce *ConflictError
	if err := s.SOSAlerts().Swap(ctx, next, SOSActive); !errors.As(err, &ce) || ce.Actual != string(SOSAcknowledged) {
		t.Fatalf("expected conflict reporting actual status, got %v", err)
	}
	if err := s.SOSAlerts().Swap(ctx, SOSAlert{ID: "missing"}, SOSActive); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestInMemoryReturnsCopies(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()
	_ = s.HelpRequests().Create(ctx, HelpRequest{ID: "r1", Status: HelpActive, AssignedTo: strPtr("V1")})

	got, _ := s.HelpRequests().Get(ctx, "r1")
	*got.AssignedTo = "mutated"

	again, _ := s.HelpRequests().Get(ctx, "r1")
	if again.Assignee() != "V1" {
		t.Fatalf("store leaked internal pointer: %s", again.Assignee())
	}
}

func TestInMemoryVolunteerLoadFloorsAtZero(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()
	if _, err := s.Volunteers().Ensure(ctx, Volunteer{ID: "V1", CreatedAt: t0}); err != nil {
		t.Fatal(err)
	}
	v, err := s.Volunteers().AdjustLoad(ctx, "V1", -1, t0)
	if err != nil {
		t.Fatal(err)
	}
	if v.ActiveRequests != 0 {
		t.Fatalf("expected floor at zero, got %d", v.ActiveRequests)
	}
	if _, err := s.Volunteers().AdjustLoad(ctx, "nobody", 1, t0); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestNotificationFilterMatches(t *testing.T) {
	direct := Notification{TargetUserID: "S1"}
	broadcast := Notification{TargetRole: RoleVolunteer}
	recipient := NotificationFilter{TargetUserID: "V1", TargetRole: RoleVolunteer}

	if !recipient.Matches(broadcast) || recipient.Matches(direct) {
		t.Fatal("recipient view mismatch")
	}
	if !(NotificationFilter{TargetUserID: "S1"}).Matches(direct) {
		t.Fatal("expected direct match")
	}
	if (NotificationFilter{UnreadOnly: true}).Matches(Notification{Read: true}) {
		t.Fatal("read notification matched unread filter")
	}
}
