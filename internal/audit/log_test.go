package audit

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"kinhelp.org/internal/auth"
	"kinhelp.org/internal/care"
	"kinhelp.org/internal/obs"
)

func captureLogs(t *testing.T) *observer.ObservedLogs {
	t.Helper()
	core, logs := observer.New(zap.InfoLevel)
	t.Cleanup(obs.SetLogger(zap.New(core)))
	return logs
}

func TestLogEvent(t *testing.T) {
	logs := captureLogs(t)

	ctx := WithRequestID(context.Background(), "req-123")
	ctx = auth.ContextWithUser(ctx, "user-42", []string{"admin"})

	if err := LogEvent(ctx, "audit.test", map[string]any{"foo": "bar"}); err != nil {
		t.Fatalf("LogEvent failed: %v", err)
	}
	if logs.Len() != 1 {
		t.Fatalf("expected one entry, got %d", logs.Len())
	}
	entry := logs.All()[0].ContextMap()
	if entry["type"] != "audit" || entry["event"] != "audit.test" {
		t.Fatalf("unexpected entry: %v", entry)
	}
	if entry["request_id"] != "req-123" || entry["user_id"] != "user-42" {
		t.Fatalf("context ids missing: %v", entry)
	}
	fields, ok := entry["fields"].(map[string]any)
	if !ok || fields["foo"] != "bar" {
		t.Fatalf("fields missing or incorrect: %v", entry["fields"])
	}
}

func TestLogEventRequiresName(t *testing.T) {
	captureLogs(t)
	if err := LogEvent(context.Background(), "  ", nil); err == nil {
		t.Fatal("expected error for empty event name")
	}
}

func TestWatchSessions(t *testing.T) {
	logs := captureLogs(t)
	t.Setenv("CARE_AUTH_SECRET", "test-secret")
	auth.ResetSecretForTests()
	t.Cleanup(auth.ResetSecretForTests)

	sessions := auth.NewSessions()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		WatchSessions(ctx, sessions)
		close(done)
	}()

	_, claims, err := auth.GenerateToken("user-9", []string{"caregiver"}, time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	// the watcher subscribes asynchronously; publish until it has seen one event
	deadline := time.Now().Add(2 * time.Second)
	for logs.FilterField(zap.String("event", "auth.session.ended")).Len() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("session event not audited")
		}
		sessions.End(claims)
		time.Sleep(10 * time.Millisecond)
	}
	cancel()
	<-done
}

func TestTransitionsAreAudited(t *testing.T) {
	logs := captureLogs(t)
	ctx := WithRequestID(context.Background(), "req-7")
	svc := care.NewService(care.NewInMemory(), care.WithCommitHook(Transition))

	senior := care.Actor{ID: "S1", Role: care.RoleSenior}
	volunteer := care.Actor{ID: "V1", Role: care.RoleVolunteer}
	if _, err := svc.RegisterVolunteer(ctx, care.Actor{ID: "A1", Role: care.RoleAdmin}, "V1"); err != nil {
		t.Fatal(err)
	}
	r, err := svc.CreateHelpRequest(ctx, senior, "", care.NewHelpRequest{Category: "meds"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := svc.AcceptRequest(ctx, volunteer, r.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.AcceptRequest(ctx, volunteer, r.ID); err == nil {
		t.Fatal("expected second accept to fail")
	}
	if _, err := svc.CompleteRequest(ctx, volunteer, r.ID); err != nil {
		t.Fatal(err)
	}

	audited := logs.FilterField(zap.String("type", "audit")).All()
	want := []struct{ event, from, to, actor string }{
		{"care.help_request.pending", "", "pending", "S1"},
		{"care.help_request.active", "pending", "active", "V1"},
		{"care.help_request.completed", "active", "completed", "V1"},
	}
	if len(audited) != len(want) {
		t.Fatalf("expected %d audit entries, got %d", len(want), len(audited))
	}
	for i, w := range want {
		entry := audited[i].ContextMap()
		fields, _ := entry["fields"].(map[string]any)
		if entry["event"] != w.event || entry["request_id"] != "req-7" {
			t.Fatalf("entry %d: %v", i, entry)
		}
		if fields["id"] != r.ID || fields["from"] != w.from || fields["to"] != w.to || fields["actor"] != w.actor {
			t.Fatalf("entry %d fields: %v", i, fields)
		}
	}
}
