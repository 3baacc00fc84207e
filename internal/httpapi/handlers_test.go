package httpapi

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"kinhelp.org/internal/audit"
	"kinhelp.org/internal/auth"
	"kinhelp.org/internal/care"
	"kinhelp.org/internal/ids"
	"kinhelp.org/internal/notify"
	"kinhelp.org/internal/obs"
	"kinhelp.org/internal/stream"
)

type apiClient struct {
	baseURL string
	client  *http.Client
	server  *httptest.Server
	t       *testing.T
}

func newTestAPI(t *testing.T, mutate ...func(*Options)) *apiClient {
	t.Helper()

	t.Setenv("CARE_AUTH_SECRET", "test-secret")
	auth.ResetSecretForTests()
	t.Cleanup(auth.ResetSecretForTests)

	store := care.NewInMemory()
	hub := stream.New[care.Notification]()
	t.Cleanup(hub.Close)
	opts := Options{
		Service: care.NewService(store,
			care.WithEmitter(notify.New(store, ids.New, notify.HubSink{Hub: hub})),
			care.WithCommitHook(audit.Transition),
		),
		Notifications: hub,
		Version:       "test",
		RateBurst:     1000,
		RatePerSec:    1000,
		KeepAlive:     time.Hour,
	}
	for _, m := range mutate {
		m(&opts)
	}

	srv := httptest.NewServer(New(opts).Handler())
	t.Cleanup(srv.Close)

	return &apiClient{
		baseURL: srv.URL,
		client:  srv.Client(),
		server:  srv,
		t:       t,
	}
}

func (c *apiClient) do(method, path, token string, body any) *http.Response {
	c.t.Helper()
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			c.t.Fatalf("marshal body: %v", err)
		}
	}
	req, err := http.NewRequest(method, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		c.t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.t.Fatalf("do request: %v", err)
	}
	return resp
}

func (c *apiClient) post(path, token string, body any) *http.Response {
	c.t.Helper()
	return c.do(http.MethodPost, path, token, body)
}

func (c *apiClient) get(path, token string, params url.Values) *http.Response {
	c.t.Helper()
	if params != nil {
		path += "?" + params.Encode()
	}
	return c.do(http.MethodGet, path, token, nil)
}

func (c *apiClient) obtainToken(user string, roles ...string) string {
	c.t.Helper()
	resp := c.post("/v1/auth/token", "", map[string]any{
		"user":  user,
		"roles": roles,
	})
	payload := decode[tokenResponse](c.t, expectStatus(c.t, resp, http.StatusOK))
	if payload.Token == "" {
		c.t.Fatalf("empty token issued")
	}
	return payload.Token
}

func (c *apiClient) registerVolunteers(ids ...string) {
	c.t.Helper()
	admin := c.obtainToken("registrar", "admin")
	for _, id := range ids {
		expectStatus(c.t, c.post("/v1/volunteers", admin, map[string]any{"volunteer_id": id}), http.StatusCreated).Body.Close()
	}
}

func expectStatus(t *testing.T, resp *http.Response, want int) *http.Response {
	t.Helper()
	if resp.StatusCode != want {
		var body bytes.Buffer
		_, _ = body.ReadFrom(resp.Body)
		resp.Body.Close()
		t.Fatalf("%s %s: expected %d, got %d: %s", resp.Request.Method, resp.Request.URL.Path, want, resp.StatusCode, body.String())
	}
	return resp
}

func decode[T any](t *testing.T, r *http.Response) T {
	t.Helper()
	defer r.Body.Close()
	var v T
	if err := json.NewDecoder(r.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

func TestHelpRequestFlow(t *testing.T) {
	c := newTestAPI(t)
	senior := c.obtainToken("S1", "senior")
	v1 := c.obtainToken("V1", "volunteer")
	v2 := c.obtainToken("V2", "volunteer")
	stranger := c.obtainToken("V9", "volunteer")
	c.registerVolunteers("V1", "V2")

	created := decode[care.HelpRequest](t, expectStatus(t, c.post("/v1/help-requests", senior, map[string]any{
		"category": "groceries",
		"priority": "high",
	}), http.StatusCreated))
	// a volunteer token alone does not register its holder
	expectStatus(t, c.post("/v1/help-requests/"+created.ID+"/accept", stranger, nil), http.StatusNotFound).Body.Close()
	if created.Status != care.HelpPending || created.SeniorID != "S1" {
		t.Fatalf("unexpected request: %+v", created)
	}

	pending := decode[listResponse[care.HelpRequest]](t, expectStatus(t,
		c.get("/v1/help-requests", v1, url.Values{"status": {"pending"}}), http.StatusOK))
	if len(pending.Items) != 1 || pending.Items[0].ID != created.ID {
		t.Fatalf("pending list: %+v", pending.Items)
	}

	accepted := decode[care.HelpRequest](t, expectStatus(t,
		c.post("/v1/help-requests/"+created.ID+"/accept", v1, nil), http.StatusOK))
	if accepted.Status != care.HelpActive || accepted.Assignee() != "V1" {
		t.Fatalf("unexpected accepted request: %+v", accepted)
	}
	expectStatus(t, c.post("/v1/help-requests/"+created.ID+"/accept", v2, nil), http.StatusConflict).Body.Close()
	expectStatus(t, c.post("/v1/help-requests/"+created.ID+"/complete", v2, nil), http.StatusForbidden).Body.Close()

	done := decode[care.HelpRequest](t, expectStatus(t,
		c.post("/v1/help-requests/"+created.ID+"/complete", v1, nil), http.StatusOK))
	if done.Status != care.HelpCompleted || done.CompletedAt == nil {
		t.Fatalf("unexpected completed request: %+v", done)
	}

	notes := decode[listResponse[care.Notification]](t, expectStatus(t,
		c.get("/v1/notifications", senior, nil), http.StatusOK))
	if len(notes.Items) != 2 {
		t.Fatalf("senior notifications: %+v", notes.Items)
	}
	expectStatus(t, c.post("/v1/notifications/"+notes.Items[0].ID+"/read", v1, nil), http.StatusForbidden).Body.Close()
	read := decode[care.Notification](t, expectStatus(t,
		c.post("/v1/notifications/"+notes.Items[0].ID+"/read", senior, nil), http.StatusOK))
	if !read.Read {
		t.Fatalf("notification not marked read: %+v", read)
	}
	unread := decode[listResponse[care.Notification]](t, expectStatus(t,
		c.get("/v1/notifications", senior, url.Values{"unread": {"true"}}), http.StatusOK))
	if len(unread.Items) != 1 {
		t.Fatalf("unread notifications: %+v", unread.Items)
	}
}

func TestSOSAndErrorMapping(t *testing.T) {
	c := newTestAPI(t)
	senior := c.obtainToken("S1", "senior")
	caregiver := c.obtainToken("C1", "caregiver")
	volunteer := c.obtainToken("V1", "volunteer")
	admin := c.obtainToken("A1", "admin")

	alert := decode[care.SOSAlert](t, expectStatus(t,
		c.post("/v1/sos", senior, map[string]any{"message": "fell in kitchen"}), http.StatusCreated))
	expectStatus(t, c.post("/v1/sos/"+alert.ID+"/escalate", caregiver, map[string]any{"reason": "no answer"}), http.StatusForbidden).Body.Close()
	escalated := decode[care.SOSAlert](t, expectStatus(t,
		c.post("/v1/sos/"+alert.ID+"/escalate", admin, map[string]any{"reason": "no answer"}), http.StatusOK))
	if escalated.Status != care.SOSEscalated || escalated.EscalationReason != "no answer" {
		t.Fatalf("unexpected escalation: %+v", escalated)
	}
	expectStatus(t, c.post("/v1/sos/"+alert.ID+"/resolve", caregiver, nil), http.StatusOK).Body.Close()
	expectStatus(t, c.post("/v1/sos/"+alert.ID+"/acknowledge", caregiver, nil), http.StatusUnprocessableEntity).Body.Close()

	tests := []struct {
		name   string
		method string
		path   string
		token  string
		body   any
		want   int
	}{
		{"missing request", http.MethodGet, "/v1/help-requests/nope", senior, nil, http.StatusNotFound},
		{"volunteer cannot create", http.MethodPost, "/v1/help-requests", volunteer, map[string]any{"category": "x"}, http.StatusForbidden},
		{"bad priority", http.MethodPost, "/v1/help-requests", senior, map[string]any{"category": "x", "priority": "urgent"}, http.StatusBadRequest},
		{"unknown field", http.MethodPost, "/v1/help-requests", senior, map[string]any{"category": "x", "colour": "red"}, http.StatusBadRequest},
		{"bad limit", http.MethodGet, "/v1/sos?limit=0", caregiver, nil, http.StatusBadRequest},
		{"mood out of range", http.MethodPost, "/v1/mood-logs", senior, map[string]any{"mood": 9}, http.StatusBadRequest},
		{"unknown route", http.MethodGet, "/v1/nothing", senior, nil, http.StatusNotFound},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			resp := c.do(tc.method, tc.path, tc.token, tc.body)
			body := decode[map[string]any](t, resp)
			if resp.StatusCode != tc.want {
				t.Fatalf("expected %d, got %d: %v", tc.want, resp.StatusCode, body)
			}
			if body["error"] == nil || body["request_id"] == nil {
				t.Fatalf("error body missing fields: %v", body)
			}
		})
	}
}

func TestVolunteerApplicationFlow(t *testing.T) {
	c := newTestAPI(t)
	applicant := c.obtainToken("U7", "volunteer")
	admin := c.obtainToken("A1", "admin")

	app := decode[care.VolunteerApplication](t, expectStatus(t,
		c.post("/v1/volunteer-applications", applicant, map[string]any{"motivation": "retired nurse"}), http.StatusCreated))
	expectStatus(t, c.post("/v1/volunteer-applications", applicant, nil), http.StatusConflict).Body.Close()
	expectStatus(t, c.post("/v1/volunteer-applications/"+app.ID+"/approve", applicant, nil), http.StatusForbidden).Body.Close()

	approved := decode[care.VolunteerApplication](t, expectStatus(t,
		c.post("/v1/volunteer-applications/"+app.ID+"/approve", admin, nil), http.StatusOK))
	if approved.Status != care.ApplicationApproved {
		t.Fatalf("unexpected application: %+v", approved)
	}
	expectStatus(t, c.post("/v1/volunteer-applications/"+app.ID+"/reject", admin, map[string]any{"reason": "late"}), http.StatusUnprocessableEntity).Body.Close()

	vol := decode[care.Volunteer](t, expectStatus(t, c.get("/v1/volunteers/U7", admin, nil), http.StatusOK))
	if vol.ID != "U7" || vol.ActiveRequests != 0 {
		t.Fatalf("unexpected volunteer: %+v", vol)
	}
}

func TestMoodLogs(t *testing.T) {
	c := newTestAPI(t)
	senior := c.obtainToken("S1", "senior")
	caregiver := c.obtainToken("C1", "caregiver")

	expectStatus(t, c.post("/v1/mood-logs", senior, map[string]any{"mood": 4, "note": "sunny"}), http.StatusCreated).Body.Close()
	logs := decode[listResponse[care.MoodLog]](t, expectStatus(t,
		c.get("/v1/mood-logs", caregiver, url.Values{"senior_id": {"S1"}}), http.StatusOK))
	if len(logs.Items) != 1 || logs.Items[0].Mood != 4 {
		t.Fatalf("mood logs: %+v", logs.Items)
	}
}

func TestAPIEnforcesAuth(t *testing.T) {
	c := newTestAPI(t)

	resp := c.get("/v1/help-requests", "", nil)
	if resp.StatusCode != http.StatusUnauthorized || resp.Header.Get("WWW-Authenticate") == "" {
		t.Fatalf("expected 401 with challenge, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	expectStatus(t, c.get("/v1/help-requests", "garbage", nil), http.StatusUnauthorized).Body.Close()
	expectStatus(t, c.get("/healthz", "", nil), http.StatusOK).Body.Close()
	expectStatus(t, c.get("/metrics", "", nil), http.StatusOK).Body.Close()
}

func TestTokenEndpointValidation(t *testing.T) {
	hash, err := auth.HashClientSecret("client-secret")
	if err != nil {
		t.Fatal(err)
	}
	c := newTestAPI(t, func(o *Options) { o.TokenClientHash = hash })

	tests := []struct {
		name string
		body any
		want int
	}{
		{"missing secret", map[string]any{"user": "u", "roles": []string{"senior"}}, http.StatusUnauthorized},
		{"missing user", map[string]any{"roles": []string{"senior"}, "client_secret": "client-secret"}, http.StatusBadRequest},
		{"no care role", map[string]any{"user": "u", "roles": []string{"guest"}, "client_secret": "client-secret"}, http.StatusBadRequest},
		{"unknown field", map[string]any{"user": "u", "roles": []string{"senior"}, "scope": "all"}, http.StatusBadRequest},
		{"ok", map[string]any{"user": "u", "roles": []string{"senior"}, "client_secret": "client-secret"}, http.StatusOK},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			expectStatus(t, c.post("/v1/auth/token", "", tc.body), tc.want).Body.Close()
		})
	}
}

func TestLogoutRevokesToken(t *testing.T) {
	c := newTestAPI(t)
	token := c.obtainToken("S1", "senior")

	expectStatus(t, c.get("/v1/notifications", token, nil), http.StatusOK).Body.Close()
	expectStatus(t, c.post("/v1/auth/logout", token, nil), http.StatusNoContent).Body.Close()
	expectStatus(t, c.get("/v1/notifications", token, nil), http.StatusUnauthorized).Body.Close()
}

func TestReadyz(t *testing.T) {
	c := newTestAPI(t, func(o *Options) {
		o.Ready = ReadyProbe{Checks: []Check{{Name: "store", Ping: func(context.Context) error { return errors.New("down") }}}}
	})
	body := decode[map[string]any](t, expectStatus(t, c.get("/readyz", "", nil), http.StatusServiceUnavailable))
	if !strings.Contains(body["error"].(string), "store: down") {
		t.Fatalf("unexpected readiness body: %v", body)
	}
}

type brokenEmitter struct{}

func (brokenEmitter) Emit(context.Context, care.Event) (care.Notification, error) {
	return care.Notification{}, errors.New("notification store offline")
}

func TestCommittedTransitionsAreAudited(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	t.Cleanup(obs.SetLogger(zap.New(core)))

	c := newTestAPI(t)
	c.registerVolunteers("V1")
	senior := c.obtainToken("S1", "senior")
	v1 := c.obtainToken("V1", "volunteer")

	created := decode[care.HelpRequest](t, expectStatus(t,
		c.post("/v1/help-requests", senior, map[string]any{"category": "meds"}), http.StatusCreated))
	expectStatus(t, c.post("/v1/help-requests/"+created.ID+"/accept", v1, nil), http.StatusOK).Body.Close()
	expectStatus(t, c.post("/v1/help-requests/"+created.ID+"/complete", v1, nil), http.StatusOK).Body.Close()
	expectStatus(t, c.post("/v1/help-requests/"+created.ID+"/complete", v1, nil), http.StatusUnprocessableEntity).Body.Close()

	var events []string
	for _, e := range logs.FilterField(zap.String("type", "audit")).All() {
		m := e.ContextMap()
		name, _ := m["event"].(string)
		if !strings.HasPrefix(name, "care.") {
			continue
		}
		fields, _ := m["fields"].(map[string]any)
		rid, _ := m["request_id"].(string)
		if fields["id"] != created.ID || rid == "" || m["user_id"] != fields["actor"] {
			t.Fatalf("incomplete audit entry: %v", m)
		}
		events = append(events, name)
	}
	want := []string{"care.help_request.pending", "care.help_request.active", "care.help_request.completed"}
	if strings.Join(events, ",") != strings.Join(want, ",") {
		t.Fatalf("audited %v, want %v", events, want)
	}
}

func TestCommittedChangeSurvivesNotificationFailure(t *testing.T) {
	c := newTestAPI(t, func(o *Options) {
		o.Service = care.NewService(care.NewInMemory(), care.WithEmitter(brokenEmitter{}))
	})
	senior := c.obtainToken("S1", "senior")

	resp := expectStatus(t, c.post("/v1/help-requests", senior, map[string]any{"category": "meds"}), http.StatusCreated)
	if resp.Header.Get(notificationHeader) != "failed" {
		t.Fatalf("expected %s header", notificationHeader)
	}
	created := decode[care.HelpRequest](t, resp)
	expectStatus(t, c.get("/v1/help-requests/"+created.ID, senior, nil), http.StatusOK).Body.Close()
}

func TestNotificationStream(t *testing.T) {
	c := newTestAPI(t)
	senior := c.obtainToken("S1", "senior")
	volunteer := c.obtainToken("V1", "volunteer")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/notifications/stream", nil)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Authorization", "Bearer "+volunteer)
	resp, err := c.client.Do(req)
	if err != nil {
		t.Fatalf("open stream: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("unexpected content type %q", ct)
	}

	lines := make(chan string, 32)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(resp.Body)
		for sc.Scan() {
			lines <- sc.Text()
		}
	}()
	next := func() string {
		select {
		case l, ok := <-lines:
			if !ok {
				t.Fatal("stream closed")
			}
			return l
		case <-ctx.Done():
			t.Fatal("timed out waiting for stream data")
		}
		return ""
	}
	if l := next(); l != ": stream started" {
		t.Fatalf("unexpected preamble %q", l)
	}

	// an SOS targets caregivers and must not reach the volunteer stream
	expectStatus(t, c.post("/v1/sos", senior, nil), http.StatusCreated).Body.Close()
	expectStatus(t, c.post("/v1/help-requests", senior, map[string]any{"category": "transport"}), http.StatusCreated).Body.Close()

	var data string
	for data == "" {
		if l := next(); strings.HasPrefix(l, "data: ") {
			data = strings.TrimPrefix(l, "data: ")
		}
	}
	var n care.Notification
	if err := json.Unmarshal([]byte(data), &n); err != nil {
		t.Fatalf("decode event: %v", err)
	}
	if n.Type != care.NotifyVolunteerRequest || n.TargetRole != care.RoleVolunteer {
		t.Fatalf("unexpected streamed notification: %+v", n)
	}

	expectStatus(t, c.post("/v1/auth/logout", volunteer, nil), http.StatusNoContent).Body.Close()
	for {
		l, ok := <-lines
		if !ok {
			t.Fatal("stream closed before session_ended event")
		}
		if l == "event: session_ended" {
			return
		}
	}
}

func TestStreamsEndOnShutdown(t *testing.T) {
	hub := stream.New[care.Notification]()
	c := newTestAPI(t, func(o *Options) { o.Notifications = hub })
	c.server.Config.RegisterOnShutdown(hub.Close)
	token := c.obtainToken("C1", "caregiver")

	resp := expectStatus(t, c.get("/v1/notifications/stream", token, nil), http.StatusOK)
	defer resp.Body.Close()
	rd := bufio.NewReader(resp.Body)
	if l, err := rd.ReadString('\n'); err != nil || l != ": stream started\n" {
		t.Fatalf("unexpected preamble %q: %v", l, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := c.server.Config.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown waited on an open stream: %v", err)
	}
	if _, err := io.ReadAll(rd); err != nil {
		t.Fatalf("stream did not end cleanly: %v", err)
	}
}
