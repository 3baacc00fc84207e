// Command smoke-care drives one help request and one SOS alert through a running API and
// checks the resulting notifications.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"go.uber.org/zap"

	"kinhelp.org/internal/care"
	"kinhelp.org/internal/obs"
)

type client struct {
	base string
	http *http.Client
}

func (c client) call(ctx context.Context, method, path, token string, body, out any, want int) error {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != want {
		var e map[string]any
		_ = json.NewDecoder(resp.Body).Decode(&e)
		return fmt.Errorf("%s %s: status %d, want %d: %v", method, path, resp.StatusCode, want, e["error"])
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c client) token(ctx context.Context, user, role string) (string, error) {
	var out struct {
		Token string `json:"token"`
	}
	body := map[string]any{"user": user, "roles": []string{role}}
	if secret := os.Getenv("CARE_TOKEN_CLIENT_SECRET"); secret != "" {
		body["client_secret"] = secret
	}
	err := c.call(ctx, http.MethodPost, "/v1/auth/token", "", body, &out, http.StatusOK)
	return out.Token, err
}

func run(ctx context.Context, c client) error {
	suffix := time.Now().UTC().Format("150405")
	senior, err := c.token(ctx, "smoke-senior-"+suffix, "senior")
	if err != nil {
		return err
	}
	volunteer, err := c.token(ctx, "smoke-volunteer-"+suffix, "volunteer")
	if err != nil {
		return err
	}
	caregiver, err := c.token(ctx, "smoke-caregiver-"+suffix, "caregiver")
	if err != nil {
		return err
	}
	admin, err := c.token(ctx, "smoke-admin-"+suffix, "admin")
	if err != nil {
		return err
	}
	if err := c.call(ctx, http.MethodPost, "/v1/volunteers", admin,
		map[string]any{"volunteer_id": "smoke-volunteer-" + suffix}, nil, http.StatusCreated); err != nil {
		return err
	}

	var req care.HelpRequest
	if err := c.call(ctx, http.MethodPost, "/v1/help-requests", senior,
		map[string]any{"category": "groceries", "priority": "high"}, &req, http.StatusCreated); err != nil {
		return err
	}
	if err := c.call(ctx, http.MethodPost, "/v1/help-requests/"+req.ID+"/accept", volunteer, nil, &req, http.StatusOK); err != nil {
		return err
	}
	if err := c.call(ctx, http.MethodPost, "/v1/help-requests/"+req.ID+"/complete", volunteer, nil, &req, http.StatusOK); err != nil {
		return err
	}
	if req.Status != care.HelpCompleted {
		return fmt.Errorf("help request %s ended in %s", req.ID, req.Status)
	}

	var alert care.SOSAlert
	if err := c.call(ctx, http.MethodPost, "/v1/sos", senior, map[string]any{"message": "smoke"}, &alert, http.StatusCreated); err != nil {
		return err
	}
	if err := c.call(ctx, http.MethodPost, "/v1/sos/"+alert.ID+"/acknowledge", caregiver, nil, &alert, http.StatusOK); err != nil {
		return err
	}
	if err := c.call(ctx, http.MethodPost, "/v1/sos/"+alert.ID+"/resolve", caregiver, nil, &alert, http.StatusOK); err != nil {
		return err
	}
	// resolved alerts are locked
	if err := c.call(ctx, http.MethodPost, "/v1/sos/"+alert.ID+"/acknowledge", caregiver, nil, nil, http.StatusUnprocessableEntity); err != nil {
		return err
	}

	var notes struct {
		Items []care.Notification `json:"items"`
	}
	if err := c.call(ctx, http.MethodGet, "/v1/notifications", senior, nil, &notes, http.StatusOK); err != nil {
		return err
	}
	// accepted, completed, acknowledged, resolved
	if len(notes.Items) != 4 {
		return fmt.Errorf("senior has %d notifications, want 4", len(notes.Items))
	}
	return nil
}

func main() {
	log := obs.Logger()
	base := os.Getenv("CARE_SMOKE_URL")
	if base == "" {
		base = "http://localhost:8080"
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := run(ctx, client{base: base, http: &http.Client{Timeout: 5 * time.Second}}); err != nil {
		log.Fatal("smoke failed", zap.String("base", base), zap.Error(err))
	}
	log.Info("smoke ok", zap.String("base", base))
}
