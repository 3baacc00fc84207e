package httpapi

import (
	"net/http"
	"strings"
	"time"

	"kinhelp.org/internal/audit"
	"kinhelp.org/internal/auth"
	"kinhelp.org/internal/care"
)

type tokenRequest struct {
	User         string   `json:"user"`
	Roles        []string `json:"roles"`
	ClientSecret string   `json:"client_secret,omitempty"`
}

type tokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// handleAuthToken issues development tokens. Login and OTP flows live outside this
// service; when a client secret hash is configured the caller must present it.
func (a *API) handleAuthToken(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if err := auth.VerifyClientSecret(a.clientHash, req.ClientSecret); err != nil {
		unauthorized(w, r, "invalid client secret")
		return
	}

	user := strings.TrimSpace(req.User)
	if user == "" {
		writeError(w, r, http.StatusBadRequest, "user is required")
		return
	}
	roles := make([]string, 0, len(req.Roles))
	for _, role := range req.Roles {
		if _, ok := care.ParseRole(role); ok {
			roles = append(roles, role)
		}
	}
	if len(roles) == 0 {
		writeError(w, r, http.StatusBadRequest, "at least one of senior, volunteer, caregiver, admin, system is required")
		return
	}

	token, claims, err := auth.GenerateToken(user, roles, a.tokenTTL)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "token generation failed")
		return
	}
	a.sessions.Started(claims)

	_ = audit.LogEvent(r.Context(), "auth.token.issued", map[string]any{
		"user":       user,
		"roles":      claims.Roles,
		"expires_at": claims.ExpiresAt.Time.Format(time.RFC3339),
	})

	writeJSON(w, http.StatusOK, tokenResponse{
		Token:     token,
		ExpiresAt: claims.ExpiresAt.Time,
	})
}

// handleLogout ends the session of the presented token. Open notification streams
// bound to it are closed.
func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		unauthorized(w, r, "missing session")
		return
	}
	a.sessions.End(claims)
	w.WriteHeader(http.StatusNoContent)
}
