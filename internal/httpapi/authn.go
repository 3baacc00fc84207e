package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"kinhelp.org/internal/auth"
	"kinhelp.org/internal/care"
)

const (
	authHeader = "Authorization"
	bearer     = "Bearer "
)

// withAuth verifies the bearer token and attaches its claims to the request.
// SSE clients that cannot set headers may pass the token as ?access_token=.
func (a *API) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}

		token, err := extractBearerToken(r.Header.Get(authHeader))
		if err != nil && r.URL.Path == "/v1/notifications/stream" {
			token, err = r.URL.Query().Get("access_token"), nil
		}
		if err != nil {
			unauthorized(w, r, err.Error())
			return
		}

		claims, err := auth.ParseAndValidate(token)
		if err != nil {
			if errors.Is(err, auth.ErrInvalidToken) {
				unauthorized(w, r, "invalid token")
				return
			}
			writeError(w, r, http.StatusInternalServerError, "authentication error")
			return
		}
		if a.sessions.Revoked(claims.ID) {
			unauthorized(w, r, auth.ErrRevoked.Error())
			return
		}

		next.ServeHTTP(w, r.WithContext(auth.ContextWithClaims(r.Context(), claims)))
	})
}

// actor resolves the care actor for the request or answers 403.
func actor(w http.ResponseWriter, r *http.Request) (care.Actor, bool) {
	act, ok := auth.ActorFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusForbidden, "token carries no care role")
		return care.Actor{}, false
	}
	return act, true
}

func unauthorized(w http.ResponseWriter, r *http.Request, msg string) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="kinhelp"`)
	writeError(w, r, http.StatusUnauthorized, msg)
}

func extractBearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", errors.New("missing bearer token")
	}
	if !strings.HasPrefix(strings.ToLower(header), strings.ToLower(bearer)) {
		return "", errors.New("invalid authorization scheme")
	}
	token := strings.TrimSpace(header[len(bearer):])
	if token == "" {
		return "", errors.New("missing bearer token")
	}
	return token, nil
}
