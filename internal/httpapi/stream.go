package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"kinhelp.org/internal/auth"
)

// Stream pushes notifications addressed to the caller as Server-Sent Events.
// The stream ends when the client goes away or the caller's session is ended. Closing the
// notification hub ends every open stream.
func (a *API) Stream(w http.ResponseWriter, r *http.Request) {
	if a.hub == nil {
		writeError(w, r, http.StatusServiceUnavailable, "streaming disabled")
		return
	}
	act, ok := actor(w, r)
	if !ok {
		return
	}
	claims, _ := auth.ClaimsFromContext(r.Context())

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, r, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	notes, unsubscribe := a.hub.Subscribe(a.streamBuffer)
	defer unsubscribe()
	sessions, unwatch := a.sessions.Subscribe(4)
	defer unwatch()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	// Send an initial comment to establish the stream
	_, _ = w.Write([]byte(": stream started\n\n"))
	flusher.Flush()

	keepAlive := time.NewTicker(a.keepAlive)
	defer keepAlive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-keepAlive.C:
			_, _ = w.Write([]byte(": ping\n\n"))
			flusher.Flush()
		case ev, ok := <-sessions:
			if !ok {
				return
			}
			if ev.Kind == auth.SessionEnded && claims != nil && ev.TokenID == claims.ID {
				_, _ = w.Write([]byte("event: session_ended\ndata: {}\n\n"))
				flusher.Flush()
				return
			}
		case n, ok := <-notes:
			if !ok {
				return
			}
			if !n.AddressedTo(act) {
				continue
			}
			payload, err := json.Marshal(n)
			if err != nil {
				continue
			}
			_, _ = fmt.Fprintf(w, "id: %s\nevent: notification\ndata: %s\n\n", n.ID, payload)
			flusher.Flush()
		}
	}
}
