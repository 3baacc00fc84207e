package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"kinhelp.org/internal/auth"
	"kinhelp.org/internal/care"
	"kinhelp.org/internal/obs"
	"kinhelp.org/internal/stream"
)

const serviceName = "kinhelp-api"

// Check is one dependency consulted by the readiness probe.
type Check struct {
	Name string
	Ping func(ctx context.Context) error
}

// ReadyProbe reports ready when every configured dependency answers.
type ReadyProbe struct {
	Checks []Check
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	for _, c := range rp.Checks {
		if c.Ping == nil {
			continue
		}
		if err := c.Ping(ctx); err != nil {
			obs.SetReady(false)
			return fmt.Errorf("%s: %w", c.Name, err)
		}
	}
	obs.SetReady(true)
	return nil
}

type readinessChecker interface {
	Check(ctx context.Context) error
}

// Options wires the API to the care core and its collaborators.
type Options struct {
	Service       *care.Service
	Notifications *stream.Hub[care.Notification]
	Sessions      *auth.Sessions
	Ready         readinessChecker
	Version       string

	TokenTTL        time.Duration
	TokenClientHash string
	RateBurst       int
	RatePerSec      int
	CORSOrigins     []string
	MaxBodyBytes    int64
	StreamBuffer    int
	KeepAlive       time.Duration
}

// API is the HTTP layer.
type API struct {
	router   chi.Router
	svc      *care.Service
	hub      *stream.Hub[care.Notification]
	sessions *auth.Sessions
	ready    readinessChecker
	version  string

	tokenTTL     time.Duration
	clientHash   string
	rateBurst    int
	ratePerSec   int
	corsOrigins  []string
	maxBodyBytes int64
	streamBuffer int
	keepAlive    time.Duration
}

func New(opts Options) *API {
	a := &API{
		svc:          opts.Service,
		hub:          opts.Notifications,
		sessions:     opts.Sessions,
		ready:        opts.Ready,
		version:      opts.Version,
		tokenTTL:     opts.TokenTTL,
		clientHash:   opts.TokenClientHash,
		rateBurst:    opts.RateBurst,
		ratePerSec:   opts.RatePerSec,
		corsOrigins:  opts.CORSOrigins,
		maxBodyBytes: opts.MaxBodyBytes,
		streamBuffer: opts.StreamBuffer,
		keepAlive:    opts.KeepAlive,
	}
	if a.ready == nil {
		a.ready = ReadyProbe{}
	}
	if a.sessions == nil {
		a.sessions = auth.NewSessions()
	}
	if a.tokenTTL <= 0 {
		a.tokenTTL = time.Hour
	}
	if a.rateBurst <= 0 {
		a.rateBurst = 20
	}
	if a.ratePerSec <= 0 {
		a.ratePerSec = 10
	}
	if a.maxBodyBytes <= 0 {
		a.maxBodyBytes = 1 << 20
	}
	if a.streamBuffer <= 0 {
		a.streamBuffer = 16
	}
	if a.keepAlive <= 0 {
		a.keepAlive = 15 * time.Second
	}
	return a
}

// Handler builds the router. Rate limits are read at this point.
func (a *API) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(RequestID, LoggingJSON, SecurityHeaders)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   a.allowedOrigins(),
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID", "Retry-After"},
		AllowCredentials: false,
		MaxAge:           600,
	}))
	r.Use(func(next http.Handler) http.Handler { return MaxBodyBytes(next, a.maxBodyBytes) })
	r.Use(func(next http.Handler) http.Handler { return RateLimit(next, a.rateBurst, a.ratePerSec) })

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, "resource not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
	})

	r.Get("/healthz", a.Healthz)
	r.Get("/readyz", a.Ready)
	r.Get("/v1/info", a.Info)
	r.Handle("/metrics", obs.Handler())
	r.Post("/v1/auth/token", a.handleAuthToken)

	r.Group(func(pr chi.Router) {
		pr.Use(a.withAuth)
		pr.Post("/v1/auth/logout", a.handleLogout)

		pr.Route("/v1/help-requests", func(hr chi.Router) {
			hr.Post("/", a.createHelpRequest)
			hr.Get("/", a.listHelpRequests)
			hr.Get("/{id}", a.getHelpRequest)
			hr.Delete("/{id}", a.removeHelpRequest)
			hr.Post("/{id}/accept", a.acceptHelpRequest)
			hr.Post("/{id}/assign", a.assignHelpRequest)
			hr.Post("/{id}/unassign", a.unassignHelpRequest)
			hr.Post("/{id}/complete", a.completeHelpRequest)
		})
		pr.Route("/v1/sos", func(sr chi.Router) {
			sr.Post("/", a.createSOS)
			sr.Get("/", a.listSOS)
			sr.Get("/{id}", a.getSOS)
			sr.Post("/{id}/acknowledge", a.acknowledgeSOS)
			sr.Post("/{id}/escalate", a.escalateSOS)
			sr.Post("/{id}/resolve", a.resolveSOS)
		})
		pr.Route("/v1/volunteer-applications", func(ar chi.Router) {
			ar.Post("/", a.submitApplication)
			ar.Get("/", a.listApplications)
			ar.Get("/{id}", a.getApplication)
			ar.Post("/{id}/approve", a.approveApplication)
			ar.Post("/{id}/reject", a.rejectApplication)
		})
		pr.Post("/v1/volunteers", a.registerVolunteer)
		pr.Get("/v1/volunteers/{id}", a.getVolunteer)
		pr.Get("/v1/notifications", a.listNotifications)
		pr.Get("/v1/notifications/stream", a.Stream)
		pr.Post("/v1/notifications/{id}/read", a.markNotificationRead)
		pr.Post("/v1/mood-logs", a.logMood)
		pr.Get("/v1/mood-logs", a.listMoodLogs)
	})

	return obs.Instrument(r)
}

func (a *API) allowedOrigins() []string {
	if len(a.corsOrigins) > 0 {
		return a.corsOrigins
	}
	return []string{"http://localhost:*", "http://127.0.0.1:*"}
}

// --- Handlers ---

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": serviceName,
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.ready.Check(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	version, commit := obs.BuildInfo()
	if a.version != "" {
		version = a.version
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    serviceName,
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": version,
		"commit":  commit,
	})
}
