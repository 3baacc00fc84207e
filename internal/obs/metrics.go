package obs

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "http_in_flight_requests",
		Help: "In-flight HTTP requests.",
	})

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	transitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "care_transitions_total",
			Help: "Committed status transitions by entity and target status.",
		},
		[]string{"entity", "to"},
	)

	conflictsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "care_conflicts_total",
			Help: "Compare-and-set conflicts by entity.",
		},
		[]string{"entity"},
	)

	notificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "care_notifications_emitted_total",
			Help: "Notification records created by type.",
		},
		[]string{"type"},
	)

	readyGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "care_ready",
		Help: "1 when the service passes its readiness checks.",
	})

	initOnce sync.Once
	ready    atomic.Bool
)

// Init registers all metrics in the default registry. Safe to call more than once.
func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(
			httpInFlight, httpRequestsTotal, httpRequestDuration,
			transitionsTotal, conflictsTotal, notificationsTotal, readyGauge,
		)
	})
}

// Handler exposes the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

func RecordTransition(entity, to string) { transitionsTotal.WithLabelValues(entity, to).Inc() }

func RecordConflict(entity string) { conflictsTotal.WithLabelValues(entity).Inc() }

func RecordNotification(typ string) { notificationsTotal.WithLabelValues(typ).Inc() }

// SetReady flips the readiness flag reported by /readyz and the gRPC health service.
func SetReady(v bool) {
	ready.Store(v)
	if v {
		readyGauge.Set(1)
	} else {
		readyGauge.Set(0)
	}
}

func IsReady() bool { return ready.Load() }

// Instrument records in-flight, count and latency per canonical path.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := CanonicalPath(r.URL.Path)
		method := r.Method

		httpInFlight.Inc()
		defer httpInFlight.Dec()
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(sw, r)

		status := strconv.Itoa(sw.code)
		httpRequestDuration.WithLabelValues(method, path, status).Observe(time.Since(start).Seconds())
		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
	})
}

var (
	idCollections = map[string]bool{
		"help-requests":          true,
		"sos":                    true,
		"volunteer-applications": true,
		"volunteers":             true,
		"notifications":          true,
	}
	idActions = map[string]bool{
		"accept": true, "assign": true, "unassign": true, "complete": true,
		"acknowledge": true, "escalate": true, "resolve": true,
		"approve": true, "reject": true, "read": true,
	}
	staticChildren = map[string]bool{"stream": true}
)

// CanonicalPath collapses entity ids so metric label cardinality stays bounded.
// Unknown shapes are returned unchanged.
func CanonicalPath(p string) string {
	if i := strings.IndexByte(p, '?'); i >= 0 {
		p = p[:i]
	}
	if p == "" {
		return "/"
	}
	segs := strings.Split(strings.Trim(p, "/"), "/")
	if len(segs) < 3 || segs[0] != "v1" || !idCollections[segs[1]] || staticChildren[segs[2]] {
		return p
	}
	switch len(segs) {
	case 3:
		return "/v1/" + segs[1] + "/:id"
	case 4:
		if idActions[segs[3]] {
			return "/v1/" + segs[1] + "/:id/" + segs[3]
		}
	}
	return p
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

// Flush keeps SSE responses streaming through the instrumentation wrapper.
func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
