package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"firewatch.org/internal/auth"
	"firewatch.org/internal/facility"
	"firewatch.org/internal/obs"
	"firewatch.org/internal/stream"
)

const serviceName = "firewatch-api"

// ReadyProbe pings the database when one is configured.
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

type readinessChecker interface {
	Check(ctx context.Context) error
}

// API is the HTTP surface of the resource server.
type API struct {
	router     chi.Router
	readyProbe readinessChecker
	version    string

	auth      *auth.Service
	facility  *facility.Service
	events    *stream.Broker
	heartbeat time.Duration

	corsOrigins []string
	rateBurst   int
	ratePerSec  float64
	maxBody     int64
}

// Option configures the API.
type Option func(*API)

// WithVersion sets the version reported by /healthz.
func WithVersion(v string) Option {
	return func(a *API) { a.version = v }
}

// WithCORSOrigins sets the browser origins allowed to call the API.
func WithCORSOrigins(origins []string) Option {
	return func(a *API) { a.corsOrigins = origins }
}

// WithRateLimit sets the per-IP token bucket. perSecond <= 0 disables it.
func WithRateLimit(burst int, perSecond float64) Option {
	return func(a *API) {
		a.rateBurst = burst
		a.ratePerSec = perSecond
	}
}

// WithMaxBodyBytes caps request bodies.
func WithMaxBodyBytes(n int64) Option {
	return func(a *API) {
		if n > 0 {
			a.maxBody = n
		}
	}
}

// WithEvents enables GET /incidents/events over broker.
func WithEvents(b *stream.Broker) Option {
	return func(a *API) { a.events = b }
}

// WithHeartbeat sets how often an idle event stream sends a keep-alive comment.
func WithHeartbeat(d time.Duration) Option {
	return func(a *API) {
		if d > 0 {
			a.heartbeat = d
		}
	}
}

// New wires the routes. authSvc and facilitySvc are required.
func New(rp readinessChecker, authSvc *auth.Service, facilitySvc *facility.Service, opts ...Option) *API {
	if rp == nil {
		rp = ReadyProbe{}
	}
	a := &API{
		readyProbe: rp,
		version:    "dev",
		auth:       authSvc,
		facility:   facilitySvc,
		rateBurst:  20,
		ratePerSec: 10,
		maxBody:    1 << 20,
		heartbeat:  15 * time.Second,
	}
	for _, opt := range opts {
		opt(a)
	}
	a.router = a.routes()
	return a
}

func (a *API) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(RequestID)
	r.Use(LoggingJSON)
	r.Use(SecurityHeaders)
	r.Use(CORS(a.corsOrigins))
	r.Use(MaxBodyBytes(a.maxBody))

	r.Get("/healthz", a.Healthz)
	r.Get("/readyz", a.Ready)
	r.Handle("/metrics", obs.Handler())

	r.Group(func(r chi.Router) {
		r.Use(RateLimit(a.rateBurst, a.ratePerSec))
		r.Post("/token", a.handleToken)
		r.Post("/register", a.handleRegister)
		r.Post("/refresh-token", a.handleRefresh)
		r.Post("/validate-token", a.handleValidate)
	})

	r.Group(func(r chi.Router) {
		r.Use(a.authenticate)

		r.Route("/buildings", func(r chi.Router) {
			r.Get("/", a.listBuildings)
			r.Post("/", a.createBuilding)
			r.Get("/{id}", a.getBuilding)
			r.Put("/{id}", a.updateBuilding)
			r.Delete("/{id}", a.deleteBuilding)
		})
		r.Route("/sensors", func(r chi.Router) {
			r.Get("/", a.listSensors)
			r.Post("/", a.createSensor)
			r.Get("/{id}", a.getSensor)
			r.Put("/{id}", a.updateSensor)
			r.Delete("/{id}", a.deleteSensor)
		})
		r.Route("/incidents", func(r chi.Router) {
			r.Get("/", a.listIncidents)
			r.Post("/", a.reportIncident)
			r.Get("/events", a.Stream)
			r.Get("/{id}", a.getIncident)
			r.Patch("/{id}", a.patchIncident)
			r.Delete("/{id}", a.deleteIncident)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, "Not Found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusMethodNotAllowed, "Method Not Allowed")
	})
	return r
}

// Handler returns the instrumented router.
func (a *API) Handler() http.Handler {
	return obs.Instrument(a.router)
}

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": serviceName,
		"version": a.version,
		"time":    time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
		obs.SetReady(false)
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	obs.SetReady(true)
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
