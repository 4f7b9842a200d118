// Package console renders the firewatch views in a terminal. Every protected
// view goes through Router, which waits for the session to hydrate and sends
// anonymous users to the login route.
package console

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"firewatch.org/internal/facility"
	"firewatch.org/internal/facility/remote"
	"firewatch.org/internal/incident"
	"firewatch.org/internal/session"
)

// ErrStale is returned by Load when a newer navigation superseded it.
var ErrStale = errors.New("console: navigation superseded")

// ErrUnknownRoute is returned for routes the console does not serve.
var ErrUnknownRoute = errors.New("console: unknown route")

// API is the part of the resource API the views read and mutate.
type API interface {
	incident.API
	ListBuildings(ctx context.Context) ([]facility.Building, error)
	ListSensors(ctx context.Context, f facility.SensorFilter) ([]facility.Sensor, error)
	ListIncidents(ctx context.Context, f facility.IncidentFilter) ([]facility.Incident, error)
	GetIncident(ctx context.Context, id int64) (facility.Incident, error)
	ReportIncident(ctx context.Context, in facility.IncidentInput) (facility.Incident, error)
}

// Router guards and loads views. Starting a navigation cancels the previous
// one, and a result that arrives after a newer navigation is discarded.
type Router struct {
	manager *session.Manager
	api     API
	life    *incident.Lifecycle
	out     io.Writer
	theme   Theme

	gen atomic.Uint64

	mu      sync.Mutex
	cancel  context.CancelFunc
	pending string
}

// RouterOption configures a Router.
type RouterOption func(*Router)

// WithTheme overrides the default styles.
func WithTheme(t Theme) RouterOption {
	return func(r *Router) { r.theme = t }
}

// NewRouter returns a router rendering to out.
func NewRouter(manager *session.Manager, api API, out io.Writer, opts ...RouterOption) *Router {
	r := &Router{
		manager: manager,
		api:     api,
		out:     out,
		theme:   DefaultTheme(),
	}
	r.life = incident.New(api, r)
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Navigate records route as the next view to show. It implements session.Navigator.
func (r *Router) Navigate(route string) {
	r.mu.Lock()
	r.pending = route
	r.mu.Unlock()
}

// Pending returns and clears the route recorded by Navigate.
func (r *Router) Pending() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	p := r.pending
	r.pending = ""
	return p
}

// IsPublic reports whether route may be shown without a session.
func IsPublic(route string) bool {
	switch route {
	case session.RouteLogin, session.RouteRegister:
		return true
	}
	return false
}

// Guard waits until the session has hydrated and returns the route to show:
// route itself, or the login route when route is protected and nobody is signed in.
func (r *Router) Guard(ctx context.Context, route string) (string, error) {
	m := r.managerFor(ctx)
	select {
	case <-m.Ready():
	case <-ctx.Done():
		return "", ctx.Err()
	}
	if IsPublic(route) || m.Identity() != nil {
		return route, nil
	}
	return session.RouteLogin, nil
}

// managerFor returns the session manager carried by ctx, falling back to the
// one the router was built with.
func (r *Router) managerFor(ctx context.Context) *session.Manager {
	if m := session.FromContext(ctx); m != nil {
		return m
	}
	return r.manager
}

// begin cancels the previous navigation and returns a context for the new one.
func (r *Router) begin(ctx context.Context) (context.Context, uint64) {
	viewCtx, cancel := context.WithCancel(ctx)
	r.mu.Lock()
	if r.cancel != nil {
		r.cancel()
	}
	r.cancel = cancel
	gen := r.gen.Add(1)
	r.mu.Unlock()
	return viewCtx, gen
}

func (r *Router) current(gen uint64) bool { return r.gen.Load() == gen }

// Close cancels the in-flight navigation, if any.
func (r *Router) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		r.cancel()
		r.cancel = nil
	}
	r.gen.Add(1)
}

// Load guards route and loads its page.
func (r *Router) Load(ctx context.Context, route string) (Page, error) {
	target, err := r.Guard(ctx, route)
	if err != nil {
		return nil, err
	}
	viewCtx, gen := r.begin(ctx)
	page, err := r.build(viewCtx, target)
	if !r.current(gen) {
		return nil, ErrStale
	}
	if err != nil {
		return nil, err
	}
	return page, nil
}

// Show loads route and writes it with any queued notices. A 401 while loading
// shows the login page with the expiry notice instead.
func (r *Router) Show(ctx context.Context, route string) error {
	page, err := r.Load(ctx, route)
	if errors.Is(err, remote.ErrUnauthorized) {
		page, err = LoginPage{}, nil
	}
	if err != nil {
		return err
	}
	r.write(page)
	return nil
}

// Follow shows the route recorded by the last Navigate call, if any.
func (r *Router) Follow(ctx context.Context) error {
	route := r.Pending()
	if route == "" {
		return nil
	}
	return r.Show(ctx, route)
}

func (r *Router) write(page Page) {
	var b strings.Builder
	for _, n := range r.manager.Notices() {
		b.WriteString(r.theme.Notice.Render(n))
		b.WriteString("\n")
	}
	b.WriteString(page.Render(r.theme))
	b.WriteString("\n")
	_, _ = io.WriteString(r.out, b.String())
}

type routeKind int

const (
	routeBuildings routeKind = iota
	routeBuilding
	routeSensor
	routeIncident
	routeLogin
	routeRegister
)

func parseRoute(route string) (routeKind, int64, error) {
	switch route {
	case session.RouteHome, session.RouteBuildings:
		return routeBuildings, 0, nil
	case session.RouteLogin:
		return routeLogin, 0, nil
	case session.RouteRegister:
		return routeRegister, 0, nil
	}
	parts := strings.Split(strings.Trim(route, "/"), "/")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("%w: %s", ErrUnknownRoute, route)
	}
	id, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil || id <= 0 {
		return 0, 0, fmt.Errorf("%w: %s", ErrUnknownRoute, route)
	}
	switch parts[0] {
	case "buildings":
		return routeBuilding, id, nil
	case "sensors":
		return routeSensor, id, nil
	case "incidents":
		return routeIncident, id, nil
	}
	return 0, 0, fmt.Errorf("%w: %s", ErrUnknownRoute, route)
}

func (r *Router) build(ctx context.Context, route string) (Page, error) {
	kind, id, err := parseRoute(route)
	if err != nil {
		return nil, err
	}
	identity := r.managerFor(ctx).Identity()
	switch kind {
	case routeLogin:
		return LoginPage{}, nil
	case routeRegister:
		return RegisterPage{}, nil
	case routeBuildings:
		return loadBuildings(ctx, r.api, identity)
	case routeBuilding:
		return loadBuilding(ctx, r.api, identity, id)
	case routeSensor:
		return loadSensor(ctx, r.api, identity, id)
	default:
		return loadIncident(ctx, r.api, r.life, identity, id)
	}
}
