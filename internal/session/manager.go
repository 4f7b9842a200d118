package session

import (
	"context"
	"errors"
	"strconv"
	"sync"

	"firewatch.org/internal/auth"
	"firewatch.org/internal/facility/remote"
	"firewatch.org/internal/obs"
)

// Console routes.
const (
	RouteHome      = "/"
	RouteLogin     = "/login"
	RouteRegister  = "/register"
	RouteBuildings = "/buildings"
)

func BuildingRoute(id int64) string { return "/buildings/" + strconv.FormatInt(id, 10) }
func SensorRoute(id int64) string   { return "/sensors/" + strconv.FormatInt(id, 10) }
func IncidentRoute(id int64) string { return "/incidents/" + strconv.FormatInt(id, 10) }

// API is the part of the resource API the manager calls.
type API interface {
	Login(ctx context.Context, email, password string) (auth.TokenPair, error)
	Register(ctx context.Context, reg auth.Registration) (auth.TokenPair, error)
	Refresh(ctx context.Context, refreshToken string) (auth.TokenPair, error)
}

// Navigator receives navigation signals.
type Navigator interface {
	Navigate(route string)
}

// NavigatorFunc adapts a function to Navigator.
type NavigatorFunc func(route string)

func (f NavigatorFunc) Navigate(route string) { f(route) }

type noNavigation struct{}

func (noNavigation) Navigate(string) {}

// Manager is the only writer of the session Store. It logs users in and out
// and reacts to 401s from the API.
type Manager struct {
	store   *Store
	api     API
	nav     Navigator
	metrics *Metrics

	// mu serializes transitions that must observe and change the store atomically.
	mu      sync.Mutex
	notices []string

	readyOnce sync.Once
	ready     chan struct{}
}

var _ remote.UnauthorizedHandler = (*Manager)(nil)
var _ remote.TokenSource = (*Store)(nil)

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithNavigator receives RouteHome and RouteLogin signals.
func WithNavigator(n Navigator) ManagerOption {
	return func(m *Manager) {
		if n != nil {
			m.nav = n
		}
	}
}

// WithMetrics counts session transitions.
func WithMetrics(metrics *Metrics) ManagerOption {
	return func(m *Manager) { m.metrics = metrics }
}

// NewManager builds a manager over store. Call Start before rendering protected views.
func NewManager(store *Store, api API, opts ...ManagerOption) *Manager {
	m := &Manager{
		store: store,
		api:   api,
		nav:   noNavigation{},
		ready: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Store returns the managed store.
func (m *Manager) Store() *Store { return m.store }

// Start hydrates the store from storage and then closes Ready. Ready is closed
// even when hydration fails; the session is then simply absent.
func (m *Manager) Start(ctx context.Context) error {
	defer m.readyOnce.Do(func() { close(m.ready) })
	if err := m.store.Load(ctx); err != nil {
		obs.Component("session").Warn("session hydration failed", "error", err)
		return err
	}
	if m.store.CurrentIdentity() != nil {
		m.metrics.observe(eventHydratedSession)
	}
	return nil
}

// Ready is closed once Start has resolved.
func (m *Manager) Ready() <-chan struct{} { return m.ready }

// Identity returns the current identity, or nil.
func (m *Manager) Identity() *auth.Identity { return m.store.CurrentIdentity() }

func authError(op, fallback string, err error) *AuthError {
	msg := remote.DetailOf(err)
	if msg == "" {
		msg = fallback
	}
	return &AuthError{Op: op, Message: msg, Err: err}
}

// establish stores pair only if it carries an identity, so a bad pair never
// replaces a working session.
func (m *Manager) establish(ctx context.Context, pair auth.TokenPair) (*auth.Identity, error) {
	identity := auth.IdentityFromToken(pair.AccessToken)
	if identity == nil {
		return nil, auth.ErrInvalidToken
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.store.Save(ctx, pair); err != nil {
		return nil, err
	}
	return identity, nil
}

// Login authenticates against POST /token. On failure the prior session is untouched.
func (m *Manager) Login(ctx context.Context, email, password string) error {
	log := obs.Component("session")
	var identity *auth.Identity
	pair, err := m.api.Login(ctx, email, password)
	if err == nil {
		identity, err = m.establish(ctx, pair)
	}
	if err != nil {
		m.metrics.observe(eventLoginFailed)
		log.Info("login failed", "error", err)
		return authError("login", FallbackLoginMessage, err)
	}
	m.metrics.observe(eventLoginOK)
	log.Info("login succeeded", "user_id", identity.ID)
	m.nav.Navigate(RouteHome)
	return nil
}

// Register creates an account via POST /register and signs it in.
func (m *Manager) Register(ctx context.Context, reg auth.Registration) error {
	log := obs.Component("session")
	var identity *auth.Identity
	pair, err := m.api.Register(ctx, reg)
	if err == nil {
		identity, err = m.establish(ctx, pair)
	}
	if err != nil {
		m.metrics.observe(eventRegisterFailed)
		log.Info("registration failed", "error", err)
		return authError("register", FallbackRegisterMessage, err)
	}
	m.metrics.observe(eventRegisterOK)
	log.Info("registration succeeded", "user_id", identity.ID)
	m.nav.Navigate(RouteHome)
	return nil
}

// Logout clears the session and navigates to the login route. It never fails;
// storage errors are logged.
func (m *Manager) Logout(ctx context.Context) {
	m.mu.Lock()
	err := m.store.Clear(context.WithoutCancel(ctx))
	m.mu.Unlock()
	if err != nil && !errors.Is(err, ErrClosed) {
		obs.Component("session").Warn("logout: clear storage", "error", err)
	}
	m.metrics.observe(eventLogout)
	m.nav.Navigate(RouteLogin)
}

// OnUnauthorized ends the session after a 401, navigates to login and queues
// one notice. While already logged out it does nothing.
func (m *Manager) OnUnauthorized(ctx context.Context) {
	m.mu.Lock()
	tokens := m.store.Tokens()
	if m.store.CurrentIdentity() == nil && tokens.AccessToken == "" && tokens.RefreshToken == "" {
		m.mu.Unlock()
		return
	}
	err := m.store.Clear(context.WithoutCancel(ctx))
	m.notices = append(m.notices, NoticeSessionExpired)
	m.mu.Unlock()

	if err != nil && !errors.Is(err, ErrClosed) {
		obs.Component("session").Warn("unauthorized: clear storage", "error", err)
	}
	m.metrics.observe(eventUnauthorized)
	m.nav.Navigate(RouteLogin)
}

// Refresh exchanges the stored refresh token for a new pair. Any failure ends
// the session as OnUnauthorized does.
func (m *Manager) Refresh(ctx context.Context) error {
	refresh := m.store.Tokens().RefreshToken
	if refresh == "" {
		return ErrNoSession
	}
	pair, err := m.api.Refresh(ctx, refresh)
	if err == nil {
		_, err = m.establish(ctx, pair)
	}
	if err != nil {
		m.metrics.observe(eventRefreshFailed)
		m.OnUnauthorized(ctx)
		return err
	}
	m.metrics.observe(eventRefreshOK)
	return nil
}

// Notices returns and clears the queued user-visible notices.
func (m *Manager) Notices() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := m.notices
	m.notices = nil
	return out
}
