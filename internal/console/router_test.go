package console

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"firewatch.org/internal/auth"
	"firewatch.org/internal/facility"
	"firewatch.org/internal/session"
)

type fakeAPI struct {
	mu        sync.Mutex
	buildings map[int64]facility.Building
	sensors   map[int64]facility.Sensor
	incidents map[int64]facility.Incident
	resolved  []int64
	deleted   []int64

	// onResolve runs at the start of ResolveIncident, outside the lock.
	onResolve func()

	// block, when set, makes ListBuildings wait for ctx cancellation.
	block   bool
	entered chan struct{}
}

func newFakeAPI() *fakeAPI {
	now := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	return &fakeAPI{
		buildings: map[int64]facility.Building{
			1: {ID: 1, Name: "HQ", Address: "1 Main St", OwnerID: 5},
			2: {ID: 2, Name: "Depot", Address: "9 Dock Rd", OwnerID: 9},
		},
		sensors: map[int64]facility.Sensor{
			3: {ID: 3, Type: facility.SensorSmoke, Location: "Lobby", BuildingID: 1, IsActive: true},
			4: {ID: 4, Type: facility.SensorWater, Location: "Basement", BuildingID: 404},
		},
		incidents: map[int64]facility.Incident{
			7: {ID: 7, SensorID: 3, Level: facility.LevelCritical, DetectedAt: now, Description: "smoke"},
			8: {ID: 8, SensorID: 4, Level: facility.LevelLow, DetectedAt: now},
		},
		entered: make(chan struct{}, 1),
	}
}

func (f *fakeAPI) ListBuildings(ctx context.Context) ([]facility.Building, error) {
	f.mu.Lock()
	block := f.block
	f.mu.Unlock()
	if block {
		f.entered <- struct{}{}
		<-ctx.Done()
		return nil, ctx.Err()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []facility.Building{}
	for id := int64(1); id <= 2; id++ {
		out = append(out, f.buildings[id])
	}
	return out, nil
}

func (f *fakeAPI) GetBuilding(_ context.Context, id int64) (facility.Building, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.buildings[id]
	if !ok {
		return facility.Building{}, facility.ErrNotFound
	}
	return b, nil
}

func (f *fakeAPI) ListSensors(_ context.Context, filter facility.SensorFilter) ([]facility.Sensor, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []facility.Sensor
	for _, s := range f.sensors {
		if filter.Match(s) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeAPI) GetSensor(_ context.Context, id int64) (facility.Sensor, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sensors[id]
	if !ok {
		return facility.Sensor{}, facility.ErrNotFound
	}
	return s, nil
}

func (f *fakeAPI) ListIncidents(_ context.Context, filter facility.IncidentFilter) ([]facility.Incident, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []facility.Incident
	for _, inc := range f.incidents {
		if filter.Match(inc) {
			out = append(out, inc)
		}
	}
	return out, nil
}

func (f *fakeAPI) GetIncident(_ context.Context, id int64) (facility.Incident, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	inc, ok := f.incidents[id]
	if !ok {
		return facility.Incident{}, facility.ErrNotFound
	}
	return inc, nil
}

func (f *fakeAPI) ReportIncident(_ context.Context, in facility.IncidentInput) (facility.Incident, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	inc := facility.Incident{ID: int64(100 + len(f.incidents)), SensorID: in.SensorID, Level: in.Level, DetectedAt: time.Now()}
	f.incidents[inc.ID] = inc
	return inc, nil
}

func (f *fakeAPI) ResolveIncident(_ context.Context, id int64) error {
	f.mu.Lock()
	hook := f.onResolve
	f.mu.Unlock()
	if hook != nil {
		hook()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resolved = append(f.resolved, id)
	return nil
}

func (f *fakeAPI) DeleteIncident(_ context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, id)
	delete(f.incidents, id)
	return nil
}

type loginAPI struct{ pair auth.TokenPair }

func (l loginAPI) Login(context.Context, string, string) (auth.TokenPair, error) { return l.pair, nil }
func (l loginAPI) Register(context.Context, auth.Registration) (auth.TokenPair, error) {
	return l.pair, nil
}
func (l loginAPI) Refresh(context.Context, string) (auth.TokenPair, error) { return l.pair, nil }

func tokenFor(id int64, admin bool) string {
	payload := fmt.Sprintf(`{"user_id":%d,"is_admin":%t,"email":"u%d@example.com"}`, id, admin, id)
	return "h." + base64.RawURLEncoding.EncodeToString([]byte(payload)) + ".s"
}

// newTestRouter returns a router whose session belongs to user id, or is empty when id is 0.
func newTestRouter(t *testing.T, api *fakeAPI, id int64, admin bool) (*Router, *session.Manager, *bytes.Buffer) {
	t.Helper()
	var router *Router
	nav := session.NavigatorFunc(func(route string) { router.Navigate(route) })
	mgr := session.NewManager(session.NewStore(session.NewMemoryStorage()),
		loginAPI{pair: auth.TokenPair{AccessToken: tokenFor(id, admin), RefreshToken: "r"}},
		session.WithNavigator(nav))
	out := &bytes.Buffer{}
	router = NewRouter(mgr, api, out)
	if err := mgr.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if id != 0 {
		if err := mgr.Login(context.Background(), "x", "y"); err != nil {
			t.Fatalf("Login: %v", err)
		}
		router.Pending()
	}
	return router, mgr, out
}

func TestGuardRedirectsAnonymous(t *testing.T) {
	router, _, _ := newTestRouter(t, newFakeAPI(), 0, false)
	for _, route := range []string{"/", "/buildings/1", "/incidents/7"} {
		got, err := router.Guard(context.Background(), route)
		if err != nil {
			t.Fatalf("Guard: %v", err)
		}
		if got != session.RouteLogin {
			t.Fatalf("Guard(%q) = %q, want login", route, got)
		}
	}
	if got, _ := router.Guard(context.Background(), session.RouteRegister); got != session.RouteRegister {
		t.Fatalf("public route redirected to %q", got)
	}
}

func TestGuardWaitsForHydration(t *testing.T) {
	mgr := session.NewManager(session.NewStore(session.NewMemoryStorage()), loginAPI{})
	router := NewRouter(mgr, newFakeAPI(), &bytes.Buffer{})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := router.Guard(ctx, "/"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Guard before Start = %v, want deadline", err)
	}

	go func() { _ = mgr.Start(context.Background()) }()
	got, err := router.Guard(context.Background(), "/")
	if err != nil || got != session.RouteLogin {
		t.Fatalf("Guard after Start = %q, %v", got, err)
	}
}

func TestBuildingsPageMarksEditable(t *testing.T) {
	router, _, _ := newTestRouter(t, newFakeAPI(), 5, false)
	page, err := router.Load(context.Background(), "/")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	bp := page.(BuildingsPage)
	if !bp.Editable[1] || bp.Editable[2] {
		t.Fatalf("editable = %v", bp.Editable)
	}
	out := bp.Render(DefaultTheme())
	if !strings.Contains(out, "HQ") || !strings.Contains(out, "Depot") {
		t.Fatalf("render missing buildings:\n%s", out)
	}
}

func TestBuildingPageActions(t *testing.T) {
	cases := []struct {
		name  string
		id    int64
		admin bool
		want  bool
	}{
		{name: "owner", id: 5, want: true},
		{name: "stranger", id: 9, want: false},
		{name: "admin", id: 9, admin: true, want: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			router, _, _ := newTestRouter(t, newFakeAPI(), tc.id, tc.admin)
			page, err := router.Load(context.Background(), "/buildings/1")
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			bp := page.(BuildingPage)
			if bp.Actions.Has(auth.ActionEditBuilding) != tc.want {
				t.Fatalf("edit = %v, want %v", !tc.want, tc.want)
			}
			if len(bp.Sensors) != 1 || bp.Sensors[0].ID != 3 {
				t.Fatalf("sensors = %+v", bp.Sensors)
			}
		})
	}
}

func TestSensorWithMissingBuildingDeniesMutation(t *testing.T) {
	router, _, _ := newTestRouter(t, newFakeAPI(), 1, true)
	page, err := router.Load(context.Background(), "/sensors/4")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	sp := page.(SensorPage)
	if sp.Building != nil {
		t.Fatal("building should be unavailable")
	}
	if sp.Actions.CanMutate() {
		t.Fatalf("admin granted %v on missing building", sp.Actions)
	}
	if !sp.Actions.Has(auth.ActionRead) {
		t.Fatal("read should still be granted")
	}
	if !strings.Contains(sp.Render(DefaultTheme()), "unavailable") {
		t.Fatal("render should mention the missing building")
	}
}

func TestStaleNavigationIsDiscarded(t *testing.T) {
	api := newFakeAPI()
	api.block = true
	router, _, _ := newTestRouter(t, api, 5, false)

	done := make(chan error, 1)
	go func() {
		_, err := router.Load(context.Background(), "/buildings")
		done <- err
	}()
	<-api.entered

	page, err := router.Load(context.Background(), "/incidents/7")
	if err != nil {
		t.Fatalf("second Load: %v", err)
	}
	if _, ok := page.(IncidentPage); !ok {
		t.Fatalf("page = %T", page)
	}
	if err := <-done; !errors.Is(err, ErrStale) {
		t.Fatalf("first Load = %v, want ErrStale", err)
	}
}

func TestUnknownRoute(t *testing.T) {
	router, _, _ := newTestRouter(t, newFakeAPI(), 5, false)
	for _, route := range []string{"/widgets/1", "/buildings/x", "/a/b/c"} {
		if _, err := router.Load(context.Background(), route); !errors.Is(err, ErrUnknownRoute) {
			t.Fatalf("Load(%q) = %v", route, err)
		}
	}
}

func TestResolveIncidentAction(t *testing.T) {
	api := newFakeAPI()
	router, _, out := newTestRouter(t, api, 5, false)
	if err := router.ResolveIncident(context.Background(), 7); err != nil {
		t.Fatalf("ResolveIncident: %v", err)
	}
	if len(api.resolved) != 1 || api.resolved[0] != 7 {
		t.Fatalf("resolved = %v", api.resolved)
	}
	if !strings.Contains(out.String(), "resolved") {
		t.Fatalf("output does not show resolution:\n%s", out.String())
	}
}

func TestResolveIncidentDeniedForStranger(t *testing.T) {
	api := newFakeAPI()
	router, _, _ := newTestRouter(t, api, 9, false)
	if err := router.ResolveIncident(context.Background(), 7); err == nil {
		t.Fatal("stranger resolved incident")
	}
	if len(api.resolved) != 0 {
		t.Fatal("denied resolve reached the API")
	}
}

func TestDeleteIncidentFollowsToSensor(t *testing.T) {
	api := newFakeAPI()
	router, _, out := newTestRouter(t, api, 5, false)
	if err := router.DeleteIncident(context.Background(), 7); err != nil {
		t.Fatalf("DeleteIncident: %v", err)
	}
	if !strings.Contains(out.String(), "Sensor #3") {
		t.Fatalf("expected sensor view after delete:\n%s", out.String())
	}
}

func TestShowRendersNotices(t *testing.T) {
	router, mgr, out := newTestRouter(t, newFakeAPI(), 5, false)
	mgr.OnUnauthorized(context.Background())
	if err := router.Follow(context.Background()); err != nil {
		t.Fatalf("Follow: %v", err)
	}
	got := out.String()
	if !strings.Contains(got, session.NoticeSessionExpired) || !strings.Contains(got, "Sign in") {
		t.Fatalf("output:\n%s", got)
	}
}

func TestResolveIncidentSupersededIsNotShown(t *testing.T) {
	api := newFakeAPI()
	router, _, out := newTestRouter(t, api, 5, false)
	api.onResolve = func() {
		if _, err := router.Load(context.Background(), session.RouteBuildings); err != nil {
			t.Errorf("Load: %v", err)
		}
	}
	if err := router.ResolveIncident(context.Background(), 7); !errors.Is(err, ErrStale) {
		t.Fatalf("ResolveIncident = %v, want ErrStale", err)
	}
	if len(api.resolved) != 1 {
		t.Fatalf("resolved = %v", api.resolved)
	}
	if strings.Contains(out.String(), "Incident #7") {
		t.Fatalf("stale incident page written:\n%s", out.String())
	}
}

func TestRouterPrefersManagerFromContext(t *testing.T) {
	router, _, _ := newTestRouter(t, newFakeAPI(), 0, false)
	_, signedIn, _ := newTestRouter(t, newFakeAPI(), 5, false)

	if got, _ := router.Guard(context.Background(), "/"); got != session.RouteLogin {
		t.Fatalf("Guard without context manager = %q", got)
	}
	ctx := session.NewContext(context.Background(), signedIn)
	if got, err := router.Guard(ctx, "/"); err != nil || got != "/" {
		t.Fatalf("Guard with context manager = %q, %v", got, err)
	}
	page, err := router.Load(ctx, "/")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if bp := page.(BuildingsPage); bp.Identity == nil || bp.Identity.ID != 5 {
		t.Fatalf("identity = %+v", bp.Identity)
	}
}
