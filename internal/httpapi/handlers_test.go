package httpapi

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"firewatch.org/internal/auth"
	"firewatch.org/internal/facility"
	"firewatch.org/internal/stream"
)

type apiClient struct {
	baseURL string
	client  *http.Client
	users   *auth.MemoryUsers
	t       *testing.T
}

func newTestAPI(t *testing.T) *apiClient {
	t.Helper()

	users := auth.NewMemoryUsers()
	issuer, err := auth.NewTokenIssuer("test-secret")
	if err != nil {
		t.Fatalf("issuer: %v", err)
	}
	authSvc := auth.NewService(users, issuer, auth.WithHasher(auth.NewHasher(4)))
	broker := stream.New()
	facilitySvc := facility.NewService(facility.NewInMemory(), facility.WithPublisher(broker))

	api := New(ReadyProbe{}, authSvc, facilitySvc,
		WithVersion("test"),
		WithEvents(broker),
		WithRateLimit(100, 100),
	)

	srv := httptest.NewServer(api.Handler())
	t.Cleanup(srv.Close)

	return &apiClient{baseURL: srv.URL, client: srv.Client(), users: users, t: t}
}

func (c *apiClient) do(method, path, token string, body any) *http.Response {
	c.t.Helper()
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			c.t.Fatalf("marshal body: %v", err)
		}
	}
	req, err := http.NewRequest(method, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		c.t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.t.Fatalf("%s %s: %v", method, path, err)
	}
	return resp
}

func (c *apiClient) expect(resp *http.Response, code int, out any) {
	c.t.Helper()
	defer resp.Body.Close()
	if resp.StatusCode != code {
		var body bytes.Buffer
		_, _ = body.ReadFrom(resp.Body)
		c.t.Fatalf("%s %s: expected %d, got %d: %s", resp.Request.Method, resp.Request.URL.Path, code, resp.StatusCode, body.String())
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			c.t.Fatalf("decode: %v", err)
		}
	}
}

func (c *apiClient) detail(resp *http.Response, code int) string {
	c.t.Helper()
	var body map[string]any
	c.expect(resp, code, &body)
	detail, _ := body["detail"].(string)
	return detail
}

func (c *apiClient) register(name string) string {
	c.t.Helper()
	var pair auth.TokenPair
	c.expect(c.do(http.MethodPost, "/register", "", auth.Registration{
		Username: name,
		Email:    name + "@example.com",
		Password: "pw-" + name,
	}), http.StatusOK, &pair)
	if pair.AccessToken == "" || pair.RefreshToken == "" {
		c.t.Fatalf("incomplete pair: %+v", pair)
	}
	return pair.AccessToken
}

func (c *apiClient) admin() string {
	c.t.Helper()
	hash, err := auth.NewHasher(4).Hash("root-pw")
	if err != nil {
		c.t.Fatalf("hash: %v", err)
	}
	if err := c.users.CreateUser(context.Background(), &auth.User{Username: "root", Email: "root@example.com", PasswordHash: hash, IsAdmin: true}); err != nil {
		c.t.Fatalf("create admin: %v", err)
	}
	var pair auth.TokenPair
	c.expect(c.do(http.MethodPost, "/token", "", map[string]string{"email": "root@example.com", "password": "root-pw"}), http.StatusOK, &pair)
	return pair.AccessToken
}

func TestHealthz(t *testing.T) {
	c := newTestAPI(t)
	var body map[string]any
	c.expect(c.do(http.MethodGet, "/healthz", "", nil), http.StatusOK, &body)
	if body["status"] != "ok" || body["version"] != "test" {
		t.Fatalf("unexpected body: %v", body)
	}
}

func TestReadyzReportsProbeFailure(t *testing.T) {
	api := New(failingReadiness{}, nil, nil)
	rr := httptest.NewRecorder()
	api.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
}

func TestRegisterLoginRefreshValidate(t *testing.T) {
	c := newTestAPI(t)
	access := c.register("alice")

	if got := c.detail(c.do(http.MethodPost, "/register", "", auth.Registration{
		Username: "alice2", Email: "ALICE@example.com", Password: "x",
	}), http.StatusBadRequest); got != "Email already registered" {
		t.Fatalf("unexpected detail %q", got)
	}

	if got := c.detail(c.do(http.MethodPost, "/token", "", map[string]string{"email": "alice@example.com", "password": "nope"}), http.StatusUnauthorized); got != "Incorrect credentials" {
		t.Fatalf("unexpected detail %q", got)
	}

	var pair auth.TokenPair
	c.expect(c.do(http.MethodPost, "/token", "", map[string]string{"email": "alice@example.com", "password": "pw-alice"}), http.StatusOK, &pair)

	var refreshed auth.TokenPair
	c.expect(c.do(http.MethodPost, "/refresh-token", "", map[string]string{"refresh_token": pair.RefreshToken}), http.StatusOK, &refreshed)
	if refreshed.AccessToken == "" {
		t.Fatal("expected refreshed access token")
	}

	if got := c.detail(c.do(http.MethodPost, "/refresh-token", "", map[string]string{"refresh_token": access}), http.StatusUnauthorized); got != "Invalid refresh token" {
		t.Fatalf("access token accepted as refresh token: %q", got)
	}

	var valid validateResponse
	c.expect(c.do(http.MethodPost, "/validate-token", "", map[string]string{"token": access}), http.StatusOK, &valid)
	if !valid.Valid || valid.User == nil || valid.User.Email != "alice@example.com" {
		t.Fatalf("unexpected validation: %+v", valid)
	}

	var invalid validateResponse
	c.expect(c.do(http.MethodPost, "/validate-token", "", map[string]string{"token": "abc"}), http.StatusOK, &invalid)
	if invalid.Valid {
		t.Fatal("expected invalid token")
	}
}

func TestTokenAcceptsPasswordForm(t *testing.T) {
	c := newTestAPI(t)
	c.register("bob")

	form := url.Values{"username": {"bob@example.com"}, "password": {"pw-bob"}}
	resp, err := c.client.Post(c.baseURL+"/token", "application/x-www-form-urlencoded", strings.NewReader(form.Encode()))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	var pair auth.TokenPair
	c.expect(resp, http.StatusOK, &pair)
	if pair.TokenType != "bearer" {
		t.Fatalf("unexpected token type %q", pair.TokenType)
	}
}

func TestResourcesRequireBearer(t *testing.T) {
	c := newTestAPI(t)
	resp := c.do(http.MethodGet, "/buildings", "", nil)
	if resp.Header.Get("WWW-Authenticate") == "" {
		t.Fatal("expected WWW-Authenticate header")
	}
	c.detail(resp, http.StatusUnauthorized)
	c.detail(c.do(http.MethodGet, "/buildings", "abc", nil), http.StatusUnauthorized)
}

func TestOwnershipRules(t *testing.T) {
	c := newTestAPI(t)
	owner := c.register("owner")
	other := c.register("other")
	root := c.admin()

	var b facility.Building
	c.expect(c.do(http.MethodPost, "/buildings", owner, facility.BuildingInput{Name: "HQ", Address: "1 Main St"}), http.StatusCreated, &b)
	if b.ID == 0 || b.OwnerID == 0 {
		t.Fatalf("unexpected building: %+v", b)
	}

	var list []facility.Building
	c.expect(c.do(http.MethodGet, "/buildings", other, nil), http.StatusOK, &list)
	if len(list) != 1 {
		t.Fatalf("expected 1 building, got %d", len(list))
	}

	path := fmt.Sprintf("/buildings/%d", b.ID)
	if got := c.detail(c.do(http.MethodPut, path, other, facility.BuildingInput{Name: "Mine", Address: "x"}), http.StatusForbidden); got != "Forbidden" {
		t.Fatalf("unexpected detail %q", got)
	}

	var renamed facility.Building
	c.expect(c.do(http.MethodPut, path, root, facility.BuildingInput{Name: "HQ2", Address: "1 Main St"}), http.StatusOK, &renamed)
	if renamed.Name != "HQ2" || renamed.OwnerID != b.OwnerID {
		t.Fatalf("admin update changed owner or name: %+v", renamed)
	}

	var s facility.Sensor
	c.expect(c.do(http.MethodPost, "/sensors", owner, facility.SensorInput{Type: facility.SensorSmoke, Location: "lobby", BuildingID: b.ID, IsActive: true}), http.StatusCreated, &s)
	c.detail(c.do(http.MethodPost, "/sensors", other, facility.SensorInput{Type: facility.SensorSmoke, Location: "roof", BuildingID: b.ID}), http.StatusForbidden)
	c.detail(c.do(http.MethodPost, "/sensors", owner, facility.SensorInput{Type: "laser", Location: "roof", BuildingID: b.ID}), http.StatusBadRequest)

	var sensors []facility.Sensor
	c.expect(c.do(http.MethodGet, fmt.Sprintf("/sensors?building_id=%d", b.ID), other, nil), http.StatusOK, &sensors)
	if len(sensors) != 1 || sensors[0].ID != s.ID {
		t.Fatalf("unexpected sensors: %+v", sensors)
	}
	c.detail(c.do(http.MethodGet, "/sensors?building_id=abc", other, nil), http.StatusBadRequest)

	// Any authenticated user may report an incident.
	var inc facility.Incident
	c.expect(c.do(http.MethodPost, "/incidents", other, map[string]any{"sensor_id": s.ID, "description": "smoke"}), http.StatusCreated, &inc)
	if inc.Level != facility.LevelMedium || inc.Resolved || inc.DetectedAt.IsZero() {
		t.Fatalf("unexpected incident: %+v", inc)
	}
	if got := c.detail(c.do(http.MethodPost, "/incidents", other, map[string]any{"sensor_id": 999}), http.StatusNotFound); got != "Sensor not found" {
		t.Fatalf("unexpected detail %q", got)
	}

	incPath := fmt.Sprintf("/incidents/%d", inc.ID)
	c.detail(c.do(http.MethodPatch, incPath, other, map[string]any{"resolved": true}), http.StatusForbidden)

	var resolved facility.Incident
	c.expect(c.do(http.MethodPatch, incPath, owner, map[string]any{"resolved": true}), http.StatusOK, &resolved)
	if !resolved.Resolved {
		t.Fatal("expected resolved incident")
	}
	c.detail(c.do(http.MethodPatch, incPath, owner, map[string]any{"resolved": false}), http.StatusBadRequest)

	var open []facility.Incident
	c.expect(c.do(http.MethodGet, fmt.Sprintf("/incidents?sensor_id=%d&resolved=false", s.ID), owner, nil), http.StatusOK, &open)
	if len(open) != 0 {
		t.Fatalf("expected no open incidents, got %+v", open)
	}

	c.detail(c.do(http.MethodDelete, incPath, other, nil), http.StatusForbidden)
	c.expect(c.do(http.MethodDelete, incPath, owner, nil), http.StatusNoContent, nil)
	if got := c.detail(c.do(http.MethodGet, incPath, owner, nil), http.StatusNotFound); got != "Incident not found" {
		t.Fatalf("unexpected detail %q", got)
	}

	c.expect(c.do(http.MethodDelete, path, root, nil), http.StatusNoContent, nil)
	c.detail(c.do(http.MethodGet, fmt.Sprintf("/sensors/%d", s.ID), owner, nil), http.StatusNotFound)
	c.detail(c.do(http.MethodGet, "/buildings/abc", owner, nil), http.StatusBadRequest)
}

func TestIncidentEventStream(t *testing.T) {
	c := newTestAPI(t)
	token := c.register("watcher")

	var b facility.Building
	c.expect(c.do(http.MethodPost, "/buildings", token, facility.BuildingInput{Name: "Depot", Address: "2 Side St"}), http.StatusCreated, &b)
	var s facility.Sensor
	c.expect(c.do(http.MethodPost, "/sensors", token, facility.SensorInput{Type: facility.SensorTemperature, Location: "hall", BuildingID: b.ID}), http.StatusCreated, &s)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/incidents/events", nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := c.client.Do(req)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("unexpected content type %q", ct)
	}

	reader := bufio.NewReader(resp.Body)
	if line, err := reader.ReadString('\n'); err != nil || !strings.HasPrefix(line, ":") {
		t.Fatalf("expected stream comment, got %q (%v)", line, err)
	}

	c.expect(c.do(http.MethodPost, "/incidents", token, map[string]any{"sensor_id": s.ID, "level": "critical"}), http.StatusCreated, nil)

	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			t.Fatalf("read event: %v", err)
		}
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var evt facility.Event
		if err := json.Unmarshal([]byte(strings.TrimPrefix(strings.TrimSpace(line), "data: ")), &evt); err != nil {
			t.Fatalf("decode event: %v", err)
		}
		if evt.Type != facility.EventIncidentCreated || evt.Incident.Level != facility.LevelCritical {
			t.Fatalf("unexpected event: %+v", evt)
		}
		return
	}
}

func TestIncidentEventStreamHeartbeat(t *testing.T) {
	broker := stream.New()
	api := New(ReadyProbe{}, nil, nil, WithEvents(broker), WithHeartbeat(10*time.Millisecond))
	srv := httptest.NewServer(http.HandlerFunc(api.Stream))
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer resp.Body.Close()

	reader := bufio.NewReader(resp.Body)
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		if strings.TrimSpace(line) == ": ping" {
			return
		}
	}
}
