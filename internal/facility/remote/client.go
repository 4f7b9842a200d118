package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"firewatch.org/internal/auth"
	"firewatch.org/internal/facility"
	"firewatch.org/internal/ids"
	"firewatch.org/internal/obs"
)

const (
	defaultTimeout  = 10 * time.Second
	maxResponseBody = 4 << 20
)

// TokenSource supplies the current access token. An empty string means no session.
type TokenSource interface {
	AccessToken() string
}

// UnauthorizedHandler is called once for every authenticated request answered with 401.
type UnauthorizedHandler interface {
	OnUnauthorized(ctx context.Context)
}

// Client talks JSON to the firewatch resource API.
type Client struct {
	base           *url.URL
	http           *http.Client
	stream         *http.Client
	tokens         TokenSource
	onUnauthorized UnauthorizedHandler
	userAgent      string
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithTimeout sets the per-request timeout. Event streams are not subject to it.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

// WithTokenSource attaches bearer tokens to authenticated requests.
func WithTokenSource(ts TokenSource) Option {
	return func(c *Client) { c.tokens = ts }
}

// WithUnauthorizedHandler installs the 401 interceptor.
func WithUnauthorizedHandler(h UnauthorizedHandler) Option {
	return func(c *Client) { c.onUnauthorized = h }
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) { c.userAgent = strings.TrimSpace(ua) }
}

// New creates a client for the API rooted at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	base, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil {
		return nil, fmt.Errorf("remote: parse base url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("remote: base url must be http or https, got %q", baseURL)
	}
	c := &Client{
		base:      base,
		http:      &http.Client{Timeout: defaultTimeout},
		userAgent: "firewatch",
	}
	for _, opt := range opts {
		opt(c)
	}
	c.stream = &http.Client{Transport: c.http.Transport}
	return c, nil
}

// SetUnauthorizedHandler installs h after construction; the session manager
// and the client reference each other.
func (c *Client) SetUnauthorizedHandler(h UnauthorizedHandler) {
	c.onUnauthorized = h
}

type request struct {
	method string
	path   []string
	query  url.Values
	body   any
	authed bool
}

func (c *Client) newRequest(ctx context.Context, r request) (*http.Request, error) {
	var body io.Reader
	if r.body != nil {
		payload, err := json.Marshal(r.body)
		if err != nil {
			return nil, fmt.Errorf("remote: encode request: %w", err)
		}
		body = bytes.NewReader(payload)
	}
	u := c.base.JoinPath(r.path...)
	if len(r.query) > 0 {
		u.RawQuery = r.query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, r.method, u.String(), body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if r.body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	req.Header.Set("X-Request-ID", ids.RequestID())
	if r.authed && c.tokens != nil {
		if token := c.tokens.AccessToken(); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}
	return req, nil
}

// check turns a non-2xx response into an *APIError and fires the 401 interceptor.
func (c *Client) check(ctx context.Context, r request, req *http.Request, resp *http.Response) error {
	if resp.StatusCode < 400 {
		return nil
	}
	apiErr := newAPIError(resp)
	obs.Component("remote").Warn("api request failed",
		"method", r.method,
		"path", req.URL.Path,
		"status", resp.StatusCode,
		"request_id", req.Header.Get("X-Request-ID"),
	)
	if r.authed && resp.StatusCode == http.StatusUnauthorized && c.onUnauthorized != nil {
		c.onUnauthorized.OnUnauthorized(ctx)
	}
	return apiErr
}

func (c *Client) do(ctx context.Context, r request, out any) error {
	req, err := c.newRequest(ctx, r)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", r.method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	if err := c.check(ctx, r, req, resp); err != nil {
		return err
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBody))
		return nil
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBody)).Decode(out); err != nil {
		return fmt.Errorf("%w: %s %s: %v", ErrMalformedResponse, r.method, req.URL.Path, err)
	}
	return nil
}

type validator interface {
	Validate() error
}

func validate(v validator) error {
	if err := v.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return nil
}

func validateAll[T validator](items []T) error {
	for _, item := range items {
		if err := validate(item); err != nil {
			return err
		}
	}
	return nil
}

func idPath(resource string, id int64) []string {
	return []string{resource, strconv.FormatInt(id, 10)}
}

// Auth ---------------------------------------------------------------------

func validatePair(pair auth.TokenPair) error {
	if pair.AccessToken == "" || pair.RefreshToken == "" {
		return fmt.Errorf("%w: token pair is incomplete", ErrMalformedResponse)
	}
	return nil
}

// Login exchanges credentials for a token pair. A 401 here is a rejected
// login and does not reach the unauthorized handler.
func (c *Client) Login(ctx context.Context, email, password string) (auth.TokenPair, error) {
	var pair auth.TokenPair
	body := map[string]string{"email": email, "password": password}
	if err := c.do(ctx, request{method: http.MethodPost, path: []string{"token"}, body: body}, &pair); err != nil {
		return auth.TokenPair{}, err
	}
	return pair, validatePair(pair)
}

// Register creates an account and returns its first token pair.
func (c *Client) Register(ctx context.Context, reg auth.Registration) (auth.TokenPair, error) {
	var pair auth.TokenPair
	if err := c.do(ctx, request{method: http.MethodPost, path: []string{"register"}, body: reg}, &pair); err != nil {
		return auth.TokenPair{}, err
	}
	return pair, validatePair(pair)
}

// Refresh exchanges a refresh token for a new pair.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (auth.TokenPair, error) {
	var pair auth.TokenPair
	body := map[string]string{"refresh_token": refreshToken}
	if err := c.do(ctx, request{method: http.MethodPost, path: []string{"refresh-token"}, body: body}, &pair); err != nil {
		return auth.TokenPair{}, err
	}
	return pair, validatePair(pair)
}

// TokenValidation is the answer of POST /validate-token.
type TokenValidation struct {
	Valid bool           `json:"valid"`
	User  *auth.Identity `json:"user,omitempty"`
}

// ValidateToken asks the API whether token is a live access token.
func (c *Client) ValidateToken(ctx context.Context, token string) (TokenValidation, error) {
	var out TokenValidation
	body := map[string]string{"token": token}
	if err := c.do(ctx, request{method: http.MethodPost, path: []string{"validate-token"}, body: body}, &out); err != nil {
		return TokenValidation{}, err
	}
	return out, nil
}

// Buildings ----------------------------------------------------------------

func (c *Client) ListBuildings(ctx context.Context) ([]facility.Building, error) {
	var out []facility.Building
	if err := c.do(ctx, request{method: http.MethodGet, path: []string{"buildings"}, authed: true}, &out); err != nil {
		return nil, err
	}
	return out, validateAll(out)
}

func (c *Client) GetBuilding(ctx context.Context, id int64) (facility.Building, error) {
	var out facility.Building
	if err := c.do(ctx, request{method: http.MethodGet, path: idPath("buildings", id), authed: true}, &out); err != nil {
		return facility.Building{}, err
	}
	return out, validate(out)
}

func (c *Client) CreateBuilding(ctx context.Context, in facility.BuildingInput) (facility.Building, error) {
	var out facility.Building
	if err := c.do(ctx, request{method: http.MethodPost, path: []string{"buildings"}, body: in, authed: true}, &out); err != nil {
		return facility.Building{}, err
	}
	return out, validate(out)
}

func (c *Client) UpdateBuilding(ctx context.Context, id int64, in facility.BuildingInput) (facility.Building, error) {
	var out facility.Building
	if err := c.do(ctx, request{method: http.MethodPut, path: idPath("buildings", id), body: in, authed: true}, &out); err != nil {
		return facility.Building{}, err
	}
	return out, validate(out)
}

func (c *Client) DeleteBuilding(ctx context.Context, id int64) error {
	return c.do(ctx, request{method: http.MethodDelete, path: idPath("buildings", id), authed: true}, nil)
}

// Sensors ------------------------------------------------------------------

func (c *Client) ListSensors(ctx context.Context, f facility.SensorFilter) ([]facility.Sensor, error) {
	q := url.Values{}
	if f.BuildingID != nil {
		q.Set("building_id", strconv.FormatInt(*f.BuildingID, 10))
	}
	var out []facility.Sensor
	if err := c.do(ctx, request{method: http.MethodGet, path: []string{"sensors"}, query: q, authed: true}, &out); err != nil {
		return nil, err
	}
	return out, validateAll(out)
}

func (c *Client) GetSensor(ctx context.Context, id int64) (facility.Sensor, error) {
	var out facility.Sensor
	if err := c.do(ctx, request{method: http.MethodGet, path: idPath("sensors", id), authed: true}, &out); err != nil {
		return facility.Sensor{}, err
	}
	return out, validate(out)
}

func (c *Client) CreateSensor(ctx context.Context, in facility.SensorInput) (facility.Sensor, error) {
	var out facility.Sensor
	if err := c.do(ctx, request{method: http.MethodPost, path: []string{"sensors"}, body: in, authed: true}, &out); err != nil {
		return facility.Sensor{}, err
	}
	return out, validate(out)
}

func (c *Client) UpdateSensor(ctx context.Context, id int64, in facility.SensorInput) (facility.Sensor, error) {
	var out facility.Sensor
	if err := c.do(ctx, request{method: http.MethodPut, path: idPath("sensors", id), body: in, authed: true}, &out); err != nil {
		return facility.Sensor{}, err
	}
	return out, validate(out)
}

func (c *Client) DeleteSensor(ctx context.Context, id int64) error {
	return c.do(ctx, request{method: http.MethodDelete, path: idPath("sensors", id), authed: true}, nil)
}

// Incidents ----------------------------------------------------------------

func (c *Client) ListIncidents(ctx context.Context, f facility.IncidentFilter) ([]facility.Incident, error) {
	q := url.Values{}
	if f.SensorID != nil {
		q.Set("sensor_id", strconv.FormatInt(*f.SensorID, 10))
	}
	if f.Resolved != nil {
		q.Set("resolved", strconv.FormatBool(*f.Resolved))
	}
	var out []facility.Incident
	if err := c.do(ctx, request{method: http.MethodGet, path: []string{"incidents"}, query: q, authed: true}, &out); err != nil {
		return nil, err
	}
	return out, validateAll(out)
}

func (c *Client) GetIncident(ctx context.Context, id int64) (facility.Incident, error) {
	var out facility.Incident
	if err := c.do(ctx, request{method: http.MethodGet, path: idPath("incidents", id), authed: true}, &out); err != nil {
		return facility.Incident{}, err
	}
	return out, validate(out)
}

func (c *Client) ReportIncident(ctx context.Context, in facility.IncidentInput) (facility.Incident, error) {
	var out facility.Incident
	if err := c.do(ctx, request{method: http.MethodPost, path: []string{"incidents"}, body: in, authed: true}, &out); err != nil {
		return facility.Incident{}, err
	}
	return out, validate(out)
}

func (c *Client) PatchIncident(ctx context.Context, id int64, p facility.IncidentPatch) (facility.Incident, error) {
	var out facility.Incident
	if err := c.do(ctx, request{method: http.MethodPatch, path: idPath("incidents", id), body: p, authed: true}, &out); err != nil {
		return facility.Incident{}, err
	}
	return out, validate(out)
}

// ResolveIncident sends PATCH /incidents/{id} {"resolved": true}.
func (c *Client) ResolveIncident(ctx context.Context, id int64) error {
	_, err := c.PatchIncident(ctx, id, facility.ResolvePatch())
	return err
}

func (c *Client) DeleteIncident(ctx context.Context, id int64) error {
	return c.do(ctx, request{method: http.MethodDelete, path: idPath("incidents", id), authed: true}, nil)
}

// IsUnauthorized reports whether err is a 401 from the API.
func IsUnauthorized(err error) bool {
	return errors.Is(err, ErrUnauthorized)
}
