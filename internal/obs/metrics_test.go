package obs

import (
	"net/http"
	"net/http/httptest"
	"runtime"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCanonicalPath(t *testing.T) {
	cases := map[string]string{
		"":                           "/",
		"/metrics":                   "/metrics",
		"/buildings":                 "/buildings",
		"/buildings/12":              "/buildings/:id",
		"/sensors/7?building_id=3":   "/sensors/:id",
		"/incidents/42":              "/incidents/:id",
		"/incidents?resolved=false":  "/incidents",
		"/incidents/events":          "/incidents/events",
		"/buildings/abc":             "/buildings/abc",
	}
	for input, expected := range cases {
		if got := CanonicalPath(input); got != expected {
			t.Fatalf("CanonicalPath(%q)=%q, want %q", input, got, expected)
		}
	}
}

func TestInstrumentCountsRequests(t *testing.T) {
	h := Instrument(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	before := testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodGet, "/buildings/:id", "418"))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/buildings/99", nil))

	after := testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodGet, "/buildings/:id", "418"))
	if after-before != 1 {
		t.Fatalf("expected one request counted, got %v", after-before)
	}
	if got := testutil.ToFloat64(httpInFlight); got != 0 {
		t.Fatalf("in-flight gauge not released: %v", got)
	}
}

func TestInitBuildInfo(t *testing.T) {
	InitBuildInfo("1.2.3", "abc123")
	InitBuildInfo("1.2.3", "abc123")
	if got := testutil.ToFloat64(buildInfo.WithLabelValues("1.2.3", "abc123", runtime.Version())); got != 1 {
		t.Fatalf("build info = %v, want 1", got)
	}
	if testutil.ToFloat64(startTime) <= 0 {
		t.Fatal("start time not set")
	}
}

func TestResolveCommitKeepsExplicitValue(t *testing.T) {
	if got := resolveCommit("deadbeef"); got != "deadbeef" {
		t.Fatalf("resolveCommit = %q", got)
	}
	if got := resolveCommit(""); got == "" {
		t.Fatal("empty commit should fall back")
	}
}
