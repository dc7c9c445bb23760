package app

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"proposalsapp/api/internal/metrics"
)

func doRequest(t *testing.T, server *HTTPServer, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)
	return rr
}

func decodeResponse(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var payload map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to parse response %q: %v", rr.Body.String(), err)
	}
	return payload
}

func TestGroupVersionsEndpoint(t *testing.T) {
	server := NewHTTPServer(newTestService(newFakeStore()), "*")

	rr := doRequest(t, server, http.MethodGet, "/api/groups/g1/versions", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	payload := decodeResponse(t, rr)
	if payload["totalVersions"] != float64(3) {
		t.Errorf("expected 3 versions, got %v", payload["totalVersions"])
	}
	list, _ := payload["versions"].([]any)
	first, _ := list[0].(map[string]any)
	if first["kind"] != "topic" || first["authorName"] != "alice" {
		t.Errorf("unexpected first version %v", first)
	}
}

func TestGroupNotFound(t *testing.T) {
	server := NewHTTPServer(newTestService(newFakeStore()), "*")

	rr := doRequest(t, server, http.MethodGet, "/api/groups/missing/versions", "")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
	if payload := decodeResponse(t, rr); payload["code"] != "NOT_FOUND" {
		t.Errorf("unexpected error payload %v", payload)
	}
}

func TestDiffEndpoint(t *testing.T) {
	server := NewHTTPServer(newTestService(newFakeStore()), "*")

	rr := doRequest(t, server, http.MethodGet, "/api/groups/g1/diff?from=0&to=1", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	payload := decodeResponse(t, rr)
	if payload["diffed"] != true {
		t.Errorf("expected diffed=true, got %v", payload["diffed"])
	}
	html, _ := payload["html"].(string)
	if !strings.Contains(html, `<del class="diff-deleted">cat </del>`) {
		t.Errorf("expected deleted word in %q", html)
	}
}

func TestDiffEndpointValidation(t *testing.T) {
	server := NewHTTPServer(newTestService(newFakeStore()), "*")

	rr := doRequest(t, server, http.MethodGet, "/api/groups/g1/diff?to=9", "")
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rr.Code)
	}
	payload := decodeResponse(t, rr)
	details, _ := payload["details"].(map[string]any)
	if details["field"] != "to" {
		t.Errorf("expected field detail, got %v", payload)
	}
}

func TestChangesEndpoint(t *testing.T) {
	server := NewHTTPServer(newTestService(newFakeStore()), "*")

	rr := doRequest(t, server, http.MethodGet, "/api/groups/g1/changes?from=0&to=1", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	payload := decodeResponse(t, rr)
	spans, _ := payload["spans"].([]any)
	if len(spans) != 3 {
		t.Fatalf("expected 3 spans, got %v", spans)
	}
	modified, _ := spans[1].(map[string]any)
	if modified["op"] != "modified" || modified["old"] != "cat " {
		t.Errorf("unexpected modified span %v", modified)
	}
}

func TestFeedEndpoint(t *testing.T) {
	server := NewHTTPServer(newTestService(newFakeStore()), "*")

	rr := doRequest(t, server, http.MethodGet, "/api/groups/g1/feed?level=1", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	payload := decodeResponse(t, rr)
	if payload["level"] != float64(1) {
		t.Errorf("expected level 1, got %v", payload["level"])
	}
	events, _ := payload["events"].([]any)
	if len(events) == 0 {
		t.Fatal("expected events")
	}
}

func TestFeedStepEndpoint(t *testing.T) {
	server := NewHTTPServer(newTestService(newFakeStore()), "*")

	body := `{"state":{"level":2},"measurement":{"rendered":true,"lastEventClipped":false,"spareSpace":200}}`
	rr := doRequest(t, server, http.MethodPost, "/api/feed/step", body)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	payload := decodeResponse(t, rr)
	state, _ := payload["state"].(map[string]any)
	if state["level"] != float64(1) {
		t.Errorf("expected level 1, got %v", payload)
	}

	rr = doRequest(t, server, http.MethodPost, "/api/feed/step", "{")
	if rr.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for invalid body, got %d", rr.Code)
	}
}

func TestExportEndpoint(t *testing.T) {
	server := NewHTTPServer(newTestService(newFakeStore()), "*")

	rr := doRequest(t, server, http.MethodGet, "/api/groups/g1/export?from=0&to=1&format=html", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if got := rr.Header().Get("Content-Disposition"); got != `attachment; filename="Pets.html"` {
		t.Errorf("unexpected disposition %q", got)
	}
	if !strings.HasPrefix(rr.Header().Get("Content-Type"), "text/html") {
		t.Errorf("unexpected content type %q", rr.Header().Get("Content-Type"))
	}
}

func TestUnknownRoutes(t *testing.T) {
	server := NewHTTPServer(newTestService(newFakeStore()), "*")

	if rr := doRequest(t, server, http.MethodGet, "/api/groups/g1/unknown", ""); rr.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rr.Code)
	}
	if rr := doRequest(t, server, http.MethodPost, "/api/groups/g1/versions", ""); rr.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected 405, got %d", rr.Code)
	}
	if rr := doRequest(t, server, http.MethodGet, "/api/nothing", ""); rr.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rr.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	server := NewHTTPServer(newTestService(newFakeStore(), WithMetrics(m)), "*")

	doRequest(t, server, http.MethodGet, "/api/groups/g1/versions", "")
	rr := doRequest(t, server, http.MethodGet, "/metrics", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), `route="/api/groups/{id}/versions"`) {
		t.Errorf("expected request metric for versions route in:\n%s", rr.Body.String())
	}
}

func TestRouteLabel(t *testing.T) {
	tests := map[string]string{
		"/api/groups/abc/diff": "/api/groups/{id}/diff",
		"/api/health":          "/api/health",
		"/favicon.ico":         "other",
	}
	for path, want := range tests {
		if got := routeLabel(path); got != want {
			t.Errorf("routeLabel(%q) = %q, want %q", path, got, want)
		}
	}
}
