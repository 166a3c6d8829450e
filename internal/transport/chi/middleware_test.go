package chi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	logpkg "github.com/opengeos/maplibre-gl-noaa-lidar/internal/logger"
)

func TestJSONRecoverer(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	h := JSONRecoverer(zap.New(core))(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest("GET", "/v1/items", http.NoBody))

	if rr.Code != http.StatusInternalServerError {
		t.Errorf("status: got %d, want %d", rr.Code, http.StatusInternalServerError)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("content type: got %q", ct)
	}
	var body errorResponse
	if err := json.NewDecoder(rr.Body).Decode(&body); err != nil {
		t.Fatalf("decode error response: %v", err)
	}
	if body.Code != codeInternal || body.Message != "internal error" {
		t.Errorf("body: got %+v", body)
	}
	if n := logs.FilterMessage("panic recovered").Len(); n != 1 {
		t.Errorf("panic log lines: got %d, want 1", n)
	}
}

func TestWideEventMiddleware(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)

	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(WideEventMiddleware(zap.New(core)))
	r.Get("/v1/items/{id}", func(w http.ResponseWriter, r *http.Request) {
		logpkg.FromContext(r.Context()).Debug("inside handler")
		w.WriteHeader(http.StatusTeapot)
	})

	req := httptest.NewRequest("GET", "/v1/items/abc", http.NoBody)
	req.Header.Set("X-Request-Id", "req-1")
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	if got := rr.Header().Get("X-Request-ID"); got != "req-1" {
		t.Errorf("request id header: got %q", got)
	}

	inner := logs.FilterMessage("inside handler").All()
	if len(inner) != 1 {
		t.Fatalf("handler log lines: got %d, want 1", len(inner))
	}
	if got := inner[0].ContextMap()["request_id"]; got != "req-1" {
		t.Errorf("handler logger request_id: got %v", got)
	}

	lines := logs.FilterMessage("http_request").All()
	if len(lines) != 1 {
		t.Fatalf("request log lines: got %d, want 1", len(lines))
	}
	fields := lines[0].ContextMap()
	if fields["path"] != "/v1/items/abc" {
		t.Errorf("path: got %v", fields["path"])
	}
	if fields["route"] != "/v1/items/{id}" {
		t.Errorf("route: got %v", fields["route"])
	}
	if fields["status"] != int64(http.StatusTeapot) {
		t.Errorf("status: got %v (%T)", fields["status"], fields["status"])
	}
}
