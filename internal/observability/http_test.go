package observability

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestTraceMiddlewareGeneratesTraceID(t *testing.T) {
	var seen string
	handler := TraceMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = TraceIDFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/v1/ask", nil))

	if seen == "" {
		t.Fatal("expected trace id in request context")
	}
	if recorder.Header().Get("X-Trace-ID") != seen {
		t.Fatalf("response trace header = %q, want %q", recorder.Header().Get("X-Trace-ID"), seen)
	}
}

func TestTraceMiddlewarePropagatesIncomingTraceID(t *testing.T) {
	var seen string
	handler := TraceMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = TraceIDFromContext(r.Context())
	}))

	request := httptest.NewRequest(http.MethodGet, "/v1/ask", nil)
	request.Header.Set("X-Trace-ID", "trace-123")
	handler.ServeHTTP(httptest.NewRecorder(), request)

	if seen != "trace-123" {
		t.Fatalf("trace id = %q, want trace-123", seen)
	}
}
