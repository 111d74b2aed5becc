package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func recordingMiddleware(name string, log *[]string) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			*log = append(*log, name+":enter")
			next.ServeHTTP(w, r)
			*log = append(*log, name+":exit")
		})
	}
}

func TestChainOrdering(t *testing.T) {
	var log []string
	terminal := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log = append(log, "terminal")
		w.WriteHeader(http.StatusOK)
	})

	h := Chain(terminal,
		recordingMiddleware("trace", &log),
		recordingMiddleware("cors", &log),
		recordingMiddleware("auth", &log),
	)

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/", nil))

	expected := []string{
		"trace:enter", "cors:enter", "auth:enter",
		"terminal",
		"auth:exit", "cors:exit", "trace:exit",
	}
	if len(log) != len(expected) {
		t.Fatalf("expected %v, got %v", expected, log)
	}
	for i := range expected {
		if log[i] != expected[i] {
			t.Fatalf("expected %v, got %v", expected, log)
		}
	}
}

func TestChainTerminationStopsDownstream(t *testing.T) {
	var log []string
	terminal := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log = append(log, "terminal")
	})

	blocker := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			log = append(log, "blocker")
			w.WriteHeader(http.StatusForbidden)
		})
	}

	h := Chain(terminal, recordingMiddleware("outer", &log), blocker)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest("GET", "/", nil))

	if rr.Code != http.StatusForbidden {
		t.Errorf("expected 403, got %d", rr.Code)
	}
	for _, e := range log {
		if e == "terminal" {
			t.Error("expected terminal handler to never run once blocker terminates")
		}
	}
}
