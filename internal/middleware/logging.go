package middleware

import (
	"net/http"
	"time"

	"github.com/gensecaihq/apigateway/internal/logging"
)

// statusRecorder captures the status code written by downstream handlers.
type statusRecorder struct {
	http.ResponseWriter
	status  int
	written bool
}

func (s *statusRecorder) WriteHeader(code int) {
	if !s.written {
		s.status = code
		s.written = true
	}
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Write(b []byte) (int, error) {
	if !s.written {
		s.status = http.StatusOK
		s.written = true
	}
	return s.ResponseWriter.Write(b)
}

// Logging emits one structured RequestLog entry per request after the
// response has been written, regardless of which middleware terminated it.
func Logging(logger *logging.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(rec, r)

			rc, _ := FromContext(r.Context())
			entry := logging.RequestLog{
				Timestamp:  start.UTC(),
				Method:     r.Method,
				Path:       r.URL.Path,
				StatusCode: rec.status,
				Duration:   float64(time.Since(start).Microseconds()) / 1000.0,
			}
			if rc != nil {
				entry.RequestID = rc.CorrelationID
				entry.CorrelationID = rc.CorrelationID
				entry.ClientID = rc.ClientID
				entry.ClientIP = rc.ClientIP
				if rc.Route != nil {
					entry.BackendID = rc.Route.BackendID
				}
			}

			logger.LogRequest(entry)
		})
	}
}
