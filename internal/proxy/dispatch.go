package proxy

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gensecaihq/apigateway/internal/tracing"
)

// hopByHop headers are stripped from the outbound request, case-insensitively.
var hopByHop = map[string]bool{
	"host":              true,
	"connection":        true,
	"content-length":    true,
	"keep-alive":        true,
	"proxy-connection":  true,
	"transfer-encoding": true,
}

// ErrorKind classifies a proxy dispatch failure.
type ErrorKind int

const (
	// UpstreamUnreachable covers connection failures to the upstream.
	UpstreamUnreachable ErrorKind = iota
	// UpstreamTimeout covers hard-deadline expiry, including during body read.
	UpstreamTimeout
)

// DispatchError wraps an upstream dispatch failure with its kind.
type DispatchError struct {
	Kind ErrorKind
	Err  error
}

func (e *DispatchError) Error() string { return fmt.Sprintf("proxy dispatch: %v", e.Err) }
func (e *DispatchError) Unwrap() error { return e.Err }

// Dispatcher forwards requests to a chosen server, applying the gateway's
// header rewrite and timeout rules.
type Dispatcher struct {
	transport http.RoundTripper
	tracer    *tracing.Provider
}

// NewDispatcher creates a Dispatcher. A dedicated transport with connection
// pooling keeps keep-alives warm across requests to the same server. tracer
// may be nil, in which case outbound requests carry no trace context.
func NewDispatcher(tracer *tracing.Provider) *Dispatcher {
	return &Dispatcher{
		transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 20,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: 10 * time.Second,
			DisableCompression:  true,
		},
		tracer: tracer,
	}
}

// Forward implements the forward(ctx, upstream_url, method, headers, body)
// operation: it composes the outbound request, applies a hard deadline
// including the response body read, and copies the upstream response back
// onto w verbatim except for headers with malformed names. Hop-by-hop
// headers are stripped from the outbound request only.
func (d *Dispatcher) Forward(ctx context.Context, w http.ResponseWriter, server *Server, r *http.Request, correlationID string, timeout time.Duration) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		w.WriteHeader(http.StatusBadGateway)
		return &DispatchError{Kind: UpstreamUnreachable, Err: fmt.Errorf("reading request body: %w", err)}
	}

	outURL := *server.URL
	outURL.Path = singleJoiningSlash(server.URL.Path, r.URL.Path)
	if r.URL.RawQuery != "" {
		outURL.RawQuery = r.URL.RawQuery
	}

	outReq, err := http.NewRequestWithContext(ctx, r.Method, outURL.String(), bytes.NewReader(body))
	if err != nil {
		return &DispatchError{Kind: UpstreamUnreachable, Err: fmt.Errorf("building outbound request: %w", err)}
	}

	for name, values := range r.Header {
		if hopByHop[strings.ToLower(name)] {
			continue
		}
		for _, v := range values {
			outReq.Header.Add(name, v)
		}
	}
	outReq.Header.Set("X-Request-ID", correlationID)
	if d.tracer != nil {
		d.tracer.InjectTraceContext(ctx, outReq)
	}

	resp, err := d.transport.RoundTrip(outReq)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			w.WriteHeader(http.StatusGatewayTimeout)
			return &DispatchError{Kind: UpstreamTimeout, Err: err}
		}
		w.WriteHeader(http.StatusBadGateway)
		return &DispatchError{Kind: UpstreamUnreachable, Err: err}
	}
	defer resp.Body.Close()

	dst := w.Header()
	for name, values := range resp.Header {
		if !validHeaderName(name) {
			continue
		}
		for _, v := range values {
			dst.Add(name, v)
		}
	}
	w.WriteHeader(resp.StatusCode)

	if _, err := io.Copy(w, resp.Body); err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return &DispatchError{Kind: UpstreamTimeout, Err: err}
		}
		return &DispatchError{Kind: UpstreamUnreachable, Err: err}
	}

	return nil
}

func validHeaderName(name string) bool {
	if name == "" {
		return false
	}
	for _, r := range name {
		if r <= ' ' || r == ':' || r > '~' {
			return false
		}
	}
	return true
}

func singleJoiningSlash(a, b string) string {
	aSlash := strings.HasSuffix(a, "/")
	bSlash := strings.HasPrefix(b, "/")
	switch {
	case aSlash && bSlash:
		return a + b[1:]
	case !aSlash && !bSlash:
		return a + "/" + b
	default:
		return a + b
	}
}
