package middleware

import (
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestTraceSetsRequestIDAndContext(t *testing.T) {
	var gotRC *RequestContext
	h := Trace(nil, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotRC, _ = FromContext(r.Context())
	}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest("GET", "/", nil))

	if rr.Header().Get("X-Request-ID") == "" {
		t.Fatal("expected X-Request-ID response header to be set")
	}
	if gotRC == nil || gotRC.CorrelationID == "" {
		t.Fatal("expected RequestContext with a correlation id attached")
	}
}

func TestExtractClientIPUntrustedIgnoresForwardedFor(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "203.0.113.9:4000"
	req.Header.Set("X-Forwarded-For", "10.0.0.1")

	if got := extractClientIP(req, nil); got != "203.0.113.9" {
		t.Errorf("expected direct IP without trusted proxies, got %q", got)
	}
}

func TestExtractClientIPTrustedProxyHonorsForwardedFor(t *testing.T) {
	_, trustedNet, _ := net.ParseCIDR("127.0.0.0/8")
	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "127.0.0.1:4000"
	req.Header.Set("X-Forwarded-For", "10.0.0.1, 192.168.1.1")

	if got := extractClientIP(req, []*net.IPNet{trustedNet}); got != "10.0.0.1" {
		t.Errorf("expected first XFF entry from trusted proxy, got %q", got)
	}
}

func TestExtractClientIPUntrustedSourceIgnoresForwardedFor(t *testing.T) {
	_, trustedNet, _ := net.ParseCIDR("127.0.0.0/8")
	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "192.168.1.5:4000"
	req.Header.Set("X-Forwarded-For", "10.0.0.1")

	if got := extractClientIP(req, []*net.IPNet{trustedNet}); got != "192.168.1.5" {
		t.Errorf("expected direct IP from untrusted source, got %q", got)
	}
}
