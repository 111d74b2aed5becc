package middleware

import (
	"net/http"

	"github.com/gensecaihq/apigateway/internal/auth"
	"github.com/gensecaihq/apigateway/internal/route"
)

// AuthOptions configures the Auth middleware's policy.
type AuthOptions struct {
	Enabled      bool
	APIKeyHeader string
	BypassPaths  []string
}

// Auth implements the auth middleware policy: pass through when disabled or
// bypassed, otherwise require a valid bearer token or API key.
func Auth(svc *auth.Service, opts AuthOptions) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !opts.Enabled {
				next.ServeHTTP(w, r)
				return
			}

			for _, p := range opts.BypassPaths {
				if route.MatchPattern(p, r.URL.Path) {
					next.ServeHTTP(w, r)
					return
				}
			}

			rc, _ := FromContext(r.Context())

			if token, ok := auth.ExtractBearer(r.Header.Get("Authorization")); ok {
				principal, err := svc.VerifyToken(token)
				if err == nil {
					if rc != nil {
						rc.Principal = &principal
					}
					next.ServeHTTP(w, r)
					return
				}
			}

			if key := r.Header.Get(opts.APIKeyHeader); key != "" {
				info, ok := svc.VerifyAPIKey(key)
				if ok {
					principal := auth.Principal{Subject: info.Subject, Permissions: info.Permissions}
					if rc != nil {
						rc.Principal = &principal
					}
					next.ServeHTTP(w, r)
					return
				}
			}

			http.Error(w, "", http.StatusUnauthorized)
		})
	}
}
