package auth

// Service ties token verification and API key lookup together for the auth
// middleware. The bypass-path policy lives in the middleware's AuthOptions.
type Service struct {
	secret   string
	keyStore KeyStore
}

// NewService creates an auth Service. keyStore may be nil if API-key auth
// is not configured.
func NewService(secret string, keyStore KeyStore) *Service {
	return &Service{secret: secret, keyStore: keyStore}
}

// VerifyToken verifies a bearer token against the service's secret.
func (s *Service) VerifyToken(token string) (Principal, error) {
	return VerifyToken(token, s.secret)
}

// VerifyAPIKey looks up an API key via the configured store.
func (s *Service) VerifyAPIKey(key string) (KeyInfo, bool) {
	if s.keyStore == nil {
		return KeyInfo{}, false
	}
	return s.keyStore.Lookup(key)
}
