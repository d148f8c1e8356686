package auth

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
)

const (
	ModeAPIKey = "apikey"
	ModeNone   = "none"

	// QueryParam carries the key for clients that cannot set headers.
	QueryParam = "api_key"
)

// Authorizer decides whether a request may use a protected endpoint.
type Authorizer interface {
	IsAuthorized(r *http.Request) bool
}

// APIKey checks a shared key.
type APIKey struct {
	Mode   string
	Header string
	Key    string
}

func (a APIKey) enabled() bool { return a.Mode == ModeAPIKey && a.Key != "" }

func (a APIKey) matches(v string) bool {
	return v != "" && subtle.ConstantTimeCompare([]byte(v), []byte(a.Key)) == 1
}

// IsAuthorized implements Authorizer.
func (a APIKey) IsAuthorized(r *http.Request) bool {
	if !a.enabled() {
		return true
	}
	if a.matches(r.Header.Get(a.Header)) {
		return true
	}
	return a.matches(r.URL.Query().Get(QueryParam))
}

// Middleware rejects requests that authz does not authorize.
func Middleware(authz Authorizer, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !authz.IsAuthorized(r) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			json.NewEncoder(w).Encode(map[string]string{"error": "unauthorized"}) //nolint:errcheck
			return
		}
		next.ServeHTTP(w, r)
	})
}
