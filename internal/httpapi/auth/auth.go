// Package auth implements the thin API-key check the spec scopes out of
// the core (spec.md §1): a single header compared against a set of
// bcrypt-hashed keys, grounded on the teacher's authn bcrypt branch.
package auth

import (
	"net/http"

	"golang.org/x/crypto/bcrypt"
)

const apiKeyHeader = "X-API-Key"

// Authenticator checks the X-API-Key header against a fixed set of
// bcrypt-hashed keys loaded at startup. It is not part of the event
// plane's critical path; it is pure transport-layer gatekeeping.
type Authenticator struct {
	hashes []string
}

// New builds an Authenticator over a set of bcrypt password hashes, one
// per valid API key. Use HashKey to produce entries for configuration.
func New(hashes []string) *Authenticator {
	return &Authenticator{hashes: append([]string(nil), hashes...)}
}

// HashKey bcrypt-hashes a raw API key for storage in configuration,
// mirroring the teacher's bcrypt branch in identity/internal/authn/crypto.go.
func HashKey(rawKey string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(rawKey), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// Authenticate reports whether presentedKey matches any configured hash.
// Every hash is checked — bcrypt hashes are not directly comparable by
// key lookup, and the configured key set is expected to stay small.
func (a *Authenticator) Authenticate(presentedKey string) bool {
	if presentedKey == "" {
		return false
	}
	for _, hash := range a.hashes {
		if bcrypt.CompareHashAndPassword([]byte(hash), []byte(presentedKey)) == nil {
			return true
		}
	}
	return false
}

// Middleware rejects requests missing a valid X-API-Key header with 401.
func (a *Authenticator) Middleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !a.Authenticate(r.Header.Get(apiKeyHeader)) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"code":"UNAUTHORIZED","message":"missing or invalid API key"}`))
			return
		}
		next(w, r)
	}
}
