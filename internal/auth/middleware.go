package auth

import (
	"crypto/subtle"
	"net/http"

	"github.com/sakif/insignia/internal/apperror"
)

// APIKeyHeader carries the shared secret on every /api request.
const APIKeyHeader = "X-API-KEY"

// RequireAPIKey is a middleware that rejects requests whose X-API-KEY header
// does not match secret.
//
// MIDDLEWARE PATTERN IN GO:
// A middleware takes an http.Handler and returns a new http.Handler that
// wraps it. Chi applies them in a chain: req → M1 → M2 → Handler.
//
// The comparison is constant-time so response timing does not leak how
// many leading bytes of a guess were right. An empty secret rejects
// everything. Rejections go to reject as an apperror.ErrUnauthorized so they
// share the JSON error shape of every other /api failure.
func RequireAPIKey(secret string, reject func(http.ResponseWriter, error)) func(http.Handler) http.Handler {
	want := []byte(secret)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := []byte(r.Header.Get(APIKeyHeader))
			if len(want) == 0 || subtle.ConstantTimeCompare(got, want) != 1 {
				reject(w, apperror.Unauthorized("missing or invalid API key"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
