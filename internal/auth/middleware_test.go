package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sakif/insignia/internal/apperror"
)

func TestRequireAPIKey(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	tests := []struct {
		name   string
		secret string
		header string
		want   int
	}{
		{"matching key", "s3cret", "s3cret", http.StatusTeapot},
		{"missing key", "s3cret", "", http.StatusUnauthorized},
		{"wrong key", "s3cret", "s3cret!", http.StatusUnauthorized},
		{"empty secret rejects all", "", "", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/guilds", nil)
			if tt.header != "" {
				req.Header.Set(APIKeyHeader, tt.header)
			}
			rec := httptest.NewRecorder()

			var rejected error
			reject := func(w http.ResponseWriter, err error) {
				rejected = err
				w.WriteHeader(http.StatusUnauthorized)
			}
			RequireAPIKey(tt.secret, reject)(ok).ServeHTTP(rec, req)

			assert.Equal(t, tt.want, rec.Code)
			if tt.want == http.StatusUnauthorized {
				assert.True(t, errors.Is(rejected, apperror.ErrUnauthorized), "got %v", rejected)
			} else {
				assert.NoError(t, rejected)
			}
		})
	}
}
