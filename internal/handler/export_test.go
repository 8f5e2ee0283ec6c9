package handler_test

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/insignia/internal/model"
)

func TestExportAndDownload(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.db.UpsertIdentity(context.Background(), &model.Identity{
		ID: 42, Username: "alice", Email: "a@example.com", SourceAddress: "198.51.100.4",
		ExpiresAt: time.Unix(1_800_000_000, 0),
	}))

	rr := env.api(http.MethodPost, "/api/export_users", "")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	resp := decodeBody[map[string]string](t, rr)

	path, ok := strings.CutPrefix(resp["download_url"], publicBaseURL)
	require.True(t, ok, "download_url %q", resp["download_url"])
	require.True(t, strings.HasPrefix(path, "/download/"))

	rr = env.get(path)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "text/csv; charset=utf-8", rr.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename=insignia_users.csv`, rr.Header().Get("Content-Disposition"))
	assert.Equal(t, "id,username,email,ip,expires_at\n42,alice,a@example.com,198.51.100.4,1800000000\n", rr.Body.String())

	rr = env.get(path)
	assert.Equal(t, http.StatusNotFound, rr.Code, "downloads are single use")
}

func TestDownload_UnknownToken(t *testing.T) {
	env := newTestEnv(t)

	rr := env.get("/download/definitely-not-a-token")

	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)

	rr := env.get("/healthz")

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rr.Body.String())
}
