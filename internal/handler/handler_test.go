package handler_test

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/sakif/insignia/internal/auth"
	"github.com/sakif/insignia/internal/discord"
	"github.com/sakif/insignia/internal/discord/discordtest"
	"github.com/sakif/insignia/internal/handler"
	"github.com/sakif/insignia/internal/repository/sqlite"
	"github.com/sakif/insignia/internal/service"
)

const publicBaseURL = "http://verify.test"

// testEnv wires real services against a fake Discord and an in-memory store.
type testEnv struct {
	fake   *discordtest.Server
	db     *sqlite.DB
	router chi.Router
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	fake := discordtest.NewServer(t)
	cfg := fake.Config()
	cfg.ReadTimeout = 2 * time.Second
	cfg.WriteTimeout = 2 * time.Second
	client := discord.NewClient(cfg, nil, logger)
	provider := auth.NewDiscordProvider("client-id", "client-secret", publicBaseURL+"/callback", fake.URL, client)

	db, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	tokens, err := auth.NewTokenService("handler-test-secret-123")
	require.NoError(t, err)

	pages, err := handler.NewPages(logger)
	require.NoError(t, err)

	authH := handler.NewAuthHandler(provider, service.NewAuthService(provider, db, logger), pages, logger)
	guildH := handler.NewGuildHandler(service.NewGuildService(client, db, publicBaseURL+"/login", logger), logger)
	dragH := handler.NewDragHandler(service.NewDragService(db, provider, client, 1, logger), logger)
	exportH := handler.NewExportHandler(service.NewExportService(db, tokens, t.TempDir(), time.Hour, publicBaseURL, logger), logger)

	r := chi.NewRouter()
	r.Get("/", pages.HandleIndex)
	r.Get("/login", authH.HandleLogin)
	r.Get("/callback", authH.HandleCallback)
	r.Get("/healthz", handler.HandleHealth(db, logger))
	r.Get("/download/{token}", exportH.HandleDownload)
	r.Route("/api", func(r chi.Router) {
		r.Use(auth.RequireAPIKey("api-secret", handler.WriteError))
		r.Get("/guilds", guildH.HandleList)
		r.Post("/guilds", guildH.HandleRegister)
		r.Get("/check_guild/{guild_id}", guildH.HandleCheckGuild)
		r.Get("/check_role/{guild_id}/{role_id}", guildH.HandleCheckRole)
		r.Post("/send_verify_prompt", guildH.HandleSendVerifyPrompt)
		r.Post("/drag_users", dragH.HandleDrag)
		r.Post("/export_users", exportH.HandleExport)
	})

	return &testEnv{fake: fake, db: db, router: r}
}

// api sends an authenticated /api request.
func (e *testEnv) api(method, path, body string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = bytes.NewBufferString(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set(auth.APIKeyHeader, "api-secret")
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	e.router.ServeHTTP(rr, req)
	return rr
}

func (e *testEnv) get(path string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rr := httptest.NewRecorder()
	e.router.ServeHTTP(rr, req)
	return rr
}

func decodeBody[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&v), "body: %s", rr.Body.String())
	return v
}
