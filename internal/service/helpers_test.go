package service

import (
	"io"
	"log/slog"
	"testing"

	"github.com/sakif/insignia/internal/auth"
	"github.com/sakif/insignia/internal/discord"
	"github.com/sakif/insignia/internal/discord/discordtest"
	"github.com/sakif/insignia/internal/repository/sqlite"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestDB returns a fresh in-memory store closed when the test ends.
func newTestDB(t *testing.T) *sqlite.DB {
	t.Helper()
	db, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("failed to create test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// testDiscord bundles a fake Discord with a client and OAuth provider
// pointed at it.
type testDiscord struct {
	fake     *discordtest.Server
	client   *discord.Client
	provider *auth.DiscordProvider
}

func newTestDiscord(t *testing.T) *testDiscord {
	t.Helper()
	fake := discordtest.NewServer(t)
	client := discord.NewClient(fake.Config(), nil, discardLogger())
	return &testDiscord{
		fake:     fake,
		client:   client,
		provider: auth.NewDiscordProvider("client-id", "client-secret", "http://localhost:8000/callback", fake.URL, client),
	}
}
