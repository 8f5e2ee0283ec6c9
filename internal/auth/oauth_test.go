package auth_test

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/insignia/internal/auth"
	"github.com/sakif/insignia/internal/discord"
	"github.com/sakif/insignia/internal/discord/discordtest"
)

func newTestProvider(t *testing.T) (*auth.DiscordProvider, *discordtest.Server) {
	t.Helper()
	fake := discordtest.NewServer(t)
	client := discord.NewClient(fake.Config(), nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
	p := auth.NewDiscordProvider("client-id", "client-secret", "http://localhost:8000/callback", fake.URL, client)
	return p, fake
}

func TestAuthURL(t *testing.T) {
	p, fake := newTestProvider(t)

	u, err := url.Parse(p.AuthURL("state-123"))
	require.NoError(t, err)

	assert.Equal(t, fake.URL+"/oauth2/authorize", u.Scheme+"://"+u.Host+u.Path)
	q := u.Query()
	assert.Equal(t, "client-id", q.Get("client_id"))
	assert.Equal(t, "code", q.Get("response_type"))
	assert.Equal(t, "identify email guilds.join", q.Get("scope"))
	assert.Equal(t, "state-123", q.Get("state"))
	assert.Equal(t, "http://localhost:8000/callback", q.Get("redirect_uri"))
}

func TestExchange(t *testing.T) {
	p, fake := newTestProvider(t)
	fake.Codes["good-code"] = discordtest.Grant{AccessToken: "at", RefreshToken: "rt", ExpiresIn: 604800}
	fake.Users["at"] = discord.User{ID: 42, Username: "alice", Discriminator: "0", Email: "alice@example.com"}

	before := time.Now()
	login, err := p.Exchange(context.Background(), "good-code")
	require.NoError(t, err)

	assert.EqualValues(t, 42, login.User.ID)
	assert.Equal(t, "alice", login.User.Username)
	assert.Equal(t, "at", login.AccessToken)
	assert.Equal(t, "rt", login.RefreshToken)
	assert.WithinDuration(t, before.Add(604800*time.Second), login.ExpiresAt, 5*time.Second)
}

func TestExchange_BadCode(t *testing.T) {
	p, _ := newTestProvider(t)

	_, err := p.Exchange(context.Background(), "nope")
	require.Error(t, err)

	status, ok := discord.StatusOf(err)
	require.True(t, ok, "token endpoint failure should surface as *discord.APIError")
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestExchange_ProfileFailure(t *testing.T) {
	p, fake := newTestProvider(t)
	fake.Codes["code"] = discordtest.Grant{AccessToken: "unknown", RefreshToken: "rt", ExpiresIn: 60}

	_, err := p.Exchange(context.Background(), "code")
	require.Error(t, err)

	status, _ := discord.StatusOf(err)
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestRefresh(t *testing.T) {
	p, fake := newTestProvider(t)
	fake.RefreshTokens["old-rt"] = discordtest.Grant{AccessToken: "new-at", RefreshToken: "new-rt", ExpiresIn: 3600}

	creds, err := p.Refresh(context.Background(), "old-rt")
	require.NoError(t, err)
	assert.Equal(t, "new-at", creds.AccessToken)
	assert.Equal(t, "new-rt", creds.RefreshToken)
	assert.True(t, creds.ExpiresAt.After(time.Now().Add(59*time.Minute)))

	// refresh tokens are single use on the fake, as on Discord
	_, err = p.Refresh(context.Background(), "old-rt")
	assert.Error(t, err)
}

func TestRefresh_Empty(t *testing.T) {
	p, fake := newTestProvider(t)

	_, err := p.Refresh(context.Background(), "")
	assert.Error(t, err)
	assert.Zero(t, fake.CallCount("POST /oauth2/token"))
}
