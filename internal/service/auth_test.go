package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/insignia/internal/apperror"
	"github.com/sakif/insignia/internal/discord"
	"github.com/sakif/insignia/internal/discord/discordtest"
	"github.com/sakif/insignia/internal/repository/sqlite"
)

func newTestAuthService(t *testing.T) (*AuthService, *testDiscord, *sqlite.DB) {
	t.Helper()
	d := newTestDiscord(t)
	store := newTestDB(t)
	return NewAuthService(d.provider, store, discardLogger()), d, store
}

func TestCompleteLogin_NewUser(t *testing.T) {
	svc, d, store := newTestAuthService(t)
	d.fake.Codes["code-1"] = discordtest.Grant{AccessToken: "at-1", RefreshToken: "rt-1", ExpiresIn: 604800}
	d.fake.Users["at-1"] = discord.User{ID: 42, Username: "alice", Discriminator: "0", Email: "alice@example.com"}

	before := time.Now()
	identity, err := svc.CompleteLogin(context.Background(), "code-1", "203.0.113.7")
	require.NoError(t, err)
	assert.EqualValues(t, 42, identity.ID)

	stored, err := store.ListIdentities(context.Background())
	require.NoError(t, err)
	require.Len(t, stored, 1)
	got := stored[0]
	assert.Equal(t, "alice", got.Username)
	assert.Equal(t, "at-1", got.AccessToken)
	assert.Equal(t, "rt-1", got.RefreshToken)
	assert.Equal(t, "alice@example.com", got.Email)
	assert.Equal(t, "203.0.113.7", got.SourceAddress)
	assert.WithinDuration(t, before.Add(7*24*time.Hour), got.ExpiresAt, 5*time.Second)
}

func TestCompleteLogin_LegacyDiscriminator(t *testing.T) {
	svc, d, _ := newTestAuthService(t)
	d.fake.Codes["code"] = discordtest.Grant{AccessToken: "at", RefreshToken: "rt", ExpiresIn: 60}
	d.fake.Users["at"] = discord.User{ID: 7, Username: "bob", Discriminator: "1234"}

	identity, err := svc.CompleteLogin(context.Background(), "code", "")
	require.NoError(t, err)
	assert.Equal(t, "bob#1234", identity.Username)
}

func TestCompleteLogin_SecondLoginOverwrites(t *testing.T) {
	svc, d, store := newTestAuthService(t)
	d.fake.Codes["first"] = discordtest.Grant{AccessToken: "at-1", RefreshToken: "rt-1", ExpiresIn: 60}
	d.fake.Codes["second"] = discordtest.Grant{AccessToken: "at-2", RefreshToken: "rt-2", ExpiresIn: 120}
	d.fake.Users["at-1"] = discord.User{ID: 42, Username: "old"}
	d.fake.Users["at-2"] = discord.User{ID: 42, Username: "new"}

	_, err := svc.CompleteLogin(context.Background(), "first", "10.0.0.1")
	require.NoError(t, err)
	_, err = svc.CompleteLogin(context.Background(), "second", "10.0.0.2")
	require.NoError(t, err)

	stored, err := store.ListIdentities(context.Background())
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, "new", stored[0].Username)
	assert.Equal(t, "at-2", stored[0].AccessToken)
	assert.Equal(t, "10.0.0.2", stored[0].SourceAddress)
}

func TestCompleteLogin_Failures(t *testing.T) {
	tests := []struct {
		name       string
		code       string
		setup      func(d *testDiscord)
		wantStatus int
		wantErr    error
	}{
		{
			name:    "missing code",
			code:    "",
			wantErr: apperror.ErrValidation,
		},
		{
			name:       "code rejected by token endpoint",
			code:       "bogus",
			wantStatus: 400,
		},
		{
			name: "profile lookup fails",
			code: "code",
			setup: func(d *testDiscord) {
				d.fake.Codes["code"] = discordtest.Grant{AccessToken: "at", RefreshToken: "rt", ExpiresIn: 60}
				d.fake.Fail["GET /users/@me"] = 500
			},
			wantStatus: 500,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, d, store := newTestAuthService(t)
			if tt.setup != nil {
				tt.setup(d)
			}

			_, err := svc.CompleteLogin(context.Background(), tt.code, "10.0.0.1")
			require.Error(t, err)
			if tt.wantErr != nil {
				assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
			}
			if tt.wantStatus != 0 {
				status, ok := discord.StatusOf(err)
				require.True(t, ok, "want *discord.APIError, got %v", err)
				assert.Equal(t, tt.wantStatus, status)
			}

			stored, err := store.ListIdentities(context.Background())
			require.NoError(t, err)
			assert.Empty(t, stored, "nothing may be persisted when the exchange fails")
		})
	}
}
