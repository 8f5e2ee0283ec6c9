package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/insignia/internal/apperror"
	"github.com/sakif/insignia/internal/model"
)

func newTestRepo(t *testing.T) (*DB, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return New(mock), mock
}

func TestMigrate(t *testing.T) {
	db, mock := newTestRepo(t)

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS users").
		WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS guilds").
		WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))

	require.NoError(t, db.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrate_Error(t *testing.T) {
	db, mock := newTestRepo(t)

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS users").
		WillReturnError(errors.New("permission denied"))

	err := db.Migrate(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "creating users table")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertIdentity(t *testing.T) {
	db, mock := newTestRepo(t)
	identity := &model.Identity{
		ID:            42,
		Username:      "alice",
		AccessToken:   "a",
		RefreshToken:  "r",
		ExpiresAt:     time.Unix(1_800_000_000, 0),
		Email:         "alice@example.com",
		SourceAddress: "203.0.113.7",
	}

	mock.ExpectExec("INSERT INTO users").
		WithArgs(int64(42), "alice", "a", "r", int64(1_800_000_000), "alice@example.com", "203.0.113.7").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, db.UpsertIdentity(context.Background(), identity))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListIdentities(t *testing.T) {
	db, mock := newTestRepo(t)

	rows := pgxmock.NewRows([]string{"id", "username", "access_token", "refresh_token", "expires_at", "email", "ip"}).
		AddRow(int64(1), "one", "a1", "r1", int64(1_800_000_000), "one@example.com", "10.0.0.1").
		AddRow(int64(2), "two", "a2", "r2", int64(1_700_000_000), "", "")
	mock.ExpectQuery("SELECT id, username").WillReturnRows(rows)

	got, err := db.ListIdentities(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "one", got[0].Username)
	assert.Equal(t, "a1", got[0].AccessToken)
	assert.Equal(t, int64(1_800_000_000), got[0].ExpiresAt.Unix())
	assert.Equal(t, "10.0.0.1", got[0].SourceAddress)
	assert.EqualValues(t, 2, got[1].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListIdentities_Empty(t *testing.T) {
	db, mock := newTestRepo(t)

	mock.ExpectQuery("SELECT id, username").
		WillReturnRows(pgxmock.NewRows([]string{"id", "username", "access_token", "refresh_token", "expires_at", "email", "ip"}))

	got, err := db.ListIdentities(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestUpdateTokens(t *testing.T) {
	db, mock := newTestRepo(t)
	expires := time.Unix(1_900_000_000, 0)

	mock.ExpectExec("UPDATE users SET").
		WithArgs("a2", "r2", int64(1_900_000_000), int64(42)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, db.UpdateTokens(context.Background(), 42, "a2", "r2", expires))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateTokens_NotFound(t *testing.T) {
	db, mock := newTestRepo(t)

	mock.ExpectExec("UPDATE users SET").
		WithArgs("a", "r", pgxmock.AnyArg(), int64(999)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := db.UpdateTokens(context.Background(), 999, "a", "r", time.Now())
	assert.True(t, errors.Is(err, apperror.ErrNotFound))
}

func TestUpsertGuild(t *testing.T) {
	db, mock := newTestRepo(t)

	mock.ExpectExec("INSERT INTO guilds").
		WithArgs(int64(111), int64(222)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, db.UpsertGuild(context.Background(), &model.GuildConfig{GuildID: 111, VerifiedRoleID: 222}))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListGuilds(t *testing.T) {
	db, mock := newTestRepo(t)

	mock.ExpectQuery("SELECT guild_id, verified_role_id FROM guilds").
		WillReturnRows(pgxmock.NewRows([]string{"guild_id", "verified_role_id"}).
			AddRow(int64(10), int64(1)).
			AddRow(int64(20), int64(2)))

	got, err := db.ListGuilds(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.EqualValues(t, 10, got[0].GuildID)
	assert.EqualValues(t, 2, got[1].VerifiedRoleID)
}

func TestListGuilds_QueryError(t *testing.T) {
	db, mock := newTestRepo(t)

	mock.ExpectQuery("SELECT guild_id").WillReturnError(errors.New("connection reset"))

	_, err := db.ListGuilds(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "listing guilds")
}
