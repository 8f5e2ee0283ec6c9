package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"

	"github.com/sakif/insignia/internal/apperror"
	"github.com/sakif/insignia/internal/model"
)

// newTestDB returns a fresh in-memory database closed when the test ends.
func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(":memory:")
	if err != nil {
		t.Fatalf("failed to create test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func upsertTestIdentity(t *testing.T, db *DB, id snowflake.ID, username string, expiresAt time.Time) *model.Identity {
	t.Helper()
	identity := &model.Identity{
		ID:            id,
		Username:      username,
		AccessToken:   "access-" + username,
		RefreshToken:  "refresh-" + username,
		ExpiresAt:     expiresAt,
		Email:         username + "@example.com",
		SourceAddress: "203.0.113.7",
	}
	if err := db.UpsertIdentity(context.Background(), identity); err != nil {
		t.Fatalf("failed to upsert test identity: %v", err)
	}
	return identity
}

func TestUpsertIdentity_New(t *testing.T) {
	db := newTestDB(t)
	expires := time.Unix(1_800_000_000, 0)

	upsertTestIdentity(t, db, 42, "alice", expires)

	got, err := db.ListIdentities(context.Background())
	if err != nil {
		t.Fatalf("ListIdentities() error = %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("len = %d, want 1", len(got))
	}
	if got[0].ID != 42 || got[0].Username != "alice" {
		t.Errorf("got %+v", got[0])
	}
	if got[0].AccessToken != "access-alice" || got[0].RefreshToken != "refresh-alice" {
		t.Errorf("tokens not persisted: %+v", got[0])
	}
	if !got[0].ExpiresAt.Equal(expires) {
		t.Errorf("ExpiresAt = %v, want %v", got[0].ExpiresAt, expires)
	}
	if got[0].Email != "alice@example.com" || got[0].SourceAddress != "203.0.113.7" {
		t.Errorf("metadata not persisted: %+v", got[0])
	}
}

func TestUpsertIdentity_LastWriteWins(t *testing.T) {
	db := newTestDB(t)

	upsertTestIdentity(t, db, 42, "old_name", time.Unix(1_700_000_000, 0))
	upsertTestIdentity(t, db, 42, "new_name", time.Unix(1_800_000_000, 0))

	got, err := db.ListIdentities(context.Background())
	if err != nil {
		t.Fatalf("ListIdentities() error = %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("len = %d, want exactly one row per user", len(got))
	}
	if got[0].Username != "new_name" {
		t.Errorf("Username = %q, want %q", got[0].Username, "new_name")
	}
	if got[0].AccessToken != "access-new_name" {
		t.Errorf("AccessToken = %q, want latest", got[0].AccessToken)
	}
	if got[0].ExpiresAt.Unix() != 1_800_000_000 {
		t.Errorf("ExpiresAt = %v, want latest", got[0].ExpiresAt)
	}
}

func TestListIdentities_EmptyAndOrdered(t *testing.T) {
	db := newTestDB(t)

	got, err := db.ListIdentities(context.Background())
	if err != nil {
		t.Fatalf("ListIdentities() error = %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Fatalf("empty store should give an empty, non-nil slice, got %#v", got)
	}

	now := time.Now()
	upsertTestIdentity(t, db, 300, "c", now)
	upsertTestIdentity(t, db, 100, "a", now)
	upsertTestIdentity(t, db, 200, "b", now)

	got, err = db.ListIdentities(context.Background())
	if err != nil {
		t.Fatalf("ListIdentities() error = %v", err)
	}
	want := []snowflake.ID{100, 200, 300}
	for i, id := range want {
		if got[i].ID != id {
			t.Errorf("got[%d].ID = %d, want %d", i, got[i].ID, id)
		}
	}
}

func TestListIdentities_LargeSnowflake(t *testing.T) {
	db := newTestDB(t)
	const id = snowflake.ID(1_234_567_890_123_456_789)

	upsertTestIdentity(t, db, id, "big", time.Now())

	got, err := db.ListIdentities(context.Background())
	if err != nil {
		t.Fatalf("ListIdentities() error = %v", err)
	}
	if got[0].ID != id {
		t.Errorf("ID = %d, want %d", got[0].ID, id)
	}
}

func TestUpdateTokens(t *testing.T) {
	db := newTestDB(t)
	upsertTestIdentity(t, db, 42, "alice", time.Unix(1_700_000_000, 0))

	newExpiry := time.Unix(1_900_000_000, 0)
	if err := db.UpdateTokens(context.Background(), 42, "fresh-access", "fresh-refresh", newExpiry); err != nil {
		t.Fatalf("UpdateTokens() error = %v", err)
	}

	got, _ := db.ListIdentities(context.Background())
	if got[0].AccessToken != "fresh-access" || got[0].RefreshToken != "fresh-refresh" {
		t.Errorf("tokens = %q/%q", got[0].AccessToken, got[0].RefreshToken)
	}
	if !got[0].ExpiresAt.Equal(newExpiry) {
		t.Errorf("ExpiresAt = %v, want %v", got[0].ExpiresAt, newExpiry)
	}
	if got[0].Username != "alice" {
		t.Errorf("UpdateTokens() must not touch the profile, Username = %q", got[0].Username)
	}
}

func TestUpdateTokens_NotFound(t *testing.T) {
	db := newTestDB(t)

	err := db.UpdateTokens(context.Background(), 999, "a", "r", time.Now())
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("UpdateTokens() error = %v, want ErrNotFound", err)
	}
}
