// Package repository declares the storage interfaces the services depend on.
// Implementations live in the sqlite and postgres subpackages.
package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"

	"github.com/sakif/insignia/internal/model"
)

// IdentityRepository stores authenticated users (the "users" table).
type IdentityRepository interface {
	// UpsertIdentity inserts the identity or overwrites every column of the
	// existing row with the same ID.
	UpsertIdentity(ctx context.Context, identity *model.Identity) error
	// ListIdentities returns every identity ordered by ID.
	ListIdentities(ctx context.Context) ([]model.Identity, error)
	// UpdateTokens replaces the OAuth credentials of one identity.
	UpdateTokens(ctx context.Context, id snowflake.ID, accessToken, refreshToken string, expiresAt time.Time) error
}

// GuildRepository stores managed guilds (the "guilds" table).
type GuildRepository interface {
	UpsertGuild(ctx context.Context, guild *model.GuildConfig) error
	ListGuilds(ctx context.Context) ([]model.GuildConfig, error)
}
