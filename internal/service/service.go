// Package service contains the business logic of the verification backend.
//
// THE THREE-LAYER ARCHITECTURE:
//
//	Handler (HTTP layer)     → parses requests, writes responses
//	Service (Business layer) → enforces rules, orchestrates Discord calls
//	Repository (Data layer)  → reads/writes users and guilds
//
// Services depend on small interfaces (declared here) rather than on
// *discord.Client or a concrete store, so tests can hand them a fake
// Discord server, an in-memory SQLite database, or a plain Go fake.
package service

import (
	"context"

	"github.com/bwmarrin/snowflake"

	"github.com/sakif/insignia/internal/auth"
	"github.com/sakif/insignia/internal/discord"
)

// OAuthProvider completes and renews Discord OAuth grants.
// *auth.DiscordProvider implements it.
type OAuthProvider interface {
	Exchange(ctx context.Context, code string) (*auth.Login, error)
	Refresh(ctx context.Context, refreshToken string) (*auth.Credentials, error)
}

// GuildAPI is the part of the Discord API the guild flows need.
// *discord.Client implements it.
type GuildAPI interface {
	BotID(ctx context.Context) (snowflake.ID, error)
	Guild(ctx context.Context, guildID snowflake.ID) (*discord.Guild, error)
	GuildRoles(ctx context.Context, guildID snowflake.ID) ([]discord.Role, error)
	GuildMember(ctx context.Context, guildID, userID snowflake.ID) (*discord.Member, error)
	CreateMessage(ctx context.Context, channelID snowflake.ID, msg discord.MessageCreate) (*discord.Message, error)
	BotInviteURL(guildID snowflake.ID) string
}

// MemberAdder force-joins users into guilds. *discord.Client implements it.
type MemberAdder interface {
	AddGuildMember(ctx context.Context, guildID, userID snowflake.ID, accessToken string) (int, error)
}

var (
	_ OAuthProvider = (*auth.DiscordProvider)(nil)
	_ GuildAPI      = (*discord.Client)(nil)
	_ MemberAdder   = (*discord.Client)(nil)
)
