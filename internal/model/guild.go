package model

import "github.com/bwmarrin/snowflake"

// GuildConfig maps a managed guild to the role granted to verified members.
// One row per guild; adding the guild again replaces the role.
type GuildConfig struct {
	GuildID        snowflake.ID `json:"guild_id"`
	VerifiedRoleID snowflake.ID `json:"verified_role_id"`
}
