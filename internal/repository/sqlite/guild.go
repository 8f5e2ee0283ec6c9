package sqlite

import (
	"context"
	"fmt"

	"github.com/bwmarrin/snowflake"

	"github.com/sakif/insignia/internal/model"
	"github.com/sakif/insignia/internal/repository"
)

// compile-time check that *DB implements repository.GuildRepository
var _ repository.GuildRepository = (*DB)(nil)

// UpsertGuild stores the verified role for a guild, replacing any earlier one.
func (db *DB) UpsertGuild(ctx context.Context, guild *model.GuildConfig) error {
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO guilds (guild_id, verified_role_id)
		VALUES (?, ?)
		ON CONFLICT(guild_id) DO UPDATE SET
			verified_role_id = excluded.verified_role_id`,
		guild.GuildID.Int64(),
		guild.VerifiedRoleID.Int64(),
	)
	if err != nil {
		return fmt.Errorf("sqlite: upserting guild %s: %w", guild.GuildID, err)
	}
	return nil
}

// ListGuilds returns every managed guild ordered by id.
func (db *DB) ListGuilds(ctx context.Context) ([]model.GuildConfig, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT guild_id, verified_role_id FROM guilds ORDER BY guild_id`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing guilds: %w", err)
	}
	defer rows.Close()

	guilds := []model.GuildConfig{}
	for rows.Next() {
		var guildID, roleID int64
		if err := rows.Scan(&guildID, &roleID); err != nil {
			return nil, fmt.Errorf("sqlite: scanning guild: %w", err)
		}
		guilds = append(guilds, model.GuildConfig{
			GuildID:        snowflake.ID(guildID),
			VerifiedRoleID: snowflake.ID(roleID),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating guilds: %w", err)
	}
	return guilds, nil
}
