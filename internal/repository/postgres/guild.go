package postgres

import (
	"context"
	"fmt"

	"github.com/bwmarrin/snowflake"

	"github.com/sakif/insignia/internal/model"
	"github.com/sakif/insignia/internal/repository"
)

var _ repository.GuildRepository = (*DB)(nil)

// UpsertGuild stores the verified role for a guild, replacing any earlier one.
func (db *DB) UpsertGuild(ctx context.Context, guild *model.GuildConfig) error {
	_, err := db.pool.Exec(ctx, `
		INSERT INTO guilds (guild_id, verified_role_id)
		VALUES ($1, $2)
		ON CONFLICT (guild_id) DO UPDATE SET
			verified_role_id = EXCLUDED.verified_role_id`,
		guild.GuildID.Int64(),
		guild.VerifiedRoleID.Int64(),
	)
	if err != nil {
		return fmt.Errorf("postgres: upserting guild %s: %w", guild.GuildID, err)
	}
	return nil
}

// ListGuilds returns every managed guild ordered by id.
func (db *DB) ListGuilds(ctx context.Context) ([]model.GuildConfig, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT guild_id, verified_role_id FROM guilds ORDER BY guild_id`)
	if err != nil {
		return nil, fmt.Errorf("postgres: listing guilds: %w", err)
	}
	defer rows.Close()

	guilds := []model.GuildConfig{}
	for rows.Next() {
		var guildID, roleID int64
		if err := rows.Scan(&guildID, &roleID); err != nil {
			return nil, fmt.Errorf("postgres: scanning guild: %w", err)
		}
		guilds = append(guilds, model.GuildConfig{
			GuildID:        snowflake.ID(guildID),
			VerifiedRoleID: snowflake.ID(roleID),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterating guilds: %w", err)
	}
	return guilds, nil
}
