package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/sakif/insignia/internal/apperror"
	"github.com/sakif/insignia/internal/model"
	"github.com/sakif/insignia/internal/repository"
)

var _ repository.IdentityRepository = (*DB)(nil)

// UpsertIdentity inserts a user or overwrites every column of the existing row.
func (db *DB) UpsertIdentity(ctx context.Context, identity *model.Identity) error {
	_, err := db.pool.Exec(ctx, `
		INSERT INTO users (id, username, access_token, refresh_token, expires_at, email, ip)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			username      = EXCLUDED.username,
			access_token  = EXCLUDED.access_token,
			refresh_token = EXCLUDED.refresh_token,
			expires_at    = EXCLUDED.expires_at,
			email         = EXCLUDED.email,
			ip            = EXCLUDED.ip`,
		identity.ID.Int64(),
		identity.Username,
		identity.AccessToken,
		identity.RefreshToken,
		identity.ExpiresAt.Unix(),
		identity.Email,
		identity.SourceAddress,
	)
	if err != nil {
		return fmt.Errorf("postgres: upserting user %s: %w", identity.ID, err)
	}
	return nil
}

// ListIdentities returns every stored user ordered by id.
func (db *DB) ListIdentities(ctx context.Context) ([]model.Identity, error) {
	rows, err := db.pool.Query(ctx, `
		SELECT id, username, access_token, refresh_token, expires_at, email, ip
		FROM users
		ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("postgres: listing users: %w", err)
	}
	defer rows.Close()

	identities := []model.Identity{}
	for rows.Next() {
		var (
			id                        int64
			username, access, refresh pgtype.Text
			email, ip                 pgtype.Text
			expiresAt                 pgtype.Int8
		)
		if err := rows.Scan(&id, &username, &access, &refresh, &expiresAt, &email, &ip); err != nil {
			return nil, fmt.Errorf("postgres: scanning user: %w", err)
		}
		identities = append(identities, model.Identity{
			ID:            snowflake.ID(id),
			Username:      username.String,
			AccessToken:   access.String,
			RefreshToken:  refresh.String,
			ExpiresAt:     time.Unix(expiresAt.Int64, 0),
			Email:         email.String,
			SourceAddress: ip.String,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterating users: %w", err)
	}
	return identities, nil
}

// UpdateTokens replaces one user's OAuth credentials.
// Returns apperror.ErrNotFound if the user does not exist.
func (db *DB) UpdateTokens(ctx context.Context, id snowflake.ID, accessToken, refreshToken string, expiresAt time.Time) error {
	tag, err := db.pool.Exec(ctx,
		`UPDATE users SET access_token = $1, refresh_token = $2, expires_at = $3 WHERE id = $4`,
		accessToken, refreshToken, expiresAt.Unix(), id.Int64(),
	)
	if err != nil {
		return fmt.Errorf("postgres: updating tokens for user %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return apperror.NotFound("user", id.String())
	}
	return nil
}
