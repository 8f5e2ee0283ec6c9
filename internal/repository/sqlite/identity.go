package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"

	"github.com/sakif/insignia/internal/apperror"
	"github.com/sakif/insignia/internal/model"
	"github.com/sakif/insignia/internal/repository"
)

// compile-time check that *DB implements repository.IdentityRepository
var _ repository.IdentityRepository = (*DB)(nil)

// UpsertIdentity inserts a user or, when the Discord id already exists,
// overwrites every column. The last authentication wins.
func (db *DB) UpsertIdentity(ctx context.Context, identity *model.Identity) error {
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO users (id, username, access_token, refresh_token, expires_at, email, ip)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			username      = excluded.username,
			access_token  = excluded.access_token,
			refresh_token = excluded.refresh_token,
			expires_at    = excluded.expires_at,
			email         = excluded.email,
			ip            = excluded.ip`,
		identity.ID.Int64(),
		identity.Username,
		identity.AccessToken,
		identity.RefreshToken,
		identity.ExpiresAt.Unix(),
		identity.Email,
		identity.SourceAddress,
	)
	if err != nil {
		return fmt.Errorf("sqlite: upserting user %s: %w", identity.ID, err)
	}
	return nil
}

// ListIdentities returns every stored user ordered by id.
func (db *DB) ListIdentities(ctx context.Context) ([]model.Identity, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, username, access_token, refresh_token, expires_at, email, ip
		FROM users
		ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing users: %w", err)
	}
	defer rows.Close()

	identities := []model.Identity{}
	for rows.Next() {
		var (
			id                        int64
			username, access, refresh sql.NullString
			email, ip                 sql.NullString
			expiresAt                 sql.NullInt64
		)
		if err := rows.Scan(&id, &username, &access, &refresh, &expiresAt, &email, &ip); err != nil {
			return nil, fmt.Errorf("sqlite: scanning user: %w", err)
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
		return nil, fmt.Errorf("sqlite: iterating users: %w", err)
	}
	return identities, nil
}

// UpdateTokens replaces one user's OAuth credentials after a refresh.
// Returns apperror.ErrNotFound if the user does not exist.
func (db *DB) UpdateTokens(ctx context.Context, id snowflake.ID, accessToken, refreshToken string, expiresAt time.Time) error {
	result, err := db.conn.ExecContext(ctx,
		`UPDATE users SET access_token = ?, refresh_token = ?, expires_at = ? WHERE id = ?`,
		accessToken, refreshToken, expiresAt.Unix(), id.Int64(),
	)
	if err != nil {
		return fmt.Errorf("sqlite: updating tokens for user %s: %w", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if affected == 0 {
		return apperror.NotFound("user", id.String())
	}
	return nil
}
