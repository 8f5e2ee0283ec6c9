package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bwmarrin/snowflake"

	"github.com/sakif/insignia/internal/model"
)

// Sealer encrypts values before they are stored and decrypts them on read.
// *auth.TokenSealer implements it.
type Sealer interface {
	Seal(plaintext string) (string, error)
	Open(stored string) (string, error)
}

// sealedIdentities wraps an IdentityRepository so OAuth tokens are only ever
// stored sealed. Callers keep seeing plaintext tokens.
type sealedIdentities struct {
	next   IdentityRepository
	sealer Sealer
	logger *slog.Logger
}

// Sealed returns an IdentityRepository that seals tokens on write and opens
// them on read before delegating to next.
//
// A row whose tokens cannot be opened (wrong key, tampered value) is still
// listed, with both tokens cleared, so callers fail that one user only.
func Sealed(next IdentityRepository, sealer Sealer, logger *slog.Logger) IdentityRepository {
	return &sealedIdentities{next: next, sealer: sealer, logger: logger}
}

func (s *sealedIdentities) UpsertIdentity(ctx context.Context, identity *model.Identity) error {
	access, refresh, err := s.seal(identity.AccessToken, identity.RefreshToken)
	if err != nil {
		return fmt.Errorf("repository: sealing tokens for %s: %w", identity.ID, err)
	}
	stored := *identity
	stored.AccessToken = access
	stored.RefreshToken = refresh
	return s.next.UpsertIdentity(ctx, &stored)
}

func (s *sealedIdentities) ListIdentities(ctx context.Context) ([]model.Identity, error) {
	identities, err := s.next.ListIdentities(ctx)
	if err != nil {
		return nil, err
	}
	for i := range identities {
		id := &identities[i]
		access, aerr := s.sealer.Open(id.AccessToken)
		refresh, rerr := s.sealer.Open(id.RefreshToken)
		if aerr != nil || rerr != nil {
			s.logger.Warn("unreadable sealed tokens, clearing",
				slog.String("userID", id.ID.String()),
				slog.String("error", errors.Join(aerr, rerr).Error()),
			)
			access, refresh = "", ""
		}
		id.AccessToken, id.RefreshToken = access, refresh
	}
	return identities, nil
}

func (s *sealedIdentities) UpdateTokens(ctx context.Context, id snowflake.ID, accessToken, refreshToken string, expiresAt time.Time) error {
	access, refresh, err := s.seal(accessToken, refreshToken)
	if err != nil {
		return fmt.Errorf("repository: sealing tokens for %s: %w", id, err)
	}
	return s.next.UpdateTokens(ctx, id, access, refresh, expiresAt)
}

func (s *sealedIdentities) seal(access, refresh string) (string, string, error) {
	sealedAccess, err := s.sealer.Seal(access)
	if err != nil {
		return "", "", err
	}
	sealedRefresh, err := s.sealer.Seal(refresh)
	if err != nil {
		return "", "", err
	}
	return sealedAccess, sealedRefresh, nil
}
