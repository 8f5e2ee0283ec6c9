package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sakif/insignia/internal/apperror"
	"github.com/sakif/insignia/internal/model"
	"github.com/sakif/insignia/internal/repository"
)

// AuthService turns a completed OAuth redirect into a stored Identity.
//
//	AuthHandler (HTTP) → AuthService → OAuthProvider (Discord)
//	                                 ↘ IdentityRepository (DB)
type AuthService struct {
	oauth  OAuthProvider
	users  repository.IdentityRepository
	logger *slog.Logger
}

// NewAuthService creates an AuthService.
func NewAuthService(oauth OAuthProvider, users repository.IdentityRepository, logger *slog.Logger) *AuthService {
	return &AuthService{oauth: oauth, users: users, logger: logger}
}

// CompleteLogin exchanges code for tokens, resolves the Discord user and
// upserts their Identity. sourceAddress is the client IP of the callback.
//
// Nothing is written unless both the token exchange and the profile lookup
// succeed. A second login by the same user overwrites the earlier row.
func (s *AuthService) CompleteLogin(ctx context.Context, code, sourceAddress string) (*model.Identity, error) {
	if code == "" {
		return nil, apperror.ValidationFailed("code", "missing OAuth code")
	}

	login, err := s.oauth.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("service/auth: %w", err)
	}

	identity := &model.Identity{
		ID:            login.User.ID,
		Username:      login.User.DisplayName(),
		AccessToken:   login.AccessToken,
		RefreshToken:  login.RefreshToken,
		ExpiresAt:     login.ExpiresAt,
		Email:         login.User.Email,
		SourceAddress: sourceAddress,
	}
	if err := s.users.UpsertIdentity(ctx, identity); err != nil {
		return nil, fmt.Errorf("service/auth: storing user %s: %w", identity.ID, err)
	}

	s.logger.Info("user authenticated",
		slog.String("userID", identity.ID.String()),
		slog.String("username", identity.Username),
	)
	return identity, nil
}
