package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/bwmarrin/snowflake"

	"github.com/sakif/insignia/internal/apperror"
	"github.com/sakif/insignia/internal/discord"
	"github.com/sakif/insignia/internal/model"
	"github.com/sakif/insignia/internal/repository"
)

// Verify prompt content.
const (
	verifyColor        = 0x5865F2
	verifyDescription  = "Click **Verify** to authenticate and receive your Verified role."
	verifyButtonLabel  = "✅ Verify"
	fallbackGuildName  = "this server"
	verifyTitlePattern = "🔐 Verify Yourself for %s"
)

// Membership is the result of a bot membership check.
type Membership struct {
	InGuild    bool   `json:"in_guild"`
	InviteLink string `json:"invite_link,omitempty"`
}

// RoleCheck reports whether the bot may grant a role.
type RoleCheck struct {
	CanAssign    bool `json:"can_assign"`
	RolePosition int  `json:"role_pos"`
	BotPosition  int  `json:"bot_pos"`
}

// GuildService owns the guild registry and every flow that needs the bot
// to be present in a guild: registration, role checks and verify prompts.
type GuildService struct {
	discord GuildAPI
	guilds  repository.GuildRepository
	// loginURL is where the verify button sends users.
	loginURL string
	logger   *slog.Logger
}

// NewGuildService creates a GuildService. loginURL is the public URL of the
// OAuth entry point, e.g. "https://verify.example.com/login".
func NewGuildService(api GuildAPI, guilds repository.GuildRepository, loginURL string, logger *slog.Logger) *GuildService {
	return &GuildService{discord: api, guilds: guilds, loginURL: loginURL, logger: logger}
}

// ListGuilds returns every registered guild.
func (s *GuildService) ListGuilds(ctx context.Context) ([]model.GuildConfig, error) {
	guilds, err := s.guilds.ListGuilds(ctx)
	if err != nil {
		return nil, fmt.Errorf("service/guild: listing guilds: %w", err)
	}
	return guilds, nil
}

// CheckMembership reports whether the bot is in guildID. When it is not,
// the result carries the invite link an operator can follow.
func (s *GuildService) CheckMembership(ctx context.Context, guildID snowflake.ID) (*Membership, error) {
	_, err := s.botMember(ctx, guildID)
	switch {
	case err == nil:
		return &Membership{InGuild: true}, nil
	case isNotInGuild(err):
		return &Membership{InGuild: false, InviteLink: s.discord.BotInviteURL(guildID)}, nil
	default:
		return nil, err
	}
}

// CheckRole compares roleID's position with the bot's highest role.
// The bot can assign a role only if it sits strictly below that role.
func (s *GuildService) CheckRole(ctx context.Context, guildID, roleID snowflake.ID) (*RoleCheck, error) {
	member, err := s.botMember(ctx, guildID)
	if err != nil {
		return nil, err
	}

	roles, err := s.discord.GuildRoles(ctx, guildID)
	if err != nil {
		return nil, fmt.Errorf("service/guild: listing roles of %s: %w", guildID, err)
	}

	positions := make(map[snowflake.ID]int, len(roles))
	for _, r := range roles {
		positions[r.ID] = r.Position
	}

	rolePos, ok := positions[roleID]
	if !ok {
		return nil, apperror.NotFound("role", roleID.String())
	}

	botPos := 0
	for _, id := range member.Roles {
		if p, ok := positions[id]; ok && p > botPos {
			botPos = p
		}
	}

	return &RoleCheck{
		CanAssign:    rolePos < botPos,
		RolePosition: rolePos,
		BotPosition:  botPos,
	}, nil
}

// RegisterGuild records the verified role for a guild after checking that
// the bot is a member and can actually grant that role.
func (s *GuildService) RegisterGuild(ctx context.Context, cfg model.GuildConfig) error {
	check, err := s.CheckRole(ctx, cfg.GuildID, cfg.VerifiedRoleID)
	if err != nil {
		return err
	}
	if !check.CanAssign {
		return apperror.Forbidden(fmt.Sprintf(
			"role %s (position %d) is not below the bot's highest role (position %d)",
			cfg.VerifiedRoleID, check.RolePosition, check.BotPosition,
		))
	}

	if err := s.guilds.UpsertGuild(ctx, &cfg); err != nil {
		return fmt.Errorf("service/guild: storing guild %s: %w", cfg.GuildID, err)
	}

	s.logger.Info("guild registered",
		slog.String("guildID", cfg.GuildID.String()),
		slog.String("roleID", cfg.VerifiedRoleID.String()),
	)
	return nil
}

// SendVerifyPrompt posts the verification embed with a link button into
// channelID. A failed post comes back as the *discord.APIError.
func (s *GuildService) SendVerifyPrompt(ctx context.Context, guildID, channelID snowflake.ID) error {
	if _, err := s.botMember(ctx, guildID); err != nil {
		return err
	}

	name := fallbackGuildName
	if g, err := s.discord.Guild(ctx, guildID); err == nil && g.Name != "" {
		name = g.Name
	} else if err != nil {
		s.logger.Debug("guild name lookup failed",
			slog.String("guildID", guildID.String()),
			slog.String("error", err.Error()),
		)
	}

	msg := discord.MessageCreate{
		Embeds: []discord.Embed{{
			Title:       fmt.Sprintf(verifyTitlePattern, name),
			Description: verifyDescription,
			Color:       verifyColor,
		}},
		Components: []discord.Component{{
			Type: discord.ComponentActionRow,
			Components: []discord.Component{{
				Type:  discord.ComponentButton,
				Style: discord.ButtonStyleLink,
				Label: verifyButtonLabel,
				URL:   s.loginURL,
			}},
		}},
	}

	if _, err := s.discord.CreateMessage(ctx, channelID, msg); err != nil {
		return fmt.Errorf("service/guild: posting verify prompt: %w", err)
	}

	s.logger.Info("verify prompt sent",
		slog.String("guildID", guildID.String()),
		slog.String("channelID", channelID.String()),
	)
	return nil
}

// botMember fetches the bot's member record in guildID. A 403 or 404 from
// Discord means the bot is not in the guild and becomes apperror.NotInGuild.
func (s *GuildService) botMember(ctx context.Context, guildID snowflake.ID) (*discord.Member, error) {
	botID, err := s.discord.BotID(ctx)
	if err != nil {
		return nil, fmt.Errorf("service/guild: resolving bot id: %w", err)
	}

	member, err := s.discord.GuildMember(ctx, guildID, botID)
	if err != nil {
		if status, ok := discord.StatusOf(err); ok && (status == http.StatusForbidden || status == http.StatusNotFound) {
			return nil, apperror.NotInGuild(guildID.String(), s.discord.BotInviteURL(guildID))
		}
		return nil, fmt.Errorf("service/guild: checking bot membership in %s: %w", guildID, err)
	}
	return member, nil
}

func isNotInGuild(err error) bool {
	return errors.Is(err, apperror.ErrNotInGuild)
}
