package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/sakif/insignia/internal/model"
	"github.com/sakif/insignia/internal/service"
)

// GuildHandler serves the guild registry and the checks around it.
type GuildHandler struct {
	guilds *service.GuildService
	logger *slog.Logger
}

// NewGuildHandler creates a GuildHandler.
func NewGuildHandler(guilds *service.GuildService, logger *slog.Logger) *GuildHandler {
	return &GuildHandler{guilds: guilds, logger: logger}
}

// registerGuildRequest is the body of POST /api/guilds. Ids may be sent as
// JSON numbers or numeric strings.
type registerGuildRequest struct {
	GuildID        json.Number `json:"guild_id" validate:"required,number"`
	VerifiedRoleID json.Number `json:"verified_role_id" validate:"required,number"`
}

// verifyPromptRequest is the body of POST /api/send_verify_prompt.
type verifyPromptRequest struct {
	GuildID   json.Number `json:"guild_id" validate:"required,number"`
	ChannelID json.Number `json:"channel_id" validate:"required,number"`
}

// HandleList returns every registered guild.
//
// HTTP: GET /api/guilds
func (h *GuildHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	guilds, err := h.guilds.ListGuilds(r.Context())
	if err != nil {
		h.logger.Error("listing guilds failed", slog.String("error", err.Error()))
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, guilds)
}

// HandleRegister records a guild and its verified role after checking the
// bot is present and sits above that role.
//
// HTTP: POST /api/guilds
// REQUEST BODY: {"guild_id": "123", "verified_role_id": "456"}
func (h *GuildHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerGuildRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, err)
		return
	}
	guildID, err := parseSnowflake("guild_id", req.GuildID.String())
	if err != nil {
		writeError(w, err)
		return
	}
	roleID, err := parseSnowflake("verified_role_id", req.VerifiedRoleID.String())
	if err != nil {
		writeError(w, err)
		return
	}

	if err := h.guilds.RegisterGuild(r.Context(), model.GuildConfig{GuildID: guildID, VerifiedRoleID: roleID}); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleCheckGuild reports whether the bot is in a guild.
//
// HTTP: GET /api/check_guild/{guild_id}
// RESPONSE: {"in_guild": false, "invite_link": "https://discord.com/oauth2/authorize?..."}
func (h *GuildHandler) HandleCheckGuild(w http.ResponseWriter, r *http.Request) {
	guildID, err := pathSnowflake(r, "guild_id")
	if err != nil {
		writeError(w, err)
		return
	}

	membership, err := h.guilds.CheckMembership(r.Context(), guildID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, membership)
}

// HandleCheckRole reports whether the bot can grant a role.
//
// HTTP: GET /api/check_role/{guild_id}/{role_id}
// RESPONSE: {"can_assign": true, "role_pos": 2, "bot_pos": 5}
func (h *GuildHandler) HandleCheckRole(w http.ResponseWriter, r *http.Request) {
	guildID, err := pathSnowflake(r, "guild_id")
	if err != nil {
		writeError(w, err)
		return
	}
	roleID, err := pathSnowflake(r, "role_id")
	if err != nil {
		writeError(w, err)
		return
	}

	check, err := h.guilds.CheckRole(r.Context(), guildID, roleID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, check)
}

// HandleSendVerifyPrompt posts the verify embed into a channel.
//
// HTTP: POST /api/send_verify_prompt
// REQUEST BODY: {"guild_id": "123", "channel_id": "789"}
func (h *GuildHandler) HandleSendVerifyPrompt(w http.ResponseWriter, r *http.Request) {
	var req verifyPromptRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, err)
		return
	}
	guildID, err := parseSnowflake("guild_id", req.GuildID.String())
	if err != nil {
		writeError(w, err)
		return
	}
	channelID, err := parseSnowflake("channel_id", req.ChannelID.String())
	if err != nil {
		writeError(w, err)
		return
	}

	if err := h.guilds.SendVerifyPrompt(r.Context(), guildID, channelID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
