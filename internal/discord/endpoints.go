package discord

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/bwmarrin/snowflake"
)

// AdministratorPermission is the permission bitfield requested when inviting
// the bot.
const AdministratorPermission = "8"

// CurrentBotUser returns the bot's own user. The id is cached after the
// first successful call.
func (c *Client) CurrentBotUser(ctx context.Context) (*User, error) {
	var u User
	if _, err := c.do(ctx, http.MethodGet, "GET /users/@me (bot)", c.endpoint("/users/@me"), c.botAuth(), nil, &u); err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.botID = u.ID
	c.mu.Unlock()
	return &u, nil
}

// BotID returns the bot's user id, fetching it once if needed.
func (c *Client) BotID(ctx context.Context) (snowflake.ID, error) {
	c.mu.Lock()
	id := c.botID
	c.mu.Unlock()
	if id != 0 {
		return id, nil
	}
	u, err := c.CurrentBotUser(ctx)
	if err != nil {
		return 0, err
	}
	return u.ID, nil
}

// CurrentUser returns the user who owns accessToken.
func (c *Client) CurrentUser(ctx context.Context, accessToken string) (*User, error) {
	var u User
	if _, err := c.do(ctx, http.MethodGet, "GET /users/@me", c.endpoint("/users/@me"), bearerAuth(accessToken), nil, &u); err != nil {
		return nil, err
	}
	if u.ID == 0 {
		return nil, fmt.Errorf("discord: /users/@me returned an invalid user (id = 0)")
	}
	return &u, nil
}

// Guild returns a guild the bot can see.
func (c *Client) Guild(ctx context.Context, guildID snowflake.ID) (*Guild, error) {
	var g Guild
	path := fmt.Sprintf("/guilds/%s", guildID)
	if _, err := c.do(ctx, http.MethodGet, "GET /guilds/{id}", c.endpoint(path), c.botAuth(), nil, &g); err != nil {
		return nil, err
	}
	return &g, nil
}

// GuildRoles lists every role in a guild.
func (c *Client) GuildRoles(ctx context.Context, guildID snowflake.ID) ([]Role, error) {
	var roles []Role
	path := fmt.Sprintf("/guilds/%s/roles", guildID)
	if _, err := c.do(ctx, http.MethodGet, "GET /guilds/{id}/roles", c.endpoint(path), c.botAuth(), nil, &roles); err != nil {
		return nil, err
	}
	return roles, nil
}

// GuildMember fetches one member of a guild.
func (c *Client) GuildMember(ctx context.Context, guildID, userID snowflake.ID) (*Member, error) {
	var m Member
	path := fmt.Sprintf("/guilds/%s/members/%s", guildID, userID)
	if _, err := c.do(ctx, http.MethodGet, "GET /guilds/{id}/members/{user}", c.endpoint(path), c.botAuth(), nil, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// AddGuildMember force-joins userID into guildID using the user's OAuth
// access token (guilds.join scope). It returns Discord's status: 201 when the
// user was added, 204 when they were already a member.
func (c *Client) AddGuildMember(ctx context.Context, guildID, userID snowflake.ID, accessToken string) (int, error) {
	path := fmt.Sprintf("/guilds/%s/members/%s", guildID, userID)
	body := map[string]string{"access_token": accessToken}
	return c.do(ctx, http.MethodPut, "PUT /guilds/{id}/members/{user}", c.endpoint(path), c.botAuth(), body, nil)
}

// CreateMessage posts a message into a channel.
func (c *Client) CreateMessage(ctx context.Context, channelID snowflake.ID, msg MessageCreate) (*Message, error) {
	var m Message
	path := fmt.Sprintf("/channels/%s/messages", channelID)
	if _, err := c.do(ctx, http.MethodPost, "POST /channels/{id}/messages", c.endpoint(path), c.botAuth(), msg, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// BotInviteURL builds the link an operator follows to add the bot to
// guildID with administrator permission.
func (c *Client) BotInviteURL(guildID snowflake.ID) string {
	q := url.Values{}
	q.Set("client_id", c.cfg.ClientID)
	q.Set("scope", "bot")
	q.Set("permissions", AdministratorPermission)
	q.Set("guild_id", guildID.String())
	q.Set("disable_guild_select", "true")
	return "https://discord.com/oauth2/authorize?" + q.Encode()
}
