package discord

import "github.com/bwmarrin/snowflake"

// User is the subset of a Discord user object we read.
type User struct {
	ID            snowflake.ID `json:"id"`
	Username      string       `json:"username"`
	Discriminator string       `json:"discriminator"`
	Email         string       `json:"email"`
	Bot           bool         `json:"bot"`
}

// DisplayName renders the user the way operators are used to seeing it:
// "name#1234" for legacy accounts, plain "name" once Discord has migrated
// the account to unique usernames (discriminator "0").
func (u User) DisplayName() string {
	if u.Discriminator == "" || u.Discriminator == "0" {
		return u.Username
	}
	return u.Username + "#" + u.Discriminator
}

// Role is a guild role. Position orders the role hierarchy; higher wins.
type Role struct {
	ID       snowflake.ID `json:"id"`
	Name     string       `json:"name"`
	Position int          `json:"position"`
}

// Member is a guild member. Roles lists role ids only.
type Member struct {
	User  *User          `json:"user,omitempty"`
	Roles []snowflake.ID `json:"roles"`
}

// Guild is the subset of a guild object we read.
type Guild struct {
	ID   snowflake.ID `json:"id"`
	Name string       `json:"name"`
}

// Embed is a rich message embed.
type Embed struct {
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	Color       int    `json:"color,omitempty"`
}

// Component types and button styles used by link buttons.
const (
	ComponentActionRow = 1
	ComponentButton    = 2
	ButtonStyleLink    = 5
)

// Component is a message component (action row or button).
type Component struct {
	Type       int         `json:"type"`
	Style      int         `json:"style,omitempty"`
	Label      string      `json:"label,omitempty"`
	URL        string      `json:"url,omitempty"`
	Components []Component `json:"components,omitempty"`
}

// MessageCreate is the body of POST /channels/{id}/messages.
type MessageCreate struct {
	Content    string      `json:"content,omitempty"`
	Embeds     []Embed     `json:"embeds,omitempty"`
	Components []Component `json:"components,omitempty"`
}

// Message is the created message as returned by Discord.
type Message struct {
	ID        snowflake.ID `json:"id"`
	ChannelID snowflake.ID `json:"channel_id"`
}
