// Package discordtest provides an in-memory fake of the Discord REST and
// OAuth endpoints for tests.
package discordtest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/bwmarrin/snowflake"

	"github.com/sakif/insignia/internal/discord"
)

// Version is the API version the fake serves under.
const Version = "v10"

// Grant is what the token endpoint hands out for a code or refresh token.
type Grant struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    int
}

// Guild is the fake's view of one guild.
type Guild struct {
	Name    string
	Roles   []discord.Role
	Members map[snowflake.ID][]snowflake.ID // user id → role ids
}

// Server is a fake Discord. Mutate its fields before issuing requests, or
// under Lock/Unlock once requests are in flight.
type Server struct {
	*httptest.Server

	mu sync.Mutex

	BotID  snowflake.ID
	Guilds map[snowflake.ID]*Guild

	// Users maps a bearer access token to its owner.
	Users map[string]discord.User
	// Codes and RefreshTokens feed the /oauth2/token endpoint.
	Codes         map[string]Grant
	RefreshTokens map[string]Grant

	// Fail forces a status on a route key such as "GET /guilds/{id}".
	Fail map[string]int

	Messages []discord.MessageCreate
	Calls    map[string]int
}

// NewServer starts a fake and registers its shutdown with t.
func NewServer(t *testing.T) *Server {
	t.Helper()
	s := &Server{
		BotID:         9000,
		Guilds:        map[snowflake.ID]*Guild{},
		Users:         map[string]discord.User{},
		Codes:         map[string]Grant{},
		RefreshTokens: map[string]Grant{},
		Fail:          map[string]int{},
		Calls:         map[string]int{},
	}

	mux := http.NewServeMux()
	v := "/" + Version
	mux.HandleFunc("POST /oauth2/token", s.token)
	mux.HandleFunc("GET "+v+"/users/@me", s.me)
	mux.HandleFunc("GET "+v+"/guilds/{gid}", s.guild)
	mux.HandleFunc("GET "+v+"/guilds/{gid}/roles", s.roles)
	mux.HandleFunc("GET "+v+"/guilds/{gid}/members/{uid}", s.member)
	mux.HandleFunc("PUT "+v+"/guilds/{gid}/members/{uid}", s.addMember)
	mux.HandleFunc("POST "+v+"/channels/{cid}/messages", s.message)

	s.Server = httptest.NewServer(mux)
	t.Cleanup(s.Close)
	return s
}

func (s *Server) Lock()   { s.mu.Lock() }
func (s *Server) Unlock() { s.mu.Unlock() }

// Config returns a discord.Config pointed at the fake.
func (s *Server) Config() discord.Config {
	return discord.Config{
		BaseURL:  s.URL,
		Version:  Version,
		BotToken: "bot-token",
		ClientID: "client-id",
	}
}

// AddGuild registers a guild. When botRoles is non-nil the bot is a member
// holding those roles.
func (s *Server) AddGuild(id snowflake.ID, name string, roles []discord.Role, botRoles []snowflake.ID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g := &Guild{Name: name, Roles: roles, Members: map[snowflake.ID][]snowflake.ID{}}
	if botRoles != nil {
		g.Members[s.BotID] = botRoles
	}
	s.Guilds[id] = g
}

// IsMember reports whether userID has joined guildID.
func (s *Server) IsMember(guildID, userID snowflake.ID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.Guilds[guildID]
	if !ok {
		return false
	}
	_, ok = g.Members[userID]
	return ok
}

// CallCount returns how many times a route key was hit.
func (s *Server) CallCount(route string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Calls[route]
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeDiscordError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"message": message, "code": 0})
}

// enter records the call and applies any forced failure. It returns false
// when the handler should stop.
func (s *Server) enter(w http.ResponseWriter, route string) bool {
	s.Calls[route]++
	if status, ok := s.Fail[route]; ok {
		writeDiscordError(w, status, "forced failure")
		return false
	}
	return true
}

func (s *Server) botAuthorized(r *http.Request) bool {
	return strings.HasPrefix(r.Header.Get("Authorization"), "Bot ")
}

func pathID(r *http.Request, name string) (snowflake.ID, error) {
	return snowflake.ParseString(r.PathValue(name))
}

func (s *Server) token(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.enter(w, "POST /oauth2/token") {
		return
	}
	if err := r.ParseForm(); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_request"})
		return
	}

	var (
		grant Grant
		ok    bool
	)
	switch r.PostForm.Get("grant_type") {
	case "authorization_code":
		grant, ok = s.Codes[r.PostForm.Get("code")]
		delete(s.Codes, r.PostForm.Get("code"))
	case "refresh_token":
		grant, ok = s.RefreshTokens[r.PostForm.Get("refresh_token")]
		delete(s.RefreshTokens, r.PostForm.Get("refresh_token"))
	}
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_grant"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"access_token":  grant.AccessToken,
		"refresh_token": grant.RefreshToken,
		"expires_in":    grant.ExpiresIn,
		"token_type":    "Bearer",
		"scope":         "identify email guilds.join",
	})
}

func (s *Server) me(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.enter(w, "GET /users/@me") {
		return
	}
	if s.botAuthorized(r) {
		writeJSON(w, http.StatusOK, discord.User{ID: s.BotID, Username: "insignia", Bot: true})
		return
	}
	token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	u, ok := s.Users[token]
	if !ok {
		writeDiscordError(w, http.StatusUnauthorized, "401: Unauthorized")
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (s *Server) lookupGuild(w http.ResponseWriter, r *http.Request) (*Guild, bool) {
	id, err := pathID(r, "gid")
	if err != nil {
		writeDiscordError(w, http.StatusBadRequest, "invalid guild id")
		return nil, false
	}
	g, ok := s.Guilds[id]
	if !ok {
		writeDiscordError(w, http.StatusNotFound, "Unknown Guild")
		return nil, false
	}
	return g, true
}

func (s *Server) guild(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.enter(w, "GET /guilds/{id}") {
		return
	}
	g, ok := s.lookupGuild(w, r)
	if !ok {
		return
	}
	id, _ := pathID(r, "gid")
	writeJSON(w, http.StatusOK, discord.Guild{ID: id, Name: g.Name})
}

func (s *Server) roles(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.enter(w, "GET /guilds/{id}/roles") {
		return
	}
	g, ok := s.lookupGuild(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, g.Roles)
}

func (s *Server) member(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.enter(w, "GET /guilds/{id}/members/{user}") {
		return
	}
	g, ok := s.lookupGuild(w, r)
	if !ok {
		return
	}
	uid, err := pathID(r, "uid")
	if err != nil {
		writeDiscordError(w, http.StatusBadRequest, "invalid user id")
		return
	}
	roles, ok := g.Members[uid]
	if !ok {
		writeDiscordError(w, http.StatusNotFound, "Unknown Member")
		return
	}
	writeJSON(w, http.StatusOK, discord.Member{User: &discord.User{ID: uid}, Roles: roles})
}

func (s *Server) addMember(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.enter(w, "PUT /guilds/{id}/members/{user}") {
		return
	}
	g, ok := s.lookupGuild(w, r)
	if !ok {
		return
	}
	uid, err := pathID(r, "uid")
	if err != nil {
		writeDiscordError(w, http.StatusBadRequest, "invalid user id")
		return
	}
	var body struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeDiscordError(w, http.StatusBadRequest, "invalid body")
		return
	}
	u, ok := s.Users[body.AccessToken]
	if !ok || u.ID != uid {
		writeDiscordError(w, http.StatusForbidden, "Invalid OAuth2 access token")
		return
	}
	if _, member := g.Members[uid]; member {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	g.Members[uid] = []snowflake.ID{}
	writeJSON(w, http.StatusCreated, discord.Member{User: &u, Roles: []snowflake.ID{}})
}

func (s *Server) message(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.enter(w, "POST /channels/{id}/messages") {
		return
	}
	cid, err := pathID(r, "cid")
	if err != nil {
		writeDiscordError(w, http.StatusNotFound, "Unknown Channel")
		return
	}
	var msg discord.MessageCreate
	if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
		writeDiscordError(w, http.StatusBadRequest, fmt.Sprintf("invalid body: %v", err))
		return
	}
	s.Messages = append(s.Messages, msg)
	writeJSON(w, http.StatusOK, discord.Message{ID: snowflake.ID(len(s.Messages)), ChannelID: cid})
}
