package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/sakif/insignia/internal/discord"
)

// Scopes requested from Discord. guilds.join is what lets the bot add the
// user to a guild later with their access token.
var Scopes = []string{"identify", "email", "guilds.join"}

// Credentials is an OAuth token pair with its absolute expiry.
type Credentials struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// Login is the result of a completed authorization code exchange.
type Login struct {
	User discord.User
	Credentials
}

// DiscordProvider wraps golang.org/x/oauth2 for the Discord Authorization
// Code flow.
//
// OAUTH 2.0 AUTHORIZATION CODE FLOW:
//  1. GET /login redirects the browser to Discord with our client id and scopes.
//  2. The user approves on Discord.
//  3. Discord redirects to REDIRECT_URI with a short-lived "code".
//  4. We exchange the code for an access/refresh pair (server-to-server).
//  5. We call /users/@me with the new access token to learn who it belongs to.
//
// The refresh token is kept so the bulk drag can renew expired access tokens.
type DiscordProvider struct {
	config  *oauth2.Config
	discord *discord.Client
}

// NewDiscordProvider builds a provider whose endpoints hang off baseURL
// (e.g. "https://discord.com/api"). The token exchange reuses the discord
// client's *http.Client and write timeout.
func NewDiscordProvider(clientID, clientSecret, redirectURL, baseURL string, client *discord.Client) *DiscordProvider {
	baseURL = strings.TrimRight(baseURL, "/")
	return &DiscordProvider{
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURL,
			Scopes:       Scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:  baseURL + "/oauth2/authorize",
				TokenURL: baseURL + "/oauth2/token",
				// Discord expects client credentials in the form body.
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		discord: client,
	}
}

// AuthURL returns the Discord authorization URL carrying state.
func (p *DiscordProvider) AuthURL(state string) string {
	return p.config.AuthCodeURL(state)
}

// Exchange trades an authorization code for a token pair and resolves the
// Discord user it belongs to. Any failure aborts the whole exchange.
func (p *DiscordProvider) Exchange(ctx context.Context, code string) (*Login, error) {
	tctx, cancel := p.tokenContext(ctx)
	defer cancel()

	token, err := p.config.Exchange(tctx, code)
	if err != nil {
		return nil, fmt.Errorf("auth: exchanging OAuth code: %w", tokenError(err))
	}

	user, err := p.discord.CurrentUser(ctx, token.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("auth: resolving user: %w", err)
	}

	return &Login{User: *user, Credentials: credentialsFrom(token)}, nil
}

// Refresh trades a refresh token for a new pair. Discord may rotate the
// refresh token; when it doesn't, the old one is kept.
func (p *DiscordProvider) Refresh(ctx context.Context, refreshToken string) (*Credentials, error) {
	if refreshToken == "" {
		return nil, fmt.Errorf("auth: no refresh token")
	}
	tctx, cancel := p.tokenContext(ctx)
	defer cancel()

	token, err := p.config.TokenSource(tctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		return nil, fmt.Errorf("auth: refreshing token: %w", tokenError(err))
	}
	creds := credentialsFrom(token)
	return &creds, nil
}

// tokenContext bounds a token endpoint call and routes it through the
// discord client's transport.
func (p *DiscordProvider) tokenContext(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, p.discord.HTTPClient())
	return context.WithTimeout(ctx, p.discord.WriteTimeout())
}

func credentialsFrom(token *oauth2.Token) Credentials {
	expiresAt := token.Expiry
	if expiresAt.IsZero() {
		// no expires_in: treat as already expired so the next drag refreshes
		expiresAt = time.Now()
	}
	return Credentials{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		ExpiresAt:    expiresAt,
	}
}

// tokenError turns an oauth2 RetrieveError into a *discord.APIError so the
// handler forwards Discord's status and body like any other upstream failure.
func tokenError(err error) error {
	var re *oauth2.RetrieveError
	if !errors.As(err, &re) || re.Response == nil {
		return err
	}
	return &discord.APIError{
		Status: re.Response.StatusCode,
		Body:   re.Body,
		Route:  http.MethodPost + " /oauth2/token",
	}
}
