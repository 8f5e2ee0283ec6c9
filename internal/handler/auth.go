package handler

import (
	"log/slog"
	"net"
	"net/http"

	"github.com/rs/xid"

	"github.com/sakif/insignia/internal/service"
)

const stateCookie = "oauth_state"

// AuthURLer builds the provider's authorization URL.
// *auth.DiscordProvider implements it.
type AuthURLer interface {
	AuthURL(state string) string
}

// AuthHandler runs the browser side of the Discord OAuth flow.
//
//   - HandleLogin    → redirect to Discord's authorization page
//   - HandleCallback → receive the code, store the identity, confirm
type AuthHandler struct {
	oauth  AuthURLer
	auth   *service.AuthService
	pages  *Pages
	logger *slog.Logger
}

// NewAuthHandler creates an AuthHandler.
func NewAuthHandler(oauth AuthURLer, auth *service.AuthService, pages *Pages, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{oauth: oauth, auth: auth, pages: pages, logger: logger}
}

// HandleLogin redirects the user to Discord's authorization page.
//
// HTTP: GET /login
//
// CSRF PROTECTION VIA STATE:
// A random state value goes into a short-lived cookie and into the
// authorization URL. HandleCallback only accepts a callback whose state
// matches the cookie, which proves this browser started the flow here.
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	state := xid.New().String()

	http.SetCookie(w, &http.Cookie{
		Name:     stateCookie,
		Value:    state,
		Path:     "/",
		MaxAge:   600, // 10 minutes
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, h.oauth.AuthURL(state), http.StatusTemporaryRedirect)
}

// HandleCallback completes the OAuth login flow.
//
// HTTP: GET /callback?code=xxx&state=yyy
//
// FLOW:
//  1. Validate the state parameter (CSRF check)
//  2. Reject callbacks where Discord reports an error (user denied)
//  3. Exchange the code and store the identity
//  4. Render the confirmation page
func (h *AuthHandler) HandleCallback(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	cookie, err := r.Cookie(stateCookie)
	if err != nil || cookie.Value == "" || query.Get("state") != cookie.Value {
		h.logger.Warn("auth callback: state mismatch")
		http.Error(w, "invalid OAuth state", http.StatusBadRequest)
		return
	}

	// state is single-use
	http.SetCookie(w, &http.Cookie{
		Name:   stateCookie,
		Value:  "",
		Path:   "/",
		MaxAge: -1,
	})

	if errParam := query.Get("error"); errParam != "" {
		h.logger.Info("auth callback: authorization denied", slog.String("error", errParam))
		http.Error(w, "authorization denied: "+errParam, http.StatusBadRequest)
		return
	}

	code := query.Get("code")
	if code == "" {
		http.Error(w, "No code provided", http.StatusBadRequest)
		return
	}

	identity, err := h.auth.CompleteLogin(r.Context(), code, clientIP(r))
	if err != nil {
		h.logger.Error("auth callback: login failed", slog.String("error", err.Error()))
		writeError(w, err)
		return
	}

	h.pages.render(w, http.StatusOK, "callback.html", map[string]string{
		"Title":    "Authenticated",
		"Username": identity.Username,
	})
}

// clientIP is the caller's address. chimiddleware.RealIP has already
// replaced RemoteAddr with the forwarded address when there is one.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
