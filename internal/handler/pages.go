// Package handler contains the HTTP handlers of the verification backend.
//
// HANDLER RESPONSIBILITIES:
//  1. Parse the incoming request (path params, JSON body, cookies)
//  2. Call the service layer
//  3. Write the response (status code, headers, body)
//
// Handlers hold no business rules; they are the glue between HTTP and the
// services.
package handler

import (
	"embed"
	"html/template"
	"log/slog"
	"net/http"
)

//go:embed templates/*.html
var templateFS embed.FS

// Pages renders the two browser-facing HTML pages. Templates are parsed
// once at startup.
type Pages struct {
	templates *template.Template
	logger    *slog.Logger
}

// NewPages parses the embedded templates.
func NewPages(logger *slog.Logger) (*Pages, error) {
	tmpl, err := template.ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, err
	}
	return &Pages{templates: tmpl, logger: logger}, nil
}

// render executes one template. html/template escapes every value, which
// matters here because usernames are user-controlled.
func (p *Pages) render(w http.ResponseWriter, status int, name string, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := p.templates.ExecuteTemplate(w, name, data); err != nil {
		p.logger.Error("template render failed",
			slog.String("template", name),
			slog.String("error", err.Error()),
		)
	}
}

// HandleIndex serves the landing page with a single login link.
//
// HTTP: GET /
func (p *Pages) HandleIndex(w http.ResponseWriter, r *http.Request) {
	p.render(w, http.StatusOK, "index.html", map[string]string{
		"Title":    "Insignia",
		"LoginURL": "/login",
	})
}
