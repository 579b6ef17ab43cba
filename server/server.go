// Package server wires the relying party's HTTP surface: starting the login
// flow, completing the provider callback, and relaying the user's access
// token to the downstream to-dos API.
package server

import (
	"embed"
	"fmt"
	"html/template"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/hashicorp/go-hclog"

	"github.com/oidckit/rely/oidc"
	"github.com/oidckit/rely/securecookie"
	"github.com/oidckit/rely/session"
	"github.com/oidckit/rely/todos"
)

const (
	// NonceCookie carries the one-time login nonce between /login and the
	// callback that completes the attempt.
	NonceCookie = "auth0rization-nonce"

	// SessionCookie carries the opaque session id.
	SessionCookie = "rely-session"

	// NonceMaxAge bounds how long a login attempt may stay in flight.
	NonceMaxAge = 15 * time.Minute
)

//go:embed templates/*.html
var templateFS embed.FS

// Server holds the relying party's request-handling state.  Everything it
// shares across concurrent requests (provider metadata, key set, session
// store) is concurrency-safe; handlers hold no per-request state of their
// own.
type Server struct {
	cfg      *Config
	provider *oidc.Provider
	sessions *session.Store
	nonces   *securecookie.Codec
	todos    *todos.Client
	logger   hclog.Logger
	tmpl     *template.Template
}

// New creates a Server from its collaborators.  The provider must already be
// initialized: discovery is a startup concern, not a request concern.
func New(cfg *Config, provider *oidc.Provider, sessions *session.Store, nonces *securecookie.Codec, todosClient *todos.Client, logger hclog.Logger) (*Server, error) {
	const op = "server.New"
	if cfg == nil || provider == nil || sessions == nil || nonces == nil || todosClient == nil {
		return nil, fmt.Errorf("%s: missing a required collaborator", op)
	}
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	tmpl, err := template.ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("%s: unable to parse templates: %w", op, err)
	}
	return &Server{
		cfg:      cfg,
		provider: provider,
		sessions: sessions,
		nonces:   nonces,
		todos:    todosClient,
		logger:   logger,
		tmpl:     tmpl,
	}, nil
}

// Router returns the server's http handler.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/", s.handleIndex)
	r.Get("/profile", s.handleProfile)
	r.Get("/login", s.handleLogin)
	r.Get("/callback", s.handleCodeCallback)
	r.Post("/callback", s.handleTokenCallback)
	r.Get("/to-dos", s.handleToDos)
	r.Get("/remove-to-do/{id}", s.handleRemoveToDo)

	return r
}

// render executes the named template.  Render failures after the handler
// already committed a status are logged, not surfaced.
func (s *Server) render(w http.ResponseWriter, name string, data interface{}) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.tmpl.ExecuteTemplate(w, name, data); err != nil {
		s.logger.Error("unable to render view", "view", name, "error", err)
	}
}
