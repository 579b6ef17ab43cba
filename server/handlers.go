package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/oidckit/rely/oidc"
	"github.com/oidckit/rely/session"
	"github.com/oidckit/rely/todos"
)

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	s.render(w, "index.html", nil)
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	sess, _ := s.sessions.Read(r)
	var data struct {
		IDToken        string
		DecodedIDToken map[string]interface{}
	}
	if sess != nil {
		data.IDToken = string(sess.IDToken)
		if sess.DecodedIDToken != nil {
			data.DecodedIDToken = sess.DecodedIDToken.All
		}
	}
	s.render(w, "profile.html", data)
}

// handleLogin starts an authorization code flow: it issues a fresh one-time
// nonce, binds it to the caller through the sealed nonce cookie, and
// redirects to the provider's authorization endpoint.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	nonce, err := oidc.NewNonce()
	if err != nil {
		s.logger.Error("unable to generate login nonce", "error", err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	if err := s.nonces.Set(w, nonce); err != nil {
		s.logger.Error("unable to set nonce cookie", "error", err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	authURL, err := s.provider.AuthURL(nonce)
	if err != nil {
		s.logger.Error("unable to build authorization URL", "error", err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	http.Redirect(w, r, authURL, http.StatusFound)
}

// handleCodeCallback completes a code-flow login: consume the nonce,
// exchange the code, validate the id_token's claims and establish the
// session.  The id_token came straight from the token endpoint over TLS, so
// claims-only validation applies.  Any failure aborts the attempt with an
// empty 401: which check failed is for the log, not the response.
func (s *Server) handleCodeCallback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	// the nonce is single-use: it is gone after this line no matter how the
	// rest of the attempt goes
	nonce, err := s.nonces.Consume(w, r)
	if err != nil {
		s.logger.Warn("callback without a usable nonce", "error", err)
		s.unauthorized(w)
		return
	}
	code := r.URL.Query().Get("code")
	if code == "" {
		s.logger.Warn("callback without an authorization code")
		s.unauthorized(w)
		return
	}

	tokens, err := s.provider.Exchange(ctx, code)
	if err != nil {
		s.logger.Warn("authorization code exchange failed", "error", err)
		s.unauthorized(w)
		return
	}
	claims, err := s.provider.ValidateIDToken(ctx, tokens.IDToken, nonce)
	if err != nil {
		s.logger.Warn("id_token validation failed", "error", err)
		s.unauthorized(w)
		return
	}

	if err := s.sessions.Establish(w, r, session.Session{
		AccessToken:    tokens.AccessToken,
		IDToken:        tokens.IDToken,
		DecodedIDToken: claims,
	}); err != nil {
		s.logger.Error("unable to establish session", "error", err)
		s.unauthorized(w)
		return
	}
	http.Redirect(w, r, "/profile", http.StatusFound)
}

// handleTokenCallback completes a login where the id_token is posted back by
// the browser (hybrid/form_post flows).  The token arrived over a
// client-controlled channel, so its signature must be verified against the
// provider's published keys before any claim is trusted.
func (s *Server) handleTokenCallback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	nonce, err := s.nonces.Consume(w, r)
	if err != nil {
		s.logger.Warn("callback without a usable nonce", "error", err)
		s.unauthorized(w)
		return
	}
	idToken := oidc.IdToken(r.FormValue("id_token"))
	if idToken == "" {
		s.logger.Warn("callback without an id_token")
		s.unauthorized(w)
		return
	}

	claims, err := s.provider.ValidateIDToken(ctx, idToken, nonce, oidc.WithSignatureVerification())
	if err != nil {
		s.logger.Warn("id_token validation failed", "error", err)
		s.unauthorized(w)
		return
	}

	if err := s.sessions.Establish(w, r, session.Session{
		IDToken:        idToken,
		DecodedIDToken: claims,
	}); err != nil {
		s.logger.Error("unable to establish session", "error", err)
		s.unauthorized(w)
		return
	}
	http.Redirect(w, r, "/profile", http.StatusFound)
}

func (s *Server) handleToDos(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.sessions.Read(r)
	if !ok {
		s.unauthorized(w)
		return
	}
	body, err := s.todos.List(r.Context(), sess.AccessToken)
	if err != nil {
		s.upstreamFailure(w, err)
		return
	}
	s.renderToDos(w, body)
}

// handleRemoveToDo deletes one to-do and re-fetches the list, so the
// rendered view reflects the deletion.
func (s *Server) handleRemoveToDo(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.sessions.Read(r)
	if !ok {
		s.unauthorized(w)
		return
	}
	id := chi.URLParam(r, "id")
	if _, err := s.todos.Remove(r.Context(), id, sess.AccessToken); err != nil {
		s.upstreamFailure(w, err)
		return
	}
	body, err := s.todos.List(r.Context(), sess.AccessToken)
	if err != nil {
		s.upstreamFailure(w, err)
		return
	}
	s.renderToDos(w, body)
}

func (s *Server) renderToDos(w http.ResponseWriter, body json.RawMessage) {
	var toDos []map[string]interface{}
	if err := json.Unmarshal(body, &toDos); err != nil {
		s.logger.Error("unable to decode to-dos response", "error", err)
		http.Error(w, http.StatusText(http.StatusBadGateway), http.StatusBadGateway)
		return
	}
	s.render(w, "todos.html", struct {
		ToDos []map[string]interface{}
	}{ToDos: toDos})
}

// unauthorized writes the empty-bodied unauthorized response every failed
// login attempt gets.  No claim-specific detail leaks to the client.
func (s *Server) unauthorized(w http.ResponseWriter) {
	w.WriteHeader(http.StatusUnauthorized)
}

// upstreamFailure relays a failed resource-API response.  An UpstreamError
// is propagated with the original status and body so the user sees the
// upstream diagnostic; anything else (timeout, connection refused) becomes a
// plain bad gateway.
func (s *Server) upstreamFailure(w http.ResponseWriter, err error) {
	var upstream *todos.UpstreamError
	if errors.As(err, &upstream) {
		w.WriteHeader(upstream.StatusCode)
		_, _ = w.Write(upstream.Body)
		return
	}
	s.logger.Error("resource API call failed", "error", err)
	http.Error(w, http.StatusText(http.StatusBadGateway), http.StatusBadGateway)
}
