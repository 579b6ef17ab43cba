package oidc

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	jose "github.com/go-jose/go-jose/v3"
	"github.com/go-jose/go-jose/v3/jwt"
)

// TestKeyID is the kid the TestProvider publishes for its signing key.
const TestKeyID = "test-key-1"

// TestProvider is a local test IdP which supports the subset of provider
// capabilities this relying party consumes: the well-known discovery
// document, an authorization endpoint, a form-encoded token endpoint and a
// JWKS endpoint.  It makes writing tests against the full flow much easier.
type TestProvider struct {
	httpServer *httptest.Server

	jwks *jose.JSONWebKeySet

	mu                  sync.Mutex
	clientID            string
	clientSecret        string
	expectedAuthCode    string
	allowedRedirectURIs []string
	idTokenNonce        string
	idTokenExpiry       time.Duration
	customClaims        map[string]interface{}
	customAudience      string
	customIssuer        string
	omitIDToken         bool
	replyAccessToken    string
	replySubject        string

	ecdsaPublicKey  string
	ecdsaPrivateKey string

	t *testing.T
}

// StartTestProvider creates and starts a disposable TestProvider.  The
// returned provider is stopped via t.Cleanup.
func StartTestProvider(t *testing.T) *TestProvider {
	t.Helper()

	p := &TestProvider{
		t:                t,
		idTokenExpiry:    5 * time.Minute,
		replyAccessToken: "test-access-token",
		replySubject:     "alice@example.com",
		allowedRedirectURIs: []string{
			"http://localhost:3000/callback",
		},
	}
	p.ecdsaPublicKey, p.ecdsaPrivateKey = TestGenerateKeys(t)
	p.jwks = testJWKS(t, p.ecdsaPublicKey, TestKeyID)

	p.httpServer = httptest.NewServer(p)
	t.Cleanup(p.httpServer.Close)

	return p
}

// Addr returns the test provider's base URL, which is also its issuer.
func (p *TestProvider) Addr() string { return p.httpServer.URL }

// SigningKeys returns the test provider's pem-encoded keys used to sign JWTs.
func (p *TestProvider) SigningKeys() (pub, priv string) {
	return p.ecdsaPublicKey, p.ecdsaPrivateKey
}

// SetClientCreds configures the client credentials the token endpoint
// accepts and the audience embedded in issued id_tokens.
func (p *TestProvider) SetClientCreds(clientID, clientSecret string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.clientID = clientID
	p.clientSecret = clientSecret
}

// SetExpectedAuthCode configures the authorization code the token endpoint
// will accept.
func (p *TestProvider) SetExpectedAuthCode(code string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.expectedAuthCode = code
}

// SetAllowedRedirectURIs configures the redirect URIs the token endpoint
// accepts for exchanges.
func (p *TestProvider) SetAllowedRedirectURIs(uris []string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.allowedRedirectURIs = uris
}

// SetIDTokenNonce configures the nonce claim embedded in issued id_tokens.
func (p *TestProvider) SetIDTokenNonce(nonce string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.idTokenNonce = nonce
}

// SetIDTokenExpiry configures how far from now issued id_tokens expire.  A
// negative duration issues already-expired tokens.
func (p *TestProvider) SetIDTokenExpiry(d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.idTokenExpiry = d
}

// SetCustomClaims lets you set additional claims embedded in issued id_tokens.
func (p *TestProvider) SetCustomClaims(claims map[string]interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.customClaims = claims
}

// SetCustomAudience overrides the audience embedded in issued id_tokens.
func (p *TestProvider) SetCustomAudience(aud string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.customAudience = aud
}

// SetCustomIssuer overrides the issuer embedded in issued id_tokens.
func (p *TestProvider) SetCustomIssuer(iss string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.customIssuer = iss
}

// OmitIDTokens forces an error state where the token endpoint does not
// return an id_token.
func (p *TestProvider) OmitIDTokens() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.omitIDToken = true
}

// SignIDToken issues an id_token signed with the provider's published key,
// using the provider's currently configured claims.
func (p *TestProvider) SignIDToken(t *testing.T) string {
	t.Helper()
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.signIDTokenLocked(t)
}

func (p *TestProvider) signIDTokenLocked(t *testing.T) string {
	t.Helper()
	now := time.Now()
	issuer := p.Addr()
	if p.customIssuer != "" {
		issuer = p.customIssuer
	}
	audience := jwt.Audience{p.clientID}
	if p.customAudience != "" {
		audience = jwt.Audience{p.customAudience}
	}
	stdClaims := jwt.Claims{
		Subject:   p.replySubject,
		Issuer:    issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now.Add(-5 * time.Second)),
		Expiry:    jwt.NewNumericDate(now.Add(p.idTokenExpiry)),
		Audience:  audience,
	}
	privateClaims := map[string]interface{}{}
	for k, v := range p.customClaims {
		privateClaims[k] = v
	}
	if p.idTokenNonce != "" {
		privateClaims["nonce"] = p.idTokenNonce
	}
	return TestSignJWT(t, p.ecdsaPrivateKey, TestKeyID, stdClaims, privateClaims)
}

func (p *TestProvider) writeJSON(w http.ResponseWriter, out interface{}) {
	p.t.Helper()
	_ = json.NewEncoder(w).Encode(out)
}

func (p *TestProvider) writeTokenError(w http.ResponseWriter, statusCode int, errorCode, errorMessage string) {
	body := struct {
		Code string `json:"error"`
		Desc string `json:"error_description,omitempty"`
	}{
		Code: errorCode,
		Desc: errorMessage,
	}
	w.WriteHeader(statusCode)
	p.writeJSON(w, &body)
}

// ServeHTTP implements the test provider's http.Handler.
func (p *TestProvider) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.t.Helper()

	w.Header().Set("Content-Type", "application/json")

	switch req.URL.Path {
	case "/.well-known/openid-configuration":
		if req.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		reply := struct {
			Issuer        string `json:"issuer"`
			AuthEndpoint  string `json:"authorization_endpoint"`
			TokenEndpoint string `json:"token_endpoint"`
			JWKSURI       string `json:"jwks_uri"`
		}{
			Issuer:        p.Addr(),
			AuthEndpoint:  p.Addr() + "/authorize",
			TokenEndpoint: p.Addr() + "/oauth/token",
			JWKSURI:       p.Addr() + "/.well-known/jwks.json",
		}
		p.writeJSON(w, &reply)

	case "/authorize":
		if req.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		qv := req.URL.Query()
		if qv.Get("response_type") != "code" {
			p.writeAuthError(w, req, "unsupported_response_type", "")
			return
		}
		if qv.Get("nonce") == "" {
			p.writeAuthError(w, req, "invalid_request", "missing nonce parameter")
			return
		}
		redirectURI := qv.Get("redirect_uri")
		if redirectURI == "" {
			p.writeAuthError(w, req, "invalid_request", "missing redirect_uri parameter")
			return
		}
		// remember the nonce so the token endpoint can bind it into the
		// id_token, the way a real IdP does
		p.idTokenNonce = qv.Get("nonce")

		redirectURI += "?code=" + url.QueryEscape(p.expectedAuthCode)
		http.Redirect(w, req, redirectURI, http.StatusFound)

	case "/.well-known/jwks.json":
		if req.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		p.writeJSON(w, p.jwks)

	case "/oauth/token":
		if req.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		switch {
		case req.FormValue("grant_type") != "authorization_code":
			p.writeTokenError(w, http.StatusBadRequest, "invalid_request", "bad grant_type")
			return
		case !strListContains(p.allowedRedirectURIs, req.FormValue("redirect_uri")):
			p.writeTokenError(w, http.StatusBadRequest, "invalid_request", "redirect_uri is not allowed")
			return
		case req.FormValue("code") != p.expectedAuthCode:
			p.writeTokenError(w, http.StatusUnauthorized, "invalid_grant", "unexpected auth code")
			return
		}

		reply := struct {
			AccessToken string `json:"access_token"`
			IDToken     string `json:"id_token,omitempty"`
			TokenType   string `json:"token_type"`
		}{
			AccessToken: p.replyAccessToken,
			IDToken:     p.signIDTokenLocked(p.t),
			TokenType:   "Bearer",
		}
		if p.omitIDToken {
			reply.IDToken = ""
		}
		p.writeJSON(w, &reply)

	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (p *TestProvider) writeAuthError(w http.ResponseWriter, req *http.Request, errorCode, errorMessage string) {
	qv := req.URL.Query()
	redirectURI := qv.Get("redirect_uri") + "?error=" + url.QueryEscape(errorCode)
	if errorMessage != "" {
		redirectURI += "&error_description=" + url.QueryEscape(errorMessage)
	}
	http.Redirect(w, req, redirectURI, http.StatusFound)
}

func strListContains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
