package server

import (
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/joho/godotenv"

	"github.com/oidckit/rely/securecookie"
)

// Environment variables consumed by the server.
const (
	EnvClientID      = "CLIENT_ID"
	EnvClientSecret  = "CLIENT_SECRET"
	EnvOIDCProvider  = "OIDC_PROVIDER"
	EnvAPIIdentifier = "API_IDENTIFIER"
	EnvRedirectURI   = "REDIRECT_URI"
	EnvAPIURL        = "API_URL"
	EnvListenAddr    = "LISTEN_ADDR"
	EnvCookieKey     = "COOKIE_KEY"
)

// DefaultScopes enumerates every permission the downstream to-dos API
// requires.  Scope cannot be escalated after the authorization, so the full
// set is requested up front.
var DefaultScopes = []string{"profile", "email", "read:to-dos", "delete:to-dos"}

// Config is the process configuration, loaded from the environment.
type Config struct {
	// ClientID and ClientSecret are the relying party's credentials with
	// the identity provider.
	ClientID     string
	ClientSecret string

	// OIDCProvider is the identity provider's host (or full issuer URL).
	OIDCProvider string

	// APIIdentifier is the audience identifying the to-dos API.
	APIIdentifier string

	// RedirectURI is the callback URL registered with the provider.
	RedirectURI string

	// APIURL is the base URL of the to-dos resource API.
	APIURL string

	// ListenAddr is the address the HTTP server binds.
	ListenAddr string

	// CookieKey seals the nonce and session cookies.  When the environment
	// doesn't provide one, a fresh key is generated at boot (cookies then
	// don't survive a restart, which matches the original single-process
	// deployment).
	CookieKey []byte

	// Scopes requested of the provider, beyond the always-requested
	// "openid".
	Scopes []string
}

// LoadConfig reads the process configuration from the environment, loading a
// .env file first when one is present.  Every missing required variable is
// reported, not just the first.
func LoadConfig() (*Config, error) {
	const op = "server.LoadConfig"
	// a missing .env file is fine; the environment may be set directly
	_ = godotenv.Load()

	c := &Config{
		ClientID:      os.Getenv(EnvClientID),
		ClientSecret:  os.Getenv(EnvClientSecret),
		OIDCProvider:  os.Getenv(EnvOIDCProvider),
		APIIdentifier: os.Getenv(EnvAPIIdentifier),
		RedirectURI:   os.Getenv(EnvRedirectURI),
		APIURL:        os.Getenv(EnvAPIURL),
		ListenAddr:    os.Getenv(EnvListenAddr),
		Scopes:        DefaultScopes,
	}
	if c.APIURL == "" {
		c.APIURL = "http://localhost:3001"
	}
	if c.ListenAddr == "" {
		c.ListenAddr = ":3000"
	}

	var result *multierror.Error
	for _, required := range []struct {
		name  string
		value string
	}{
		{EnvClientID, c.ClientID},
		{EnvClientSecret, c.ClientSecret},
		{EnvOIDCProvider, c.OIDCProvider},
		{EnvAPIIdentifier, c.APIIdentifier},
		{EnvRedirectURI, c.RedirectURI},
	} {
		if required.value == "" {
			result = multierror.Append(result, fmt.Errorf("%s is not set", required.name))
		}
	}

	switch keyHex := os.Getenv(EnvCookieKey); {
	case keyHex != "":
		key, err := hex.DecodeString(keyHex)
		if err != nil || len(key) != securecookie.KeySize {
			result = multierror.Append(result, fmt.Errorf("%s must be %d hex-encoded bytes", EnvCookieKey, securecookie.KeySize))
		} else {
			c.CookieKey = key
		}
	default:
		key, err := securecookie.GenerateKey()
		if err != nil {
			result = multierror.Append(result, fmt.Errorf("unable to generate cookie key: %w", err))
		}
		c.CookieKey = key
	}

	if err := result.ErrorOrNil(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return c, nil
}

// IssuerURL returns the provider's issuer URL.  A bare host is normalized to
// the https issuer form the provider publishes in its discovery document.
func (c *Config) IssuerURL() string {
	if strings.Contains(c.OIDCProvider, "://") {
		return c.OIDCProvider
	}
	return "https://" + c.OIDCProvider + "/"
}
