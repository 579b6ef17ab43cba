package oidc

import (
	"context"
	"fmt"
	"net/http"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
)

// ProviderMetadata is the subset of the provider's discovery document this
// relying party depends on.  It is populated exactly once, when the Provider
// is created, and is read-only afterwards: every concurrent request shares
// the same copy without locking.
type ProviderMetadata struct {
	Issuer                string `json:"issuer"`
	AuthorizationEndpoint string `json:"authorization_endpoint"`
	TokenEndpoint         string `json:"token_endpoint"`
	JWKSURI               string `json:"jwks_uri"`
}

// Provider provides relying-party integration with an OIDC identity provider
// using the 3-legged authorization code flow.
type Provider struct {
	config   *Config
	metadata ProviderMetadata
	keys     *KeySet
	client   *http.Client
}

// NewProvider creates and initializes a Provider.  Initializing the provider
// includes one blocking http request to the issuer's well-known configuration
// endpoint; every other component depends on that metadata, so callers must
// treat a failure here as fatal and not begin serving requests (there is no
// partial-service mode).
func NewProvider(ctx context.Context, c *Config) (*Provider, error) {
	const op = "oidc.NewProvider"
	if c == nil {
		return nil, fmt.Errorf("%s: relying party config is nil: %w", op, ErrNilParameter)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("%s: relying party config is invalid: %w", op, err)
	}

	client, err := c.HTTPClient()
	if err != nil {
		return nil, fmt.Errorf("%s: unable to create http client: %w", op, err)
	}

	// makes the http req to the issuer's /.well-known/openid-configuration
	core, err := oidc.NewProvider(oidc.ClientContext(ctx, client), c.Issuer)
	if err != nil {
		return nil, fmt.Errorf("%s: unable to discover provider %s: %w: %v", op, c.Issuer, ErrDiscoveryFailed, err)
	}

	var md ProviderMetadata
	if err := core.Claims(&md); err != nil {
		return nil, fmt.Errorf("%s: unable to decode discovery document: %w: %v", op, ErrDiscoveryFailed, err)
	}
	if md.Issuer == "" || md.AuthorizationEndpoint == "" || md.TokenEndpoint == "" || md.JWKSURI == "" {
		return nil, fmt.Errorf("%s: discovery document is missing required metadata: %w", op, ErrDiscoveryFailed)
	}

	keys, err := NewKeySet(md.JWKSURI, client)
	if err != nil {
		return nil, fmt.Errorf("%s: unable to create key set: %w", op, err)
	}

	c.Logger.Debug("discovered provider metadata",
		"issuer", md.Issuer,
		"authorization_endpoint", md.AuthorizationEndpoint,
		"token_endpoint", md.TokenEndpoint,
		"jwks_uri", md.JWKSURI,
	)

	return &Provider{
		config:   c,
		metadata: md,
		keys:     keys,
		client:   client,
	}, nil
}

// Metadata returns a copy of the provider's discovered metadata.
func (p *Provider) Metadata() ProviderMetadata {
	return p.metadata
}

// AuthURL generates the URL the caller should redirect the user to in order
// to kick off the authorization code flow.  It is a pure function over the
// provider's metadata, the static config and the freshly issued nonce: no
// network or state side effects.  The caller is responsible for binding the
// nonce to the user's transport session so the callback can verify it.
func (p *Provider) AuthURL(nonce string) (string, error) {
	const op = "oidc.(Provider).AuthURL"
	if nonce == "" {
		return "", fmt.Errorf("%s: nonce is empty: %w", op, ErrInvalidParameter)
	}
	authCodeOpts := []oauth2.AuthCodeOption{
		oauth2.SetAuthURLParam("response_mode", "query"),
		oauth2.SetAuthURLParam("nonce", nonce),
	}
	if p.config.Audience != "" {
		authCodeOpts = append(authCodeOpts, oauth2.SetAuthURLParam("audience", p.config.Audience))
	}
	// The flow is bound to the callback by the nonce cookie, not an oauth
	// state parameter, so none is sent.
	return p.oauth2Config().AuthCodeURL("", authCodeOpts...), nil
}

// Exchange trades an authorization code for a TokenSet via one POST to the
// provider's token endpoint.  Any non-success status or malformed body
// (including a response without an id_token) fails with an error wrapping
// ErrTokenExchange.  Exchanges are never retried: a failed exchange aborts
// the login attempt, and no session may be created from it.
//
// The id_token in the returned set has NOT been validated.
func (p *Provider) Exchange(ctx context.Context, code string) (*TokenSet, error) {
	const op = "oidc.(Provider).Exchange"
	if code == "" {
		return nil, fmt.Errorf("%s: authorization code is empty: %w", op, ErrInvalidParameter)
	}

	tk, err := p.oauth2Config().Exchange(oidc.ClientContext(ctx, p.client), code)
	if err != nil {
		return nil, fmt.Errorf("%s: unable to exchange authorization code: %w: %v", op, ErrTokenExchange, err)
	}
	idToken, ok := tk.Extra("id_token").(string)
	if !ok || idToken == "" {
		return nil, fmt.Errorf("%s: id_token is missing from the exchange response: %w: %v", op, ErrTokenExchange, ErrMissingIdToken)
	}
	return &TokenSet{
		AccessToken: AccessToken(tk.AccessToken),
		IDToken:     IdToken(idToken),
	}, nil
}

// KeySet returns the provider's lazy JWKS key cache.
func (p *Provider) KeySet() *KeySet {
	return p.keys
}

func (p *Provider) oauth2Config() *oauth2.Config {
	scopes := append([]string{oidc.ScopeOpenID}, p.config.Scopes...)
	return &oauth2.Config{
		ClientID:     p.config.ClientID,
		ClientSecret: string(p.config.ClientSecret),
		RedirectURL:  p.config.RedirectURL,
		Scopes:       scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:  p.metadata.AuthorizationEndpoint,
			TokenURL: p.metadata.TokenEndpoint,
		},
	}
}
