package oidc

import (
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/hashicorp/go-cleanhttp"
	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-multierror"
)

// ClientSecret is the relying party's secret.  The type redacts itself when
// printed or marshaled, so it is safe to log a Config.
type ClientSecret string

// RedactedClientSecret is the redacted string or json for an oauth client secret
const RedactedClientSecret = "[REDACTED: client secret]"

// String will redact the client secret
func (t ClientSecret) String() string {
	return RedactedClientSecret
}

// MarshalJSON will redact the client secret
func (t ClientSecret) MarshalJSON() ([]byte, error) {
	return json.Marshal(RedactedClientSecret)
}

// DefaultHTTPTimeout bounds every outbound call to the provider (discovery,
// token exchange, JWKS fetches).  A stalled IdP must not hang a handler.
const DefaultHTTPTimeout = 10 * time.Second

// Config represents the static relying-party configuration for the
// authorization code flow.
type Config struct {
	// ClientID is the relying party id
	ClientID string

	// ClientSecret is the relying party secret
	ClientSecret ClientSecret

	// Issuer is a case-sensitive URL using the https (or http) scheme with no
	// query or fragment components.  Discovery is performed against
	// {Issuer}/.well-known/openid-configuration
	Issuer string

	// RedirectURL is the URL the provider redirects back to after the user
	// authenticates.  It must exactly match the URL registered with the
	// provider: the token endpoint rejects exchanges with a different one.
	RedirectURL string

	// Scopes is a list of additional oidc scopes to request of the provider.
	// The required "openid" scope is always requested and should not be part
	// of this optional list.  Scopes must enumerate every permission the
	// downstream resource API will require, since scope cannot be escalated
	// after the authorization.
	Scopes []string

	// Audience is an optional audience value for the authorization request,
	// identifying the downstream resource API the access token is meant for
	Audience string

	// ProviderCA is an optional CA cert to use when sending requests to the provider
	ProviderCA string

	// HTTPTimeout bounds outbound calls to the provider.  Defaults to
	// DefaultHTTPTimeout
	HTTPTimeout time.Duration

	// NowFunc is an optional time func used when validating token expiry.
	// Defaults to time.Now
	NowFunc func() time.Time

	// Logger is an optional logger.  Defaults to a null logger
	Logger hclog.Logger
}

// NewConfig composes a new relying-party config.
// Supported options: WithScopes, WithAudience, WithProviderCA, WithLogger,
// WithNow, WithHTTPTimeout
func NewConfig(issuer string, clientID string, clientSecret ClientSecret, redirectURL string, opt ...Option) (*Config, error) {
	const op = "oidc.NewConfig"
	opts := getConfigOpts(opt...)
	c := &Config{
		Issuer:       issuer,
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURL,
		Scopes:       opts.withScopes,
		Audience:     opts.withAudience,
		ProviderCA:   opts.withProviderCA,
		HTTPTimeout:  opts.withHTTPTimeout,
		NowFunc:      opts.withNowFunc,
		Logger:       opts.withLogger,
	}
	if c.HTTPTimeout == 0 {
		c.HTTPTimeout = DefaultHTTPTimeout
	}
	if c.Logger == nil {
		c.Logger = hclog.NewNullLogger()
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("%s: invalid relying party config: %w", op, err)
	}
	return c, nil
}

// Validate the config.  It verifies the issuer parses as an http(s) URL, but
// it doesn't verify the issuer is discoverable via an http request.  All
// problems found are reported, not just the first.
func (c *Config) Validate() error {
	const op = "oidc.(Config).Validate"
	if c == nil {
		return fmt.Errorf("%s: config is nil: %w", op, ErrNilParameter)
	}
	var result *multierror.Error
	if c.ClientID == "" {
		result = multierror.Append(result, fmt.Errorf("client id is empty: %w", ErrInvalidParameter))
	}
	if c.ClientSecret == "" {
		result = multierror.Append(result, fmt.Errorf("client secret is empty: %w", ErrInvalidParameter))
	}
	if c.RedirectURL == "" {
		result = multierror.Append(result, fmt.Errorf("redirect URL is empty: %w", ErrInvalidParameter))
	}
	switch {
	case c.Issuer == "":
		result = multierror.Append(result, fmt.Errorf("issuer is empty: %w", ErrInvalidParameter))
	default:
		u, err := url.Parse(c.Issuer)
		switch {
		case err != nil:
			result = multierror.Append(result, fmt.Errorf("issuer %s is invalid: %w", c.Issuer, err))
		case u.Scheme != "https" && u.Scheme != "http":
			result = multierror.Append(result, fmt.Errorf("issuer %s scheme is not http or https: %w", c.Issuer, ErrInvalidParameter))
		}
	}
	if err := result.ErrorOrNil(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// Now returns the config's current time, using NowFunc when set.
func (c *Config) Now() time.Time {
	if c.NowFunc != nil {
		return c.NowFunc()
	}
	return time.Now()
}

// HTTPClient creates an http client for the provider.  The client uses the
// config's optional CA cert when provided, otherwise it uses the installed
// system CA chain.  Every request is bounded by the config's HTTPTimeout.
func (c *Config) HTTPClient() (*http.Client, error) {
	const op = "oidc.(Config).HTTPClient"
	tr := cleanhttp.DefaultPooledTransport()
	if c.ProviderCA != "" {
		certPool := x509.NewCertPool()
		if ok := certPool.AppendCertsFromPEM([]byte(c.ProviderCA)); !ok {
			return nil, fmt.Errorf("%s: could not parse CA PEM value: %w", op, ErrInvalidCACert)
		}
		tr.TLSClientConfig = &tls.Config{
			RootCAs: certPool,
		}
	}
	return &http.Client{
		Transport: tr,
		Timeout:   c.HTTPTimeout,
	}, nil
}

// configOptions is the set of available options for Config functions
type configOptions struct {
	withScopes      []string
	withAudience    string
	withProviderCA  string
	withHTTPTimeout time.Duration
	withNowFunc     func() time.Time
	withLogger      hclog.Logger
}

// configDefaults is a handy way to get the defaults at runtime and during
// unit tests.
func configDefaults() configOptions {
	return configOptions{}
}

// getConfigOpts gets the config defaults and applies the opt overrides passed in
func getConfigOpts(opt ...Option) configOptions {
	opts := configDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}

// WithScopes provides an optional list of scopes to request of the provider
func WithScopes(scopes ...string) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withScopes = scopes
		}
	}
}

// WithAudience provides an optional audience for the authorization request
func WithAudience(aud string) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withAudience = aud
		}
	}
}

// WithProviderCA provides an optional CA cert for the provider's config
func WithProviderCA(cert string) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withProviderCA = cert
		}
	}
}

// WithHTTPTimeout provides an optional timeout override for outbound calls
// to the provider
func WithHTTPTimeout(d time.Duration) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withHTTPTimeout = d
		}
	}
}

// WithNow provides an optional time func for the config
func WithNow(now func() time.Time) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withNowFunc = now
		}
	}
}

// WithLogger provides an optional logger for the config
func WithLogger(l hclog.Logger) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withLogger = l
		}
	}
}
