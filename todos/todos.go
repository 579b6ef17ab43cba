// Package todos is the delegated-resource client for the downstream to-dos
// API.  The API is an opaque JSON-speaking HTTP service authenticated by the
// bearer access token the relying party obtained for the user; this client
// only attaches the token and relays responses, it never refreshes or
// retries on its own.
package todos

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-cleanhttp"
	"github.com/hashicorp/go-hclog"

	"github.com/oidckit/rely/oidc"
)

// DefaultTimeout bounds every call against the resource API.
const DefaultTimeout = 10 * time.Second

// maxBody bounds the amount of upstream response data read into memory.
const maxBody = 4 << 20

// UpstreamError carries a non-success upstream response verbatim.  The
// original status and body are preserved, rather than synthesized into a
// generic error, because the caller's view needs the upstream diagnostic.
type UpstreamError struct {
	StatusCode int
	Body       []byte
}

// Error implements error.
func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream returned status %d: %s", e.StatusCode, e.Body)
}

// Client calls the to-dos resource API on the user's behalf.
type Client struct {
	baseURL string
	client  *http.Client
	logger  hclog.Logger
}

// New creates a resource client for the API at baseURL.
// Supported options: WithHTTPClient, WithLogger
func New(baseURL string, opt ...Option) (*Client, error) {
	const op = "todos.New"
	if baseURL == "" {
		return nil, fmt.Errorf("%s: base URL is empty", op)
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("%s: base URL %s is invalid: %w", op, baseURL, err)
	}
	opts := getOpts(opt...)
	client := opts.withHTTPClient
	if client == nil {
		client = &http.Client{
			Transport: cleanhttp.DefaultPooledTransport(),
			Timeout:   DefaultTimeout,
		}
	}
	logger := opts.withLogger
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
		logger:  logger,
	}, nil
}

// List fetches the user's to-dos.
func (c *Client) List(ctx context.Context, accessToken oidc.AccessToken) (json.RawMessage, error) {
	return c.do(ctx, http.MethodGet, "/", accessToken)
}

// Remove deletes the to-do with the given id and returns the upstream
// response body.
func (c *Client) Remove(ctx context.Context, id string, accessToken oidc.AccessToken) (json.RawMessage, error) {
	return c.do(ctx, http.MethodDelete, "/"+url.PathEscape(id), accessToken)
}

// do issues one call with the user's bearer token attached.  A non-2xx
// response becomes an *UpstreamError carrying the upstream status and body
// verbatim; a stale or rejected access token is a terminal condition for the
// request, never retried here.
func (c *Client) do(ctx context.Context, method, path string, accessToken oidc.AccessToken) (json.RawMessage, error) {
	const op = "todos.(Client).do"
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: unable to create request: %w", op, err)
	}
	req.Header.Set("Authorization", "Bearer "+string(accessToken))
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %s %s failed: %w", op, method, path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, fmt.Errorf("%s: unable to read response body: %w", op, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Debug("upstream call failed", "method", method, "path", path, "status", resp.StatusCode)
		return nil, &UpstreamError{
			StatusCode: resp.StatusCode,
			Body:       body,
		}
	}
	return body, nil
}

// options is the set of available options for Client functions
type options struct {
	withHTTPClient *http.Client
	withLogger     hclog.Logger
}

func getDefaults() options {
	return options{}
}

func getOpts(opt ...Option) options {
	opts := getDefaults()
	for _, o := range opt {
		o(&opts)
	}
	return opts
}

// Option configures the Client
type Option func(*options)

// WithHTTPClient provides an optional http client override
func WithHTTPClient(client *http.Client) Option {
	return func(o *options) {
		o.withHTTPClient = client
	}
}

// WithLogger provides an optional logger
func WithLogger(l hclog.Logger) Option {
	return func(o *options) {
		o.withLogger = l
	}
}
