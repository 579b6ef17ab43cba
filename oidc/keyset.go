package oidc

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"

	jose "github.com/go-jose/go-jose/v3"
)

// maxJWKSBody bounds the amount of data read from the JWKS endpoint.
const maxJWKSBody = 1 << 20

// KeySet is a cache of the provider's JWKS signing keys indexed by key id
// (kid).  Keys are resolved lazily: a kid that isn't currently held triggers
// one remote fetch of the JWKS endpoint before the lookup fails.  The cache
// lives for the life of the process and is safe for concurrent use; at-most
// duplicate fetches for the same uncached kid are acceptable.
type KeySet struct {
	jwksURL string
	client  *http.Client

	mu   sync.RWMutex
	keys map[string]jose.JSONWebKey
}

// NewKeySet creates a KeySet backed by the JWKS endpoint at jwksURL.  No keys
// are fetched until the first lookup.
func NewKeySet(jwksURL string, client *http.Client) (*KeySet, error) {
	const op = "oidc.NewKeySet"
	if jwksURL == "" {
		return nil, fmt.Errorf("%s: jwks URL is empty: %w", op, ErrInvalidParameter)
	}
	if client == nil {
		return nil, fmt.Errorf("%s: http client is nil: %w", op, ErrNilParameter)
	}
	return &KeySet{
		jwksURL: jwksURL,
		client:  client,
		keys:    map[string]jose.JSONWebKey{},
	}, nil
}

// Get returns the public key for kid.  On a cache miss the JWKS endpoint is
// fetched once; if the kid still isn't published the lookup fails with
// ErrKeyNotFound.
func (k *KeySet) Get(ctx context.Context, kid string) (*jose.JSONWebKey, error) {
	const op = "oidc.(KeySet).Get"
	if kid == "" {
		return nil, fmt.Errorf("%s: kid is empty: %w", op, ErrInvalidParameter)
	}
	k.mu.RLock()
	key, ok := k.keys[kid]
	k.mu.RUnlock()
	if ok {
		return &key, nil
	}

	if err := k.refresh(ctx); err != nil {
		return nil, fmt.Errorf("%s: unable to refresh key set: %w", op, err)
	}

	k.mu.RLock()
	key, ok = k.keys[kid]
	k.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%s: no key published for kid %q: %w", op, kid, ErrKeyNotFound)
	}
	return &key, nil
}

// refresh fetches the JWKS endpoint and replaces the cached keys.  Replacing
// (rather than merging) lets rotated-out keys stop verifying tokens.
func (k *KeySet) refresh(ctx context.Context) error {
	const op = "oidc.(KeySet).refresh"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, k.jwksURL, nil)
	if err != nil {
		return fmt.Errorf("%s: unable to create request: %w", op, err)
	}
	resp, err := k.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s: unable to fetch keys from %s: %w", op, k.jwksURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s: key set endpoint returned status %d: %w", op, resp.StatusCode, ErrKeyNotFound)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxJWKSBody))
	if err != nil {
		return fmt.Errorf("%s: unable to read key set response: %w", op, err)
	}
	var jwks jose.JSONWebKeySet
	if err := json.Unmarshal(body, &jwks); err != nil {
		return fmt.Errorf("%s: unable to decode key set response: %w", op, err)
	}

	keys := make(map[string]jose.JSONWebKey, len(jwks.Keys))
	for _, key := range jwks.Keys {
		if key.KeyID == "" {
			continue
		}
		keys[key.KeyID] = key
	}

	k.mu.Lock()
	k.keys = keys
	k.mu.Unlock()
	return nil
}
