package oidc

import (
	"context"
	"fmt"

	"github.com/go-jose/go-jose/v3/jwt"
)

// IdentityClaims is the decoded payload of a validated id_token.  It is
// always recomputed by validation and never independently persisted.
type IdentityClaims struct {
	Issuer   string   `json:"iss"`
	Subject  string   `json:"sub"`
	Audience []string `json:"aud"`
	Expiry   int64    `json:"exp"`
	Nonce    string   `json:"nonce"`

	// All holds every claim in the payload, including the standard ones
	// above, for callers that render or inspect the full set.
	All map[string]interface{} `json:"-"`
}

// ValidateIDToken decodes t, checks its standard claims and returns the
// identity claims, or fails with an error wrapping one of the validation
// sentinels (ErrInvalidAudience, ErrInvalidNonce, ErrExpiredToken,
// ErrInvalidIssuer, ErrInvalidSignature, ErrKeyNotFound).  Callers exposing
// the result over a user-facing surface should collapse every failure to a
// single generic unauthorized response; the distinct sentinels exist for
// internal logging, not for the caller-facing surface.
//
// By default the token's signature is NOT cryptographically verified.  That
// claims-only mode is reserved for tokens that arrived over a channel already
// authenticated by transport security, i.e. directly from the provider's
// token endpoint over TLS: the channel establishes integrity, trading
// cryptographic verification for lower latency.  A token submitted by the
// browser (e.g. posted back in a hybrid flow) must never take that shortcut:
// pass WithSignatureVerification so the token's declared kid is resolved
// through the provider's KeySet and the signature verified before any claim
// is trusted.
//
// Claim checks, all of which must pass in either mode:
//
//	aud contains the configured client id
//	nonce equals expectedNonce (the value issued for this attempt)
//	exp is after the current time
//	iss equals the discovered issuer
func (p *Provider) ValidateIDToken(ctx context.Context, t IdToken, expectedNonce string, opt ...Option) (*IdentityClaims, error) {
	const op = "oidc.(Provider).ValidateIDToken"
	if t == "" {
		return nil, fmt.Errorf("%s: id_token is empty: %w", op, ErrInvalidParameter)
	}
	if expectedNonce == "" {
		return nil, fmt.Errorf("%s: expected nonce is empty: %w", op, ErrInvalidParameter)
	}
	opts := getValidateOpts(opt...)

	parsed, err := jwt.ParseSigned(string(t))
	if err != nil {
		return nil, fmt.Errorf("%s: unable to parse id_token: %w: %v", op, ErrInvalidSignature, err)
	}

	var std jwt.Claims
	var all map[string]interface{}
	switch {
	case opts.withSignatureVerification:
		if len(parsed.Headers) == 0 || parsed.Headers[0].KeyID == "" {
			return nil, fmt.Errorf("%s: id_token header has no kid: %w", op, ErrInvalidSignature)
		}
		kid := parsed.Headers[0].KeyID
		key, err := p.keys.Get(ctx, kid)
		if err != nil {
			return nil, fmt.Errorf("%s: unable to resolve signing key: %w", op, err)
		}
		if err := parsed.Claims(key, &std, &all); err != nil {
			return nil, fmt.Errorf("%s: id_token signature is invalid: %w: %v", op, ErrInvalidSignature, err)
		}
	default:
		if err := parsed.UnsafeClaimsWithoutVerification(&std, &all); err != nil {
			return nil, fmt.Errorf("%s: unable to decode id_token claims: %w: %v", op, ErrInvalidSignature, err)
		}
	}

	nonce, _ := all["nonce"].(string)
	if err := p.checkClaims(&std, nonce, expectedNonce); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	claims := &IdentityClaims{
		Issuer:   std.Issuer,
		Subject:  std.Subject,
		Audience: []string(std.Audience),
		Nonce:    nonce,
		All:      all,
	}
	if std.Expiry != nil {
		claims.Expiry = int64(*std.Expiry)
	}
	return claims, nil
}

// checkClaims applies the four standard claim checks.  Expiry is compared in
// seconds since epoch, the unit the token itself uses.
func (p *Provider) checkClaims(std *jwt.Claims, nonce, expectedNonce string) error {
	if !audienceContains(std.Audience, p.config.ClientID) {
		return fmt.Errorf("id_token audience %q does not include the client id: %w", []string(std.Audience), ErrInvalidAudience)
	}
	if nonce != expectedNonce {
		return fmt.Errorf("id_token nonce does not match the nonce issued for this attempt: %w", ErrInvalidNonce)
	}
	if std.Expiry == nil || int64(*std.Expiry) <= p.config.Now().Unix() {
		return fmt.Errorf("id_token is missing an expiry or has expired: %w", ErrExpiredToken)
	}
	if std.Issuer != p.metadata.Issuer {
		return fmt.Errorf("id_token issuer %q does not match the discovered issuer: %w", std.Issuer, ErrInvalidIssuer)
	}
	return nil
}

func audienceContains(aud jwt.Audience, clientID string) bool {
	for _, a := range aud {
		if a == clientID {
			return true
		}
	}
	return false
}

// validateOptions is the set of available options for ValidateIDToken
type validateOptions struct {
	withSignatureVerification bool
}

func validateDefaults() validateOptions {
	return validateOptions{}
}

func getValidateOpts(opt ...Option) validateOptions {
	opts := validateDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}

// WithSignatureVerification requires the id_token's signature to be
// cryptographically verified against the provider's published signing keys
// before any claim is checked.  Required for tokens submitted by a
// client-controlled channel.
func WithSignatureVerification() Option {
	return func(o interface{}) {
		if o, ok := o.(*validateOptions); ok {
			o.withSignatureVerification = true
		}
	}
}
