package oidc

import (
	"errors"
)

var (
	ErrInvalidParameter  = errors.New("invalid parameter")
	ErrNilParameter      = errors.New("nil parameter")
	ErrInvalidCACert     = errors.New("invalid CA certificate")
	ErrDiscoveryFailed   = errors.New("provider discovery failed")
	ErrTokenExchange     = errors.New("token exchange failed")
	ErrMissingIdToken    = errors.New("id_token is missing")
	ErrInvalidSignature  = errors.New("invalid signature")
	ErrInvalidAudience   = errors.New("invalid audience")
	ErrInvalidNonce      = errors.New("invalid nonce")
	ErrInvalidIssuer     = errors.New("invalid issuer")
	ErrExpiredToken      = errors.New("token is expired")
	ErrKeyNotFound       = errors.New("signing key not found")
	ErrIdGeneratorFailed = errors.New("id generation failed")
)
