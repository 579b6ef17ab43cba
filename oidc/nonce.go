package oidc

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// NonceByteLen is the number of random bytes in a nonce.  16 bytes hex-encode
// to a 32 character string.
const NonceByteLen = 16

// NewNonce generates a cryptographically random nonce suitable for binding an
// authorization request to the callback that completes it.  The nonce is the
// sole defense against authorization-response replay in this flow, so callers
// must treat each nonce as single-use.
func NewNonce() (string, error) {
	const op = "oidc.NewNonce"
	b := make([]byte, NonceByteLen)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("%s: unable to read random bytes: %w", op, ErrIdGeneratorFailed)
	}
	return hex.EncodeToString(b), nil
}
