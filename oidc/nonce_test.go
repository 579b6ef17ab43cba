package oidc

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewNonce(t *testing.T) {
	t.Parallel()
	t.Run("hex-encoded-entropy", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		nonce, err := NewNonce()
		require.NoError(err)
		assert.Len(nonce, NonceByteLen*2)
		_, err = hex.DecodeString(nonce)
		assert.NoError(err)
	})
	t.Run("unique-per-call", func(t *testing.T) {
		require := require.New(t)
		seen := map[string]bool{}
		for i := 0; i < 100; i++ {
			nonce, err := NewNonce()
			require.NoError(err)
			require.False(seen[nonce], "nonce %s generated twice", nonce)
			seen[nonce] = true
		}
	})
}
