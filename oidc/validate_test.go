package oidc

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-jose/go-jose/v3/jwt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProvider_ValidateIDToken(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	setup := func(t *testing.T) (*TestProvider, *Provider) {
		t.Helper()
		tp, p := testProviderAndConfig(t)
		tp.SetIDTokenNonce("fake-nonce")
		return tp, p
	}

	t.Run("valid-claims-only", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		tp, p := setup(t)
		token := IdToken(tp.SignIDToken(t))

		claims, err := p.ValidateIDToken(ctx, token, "fake-nonce")
		require.NoError(err)
		require.NotNil(claims)
		assert.Equal("alice@example.com", claims.Subject)
		assert.Equal(tp.Addr(), claims.Issuer)
		assert.Equal([]string{"test-rp"}, claims.Audience)
		assert.Equal("fake-nonce", claims.Nonce)
		assert.Greater(claims.Expiry, time.Now().Unix())
		assert.Equal("alice@example.com", claims.All["sub"])
	})
	t.Run("valid-with-signature-verification", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		tp, p := setup(t)
		token := IdToken(tp.SignIDToken(t))

		claims, err := p.ValidateIDToken(ctx, token, "fake-nonce", WithSignatureVerification())
		require.NoError(err)
		assert.Equal("alice@example.com", claims.Subject)
	})
	t.Run("custom-claims-survive", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		tp, p := setup(t)
		tp.SetCustomClaims(map[string]interface{}{"name": "Alice Doe"})
		token := IdToken(tp.SignIDToken(t))

		claims, err := p.ValidateIDToken(ctx, token, "fake-nonce")
		require.NoError(err)
		assert.Equal("Alice Doe", claims.All["name"])
	})
	t.Run("empty-token", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		_, p := setup(t)
		_, err := p.ValidateIDToken(ctx, "", "fake-nonce")
		require.Error(err)
		assert.Truef(errors.Is(err, ErrInvalidParameter), "wanted \"%s\" but got \"%s\"", ErrInvalidParameter, err)
	})
	t.Run("empty-expected-nonce", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		tp, p := setup(t)
		token := IdToken(tp.SignIDToken(t))
		_, err := p.ValidateIDToken(ctx, token, "")
		require.Error(err)
		assert.Truef(errors.Is(err, ErrInvalidParameter), "wanted \"%s\" but got \"%s\"", ErrInvalidParameter, err)
	})
	t.Run("not-a-jwt", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		_, p := setup(t)
		_, err := p.ValidateIDToken(ctx, "not-a-jwt", "fake-nonce")
		require.Error(err)
		assert.Truef(errors.Is(err, ErrInvalidSignature), "wanted \"%s\" but got \"%s\"", ErrInvalidSignature, err)
	})
	t.Run("wrong-audience", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		tp, p := setup(t)
		tp.SetCustomAudience("someone-else")
		token := IdToken(tp.SignIDToken(t))
		_, err := p.ValidateIDToken(ctx, token, "fake-nonce")
		require.Error(err)
		assert.Truef(errors.Is(err, ErrInvalidAudience), "wanted \"%s\" but got \"%s\"", ErrInvalidAudience, err)
	})
	t.Run("wrong-nonce", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		tp, p := setup(t)
		token := IdToken(tp.SignIDToken(t))
		_, err := p.ValidateIDToken(ctx, token, "a-different-nonce")
		require.Error(err)
		assert.Truef(errors.Is(err, ErrInvalidNonce), "wanted \"%s\" but got \"%s\"", ErrInvalidNonce, err)
	})
	t.Run("expired", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		tp, p := setup(t)
		tp.SetIDTokenExpiry(-1 * time.Minute)
		token := IdToken(tp.SignIDToken(t))
		_, err := p.ValidateIDToken(ctx, token, "fake-nonce")
		require.Error(err)
		assert.Truef(errors.Is(err, ErrExpiredToken), "wanted \"%s\" but got \"%s\"", ErrExpiredToken, err)
	})
	t.Run("missing-expiry", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		tp, p := setup(t)
		_, priv := tp.SigningKeys()
		token := IdToken(TestSignJWT(t, priv, TestKeyID, jwt.Claims{
			Subject:  "alice@example.com",
			Issuer:   tp.Addr(),
			Audience: jwt.Audience{"test-rp"},
		}, map[string]interface{}{"nonce": "fake-nonce"}))
		_, err := p.ValidateIDToken(ctx, token, "fake-nonce")
		require.Error(err)
		assert.Truef(errors.Is(err, ErrExpiredToken), "wanted \"%s\" but got \"%s\"", ErrExpiredToken, err)
	})
	t.Run("wrong-issuer", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		tp, p := setup(t)
		tp.SetCustomIssuer("https://evil.example.com/")
		token := IdToken(tp.SignIDToken(t))
		_, err := p.ValidateIDToken(ctx, token, "fake-nonce")
		require.Error(err)
		assert.Truef(errors.Is(err, ErrInvalidIssuer), "wanted \"%s\" but got \"%s\"", ErrInvalidIssuer, err)
	})
	t.Run("signature-unknown-kid", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		tp, p := setup(t)
		_, roguePriv := TestGenerateKeys(t)
		token := IdToken(TestSignJWT(t, roguePriv, "rogue-key", jwt.Claims{
			Subject:  "alice@example.com",
			Issuer:   tp.Addr(),
			Audience: jwt.Audience{"test-rp"},
			Expiry:   jwt.NewNumericDate(time.Now().Add(5 * time.Minute)),
		}, map[string]interface{}{"nonce": "fake-nonce"}))
		_, err := p.ValidateIDToken(ctx, token, "fake-nonce", WithSignatureVerification())
		require.Error(err)
		assert.Truef(errors.Is(err, ErrKeyNotFound), "wanted \"%s\" but got \"%s\"", ErrKeyNotFound, err)
	})
	t.Run("signature-forged-with-another-key", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		tp, p := setup(t)
		// signed by a key the provider never published, but claiming the
		// provider's kid
		_, roguePriv := TestGenerateKeys(t)
		token := IdToken(TestSignJWT(t, roguePriv, TestKeyID, jwt.Claims{
			Subject:  "alice@example.com",
			Issuer:   tp.Addr(),
			Audience: jwt.Audience{"test-rp"},
			Expiry:   jwt.NewNumericDate(time.Now().Add(5 * time.Minute)),
		}, map[string]interface{}{"nonce": "fake-nonce"}))
		_, err := p.ValidateIDToken(ctx, token, "fake-nonce", WithSignatureVerification())
		require.Error(err)
		assert.Truef(errors.Is(err, ErrInvalidSignature), "wanted \"%s\" but got \"%s\"", ErrInvalidSignature, err)
	})
	t.Run("claims-only-accepts-a-forged-signature", func(t *testing.T) {
		// documents why claims-only validation is reserved for tokens
		// received directly from the token endpoint over TLS
		require := require.New(t)
		tp, p := setup(t)
		_, roguePriv := TestGenerateKeys(t)
		token := IdToken(TestSignJWT(t, roguePriv, TestKeyID, jwt.Claims{
			Subject:  "alice@example.com",
			Issuer:   tp.Addr(),
			Audience: jwt.Audience{"test-rp"},
			Expiry:   jwt.NewNumericDate(time.Now().Add(5 * time.Minute)),
		}, map[string]interface{}{"nonce": "fake-nonce"}))
		_, err := p.ValidateIDToken(ctx, token, "fake-nonce")
		require.NoError(err)
	})
	t.Run("now-func-is-honored", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		tp := StartTestProvider(t)
		tp.SetClientCreds("test-rp", "fido")
		tp.SetIDTokenNonce("fake-nonce")
		c, err := NewConfig(tp.Addr(), "test-rp", "fido", "http://localhost:3000/callback",
			WithNow(func() time.Time { return time.Now().Add(24 * time.Hour) }))
		require.NoError(err)
		p, err := NewProvider(context.Background(), c)
		require.NoError(err)

		token := IdToken(tp.SignIDToken(t))
		_, err = p.ValidateIDToken(ctx, token, "fake-nonce")
		require.Error(err)
		assert.Truef(errors.Is(err, ErrExpiredToken), "wanted \"%s\" but got \"%s\"", ErrExpiredToken, err)
	})
}
