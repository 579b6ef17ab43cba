// Package securecookie provides a sealed (encrypted and authenticated)
// cookie codec.  Values are sealed with an AEAD (ChaCha20-Poly1305) keyed by
// a process secret, so a client can neither read nor tamper with them: the
// relying party uses it for the one-time login nonce and the session
// identifier.
package securecookie

import (
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/crypto/chacha20poly1305"
)

var (
	ErrNoCookie      = errors.New("cookie not present")
	ErrInvalidCookie = errors.New("invalid cookie")
)

// KeySize is the required sealing key length in bytes.
const KeySize = chacha20poly1305.KeySize

// maxCookieLen bounds the amount of client-controlled data we will decode.
// Browsers cap individual cookie values around 4KB; we enforce our own limit.
const maxCookieLen = 8192

// Codec seals and opens the values of one named cookie.  A Codec is
// immutable after construction and safe for concurrent use.
type Codec struct {
	name   string
	maxAge time.Duration
	aead   cipher.AEAD
}

// New creates a Codec for the cookie called name.  key must be KeySize bytes
// (see GenerateKey).  maxAge bounds the cookie's lifetime; sealed values
// presented after it are rejected by the browser, not the codec.
func New(name string, key []byte, maxAge time.Duration) (*Codec, error) {
	const op = "securecookie.New"
	if name == "" {
		return nil, fmt.Errorf("%s: cookie name is empty: %w", op, ErrInvalidCookie)
	}
	if maxAge <= 0 {
		return nil, fmt.Errorf("%s: max age must be greater than zero: %w", op, ErrInvalidCookie)
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("%s: unable to create AEAD: %w", op, err)
	}
	return &Codec{
		name:   name,
		maxAge: maxAge,
		aead:   aead,
	}, nil
}

// GenerateKey returns a fresh random sealing key.
func GenerateKey() ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("securecookie.GenerateKey: %w", err)
	}
	return key, nil
}

// Name returns the cookie name used by this codec.
func (c *Codec) Name() string { return c.name }

// Set seals value and adds the cookie to the response.  The cookie is
// HTTP-only (not script accessible) and expires after the codec's max age.
func (c *Codec) Set(w http.ResponseWriter, value string) error {
	const op = "securecookie.(Codec).Set"
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return fmt.Errorf("%s: unable to read random bytes: %w", op, err)
	}
	sealed := c.aead.Seal(nonce, nonce, []byte(value), c.aad())

	http.SetCookie(w, &http.Cookie{
		Name:     c.name,
		Value:    base64.RawURLEncoding.EncodeToString(sealed),
		Path:     "/",
		MaxAge:   int(c.maxAge / time.Second),
		Expires:  time.Now().Add(c.maxAge),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

// Read opens the cookie's sealed value.  It fails with ErrNoCookie when the
// request carries no such cookie and ErrInvalidCookie when the value doesn't
// authenticate.
func (c *Codec) Read(r *http.Request) (string, error) {
	const op = "securecookie.(Codec).Read"
	cookie, err := r.Cookie(c.name)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, ErrNoCookie)
	}
	if len(cookie.Value) == 0 || len(cookie.Value) > maxCookieLen {
		return "", fmt.Errorf("%s: %w", op, ErrInvalidCookie)
	}
	sealed, err := base64.RawURLEncoding.DecodeString(cookie.Value)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, ErrInvalidCookie)
	}
	if len(sealed) < c.aead.NonceSize()+c.aead.Overhead() {
		return "", fmt.Errorf("%s: %w", op, ErrInvalidCookie)
	}
	nonce, ciphertext := sealed[:c.aead.NonceSize()], sealed[c.aead.NonceSize():]
	plain, err := c.aead.Open(nil, nonce, ciphertext, c.aad())
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, ErrInvalidCookie)
	}
	return string(plain), nil
}

// Clear adds a cookie to the response that removes this cookie in the client.
func (c *Codec) Clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     c.name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// Consume reads the cookie's value and unconditionally clears the cookie,
// whether or not the read succeeded.  It is how a one-time value (the login
// nonce) is redeemed: the first consumer gets the value, and a later request
// for the same attempt observes no cookie and fails closed.
func (c *Codec) Consume(w http.ResponseWriter, r *http.Request) (string, error) {
	value, err := c.Read(r)
	c.Clear(w)
	if err != nil {
		return "", err
	}
	return value, nil
}

// aad binds the sealed value to the cookie name, so a value sealed for one
// cookie can't be replayed as another.
func (c *Codec) aad() []byte {
	return []byte(c.name)
}
