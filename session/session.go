// Package session provides the server-side session store the relying party
// materializes validated identity state into.  Sessions are held in a
// TTL-bounded in-memory cache keyed by an opaque session id; the id travels
// in a sealed cookie.
package session

import (
	"fmt"
	"net/http"
	"time"

	"github.com/hashicorp/go-uuid"
	gocache "github.com/patrickmn/go-cache"

	"github.com/oidckit/rely/oidc"
	"github.com/oidckit/rely/securecookie"
)

// DefaultTTL is the default session lifetime.
const DefaultTTL = 24 * time.Hour

// Session is the identity state established for one authenticated user.  It
// holds the tokens returned by the provider plus the validated claims, and
// must only ever be populated from a token that passed validation.
type Session struct {
	AccessToken    oidc.AccessToken
	IDToken        oidc.IdToken
	DecodedIDToken *oidc.IdentityClaims
}

// Store maps session ids to Sessions.  It is safe for concurrent use; each
// session belongs to exactly one user and is only ever written by that
// user's callback request.
type Store struct {
	cookie *securecookie.Codec
	cache  *gocache.Cache
	ttl    time.Duration
}

// NewStore creates a session store whose session-id cookie is managed by
// codec.  Sessions expire after ttl (DefaultTTL when zero).
func NewStore(codec *securecookie.Codec, ttl time.Duration) (*Store, error) {
	const op = "session.NewStore"
	if codec == nil {
		return nil, fmt.Errorf("%s: cookie codec is nil", op)
	}
	if ttl == 0 {
		ttl = DefaultTTL
	}
	return &Store{
		cookie: codec,
		cache:  gocache.New(ttl, 10*time.Minute),
		ttl:    ttl,
	}, nil
}

// Establish writes sess against the caller's session id, creating a new id
// (and setting its cookie) when the request doesn't carry one.  The write
// replaces any existing session state entirely: re-establishing never merges
// with what was there before.  Establish is all-or-nothing; on error no
// session state has changed.
func (s *Store) Establish(w http.ResponseWriter, r *http.Request, sess Session) error {
	const op = "session.(Store).Establish"
	id, err := s.cookie.Read(r)
	if err != nil {
		id, err = uuid.GenerateUUID()
		if err != nil {
			return fmt.Errorf("%s: unable to generate session id: %w", op, err)
		}
		if err := s.cookie.Set(w, id); err != nil {
			return fmt.Errorf("%s: unable to set session cookie: %w", op, err)
		}
	}
	s.cache.Set(id, sess, s.ttl)
	return nil
}

// Read returns the caller's session, if one is established.
func (s *Store) Read(r *http.Request) (*Session, bool) {
	id, err := s.cookie.Read(r)
	if err != nil {
		return nil, false
	}
	v, ok := s.cache.Get(id)
	if !ok {
		return nil, false
	}
	sess, ok := v.(Session)
	if !ok {
		return nil, false
	}
	return &sess, true
}

// Clear removes the caller's session state and its cookie.
func (s *Store) Clear(w http.ResponseWriter, r *http.Request) {
	if id, err := s.cookie.Read(r); err == nil {
		s.cache.Delete(id)
	}
	s.cookie.Clear(w)
}
