package oidc

import (
	"encoding/json"
)

// AccessToken is an oauth access_token
type AccessToken string

// RedactedAccessToken is the redacted string or json for an oauth access_token
const RedactedAccessToken = "[REDACTED: access_token]"

// String will redact the token
func (t AccessToken) String() string {
	return RedactedAccessToken
}

// MarshalJSON will redact the token
func (t AccessToken) MarshalJSON() ([]byte, error) {
	return json.Marshal(RedactedAccessToken)
}

// TokenSet holds the tokens returned by the provider's token endpoint for one
// successful authorization code exchange.  The set is owned by the session it
// was established for.
type TokenSet struct {
	AccessToken AccessToken
	IDToken     IdToken
}
