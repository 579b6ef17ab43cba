/*
oidc implements the relying-party half of the OpenID Connect authorization
code flow.

Primary types provided by the package

* Config: the static relying-party configuration (client id/secret, issuer,
redirect URL, requested scopes, target audience).

* Provider: holds the provider metadata discovered from the issuer's
well-known configuration document and provides the flow operations:
generating an authorization URL, exchanging an authorization code for
tokens, and validating id_tokens.

* TokenSet: the access_token and id_token returned by the provider's token
endpoint.

* IdentityClaims: the checked claims of a validated id_token.

* KeySet: a lazy, kid-indexed cache of the provider's JWKS signing keys,
used when an id_token requires cryptographic signature verification.

The package also provides a TestProvider which runs a local test IdP
(discovery, authorization, token and JWKS endpoints) to make writing tests
against the full flow much easier.
*/
package oidc
