/*
Package auth implements the gateway's three credential schemes.

Each traffic plane authenticates differently: browser traffic carries a
user JWT, programmatic clients present an API key pair, and internal
services exchange short-lived service tokens. This package provides a
verifier for each scheme; authorization decisions on top of the
verified identity live in pkg/rbac.

# User JWTs

TokenManager issues and verifies HS256 access and refresh tokens
(golang-jwt/v5). Claims carry the user ID, roles, and direct
permissions. Verification is strict about token type: a refresh token
never passes where an access token is expected, and Refresh only
accepts refresh tokens. Revoke adds the token to an in-memory denylist
checked on every Verify.

	tm, err := auth.NewTokenManager(secret, 15*time.Minute, 24*time.Hour)
	access, err := tm.IssueAccess("alice", "u-1", []string{"operator"}, nil)
	claims, err := tm.Verify(access, auth.TypeAccess)

# API Keys

APIKeyManager issues keys as an ak_-prefixed ID plus a random secret.
ListKeys blanks the secret field so keys can be displayed safely.
Verification compares the secret in constant time and checks the active
flag, expiry, and the key's hourly rate budget; a limited key fails
with KindRateLimited carrying the window reset time.

Keys persist through the KeyStore interface, implemented by
pkg/storage, so they survive restarts.

	km, err := auth.NewAPIKeyManager(store)
	key, err := km.CreateKey("ci", []string{"models:read"}, 600, time.Time{})
	verified, err := km.Verify(keyID, secret)

ExtractCredentials pulls the key pair from the request: the
X-API-Key/X-API-Secret headers, an Authorization: Bearer "id:secret"
pair, or the api_key/api_secret query parameters, in that order.

# Internal Tokens

InternalTokenManager issues service-to-service JWTs for an allow-list
of service names. Internal tokens implicitly grant system:* on top of
any explicit permissions. They are signed with a secret distinct from
the user JWT secret and carry their own token type, so a user token
presented on the internal plane is rejected.

# Integration Points

  - pkg/gateway: one middleware per plane wraps the matching verifier
  - pkg/rbac: permission checks over the verified claims
  - pkg/storage: API key persistence
  - pkg/apierror: all failures are KindAuthenticationFailed or
    KindRateLimited, never bare errors

# Security Notes

  - API key secrets are compared with constant-time comparison
  - Issued tokens are never logged; handlers log key IDs only
  - The JWT secret and internal secret come from configuration and are
    required at startup

# See Also

  - pkg/rbac for role and permission evaluation
  - golang-jwt: https://github.com/golang-jwt/jwt
*/
package auth
