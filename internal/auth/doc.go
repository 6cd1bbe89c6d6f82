// Package auth protects the gateway's read-only admin API.
//
// # Tokens
//
// Admin clients authenticate with HS256 JWTs signed with auth.jwt_secret
// (at least 32 bytes). Tokens carry the issuer "photoid-gateway", a
// subject naming the holder, and a mandatory expiry:
//
//	v, err := auth.NewJWTVerifier([]byte(secret))
//	token, err := v.Generate("ops-laptop", 30*24*time.Hour)
//
// The CLI's token subcommand mints these.
//
// # HTTP Middleware
//
// HTTPAuthMiddleware reads "Authorization: Bearer <token>", verifies it and
// stores the subject in the request context (SubjectFromContext). Failures
// get a 401 with a JSON error body.
//
// The LINE webhook itself is not covered here. It is authenticated by the
// channel signature in package line.
package auth
