// Package auth provides bearer-token authentication between the planner
// client and the dialogue service.
//
// # Tokens
//
// Tokens are HS256 JWTs. The "sub" claim names the user id whose
// conversation the holder may drive; the subject "*" may drive any.
//
//	verifier, err := auth.NewJWTVerifier([]byte(secret))
//	token, err := verifier.Generate("alice", 30*24*time.Hour)
//
// Secrets shorter than MinSecretLength are rejected.
//
// # HTTP Middleware
//
// HTTPAuthMiddleware rejects requests without a valid bearer token with
// 401 and a JSON {"error": ...} body, and otherwise attaches an
// AuthContext:
//
//	r.Use(auth.HTTPAuthMiddleware(verifier, logger))
//	...
//	if ac := auth.FromContext(ctx); ac != nil && !ac.CanActAs(userID) { ... }
//
// # Client Credentials
//
// ResolveToken finds the client's token in config, then the
// COVEN_PLANNER_TOKEN environment variable, then the configured token
// file, then $XDG_CONFIG_HOME/coven-planner/token.
package auth
