// Package auth provides session-based authentication and account
// management for the Leitura service.
//
// It implements:
//   - Access and refresh JWTs (HS256) with separate secrets and lifetimes
//   - Server-side sessions bound to those JWTs through opaque 256-bit tokens
//   - Atomic token rotation on refresh, revocation and periodic purge
//   - Argon2id password hashing, with bcrypt digests accepted for verification
//   - A static role-permission table (admin, user, hardware)
//
// A JWT alone never authenticates a request: its sid claim must name a
// live session, so logout and purge take effect before the JWT expires.
//
// Errors are sentinel values classified by KindOf; the HTTP layer maps a
// Kind to a status code once, at the boundary.
package auth
