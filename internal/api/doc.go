// Package api implements the HTTP REST API for Leitura.
//
// This package provides:
//   - Login, refresh and logout endpoints issuing signed token pairs
//   - Account management (registration, profile updates, activation)
//   - An admin-triggered purge of expired sessions and an audit trail view
//   - Middleware stack (request ID, logging, metrics, recovery, CORS, auth)
//   - Prometheus metrics at /metrics and a JSON runtime summary
//   - TLS support for production deployments
//
// # Authentication
//
// Protected routes expect "Authorization: Bearer <access token>". The token's
// sid claim must name a live session and its subject an active account
// owning that session; otherwise the request is rejected with 401.
//
// Registration (POST /api/v1/users) accepts anonymous callers. When an
// Authorization header is present it must be valid, and the caller's role
// decides which roles and activation flags may be set.
//
// # Errors
//
// Every failure is a JSON body {status, code, message}. The code is the
// snake_case name of the auth error kind, or a transport code such as
// bad_request.
package api
