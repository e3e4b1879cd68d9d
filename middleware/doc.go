// Package middleware adapts authcore.Engine to net/http.
//
// # Guards
//
//   - [Guard] authenticates the bearer token, applies sliding renewal and
//     stores the result in the request context.
//   - [RequireRoles] rejects requests whose token lacks a role.
//   - [ClientInfo] records the caller's IP and User-Agent for handlers that
//     call Login or Refresh.
//
// A renewed access token is returned in the Authorization response header
// together with X-Token-Refreshed: true. Clients must switch to it.
//
// This package translates HTTP semantics into Engine calls. It never parses
// tokens or touches Redis itself.
package middleware
