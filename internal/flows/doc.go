// Package flows contains the request state machines behind every Engine
// operation: login, refresh, authenticate, logout, session management, TOTP
// enrollment and password changes.
//
// Each Run function takes a typed dependency struct of funcs and small
// interfaces and returns either a result or a host sentinel supplied through
// the deps. The root package builds the deps once and maps failures to its
// own error taxonomy, metrics and audit events.
//
// # What this package must NOT do
//
//   - Hold mutable state between calls.
//   - Import the root package.
//   - Perform I/O directly. Every store call goes through the deps.
package flows
