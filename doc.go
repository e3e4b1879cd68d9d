// Package authcore issues and validates credentials for interactive users:
// short-lived signed access tokens, rotating opaque refresh tokens and a
// per-device session registry, guarded by progressive account lockout and
// optional TOTP.
//
// Build an [Engine] once with [New] and share it; every method is safe for
// concurrent use. Request metadata such as the client IP and User-Agent is
// passed through the context, see [WithClient].
//
// # Flows
//
//   - [Engine.Login] verifies a password (and a TOTP code when enabled) and
//     issues an access token, a refresh token and a session.
//   - [Engine.Authenticate] verifies an access token on every request,
//     renews it while the client stays active and records session activity.
//   - [Engine.Refresh] rotates a refresh token. A token can be used once.
//   - [Engine.Logout] and [Engine.LogoutAll] revoke what was issued.
//
// Redis backs refresh tokens and sessions. Users live behind
// credential.Store; the credential/postgres package provides a pgx
// implementation.
//
// # Errors
//
// Every failure maps onto a sentinel in this package so callers can branch
// with errors.Is. Backend failures wrap [ErrStorageUnavailable].
package authcore
