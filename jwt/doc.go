// Package jwt issues and verifies signed access and refresh tokens that carry
// session claims (sid, fia, lat) and implements sliding-window renewal under
// an absolute session ceiling.
//
// Verification consults an optional RevocationChecker before any signature
// work, so a blacklisted token is rejected without touching the keys.
package jwt
