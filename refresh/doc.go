// Package refresh stores opaque, rotating refresh tokens in Redis.
//
// # Token format
//
// A refresh token is 32 random bytes encoded as unpadded base64url. Only the
// SHA-256 of those bytes is persisted; the raw token exists only in the
// response handed to the client.
//
// # Key layout
//
//	<p>:rec:<id>       HASH    the record
//	<p>:hash:<sha256>  STRING  current secret hash -> record id
//	<p>:user:<uid>     ZSET    active record ids scored by createdAt
//	<p>:expiry         ZSET    active record ids scored by expiresAt
//
// Rotation replaces the secret on the same record inside one Lua script, so
// of two concurrent refreshes presenting the same token exactly one wins.
// A record moves from active to inactive once and never back.
package refresh
