// Package session keeps a per-user registry of device sessions in Redis.
//
// Each session is a HASH under <p>:sess:<id>. A per-user ZSET scored by last
// activity drives both listing (most recent first) and eviction (least
// recent first), and a global ZSET scored by expiry drives sweeping. Every
// state change runs inside a Lua script so the per-user limit holds under
// concurrent logins.
//
// Revocation is soft: the record stays readable with revokedAt, revokedBy
// and the reason until its retention runs out. A revoked session never
// becomes active again.
package session
