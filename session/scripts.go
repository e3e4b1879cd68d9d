package session

import "github.com/redis/go-redis/v9"

const (
	ReasonSingleDevice  = "new login - single device policy"
	ReasonSessionLimit  = "session limit - least recently active"
	ReasonExpired       = "expired"
	ReasonOtherSessions = "signed out from another session"
	ActorSystem         = "system"
)

const revokeFn = `
local function revoke(prefix, id, now, actor, reason)
  local sk = prefix .. ":sess:" .. id
  local vals = redis.call("HMGET", sk, "active", "user_id")
  if vals[1] ~= "1" then
    return 0
  end
  redis.call("HSET", sk, "active", "0", "revoked_at", now, "revoked_by", actor, "revoke_reason", reason)
  redis.call("ZREM", prefix .. ":expiry", id)
  if vals[2] then
    redis.call("ZREM", prefix .. ":user:" .. vals[2], id)
  end
  return 1
end
`

// KEYS: user index, expiry index, session.
// ARGV: prefix, id, max, single device flag, now, retention, expires at,
// then session field/value pairs.
const createScript = revokeFn + `
local prefix = ARGV[1]
local id = ARGV[2]
local max = tonumber(ARGV[3])
local single = ARGV[4] == "1"
local now = tonumber(ARGV[5])
local retention = tonumber(ARGV[6])
local expires_at = tonumber(ARGV[7])

local live = {}
for _, member in ipairs(redis.call("ZRANGE", KEYS[1], 0, -1)) do
  local vals = redis.call("HMGET", prefix .. ":sess:" .. member, "active", "expires_at")
  if vals[1] ~= "1" then
    redis.call("ZREM", KEYS[1], member)
  elseif tonumber(vals[2]) <= now then
    revoke(prefix, member, now, "` + ActorSystem + `", "` + ReasonExpired + `")
  else
    table.insert(live, member)
  end
end

local evicted = {}
if max > 0 and #live >= max then
  if single then
    for _, member in ipairs(live) do
      revoke(prefix, member, now, "` + ActorSystem + `", "` + ReasonSingleDevice + `")
      table.insert(evicted, member)
    end
  else
    while #live >= max do
      local victim = table.remove(live, 1)
      revoke(prefix, victim, now, "` + ActorSystem + `", "` + ReasonSessionLimit + `")
      table.insert(evicted, victim)
    end
  end
end

local fields = {}
for i = 8, #ARGV do
  table.insert(fields, ARGV[i])
end
redis.call("HSET", KEYS[3], unpack(fields))
redis.call("PEXPIREAT", KEYS[3], expires_at + retention)
redis.call("ZADD", KEYS[1], now, id)
redis.call("ZADD", KEYS[2], expires_at, id)
return evicted
`

// KEYS: session. ARGV: prefix, id, now.
// Returns 1 touched, 0 missing, -1 expired, -2 revoked.
const touchScript = revokeFn + `
local vals = redis.call("HMGET", KEYS[1], "active", "expires_at", "user_id")
if not vals[1] then
  return 0
end
if vals[1] ~= "1" then
  return -2
end
local now = tonumber(ARGV[3])
if tonumber(vals[2]) <= now then
  revoke(ARGV[1], ARGV[2], ARGV[3], "` + ActorSystem + `", "` + ReasonExpired + `")
  return -1
end
redis.call("HSET", KEYS[1], "last_activity", ARGV[3])
redis.call("ZADD", ARGV[1] .. ":user:" .. vals[3], now, ARGV[2])
return 1
`

// KEYS: session. ARGV: prefix, id, now, actor, reason.
// Returns -1 when the session does not exist.
const revokeScript = revokeFn + `
if redis.call("EXISTS", KEYS[1]) == 0 then
  return -1
end
return revoke(ARGV[1], ARGV[2], ARGV[3], ARGV[4], ARGV[5])
`

// KEYS: user index. ARGV: prefix, now, actor, reason, except id.
const revokeUserScript = revokeFn + `
local n = 0
for _, member in ipairs(redis.call("ZRANGE", KEYS[1], 0, -1)) do
  if member ~= ARGV[5] then
    n = n + revoke(ARGV[1], member, ARGV[2], ARGV[3], ARGV[4])
  end
end
return n
`

// KEYS: expiry index. ARGV: prefix, now, limit.
const sweepScript = revokeFn + `
local ids = redis.call("ZRANGEBYSCORE", KEYS[1], "-inf", ARGV[2], "LIMIT", 0, tonumber(ARGV[3]))
local n = 0
for _, id in ipairs(ids) do
  local removed = revoke(ARGV[1], id, ARGV[2], "` + ActorSystem + `", "` + ReasonExpired + `")
  if removed == 0 then
    redis.call("ZREM", KEYS[1], id)
  end
  n = n + removed
end
return n
`

var (
	createLua     = redis.NewScript(createScript)
	touchLua      = redis.NewScript(touchScript)
	revokeLua     = redis.NewScript(revokeScript)
	revokeUserLua = redis.NewScript(revokeUserScript)
	sweepLua      = redis.NewScript(sweepScript)
)
