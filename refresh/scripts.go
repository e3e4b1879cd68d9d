package refresh

import "github.com/redis/go-redis/v9"

const (
	rotateStatusNotFound int64 = 0
	rotateStatusExpired  int64 = 1
	rotateStatusMismatch int64 = 2
	rotateStatusRotated  int64 = 3
)

// deactivateFn is prepended to every script that retires records.
const deactivateFn = `
local function deactivate(prefix, id, now)
  local rk = prefix .. ":rec:" .. id
  local vals = redis.call("HMGET", rk, "active", "secret_hash", "user_id")
  if vals[1] ~= "1" then
    return 0
  end
  redis.call("HSET", rk, "active", "0", "revoked_at", now)
  if vals[2] then
    redis.call("DEL", prefix .. ":hash:" .. vals[2])
  end
  redis.call("ZREM", prefix .. ":expiry", id)
  if vals[3] then
    redis.call("ZREM", prefix .. ":user:" .. vals[3], id)
  end
  return 1
end
`

// KEYS: user index, expiry index, record, hash pointer.
// ARGV: prefix, id, max per user, now, retention, secret hash, created at,
// expires at, then record field/value pairs.
const createScript = deactivateFn + `
local prefix = ARGV[1]
local id = ARGV[2]
local max = tonumber(ARGV[3])
local now = tonumber(ARGV[4])
local retention = tonumber(ARGV[5])
local secret_hash = ARGV[6]
local created_at = tonumber(ARGV[7])
local expires_at = tonumber(ARGV[8])

local live = {}
for _, member in ipairs(redis.call("ZRANGE", KEYS[1], 0, -1)) do
  local vals = redis.call("HMGET", prefix .. ":rec:" .. member, "active", "expires_at")
  if vals[1] ~= "1" then
    redis.call("ZREM", KEYS[1], member)
  elseif tonumber(vals[2]) <= now then
    deactivate(prefix, member, now)
  else
    table.insert(live, member)
  end
end

local evicted = {}
while max > 0 and #live >= max do
  local victim = table.remove(live, 1)
  deactivate(prefix, victim, now)
  table.insert(evicted, victim)
end

local fields = {}
for i = 9, #ARGV do
  table.insert(fields, ARGV[i])
end
redis.call("HSET", KEYS[3], unpack(fields))
redis.call("PEXPIREAT", KEYS[3], expires_at + retention)
redis.call("SET", KEYS[4], id)
redis.call("PEXPIREAT", KEYS[4], expires_at + retention)
redis.call("ZADD", KEYS[1], created_at, id)
redis.call("ZADD", KEYS[2], expires_at, id)
return evicted
`

// KEYS: presented hash pointer.
// ARGV: prefix, next secret hash, now, presented fingerprint, enforce flag,
// retention.
const rotateScript = deactivateFn + `
local prefix = ARGV[1]
local next_hash = ARGV[2]
local now = tonumber(ARGV[3])
local fingerprint = ARGV[4]
local enforce = ARGV[5] == "1"
local retention = tonumber(ARGV[6])

local id = redis.call("GET", KEYS[1])
if not id then
  return {0}
end

local rk = prefix .. ":rec:" .. id
local vals = redis.call("HMGET", rk, "active", "expires_at", "fingerprint")
if vals[1] ~= "1" then
  redis.call("DEL", KEYS[1])
  return {0}
end
if tonumber(vals[2]) <= now then
  deactivate(prefix, id, now)
  return {1, id}
end
if enforce and vals[3] ~= fingerprint then
  deactivate(prefix, id, now)
  return {2, id}
end

redis.call("DEL", KEYS[1])
redis.call("HSET", rk, "secret_hash", next_hash, "last_used_at", now)
local next_key = prefix .. ":hash:" .. next_hash
redis.call("SET", next_key, id)
redis.call("PEXPIREAT", next_key, tonumber(vals[2]) + retention)
return {3, redis.call("HGETALL", rk)}
`

// KEYS: hash pointer. ARGV: prefix, now.
// Returns the session id of the retired record, or an empty string.
const revokeByHashScript = deactivateFn + `
local id = redis.call("GET", KEYS[1])
if not id then
  return ""
end
deactivate(ARGV[1], id, ARGV[2])
return redis.call("HGET", ARGV[1] .. ":rec:" .. id, "session_id") or ""
`

// ARGV: prefix, id, now.
const revokeByIDScript = deactivateFn + `
return deactivate(ARGV[1], ARGV[2], ARGV[3])
`

// KEYS: user index. ARGV: prefix, now.
const revokeUserScript = deactivateFn + `
local n = 0
for _, member in ipairs(redis.call("ZRANGE", KEYS[1], 0, -1)) do
  n = n + deactivate(ARGV[1], member, ARGV[2])
end
redis.call("DEL", KEYS[1])
return n
`

// KEYS: expiry index. ARGV: prefix, now, limit.
const sweepScript = deactivateFn + `
local ids = redis.call("ZRANGEBYSCORE", KEYS[1], "-inf", ARGV[2], "LIMIT", 0, tonumber(ARGV[3]))
local n = 0
for _, id in ipairs(ids) do
  local removed = deactivate(ARGV[1], id, ARGV[2])
  if removed == 0 then
    redis.call("ZREM", KEYS[1], id)
  end
  n = n + removed
end
return n
`

var (
	createLua       = redis.NewScript(createScript)
	rotateLua       = redis.NewScript(rotateScript)
	revokeByHashLua = redis.NewScript(revokeByHashScript)
	revokeByIDLua   = redis.NewScript(revokeByIDScript)
	revokeUserLua   = redis.NewScript(revokeUserScript)
	sweepExpiredLua = redis.NewScript(sweepScript)
)
