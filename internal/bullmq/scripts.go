package bullmq

import "github.com/redis/go-redis/v9"

// Scores are formatted with %.0f so large integers reach Redis without an exponent.

// addJobScript creates the job hash and places the id in its starting structure.
// KEYS: meta, id, wait, paused, delayed, prioritized, pc
// ARGV: base, jobId, name, data, opts, timestamp, delay, priority
// Returns {1, jobId} on success or {0, jobId} when the id already exists.
var addJobScript = redis.NewScript(`
local base = ARGV[1]
local jobId = ARGV[2]
if jobId == "" then
    jobId = tostring(redis.call("INCR", KEYS[2]))
end

local jobKey = base .. ":" .. jobId
if redis.call("EXISTS", jobKey) == 1 then
    return {0, jobId}
end

local timestamp = tonumber(ARGV[6])
local delay = tonumber(ARGV[7])
local priority = tonumber(ARGV[8])

redis.call("HSET", jobKey,
    "name", ARGV[3],
    "data", ARGV[4],
    "opts", ARGV[5],
    "timestamp", ARGV[6],
    "delay", ARGV[7],
    "priority", ARGV[8],
    "atm", "0")
redis.call("HSETNX", KEYS[1], "opts.maxLenEvents", "10000")

if delay > 0 then
    local seq = (tonumber(jobId) or 0) % 4096
    redis.call("ZADD", KEYS[5], string.format("%.0f", (timestamp + delay) * 4096 + seq), jobId)
elseif priority > 0 then
    local counter = redis.call("INCR", KEYS[7])
    redis.call("ZADD", KEYS[6], string.format("%.0f", priority * 4294967296 + counter), jobId)
elseif redis.call("HEXISTS", KEYS[1], "paused") == 1 then
    redis.call("LPUSH", KEYS[4], jobId)
else
    redis.call("LPUSH", KEYS[3], jobId)
end

return {1, jobId}
`)

// pauseScript moves waiting ids between the wait and paused lists and toggles meta.paused.
// KEYS: wait, paused, meta
// ARGV: "pause" or "resume"
var pauseScript = redis.NewScript(`
local src, dst = KEYS[1], KEYS[2]
if ARGV[1] ~= "pause" then
    src, dst = KEYS[2], KEYS[1]
end

if redis.call("EXISTS", src) == 1 then
    if redis.call("EXISTS", dst) == 0 then
        redis.call("RENAME", src, dst)
    else
        while redis.call("RPOPLPUSH", src, dst) do end
    end
end

if ARGV[1] == "pause" then
    redis.call("HSET", KEYS[3], "paused", "1")
else
    redis.call("HDEL", KEYS[3], "paused")
end
return 1
`)

// retryScript moves a failed job back to the waiting structures.
// KEYS: job, lock, failed, wait, paused, meta, prioritized, pc
// ARGV: jobId
// Returns 0 on success, -1 missing, -2 locked, -3 not failed.
var retryScript = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 0 then
    return -1
end
if redis.call("EXISTS", KEYS[2]) == 1 then
    return -2
end
if redis.call("ZREM", KEYS[3], ARGV[1]) == 0 then
    return -3
end

redis.call("HDEL", KEYS[1], "finishedOn", "processedOn", "failedReason", "returnvalue")

local priority = tonumber(redis.call("HGET", KEYS[1], "priority")) or 0
if priority > 0 then
    local counter = redis.call("INCR", KEYS[8])
    redis.call("ZADD", KEYS[7], string.format("%.0f", priority * 4294967296 + counter), ARGV[1])
elseif redis.call("HEXISTS", KEYS[6], "paused") == 1 then
    redis.call("LPUSH", KEYS[5], ARGV[1])
else
    redis.call("LPUSH", KEYS[4], ARGV[1])
end
return 0
`)

// promoteScript moves a delayed job to the front of the line.
// KEYS: job, delayed, wait, paused, meta, prioritized, pc
// ARGV: jobId
// Returns 0 on success, -1 missing, -3 not delayed.
var promoteScript = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 0 then
    return -1
end
if redis.call("ZREM", KEYS[2], ARGV[1]) == 0 then
    return -3
end

redis.call("HSET", KEYS[1], "delay", "0")

local priority = tonumber(redis.call("HGET", KEYS[1], "priority")) or 0
if priority > 0 then
    local counter = redis.call("INCR", KEYS[7])
    redis.call("ZADD", KEYS[6], string.format("%.0f", priority * 4294967296 + counter), ARGV[1])
elseif redis.call("HEXISTS", KEYS[5], "paused") == 1 then
    redis.call("LPUSH", KEYS[4], ARGV[1])
else
    redis.call("LPUSH", KEYS[3], ARGV[1])
end
return 0
`)

// discardScript flags a job so workers stop retrying it.
// KEYS: job
// Returns 0 on success, -1 missing.
var discardScript = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 0 then
    return -1
end
redis.call("HSET", KEYS[1], "discarded", "1")
return 0
`)

// removeJobScript deletes a job, its children, and every reference to it.
// ARGV: base, jobId
// Returns the number of removed jobs, -1 missing, -2 locked.
var removeJobScript = redis.NewScript(`
local lists = {"wait", "active", "paused"}
local sets = {"delayed", "prioritized", "waiting-children", "completed", "failed"}

local function splitKey(jobKey)
    return string.match(jobKey, "^(.*):([^:]+)$")
end

local removeJob
removeJob = function(base, jobId)
    local jobKey = base .. ":" .. jobId
    if redis.call("EXISTS", jobKey .. ":lock") == 1 then
        return 0
    end

    local removed = 1
    local children = redis.call("SMEMBERS", jobKey .. ":dependencies")
    for _, childKey in ipairs(redis.call("HKEYS", jobKey .. ":processed")) do
        children[#children + 1] = childKey
    end
    for _, childKey in ipairs(children) do
        local childBase, childId = splitKey(childKey)
        if childBase and redis.call("EXISTS", childKey) == 1 then
            removed = removed + removeJob(childBase, childId)
        end
    end

    local parentKey = redis.call("HGET", jobKey, "parentKey")
    if parentKey then
        redis.call("SREM", parentKey .. ":dependencies", jobKey)
        redis.call("HDEL", parentKey .. ":processed", jobKey)
    end

    for _, name in ipairs(lists) do
        redis.call("LREM", base .. ":" .. name, 0, jobId)
    end
    for _, name in ipairs(sets) do
        redis.call("ZREM", base .. ":" .. name, jobId)
    end

    redis.call("DEL", jobKey, jobKey .. ":logs", jobKey .. ":dependencies", jobKey .. ":processed")
    return removed
end

local rootKey = ARGV[1] .. ":" .. ARGV[2]
if redis.call("EXISTS", rootKey) == 0 then
    return -1
end
if redis.call("EXISTS", rootKey .. ":lock") == 1 then
    return -2
end
return removeJob(ARGV[1], ARGV[2])
`)

// cleanScript removes finished-before-cutoff jobs from one structure.
// ARGV: base, key suffix, "1" when the structure is a list, cutoff ms, limit, timestamp field
// Returns the removed job ids.
var cleanScript = redis.NewScript(`
local base = ARGV[1]
local key = base .. ":" .. ARGV[2]
local isList = ARGV[3] == "1"
local cutoff = tonumber(ARGV[4])
local limit = tonumber(ARGV[5])
local field = ARGV[6]

local ids
if isList then
    ids = redis.call("LRANGE", key, 0, -1)
else
    ids = redis.call("ZRANGE", key, 0, -1)
end

local removed = {}
for _, jobId in ipairs(ids) do
    if limit > 0 and #removed >= limit then
        break
    end
    local jobKey = base .. ":" .. jobId
    if redis.call("EXISTS", jobKey .. ":lock") == 0 then
        local ts = tonumber(redis.call("HGET", jobKey, field)) or tonumber(redis.call("HGET", jobKey, "timestamp")) or 0
        if ts <= cutoff then
            if isList then
                redis.call("LREM", key, 0, jobId)
            else
                redis.call("ZREM", key, jobId)
            end
            redis.call("DEL", jobKey, jobKey .. ":logs")
            removed[#removed + 1] = jobId
        end
    end
end
return removed
`)

// drainScript deletes every waiting job, and delayed ones when ARGV[2] is "1".
// KEYS: wait, paused, prioritized, delayed, pc
// ARGV: base, delayed flag
// Returns the number of removed jobs.
var drainScript = redis.NewScript(`
local base = ARGV[1]
local count = 0

local function drain(key, isList)
    local ids
    if isList then
        ids = redis.call("LRANGE", key, 0, -1)
    else
        ids = redis.call("ZRANGE", key, 0, -1)
    end
    for _, jobId in ipairs(ids) do
        local jobKey = base .. ":" .. jobId
        redis.call("DEL", jobKey, jobKey .. ":logs")
    end
    redis.call("DEL", key)
    count = count + #ids
end

drain(KEYS[1], true)
drain(KEYS[2], true)
drain(KEYS[3], false)
redis.call("DEL", KEYS[5])
if ARGV[2] == "1" then
    drain(KEYS[4], false)
end
return count
`)
