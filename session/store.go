package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/shopauth/internal/storecall"
)

var (
	// ErrSessionNotFound is returned for missing and expired sessions.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionRevoked is returned when a revoked session is presented for rotation.
	ErrSessionRevoked = errors.New("session revoked")
	// ErrRefreshHashMismatch means the presented refresh secret is not the
	// current one. The session has been revoked by the same call.
	ErrRefreshHashMismatch = errors.New("refresh hash mismatch")
	// ErrSessionExists is returned by Create on a session id collision.
	ErrSessionExists = errors.New("session already exists")
	// ErrSessionCorrupt is returned when a stored blob cannot be decoded.
	ErrSessionCorrupt = errors.New("session corrupt")
	// ErrRedisUnavailable is returned when Redis could not be reached.
	ErrRedisUnavailable = storecall.ErrUnavailable
)

const (
	rotateStatusNotFound    int64 = 0
	rotateStatusExpired     int64 = 1
	rotateStatusMismatch    int64 = 2
	rotateStatusRotated     int64 = 3
	rotateStatusInvalidBlob int64 = 4
	rotateStatusRevoked     int64 = 5
)

// Shared helpers. Offsets are 1-based views of the header in encoder.go.
const luaHelpers = `
local function read_be(s, i, n)
  local v = 0
  for k = 0, n - 1 do
    local b = string.byte(s, i + k)
    if not b then
      return nil
    end
    v = v * 256 + b
  end
  return v
end

local function be32(v)
  return string.char(math.floor(v / 16777216) % 256, math.floor(v / 65536) % 256, math.floor(v / 256) % 256, v % 256)
end

local function valid(data)
  return data and #data >= 55 and string.byte(data, 1) == 1
end

local function user_of(data)
  local n = string.byte(data, 55)
  return string.sub(data, 56, 55 + n)
end

local function is_revoked(data)
  return string.byte(data, 2) % 2 == 1
end

local function set_keep_ttl(key, value)
  local ttl = redis.call("PTTL", key)
  if ttl > 0 then
    redis.call("SET", key, value, "PX", ttl)
  else
    redis.call("SET", key, value)
  end
end

local function mark_revoked(key, data)
  local flags = string.byte(data, 2)
  set_keep_ttl(key, string.sub(data, 1, 1) .. string.char(flags + 1) .. string.sub(data, 3))
end
`

const revokeSessionScript = luaHelpers + `
local data = redis.call("GET", KEYS[1])
if not data then
  return 0
end
if not valid(data) then
  return -1
end
redis.call("SREM", ARGV[1] .. user_of(data), ARGV[2])
if is_revoked(data) then
  return 1
end
mark_revoked(KEYS[1], data)
return 2
`

const revokeAllScript = luaHelpers + `
local ids = redis.call("SMEMBERS", KEYS[1])
local revoked = 0
for _, id in ipairs(ids) do
  if id ~= ARGV[2] then
    local key = ARGV[1] .. id
    local data = redis.call("GET", key)
    if valid(data) and not is_revoked(data) then
      mark_revoked(key, data)
      revoked = revoked + 1
    end
    redis.call("SREM", KEYS[1], id)
  end
end
return revoked
`

const rotateRefreshScript = luaHelpers + `
local session_key = KEYS[1]
local user_prefix = ARGV[1]
local provided_hash = ARGV[2]
local next_hash = ARGV[3]
local now_ms = tonumber(ARGV[4])
local next_expiry = ARGV[5]
local ttl_ms = tonumber(ARGV[6])

local data = redis.call("GET", session_key)
if not data then
  return {0}
end
if not valid(data) then
  return {4}
end
local expires_at = read_be(data, 43, 8)
if not expires_at or expires_at <= now_ms then
  return {1}
end

if string.sub(data, 3, 34) ~= provided_hash then
  if not is_revoked(data) then
    mark_revoked(session_key, data)
    redis.call("SREM", user_prefix .. user_of(data), ARGV[7])
  end
  return {2}
end

if is_revoked(data) then
  return {5}
end

local generation = read_be(data, 51, 4) + 1
local updated = string.sub(data, 1, 2) .. next_hash .. string.sub(data, 35, 42) .. next_expiry .. be32(generation) .. string.sub(data, 55)
redis.call("SET", session_key, updated, "PX", ttl_ms)

local user_key = user_prefix .. user_of(data)
redis.call("SADD", user_key, ARGV[7])
if redis.call("PTTL", user_key) < ttl_ms then
  redis.call("PEXPIRE", user_key, ttl_ms)
end

return {3, updated}
`

var (
	revokeSessionLua = redis.NewScript(revokeSessionScript)
	revokeAllLua     = redis.NewScript(revokeAllScript)
	rotateRefreshLua = redis.NewScript(rotateRefreshScript)
)

// Store is a Redis-backed session store: one string key per session holding
// the encoded blob, and one set per user indexing that user's session ids.
type Store struct {
	redis  redis.UniversalClient
	prefix string
	now    func() time.Time
}

// NewStore creates a session [Store] backed by the given Redis client. prefix
// sets the key namespace (default "as").
func NewStore(redisClient redis.UniversalClient, prefix string) *Store {
	if prefix == "" {
		prefix = "as"
	}
	return &Store{
		redis:  redisClient,
		prefix: prefix,
		now:    time.Now,
	}
}

// SetClock overrides the time source used for expiry checks.
func (s *Store) SetClock(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

func (s *Store) sessionPrefix() string {
	return s.prefix + ":s:"
}

func (s *Store) userPrefix() string {
	return s.prefix + ":u:"
}

func (s *Store) key(sessionID string) string {
	return s.sessionPrefix() + sessionID
}

func (s *Store) userKey(userID string) string {
	return s.userPrefix() + userID
}

// Create persists a new [Session] with the given TTL.
//
//	Performance: one MULTI/EXEC (SET NX + SADD + PEXPIRE).
func (s *Store) Create(ctx context.Context, sess *Session, ttl time.Duration) error {
	if sess.SessionID == "" {
		return errors.New("session id is required")
	}
	if ttl <= 0 {
		return errors.New("session ttl must be positive")
	}
	data, err := Encode(sess)
	if err != nil {
		return err
	}

	userKey := s.userKey(sess.UserID)
	var created *redis.BoolCmd
	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		created = pipe.SetNX(ctx, s.key(sess.SessionID), data, ttl)
		pipe.SAdd(ctx, userKey, sess.SessionID)
		pipe.PExpire(ctx, userKey, ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if !created.Val() {
		return ErrSessionExists
	}
	return nil
}

// Get loads a session. Revoked sessions are returned with Revoked set;
// missing and expired ones yield [ErrSessionNotFound].
//
//	Performance: 1 Redis GET.
func (s *Store) Get(ctx context.Context, sessionID string) (*Session, error) {
	data, err := s.redis.Get(ctx, s.key(sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	sess, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSessionCorrupt, err)
	}
	sess.SessionID = sessionID
	if sess.ExpiredAt(s.now()) {
		return nil, ErrSessionNotFound
	}
	return sess, nil
}

// Revoke marks a session revoked and keeps it until its TTL runs out. Missing
// and already revoked sessions are not an error. The boolean reports whether
// this call changed the session.
//
//	Performance: 1 Lua script.
func (s *Store) Revoke(ctx context.Context, sessionID string) (bool, error) {
	res, err := revokeSessionLua.Run(ctx, s.redis, []string{s.key(sessionID)}, s.userPrefix(), sessionID).Int64()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if res < 0 {
		return false, ErrSessionCorrupt
	}
	return res == 2, nil
}

// RevokeAll revokes every indexed session of userID except exceptSessionID
// (which may be empty) and returns how many were revoked by this call.
//
//	Performance: 1 Lua script, O(sessions of the user).
func (s *Store) RevokeAll(ctx context.Context, userID, exceptSessionID string) (int, error) {
	n, err := revokeAllLua.Run(ctx, s.redis, []string{s.userKey(userID)}, s.sessionPrefix(), exceptSessionID).Int()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return n, nil
}

// ListActive returns the user's sessions that are neither revoked nor
// expired, newest first. Index members whose session is gone are pruned.
//
//	Performance: SMEMBERS + one pipelined GET batch (+ SREM when pruning).
func (s *Store) ListActive(ctx context.Context, userID string) ([]*Session, error) {
	userKey := s.userKey(userID)
	ids, err := s.redis.SMembers(ctx, userKey).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if len(ids) == 0 {
		return []*Session{}, nil
	}

	pipe := s.redis.Pipeline()
	cmds := make([]*redis.StringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.Get(ctx, s.key(id))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	now := s.now()
	out := make([]*Session, 0, len(ids))
	stale := make([]interface{}, 0)
	for i, cmd := range cmds {
		data, err := cmd.Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				stale = append(stale, ids[i])
				continue
			}
			return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
		sess, err := Decode(data)
		if err != nil || sess.UserID != userID || !sess.Active(now) {
			stale = append(stale, ids[i])
			continue
		}
		sess.SessionID = ids[i]
		out = append(out, sess)
	}

	if len(stale) > 0 {
		if err := s.redis.SRem(ctx, userKey, stale...).Err(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt != out[j].CreatedAt {
			return out[i].CreatedAt > out[j].CreatedAt
		}
		return out[i].SessionID < out[j].SessionID
	})
	return out, nil
}

// Rotate atomically replaces the session's refresh hash when presented is the
// current one, extending the session to nextExpiry. Any other hash is a replay:
// the session is revoked in the same script and [ErrRefreshHashMismatch] is
// returned, also when it was already revoked. The current hash of a revoked
// session yields [ErrSessionRevoked].
//
//	Performance: 1 Lua script.
func (s *Store) Rotate(ctx context.Context, sessionID string, presented, next [32]byte, nextExpiry time.Time) (*Session, error) {
	now := s.now()
	ttl := nextExpiry.Sub(now)
	if ttl <= 0 {
		return nil, errors.New("rotation expiry must be in the future")
	}

	res, err := rotateRefreshLua.Run(
		ctx,
		s.redis,
		[]string{s.key(sessionID)},
		s.userPrefix(),
		string(presented[:]),
		string(next[:]),
		now.UnixMilli(),
		string(encodeExpiry(nextExpiry.UnixMilli())),
		ttl.Milliseconds(),
		sessionID,
	).Slice()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if len(res) == 0 {
		return nil, fmt.Errorf("%w: empty rotate reply", ErrRedisUnavailable)
	}

	status, ok := res[0].(int64)
	if !ok {
		return nil, fmt.Errorf("%w: unexpected rotate status", ErrRedisUnavailable)
	}

	switch status {
	case rotateStatusRotated:
		if len(res) < 2 {
			return nil, ErrSessionCorrupt
		}
		blob, ok := res[1].(string)
		if !ok {
			return nil, ErrSessionCorrupt
		}
		sess, err := Decode([]byte(blob))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrSessionCorrupt, err)
		}
		sess.SessionID = sessionID
		return sess, nil
	case rotateStatusNotFound, rotateStatusExpired:
		return nil, ErrSessionNotFound
	case rotateStatusRevoked:
		return nil, ErrSessionRevoked
	case rotateStatusMismatch:
		return nil, ErrRefreshHashMismatch
	case rotateStatusInvalidBlob:
		return nil, ErrSessionCorrupt
	default:
		return nil, fmt.Errorf("%w: unknown rotate status %d", ErrRedisUnavailable, status)
	}
}

// Ping checks Redis connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}
