package stores

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/shopauth/internal/storecall"
)

var (
	// ErrResetNotFound covers unknown, expired, and already consumed tokens.
	ErrResetNotFound = errors.New("reset token not found")
	// ErrResetRedisUnavailable is returned when Redis could not be reached.
	ErrResetRedisUnavailable = storecall.ErrUnavailable
)

const saveResetScript = `
local previous = redis.call("GET", KEYS[2])
if previous then
  redis.call("DEL", ARGV[3] .. previous)
end
redis.call("SET", KEYS[1], ARGV[1], "PX", ARGV[2])
redis.call("SET", KEYS[2], ARGV[4], "PX", ARGV[2])
return 1
`

const consumeResetScript = `
local user_id = redis.call("GET", KEYS[1])
if not user_id then
  return false
end
redis.call("DEL", KEYS[1])
local index_key = ARGV[1] .. user_id
if redis.call("GET", index_key) == ARGV[2] then
  redis.call("DEL", index_key)
end
return user_id
`

var (
	saveResetLua    = redis.NewScript(saveResetScript)
	consumeResetLua = redis.NewScript(consumeResetScript)
)

// PasswordResetStore keeps outstanding reset tokens.
type PasswordResetStore struct {
	redis  redis.UniversalClient
	prefix string
}

// NewPasswordResetStore creates a store under prefix (default "pr").
func NewPasswordResetStore(redisClient redis.UniversalClient, prefix string) *PasswordResetStore {
	if prefix == "" {
		prefix = "pr"
	}
	return &PasswordResetStore{
		redis:  redisClient,
		prefix: prefix,
	}
}

func (s *PasswordResetStore) tokenKey(tokenHash string) string {
	return s.prefix + ":t:" + tokenHash
}

func (s *PasswordResetStore) userPrefix() string {
	return s.prefix + ":u:"
}

// Save records tokenHash for userID, replacing any earlier token of that user.
func (s *PasswordResetStore) Save(ctx context.Context, userID, tokenHash string, ttl time.Duration) error {
	if userID == "" || tokenHash == "" || ttl <= 0 {
		return errors.New("reset store: invalid save arguments")
	}

	err := saveResetLua.Run(
		ctx,
		s.redis,
		[]string{s.tokenKey(tokenHash), s.userPrefix() + userID},
		userID,
		ttl.Milliseconds(),
		s.prefix+":t:",
		tokenHash,
	).Err()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrResetRedisUnavailable, err)
	}
	return nil
}

// Consume redeems tokenHash and returns the owning user id.
func (s *PasswordResetStore) Consume(ctx context.Context, tokenHash string) (string, error) {
	userID, err := consumeResetLua.Run(ctx, s.redis, []string{s.tokenKey(tokenHash)}, s.userPrefix(), tokenHash).Text()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrResetNotFound
		}
		return "", fmt.Errorf("%w: %v", ErrResetRedisUnavailable, err)
	}
	return userID, nil
}
