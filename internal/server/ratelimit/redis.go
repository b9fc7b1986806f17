package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// The first hit of a window sets its expiry; later hits only increment.
const fixedWindowScript = `
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("PTTL", KEYS[1])
return {current, ttl}
`

// RedisCounter shares fixed windows between replicas through Redis keys
// that expire with their window.
type RedisCounter struct {
	client  redis.UniversalClient
	script  *redis.Script
	prefix  string
	timeout time.Duration
	now     func() time.Time
}

// NewRedisCounter creates a counter over client. Keys are namespaced by prefix.
func NewRedisCounter(client redis.UniversalClient, prefix string) *RedisCounter {
	return &RedisCounter{
		client:  client,
		script:  redis.NewScript(fixedWindowScript),
		prefix:  prefix,
		timeout: 250 * time.Millisecond,
		now:     time.Now,
	}
}

// NewRedisCounterFromURL parses a redis:// URL and creates a counter.
func NewRedisCounterFromURL(url, prefix string) (*RedisCounter, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	return NewRedisCounter(redis.NewClient(opts), prefix), nil
}

// Hit implements Counter.
func (r *RedisCounter) Hit(ctx context.Context, key string, length time.Duration) (int, time.Time, error) {
	ttl := length.Milliseconds()
	if ttl <= 0 {
		ttl = 1
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	res, err := r.script.Run(ctx, r.client, []string{r.prefix + key}, ttl).Int64Slice()
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("failed to run rate limit script: %w", err)
	}
	if len(res) != 2 {
		return 0, time.Time{}, fmt.Errorf("unexpected rate limit script result: %v", res)
	}

	remaining := time.Duration(max(res[1], 0)) * time.Millisecond
	return int(res[0]), r.now().Add(remaining), nil
}

// Close closes the underlying client.
func (r *RedisCounter) Close() error {
	return r.client.Close()
}
