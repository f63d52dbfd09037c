package rate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Policy is the attempt budget for one operation.
type Policy struct {
	// MaxAttempts is the last allowed count within a window.
	MaxAttempts int
	// Window is the fixed counting window, started by the first counted attempt.
	Window time.Duration
	// BlockDuration is how long a key stays blocked once MaxAttempts is exceeded.
	// Allow ignores it.
	BlockDuration time.Duration
}

// Validate reports whether p can be enforced. requireBlock is set for policies
// used with RecordFailure, where MaxAttempts may be zero (block on the first
// failure).
func (p Policy) Validate(requireBlock bool) error {
	if p.MaxAttempts < 0 || (!requireBlock && p.MaxAttempts == 0) {
		return fmt.Errorf("%w: max attempts out of range", ErrInvalidPolicy)
	}
	if p.Window < time.Millisecond {
		return fmt.Errorf("%w: window must be at least 1ms", ErrInvalidPolicy)
	}
	if requireBlock && p.BlockDuration < time.Millisecond {
		return fmt.Errorf("%w: block duration must be at least 1ms", ErrInvalidPolicy)
	}
	return nil
}

// recordFailureLua increments the attempt counter and installs the block flag.
// KEYS[1] = counter key
// KEYS[2] = block key
// ARGV[1] = window (ms)
// ARGV[2] = max attempts
// ARGV[3] = block duration (ms)
//
// Returns {count, blocked}.
var recordFailureLua = redis.NewScript(`
local count = redis.call('INCR', KEYS[1])
if count == 1 or redis.call('PTTL', KEYS[1]) < 0 then
  redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
if count > tonumber(ARGV[2]) then
  redis.call('SET', KEYS[2], '1', 'PX', ARGV[3])
  return {count, 1}
end
return {count, 0}
`)

// countLua increments a counter and sets its TTL when the window is new.
// KEYS[1] = counter key
// ARGV[1] = window (ms)
//
// Returns the post-increment count.
var countLua = redis.NewScript(`
local count = redis.call('INCR', KEYS[1])
if count == 1 or redis.call('PTTL', KEYS[1]) < 0 then
  redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
return count
`)

// Limiter is the windowed-attempt-with-block state machine. It holds no mutable
// state of its own and is safe for concurrent use.
type Limiter struct {
	redis redis.UniversalClient
	keys  KeyBuilder
}

// New creates a Limiter backed by the given Redis client.
func New(redisClient redis.UniversalClient, keys KeyBuilder) *Limiter {
	if keys.prefix == "" {
		keys = NewKeyBuilder(DefaultPrefix, keys.suffixLength)
	}
	return &Limiter{
		redis: redisClient,
		keys:  keys,
	}
}

// Keys returns the key layout in use.
func (l *Limiter) Keys() KeyBuilder {
	return l.keys
}

// IsBlocked reports whether a live block flag exists for k.
func (l *Limiter) IsBlocked(ctx context.Context, k Key) (bool, error) {
	n, err := l.redis.Exists(ctx, l.keys.Blocked(k)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return n > 0, nil
}

// RecordFailure counts one failed attempt for k. It returns true when this attempt
// pushed the count past p.MaxAttempts; the block flag is installed in the same
// atomic step.
func (l *Limiter) RecordFailure(ctx context.Context, k Key, p Policy) (bool, error) {
	if err := p.Validate(true); err != nil {
		return false, err
	}

	res, err := recordFailureLua.Run(ctx, l.redis,
		[]string{l.keys.Counter(k), l.keys.Blocked(k)},
		p.Window.Milliseconds(),
		p.MaxAttempts,
		p.BlockDuration.Milliseconds(),
	).Int64Slice()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if len(res) != 2 {
		return false, fmt.Errorf("%w: unexpected script reply %v", ErrStoreUnavailable, res)
	}

	return res[1] == 1, nil
}

// Reset forgives all prior failures for k by deleting both the counter and the block.
func (l *Limiter) Reset(ctx context.Context, k Key) error {
	if err := l.redis.Del(ctx, l.keys.Counter(k), l.keys.Blocked(k)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// Allow counts one request for k and reports whether it fits within
// maxAttempts for the current window. There is no block phase: the key opens
// again as soon as the window expires.
func (l *Limiter) Allow(ctx context.Context, k Key, maxAttempts int, window time.Duration) (bool, error) {
	if err := (Policy{MaxAttempts: maxAttempts, Window: window}).Validate(false); err != nil {
		return false, err
	}

	count, err := countLua.Run(ctx, l.redis, []string{l.keys.Counter(k)}, window.Milliseconds()).Int64()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	return count <= int64(maxAttempts), nil
}

// Attempts returns the count in the current window for k.
// Missing keys return zero.
func (l *Limiter) Attempts(ctx context.Context, k Key) (int64, error) {
	count, err := l.redis.Get(ctx, l.keys.Counter(k)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if count < 0 {
		return 0, nil
	}
	return count, nil
}

// BlockedFor returns the remaining block time for k, or zero when k is not blocked.
func (l *Limiter) BlockedFor(ctx context.Context, k Key) (time.Duration, error) {
	ttl, err := l.redis.PTTL(ctx, l.keys.Blocked(k)).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if ttl < 0 {
		return 0, nil
	}
	return ttl, nil
}
