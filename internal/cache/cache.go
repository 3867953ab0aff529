// Package cache holds the read-through cache for derived like counts.
//
// READ-THROUGH, NEVER A COUNTER:
// The cache only ever stores a value that was just counted from the likes
// table. It is never incremented or decremented; every like mutation drops
// the cached entry instead, and the next read recounts.
//
// GENERATIONS:
// A reader that misses, counts, then stores can race a like that commits
// and invalidates in between; storing would bring the old count back. So
// every item has a generation, bumped by Invalidate. Get hands the current
// generation out with a miss, and Set only stores when it has not moved:
//
//	n, ok, gen, _ := c.Get(ctx, id)   // miss, gen=4
//	n = count(ledger)                 // a like commits, Invalidate → gen=5
//	c.Set(ctx, id, n, gen)            // gen 4 != 5: not stored
package cache

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// LikeCounts caches the number of likes per item.
type LikeCounts interface {
	// Get returns the cached count. On a miss ok is false and gen is the
	// item's current generation, to be passed to Set.
	Get(ctx context.Context, itemID string) (count int, ok bool, gen int64, err error)

	// Set stores count unless the item was invalidated after the Get that
	// returned gen.
	Set(ctx context.Context, itemID string, count int, gen int64) error

	Invalidate(ctx context.Context, itemID string) error
}

// DefaultTTL bounds how long a count may be served without a recount, in
// case an invalidation was lost.
const DefaultTTL = 5 * time.Minute

// generationTTL must outlast any Get→Set window by far. An expired
// generation reads as 0 again.
const generationTTL = 24 * time.Hour

const (
	keyPrefix    = "atlas:likes:"
	genKeyPrefix = "atlas:likes:gen:"
)

// setIfCurrent stores ARGV[2] at KEYS[1] for ARGV[3] ms when the generation
// at KEYS[2] (absent = 0) still equals ARGV[1]. Returns 1 when stored.
var setIfCurrent = redis.NewScript(`
local gen = redis.call("GET", KEYS[2])
if not gen then gen = "0" end
if gen ~= ARGV[1] then return 0 end
redis.call("SET", KEYS[1], ARGV[2], "PX", ARGV[3])
return 1
`)

// Redis is a LikeCounts backed by Redis.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
}

var _ LikeCounts = (*Redis)(nil)

// NewRedis wraps an existing client. A non-positive ttl uses DefaultTTL.
func NewRedis(client *redis.Client, ttl time.Duration) *Redis {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Redis{client: client, ttl: ttl}
}

func key(itemID string) string {
	return keyPrefix + itemID
}

func genKey(itemID string) string {
	return genKeyPrefix + itemID
}

// Get reads the cached count and the generation in one MGET.
// An absent or unreadable count is a miss, not an error.
func (r *Redis) Get(ctx context.Context, itemID string) (int, bool, int64, error) {
	vals, err := r.client.MGet(ctx, key(itemID), genKey(itemID)).Result()
	if err != nil {
		return 0, false, 0, fmt.Errorf("cache: getting like count of %s: %w", itemID, err)
	}

	var gen int64
	if s, ok := vals[1].(string); ok {
		// An unparsable generation can never match in Set, so the
		// caller just recounts every time.
		gen, _ = strconv.ParseInt(s, 10, 64)
	}

	s, ok := vals[0].(string)
	if !ok {
		return 0, false, gen, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, false, gen, nil
	}
	return n, true, gen, nil
}

// Set stores a freshly counted value if gen is still current.
func (r *Redis) Set(ctx context.Context, itemID string, count int, gen int64) error {
	err := setIfCurrent.Run(ctx, r.client,
		[]string{key(itemID), genKey(itemID)},
		strconv.FormatInt(gen, 10), count, r.ttl.Milliseconds(),
	).Err()
	if err != nil {
		return fmt.Errorf("cache: setting like count of %s: %w", itemID, err)
	}
	return nil
}

// Invalidate bumps the generation and drops the cached value, atomically.
func (r *Redis) Invalidate(ctx context.Context, itemID string) error {
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, genKey(itemID))
		pipe.Expire(ctx, genKey(itemID), generationTTL)
		pipe.Del(ctx, key(itemID))
		return nil
	})
	if err != nil {
		return fmt.Errorf("cache: invalidating like count of %s: %w", itemID, err)
	}
	return nil
}

// Nop never stores anything; every Get is a miss. Used when no Redis
// address is configured.
type Nop struct{}

var _ LikeCounts = Nop{}

func (Nop) Get(context.Context, string) (int, bool, int64, error) { return 0, false, 0, nil }
func (Nop) Set(context.Context, string, int, int64) error         { return nil }
func (Nop) Invalidate(context.Context, string) error              { return nil }
