package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// incrWindowScript atomically increments the counter at a fixed-window key,
// setting a 60s TTL only when the key is newly created, and returns the
// post-increment value. This keeps increment-and-read atomic against
// concurrent callers, which a plain INCR+EXPIRE pair would not guarantee.
const incrWindowScript = `
local count = redis.call("INCR", KEYS[1])
if count == 1 then
	redis.call("EXPIRE", KEYS[1], ARGV[1])
end
return count
`

// Distributed is a fixed-window rate limiter backed by Redis through a
// go-redis client.
type Distributed struct {
	client  *redis.Client
	quota   int
	onError func()
}

// NewDistributed creates a Distributed limiter against the given Redis
// address. onError, if non-nil, is invoked whenever the store is
// unreachable, to let the caller record a metric without this package
// depending on the metrics package.
func NewDistributed(addr, password string, db, quotaPerMinute int, onError func()) *Distributed {
	return &Distributed{
		client: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
			DB:       db,
		}),
		quota:   quotaPerMinute,
		onError: onError,
	}
}

// Check increments the client's current-minute window counter and allows
// the request if the resulting count is within quota. On store failure it
// fails open (returns Allow) per this gateway's rate limiting policy.
func (d *Distributed) Check(ctx context.Context, clientID string) (Decision, error) {
	window := time.Now().Unix() / 60
	key := fmt.Sprintf("ratelimit:{%s}:%d", clientID, window)

	result, err := d.client.Eval(ctx, incrWindowScript, []string{key}, 60).Result()
	if err != nil {
		if d.onError != nil {
			d.onError()
		}
		return Allow, nil
	}

	count, ok := result.(int64)
	if !ok {
		if d.onError != nil {
			d.onError()
		}
		return Allow, nil
	}

	if int(count) <= d.quota {
		return Allow, nil
	}
	return Deny, nil
}

// Close releases the underlying Redis client.
func (d *Distributed) Close() error {
	return d.client.Close()
}
