package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// receiveScript requeues expired in-flight tasks, then moves up to ARGV[3]
// ready tasks into the in-flight set with the visibility deadline.
var receiveScript = redis.NewScript(`
local ready = KEYS[1]
local inflight = KEYS[2]
local now = tonumber(ARGV[1])
local deadline = tonumber(ARGV[2])
local n = tonumber(ARGV[3])
local expired = redis.call("ZRANGEBYSCORE", inflight, "-inf", now)
for _, m in ipairs(expired) do
	redis.call("ZREM", inflight, m)
	redis.call("ZADD", ready, now, m)
end
local items = redis.call("ZRANGEBYSCORE", ready, "-inf", now, "LIMIT", 0, n)
for _, m in ipairs(items) do
	redis.call("ZREM", ready, m)
	redis.call("ZADD", inflight, deadline, m)
end
return items
`)

// RedisBroker keeps tasks in a sorted set scored by their ready time.
// Received tasks move to an in-flight set and return to the ready set if
// not acknowledged within the visibility timeout.
type RedisBroker struct {
	client     *redis.Client
	readyKey   string
	flightKey  string
	visibility time.Duration
	poll       time.Duration
	now        func() time.Time
}

// NewRedisBroker creates a broker under the given key prefix.
func NewRedisBroker(client *redis.Client, name string) *RedisBroker {
	return &RedisBroker{
		client:     client,
		readyKey:   name + ":ready",
		flightKey:  name + ":inflight",
		visibility: 5 * time.Minute,
		poll:       time.Second,
		now:        time.Now,
	}
}

// SetVisibility sets how long a received task stays hidden before it is
// redelivered.
func (b *RedisBroker) SetVisibility(d time.Duration) { b.visibility = d }

// SetPollInterval sets how long Receive waits when nothing is ready.
func (b *RedisBroker) SetPollInterval(d time.Duration) { b.poll = d }

// Enqueue schedules t to become ready after delay.
func (b *RedisBroker) Enqueue(ctx context.Context, t Task, delay time.Duration) error {
	body, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("marshal task: %w", err)
	}
	score := float64(b.now().Add(delay).UnixMilli())
	if err := b.client.ZAdd(ctx, b.readyKey, redis.Z{Score: score, Member: string(body)}).Err(); err != nil {
		return fmt.Errorf("enqueue task: %w", err)
	}
	return nil
}

// Receive returns ready tasks, waiting one poll interval if none are ready.
func (b *RedisBroker) Receive(ctx context.Context, max int) ([]Delivery, error) {
	if max <= 0 {
		max = 1
	}
	now := b.now()
	res, err := receiveScript.Run(ctx, b.client, []string{b.readyKey, b.flightKey},
		now.UnixMilli(), now.Add(b.visibility).UnixMilli(), max).StringSlice()
	if err != nil && err != redis.Nil {
		return nil, fmt.Errorf("receive tasks: %w", err)
	}

	if len(res) == 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(b.poll):
		}
		return nil, nil
	}

	out := make([]Delivery, 0, len(res))
	for _, member := range res {
		member := member
		var t Task
		if err := json.Unmarshal([]byte(member), &t); err != nil {
			b.client.ZRem(ctx, b.flightKey, member)
			continue
		}
		out = append(out, Delivery{
			Task: t,
			Ack: func(ctx context.Context) error {
				return b.client.ZRem(ctx, b.flightKey, member).Err()
			},
		})
	}
	return out, nil
}

// Pending returns the number of tasks waiting or in flight.
func (b *RedisBroker) Pending(ctx context.Context) (ready, inflight int64, err error) {
	if ready, err = b.client.ZCard(ctx, b.readyKey).Result(); err != nil {
		return 0, 0, err
	}
	inflight, err = b.client.ZCard(ctx, b.flightKey).Result()
	return ready, inflight, err
}

// Close is a no-op; the Redis client is owned by the caller.
func (b *RedisBroker) Close() error { return nil }
