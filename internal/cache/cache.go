package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"
)

const (
	breakerName      = "redis-cache"
	breakerOpenFor   = 30 * time.Second
	breakerTripAfter = 5
)

// Options configures the redis connection behind a Client.
type Options struct {
	Addr     string
	Password string
	DB       int
}

// Client is a best-effort read-through cache. Redis failures are reported as
// misses, and a circuit breaker stops calling redis while it is down.
// A nil *Client is a valid, always-empty cache.
type Client struct {
	rdb     *redis.Client
	breaker *gobreaker.CircuitBreaker
}

// New connects lazily; use Ping to check the server.
func New(opts Options) *Client {
	return &Client{
		rdb: redis.NewClient(&redis.Options{
			Addr:     opts.Addr,
			Password: opts.Password,
			DB:       opts.DB,
		}),
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    breakerName,
			Timeout: breakerOpenFor,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= breakerTripAfter
			},
		}),
	}
}

func (c *Client) disabled() bool {
	return c == nil || c.rdb == nil
}

func (c *Client) call(fn func() (interface{}, error)) (interface{}, error) {
	return c.breaker.Execute(fn)
}

func (c *Client) Ping(ctx context.Context) error {
	if c.disabled() {
		return nil
	}
	return c.rdb.Ping(ctx).Err()
}

func (c *Client) Close() error {
	if c.disabled() {
		return nil
	}
	return c.rdb.Close()
}

// Get returns the cached bytes for key, or nil on a miss. Errors never surface.
func (c *Client) Get(ctx context.Context, key string) ([]byte, error) {
	if c.disabled() {
		return nil, nil
	}
	res, err := c.call(func() (interface{}, error) {
		b, err := c.rdb.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return b, err
	})
	if err != nil {
		return nil, nil
	}
	b, _ := res.([]byte)
	return b, nil
}

// Set stores value under key for ttl. Write failures are dropped.
func (c *Client) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if c.disabled() {
		return nil
	}
	_, _ = c.call(func() (interface{}, error) {
		return nil, c.rdb.Set(ctx, key, value, ttl).Err()
	})
	return nil
}

// Delete evicts key. A stale entry expires on its own if redis is unreachable.
func (c *Client) Delete(ctx context.Context, key string) error {
	if c.disabled() {
		return nil
	}
	_, _ = c.call(func() (interface{}, error) {
		return nil, c.rdb.Del(ctx, key).Err()
	})
	return nil
}
