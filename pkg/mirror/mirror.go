// Package mirror republishes stored log records to external subscribers.
package mirror

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultChannel is the pub/sub channel records are published on
const DefaultChannel = "sanitycheck:debug-logs"

// ErrClosed is returned by Publish after Close
var ErrClosed = errors.New("mirror is closed")

// Publisher receives every record the sink appends
type Publisher interface {
	Publish(ctx context.Context, record []byte) error
	Close() error
}

// Nop discards records
type Nop struct{}

// Publish implements Publisher
func (Nop) Publish(context.Context, []byte) error { return nil }

// Close implements Publisher
func (Nop) Close() error { return nil }

// RedisOptions configures the Redis publisher
type RedisOptions struct {
	// URL is the Redis connection URL (e.g., redis://localhost:6379/0)
	URL string

	// Channel records are published to
	Channel string

	// ConnectTimeout bounds the startup ping
	ConnectTimeout time.Duration
}

// Redis publishes records to a Redis pub/sub channel
type Redis struct {
	client    *redis.Client
	channel   string
	closed    atomic.Bool
	published atomic.Int64
}

// NewRedis connects to Redis and verifies the connection
func NewRedis(opts RedisOptions) (*Redis, error) {
	if opts.URL == "" {
		return nil, errors.New("redis URL is required")
	}
	if opts.Channel == "" {
		opts.Channel = DefaultChannel
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = 5 * time.Second
	}

	redisOpts, err := redis.ParseURL(opts.URL)
	if err != nil {
		return nil, err
	}
	redisOpts.DialTimeout = opts.ConnectTimeout

	client := redis.NewClient(redisOpts)

	ctx, cancel := context.WithTimeout(context.Background(), opts.ConnectTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}

	return &Redis{client: client, channel: opts.Channel}, nil
}

// Channel returns the channel records are published to
func (r *Redis) Channel() string {
	return r.channel
}

// Published returns the number of records published so far
func (r *Redis) Published() int64 {
	return r.published.Load()
}

// Publish sends record to the channel
func (r *Redis) Publish(ctx context.Context, record []byte) error {
	if r.closed.Load() {
		return ErrClosed
	}
	if err := r.client.Publish(ctx, r.channel, record).Err(); err != nil {
		return err
	}
	r.published.Add(1)
	return nil
}

// Subscribe returns a subscription to the mirror channel
func (r *Redis) Subscribe(ctx context.Context) *redis.PubSub {
	return r.client.Subscribe(ctx, r.channel)
}

// Close closes the Redis connection
func (r *Redis) Close() error {
	if r.closed.Swap(true) {
		return nil
	}
	return r.client.Close()
}
