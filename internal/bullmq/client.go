// Package bullmq provides a Redis-backed client for BullMQ queues and job records.
package bullmq

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/redis/go-redis/v9/logging"
)

func init() {
	// Disable all Redis logging globally using the built-in VoidLogger
	redis.SetLogger(&logging.VoidLogger{})
}

// DefaultPrefix is the key prefix BullMQ uses when none is configured.
const DefaultPrefix = "bull"

const keyScanCount int64 = 500

// Options tunes the Redis connection used by the client.
type Options struct {
	Prefix       string
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	PoolSize     int
	Hooks        []redis.Hook
}

// Client is a BullMQ API client bound to one Redis connection and key prefix.
type Client struct {
	redis           *redis.Client
	prefix          string
	displayRedisURL string
}

// NewClient creates a new BullMQ client configured from a Redis URL.
func NewClient(redisURL string, opts Options) (*Client, error) {
	if redisURL == "" {
		redisURL = "redis://localhost:6379/0"
	}

	redisOpts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	if opts.DialTimeout > 0 {
		redisOpts.DialTimeout = opts.DialTimeout
	}
	if opts.ReadTimeout > 0 {
		redisOpts.ReadTimeout = opts.ReadTimeout
	}
	if opts.WriteTimeout > 0 {
		redisOpts.WriteTimeout = opts.WriteTimeout
	}
	if opts.PoolSize > 0 {
		redisOpts.PoolSize = opts.PoolSize
	}

	rdb := redis.NewClient(redisOpts)
	for _, hook := range opts.Hooks {
		rdb.AddHook(hook)
	}

	return newClient(rdb, opts.Prefix, sanitizeRedisURL(redisURL)), nil
}

func newClient(rdb *redis.Client, prefix, displayURL string) *Client {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Client{
		redis:           rdb,
		prefix:          prefix,
		displayRedisURL: displayURL,
	}
}

// Prefix returns the configured BullMQ key prefix.
func (c *Client) Prefix() string {
	return c.prefix
}

// DisplayRedisURL returns a sanitized URL safe for display.
func (c *Client) DisplayRedisURL() string {
	return c.displayRedisURL
}

func sanitizeRedisURL(redisURL string) string {
	if redisURL == "" {
		return ""
	}
	parsed, err := url.Parse(redisURL)
	if err != nil {
		return redisURL
	}
	if parsed.User != nil {
		username := parsed.User.Username()
		if username == "" {
			parsed.User = nil
		} else {
			parsed.User = url.User(username)
		}
	}
	return parsed.String()
}

// Close closes the Redis connection.
func (c *Client) Close() error {
	return c.redis.Close()
}

// Ping round-trips a PING and reports how long it took.
func (c *Client) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := c.redis.Ping(ctx).Err(); err != nil {
		return 0, err
	}
	return time.Since(start), nil
}

// Info returns the raw Redis INFO blob.
func (c *Client) Info(ctx context.Context) (string, error) {
	raw, err := c.redis.Info(ctx).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return "", err
	}
	return raw, nil
}

// ScanKeys returns every key matching pattern using an incremental SCAN,
// so large shared key-spaces are never blocked by KEYS.
func (c *Client) ScanKeys(ctx context.Context, pattern string) ([]string, error) {
	var cursor uint64
	var keys []string
	for {
		batch, nextCursor, err := c.redis.Scan(ctx, cursor, pattern, keyScanCount).Result()
		if err != nil {
			return nil, err
		}
		keys = append(keys, batch...)

		cursor = nextCursor
		if cursor == 0 {
			break
		}
	}
	return keys, nil
}
