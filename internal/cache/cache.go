// Package cache wraps the Redis connection shared by the broadcast fabric,
// sequencer, rate limiter and presence engine, instrumenting every call
// with the same OTel span/histogram pattern the teacher used for its
// presence cache.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

var redisLatency metric.Float64Histogram

type Cache struct {
	client *redis.Client
}

// New creates a new Redis cache connection.
func New(dsn string) (*Cache, error) {
	var err error

	meter := otel.Meter("redis-client")
	redisLatency, err = meter.Float64Histogram("redis.command.latency", metric.WithUnit("ms"))
	if err != nil {
		return nil, fmt.Errorf("failed to create redis.command.latency instrument: %w", err)
	}

	opt, err := redis.ParseURL(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opt)

	ctx, span := otel.Tracer("redis-client").Start(context.Background(), "redis.ping")
	defer span.End()
	if err := client.Ping(ctx).Err(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to ping Redis")
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	span.SetStatus(codes.Ok, "Redis connected successfully")

	return &Cache{client: client}, nil
}

// NewFromClient wraps an already-constructed client, used by tests to
// point the cache at a miniredis instance.
func NewFromClient(client *redis.Client) *Cache {
	return &Cache{client: client}
}

// Client returns the underlying go-redis client. Packages building atomic
// Lua-scripted operations (sequencer, ratelimit, presence) run their
// scripts directly against it; simple callers should prefer the
// instrumented helpers below.
func (c *Cache) Client() *redis.Client { return c.client }

func (c *Cache) Close() error {
	return c.client.Close()
}

// Publish instruments a Publish operation.
func (c *Cache) Publish(ctx context.Context, channel string, message interface{}) error {
	start := time.Now()
	ctx, span := otel.Tracer("redis-client").Start(ctx, "redis.publish", trace.WithAttributes(attribute.String("redis.channel", channel)))
	defer func() {
		redisLatency.Record(ctx, float64(time.Since(start).Milliseconds()), metric.WithAttributes(attribute.String("redis.command", "publish")))
		span.End()
	}()
	err := c.client.Publish(ctx, channel, message).Err()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Redis publish failed")
	}
	return err
}

// Subscribe instruments a Subscribe operation. The caller owns the
// returned PubSub's lifetime and must Close it.
func (c *Cache) Subscribe(ctx context.Context, channels ...string) *redis.PubSub {
	_, span := otel.Tracer("redis-client").Start(ctx, "redis.subscribe", trace.WithAttributes(attribute.StringSlice("redis.channels", channels)))
	defer span.End()
	return c.client.Subscribe(ctx, channels...)
}
