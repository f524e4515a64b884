package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
)

const DefaultRedisChannel = "latera:notifications"

// RedisSink publishes notifications as JSON on a Redis pub/sub channel, for
// presentation layers running in another process.
type RedisSink struct {
	client  redis.UniversalClient
	channel string
}

func NewRedisSink(client redis.UniversalClient, channel string) *RedisSink {
	channel = strings.TrimSpace(channel)
	if channel == "" {
		channel = DefaultRedisChannel
	}
	return &RedisSink{client: client, channel: channel}
}

// DialRedisSink builds a sink with its own client for addr.
func DialRedisSink(addr, password string, db int, channel string) *RedisSink {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return NewRedisSink(client, channel)
}

func (sink *RedisSink) Init(ctx context.Context) error {
	if sink == nil || sink.client == nil {
		return fmt.Errorf("redis client unavailable")
	}
	if _, err := sink.client.Ping(ctx).Result(); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	return nil
}

func (sink *RedisSink) Emit(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}
	if err := sink.client.Publish(ctx, sink.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish notification: %w", err)
	}
	return nil
}

func (sink *RedisSink) Channel() string {
	return sink.channel
}

func (sink *RedisSink) Close() error {
	if sink == nil || sink.client == nil {
		return nil
	}
	return sink.client.Close()
}
