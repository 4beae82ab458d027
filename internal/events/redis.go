package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"scribeq/internal/config"
)

// RedisPublisher posts events as JSON on a pub/sub channel.
type RedisPublisher struct {
	client  *redis.Client
	channel string
}

func newRedisClient(cfg config.Events) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
}

// NewRedisPublisher connects to Redis and verifies the connection.
func NewRedisPublisher(ctx context.Context, cfg config.Events) (*RedisPublisher, error) {
	client := newRedisClient(cfg)
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", cfg.RedisAddr, err)
	}
	return &RedisPublisher{client: client, channel: cfg.RedisChannel}, nil
}

func (p *RedisPublisher) Publish(ctx context.Context, evt Event) error {
	body, err := json.Marshal(evt)
	if err != nil {
		return publishError("redis", evt, err)
	}
	if err := p.client.Publish(ctx, p.channel, body).Err(); err != nil {
		return publishError("redis", evt, err)
	}
	return nil
}

func (p *RedisPublisher) Close() error {
	return p.client.Close()
}

// RedisSubscriber turns wake-up events on the channel into signals for a
// polling loop.
type RedisSubscriber struct {
	client  *redis.Client
	channel string
}

// NewRedisSubscriber returns a subscriber for cfg's channel. The connection
// is established lazily by Wakeups.
func NewRedisSubscriber(cfg config.Events) *RedisSubscriber {
	return &RedisSubscriber{client: newRedisClient(cfg), channel: cfg.RedisChannel}
}

// Wakeups returns a channel that receives a value whenever an event that
// makes work claimable arrives. Signals coalesce: a pending signal is not
// duplicated. The channel closes when ctx is done.
func (s *RedisSubscriber) Wakeups(ctx context.Context) <-chan struct{} {
	out := make(chan struct{}, 1)
	sub := s.client.Subscribe(ctx, s.channel)
	go func() {
		defer close(out)
		defer sub.Close()
		messages := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-messages:
				if !ok {
					return
				}
				if !shouldWake(msg.Payload) {
					continue
				}
				select {
				case out <- struct{}{}:
				default:
				}
			}
		}
	}()
	return out
}

func (s *RedisSubscriber) Close() error {
	return s.client.Close()
}

func shouldWake(payload string) bool {
	var evt Event
	if err := json.Unmarshal([]byte(payload), &evt); err != nil {
		return false
	}
	return evt.WakesWorkers()
}
