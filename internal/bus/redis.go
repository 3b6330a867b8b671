package bus

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"chat-relay/internal/config"
	"chat-relay/pkg/logger"
)

// RedisBus implements Bus over a single Redis pub/sub channel. The publish
// and subscribe sides hold separate connections, both created once at
// startup with lifecycle tied to the relay instance.
type RedisBus struct {
	client  *redis.Client
	channel string
}

func NewRedisBus(cfg config.RedisConfig, channel string) *RedisBus {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return &RedisBus{client: client, channel: channel}
}

// Ping verifies the Redis connection is reachable.
func (b *RedisBus) Ping(ctx context.Context) error {
	return b.client.Ping(ctx).Err()
}

func (b *RedisBus) Publish(ctx context.Context, payload []byte) error {
	return b.client.Publish(ctx, b.channel, payload).Err()
}

// Subscribe starts the receive loop in its own goroutine. Receive errors are
// logged and retried after a short pause; a corrupt or unexpected message
// never terminates the subscription.
func (b *RedisBus) Subscribe(ctx context.Context, handler Handler) error {
	sub := b.client.Subscribe(ctx, b.channel)

	// Force the SUBSCRIBE round trip so a dead Redis surfaces here instead
	// of inside the receive loop.
	if _, err := sub.Receive(ctx); err != nil {
		sub.Close()
		return err
	}

	go func() {
		defer sub.Close()
		for {
			msg, err := sub.ReceiveMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				logger.Error("Bus receive error on %q: %v", b.channel, err)
				time.Sleep(time.Second)
				continue
			}
			handler([]byte(msg.Payload))
		}
	}()

	return nil
}

func (b *RedisBus) Close() error {
	return b.client.Close()
}
