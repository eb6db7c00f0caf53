package realtime

import (
	"context"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
)

// RedisDialer subscribes to a Redis pub/sub channel that carries the same
// messages as the websocket endpoint.
type RedisDialer struct {
	client  *redis.Client
	channel string
}

// NewRedisDialer creates a dialer for channel on the server at addr.
func NewRedisDialer(addr, channel string) *RedisDialer {
	return &RedisDialer{
		client:  redis.NewClient(&redis.Options{Addr: addr}),
		channel: channel,
	}
}

// Dial subscribes and waits for the server to confirm the subscription.
func (d *RedisDialer) Dial(ctx context.Context) (Conn, error) {
	sub := d.client.Subscribe(ctx, d.channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("subscribing to %s: %w", d.channel, err)
	}
	return &redisConn{sub: sub}, nil
}

// Close releases the underlying client.
func (d *RedisDialer) Close() error {
	return d.client.Close()
}

type redisConn struct {
	sub       *redis.PubSub
	closeOnce sync.Once
}

func (c *redisConn) Read(ctx context.Context) ([]byte, error) {
	stop := context.AfterFunc(ctx, func() { _ = c.Close() })
	defer stop()

	msg, err := c.sub.ReceiveMessage(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("receiving push message: %w", err)
	}
	return []byte(msg.Payload), nil
}

func (c *redisConn) Close() error {
	var err error
	c.closeOnce.Do(func() { err = c.sub.Close() })
	return err
}
