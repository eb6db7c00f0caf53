package realtime

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Requires a running Redis; set REDIS_ADDR to enable.
func TestRedisDialer_ReceivesPublishedMessages(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}

	channel := "ideaboard:test:" + t.Name()
	d := NewRedisDialer(addr, channel)
	defer d.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, err := d.Dial(ctx)
	require.NoError(t, err)
	defer conn.Close()

	pub := redis.NewClient(&redis.Options{Addr: addr})
	defer pub.Close()
	require.NoError(t, pub.Publish(ctx, channel, `{"type":"deleted","id":"n1","sourceVersion":2}`).Err())

	data, err := conn.Read(ctx)
	require.NoError(t, err)
	ev, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, "n1", ev.ID)
}
