package queue

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryPublishConsume(t *testing.T) {
	q := NewInMemory(2)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, q.Publish(ctx, Message{Type: TypeSync, UserID: "u1", Trigger: "sign_in"}))
	msgs, err := q.Consume(ctx)
	require.NoError(t, err)

	select {
	case msg := <-msgs:
		assert.Equal(t, "u1", msg.UserID)
		assert.Equal(t, TypeSync, msg.Type)
		assert.False(t, msg.SentAt.IsZero())
	case <-time.After(time.Second):
		t.Fatal("no message")
	}

	cancel()
	_, open := <-msgs
	assert.False(t, open, "channel closes with the context")
}

func TestInMemoryPublishRespectsContext(t *testing.T) {
	q := NewInMemory(1)
	require.NoError(t, q.Publish(context.Background(), Message{Type: TypeSync, UserID: "u1"}))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, q.Publish(ctx, Message{Type: TypeSync, UserID: "u2"}), context.DeadlineExceeded)
}

func TestRedisQueuePublishConsume(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	q := NewRedisQueue(client, "", zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, q.Publish(ctx, Message{Type: TypeSync, UserID: "u1", Trigger: "sign_in"}))
	require.NoError(t, q.Publish(ctx, Message{Type: TypeSync, UserID: "u2"}))
	_, err := mr.Lpush("tutorledger:sync", "{garbage")
	require.NoError(t, err)
	require.NoError(t, q.Publish(ctx, Message{Type: TypeSync, UserID: "u3"}))

	msgs, err := q.Consume(ctx)
	require.NoError(t, err)

	var got []string
	for len(got) < 3 {
		select {
		case msg := <-msgs:
			got = append(got, msg.UserID)
		case <-time.After(2 * time.Second):
			t.Fatalf("received only %v", got)
		}
	}
	assert.Equal(t, []string{"u1", "u2", "u3"}, got, "FIFO, malformed entries skipped")
}
