package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type statusLog struct {
	mu  sync.Mutex
	got []Status
}

func (l *statusLog) Notify(s Status) {
	l.mu.Lock()
	l.got = append(l.got, s)
	l.mu.Unlock()
}

func (l *statusLog) find(match func(Status) bool) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, s := range l.got {
		if match(s) {
			return true
		}
	}
	return false
}

func newRedisClient(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

// followReady blocks until statuses from other publishers reach l.
func followReady(t *testing.T, other *RedisPublisher, l *statusLog) {
	t.Helper()
	require.Eventually(t, func() bool {
		other.Notify(Status{UserID: "ready", State: StateConnected})
		return l.find(func(s Status) bool { return s.UserID == "ready" })
	}, 2*time.Second, 20*time.Millisecond)
}

func TestRedisPublisherPreservesOrder(t *testing.T) {
	client := newRedisClient(t)
	pub := NewRedisPublisher(client, zerolog.Nop())

	ctx := context.Background()
	sub := client.Subscribe(ctx, pub.Channel("u1"))
	defer sub.Close()
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	const n = 100
	for i := 0; i < n; i++ {
		pub.Notify(Status{UserID: "u1", State: StateSyncing, Text: fmt.Sprint(i)})
		pub.Notify(Status{UserID: "u1", State: StateSynced, Text: fmt.Sprint(i)})
	}
	pub.Close()

	ch := sub.Channel()
	for i := 0; i < 2*n; i++ {
		select {
		case msg := <-ch:
			var s Status
			require.NoError(t, json.Unmarshal([]byte(msg.Payload), &s))
			want := StateSyncing
			if i%2 == 1 {
				want = StateSynced
			}
			require.Equal(t, want, s.State, "message %d", i)
			require.Equal(t, fmt.Sprint(i/2), s.Text)
			assert.Equal(t, pub.Origin(), s.Origin)
		case <-time.After(2 * time.Second):
			t.Fatalf("received %d of %d statuses", i, 2*n)
		}
	}
}

func TestFollowSkipsOwnStatuses(t *testing.T) {
	client := newRedisClient(t)
	api := NewRedisPublisher(client, zerolog.Nop())
	worker := NewRedisPublisher(client, zerolog.Nop())
	defer api.Close()
	defer worker.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	followed := &statusLog{}
	api.Follow(ctx, followed)
	followReady(t, worker, followed)

	raw := client.Subscribe(ctx, api.Channel("u1"))
	defer raw.Close()
	_, err := raw.Receive(ctx)
	require.NoError(t, err)

	api.Notify(Status{UserID: "u1", State: StateSyncing})
	select {
	case <-raw.Channel():
	case <-time.After(2 * time.Second):
		t.Fatal("own status not published")
	}
	worker.Notify(Status{UserID: "u1", State: StateSynced, Text: "from worker"})

	require.Eventually(t, func() bool {
		return followed.find(func(s Status) bool { return s.UserID == "u1" && s.Text == "from worker" })
	}, 2*time.Second, 10*time.Millisecond)
	assert.False(t, followed.find(func(s Status) bool { return s.Origin == api.Origin() }))
}

func TestBoardEndsOnTerminalStateWithFollow(t *testing.T) {
	client := newRedisClient(t)
	board := NewBoard()
	pub := NewRedisPublisher(client, zerolog.Nop())
	other := NewRedisPublisher(client, zerolog.Nop())
	defer other.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	seen := &statusLog{}
	pub.Follow(ctx, Multi{board, seen})
	followReady(t, other, seen)

	local := Multi{board, pub}
	for i := 0; i < 200; i++ {
		now := time.Now()
		local.Notify(Status{UserID: "u1", State: StateSyncing, Tag: StateSyncing.Tag(), At: now})
		local.Notify(Status{UserID: "u1", State: StateSynced, Tag: StateSynced.Tag(), At: now.Add(time.Millisecond)})
	}
	pub.Close()

	// Anything pub sent is delivered to the follower before this marker.
	other.Notify(Status{UserID: "marker", State: StateConnected})
	require.Eventually(t, func() bool {
		return seen.find(func(s Status) bool { return s.UserID == "marker" })
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, StateSynced, board.Get("u1").State)
}

func TestBoardIgnoresOlderStatus(t *testing.T) {
	b := NewBoard()
	now := time.Now()
	b.Notify(Status{UserID: "u1", State: StateSynced, At: now})
	b.Notify(Status{UserID: "u1", State: StateSyncing, At: now.Add(-time.Second)})
	assert.Equal(t, StateSynced, b.Get("u1").State)

	b.Notify(Status{UserID: "u1", State: StateError, At: now.Add(time.Second)})
	assert.Equal(t, StateError, b.Get("u1").State)
}

func TestPublisherNotifyAfterClose(t *testing.T) {
	pub := NewRedisPublisher(newRedisClient(t), zerolog.Nop())
	pub.Close()
	pub.Close()
	assert.NotPanics(t, func() { pub.Notify(Status{UserID: "u1"}) })
}
