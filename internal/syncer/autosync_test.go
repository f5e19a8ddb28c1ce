package syncer

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tutorledger/internal/remote"
)

func TestAutoSyncRunsUntilDisabled(t *testing.T) {
	f := newFixture(t, remote.NewMemory())
	f.seedLocal(t, jan, "Ada")

	var (
		mu      sync.Mutex
		toggles []bool
	)
	a := NewAutoSync(f.c, 10*time.Millisecond, func(userID string, enabled bool) {
		mu.Lock()
		toggles = append(toggles, enabled)
		mu.Unlock()
		f.board.SetAutoSync(userID, enabled)
	})
	defer a.Stop()

	require.True(t, a.Enable(user))
	assert.False(t, a.Enable(user), "already running")
	assert.True(t, a.Enabled(user))

	require.Eventually(t, func() bool {
		rows, _, updates := f.remote.Stats()
		return rows == 1 && updates >= 1
	}, 2*time.Second, 5*time.Millisecond, "timer should sync more than once")
	assert.True(t, f.board.Get(user).AutoSync)

	require.True(t, a.Disable(user))
	assert.False(t, a.Disable(user))
	assert.False(t, a.Enabled(user))
	assert.False(t, f.board.Get(user).AutoSync)

	mu.Lock()
	assert.Equal(t, []bool{true, false}, toggles)
	mu.Unlock()
}

func TestAutoSyncStopWaitsForLoops(t *testing.T) {
	f := newFixture(t, remote.NewMemory())
	a := NewAutoSync(f.c, time.Hour, nil)
	a.Enable("a")
	a.Enable("b")

	stopped := make(chan struct{})
	go func() {
		a.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("Stop did not return")
	}
	assert.False(t, a.Enabled("a"))
	assert.False(t, a.Enabled("b"))
}

func TestAutoSyncDefaultInterval(t *testing.T) {
	a := NewAutoSync(New(nil, nil), 0, nil)
	assert.Equal(t, DefaultInterval, a.Interval())
}

func TestTimerCycleIsDroppedWhileSyncing(t *testing.T) {
	f := newFixture(t, remote.NewMemory())
	f.seedLocal(t, jan, "Ada")
	release := f.remote.GateFetch()
	defer release()

	go f.c.Sync(context.Background(), user, TriggerManual)
	require.Eventually(t, func() bool { return f.c.Syncing(user) }, time.Second, 5*time.Millisecond)

	res := f.c.Sync(context.Background(), user, TriggerTimer)
	assert.Equal(t, OutcomeInProgress, res.Outcome)
	release()
	require.Eventually(t, func() bool { return !f.c.Syncing(user) }, time.Second, 5*time.Millisecond)
}
