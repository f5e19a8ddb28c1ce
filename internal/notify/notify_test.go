package notify

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBoardPlaceholder(t *testing.T) {
	b := NewBoard()
	st := b.Get("u1")
	assert.Equal(t, StateDisconnected, st.State)
	assert.Equal(t, "disconnected", st.Tag)
	assert.Equal(t, "Not synced yet", st.Text)
}

func TestBoardKeepsLatestPerUser(t *testing.T) {
	b := NewBoard()
	b.Notify(Status{UserID: "u1", State: StateSyncing, Tag: StateSyncing.Tag(), Text: "Syncing..."})
	b.Notify(Status{UserID: "u1", State: StateSynced, Tag: StateSynced.Tag(), Text: "Last synced: now", At: time.Now()})
	b.Notify(Status{UserID: "u2", State: StateError, Tag: StateError.Tag(), Reason: "network_unavailable"})

	assert.Equal(t, StateSynced, b.Get("u1").State)
	assert.Equal(t, "connected", b.Get("u1").Tag)
	assert.Equal(t, "network_unavailable", b.Get("u2").Reason)
}

func TestBoardAutoSyncFlag(t *testing.T) {
	b := NewBoard()
	b.SetAutoSync("u1", true)
	assert.True(t, b.Get("u1").AutoSync)

	b.Notify(Status{UserID: "u1", State: StateSynced})
	assert.True(t, b.Get("u1").AutoSync, "flag survives new statuses")

	b.SetAutoSync("u1", false)
	assert.False(t, b.Get("u1").AutoSync)
}

func TestStateTags(t *testing.T) {
	tests := map[State]string{
		StateConnected:    "connected",
		StateSynced:       "connected",
		StateSyncing:      "syncing",
		StateError:        "error",
		StateDisconnected: "disconnected",
	}
	for state, tag := range tests {
		assert.Equal(t, tag, state.Tag(), string(state))
	}
}

type counter struct{ n int }

func (c *counter) Notify(Status) { c.n++ }

func TestMultiSkipsNil(t *testing.T) {
	a, b := &counter{}, &counter{}
	Multi{a, nil, b}.Notify(Status{UserID: "u1"})
	assert.Equal(t, 1, a.n)
	assert.Equal(t, 1, b.n)
}
