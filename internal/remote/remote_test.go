package remote

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tutorledger/internal/ledger"
)

func TestMemoryFirstUpsertCreatesOneRow(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	snap := ledger.NewSnapshot(time.Now())

	require.NoError(t, m.Upsert(ctx, "u1", snap))
	require.NoError(t, m.Upsert(ctx, "u1", snap))

	rows, inserts, updates := m.Stats()
	assert.Equal(t, 1, rows)
	assert.Equal(t, 1, inserts)
	assert.Equal(t, 1, updates)
}

func TestMemoryConflictOnInsertFallsBackToUpdate(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	other := ledger.NewSnapshot(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	mine := ledger.NewSnapshot(time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC))
	mine.Students = []ledger.Student{{StudentID: "s1", Name: "Ada"}}

	m.BeforeInsert(func(userID string) {
		require.NoError(t, m.Put(userID, other))
	})
	require.NoError(t, m.Upsert(ctx, "u1", mine))

	rows, inserts, updates := m.Stats()
	assert.Equal(t, 1, rows)
	assert.Zero(t, inserts)
	assert.Equal(t, 1, updates)

	got, err := m.Fetch(ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Len(t, got.Students, 1)
}

func TestMemoryFetchMissingRow(t *testing.T) {
	got, err := NewMemory().Fetch(context.Background(), "u1")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestMemoryRequiresUser(t *testing.T) {
	m := NewMemory()
	_, err := m.Fetch(context.Background(), "")
	assert.ErrorIs(t, err, ErrNotAuthenticated)
	assert.ErrorIs(t, m.Upsert(context.Background(), "", ledger.Snapshot{}), ErrNotAuthenticated)
}

func TestMemoryFetchGateHonoursContext(t *testing.T) {
	m := NewMemory()
	release := m.GateFetch()
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := m.Fetch(ctx, "u1")
	assert.Equal(t, ReasonNetwork, Classify(err))
}

func TestDecodeRowFallsBackToRowTimestamp(t *testing.T) {
	ts := time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)
	snap, err := decodeRow("memory", []byte(`{"students":[]}`), ts)
	require.NoError(t, err)
	assert.Equal(t, ts, snap.LastUpdated)

	_, err = decodeRow("memory", []byte(`{`), ts)
	assert.ErrorIs(t, err, ErrBackend)
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestPostgresClassify(t *testing.T) {
	p := &Postgres{}
	tests := []struct {
		name string
		err  error
		want Reason
	}{
		{name: "unique violation", err: &pgconn.PgError{Code: "23505"}, want: ReasonConflict},
		{name: "insufficient privilege", err: &pgconn.PgError{Code: "42501"}, want: ReasonPermission},
		{name: "undefined table", err: &pgconn.PgError{Code: "42P01"}, want: ReasonNotFound},
		{name: "bad password", err: &pgconn.PgError{Code: "28P01"}, want: ReasonNotAuthenticated},
		{name: "other sqlstate", err: &pgconn.PgError{Code: "22P02"}, want: ReasonBackend},
		{name: "wrapped sqlstate", err: fmt.Errorf("query: %w", &pgconn.PgError{Code: "42501"}), want: ReasonPermission},
		{name: "bad conn", err: driver.ErrBadConn, want: ReasonNetwork},
		{name: "timeout", err: timeoutErr{}, want: ReasonNetwork},
		{name: "deadline", err: context.DeadlineExceeded, want: ReasonNetwork},
		{name: "unknown", err: errors.New("boom"), want: ReasonBackend},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := p.classify("fetch", tt.err)
			assert.Equal(t, tt.want, Classify(got))
			assert.ErrorIs(t, got, tt.err)
		})
	}
	assert.NoError(t, p.classify("fetch", nil))
}

func TestRedisClassify(t *testing.T) {
	r := &RedisDocs{}
	assert.Equal(t, ReasonPermission, Classify(r.classify("upsert", errors.New("NOPERM this user has no permissions"))))
	assert.Equal(t, ReasonNotAuthenticated, Classify(r.classify("fetch", errors.New("NOAUTH Authentication required."))))
	assert.Equal(t, ReasonNotAuthenticated, Classify(r.classify("fetch", errors.New("WRONGPASS invalid username-password pair"))))
	assert.Equal(t, ReasonNetwork, Classify(r.classify("fetch", redis.ErrClosed)))
	assert.Equal(t, ReasonBackend, Classify(r.classify("fetch", errors.New("ERR syntax error"))))
}

func TestErrorMessage(t *testing.T) {
	err := newError("postgres", "insert", ErrConflictOnInsert, errors.New("duplicate key"))
	assert.Equal(t, "postgres insert: conflict on insert: duplicate key", err.Error())
	assert.ErrorIs(t, err, ErrConflictOnInsert)
	assert.Equal(t, ReasonNone, Classify(nil))
}
