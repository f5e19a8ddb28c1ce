package store

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"tutorledger/internal/ledger"
)

// RedisLocal keeps snapshots under tutorledger:local:<user>.
type RedisLocal struct {
	client *redis.Client
	log    zerolog.Logger
	now    func() time.Time
}

// NewRedisLocal builds a local store on an existing redis client.
func NewRedisLocal(client *redis.Client, log zerolog.Logger) *RedisLocal {
	return &RedisLocal{
		client: client,
		log:    log.With().Str("component", "local_redis").Logger(),
		now:    time.Now,
	}
}

func localKey(userID string) string { return "tutorledger:local:" + userID }

// Read returns the stored snapshot or a fresh one.
func (r *RedisLocal) Read(ctx context.Context, userID string) (ledger.Snapshot, error) {
	raw, err := r.client.Get(ctx, localKey(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return ledger.NewSnapshot(r.now()), nil
	}
	if err != nil {
		return ledger.Snapshot{}, errors.Wrapf(err, "read snapshot %s", userID)
	}
	snap, err := ledger.Decode(raw)
	if err != nil {
		r.log.Warn().Err(err).Str("user_id", userID).Msg("stored snapshot unreadable, starting fresh")
		return ledger.NewSnapshot(r.now()), nil
	}
	fillCollections(&snap)
	return snap, nil
}

// Write replaces the stored snapshot with one SET.
func (r *RedisLocal) Write(ctx context.Context, userID string, snap ledger.Snapshot) error {
	raw, err := snap.Encode()
	if err != nil {
		return errors.Wrap(err, "encode snapshot")
	}
	return errors.Wrapf(r.client.Set(ctx, localKey(userID), raw, 0).Err(), "write snapshot %s", userID)
}

// MemoryLocal is a process-local store for tests and ephemeral runs.
type MemoryLocal struct {
	mu     sync.Mutex
	data   map[string][]byte
	writes int
	now    func() time.Time
}

// NewMemoryLocal creates an empty in-memory store.
func NewMemoryLocal() *MemoryLocal {
	return &MemoryLocal{data: make(map[string][]byte), now: time.Now}
}

// Read returns a copy of the stored snapshot or a fresh one.
func (m *MemoryLocal) Read(_ context.Context, userID string) (ledger.Snapshot, error) {
	m.mu.Lock()
	raw, ok := m.data[userID]
	m.mu.Unlock()
	if !ok {
		return ledger.NewSnapshot(m.now()), nil
	}
	// Only Write fills data, so undecodable bytes are a bug, not user data
	// to recover from.
	snap, err := ledger.Decode(raw)
	if err != nil {
		return ledger.Snapshot{}, errors.Wrapf(err, "decode snapshot %s", userID)
	}
	fillCollections(&snap)
	return snap, nil
}

// Write stores a copy of the snapshot.
func (m *MemoryLocal) Write(_ context.Context, userID string, snap ledger.Snapshot) error {
	raw, err := snap.Encode()
	if err != nil {
		return errors.Wrap(err, "encode snapshot")
	}
	m.mu.Lock()
	m.data[userID] = raw
	m.writes++
	m.mu.Unlock()
	return nil
}

// Writes reports how many writes the store has accepted.
func (m *MemoryLocal) Writes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}
