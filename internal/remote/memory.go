package remote

import (
	"context"
	"sync"
	"time"

	"tutorledger/internal/ledger"
)

type memRow struct {
	data        []byte
	lastUpdated time.Time
	createdAt   time.Time
	updatedAt   time.Time
}

// Memory is an in-process remote store. Failures can be injected per
// operation to exercise the coordinator's degraded paths.
type Memory struct {
	mu      sync.Mutex
	rows    map[string]memRow
	inserts int
	updates int

	failFetch  error
	failUpsert error
	// beforeInsert runs between the existence check and the insert.
	beforeInsert func(userID string)
	// fetchGate, when set, blocks Fetch until it is closed.
	fetchGate chan struct{}
}

// NewMemory creates an empty in-memory remote.
func NewMemory() *Memory {
	return &Memory{rows: make(map[string]memRow)}
}

// Name identifies the backend in logs and status.
func (m *Memory) Name() string { return "memory" }

// FailFetch makes subsequent fetches fail with err (nil clears).
func (m *Memory) FailFetch(err error) {
	m.mu.Lock()
	m.failFetch = err
	m.mu.Unlock()
}

// FailUpsert makes subsequent upserts fail with err (nil clears).
func (m *Memory) FailUpsert(err error) {
	m.mu.Lock()
	m.failUpsert = err
	m.mu.Unlock()
}

// BeforeInsert installs a hook run between the existence check and insert.
func (m *Memory) BeforeInsert(fn func(userID string)) {
	m.mu.Lock()
	m.beforeInsert = fn
	m.mu.Unlock()
}

// GateFetch makes Fetch block until the returned function is called.
func (m *Memory) GateFetch() (release func()) {
	gate := make(chan struct{})
	m.mu.Lock()
	m.fetchGate = gate
	m.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			m.fetchGate = nil
			m.mu.Unlock()
			close(gate)
		})
	}
}

// Put stores a snapshot directly, as another device would.
func (m *Memory) Put(userID string, snap ledger.Snapshot) error {
	data, err := snap.Encode()
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	row, ok := m.rows[userID]
	if !ok {
		row.createdAt = now
	}
	row.data, row.lastUpdated, row.updatedAt = data, snap.LastUpdated, now
	m.rows[userID] = row
	return nil
}

// PutRaw stores an arbitrary JSON payload for the user.
func (m *Memory) PutRaw(userID string, data []byte, lastUpdated time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	m.rows[userID] = memRow{data: data, lastUpdated: lastUpdated, createdAt: now, updatedAt: now}
}

// Stats reports the number of rows, inserts and updates.
func (m *Memory) Stats() (rows, inserts, updates int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rows), m.inserts, m.updates
}

// Fetch returns a copy of the stored snapshot or nil.
func (m *Memory) Fetch(ctx context.Context, userID string) (*ledger.Snapshot, error) {
	if err := requireUser(m.Name(), "fetch", userID); err != nil {
		return nil, err
	}
	m.mu.Lock()
	gate := m.fetchGate
	m.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, newError(m.Name(), "fetch", ErrNetworkUnavailable, ctx.Err())
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failFetch != nil {
		return nil, m.failFetch
	}
	row, ok := m.rows[userID]
	if !ok {
		return nil, nil
	}
	return decodeRow(m.Name(), row.data, row.lastUpdated)
}

// Exists reports whether the user has a row.
func (m *Memory) Exists(_ context.Context, userID string) (bool, error) {
	if err := requireUser(m.Name(), "exists", userID); err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.rows[userID]
	return ok, nil
}

// Upsert writes the snapshot through the shared check-then-write path.
func (m *Memory) Upsert(ctx context.Context, userID string, snap ledger.Snapshot) error {
	if err := requireUser(m.Name(), "upsert", userID); err != nil {
		return err
	}
	m.mu.Lock()
	fail := m.failUpsert
	m.mu.Unlock()
	if fail != nil {
		return fail
	}
	data, err := snap.Encode()
	if err != nil {
		return newError(m.Name(), "upsert", ErrBackend, err)
	}
	_, err = upsertRow(ctx, m, userID, data, snap.LastUpdated)
	return err
}

func (m *Memory) exists(ctx context.Context, userID string) (bool, error) {
	return m.Exists(ctx, userID)
}

func (m *Memory) insert(_ context.Context, userID string, data []byte, lastUpdated time.Time) error {
	m.mu.Lock()
	hook := m.beforeInsert
	m.mu.Unlock()
	if hook != nil {
		hook(userID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rows[userID]; ok {
		return newError(m.Name(), "insert", ErrConflictOnInsert, nil)
	}
	now := time.Now().UTC()
	m.rows[userID] = memRow{data: data, lastUpdated: lastUpdated, createdAt: now, updatedAt: now}
	m.inserts++
	return nil
}

func (m *Memory) update(ctx context.Context, userID string, data []byte, lastUpdated time.Time) error {
	m.mu.Lock()
	row, ok := m.rows[userID]
	if !ok {
		m.mu.Unlock()
		return m.insert(ctx, userID, data, lastUpdated)
	}
	defer m.mu.Unlock()
	row.data, row.lastUpdated, row.updatedAt = data, lastUpdated, time.Now().UTC()
	m.rows[userID] = row
	m.updates++
	return nil
}
